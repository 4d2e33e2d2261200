package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

type PipelineCache struct {
	Device          *Device
	VKPipelineCache vk.PipelineCache
}

func (d *Device) CreatePipelineCache() (*PipelineCache, error) {
	var pipelineCacheCreate = vk.PipelineCacheCreateInfo{}
	pipelineCacheCreate.SType = vk.StructureTypePipelineCacheCreateInfo

	var pipelineCache vk.PipelineCache

	err := vk.Error(vk.CreatePipelineCache(d.VKDevice, &pipelineCacheCreate, nil, &pipelineCache))
	if err != nil {
		return nil, err
	}

	var ret PipelineCache
	ret.Device = d
	ret.VKPipelineCache = pipelineCache
	return &ret, nil
}

func (p *PipelineCache) Destroy() {
	vk.DestroyPipelineCache(p.Device.VKDevice, p.VKPipelineCache, nil)
}

// CreateGraphicsPipelines builds one pipeline per config against the
// given render pass. The extent only matters for configs that opt out
// of dynamic viewport state.
func (d *Device) CreateGraphicsPipelines(cache *PipelineCache, renderPass vk.RenderPass,
	extent vk.Extent2D, configs ...IGraphicsPipelineConfig) ([]vk.Pipeline, error) {

	createInfos := make([]vk.GraphicsPipelineCreateInfo, len(configs))
	for i, config := range configs {
		createInfo, err := config.VKGraphicsPipelineCreateInfo(extent)
		if err != nil {
			return nil, fmt.Errorf("error generating graphics pipeline config %d: %w", i, err)
		}
		createInfo.RenderPass = renderPass
		createInfos[i] = createInfo
	}

	pipelines := make([]vk.Pipeline, len(configs))

	var vkCache vk.PipelineCache
	if cache != nil {
		vkCache = cache.VKPipelineCache
	}

	err := vk.Error(vk.CreateGraphicsPipelines(d.VKDevice, vkCache,
		uint32(len(createInfos)), createInfos, nil, pipelines))
	if err != nil {
		return nil, fmt.Errorf("unable to create graphics pipelines: %w", err)
	}

	return pipelines, nil
}
