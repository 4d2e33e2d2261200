package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// PipelineLayout is the set of descriptor set layouts and push constant
// ranges a pipeline binds against.
type PipelineLayout struct {
	Device           *Device
	VKPipelineLayout vk.PipelineLayout
}

// CreatePipelineLayout builds a layout over the given descriptor set
// layouts, with no push constants.
func (d *Device) CreatePipelineLayout(descriptorSetLayouts ...*DescriptorSetLayout) (*PipelineLayout, error) {
	return d.CreatePipelineLayoutWithPushConstants(descriptorSetLayouts, nil)
}

// CreatePipelineLayoutWithPushConstants builds a layout over the given
// descriptor set layouts and push constant ranges.
func (d *Device) CreatePipelineLayoutWithPushConstants(descriptorSetLayouts []*DescriptorSetLayout, pushConstants []vk.PushConstantRange) (*PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(descriptorSetLayouts))
	for i, dsl := range descriptorSetLayouts {
		setLayouts[i] = dsl.VKDescriptorSetLayout
	}

	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(pushConstants)),
		PPushConstantRanges:    pushConstants,
	}

	var layout vk.PipelineLayout
	err := vk.Error(vk.CreatePipelineLayout(d.VKDevice, &createInfo, nil, &layout))
	if err != nil {
		return nil, fmt.Errorf("unable to create pipeline layout: %w", err)
	}

	return &PipelineLayout{Device: d, VKPipelineLayout: layout}, nil
}

func (p *PipelineLayout) Destroy() {
	vk.DestroyPipelineLayout(p.Device.VKDevice, p.VKPipelineLayout, nil)
}
