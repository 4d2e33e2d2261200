package vkr

import (
	vk "github.com/vulkan-go/vulkan"
)

// IDestructable is implemented by objects which own native Vulkan
// handles and must be destroyed before their device.
type IDestructable interface {
	Destroy()
}

// IGraphicsPipelineConfig produces a native pipeline create info for a
// given target extent.
type IGraphicsPipelineConfig interface {
	VKGraphicsPipelineCreateInfo(extent vk.Extent2D) (vk.GraphicsPipelineCreateInfo, error)
	Destroy()
}

type BufferObject interface {
	Bytes() []byte
}

// VertexDescriptor describes how vertex data is laid out in a buffer
type VertexDescriptor interface {
	GetBindingDescription() vk.VertexInputBindingDescription
	GetAttributeDescriptions() []vk.VertexInputAttributeDescription
}

type VertexSource interface {
	BufferObject
	VertexDescriptor
}

type IndexSource interface {
	BufferObject
	IndexType() vk.IndexType
}
