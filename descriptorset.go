package vkr

import (
	vk "github.com/vulkan-go/vulkan"
)

// DescriptorSet is a binding of resources to a descriptor, per a specific DescriptorSetLayout
type DescriptorSet struct {
	Device               *Device
	DescriptorPool       *DescriptorPool
	VKDescriptorSet      vk.DescriptorSet
	VKWriteDescriptorSet []vk.WriteDescriptorSet
}

// AddBuffer adds a buffer binding covering the buffer's current size
func (du *DescriptorSet) AddBuffer(dstBinding int, dtype vk.DescriptorType, b *Buffer, offset uint64) {
	du.AddBufferInfo(dstBinding, dtype, b.DescriptorInfo(offset))
}

// AddBufferInfo adds a buffer binding from prebuilt descriptor info, as
// returned by RenderDevice.ScratchDescriptorBuffer
func (du *DescriptorSet) AddBufferInfo(dstBinding int, dtype vk.DescriptorType, info vk.DescriptorBufferInfo) {
	var writeDescriptorSet = vk.WriteDescriptorSet{}
	writeDescriptorSet.SType = vk.StructureTypeWriteDescriptorSet
	writeDescriptorSet.DstBinding = uint32(dstBinding)
	writeDescriptorSet.DescriptorCount = 1
	writeDescriptorSet.DescriptorType = dtype
	writeDescriptorSet.PBufferInfo = []vk.DescriptorBufferInfo{info}

	if du.VKWriteDescriptorSet == nil {
		du.VKWriteDescriptorSet = make([]vk.WriteDescriptorSet, 0)
	}
	du.VKWriteDescriptorSet = append(du.VKWriteDescriptorSet, writeDescriptorSet)
}

// AddCombinedImageSampler adds an image layout, image view and sampler to support displaying a texture
func (du *DescriptorSet) AddCombinedImageSampler(dstBinding int, layout vk.ImageLayout, imageView vk.ImageView, sampler vk.Sampler) {

	var descriptorImageInfo = vk.DescriptorImageInfo{}
	descriptorImageInfo.ImageView = imageView
	descriptorImageInfo.ImageLayout = layout
	descriptorImageInfo.Sampler = sampler

	var writeDescriptorSet = vk.WriteDescriptorSet{}
	writeDescriptorSet.SType = vk.StructureTypeWriteDescriptorSet
	writeDescriptorSet.DstBinding = uint32(dstBinding)
	writeDescriptorSet.DescriptorCount = 1
	writeDescriptorSet.DescriptorType = vk.DescriptorTypeCombinedImageSampler
	writeDescriptorSet.PImageInfo = []vk.DescriptorImageInfo{descriptorImageInfo}

	if du.VKWriteDescriptorSet == nil {
		du.VKWriteDescriptorSet = make([]vk.WriteDescriptorSet, 0)
	}
	du.VKWriteDescriptorSet = append(du.VKWriteDescriptorSet, writeDescriptorSet)

}

// AddTexture adds the texture as a combined image sampler in its
// current layout
func (du *DescriptorSet) AddTexture(dstBinding int, t *Texture) {
	du.AddCombinedImageSampler(dstBinding, t.Image.Layout, t.Image.VKImageView, t.VKSampler)
}

// Write flushes the accumulated bindings to the device
func (du *DescriptorSet) Write() {
	for i := range du.VKWriteDescriptorSet {
		du.VKWriteDescriptorSet[i].DstSet = du.VKDescriptorSet
	}
	vk.UpdateDescriptorSets(du.Device.VKDevice, uint32(len(du.VKWriteDescriptorSet)), du.VKWriteDescriptorSet, 0, nil)
	du.VKWriteDescriptorSet = du.VKWriteDescriptorSet[:0]
}
