package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// DescriptorSetLayout accumulates bindings and, once created, owns the
// native layout handle describing them.
type DescriptorSetLayout struct {
	Device                        *Device
	VKDescriptorSetLayout         vk.DescriptorSetLayout
	VKDescriptorSetLayoutBindings []vk.DescriptorSetLayoutBinding
}

func (d *Device) NewDescriptorSetLayout() *DescriptorSetLayout {
	return &DescriptorSetLayout{Device: d}
}

// AddBinding appends a binding. Call before CreateDescriptorSetLayout.
func (l *DescriptorSetLayout) AddBinding(binding vk.DescriptorSetLayoutBinding) {
	l.VKDescriptorSetLayoutBindings = append(l.VKDescriptorSetLayoutBindings, binding)
}

// CreateDescriptorSetLayout creates the native layout from the
// accumulated bindings.
func (d *Device) CreateDescriptorSetLayout(layout *DescriptorSetLayout) (*DescriptorSetLayout, error) {
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layout.VKDescriptorSetLayoutBindings)),
		PBindings:    layout.VKDescriptorSetLayoutBindings,
	}

	var native vk.DescriptorSetLayout
	err := vk.Error(vk.CreateDescriptorSetLayout(d.VKDevice, &createInfo, nil, &native))
	if err != nil {
		return nil, fmt.Errorf("unable to create descriptor set layout: %w", err)
	}

	layout.Device = d
	layout.VKDescriptorSetLayout = native

	return layout, nil
}

func (l *DescriptorSetLayout) Destroy() {
	vk.DestroyDescriptorSetLayout(l.Device.VKDevice, l.VKDescriptorSetLayout, nil)
}
