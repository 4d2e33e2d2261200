package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// VKCreateSemaphore creates a binary semaphore. The frame slots and the
// swapchain use these for queue ordering only, so they are handed out
// as native handles rather than wrapped.
func (d *Device) VKCreateSemaphore() (vk.Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	err := vk.Error(vk.CreateSemaphore(d.VKDevice, &createInfo, nil, &semaphore))
	if err != nil {
		return nil, fmt.Errorf("unable to create semaphore: %w", err)
	}

	return semaphore, nil
}

func (d *Device) VKDestroySemaphore(semaphore vk.Semaphore) {
	vk.DestroySemaphore(d.VKDevice, semaphore, nil)
}
