package vkr

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestDefaultGpuSelectorPrefersDiscrete(t *testing.T) {
	gpus := []Gpu{
		{Name: "integrated", Properties: vk.PhysicalDeviceProperties{DeviceType: vk.PhysicalDeviceTypeIntegratedGpu}},
		{Name: "discrete", Properties: vk.PhysicalDeviceProperties{DeviceType: vk.PhysicalDeviceTypeDiscreteGpu}},
	}

	selected := DefaultGpuSelector(gpus)
	if selected == nil || selected.Name != "discrete" {
		t.Fatalf("expected discrete GPU, got %v", selected)
	}
}

func TestDefaultGpuSelectorFallsBackToFirst(t *testing.T) {
	gpus := []Gpu{
		{Name: "first", Properties: vk.PhysicalDeviceProperties{DeviceType: vk.PhysicalDeviceTypeIntegratedGpu}},
		{Name: "second", Properties: vk.PhysicalDeviceProperties{DeviceType: vk.PhysicalDeviceTypeCpu}},
	}

	selected := DefaultGpuSelector(gpus)
	if selected == nil || selected.Name != "first" {
		t.Fatalf("expected first GPU, got %v", selected)
	}
}

func TestDefaultGpuSelectorEmpty(t *testing.T) {
	if selected := DefaultGpuSelector(nil); selected != nil {
		t.Fatalf("expected nil for empty list, got %v", selected)
	}
}
