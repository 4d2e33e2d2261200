package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// SwapchainExtensionName is required on any Gpu that will present to a
// surface.
const SwapchainExtensionName = "VK_KHR_swapchain"

// MinimumAPIVersion is the lowest device API version this package will
// accept.
var MinimumAPIVersion = Version{Major: 1, Minor: 1}

// Gpu is a physical device that passed the viability checks in
// EnumerateGpus. QueueFamilyIndex identifies a queue family supporting
// graphics and transfer work and presentation to the surface the list
// was built against.
type Gpu struct {
	Name             string
	PhysicalDevice   *PhysicalDevice
	Properties       vk.PhysicalDeviceProperties
	Features         vk.PhysicalDeviceFeatures
	QueueFamily      *QueueFamily
	QueueFamilyIndex uint32
}

// GpuSelector picks one Gpu from a viable list. Returning nil aborts
// device creation.
type GpuSelector func(gpus []Gpu) *Gpu

// DefaultGpuSelector prefers a discrete adapter and otherwise settles
// for the first viable one.
func DefaultGpuSelector(gpus []Gpu) *Gpu {
	for i := range gpus {
		if gpus[i].Properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			return &gpus[i]
		}
	}
	if len(gpus) > 0 {
		return &gpus[0]
	}
	return nil
}

// EnumerateGpus lists the physical devices which can drive this
// package: they must offer the swapchain extension, meet
// MinimumAPIVersion and own a queue family which does graphics and
// transfer work and can present to the given surface. Devices failing
// any check are silently dropped.
func (i *Instance) EnumerateGpus(surface vk.Surface) ([]Gpu, error) {
	physicalDevices, err := i.PhysicalDevices()
	if err != nil {
		return nil, fmt.Errorf("error enumerating physical devices: %w", err)
	}

	gpus := make([]Gpu, 0, len(physicalDevices))

	for _, pd := range physicalDevices {
		if pd.VKPhysicalDeviceProperties.ApiVersion < MinimumAPIVersion.VKVersion() {
			continue
		}

		if !pd.HasExtension(SwapchainExtensionName) {
			continue
		}

		families, err := pd.QueueFamilies()
		if err != nil {
			continue
		}

		families = families.Filter(func(q *QueueFamily) bool {
			return q.IsGraphics() && q.IsTransfer() && q.SupportsPresent(surface)
		})
		if len(families) == 0 {
			continue
		}

		gpu := Gpu{
			Name:             pd.DeviceName,
			PhysicalDevice:   pd,
			Properties:       pd.VKPhysicalDeviceProperties,
			Features:         pd.VKPhysicalDeviceFeatures(),
			QueueFamily:      families[0],
			QueueFamilyIndex: uint32(families[0].Index),
		}
		gpus = append(gpus, gpu)
	}

	return gpus, nil
}

// SelectGpu runs the given selector over the viable devices, falling
// back to DefaultGpuSelector when selector is nil.
func (i *Instance) SelectGpu(surface vk.Surface, selector GpuSelector) (*Gpu, error) {
	gpus, err := i.EnumerateGpus(surface)
	if err != nil {
		return nil, err
	}
	if len(gpus) == 0 {
		return nil, fmt.Errorf("no viable GPUs found")
	}
	if selector == nil {
		selector = DefaultGpuSelector
	}
	gpu := selector(gpus)
	if gpu == nil {
		return nil, fmt.Errorf("GPU selector declined all %d viable GPUs", len(gpus))
	}
	return gpu, nil
}
