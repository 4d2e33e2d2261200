package vkr

import (
	"fmt"
	"log"

	vk "github.com/vulkan-go/vulkan"
)

// Swapchain owns the presentable images for a surface. It can be
// recreated in place (after resizes or out-of-date results) and hands
// out at most one image per frame: AcquireNextImage is idempotent until
// Present or Recreate clears the held index.
//
// Each swapchain image owns its present semaphore. The semaphore a
// submit must signal before presenting belongs to the acquired image,
// not to the frame slot, because present completion is observed per
// image.
type Swapchain struct {
	Device      *Device
	Surface     vk.Surface
	VKSwapchain vk.Swapchain

	Format      vk.SurfaceFormat
	Extent      vk.Extent2D
	PresentMode vk.PresentMode

	Images            []vk.Image
	ImageViews        []vk.ImageView
	presentSemaphores []vk.Semaphore

	imageIndex int
}

type CreateSwapchainOptions struct {
	// PresentMode is used when the surface supports it; otherwise
	// FIFO, which is always available.
	PresentMode vk.PresentMode
}

// clampExtent resolves the swapchain extent: the surface dictates it
// when it reports a current extent, otherwise the desired size is
// clamped into the supported range.
func clampExtent(current, min, max, desired vk.Extent2D) vk.Extent2D {
	if current.Width != vk.MaxUint32 {
		return current
	}
	return vk.Extent2D{
		Width:  clampUint32(desired.Width, min.Width, max.Width),
		Height: clampUint32(desired.Height, min.Height, max.Height),
	}
}

// pickPresentMode validates the desired mode against what the surface
// supports, falling back to FIFO, which is always available.
func pickPresentMode(supported VKPresentModes, desired vk.PresentMode) vk.PresentMode {
	if supported.Has(desired) {
		return desired
	}
	return vk.PresentModeFifo
}

// swapchainImageCount asks for one image more than the buffering factor
// so acquisition rarely blocks, within what the surface allows.
// maxImages of zero means unbounded.
func swapchainImageCount(minImages, maxImages uint32) uint32 {
	desired := uint32(ResourceBuffering) + 1
	if desired < minImages {
		desired = minImages
	}
	if maxImages > 0 && desired > maxImages {
		desired = maxImages
	}
	return desired
}

func pickSurfaceFormat(formats VKSurfaceFormats) vk.SurfaceFormat {
	preferred := []vk.Format{vk.FormatB8g8r8a8Unorm, vk.FormatR8g8b8a8Unorm}
	for _, want := range preferred {
		for _, f := range formats {
			f.Deref()
			if f.Format == want {
				return f
			}
		}
	}
	f := formats[0]
	f.Deref()
	return f
}

// CreateSwapchain prepares a swapchain for the surface. No native
// swapchain exists until the first Recreate call.
func (d *Device) CreateSwapchain(surface vk.Surface, options *CreateSwapchainOptions) (*Swapchain, error) {
	formats, err := d.PhysicalDevice.GetSurfaceFormats(surface)
	if err != nil {
		return nil, fmt.Errorf("unable to query surface formats: %w", err)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("surface reports no formats")
	}

	presentMode := vk.PresentModeFifo
	if options != nil && options.PresentMode != vk.PresentModeFifo {
		modes, err := d.PhysicalDevice.GetSurfacePresentModes(surface)
		if err != nil {
			return nil, fmt.Errorf("unable to query present modes: %w", err)
		}
		presentMode = pickPresentMode(modes, options.PresentMode)
		if presentMode != options.PresentMode {
			log.Printf("swapchain: present mode %d unsupported, falling back to FIFO", options.PresentMode)
		}
	}

	return &Swapchain{
		Device:      d,
		Surface:     surface,
		Format:      pickSurfaceFormat(formats),
		PresentMode: presentMode,
		imageIndex:  -1,
	}, nil
}

// Recreate builds (or rebuilds) the native swapchain at the given
// framebuffer size, chaining from the old swapchain if one exists. A
// zero extent is a no-op so minimized windows can keep calling it. The
// held image index is always cleared.
//
// Non-nil options switch the present mode for this and later
// incarnations of the swapchain, validated against the surface the same
// way CreateSwapchain validates it.
func (s *Swapchain) Recreate(desired vk.Extent2D, options *CreateSwapchainOptions) error {
	if desired.Width == 0 || desired.Height == 0 {
		return nil
	}

	if options != nil {
		modes, err := s.Device.PhysicalDevice.GetSurfacePresentModes(s.Surface)
		if err != nil {
			return fmt.Errorf("unable to query present modes: %w", err)
		}
		mode := pickPresentMode(modes, options.PresentMode)
		if mode != options.PresentMode {
			log.Printf("swapchain: present mode %d unsupported, falling back to FIFO", options.PresentMode)
		}
		s.PresentMode = mode
	}

	caps, err := s.Device.PhysicalDevice.GetSurfaceCapabilities(s.Surface)
	if err != nil {
		return fmt.Errorf("unable to query surface capabilities: %w", err)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	extent := clampExtent(caps.CurrentExtent, caps.MinImageExtent, caps.MaxImageExtent, desired)
	if extent.Width == 0 || extent.Height == 0 {
		return nil
	}

	imageCount := swapchainImageCount(caps.MinImageCount, caps.MaxImageCount)

	createInfo := &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      s.Format.Format,
		ImageColorSpace:  s.Format.ColorSpace,
		ImageExtent:      extent,
		PresentMode:      s.PresentMode,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		Clipped:          vk.True,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		OldSwapchain:     s.VKSwapchain,
	}

	var swapchain vk.Swapchain
	err = vk.Error(vk.CreateSwapchain(s.Device.VKDevice, createInfo, nil, &swapchain))
	if err != nil {
		return fmt.Errorf("unable to create swapchain: %w", err)
	}

	// The old swapchain's images may still be in flight.
	s.Device.WaitIdle()
	s.releaseImages()
	if s.VKSwapchain != vk.NullSwapchain {
		vk.DestroySwapchain(s.Device.VKDevice, s.VKSwapchain, nil)
	}

	s.VKSwapchain = swapchain
	s.Extent = extent
	s.imageIndex = -1

	err = s.createImages()
	if err != nil {
		return err
	}

	log.Printf("swapchain: recreated %dx%d with %d images", extent.Width, extent.Height, len(s.Images))

	return nil
}

func (s *Swapchain) createImages() error {
	var imageCount uint32
	err := vk.Error(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, nil))
	if err != nil {
		return err
	}

	images := make([]vk.Image, imageCount)
	err = vk.Error(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, images))
	if err != nil {
		return err
	}
	s.Images = images

	s.ImageViews = make([]vk.ImageView, imageCount)
	s.presentSemaphores = make([]vk.Semaphore, imageCount)
	for i, image := range images {
		viewInfo := &vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   s.Format.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		err = vk.Error(vk.CreateImageView(s.Device.VKDevice, viewInfo, nil, &s.ImageViews[i]))
		if err != nil {
			return err
		}

		s.presentSemaphores[i], err = s.Device.VKCreateSemaphore()
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Swapchain) releaseImages() {
	for _, view := range s.ImageViews {
		vk.DestroyImageView(s.Device.VKDevice, view, nil)
	}
	for _, sem := range s.presentSemaphores {
		s.Device.VKDestroySemaphore(sem)
	}
	s.ImageViews = nil
	s.presentSemaphores = nil
	s.Images = nil
}

// AcquireNextImage acquires a backbuffer, signaling the given semaphore
// when it is ready. If an image is already held this frame it is
// returned again without touching the semaphore. ok is false when the
// swapchain is out of date and must be recreated; a suboptimal result
// still succeeds.
func (s *Swapchain) AcquireNextImage(semaphore vk.Semaphore) (uint32, bool, error) {
	if s.imageIndex >= 0 {
		return uint32(s.imageIndex), true, nil
	}

	var imageIndex uint32
	res := vk.AcquireNextImage(s.Device.VKDevice, s.VKSwapchain, uint64(DefaultFenceTimeout.Nanoseconds()),
		semaphore, vk.NullFence, &imageIndex)

	switch res {
	case vk.Success, vk.Suboptimal:
		s.imageIndex = int(imageIndex)
		return imageIndex, true, nil
	case vk.ErrorOutOfDate:
		return 0, false, nil
	case vk.Timeout, vk.NotReady:
		return 0, false, fmt.Errorf("timed out acquiring swapchain image")
	default:
		return 0, false, fmt.Errorf("unable to acquire swapchain image: %w", vk.Error(res))
	}
}

// HeldImage returns the currently acquired backbuffer, or ok false when
// none is held.
func (s *Swapchain) HeldImage() (RenderTarget, bool) {
	if s.imageIndex < 0 {
		return RenderTarget{}, false
	}
	return RenderTarget{
		VKImage:     s.Images[s.imageIndex],
		VKImageView: s.ImageViews[s.imageIndex],
		Extent:      s.Extent,
		Format:      s.Format.Format,
	}, true
}

// PresentSemaphore returns the semaphore the frame submit must signal
// before the held image can be presented. Valid only while an image is
// held.
func (s *Swapchain) PresentSemaphore() vk.Semaphore {
	return s.presentSemaphores[s.imageIndex]
}

// Present queues the held image for presentation, waiting on that
// image's present semaphore. The held index is cleared whatever the
// result. ok is false when the swapchain needs recreation.
func (s *Swapchain) Present(queue *Queue) (bool, error) {
	if s.imageIndex < 0 {
		return false, fmt.Errorf("no swapchain image held")
	}

	imageIndices := []uint32{uint32(s.imageIndex)}
	waitSemaphores := []vk.Semaphore{s.presentSemaphores[s.imageIndex]}
	s.imageIndex = -1

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.VKSwapchain},
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    waitSemaphores,
		PImageIndices:      imageIndices,
	}

	res := queue.Present(&presentInfo)
	switch res {
	case vk.Success:
		return true, nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return false, nil
	default:
		return false, fmt.Errorf("unable to present swapchain image: %w", vk.Error(res))
	}
}

// ImageCount returns the number of swapchain images.
func (s *Swapchain) ImageCount() int {
	return len(s.Images)
}

func (s *Swapchain) Destroy() {
	s.releaseImages()
	if s.VKSwapchain != vk.NullSwapchain {
		vk.DestroySwapchain(s.Device.VKDevice, s.VKSwapchain, nil)
		s.VKSwapchain = vk.NullSwapchain
	}
}
