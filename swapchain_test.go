package vkr

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestClampExtent(t *testing.T) {
	min := vk.Extent2D{Width: 1, Height: 1}
	max := vk.Extent2D{Width: 4096, Height: 4096}

	// The surface dictates the extent when it reports one.
	current := vk.Extent2D{Width: 800, Height: 600}
	got := clampExtent(current, min, max, vk.Extent2D{Width: 100, Height: 100})
	if got != current {
		t.Errorf("expected surface extent %v, got %v", current, got)
	}

	// Otherwise the desired size is clamped into range.
	unset := vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32}
	got = clampExtent(unset, min, max, vk.Extent2D{Width: 8000, Height: 50})
	if got.Width != 4096 || got.Height != 50 {
		t.Errorf("expected 4096x50, got %dx%d", got.Width, got.Height)
	}

	got = clampExtent(unset, vk.Extent2D{Width: 64, Height: 64}, max, vk.Extent2D{Width: 10, Height: 10})
	if got.Width != 64 || got.Height != 64 {
		t.Errorf("expected clamp up to 64x64, got %dx%d", got.Width, got.Height)
	}
}

func TestSwapchainImageCount(t *testing.T) {
	desired := uint32(ResourceBuffering) + 1

	if got := swapchainImageCount(2, 8); got != desired {
		t.Errorf("expected %d images, got %d", desired, got)
	}

	// Respect the surface minimum.
	if got := swapchainImageCount(desired+2, 0); got != desired+2 {
		t.Errorf("expected surface minimum %d, got %d", desired+2, got)
	}

	// Respect the surface maximum; zero means unbounded.
	if got := swapchainImageCount(1, 2); got != 2 {
		t.Errorf("expected cap at 2 images, got %d", got)
	}
	if got := swapchainImageCount(1, 0); got != desired {
		t.Errorf("expected %d images with unbounded max, got %d", desired, got)
	}
}

func TestPickPresentMode(t *testing.T) {
	supported := VKPresentModes{vk.PresentModeFifo, vk.PresentModeMailbox}

	if got := pickPresentMode(supported, vk.PresentModeMailbox); got != vk.PresentModeMailbox {
		t.Errorf("expected mailbox to be kept, got %d", got)
	}
	if got := pickPresentMode(supported, vk.PresentModeImmediate); got != vk.PresentModeFifo {
		t.Errorf("expected unsupported mode to fall back to FIFO, got %d", got)
	}
	if got := pickPresentMode(supported, vk.PresentModeFifo); got != vk.PresentModeFifo {
		t.Errorf("expected FIFO to be kept, got %d", got)
	}
}

func TestResourceBufferingBounds(t *testing.T) {
	if ResourceBuffering < 2 || ResourceBuffering > 8 {
		t.Fatalf("ResourceBuffering = %d, must stay within [2, 8]", ResourceBuffering)
	}
}
