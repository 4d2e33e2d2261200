package vkr

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

func TestComputeMipLevels(t *testing.T) {
	cases := []struct {
		width, height uint32
		expected      uint32
	}{
		{1, 1, 1},
		{2, 2, 2},
		{4, 4, 3},
		{256, 256, 9},
		{512, 256, 10},
		{256, 512, 10},
		{1920, 1080, 11},
		{0, 0, 1},
		{3, 1, 2},
	}

	for _, c := range cases {
		got := ComputeMipLevels(vk.Extent2D{Width: c.width, Height: c.height})
		if got != c.expected {
			t.Errorf("ComputeMipLevels(%dx%d) = %d, expected %d", c.width, c.height, got, c.expected)
		}
	}
}

func TestHalfExtent(t *testing.T) {
	cases := []struct {
		in, expected vk.Extent2D
	}{
		{vk.Extent2D{Width: 256, Height: 256}, vk.Extent2D{Width: 128, Height: 128}},
		{vk.Extent2D{Width: 5, Height: 3}, vk.Extent2D{Width: 2, Height: 1}},
		{vk.Extent2D{Width: 1, Height: 1}, vk.Extent2D{Width: 1, Height: 1}},
		{vk.Extent2D{Width: 2, Height: 1}, vk.Extent2D{Width: 1, Height: 1}},
	}

	for _, c := range cases {
		got := halfExtent(c.in)
		if got != c.expected {
			t.Errorf("halfExtent(%dx%d) = %dx%d, expected %dx%d",
				c.in.Width, c.in.Height, got.Width, got.Height, c.expected.Width, c.expected.Height)
		}
	}
}

func TestTexelSize(t *testing.T) {
	cases := []struct {
		format   vk.Format
		expected uint64
	}{
		{vk.FormatR8Unorm, 1},
		{vk.FormatR8g8Unorm, 2},
		{vk.FormatR8g8b8a8Unorm, 4},
		{vk.FormatB8g8r8a8Srgb, 4},
		{vk.FormatD32Sfloat, 4},
		{vk.FormatR16g16b16a16Sfloat, 8},
		{vk.FormatR32g32b32a32Sfloat, 16},
	}

	for _, c := range cases {
		got, err := texelSize(c.format)
		if err != nil {
			t.Errorf("texelSize(%d): %v", c.format, err)
			continue
		}
		if got != c.expected {
			t.Errorf("texelSize(%d) = %d, expected %d", c.format, got, c.expected)
		}
	}

	// Compressed formats have no per texel size.
	if _, err := texelSize(vk.FormatBc1RgbUnormBlock); err == nil {
		t.Errorf("expected an error for a block compressed format")
	}
}

// Walking the full chain from any extent must bottom out at 1x1 in
// exactly ComputeMipLevels steps.
func TestMipChainTerminates(t *testing.T) {
	extent := vk.Extent2D{Width: 1920, Height: 1080}
	levels := ComputeMipLevels(extent)

	e := extent
	for i := uint32(1); i < levels; i++ {
		e = halfExtent(e)
	}
	if e.Width != 1 || e.Height != 1 {
		t.Errorf("expected 1x1 after %d halvings, got %dx%d", levels-1, e.Width, e.Height)
	}
}
