package vkr

import (
	"image"
	"image/draw"
	"os"
	"unsafe"

	_ "image/jpeg"
	_ "image/png"

	vk "github.com/vulkan-go/vulkan"
)

// Texture is a sampled image paired with a sampler, ready to bind as a
// combined image sampler.
type Texture struct {
	Image     *Image
	VKSampler vk.Sampler
}

// TextureCreateInfo controls texture creation. The zero value gives a
// linearly filtered, repeating, mip mapped texture.
type TextureCreateInfo struct {
	Filter      vk.Filter
	AddressMode vk.SamplerAddressMode
	NoMipMaps   bool
}

// DecodeRGBA reads a PNG or JPEG file from disk and converts it to
// tightly packed RGBA.
func DecodeRGBA(file string) (*image.RGBA, error) {
	reader, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	src, _, err := image.Decode(reader)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	m := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(m, m.Bounds(), src, b.Min, draw.Src)

	return m, nil
}

func rgbaBytes(img *image.RGBA) []byte {
	return ToBytes(unsafe.Pointer(&img.Pix[0]), len(img.Pix))
}

// CreateSampler creates a sampler covering the image's full mip chain.
func (d *Device) CreateSampler(filter vk.Filter, addressMode vk.SamplerAddressMode, mipLevels uint32) (vk.Sampler, error) {
	samplerInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    filter,
		MinFilter:    filter,
		AddressModeU: addressMode,
		AddressModeV: addressMode,
		AddressModeW: addressMode,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		MaxLod:       float32(mipLevels),
		BorderColor:  vk.BorderColorIntOpaqueBlack,
	}

	var sampler vk.Sampler
	err := vk.Error(vk.CreateSampler(d.VKDevice, &samplerInfo, nil, &sampler))
	if err != nil {
		return vk.NullSampler, err
	}
	return sampler, nil
}

// CreateTexture uploads the RGBA bitmap into a device local, sampled,
// mip mapped image and pairs it with a sampler. The upload submits and
// waits before returning.
func (t *TransferContext) CreateTexture(src *image.RGBA, info *TextureCreateInfo) (*Texture, error) {
	if info == nil {
		info = &TextureCreateInfo{}
	}

	b := src.Bounds()
	img, err := t.CreateImage(ImageCreateInfo{
		Extent:    vk.Extent2D{Width: uint32(b.Dx()), Height: uint32(b.Dy())},
		Format:    vk.FormatR8g8b8a8Unorm,
		MipMapped: !info.NoMipMaps,
	})
	if err != nil {
		return nil, err
	}

	err = img.Upload([][]byte{rgbaBytes(src)})
	if err != nil {
		img.Destroy()
		return nil, err
	}

	sampler, err := t.Device.CreateSampler(info.Filter, info.AddressMode, img.MipLevels)
	if err != nil {
		img.Destroy()
		return nil, err
	}

	return &Texture{Image: img, VKSampler: sampler}, nil
}

// CreateTextureFromFile decodes an image file and uploads it.
func (t *TransferContext) CreateTextureFromFile(file string, info *TextureCreateInfo) (*Texture, error) {
	src, err := DecodeRGBA(file)
	if err != nil {
		return nil, err
	}
	return t.CreateTexture(src, info)
}

// DescriptorInfo returns a combined image sampler descriptor for the
// texture in its current layout.
func (t *Texture) DescriptorInfo() vk.DescriptorImageInfo {
	return vk.DescriptorImageInfo{
		Sampler:     t.VKSampler,
		ImageView:   t.Image.VKImageView,
		ImageLayout: t.Image.Layout,
	}
}

func (t *Texture) Destroy() {
	vk.DestroySampler(t.Image.Device.VKDevice, t.VKSampler, nil)
	t.Image.Destroy()
}
