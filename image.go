package vkr

import (
	"fmt"
	"math/bits"

	vk "github.com/vulkan-go/vulkan"
)

// ComputeMipLevels returns the length of the full mip chain for the
// given extent: floor(log2(max(width, height))) + 1.
func ComputeMipLevels(extent vk.Extent2D) uint32 {
	m := extent.Width
	if extent.Height > m {
		m = extent.Height
	}
	if m == 0 {
		return 1
	}
	return uint32(bits.Len32(m))
}

func halfExtent(e vk.Extent2D) vk.Extent2D {
	half := func(v uint32) uint32 {
		if v/2 < 1 {
			return 1
		}
		return v / 2
	}
	return vk.Extent2D{Width: half(e.Width), Height: half(e.Height)}
}

// ImageCreateInfo describes an image to create. Zero values get
// defaults: color aspect, one layer, single sampling.
type ImageCreateInfo struct {
	Extent  vk.Extent2D
	Format  vk.Format
	Usage   vk.ImageUsageFlags
	Aspect  vk.ImageAspectFlags
	Samples vk.SampleCountFlagBits
	Layers  uint32
	// MipMapped images allocate the full mip chain for their extent
	// and get it filled during Upload.
	MipMapped bool
}

// Image wraps a vk.Image, its memory and its identity view, and tracks
// the image's current layout. All layout changes must go through
// Transition or TransitionTo so the tracked layout stays truthful.
type Image struct {
	Device      *Device
	VKImage     vk.Image
	VKImageView vk.ImageView
	Memory      *DeviceMemory

	Format    vk.Format
	Usage     vk.ImageUsageFlags
	Aspect    vk.ImageAspectFlags
	Samples   vk.SampleCountFlagBits
	Layers    uint32
	MipLevels uint32
	Extent    vk.Extent2D
	Layout    vk.ImageLayout

	mipMapped bool
	transfer  *TransferContext
}

// RenderTarget is a read-only handle to an image for attaching,
// blitting or sampling.
type RenderTarget struct {
	VKImage     vk.Image
	VKImageView vk.ImageView
	Extent      vk.Extent2D
	Format      vk.Format
}

// CreateImage creates a bound 2D image with its identity view. Sampled
// and both transfer usages are added implicitly so images can always be
// uploaded to, blitted from, and bound to descriptors.
func (t *TransferContext) CreateImage(info ImageCreateInfo) (*Image, error) {
	if info.Samples == 0 {
		info.Samples = vk.SampleCount1Bit
	}
	if info.Layers == 0 {
		info.Layers = 1
	}
	if info.Aspect == 0 {
		info.Aspect = vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}

	img := &Image{
		Device:    t.Device,
		Format:    info.Format,
		Usage:     info.Usage | vk.ImageUsageFlags(vk.ImageUsageSampledBit|vk.ImageUsageTransferSrcBit|vk.ImageUsageTransferDstBit),
		Aspect:    info.Aspect,
		Samples:   info.Samples,
		Layers:    info.Layers,
		mipMapped: info.MipMapped,
		transfer:  t,
	}

	err := img.allocate(info.Extent)
	if err != nil {
		return nil, err
	}

	return img, nil
}

func (i *Image) allocate(extent vk.Extent2D) error {
	mipLevels := uint32(1)
	if i.mipMapped {
		mipLevels = ComputeMipLevels(extent)
	}

	var imageInfo = vk.ImageCreateInfo{}
	imageInfo.SType = vk.StructureTypeImageCreateInfo
	imageInfo.ImageType = vk.ImageType2d
	imageInfo.Extent.Width = extent.Width
	imageInfo.Extent.Height = extent.Height
	imageInfo.Extent.Depth = 1
	imageInfo.MipLevels = mipLevels
	imageInfo.ArrayLayers = i.Layers
	imageInfo.Format = i.Format
	imageInfo.Tiling = vk.ImageTilingOptimal
	imageInfo.InitialLayout = vk.ImageLayoutUndefined
	imageInfo.Usage = i.Usage
	imageInfo.Samples = i.Samples
	imageInfo.SharingMode = vk.SharingModeExclusive

	var image vk.Image

	err := vk.Error(vk.CreateImage(i.Device.VKDevice, &imageInfo, nil, &image))
	if err != nil {
		return fmt.Errorf("unable to create image: %w", err)
	}

	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(i.Device.VKDevice, image, &memRequirements)
	memRequirements.Deref()

	memory, err := i.Device.Allocate(int(memRequirements.Size), memRequirements.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(i.Device.VKDevice, image, nil)
		return fmt.Errorf("unable to allocate image memory: %w", err)
	}

	err = vk.Error(vk.BindImageMemory(i.Device.VKDevice, image, memory.VKDeviceMemory, 0))
	if err != nil {
		memory.Destroy()
		vk.DestroyImage(i.Device.VKDevice, image, nil)
		return err
	}

	viewType := vk.ImageViewType2d
	if i.Layers > 1 {
		viewType = vk.ImageViewType2dArray
	}

	viewInfo := &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: viewType,
		Format:   i.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: i.Aspect,
			LevelCount: mipLevels,
			LayerCount: i.Layers,
		},
	}

	var view vk.ImageView
	err = vk.Error(vk.CreateImageView(i.Device.VKDevice, viewInfo, nil, &view))
	if err != nil {
		memory.Destroy()
		vk.DestroyImage(i.Device.VKDevice, image, nil)
		return fmt.Errorf("unable to create image view: %w", err)
	}

	i.VKImage = image
	i.VKImageView = view
	i.Memory = memory
	i.MipLevels = mipLevels
	i.Extent = extent
	i.Layout = vk.ImageLayoutUndefined

	return nil
}

func (i *Image) release() {
	if i.VKImageView != vk.NullImageView {
		vk.DestroyImageView(i.Device.VKDevice, i.VKImageView, nil)
		i.VKImageView = vk.NullImageView
	}
	if i.Memory != nil {
		i.Memory.Destroy()
		i.Memory = nil
	}
	if i.VKImage != vk.NullImage {
		vk.DestroyImage(i.Device.VKDevice, i.VKImage, nil)
		i.VKImage = vk.NullImage
	}
}

// Resize recreates the image at the new extent. Contents are lost and
// the layout resets to undefined. Same-extent calls are no-ops.
func (i *Image) Resize(extent vk.Extent2D) error {
	if extent.Width == i.Extent.Width && extent.Height == i.Extent.Height {
		return nil
	}
	if extent.Width == 0 || extent.Height == 0 {
		return fmt.Errorf("cannot resize image to zero extent %dx%d", extent.Width, extent.Height)
	}

	i.release()
	return i.allocate(extent)
}

// RenderTarget returns an attachable handle to this image.
func (i *Image) RenderTarget() RenderTarget {
	return RenderTarget{
		VKImage:     i.VKImage,
		VKImageView: i.VKImageView,
		Extent:      i.Extent,
		Format:      i.Format,
	}
}

// ImageBarrier carries the synchronization scopes of a layout
// transition.
type ImageBarrier struct {
	SrcStageMask  vk.PipelineStageFlags
	DstStageMask  vk.PipelineStageFlags
	SrcAccessMask vk.AccessFlags
	DstAccessMask vk.AccessFlags
	NewLayout     vk.ImageLayout
}

// layoutScopes maps a layout to the access and stage masks used when
// transitioning from or to it with derived barriers.
func layoutScopes(layout vk.ImageLayout) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch layout {
	case vk.ImageLayoutTransferDstOptimal:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case vk.ImageLayoutTransferSrcOptimal:
		return vk.AccessFlags(vk.AccessTransferReadBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case vk.ImageLayoutShaderReadOnlyOptimal:
		return vk.AccessFlags(vk.AccessShaderReadBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	case vk.ImageLayoutColorAttachmentOptimal:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case vk.ImageLayoutDepthStencilAttachmentOptimal:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	case vk.ImageLayoutPresentSrc:
		return 0, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	default:
		// Undefined and anything unrecognized: no prior access.
		return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
}

// Transition records a pipeline barrier moving the whole image to
// barrier.NewLayout and stamps the tracked layout. This is the only
// sanctioned way to change an Image's layout.
func (i *Image) Transition(cmd *CommandBuffer, barrier ImageBarrier) {
	b := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           i.Layout,
		NewLayout:           barrier.NewLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		SrcAccessMask:       barrier.SrcAccessMask,
		DstAccessMask:       barrier.DstAccessMask,
		Image:               i.VKImage,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: i.Aspect,
			LevelCount: i.MipLevels,
			LayerCount: i.Layers,
		},
	}

	vk.CmdPipelineBarrier(cmd.VK(), barrier.SrcStageMask, barrier.DstStageMask, 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{b})

	i.Layout = barrier.NewLayout
}

// TransitionTo is Transition with the synchronization scopes derived
// from the current and the new layout.
func (i *Image) TransitionTo(cmd *CommandBuffer, newLayout vk.ImageLayout) {
	srcAccess, srcStage := layoutScopes(i.Layout)
	if i.Layout == vk.ImageLayoutUndefined {
		srcAccess = 0
	}
	dstAccess, dstStage := layoutScopes(newLayout)

	i.Transition(cmd, ImageBarrier{
		SrcStageMask:  srcStage,
		DstStageMask:  dstStage,
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
		NewLayout:     newLayout,
	})
}

// texelSize returns the byte size of one texel for the uncompressed
// formats Upload accepts.
func texelSize(format vk.Format) (uint64, error) {
	switch format {
	case vk.FormatR8Unorm, vk.FormatR8Snorm, vk.FormatR8Uint, vk.FormatR8Sint:
		return 1, nil
	case vk.FormatR8g8Unorm, vk.FormatR16Sfloat, vk.FormatR16Uint, vk.FormatD16Unorm:
		return 2, nil
	case vk.FormatR8g8b8a8Unorm, vk.FormatR8g8b8a8Srgb,
		vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb,
		vk.FormatR16g16Sfloat, vk.FormatR32Sfloat, vk.FormatR32Uint, vk.FormatD32Sfloat:
		return 4, nil
	case vk.FormatR16g16b16a16Sfloat:
		return 8, nil
	case vk.FormatR32g32b32a32Sfloat:
		return 16, nil
	}
	return 0, fmt.Errorf("no known texel size for format %d", format)
}

// Upload stages the given layer data into the image, one byte slice per
// array layer, each holding extent.Width*extent.Height texels at the
// format's texel size. Compressed formats cannot be uploaded this way.
// If the image is mip mapped the remaining levels are generated by
// blitting. The call submits and waits; on return the image is in
// shader-read layout (or its previous layout if it had one).
func (i *Image) Upload(layers [][]byte) error {
	if i.transfer == nil {
		return fmt.Errorf("image has no transfer context")
	}
	if uint32(len(layers)) != i.Layers {
		return fmt.Errorf("expected %d layers, got %d", i.Layers, len(layers))
	}

	texel, err := texelSize(i.Format)
	if err != nil {
		return err
	}
	layerSize := uint64(i.Extent.Width) * uint64(i.Extent.Height) * texel
	for idx, layer := range layers {
		if uint64(len(layer)) != layerSize {
			return fmt.Errorf("layer %d is %d bytes, want %d for %dx%d", idx, len(layer), layerSize, i.Extent.Width, i.Extent.Height)
		}
	}

	finalLayout := vk.ImageLayoutShaderReadOnlyOptimal
	if i.Layout != vk.ImageLayoutUndefined {
		finalLayout = i.Layout
	}

	staging, err := i.transfer.CreateBuffer(vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), BufferTypeHost, layerSize*uint64(len(layers)))
	if err != nil {
		return fmt.Errorf("unable to create staging buffer: %w", err)
	}
	defer staging.Destroy()

	mapped := staging.Mapped()
	for idx, layer := range layers {
		copy(mapped[uint64(idx)*layerSize:], layer)
	}

	return i.transfer.OneShot(func(cmd *CommandBuffer) error {
		i.TransitionTo(cmd, vk.ImageLayoutTransferDstOptimal)

		regions := make([]vk.BufferImageCopy, len(layers))
		for idx := range layers {
			regions[idx] = vk.BufferImageCopy{
				BufferOffset: vk.DeviceSize(uint64(idx) * layerSize),
				ImageSubresource: vk.ImageSubresourceLayers{
					AspectMask:     i.Aspect,
					MipLevel:       0,
					BaseArrayLayer: uint32(idx),
					LayerCount:     1,
				},
				ImageExtent: vk.Extent3D{Width: i.Extent.Width, Height: i.Extent.Height, Depth: 1},
			}
		}
		vk.CmdCopyBufferToImage(cmd.VK(), staging.VKBuffer, i.VKImage, vk.ImageLayoutTransferDstOptimal, uint32(len(regions)), regions)

		if i.MipLevels > 1 {
			i.generateMips(cmd, finalLayout)
		} else {
			i.TransitionTo(cmd, finalLayout)
		}
		return nil
	})
}

// generateMips fills levels 1..MipLevels-1 by blitting each level from
// the previous one, halving the extent with a floor of one texel, then
// leaves every level in finalLayout. The whole image must be in
// transfer-dst layout on entry.
func (i *Image) generateMips(cmd *CommandBuffer, finalLayout vk.ImageLayout) {
	dstAccess, dstStage := layoutScopes(finalLayout)

	levelBarrier := func(level uint32, srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlags, old, new vk.ImageLayout) {
		b := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			OldLayout:           old,
			NewLayout:           new,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			Image:               i.VKImage,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:   i.Aspect,
				BaseMipLevel: level,
				LevelCount:   1,
				LayerCount:   i.Layers,
			},
		}
		vk.CmdPipelineBarrier(cmd.VK(), srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{b})
	}

	transferRead := vk.AccessFlags(vk.AccessTransferReadBit)
	transferWrite := vk.AccessFlags(vk.AccessTransferWriteBit)
	transferStage := vk.PipelineStageFlags(vk.PipelineStageTransferBit)

	srcExtent := i.Extent
	var level uint32
	for level = 1; level < i.MipLevels; level++ {
		dstExtent := halfExtent(srcExtent)

		levelBarrier(level-1, transferWrite, transferRead, transferStage, transferStage,
			vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal)

		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask: i.Aspect,
				MipLevel:   level - 1,
				LayerCount: i.Layers,
			},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask: i.Aspect,
				MipLevel:   level,
				LayerCount: i.Layers,
			},
		}
		blit.SrcOffsets[1] = vk.Offset3D{X: int32(srcExtent.Width), Y: int32(srcExtent.Height), Z: 1}
		blit.DstOffsets[1] = vk.Offset3D{X: int32(dstExtent.Width), Y: int32(dstExtent.Height), Z: 1}

		vk.CmdBlitImage(cmd.VK(),
			i.VKImage, vk.ImageLayoutTransferSrcOptimal,
			i.VKImage, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageBlit{blit}, vk.FilterLinear)

		levelBarrier(level-1, transferRead, dstAccess, transferStage, dstStage,
			vk.ImageLayoutTransferSrcOptimal, finalLayout)

		srcExtent = dstExtent
	}

	levelBarrier(i.MipLevels-1, transferWrite, dstAccess, transferStage, dstStage,
		vk.ImageLayoutTransferDstOptimal, finalLayout)

	i.Layout = finalLayout
}

func (i *Image) Destroy() {
	i.release()
}
