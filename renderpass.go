package vkr

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// RenderPass owns one offscreen framebuffer per frame slot: a color
// attachment, a single sampled resolve target when multisampling, and
// an optional depth attachment. Attachment images are lazily created
// and resized to whatever extent BeginRender is given, so slots track
// the window independently.
//
// Between EndRender and the next BeginRender of the same slot the
// slot's target is in shader-read layout and can be sampled or blitted
// from.
type RenderPass struct {
	device     *RenderDevice
	Samples    vk.SampleCountFlagBits
	ClearColor [4]float32

	colorFormat vk.Format
	depthFormat vk.Format
	storeDepth  bool

	vkPass vk.RenderPass

	colorImages   Buffered[*Image]
	resolveImages Buffered[*Image]
	depthImages   Buffered[*Image]
	framebuffers  Buffered[vk.Framebuffer]
	fbExtents     Buffered[vk.Extent2D]

	recording *CommandBuffer
	slot      int
}

// CreateRenderPass creates an offscreen render pass with the given
// sample count. Call SetColorTarget (and optionally SetDepthTarget)
// before the first BeginRender.
func (r *RenderDevice) CreateRenderPass(samples vk.SampleCountFlagBits) *RenderPass {
	if samples == 0 {
		samples = vk.SampleCount1Bit
	}
	return &RenderPass{
		device:     r,
		Samples:    samples,
		ClearColor: [4]float32{0, 0, 0, 1},
	}
}

// SetColorTarget enables the color attachment. A zero format selects
// R8G8B8A8 unorm.
func (p *RenderPass) SetColorTarget(format vk.Format) *RenderPass {
	if format == vk.FormatUndefined {
		format = vk.FormatR8g8b8a8Unorm
	}
	p.colorFormat = format
	return p
}

// SetDepthTarget enables a D32 depth attachment. When store is true the
// depth image is kept in shader-read layout after EndRender so later
// passes can sample it; otherwise its contents are discarded.
func (p *RenderPass) SetDepthTarget(store bool) *RenderPass {
	p.depthFormat = vk.FormatD32Sfloat
	p.storeDepth = store
	return p
}

func (p *RenderPass) multisampled() bool {
	return p.Samples != vk.SampleCount1Bit
}

// VKRenderPass returns the native render pass for pipeline creation,
// building it on first use.
func (p *RenderPass) VKRenderPass() (vk.RenderPass, error) {
	if p.vkPass != vk.NullRenderPass {
		return p.vkPass, nil
	}
	if p.colorFormat == vk.FormatUndefined {
		return vk.NullRenderPass, fmt.Errorf("render pass has no color target")
	}

	colorStore := vk.AttachmentStoreOpStore
	if p.multisampled() {
		// Only the resolved image survives the pass.
		colorStore = vk.AttachmentStoreOpDontCare
	}

	attachments := []vk.AttachmentDescription{{
		Format:         p.colorFormat,
		Samples:        p.Samples,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        colorStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}

	colorRef := vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorRef},
	}

	if p.multisampled() {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         p.colorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		resolveRef := vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
		subpass.PResolveAttachments = []vk.AttachmentReference{resolveRef}
	}

	if p.depthFormat != vk.FormatUndefined {
		depthStore := vk.AttachmentStoreOpDontCare
		if p.storeDepth {
			depthStore = vk.AttachmentStoreOpStore
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         p.depthFormat,
			Samples:        p.Samples,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        depthStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		depthRef := vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		subpass.PDepthStencilAttachment = &depthRef
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pass vk.RenderPass
	err := vk.Error(vk.CreateRenderPass(p.device.Device.VKDevice, &createInfo, nil, &pass))
	if err != nil {
		return vk.NullRenderPass, fmt.Errorf("unable to create render pass: %w", err)
	}
	p.vkPass = pass
	return pass, nil
}

func (p *RenderPass) ensureSlotImages(slot int, extent vk.Extent2D) error {
	transfer := p.device.Transfer

	ensure := func(imgp **Image, info ImageCreateInfo) error {
		if *imgp == nil {
			img, err := transfer.CreateImage(info)
			if err != nil {
				return err
			}
			*imgp = img
			return nil
		}
		return (*imgp).Resize(extent)
	}

	err := ensure(&p.colorImages[slot], ImageCreateInfo{
		Extent:  extent,
		Format:  p.colorFormat,
		Usage:   vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		Samples: p.Samples,
	})
	if err != nil {
		return fmt.Errorf("unable to create color attachment: %w", err)
	}

	if p.multisampled() {
		err = ensure(&p.resolveImages[slot], ImageCreateInfo{
			Extent: extent,
			Format: p.colorFormat,
			Usage:  vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		})
		if err != nil {
			return fmt.Errorf("unable to create resolve attachment: %w", err)
		}
	}

	if p.depthFormat != vk.FormatUndefined {
		err = ensure(&p.depthImages[slot], ImageCreateInfo{
			Extent:  extent,
			Format:  p.depthFormat,
			Usage:   vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
			Aspect:  vk.ImageAspectFlags(vk.ImageAspectDepthBit),
			Samples: p.Samples,
		})
		if err != nil {
			return fmt.Errorf("unable to create depth attachment: %w", err)
		}
	}

	return nil
}

func (p *RenderPass) ensureFramebuffer(slot int, extent vk.Extent2D) error {
	if p.framebuffers[slot] != vk.NullFramebuffer &&
		p.fbExtents[slot].Width == extent.Width && p.fbExtents[slot].Height == extent.Height {
		return nil
	}

	if p.framebuffers[slot] != vk.NullFramebuffer {
		vk.DestroyFramebuffer(p.device.Device.VKDevice, p.framebuffers[slot], nil)
		p.framebuffers[slot] = vk.NullFramebuffer
	}

	attachments := []vk.ImageView{p.colorImages[slot].VKImageView}
	if p.multisampled() {
		attachments = append(attachments, p.resolveImages[slot].VKImageView)
	}
	if p.depthFormat != vk.FormatUndefined {
		attachments = append(attachments, p.depthImages[slot].VKImageView)
	}

	fbCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      p.vkPass,
		Layers:          1,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
	}

	err := vk.Error(vk.CreateFramebuffer(p.device.Device.VKDevice, &fbCreateInfo, nil, &p.framebuffers[slot]))
	if err != nil {
		return fmt.Errorf("unable to create framebuffer: %w", err)
	}
	p.fbExtents[slot] = extent

	return nil
}

// BeginRender moves the current slot's attachments into attachment
// layouts, sizing them to the given extent first, and begins the pass
// with a clear. Viewport and scissor are left to the caller (see
// CommandBuffer.CmdSetViewportAndScissor).
func (p *RenderPass) BeginRender(cmd *CommandBuffer, extent vk.Extent2D) error {
	if extent.Width == 0 || extent.Height == 0 {
		return fmt.Errorf("cannot render at zero extent %dx%d", extent.Width, extent.Height)
	}
	if p.recording != nil {
		return fmt.Errorf("render pass already recording")
	}

	_, err := p.VKRenderPass()
	if err != nil {
		return err
	}

	slot := p.device.FrameIndex()
	err = p.ensureSlotImages(slot, extent)
	if err != nil {
		return err
	}
	err = p.ensureFramebuffer(slot, extent)
	if err != nil {
		return err
	}

	p.colorImages[slot].TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
	if p.multisampled() {
		p.resolveImages[slot].TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
	}
	if p.depthFormat != vk.FormatUndefined {
		p.depthImages[slot].TransitionTo(cmd, vk.ImageLayoutDepthStencilAttachmentOptimal)
	}

	clearValues := make([]vk.ClearValue, 0, 3)
	clearValues = append(clearValues, vk.NewClearValue(p.ClearColor[:]))
	if p.multisampled() {
		clearValues = append(clearValues, vk.NewClearValue(p.ClearColor[:]))
	}
	if p.depthFormat != vk.FormatUndefined {
		clearValues = append(clearValues, vk.NewClearDepthStencil(1, 0))
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      p.vkPass,
		Framebuffer:     p.framebuffers[slot],
		RenderArea:      vk.Rect2D{Extent: extent},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}

	vk.CmdBeginRenderPass(cmd.VK(), &beginInfo, vk.SubpassContentsInline)

	p.recording = cmd
	p.slot = slot

	return nil
}

// EndRender ends the pass and moves the slot's target into shader-read
// layout, also visible to transfer reads so RenderDevice can blit it to
// the backbuffer. A stored depth attachment is made sampleable the same
// way.
func (p *RenderPass) EndRender() error {
	if p.recording == nil {
		return fmt.Errorf("render pass is not recording")
	}
	cmd := p.recording
	p.recording = nil

	vk.CmdEndRenderPass(cmd.VK())

	target := p.colorImages[p.slot]
	if p.multisampled() {
		target = p.resolveImages[p.slot]
	}

	target.Transition(cmd, ImageBarrier{
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageTransferBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessTransferReadBit),
		NewLayout:     vk.ImageLayoutShaderReadOnlyOptimal,
	})

	if p.depthFormat != vk.FormatUndefined && p.storeDepth {
		p.depthImages[p.slot].Transition(cmd, ImageBarrier{
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			SrcAccessMask: vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
			NewLayout:     vk.ImageLayoutShaderReadOnlyOptimal,
		})
	}

	return nil
}

// Target returns the current slot's presentable image: the resolve
// image when multisampling, the color image otherwise. Nil before the
// slot has rendered at least once. The result can be passed straight to
// RenderDevice.Render.
func (p *RenderPass) Target() *Image {
	slot := p.device.FrameIndex()
	if p.multisampled() {
		return p.resolveImages[slot]
	}
	return p.colorImages[slot]
}

// DepthTarget returns the current slot's depth image for sampling. Nil
// unless the pass stores depth and the slot has rendered.
func (p *RenderPass) DepthTarget() *Image {
	if !p.storeDepth {
		return nil
	}
	return p.depthImages[p.device.FrameIndex()]
}

func (p *RenderPass) Destroy() {
	for i := 0; i < ResourceBuffering; i++ {
		if p.framebuffers[i] != vk.NullFramebuffer {
			vk.DestroyFramebuffer(p.device.Device.VKDevice, p.framebuffers[i], nil)
			p.framebuffers[i] = vk.NullFramebuffer
		}
		for _, img := range []*Image{p.colorImages[i], p.resolveImages[i], p.depthImages[i]} {
			if img != nil {
				img.Destroy()
			}
		}
		p.colorImages[i], p.resolveImages[i], p.depthImages[i] = nil, nil, nil
	}
	if p.vkPass != vk.NullRenderPass {
		vk.DestroyRenderPass(p.device.Device.VKDevice, p.vkPass, nil)
		p.vkPass = vk.NullRenderPass
	}
}
