package vkr

import (
	"fmt"
	"log"

	vk "github.com/vulkan-go/vulkan"
)

// Overlay is drawn straight onto the backbuffer at the end of every
// presented frame, after the offscreen target has been blitted. Dear
// ImGui integrations implement this; see the examples.
type Overlay interface {
	Render(cmd *CommandBuffer, extent vk.Extent2D)
}

// RenderDeviceCreateInfo carries the optional knobs for
// CreateRenderDevice. The zero value works.
type RenderDeviceCreateInfo struct {
	Name    string
	Version Version

	// EnableValidation turns on the Khronos validation layer and
	// routes its reports through the standard logger.
	EnableValidation bool

	// PresentMode is used when the surface supports it; FIFO
	// otherwise.
	PresentMode vk.PresentMode

	// GpuSelector picks among viable adapters. Nil uses
	// DefaultGpuSelector.
	GpuSelector GpuSelector
}

type frameSlot struct {
	cmd           *CommandBuffer
	drawSemaphore vk.Semaphore
	drawn         *Fence
	descriptors   *DescriptorAllocator
	buffers       *BufferAllocator
}

// RenderDevice owns the device, queue, swapchain and per-slot frame
// state and drives the frame loop: NextFrame begins a frame on the next
// slot, Render submits it and presents.
//
// Frames cycle through ResourceBuffering slots. Each slot has its own
// command buffer, scratch allocators and a fence guarding reuse, so the
// CPU records frame N while the GPU still draws frame N-1.
type RenderDevice struct {
	Window    WindowSystem
	Instance  *Instance
	Surface   vk.Surface
	Gpu       *Gpu
	Device    *Device
	Queue     *Queue
	Swapchain *Swapchain

	// Transfer is the upload context resource constructors hang off
	// of (CreateBuffer, CreateImage, CreateTexture).
	Transfer *TransferContext

	PipelineCache *PipelineCache

	commandPool *CommandPool
	slots       Buffered[frameSlot]

	frameIndex   int
	frameStarted bool

	overlay Overlay

	// Present mode requested by SetPresentMode, applied at the next
	// swapchain recreation.
	pendingPresentMode *vk.PresentMode

	// Two compatible backbuffer passes: one clears, the other loads
	// what the blit put there. Framebuffers are shared.
	backbufferPassClear    vk.RenderPass
	backbufferPassLoad     vk.RenderPass
	backbufferFramebuffers []vk.Framebuffer
}

// CreateRenderDevice brings up the whole stack against the given
// window: instance, surface, GPU selection, logical device, swapchain
// and per-slot frame state.
func CreateRenderDevice(window WindowSystem, info *RenderDeviceCreateInfo) (*RenderDevice, error) {
	if info == nil {
		info = &RenderDeviceCreateInfo{}
	}
	name := info.Name
	if name == "" {
		name = "vkr"
	}

	app := &App{Name: name, Version: info.Version, APIVersion: MinimumAPIVersion}
	for _, ext := range window.RequiredInstanceExtensions() {
		app.EnableExtension(ext)
	}
	if info.EnableValidation {
		app.EnableValidation()
	}

	instance, err := app.CreateInstance()
	if err != nil {
		return nil, fmt.Errorf("unable to create instance: %w", err)
	}
	if info.EnableValidation {
		instance.UseDefaultDebugCallback()
	}

	r := &RenderDevice{Window: window, Instance: instance}

	r.Surface, err = window.CreateSurface(instance.VKInstance)
	if err != nil {
		r.Destroy()
		return nil, err
	}

	r.Gpu, err = instance.SelectGpu(r.Surface, info.GpuSelector)
	if err != nil {
		r.Destroy()
		return nil, err
	}
	log.Printf("renderdevice: using GPU '%s'", r.Gpu.Name)

	r.Device, r.Queue, err = r.Gpu.CreateGpuDevice()
	if err != nil {
		r.Destroy()
		return nil, err
	}

	r.Swapchain, err = r.Device.CreateSwapchain(r.Surface, &CreateSwapchainOptions{PresentMode: info.PresentMode})
	if err != nil {
		r.Destroy()
		return nil, err
	}

	r.Transfer, err = r.Device.CreateTransferContext(r.Queue)
	if err != nil {
		r.Destroy()
		return nil, err
	}

	r.PipelineCache, err = r.Device.CreatePipelineCache()
	if err != nil {
		r.Destroy()
		return nil, err
	}

	r.commandPool, err = r.Device.CreateCommandPool(r.Queue.QueueFamily)
	if err != nil {
		r.Destroy()
		return nil, err
	}

	for i := 0; i < ResourceBuffering; i++ {
		slot := &r.slots[i]

		slot.cmd, err = r.commandPool.AllocateBuffer()
		if err != nil {
			r.Destroy()
			return nil, err
		}
		slot.drawSemaphore, err = r.Device.VKCreateSemaphore()
		if err != nil {
			r.Destroy()
			return nil, err
		}
		slot.drawn, err = r.Device.CreateSignaledFence()
		if err != nil {
			r.Destroy()
			return nil, err
		}
		slot.descriptors = r.Device.CreateDescriptorAllocator(0)
		slot.buffers = r.Transfer.CreateBufferAllocator()
	}

	err = r.createBackbufferPasses()
	if err != nil {
		r.Destroy()
		return nil, err
	}

	err = r.recreateSwapchain(window.FramebufferExtent(), nil)
	if err != nil {
		r.Destroy()
		return nil, err
	}

	return r, nil
}

func (r *RenderDevice) createBackbufferPass(loadOp vk.AttachmentLoadOp, initialLayout vk.ImageLayout) (vk.RenderPass, error) {
	attachment := vk.AttachmentDescription{
		Format:         r.Swapchain.Format.Format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  initialLayout,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}

	colorRef := vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorRef},
	}

	// The backbuffer may have been written by the blit just before
	// this pass.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit | vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{attachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pass vk.RenderPass
	err := vk.Error(vk.CreateRenderPass(r.Device.VKDevice, &createInfo, nil, &pass))
	if err != nil {
		return vk.NullRenderPass, fmt.Errorf("unable to create backbuffer pass: %w", err)
	}
	return pass, nil
}

func (r *RenderDevice) createBackbufferPasses() error {
	var err error
	r.backbufferPassClear, err = r.createBackbufferPass(vk.AttachmentLoadOpClear, vk.ImageLayoutUndefined)
	if err != nil {
		return err
	}
	r.backbufferPassLoad, err = r.createBackbufferPass(vk.AttachmentLoadOpLoad, vk.ImageLayoutTransferDstOptimal)
	return err
}

func (r *RenderDevice) destroyBackbufferFramebuffers() {
	for _, fb := range r.backbufferFramebuffers {
		vk.DestroyFramebuffer(r.Device.VKDevice, fb, nil)
	}
	r.backbufferFramebuffers = nil
}

// recreateSwapchain rebuilds the swapchain at the given size along with
// the backbuffer framebuffers, which hold views into the old images.
func (r *RenderDevice) recreateSwapchain(extent vk.Extent2D, options *CreateSwapchainOptions) error {
	r.destroyBackbufferFramebuffers()

	err := r.Swapchain.Recreate(extent, options)
	if err != nil {
		return err
	}

	r.backbufferFramebuffers = make([]vk.Framebuffer, len(r.Swapchain.Images))
	for i, view := range r.Swapchain.ImageViews {
		fbCreateInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      r.backbufferPassClear,
			Layers:          1,
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{view},
			Width:           r.Swapchain.Extent.Width,
			Height:          r.Swapchain.Extent.Height,
		}
		err = vk.Error(vk.CreateFramebuffer(r.Device.VKDevice, &fbCreateInfo, nil, &r.backbufferFramebuffers[i]))
		if err != nil {
			return fmt.Errorf("unable to create backbuffer framebuffer: %w", err)
		}
	}

	return nil
}

// SetOverlay installs the overlay drawn onto the backbuffer each frame.
// Pass nil to remove it.
func (r *RenderDevice) SetOverlay(overlay Overlay) {
	r.overlay = overlay
}

// SetPresentMode requests a present mode switch, for example between
// FIFO and mailbox to toggle vsync behavior. The swapchain is rebuilt
// with the new mode on the next Render; a mode the surface does not
// support falls back to FIFO.
func (r *RenderDevice) SetPresentMode(mode vk.PresentMode) {
	if mode == r.Swapchain.PresentMode && r.pendingPresentMode == nil {
		return
	}
	r.pendingPresentMode = &mode
}

// FrameIndex returns the current frame slot, in [0, ResourceBuffering).
func (r *RenderDevice) FrameIndex() int {
	return r.frameIndex
}

// CommandBuffer returns the current slot's command buffer. Valid
// between NextFrame and Render.
func (r *RenderDevice) CommandBuffer() *CommandBuffer {
	return r.slots.Get(r.frameIndex).cmd
}

// AllocateSets allocates descriptor sets that live until this frame
// slot comes around again.
func (r *RenderDevice) AllocateSets(layouts ...*DescriptorSetLayout) ([]*DescriptorSet, error) {
	return r.slots.Get(r.frameIndex).descriptors.Allocate(layouts...)
}

// ScratchBuffer returns a host visible buffer that lives until this
// frame slot comes around again.
func (r *RenderDevice) ScratchBuffer(usage vk.BufferUsageFlagBits, size uint64) (*Buffer, error) {
	return r.slots.Get(r.frameIndex).buffers.Allocate(usage, size)
}

// ScratchDescriptorBuffer allocates a scratch buffer for this frame
// slot, fills it with data and returns descriptor info addressing it.
// The usual way to feed per frame uniform data to a descriptor set:
// each frame in flight writes its own copy.
func (r *RenderDevice) ScratchDescriptorBuffer(usage vk.BufferUsageFlagBits, data []byte) (vk.DescriptorBufferInfo, error) {
	buffer, err := r.ScratchBuffer(usage, uint64(len(data)))
	if err != nil {
		return vk.DescriptorBufferInfo{}, err
	}
	copy(buffer.Mapped(), data)
	return buffer.DescriptorInfo(0), nil
}

// CreatePipelines builds pipelines against an offscreen render pass
// using the device pipeline cache.
func (r *RenderDevice) CreatePipelines(pass *RenderPass, configs ...IGraphicsPipelineConfig) ([]vk.Pipeline, error) {
	vkPass, err := pass.VKRenderPass()
	if err != nil {
		return nil, err
	}
	return r.Device.CreateGraphicsPipelines(r.PipelineCache, vkPass, r.Swapchain.Extent, configs...)
}

// CreateOverlayPipelines builds pipelines for drawing directly onto the
// backbuffer, as overlays do.
func (r *RenderDevice) CreateOverlayPipelines(configs ...IGraphicsPipelineConfig) ([]vk.Pipeline, error) {
	return r.Device.CreateGraphicsPipelines(r.PipelineCache, r.backbufferPassLoad, r.Swapchain.Extent, configs...)
}

// NextFrame begins the next frame: it pumps window events, waits for
// the slot's previous submission to retire, rewinds the slot's scratch
// allocators and begins the slot's command buffer. A fence wait running
// past DefaultFenceTimeout means the device hung and is returned as an
// error rather than retried.
func (r *RenderDevice) NextFrame() (*CommandBuffer, error) {
	if r.frameStarted {
		return nil, fmt.Errorf("frame already started, call Render first")
	}

	r.Window.PollEvents()

	slot := r.slots.Get(r.frameIndex)

	err := r.Device.WaitForFences(true, DefaultFenceTimeout, slot.drawn)
	if err != nil {
		return nil, fmt.Errorf("frame slot %d fence wait failed, device lost or hung: %w", r.frameIndex, err)
	}

	slot.descriptors.Reset()
	slot.buffers.Reset()

	err = slot.cmd.Reset()
	if err != nil {
		return nil, err
	}
	err = slot.cmd.Begin()
	if err != nil {
		return nil, err
	}

	r.frameStarted = true

	return slot.cmd, nil
}

func (r *RenderDevice) endFrame() {
	r.frameStarted = false
	r.frameIndex = (r.frameIndex + 1) % ResourceBuffering
}

// Render finishes the frame begun by NextFrame: the target image, if
// any, is blitted onto an acquired backbuffer with the given filter,
// the overlay is drawn on top, and the frame is submitted and
// presented. A nil target presents the cleared (or overlay-only)
// backbuffer.
//
// Frames are dropped without error while the window is minimized or
// while the swapchain is being recreated after a resize.
func (r *RenderDevice) Render(target *Image, filter vk.Filter) error {
	if !r.frameStarted {
		return fmt.Errorf("no frame started, call NextFrame first")
	}
	defer r.endFrame()

	slot := r.slots.Get(r.frameIndex)

	extent := r.Window.FramebufferExtent()
	if extent.Width == 0 || extent.Height == 0 {
		return slot.cmd.End()
	}

	if r.pendingPresentMode != nil ||
		extent.Width != r.Swapchain.Extent.Width || extent.Height != r.Swapchain.Extent.Height {
		var options *CreateSwapchainOptions
		if r.pendingPresentMode != nil {
			options = &CreateSwapchainOptions{PresentMode: *r.pendingPresentMode}
			r.pendingPresentMode = nil
		}
		err := r.recreateSwapchain(extent, options)
		if err != nil {
			return err
		}
	}

	imageIndex, acquired, err := r.Swapchain.AcquireNextImage(slot.drawSemaphore)
	if err != nil {
		return err
	}
	if !acquired {
		err = slot.cmd.End()
		if err != nil {
			return err
		}
		return r.recreateSwapchain(extent, nil)
	}

	backbuffer := r.Swapchain.Images[imageIndex]
	touched := false

	if target != nil {
		target.TransitionTo(slot.cmd, vk.ImageLayoutTransferSrcOptimal)

		r.backbufferBarrier(slot.cmd, backbuffer,
			vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, vk.AccessFlags(vk.AccessTransferWriteBit))

		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
		}
		blit.SrcOffsets[1] = vk.Offset3D{X: int32(target.Extent.Width), Y: int32(target.Extent.Height), Z: 1}
		blit.DstOffsets[1] = vk.Offset3D{X: int32(r.Swapchain.Extent.Width), Y: int32(r.Swapchain.Extent.Height), Z: 1}

		vk.CmdBlitImage(slot.cmd.VK(),
			target.VKImage, vk.ImageLayoutTransferSrcOptimal,
			backbuffer, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageBlit{blit}, filter)

		target.TransitionTo(slot.cmd, vk.ImageLayoutShaderReadOnlyOptimal)

		touched = true
	}

	if r.overlay != nil {
		pass := r.backbufferPassClear
		if touched {
			pass = r.backbufferPassLoad
		}

		beginInfo := vk.RenderPassBeginInfo{
			SType:           vk.StructureTypeRenderPassBeginInfo,
			RenderPass:      pass,
			Framebuffer:     r.backbufferFramebuffers[imageIndex],
			RenderArea:      vk.Rect2D{Extent: r.Swapchain.Extent},
			ClearValueCount: 1,
			PClearValues:    []vk.ClearValue{vk.NewClearValue([]float32{0, 0, 0, 1})},
		}
		vk.CmdBeginRenderPass(slot.cmd.VK(), &beginInfo, vk.SubpassContentsInline)

		r.overlay.Render(slot.cmd, r.Swapchain.Extent)

		vk.CmdEndRenderPass(slot.cmd.VK())
		// The pass left the backbuffer in present layout.
	} else {
		oldLayout := vk.ImageLayoutUndefined
		srcStage := vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		srcAccess := vk.AccessFlags(0)
		if touched {
			oldLayout = vk.ImageLayoutTransferDstOptimal
			srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
			srcAccess = vk.AccessFlags(vk.AccessTransferWriteBit)
		}
		r.backbufferBarrier(slot.cmd, backbuffer,
			oldLayout, vk.ImageLayoutPresentSrc,
			srcStage, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			srcAccess, 0)
	}

	err = slot.cmd.End()
	if err != nil {
		return err
	}

	err = slot.drawn.Reset()
	if err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{slot.drawSemaphore},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageTransferBit | vk.PipelineStageColorAttachmentOutputBit)},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{r.Swapchain.PresentSemaphore()},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{slot.cmd.VKCommandBuffer},
	}

	err = r.Queue.Submit(slot.drawn, submitInfo)
	if err != nil {
		return err
	}

	presented, err := r.Swapchain.Present(r.Queue)
	if err != nil {
		return err
	}
	if !presented {
		return r.recreateSwapchain(r.Window.FramebufferExtent(), nil)
	}

	return nil
}

func (r *RenderDevice) backbufferBarrier(cmd *CommandBuffer, image vk.Image,
	oldLayout, newLayout vk.ImageLayout,
	srcStage, dstStage vk.PipelineStageFlags,
	srcAccess, dstAccess vk.AccessFlags) {

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	vk.CmdPipelineBarrier(cmd.VK(), srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// Destroy waits for the device to go idle and tears everything down.
// Safe to call on a partially constructed device.
func (r *RenderDevice) Destroy() {
	if r.Device != nil {
		r.Device.WaitIdle()
	}

	for i := 0; i < ResourceBuffering; i++ {
		slot := &r.slots[i]
		if slot.descriptors != nil {
			slot.descriptors.Destroy()
		}
		if slot.buffers != nil {
			slot.buffers.Destroy()
		}
		if slot.drawn != nil {
			slot.drawn.Destroy()
		}
		if slot.drawSemaphore != vk.NullSemaphore && r.Device != nil {
			r.Device.VKDestroySemaphore(slot.drawSemaphore)
		}
		*slot = frameSlot{}
	}

	if r.Device != nil {
		r.destroyBackbufferFramebuffers()
		if r.backbufferPassClear != vk.NullRenderPass {
			vk.DestroyRenderPass(r.Device.VKDevice, r.backbufferPassClear, nil)
			r.backbufferPassClear = vk.NullRenderPass
		}
		if r.backbufferPassLoad != vk.NullRenderPass {
			vk.DestroyRenderPass(r.Device.VKDevice, r.backbufferPassLoad, nil)
			r.backbufferPassLoad = vk.NullRenderPass
		}
	}

	if r.PipelineCache != nil {
		r.PipelineCache.Destroy()
		r.PipelineCache = nil
	}
	if r.Transfer != nil {
		r.Transfer.Destroy()
		r.Transfer = nil
	}
	if r.commandPool != nil {
		r.commandPool.Destroy()
		r.commandPool = nil
	}
	if r.Swapchain != nil {
		r.Swapchain.Destroy()
		r.Swapchain = nil
	}
	if r.Surface != vk.NullSurface && r.Instance != nil {
		vk.DestroySurface(r.Instance.VKInstance, r.Surface, nil)
		r.Surface = vk.NullSurface
	}
	if r.Device != nil {
		r.Device.Destroy()
		r.Device = nil
	}
	if r.Instance != nil {
		r.Instance.Destroy()
		r.Instance = nil
	}
}
