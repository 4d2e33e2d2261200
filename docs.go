/*
Package vkr implements the frame lifecycle and resource management core of
a Vulkan renderer for go. It owns the pieces every Vulkan application ends
up rebuilding - device selection, swapchain care and feeding, per-frame
synchronization and scratch allocation, staged uploads - and leaves the
actual drawing to the application.

The central loop looks like this:

	window, _ := vkr.NewWindow(1280, 720, "demo")
	device, _ := vkr.CreateRenderDevice(window, nil)
	pass := device.CreateRenderPass(vk.SampleCount1Bit).SetColorTarget(0)

	for !window.ShouldClose() {
		cmd, _ := device.NextFrame()
		pass.BeginRender(cmd, window.FramebufferExtent())
		// record draws
		pass.EndRender()
		device.Render(pass.Target(), vk.FilterLinear)
	}

NextFrame begins a frame on the next of ResourceBuffering frame slots,
waiting on that slot's fence so the resources the CPU is about to reuse
are no longer read by the GPU. Render blits the offscreen target onto an
acquired swapchain image, draws the optional overlay, submits and
presents. Window resizes, minimization and out-of-date swapchains are
handled inside Render by dropping the frame and recreating what needs
recreating.

Resources follow the same slot discipline. Buffers and images created
through the TransferContext are long lived and explicitly destroyed;
per-frame descriptor sets and host buffers come from the slot's
DescriptorAllocator and BufferAllocator and are recycled automatically
when the slot comes around again.

As with the native API, the package cannot hide everything. Native
handles are exposed on every wrapper with a 'VK' prefix in the name, so
applications can always drop down to raw Vulkan where the wrappers stop.
*/
package vkr
