package vkr

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// Queue wraps a device queue. Submit and Present serialize access with
// an internal mutex so that uploads running off the frame loop do not
// race frame submission.
type Queue struct {
	Device      *Device
	QueueFamily *QueueFamily
	VKQueue     vk.Queue

	mu sync.Mutex
}

func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return vk.Error(vk.QueueWaitIdle(q.VKQueue))
}

// Submit hands the given submit infos to the queue, signaling fence
// when the work completes. fence may be nil.
func (q *Queue) Submit(fence *Fence, submits ...vk.SubmitInfo) error {
	var vkFence vk.Fence
	if fence != nil {
		vkFence = fence.VKFence
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return vk.Error(vk.QueueSubmit(q.VKQueue, uint32(len(submits)), submits, vkFence))
}

// SubmitWithFence submits the command buffers with no semaphores,
// signaling fence on completion.
func (q *Queue) SubmitWithFence(fence *Fence, buffers ...*CommandBuffer) error {
	var submitInfo = vk.SubmitInfo{}
	submitInfo.SType = vk.StructureTypeSubmitInfo
	submitInfo.CommandBufferCount = uint32(len(buffers))

	b := make([]vk.CommandBuffer, len(buffers))
	for i := range buffers {
		b[i] = buffers[i].VKCommandBuffer
	}

	submitInfo.PCommandBuffers = b

	return q.Submit(fence, submitInfo)
}

// SubmitAndWait submits the command buffers and blocks until the work
// finishes or the fence wait deadline passes.
func (q *Queue) SubmitAndWait(buffers ...*CommandBuffer) error {
	fence, err := q.Device.CreateFence()
	if err != nil {
		return err
	}
	defer fence.Destroy()

	err = q.SubmitWithFence(fence, buffers...)
	if err != nil {
		return err
	}

	err = q.Device.WaitForFences(true, DefaultFenceTimeout, fence)
	if err != nil {
		return fmt.Errorf("timed out waiting for submitted work: %w", err)
	}
	return nil
}

// Present queues the held swapchain image for presentation. The raw
// result is returned so callers can distinguish out-of-date and
// suboptimal from real errors.
func (q *Queue) Present(presentInfo *vk.PresentInfo) vk.Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	return vk.QueuePresent(q.VKQueue, presentInfo)
}

func (q *Queue) String() string {
	return fmt.Sprintf("{Device: %s QueueFamily: %s}", q.Device.String(), q.QueueFamily.String())
}
