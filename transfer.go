package vkr

import (
	"fmt"
)

// TransferContext bundles the device, queue and command pool used for
// synchronous resource uploads. Buffers and images created through it
// can stage data to device local memory with a one-shot submit that
// blocks until the copy lands.
type TransferContext struct {
	Device *Device
	Queue  *Queue
	Pool   *CommandPool
}

// CreateTransferContext builds a transfer context with its own
// transient command pool on the queue's family.
func (d *Device) CreateTransferContext(queue *Queue) (*TransferContext, error) {
	pool, err := d.CreateCommandPool(queue.QueueFamily)
	if err != nil {
		return nil, fmt.Errorf("unable to create transfer command pool: %w", err)
	}
	return &TransferContext{Device: d, Queue: queue, Pool: pool}, nil
}

// OneShot records commands into a fresh one-time command buffer,
// submits it and waits for completion. The command buffer is freed
// before returning.
func (t *TransferContext) OneShot(record func(cmd *CommandBuffer) error) error {
	cmd, err := t.Pool.AllocateBuffer()
	if err != nil {
		return err
	}
	defer t.Pool.FreeBuffer(cmd)

	err = cmd.BeginOneTime()
	if err != nil {
		return err
	}

	err = record(cmd)
	if err != nil {
		return err
	}

	err = cmd.End()
	if err != nil {
		return err
	}

	return t.Queue.SubmitAndWait(cmd)
}

func (t *TransferContext) Destroy() {
	t.Pool.Destroy()
}
