package vkr

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// BufferType selects where a buffer's memory lives.
type BufferType int

const (
	// BufferTypeHost allocates host visible, host coherent memory.
	// The buffer stays persistently mapped for its whole lifetime.
	BufferTypeHost BufferType = iota
	// BufferTypeDevice allocates device local memory. Writes go
	// through a staging buffer and a blocking transfer submit.
	BufferTypeDevice
)

func (t BufferType) String() string {
	if t == BufferTypeDevice {
		return "device"
	}
	return "host"
}

// Buffer wraps a vk.Buffer together with its memory. Capacity only ever
// grows: Resize to a smaller size reuses the existing allocation, and
// growth replaces buffer and memory without carrying old contents over.
type Buffer struct {
	Device   *Device
	VKBuffer vk.Buffer
	Memory   *DeviceMemory
	Type     BufferType
	Usage    vk.BufferUsageFlags

	transfer *TransferContext
	size     uint64
	capacity uint64
	mapped   unsafe.Pointer
}

// CreateBuffer creates a buffer of the given residency and usage.
// Device local buffers get transfer-dst usage and host buffers get
// transfer-src usage added implicitly so that staged writes always
// work.
func (t *TransferContext) CreateBuffer(usage vk.BufferUsageFlags, btype BufferType, size uint64) (*Buffer, error) {
	b := &Buffer{
		Device:   t.Device,
		Type:     btype,
		Usage:    usage,
		transfer: t,
	}

	if btype == BufferTypeDevice {
		b.Usage |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	} else {
		b.Usage |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}

	err := b.allocate(size)
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Buffer) memoryProperties() vk.MemoryPropertyFlags {
	if b.Type == BufferTypeDevice {
		return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
}

func (b *Buffer) allocate(size uint64) error {
	// Zero sized buffers are legal to the caller but not to Vulkan.
	capacity := size
	if capacity == 0 {
		capacity = 1
	}

	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(capacity),
		Usage:       b.Usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	err := vk.Error(vk.CreateBuffer(b.Device.VKDevice, &bufferCreateInfo, nil, &buffer))
	if err != nil {
		return fmt.Errorf("unable to create %s buffer: %w", b.Type, err)
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.Device.VKDevice, buffer, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := b.Device.Allocate(int(memoryRequirements.Size), memoryRequirements.MemoryTypeBits, b.memoryProperties())
	if err != nil {
		vk.DestroyBuffer(b.Device.VKDevice, buffer, nil)
		return fmt.Errorf("unable to allocate %s buffer memory: %w", b.Type, err)
	}

	err = vk.Error(vk.BindBufferMemory(b.Device.VKDevice, buffer, memory.VKDeviceMemory, 0))
	if err != nil {
		memory.Destroy()
		vk.DestroyBuffer(b.Device.VKDevice, buffer, nil)
		return err
	}

	b.VKBuffer = buffer
	b.Memory = memory
	b.capacity = capacity
	b.size = size
	b.mapped = nil

	if b.Type == BufferTypeHost {
		ptr, err := memory.Map()
		if err != nil {
			b.release()
			return fmt.Errorf("unable to map host buffer: %w", err)
		}
		b.mapped = ptr
	}

	return nil
}

func (b *Buffer) release() {
	if b.Memory != nil {
		b.Memory.Destroy()
		b.Memory = nil
	}
	if b.VKBuffer != vk.NullBuffer {
		vk.DestroyBuffer(b.Device.VKDevice, b.VKBuffer, nil)
		b.VKBuffer = vk.NullBuffer
	}
	b.mapped = nil
}

// Size returns the current requested size in bytes.
func (b *Buffer) Size() uint64 {
	return b.size
}

// Capacity returns the allocated size in bytes. It never shrinks.
func (b *Buffer) Capacity() uint64 {
	return b.capacity
}

// Resize sets the buffer's size. Shrinks retain the existing
// allocation; growth replaces buffer and memory, so existing contents
// are lost and the native handle changes.
func (b *Buffer) Resize(size uint64) error {
	if size <= b.capacity {
		b.size = size
		return nil
	}

	b.release()
	return b.allocate(size)
}

// Mapped returns the persistently mapped bytes of a host buffer, nil
// for device local buffers.
func (b *Buffer) Mapped() []byte {
	if b.mapped == nil {
		return nil
	}
	return ToBytes(b.mapped, int(b.size))
}

// Write copies data into the buffer at the given offset, growing the
// buffer first if offset+len(data) exceeds the current size. Growth
// discards prior contents, so callers that combine Write calls at
// multiple offsets should size the buffer up front with Resize.
func (b *Buffer) Write(data []byte, offset uint64) error {
	need := offset + uint64(len(data))
	if need > b.size {
		err := b.Resize(need)
		if err != nil {
			return err
		}
	}

	if len(data) == 0 {
		return nil
	}

	if b.Type == BufferTypeHost {
		copy(ToBytes(b.mapped, int(b.size))[offset:], data)
		return nil
	}

	return b.stagedWrite(data, offset)
}

func (b *Buffer) stagedWrite(data []byte, offset uint64) error {
	if b.transfer == nil {
		return fmt.Errorf("device local buffer has no transfer context")
	}

	staging, err := b.transfer.CreateBuffer(vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), BufferTypeHost, uint64(len(data)))
	if err != nil {
		return fmt.Errorf("unable to create staging buffer: %w", err)
	}
	defer staging.Destroy()

	copy(staging.Mapped(), data)

	return b.transfer.OneShot(func(cmd *CommandBuffer) error {
		region := vk.BufferCopy{
			SrcOffset: 0,
			DstOffset: vk.DeviceSize(offset),
			Size:      vk.DeviceSize(len(data)),
		}
		vk.CmdCopyBuffer(cmd.VK(), staging.VKBuffer, b.VKBuffer, 1, []vk.BufferCopy{region})
		return nil
	})
}

// DescriptorInfo returns a descriptor buffer info spanning the current
// size from the given offset.
func (b *Buffer) DescriptorInfo(offset uint64) vk.DescriptorBufferInfo {
	return vk.DescriptorBufferInfo{
		Buffer: b.VKBuffer,
		Offset: vk.DeviceSize(offset),
		Range:  vk.DeviceSize(b.size - offset),
	}
}

func (b *Buffer) Destroy() {
	b.release()
}
