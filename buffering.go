package vkr

// ResourceBuffering is the number of virtual frames the renderer cycles
// through. Per-frame resources (command buffers, sync objects, scratch
// allocators, render pass attachments) are allocated once per slot and
// reused when the slot's fence signals.
const ResourceBuffering = 3

// Must stay within [2, 8]; double buffering is the minimum useful value
// and more than 8 frames in flight only adds latency.
const (
	_ = uint(ResourceBuffering - 2)
	_ = uint(8 - ResourceBuffering)
)

// Buffered is a fixed array with one element per virtual frame.
type Buffered[T any] [ResourceBuffering]T

// Get returns the element for the given frame index.
func (b *Buffered[T]) Get(frameIndex int) *T {
	return &b[frameIndex%ResourceBuffering]
}
