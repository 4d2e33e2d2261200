package vkr

import (
	"fmt"
	"log"

	units "github.com/docker/go-units"
	vk "github.com/vulkan-go/vulkan"
)

// DefaultSetsPerPool is how many descriptor sets each scratch pool can
// hold before the allocator appends another pool.
const DefaultSetsPerPool = 64

// DescriptorAllocator hands out descriptor sets whose lifetime is a
// single frame slot. Exhausted pools are kept and another is appended;
// Reset rewinds all of them once the slot's fence has signaled, so
// steady state frames allocate nothing.
type DescriptorAllocator struct {
	Device      *Device
	SetsPerPool int

	pools []vk.DescriptorPool
	index int
}

func (d *Device) CreateDescriptorAllocator(setsPerPool int) *DescriptorAllocator {
	if setsPerPool <= 0 {
		setsPerPool = DefaultSetsPerPool
	}
	return &DescriptorAllocator{Device: d, SetsPerPool: setsPerPool}
}

func (a *DescriptorAllocator) createPool() (vk.DescriptorPool, error) {
	count := uint32(a.SetsPerPool)
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: count},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: count},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: count},
	}

	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       count,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	err := vk.Error(vk.CreateDescriptorPool(a.Device.VKDevice, &createInfo, nil, &pool))
	if err != nil {
		return vk.NullDescriptorPool, fmt.Errorf("unable to create scratch descriptor pool: %w", err)
	}
	return pool, nil
}

// Allocate carves descriptor sets out of the current pool, growing the
// pool list when it runs dry. The returned sets are valid until the
// owning frame slot is reset.
func (a *DescriptorAllocator) Allocate(layouts ...*DescriptorSetLayout) ([]*DescriptorSet, error) {
	dsl := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		dsl[i] = l.VKDescriptorSetLayout
	}

	for {
		if a.index >= len(a.pools) {
			pool, err := a.createPool()
			if err != nil {
				return nil, err
			}
			a.pools = append(a.pools, pool)
			log.Printf("scratch: descriptor pool count now %d", len(a.pools))
		}

		allocateInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     a.pools[a.index],
			DescriptorSetCount: uint32(len(dsl)),
			PSetLayouts:        dsl,
		}

		sets := make([]vk.DescriptorSet, len(dsl))
		res := vk.AllocateDescriptorSets(a.Device.VKDevice, &allocateInfo, &sets[0])

		if res == vk.ErrorOutOfPoolMemory || res == vk.ErrorFragmentedPool {
			a.index++
			continue
		}
		if err := vk.Error(res); err != nil {
			return nil, fmt.Errorf("unable to allocate descriptor sets: %w", err)
		}

		ret := make([]*DescriptorSet, len(sets))
		for i, set := range sets {
			ret[i] = &DescriptorSet{Device: a.Device, VKDescriptorSet: set}
		}
		return ret, nil
	}
}

// Reset rewinds every pool. Callers must have waited on the owning
// slot's fence first.
func (a *DescriptorAllocator) Reset() {
	for _, pool := range a.pools {
		vk.ResetDescriptorPool(a.Device.VKDevice, pool, 0)
	}
	a.index = 0
}

func (a *DescriptorAllocator) Destroy() {
	for _, pool := range a.pools {
		vk.DestroyDescriptorPool(a.Device.VKDevice, pool, nil)
	}
	a.pools = nil
	a.index = 0
}

// BufferAllocator hands out host visible buffers whose lifetime is a
// single frame slot, one pool per usage. Buffers are reused in order
// after Reset, growing in place when a request outsizes them.
type BufferAllocator struct {
	transfer *TransferContext
	pools    map[vk.BufferUsageFlagBits]*scratchBufferPool
}

type scratchBufferPool struct {
	buffers []*Buffer
	index   int
}

func (t *TransferContext) CreateBufferAllocator() *BufferAllocator {
	return &BufferAllocator{
		transfer: t,
		pools:    make(map[vk.BufferUsageFlagBits]*scratchBufferPool),
	}
}

// Allocate returns a host buffer of at least size bytes with the given
// usage, valid until the owning frame slot is reset.
func (a *BufferAllocator) Allocate(usage vk.BufferUsageFlagBits, size uint64) (*Buffer, error) {
	pool := a.pools[usage]
	if pool == nil {
		pool = &scratchBufferPool{}
		a.pools[usage] = pool
	}

	if pool.index < len(pool.buffers) {
		buffer := pool.buffers[pool.index]
		pool.index++
		err := buffer.Resize(size)
		if err != nil {
			return nil, err
		}
		return buffer, nil
	}

	buffer, err := a.transfer.CreateBuffer(vk.BufferUsageFlags(usage), BufferTypeHost, size)
	if err != nil {
		return nil, err
	}

	pool.buffers = append(pool.buffers, buffer)
	pool.index++
	log.Printf("scratch: buffer pool for usage 0x%x now %d buffers (+%s)",
		usage, len(pool.buffers), units.BytesSize(float64(size)))

	return buffer, nil
}

// Reset rewinds every pool. Callers must have waited on the owning
// slot's fence first.
func (a *BufferAllocator) Reset() {
	for _, pool := range a.pools {
		pool.index = 0
	}
}

func (a *BufferAllocator) Destroy() {
	for _, pool := range a.pools {
		for _, buffer := range pool.buffers {
			buffer.Destroy()
		}
	}
	a.pools = make(map[vk.BufferUsageFlagBits]*scratchBufferPool)
}
