package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// Allocation is a dedicated device memory block bound to one buffer or image.
type Allocation struct {
	Memory     vk.DeviceMemory
	Size       vk.DeviceSize
	Properties vk.MemoryPropertyFlags
}

// BufferInfo describes a buffer and the memory backing it. More than one
// distinct queue family selects concurrent sharing.
type BufferInfo struct {
	Size          vk.DeviceSize
	Usage         vk.BufferUsageFlags
	Properties    vk.MemoryPropertyFlags
	QueueFamilies []uint32
}

// Allocator creates buffers and images together with their memory.
type Allocator interface {
	CreateBuffer(info BufferInfo) (vk.Buffer, *Allocation, error)
	DestroyBuffer(buffer vk.Buffer, alloc *Allocation)
	CreateImage(info *vk.ImageCreateInfo, props vk.MemoryPropertyFlags) (vk.Image, *Allocation, error)
	DestroyImage(image vk.Image, alloc *Allocation)
	// Upload and Download require host visible memory.
	Upload(alloc *Allocation, offset vk.DeviceSize, data []byte) error
	Download(alloc *Allocation, offset vk.DeviceSize, out []byte) error
}

const (
	hostVisible   = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	deviceLocal   = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	transferSrc   = vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	transferDst   = vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	uniformBuffer = vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	storageBuffer = vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	vertexBuffer  = vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	indexBuffer   = vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
)

// vkAllocator hands out one vkAllocateMemory block per resource.
type vkAllocator struct {
	device vk.Device
	memory vk.PhysicalDeviceMemoryProperties
	locks  *VulkanLockPool
}

func newVkAllocator(device vk.Device, gpu vk.PhysicalDevice, locks *VulkanLockPool) *vkAllocator {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(gpu, &props)
	props.Deref()
	return &vkAllocator{device: device, memory: props, locks: locks}
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// carries all of propertyFlags, or -1.
func (a *vkAllocator) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < a.memory.MemoryTypeCount; i++ {
		a.memory.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (a.memory.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func (a *vkAllocator) allocate(reqs vk.MemoryRequirements, props vk.MemoryPropertyFlags) (*Allocation, error) {
	index := a.FindMemoryIndex(reqs.MemoryTypeBits, props)
	if index < 0 {
		return nil, core.Errorf("no memory type for properties %#x", uint32(props))
	}
	var mem vk.DeviceMemory
	res := vk.AllocateMemory(a.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}, nil, &mem)
	if err := checkResult(res, "vkAllocateMemory"); err != nil {
		return nil, err
	}
	return &Allocation{Memory: mem, Size: reqs.Size, Properties: props}, nil
}

func (a *vkAllocator) CreateBuffer(info BufferInfo) (vk.Buffer, *Allocation, error) {
	ci := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        info.Size,
		Usage:       info.Usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if families := distinctFamilies(info.QueueFamilies); len(families) > 1 {
		ci.SharingMode = vk.SharingModeConcurrent
		ci.QueueFamilyIndexCount = uint32(len(families))
		ci.PQueueFamilyIndices = families
	}

	var buffer vk.Buffer
	if err := checkResult(vk.CreateBuffer(a.device, &ci, nil, &buffer), "vkCreateBuffer"); err != nil {
		return nil, nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(a.device, buffer, &reqs)
	reqs.Deref()

	var alloc *Allocation
	err := a.locks.SafeCall(MemoryManagement, func() error {
		var err error
		alloc, err = a.allocate(reqs, info.Properties)
		return err
	})
	if err != nil {
		vk.DestroyBuffer(a.device, buffer, nil)
		return nil, nil, err
	}
	if err := checkResult(vk.BindBufferMemory(a.device, buffer, alloc.Memory, 0), "vkBindBufferMemory"); err != nil {
		vk.FreeMemory(a.device, alloc.Memory, nil)
		vk.DestroyBuffer(a.device, buffer, nil)
		return nil, nil, err
	}
	return buffer, alloc, nil
}

func (a *vkAllocator) DestroyBuffer(buffer vk.Buffer, alloc *Allocation) {
	if buffer != vk.NullBuffer {
		vk.DestroyBuffer(a.device, buffer, nil)
	}
	if alloc != nil && alloc.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(a.device, alloc.Memory, nil)
	}
}

func (a *vkAllocator) CreateImage(info *vk.ImageCreateInfo, props vk.MemoryPropertyFlags) (vk.Image, *Allocation, error) {
	var image vk.Image
	if err := checkResult(vk.CreateImage(a.device, info, nil, &image), "vkCreateImage"); err != nil {
		return nil, nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(a.device, image, &reqs)
	reqs.Deref()

	var alloc *Allocation
	err := a.locks.SafeCall(MemoryManagement, func() error {
		var err error
		alloc, err = a.allocate(reqs, props)
		return err
	})
	if err != nil {
		vk.DestroyImage(a.device, image, nil)
		return nil, nil, err
	}
	if err := checkResult(vk.BindImageMemory(a.device, image, alloc.Memory, 0), "vkBindImageMemory"); err != nil {
		vk.FreeMemory(a.device, alloc.Memory, nil)
		vk.DestroyImage(a.device, image, nil)
		return nil, nil, err
	}
	return image, alloc, nil
}

func (a *vkAllocator) DestroyImage(image vk.Image, alloc *Allocation) {
	if image != nil {
		vk.DestroyImage(a.device, image, nil)
	}
	if alloc != nil && alloc.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(a.device, alloc.Memory, nil)
	}
}

func (a *vkAllocator) mapped(alloc *Allocation, offset vk.DeviceSize, n int, fn func(dst []byte)) error {
	if alloc == nil || alloc.Properties&hostVisible != hostVisible {
		return core.Errorf("allocation is not host visible")
	}
	if offset+vk.DeviceSize(n) > alloc.Size {
		return core.Errorf("mapped range %d+%d exceeds allocation size %d", offset, n, alloc.Size)
	}
	var ptr unsafe.Pointer
	if err := checkResult(vk.MapMemory(a.device, alloc.Memory, offset, vk.DeviceSize(n), 0, &ptr), "vkMapMemory"); err != nil {
		return err
	}
	defer vk.UnmapMemory(a.device, alloc.Memory)
	fn(unsafe.Slice((*byte)(ptr), n))
	return nil
}

func (a *vkAllocator) Upload(alloc *Allocation, offset vk.DeviceSize, data []byte) error {
	return a.mapped(alloc, offset, len(data), func(dst []byte) { copy(dst, data) })
}

func (a *vkAllocator) Download(alloc *Allocation, offset vk.DeviceSize, out []byte) error {
	return a.mapped(alloc, offset, len(out), func(src []byte) { copy(out, src) })
}

func distinctFamilies(families []uint32) []uint32 {
	out := make([]uint32, 0, len(families))
	for _, f := range families {
		dup := false
		for _, o := range out {
			if o == f {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}
	return out
}
