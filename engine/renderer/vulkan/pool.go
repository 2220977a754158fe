package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"
)

type LockGroup string

const (
	ResourceManagement      LockGroup = "resource_management"
	CommandBufferManagement LockGroup = "command_buffer_management"
	DescriptorManagement    LockGroup = "descriptor_management"
	PipelineManagement      LockGroup = "pipeline_management"
	MemoryManagement        LockGroup = "memory_management"
	SwapchainManagement     LockGroup = "swapchain_management"
)

// VulkanLockPool serialises access to externally synchronised Vulkan objects.
// Queues get their own mutex since the graphics and compute queues share a
// family but not a handle.
type VulkanLockPool struct {
	mu     sync.Mutex
	locks  map[LockGroup]*sync.Mutex
	queues map[vk.Queue]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks:  make(map[LockGroup]*sync.Mutex),
		queues: make(map[vk.Queue]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) group(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	l, ok := vs.locks[group]
	if !ok {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	return l
}

func (vs *VulkanLockPool) queue(q vk.Queue) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	l, ok := vs.queues[q]
	if !ok {
		l = &sync.Mutex{}
		vs.queues[q] = l
	}
	return l
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.group(group)
	l.Lock()
	defer l.Unlock()

	return fn()
}

// SafeQueueCall runs fn while holding the lock of queue q.
func (vs *VulkanLockPool) SafeQueueCall(q vk.Queue, fn func() vk.Result) vk.Result {
	l := vs.queue(q)
	l.Lock()
	defer l.Unlock()

	return fn()
}
