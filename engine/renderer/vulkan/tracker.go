package vulkan

import (
	"sync"

	"github.com/spaghettifunk/forwardplus/engine/core"
)

// Generation identifies one build of the swapchain-dependent resources.
type Generation uint64

type trackedResource struct {
	name    string
	destroy func()
}

// ResourceTracker records GPU objects per swapchain generation so a whole
// generation can be released in reverse creation order once the device is
// idle.
type ResourceTracker struct {
	mu   sync.Mutex
	next Generation
	live map[Generation][]trackedResource
}

func NewResourceTracker() *ResourceTracker {
	return &ResourceTracker{
		next: 1,
		live: make(map[Generation][]trackedResource),
	}
}

// NextGeneration opens a new generation.
func (t *ResourceTracker) NextGeneration() Generation {
	t.mu.Lock()
	defer t.mu.Unlock()

	gen := t.next
	t.next++
	t.live[gen] = nil
	return gen
}

// Track registers destroy under gen. A nil destroy is ignored.
func (t *ResourceTracker) Track(gen Generation, name string, destroy func()) {
	if destroy == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.live[gen] = append(t.live[gen], trackedResource{name: name, destroy: destroy})
}

// ReleaseGeneration destroys everything tracked under gen, newest first.
// The caller must have idled the device.
func (t *ResourceTracker) ReleaseGeneration(gen Generation) int {
	t.mu.Lock()
	list := t.live[gen]
	delete(t.live, gen)
	t.mu.Unlock()

	for i := len(list) - 1; i >= 0; i-- {
		core.LogDebug("releasing %s (generation %d)", list[i].name, gen)
		list[i].destroy()
	}
	return len(list)
}

// Live reports how many resources are still tracked across all generations.
func (t *ResourceTracker) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, list := range t.live {
		n += len(list)
	}
	return n
}

// Generations lists the generations that still hold resources or were opened
// and not yet released.
func (t *ResourceTracker) Generations() []Generation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Generation, 0, len(t.live))
	for g := range t.live {
		out = append(out, g)
	}
	return out
}
