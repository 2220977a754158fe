package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// invalidQueueFamily marks a role no family could fill.
const invalidQueueFamily = ^uint32(0)

// QueueFamily is what device selection needs to know about one family.
type QueueFamily struct {
	Flags   vk.QueueFlags
	Count   uint32
	Present bool
}

// QueueFamilies holds the family index chosen for each role. Graphics and
// compute share a family and take queues 0 and 1 of it.
type QueueFamilies struct {
	Graphics uint32
	Present  uint32
	Transfer uint32
}

func (q QueueFamilies) complete() bool {
	return q.Graphics != invalidQueueFamily && q.Present != invalidQueueFamily && q.Transfer != invalidQueueFamily
}

// DeviceFeatures are the optional features of which at least one must be
// present.
type DeviceFeatures struct {
	TessellationShader bool
	LogicOp            bool
	MultiViewport      bool
	SamplerAnisotropy  bool
}

func (f DeviceFeatures) any() bool {
	return f.TessellationShader || f.LogicOp || f.MultiViewport || f.SamplerAnisotropy
}

// DeviceCandidate is a snapshot of one physical device, taken so selection
// can run without a live GPU.
type DeviceCandidate struct {
	Name             string
	Discrete         bool
	Features         DeviceFeatures
	Extensions       []string
	FormatCount      int
	PresentModeCount int
	Families         []QueueFamily
}

var requiredDeviceExtensions = []string{vk.KhrSwapchainExtensionName}

func hasFlags(flags vk.QueueFlags, want vk.QueueFlagBits) bool {
	return flags&vk.QueueFlags(want) == vk.QueueFlags(want)
}

// suitableGraphicsFamily needs graphics and compute and room for two queues.
func suitableGraphicsFamily(f QueueFamily) bool {
	return f.Count >= 2 && hasFlags(f.Flags, vk.QueueGraphicsBit) && hasFlags(f.Flags, vk.QueueComputeBit)
}

// SelectQueueFamilies picks the graphics family first, then the first family
// able to present, then the first transfer family distinct from both.
func SelectQueueFamilies(families []QueueFamily) QueueFamilies {
	out := QueueFamilies{Graphics: invalidQueueFamily, Present: invalidQueueFamily, Transfer: invalidQueueFamily}
	for j, f := range families {
		if suitableGraphicsFamily(f) {
			out.Graphics = uint32(j)
			break
		}
	}
	for j, f := range families {
		if f.Present {
			out.Present = uint32(j)
			break
		}
	}
	for j, f := range families {
		idx := uint32(j)
		if hasFlags(f.Flags, vk.QueueTransferBit) && idx != out.Graphics && idx != out.Present {
			out.Transfer = idx
			break
		}
	}
	return out
}

// EvaluateCandidate reports whether c can host the renderer and which queue
// families it would use.
func EvaluateCandidate(c DeviceCandidate) (QueueFamilies, bool) {
	if !c.Features.any() {
		core.LogInfo("Device '%s' lacks every optional feature, skipping.", c.Name)
		return QueueFamilies{}, false
	}
	for _, req := range requiredDeviceExtensions {
		found := false
		for _, ext := range c.Extensions {
			if ext == req {
				found = true
				break
			}
		}
		if !found {
			core.LogInfo("Required extension not found: '%s', skipping device.", req)
			return QueueFamilies{}, false
		}
	}
	if c.FormatCount < 1 || c.PresentModeCount < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return QueueFamilies{}, false
	}
	fams := SelectQueueFamilies(c.Families)
	if !fams.complete() {
		core.LogInfo("Device '%s' does not meet queue requirements.", c.Name)
		return QueueFamilies{}, false
	}
	core.LogDebug("Graphics Family Index: %d", fams.Graphics)
	core.LogDebug("Present Family Index:  %d", fams.Present)
	core.LogDebug("Transfer Family Index: %d", fams.Transfer)
	return fams, true
}

// SelectDevice returns the index of the first candidate that qualifies.
func SelectDevice(candidates []DeviceCandidate) (int, QueueFamilies, error) {
	if len(candidates) == 0 {
		return -1, QueueFamilies{}, core.Wrapf(core.ErrNoSuitableDevice, "none of this system's graphics devices support Vulkan")
	}
	for i, c := range candidates {
		if fams, ok := EvaluateCandidate(c); ok {
			return i, fams, nil
		}
	}
	return -1, QueueFamilies{}, core.Wrapf(core.ErrNoSuitableDevice, "failed to find a suitable GPU among %d", len(candidates))
}
