package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

type CommandBufferState int

const (
	COMMAND_BUFFER_STATE_NOT_ALLOCATED CommandBufferState = iota
	COMMAND_BUFFER_STATE_READY
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
)

func (s CommandBufferState) String() string {
	switch s {
	case COMMAND_BUFFER_STATE_READY:
		return "ready"
	case COMMAND_BUFFER_STATE_RECORDING:
		return "recording"
	case COMMAND_BUFFER_STATE_IN_RENDER_PASS:
		return "in render pass"
	case COMMAND_BUFFER_STATE_RECORDING_ENDED:
		return "recording ended"
	case COMMAND_BUFFER_STATE_SUBMITTED:
		return "submitted"
	default:
		return "not allocated"
	}
}

// CommandBuffer pairs a primary command buffer with the pool it came from.
type CommandBuffer struct {
	Handle vk.CommandBuffer
	Pool   vk.CommandPool
	State  CommandBufferState
}

func allocateCommandBuffers(dev *Device, pool vk.CommandPool, count uint32) ([]*CommandBuffer, error) {
	handles, res := dev.drv.AllocateCommandBuffers(pool, count)
	if err := checkResult(res, "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	out := make([]*CommandBuffer, len(handles))
	for i, h := range handles {
		out[i] = &CommandBuffer{Handle: h, Pool: pool, State: COMMAND_BUFFER_STATE_READY}
	}
	return out, nil
}

func (cb *CommandBuffer) Free(dev *Device) {
	if cb == nil || cb.Handle == nil {
		return
	}
	dev.drv.FreeCommandBuffers(cb.Pool, []vk.CommandBuffer{cb.Handle})
	cb.Handle = nil
	cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (cb *CommandBuffer) Begin(dev *Device, isSingleUse, isSimultaneousUse bool) error {
	var flags vk.CommandBufferUsageFlags
	if isSingleUse {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isSimultaneousUse {
		flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}
	if err := checkResult(dev.drv.BeginCommandBuffer(cb.Handle, flags), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (cb *CommandBuffer) End(dev *Device) error {
	if err := checkResult(dev.drv.EndCommandBuffer(cb.Handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (cb *CommandBuffer) Reset(dev *Device) error {
	if err := checkResult(dev.drv.ResetCommandBuffer(cb.Handle), "vkResetCommandBuffer"); err != nil {
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (cb *CommandBuffer) UpdateSubmitted() {
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// BeginOneTime allocates a command buffer from the graphics pool and starts
// recording it for a single submission.
func (d *Device) BeginOneTime() (*CommandBuffer, error) {
	cbs, err := allocateCommandBuffers(d, d.GraphicsPool, 1)
	if err != nil {
		return nil, err
	}
	cb := cbs[0]
	if err := cb.Begin(d, true, false); err != nil {
		cb.Free(d)
		return nil, err
	}
	return cb, nil
}

// ConsumeOneTime ends cb, submits it to the graphics queue, waits for the
// queue to drain and frees cb. It blocks the caller.
func (d *Device) ConsumeOneTime(cb *CommandBuffer) error {
	defer cb.Free(d)

	if err := cb.End(d); err != nil {
		return err
	}
	res := d.drv.QueueSubmit(d.GraphicsQueue, submission{CommandBuffers: []vk.CommandBuffer{cb.Handle}})
	if err := checkResult(res, "vkQueueSubmit (one-time)"); err != nil {
		return err
	}
	cb.UpdateSubmitted()
	if res := d.drv.QueueWaitIdle(d.GraphicsQueue); res != vk.Success {
		return core.Errorf("queue failed to wait in idle mode: %s", VulkanResultString(res, true))
	}
	return nil
}

// RunOneTime records fn into a one-time command buffer and runs it to
// completion.
func (d *Device) RunOneTime(fn func(cmd vk.CommandBuffer)) error {
	cb, err := d.BeginOneTime()
	if err != nil {
		return err
	}
	fn(cb.Handle)
	return d.ConsumeOneTime(cb)
}
