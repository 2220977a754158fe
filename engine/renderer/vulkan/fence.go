package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// frameSync holds the per-frame semaphores and the render fence. There is a
// single frame in flight, so one of each suffices.
type frameSync struct {
	imageAvailable vk.Semaphore
	prepassDone    vk.Semaphore
	lightCullDone  vk.Semaphore
	renderDone     vk.Semaphore
	overlayDone    vk.Semaphore
	renderFence    vk.Fence
}

func createSemaphore(dev *Device, name string) (vk.Semaphore, error) {
	sema, res := dev.drv.CreateSemaphore()
	if err := checkResult(res, "vkCreateSemaphore"); err != nil {
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypeSemaphore, handleID(sema), "Semaphore, "+name)
	return sema, nil
}

func createFence(dev *Device, createSignaled bool, name string) (vk.Fence, error) {
	fence, res := dev.drv.CreateFence(createSignaled)
	if err := checkResult(res, "vkCreateFence"); err != nil {
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypeFence, handleID(fence), "Fence, "+name)
	return fence, nil
}

func newFrameSync(dev *Device) (*frameSync, error) {
	fs := &frameSync{}
	var err error
	semas := []struct {
		dst  *vk.Semaphore
		name string
	}{
		{&fs.imageAvailable, "Image Available"},
		{&fs.prepassDone, "Depth Pre-pass Done"},
		{&fs.lightCullDone, "Light Culling Done"},
		{&fs.renderDone, "Render Done"},
		{&fs.overlayDone, "Overlay Done"},
	}
	for _, s := range semas {
		if *s.dst, err = createSemaphore(dev, s.name); err != nil {
			fs.destroy(dev)
			return nil, err
		}
	}
	// signalled so the first StartRender does not block forever
	if fs.renderFence, err = createFence(dev, true, "Render"); err != nil {
		fs.destroy(dev)
		return nil, err
	}
	return fs, nil
}

func (fs *frameSync) destroy(dev *Device) {
	for _, s := range []*vk.Semaphore{&fs.imageAvailable, &fs.prepassDone, &fs.lightCullDone, &fs.renderDone, &fs.overlayDone} {
		if *s != vk.NullSemaphore {
			dev.drv.DestroySemaphore(*s)
			*s = vk.NullSemaphore
		}
	}
	if fs.renderFence != nil {
		dev.drv.DestroyFence(fs.renderFence)
		fs.renderFence = nil
	}
}

// waitFence blocks on fence and reports anything other than success.
func waitFence(dev *Device, fence vk.Fence, timeoutNs uint64) error {
	switch result := dev.drv.WaitForFence(fence, timeoutNs); result {
	case vk.Success:
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return core.Errorf("fence wait timed out")
	default:
		return core.Errorf("vk_fence_wait - %s", VulkanResultString(result, true))
	}
}
