package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

type semaphoreWait struct {
	Semaphore vk.Semaphore
	Stage     vk.PipelineStageFlags
}

// submission is one vkQueueSubmit batch.
type submission struct {
	Waits          []semaphoreWait
	CommandBuffers []vk.CommandBuffer
	Signals        []vk.Semaphore
	Fence          vk.Fence
}

// driver is the slice of the Vulkan API that the frame pipeline, the
// swapchain builder and the resource wrappers call once the device exists.
// Instance, device and descriptor layout bootstrap goes straight to vk.
type driver interface {
	WaitForFence(fence vk.Fence, timeout uint64) vk.Result
	ResetFence(fence vk.Fence) vk.Result
	AcquireNextImage(swapchain vk.Swapchain, timeout uint64, semaphore vk.Semaphore, index *uint32) vk.Result
	QueueSubmit(queue vk.Queue, s submission) vk.Result
	QueuePresent(queue vk.Queue, wait vk.Semaphore, swapchain vk.Swapchain, index uint32) vk.Result
	QueueWaitIdle(queue vk.Queue) vk.Result
	DeviceWaitIdle() vk.Result

	SurfaceSupport(gpu vk.PhysicalDevice, surface vk.Surface) (SurfaceSupport, error)
	CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, vk.Result)
	DestroySwapchain(swapchain vk.Swapchain)
	SwapchainImages(swapchain vk.Swapchain) ([]vk.Image, vk.Result)

	CreateSemaphore() (vk.Semaphore, vk.Result)
	DestroySemaphore(sema vk.Semaphore)
	CreateFence(signaled bool) (vk.Fence, vk.Result)
	DestroyFence(fence vk.Fence)

	CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, vk.Result)
	DestroyRenderPass(pass vk.RenderPass)
	CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, vk.Result)
	DestroyFramebuffer(fb vk.Framebuffer)
	CreateShaderModule(info *vk.ShaderModuleCreateInfo) (vk.ShaderModule, vk.Result)
	DestroyShaderModule(module vk.ShaderModule)
	CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, vk.Result)
	DestroyPipelineLayout(layout vk.PipelineLayout)
	CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, vk.Result)
	CreateComputePipeline(info *vk.ComputePipelineCreateInfo) (vk.Pipeline, vk.Result)
	DestroyPipeline(pipeline vk.Pipeline)

	AllocateCommandBuffers(pool vk.CommandPool, count uint32) ([]vk.CommandBuffer, vk.Result)
	FreeCommandBuffers(pool vk.CommandPool, buffers []vk.CommandBuffer)
	BeginCommandBuffer(cmd vk.CommandBuffer, flags vk.CommandBufferUsageFlags) vk.Result
	EndCommandBuffer(cmd vk.CommandBuffer) vk.Result
	ResetCommandBuffer(cmd vk.CommandBuffer) vk.Result

	CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, vk.Result)
	DestroyImageView(view vk.ImageView)
	AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, vk.Result)
	FreeDescriptorSet(pool vk.DescriptorPool, set vk.DescriptorSet) vk.Result
	UpdateDescriptorSets(writes []vk.WriteDescriptorSet)

	CmdBeginRenderPass(cmd vk.CommandBuffer, pass vk.RenderPass, fb vk.Framebuffer, extent vk.Extent2D, clear []vk.ClearValue)
	CmdEndRenderPass(cmd vk.CommandBuffer)
	CmdBindPipeline(cmd vk.CommandBuffer, point vk.PipelineBindPoint, pipeline vk.Pipeline)
	CmdBindDescriptorSets(cmd vk.CommandBuffer, point vk.PipelineBindPoint, layout vk.PipelineLayout, first uint32, sets []vk.DescriptorSet)
	CmdPushConstants(cmd vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, data []byte)
	CmdBindVertexBuffer(cmd vk.CommandBuffer, buffer vk.Buffer)
	CmdBindIndexBuffer(cmd vk.CommandBuffer, buffer vk.Buffer)
	CmdDrawIndexed(cmd vk.CommandBuffer, indexCount uint32)
	CmdDispatch(cmd vk.CommandBuffer, x, y, z uint32)
	CmdBufferBarrier(cmd vk.CommandBuffer, src, dst vk.PipelineStageFlags, barriers []vk.BufferMemoryBarrier)
	CmdImageBarrier(cmd vk.CommandBuffer, src, dst vk.PipelineStageFlags, barrier vk.ImageMemoryBarrier)
	CmdCopyBuffer(cmd vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize)
	CmdCopyBufferToImage(cmd vk.CommandBuffer, src vk.Buffer, dst vk.Image, width, height uint32)
	CmdClearColorRects(cmd vk.CommandBuffer, color [4]float32, rects []vk.ClearRect)
}

// vkDriver forwards to the goki bindings.
type vkDriver struct {
	device vk.Device
	locks  *VulkanLockPool
}

func newVkDriver(device vk.Device, locks *VulkanLockPool) *vkDriver {
	return &vkDriver{device: device, locks: locks}
}

func (d *vkDriver) WaitForFence(fence vk.Fence, timeout uint64) vk.Result {
	return vk.WaitForFences(d.device, 1, []vk.Fence{fence}, vk.True, timeout)
}

func (d *vkDriver) ResetFence(fence vk.Fence) vk.Result {
	return vk.ResetFences(d.device, 1, []vk.Fence{fence})
}

func (d *vkDriver) AcquireNextImage(swapchain vk.Swapchain, timeout uint64, semaphore vk.Semaphore, index *uint32) vk.Result {
	return vk.AcquireNextImage(d.device, swapchain, timeout, semaphore, nil, index)
}

func (d *vkDriver) QueueSubmit(queue vk.Queue, s submission) vk.Result {
	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(s.Waits)),
		CommandBufferCount:   uint32(len(s.CommandBuffers)),
		PCommandBuffers:      s.CommandBuffers,
		SignalSemaphoreCount: uint32(len(s.Signals)),
		PSignalSemaphores:    s.Signals,
	}
	if len(s.Waits) > 0 {
		semas := make([]vk.Semaphore, len(s.Waits))
		stages := make([]vk.PipelineStageFlags, len(s.Waits))
		for i, w := range s.Waits {
			semas[i] = w.Semaphore
			stages[i] = w.Stage
		}
		info.PWaitSemaphores = semas
		info.PWaitDstStageMask = stages
	}
	return d.locks.SafeQueueCall(queue, func() vk.Result {
		return vk.QueueSubmit(queue, 1, []vk.SubmitInfo{info}, s.Fence)
	})
}

func (d *vkDriver) QueuePresent(queue vk.Queue, wait vk.Semaphore, swapchain vk.Swapchain, index uint32) vk.Result {
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{swapchain},
		PImageIndices:      []uint32{index},
	}
	return d.locks.SafeQueueCall(queue, func() vk.Result {
		return vk.QueuePresent(queue, &info)
	})
}

func (d *vkDriver) QueueWaitIdle(queue vk.Queue) vk.Result {
	return d.locks.SafeQueueCall(queue, func() vk.Result {
		return vk.QueueWaitIdle(queue)
	})
}

func (d *vkDriver) DeviceWaitIdle() vk.Result {
	return vk.DeviceWaitIdle(d.device)
}

func (d *vkDriver) SurfaceSupport(gpu vk.PhysicalDevice, surface vk.Surface) (SurfaceSupport, error) {
	return querySurfaceSupport(gpu, surface)
}

func (d *vkDriver) CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, vk.Result) {
	var handle vk.Swapchain
	var res vk.Result
	_ = d.locks.SafeCall(SwapchainManagement, func() error {
		res = vk.CreateSwapchain(d.device, info, nil, &handle)
		return nil
	})
	return handle, res
}

func (d *vkDriver) DestroySwapchain(swapchain vk.Swapchain) {
	_ = d.locks.SafeCall(SwapchainManagement, func() error {
		vk.DestroySwapchain(d.device, swapchain, nil)
		return nil
	})
}

func (d *vkDriver) SwapchainImages(swapchain vk.Swapchain) ([]vk.Image, vk.Result) {
	var count uint32
	if res := vk.GetSwapchainImages(d.device, swapchain, &count, nil); res != vk.Success {
		return nil, res
	}
	images := make([]vk.Image, count)
	res := vk.GetSwapchainImages(d.device, swapchain, &count, images)
	return images[:count], res
}

func (d *vkDriver) CreateSemaphore() (vk.Semaphore, vk.Result) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var sema vk.Semaphore
	res := vk.CreateSemaphore(d.device, &info, nil, &sema)
	return sema, res
}

func (d *vkDriver) DestroySemaphore(sema vk.Semaphore) {
	vk.DestroySemaphore(d.device, sema, nil)
}

func (d *vkDriver) CreateFence(signaled bool) (vk.Fence, vk.Result) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	res := vk.CreateFence(d.device, &info, nil, &fence)
	return fence, res
}

func (d *vkDriver) DestroyFence(fence vk.Fence) {
	vk.DestroyFence(d.device, fence, nil)
}

func (d *vkDriver) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, vk.Result) {
	var pass vk.RenderPass
	res := vk.CreateRenderPass(d.device, info, nil, &pass)
	return pass, res
}

func (d *vkDriver) DestroyRenderPass(pass vk.RenderPass) {
	vk.DestroyRenderPass(d.device, pass, nil)
}

func (d *vkDriver) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, vk.Result) {
	var fb vk.Framebuffer
	res := vk.CreateFramebuffer(d.device, info, nil, &fb)
	return fb, res
}

func (d *vkDriver) DestroyFramebuffer(fb vk.Framebuffer) {
	vk.DestroyFramebuffer(d.device, fb, nil)
}

func (d *vkDriver) CreateShaderModule(info *vk.ShaderModuleCreateInfo) (vk.ShaderModule, vk.Result) {
	var module vk.ShaderModule
	res := vk.CreateShaderModule(d.device, info, nil, &module)
	return module, res
}

func (d *vkDriver) DestroyShaderModule(module vk.ShaderModule) {
	vk.DestroyShaderModule(d.device, module, nil)
}

func (d *vkDriver) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, vk.Result) {
	var layout vk.PipelineLayout
	var res vk.Result
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		res = vk.CreatePipelineLayout(d.device, info, nil, &layout)
		return nil
	})
	return layout, res
}

func (d *vkDriver) DestroyPipelineLayout(layout vk.PipelineLayout) {
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipelineLayout(d.device, layout, nil)
		return nil
	})
}

func (d *vkDriver) CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, vk.Result) {
	pipelines := make([]vk.Pipeline, 1)
	var res vk.Result
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		res = vk.CreateGraphicsPipelines(d.device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{*info}, nil, pipelines)
		return nil
	})
	return pipelines[0], res
}

func (d *vkDriver) CreateComputePipeline(info *vk.ComputePipelineCreateInfo) (vk.Pipeline, vk.Result) {
	pipelines := make([]vk.Pipeline, 1)
	var res vk.Result
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		res = vk.CreateComputePipelines(d.device, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{*info}, nil, pipelines)
		return nil
	})
	return pipelines[0], res
}

func (d *vkDriver) DestroyPipeline(pipeline vk.Pipeline) {
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipeline(d.device, pipeline, nil)
		return nil
	})
}

func (d *vkDriver) AllocateCommandBuffers(pool vk.CommandPool, count uint32) ([]vk.CommandBuffer, vk.Result) {
	out := make([]vk.CommandBuffer, count)
	var res vk.Result
	_ = d.locks.SafeCall(CommandBufferManagement, func() error {
		res = vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        pool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: count,
		}, out)
		return nil
	})
	return out, res
}

func (d *vkDriver) FreeCommandBuffers(pool vk.CommandPool, buffers []vk.CommandBuffer) {
	if len(buffers) == 0 {
		return
	}
	_ = d.locks.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(d.device, pool, uint32(len(buffers)), buffers)
		return nil
	})
}

func (d *vkDriver) BeginCommandBuffer(cmd vk.CommandBuffer, flags vk.CommandBufferUsageFlags) vk.Result {
	return vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	})
}

func (d *vkDriver) EndCommandBuffer(cmd vk.CommandBuffer) vk.Result {
	return vk.EndCommandBuffer(cmd)
}

func (d *vkDriver) ResetCommandBuffer(cmd vk.CommandBuffer) vk.Result {
	return vk.ResetCommandBuffer(cmd, 0)
}

func (d *vkDriver) CreateImageView(info *vk.ImageViewCreateInfo) (vk.ImageView, vk.Result) {
	var view vk.ImageView
	res := vk.CreateImageView(d.device, info, nil, &view)
	return view, res
}

func (d *vkDriver) DestroyImageView(view vk.ImageView) {
	vk.DestroyImageView(d.device, view, nil)
}

func (d *vkDriver) AllocateDescriptorSet(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, vk.Result) {
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	var res vk.Result
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		res = vk.AllocateDescriptorSets(d.device, &info, &set)
		return nil
	})
	return set, res
}

func (d *vkDriver) FreeDescriptorSet(pool vk.DescriptorPool, set vk.DescriptorSet) vk.Result {
	var res vk.Result
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		res = vk.FreeDescriptorSets(d.device, pool, 1, &set)
		return nil
	})
	return res
}

func (d *vkDriver) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.device, uint32(len(writes)), writes, 0, nil)
		return nil
	})
}

func (d *vkDriver) CmdBeginRenderPass(cmd vk.CommandBuffer, pass vk.RenderPass, fb vk.Framebuffer, extent vk.Extent2D, clear []vk.ClearValue) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
	vk.CmdBeginRenderPass(cmd, &beginInfo, vk.SubpassContentsInline)
}

func (d *vkDriver) CmdEndRenderPass(cmd vk.CommandBuffer) {
	vk.CmdEndRenderPass(cmd)
}

func (d *vkDriver) CmdBindPipeline(cmd vk.CommandBuffer, point vk.PipelineBindPoint, pipeline vk.Pipeline) {
	vk.CmdBindPipeline(cmd, point, pipeline)
}

func (d *vkDriver) CmdBindDescriptorSets(cmd vk.CommandBuffer, point vk.PipelineBindPoint, layout vk.PipelineLayout, first uint32, sets []vk.DescriptorSet) {
	vk.CmdBindDescriptorSets(cmd, point, layout, first, uint32(len(sets)), sets, 0, nil)
}

func (d *vkDriver) CmdPushConstants(cmd vk.CommandBuffer, layout vk.PipelineLayout, stages vk.ShaderStageFlags, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(cmd, layout, stages, 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *vkDriver) CmdBindVertexBuffer(cmd vk.CommandBuffer, buffer vk.Buffer) {
	vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{buffer}, []vk.DeviceSize{0})
}

func (d *vkDriver) CmdBindIndexBuffer(cmd vk.CommandBuffer, buffer vk.Buffer) {
	vk.CmdBindIndexBuffer(cmd, buffer, 0, vk.IndexTypeUint32)
}

func (d *vkDriver) CmdDrawIndexed(cmd vk.CommandBuffer, indexCount uint32) {
	vk.CmdDrawIndexed(cmd, indexCount, 1, 0, 0, 0)
}

func (d *vkDriver) CmdDispatch(cmd vk.CommandBuffer, x, y, z uint32) {
	vk.CmdDispatch(cmd, x, y, z)
}

func (d *vkDriver) CmdBufferBarrier(cmd vk.CommandBuffer, src, dst vk.PipelineStageFlags, barriers []vk.BufferMemoryBarrier) {
	vk.CmdPipelineBarrier(cmd, src, dst, 0, 0, nil, uint32(len(barriers)), barriers, 0, nil)
}

func (d *vkDriver) CmdImageBarrier(cmd vk.CommandBuffer, src, dst vk.PipelineStageFlags, barrier vk.ImageMemoryBarrier) {
	vk.CmdPipelineBarrier(cmd, src, dst, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (d *vkDriver) CmdCopyBuffer(cmd vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize) {
	vk.CmdCopyBuffer(cmd, src, dst, 1, []vk.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: size}})
}

func (d *vkDriver) CmdCopyBufferToImage(cmd vk.CommandBuffer, src vk.Buffer, dst vk.Image, width, height uint32) {
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cmd, src, dst, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

// CmdClearColorRects clears rects of colour attachment 0 inside the current
// render pass.
func (d *vkDriver) CmdClearColorRects(cmd vk.CommandBuffer, color [4]float32, rects []vk.ClearRect) {
	if len(rects) == 0 {
		return
	}
	att := vk.ClearAttachment{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit)}
	att.ClearValue.SetColor(color[:])
	vk.CmdClearAttachments(cmd, 1, []vk.ClearAttachment{att}, uint32(len(rects)), rects)
}
