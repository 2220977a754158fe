package vulkan

import (
	"fmt"
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
)

const fakeHandleBase = 1 << 24

var fakeHandleSeq atomic.Uintptr

// fakeHandle returns a distinct non-nil handle. Like a real driver handle it
// points outside the Go heap, which reflection on the cgo handle types
// requires.
func fakeHandle[H any]() H {
	var h H
	*(*uintptr)(unsafe.Pointer(&h)) = fakeHandleBase + fakeHandleSeq.Add(16)
	return h
}

type fakeBufferBarrier struct {
	src, dst vk.PipelineStageFlags
	barriers []vk.BufferMemoryBarrier
}

type fakeSubmit struct {
	queue vk.Queue
	submission
}

// fakeDriver records what the renderer asks of the device. Copies between
// buffers are applied immediately against the fake allocator's memory.
type fakeDriver struct {
	alloc *fakeAllocator

	acquireResult vk.Result
	presentResult vk.Result
	nextImage     uint32

	fenceWaits  int
	fenceResets int
	idleWaits   int

	submits  []fakeSubmit
	presents []vk.Semaphore

	// ops per command buffer, in recording order
	ops        map[vk.CommandBuffer][]string
	beginFlags map[vk.CommandBuffer][]vk.CommandBufferUsageFlags
	pushes     map[vk.CommandBuffer][][]byte
	clears     map[vk.CommandBuffer][][]vk.ClearRect
	writes     []vk.WriteDescriptorSet

	imageBarriers  []vk.ImageMemoryBarrier
	bufferBarriers []fakeBufferBarrier

	liveCmdBuffers int
	liveViews      int
	liveSets       int

	surface       SurfaceSupport
	swapchainSize map[vk.Swapchain]uint32
	// live device objects by kind, e.g. "pipeline"
	objects map[string]int
	created map[string]int
	// the create call that fails next, by kind
	failCreate string
}

func newFakeDriver(alloc *fakeAllocator) *fakeDriver {
	return &fakeDriver{
		alloc:      alloc,
		ops:        make(map[vk.CommandBuffer][]string),
		beginFlags: make(map[vk.CommandBuffer][]vk.CommandBufferUsageFlags),
		pushes:     make(map[vk.CommandBuffer][][]byte),
		clears:     make(map[vk.CommandBuffer][][]vk.ClearRect),
		surface: SurfaceSupport{
			Capabilities: vk.SurfaceCapabilities{
				MinImageCount:    fakeImageCount - 1,
				MaxImageCount:    8,
				CurrentExtent:    vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
				MinImageExtent:   vk.Extent2D{Width: 1, Height: 1},
				MaxImageExtent:   vk.Extent2D{Width: 4096, Height: 4096},
				CurrentTransform: vk.SurfaceTransformIdentityBit,
			},
			Formats:      []vk.SurfaceFormat{{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}},
			PresentModes: []vk.PresentMode{vk.PresentModeFifo},
		},
		swapchainSize: make(map[vk.Swapchain]uint32),
		objects:       make(map[string]int),
		created:       make(map[string]int),
	}
}

// create hands out a handle of kind unless failCreate names it.
func create[H any](d *fakeDriver, kind string) (H, vk.Result) {
	var zero H
	if d.failCreate == kind {
		d.failCreate = ""
		return zero, vk.ErrorOutOfDeviceMemory
	}
	d.objects[kind]++
	d.created[kind]++
	return fakeHandle[H](), vk.Success
}

func (d *fakeDriver) destroy(kind string) { d.objects[kind]-- }

// liveObjects counts every device object the driver created and has not
// destroyed yet.
func (d *fakeDriver) liveObjects() int {
	n := d.liveCmdBuffers + d.liveViews + d.liveSets
	for _, v := range d.objects {
		n += v
	}
	return n
}

func (d *fakeDriver) op(cmd vk.CommandBuffer, format string, args ...any) {
	d.ops[cmd] = append(d.ops[cmd], fmt.Sprintf(format, args...))
}

func (d *fakeDriver) WaitForFence(vk.Fence, uint64) vk.Result {
	d.fenceWaits++
	return vk.Success
}

func (d *fakeDriver) ResetFence(vk.Fence) vk.Result {
	d.fenceResets++
	return vk.Success
}

func (d *fakeDriver) AcquireNextImage(_ vk.Swapchain, _ uint64, _ vk.Semaphore, index *uint32) vk.Result {
	if d.acquireResult == vk.Success || d.acquireResult == vk.Suboptimal {
		*index = d.nextImage
	}
	return d.acquireResult
}

func (d *fakeDriver) QueueSubmit(queue vk.Queue, s submission) vk.Result {
	d.submits = append(d.submits, fakeSubmit{queue: queue, submission: s})
	return vk.Success
}

func (d *fakeDriver) QueuePresent(_ vk.Queue, wait vk.Semaphore, _ vk.Swapchain, _ uint32) vk.Result {
	d.presents = append(d.presents, wait)
	return d.presentResult
}

func (d *fakeDriver) QueueWaitIdle(vk.Queue) vk.Result { return vk.Success }

func (d *fakeDriver) DeviceWaitIdle() vk.Result {
	d.idleWaits++
	return vk.Success
}

func (d *fakeDriver) SurfaceSupport(vk.PhysicalDevice, vk.Surface) (SurfaceSupport, error) {
	return d.surface, nil
}

func (d *fakeDriver) CreateSwapchain(info *vk.SwapchainCreateInfo) (vk.Swapchain, vk.Result) {
	sc, res := create[vk.Swapchain](d, "swapchain")
	if res == vk.Success {
		d.swapchainSize[sc] = info.MinImageCount
	}
	return sc, res
}

func (d *fakeDriver) DestroySwapchain(sc vk.Swapchain) {
	delete(d.swapchainSize, sc)
	d.destroy("swapchain")
}

func (d *fakeDriver) SwapchainImages(sc vk.Swapchain) ([]vk.Image, vk.Result) {
	images := make([]vk.Image, d.swapchainSize[sc])
	for i := range images {
		images[i] = fakeHandle[vk.Image]()
	}
	return images, vk.Success
}

func (d *fakeDriver) CreateSemaphore() (vk.Semaphore, vk.Result) {
	return create[vk.Semaphore](d, "semaphore")
}

func (d *fakeDriver) DestroySemaphore(vk.Semaphore) { d.destroy("semaphore") }

func (d *fakeDriver) CreateFence(bool) (vk.Fence, vk.Result) { return create[vk.Fence](d, "fence") }

func (d *fakeDriver) DestroyFence(vk.Fence) { d.destroy("fence") }

func (d *fakeDriver) CreateRenderPass(*vk.RenderPassCreateInfo) (vk.RenderPass, vk.Result) {
	return create[vk.RenderPass](d, "render pass")
}

func (d *fakeDriver) DestroyRenderPass(vk.RenderPass) { d.destroy("render pass") }

func (d *fakeDriver) CreateFramebuffer(*vk.FramebufferCreateInfo) (vk.Framebuffer, vk.Result) {
	return create[vk.Framebuffer](d, "framebuffer")
}

func (d *fakeDriver) DestroyFramebuffer(vk.Framebuffer) { d.destroy("framebuffer") }

func (d *fakeDriver) CreateShaderModule(*vk.ShaderModuleCreateInfo) (vk.ShaderModule, vk.Result) {
	return create[vk.ShaderModule](d, "shader module")
}

func (d *fakeDriver) DestroyShaderModule(vk.ShaderModule) { d.destroy("shader module") }

func (d *fakeDriver) CreatePipelineLayout(*vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, vk.Result) {
	return create[vk.PipelineLayout](d, "pipeline layout")
}

func (d *fakeDriver) DestroyPipelineLayout(vk.PipelineLayout) { d.destroy("pipeline layout") }

func (d *fakeDriver) CreateGraphicsPipeline(*vk.GraphicsPipelineCreateInfo) (vk.Pipeline, vk.Result) {
	return create[vk.Pipeline](d, "pipeline")
}

func (d *fakeDriver) CreateComputePipeline(*vk.ComputePipelineCreateInfo) (vk.Pipeline, vk.Result) {
	return create[vk.Pipeline](d, "pipeline")
}

func (d *fakeDriver) DestroyPipeline(vk.Pipeline) { d.destroy("pipeline") }

func (d *fakeDriver) AllocateCommandBuffers(_ vk.CommandPool, count uint32) ([]vk.CommandBuffer, vk.Result) {
	out := make([]vk.CommandBuffer, count)
	for i := range out {
		out[i] = fakeHandle[vk.CommandBuffer]()
	}
	d.liveCmdBuffers += int(count)
	return out, vk.Success
}

func (d *fakeDriver) FreeCommandBuffers(_ vk.CommandPool, buffers []vk.CommandBuffer) {
	d.liveCmdBuffers -= len(buffers)
}

func (d *fakeDriver) BeginCommandBuffer(cmd vk.CommandBuffer, flags vk.CommandBufferUsageFlags) vk.Result {
	d.beginFlags[cmd] = append(d.beginFlags[cmd], flags)
	d.op(cmd, "begin")
	return vk.Success
}

func (d *fakeDriver) EndCommandBuffer(cmd vk.CommandBuffer) vk.Result {
	d.op(cmd, "end")
	return vk.Success
}

func (d *fakeDriver) ResetCommandBuffer(cmd vk.CommandBuffer) vk.Result {
	d.op(cmd, "reset")
	return vk.Success
}

func (d *fakeDriver) CreateImageView(*vk.ImageViewCreateInfo) (vk.ImageView, vk.Result) {
	d.liveViews++
	return fakeHandle[vk.ImageView](), vk.Success
}

func (d *fakeDriver) DestroyImageView(vk.ImageView) { d.liveViews-- }

func (d *fakeDriver) AllocateDescriptorSet(vk.DescriptorPool, vk.DescriptorSetLayout) (vk.DescriptorSet, vk.Result) {
	d.liveSets++
	return fakeHandle[vk.DescriptorSet](), vk.Success
}

func (d *fakeDriver) FreeDescriptorSet(vk.DescriptorPool, vk.DescriptorSet) vk.Result {
	d.liveSets--
	return vk.Success
}

func (d *fakeDriver) UpdateDescriptorSets(writes []vk.WriteDescriptorSet) {
	d.writes = append(d.writes, writes...)
}

func (d *fakeDriver) CmdBeginRenderPass(cmd vk.CommandBuffer, _ vk.RenderPass, _ vk.Framebuffer, extent vk.Extent2D, clear []vk.ClearValue) {
	d.op(cmd, "beginPass %dx%d clears=%d", extent.Width, extent.Height, len(clear))
}

func (d *fakeDriver) CmdEndRenderPass(cmd vk.CommandBuffer) { d.op(cmd, "endPass") }

func (d *fakeDriver) CmdBindPipeline(cmd vk.CommandBuffer, point vk.PipelineBindPoint, _ vk.Pipeline) {
	d.op(cmd, "bindPipeline %d", point)
}

func (d *fakeDriver) CmdBindDescriptorSets(cmd vk.CommandBuffer, point vk.PipelineBindPoint, _ vk.PipelineLayout, first uint32, sets []vk.DescriptorSet) {
	d.op(cmd, "bindSets %d first=%d n=%d", point, first, len(sets))
}

func (d *fakeDriver) CmdPushConstants(cmd vk.CommandBuffer, _ vk.PipelineLayout, stages vk.ShaderStageFlags, data []byte) {
	d.pushes[cmd] = append(d.pushes[cmd], append([]byte(nil), data...))
	d.op(cmd, "push stages=%d", stages)
}

func (d *fakeDriver) CmdBindVertexBuffer(cmd vk.CommandBuffer, _ vk.Buffer) { d.op(cmd, "bindVertex") }

func (d *fakeDriver) CmdBindIndexBuffer(cmd vk.CommandBuffer, _ vk.Buffer) { d.op(cmd, "bindIndex") }

func (d *fakeDriver) CmdDrawIndexed(cmd vk.CommandBuffer, n uint32) { d.op(cmd, "drawIndexed %d", n) }

func (d *fakeDriver) CmdDispatch(cmd vk.CommandBuffer, x, y, z uint32) {
	d.op(cmd, "dispatch %d %d %d", x, y, z)
}

func (d *fakeDriver) CmdBufferBarrier(cmd vk.CommandBuffer, src, dst vk.PipelineStageFlags, barriers []vk.BufferMemoryBarrier) {
	d.bufferBarriers = append(d.bufferBarriers, fakeBufferBarrier{src: src, dst: dst, barriers: barriers})
	d.op(cmd, "bufferBarrier n=%d", len(barriers))
}

func (d *fakeDriver) CmdImageBarrier(cmd vk.CommandBuffer, _, _ vk.PipelineStageFlags, b vk.ImageMemoryBarrier) {
	d.imageBarriers = append(d.imageBarriers, b)
	d.op(cmd, "imageBarrier %d->%d", b.OldLayout, b.NewLayout)
}

func (d *fakeDriver) CmdCopyBuffer(cmd vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize) {
	d.op(cmd, "copyBuffer %d", size)
	from, to := d.alloc.buffers[src], d.alloc.buffers[dst]
	if from != nil && to != nil {
		copy(d.alloc.memory[to][:size], d.alloc.memory[from][:size])
	}
}

func (d *fakeDriver) CmdCopyBufferToImage(cmd vk.CommandBuffer, _ vk.Buffer, _ vk.Image, w, h uint32) {
	d.op(cmd, "copyBufferToImage %dx%d", w, h)
}

func (d *fakeDriver) CmdClearColorRects(cmd vk.CommandBuffer, _ [4]float32, rects []vk.ClearRect) {
	d.clears[cmd] = append(d.clears[cmd], rects)
	d.op(cmd, "clearRects n=%d", len(rects))
}

// fakeAllocator backs every allocation with a byte slice.
type fakeAllocator struct {
	memory  map[*Allocation][]byte
	buffers map[vk.Buffer]*Allocation
	images  map[vk.Image]*Allocation
	infos   map[vk.Buffer]BufferInfo
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{
		memory:  make(map[*Allocation][]byte),
		buffers: make(map[vk.Buffer]*Allocation),
		images:  make(map[vk.Image]*Allocation),
		infos:   make(map[vk.Buffer]BufferInfo),
	}
}

func (a *fakeAllocator) newAllocation(size vk.DeviceSize, props vk.MemoryPropertyFlags) *Allocation {
	alloc := &Allocation{Memory: fakeHandle[vk.DeviceMemory](), Size: size, Properties: props}
	a.memory[alloc] = make([]byte, size)
	return alloc
}

func (a *fakeAllocator) CreateBuffer(info BufferInfo) (vk.Buffer, *Allocation, error) {
	buf := fakeHandle[vk.Buffer]()
	alloc := a.newAllocation(info.Size, info.Properties)
	a.buffers[buf] = alloc
	a.infos[buf] = info
	return buf, alloc, nil
}

func (a *fakeAllocator) DestroyBuffer(buffer vk.Buffer, alloc *Allocation) {
	delete(a.buffers, buffer)
	delete(a.infos, buffer)
	delete(a.memory, alloc)
}

func (a *fakeAllocator) CreateImage(info *vk.ImageCreateInfo, props vk.MemoryPropertyFlags) (vk.Image, *Allocation, error) {
	img := fakeHandle[vk.Image]()
	alloc := a.newAllocation(vk.DeviceSize(info.Extent.Width*info.Extent.Height*4), props)
	a.images[img] = alloc
	return img, alloc, nil
}

func (a *fakeAllocator) DestroyImage(image vk.Image, alloc *Allocation) {
	delete(a.images, image)
	delete(a.memory, alloc)
}

func (a *fakeAllocator) host(alloc *Allocation, offset vk.DeviceSize, n int) ([]byte, error) {
	mem, ok := a.memory[alloc]
	if !ok {
		return nil, fmt.Errorf("unknown allocation")
	}
	if alloc.Properties&hostVisible != hostVisible {
		return nil, fmt.Errorf("allocation is not host visible")
	}
	if offset+vk.DeviceSize(n) > alloc.Size {
		return nil, fmt.Errorf("range %d+%d exceeds %d", offset, n, alloc.Size)
	}
	return mem[offset : offset+vk.DeviceSize(n)], nil
}

func (a *fakeAllocator) Upload(alloc *Allocation, offset vk.DeviceSize, data []byte) error {
	dst, err := a.host(alloc, offset, len(data))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

func (a *fakeAllocator) Download(alloc *Allocation, offset vk.DeviceSize, out []byte) error {
	src, err := a.host(alloc, offset, len(out))
	if err != nil {
		return err
	}
	copy(out, src)
	return nil
}

func (a *fakeAllocator) live() int { return len(a.memory) }

func newFakeDevice() (*Device, *fakeDriver, *fakeAllocator) {
	alloc := newFakeAllocator()
	drv := newFakeDriver(alloc)
	dev := &Device{
		Handle:         fakeHandle[vk.Device](),
		PhysicalDevice: fakeHandle[vk.PhysicalDevice](),
		Surface:        fakeHandle[vk.Surface](),
		Families:       QueueFamilies{Graphics: 0, Present: 0, Transfer: 1},
		GraphicsQueue:  fakeHandle[vk.Queue](),
		ComputeQueue:   fakeHandle[vk.Queue](),
		PresentQueue:   fakeHandle[vk.Queue](),
		TransferQueue:  fakeHandle[vk.Queue](),
		GraphicsPool:   fakeHandle[vk.CommandPool](),
		ComputePool:    fakeHandle[vk.CommandPool](),
		TransferPool:   fakeHandle[vk.CommandPool](),
		DepthFormat:    vk.FormatD32Sfloat,
		drv:            drv,
		alloc:          alloc,
		locks:          NewVulkanLockPool(),
	}
	return dev, drv, alloc
}

type fakeWindow struct {
	width, height uint32
}

func (w *fakeWindow) InstanceProcAddr() unsafe.Pointer { return nil }

func (w *fakeWindow) RequiredInstanceExtensions() []string { return nil }

func (w *fakeWindow) CreateSurface(vk.Instance) (vk.Surface, error) {
	return fakeHandle[vk.Surface](), nil
}

func (w *fakeWindow) FramebufferSize() (uint32, uint32) { return w.width, w.height }

type fakeOverlay struct {
	rects []OverlayRect
	calls int
}

func (o *fakeOverlay) Rects(uint32, uint32) []OverlayRect {
	o.calls++
	return o.rects
}

const fakeImageCount = 3

// fakeShaders serves a one-word module for any name and records the loads.
type fakeShaders struct {
	loads []string
}

func (s *fakeShaders) LoadSPIRV(name string) ([]uint32, error) {
	s.loads = append(s.loads, name)
	return []uint32{0x07230203}, nil
}

// newFakeContext wires a Context to the fake device and builds its first
// swapchain generation with the real builder.
func newFakeContext() (*Context, *fakeDriver, *fakeAllocator) {
	dev, drv, alloc := newFakeDevice()
	c := &Context{
		dev:     dev,
		shaders: &fakeShaders{},
		tracker: NewResourceTracker(),
		sets: contextSets{
			object:    fakeHandle[vk.DescriptorSet](),
			camera:    fakeHandle[vk.DescriptorSet](),
			lightCull: fakeHandle[vk.DescriptorSet](),
			inter:     fakeHandle[vk.DescriptorSet](),
		},
		pool:    fakeHandle[vk.DescriptorPool](),
		sampler: fakeHandle[vk.Sampler](),
	}
	for i := range c.layouts {
		c.layouts[i] = fakeHandle[vk.DescriptorSetLayout]()
	}
	var err error
	if c.sync, err = newFrameSync(dev); err != nil {
		panic(err)
	}
	if c.lightsUBO, err = NewUBOSized[pointLightData](dev, "Point Lights", vk.DeviceSize(PointLightBufferSize)); err != nil {
		panic(err)
	}
	if c.cameraUBO, err = NewUBO[Camera](dev, "Camera"); err != nil {
		panic(err)
	}
	if c.objectUBO, err = NewUBO[mgl32.Mat4](dev, "Object Transform"); err != nil {
		panic(err)
	}
	c.build = c.buildSwapchainResources
	if c.sc, err = c.build(1280, 720); err != nil {
		panic(err)
	}
	return c, drv, alloc
}

func fakePipeline(point vk.PipelineBindPoint) *Pipeline {
	return &Pipeline{Handle: fakeHandle[vk.Pipeline](), Layout: fakeHandle[vk.PipelineLayout](), BindPoint: point}
}
