package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
)

// SwapchainResources is everything that depends on the surface extent or the
// swapchain images. It is built as a whole and replaced as a whole; each
// build gets a fresh Generation in the Context's ResourceTracker.
type SwapchainResources struct {
	Generation Generation

	Handle      vk.Swapchain
	Format      vk.SurfaceFormat
	PresentMode vk.PresentMode
	Extent      vk.Extent2D
	Images      []vk.Image
	Views       []vk.ImageView

	PrepassPass vk.RenderPass
	MainPass    vk.RenderPass
	OverlayPass vk.RenderPass

	Depth              *Image
	Framebuffers       []vk.Framebuffer
	PrepassFramebuffer vk.Framebuffer

	Tiles           TileCount
	LightVisibility *Buffer

	DepthPipeline     *Pipeline
	RenderPipeline    *Pipeline
	LightCullPipeline *Pipeline

	RenderCmds   []*CommandBuffer
	PrepassCmd   *CommandBuffer
	LightCullCmd *CommandBuffer
	OverlayCmd   *CommandBuffer
}

// SurfaceSupport is what the surface reports for the selected GPU.
type SurfaceSupport struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func querySurfaceSupport(gpu vk.PhysicalDevice, surface vk.Surface) (SurfaceSupport, error) {
	var out SurfaceSupport
	if err := checkResult(vk.GetPhysicalDeviceSurfaceCapabilities(gpu, surface, &out.Capabilities), "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return out, err
	}
	out.Capabilities.Deref()
	out.Capabilities.CurrentExtent.Deref()
	out.Capabilities.MinImageExtent.Deref()
	out.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return out, err
	}
	if formatCount > 0 {
		out.Formats = make([]vk.SurfaceFormat, formatCount)
		if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formatCount, out.Formats), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
			return out, err
		}
		for i := range out.Formats {
			out.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &modeCount, nil), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return out, err
	}
	if modeCount > 0 {
		out.PresentModes = make([]vk.PresentMode, modeCount)
		if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &modeCount, out.PresentModes), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
			return out, err
		}
	}
	return out, nil
}

// chooseSurfaceFormat prefers 8-bit sRGB BGRA and otherwise takes the first
// format the surface offers.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	preferred := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	if len(formats) == 0 {
		return preferred
	}
	// a single undefined entry means the surface takes anything
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return preferred
	}
	for _, f := range formats {
		if f.Format == preferred.Format && f.ColorSpace == preferred.ColorSpace {
			return f
		}
	}
	return formats[0]
}

func choosePresentMode(modes []vk.PresentMode, preferMailbox bool) vk.PresentMode {
	if preferMailbox {
		for _, m := range modes {
			if m == vk.PresentModeMailbox {
				return m
			}
		}
		core.LogInfo("Mailbox present mode not available, falling back to FIFO.")
	}
	return vk.PresentModeFifo
}

// chooseExtent uses the surface's current extent unless the surface leaves
// it to the application, in which case the framebuffer size is clamped.
func chooseExtent(caps vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  fmath.Clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: fmath.Clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// chooseImageCount asks for one image over the minimum. A MaxImageCount of
// zero means unbounded.
func chooseImageCount(caps vk.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func createSwapchain(dev *Device, support SurfaceSupport, format vk.SurfaceFormat, mode vk.PresentMode, extent vk.Extent2D) (vk.Swapchain, error) {
	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          dev.Surface,
		MinImageCount:    chooseImageCount(support.Capabilities),
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      mode,
		Clipped:          vk.True,
	}
	if dev.Families.Graphics != dev.Families.Present {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{dev.Families.Graphics, dev.Families.Present}
	}

	handle, res := dev.drv.CreateSwapchain(&info)
	if err := checkResult(res, "vkCreateSwapchain"); err != nil {
		return nil, err
	}
	return handle, nil
}

func swapchainImages(dev *Device, sc vk.Swapchain) ([]vk.Image, error) {
	images, res := dev.drv.SwapchainImages(sc)
	if err := checkResult(res, "vkGetSwapchainImages"); err != nil {
		return nil, err
	}
	return images, nil
}

// buildSwapchainResources creates every size dependent object for a
// framebuffer of width x height. On error the partial generation is
// released before returning.
func (c *Context) buildSwapchainResources(width, height uint32) (sc *SwapchainResources, err error) {
	dev := c.dev
	gen := c.tracker.NextGeneration()
	sc = &SwapchainResources{Generation: gen}
	track := func(name string, destroy func()) { c.tracker.Track(gen, name, destroy) }
	defer func() {
		if err != nil {
			c.tracker.ReleaseGeneration(gen)
			sc = nil
		}
	}()

	support, err := dev.drv.SurfaceSupport(dev.PhysicalDevice, dev.Surface)
	if err != nil {
		return nil, err
	}
	sc.Format = chooseSurfaceFormat(support.Formats)
	sc.PresentMode = choosePresentMode(support.PresentModes, c.cfg.PreferMailbox)
	sc.Extent = chooseExtent(support.Capabilities, width, height)
	if sc.Extent.Width == 0 || sc.Extent.Height == 0 {
		return nil, core.Errorf("cannot build a swapchain for a %dx%d surface", sc.Extent.Width, sc.Extent.Height)
	}

	if sc.Handle, err = createSwapchain(dev, support, sc.Format, sc.PresentMode, sc.Extent); err != nil {
		return nil, err
	}
	handle := sc.Handle
	track("swapchain", func() { dev.drv.DestroySwapchain(handle) })

	if sc.Images, err = swapchainImages(dev, sc.Handle); err != nil {
		return nil, err
	}
	sc.Views = make([]vk.ImageView, len(sc.Images))
	for i, img := range sc.Images {
		view, err := createImageView(dev, img, sc.Format.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return nil, err
		}
		sc.Views[i] = view
		track(fmt.Sprintf("swapchain view %d", i), func() { dev.drv.DestroyImageView(view) })
	}

	passes := []struct {
		dst  *vk.RenderPass
		desc renderPassDesc
		name string
	}{
		{&sc.PrepassPass, prepassDesc(dev.DepthFormat), "Depth Pre-pass"},
		{&sc.MainPass, mainPassDesc(sc.Format.Format, dev.DepthFormat), "Render Pass"},
		{&sc.OverlayPass, overlayPassDesc(sc.Format.Format, dev.DepthFormat), "Render Pass, ImGui"},
	}
	for _, p := range passes {
		rp, err := createRenderPass(dev, p.desc, p.name)
		if err != nil {
			return nil, err
		}
		*p.dst = rp
		track(p.name, func() { dev.drv.DestroyRenderPass(rp) })
	}

	if sc.Depth, err = newDepthImage(dev, sc.Extent); err != nil {
		return nil, err
	}
	depth := sc.Depth
	track("depth image", func() { depth.Destroy(dev) })

	sc.Framebuffers = make([]vk.Framebuffer, len(sc.Views))
	for i, view := range sc.Views {
		fb, err := createFramebuffer(dev, sc.MainPass, sc.Extent, view, sc.Depth.View)
		if err != nil {
			return nil, err
		}
		sc.Framebuffers[i] = fb
		track(fmt.Sprintf("framebuffer %d", i), func() { dev.drv.DestroyFramebuffer(fb) })
	}
	if sc.PrepassFramebuffer, err = createFramebuffer(dev, sc.PrepassPass, sc.Extent, sc.Depth.View); err != nil {
		return nil, err
	}
	prepassFB := sc.PrepassFramebuffer
	track("prepass framebuffer", func() { dev.drv.DestroyFramebuffer(prepassFB) })

	// the fragment stage reads the pre-pass depth through the inter set
	dev.drv.UpdateDescriptorSets([]vk.WriteDescriptorSet{
		imageWrite(c.sets.inter, 0, c.sampler, sc.Depth.View, vk.ImageLayoutDepthStencilReadOnlyOptimal),
	})

	sc.Tiles = TileCountFor(sc.Extent.Width, sc.Extent.Height)
	if sc.LightVisibility, err = newLightVisibilityBuffer(dev, sc.Tiles); err != nil {
		return nil, err
	}
	lightVis := sc.LightVisibility
	track("light visibility buffer", func() { lightVis.Destroy(dev) })
	dev.drv.UpdateDescriptorSets([]vk.WriteDescriptorSet{
		bufferWrite(c.sets.lightCull, 0, vk.DescriptorTypeStorageBuffer, sc.LightVisibility.Handle, sc.LightVisibility.Size),
		bufferWrite(c.sets.lightCull, 1, vk.DescriptorTypeUniformBuffer, c.lightsUBO.Handle(), c.lightsUBO.Size()),
	})

	if sc.DepthPipeline, err = newDepthPipeline(dev, c.shaders, sc.PrepassPass, sc.Extent, c.layouts.list(SetObject, SetCamera)); err != nil {
		return nil, err
	}
	depthPipe := sc.DepthPipeline
	track("depth pipeline", func() { depthPipe.Destroy(dev) })
	if sc.RenderPipeline, err = newForwardPipeline(dev, c.shaders, sc.MainPass, sc.Extent,
		c.layouts.list(SetObject, SetCamera, SetLightCull, SetInter, SetMaterial)); err != nil {
		return nil, err
	}
	renderPipe := sc.RenderPipeline
	track("render pipeline", func() { renderPipe.Destroy(dev) })
	if sc.LightCullPipeline, err = newLightCullPipeline(dev, c.shaders, c.layouts.list(SetLightCull, SetCamera, SetInter)); err != nil {
		return nil, err
	}
	cullPipe := sc.LightCullPipeline
	track("light culling pipeline", func() { cullPipe.Destroy(dev) })

	if err := c.allocateFrameCommandBuffers(sc); err != nil {
		return nil, err
	}

	// Recorded once per generation and never per frame. Per-frame inputs
	// reach the shader only through descriptor contents.
	if err := recordLightCull(dev, sc.LightCullCmd, lightCullRecording{
		Pipeline:        sc.LightCullPipeline,
		Sets:            []vk.DescriptorSet{c.sets.lightCull, c.sets.camera, c.sets.inter},
		LightVisibility: sc.LightVisibility,
		Lights:          c.lightsUBO.Handle(),
		LightsSize:      c.lightsUBO.Size(),
		Extent:          sc.Extent,
		Tiles:           sc.Tiles,
		DebugView:       c.cfg.DebugView,
	}); err != nil {
		return nil, err
	}

	core.LogInfo("Swapchain generation %d built: %dx%d, %d images, %dx%d tiles.",
		gen, sc.Extent.Width, sc.Extent.Height, len(sc.Images), sc.Tiles.X, sc.Tiles.Y)
	return sc, nil
}

func (c *Context) allocateFrameCommandBuffers(sc *SwapchainResources) error {
	dev := c.dev
	gen := sc.Generation

	render, err := allocateCommandBuffers(dev, dev.GraphicsPool, uint32(len(sc.Images)))
	if err != nil {
		return err
	}
	sc.RenderCmds = render
	for i, cb := range render {
		dev.SetDebugName(vk.DebugReportObjectTypeCommandBuffer, handleID(cb.Handle), fmt.Sprintf("Cmd. Buffer, Render %d", i))
	}
	c.tracker.Track(gen, "render command buffers", func() {
		for _, cb := range render {
			cb.Free(dev)
		}
	})

	singles := []struct {
		dst  **CommandBuffer
		pool vk.CommandPool
		name string
	}{
		{&sc.PrepassCmd, dev.GraphicsPool, "Cmd. Buffer, Depth Pre-pass"},
		{&sc.LightCullCmd, dev.ComputePool, "Cmd. Buffer, Light Culling"},
		{&sc.OverlayCmd, dev.GraphicsPool, "Cmd. Buffer, ImGui"},
	}
	for _, s := range singles {
		cbs, err := allocateCommandBuffers(dev, s.pool, 1)
		if err != nil {
			return err
		}
		cb := cbs[0]
		*s.dst = cb
		dev.SetDebugName(vk.DebugReportObjectTypeCommandBuffer, handleID(cb.Handle), s.name)
		c.tracker.Track(gen, s.name, func() { cb.Free(dev) })
	}
	return nil
}
