package vulkan

import (
	"image"
	"image/color"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
)

// Window is what the renderer needs from the windowing layer.
type Window interface {
	InstanceProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	FramebufferSize() (width, height uint32)
}

// OverlayRect is one solid rectangle of the overlay, in framebuffer pixels.
type OverlayRect struct {
	Rect  image.Rectangle
	Color color.RGBA
}

// Overlay produces what is drawn over the finished frame. It is asked once
// per frame, inside the overlay render pass.
type Overlay interface {
	Rects(width, height uint32) []OverlayRect
}

type Config struct {
	ApplicationName string
	Validation      bool
	PreferMailbox   bool
	DebugNames      bool
	DebugView       int32

	Shaders  ShaderSource
	Textures TextureSource
}

// Context owns every GPU object of the renderer. The Device part is fixed
// for the Context's lifetime; the SwapchainResources are replaced as a whole
// by RebuildSwapchain.
type Context struct {
	cfg      Config
	dev      *Device
	shaders  ShaderSource
	textures TextureSource
	overlay  Overlay

	instance    vk.Instance
	surface     vk.Surface
	debugReport vk.DebugReportCallback

	tracker *ResourceTracker
	layouts descriptorLayouts
	pool    vk.DescriptorPool
	sets    contextSets
	sampler vk.Sampler

	objectUBO *UBO[mgl32.Mat4]
	cameraUBO *UBO[Camera]
	lightsUBO *UBO[pointLightData]

	sync *frameSync
	sc   *SwapchainResources

	imageIndex uint32
	frame      uint64
	acquired   bool
	recording  bool
	// set when acquire or present reports the swapchain out of date
	stale bool

	// framebuffer size generation, bumped by Resized
	sizeGeneration     uint64
	sizeLastGeneration uint64

	build func(width, height uint32) (*SwapchainResources, error)
}

// NewContext brings up the instance, device and first swapchain. Any failure
// releases what was built and returns the error.
func NewContext(window Window, cfg Config, overlay Overlay) (*Context, error) {
	if cfg.Shaders == nil {
		return nil, core.Errorf("renderer config has no shader source")
	}
	c := &Context{
		cfg:      cfg,
		shaders:  cfg.Shaders,
		textures: cfg.Textures,
		overlay:  overlay,
		tracker:  NewResourceTracker(),
	}
	c.build = c.buildSwapchainResources
	if err := c.bootstrap(window); err != nil {
		c.Destroy()
		return nil, err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return c, nil
}

func (c *Context) bootstrap(window Window) error {
	var err error
	if err = InitLoader(window.InstanceProcAddr()); err != nil {
		return err
	}
	if c.instance, err = createInstance(c.cfg.ApplicationName, window.RequiredInstanceExtensions(), c.cfg.Validation); err != nil {
		return err
	}
	if c.cfg.Validation {
		if c.debugReport, err = createDebugReport(c.instance); err != nil {
			return err
		}
	}
	core.LogDebug("Creating Vulkan surface...")
	if c.surface, err = window.CreateSurface(c.instance); err != nil {
		return core.Wrapf(err, "vulkan surface creation failed")
	}
	if c.dev, err = newDevice(c.instance, c.surface, c.cfg.Validation, c.cfg.DebugNames); err != nil {
		return err
	}
	if err = c.createDescriptors(); err != nil {
		return err
	}
	if c.sync, err = newFrameSync(c.dev); err != nil {
		return err
	}

	width, height := window.FramebufferSize()
	if c.sc, err = c.build(width, height); err != nil {
		return err
	}
	return nil
}

// createDescriptors builds layouts, uniform buffers, the sampler, the pool
// and the context sets, then writes the bindings that never change.
func (c *Context) createDescriptors() error {
	dev := c.dev
	var err error
	if c.layouts, err = createDescriptorSetLayouts(dev); err != nil {
		return err
	}

	if c.objectUBO, err = NewUBO[mgl32.Mat4](dev, "Object Transform"); err != nil {
		return err
	}
	c.objectUBO.Data = mgl32.Ident4()
	if err = c.objectUBO.Update(dev); err != nil {
		return err
	}
	if c.cameraUBO, err = NewUBO[Camera](dev, "Camera"); err != nil {
		return err
	}
	if c.lightsUBO, err = NewUBOSized[pointLightData](dev, "Point Lights", vk.DeviceSize(PointLightBufferSize)); err != nil {
		return err
	}

	if c.sampler, err = createSampler(dev); err != nil {
		return err
	}
	if c.pool, err = createDescriptorPool(dev); err != nil {
		return err
	}

	sets := []struct {
		dst   *vk.DescriptorSet
		set   uint32
		label string
	}{
		{&c.sets.object, SetObject, "Object"},
		{&c.sets.camera, SetCamera, "Camera"},
		{&c.sets.lightCull, SetLightCull, "Light Culling"},
		{&c.sets.inter, SetInter, "Intermediate"},
	}
	for _, s := range sets {
		if *s.dst, err = allocateDescriptorSet(dev, c.pool, c.layouts[s.set], s.label); err != nil {
			return err
		}
	}

	dev.drv.UpdateDescriptorSets([]vk.WriteDescriptorSet{
		bufferWrite(c.sets.object, 0, vk.DescriptorTypeUniformBuffer, c.objectUBO.Handle(), c.objectUBO.Size()),
		bufferWrite(c.sets.camera, 0, vk.DescriptorTypeUniformBuffer, c.cameraUBO.Handle(), c.cameraUBO.Size()),
	})
	return nil
}

// Device exposes the immutable device bundle.
func (c *Context) Device() *Device { return c.dev }

// Swapchain is the current generation of swapchain resources.
func (c *Context) Swapchain() *SwapchainResources { return c.sc }

// Frame counts presented frames.
func (c *Context) Frame() uint64 { return c.frame }

// Resized records a framebuffer size change. The next NeedsRebuild reports
// true until RebuildSwapchain succeeds.
func (c *Context) Resized(width, height uint32) {
	c.sizeGeneration++
	core.LogDebug("Vulkan renderer resized: w/h/gen: %d/%d/%d", width, height, c.sizeGeneration)
}

func (c *Context) NeedsRebuild() bool {
	return c.sc == nil || c.stale || c.sizeGeneration != c.sizeLastGeneration
}

// RebuildSwapchain replaces the swapchain resources for the window's current
// framebuffer size. A zero sized (minimised) window leaves the old resources
// in place and reports nothing; the caller retries later.
func (c *Context) RebuildSwapchain(window Window) error {
	width, height := window.FramebufferSize()
	if width == 0 || height == 0 {
		core.LogDebug("Swapchain rebuild skipped for a %dx%d framebuffer.", width, height)
		return nil
	}
	core.LogDebug("Rebuilding swapchain...")

	if err := c.dev.WaitIdle(); err != nil {
		return err
	}
	if c.sc != nil {
		c.tracker.ReleaseGeneration(c.sc.Generation)
		c.sc = nil
	}
	if err := c.dev.WaitIdle(); err != nil {
		return err
	}

	sc, err := c.build(width, height)
	if err != nil {
		return err
	}
	c.sc = sc
	c.acquired, c.recording, c.stale = false, false, false
	c.sizeLastGeneration = c.sizeGeneration
	return nil
}

// Invalidate forces the next NeedsRebuild to report true. Pipelines are
// part of the swapchain resources, so this also reloads the shaders.
func (c *Context) Invalidate() {
	c.stale = true
}

// CreateModel uploads a single mesh model to device local memory.
func (c *Context) CreateModel(name string, vertices []fmath.Vertex, indices []uint32) (*Model, error) {
	return NewModel(c.dev, name, vertices, indices)
}

// DestroyModel idles the device before freeing the model's buffers.
func (c *Context) DestroyModel(m *Model) {
	if err := c.dev.WaitIdle(); err != nil {
		core.LogWarn("device did not idle before freeing model: %v", err)
	}
	m.Destroy(c.dev)
}

func (c *Context) DestroyMaterial(m *Material) {
	if err := c.dev.WaitIdle(); err != nil {
		core.LogWarn("device did not idle before freeing material: %v", err)
	}
	m.Destroy(c)
}

// SetCamera uploads the camera block. Build it with CameraFrom and Extent.
func (c *Context) SetCamera(cam Camera) error {
	c.cameraUBO.Data = cam
	return c.cameraUBO.Update(c.dev)
}

// Extent is the current swapchain extent, zero without a swapchain.
func (c *Context) Extent() vk.Extent2D {
	if c.sc == nil {
		return vk.Extent2D{}
	}
	return c.sc.Extent
}

// SetPointLights replaces the light array. It must run before
// ComputeLightCull of the frame that should see the lights.
func (c *Context) SetPointLights(lights []PointLight) error {
	if err := c.lightsUBO.Data.set(lights); err != nil {
		return err
	}
	return c.lightsUBO.Update(c.dev)
}

// SetObjectTransform uploads the model matrix shared by every draw.
func (c *Context) SetObjectTransform(m mgl32.Mat4) error {
	c.objectUBO.Data = m
	return c.objectUBO.Update(c.dev)
}

// Destroy idles the device and releases everything in reverse creation
// order. It is safe on a partially built Context.
func (c *Context) Destroy() {
	if c.dev != nil && c.dev.Handle != nil {
		if err := c.dev.WaitIdle(); err != nil {
			core.LogWarn("device did not idle before shutdown: %v", err)
		}
		if c.sc != nil {
			c.tracker.ReleaseGeneration(c.sc.Generation)
			c.sc = nil
		}
		if c.sync != nil {
			c.sync.destroy(c.dev)
			c.sync = nil
		}
		if c.pool != nil {
			vk.DestroyDescriptorPool(c.dev.Handle, c.pool, nil)
			c.pool = nil
			c.sets = contextSets{}
		}
		if c.sampler != nil {
			vk.DestroySampler(c.dev.Handle, c.sampler, nil)
			c.sampler = nil
		}
		c.lightsUBO.Destroy(c.dev)
		c.cameraUBO.Destroy(c.dev)
		c.objectUBO.Destroy(c.dev)
		c.layouts.destroy(c.dev)

		core.LogDebug("Destroying Vulkan device...")
		c.dev.Destroy()
	}
	if c.surface != nil {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(c.instance, c.surface, nil)
		c.surface = nil
	}
	if c.debugReport != nil {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(c.instance, c.debugReport, nil)
		c.debugReport = nil
	}
	if c.instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(c.instance, nil)
		c.instance = nil
	}
}
