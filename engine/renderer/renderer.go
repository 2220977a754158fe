package renderer

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/forwardplus/engine/core"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
	"github.com/spaghettifunk/forwardplus/engine/renderer/vulkan"
)

// ShaderWatcher reports shader binaries that changed since the last poll.
type ShaderWatcher interface {
	Dirty() bool
	Close() error
}

// Renderer drives one backend through the frame protocol for a scene of a
// single model, its material and a set of point lights.
type Renderer struct {
	backend RendererBackend
	window  vulkan.Window
	events  *core.EventBus
	watcher ShaderWatcher

	model       *vulkan.Model
	material    *vulkan.Material
	transform   mgl32.Mat4
	lights      []vulkan.PointLight
	lightsDirty bool

	frames  uint64
	skipped uint64
}

// New wires the renderer to the event bus: resize events reach the backend
// and shader change events invalidate its pipelines.
func New(backend RendererBackend, window vulkan.Window, events *core.EventBus) *Renderer {
	r := &Renderer{
		backend:   backend,
		window:    window,
		events:    events,
		transform: mgl32.Ident4(),
	}
	if events != nil {
		events.Register(core.EVENT_CODE_RESIZED, r, r.onResized)
		events.Register(core.EVENT_CODE_SHADER_CHANGED, r, r.onShaderChanged)
	}
	return r
}

func (r *Renderer) onResized(_ core.SystemEventCode, _ interface{}, data core.EventContext) bool {
	r.backend.Resized(data.Width, data.Height)
	// other listeners still want the new size
	return false
}

func (r *Renderer) onShaderChanged(_ core.SystemEventCode, _ interface{}, data core.EventContext) bool {
	core.LogInfo("Shaders changed (%s), reloading pipelines.", data.Path)
	r.backend.Invalidate()
	return true
}

// WatchShaders polls w once per frame. The renderer closes it on Shutdown.
func (r *Renderer) WatchShaders(w ShaderWatcher) {
	r.watcher = w
}

// LoadModel replaces the drawn model.
func (r *Renderer) LoadModel(name string, vertices []fmath.Vertex, indices []uint32) error {
	m, err := r.backend.CreateModel(name, vertices, indices)
	if err != nil {
		return err
	}
	if r.model != nil {
		r.backend.DestroyModel(r.model)
	}
	r.model = m
	return nil
}

// LoadMaterial replaces the bound material. Either path may be empty.
func (r *Renderer) LoadMaterial(albedoPath, normalPath, name string) error {
	m, err := r.backend.CreateMaterial(albedoPath, normalPath, name)
	if err != nil {
		return err
	}
	if r.material != nil {
		r.backend.DestroyMaterial(r.material)
	}
	r.material = m
	return nil
}

func (r *Renderer) SetTransform(m mgl32.Mat4) {
	r.transform = m
}

// SetLights stages lights for the next frame. They are copied.
func (r *Renderer) SetLights(lights []vulkan.PointLight) error {
	if len(lights) > vulkan.MaxPointLightCount {
		return core.Errorf("%d point lights exceed the maximum of %d", len(lights), vulkan.MaxPointLightCount)
	}
	r.lights = append(r.lights[:0], lights...)
	r.lightsDirty = true
	return nil
}

// Frames reports drawn and skipped frames.
func (r *Renderer) Frames() (drawn, skipped uint64) {
	return r.frames, r.skipped
}

// DrawFrame renders one frame seen from camera. It returns false when the
// frame was skipped, either because the swapchain had to be rebuilt or the
// window has no area.
func (r *Renderer) DrawFrame(camera fmath.CameraState) (bool, error) {
	if r.watcher != nil && r.watcher.Dirty() {
		if r.events == nil || !r.events.Fire(core.EVENT_CODE_SHADER_CHANGED, r, core.EventContext{}) {
			r.backend.Invalidate()
		}
	}
	if r.backend.NeedsRebuild() {
		if err := r.backend.RebuildSwapchain(r.window); err != nil {
			return false, err
		}
		if r.backend.NeedsRebuild() {
			r.skipped++
			return false, nil
		}
	}

	drawn, err := r.drawFrame(camera)
	if err != nil {
		return false, err
	}
	if drawn {
		r.frames++
	} else {
		r.skipped++
	}
	return drawn, nil
}

// drawFrame uploads the uniforms only once StartRender has waited on the
// render fence, so the previous frame's shaders are done reading them.
func (r *Renderer) drawFrame(camera fmath.CameraState) (bool, error) {
	ok, err := r.backend.StartRender()
	if err != nil || !ok {
		return false, err
	}

	ext := r.backend.Extent()
	if err := r.backend.SetCamera(vulkan.CameraFrom(camera, ext.Width, ext.Height)); err != nil {
		return false, err
	}
	if err := r.backend.SetObjectTransform(r.transform); err != nil {
		return false, err
	}
	if r.lightsDirty {
		if err := r.backend.SetPointLights(r.lights); err != nil {
			return false, err
		}
		r.lightsDirty = false
	}

	if err := r.backend.StartRenderRecord(); err != nil {
		return false, err
	}
	if r.material != nil {
		if err := r.backend.BindMaterial(r.material); err != nil {
			return false, err
		}
	}
	if r.model != nil {
		if err := r.backend.RecordDraw(r.model); err != nil {
			return false, err
		}
	}
	if err := r.backend.EndRenderRecord(); err != nil {
		return false, err
	}

	prepass, err := r.backend.SubmitPrepass()
	if err != nil {
		return false, err
	}
	culled, err := r.backend.ComputeLightCull(prepass)
	if err != nil {
		return false, err
	}
	geometry, err := r.backend.SubmitGeometry(culled)
	if err != nil {
		return false, err
	}
	overlay, err := r.backend.RenderOverlay(geometry)
	if err != nil {
		return false, err
	}
	return r.backend.PresentFrame(overlay)
}

// Shutdown frees the scene and then the backend.
func (r *Renderer) Shutdown() error {
	if r.events != nil {
		r.events.Unregister(core.EVENT_CODE_RESIZED, r)
		r.events.Unregister(core.EVENT_CODE_SHADER_CHANGED, r)
	}
	var err error
	if r.watcher != nil {
		err = r.watcher.Close()
		r.watcher = nil
	}
	if r.material != nil {
		r.backend.DestroyMaterial(r.material)
		r.material = nil
	}
	if r.model != nil {
		r.backend.DestroyModel(r.model)
		r.model = nil
	}
	r.backend.Destroy()
	return err
}
