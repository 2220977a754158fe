package renderer

import (
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
	"github.com/spaghettifunk/forwardplus/engine/renderer/vulkan"
)

// RendererBackend is the frame protocol and resource surface the frontend
// drives. Each submit returns the semaphore the next stage waits on.
type RendererBackend interface {
	StartRender() (bool, error)
	StartRenderRecord() error
	BindMaterial(m *vulkan.Material) error
	RecordDraw(model *vulkan.Model) error
	EndRenderRecord() error

	SubmitPrepass(waits ...vk.Semaphore) (vk.Semaphore, error)
	ComputeLightCull(waits ...vk.Semaphore) (vk.Semaphore, error)
	SubmitGeometry(waits ...vk.Semaphore) (vk.Semaphore, error)
	RenderOverlay(waits ...vk.Semaphore) (vk.Semaphore, error)
	PresentFrame(wait vk.Semaphore) (bool, error)

	SetCamera(cam vulkan.Camera) error
	SetPointLights(lights []vulkan.PointLight) error
	SetObjectTransform(m mgl32.Mat4) error
	Extent() vk.Extent2D

	Resized(width, height uint32)
	Invalidate()
	NeedsRebuild() bool
	RebuildSwapchain(window vulkan.Window) error

	CreateModel(name string, vertices []fmath.Vertex, indices []uint32) (*vulkan.Model, error)
	DestroyModel(m *vulkan.Model)
	CreateMaterial(albedoPath, normalPath, debugName string) (*vulkan.Material, error)
	DestroyMaterial(m *vulkan.Material)

	Destroy()
}

var _ RendererBackend = (*vulkan.Context)(nil)
