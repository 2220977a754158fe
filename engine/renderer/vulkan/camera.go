package vulkan

import (
	"github.com/go-gl/mathgl/mgl32"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
)

// Camera is the camera uniform block.
type Camera struct {
	View     mgl32.Mat4
	Proj     mgl32.Mat4
	ViewProj mgl32.Mat4
	Position mgl32.Vec3
	_        float32
}

// CameraFrom derives the uniform block from the scene camera and the
// swapchain aspect ratio.
func CameraFrom(state fmath.CameraState, extentWidth, extentHeight uint32) Camera {
	aspect := float32(1)
	if extentHeight > 0 {
		aspect = float32(extentWidth) / float32(extentHeight)
	}
	view := state.View()
	proj := fmath.Projection(aspect)
	return Camera{
		View:     view,
		Proj:     proj,
		ViewProj: proj.Mul4(view),
		Position: state.Position,
	}
}
