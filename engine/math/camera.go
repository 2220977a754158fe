package math

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	CameraFOVDegrees float32 = 45.0
	CameraNear       float32 = 0.5
	CameraFar        float32 = 100.0
)

// CameraState is the scene-side camera the renderer consumes once per frame.
// Velocities are in world units (or radians) per second.
type CameraState struct {
	Position        mgl32.Vec3
	LinearVelocity  mgl32.Vec3
	AngularVelocity mgl32.Vec3
	Rotation        mgl32.Quat
}

func NewCameraState(position mgl32.Vec3) CameraState {
	return CameraState{
		Position: position,
		Rotation: mgl32.QuatIdent(),
	}
}

// Integrate advances the camera by dt seconds. Linear velocity is given in
// camera space, angular velocity as (pitch, yaw, roll) rates.
func (c *CameraState) Integrate(dt float32) {
	if c.Rotation == (mgl32.Quat{}) {
		c.Rotation = mgl32.QuatIdent()
	}
	if ang := c.AngularVelocity.Mul(dt); ang.Len() > 0 {
		pitch := mgl32.QuatRotate(ang.X(), mgl32.Vec3{1, 0, 0})
		yaw := mgl32.QuatRotate(ang.Y(), mgl32.Vec3{0, 1, 0})
		roll := mgl32.QuatRotate(ang.Z(), mgl32.Vec3{0, 0, 1})
		// yaw about world up, pitch and roll about the local axes
		c.Rotation = yaw.Mul(c.Rotation).Mul(pitch).Mul(roll).Normalize()
	}
	if c.LinearVelocity.Len() > 0 {
		c.Position = c.Position.Add(c.Rotation.Rotate(c.LinearVelocity.Mul(dt)))
	}
}

// View is transpose(rotation) * translate(-position).
func (c CameraState) View() mgl32.Mat4 {
	rot := c.Rotation
	if rot == (mgl32.Quat{}) {
		rot = mgl32.QuatIdent()
	}
	return rot.Mat4().Transpose().Mul4(mgl32.Translate3D(-c.Position.X(), -c.Position.Y(), -c.Position.Z()))
}

// Projection returns a perspective matrix for Vulkan clip space: Y points
// down and depth runs from 0 at the near plane to 1 at the far plane.
func Projection(aspect float32) mgl32.Mat4 {
	if aspect <= 0 || math32.IsNaN(aspect) || math32.IsInf(aspect, 0) {
		aspect = 1
	}
	proj := mgl32.Perspective(mgl32.DegToRad(CameraFOVDegrees), aspect, CameraNear, CameraFar)
	proj[5] *= -1
	proj[10] = CameraFar / (CameraNear - CameraFar)
	proj[14] = CameraNear * CameraFar / (CameraNear - CameraFar)
	return proj
}
