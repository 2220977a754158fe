package components

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/forwardplus/engine/core"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
)

// KeyState is the part of the input system the controller reads.
type KeyState interface {
	IsKeyDown(key core.KeyCode) bool
}

/** @brief The name of the default camera. */
const DEFAULT_CAMERA_NAME string = "default"

// CameraController turns held keys into camera velocities.
//
//	W/S    forward/back     A/D  left/right   SPACE  up
//	arrows pitch and yaw    Q/E  roll         SHIFT  move faster
type CameraController struct {
	Name   string
	Camera fmath.CameraState
	// world units per second
	MoveSpeed float32
	// radians per second
	TurnSpeed  float32
	BoostScale float32
}

func NewCameraController(position mgl32.Vec3) *CameraController {
	return &CameraController{
		Name:       DEFAULT_CAMERA_NAME,
		Camera:     fmath.NewCameraState(position),
		MoveSpeed:  5,
		TurnSpeed:  1.5,
		BoostScale: 4,
	}
}

// Reset puts the camera back at position with no rotation or motion.
func (c *CameraController) Reset(position mgl32.Vec3) {
	c.Camera = fmath.NewCameraState(position)
}

func axis(keys KeyState, negative, positive core.KeyCode) float32 {
	var v float32
	if keys.IsKeyDown(positive) {
		v++
	}
	if keys.IsKeyDown(negative) {
		v--
	}
	return v
}

// Update sets the velocities from keys and integrates dt seconds.
func (c *CameraController) Update(keys KeyState, dt float32) {
	// camera looks down -Z
	move := mgl32.Vec3{
		axis(keys, core.KEY_A, core.KEY_D),
		axis(keys, 0, core.KEY_SPACE),
		axis(keys, core.KEY_W, core.KEY_S),
	}
	if move.Len() > 0 {
		move = move.Normalize()
	}
	speed := c.MoveSpeed
	if keys.IsKeyDown(core.KEY_SHIFT) {
		speed *= c.BoostScale
	}
	c.Camera.LinearVelocity = move.Mul(speed)
	c.Camera.AngularVelocity = mgl32.Vec3{
		axis(keys, core.KEY_DOWN, core.KEY_UP),
		axis(keys, core.KEY_RIGHT, core.KEY_LEFT),
		axis(keys, core.KEY_E, core.KEY_Q),
	}.Mul(c.TurnSpeed)
	c.Camera.Integrate(dt)
}
