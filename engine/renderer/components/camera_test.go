package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/forwardplus/engine/core"
	"github.com/stretchr/testify/assert"
)

type keys map[core.KeyCode]bool

func (k keys) IsKeyDown(key core.KeyCode) bool { return k[key] }

func TestCameraControllerMoves(t *testing.T) {
	c := NewCameraController(mgl32.Vec3{0, 0, 5})
	assert.Equal(t, DEFAULT_CAMERA_NAME, c.Name)

	c.Update(keys{core.KEY_W: true}, 1)
	assert.InDeltaSlice(t, []float32{0, 0, 0}, c.Camera.Position[:], 1e-5)

	c.Update(keys{core.KEY_W: true, core.KEY_SHIFT: true}, 0.5)
	assert.InDeltaSlice(t, []float32{0, 0, -10}, c.Camera.Position[:], 1e-5)

	// opposite keys cancel
	c.Update(keys{core.KEY_A: true, core.KEY_D: true}, 1)
	assert.InDeltaSlice(t, []float32{0, 0, -10}, c.Camera.Position[:], 1e-5)
	assert.Zero(t, c.Camera.LinearVelocity.Len())

	// diagonal movement is not faster
	c.Update(keys{core.KEY_D: true, core.KEY_SPACE: true}, 0)
	assert.InDelta(t, c.MoveSpeed, c.Camera.LinearVelocity.Len(), 1e-5)
}

func TestCameraControllerTurns(t *testing.T) {
	c := NewCameraController(mgl32.Vec3{})
	c.TurnSpeed = mgl32.DegToRad(90)
	c.Update(keys{core.KEY_LEFT: true}, 1)
	assert.InDelta(t, c.TurnSpeed, c.Camera.AngularVelocity.Y(), 1e-6)

	// a quarter turn left points the camera down -X
	c.Update(keys{core.KEY_W: true}, 1)
	assert.InDeltaSlice(t, []float32{-5, 0, 0}, c.Camera.Position[:], 1e-4)

	c.Reset(mgl32.Vec3{1, 2, 3})
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, c.Camera.Position)
	assert.Equal(t, mgl32.QuatIdent(), c.Camera.Rotation)
}
