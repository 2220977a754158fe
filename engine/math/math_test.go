package math

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampAndDivCeil(t *testing.T) {
	assert.Equal(t, 3, Clamp(5, 1, 3))
	assert.Equal(t, uint32(1), Clamp(uint32(0), 1, 3))
	assert.Equal(t, float32(2.5), Clamp(float32(2.5), 1, 3))

	assert.Equal(t, uint32(120), DivCeil(uint32(1920), 16))
	assert.Equal(t, uint32(68), DivCeil(uint32(1080), 16))
	assert.Equal(t, uint32(1), DivCeil(uint32(1), 16))
	assert.Equal(t, uint32(0), DivCeil(uint32(0), 16))
}

func TestCameraViewIdentityAtOrigin(t *testing.T) {
	c := NewCameraState(mgl32.Vec3{})
	want := mgl32.Ident4()
	got := c.View()
	assert.InDeltaSlice(t, want[:], got[:], 1e-6)
}

func TestCameraViewMovesWorldOpposite(t *testing.T) {
	c := NewCameraState(mgl32.Vec3{1, 2, 3})
	p := c.View().Mul4x1(mgl32.Vec4{1, 2, 3, 1})
	assert.InDeltaSlice(t, []float32{0, 0, 0, 1}, p[:], 1e-5)
}

func TestCameraIntegrate(t *testing.T) {
	c := NewCameraState(mgl32.Vec3{})
	c.LinearVelocity = mgl32.Vec3{0, 0, -2}
	c.Integrate(0.5)
	assert.InDeltaSlice(t, []float32{0, 0, -1}, c.Position[:], 1e-6)

	c.LinearVelocity = mgl32.Vec3{}
	c.AngularVelocity = mgl32.Vec3{0, mgl32.DegToRad(90), 0}
	c.Integrate(1)
	forward := c.Rotation.Rotate(mgl32.Vec3{0, 0, -1})
	// near zero components need an absolute tolerance
	assert.InDeltaSlice(t, []float32{-1, 0, 0}, forward[:], 1e-5, "forward=%v", forward)
}

func TestProjectionFlipsY(t *testing.T) {
	p := Projection(16.0 / 9.0)
	ref := mgl32.Perspective(mgl32.DegToRad(45), 16.0/9.0, 0.5, 100)
	assert.Equal(t, -ref[5], p[5])
	assert.Equal(t, ref[0], p[0])

	// a degenerate aspect falls back to square
	assert.Equal(t, Projection(1), Projection(0))
}

func TestProjectionDepthZeroToOne(t *testing.T) {
	p := Projection(1)
	ndcDepth := func(z float32) float32 {
		clip := p.Mul4x1(mgl32.Vec4{0, 0, z, 1})
		return clip.Z() / clip.W()
	}
	assert.InDelta(t, 0, ndcDepth(-CameraNear), 1e-5)
	assert.InDelta(t, 1, ndcDepth(-CameraFar), 1e-5)
	assert.Less(t, ndcDepth(-2), ndcDepth(-20))
}

func TestTransformLocal(t *testing.T) {
	tr := TransformFromPosition(mgl32.Vec3{1, 0, 0})
	tr.SetScale(mgl32.Vec3{2, 2, 2})
	p := tr.Local().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDeltaSlice(t, []float32{3, 0, 0, 1}, p[:], 1e-5)

	child := NewTransform()
	child.Parent = tr
	child.Translate(mgl32.Vec3{0, 1, 0})
	q := child.World().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDeltaSlice(t, []float32{1, 2, 0, 1}, q[:], 1e-5)
}

func TestHeightmapFlatNormalsPointUp(t *testing.T) {
	verts, idx := Heightmap(4, 1, mgl32.Vec2{}, nil)
	require.Len(t, verts, 16)
	require.Len(t, idx, 3*3*6)
	for _, v := range verts {
		assert.InDeltaSlice(t, []float32{0, 0, 1}, v.Normal[:], 1e-5, "normal=%v", v.Normal)
	}
	for _, i := range idx {
		assert.Less(t, i, uint32(len(verts)))
	}

	none, noIdx := Heightmap(1, 1, mgl32.Vec2{}, nil)
	assert.Nil(t, none)
	assert.Nil(t, noIdx)
}

func TestCube(t *testing.T) {
	verts, idx := Cube(2, mgl32.Vec3{1, 0, 0})
	assert.Len(t, verts, 24)
	assert.Len(t, idx, 36)
	for _, v := range verts {
		assert.InDelta(t, 1, v.Normal.Len(), 1e-6)
		assert.InDelta(t, 1, mgl32.Abs(v.Position.Dot(v.Normal)), 1e-6)
	}
}
