package testbed

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/forwardplus/engine/renderer/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrbitingLightsAreDeterministic(t *testing.T) {
	a := newOrbitingLights(50, 7)
	b := newOrbitingLights(50, 7)
	require.Len(t, a, 50)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, newOrbitingLights(50, 8))

	for _, o := range a {
		assert.GreaterOrEqual(t, o.size, float32(minLightSize))
		assert.LessOrEqual(t, o.size, float32(maxLightSize))
		assert.LessOrEqual(t, o.radius, float32(sceneRadius))
	}
}

func TestOrbitingLightPosition(t *testing.T) {
	o := orbitingLight{radius: 3, height: 2, speed: math32.Pi / 2, size: 1.5, intensity: mgl32.Vec3{1, 1, 1}}
	l := o.at(0)
	assert.InDeltaSlice(t, []float32{3, 2, 0}, l.Position[:], 1e-5)
	assert.Equal(t, float32(1.5), l.Radius)

	l = o.at(1)
	assert.InDeltaSlice(t, []float32{0, 2, 3}, l.Position[:], 1e-5)
}

func TestUpdateMovesLights(t *testing.T) {
	g := NewTestGame("")
	s := g.state()
	s.orbits = newOrbitingLights(4, lightSeed)
	s.lights = make([]vulkan.PointLight, 4)

	require.NoError(t, g.Update(0.5))
	first := append([]vulkan.PointLight(nil), s.lights...)
	for i, o := range s.orbits {
		assert.Equal(t, o.at(0.5), first[i])
	}

	require.NoError(t, g.Update(0.5))
	assert.NotEqual(t, first, s.lights)
	assert.Equal(t, float32(1), s.time)

	require.NoError(t, g.OnResize(800, 600))
	assert.Equal(t, [2]uint32{800, 600}, [2]uint32{s.width, s.height})
}
