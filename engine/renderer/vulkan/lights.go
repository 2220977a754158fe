package vulkan

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// PointLight matches the std140 layout of the shader light record.
type PointLight struct {
	Position  mgl32.Vec3
	Radius    float32
	Intensity mgl32.Vec3
	_         float32
}

// pointLightData is the light uniform block: a count padded to 16 bytes,
// then the fixed size light array.
type pointLightData struct {
	Count  uint32
	_      [3]uint32
	Lights [MaxPointLightCount]PointLight
}

// set copies lights into the block and clears the tail of the array.
func (d *pointLightData) set(lights []PointLight) error {
	if len(lights) > MaxPointLightCount {
		return core.Errorf("%d point lights exceed the maximum of %d", len(lights), MaxPointLightCount)
	}
	n := copy(d.Lights[:], lights)
	clear(d.Lights[n:])
	d.Count = uint32(n)
	return nil
}
