package math

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// Vertex matches the vertex input layout of the depth and forward+ pipelines.
type Vertex struct {
	Position mgl32.Vec3
	Colour   mgl32.Vec3
	UV       mgl32.Vec2
	Normal   mgl32.Vec3
	Binormal mgl32.Vec3
}

// GenerateSmoothNormals accumulates face normals into every vertex of each
// triangle and renormalises after each contribution.
func GenerateSmoothNormals(vertices []Vertex, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)
		c := edge1.Cross(edge2)
		if c.Len() == 0 {
			// degenerate triangle
			continue
		}
		normal := c.Normalize()

		for _, idx := range [3]uint32{i0, i1, i2} {
			vertices[idx].Normal = vertices[idx].Normal.Add(normal).Normalize()
		}
	}
}

// Heightmap generates a width*width grid of vertices spaced by cell, with
// heights sampled from height(x, y). The grid lies in the XY plane and
// heights go along +Z.
func Heightmap(width int, cell float32, offset mgl32.Vec2, height func(x, y int) float32) ([]Vertex, []uint32) {
	if width < 2 {
		core.LogWarn("heightmap width %d too small, need at least 2", width)
		return nil, nil
	}
	vertices := make([]Vertex, 0, width*width)
	for y := 0; y < width; y++ {
		for x := 0; x < width; x++ {
			h := float32(0)
			if height != nil {
				h = height(x, y)
			}
			vertices = append(vertices, Vertex{
				Position: mgl32.Vec3{offset.X() + float32(x)*cell, offset.Y() + float32(y)*cell, h},
				Colour:   mgl32.Vec3{1, 1, 1},
				UV:       mgl32.Vec2{float32(x) / float32(width-1), float32(y) / float32(width-1)},
			})
		}
	}

	wm1 := uint32(width - 1)
	indices := make([]uint32, 0, wm1*wm1*6)
	for z := uint32(0); z < wm1; z++ {
		for x := uint32(0); x < wm1; x++ {
			vi := z*uint32(width) + x
			indices = append(indices,
				vi, vi+1, vi+wm1+1,
				vi+1, vi+wm1+2, vi+wm1+1,
			)
		}
	}
	GenerateSmoothNormals(vertices, indices)
	return vertices, indices
}

// WaveHeight is a cheap rolling-hills height function for demo terrain.
func WaveHeight(amplitude, frequency float32) func(x, y int) float32 {
	return func(x, y int) float32 {
		return amplitude * math32.Sin(float32(x)*frequency) * math32.Cos(float32(y)*frequency)
	}
}

// Cube returns a unit cube centred on the origin with per-face normals.
func Cube(size float32, colour mgl32.Vec3) ([]Vertex, []uint32) {
	h := size / 2
	faces := []struct {
		normal  mgl32.Vec3
		corners [4]mgl32.Vec3
	}{
		{mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h}}},
		{mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{h, -h, -h}, {-h, -h, -h}, {-h, h, -h}, {h, h, -h}}},
		{mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{h, -h, h}, {h, -h, -h}, {h, h, -h}, {h, h, h}}},
		{mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{-h, -h, -h}, {-h, -h, h}, {-h, h, h}, {-h, h, -h}}},
		{mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{-h, h, h}, {h, h, h}, {h, h, -h}, {-h, h, -h}}},
		{mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{-h, -h, -h}, {h, -h, -h}, {h, -h, h}, {-h, -h, h}}},
	}
	uvs := [4]mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

	vertices := make([]Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range faces {
		base := uint32(len(vertices))
		for i, c := range f.corners {
			vertices = append(vertices, Vertex{Position: c, Colour: colour, UV: uvs[i], Normal: f.normal})
		}
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}
	return vertices, indices
}
