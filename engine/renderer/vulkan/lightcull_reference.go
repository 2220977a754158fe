package vulkan

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// DepthTarget is a row-major depth buffer in Vulkan NDC depth, 0 at the near
// plane and 1 at the far plane.
type DepthTarget struct {
	Width, Height uint32
	Depth         []float32
}

// tileWords is the number of uint32 words in one tile record.
const tileWords = TileBufferSize / 4

// CullLightsReference runs the tile culling algorithm on the CPU and returns
// the light visibility buffer contents: per tile a count followed by
// MaxPointLightsPerTile indices. A light is kept for a tile when its sphere
// touches the view space box spanned by the tile and its depth range.
func CullLightsReference(depth DepthTarget, cam Camera, lights []PointLight) ([]uint32, TileCount, error) {
	if depth.Width == 0 || depth.Height == 0 || len(depth.Depth) != int(depth.Width*depth.Height) {
		return nil, TileCount{}, core.Errorf("depth target %dx%d holds %d samples", depth.Width, depth.Height, len(depth.Depth))
	}
	if len(lights) > MaxPointLightCount {
		return nil, TileCount{}, core.Errorf("%d point lights exceed the maximum of %d", len(lights), MaxPointLightCount)
	}

	tiles := TileCountFor(depth.Width, depth.Height)
	out := make([]uint32, tiles.Total()*tileWords)
	invProj := cam.Proj.Inv()

	viewLights := make([]mgl32.Vec3, len(lights))
	for i, l := range lights {
		viewLights[i] = cam.View.Mul4x1(l.Position.Vec4(1)).Vec3()
	}

	for ty := uint32(0); ty < tiles.Y; ty++ {
		for tx := uint32(0); tx < tiles.X; tx++ {
			x0, y0 := tx*TileSize, ty*TileSize
			x1, y1 := min(x0+TileSize, depth.Width), min(y0+TileSize, depth.Height)

			minDepth, maxDepth := float32(1), float32(0)
			for y := y0; y < y1; y++ {
				for _, d := range depth.Depth[y*depth.Width+x0 : y*depth.Width+x1] {
					minDepth = math32.Min(minDepth, d)
					maxDepth = math32.Max(maxDepth, d)
				}
			}

			lo, hi := tileBounds(invProj, depth.Width, depth.Height, x0, y0, x1, y1, minDepth, maxDepth)
			record := out[(ty*tiles.X+tx)*tileWords:][:tileWords]
			var count uint32
			for i, p := range viewLights {
				if count == MaxPointLightsPerTile {
					break
				}
				if sphereTouchesBox(p, lights[i].Radius, lo, hi) {
					record[1+count] = uint32(i)
					count++
				}
			}
			record[0] = count
		}
	}
	return out, tiles, nil
}

// TileLights returns the light indices recorded for tile (x, y).
func TileLights(buf []uint32, tiles TileCount, x, y uint32) []uint32 {
	record := buf[(y*tiles.X+x)*tileWords:][:tileWords]
	return record[1 : 1+record[0]]
}

// tileBounds unprojects the eight corners of a tile's depth slice and
// returns their view space bounding box.
func tileBounds(invProj mgl32.Mat4, width, height, x0, y0, x1, y1 uint32, minDepth, maxDepth float32) (mgl32.Vec3, mgl32.Vec3) {
	ndcX := func(px uint32) float32 { return float32(px)/float32(width)*2 - 1 }
	ndcY := func(py uint32) float32 { return float32(py)/float32(height)*2 - 1 }

	lo := mgl32.Vec3{math32.Inf(1), math32.Inf(1), math32.Inf(1)}
	hi := mgl32.Vec3{math32.Inf(-1), math32.Inf(-1), math32.Inf(-1)}
	for _, x := range [2]float32{ndcX(x0), ndcX(x1)} {
		for _, y := range [2]float32{ndcY(y0), ndcY(y1)} {
			for _, z := range [2]float32{minDepth, maxDepth} {
				v := invProj.Mul4x1(mgl32.Vec4{x, y, z, 1})
				p := v.Vec3().Mul(1 / v.W())
				for k := 0; k < 3; k++ {
					lo[k] = math32.Min(lo[k], p[k])
					hi[k] = math32.Max(hi[k], p[k])
				}
			}
		}
	}
	return lo, hi
}

func sphereTouchesBox(center mgl32.Vec3, radius float32, lo, hi mgl32.Vec3) bool {
	var dist2 float32
	for k := 0; k < 3; k++ {
		c := math32.Max(lo[k], math32.Min(center[k], hi[k]))
		d := center[k] - c
		dist2 += d * d
	}
	return dist2 <= radius*radius
}
