package vulkan

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileCountFor(t *testing.T) {
	cases := []struct {
		w, h uint32
		want TileCount
	}{
		{1920, 1080, TileCount{X: 120, Y: 68}},
		{1280, 720, TileCount{X: 80, Y: 45}},
		{1, 1, TileCount{X: 1, Y: 1}},
		{16, 16, TileCount{X: 1, Y: 1}},
		{17, 16, TileCount{X: 2, Y: 1}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dx%d", tc.w, tc.h), func(t *testing.T) {
			assert.Equal(t, tc.want, TileCountFor(tc.w, tc.h))
		})
	}
}

func TestLightVisibilitySize(t *testing.T) {
	assert.Equal(t, uint32(4096), TileBufferSize)
	assert.Equal(t, vk.DeviceSize(4096*120*68), LightVisibilitySize(TileCountFor(1920, 1080)))
}

func TestRecordLightCull(t *testing.T) {
	dev, drv, _ := newFakeDevice()
	cbs, err := allocateCommandBuffers(dev, dev.ComputePool, 1)
	require.NoError(t, err)
	cmd := cbs[0]

	tiles := TileCountFor(1920, 1080)
	vis := &Buffer{Handle: fakeHandle[vk.Buffer](), Size: LightVisibilitySize(tiles)}
	lights := fakeHandle[vk.Buffer]()
	pipe := fakePipeline(vk.PipelineBindPointCompute)
	require.NoError(t, recordLightCull(dev, cmd, lightCullRecording{
		Pipeline:        pipe,
		Sets:            []vk.DescriptorSet{fakeHandle[vk.DescriptorSet](), fakeHandle[vk.DescriptorSet](), fakeHandle[vk.DescriptorSet]()},
		LightVisibility: vis,
		Lights:          lights,
		LightsSize:      vk.DeviceSize(PointLightBufferSize),
		Extent:          vk.Extent2D{Width: 1920, Height: 1080},
		Tiles:           tiles,
		DebugView:       2,
	}))

	compute := vk.PipelineBindPointCompute
	assert.Equal(t, []string{
		"begin",
		"bufferBarrier n=1",
		"bufferBarrier n=1",
		fmt.Sprintf("bindSets %d first=0 n=3", compute),
		fmt.Sprintf("push stages=%d", vk.ShaderStageComputeBit),
		fmt.Sprintf("bindPipeline %d", compute),
		"dispatch 120 68 1",
		"end",
	}, drv.ops[cmd.Handle])
	assert.Equal(t, []vk.CommandBufferUsageFlags{vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)},
		drv.beginFlags[cmd.Handle])
	assert.Equal(t, COMMAND_BUFFER_STATE_RECORDING_ENDED, cmd.State)

	require.Len(t, drv.bufferBarriers, 2)
	visBarrier, lightsBarrier := drv.bufferBarriers[0], drv.bufferBarriers[1]
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), visBarrier.src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), visBarrier.dst)
	assert.Equal(t, vis.Handle, visBarrier.barriers[0].Buffer)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderWriteBit), visBarrier.barriers[0].DstAccessMask)

	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), lightsBarrier.src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), lightsBarrier.dst)
	assert.Equal(t, lights, lightsBarrier.barriers[0].Buffer)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), lightsBarrier.barriers[0].SrcAccessMask)
	assert.Equal(t, vk.AccessFlags(vk.AccessUniformReadBit), lightsBarrier.barriers[0].DstAccessMask)

	pc := drv.pushes[cmd.Handle][0]
	assert.Equal(t, uint32(1920), binary.LittleEndian.Uint32(pc[0:]))
	assert.Equal(t, uint32(1080), binary.LittleEndian.Uint32(pc[4:]))
	assert.Equal(t, uint32(120), binary.LittleEndian.Uint32(pc[8:]))
	assert.Equal(t, uint32(68), binary.LittleEndian.Uint32(pc[12:]))
	assert.Equal(t, int32(2), int32(binary.LittleEndian.Uint32(pc[16:])))
}

// depthAt is the NDC depth of a view space point on the -Z axis.
func depthAt(proj mgl32.Mat4, z float32) float32 {
	clip := proj.Mul4x1(mgl32.Vec4{0, 0, z, 1})
	return clip.Z() / clip.W()
}

func flatDepth(w, h uint32, d float32) DepthTarget {
	depth := make([]float32, w*h)
	for i := range depth {
		depth[i] = d
	}
	return DepthTarget{Width: w, Height: h, Depth: depth}
}

func TestCullLightsReference(t *testing.T) {
	cam := Camera{View: mgl32.Ident4(), Proj: fmath.Projection(1)}
	target := flatDepth(64, 64, depthAt(cam.Proj, -5))

	lights := []PointLight{
		{Position: mgl32.Vec3{0, 0, -5}, Radius: 1},
		{Position: mgl32.Vec3{0, 0, -20}, Radius: 1},
	}
	buf, tiles, err := CullLightsReference(target, cam, lights)
	require.NoError(t, err)
	require.Equal(t, TileCount{X: 4, Y: 4}, tiles)
	require.Len(t, buf, int(tiles.Total()*tileWords))

	assert.Equal(t, []uint32{0}, TileLights(buf, tiles, 1, 1))
	assert.Equal(t, []uint32{0}, TileLights(buf, tiles, 2, 2))
	assert.Empty(t, TileLights(buf, tiles, 0, 0))
	assert.Empty(t, TileLights(buf, tiles, 3, 3))

	for y := uint32(0); y < tiles.Y; y++ {
		for x := uint32(0); x < tiles.X; x++ {
			assert.NotContains(t, TileLights(buf, tiles, x, y), uint32(1), "occluded light in tile %d,%d", x, y)
		}
	}
}

func TestCullLightsReferenceDepthRange(t *testing.T) {
	cam := Camera{View: mgl32.Ident4(), Proj: fmath.Projection(1)}
	near, far := depthAt(cam.Proj, -5), depthAt(cam.Proj, -10)

	split := flatDepth(16, 16, near)
	for i := 8 * 16; i < 16*16; i++ {
		split.Depth[i] = far
	}
	lights := []PointLight{
		{Position: mgl32.Vec3{0, 0, -7.5}, Radius: 1},
		{Position: mgl32.Vec3{0, 0, -12}, Radius: 1},
	}

	buf, tiles, err := CullLightsReference(split, cam, lights)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, TileLights(buf, tiles, 0, 0))

	buf, tiles, err = CullLightsReference(flatDepth(16, 16, near), cam, lights)
	require.NoError(t, err)
	assert.Empty(t, TileLights(buf, tiles, 0, 0))
}

func TestCullLightsReferenceInput(t *testing.T) {
	cam := Camera{View: mgl32.Ident4(), Proj: fmath.Projection(1)}
	_, _, err := CullLightsReference(DepthTarget{Width: 4, Height: 4, Depth: make([]float32, 3)}, cam, nil)
	assert.Error(t, err)
	_, _, err = CullLightsReference(DepthTarget{}, cam, nil)
	assert.Error(t, err)
	_, _, err = CullLightsReference(flatDepth(4, 4, 0.5), cam, make([]PointLight, MaxPointLightCount+1))
	assert.Error(t, err)
}

func TestCullLightsReferenceTileCapacity(t *testing.T) {
	cam := Camera{View: mgl32.Ident4(), Proj: fmath.Projection(1)}
	lights := make([]PointLight, MaxPointLightsPerTile+10)
	for i := range lights {
		lights[i] = PointLight{Position: mgl32.Vec3{0, 0, -5}, Radius: 1}
	}
	buf, tiles, err := CullLightsReference(flatDepth(16, 16, depthAt(cam.Proj, -5)), cam, lights)
	require.NoError(t, err)
	got := TileLights(buf, tiles, 0, 0)
	assert.Len(t, got, int(MaxPointLightsPerTile))
	assert.Equal(t, uint32(0), got[0])
}
