package vulkan

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(bit vk.PipelineStageFlagBits) vk.PipelineStageFlags { return vk.PipelineStageFlags(bit) }

func fmtOp(format string, point vk.PipelineBindPoint) string { return fmt.Sprintf(format, point) }

// runFrame drives one frame through the whole protocol.
func runFrame(t *testing.T, c *Context, model *Model) bool {
	t.Helper()
	ok, err := c.StartRender()
	require.NoError(t, err)
	if !ok {
		return false
	}
	require.NoError(t, c.StartRenderRecord())
	if model != nil {
		require.NoError(t, c.RecordDraw(model))
	}
	require.NoError(t, c.EndRenderRecord())

	prepass, err := c.SubmitPrepass()
	require.NoError(t, err)
	culled, err := c.ComputeLightCull(prepass)
	require.NoError(t, err)
	rendered, err := c.SubmitGeometry(culled)
	require.NoError(t, err)
	overlay, err := c.RenderOverlay(rendered)
	require.NoError(t, err)
	presented, err := c.PresentFrame(overlay)
	require.NoError(t, err)
	return presented
}

func TestFrameSemaphoreGraph(t *testing.T) {
	c, drv, _ := newFakeContext()
	drv.nextImage = 1
	drv.submits = nil

	require.True(t, runFrame(t, c, nil))
	require.Len(t, drv.submits, 4)
	dev, fs, sc := c.dev, c.sync, c.sc

	prepass := drv.submits[0]
	assert.Equal(t, dev.GraphicsQueue, prepass.queue)
	assert.Equal(t, []vk.CommandBuffer{sc.PrepassCmd.Handle}, prepass.CommandBuffers)
	assert.Empty(t, prepass.Waits)
	assert.Equal(t, []vk.Semaphore{fs.prepassDone}, prepass.Signals)
	assert.Nil(t, prepass.Fence)

	cull := drv.submits[1]
	assert.Equal(t, dev.ComputeQueue, cull.queue)
	assert.Equal(t, []vk.CommandBuffer{sc.LightCullCmd.Handle}, cull.CommandBuffers)
	assert.Equal(t, []semaphoreWait{{fs.prepassDone, stage(vk.PipelineStageComputeShaderBit)}}, cull.Waits)
	assert.Equal(t, []vk.Semaphore{fs.lightCullDone}, cull.Signals)

	geometry := drv.submits[2]
	assert.Equal(t, dev.GraphicsQueue, geometry.queue)
	assert.Equal(t, []vk.CommandBuffer{sc.RenderCmds[1].Handle}, geometry.CommandBuffers)
	assert.Equal(t, []semaphoreWait{
		{fs.imageAvailable, stage(vk.PipelineStageColorAttachmentOutputBit)},
		{fs.lightCullDone, stage(vk.PipelineStageFragmentShaderBit)},
	}, geometry.Waits)
	assert.Equal(t, []vk.Semaphore{fs.renderDone}, geometry.Signals)
	assert.Nil(t, geometry.Fence)

	overlay := drv.submits[3]
	assert.Equal(t, dev.GraphicsQueue, overlay.queue)
	assert.Equal(t, []vk.CommandBuffer{sc.OverlayCmd.Handle}, overlay.CommandBuffers)
	assert.Equal(t, []semaphoreWait{{fs.renderDone, stage(vk.PipelineStageTopOfPipeBit)}}, overlay.Waits)
	assert.Equal(t, []vk.Semaphore{fs.overlayDone}, overlay.Signals)
	assert.Equal(t, fs.renderFence, overlay.Fence)

	assert.Equal(t, []vk.Semaphore{fs.overlayDone}, drv.presents)
	assert.Equal(t, uint64(1), c.Frame())
	assert.Equal(t, 1, drv.fenceWaits)
	assert.Equal(t, 1, drv.fenceResets)
}

func TestFrameRecording(t *testing.T) {
	c, drv, _ := newFakeContext()
	verts, idx := fmath.Cube(1, mgl32.Vec3{1, 1, 1})
	cube, err := NewModel(c.dev, "cube", verts, idx)
	require.NoError(t, err)
	second, err := NewMesh(c.dev, verts, idx[:6], "quad")
	require.NoError(t, err)
	cube.Meshes = append(cube.Meshes, second)

	material := &Material{Set: fakeHandle[vk.DescriptorSet]()}

	_, err = c.StartRender()
	require.NoError(t, err)
	require.NoError(t, c.StartRenderRecord())
	require.NoError(t, c.BindMaterial(material))
	require.NoError(t, c.RecordDraw(cube))
	require.NoError(t, c.EndRenderRecord())

	graphics := vk.PipelineBindPointGraphics
	render := c.sc.RenderCmds[0].Handle
	assert.Equal(t, []string{
		"reset", "begin",
		"beginPass 1280x720 clears=2",
		"push stages=16",
		fmtOp("bindPipeline %d", graphics),
		fmtOp("bindSets %d first=0 n=4", graphics),
		fmtOp("bindSets %d first=4 n=1", graphics),
		"bindVertex", "bindIndex", "drawIndexed 36",
		"bindVertex", "bindIndex", "drawIndexed 6",
		"endPass", "end",
	}, drv.ops[render])

	prepass := c.sc.PrepassCmd.Handle
	assert.Equal(t, []string{
		"reset", "begin",
		"beginPass 1280x720 clears=1",
		fmtOp("bindPipeline %d", graphics),
		fmtOp("bindSets %d first=0 n=2", graphics),
		"bindVertex", "bindIndex", "drawIndexed 36",
		"bindVertex", "bindIndex", "drawIndexed 6",
		"endPass", "end",
	}, drv.ops[prepass])

	pc := drv.pushes[render][0]
	require.Len(t, pc, pushConstantsSize)
	assert.Equal(t, uint32(1280), binary.LittleEndian.Uint32(pc[0:]))
	assert.Equal(t, uint32(720), binary.LittleEndian.Uint32(pc[4:]))
	assert.Equal(t, uint32(80), binary.LittleEndian.Uint32(pc[8:]))
	assert.Equal(t, uint32(45), binary.LittleEndian.Uint32(pc[12:]))

	for _, flags := range drv.beginFlags[render] {
		assert.Equal(t, vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit), flags)
	}
	cube.Destroy(c.dev)
}

func TestLightCullIsNotRecordedPerFrame(t *testing.T) {
	c, drv, _ := newFakeContext()
	cull := c.sc.LightCullCmd.Handle
	require.Len(t, drv.beginFlags[cull], 1)
	assert.Equal(t, vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit), drv.beginFlags[cull][0])
	recorded := append([]string(nil), drv.ops[cull]...)

	for i := 0; i < 3; i++ {
		drv.nextImage = uint32(i % fakeImageCount)
		require.True(t, runFrame(t, c, nil))
	}

	assert.Len(t, drv.beginFlags[cull], 1)
	assert.Equal(t, recorded, drv.ops[cull])
	n := 0
	for _, s := range drv.submits {
		if s.queue == c.dev.ComputeQueue {
			assert.Equal(t, []vk.CommandBuffer{cull}, s.CommandBuffers)
			n++
		}
	}
	assert.Equal(t, 3, n)
}

func TestSubmitWaitCounts(t *testing.T) {
	c, _, _ := newFakeContext()
	s := fakeHandle[vk.Semaphore]()

	_, err := c.SubmitPrepass(s)
	assert.True(t, errors.Is(err, core.ErrInvalidSubmission))
	_, err = c.SubmitGeometry()
	assert.True(t, errors.Is(err, core.ErrInvalidSubmission))
	_, err = c.SubmitGeometry(s, s)
	assert.True(t, errors.Is(err, core.ErrInvalidSubmission))
	_, err = c.RenderOverlay()
	assert.True(t, errors.Is(err, core.ErrInvalidSubmission))
	_, err = c.RenderOverlay(s, s)
	assert.True(t, errors.Is(err, core.ErrInvalidSubmission))
}

func TestRecordingOutOfOrder(t *testing.T) {
	c, _, _ := newFakeContext()
	assert.Error(t, c.StartRenderRecord())
	assert.Error(t, c.RecordDraw(&Model{}))
	assert.Error(t, c.BindMaterial(&Material{}))
	assert.Error(t, c.EndRenderRecord())
	_, err := c.PresentFrame(c.sync.overlayDone)
	assert.Error(t, err)
}

func TestAcquireOutOfDateKeepsFenceSignalled(t *testing.T) {
	c, drv, _ := newFakeContext()
	drv.acquireResult = vk.ErrorOutOfDate

	ok, err := c.StartRender()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, drv.fenceWaits)
	assert.Equal(t, 0, drv.fenceResets)
	assert.True(t, c.NeedsRebuild())

	require.NoError(t, c.RebuildSwapchain(&fakeWindow{width: 1280, height: 720}))
	assert.False(t, c.NeedsRebuild())

	drv.acquireResult = vk.Success
	ok, err = c.StartRender()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, drv.fenceResets)
}

func TestAcquireFailure(t *testing.T) {
	c, drv, _ := newFakeContext()
	drv.acquireResult = vk.ErrorDeviceLost
	_, err := c.StartRender()
	assert.Error(t, err)
}

func TestPresentStale(t *testing.T) {
	for _, res := range []vk.Result{vk.Suboptimal, vk.ErrorOutOfDate} {
		c, drv, _ := newFakeContext()
		drv.presentResult = res
		assert.False(t, runFrame(t, c, nil))
		assert.Equal(t, uint64(1), c.Frame())
		assert.True(t, c.NeedsRebuild())
	}
}

func TestResizeRequestsRebuild(t *testing.T) {
	c, _, _ := newFakeContext()
	assert.False(t, c.NeedsRebuild())
	c.Resized(800, 600)
	assert.True(t, c.NeedsRebuild())

	// minimised windows keep the old resources and the pending request
	gen := c.sc.Generation
	require.NoError(t, c.RebuildSwapchain(&fakeWindow{}))
	assert.Equal(t, gen, c.sc.Generation)
	assert.True(t, c.NeedsRebuild())

	require.NoError(t, c.RebuildSwapchain(&fakeWindow{width: 800, height: 600}))
	assert.False(t, c.NeedsRebuild())
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, c.Extent())
	assert.Equal(t, TileCount{X: 50, Y: 38}, c.sc.Tiles)
}

func TestRebuildIsIdempotent(t *testing.T) {
	c, drv, alloc := newFakeContext()
	window := &fakeWindow{width: 1280, height: 720}
	require.True(t, runFrame(t, c, nil))

	liveMem, liveCmds, liveViews := alloc.live(), drv.liveCmdBuffers, drv.liveViews
	liveObjects := drv.liveObjects()
	liveTracked := c.tracker.Live()
	first := c.sc.Generation
	created := drv.created["pipeline"]

	for i := 0; i < 4; i++ {
		idle := drv.idleWaits
		require.NoError(t, c.RebuildSwapchain(window))
		assert.Equal(t, idle+2, drv.idleWaits)
		assert.Equal(t, liveMem, alloc.live())
		assert.Equal(t, liveCmds, drv.liveCmdBuffers)
		assert.Equal(t, liveViews, drv.liveViews)
		assert.Equal(t, liveObjects, drv.liveObjects())
		assert.Equal(t, liveTracked, c.tracker.Live())
		assert.Len(t, c.tracker.Generations(), 1)
		require.True(t, runFrame(t, c, nil))
	}
	assert.Equal(t, first+4, c.sc.Generation)
	assert.Equal(t, created+4*3, drv.created["pipeline"])
}

func TestBuildCreatesSizeDependentObjects(t *testing.T) {
	c, drv, _ := newFakeContext()
	sc := c.sc

	assert.Equal(t, 1, drv.objects["swapchain"])
	assert.Equal(t, 3, drv.objects["render pass"])
	assert.Equal(t, fakeImageCount+1, drv.objects["framebuffer"])
	assert.Equal(t, 3, drv.objects["pipeline"])
	assert.Equal(t, 3, drv.objects["pipeline layout"])
	assert.Equal(t, 4, drv.objects["shader module"])
	assert.Equal(t, 5, drv.objects["semaphore"])
	assert.Equal(t, 1, drv.objects["fence"])

	assert.Len(t, sc.Images, fakeImageCount)
	assert.Len(t, sc.Views, fakeImageCount)
	assert.Len(t, sc.Framebuffers, fakeImageCount)
	assert.Len(t, sc.RenderCmds, fakeImageCount)
	assert.Equal(t, vk.FormatB8g8r8a8Srgb, sc.Format.Format)
	assert.Equal(t, vk.PresentModeFifo, sc.PresentMode)
	assert.Equal(t, vk.PipelineBindPointCompute, sc.LightCullPipeline.BindPoint)
	assert.Equal(t, []string{shaderDepthVert, shaderForwardVert, shaderForwardFrag, shaderLightCullComp},
		c.shaders.(*fakeShaders).loads)

	// depth sampler and light culling buffers are rebound on every build
	require.GreaterOrEqual(t, len(drv.writes), 3)
	last := drv.writes[len(drv.writes)-3:]
	assert.Equal(t, c.sets.inter, last[0].DstSet)
	assert.Equal(t, c.sets.lightCull, last[1].DstSet)
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, last[1].DescriptorType)
	assert.Equal(t, vk.DescriptorTypeUniformBuffer, last[2].DescriptorType)
}

func TestBuildFailureReleasesPartialGeneration(t *testing.T) {
	for _, kind := range []string{"swapchain", "render pass", "framebuffer", "shader module", "pipeline layout", "pipeline"} {
		t.Run(kind, func(t *testing.T) {
			c, drv, alloc := newFakeContext()
			c.tracker.ReleaseGeneration(c.sc.Generation)
			c.sc = nil
			liveMem, liveObjects := alloc.live(), drv.liveObjects()

			drv.failCreate = kind
			err := c.RebuildSwapchain(&fakeWindow{width: 640, height: 480})
			require.Error(t, err)
			assert.Nil(t, c.sc)
			assert.True(t, c.NeedsRebuild())
			assert.Empty(t, c.tracker.Generations())
			assert.Equal(t, liveMem, alloc.live())
			assert.Equal(t, liveObjects, drv.liveObjects())

			require.NoError(t, c.RebuildSwapchain(&fakeWindow{width: 640, height: 480}))
			assert.Equal(t, vk.Extent2D{Width: 640, Height: 480}, c.Extent())
		})
	}
}

func TestBuildUsesSurfaceExtent(t *testing.T) {
	c, drv, _ := newFakeContext()
	drv.surface.Capabilities.CurrentExtent = vk.Extent2D{Width: 1024, Height: 768}
	require.NoError(t, c.RebuildSwapchain(&fakeWindow{width: 1280, height: 720}))
	assert.Equal(t, vk.Extent2D{Width: 1024, Height: 768}, c.Extent())
	assert.Equal(t, TileCount{X: 64, Y: 48}, c.sc.Tiles)
}

func TestInvalidateRequestsRebuild(t *testing.T) {
	c, _, _ := newFakeContext()
	window := &fakeWindow{width: 1280, height: 720}
	require.False(t, c.NeedsRebuild())

	c.Invalidate()
	assert.True(t, c.NeedsRebuild())
	require.NoError(t, c.RebuildSwapchain(window))
	assert.False(t, c.NeedsRebuild())
}

func TestContextModelLifecycle(t *testing.T) {
	c, drv, alloc := newFakeContext()
	before := alloc.live()

	vertices, indices := fmath.Cube(1, mgl32.Vec3{1, 1, 1})
	model, err := c.CreateModel("cube", vertices, indices)
	require.NoError(t, err)
	require.Len(t, model.Meshes, 1)
	assert.Equal(t, before+2, alloc.live())

	idle := drv.idleWaits
	c.DestroyModel(model)
	assert.Equal(t, idle+1, drv.idleWaits)
	assert.Equal(t, before, alloc.live())
	assert.Empty(t, model.Meshes)
}

func TestOverlayClears(t *testing.T) {
	c, drv, _ := newFakeContext()
	red := color.RGBA{R: 255, A: 255}
	overlay := &fakeOverlay{rects: []OverlayRect{
		{Rect: image.Rect(0, 0, 10, 10), Color: red},
		{Rect: image.Rect(20, 0, 30, 10), Color: red},
		{Rect: image.Rect(2000, 2000, 2010, 2010), Color: red},
		{Rect: image.Rect(5, 5, 8, 8), Color: color.RGBA{G: 255, A: 255}},
	}}
	c.overlay = overlay
	require.True(t, runFrame(t, c, nil))

	assert.Equal(t, 1, overlay.calls)
	clears := drv.clears[c.sc.OverlayCmd.Handle]
	require.Len(t, clears, 2)
	assert.Len(t, clears[0], 2)
	assert.Len(t, clears[1], 1)
	assert.Equal(t, vk.Rect2D{Offset: vk.Offset2D{X: 5, Y: 5}, Extent: vk.Extent2D{Width: 3, Height: 3}}, clears[1][0].Rect)
}

func TestClearBatchesClip(t *testing.T) {
	extent := vk.Extent2D{Width: 100, Height: 50}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	batches := clearBatches([]OverlayRect{
		{Rect: image.Rect(-10, -10, 20, 20), Color: white},
		{Rect: image.Rect(90, 40, 200, 200), Color: white},
		{Rect: image.Rect(10, 10, 10, 30), Color: white},
	}, extent)
	require.Len(t, batches, 1)
	assert.Equal(t, [4]float32{1, 1, 1, 1}, batches[0].color)
	require.Len(t, batches[0].rects, 2)
	assert.Equal(t, vk.Extent2D{Width: 20, Height: 20}, batches[0].rects[0].Rect.Extent)
	assert.Equal(t, vk.Offset2D{X: 90, Y: 40}, batches[0].rects[1].Rect.Offset)
	assert.Equal(t, vk.Extent2D{Width: 10, Height: 10}, batches[0].rects[1].Rect.Extent)
	assert.Equal(t, uint32(1), batches[0].rects[0].LayerCount)

	assert.Empty(t, clearBatches(nil, extent))
}
