package vulkan

import (
	"image"
	"image/color"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// A frame runs as
//
//	StartRender
//	StartRenderRecord, RecordDraw / BindMaterial..., EndRenderRecord
//	SubmitPrepass -> ComputeLightCull -> SubmitGeometry -> RenderOverlay
//	PresentFrame
//
// where each submit returns the semaphore the next one waits on.

// StartRender waits for the previous frame and acquires the next swapchain
// image. It returns false when the swapchain is out of date; the caller
// rebuilds and skips the frame. The render fence is only reset once an image
// was acquired, so a skipped frame never leaves it unsignalled.
func (c *Context) StartRender() (bool, error) {
	if c.sc == nil {
		return false, nil
	}
	if err := waitFence(c.dev, c.sync.renderFence, math.MaxUint64); err != nil {
		return false, err
	}

	res := c.dev.drv.AcquireNextImage(c.sc.Handle, math.MaxUint64, c.sync.imageAvailable, &c.imageIndex)
	switch res {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		core.LogDebug("Swapchain out of date on acquire, rebuild required.")
		c.stale = true
		return false, nil
	default:
		return false, core.Errorf("failed to acquire swapchain image: %s", VulkanResultString(res, true))
	}

	if err := checkResult(c.dev.drv.ResetFence(c.sync.renderFence), "vkResetFences"); err != nil {
		return false, err
	}
	c.acquired = true
	return true, nil
}

// ImageIndex is the swapchain image acquired by the last StartRender.
func (c *Context) ImageIndex() uint32 { return c.imageIndex }

func (c *Context) renderCmd() *CommandBuffer { return c.sc.RenderCmds[c.imageIndex] }

func (c *Context) framePushConstants() pushConstants {
	return pushConstants{
		Viewport:  [2]uint32{c.sc.Extent.Width, c.sc.Extent.Height},
		TileNums:  [2]uint32{c.sc.Tiles.X, c.sc.Tiles.Y},
		DebugView: c.cfg.DebugView,
	}
}

// StartRenderRecord opens the geometry and pre-pass command buffers of the
// acquired image, each inside its render pass with pipeline and shared sets
// bound.
func (c *Context) StartRenderRecord() error {
	if !c.acquired {
		return core.Wrapf(core.ErrInvalidSubmission, "recording started without an acquired image")
	}
	dev, sc := c.dev, c.sc

	render := c.renderCmd()
	if err := render.Reset(dev); err != nil {
		return err
	}
	if err := render.Begin(dev, true, false); err != nil {
		return err
	}
	clear := make([]vk.ClearValue, 2)
	clear[0].SetColor(clearColor[:])
	clear[1].SetDepthStencil(1, 0)
	dev.drv.CmdBeginRenderPass(render.Handle, sc.MainPass, sc.Framebuffers[c.imageIndex], sc.Extent, clear)
	render.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	dev.drv.CmdPushConstants(render.Handle, sc.RenderPipeline.Layout, vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		c.framePushConstants().bytes())
	dev.drv.CmdBindPipeline(render.Handle, vk.PipelineBindPointGraphics, sc.RenderPipeline.Handle)
	dev.drv.CmdBindDescriptorSets(render.Handle, vk.PipelineBindPointGraphics, sc.RenderPipeline.Layout, SetObject,
		[]vk.DescriptorSet{c.sets.object, c.sets.camera, c.sets.lightCull, c.sets.inter})

	prepass := sc.PrepassCmd
	if err := prepass.Reset(dev); err != nil {
		return err
	}
	if err := prepass.Begin(dev, true, false); err != nil {
		return err
	}
	depthClear := make([]vk.ClearValue, 1)
	depthClear[0].SetDepthStencil(1, 0)
	dev.drv.CmdBeginRenderPass(prepass.Handle, sc.PrepassPass, sc.PrepassFramebuffer, sc.Extent, depthClear)
	prepass.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	dev.drv.CmdBindPipeline(prepass.Handle, vk.PipelineBindPointGraphics, sc.DepthPipeline.Handle)
	dev.drv.CmdBindDescriptorSets(prepass.Handle, vk.PipelineBindPointGraphics, sc.DepthPipeline.Layout, SetObject,
		[]vk.DescriptorSet{c.sets.object, c.sets.camera})

	c.recording = true
	return nil
}

// RecordDraw draws every mesh of model into both the pre-pass and the
// geometry command buffers.
func (c *Context) RecordDraw(model *Model) error {
	if !c.recording {
		return core.Wrapf(core.ErrInvalidSubmission, "draw recorded outside StartRenderRecord/EndRenderRecord")
	}
	cmds := []vk.CommandBuffer{c.renderCmd().Handle, c.sc.PrepassCmd.Handle}
	for _, mesh := range model.Meshes {
		for _, cmd := range cmds {
			c.dev.drv.CmdBindVertexBuffer(cmd, mesh.Vertices.Handle)
			c.dev.drv.CmdBindIndexBuffer(cmd, mesh.Indices.Handle)
			c.dev.drv.CmdDrawIndexed(cmd, mesh.IndexCount)
		}
	}
	return nil
}

// BindMaterial binds m for the following draws. The pre-pass has no
// material set.
func (c *Context) BindMaterial(m *Material) error {
	if !c.recording {
		return core.Wrapf(core.ErrInvalidSubmission, "material bound outside StartRenderRecord/EndRenderRecord")
	}
	c.dev.drv.CmdBindDescriptorSets(c.renderCmd().Handle, vk.PipelineBindPointGraphics, c.sc.RenderPipeline.Layout,
		SetMaterial, []vk.DescriptorSet{m.Set})
	return nil
}

func (c *Context) EndRenderRecord() error {
	if !c.recording {
		return core.Wrapf(core.ErrInvalidSubmission, "EndRenderRecord without StartRenderRecord")
	}
	c.recording = false
	for _, cb := range []*CommandBuffer{c.renderCmd(), c.sc.PrepassCmd} {
		c.dev.drv.CmdEndRenderPass(cb.Handle)
		cb.State = COMMAND_BUFFER_STATE_RECORDING
		if err := cb.End(c.dev); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) submit(queue vk.Queue, cb *CommandBuffer, waits []semaphoreWait, signal vk.Semaphore, fence vk.Fence, op string) error {
	res := c.dev.drv.QueueSubmit(queue, submission{
		Waits:          waits,
		CommandBuffers: []vk.CommandBuffer{cb.Handle},
		Signals:        []vk.Semaphore{signal},
		Fence:          fence,
	})
	if err := checkResult(res, "vkQueueSubmit ("+op+")"); err != nil {
		return err
	}
	cb.UpdateSubmitted()
	return nil
}

// SubmitPrepass submits the depth pre-pass. It is the head of the frame and
// takes no waits.
func (c *Context) SubmitPrepass(waits ...vk.Semaphore) (vk.Semaphore, error) {
	if len(waits) != 0 {
		return vk.NullSemaphore, core.Wrapf(core.ErrInvalidSubmission, "depth pre-pass takes no waits, got %d", len(waits))
	}
	if err := c.submit(c.dev.GraphicsQueue, c.sc.PrepassCmd, nil, c.sync.prepassDone, nil, "depth pre-pass"); err != nil {
		return vk.NullSemaphore, err
	}
	return c.sync.prepassDone, nil
}

// ComputeLightCull resubmits the light culling dispatch recorded when the
// swapchain resources were built. Nothing is recorded here.
func (c *Context) ComputeLightCull(waits ...vk.Semaphore) (vk.Semaphore, error) {
	sw := make([]semaphoreWait, len(waits))
	for i, s := range waits {
		sw[i] = semaphoreWait{Semaphore: s, Stage: vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)}
	}
	if err := c.submit(c.dev.ComputeQueue, c.sc.LightCullCmd, sw, c.sync.lightCullDone, nil, "light culling"); err != nil {
		return vk.NullSemaphore, err
	}
	return c.sync.lightCullDone, nil
}

// SubmitGeometry submits the forward pass. It waits on image acquisition
// before writing colour and on exactly one caller semaphore, normally the
// light culling result, before fragment shading.
func (c *Context) SubmitGeometry(waits ...vk.Semaphore) (vk.Semaphore, error) {
	if len(waits) != 1 {
		return vk.NullSemaphore, core.Wrapf(core.ErrInvalidSubmission, "geometry pass needs 2 waits, got %d", 1+len(waits))
	}
	sw := []semaphoreWait{
		{Semaphore: c.sync.imageAvailable, Stage: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		{Semaphore: waits[0], Stage: vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)},
	}
	if err := c.submit(c.dev.GraphicsQueue, c.renderCmd(), sw, c.sync.renderDone, nil, "geometry"); err != nil {
		return vk.NullSemaphore, err
	}
	return c.sync.renderDone, nil
}

// RenderOverlay records and submits the overlay on top of the geometry pass
// output. Its submission signals the render fence, closing the frame.
func (c *Context) RenderOverlay(waits ...vk.Semaphore) (vk.Semaphore, error) {
	if len(waits) != 1 {
		return vk.NullSemaphore, core.Wrapf(core.ErrInvalidSubmission, "overlay needs 1 wait, got %d", len(waits))
	}
	dev, sc := c.dev, c.sc
	cb := sc.OverlayCmd
	if err := cb.Reset(dev); err != nil {
		return vk.NullSemaphore, err
	}
	if err := cb.Begin(dev, true, false); err != nil {
		return vk.NullSemaphore, err
	}
	dev.drv.CmdBeginRenderPass(cb.Handle, sc.OverlayPass, sc.Framebuffers[c.imageIndex], sc.Extent, nil)
	if c.overlay != nil {
		for _, batch := range clearBatches(c.overlay.Rects(sc.Extent.Width, sc.Extent.Height), sc.Extent) {
			dev.drv.CmdClearColorRects(cb.Handle, batch.color, batch.rects)
		}
	}
	dev.drv.CmdEndRenderPass(cb.Handle)
	if err := cb.End(dev); err != nil {
		return vk.NullSemaphore, err
	}

	sw := []semaphoreWait{{Semaphore: waits[0], Stage: vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)}}
	if err := c.submit(dev.GraphicsQueue, cb, sw, c.sync.overlayDone, c.sync.renderFence, "overlay"); err != nil {
		return vk.NullSemaphore, err
	}
	return c.sync.overlayDone, nil
}

// PresentFrame queues the acquired image for presentation once wait is
// signalled. It returns false when the swapchain must be rebuilt. The frame
// counter advances either way.
func (c *Context) PresentFrame(wait vk.Semaphore) (bool, error) {
	if !c.acquired {
		return false, core.Wrapf(core.ErrInvalidSubmission, "present without an acquired image")
	}
	c.acquired = false
	c.frame++

	res := c.dev.drv.QueuePresent(c.dev.PresentQueue, wait, c.sc.Handle, c.imageIndex)
	switch res {
	case vk.Success:
		return true, nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		core.LogDebug("Swapchain %s on present, rebuild required.", VulkanResultString(res, false))
		c.stale = true
		return false, nil
	default:
		return false, core.Errorf("failed to present swapchain image: %s", VulkanResultString(res, true))
	}
}

type clearBatch struct {
	color [4]float32
	rects []vk.ClearRect
}

// clearBatches clips rects to the extent, drops empty ones and groups runs
// of the same colour into one clear call. Order is preserved so later rects
// still land on top.
func clearBatches(rects []OverlayRect, extent vk.Extent2D) []clearBatch {
	bounds := image.Rect(0, 0, int(extent.Width), int(extent.Height))
	var out []clearBatch
	for _, r := range rects {
		clipped := r.Rect.Intersect(bounds)
		if clipped.Empty() {
			continue
		}
		rect := vk.ClearRect{
			Rect: vk.Rect2D{
				Offset: vk.Offset2D{X: int32(clipped.Min.X), Y: int32(clipped.Min.Y)},
				Extent: vk.Extent2D{Width: uint32(clipped.Dx()), Height: uint32(clipped.Dy())},
			},
			LayerCount: 1,
		}
		col := colorFloats(r.Color)
		if n := len(out); n > 0 && out[n-1].color == col {
			out[n-1].rects = append(out[n-1].rects, rect)
			continue
		}
		out = append(out, clearBatch{color: col, rects: []vk.ClearRect{rect}})
	}
	return out
}

func colorFloats(c color.RGBA) [4]float32 {
	return [4]float32{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, float32(c.A) / 255}
}
