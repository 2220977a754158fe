package vulkan

import (
	vk "github.com/goki/vulkan"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
)

// TileCount is the number of light culling tiles per row (X) and per
// column (Y).
type TileCount struct {
	X, Y uint32
}

func (t TileCount) Total() uint32 { return t.X * t.Y }

// TileCountFor covers a width x height target with TileSize square tiles,
// rounding up on both axes.
func TileCountFor(width, height uint32) TileCount {
	return TileCount{X: fmath.DivCeil(width, TileSize), Y: fmath.DivCeil(height, TileSize)}
}

// LightVisibilitySize is the byte size of the per-tile light index buffer.
func LightVisibilitySize(tiles TileCount) vk.DeviceSize {
	return vk.DeviceSize(TileBufferSize) * vk.DeviceSize(tiles.Total())
}

func newLightVisibilityBuffer(dev *Device, tiles TileCount) (*Buffer, error) {
	buf, err := NewBuffer(dev, StoragePreset(LightVisibilitySize(tiles)))
	if err != nil {
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypeBuffer, handleID(buf.Handle), "Buffer, Light Visibility")
	return buf, nil
}

type lightCullRecording struct {
	Pipeline        *Pipeline
	Sets            []vk.DescriptorSet
	LightVisibility *Buffer
	Lights          vk.Buffer
	LightsSize      vk.DeviceSize
	Extent          vk.Extent2D
	Tiles           TileCount
	DebugView       int32
}

// recordLightCull fills cmd with the culling dispatch, one workgroup per
// tile. The buffer is begun for simultaneous use so it can be resubmitted
// every frame without being recorded again.
func recordLightCull(dev *Device, cmd *CommandBuffer, r lightCullRecording) error {
	if err := cmd.Begin(dev, false, true); err != nil {
		return err
	}
	barrier := func(buf vk.Buffer, size vk.DeviceSize, src, dst vk.AccessFlagBits) vk.BufferMemoryBarrier {
		return vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(src),
			DstAccessMask:       vk.AccessFlags(dst),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buf,
			Size:                size,
		}
	}
	// last frame's shading still reads the visibility buffer
	dev.drv.CmdBufferBarrier(cmd.Handle,
		vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		[]vk.BufferMemoryBarrier{
			barrier(r.LightVisibility.Handle, LightVisibilitySize(r.Tiles), vk.AccessShaderReadBit, vk.AccessShaderWriteBit),
		})
	// the light list arrives by a staging copy
	dev.drv.CmdBufferBarrier(cmd.Handle,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		[]vk.BufferMemoryBarrier{
			barrier(r.Lights, r.LightsSize, vk.AccessTransferWriteBit, vk.AccessUniformReadBit),
		})

	dev.drv.CmdBindDescriptorSets(cmd.Handle, vk.PipelineBindPointCompute, r.Pipeline.Layout, 0, r.Sets)
	pc := pushConstants{
		Viewport:  [2]uint32{r.Extent.Width, r.Extent.Height},
		TileNums:  [2]uint32{r.Tiles.X, r.Tiles.Y},
		DebugView: r.DebugView,
	}
	dev.drv.CmdPushConstants(cmd.Handle, r.Pipeline.Layout, vk.ShaderStageFlags(vk.ShaderStageComputeBit), pc.bytes())
	dev.drv.CmdBindPipeline(cmd.Handle, vk.PipelineBindPointCompute, r.Pipeline.Handle)
	dev.drv.CmdDispatch(cmd.Handle, r.Tiles.X, r.Tiles.Y, 1)
	return cmd.End(dev)
}
