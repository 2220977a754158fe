package vulkan

import (
	"image"
	"sync/atomic"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// Image is a 2D image with one view and its own memory. Like Buffer it has
// a single owner; use SharedImage when several holders need it.
type Image struct {
	Handle vk.Image
	View   vk.ImageView
	Alloc  *Allocation
	Format vk.Format
	Width  uint32
	Height uint32
}

type layoutTransition struct {
	from, to vk.ImageLayout
}

// layoutAccess lists every transition the renderer performs, with the access
// masks on each side of the barrier.
var layoutAccess = map[layoutTransition][2]vk.AccessFlagBits{
	{vk.ImageLayoutPreinitialized, vk.ImageLayoutTransferSrcOptimal}: {vk.AccessHostWriteBit, vk.AccessTransferReadBit},
	{vk.ImageLayoutPreinitialized, vk.ImageLayoutTransferDstOptimal}: {vk.AccessHostWriteBit, vk.AccessTransferWriteBit},
	{vk.ImageLayoutUndefined, vk.ImageLayoutDepthStencilAttachmentOptimal}: {
		0, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit},
	{vk.ImageLayoutUndefined, vk.ImageLayoutShaderReadOnlyOptimal}: {0, vk.AccessShaderReadBit},
	{vk.ImageLayoutDepthStencilAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal}: {
		vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit, vk.AccessShaderReadBit},
	{vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutDepthStencilAttachmentOptimal}: {
		vk.AccessShaderReadBit, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit},
	{vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal}: {vk.AccessTransferWriteBit, vk.AccessShaderReadBit},
}

const layoutChangeStages = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit | vk.PipelineStageEarlyFragmentTestsBit |
	vk.PipelineStageHostBit | vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit | vk.PipelineStageTransferBit)

func isDepthFormat(format vk.Format) bool {
	switch format {
	case vk.FormatD16Unorm, vk.FormatX8D24UnormPack32, vk.FormatD32Sfloat:
		return true
	}
	return hasStencil(format)
}

func hasStencil(format vk.Format) bool {
	switch format {
	case vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// barrierAspect covers every aspect of format. Barriers on combined
// depth/stencil images must name both.
func barrierAspect(format vk.Format) vk.ImageAspectFlags {
	switch {
	case hasStencil(format):
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	case isDepthFormat(format):
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// layoutChangeBarrier builds the barrier moving img, of the given format,
// from one layout to another.
func layoutChangeBarrier(img vk.Image, format vk.Format, from, to vk.ImageLayout) (vk.ImageMemoryBarrier, error) {
	access, ok := layoutAccess[layoutTransition{from, to}]
	if !ok {
		return vk.ImageMemoryBarrier{}, core.Errorf("unsupported image layout transition %d -> %d", from, to)
	}
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(access[0]),
		DstAccessMask:       vk.AccessFlags(access[1]),
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: barrierAspect(format),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil
}

// RecordImageLayoutChange records a pipeline barrier moving img from one
// layout to another.
func RecordImageLayoutChange(dev *Device, cmd vk.CommandBuffer, img *Image, from, to vk.ImageLayout) error {
	barrier, err := layoutChangeBarrier(img.Handle, img.Format, from, to)
	if err != nil {
		return err
	}
	dev.drv.CmdImageBarrier(cmd, layoutChangeStages, layoutChangeStages, barrier)
	return nil
}

func createImageView(dev *Device, img vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	view, res := dev.drv.CreateImageView(&vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	})
	if err := checkResult(res, "vkCreateImageView"); err != nil {
		return nil, err
	}
	return view, nil
}

func newImage(dev *Device, width, height uint32, format vk.Format, tiling vk.ImageTiling, usage vk.ImageUsageFlagBits,
	initial vk.ImageLayout, aspect vk.ImageAspectFlagBits) (*Image, error) {
	info := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        format,
		Extent:        vk.Extent3D{Width: width, Height: height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        tiling,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: initial,
	}
	handle, alloc, err := dev.alloc.CreateImage(&info, deviceLocal)
	if err != nil {
		return nil, err
	}
	out := &Image{Handle: handle, Alloc: alloc, Format: format, Width: width, Height: height}
	if out.View, err = createImageView(dev, handle, format, vk.ImageAspectFlags(aspect)); err != nil {
		out.Destroy(dev)
		return nil, err
	}
	return out, nil
}

// newDepthImage is the pre-pass target, sampled later by light culling and
// shading. It is returned in depth attachment layout. Its one view selects
// the depth aspect only, as sampling requires, even for stencil formats.
func newDepthImage(dev *Device, extent vk.Extent2D) (*Image, error) {
	img, err := newImage(dev, extent.Width, extent.Height, dev.DepthFormat, vk.ImageTilingOptimal,
		vk.ImageUsageDepthStencilAttachmentBit|vk.ImageUsageSampledBit, vk.ImageLayoutUndefined, vk.ImageAspectDepthBit)
	if err != nil {
		return nil, err
	}
	var layoutErr error
	err = dev.RunOneTime(func(cmd vk.CommandBuffer) {
		layoutErr = RecordImageLayoutChange(dev, cmd, img, vk.ImageLayoutUndefined, vk.ImageLayoutDepthStencilAttachmentOptimal)
	})
	if err == nil {
		err = layoutErr
	}
	if err != nil {
		img.Destroy(dev)
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypeImage, handleID(img.Handle), "Image, Depth")
	return img, nil
}

// ImageFromRGBA uploads pixels into a sampled, optimally tiled image left
// in shader read-only layout.
func ImageFromRGBA(dev *Device, pixels *image.RGBA, name string) (*Image, error) {
	w, h := uint32(pixels.Bounds().Dx()), uint32(pixels.Bounds().Dy())
	if w == 0 || h == 0 {
		return nil, core.Errorf("image '%s' is empty", name)
	}
	if pixels.Stride != int(4*w) {
		return nil, core.Errorf("image '%s' is not tightly packed", name)
	}

	staging, err := NewStagingBuffer(dev, pixels.Pix[:4*w*h])
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(dev)

	img, err := newImage(dev, w, h, vk.FormatR8g8b8a8Unorm, vk.ImageTilingOptimal,
		vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit, vk.ImageLayoutPreinitialized, vk.ImageAspectColorBit)
	if err != nil {
		return nil, err
	}

	var layoutErr error
	err = dev.RunOneTime(func(cmd vk.CommandBuffer) {
		if layoutErr = RecordImageLayoutChange(dev, cmd, img, vk.ImageLayoutPreinitialized, vk.ImageLayoutTransferDstOptimal); layoutErr != nil {
			return
		}
		dev.drv.CmdCopyBufferToImage(cmd, staging.Handle, img.Handle, w, h)
		layoutErr = RecordImageLayoutChange(dev, cmd, img, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	})
	if err == nil {
		err = layoutErr
	}
	if err != nil {
		img.Destroy(dev)
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypeImage, handleID(img.Handle), "Image, "+name)
	return img, nil
}

// TextureSource decodes image files to RGBA.
type TextureSource interface {
	LoadTexture(rel string) (*image.RGBA, error)
}

func ImageFromFile(dev *Device, textures TextureSource, rel string) (*Image, error) {
	pixels, err := textures.LoadTexture(rel)
	if err != nil {
		return nil, err
	}
	return ImageFromRGBA(dev, pixels, rel)
}

// Move transfers ownership to the returned Image and empties img.
func (img *Image) Move() *Image {
	out := *img
	*img = Image{}
	return &out
}

func (img *Image) Destroy(dev *Device) {
	if img == nil {
		return
	}
	if img.View != nil {
		dev.drv.DestroyImageView(img.View)
		img.View = nil
	}
	if img.Handle != nil {
		dev.alloc.DestroyImage(img.Handle, img.Alloc)
	}
	*img = Image{}
}

// SharedImage is a reference counted Image. Every holder calls Release once;
// the last release destroys the image.
type SharedImage struct {
	img  *Image
	refs *atomic.Int32
}

// NewSharedImage takes ownership of img.
func NewSharedImage(img *Image) *SharedImage {
	refs := &atomic.Int32{}
	refs.Store(1)
	return &SharedImage{img: img.Move(), refs: refs}
}

// Share returns a new holder of the same image.
func (s *SharedImage) Share() *SharedImage {
	s.refs.Add(1)
	return &SharedImage{img: s.img, refs: s.refs}
}

func (s *SharedImage) Image() *Image { return s.img }

func (s *SharedImage) Refs() int32 { return s.refs.Load() }

// Release drops this holder. Releasing the same holder twice is a no-op.
func (s *SharedImage) Release(dev *Device) {
	if s == nil || s.img == nil {
		return
	}
	img := s.img
	s.img = nil
	if s.refs.Add(-1) == 0 {
		img.Destroy(dev)
	}
}
