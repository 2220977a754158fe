package vulkan

import (
	"fmt"
	"image"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferMove(t *testing.T) {
	dev, _, alloc := newFakeDevice()
	b, err := NewBuffer(dev, StoragePreset(64))
	require.NoError(t, err)
	handle := b.Handle

	moved := b.Move()
	assert.Nil(t, b.Handle)
	assert.Nil(t, b.Alloc)
	assert.Equal(t, vk.DeviceSize(0), b.Size)
	assert.Equal(t, handle, moved.Handle)
	assert.Equal(t, vk.DeviceSize(64), moved.Size)

	b.Destroy(dev)
	assert.Equal(t, 1, alloc.live())
	moved.Destroy(dev)
	assert.Equal(t, 0, alloc.live())
	moved.Destroy(dev)

	var nilBuf *Buffer
	nilBuf.Destroy(dev)
}

func TestBufferErrors(t *testing.T) {
	dev, _, _ := newFakeDevice()
	_, err := NewBuffer(dev, StoragePreset(0))
	assert.Error(t, err)

	src, err := NewStagingBuffer(dev, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	dst, err := NewBuffer(dev, ReadbackPreset(2))
	require.NoError(t, err)
	assert.Error(t, src.CopyTo(dev, dst, 4))
	require.NoError(t, src.CopyTo(dev, dst, 2))

	out := make([]byte, 2)
	require.NoError(t, dst.Download(dev, 0, out))
	assert.Equal(t, []byte{1, 2}, out)

	dst.Destroy(dev)
	assert.True(t, errors.Is(src.CopyTo(dev, dst, 2), core.ErrDestroyed))
	assert.True(t, errors.Is(dst.Upload(dev, 0, out), core.ErrDestroyed))
	assert.True(t, errors.Is(dst.Download(dev, 0, out), core.ErrDestroyed))

	device, err := NewBuffer(dev, StoragePreset(4))
	require.NoError(t, err)
	assert.Error(t, device.Upload(dev, 0, out), "device local memory is not mappable")
}

func TestBufferCopyUsesOneTimeCommand(t *testing.T) {
	dev, drv, _ := newFakeDevice()
	src, err := NewStagingBuffer(dev, make([]byte, 16))
	require.NoError(t, err)
	dst, err := NewBuffer(dev, VertexPreset(16))
	require.NoError(t, err)

	require.NoError(t, src.CopyTo(dev, dst, 16))
	require.Len(t, drv.submits, 1)
	assert.Equal(t, dev.GraphicsQueue, drv.submits[0].queue)
	cmd := drv.submits[0].CommandBuffers[0]
	assert.Equal(t, []string{"begin", "copyBuffer 16", "end"}, drv.ops[cmd])
	assert.Equal(t, 0, drv.liveCmdBuffers)
}

func TestImageMove(t *testing.T) {
	dev, drv, alloc := newFakeDevice()
	img, err := newDepthImage(dev, vk.Extent2D{Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Equal(t, 1, drv.liveViews)

	moved := img.Move()
	assert.Nil(t, img.Handle)
	assert.Nil(t, img.View)
	img.Destroy(dev)
	assert.Equal(t, 1, drv.liveViews)
	assert.Equal(t, 1, alloc.live())

	moved.Destroy(dev)
	assert.Equal(t, 0, drv.liveViews)
	assert.Equal(t, 0, alloc.live())
}

func TestSharedImage(t *testing.T) {
	dev, drv, alloc := newFakeDevice()
	img, err := newDepthImage(dev, vk.Extent2D{Width: 8, Height: 8})
	require.NoError(t, err)

	first := NewSharedImage(img)
	assert.Nil(t, img.Handle, "ownership moved into the shared image")
	second := first.Share()
	assert.Equal(t, int32(2), first.Refs())
	assert.Same(t, first.Image(), second.Image())

	first.Release(dev)
	first.Release(dev)
	assert.Equal(t, int32(1), second.Refs())
	assert.Equal(t, 1, alloc.live())

	second.Release(dev)
	assert.Equal(t, int32(0), second.Refs())
	assert.Equal(t, 0, alloc.live())
	assert.Equal(t, 0, drv.liveViews)
}

func TestLayoutChangeBarrier(t *testing.T) {
	img := fakeHandle[vk.Image]()
	rgba := vk.FormatR8g8b8a8Unorm
	depthOnly := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	depthStencil := vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	cases := []struct {
		format   vk.Format
		from, to vk.ImageLayout
		src, dst vk.AccessFlagBits
		aspect   vk.ImageAspectFlags
	}{
		{rgba, vk.ImageLayoutPreinitialized, vk.ImageLayoutTransferDstOptimal, vk.AccessHostWriteBit, vk.AccessTransferWriteBit, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{rgba, vk.ImageLayoutPreinitialized, vk.ImageLayoutTransferSrcOptimal, vk.AccessHostWriteBit, vk.AccessTransferReadBit, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{rgba, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, vk.AccessTransferWriteBit, vk.AccessShaderReadBit, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{rgba, vk.ImageLayoutUndefined, vk.ImageLayoutShaderReadOnlyOptimal, 0, vk.AccessShaderReadBit, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{vk.FormatD32Sfloat, vk.ImageLayoutUndefined, vk.ImageLayoutDepthStencilAttachmentOptimal, 0,
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit, depthOnly},
		{vk.FormatD32Sfloat, vk.ImageLayoutDepthStencilAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit, vk.AccessShaderReadBit, depthOnly},
		{vk.FormatD32SfloatS8Uint, vk.ImageLayoutUndefined, vk.ImageLayoutDepthStencilAttachmentOptimal, 0,
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit, depthStencil},
		{vk.FormatD24UnormS8Uint, vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutDepthStencilAttachmentOptimal,
			vk.AccessShaderReadBit, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit, depthStencil},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d:%d->%d", tc.format, tc.from, tc.to), func(t *testing.T) {
			b, err := layoutChangeBarrier(img, tc.format, tc.from, tc.to)
			require.NoError(t, err)
			assert.Equal(t, vk.AccessFlags(tc.src), b.SrcAccessMask)
			assert.Equal(t, vk.AccessFlags(tc.dst), b.DstAccessMask)
			assert.Equal(t, tc.from, b.OldLayout)
			assert.Equal(t, tc.to, b.NewLayout)
			assert.Equal(t, tc.aspect, b.SubresourceRange.AspectMask)
		})
	}

	_, err := layoutChangeBarrier(img, rgba, vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutPresentSrc)
	assert.Error(t, err)
}

func TestPickDepthFormat(t *testing.T) {
	attach := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	both := attach | vk.FormatFeatureFlags(vk.FormatFeatureSampledImageBit)
	features := func(m map[vk.Format]vk.FormatFeatureFlags) func(vk.Format) vk.FormatFeatureFlags {
		return func(f vk.Format) vk.FormatFeatureFlags { return m[f] }
	}

	assert.Equal(t, vk.FormatD32Sfloat, pickDepthFormat(features(map[vk.Format]vk.FormatFeatureFlags{
		vk.FormatD32Sfloat: both, vk.FormatD24UnormS8Uint: both,
	})))
	// attachment support alone is not enough, the pre-pass depth is sampled
	assert.Equal(t, vk.FormatD24UnormS8Uint, pickDepthFormat(features(map[vk.Format]vk.FormatFeatureFlags{
		vk.FormatD32Sfloat: attach, vk.FormatD32SfloatS8Uint: attach, vk.FormatD24UnormS8Uint: both,
	})))
	assert.Equal(t, vk.FormatUndefined, pickDepthFormat(features(map[vk.Format]vk.FormatFeatureFlags{
		vk.FormatD32Sfloat: attach,
	})))
}

func TestStencilDepthImageBarrier(t *testing.T) {
	dev, drv, _ := newFakeDevice()
	dev.DepthFormat = vk.FormatD24UnormS8Uint
	img, err := newDepthImage(dev, vk.Extent2D{Width: 8, Height: 8})
	require.NoError(t, err)
	defer img.Destroy(dev)

	require.Len(t, drv.imageBarriers, 1)
	b := drv.imageBarriers[0]
	assert.Equal(t, vk.ImageLayoutDepthStencilAttachmentOptimal, b.NewLayout)
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit), b.SubresourceRange.AspectMask)
	assert.Equal(t, vk.FormatD24UnormS8Uint, img.Format)
}

func TestImageFromRGBA(t *testing.T) {
	dev, drv, alloc := newFakeDevice()
	pixels := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img, err := ImageFromRGBA(dev, pixels, "checker")
	require.NoError(t, err)
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, img.Format)
	assert.Equal(t, uint32(4), img.Width)

	require.Len(t, drv.submits, 1)
	cmd := drv.submits[0].CommandBuffers[0]
	assert.Equal(t, []string{
		"begin",
		fmt.Sprintf("imageBarrier %d->%d", vk.ImageLayoutPreinitialized, vk.ImageLayoutTransferDstOptimal),
		"copyBufferToImage 4x2",
		fmt.Sprintf("imageBarrier %d->%d", vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal),
		"end",
	}, drv.ops[cmd])
	// only the image survives, the staging buffer is gone
	assert.Equal(t, 1, alloc.live())

	_, err = ImageFromRGBA(dev, image.NewRGBA(image.Rect(0, 0, 0, 0)), "empty")
	assert.Error(t, err)
	sub := image.NewRGBA(image.Rect(0, 0, 4, 4)).SubImage(image.Rect(0, 0, 2, 2)).(*image.RGBA)
	_, err = ImageFromRGBA(dev, sub, "strided")
	assert.Error(t, err)
}

func TestTrackerReleasesInReverse(t *testing.T) {
	tr := NewResourceTracker()
	first := tr.NextGeneration()
	second := tr.NextGeneration()
	assert.Equal(t, first+1, second)

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		tr.Track(first, name, func() { order = append(order, name) })
	}
	tr.Track(second, "other", func() { order = append(order, "other") })
	tr.Track(second, "nil", nil)
	assert.Equal(t, 4, tr.Live())
	assert.ElementsMatch(t, []Generation{first, second}, tr.Generations())

	assert.Equal(t, 3, tr.ReleaseGeneration(first))
	assert.Equal(t, []string{"c", "b", "a"}, order)
	assert.Equal(t, 1, tr.Live())
	assert.Equal(t, 0, tr.ReleaseGeneration(first))

	tr.ReleaseGeneration(second)
	assert.Equal(t, 0, tr.Live())
	assert.Empty(t, tr.Generations())
}

type fakeTextures map[string]*image.RGBA

func (f fakeTextures) LoadTexture(rel string) (*image.RGBA, error) {
	if img, ok := f[rel]; ok {
		return img, nil
	}
	return nil, fmt.Errorf("no texture %s", rel)
}

func TestCreateMaterial(t *testing.T) {
	c, drv, alloc := newFakeContext()
	c.textures = fakeTextures{"albedo.png": image.NewRGBA(image.Rect(0, 0, 2, 2))}
	sets, live, views := drv.liveSets, alloc.live(), drv.liveViews
	writes := len(drv.writes)

	m, err := c.CreateMaterial("albedo.png", "missing.png", "brick")
	require.NoError(t, err)
	assert.Equal(t, "brick", m.Name)
	assert.NotNil(t, m.Albedo)
	assert.Nil(t, m.Normal)
	assert.Equal(t, MaterialInfo{HasAlbedo: 1, HasNormal: 0}, m.Info.Data)
	assert.Equal(t, sets+1, drv.liveSets)

	raw, err := m.Info.Readback(c.dev)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, raw)

	added := drv.writes[writes:]
	require.Len(t, added, 2)
	assert.Equal(t, uint32(0), added[0].DstBinding)
	assert.Equal(t, uint32(1), added[1].DstBinding)

	m.Destroy(c)
	assert.Equal(t, sets, drv.liveSets)
	assert.Equal(t, live, alloc.live())
	assert.Equal(t, views, drv.liveViews)
	m.Destroy(c)
}

func TestCreateMaterialUnnamed(t *testing.T) {
	c, _, _ := newFakeContext()
	m, err := c.CreateMaterial("", "", "")
	require.NoError(t, err)
	assert.Equal(t, m.ID.String(), m.Name)
	assert.Equal(t, MaterialInfo{}, m.Info.Data)
	assert.Len(t, materialWrites(m, c.sampler), 1)
}
