package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// Buffer is a device buffer with its own memory. It has a single owner:
// hand it over with Move, release it with Destroy.
type Buffer struct {
	Handle vk.Buffer
	Alloc  *Allocation
	Size   vk.DeviceSize
}

// StagingPreset is host visible memory used as a transfer source.
func StagingPreset(size vk.DeviceSize) BufferInfo {
	return BufferInfo{Size: size, Usage: transferSrc, Properties: hostVisible}
}

// ReadbackPreset is host visible memory used as a transfer destination.
func ReadbackPreset(size vk.DeviceSize) BufferInfo {
	return BufferInfo{Size: size, Usage: transferDst, Properties: hostVisible}
}

// UBOPreset is device local uniform memory filled by transfers. With two
// distinct families the buffer is shared concurrently.
func UBOPreset(size vk.DeviceSize, families ...uint32) BufferInfo {
	return BufferInfo{Size: size, Usage: uniformBuffer | transferDst | transferSrc, Properties: deviceLocal, QueueFamilies: families}
}

// VertexPreset is device local vertex and index memory filled by transfers.
func VertexPreset(size vk.DeviceSize) BufferInfo {
	return BufferInfo{Size: size, Usage: vertexBuffer | indexBuffer | transferDst, Properties: deviceLocal}
}

// StoragePreset is device local storage written by shaders.
func StoragePreset(size vk.DeviceSize) BufferInfo {
	return BufferInfo{Size: size, Usage: storageBuffer, Properties: deviceLocal}
}

func NewBuffer(dev *Device, info BufferInfo) (*Buffer, error) {
	if info.Size == 0 {
		return nil, core.Errorf("cannot create a zero sized buffer")
	}
	handle, alloc, err := dev.alloc.CreateBuffer(info)
	if err != nil {
		return nil, err
	}
	return &Buffer{Handle: handle, Alloc: alloc, Size: info.Size}, nil
}

// NewStagingBuffer creates a staging buffer holding data.
func NewStagingBuffer(dev *Device, data []byte) (*Buffer, error) {
	b, err := NewBuffer(dev, StagingPreset(vk.DeviceSize(len(data))))
	if err != nil {
		return nil, err
	}
	if err := b.Upload(dev, 0, data); err != nil {
		b.Destroy(dev)
		return nil, err
	}
	return b, nil
}

// Upload writes data at offset. The buffer must be host visible.
func (b *Buffer) Upload(dev *Device, offset vk.DeviceSize, data []byte) error {
	if b.Handle == nil {
		return core.Wrapf(core.ErrDestroyed, "upload to buffer")
	}
	return dev.alloc.Upload(b.Alloc, offset, data)
}

// Download reads len(out) bytes from offset. The buffer must be host visible.
func (b *Buffer) Download(dev *Device, offset vk.DeviceSize, out []byte) error {
	if b.Handle == nil {
		return core.Wrapf(core.ErrDestroyed, "download from buffer")
	}
	return dev.alloc.Download(b.Alloc, offset, out)
}

// CopyTo copies the first size bytes into dst through a one-time command
// buffer and blocks until the graphics queue is idle.
func (b *Buffer) CopyTo(dev *Device, dst *Buffer, size vk.DeviceSize) error {
	if b.Handle == nil || dst == nil || dst.Handle == nil {
		return core.Wrapf(core.ErrDestroyed, "buffer copy")
	}
	if size > b.Size || size > dst.Size {
		return core.Errorf("copy of %d bytes exceeds buffer sizes %d -> %d", size, b.Size, dst.Size)
	}
	return dev.RunOneTime(func(cmd vk.CommandBuffer) {
		dev.drv.CmdCopyBuffer(cmd, b.Handle, dst.Handle, size)
	})
}

// Move transfers ownership to the returned Buffer. b is left empty and its
// Destroy does nothing.
func (b *Buffer) Move() *Buffer {
	out := &Buffer{Handle: b.Handle, Alloc: b.Alloc, Size: b.Size}
	b.Handle, b.Alloc, b.Size = nil, nil, 0
	return out
}

func (b *Buffer) Destroy(dev *Device) {
	if b == nil || b.Handle == nil {
		return
	}
	dev.alloc.DestroyBuffer(b.Handle, b.Alloc)
	b.Handle, b.Alloc, b.Size = nil, nil, 0
}
