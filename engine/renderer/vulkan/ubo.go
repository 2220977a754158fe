package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// UBO keeps Data on the host and mirrors it into a device local uniform
// buffer through a staging buffer of the same size. T must be a plain value
// type laid out the way the shaders expect.
//
// There is no double buffering: Update must not run while an in-flight frame
// reads the device buffer.
type UBO[T any] struct {
	Data T

	name    string
	size    vk.DeviceSize
	buffer  *Buffer
	staging *Buffer
}

// NewUBO sizes the buffers to T. Passing two distinct queue families shares
// the device buffer between them.
func NewUBO[T any](dev *Device, name string, families ...uint32) (*UBO[T], error) {
	var zero T
	return NewUBOSized[T](dev, name, vk.DeviceSize(unsafe.Sizeof(zero)), families...)
}

// NewUBOSized uses an explicit size, which may not exceed the size of T.
// Only the first size bytes of Data are uploaded.
func NewUBOSized[T any](dev *Device, name string, size vk.DeviceSize, families ...uint32) (*UBO[T], error) {
	var zero T
	if limit := vk.DeviceSize(unsafe.Sizeof(zero)); size == 0 || size > limit {
		return nil, core.Errorf("UBO '%s' size %d outside 1..%d", name, size, limit)
	}
	u := &UBO[T]{name: name, size: size}

	var err error
	if u.buffer, err = NewBuffer(dev, UBOPreset(size, families...)); err != nil {
		return nil, err
	}
	if u.staging, err = NewBuffer(dev, StagingPreset(size)); err != nil {
		u.Destroy(dev)
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypeBuffer, handleID(u.buffer.Handle), "UBO, "+name)
	dev.SetDebugName(vk.DebugReportObjectTypeBuffer, handleID(u.staging.Handle), "UBO Staging, "+name)
	return u, nil
}

func (u *UBO[T]) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&u.Data)), u.size)
}

// Update writes Data into the staging buffer and copies it to the device
// buffer. It blocks until the copy has finished.
func (u *UBO[T]) Update(dev *Device) error {
	if u.buffer == nil || u.buffer.Handle == nil {
		return core.Wrapf(core.ErrDestroyed, "update UBO '%s'", u.name)
	}
	if err := u.staging.Upload(dev, 0, u.bytes()); err != nil {
		return err
	}
	return u.staging.CopyTo(dev, u.buffer, u.size)
}

// Readback copies the device buffer back to the host. Data is left alone.
func (u *UBO[T]) Readback(dev *Device) ([]byte, error) {
	if u.buffer == nil || u.buffer.Handle == nil {
		return nil, core.Wrapf(core.ErrDestroyed, "read back UBO '%s'", u.name)
	}
	rb, err := NewBuffer(dev, ReadbackPreset(u.size))
	if err != nil {
		return nil, err
	}
	defer rb.Destroy(dev)

	if err := u.buffer.CopyTo(dev, rb, u.size); err != nil {
		return nil, err
	}
	out := make([]byte, u.size)
	if err := rb.Download(dev, 0, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Handle is the device buffer bound in descriptor sets.
func (u *UBO[T]) Handle() vk.Buffer {
	if u.buffer == nil {
		return nil
	}
	return u.buffer.Handle
}

func (u *UBO[T]) Size() vk.DeviceSize { return u.size }

// Destroy releases both buffers. Data is untouched.
func (u *UBO[T]) Destroy(dev *Device) {
	if u == nil {
		return
	}
	u.buffer.Destroy(dev)
	u.staging.Destroy(dev)
	u.buffer, u.staging = nil, nil
}
