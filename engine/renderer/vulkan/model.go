package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
)

// Mesh is one indexed draw: a vertex buffer, a uint32 index buffer and the
// number of indices.
type Mesh struct {
	Vertices   *Buffer
	Indices    *Buffer
	IndexCount uint32
}

// Model is the unit RecordDraw consumes. It owns its meshes.
type Model struct {
	Name   string
	Meshes []*Mesh
}

// NewMesh uploads vertices and indices into device local buffers through
// staging copies.
func NewMesh(dev *Device, vertices []fmath.Vertex, indices []uint32, name string) (*Mesh, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return nil, core.Errorf("mesh '%s' has %d vertices and %d indices", name, len(vertices), len(indices))
	}
	vdata := unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), len(vertices)*int(vertexStride))
	idata := unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)

	m := &Mesh{IndexCount: uint32(len(indices))}
	var err error
	if m.Vertices, err = uploadDeviceBuffer(dev, vdata); err != nil {
		return nil, err
	}
	if m.Indices, err = uploadDeviceBuffer(dev, idata); err != nil {
		m.Destroy(dev)
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypeBuffer, handleID(m.Vertices.Handle), "Buffer (V), "+name)
	dev.SetDebugName(vk.DebugReportObjectTypeBuffer, handleID(m.Indices.Handle), "Buffer (I), "+name)
	return m, nil
}

func uploadDeviceBuffer(dev *Device, data []byte) (*Buffer, error) {
	staging, err := NewStagingBuffer(dev, data)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(dev)

	buf, err := NewBuffer(dev, VertexPreset(staging.Size))
	if err != nil {
		return nil, err
	}
	if err := staging.CopyTo(dev, buf, staging.Size); err != nil {
		buf.Destroy(dev)
		return nil, err
	}
	return buf, nil
}

func (m *Mesh) Destroy(dev *Device) {
	if m == nil {
		return
	}
	m.Vertices.Destroy(dev)
	m.Indices.Destroy(dev)
	m.IndexCount = 0
}

// NewModel wraps a single mesh built from vertices and indices.
func NewModel(dev *Device, name string, vertices []fmath.Vertex, indices []uint32) (*Model, error) {
	mesh, err := NewMesh(dev, vertices, indices, name)
	if err != nil {
		return nil, err
	}
	return &Model{Name: name, Meshes: []*Mesh{mesh}}, nil
}

func (m *Model) Destroy(dev *Device) {
	if m == nil {
		return
	}
	for _, mesh := range m.Meshes {
		mesh.Destroy(dev)
	}
	m.Meshes = nil
}
