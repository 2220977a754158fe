package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// MaterialInfo is the material uniform block. Flags are 0 or 1.
type MaterialInfo struct {
	HasAlbedo int32
	HasNormal int32
}

// Material owns its descriptor set, info UBO and optional textures.
type Material struct {
	ID     uuid.UUID
	Name   string
	Set    vk.DescriptorSet
	Info   *UBO[MaterialInfo]
	Albedo *Image
	Normal *Image
}

// CreateMaterial builds a material from two optional texture paths relative
// to the asset root. A texture that fails to load is logged and left out;
// the shader sees the matching flag cleared.
func (c *Context) CreateMaterial(albedoPath, normalPath, debugName string) (*Material, error) {
	m := &Material{ID: uuid.New(), Name: debugName}
	if m.Name == "" {
		m.Name = m.ID.String()
	}

	var err error
	if m.Set, err = allocateDescriptorSet(c.dev, c.pool, c.layouts[SetMaterial], "Material, "+m.Name); err != nil {
		return nil, err
	}
	if m.Info, err = NewUBO[MaterialInfo](c.dev, "Material Info, "+m.Name); err != nil {
		m.Destroy(c)
		return nil, err
	}

	m.Albedo = c.loadOptionalTexture(albedoPath, "albedo", m.Name)
	m.Normal = c.loadOptionalTexture(normalPath, "normal", m.Name)
	m.Info.Data = MaterialInfo{HasAlbedo: boolToInt32(m.Albedo != nil), HasNormal: boolToInt32(m.Normal != nil)}
	if err := m.Info.Update(c.dev); err != nil {
		m.Destroy(c)
		return nil, err
	}

	c.dev.drv.UpdateDescriptorSets(materialWrites(m, c.sampler))
	return m, nil
}

func (c *Context) loadOptionalTexture(path, kind, material string) *Image {
	if path == "" {
		return nil
	}
	if c.textures == nil {
		core.LogWarn("Material '%s': no texture source, skipping %s map.", material, kind)
		return nil
	}
	img, err := ImageFromFile(c.dev, c.textures, path)
	if err != nil {
		core.LogWarn("Material '%s': %s map '%s' not loaded: %v", material, kind, path, err)
		return nil
	}
	return img
}

// materialWrites binds the info block and only the textures that loaded.
func materialWrites(m *Material, sampler vk.Sampler) []vk.WriteDescriptorSet {
	writes := []vk.WriteDescriptorSet{
		bufferWrite(m.Set, 0, vk.DescriptorTypeUniformBuffer, m.Info.Handle(), m.Info.Size()),
	}
	if m.Albedo != nil {
		writes = append(writes, imageWrite(m.Set, 1, sampler, m.Albedo.View, vk.ImageLayoutShaderReadOnlyOptimal))
	}
	if m.Normal != nil {
		writes = append(writes, imageWrite(m.Set, 2, sampler, m.Normal.View, vk.ImageLayoutShaderReadOnlyOptimal))
	}
	return writes
}

// Destroy frees the set, the UBO and the textures. The device must be idle
// with respect to any frame that bound the material.
func (m *Material) Destroy(c *Context) {
	if m == nil {
		return
	}
	freeDescriptorSet(c.dev, c.pool, m.Set)
	m.Set = nil
	m.Info.Destroy(c.dev)
	m.Albedo.Destroy(c.dev)
	m.Normal.Destroy(c.dev)
	m.Albedo, m.Normal = nil, nil
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
