package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

var setLayoutNames = [...]string{
	SetObject:    "Object",
	SetCamera:    "Camera",
	SetLightCull: "Light Culling",
	SetInter:     "Intermediate",
	SetMaterial:  "Material",
}

func stages(bits ...vk.ShaderStageFlagBits) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	for _, b := range bits {
		out |= vk.ShaderStageFlags(b)
	}
	return out
}

func binding(n uint32, t vk.DescriptorType, s vk.ShaderStageFlags) vk.DescriptorSetLayoutBinding {
	return vk.DescriptorSetLayoutBinding{Binding: n, DescriptorType: t, DescriptorCount: 1, StageFlags: s}
}

// setLayoutBindings describes the five descriptor set layouts, indexed by
// the Set* constants.
func setLayoutBindings() [5][]vk.DescriptorSetLayoutBinding {
	var out [5][]vk.DescriptorSetLayoutBinding
	fragCompute := stages(vk.ShaderStageFragmentBit, vk.ShaderStageComputeBit)
	frag := stages(vk.ShaderStageFragmentBit)

	out[SetObject] = []vk.DescriptorSetLayoutBinding{
		binding(0, vk.DescriptorTypeUniformBuffer, stages(vk.ShaderStageVertexBit)),
	}
	out[SetCamera] = []vk.DescriptorSetLayoutBinding{
		binding(0, vk.DescriptorTypeUniformBuffer, stages(vk.ShaderStageVertexBit, vk.ShaderStageFragmentBit, vk.ShaderStageComputeBit)),
	}
	out[SetLightCull] = []vk.DescriptorSetLayoutBinding{
		binding(0, vk.DescriptorTypeStorageBuffer, fragCompute),
		binding(1, vk.DescriptorTypeUniformBuffer, fragCompute),
	}
	out[SetInter] = []vk.DescriptorSetLayoutBinding{
		binding(0, vk.DescriptorTypeCombinedImageSampler, fragCompute),
	}
	out[SetMaterial] = []vk.DescriptorSetLayoutBinding{
		binding(0, vk.DescriptorTypeUniformBuffer, frag),
		binding(1, vk.DescriptorTypeCombinedImageSampler, frag),
		binding(2, vk.DescriptorTypeCombinedImageSampler, frag),
	}
	return out
}

type descriptorLayouts [5]vk.DescriptorSetLayout

// list picks layouts in pipeline set order.
func (l *descriptorLayouts) list(sets ...uint32) []vk.DescriptorSetLayout {
	out := make([]vk.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		out[i] = l[s]
	}
	return out
}

func createDescriptorSetLayouts(dev *Device) (descriptorLayouts, error) {
	var out descriptorLayouts
	for i, bindings := range setLayoutBindings() {
		info := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		err := dev.locks.SafeCall(DescriptorManagement, func() error {
			return checkResult(vk.CreateDescriptorSetLayout(dev.Handle, &info, nil, &out[i]), "vkCreateDescriptorSetLayout")
		})
		if err != nil {
			out.destroy(dev)
			return out, err
		}
		dev.SetDebugName(vk.DebugReportObjectTypeDescriptorSetLayout, handleID(out[i]), "Desc. Set Layout, "+setLayoutNames[i])
	}
	return out, nil
}

func (l *descriptorLayouts) destroy(dev *Device) {
	for i := range l {
		if l[i] != nil {
			vk.DestroyDescriptorSetLayout(dev.Handle, l[i], nil)
			l[i] = nil
		}
	}
}

func descriptorPoolSizes() []vk.DescriptorPoolSize {
	return []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: descriptorPoolUniforms},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: descriptorPoolSamplers},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: descriptorPoolStorage},
	}
}

func createDescriptorPool(dev *Device) (vk.DescriptorPool, error) {
	sizes := descriptorPoolSizes()
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       descriptorPoolMaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if err := checkResult(vk.CreateDescriptorPool(dev.Handle, &info, nil, &pool), "vkCreateDescriptorPool"); err != nil {
		return nil, err
	}
	return pool, nil
}

func allocateDescriptorSet(dev *Device, pool vk.DescriptorPool, layout vk.DescriptorSetLayout, name string) (vk.DescriptorSet, error) {
	set, res := dev.drv.AllocateDescriptorSet(pool, layout)
	if err := checkResult(res, "vkAllocateDescriptorSets"); err != nil {
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypeDescriptorSet, handleID(set), "Desc. Set, "+name)
	return set, nil
}

func freeDescriptorSet(dev *Device, pool vk.DescriptorPool, set vk.DescriptorSet) {
	if set == nil {
		return
	}
	if res := dev.drv.FreeDescriptorSet(pool, set); res != vk.Success {
		core.LogWarn("vkFreeDescriptorSets: %s", VulkanResultString(res, false))
	}
}

// contextSets are the sets the Context allocates once. Materials allocate
// their own.
type contextSets struct {
	object    vk.DescriptorSet
	camera    vk.DescriptorSet
	lightCull vk.DescriptorSet
	inter     vk.DescriptorSet
}

func bufferWrite(set vk.DescriptorSet, binding uint32, t vk.DescriptorType, buffer vk.Buffer, size vk.DeviceSize) vk.WriteDescriptorSet {
	return vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  t,
		PBufferInfo:     []vk.DescriptorBufferInfo{{Buffer: buffer, Offset: 0, Range: size}},
	}
}

func imageWrite(set vk.DescriptorSet, binding uint32, sampler vk.Sampler, view vk.ImageView, layout vk.ImageLayout) vk.WriteDescriptorSet {
	return vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo:      []vk.DescriptorImageInfo{{Sampler: sampler, ImageView: view, ImageLayout: layout}},
	}
}

// createSampler builds the linear, repeating sampler shared by every texture
// and the depth read, with the device's maximum anisotropy when supported.
func createSampler(dev *Device) (vk.Sampler, error) {
	dev.Properties.Limits.Deref()
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        dev.Features.SamplerAnisotropy,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	if dev.Features.SamplerAnisotropy == vk.True {
		info.MaxAnisotropy = dev.Properties.Limits.MaxSamplerAnisotropy
	}
	var sampler vk.Sampler
	if err := checkResult(vk.CreateSampler(dev.Handle, &info, nil, &sampler), "vkCreateSampler"); err != nil {
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypeSampler, handleID(sampler), "Sampler, Texture")
	return sampler, nil
}
