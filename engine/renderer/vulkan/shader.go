package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// Compiled shader modules, relative to the shader directory.
const (
	shaderDepthVert     = "depth.vert.spv"
	shaderForwardVert   = "fwdplus.vert.spv"
	shaderForwardFrag   = "fwdplus.frag.spv"
	shaderLightCullComp = "lightcull.comp.spv"
)

// ShaderSource hands out SPIR-V modules by file name.
type ShaderSource interface {
	LoadSPIRV(name string) ([]uint32, error)
}

func createShaderModule(dev *Device, shaders ShaderSource, name string) (vk.ShaderModule, error) {
	code, err := shaders.LoadSPIRV(name)
	if err != nil {
		return nil, core.Wrapf(err, "unable to read shader module: %s", name)
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
	module, res := dev.drv.CreateShaderModule(&info)
	if err := checkResult(res, "vkCreateShaderModule ("+name+")"); err != nil {
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypeShaderModule, handleID(module), "Shader, "+name)
	return module, nil
}

func shaderStage(stage vk.ShaderStageFlagBits, module vk.ShaderModule) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: module,
		PName:  VulkanSafeString("main"),
	}
}
