package vulkan

import "unsafe"

// Light culling works on square screen tiles. Each tile owns a record of
// one uint32 count followed by MaxPointLightsPerTile uint32 light indices.
const (
	TileSize              uint32 = 16
	MaxPointLightsPerTile uint32 = 1023
	TileBufferSize        uint32 = 4 * (MaxPointLightsPerTile + 1)
)

const (
	MaxPointLightCount = 2000
	// count (padded to 16 bytes) followed by the light array
	PointLightBufferSize = uint32(unsafe.Sizeof(PointLight{}))*MaxPointLightCount + 16
)

// Descriptor set indices as seen by the shaders.
const (
	SetObject    uint32 = 0
	SetCamera    uint32 = 1
	SetLightCull uint32 = 2
	SetInter     uint32 = 3
	SetMaterial  uint32 = 4
)

// Descriptor pool capacity.
const (
	descriptorPoolUniforms = 100
	descriptorPoolSamplers = 100
	descriptorPoolStorage  = 3
	descriptorPoolMaxSets  = 200
)

const (
	applicationVersionMajor = 0
	applicationVersionMinor = 1
	engineName              = "forwardplus"
	validationLayerName     = "VK_LAYER_KHRONOS_validation"
	// informational reports from this layer prefix are dropped
	loaderMessagePrefix = "Loader Message"
)

var clearColor = [4]float32{0.0, 0.0, 0.0, 1.0}
