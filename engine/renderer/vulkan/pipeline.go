package vulkan

import (
	"encoding/binary"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
)

// Pipeline owns a pipeline, its layout and the shader modules it was built
// from. All three are destroyed together.
type Pipeline struct {
	Handle    vk.Pipeline
	Layout    vk.PipelineLayout
	Shaders   []vk.ShaderModule
	BindPoint vk.PipelineBindPoint
}

func (p *Pipeline) Destroy(dev *Device) {
	if p == nil {
		return
	}
	if p.Handle != nil {
		dev.drv.DestroyPipeline(p.Handle)
		p.Handle = nil
	}
	if p.Layout != nil {
		dev.drv.DestroyPipelineLayout(p.Layout)
		p.Layout = nil
	}
	for _, m := range p.Shaders {
		dev.drv.DestroyShaderModule(m)
	}
	p.Shaders = nil
}

// pushConstants is the block shared by the forward+ fragment stage and the
// light culling compute stage.
type pushConstants struct {
	Viewport  [2]uint32
	TileNums  [2]uint32
	DebugView int32
}

const pushConstantsSize = 20

func (p pushConstants) bytes() []byte {
	out := make([]byte, pushConstantsSize)
	binary.LittleEndian.PutUint32(out[0:], p.Viewport[0])
	binary.LittleEndian.PutUint32(out[4:], p.Viewport[1])
	binary.LittleEndian.PutUint32(out[8:], p.TileNums[0])
	binary.LittleEndian.PutUint32(out[12:], p.TileNums[1])
	binary.LittleEndian.PutUint32(out[16:], uint32(p.DebugView))
	return out
}

// vertexAttributes maps fmath.Vertex onto shader locations 0..3. The
// binormal is carried in the stride but not read.
func vertexAttributes() []vk.VertexInputAttributeDescription {
	var v fmath.Vertex
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(v.Position))},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(v.Colour))},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: uint32(unsafe.Offsetof(v.UV))},
		{Location: 3, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(v.Normal))},
	}
}

var vertexStride = uint32(unsafe.Sizeof(fmath.Vertex{}))

type graphicsPipelineConfig struct {
	Name          string
	Pass          vk.RenderPass
	Extent        vk.Extent2D
	Attributes    []vk.VertexInputAttributeDescription
	SetLayouts    []vk.DescriptorSetLayout
	PushConstants []vk.PushConstantRange
	Stages        []vk.PipelineShaderStageCreateInfo
	DepthWrite    bool
	DepthCompare  vk.CompareOp
	// ColorBlend adds one alpha-blended colour attachment.
	ColorBlend bool
}

func createPipelineLayout(dev *Device, setLayouts []vk.DescriptorSetLayout, ranges []vk.PushConstantRange, name string) (vk.PipelineLayout, error) {
	info := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	layout, res := dev.drv.CreatePipelineLayout(&info)
	if err := checkResult(res, "vkCreatePipelineLayout"); err != nil {
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypePipelineLayout, handleID(layout), "Pipeline Layout, "+name)
	return layout, nil
}

func newGraphicsPipeline(dev *Device, cfg graphicsPipelineConfig, shaders []vk.ShaderModule) (*Pipeline, error) {
	out := &Pipeline{Shaders: shaders, BindPoint: vk.PipelineBindPointGraphics}

	layout, err := createPipelineLayout(dev, cfg.SetLayouts, cfg.PushConstants, cfg.Name)
	if err != nil {
		out.Destroy(dev)
		return nil, err
	}
	out.Layout = layout

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			Width:    float32(cfg.Extent.Width),
			Height:   float32(cfg.Extent.Height),
			MinDepth: 0.0,
			MaxDepth: 1.0,
		}},
		ScissorCount: 1,
		PScissors:    []vk.Rect2D{{Extent: cfg.Extent}},
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:   vk.FrontFaceCounterClockwise,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vk.True,
		DepthWriteEnable: boolToVk(cfg.DepthWrite),
		DepthCompareOp:   cfg.DepthCompare,
		MinDepthBounds:   0.0,
		MaxDepthBounds:   1.0,
	}

	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:   vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp: vk.LogicOpCopy,
	}
	if cfg.ColorBlend {
		colorBlend.AttachmentCount = 1
		colorBlend.PAttachments = []vk.PipelineColorBlendAttachmentState{{
			BlendEnable:         vk.True,
			SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
			DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorOne,
			DstAlphaBlendFactor: vk.BlendFactorZero,
			AlphaBlendOp:        vk.BlendOpAdd,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
		}}
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    vertexStride,
			InputRate: vk.VertexInputRateVertex,
		}},
		VertexAttributeDescriptionCount: uint32(len(cfg.Attributes)),
		PVertexAttributeDescriptions:    cfg.Attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(cfg.Stages)),
		PStages:             cfg.Stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		Layout:              out.Layout,
		RenderPass:          cfg.Pass,
		Subpass:             0,
		BasePipelineIndex:   -1,
	}

	handle, res := dev.drv.CreateGraphicsPipeline(&info)
	if err := checkResult(res, "vkCreateGraphicsPipelines ("+cfg.Name+")"); err != nil {
		out.Destroy(dev)
		return nil, err
	}
	out.Handle = handle
	dev.SetDebugName(vk.DebugReportObjectTypePipeline, handleID(out.Handle), "Pipeline, "+cfg.Name)
	core.LogDebug("Graphics pipeline '%s' created.", cfg.Name)
	return out, nil
}

func loadModules(dev *Device, shaders ShaderSource, names ...string) ([]vk.ShaderModule, error) {
	modules := make([]vk.ShaderModule, 0, len(names))
	for _, name := range names {
		m, err := createShaderModule(dev, shaders, name)
		if err != nil {
			for _, prev := range modules {
				dev.drv.DestroyShaderModule(prev)
			}
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// newDepthPipeline writes depth only, from vertex positions.
func newDepthPipeline(dev *Device, shaders ShaderSource, pass vk.RenderPass, extent vk.Extent2D, setLayouts []vk.DescriptorSetLayout) (*Pipeline, error) {
	modules, err := loadModules(dev, shaders, shaderDepthVert)
	if err != nil {
		return nil, err
	}
	return newGraphicsPipeline(dev, graphicsPipelineConfig{
		Name:         "Depth Pre-pass",
		Pass:         pass,
		Extent:       extent,
		Attributes:   vertexAttributes()[:1],
		SetLayouts:   setLayouts,
		Stages:       []vk.PipelineShaderStageCreateInfo{shaderStage(vk.ShaderStageVertexBit, modules[0])},
		DepthWrite:   true,
		DepthCompare: vk.CompareOpLess,
	}, modules)
}

// newForwardPipeline shades against the pre-pass depth, which it does not
// write.
func newForwardPipeline(dev *Device, shaders ShaderSource, pass vk.RenderPass, extent vk.Extent2D, setLayouts []vk.DescriptorSetLayout) (*Pipeline, error) {
	modules, err := loadModules(dev, shaders, shaderForwardVert, shaderForwardFrag)
	if err != nil {
		return nil, err
	}
	return newGraphicsPipeline(dev, graphicsPipelineConfig{
		Name:       "Render",
		Pass:       pass,
		Extent:     extent,
		Attributes: vertexAttributes(),
		SetLayouts: setLayouts,
		PushConstants: []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			Size:       pushConstantsSize,
		}},
		Stages: []vk.PipelineShaderStageCreateInfo{
			shaderStage(vk.ShaderStageVertexBit, modules[0]),
			shaderStage(vk.ShaderStageFragmentBit, modules[1]),
		},
		DepthCompare: vk.CompareOpLessOrEqual,
		ColorBlend:   true,
	}, modules)
}

func newLightCullPipeline(dev *Device, shaders ShaderSource, setLayouts []vk.DescriptorSetLayout) (*Pipeline, error) {
	const name = "Light Culling Compute"
	modules, err := loadModules(dev, shaders, shaderLightCullComp)
	if err != nil {
		return nil, err
	}
	out := &Pipeline{Shaders: modules, BindPoint: vk.PipelineBindPointCompute}

	ranges := []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		Size:       pushConstantsSize,
	}}
	if out.Layout, err = createPipelineLayout(dev, setLayouts, ranges, name); err != nil {
		out.Destroy(dev)
		return nil, err
	}

	info := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Layout: out.Layout,
		Stage:  shaderStage(vk.ShaderStageComputeBit, modules[0]),
	}
	handle, res := dev.drv.CreateComputePipeline(&info)
	if err := checkResult(res, "vkCreateComputePipelines"); err != nil {
		out.Destroy(dev)
		return nil, err
	}
	out.Handle = handle
	dev.SetDebugName(vk.DebugReportObjectTypePipeline, handleID(out.Handle), "Pipeline, "+name)
	core.LogDebug("Compute pipeline '%s' created.", name)
	return out, nil
}
