package vulkan

import (
	vk "github.com/goki/vulkan"
)

// renderPassDesc is a single-subpass render pass. The colour attachment, if
// any, is attachment 0 and depth follows it.
type renderPassDesc struct {
	Attachments []vk.AttachmentDescription
	Color       []vk.AttachmentReference
	Depth       *vk.AttachmentReference
}

var externalDependency = vk.SubpassDependency{
	SrcSubpass:    vk.SubpassExternal,
	DstSubpass:    0,
	SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
	DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
	SrcAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit),
	DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
}

func depthAttachment(format vk.Format, load vk.AttachmentLoadOp, store vk.AttachmentStoreOp, initial, final vk.ImageLayout) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         load,
		StoreOp:        store,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  initial,
		FinalLayout:    final,
	}
}

func colorAttachment(format vk.Format, load vk.AttachmentLoadOp, initial vk.ImageLayout) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         load,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  initial,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}
}

// prepassDesc clears and writes depth, leaving it read-only for the light
// culling and geometry stages.
func prepassDesc(depth vk.Format) renderPassDesc {
	return renderPassDesc{
		Attachments: []vk.AttachmentDescription{
			depthAttachment(depth, vk.AttachmentLoadOpClear, vk.AttachmentStoreOpStore,
				vk.ImageLayoutDepthStencilAttachmentOptimal, vk.ImageLayoutDepthStencilReadOnlyOptimal),
		},
		Depth: &vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal},
	}
}

// mainPassDesc tests against the pre-pass depth without writing it.
func mainPassDesc(color, depth vk.Format) renderPassDesc {
	return renderPassDesc{
		Attachments: []vk.AttachmentDescription{
			colorAttachment(color, vk.AttachmentLoadOpClear, vk.ImageLayoutUndefined),
			depthAttachment(depth, vk.AttachmentLoadOpLoad, vk.AttachmentStoreOpDontCare,
				vk.ImageLayoutDepthStencilReadOnlyOptimal, vk.ImageLayoutDepthStencilAttachmentOptimal),
		},
		Color: []vk.AttachmentReference{{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}},
		Depth: &vk.AttachmentReference{Attachment: 1, Layout: vk.ImageLayoutDepthStencilReadOnlyOptimal},
	}
}

// overlayPassDesc draws on top of the presented geometry, so colour is
// loaded rather than cleared.
func overlayPassDesc(color, depth vk.Format) renderPassDesc {
	return renderPassDesc{
		Attachments: []vk.AttachmentDescription{
			colorAttachment(color, vk.AttachmentLoadOpLoad, vk.ImageLayoutPresentSrc),
			depthAttachment(depth, vk.AttachmentLoadOpLoad, vk.AttachmentStoreOpDontCare,
				vk.ImageLayoutDepthStencilAttachmentOptimal, vk.ImageLayoutDepthStencilAttachmentOptimal),
		},
		Color: []vk.AttachmentReference{{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}},
		Depth: &vk.AttachmentReference{Attachment: 1, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal},
	}
}

func (d renderPassDesc) createInfo() vk.RenderPassCreateInfo {
	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(d.Color)),
		PColorAttachments:       d.Color,
		PDepthStencilAttachment: d.Depth,
	}
	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(d.Attachments)),
		PAttachments:    d.Attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{externalDependency},
	}
}

func createRenderPass(dev *Device, desc renderPassDesc, name string) (vk.RenderPass, error) {
	info := desc.createInfo()
	pass, res := dev.drv.CreateRenderPass(&info)
	if err := checkResult(res, "vkCreateRenderPass ("+name+")"); err != nil {
		return nil, err
	}
	dev.SetDebugName(vk.DebugReportObjectTypeRenderPass, handleID(pass), name)
	return pass, nil
}
