package vulkan

import (
	vk "github.com/goki/vulkan"
)

// createFramebuffer binds attachments, in render pass order, to pass.
func createFramebuffer(dev *Device, pass vk.RenderPass, extent vk.Extent2D, attachments ...vk.ImageView) (vk.Framebuffer, error) {
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	fb, res := dev.drv.CreateFramebuffer(&info)
	if err := checkResult(res, "vkCreateFramebuffer"); err != nil {
		return nil, err
	}
	return fb, nil
}
