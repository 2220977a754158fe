package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// Device is everything that lives as long as the Context and never changes
// after bootstrap: instance, surface, GPU, logical device, queues and pools.
type Device struct {
	Instance       vk.Instance
	Surface        vk.Surface
	PhysicalDevice vk.PhysicalDevice
	Handle         vk.Device

	Families QueueFamilies

	GraphicsQueue vk.Queue
	ComputeQueue  vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	GraphicsPool vk.CommandPool
	ComputePool  vk.CommandPool
	TransferPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures

	DepthFormat vk.Format

	debugNames  bool
	debugReport vk.DebugReportCallback

	drv   driver
	alloc Allocator
	locks *VulkanLockPool
}

// Allocator exposes the memory allocator used for buffers and images.
func (d *Device) Allocator() Allocator { return d.alloc }

func enumerateDeviceExtensions(gpu vk.PhysicalDevice) ([]string, error) {
	exts, err := deviceExtensionList(gpu)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(exts))
	for i, e := range exts {
		names[i] = e.Name
	}
	return names, nil
}

func queueFamilyProperties(gpu vk.PhysicalDevice) []vk.QueueFamilyProperties {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)
	for i := range props {
		props[i].Deref()
	}
	return props
}

// describeDevice snapshots gpu for SelectDevice.
func describeDevice(gpu vk.PhysicalDevice, surface vk.Surface) (DeviceCandidate, error) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()

	var feats vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(gpu, &feats)
	feats.Deref()

	exts, err := enumerateDeviceExtensions(gpu)
	if err != nil {
		return DeviceCandidate{}, err
	}

	var formatCount, modeCount uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return DeviceCandidate{}, err
	}
	if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &modeCount, nil), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return DeviceCandidate{}, err
	}

	qprops := queueFamilyProperties(gpu)
	families := make([]QueueFamily, len(qprops))
	for j := range qprops {
		var supported vk.Bool32
		if err := checkResult(vk.GetPhysicalDeviceSurfaceSupport(gpu, uint32(j), surface, &supported), "vkGetPhysicalDeviceSurfaceSupport"); err != nil {
			return DeviceCandidate{}, err
		}
		families[j] = QueueFamily{
			Flags:   qprops[j].QueueFlags,
			Count:   qprops[j].QueueCount,
			Present: supported == vk.True,
		}
	}

	return DeviceCandidate{
		Name:     cString(props.DeviceName[:]),
		Discrete: props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu,
		Features: DeviceFeatures{
			TessellationShader: feats.TessellationShader == vk.True,
			LogicOp:            feats.LogicOp == vk.True,
			MultiViewport:      feats.MultiViewport == vk.True,
			SamplerAnisotropy:  feats.SamplerAnisotropy == vk.True,
		},
		Extensions:       exts,
		FormatCount:      int(formatCount),
		PresentModeCount: int(modeCount),
		Families:         families,
	}, nil
}

func selectPhysicalDevice(instance vk.Instance, surface vk.Surface) (vk.PhysicalDevice, DeviceCandidate, QueueFamilies, error) {
	var count uint32
	if err := checkResult(vk.EnumeratePhysicalDevices(instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, DeviceCandidate{}, QueueFamilies{}, err
	}
	gpus := make([]vk.PhysicalDevice, count)
	if count > 0 {
		if err := checkResult(vk.EnumeratePhysicalDevices(instance, &count, gpus), "vkEnumeratePhysicalDevices"); err != nil {
			return nil, DeviceCandidate{}, QueueFamilies{}, err
		}
	}

	candidates := make([]DeviceCandidate, len(gpus))
	for i, gpu := range gpus {
		c, err := describeDevice(gpu, surface)
		if err != nil {
			return nil, DeviceCandidate{}, QueueFamilies{}, err
		}
		candidates[i] = c
	}

	i, fams, err := SelectDevice(candidates)
	if err != nil {
		return nil, DeviceCandidate{}, QueueFamilies{}, err
	}
	return gpus[i], candidates[i], fams, nil
}

func logDeviceInfo(props vk.PhysicalDeviceProperties) {
	core.LogInfo("Selected device: '%s'.", cString(props.DeviceName[:]))
	switch props.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo("GPU Driver version: %s", versionString(props.DriverVersion))
	core.LogInfo("Vulkan API version: %s", versionString(props.ApiVersion))
}

// newDevice selects a GPU and creates the logical device, its queues and
// command pools. On error nothing it created is left alive.
func newDevice(instance vk.Instance, surface vk.Surface, validation, debugNames bool) (*Device, error) {
	gpu, candidate, fams, err := selectPhysicalDevice(instance, surface)
	if err != nil {
		return nil, err
	}

	d := &Device{
		Instance:       instance,
		Surface:        surface,
		PhysicalDevice: gpu,
		Families:       fams,
		locks:          NewVulkanLockPool(),
		debugNames:     debugNames,
	}
	vk.GetPhysicalDeviceProperties(gpu, &d.Properties)
	d.Properties.Deref()
	vk.GetPhysicalDeviceFeatures(gpu, &d.Features)
	d.Features.Deref()
	logDeviceInfo(d.Properties)

	core.LogInfo("Creating logical device...")

	priorities := []float32{1.0, 1.0}
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: fams.Graphics,
		QueueCount:       2,
		PQueuePriorities: priorities,
	}}
	if fams.Present != fams.Graphics {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: fams.Present,
			QueueCount:       1,
			PQueuePriorities: priorities[:1],
		})
	}
	queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: fams.Transfer,
		QueueCount:       1,
		PQueuePriorities: priorities[:1],
	})

	extensions := append([]string{}, requiredDeviceExtensions...)
	for _, ext := range candidate.Extensions {
		if ext == "VK_KHR_portability_subset" {
			core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
			extensions = append(extensions, ext)
		}
	}

	var layers []string
	if validation {
		layers = []string{validationLayerName}
	}

	deviceInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{d.Features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     VulkanSafeStrings(layers),
	}
	var handle vk.Device
	if err := checkResult(vk.CreateDevice(gpu, &deviceInfo, nil, &handle), "vkCreateDevice"); err != nil {
		return nil, err
	}
	d.Handle = handle
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(handle, fams.Graphics, 0, &d.GraphicsQueue)
	vk.GetDeviceQueue(handle, fams.Graphics, 1, &d.ComputeQueue)
	vk.GetDeviceQueue(handle, fams.Present, 0, &d.PresentQueue)
	vk.GetDeviceQueue(handle, fams.Transfer, 0, &d.TransferQueue)
	core.LogInfo("Queues obtained.")

	d.drv = newVkDriver(handle, d.locks)
	d.alloc = newVkAllocator(handle, gpu, d.locks)

	pools := []struct {
		dst    *vk.CommandPool
		family uint32
		name   string
	}{
		{&d.GraphicsPool, fams.Graphics, "Graphics"},
		{&d.ComputePool, fams.Graphics, "Compute"},
		{&d.TransferPool, fams.Transfer, "Transfer"},
	}
	for _, p := range pools {
		info := vk.CommandPoolCreateInfo{
			SType:            vk.StructureTypeCommandPoolCreateInfo,
			QueueFamilyIndex: p.family,
			Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		}
		if err := checkResult(vk.CreateCommandPool(handle, &info, nil, p.dst), "vkCreateCommandPool"); err != nil {
			d.Destroy()
			return nil, err
		}
		d.SetDebugName(vk.DebugReportObjectTypeCommandPool, handleID(*p.dst), "Command Pool, "+p.name)
	}
	core.LogInfo("Command pools created.")

	if d.DepthFormat = detectDepthFormat(gpu); d.DepthFormat == vk.FormatUndefined {
		d.Destroy()
		return nil, core.Errorf("failed to find a supported depth format")
	}
	return d, nil
}

// Destroy releases the pools and the logical device. Instance and surface
// belong to the Context.
func (d *Device) Destroy() {
	if d.Handle == nil {
		return
	}
	core.LogInfo("Destroying command pools...")
	for _, p := range []*vk.CommandPool{&d.GraphicsPool, &d.ComputePool, &d.TransferPool} {
		if *p != nil {
			vk.DestroyCommandPool(d.Handle, *p, nil)
			*p = nil
		}
	}
	d.GraphicsQueue, d.ComputeQueue, d.PresentQueue, d.TransferQueue = nil, nil, nil, nil

	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.Handle, nil)
	d.Handle = nil
	if d.debugNames {
		objectNames.reset()
	}
}

// WaitIdle blocks until every queue of the device is idle.
func (d *Device) WaitIdle() error {
	return checkResult(d.drv.DeviceWaitIdle(), "vkDeviceWaitIdle")
}

func detectDepthFormat(gpu vk.PhysicalDevice) vk.Format {
	return pickDepthFormat(func(f vk.Format) vk.FormatFeatureFlags {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(gpu, f, &properties)
		properties.Deref()
		return properties.OptimalTilingFeatures
	})
}

var depthFormatCandidates = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

// pickDepthFormat returns the first candidate usable both as the pre-pass
// attachment and as a sampled image, or FormatUndefined.
func pickDepthFormat(optimalFeatures func(vk.Format) vk.FormatFeatureFlags) vk.Format {
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit | vk.FormatFeatureSampledImageBit)
	for _, c := range depthFormatCandidates {
		if optimalFeatures(c)&flags == flags {
			return c
		}
	}
	return vk.FormatUndefined
}

func versionString(v uint32) string {
	ver := vk.Version(v)
	return fmt.Sprintf("%d.%d.%d", ver.Major(), ver.Minor(), ver.Patch())
}
