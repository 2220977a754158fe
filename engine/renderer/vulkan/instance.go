package vulkan

import (
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

const (
	physicalDeviceProperties2ExtensionName = "VK_KHR_get_physical_device_properties2"
	portabilityEnumerationExtensionName    = "VK_KHR_portability_enumeration"
)

// InitLoader points the bindings at the platform loader. It must run once
// before any other call in this package.
func InitLoader(procAddr unsafe.Pointer) error {
	if procAddr == nil {
		return core.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return core.Wrapf(err, "failed to initialize vk")
	}
	return nil
}

// instanceExtensions is the extension list the renderer asks the loader for
// on top of what the window system needs.
func instanceExtensions(windowExtensions []string, validation bool) []string {
	out := append([]string{}, windowExtensions...)
	out = append(out, physicalDeviceProperties2ExtensionName)
	if runtime.GOOS == "darwin" {
		out = append(out, portabilityEnumerationExtensionName)
	}
	if validation {
		out = append(out, vk.ExtDebugUtilsExtensionName, vk.ExtDebugReportExtensionName)
	}
	return dedupStrings(out)
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// missingLayers returns the entries of required absent from available.
func missingLayers(required, available []string) []string {
	var missing []string
	for _, r := range required {
		found := false
		for _, a := range available {
			if a == r {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, r)
		}
	}
	return missing
}

func enumerateInstanceLayers() ([]string, error) {
	var count uint32
	if err := checkResult(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, count)
	if count > 0 {
		if err := checkResult(vk.EnumerateInstanceLayerProperties(&count, props), "vkEnumerateInstanceLayerProperties"); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, count)
	for i := range props {
		props[i].Deref()
		names = append(names, cString(props[i].LayerName[:]))
	}
	return names, nil
}

// createInstance builds the Vulkan instance and loads its entry points.
func createInstance(appName string, windowExtensions []string, validation bool) (vk.Instance, error) {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(applicationVersionMajor, applicationVersionMinor, 0)),
		PApplicationName:   VulkanSafeString(appName),
		EngineVersion:      uint32(vk.MakeVersion(applicationVersionMajor, applicationVersionMinor, 0)),
		PEngineName:        VulkanSafeString(engineName),
	}

	extensions := instanceExtensions(windowExtensions, validation)
	core.LogInfo("Required extensions:")
	for _, ext := range extensions {
		core.LogInfo("  %s", ext)
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}
	if runtime.GOOS == "darwin" {
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		available, err := enumerateInstanceLayers()
		if err != nil {
			return nil, err
		}
		required := []string{validationLayerName}
		if missing := missingLayers(required, available); len(missing) > 0 {
			return nil, core.Wrapf(core.ErrMissingLayer, "%v", missing)
		}
		core.LogInfo("All required validation layers are present.")
		layers = required
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return nil, core.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, core.Wrapf(err, "vk.InitInstance failed")
	}
	core.LogInfo("Vulkan Instance created.")
	return instance, nil
}
