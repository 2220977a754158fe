package vulkan

import (
	"fmt"
	"io"
	"strings"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

const vkdiagUsage = "usage: vkdiag ext|gpu|queue"

// Extension is an extension name with its specVersion.
type Extension struct {
	Name    string
	Version uint32
}

// GPUInfo is the part of the physical device report vkdiag gpu prints.
type GPUInfo struct {
	Name          string
	DriverVersion uint32
	APIVersion    uint32
	Features      DeviceFeatures
	DualSrcBlend  bool
}

// Vkdiag writes the diagnostics for the Context's GPU.
func (c *Context) Vkdiag(w io.Writer, args []string) error {
	return vkdiag(w, c.dev.PhysicalDevice, args)
}

// Vkdiag runs without a window: it creates a bare instance, reports on the
// first physical device and tears the instance down again.
func Vkdiag(w io.Writer, procAddr unsafe.Pointer, args []string) error {
	if _, err := vkdiagCommand(args); err != nil {
		return err
	}
	if err := InitLoader(procAddr); err != nil {
		return err
	}
	instance, err := createInstance("vkdiag", nil, false)
	if err != nil {
		return err
	}
	defer vk.DestroyInstance(instance, nil)

	var count uint32
	if err := checkResult(vk.EnumeratePhysicalDevices(instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	if count == 0 {
		return core.Wrapf(core.ErrNoSuitableDevice, "no physical devices")
	}
	gpus := make([]vk.PhysicalDevice, count)
	if err := checkResult(vk.EnumeratePhysicalDevices(instance, &count, gpus), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	return vkdiag(w, gpus[0], args)
}

func vkdiagCommand(args []string) (string, error) {
	if len(args) == 0 {
		return "", core.Errorf("%s", vkdiagUsage)
	}
	switch args[0] {
	case "ext", "gpu", "queue":
		return args[0], nil
	default:
		return "", core.Errorf("unknown vkdiag command '%s', %s", args[0], vkdiagUsage)
	}
}

func vkdiag(w io.Writer, gpu vk.PhysicalDevice, args []string) error {
	cmd, err := vkdiagCommand(args)
	if err != nil {
		return err
	}
	switch cmd {
	case "ext":
		inst, err := instanceExtensionList()
		if err != nil {
			return err
		}
		dev, err := deviceExtensionList(gpu)
		if err != nil {
			return err
		}
		return writeExtensions(w, inst, dev)
	case "gpu":
		return writeGPU(w, gpuInfo(gpu))
	default:
		props := queueFamilyProperties(gpu)
		families := make([]QueueFamily, len(props))
		for i, p := range props {
			families[i] = QueueFamily{Flags: p.QueueFlags, Count: p.QueueCount}
		}
		return writeQueueFamilies(w, families)
	}
}

func extensionList(props []vk.ExtensionProperties) []Extension {
	out := make([]Extension, len(props))
	for i := range props {
		props[i].Deref()
		out[i] = Extension{Name: cString(props[i].ExtensionName[:]), Version: props[i].SpecVersion}
	}
	return out
}

func instanceExtensionList() ([]Extension, error) {
	var count uint32
	if err := checkResult(vk.EnumerateInstanceExtensionProperties("", &count, nil), "vkEnumerateInstanceExtensionProperties"); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := checkResult(vk.EnumerateInstanceExtensionProperties("", &count, props), "vkEnumerateInstanceExtensionProperties"); err != nil {
			return nil, err
		}
	}
	return extensionList(props), nil
}

func deviceExtensionList(gpu vk.PhysicalDevice) ([]Extension, error) {
	var count uint32
	if err := checkResult(vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := checkResult(vk.EnumerateDeviceExtensionProperties(gpu, "", &count, props), "vkEnumerateDeviceExtensionProperties"); err != nil {
			return nil, err
		}
	}
	return extensionList(props), nil
}

func gpuInfo(gpu vk.PhysicalDevice) GPUInfo {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()
	var feats vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(gpu, &feats)
	feats.Deref()

	return GPUInfo{
		Name:          cString(props.DeviceName[:]),
		DriverVersion: props.DriverVersion,
		APIVersion:    props.ApiVersion,
		Features: DeviceFeatures{
			TessellationShader: feats.TessellationShader == vk.True,
			LogicOp:            feats.LogicOp == vk.True,
			MultiViewport:      feats.MultiViewport == vk.True,
			SamplerAnisotropy:  feats.SamplerAnisotropy == vk.True,
		},
		DualSrcBlend: feats.DualSrcBlend == vk.True,
	}
}

func writeExtensions(w io.Writer, instance, device []Extension) error {
	var b strings.Builder
	b.WriteString("All supported instance extensions:\n")
	for _, e := range instance {
		fmt.Fprintf(&b, "\t%s (vers. %d)\n", e.Name, e.Version)
	}
	b.WriteString("All supported device extensions:\n")
	for _, e := range device {
		fmt.Fprintf(&b, "\t%s (vers. %d)\n", e.Name, e.Version)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func writeGPU(w io.Writer, info GPUInfo) error {
	var b strings.Builder
	b.WriteString("Physical device information:\n")
	fmt.Fprintf(&b, "Name: %s\n", info.Name)
	fmt.Fprintf(&b, "\tDriver version: %s\n", versionString(info.DriverVersion))
	fmt.Fprintf(&b, "\tAPI version: %s\n", versionString(info.APIVersion))
	fmt.Fprintf(&b, "\tSupports tessellation shaders: %s\n", yesNo(info.Features.TessellationShader))
	fmt.Fprintf(&b, "\tSupports dual-source blending: %s\n", yesNo(info.DualSrcBlend))
	fmt.Fprintf(&b, "\tSupports logic operations: %s\n", yesNo(info.Features.LogicOp))
	fmt.Fprintf(&b, "\tSupports anisotropic filtering: %s\n", yesNo(info.Features.SamplerAnisotropy))
	_, err := io.WriteString(w, b.String())
	return err
}

var queueFlagNames = []struct {
	bit  vk.QueueFlagBits
	name string
}{
	{vk.QueueGraphicsBit, "Graphics"},
	{vk.QueueComputeBit, "Compute"},
	{vk.QueueTransferBit, "Transfer"},
	{vk.QueueSparseBindingBit, "SparseBinding"},
}

// queueFlagsString renders flags as "Graphics | Compute". Unknown bits are
// printed in hex.
func queueFlagsString(flags vk.QueueFlags) string {
	var parts []string
	rest := flags
	for _, f := range queueFlagNames {
		if hasFlags(flags, f.bit) {
			parts = append(parts, f.name)
			rest &^= vk.QueueFlags(f.bit)
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, " | ")
}

func writeQueueFamilies(w io.Writer, families []QueueFamily) error {
	var b strings.Builder
	b.WriteString("All device queue families:\n")
	for i, f := range families {
		fmt.Fprintf(&b, "- Queue Family %d\n", i)
		fmt.Fprintf(&b, "Flags: %s\n", queueFlagsString(f.Flags))
		fmt.Fprintf(&b, "Queue count: %d\n", f.Count)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
