package vulkan

import (
	"strings"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// debugNamePrefix marks every object this renderer names.
const debugNamePrefix = "FWD: "

// handleID turns a Vulkan handle into the uint64 debug reports identify
// objects by. H must be one of the pointer-sized vk handle types.
func handleID[H any](h H) uint64 {
	if unsafe.Sizeof(h) != unsafe.Sizeof(uintptr(0)) {
		panic("handleID: not a pointer-sized handle")
	}
	return uint64(*(*uintptr)(unsafe.Pointer(&h)))
}

// nameRegistry maps object handles to the names validation messages are
// annotated with.
type nameRegistry struct {
	mu    sync.RWMutex
	names map[uint64]string
}

func (r *nameRegistry) set(handle uint64, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names == nil {
		r.names = make(map[uint64]string)
	}
	r.names[handle] = name
}

func (r *nameRegistry) lookup(handle uint64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.names[handle]
	return n, ok
}

func (r *nameRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = nil
}

// objectNames is shared with the debug report callback, which has no
// device to hang state off.
var objectNames nameRegistry

// SetDebugName records a name for handle. Validation reports about that
// object carry the name. It does nothing when naming is disabled.
func (d *Device) SetDebugName(objectType vk.DebugReportObjectType, handle uint64, name string) {
	if d == nil || !d.debugNames || handle == 0 {
		return
	}
	objectNames.set(handle, debugNamePrefix+name)
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	routeDebugReport(flags, pLayerPrefix, messageCode, annotateReport(object, pMessage))
	return vk.Bool32(vk.False)
}

// annotateReport prefixes msg with the registered name of object, if any.
func annotateReport(object uint64, msg string) string {
	if object == 0 {
		return msg
	}
	if name, ok := objectNames.lookup(object); ok {
		return "(" + name + ") " + msg
	}
	return msg
}

// routeDebugReport forwards a validation report to the logger matching its
// severity. Informational loader chatter is dropped.
func routeDebugReport(flags vk.DebugReportFlags, prefix string, code int32, msg string) bool {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", prefix, code, msg)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", prefix, code, msg)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", prefix, code, msg)
	case strings.HasPrefix(prefix, loaderMessagePrefix) || strings.HasPrefix(msg, loaderMessagePrefix):
		return false
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", prefix, code, msg)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", prefix, code, msg)
	}
	return true
}

func createDebugReport(instance vk.Instance) (vk.DebugReportCallback, error) {
	core.LogDebug("Creating Vulkan debugger...")
	info := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit | vk.DebugReportInformationBit),
		PfnCallback: dbgCallbackFunc,
	}
	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(instance, &info, nil, &dbg)); err != nil {
		return nil, core.Wrapf(err, "vk.CreateDebugReportCallback failed")
	}
	core.LogDebug("Vulkan debugger created.")
	return dbg, nil
}
