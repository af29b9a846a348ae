package vulkan

/*
#cgo linux LDFLAGS: -ldl
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#ifdef _WIN32
#include <windows.h>
#else
#include <dlfcn.h>
#endif

// The structures below are layout compatible with the Vulkan headers,
// they are declared here so the extension does not depend on the
// header version shipped with the bindings.

#define SP_STRUCTURE_TYPE_PHYSICAL_DEVICE_FEATURES_2                        1000059000
#define SP_STRUCTURE_TYPE_PHYSICAL_DEVICE_PROPERTIES_2                      1000059001
#define SP_STRUCTURE_TYPE_PHYSICAL_DEVICE_EXTENDED_SPARSE_ADDRESS_SPACE_FEATURES_NV   1000492000
#define SP_STRUCTURE_TYPE_PHYSICAL_DEVICE_EXTENDED_SPARSE_ADDRESS_SPACE_PROPERTIES_NV 1000492001

#define SP_FEATURE_COUNT 55

typedef void (*sp_void_fn)(void);
typedef sp_void_fn (*sp_get_instance_proc_addr)(void* instance, const char* name);
typedef void (*sp_get_physical_device_features2)(void* physicalDevice, void* features);
typedef void (*sp_get_physical_device_properties2)(void* physicalDevice, void* properties);

typedef struct {
	int32_t  sType;
	void*    pNext;
	uint32_t features[SP_FEATURE_COUNT];
} sp_features2;

typedef struct {
	int32_t  sType;
	void*    pNext;
	uint32_t extendedSparseAddressSpace;
} sp_extended_sparse_features;

// properties is larger than VkPhysicalDeviceProperties on every ABI
typedef struct {
	int32_t  sType;
	void*    pNext;
	uint64_t properties[128];
} sp_properties2;

typedef struct {
	int32_t  sType;
	void*    pNext;
	uint64_t extendedSparseAddressSpaceSize;
	uint32_t extendedSparseImageUsageFlags;
	uint32_t extendedSparseBufferUsageFlags;
} sp_extended_sparse_properties;

typedef struct {
	uint32_t features[SP_FEATURE_COUNT];
	uint32_t extendedSparseAddressSpace;
	uint64_t extendedSparseAddressSpaceSize;
	uint32_t extendedSparseImageUsageFlags;
	uint32_t extendedSparseBufferUsageFlags;
} sp_query_result;

typedef struct {
	sp_features2                features;
	sp_extended_sparse_features extended;
} sp_device_features;

static void* sp_load_get_instance_proc_addr(void) {
#ifdef _WIN32
	HMODULE lib = LoadLibraryA("vulkan-1.dll");
	if (lib == NULL) {
		return NULL;
	}
	return (void*)GetProcAddress(lib, "vkGetInstanceProcAddr");
#else
#ifdef __APPLE__
	void* lib = dlopen("libvulkan.1.dylib", RTLD_NOW | RTLD_LOCAL);
	if (lib == NULL) {
		lib = dlopen("libMoltenVK.dylib", RTLD_NOW | RTLD_LOCAL);
	}
#else
	void* lib = dlopen("libvulkan.so.1", RTLD_NOW | RTLD_LOCAL);
	if (lib == NULL) {
		lib = dlopen("libvulkan.so", RTLD_NOW | RTLD_LOCAL);
	}
#endif
	if (lib == NULL) {
		return NULL;
	}
	return dlsym(lib, "vkGetInstanceProcAddr");
#endif
}

static sp_void_fn sp_resolve(void* gipa, void* instance, const char* khr, const char* core) {
	sp_get_instance_proc_addr getInstanceProcAddr = (sp_get_instance_proc_addr)gipa;
	sp_void_fn fn = getInstanceProcAddr(instance, khr);
	if (fn == NULL) {
		fn = getInstanceProcAddr(instance, core);
	}
	return fn;
}

static int sp_query(void* gipa, void* instance, void* physicalDevice, int extended, sp_query_result* out) {
	sp_get_physical_device_features2 getFeatures2 = (sp_get_physical_device_features2)sp_resolve(
		gipa, instance, "vkGetPhysicalDeviceFeatures2KHR", "vkGetPhysicalDeviceFeatures2");
	sp_get_physical_device_properties2 getProperties2 = (sp_get_physical_device_properties2)sp_resolve(
		gipa, instance, "vkGetPhysicalDeviceProperties2KHR", "vkGetPhysicalDeviceProperties2");
	if (getFeatures2 == NULL || getProperties2 == NULL) {
		return -1;
	}

	sp_extended_sparse_features extendedFeatures;
	memset(&extendedFeatures, 0, sizeof(extendedFeatures));
	extendedFeatures.sType = SP_STRUCTURE_TYPE_PHYSICAL_DEVICE_EXTENDED_SPARSE_ADDRESS_SPACE_FEATURES_NV;

	sp_features2 features;
	memset(&features, 0, sizeof(features));
	features.sType = SP_STRUCTURE_TYPE_PHYSICAL_DEVICE_FEATURES_2;
	if (extended) {
		features.pNext = &extendedFeatures;
	}
	getFeatures2(physicalDevice, &features);

	sp_extended_sparse_properties extendedProperties;
	memset(&extendedProperties, 0, sizeof(extendedProperties));
	extendedProperties.sType = SP_STRUCTURE_TYPE_PHYSICAL_DEVICE_EXTENDED_SPARSE_ADDRESS_SPACE_PROPERTIES_NV;

	sp_properties2 properties;
	memset(&properties, 0, sizeof(properties));
	properties.sType = SP_STRUCTURE_TYPE_PHYSICAL_DEVICE_PROPERTIES_2;
	if (extended) {
		properties.pNext = &extendedProperties;
	}
	getProperties2(physicalDevice, &properties);

	memcpy(out->features, features.features, sizeof(out->features));
	out->extendedSparseAddressSpace = extendedFeatures.extendedSparseAddressSpace;
	out->extendedSparseAddressSpaceSize = extendedProperties.extendedSparseAddressSpaceSize;
	out->extendedSparseImageUsageFlags = extendedProperties.extendedSparseImageUsageFlags;
	out->extendedSparseBufferUsageFlags = extendedProperties.extendedSparseBufferUsageFlags;
	return 0;
}

static sp_device_features* sp_device_features_new(int extended) {
	sp_device_features* f = (sp_device_features*)calloc(1, sizeof(sp_device_features));
	if (f == NULL) {
		return NULL;
	}
	f->features.sType = SP_STRUCTURE_TYPE_PHYSICAL_DEVICE_FEATURES_2;
	f->extended.sType = SP_STRUCTURE_TYPE_PHYSICAL_DEVICE_EXTENDED_SPARSE_ADDRESS_SPACE_FEATURES_NV;
	if (extended) {
		f->features.pNext = &f->extended;
		f->extended.extendedSparseAddressSpace = 1;
	}
	return f;
}
*/
import "C"

import (
	"errors"
	"unsafe"

	"github.com/foijord/ExtendedSparseAddressSpace/device"
)

// Positions of the boolean members of VkPhysicalDeviceFeatures
var featureIndex = map[device.Capability]int{
	device.SparseBinding:          44,
	device.SparseResidencyImage3D: 47,
}

var (
	errLoader          = errors.New("vulkan loader: vkGetInstanceProcAddr not found")
	errQueryEntry      = errors.New("vkGetPhysicalDeviceFeatures2KHR or vkGetPhysicalDeviceProperties2KHR unavailable")
	errOutOfHostMemory = errors.New("out of host memory")
)

// loadGetInstanceProcAddr opens the system Vulkan loader
func loadGetInstanceProcAddr() (unsafe.Pointer, error) {
	gipa := C.sp_load_get_instance_proc_addr()
	if gipa == nil {
		return nil, errLoader
	}
	return gipa, nil
}

// chainedQuery issues the features2 and properties2 calls with the
// extension structures linked in when the query asks for them.
func chainedQuery(gipa, instance, physicalDevice unsafe.Pointer, q *device.Query) (device.Report, error) {
	var extended C.int
	if q.WantsExtendedSparse() {
		extended = 1
	}

	var result C.sp_query_result
	if C.sp_query(gipa, instance, physicalDevice, extended, &result) != 0 {
		return device.Report{}, errQueryEntry
	}

	answered := make(map[device.Capability]bool)
	for c, idx := range featureIndex {
		answered[c] = result.features[idx] != 0
	}
	answered[device.ExtendedSparseAddressSpace] = q.WantsExtendedSparse() && result.extendedSparseAddressSpace != 0

	report := device.NewReport(q, answered)
	if q.WantsExtendedSparse() {
		report.ExtendedSparse = device.ExtendedSparseProperties{
			AddressSpaceSize: uint64(result.extendedSparseAddressSpaceSize),
			ImageUsage:       device.ImageUsage(result.extendedSparseImageUsageFlags),
			BufferUsage:      uint32(result.extendedSparseBufferUsageFlags),
		}
	}
	return report, nil
}

// deviceFeatures is a C allocated features2 chain for device creation
type deviceFeatures struct {
	chain *C.sp_device_features
}

func newDeviceFeatures(caps []device.Capability) (deviceFeatures, error) {
	var extended C.int
	for _, c := range caps {
		if c == device.ExtendedSparseAddressSpace {
			extended = 1
		}
	}
	chain := C.sp_device_features_new(extended)
	if chain == nil {
		return deviceFeatures{}, errOutOfHostMemory
	}
	for _, c := range caps {
		if idx, ok := featureIndex[c]; ok {
			chain.features.features[idx] = 1
		}
	}
	return deviceFeatures{chain: chain}, nil
}

// Pointer is the value for a create info PNext field
func (f deviceFeatures) Pointer() unsafe.Pointer {
	return unsafe.Pointer(f.chain)
}

func (f deviceFeatures) Free() {
	C.free(unsafe.Pointer(f.chain))
}
