// Package vulkan implements the device interfaces on top of the Vulkan API.
package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/foijord/ExtendedSparseAddressSpace/device"
	vk "github.com/vulkan-go/vulkan"
)

// DefaultApplicationInfo describes the probe to the driver
var DefaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: 1,
	EngineVersion:      1,
	PApplicationName:   safeString("Extended Sparse Address Space Test"),
	PEngineName:        safeString("Extended Sparse Address Space"),
}

// ValidationLayer is enabled when the instance is in debug mode
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

// InstanceConfiguration is used to configure instance creation
type InstanceConfiguration struct {
	DebugMode  bool
	Extensions []string
	Layers     []string
}

// NewInstance loads the Vulkan loader and creates an instance.
// VK_KHR_get_physical_device_properties2 is always enabled.
func NewInstance(appInfo *vk.ApplicationInfo, cfg InstanceConfiguration) (*Instance, error) {
	extensions := append([]string{device.GetPhysicalDeviceProperties2Extension}, cfg.Extensions...)
	layers := append([]string(nil), cfg.Layers...)
	if cfg.DebugMode {
		layers = append(layers, ValidationLayer)
	}

	gipa, err := loadGetInstanceProcAddr()
	if err != nil {
		return nil, err
	}
	vk.SetGetInstanceProcAddr(gipa)

	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.New("vk.CreateInstance(): " + err.Error())
	}
	vk.InitInstance(instance)

	return &Instance{
		instance:            instance,
		getInstanceProcAddr: gipa,
	}, nil
}

// Instance describes a Vulkan API Instance
type Instance struct {
	instance            vk.Instance
	getInstanceProcAddr unsafe.Pointer
}

// PhysicalDevices implements interface
func (v *Instance) PhysicalDevices() ([]device.PhysicalDevice, error) {
	handles, err := enumerateDevices(v.instance)
	if err != nil {
		return nil, err
	}

	devices := make([]device.PhysicalDevice, len(handles))
	for i, h := range handles {
		devices[i] = &PhysicalDevice{
			instance: v,
			handle:   h,
		}
	}
	return devices, nil
}

// Destroy implements interface
func (v *Instance) Destroy() {
	vk.DestroyInstance(v.instance, nil)
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	availableDevices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, availableDevices)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	return availableDevices[:deviceCount], nil
}

// PhysicalDevice is a Vulkan physical device
type PhysicalDevice struct {
	instance *Instance
	handle   vk.PhysicalDevice
}

// Info implements interface
func (p *PhysicalDevice) Info() device.PhysicalDeviceInfo {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(p.handle, &properties)
	properties.Deref()
	properties.Limits.Deref()

	return device.PhysicalDeviceInfo{
		ID:                     int(properties.DeviceID),
		VendorID:               int(properties.VendorID),
		APIVersion:             properties.ApiVersion,
		DriverVersion:          device.DriverVersion(properties.DriverVersion),
		Name:                   vk.ToString(properties.DeviceName[:]),
		MaxImageDimension3D:    properties.Limits.MaxImageDimension3D,
		SparseAddressSpaceSize: uint64(properties.Limits.SparseAddressSpaceSize),
	}
}

// Query implements interface
func (p *PhysicalDevice) Query(q *device.Query) (device.Report, error) {
	report, err := chainedQuery(
		p.instance.getInstanceProcAddr,
		unsafe.Pointer(p.instance.instance),
		unsafe.Pointer(p.handle),
		q,
	)
	if err != nil {
		return device.Report{}, errors.New("vk.GetPhysicalDeviceFeatures2(): " + err.Error())
	}
	report.Properties = p.Info()
	return report, nil
}

// ImageFormatProperties implements interface
func (p *PhysicalDevice) ImageFormatProperties(q device.ImageFormatQuery) (device.ImageFormatProperties, error) {
	var properties vk.ImageFormatProperties
	if err := vk.Error(vk.GetPhysicalDeviceImageFormatProperties(
		p.handle,
		vk.Format(q.Format),
		vk.ImageType(q.Type),
		vk.ImageTiling(q.Tiling),
		vk.ImageUsageFlags(q.Usage),
		vk.ImageCreateFlags(q.Flags),
		&properties,
	)); err != nil {
		return device.ImageFormatProperties{}, errors.New("vk.GetPhysicalDeviceImageFormatProperties(): " + err.Error())
	}
	properties.Deref()
	properties.MaxExtent.Deref()

	return device.ImageFormatProperties{
		MaxExtent: device.Extent3D{
			Width:  properties.MaxExtent.Width,
			Height: properties.MaxExtent.Height,
			Depth:  properties.MaxExtent.Depth,
		},
		MaxMipLevels:    properties.MaxMipLevels,
		MaxArrayLayers:  properties.MaxArrayLayers,
		SampleCounts:    device.SampleCount(properties.SampleCounts),
		MaxResourceSize: uint64(properties.MaxResourceSize),
	}, nil
}

// CreateDevice implements interface. Only the capabilities listed in
// the configuration are enabled, through a chained features structure.
func (p *PhysicalDevice) CreateDevice(cfg device.DeviceConfiguration) (device.Device, error) {
	features, err := newDeviceFeatures(cfg.Capabilities)
	if err != nil {
		return nil, errors.New("vk.CreateDevice(): " + err.Error())
	}
	defer features.Free()

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: cfg.QueueFamilyIndex,
		QueueCount:       uint32(len(cfg.QueuePriorities)),
		PQueuePriorities: cfg.QueuePriorities,
	}}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   features.Pointer(),
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(cfg.Extensions)),
		PpEnabledExtensionNames: safeStrings(cfg.Extensions),
	}

	var vkDevice vk.Device
	if err := vk.Error(vk.CreateDevice(p.handle, &dci, nil, &vkDevice)); err != nil {
		return nil, errors.New("vk.CreateDevice(): " + err.Error())
	}

	return &Device{device: vkDevice}, nil
}

// Device is a Vulkan logical device
type Device struct {
	device vk.Device
}

// CreateImage implements interface
func (d *Device) CreateImage(desc device.ImageDescription) (device.Image, error) {
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     vk.ImageCreateFlags(desc.Flags),
		ImageType: vk.ImageType(desc.Type),
		Format:    vk.Format(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  desc.Extent.Depth,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   desc.ArrayLayers,
		Samples:       vk.SampleCountFlagBits(desc.Samples),
		Tiling:        vk.ImageTiling(desc.Tiling),
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if err := vk.Error(vk.CreateImage(d.device, &ici, nil, &image)); err != nil {
		return nil, errors.New("vk.CreateImage(): " + err.Error())
	}
	return &Image{device: d.device, image: image}, nil
}

// Destroy implements interface
func (d *Device) Destroy() {
	vk.DestroyDevice(d.device, nil)
}

// Image is a Vulkan image
type Image struct {
	device vk.Device
	image  vk.Image
}

// Destroy implements interface
func (i *Image) Destroy() {
	vk.DestroyImage(i.device, i.image, nil)
}
