// Package devicetest provides an in-memory driver for exercising code
// written against the device interfaces.
package devicetest

import (
	"errors"
	"fmt"

	"github.com/foijord/ExtendedSparseAddressSpace/device"
)

// ErrOutOfDeviceMemory is returned by CreateImage once the image limit is hit
var ErrOutOfDeviceMemory = errors.New("VK_ERROR_OUT_OF_DEVICE_MEMORY")

// Driver is the configuration of a fake physical device
type Driver struct {
	Info           device.PhysicalDeviceInfo
	Features       map[device.Capability]bool
	ExtendedSparse device.ExtendedSparseProperties

	// FormatProperties answers every format query, unless FormatErr is set
	FormatProperties device.ImageFormatProperties
	FormatErr        error

	QueryErr        error
	CreateDeviceErr error

	// ImageLimit fails CreateImage after this many live images, 0 means no limit
	ImageLimit int
}

// Supported returns a driver where every capability the probe needs is present
func Supported() Driver {
	return Driver{
		Info: device.PhysicalDeviceInfo{
			Name:                   "Fake GPU",
			VendorID:               0x10de,
			DriverVersion:          device.DriverVersion(550<<22 | 54<<14 | 14<<6),
			MaxImageDimension3D:    4096,
			SparseAddressSpaceSize: 1 << 40,
		},
		Features: map[device.Capability]bool{
			device.SparseBinding:              true,
			device.SparseResidencyImage3D:     true,
			device.ExtendedSparseAddressSpace: true,
		},
		ExtendedSparse: device.ExtendedSparseProperties{
			AddressSpaceSize: 1 << 34,
			ImageUsage:       device.ImageUsageTransferSrc | device.ImageUsageTransferDst | device.ImageUsageSampled | device.ImageUsageStorage,
		},
		FormatProperties: device.ImageFormatProperties{
			MaxExtent:       device.Extent3D{Width: 4096, Height: 4096, Depth: 16},
			MaxMipLevels:    13,
			MaxArrayLayers:  1,
			SampleCounts:    device.SampleCount1,
			MaxResourceSize: 1 << 40,
		},
	}
}

// Instance is a fake instance holding the given drivers
type Instance struct {
	Devices   []*PhysicalDevice
	EnumErr   error
	Destroyed bool
}

// NewInstance creates an instance with one physical device per driver
func NewInstance(drivers ...Driver) *Instance {
	inst := &Instance{}
	for _, d := range drivers {
		inst.Devices = append(inst.Devices, &PhysicalDevice{Driver: d})
	}
	return inst
}

// PhysicalDevices implements interface
func (i *Instance) PhysicalDevices() ([]device.PhysicalDevice, error) {
	if i.EnumErr != nil {
		return nil, i.EnumErr
	}
	devices := make([]device.PhysicalDevice, len(i.Devices))
	for idx, d := range i.Devices {
		devices[idx] = d
	}
	return devices, nil
}

// Destroy implements interface
func (i *Instance) Destroy() {
	i.Destroyed = true
}

// PhysicalDevice is a fake physical device, it records every call
type PhysicalDevice struct {
	Driver Driver

	Queries       []*device.Query
	FormatQueries []device.ImageFormatQuery
	Created       []*Device
}

// Info implements interface
func (p *PhysicalDevice) Info() device.PhysicalDeviceInfo {
	return p.Driver.Info
}

// Query implements interface
func (p *PhysicalDevice) Query(q *device.Query) (device.Report, error) {
	p.Queries = append(p.Queries, q)
	if p.Driver.QueryErr != nil {
		return device.Report{}, p.Driver.QueryErr
	}
	report := device.NewReport(q, p.Driver.Features)
	report.Properties = p.Driver.Info
	if q.WantsExtendedSparse() {
		report.ExtendedSparse = p.Driver.ExtendedSparse
	}
	return report, nil
}

// ImageFormatProperties implements interface
func (p *PhysicalDevice) ImageFormatProperties(q device.ImageFormatQuery) (device.ImageFormatProperties, error) {
	p.FormatQueries = append(p.FormatQueries, q)
	if p.Driver.FormatErr != nil {
		return device.ImageFormatProperties{}, p.Driver.FormatErr
	}
	return p.Driver.FormatProperties, nil
}

// CreateDevice implements interface
func (p *PhysicalDevice) CreateDevice(cfg device.DeviceConfiguration) (device.Device, error) {
	if p.Driver.CreateDeviceErr != nil {
		return nil, p.Driver.CreateDeviceErr
	}
	for _, c := range cfg.Capabilities {
		if !p.Driver.Features[c] {
			return nil, fmt.Errorf("VK_ERROR_FEATURE_NOT_PRESENT: %s", c)
		}
	}
	d := &Device{Configuration: cfg, limit: p.Driver.ImageLimit}
	p.Created = append(p.Created, d)
	return d, nil
}

// Device is a fake logical device, it counts image lifecycle calls
type Device struct {
	Configuration device.DeviceConfiguration
	Descriptions  []device.ImageDescription

	ImagesCreated   int
	ImagesDestroyed int
	CreateFailures  int
	Destroyed       bool

	// DestroyedWithLiveImages is set when Destroy runs before every image is gone
	DestroyedWithLiveImages bool

	limit int
	next  int
}

// CreateImage implements interface
func (d *Device) CreateImage(desc device.ImageDescription) (device.Image, error) {
	d.Descriptions = append(d.Descriptions, desc)
	if d.limit > 0 && d.Live() >= d.limit {
		d.CreateFailures++
		return nil, ErrOutOfDeviceMemory
	}
	d.ImagesCreated++
	d.next++
	return &Image{device: d, id: d.next}, nil
}

// Live is the number of images created and not yet destroyed
func (d *Device) Live() int {
	return d.ImagesCreated - d.ImagesDestroyed
}

// Destroy implements interface
func (d *Device) Destroy() {
	if d.Live() != 0 {
		d.DestroyedWithLiveImages = true
	}
	d.Destroyed = true
}

// Image is a fake image
type Image struct {
	device    *Device
	id        int
	destroyed bool
}

// Destroy implements interface. Destroying twice panics.
func (i *Image) Destroy() {
	if i.destroyed {
		panic(fmt.Sprintf("image %d destroyed twice", i.id))
	}
	i.destroyed = true
	i.device.ImagesDestroyed++
}
