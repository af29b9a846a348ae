package core

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/foijord/ExtendedSparseAddressSpace/device"
)

// SparseImageFormat is the image combination the probe allocates
var SparseImageFormat = device.ImageFormatQuery{
	Format: device.FormatR8Unorm,
	Type:   device.ImageType3D,
	Tiling: device.ImageTilingOptimal,
	Usage:  device.ImageUsageTransferDst | device.ImageUsageSampled,
	Flags:  device.ImageCreateSparseBinding | device.ImageCreateSparseResidency,
}

// RequiredCapabilities are checked in this order, the first one
// missing fails the probe
var RequiredCapabilities = []device.Capability{
	device.SparseBinding,
	device.SparseResidencyImage3D,
	device.ExtendedSparseAddressSpace,
}

// SelectDevice picks the physical device at index in enumeration order
func SelectDevice(instance device.Instance, index int) (device.PhysicalDevice, error) {
	devices, err := instance.PhysicalDevices()
	if err != nil {
		return nil, fail(ReasonEnumeration, "vkEnumeratePhysicalDevices failed", err)
	}
	if len(devices) == 0 {
		return nil, fail(ReasonNoDevice, "no physical devices found", nil)
	}
	if index < 0 || index >= len(devices) {
		return nil, fail(ReasonDeviceIndex,
			fmt.Sprintf("device index %d out of range, %d devices found", index, len(devices)), nil)
	}
	return devices[index], nil
}

// NegotiateCapabilities queries the required features together with
// the extended sparse address space properties
func NegotiateCapabilities(pd device.PhysicalDevice) (device.Report, error) {
	q := device.NewQuery().
		Features(RequiredCapabilities...).
		ExtendedSparseAddressSpace()

	report, err := pd.Query(q)
	if err != nil {
		return device.Report{}, fail(ReasonQuery, "vkGetPhysicalDeviceFeatures2 failed", err)
	}
	return report, nil
}

// ValidateFeatures fails on the first required capability not supported
func ValidateFeatures(report device.Report) error {
	if missing := report.Missing(RequiredCapabilities...); len(missing) > 0 {
		return &Failure{
			Reason:     ReasonMissingCapability,
			Capability: missing[0],
			Message:    string(missing[0]) + " not supported",
		}
	}
	return nil
}

// QueryImageFormat returns the limits of q, failing if the
// driver does not support the combination
func QueryImageFormat(pd device.PhysicalDevice, q device.ImageFormatQuery) (device.ImageFormatProperties, error) {
	props, err := pd.ImageFormatProperties(q)
	if err != nil {
		return device.ImageFormatProperties{}, fail(ReasonFormatUnsupported, "vkGetPhysicalDeviceImageFormatProperties failed", err)
	}
	return props, nil
}

// ValidateUsage fails unless required is a subset of supported
func ValidateUsage(required, supported device.ImageUsage) error {
	if !supported.Contains(required) {
		return fail(ReasonUsageUnsupported,
			fmt.Sprintf("unsupported image usage flags: need %s, extended sparse supports %s", required, supported), nil)
	}
	return nil
}

// DeviceConfiguration is one queue from family 0 with the extension
// and exactly the required capabilities enabled
func DeviceConfiguration() device.DeviceConfiguration {
	return device.DeviceConfiguration{
		QueueFamilyIndex: 0,
		QueuePriorities:  []float32{1.0},
		Extensions:       []string{device.ExtendedSparseAddressSpaceExtension},
		Capabilities:     append([]device.Capability(nil), RequiredCapabilities...),
	}
}

// CreateDevice creates the logical device used for allocation
func CreateDevice(pd device.PhysicalDevice) (device.Device, error) {
	dev, err := pd.CreateDevice(DeviceConfiguration())
	if err != nil {
		return nil, fail(ReasonDeviceCreation, "vkCreateDevice failed", err)
	}
	return dev, nil
}

// ImageCount is how many images of extent fit in addressSpace bytes,
// one byte per texel. A zero extent fits none.
func ImageCount(addressSpace uint64, extent device.Extent3D) uint64 {
	volume := extent.Volume()
	if volume == 0 {
		return 0
	}
	return addressSpace / volume
}

// ImageSet holds the images created by Allocate in creation order
type ImageSet struct {
	images []device.Image

	// Attempts counts CreateImage calls including a failed one
	Attempts uint64

	// Err is the error that stopped allocation, nil if every image was created
	Err error
}

// Len is the number of live images in the set
func (s *ImageSet) Len() int {
	return len(s.images)
}

// Release destroys every image in the set and returns how many were destroyed.
// Calling it again destroys nothing.
func (s *ImageSet) Release() int {
	destroyed := 0
	for _, image := range s.images {
		if image == nil {
			continue
		}
		image.Destroy()
		destroyed++
	}
	s.images = nil
	return destroyed
}

// Allocate creates up to count images sequentially, timing each creation.
// The first failure stops allocation; it is recorded on the set and is not fatal.
func Allocate(dev device.Device, desc device.ImageDescription, count uint64, t Time, out, diag logrus.FieldLogger) *ImageSet {
	set := &ImageSet{}
	for i := uint64(0); i < count; i++ {
		var image device.Image
		set.Attempts++
		_, err := t.Measure(out.WithField("index", i), "image created in", func() error {
			var err error
			image, err = dev.CreateImage(desc)
			return err
		})
		if err != nil {
			diag.WithField("index", i).WithError(err).Error("image creation failed.")
			set.Err = err
			break
		}
		set.images = append(set.images, image)
	}
	return set
}
