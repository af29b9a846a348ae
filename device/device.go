// Package device describes the parts of a graphics driver the probe talks to.
// Concrete drivers live in subpackages, the probe itself only sees these
// interfaces.
package device

// PhysicalDeviceInfo describes available physical properties of a rendering device
type PhysicalDeviceInfo struct {
	ID            int
	VendorID      int
	APIVersion    uint32
	DriverVersion DriverVersion
	Name          string

	MaxImageDimension3D    uint32
	SparseAddressSpaceSize uint64
}

// Instance describes a driver instance. Once created it is ready to use.
type Instance interface {
	// PhysicalDevices returns handles of the enumerated physical devices
	// in driver order.
	PhysicalDevices() ([]PhysicalDevice, error)

	// Destroy destroys the instance, every Device created
	// from it has to be destroyed before.
	Destroy()
}

// PhysicalDevice is an enumerated hardware endpoint. It is not owned
// by the application and is never destroyed.
type PhysicalDevice interface {
	// Info returns the core properties of the device
	Info() PhysicalDeviceInfo

	// Query runs the capability requests assembled in q
	Query(q *Query) (Report, error)

	// ImageFormatProperties returns the limits for a format combination.
	// It fails when the combination is not supported.
	ImageFormatProperties(q ImageFormatQuery) (ImageFormatProperties, error)

	// CreateDevice creates a logical device
	CreateDevice(cfg DeviceConfiguration) (Device, error)
}

// Device is a logical device. It owns every Image created from it
// and has to outlive them.
type Device interface {
	CreateImage(desc ImageDescription) (Image, error)

	// Destroy destroys the device
	Destroy()
}

// Image is an image resource owned by a Device.
type Image interface {
	Destroy()
}

// DeviceConfiguration is used to configure logical device creation
type DeviceConfiguration struct {
	QueueFamilyIndex uint32
	QueuePriorities  []float32
	Extensions       []string

	// Capabilities lists the features to enable, nothing else is enabled
	Capabilities []Capability
}
