package device

import "fmt"

// Capability names a boolean device feature
type Capability string

// Capabilities known to drivers in this module
const (
	SparseBinding              Capability = "sparseBinding"
	SparseResidencyImage3D     Capability = "sparseResidencyImage3D"
	ExtendedSparseAddressSpace Capability = "extendedSparseAddressSpace"
)

// Extension names
const (
	GetPhysicalDeviceProperties2Extension = "VK_KHR_get_physical_device_properties2"
	ExtendedSparseAddressSpaceExtension   = "VK_NV_extended_sparse_address_space"
)

// Query assembles capability requests for a single driver round trip.
// Drivers fill in only what was requested.
type Query struct {
	features       []Capability
	extendedSparse bool
}

// NewQuery creates an empty query
func NewQuery() *Query {
	return &Query{}
}

// Features requests the given boolean capabilities
func (q *Query) Features(caps ...Capability) *Query {
	for _, c := range caps {
		if !q.Requests(c) {
			q.features = append(q.features, c)
		}
	}
	return q
}

// ExtendedSparseAddressSpace requests the extended sparse address space
// feature and its properties
func (q *Query) ExtendedSparseAddressSpace() *Query {
	q.extendedSparse = true
	return q.Features(ExtendedSparseAddressSpace)
}

// Requests reports whether c is part of the query
func (q *Query) Requests(c Capability) bool {
	for _, f := range q.features {
		if f == c {
			return true
		}
	}
	return false
}

// RequestedFeatures returns the requested capabilities in request order
func (q *Query) RequestedFeatures() []Capability {
	return append([]Capability(nil), q.features...)
}

// WantsExtendedSparse reports whether extended sparse properties are requested
func (q *Query) WantsExtendedSparse() bool {
	return q.extendedSparse
}

// ExtendedSparseProperties are the limits reported
// with the extended sparse address space feature
type ExtendedSparseProperties struct {
	AddressSpaceSize uint64
	ImageUsage       ImageUsage
	BufferUsage      uint32
}

// Report is the answer to a Query
type Report struct {
	Properties     PhysicalDeviceInfo
	ExtendedSparse ExtendedSparseProperties

	features map[Capability]bool
}

// NewReport builds a report from the answered capabilities.
// Capabilities not present in the query are dropped.
func NewReport(q *Query, answered map[Capability]bool) Report {
	r := Report{features: make(map[Capability]bool, len(q.features))}
	for _, c := range q.features {
		r.features[c] = answered[c]
	}
	return r
}

// Supported reports whether c was requested and is supported
func (r Report) Supported(c Capability) bool {
	return r.features[c]
}

// Missing returns the capabilities in caps that are not supported, in order
func (r Report) Missing(caps ...Capability) []Capability {
	var missing []Capability
	for _, c := range caps {
		if !r.Supported(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// DriverVersion is a packed driver version number
type DriverVersion uint32

// Fields decodes the version using the 10.8.8.6 bit packing
func (v DriverVersion) Fields() [4]uint32 {
	return [4]uint32{
		(uint32(v) >> 22) & 0x3ff,
		(uint32(v) >> 14) & 0x0ff,
		(uint32(v) >> 6) & 0x0ff,
		uint32(v) & 0x03f,
	}
}

func (v DriverVersion) String() string {
	f := v.Fields()
	return fmt.Sprintf("%d.%d.%d.%d", f[0], f[1], f[2], f[3])
}
