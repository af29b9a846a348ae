package device

import (
	"fmt"
	"strings"
)

// Format mirrors the driver format enumeration
type Format int32

// Formats used by the probe
const (
	FormatUndefined Format = 0
	FormatR8Unorm   Format = 9
)

// ImageType is the dimensionality of an image
type ImageType int32

// Identifies image dimensionality
const (
	ImageType1D ImageType = iota
	ImageType2D
	ImageType3D
)

// ImageTiling is the memory arrangement of image texels
type ImageTiling int32

// Identifies image tilings
const (
	ImageTilingOptimal ImageTiling = iota
	ImageTilingLinear
)

// SampleCount is a sample count bit
type SampleCount uint32

// SampleCount1 is one sample per texel
const SampleCount1 SampleCount = 0x1

// ImageUsage is a set of image usage bits
type ImageUsage uint32

// Image usage bits
const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
	ImageUsageTransientAttachment
	ImageUsageInputAttachment
)

var imageUsageNames = []string{
	"TRANSFER_SRC",
	"TRANSFER_DST",
	"SAMPLED",
	"STORAGE",
	"COLOR_ATTACHMENT",
	"DEPTH_STENCIL_ATTACHMENT",
	"TRANSIENT_ATTACHMENT",
	"INPUT_ATTACHMENT",
}

// Contains reports whether every bit of other is set in u
func (u ImageUsage) Contains(other ImageUsage) bool {
	return u&other == other
}

func (u ImageUsage) String() string {
	if u == 0 {
		return "0"
	}
	var names []string
	for bit, name := range imageUsageNames {
		if u&(1<<uint(bit)) != 0 {
			names = append(names, name)
		}
	}
	if rest := u &^ (1<<uint(len(imageUsageNames)) - 1); rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(names, "|")
}

// ImageCreateFlags is a set of image creation bits
type ImageCreateFlags uint32

// Image creation bits
const (
	ImageCreateSparseBinding ImageCreateFlags = 1 << iota
	ImageCreateSparseResidency
	ImageCreateSparseAliased
)

// Extent3D is the size of a three dimensional image in texels
type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

// Volume is the texel count of the extent, computed in 64 bits
func (e Extent3D) Volume() uint64 {
	return uint64(e.Width) * uint64(e.Height) * uint64(e.Depth)
}

func (e Extent3D) String() string {
	return fmt.Sprintf("{ %d, %d, %d }", e.Width, e.Height, e.Depth)
}

// ImageFormatQuery is a format combination to ask limits for
type ImageFormatQuery struct {
	Format Format
	Type   ImageType
	Tiling ImageTiling
	Usage  ImageUsage
	Flags  ImageCreateFlags
}

// ImageFormatProperties are the driver limits for an ImageFormatQuery
type ImageFormatProperties struct {
	MaxExtent       Extent3D
	MaxMipLevels    uint32
	MaxArrayLayers  uint32
	SampleCounts    SampleCount
	MaxResourceSize uint64
}

// ImageDescription describes an image to create
type ImageDescription struct {
	Flags       ImageCreateFlags
	Type        ImageType
	Format      Format
	Extent      Extent3D
	MipLevels   uint32
	ArrayLayers uint32
	Samples     SampleCount
	Tiling      ImageTiling
	Usage       ImageUsage
}

// Describe returns a single sample, single level description
// of an image matching the query with the given extent
func (q ImageFormatQuery) Describe(extent Extent3D) ImageDescription {
	return ImageDescription{
		Flags:       q.Flags,
		Type:        q.Type,
		Format:      q.Format,
		Extent:      extent,
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     SampleCount1,
		Tiling:      q.Tiling,
		Usage:       q.Usage,
	}
}
