package core

import (
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/foijord/ExtendedSparseAddressSpace/device"
)

// Result is what a completed probe run observed
type Result struct {
	Device         device.PhysicalDeviceInfo
	ExtendedSparse device.ExtendedSparseProperties
	Format         device.ImageFormatProperties

	// ImageCount is the number of images the address space holds,
	// Target is the number actually attempted after MaxImages
	ImageCount uint64
	Target     uint64

	Attempts  uint64
	Created   int
	Destroyed int

	// AllocationErr stopped allocation early, it does not fail the run
	AllocationErr error
}

// NewProbe creates a probe over an instance. Report lines go to out,
// diagnostics to diag.
func NewProbe(instance device.Instance, cfg ProbeConfiguration, out, diag logrus.FieldLogger) *Probe {
	return &Probe{
		instance: instance,
		cfg:      cfg,
		time:     NewTime(nil),
		out:      out,
		diag:     diag,
	}
}

// Probe threads the probe stages over one instance
type Probe struct {
	instance device.Instance
	cfg      ProbeConfiguration
	time     Time

	out  logrus.FieldLogger
	diag logrus.FieldLogger
}

// WithClock replaces the clock used for allocation timing
func (p *Probe) WithClock(now Clock) *Probe {
	p.time = NewTime(now)
	return p
}

// Run executes the probe. Every fatal precondition returns a *Failure
// before the logical device is created, except device creation itself.
// Images are destroyed before the device on every path.
func (p *Probe) Run() (res Result, err error) {
	pd, err := SelectDevice(p.instance, p.cfg.DeviceIndex)
	if err != nil {
		return res, err
	}

	report, err := NegotiateCapabilities(pd)
	if err != nil {
		return res, err
	}
	if err := ValidateFeatures(report); err != nil {
		return res, err
	}
	res.Device = report.Properties
	res.ExtendedSparse = report.ExtendedSparse
	reportDevice(p.out, res.Device)

	res.Format, err = QueryImageFormat(pd, SparseImageFormat)
	if err != nil {
		return res, err
	}
	if err := ValidateUsage(SparseImageFormat.Usage, res.ExtendedSparse.ImageUsage); err != nil {
		return res, err
	}
	reportLimits(p.out, res)

	dev, err := CreateDevice(pd)
	if err != nil {
		return res, err
	}
	defer dev.Destroy()

	res.ImageCount = ImageCount(res.ExtendedSparse.AddressSpaceSize, res.Format.MaxExtent)
	res.Target = res.ImageCount
	if p.cfg.MaxImages > 0 && p.cfg.MaxImages < res.Target {
		p.diag.WithField("limit", p.cfg.MaxImages).Warn("image count capped")
		res.Target = p.cfg.MaxImages
	}

	desc := SparseImageFormat.Describe(res.Format.MaxExtent)
	p.out.WithField("count", res.Target).Infof("Creating %s images with extent = %s:",
		humanize.Comma(int64(res.Target)), desc.Extent)

	set := Allocate(dev, desc, res.Target, p.time, p.out, p.diag)
	defer func() {
		res.Destroyed = set.Release()
	}()
	res.Attempts = set.Attempts
	res.Created = set.Len()
	res.AllocationErr = set.Err

	return res, nil
}

func reportDevice(out logrus.FieldLogger, info device.PhysicalDeviceInfo) {
	out.WithField("device", info.Name).Infof("Found device: %s", info.Name)
	out.WithField("version", info.DriverVersion.Fields()).Infof("Driver version: %s", info.DriverVersion)
}

func reportLimits(out logrus.FieldLogger, res Result) {
	out.Infof("maxExtent = %s", res.Format.MaxExtent)
	out.Infof("maxImageDimension3D = %d", res.Device.MaxImageDimension3D)
	out.Infof("maxResourceSize = %d (%s)",
		res.Format.MaxResourceSize, humanize.IBytes(res.Format.MaxResourceSize))
	out.Infof("sparseAddressSpaceSize = %d (%s)",
		res.Device.SparseAddressSpaceSize, humanize.IBytes(res.Device.SparseAddressSpaceSize))
	out.Infof("extendedSparseAddressSpaceSize = %d (%s)",
		res.ExtendedSparse.AddressSpaceSize, humanize.IBytes(res.ExtendedSparse.AddressSpaceSize))
}
