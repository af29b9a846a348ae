package core_test

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/foijord/ExtendedSparseAddressSpace/core"
	"github.com/foijord/ExtendedSparseAddressSpace/device"
	"github.com/foijord/ExtendedSparseAddressSpace/device/devicetest"
)

type probeFixture struct {
	instance *devicetest.Instance
	out      *test.Hook
	diag     *test.Hook
	probe    *core.Probe
}

func newFixture(cfg core.ProbeConfiguration, drivers ...devicetest.Driver) probeFixture {
	out, outHook := test.NewNullLogger()
	diag, diagHook := test.NewNullLogger()
	instance := devicetest.NewInstance(drivers...)
	return probeFixture{
		instance: instance,
		out:      outHook,
		diag:     diagHook,
		probe:    core.NewProbe(instance, cfg, out, diag),
	}
}

func assertFailure(c *qt.C, err error, reason core.Reason) *core.Failure {
	c.Helper()
	var failure *core.Failure
	c.Assert(errors.As(err, &failure), qt.IsTrue, qt.Commentf("error %v", err))
	c.Assert(failure.Reason, qt.Equals, reason)
	return failure
}

func TestRunAllocatesWholeAddressSpace(t *testing.T) {
	c := qt.New(t)
	f := newFixture(core.ProbeConfiguration{}, devicetest.Supported())

	res, err := f.probe.Run()
	c.Assert(err, qt.IsNil)

	pd := f.instance.Devices[0]
	c.Assert(pd.Created, qt.HasLen, 1)
	dev := pd.Created[0]

	// 2^34 / (4096 * 4096 * 16)
	c.Assert(res.ImageCount, qt.Equals, uint64(64))
	c.Assert(res.Target, qt.Equals, uint64(64))
	c.Assert(res.Attempts, qt.Equals, uint64(64))
	c.Assert(res.Created, qt.Equals, 64)
	c.Assert(res.Destroyed, qt.Equals, 64)
	c.Assert(res.AllocationErr, qt.IsNil)
	c.Assert(res.Device.Name, qt.Equals, "Fake GPU")

	c.Assert(dev.ImagesCreated, qt.Equals, 64)
	c.Assert(dev.ImagesDestroyed, qt.Equals, 64)
	c.Assert(dev.Destroyed, qt.IsTrue)
	c.Assert(dev.DestroyedWithLiveImages, qt.IsFalse)

	want := device.ImageDescription{
		Flags:       device.ImageCreateSparseBinding | device.ImageCreateSparseResidency,
		Type:        device.ImageType3D,
		Format:      device.FormatR8Unorm,
		Extent:      device.Extent3D{Width: 4096, Height: 4096, Depth: 16},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     device.SampleCount1,
		Tiling:      device.ImageTilingOptimal,
		Usage:       device.ImageUsageTransferDst | device.ImageUsageSampled,
	}
	for _, desc := range dev.Descriptions {
		c.Assert(desc, qt.Equals, want)
	}
	c.Assert(pd.FormatQueries, qt.DeepEquals, []device.ImageFormatQuery{core.SparseImageFormat})

	c.Assert(f.diag.AllEntries(), qt.HasLen, 0)
}

func TestRunDeviceConfiguration(t *testing.T) {
	c := qt.New(t)
	f := newFixture(core.ProbeConfiguration{}, devicetest.Supported())

	_, err := f.probe.Run()
	c.Assert(err, qt.IsNil)

	cfg := f.instance.Devices[0].Created[0].Configuration
	c.Assert(cfg.QueueFamilyIndex, qt.Equals, uint32(0))
	c.Assert(cfg.QueuePriorities, qt.DeepEquals, []float32{1.0})
	c.Assert(cfg.Extensions, qt.DeepEquals, []string{"VK_NV_extended_sparse_address_space"})
	c.Assert(cfg.Capabilities, qt.DeepEquals, core.RequiredCapabilities)
}

func TestRunMissingCapability(t *testing.T) {
	for _, capability := range core.RequiredCapabilities {
		capability := capability
		t.Run(string(capability), func(t *testing.T) {
			c := qt.New(t)
			driver := devicetest.Supported()
			driver.Features[capability] = false
			f := newFixture(core.ProbeConfiguration{}, driver)

			_, err := f.probe.Run()
			failure := assertFailure(c, err, core.ReasonMissingCapability)
			c.Assert(failure.Capability, qt.Equals, capability)
			c.Assert(err, qt.ErrorMatches, string(capability)+" not supported")

			pd := f.instance.Devices[0]
			c.Assert(pd.Created, qt.HasLen, 0)
			c.Assert(pd.FormatQueries, qt.HasLen, 0)
		})
	}
}

func TestRunSparseResidencyImage3DMissing(t *testing.T) {
	c := qt.New(t)
	driver := devicetest.Supported()
	delete(driver.Features, device.SparseResidencyImage3D)
	f := newFixture(core.ProbeConfiguration{}, driver)

	_, err := f.probe.Run()
	c.Assert(err, qt.ErrorMatches, ".*sparseResidencyImage3D.*")
	c.Assert(f.instance.Devices[0].Created, qt.HasLen, 0)
	// nothing reported before the capability check
	c.Assert(f.out.AllEntries(), qt.HasLen, 0)
}

func TestRunUsageUnsupported(t *testing.T) {
	c := qt.New(t)
	driver := devicetest.Supported()
	driver.ExtendedSparse.ImageUsage = device.ImageUsageSampled | device.ImageUsageStorage
	f := newFixture(core.ProbeConfiguration{}, driver)

	_, err := f.probe.Run()
	assertFailure(c, err, core.ReasonUsageUnsupported)
	c.Assert(err, qt.ErrorMatches, "unsupported image usage flags.*")
	c.Assert(f.instance.Devices[0].Created, qt.HasLen, 0)
}

func TestRunFormatUnsupported(t *testing.T) {
	c := qt.New(t)
	driver := devicetest.Supported()
	driver.FormatErr = errors.New("VK_ERROR_FORMAT_NOT_SUPPORTED")
	f := newFixture(core.ProbeConfiguration{}, driver)

	res, err := f.probe.Run()
	failure := assertFailure(c, err, core.ReasonFormatUnsupported)
	c.Assert(failure.Err, qt.Equals, driver.FormatErr)
	c.Assert(res.ImageCount, qt.Equals, uint64(0))
	c.Assert(f.instance.Devices[0].Created, qt.HasLen, 0)
}

func TestRunQueryFails(t *testing.T) {
	c := qt.New(t)
	driver := devicetest.Supported()
	driver.QueryErr = errors.New("entry point missing")
	f := newFixture(core.ProbeConfiguration{}, driver)

	_, err := f.probe.Run()
	assertFailure(c, err, core.ReasonQuery)
	c.Assert(errors.Is(err, driver.QueryErr), qt.IsTrue)
}

func TestRunDeviceCreationFails(t *testing.T) {
	c := qt.New(t)
	driver := devicetest.Supported()
	driver.CreateDeviceErr = errors.New("VK_ERROR_EXTENSION_NOT_PRESENT")
	f := newFixture(core.ProbeConfiguration{}, driver)

	_, err := f.probe.Run()
	assertFailure(c, err, core.ReasonDeviceCreation)
	c.Assert(err, qt.ErrorMatches, "vkCreateDevice failed: VK_ERROR_EXTENSION_NOT_PRESENT")
}

func TestRunNoDevices(t *testing.T) {
	c := qt.New(t)
	f := newFixture(core.ProbeConfiguration{})

	_, err := f.probe.Run()
	assertFailure(c, err, core.ReasonNoDevice)
}

func TestRunEnumerationFails(t *testing.T) {
	c := qt.New(t)
	f := newFixture(core.ProbeConfiguration{}, devicetest.Supported())
	f.instance.EnumErr = errors.New("VK_ERROR_INITIALIZATION_FAILED")

	_, err := f.probe.Run()
	assertFailure(c, err, core.ReasonEnumeration)
}

func TestRunDeviceIndex(t *testing.T) {
	c := qt.New(t)

	f := newFixture(core.ProbeConfiguration{DeviceIndex: 1}, devicetest.Supported())
	_, err := f.probe.Run()
	assertFailure(c, err, core.ReasonDeviceIndex)

	unsupported := devicetest.Supported()
	unsupported.Features[device.SparseBinding] = false
	second := devicetest.Supported()
	second.Info.Name = "Second GPU"

	f = newFixture(core.ProbeConfiguration{DeviceIndex: 1}, unsupported, second)
	res, err := f.probe.Run()
	c.Assert(err, qt.IsNil)
	c.Assert(res.Device.Name, qt.Equals, "Second GPU")
	c.Assert(f.instance.Devices[0].Queries, qt.HasLen, 0)

	// index 0 is taken without looking at the others
	f = newFixture(core.ProbeConfiguration{}, unsupported, second)
	_, err = f.probe.Run()
	assertFailure(c, err, core.ReasonMissingCapability)
	c.Assert(f.instance.Devices[1].Queries, qt.HasLen, 0)
}

func TestRunPartialAllocation(t *testing.T) {
	c := qt.New(t)
	driver := devicetest.Supported()
	driver.ImageLimit = 10
	f := newFixture(core.ProbeConfiguration{}, driver)

	res, err := f.probe.Run()
	c.Assert(err, qt.IsNil)
	c.Assert(res.ImageCount, qt.Equals, uint64(64))
	c.Assert(res.Attempts, qt.Equals, uint64(11))
	c.Assert(res.Created, qt.Equals, 10)
	c.Assert(res.Destroyed, qt.Equals, 10)
	c.Assert(res.AllocationErr, qt.Equals, devicetest.ErrOutOfDeviceMemory)

	dev := f.instance.Devices[0].Created[0]
	c.Assert(dev.CreateFailures, qt.Equals, 1)
	c.Assert(dev.ImagesDestroyed, qt.Equals, dev.ImagesCreated)
	c.Assert(dev.Destroyed, qt.IsTrue)
	c.Assert(dev.DestroyedWithLiveImages, qt.IsFalse)

	entry := f.diag.LastEntry()
	c.Assert(entry, qt.IsNotNil)
	c.Assert(entry.Level, qt.Equals, logrus.ErrorLevel)
	c.Assert(entry.Message, qt.Equals, "image creation failed.")
	c.Assert(entry.Data["index"], qt.Equals, uint64(10))
}

func TestRunMaxImages(t *testing.T) {
	c := qt.New(t)
	f := newFixture(core.ProbeConfiguration{MaxImages: 5}, devicetest.Supported())

	res, err := f.probe.Run()
	c.Assert(err, qt.IsNil)
	c.Assert(res.ImageCount, qt.Equals, uint64(64))
	c.Assert(res.Target, qt.Equals, uint64(5))
	c.Assert(res.Created, qt.Equals, 5)
	c.Assert(res.Destroyed, qt.Equals, 5)

	// a cap above the computed count changes nothing
	f = newFixture(core.ProbeConfiguration{MaxImages: 1000}, devicetest.Supported())
	res, err = f.probe.Run()
	c.Assert(err, qt.IsNil)
	c.Assert(res.Target, qt.Equals, uint64(64))
}

func TestRunReport(t *testing.T) {
	c := qt.New(t)
	f := newFixture(core.ProbeConfiguration{MaxImages: 2}, devicetest.Supported())

	_, err := f.probe.Run()
	c.Assert(err, qt.IsNil)

	var messages []string
	for _, e := range f.out.AllEntries() {
		messages = append(messages, e.Message)
	}
	c.Assert(messages[:8], qt.DeepEquals, []string{
		"Found device: Fake GPU",
		"Driver version: 550.54.14.0",
		"maxExtent = { 4096, 4096, 16 }",
		"maxImageDimension3D = 4096",
		"maxResourceSize = 1099511627776 (1.0 TiB)",
		"sparseAddressSpaceSize = 1099511627776 (1.0 TiB)",
		"extendedSparseAddressSpaceSize = 17179869184 (16 GiB)",
		"Creating 2 images with extent = { 4096, 4096, 16 }:",
	})
	c.Assert(messages[8:], qt.HasLen, 2)
	for _, m := range messages[8:] {
		c.Assert(m, qt.Matches, `image created in [0-9.e-]+ seconds`)
	}
}

func TestImageCount(t *testing.T) {
	tests := []struct {
		about  string
		size   uint64
		extent device.Extent3D
		want   uint64
	}{{
		about:  "extended address space",
		size:   1 << 34,
		extent: device.Extent3D{Width: 4096, Height: 4096, Depth: 16},
		want:   64,
	}, {
		about:  "floor division",
		size:   1<<34 + 1<<27,
		extent: device.Extent3D{Width: 4096, Height: 4096, Depth: 16},
		want:   64,
	}, {
		about:  "image larger than address space",
		size:   1 << 20,
		extent: device.Extent3D{Width: 2048, Height: 2048, Depth: 2048},
		want:   0,
	}, {
		about:  "volume beyond 32 bits",
		size:   1 << 50,
		extent: device.Extent3D{Width: 1 << 16, Height: 1 << 16, Depth: 1 << 8},
		want:   1 << 10,
	}, {
		about:  "empty extent",
		size:   1 << 34,
		extent: device.Extent3D{Width: 4096, Height: 0, Depth: 16},
		want:   0,
	}}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.about, func(t *testing.T) {
			qt.Assert(t, core.ImageCount(tc.size, tc.extent), qt.Equals, tc.want)
		})
	}
}

func TestValidateFeaturesOrder(t *testing.T) {
	c := qt.New(t)

	report := device.NewReport(device.NewQuery().Features(core.RequiredCapabilities...), nil)
	err := core.ValidateFeatures(report)
	failure := assertFailure(c, err, core.ReasonMissingCapability)
	c.Assert(failure.Capability, qt.Equals, device.SparseBinding)
}

func TestValidateUsage(t *testing.T) {
	c := qt.New(t)

	required := core.SparseImageFormat.Usage
	c.Assert(core.ValidateUsage(required, required), qt.IsNil)
	c.Assert(core.ValidateUsage(required, required|device.ImageUsageStorage), qt.IsNil)
	assertFailure(c, core.ValidateUsage(required, device.ImageUsageTransferDst), core.ReasonUsageUnsupported)
}

func TestImageSetRelease(t *testing.T) {
	c := qt.New(t)
	driver := devicetest.Supported()
	driver.ImageLimit = 3

	pd := devicetest.NewInstance(driver).Devices[0]
	dev, err := pd.CreateDevice(core.DeviceConfiguration())
	c.Assert(err, qt.IsNil)

	out, _ := test.NewNullLogger()
	set := core.Allocate(dev, core.SparseImageFormat.Describe(device.Extent3D{Width: 1, Height: 1, Depth: 1}), 8, core.NewTime(nil), out, out)
	c.Assert(set.Len(), qt.Equals, 3)
	c.Assert(set.Attempts, qt.Equals, uint64(4))
	c.Assert(set.Err, qt.Equals, devicetest.ErrOutOfDeviceMemory)

	c.Assert(set.Release(), qt.Equals, 3)
	c.Assert(set.Len(), qt.Equals, 0)
	// a second release must not destroy anything twice
	c.Assert(set.Release(), qt.Equals, 0)
	c.Assert(pd.Created[0].Live(), qt.Equals, 0)
}

func TestAllocateZero(t *testing.T) {
	c := qt.New(t)

	pd := devicetest.NewInstance(devicetest.Supported()).Devices[0]
	dev, err := pd.CreateDevice(core.DeviceConfiguration())
	c.Assert(err, qt.IsNil)

	out, hook := test.NewNullLogger()
	set := core.Allocate(dev, device.ImageDescription{}, 0, core.NewTime(nil), out, out)
	c.Assert(set.Len(), qt.Equals, 0)
	c.Assert(set.Attempts, qt.Equals, uint64(0))
	c.Assert(hook.AllEntries(), qt.HasLen, 0)
}
