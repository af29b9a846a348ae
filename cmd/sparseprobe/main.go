package main

import (
	"errors"
	"io"
	"os"
	"runtime"

	"github.com/gobuffalo/envy"
	log "github.com/sirupsen/logrus"

	"github.com/foijord/ExtendedSparseAddressSpace/core"
	"github.com/foijord/ExtendedSparseAddressSpace/device/vulkan"
)

func init() {
	runtime.LockOSThread()
}

func newLogger(w io.Writer, level log.Level) *log.Logger {
	logger := log.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	logger.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
	})
	return logger
}

func main() {
	os.Exit(run())
}

func run() int {
	diag := newLogger(os.Stderr, core.DefaultConfiguration.LogLevel)

	var files []string
	if f := envy.Get(core.EnvFile, ""); f != "" {
		files = append(files, f)
	}
	cfg, err := core.LoadConfiguration(files...)
	if err != nil {
		diag.WithError(err).Error("invalid configuration")
		return 1
	}
	diag.SetLevel(cfg.LogLevel)
	out := newLogger(os.Stdout, cfg.LogLevel)

	instance, err := vulkan.NewInstance(vulkan.DefaultApplicationInfo, vulkan.InstanceConfiguration{
		DebugMode: cfg.Instance.DebugMode,
	})
	if err != nil {
		diag.WithError(err).Error("vkCreateInstance failed!")
		return 1
	}
	defer instance.Destroy()

	res, err := core.NewProbe(instance, cfg.Probe, out, diag).Run()
	if err != nil {
		entry := diag.WithField("reason", "unknown")
		var failure *core.Failure
		if errors.As(err, &failure) {
			entry = diag.WithField("reason", failure.Reason.String())
			if failure.Capability != "" {
				entry = entry.WithField("capability", failure.Capability)
			}
		}
		entry.Error(err.Error())
		return 1
	}

	out.WithFields(log.Fields{
		"attempted": res.Attempts,
		"created":   res.Created,
		"destroyed": res.Destroyed,
	}).Info("finished")
	return 0
}
