package core

import (
	"fmt"
	"strconv"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Environment keys read by LoadConfiguration
const (
	EnvDevice     = "SPARSEPROBE_DEVICE"
	EnvValidation = "SPARSEPROBE_VALIDATION"
	EnvLogLevel   = "SPARSEPROBE_LOG_LEVEL"
	EnvMaxImages  = "SPARSEPROBE_MAX_IMAGES"
	EnvFile       = "SPARSEPROBE_ENV_FILE"
)

// Configuration defines the probe settings
type Configuration struct {
	Instance InstanceConfiguration
	Probe    ProbeConfiguration
	LogLevel logrus.Level
}

// InstanceConfiguration is used to configure the driver instance
type InstanceConfiguration struct {
	// DebugMode loads the validation layer
	DebugMode bool
}

// ProbeConfiguration is used to configure the probe run
type ProbeConfiguration struct {
	// DeviceIndex selects the physical device in enumeration order
	DeviceIndex int

	// MaxImages caps the number of images created, 0 means
	// as many as the address space holds
	MaxImages uint64
}

// DefaultConfiguration runs the probe on the first device without limits
var DefaultConfiguration = Configuration{
	LogLevel: logrus.InfoLevel,
}

// LoadConfiguration applies dotenv files and then the environment
// on top of DefaultConfiguration. Later files override earlier ones,
// the environment overrides every file.
func LoadConfiguration(files ...string) (Configuration, error) {
	cfg := DefaultConfiguration

	values := map[string]string{}
	for _, file := range files {
		read, err := godotenv.Read(file)
		if err != nil {
			return cfg, fmt.Errorf("reading %s: %s", file, err)
		}
		for k, v := range read {
			values[k] = v
		}
	}
	lookup := func(key string) string {
		if v := envy.Get(key, ""); v != "" {
			return v
		}
		return values[key]
	}

	if v := lookup(EnvDevice); v != "" {
		idx, err := strconv.Atoi(v)
		if err != nil || idx < 0 {
			return cfg, fmt.Errorf("%s: invalid device index %q", EnvDevice, v)
		}
		cfg.Probe.DeviceIndex = idx
	}

	if v := lookup(EnvValidation); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %s", EnvValidation, err)
		}
		cfg.Instance.DebugMode = debug
	}

	if v := lookup(EnvLogLevel); v != "" {
		level, err := logrus.ParseLevel(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %s", EnvLogLevel, err)
		}
		cfg.LogLevel = level
	}

	if v := lookup(EnvMaxImages); v != "" {
		limit, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("%s: %s", EnvMaxImages, err)
		}
		cfg.Probe.MaxImages = limit
	}

	return cfg, nil
}
