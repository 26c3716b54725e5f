package config

import (
	"errors"
	"fmt"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
	"os"
	"time"
)

const (
	DefaultPath         = "/etc/wcam.yaml"
	DefaultVersion      = "GQ Webcam version 2.0"
	DefaultPort         = 19868
	DefaultTimeout      = 60
	DefaultTimeoutCheck = 1
	DefaultMaxEvent     = 512
	DefaultThreadInPool = 4
	DefaultCamDev       = "/dev/video0"
	DefaultCamFPS       = 15
	DefaultFbBpp        = 16
	DefaultFbWidth      = 480
	DefaultFbHeight     = 272
	DefaultLogLevel     = "info"
	maxPort             = 65535
	maxVersionLength    = 250
)

// Config is read once at startup. Durations are expressed in seconds in the file.
type Config struct {
	Version string `yaml:"version"`

	// tcp server
	SrvPort         int `yaml:"srv_port"`
	CliTimeout      int `yaml:"cli_timeout"`
	CliTimeoutCheck int `yaml:"cli_timeout_check"`

	// event loop and worker pool
	MaxAppEvent  int `yaml:"max_app_event"`
	ThreadInPool int `yaml:"thread_in_pool"`

	// capture device
	CamDev   string `yaml:"camdev"`
	CamFmtNr int    `yaml:"cam_fmt_nr"`
	CamFrmNr int    `yaml:"cam_frm_nr"`
	CamFPS   int    `yaml:"cam_fps"`

	// framebuffer preview, disabled when FbDev is empty
	FbDev    string `yaml:"fbdev"`
	FbBpp    int    `yaml:"fb_bpp"`
	FbWidth  int    `yaml:"fb_width"`
	FbHeight int    `yaml:"fb_height"`

	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:         DefaultVersion,
		SrvPort:         DefaultPort,
		CliTimeout:      DefaultTimeout,
		CliTimeoutCheck: DefaultTimeoutCheck,
		MaxAppEvent:     DefaultMaxEvent,
		ThreadInPool:    DefaultThreadInPool,
		CamDev:          DefaultCamDev,
		CamFPS:          DefaultCamFPS,
		FbBpp:           DefaultFbBpp,
		FbWidth:         DefaultFbWidth,
		FbHeight:        DefaultFbHeight,
		LogLevel:        DefaultLogLevel,
	}
}

var ErrInvalidValue = errors.New("invalid value")

// Load reads a YAML configuration file on top of the defaults.
// On failure it still returns a usable configuration together with the error, so the
// caller can log a warning and keep going. A read or parse failure yields the defaults;
// rejected values come back as ErrInvalidValue errors, one per key, see multierr.Errors.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	parsed := Default()
	if err := yaml.Unmarshal(data, parsed); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	return parsed, Validate(parsed)
}

func replaced(key string, got, used any) error {
	return fmt.Errorf("%w: %s %v, using %v", ErrInvalidValue, key, got, used)
}

// Validate replaces out of range values with their defaults and returns one
// error per replaced key. Empty strings take their default without an error.
func Validate(cfg *Config) error {
	var err error
	fix := func(key string, got *int, def int) {
		err = multierr.Append(err, replaced(key, *got, def))
		*got = def
	}

	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if len(cfg.Version) > maxVersionLength {
		err = multierr.Append(err, fmt.Errorf("%w: version longer than %d bytes, truncated",
			ErrInvalidValue, maxVersionLength))
		cfg.Version = cfg.Version[:maxVersionLength]
	}
	if cfg.SrvPort < 1 || cfg.SrvPort > maxPort {
		fix("srv_port", &cfg.SrvPort, DefaultPort)
	}
	if cfg.CliTimeout <= 0 {
		fix("cli_timeout", &cfg.CliTimeout, DefaultTimeout)
	}
	if cfg.CliTimeoutCheck <= 0 {
		fix("cli_timeout_check", &cfg.CliTimeoutCheck, DefaultTimeoutCheck)
	}
	if cfg.MaxAppEvent <= 0 {
		fix("max_app_event", &cfg.MaxAppEvent, DefaultMaxEvent)
	}
	if cfg.ThreadInPool <= 0 {
		fix("thread_in_pool", &cfg.ThreadInPool, DefaultThreadInPool)
	}
	if cfg.CamDev == "" {
		cfg.CamDev = DefaultCamDev
	}
	if cfg.CamFmtNr < 0 {
		fix("cam_fmt_nr", &cfg.CamFmtNr, 0)
	}
	if cfg.CamFrmNr < 0 {
		fix("cam_frm_nr", &cfg.CamFrmNr, 0)
	}
	if cfg.CamFPS <= 0 {
		fix("cam_fps", &cfg.CamFPS, DefaultCamFPS)
	}
	// the preview only draws RGB565 and RGB888
	if cfg.FbBpp != 16 && cfg.FbBpp != 24 {
		fix("fb_bpp", &cfg.FbBpp, DefaultFbBpp)
	}
	if cfg.FbWidth <= 0 || cfg.FbHeight <= 0 {
		err = multierr.Append(err, replaced("fb geometry",
			fmt.Sprintf("%dx%d", cfg.FbWidth, cfg.FbHeight),
			fmt.Sprintf("%dx%d", DefaultFbWidth, DefaultFbHeight)))
		cfg.FbWidth, cfg.FbHeight = DefaultFbWidth, DefaultFbHeight
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	return err
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.CliTimeout) * time.Second
}

func (c *Config) TimeoutCheck() time.Duration {
	return time.Duration(c.CliTimeoutCheck) * time.Second
}
