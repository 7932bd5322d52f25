package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultModel         = "auto"
	DefaultLanguage      = "auto"
	DefaultDevice        = "auto"
	defaultBeamSize      = 5
	defaultBestOf        = 5
	defaultStallTimeout  = 20
	defaultSilenceDBFS   = -65
	defaultLogLevel      = "info"
	defaultLogFormat     = "console"
	defaultEnvPrefix     = "WIPSHER_"
	validDeviceSelectors = "auto|cpu|gpu"
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Model struct {
		Name         string `toml:"name"` // auto, tiny, base, small, medium, large or a model file path
		Dir          string `toml:"dir"`
		AutoDownload bool   `toml:"auto_download"`
	} `toml:"model"`

	Transcription struct {
		Language        string  `toml:"language"`
		Device          string  `toml:"device"` // auto, cpu, gpu
		BeamSize        int     `toml:"beam_size"`
		BestOf          int     `toml:"best_of"`
		Temperature     float64 `toml:"temperature"`
		Threads         int     `toml:"threads"`
		ExtraArgs       string  `toml:"extra_args"`
		StallTimeoutSec int     `toml:"stall_timeout_sec"`
	} `toml:"transcription"`

	Audio struct {
		SilenceGate          bool    `toml:"silence_gate"`
		SilenceThresholdDBFS float64 `toml:"silence_threshold_dbfs"`
		KeepConverted        bool    `toml:"keep_converted"`
	} `toml:"audio"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // console, json
		File   string `toml:"file"`
	} `toml:"logging"`

	Path string `toml:"-"`
}

// Default returns Config populated with defaults.
func Default() *Config {
	cfg := &Config{}

	cfg.Model.Name = DefaultModel
	cfg.Model.AutoDownload = true

	cfg.Transcription.Language = DefaultLanguage
	cfg.Transcription.Device = DefaultDevice
	cfg.Transcription.BeamSize = defaultBeamSize
	cfg.Transcription.BestOf = defaultBestOf
	cfg.Transcription.Temperature = 0
	cfg.Transcription.StallTimeoutSec = defaultStallTimeout

	cfg.Audio.SilenceGate = true
	cfg.Audio.SilenceThresholdDBFS = defaultSilenceDBFS
	cfg.Audio.KeepConverted = true

	cfg.Logging.Level = defaultLogLevel
	cfg.Logging.Format = defaultLogFormat

	return cfg
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.Path = path

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := Encode(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func Encode(cfg *Config) ([]byte, error) {
	out, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}

func (c *Config) Validate() error {
	switch c.Transcription.Device {
	case "auto", "cpu", "gpu":
	default:
		return fmt.Errorf("invalid transcription.device %q (want %s)", c.Transcription.Device, validDeviceSelectors)
	}
	if c.Transcription.BeamSize < 1 {
		return fmt.Errorf("transcription.beam_size must be at least 1, got %d", c.Transcription.BeamSize)
	}
	if c.Transcription.BestOf < 1 {
		return fmt.Errorf("transcription.best_of must be at least 1, got %d", c.Transcription.BestOf)
	}
	if c.Transcription.Temperature < 0 || c.Transcription.Temperature > 1 {
		return fmt.Errorf("transcription.temperature must be within [0, 1], got %g", c.Transcription.Temperature)
	}
	if c.Transcription.Threads < 0 {
		return fmt.Errorf("transcription.threads must not be negative, got %d", c.Transcription.Threads)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging.format %q (want console|json)", c.Logging.Format)
	}
	return nil
}

// StallTimeout falls back to the default when unset or negative.
func (c *Config) StallTimeout() time.Duration {
	if c.Transcription.StallTimeoutSec <= 0 {
		return defaultStallTimeout * time.Second
	}
	return time.Duration(c.Transcription.StallTimeoutSec) * time.Second
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if v := getenv(defaultEnvPrefix + "MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := getenv(defaultEnvPrefix + "MODEL_DIR"); v != "" {
		cfg.Model.Dir = v
	}
	if v := getenv(defaultEnvPrefix + "AUTO_DOWNLOAD"); v != "" {
		cfg.Model.AutoDownload = v != "0" && strings.ToLower(v) != "false"
	}
	if v := getenv(defaultEnvPrefix + "LANGUAGE"); v != "" {
		cfg.Transcription.Language = v
	}
	if v := getenv(defaultEnvPrefix + "DEVICE"); v != "" {
		cfg.Transcription.Device = strings.ToLower(v)
	}
	if v := getenv(defaultEnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv(defaultEnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
