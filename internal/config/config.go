// Package config holds the pipeline configuration and its JSON file format.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/born-ml/livedepth/internal/bridge"
	"github.com/born-ml/livedepth/internal/gpu"
)

// Defaults.
const (
	DefaultSize        = 256
	DefaultEventBuffer = 4
	DefaultListenAddr  = ":8080"
	maxFileSize        = 1 * 1024 * 1024 // 1MB
)

// Config is the complete pipeline configuration.
// Fields omitted from a JSON file keep their Default values.
type Config struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// Layout is "auto", "direct" or "reshape".
	Layout string `json:"layout"`
	// InputOrder is "auto", "nhwc" or "nchw".
	InputOrder string `json:"input_order"`

	CalculateExtents bool   `json:"calculate_extents"`
	ModelPath        string `json:"model_path,omitempty"`
	// ModelSHA256 is the expected hex digest of the model_path file.
	ModelSHA256 string `json:"model_sha256,omitempty"`

	// Device is "host" or "webgpu".
	Device string `json:"device"`
	// Resample is "nearest", "approx-bilinear", "bilinear" or "catmull-rom".
	Resample string `json:"resample"`

	// Mean and Std are optional per-channel input normalization (3 values each).
	Mean []float32 `json:"mean,omitempty"`
	Std  []float32 `json:"std,omitempty"`

	// FrameBudget is a duration string like "33ms"; empty disables the check.
	FrameBudget string `json:"frame_budget,omitempty"`

	// MaxConsecutiveSkips escalates repeated skipped ticks; 0 means never.
	MaxConsecutiveSkips int `json:"max_consecutive_skips"`

	// EventBuffer is the channel capacity of each event subscriber.
	EventBuffer int `json:"event_buffer"`

	// ParallelConvert splits color-to-tensor conversion across CPU cores.
	ParallelConvert bool `json:"parallel_convert,omitempty"`

	// ListenAddr is the address of the depth stream server.
	ListenAddr string `json:"listen_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Width:       DefaultSize,
		Height:      DefaultSize,
		Layout:      "auto",
		InputOrder:  "auto",
		Device:      "host",
		Resample:    "bilinear",
		EventBuffer: DefaultEventBuffer,
		ListenAddr:  DefaultListenAddr,
	}
}

// Load reads a JSON configuration file on top of the defaults.
// The file must have a .json extension and be at most 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("width and height must be positive, got %dx%d", c.Width, c.Height)
	}
	if _, err := bridge.ParseLayout(c.Layout); err != nil {
		return err
	}
	if _, err := bridge.ParseInputOrder(c.InputOrder); err != nil {
		return err
	}
	if _, err := gpu.ParseResampler(c.Resample); err != nil {
		return err
	}
	switch c.Device {
	case "", "host", "webgpu":
	default:
		return fmt.Errorf("device must be host or webgpu, got %q", c.Device)
	}
	if len(c.Mean) != 0 && len(c.Mean) != bridge.Channels {
		return fmt.Errorf("mean must have %d values, got %d", bridge.Channels, len(c.Mean))
	}
	if len(c.Std) != 0 && len(c.Std) != bridge.Channels {
		return fmt.Errorf("std must have %d values, got %d", bridge.Channels, len(c.Std))
	}
	for i, s := range c.Std {
		if s <= 0 {
			return fmt.Errorf("std[%d] must be positive, got %g", i, s)
		}
	}
	if c.FrameBudget != "" {
		d, err := time.ParseDuration(c.FrameBudget)
		if err != nil {
			return fmt.Errorf("invalid frame_budget %q: %w", c.FrameBudget, err)
		}
		if d < 0 {
			return fmt.Errorf("frame_budget must be non-negative, got %s", d)
		}
	}
	if c.ModelSHA256 != "" {
		if b, err := hex.DecodeString(c.ModelSHA256); err != nil || len(b) != sha256.Size {
			return fmt.Errorf("model_sha256 must be 64 hex characters, got %q", c.ModelSHA256)
		}
	}
	if c.MaxConsecutiveSkips < 0 {
		return fmt.Errorf("max_consecutive_skips must be non-negative, got %d", c.MaxConsecutiveSkips)
	}
	if c.EventBuffer < 0 {
		return fmt.Errorf("event_buffer must be non-negative, got %d", c.EventBuffer)
	}
	return nil
}

// LayoutMode returns the parsed layout, LayoutAuto if invalid.
func (c *Config) LayoutMode() bridge.Layout {
	l, _ := bridge.ParseLayout(c.Layout)
	return l
}

// Order returns the parsed input order, OrderAuto if invalid.
func (c *Config) Order() bridge.InputOrder {
	o, _ := bridge.ParseInputOrder(c.InputOrder)
	return o
}

// Resampler returns the parsed resampling kernel, Bilinear if invalid.
func (c *Config) Resampler() gpu.Resampler {
	r, err := gpu.ParseResampler(c.Resample)
	if err != nil {
		return gpu.Bilinear
	}
	return r
}

// Budget returns the frame budget, or 0 when unset.
func (c *Config) Budget() time.Duration {
	if c.FrameBudget == "" {
		return 0
	}
	d, err := time.ParseDuration(c.FrameBudget)
	if err != nil {
		return 0
	}
	return d
}

// Normalization returns the per-channel mean and std, zero when unset.
func (c *Config) Normalization() (mean, std [bridge.Channels]float32) {
	copy(mean[:], c.Mean)
	copy(std[:], c.Std)
	return mean, std
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
