package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/camrig/internal/ringbuf"
)

// TuningConfig represents the optional JSON tuning file for the pipeline.
// Fields are pointers so a partial file only overrides what it names; the
// Get* methods provide the defaults for everything else.
type TuningConfig struct {
	// PollInterval is the worker poll sleep, as a duration string like
	// "1ms". It bounds shutdown and consumer latency.
	PollInterval *string `json:"poll_interval,omitempty"`

	// RingCapacity is the slot count of each camera's raw-frame ring.
	RingCapacity *int `json:"ring_capacity,omitempty"`

	// ReadMode is "next" (synchronized, every frame once) or "latest"
	// (freshness over completeness).
	ReadMode *string `json:"read_mode,omitempty"`

	// QueueWarnDepth is the output-queue backlog at which workers log a
	// diagnostic. Zero disables the warning.
	QueueWarnDepth *int `json:"queue_warn_depth,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset, so
// every Get* method reports its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.PollInterval != nil && *c.PollInterval != "" {
		d, err := time.ParseDuration(*c.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval '%s': %w", *c.PollInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive, got %s", d)
		}
	}

	if c.RingCapacity != nil && *c.RingCapacity < 1 {
		return fmt.Errorf("ring_capacity must be at least 1, got %d", *c.RingCapacity)
	}

	if c.ReadMode != nil {
		if _, err := ringbuf.ParseReadMode(*c.ReadMode); err != nil {
			return err
		}
	}

	if c.QueueWarnDepth != nil && *c.QueueWarnDepth < 0 {
		return fmt.Errorf("queue_warn_depth must be non-negative, got %d", *c.QueueWarnDepth)
	}

	return nil
}

// GetPollInterval parses and returns PollInterval as a time.Duration.
func (c *TuningConfig) GetPollInterval() time.Duration {
	if c.PollInterval == nil || *c.PollInterval == "" {
		return DefaultPollInterval
	}
	d, err := time.ParseDuration(*c.PollInterval)
	if err != nil || d <= 0 {
		return DefaultPollInterval
	}
	return d
}

// GetRingCapacity returns the ring_capacity value or the default.
func (c *TuningConfig) GetRingCapacity() int {
	if c.RingCapacity == nil {
		return ringbuf.DefaultCapacity
	}
	return *c.RingCapacity
}

// GetReadMode returns the read_mode value or the default ("next").
func (c *TuningConfig) GetReadMode() string {
	if c.ReadMode == nil {
		return "next"
	}
	return *c.ReadMode
}

// GetQueueWarnDepth returns the queue_warn_depth value or the default.
func (c *TuningConfig) GetQueueWarnDepth() int {
	if c.QueueWarnDepth == nil {
		return 64
	}
	return *c.QueueWarnDepth
}
