package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// MaxQueuePages is the hard ceiling on queue depth, in pages. A
	// transaction whose writes would exceed it fails with ErrQueueFull.
	MaxQueuePages int64 `json:"maxQueuePages"`
	// CleanupCadencePages is how many pages a committing transaction must
	// cross before it attempts tail advancement.
	CleanupCadencePages int64 `json:"cleanupCadencePages"`
	// FillWarnRatio is the queue fill ratio above which a warning is logged
	// during pre-commit writes. Zero disables the warning.
	FillWarnRatio float64 `json:"fillWarnRatio"`
	// FillWarnIntervalMs is the minimum interval between repeated fill
	// warnings, in milliseconds.
	FillWarnIntervalMs int64 `json:"fillWarnIntervalMs"`
	// ChannelMaxBytes bounds channel names.
	ChannelMaxBytes int `json:"channelMaxBytes"`
	// PayloadMaxBytes bounds notification payloads.
	PayloadMaxBytes int `json:"payloadMaxBytes"`
	// MaxWorkers is the size of the worker slot arena.
	MaxWorkers int `json:"maxWorkers"`
	// DefaultNamespaceName is used when a caller omits the namespace.
	DefaultNamespaceName string `json:"defaultNamespaceName"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		MaxQueuePages:        1024,
		CleanupCadencePages:  4,
		FillWarnRatio:        0.5,
		FillWarnIntervalMs:   10_000,
		ChannelMaxBytes:      256,
		PayloadMaxBytes:      7680,
		MaxWorkers:           128,
		DefaultNamespaceName: "default",
	}
}

// queuePageSize mirrors notify.PageSize; validating here makes a bad ceiling
// fail at load time rather than at the first oversized write.
const (
	queuePageSize    = 8192
	entryHeaderBytes = 24
)

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.MaxQueuePages <= 0 {
		return errors.New("config: maxQueuePages must be positive")
	}
	if c.CleanupCadencePages <= 0 {
		return errors.New("config: cleanupCadencePages must be positive")
	}
	if c.FillWarnRatio < 0 || c.FillWarnRatio > 1 {
		return errors.New("config: fillWarnRatio must be in [0,1]")
	}
	if c.ChannelMaxBytes <= 0 {
		return errors.New("config: channelMaxBytes must be positive")
	}
	if c.PayloadMaxBytes < 0 {
		return errors.New("config: payloadMaxBytes must be non-negative")
	}
	if entryHeaderBytes+c.ChannelMaxBytes+c.PayloadMaxBytes > queuePageSize {
		return fmt.Errorf("config: channelMaxBytes+payloadMaxBytes exceed page capacity (%d)", queuePageSize-entryHeaderBytes)
	}
	if c.MaxWorkers <= 0 {
		return errors.New("config: maxWorkers must be positive")
	}
	return nil
}

// Load reads configuration from a JSON file. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
