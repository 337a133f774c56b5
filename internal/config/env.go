package config

import (
	"os"
	"strconv"
)

// FromEnv overlays NOTIQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("NOTIQ_MAX_QUEUE_PAGES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxQueuePages = n
		}
	}
	if v := os.Getenv("NOTIQ_CLEANUP_CADENCE_PAGES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.CleanupCadencePages = n
		}
	}
	if v := os.Getenv("NOTIQ_FILL_WARN_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FillWarnRatio = f
		}
	}
	if v := os.Getenv("NOTIQ_FILL_WARN_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.FillWarnIntervalMs = n
		}
	}
	if v := os.Getenv("NOTIQ_CHANNEL_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChannelMaxBytes = n
		}
	}
	if v := os.Getenv("NOTIQ_PAYLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PayloadMaxBytes = n
		}
	}
	if v := os.Getenv("NOTIQ_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxWorkers = n
		}
	}
	if v := os.Getenv("NOTIQ_DEFAULT_NAMESPACE_NAME"); v != "" {
		cfg.DefaultNamespaceName = v
	}
}
