package agentsession

import (
	"time"

	"github.com/cabinetrun/cabinet/internal/config"
)

// Config holds the Agent Session runtime tunables, translated from
// internal/config's millisecond-valued RuntimeDefaults into the
// time.Duration values the loops actually use.
type Config struct {
	IdleTimeout         time.Duration
	SyncInterval        time.Duration
	HealthInterval      time.Duration
	WatcherReadyTimeout time.Duration
	MaxWatchedFileBytes int
	Debounce            time.Duration
	BinaryExtensions    map[string]struct{}
}

// ConfigFromDefaults converts a loaded RuntimeDefaults block into a
// Config, falling back to DefaultConfig's values for any zero field
// (e.g. when the caller passes a zero-value RuntimeDefaults in tests).
func ConfigFromDefaults(d config.RuntimeDefaults) Config {
	cfg := DefaultConfig()
	if d.IdleTimeoutMs > 0 {
		cfg.IdleTimeout = time.Duration(d.IdleTimeoutMs) * time.Millisecond
	}
	if d.SyncIntervalMs > 0 {
		cfg.SyncInterval = time.Duration(d.SyncIntervalMs) * time.Millisecond
	}
	if d.HealthIntervalMs > 0 {
		cfg.HealthInterval = time.Duration(d.HealthIntervalMs) * time.Millisecond
	}
	if d.WatcherReadyTimeoutMs > 0 {
		cfg.WatcherReadyTimeout = time.Duration(d.WatcherReadyTimeoutMs) * time.Millisecond
	}
	if d.MaxWatchedFileBytes > 0 {
		cfg.MaxWatchedFileBytes = d.MaxWatchedFileBytes
	}
	if d.DebounceMs > 0 {
		cfg.Debounce = time.Duration(d.DebounceMs) * time.Millisecond
	}
	if len(d.BinaryExtensions) > 0 {
		cfg.BinaryExtensions = make(map[string]struct{}, len(d.BinaryExtensions))
		for _, ext := range d.BinaryExtensions {
			cfg.BinaryExtensions[ext] = struct{}{}
		}
	}
	return cfg
}

// DefaultConfig returns the spec's documented defaults: 15 min idle
// timeout, 60s sync, 30s health check, 30s watcher activation timeout,
// 1 MiB max watched file size, 500ms debounce.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:         15 * time.Minute,
		SyncInterval:        60 * time.Second,
		HealthInterval:      30 * time.Second,
		WatcherReadyTimeout: 30 * time.Second,
		MaxWatchedFileBytes: 1 << 20,
		Debounce:            500 * time.Millisecond,
		BinaryExtensions:    map[string]struct{}{},
	}
}
