package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithPrometheusRegistry sets the registry the metrics are registered on.
// Only meaningful for NewManager; Configure keeps the original registry.
func WithPrometheusRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// WithRefreshInterval sets how often sampled gauges (pool size, memory,
// goroutines) are refreshed by the daemon.
func WithRefreshInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.refreshInterval.Store(int64(interval))
		}
	}
}

// WithMetricsEnabled turns recording on or off.
func WithMetricsEnabled(enabled bool) Option {
	return func(m *Manager) {
		m.enabled.Store(enabled)
	}
}

// Configure applies runtime options to the global manager.
func Configure(opts ...Option) {
	if globalManager == nil {
		return
	}
	registry := globalManager.registry
	for _, opt := range opts {
		opt(globalManager)
	}
	globalManager.registry = registry
}

// RefreshInterval returns the global gauge refresh interval.
func RefreshInterval() time.Duration {
	if globalManager == nil {
		return defaultRefreshInterval
	}
	return globalManager.RefreshInterval()
}
