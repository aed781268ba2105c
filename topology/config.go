package topology

import (
	"slices"
	"strings"
	"time"
)

// DrainConfig represents the drain mode configuration stored in NATS KV.
//
// This is the JSON structure that operations teams PUT to the KV store
// to take cluster nodes out of rotation:
//
//	{"drain": ["10.0.0.1", "10.0.0.2:9042"], "reason": "OS Patching"}
type DrainConfig struct {
	// Drain lists the hosts currently being drained, as "host" or "host:port".
	// A bare host drains every port of that host.
	Drain []string `json:"drain"`

	// Reason is a human-readable explanation for the drain.
	// Example: "OS Patching", "Scaling", "Upgrade to v4.1"
	Reason string `json:"reason,omitempty"`
}

// ContainsHost returns true if the given host is in the drain list.
//
// Parameters:
//   - host: The host or "host:port" to check
//
// Returns:
//   - bool: true if the host is being drained
func (d *DrainConfig) ContainsHost(host string) bool {
	host = normalizeHost(host)
	for _, h := range d.Drain {
		if normalizeHost(h) == host {
			return true
		}
	}

	return false
}

// Hosts returns the normalized, de-duplicated, sorted drain list.
func (d *DrainConfig) Hosts() []string {
	hosts := make([]string, 0, len(d.Drain))
	for _, h := range d.Drain {
		if h = normalizeHost(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	slices.Sort(hosts)

	return slices.Compact(hosts)
}

// WatcherConfig holds configuration for drain watchers.
type WatcherConfig struct {
	// Key is the NATS KV key to watch for drain configuration.
	// Default: "tether.topology.drain"
	Key string

	// PollInterval is the fallback polling interval if watch fails.
	// Default: 5 seconds
	PollInterval time.Duration

	// InitialFetchTimeout is the timeout for the initial KV fetch.
	// Default: 10 seconds
	InitialFetchTimeout time.Duration
}

// DefaultWatcherConfig returns a WatcherConfig with sensible defaults.
//
// Returns:
//   - WatcherConfig: Default configuration
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Key:                 "tether.topology.drain",
		PollInterval:        5 * time.Second,
		InitialFetchTimeout: 10 * time.Second,
	}
}

// WatcherOption configures a drain watcher.
type WatcherOption func(*WatcherConfig)

// WithKey sets the NATS KV key to watch.
//
// Parameters:
//   - key: The key name (e.g., "storage.topology.maintenance")
//
// Returns:
//   - WatcherOption: Configuration option
func WithKey(key string) WatcherOption {
	return func(c *WatcherConfig) {
		c.Key = key
	}
}

// WithPollInterval sets the fallback polling interval.
//
// If the NATS watch fails or disconnects, the watcher falls back to
// polling at this interval.
//
// Parameters:
//   - d: Polling interval duration
//
// Returns:
//   - WatcherOption: Configuration option
func WithPollInterval(d time.Duration) WatcherOption {
	return func(c *WatcherConfig) {
		c.PollInterval = d
	}
}

// WithInitialFetchTimeout sets the timeout for the initial KV fetch.
//
// Parameters:
//   - d: Timeout duration
//
// Returns:
//   - WatcherOption: Configuration option
func WithInitialFetchTimeout(d time.Duration) WatcherOption {
	return func(c *WatcherConfig) {
		c.InitialFetchTimeout = d
	}
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
