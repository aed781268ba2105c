package tether

import (
	"time"

	"github.com/arloliu/tether/internal/logging"
	"github.com/arloliu/tether/internal/metrics"
	"github.com/arloliu/tether/types"
)

// Default registry timings.
const (
	DefaultIdleTimeout   = 30 * time.Second
	DefaultOpenTimeout   = 10 * time.Second
	DefaultCloseTimeout  = 5 * time.Second
	DefaultSweepInterval = 15 * time.Second
)

// Clock returns the current time.
//
// The default clock is time.Now. Tests inject a controllable clock to drive
// idle expiry without sleeping.
type Clock func() time.Time

// RegistryConfig holds configuration for a Registry.
type RegistryConfig struct {
	// Pooling makes handles with the same origin fingerprint share one Session.
	Pooling bool

	// IdleTimeout is used when Acquire is called with a non-positive idle timeout.
	IdleTimeout time.Duration

	// OpenTimeout bounds Session establishment. It is owned by the open
	// attempt, so every waiter on a pooled session sees the same outcome.
	OpenTimeout time.Duration

	// CloseTimeout bounds both the wait for in-flight operations on release
	// and Session.Close. Sessions that exceed it are detached.
	CloseTimeout time.Duration

	// SweepInterval is the period of the background sweeper. Zero disables it.
	SweepInterval time.Duration

	// SweepOnAccess runs a sweep before each Acquire, Lookup and Dispatch.
	SweepOnAccess bool

	// MaxHandles limits live handles. Zero means unlimited.
	MaxHandles int

	DrainWatcher DrainWatcher
	Metrics      MetricsCollector
	Logger       types.Logger
	Clock        Clock
}

// DefaultConfig returns a RegistryConfig with sensible defaults.
//
// Defaults:
//   - Pooling: off, every handle owns its Session
//   - IdleTimeout: 30s
//   - OpenTimeout: 10s
//   - CloseTimeout: 5s
//   - SweepInterval: 15s
//   - MaxHandles: unlimited
//
// Returns:
//   - *RegistryConfig: Configuration with default settings
func DefaultConfig() *RegistryConfig {
	return &RegistryConfig{
		IdleTimeout:   DefaultIdleTimeout,
		OpenTimeout:   DefaultOpenTimeout,
		CloseTimeout:  DefaultCloseTimeout,
		SweepInterval: DefaultSweepInterval,
		Metrics:       metrics.NewNopMetrics(),
		Logger:        logging.NewNopLogger(),
		Clock:         time.Now,
	}
}

// Option configures a RegistryConfig.
type Option func(*RegistryConfig)

// WithPooling enables or disables session sharing between handles of equal origins.
//
// Parameters:
//   - enabled: true to share one Session per origin fingerprint
//
// Returns:
//   - Option: Configuration option
func WithPooling(enabled bool) Option {
	return func(c *RegistryConfig) {
		c.Pooling = enabled
	}
}

// WithIdleTimeout sets the default idle timeout of new handles.
//
// Parameters:
//   - d: Idle timeout; non-positive values keep the default
//
// Returns:
//   - Option: Configuration option
func WithIdleTimeout(d time.Duration) Option {
	return func(c *RegistryConfig) {
		if d > 0 {
			c.IdleTimeout = d
		}
	}
}

// WithOpenTimeout sets the Session establishment deadline.
//
// Parameters:
//   - d: Open timeout; non-positive values keep the default
//
// Returns:
//   - Option: Configuration option
func WithOpenTimeout(d time.Duration) Option {
	return func(c *RegistryConfig) {
		if d > 0 {
			c.OpenTimeout = d
		}
	}
}

// WithCloseTimeout sets the deadline for draining and closing a Session.
//
// Parameters:
//   - d: Close timeout; non-positive values keep the default
//
// Returns:
//   - Option: Configuration option
func WithCloseTimeout(d time.Duration) Option {
	return func(c *RegistryConfig) {
		if d > 0 {
			c.CloseTimeout = d
		}
	}
}

// WithSweepInterval sets the background sweep period.
//
// Parameters:
//   - d: Sweep period; zero disables the background sweeper
//
// Returns:
//   - Option: Configuration option
func WithSweepInterval(d time.Duration) Option {
	return func(c *RegistryConfig) {
		if d >= 0 {
			c.SweepInterval = d
		}
	}
}

// WithSweepOnAccess runs a sweep before every Acquire, Lookup and Dispatch.
//
// Parameters:
//   - enabled: true to sweep on access
//
// Returns:
//   - Option: Configuration option
func WithSweepOnAccess(enabled bool) Option {
	return func(c *RegistryConfig) {
		c.SweepOnAccess = enabled
	}
}

// WithMaxHandles limits the number of live handles.
//
// Acquire fails with types.ErrHandleExhausted once the limit is reached.
//
// Parameters:
//   - n: Maximum live handles; zero means unlimited
//
// Returns:
//   - Option: Configuration option
func WithMaxHandles(n int) Option {
	return func(c *RegistryConfig) {
		if n >= 0 {
			c.MaxHandles = n
		}
	}
}

// WithDrainWatcher sets the source of host drain updates.
//
// Origins whose every address is draining are refused by Acquire, and their
// idle handles are evicted by the sweep.
//
// Parameters:
//   - watcher: The drain watcher implementation (e.g., topology.Local, topology.NATS)
//
// Returns:
//   - Option: Configuration option
func WithDrainWatcher(watcher DrainWatcher) Option {
	return func(c *RegistryConfig) {
		c.DrainWatcher = watcher
	}
}

// WithMetrics sets the metrics collector.
//
// If not set, a no-op collector is used that discards all metrics.
// Use contrib/metrics/vm.New() or contrib/metrics/prom.New() for integration.
//
// Parameters:
//   - collector: The metrics collector implementation
//
// Returns:
//   - Option: Configuration option
//
// Example:
//
//	import vmmetrics "github.com/arloliu/tether/contrib/metrics/vm"
//
//	collector := vmmetrics.New(vmmetrics.WithPrefix("myapp"))
//	registry, _ := tether.NewRegistry(factory,
//	    tether.WithMetrics(collector),
//	)
func WithMetrics(collector MetricsCollector) Option {
	return func(c *RegistryConfig) {
		c.Metrics = collector
	}
}

// WithLogger sets the structured logger.
//
// If not set, a no-op logger is used that discards all messages.
//
// Parameters:
//   - logger: The logger implementation
//
// Returns:
//   - Option: Configuration option
//
// Example:
//
//	registry, _ := tether.NewRegistry(factory,
//	    tether.WithLogger(zl.New(zl.FromEnv(os.Stderr))),
//	)
func WithLogger(logger types.Logger) Option {
	return func(c *RegistryConfig) {
		c.Logger = logger
	}
}

// WithClock sets the time source used for idle expiry.
//
// Parameters:
//   - clock: Function returning the current time
//
// Returns:
//   - Option: Configuration option
func WithClock(clock Clock) Option {
	return func(c *RegistryConfig) {
		c.Clock = clock
	}
}
