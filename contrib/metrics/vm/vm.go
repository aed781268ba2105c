package vm

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/arloliu/tether/types"
)

// Option configures a Collector.
type Option func(*Collector)

// WithPrefix sets the metric name prefix.
//
// Default: "tether"
//
// Parameters:
//   - prefix: The prefix to use for all metric names
//
// Returns:
//   - Option: A configuration option
func WithPrefix(prefix string) Option {
	return func(c *Collector) {
		c.prefix = prefix
	}
}

// WithMetricsSet sets the metrics set to use.
//
// If provided, the collector will register metrics with this set instead of
// creating a new one. The caller is responsible for exposing this set
// (e.g., via metrics.WritePrometheus or a custom handler).
//
// Parameters:
//   - set: The metrics set to use
//
// Returns:
//   - Option: A configuration option
func WithMetricsSet(set *metrics.Set) Option {
	return func(c *Collector) {
		c.set = set
	}
}

// Collector implements types.MetricsCollector using VictoriaMetrics.
//
// All metrics are pre-created at initialization time for optimal performance.
// Thread-safe for concurrent use.
type Collector struct {
	set    *metrics.Set
	prefix string

	// Acquire metrics
	acquireTotal  *metrics.Counter
	acquireErrors map[types.ErrorCode]*metrics.Counter
	poolHits      *metrics.Counter

	// Open metrics
	openTotal    *metrics.Counter
	openErrors   map[types.ErrorCode]*metrics.Counter
	openDuration *metrics.Histogram

	// Dispatch metrics
	dispatchTotal    *metrics.Counter
	dispatchErrors   *metrics.Counter
	dispatchDuration *metrics.Histogram

	// Lifecycle metrics
	evicted       map[types.EvictReason]*metrics.Counter
	closeTimeouts *metrics.Counter
	liveHandles   atomic.Int64
	liveSessions  atomic.Int64

	// Drain metrics
	drainingHosts    atomic.Int64
	drainModeEntered *metrics.Counter
	drainModeExited  *metrics.Counter
}

// Compile-time assertion that Collector implements types.MetricsCollector.
var _ types.MetricsCollector = (*Collector)(nil)

// New creates a new VictoriaMetrics-based metrics collector.
//
// The collector creates its own metrics.Set and registers it globally.
// All metrics are pre-created at initialization for optimal performance.
//
// Parameters:
//   - opts: Configuration options (e.g., WithPrefix)
//
// Returns:
//   - *Collector: A new metrics collector ready for use
//
// Example:
//
//	collector := vm.New(vm.WithPrefix("myapp"))
//	registry, _ := tether.NewRegistry(factory,
//	    tether.WithMetrics(collector),
//	)
func New(opts ...Option) *Collector {
	c := &Collector{
		prefix: "tether",
	}

	for _, opt := range opts {
		opt(c)
	}

	// If no set is provided, create a new one and register it globally.
	// If a set is provided, we assume the caller manages it.
	if c.set == nil {
		c.set = metrics.NewSet()
		metrics.RegisterSet(c.set)
	}

	c.initMetrics()

	return c
}

// initMetrics pre-creates all metrics with the configured prefix.
func (c *Collector) initMetrics() {
	p := c.prefix

	// Acquire metrics
	c.acquireTotal = c.set.NewCounter(p + "_acquire_total")
	c.acquireErrors = make(map[types.ErrorCode]*metrics.Counter)
	c.openErrors = make(map[types.ErrorCode]*metrics.Counter)
	for _, code := range types.ErrorCodes() {
		c.acquireErrors[code] = c.set.NewCounter(fmt.Sprintf(`%s_acquire_errors_total{code="%s"}`, p, code))
		c.openErrors[code] = c.set.NewCounter(fmt.Sprintf(`%s_open_errors_total{code="%s"}`, p, code))
	}
	c.poolHits = c.set.NewCounter(p + "_pool_hits_total")

	// Open metrics
	c.openTotal = c.set.NewCounter(p + "_open_total")
	c.openDuration = c.set.NewHistogram(p + "_open_duration_seconds")

	// Dispatch metrics
	c.dispatchTotal = c.set.NewCounter(p + "_dispatch_total")
	c.dispatchErrors = c.set.NewCounter(p + "_dispatch_errors_total")
	c.dispatchDuration = c.set.NewHistogram(p + "_dispatch_duration_seconds")

	// Lifecycle metrics
	c.evicted = make(map[types.EvictReason]*metrics.Counter)
	for _, reason := range types.EvictReasons() {
		c.evicted[reason] = c.set.NewCounter(fmt.Sprintf(`%s_handles_evicted_total{reason="%s"}`, p, reason))
	}
	c.closeTimeouts = c.set.NewCounter(p + "_close_timeouts_total")
	c.set.NewGauge(p+"_live_handles", func() float64 {
		return float64(c.liveHandles.Load())
	})
	c.set.NewGauge(p+"_live_sessions", func() float64 {
		return float64(c.liveSessions.Load())
	})

	// Drain metrics
	c.set.NewGauge(p+"_draining_hosts", func() float64 {
		return float64(c.drainingHosts.Load())
	})
	c.drainModeEntered = c.set.NewCounter(p + "_drain_mode_entered_total")
	c.drainModeExited = c.set.NewCounter(p + "_drain_mode_exited_total")
}

// Set returns the metrics set holding the collector's metrics.
func (c *Collector) Set() *metrics.Set {
	return c.set
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
//
// Example:
//
//	http.HandleFunc("/metrics", collector.Handler)
func (c *Collector) Handler(w http.ResponseWriter, _ *http.Request) {
	c.set.WritePrometheus(w)
}

// WritePrometheus writes all metrics in Prometheus format to the given writer.
//
// Parameters:
//   - w: The writer to write metrics to
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

// ----------------------
// Acquire
// ----------------------

// IncAcquireTotal increments the total acquire calls counter.
func (c *Collector) IncAcquireTotal() {
	c.acquireTotal.Inc()
}

// IncAcquireError increments the acquire failures counter for the given code.
func (c *Collector) IncAcquireError(code types.ErrorCode) {
	if counter, ok := c.acquireErrors[code]; ok {
		counter.Inc()
	}
}

// IncPoolHit increments the counter of acquires that joined a pooled session.
func (c *Collector) IncPoolHit() {
	c.poolHits.Inc()
}

// ----------------------
// Session Open
// ----------------------

// IncOpenTotal increments the number of session open attempts.
func (c *Collector) IncOpenTotal() {
	c.openTotal.Inc()
}

// IncOpenError increments the failed open attempts counter for the given code.
func (c *Collector) IncOpenError(code types.ErrorCode) {
	if counter, ok := c.openErrors[code]; ok {
		counter.Inc()
	}
}

// ObserveOpenDuration records an open attempt duration in seconds.
func (c *Collector) ObserveOpenDuration(seconds float64) {
	c.openDuration.Update(seconds)
}

// ----------------------
// Dispatch
// ----------------------

// IncDispatchTotal increments the total dispatched operations counter.
func (c *Collector) IncDispatchTotal() {
	c.dispatchTotal.Inc()
}

// IncDispatchError increments the failed dispatch counter.
func (c *Collector) IncDispatchError() {
	c.dispatchErrors.Inc()
}

// ObserveDispatchDuration records an operation duration in seconds.
func (c *Collector) ObserveDispatchDuration(seconds float64) {
	c.dispatchDuration.Update(seconds)
}

// ----------------------
// Lifecycle
// ----------------------

// IncHandleEvicted increments the evicted handles counter for the given reason.
func (c *Collector) IncHandleEvicted(reason types.EvictReason) {
	if counter, ok := c.evicted[reason]; ok {
		counter.Inc()
	}
}

// IncCloseTimeout increments the counter of sessions detached after a close timeout.
func (c *Collector) IncCloseTimeout() {
	c.closeTimeouts.Inc()
}

// SetLiveHandles sets the live handles gauge.
func (c *Collector) SetLiveHandles(n int) {
	c.liveHandles.Store(int64(n))
}

// SetLiveSessions sets the live sessions gauge.
func (c *Collector) SetLiveSessions(n int) {
	c.liveSessions.Store(int64(n))
}

// ----------------------
// Drain
// ----------------------

// IncDrainModeEntered increments the counter when a host enters drain mode.
func (c *Collector) IncDrainModeEntered() {
	c.drainModeEntered.Inc()
}

// IncDrainModeExited increments the counter when a host exits drain mode.
func (c *Collector) IncDrainModeExited() {
	c.drainModeExited.Inc()
}

// SetDrainingHosts sets the gauge of hosts currently draining.
func (c *Collector) SetDrainingHosts(n int) {
	c.drainingHosts.Store(int64(n))
}
