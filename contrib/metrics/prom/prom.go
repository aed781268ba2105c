package prom

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/tether/types"
)

// Option configures a Collector.
type Option func(*Collector)

// WithNamespace sets the metric namespace.
//
// Default: "tether"
func WithNamespace(namespace string) Option {
	return func(c *Collector) {
		c.namespace = namespace
	}
}

// WithConstLabels attaches constant labels to every metric, e.g. the service name.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Collector) {
		c.constLabels = labels
	}
}

// Collector implements types.MetricsCollector on top of prometheus/client_golang.
//
// Label values come from closed sets (error codes and evict reasons), so
// series cardinality is fixed.
type Collector struct {
	namespace   string
	constLabels prometheus.Labels

	acquireTotal     prometheus.Counter
	acquireErrors    *prometheus.CounterVec
	poolHits         prometheus.Counter
	openTotal        prometheus.Counter
	openErrors       *prometheus.CounterVec
	openDuration     prometheus.Histogram
	dispatchTotal    prometheus.Counter
	dispatchErrors   prometheus.Counter
	dispatchDuration prometheus.Histogram
	evicted          *prometheus.CounterVec
	closeTimeouts    prometheus.Counter
	liveHandles      prometheus.Gauge
	liveSessions     prometheus.Gauge
	drainEntered     prometheus.Counter
	drainExited      prometheus.Counter
	drainingHosts    prometheus.Gauge
}

// Compile-time assertion that Collector implements types.MetricsCollector.
var _ types.MetricsCollector = (*Collector)(nil)

// New creates a collector and registers its metrics with reg.
//
// Parameters:
//   - reg: Registerer to use; nil uses prometheus.DefaultRegisterer
//   - opts: Configuration options
//
// Returns:
//   - *Collector: The collector
//   - error: Registration error, e.g. a name collision with another collector
func New(reg prometheus.Registerer, opts ...Option) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{namespace: "tether"}
	for _, opt := range opts {
		opt(c)
	}

	c.acquireTotal = c.counter("acquire_total", "Total Acquire calls.")
	c.acquireErrors = c.counterVec("acquire_errors_total", "Failed Acquire calls by error code.", "code")
	c.poolHits = c.counter("pool_hits_total", "Acquire calls that joined a pooled session.")
	c.openTotal = c.counter("open_total", "Session open attempts.")
	c.openErrors = c.counterVec("open_errors_total", "Failed session open attempts by error code.", "code")
	c.openDuration = c.histogram("open_duration_seconds", "Session open latency in seconds.")
	c.dispatchTotal = c.counter("dispatch_total", "Dispatched operations.")
	c.dispatchErrors = c.counter("dispatch_errors_total", "Operations that returned an error.")
	c.dispatchDuration = c.histogram("dispatch_duration_seconds", "Operation latency in seconds.")
	c.evicted = c.counterVec("handles_evicted_total", "Handles removed from the registry by reason.", "reason")
	c.closeTimeouts = c.counter("close_timeouts_total", "Sessions detached after a close timeout.")
	c.liveHandles = c.gauge("live_handles", "Handles in the registry.")
	c.liveSessions = c.gauge("live_sessions", "Sessions held by at least one handle.")
	c.drainEntered = c.counter("drain_mode_entered_total", "Hosts entering drain mode.")
	c.drainExited = c.counter("drain_mode_exited_total", "Hosts leaving drain mode.")
	c.drainingHosts = c.gauge("draining_hosts", "Hosts currently in drain mode.")

	// Pre-create labelled series so they are exported at zero
	for _, code := range types.ErrorCodes() {
		c.acquireErrors.WithLabelValues(code.String())
		c.openErrors.WithLabelValues(code.String())
	}
	for _, reason := range types.EvictReasons() {
		c.evicted.WithLabelValues(string(reason))
	}

	var errs []error
	for _, m := range c.collectors() {
		if err := reg.Register(m); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.acquireTotal, c.acquireErrors, c.poolHits,
		c.openTotal, c.openErrors, c.openDuration,
		c.dispatchTotal, c.dispatchErrors, c.dispatchDuration,
		c.evicted, c.closeTimeouts, c.liveHandles, c.liveSessions,
		c.drainEntered, c.drainExited, c.drainingHosts,
	}
}

func (c *Collector) counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   c.namespace,
		Name:        name,
		Help:        help,
		ConstLabels: c.constLabels,
	})
}

func (c *Collector) counterVec(name, help, label string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   c.namespace,
		Name:        name,
		Help:        help,
		ConstLabels: c.constLabels,
	}, []string{label})
}

func (c *Collector) gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   c.namespace,
		Name:        name,
		Help:        help,
		ConstLabels: c.constLabels,
	})
}

func (c *Collector) histogram(name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   c.namespace,
		Name:        name,
		Help:        help,
		ConstLabels: c.constLabels,
		Buckets:     prometheus.DefBuckets,
	})
}

// IncAcquireTotal increments the total acquire calls counter.
func (c *Collector) IncAcquireTotal() { c.acquireTotal.Inc() }

// IncAcquireError increments the acquire failures counter for the given code.
func (c *Collector) IncAcquireError(code types.ErrorCode) {
	c.acquireErrors.WithLabelValues(code.String()).Inc()
}

// IncPoolHit increments the counter of acquires that joined a pooled session.
func (c *Collector) IncPoolHit() { c.poolHits.Inc() }

// IncOpenTotal increments the number of session open attempts.
func (c *Collector) IncOpenTotal() { c.openTotal.Inc() }

// IncOpenError increments the failed open attempts counter for the given code.
func (c *Collector) IncOpenError(code types.ErrorCode) {
	c.openErrors.WithLabelValues(code.String()).Inc()
}

// ObserveOpenDuration records an open attempt duration in seconds.
func (c *Collector) ObserveOpenDuration(seconds float64) { c.openDuration.Observe(seconds) }

// IncDispatchTotal increments the total dispatched operations counter.
func (c *Collector) IncDispatchTotal() { c.dispatchTotal.Inc() }

// IncDispatchError increments the failed dispatch counter.
func (c *Collector) IncDispatchError() { c.dispatchErrors.Inc() }

// ObserveDispatchDuration records an operation duration in seconds.
func (c *Collector) ObserveDispatchDuration(seconds float64) { c.dispatchDuration.Observe(seconds) }

// IncHandleEvicted increments the evicted handles counter for the given reason.
func (c *Collector) IncHandleEvicted(reason types.EvictReason) {
	c.evicted.WithLabelValues(string(reason)).Inc()
}

// IncCloseTimeout increments the counter of sessions detached after a close timeout.
func (c *Collector) IncCloseTimeout() { c.closeTimeouts.Inc() }

// SetLiveHandles sets the live handles gauge.
func (c *Collector) SetLiveHandles(n int) { c.liveHandles.Set(float64(n)) }

// SetLiveSessions sets the live sessions gauge.
func (c *Collector) SetLiveSessions(n int) { c.liveSessions.Set(float64(n)) }

// IncDrainModeEntered increments the counter when a host enters drain mode.
func (c *Collector) IncDrainModeEntered() { c.drainEntered.Inc() }

// IncDrainModeExited increments the counter when a host exits drain mode.
func (c *Collector) IncDrainModeExited() { c.drainExited.Inc() }

// SetDrainingHosts sets the gauge of hosts currently draining.
func (c *Collector) SetDrainingHosts(n int) { c.drainingHosts.Set(float64(n)) }
