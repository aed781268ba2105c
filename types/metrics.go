package types

// Logger is the structured logger used throughout tether.
//
// Messages are followed by alternating key/value pairs. The method set is
// compatible with zap.SugaredLogger's *w methods renamed, and with the
// zerolog adapter in contrib/logging/zl.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Fatal(msg string, keysAndValues ...any)
}

// EvictReason explains why a handle left the registry.
type EvictReason string

const (
	// EvictReleased means the caller released the handle.
	EvictReleased EvictReason = "released"
	// EvictExpired means the sweep found the handle idle past its expiry.
	EvictExpired EvictReason = "expired"
	// EvictFailed means the sweep collected a handle whose open failed.
	EvictFailed EvictReason = "failed"
	// EvictDrained means every address of the handle's origin is draining.
	EvictDrained EvictReason = "drained"
	// EvictShutdown means the registry was shut down.
	EvictShutdown EvictReason = "shutdown"
)

// EvictReasons lists every EvictReason, for pre-creating metric series.
func EvictReasons() []EvictReason {
	return []EvictReason{EvictReleased, EvictExpired, EvictFailed, EvictDrained, EvictShutdown}
}

// MetricsCollector defines methods for collecting operational metrics.
//
// Implementations should be thread-safe as methods may be called concurrently.
//
// Example usage with VictoriaMetrics (via contrib/metrics/vm):
//
//	import vmmetrics "github.com/arloliu/tether/contrib/metrics/vm"
//
//	collector := vmmetrics.New(vmmetrics.WithPrefix("myapp"))
//	registry, _ := tether.NewRegistry(factory,
//	    tether.WithMetrics(collector),
//	)
//
//	// Expose metrics via HTTP
//	http.HandleFunc("/metrics", collector.Handler)
type MetricsCollector interface {
	// ----------------------
	// Acquire
	// ----------------------

	// IncAcquireTotal increments the total acquire calls counter.
	IncAcquireTotal()

	// IncAcquireError increments the acquire failures counter for the given code.
	IncAcquireError(code ErrorCode)

	// IncPoolHit increments the counter of acquires that joined an existing pooled session.
	IncPoolHit()

	// ----------------------
	// Session Open
	// ----------------------

	// IncOpenTotal increments the number of session open attempts started.
	IncOpenTotal()

	// IncOpenError increments the failed open attempts counter for the given code.
	IncOpenError(code ErrorCode)

	// ObserveOpenDuration records an open attempt duration in seconds.
	ObserveOpenDuration(seconds float64)

	// ----------------------
	// Dispatch
	// ----------------------

	// IncDispatchTotal increments the total dispatched operations counter.
	IncDispatchTotal()

	// IncDispatchError increments the failed dispatch counter.
	IncDispatchError()

	// ObserveDispatchDuration records an operation duration in seconds.
	ObserveDispatchDuration(seconds float64)

	// ----------------------
	// Lifecycle
	// ----------------------

	// IncHandleEvicted increments the counter of handles removed from the registry.
	IncHandleEvicted(reason EvictReason)

	// IncCloseTimeout increments the counter of sessions detached after a close timeout.
	IncCloseTimeout()

	// SetLiveHandles sets the gauge of handles in the registry.
	SetLiveHandles(n int)

	// SetLiveSessions sets the gauge of sessions held by at least one handle.
	SetLiveSessions(n int)

	// ----------------------
	// Drain
	// ----------------------

	// IncDrainModeEntered increments the counter when a host enters drain mode.
	IncDrainModeEntered()

	// IncDrainModeExited increments the counter when a host exits drain mode.
	IncDrainModeExited()

	// SetDrainingHosts sets the gauge of hosts currently draining.
	SetDrainingHosts(n int)
}
