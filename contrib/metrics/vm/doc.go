// Package vm provides a VictoriaMetrics-based implementation of the MetricsCollector interface.
//
// This package uses github.com/VictoriaMetrics/metrics for lightweight,
// high-performance Prometheus-compatible metrics collection.
//
// # Basic Usage
//
// Create a collector with default prefix "tether":
//
//	collector := vm.New()
//	registry, _ := tether.NewRegistry(factory,
//	    tether.WithMetrics(collector),
//	)
//
// # Custom Prefix
//
// Use WithPrefix to customize the metric name prefix:
//
//	collector := vm.New(vm.WithPrefix("myapp"))
//
// This produces metrics like:
//   - myapp_acquire_total
//   - myapp_open_errors_total{code="open_auth"}
//
// # Exposing Metrics
//
// Use the Handler method to expose metrics via HTTP:
//
//	http.HandleFunc("/metrics", collector.Handler)
//	http.ListenAndServe(":8080", nil)
//
// # Metrics Provided
//
// Acquire:
//   - {prefix}_acquire_total - Counter of Acquire calls
//   - {prefix}_acquire_errors_total{code} - Counter of failed acquires
//   - {prefix}_pool_hits_total - Counter of acquires joining a pooled session
//
// Session open:
//   - {prefix}_open_total - Counter of open attempts
//   - {prefix}_open_errors_total{code} - Counter of failed open attempts
//   - {prefix}_open_duration_seconds - Histogram of open latencies
//
// Dispatch:
//   - {prefix}_dispatch_total - Counter of dispatched operations
//   - {prefix}_dispatch_errors_total - Counter of failed operations
//   - {prefix}_dispatch_duration_seconds - Histogram of operation latencies
//
// Lifecycle:
//   - {prefix}_handles_evicted_total{reason} - Counter of destroyed handles
//   - {prefix}_close_timeouts_total - Counter of sessions detached on close timeout
//   - {prefix}_live_handles - Gauge of handles in the registry
//   - {prefix}_live_sessions - Gauge of sessions held by handles
//
// Drain:
//   - {prefix}_draining_hosts - Gauge of hosts in drain mode
//   - {prefix}_drain_mode_entered_total - Counter of drain entries
//   - {prefix}_drain_mode_exited_total - Counter of drain exits
//
// # Performance Notes
//
// This implementation pre-creates all metrics at initialization time
// using the NewXXX pattern (instead of GetOrCreateXXX) for optimal
// performance in hot paths, as recommended by the VictoriaMetrics documentation.
package vm
