// Package metrics provides internal metrics utilities for tether.
package metrics

import "github.com/arloliu/tether/types"

// NopMetrics is a no-op metrics collector that discards all metrics.
//
// This is used as the default metrics collector when no collector is configured,
// avoiding nil checks throughout the codebase.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements types.MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNopMetrics creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A collector that discards all metrics
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// ----------------------
// Acquire
// ----------------------

// IncAcquireTotal discards the metric.
func (m *NopMetrics) IncAcquireTotal() {}

// IncAcquireError discards the metric.
func (m *NopMetrics) IncAcquireError(_ types.ErrorCode) {}

// IncPoolHit discards the metric.
func (m *NopMetrics) IncPoolHit() {}

// ----------------------
// Session Open
// ----------------------

// IncOpenTotal discards the metric.
func (m *NopMetrics) IncOpenTotal() {}

// IncOpenError discards the metric.
func (m *NopMetrics) IncOpenError(_ types.ErrorCode) {}

// ObserveOpenDuration discards the metric.
func (m *NopMetrics) ObserveOpenDuration(_ float64) {}

// ----------------------
// Dispatch
// ----------------------

// IncDispatchTotal discards the metric.
func (m *NopMetrics) IncDispatchTotal() {}

// IncDispatchError discards the metric.
func (m *NopMetrics) IncDispatchError() {}

// ObserveDispatchDuration discards the metric.
func (m *NopMetrics) ObserveDispatchDuration(_ float64) {}

// ----------------------
// Lifecycle
// ----------------------

// IncHandleEvicted discards the metric.
func (m *NopMetrics) IncHandleEvicted(_ types.EvictReason) {}

// IncCloseTimeout discards the metric.
func (m *NopMetrics) IncCloseTimeout() {}

// SetLiveHandles discards the metric.
func (m *NopMetrics) SetLiveHandles(_ int) {}

// SetLiveSessions discards the metric.
func (m *NopMetrics) SetLiveSessions(_ int) {}

// ----------------------
// Drain
// ----------------------

// IncDrainModeEntered discards the metric.
func (m *NopMetrics) IncDrainModeEntered() {}

// IncDrainModeExited discards the metric.
func (m *NopMetrics) IncDrainModeExited() {}

// SetDrainingHosts discards the metric.
func (m *NopMetrics) SetDrainingHosts(_ int) {}
