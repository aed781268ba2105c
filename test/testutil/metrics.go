package testutil

import (
	"sync"

	"github.com/arloliu/tether/types"
)

// TestMetricsCollector is a test implementation of types.MetricsCollector
// that tracks method calls for assertion in tests.
type TestMetricsCollector struct {
	mu sync.RWMutex

	// Acquire
	AcquireTotal  int64
	AcquireErrors map[types.ErrorCode]int64
	PoolHits      int64

	// Session open
	OpenTotal    int64
	OpenErrors   map[types.ErrorCode]int64
	OpenDuration []float64

	// Dispatch
	DispatchTotal    int64
	DispatchErrors   int64
	DispatchDuration []float64

	// Lifecycle
	Evicted       map[types.EvictReason]int64
	CloseTimeouts int64
	LiveHandles   int
	LiveSessions  int

	// Drain mode
	DrainModeEntered int64
	DrainModeExited  int64
	DrainingHosts    int
}

// Compile-time assertion that TestMetricsCollector implements types.MetricsCollector.
var _ types.MetricsCollector = (*TestMetricsCollector)(nil)

// NewTestMetricsCollector creates a new test metrics collector.
func NewTestMetricsCollector() *TestMetricsCollector {
	return &TestMetricsCollector{
		AcquireErrors: make(map[types.ErrorCode]int64),
		OpenErrors:    make(map[types.ErrorCode]int64),
		Evicted:       make(map[types.EvictReason]int64),
	}
}

// ----------------------
// Acquire
// ----------------------

func (m *TestMetricsCollector) IncAcquireTotal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AcquireTotal++
}

func (m *TestMetricsCollector) IncAcquireError(code types.ErrorCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AcquireErrors[code]++
}

func (m *TestMetricsCollector) IncPoolHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PoolHits++
}

// ----------------------
// Session Open
// ----------------------

func (m *TestMetricsCollector) IncOpenTotal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenTotal++
}

func (m *TestMetricsCollector) IncOpenError(code types.ErrorCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenErrors[code]++
}

func (m *TestMetricsCollector) ObserveOpenDuration(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenDuration = append(m.OpenDuration, seconds)
}

// ----------------------
// Dispatch
// ----------------------

func (m *TestMetricsCollector) IncDispatchTotal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DispatchTotal++
}

func (m *TestMetricsCollector) IncDispatchError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DispatchErrors++
}

func (m *TestMetricsCollector) ObserveDispatchDuration(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DispatchDuration = append(m.DispatchDuration, seconds)
}

// ----------------------
// Lifecycle
// ----------------------

func (m *TestMetricsCollector) IncHandleEvicted(reason types.EvictReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Evicted[reason]++
}

func (m *TestMetricsCollector) IncCloseTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseTimeouts++
}

func (m *TestMetricsCollector) SetLiveHandles(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LiveHandles = n
}

func (m *TestMetricsCollector) SetLiveSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LiveSessions = n
}

// ----------------------
// Drain
// ----------------------

func (m *TestMetricsCollector) IncDrainModeEntered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DrainModeEntered++
}

func (m *TestMetricsCollector) IncDrainModeExited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DrainModeExited++
}

func (m *TestMetricsCollector) SetDrainingHosts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DrainingHosts = n
}

// ----------------------
// Test Helpers
// ----------------------

// GetAcquireErrors returns the acquire failure count for a code.
func (m *TestMetricsCollector) GetAcquireErrors(code types.ErrorCode) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.AcquireErrors[code]
}

// GetOpenErrors returns the open failure count for a code.
func (m *TestMetricsCollector) GetOpenErrors(code types.ErrorCode) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.OpenErrors[code]
}

// GetEvicted returns the eviction count for a reason.
func (m *TestMetricsCollector) GetEvicted(reason types.EvictReason) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Evicted[reason]
}

// GetPoolHits returns the number of acquires that joined a pooled session.
func (m *TestMetricsCollector) GetPoolHits() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PoolHits
}

// GetCloseTimeouts returns the number of detached session closes.
func (m *TestMetricsCollector) GetCloseTimeouts() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CloseTimeouts
}

// GetLive returns the last reported live handle and session gauges.
func (m *TestMetricsCollector) GetLive() (handles, sessions int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LiveHandles, m.LiveSessions
}

// GetDrain returns the drain transition counters and the draining hosts gauge.
func (m *TestMetricsCollector) GetDrain() (entered, exited int64, draining int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.DrainModeEntered, m.DrainModeExited, m.DrainingHosts
}

// Reset clears all collected metrics.
func (m *TestMetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AcquireTotal, m.PoolHits = 0, 0
	m.AcquireErrors = make(map[types.ErrorCode]int64)
	m.OpenTotal = 0
	m.OpenErrors = make(map[types.ErrorCode]int64)
	m.OpenDuration = nil
	m.DispatchTotal, m.DispatchErrors = 0, 0
	m.DispatchDuration = nil
	m.Evicted = make(map[types.EvictReason]int64)
	m.CloseTimeouts = 0
	m.LiveHandles, m.LiveSessions = 0, 0
	m.DrainModeEntered, m.DrainModeExited = 0, 0
	m.DrainingHosts = 0
}
