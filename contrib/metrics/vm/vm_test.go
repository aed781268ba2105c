package vm

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/tether/types"
)

func TestCollectorExposition(t *testing.T) {
	set := metrics.NewSet()
	c := New(WithPrefix("t1"), WithMetricsSet(set))
	require.Same(t, set, c.Set())

	c.IncAcquireTotal()
	c.IncAcquireTotal()
	c.IncAcquireError(types.CodeOpenAuth)
	c.IncPoolHit()
	c.IncOpenTotal()
	c.IncOpenError(types.CodeOpenTimeout)
	c.ObserveOpenDuration(0.25)
	c.IncDispatchTotal()
	c.IncDispatchError()
	c.ObserveDispatchDuration(0.01)
	c.IncHandleEvicted(types.EvictExpired)
	c.IncCloseTimeout()
	c.SetLiveHandles(3)
	c.SetLiveSessions(2)
	c.IncDrainModeEntered()
	c.SetDrainingHosts(1)

	var buf bytes.Buffer
	c.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, "t1_acquire_total 2")
	assert.Contains(t, out, `t1_acquire_errors_total{code="open_auth"} 1`)
	assert.Contains(t, out, `t1_acquire_errors_total{code="open_network"} 0`)
	assert.Contains(t, out, "t1_pool_hits_total 1")
	assert.Contains(t, out, `t1_open_errors_total{code="open_timeout"} 1`)
	assert.Contains(t, out, "t1_dispatch_errors_total 1")
	assert.Contains(t, out, `t1_handles_evicted_total{reason="expired"} 1`)
	assert.Contains(t, out, `t1_handles_evicted_total{reason="shutdown"} 0`)
	assert.Contains(t, out, "t1_close_timeouts_total 1")
	assert.Contains(t, out, "t1_live_handles 3")
	assert.Contains(t, out, "t1_live_sessions 2")
	assert.Contains(t, out, "t1_draining_hosts 1")
	assert.Contains(t, out, "t1_drain_mode_entered_total 1")
	assert.Contains(t, out, "t1_open_duration_seconds_count 1")
}

func TestCollectorIgnoresUnknownLabels(t *testing.T) {
	c := New(WithPrefix("t2"), WithMetricsSet(metrics.NewSet()))

	assert.NotPanics(t, func() {
		c.IncAcquireError(types.ErrorCode(99))
		c.IncOpenError(types.ErrorCode(-1))
		c.IncHandleEvicted(types.EvictReason("bogus"))
	})
}

func TestCollectorHandler(t *testing.T) {
	c := New(WithPrefix("t3"), WithMetricsSet(metrics.NewSet()))
	c.IncDispatchTotal()

	rec := httptest.NewRecorder()
	c.Handler(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Contains(t, rec.Body.String(), "t3_dispatch_total 1")
}
