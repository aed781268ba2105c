package tether_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/tether"
	"github.com/arloliu/tether/origin"
	"github.com/arloliu/tether/test/testutil"
	"github.com/arloliu/tether/topology"
	"github.com/arloliu/tether/types"
)

const connStr = "couchbase://10.0.0.1,10.0.0.2"

var creds = origin.Options{Username: "Administrator", Password: "password"}

// newRegistry creates a registry without a background sweeper and shuts it down on cleanup.
func newRegistry(t *testing.T, engine *testutil.MockEngine, opts ...tether.Option) *tether.Registry {
	t.Helper()

	opts = append([]tether.Option{tether.WithSweepInterval(0)}, opts...)
	r, err := tether.NewRegistry(engine.Factory(), opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})

	return r
}

func TestNewRegistryNilFactory(t *testing.T) {
	_, err := tether.NewRegistry(nil)
	require.ErrorIs(t, err, types.ErrNilSessionFactory)
}

func TestDefaultConfig(t *testing.T) {
	engine := testutil.NewMockEngine()
	r := newRegistry(t, engine)

	cfg := r.Config()
	assert.False(t, cfg.Pooling)
	assert.Equal(t, tether.DefaultIdleTimeout, cfg.IdleTimeout)
	assert.Equal(t, tether.DefaultOpenTimeout, cfg.OpenTimeout)
	assert.Equal(t, tether.DefaultCloseTimeout, cfg.CloseTimeout)
	assert.Zero(t, cfg.SweepInterval)
	assert.Zero(t, cfg.MaxHandles)
	assert.NotNil(t, cfg.Metrics)
	assert.NotNil(t, cfg.Logger)
}

func TestAcquireOpensSession(t *testing.T) {
	engine := testutil.NewMockEngine()
	r := newRegistry(t, engine)

	h, err := r.Acquire(t.Context(), connStr, creds, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, tether.StateOpen, h.State())
	assert.Equal(t, tether.ResourceID(1), h.ResourceID())
	assert.False(t, h.Shared())
	assert.Equal(t, []string{"10.0.0.1:11210", "10.0.0.2:11210"}, h.Origin().Addresses())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, r.Sessions())
	assert.Equal(t, 1, engine.Opens())

	found, err := r.Lookup(h.ResourceID())
	require.NoError(t, err)
	assert.Same(t, h, found)
}

func TestAcquireMalformedOrigin(t *testing.T) {
	engine := testutil.NewMockEngine()
	r := newRegistry(t, engine)

	h, err := r.Acquire(t.Context(), "http://10.0.0.1", creds, 0)
	require.Error(t, err)
	assert.Nil(t, h)

	assert.ErrorIs(t, err, types.ErrMalformedOrigin)
	var malformed *types.MalformedOriginError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Reason, "unsupported scheme")

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, engine.Opens())
}

func TestResourceIDsAreNeverReused(t *testing.T) {
	engine := testutil.NewMockEngine()
	r := newRegistry(t, engine)

	h1, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)
	require.NoError(t, r.Release(h1.ResourceID()))

	h2, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)

	assert.Greater(t, h2.ResourceID(), h1.ResourceID())
	assert.Equal(t, tether.StateClosed, h1.State())

	_, err = r.Lookup(h1.ResourceID())
	assert.ErrorIs(t, err, types.ErrHandleNotFound)
}

func TestUnpooledHandlesOwnSessions(t *testing.T) {
	engine := testutil.NewMockEngine()
	r := newRegistry(t, engine)

	h1, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)
	h2, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)

	assert.NotEqual(t, h1.ResourceID(), h2.ResourceID())
	assert.Equal(t, h1.Fingerprint(), h2.Fingerprint())
	assert.Equal(t, 2, engine.Opens())
	assert.Equal(t, 2, r.Sessions())

	require.NoError(t, r.Release(h1.ResourceID()))
	assert.Equal(t, 1, engine.Closes())
}

func TestPooledAcquireAndRelease(t *testing.T) {
	engine := testutil.NewMockEngine()
	collector := testutil.NewTestMetricsCollector()
	r := newRegistry(t, engine, tether.WithPooling(true), tether.WithMetrics(collector))

	h1, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)
	h2, err := r.Acquire(t.Context(), "couchbase://10.0.0.1:11210,10.0.0.2", creds, 0)
	require.NoError(t, err)

	assert.NotEqual(t, h1.ResourceID(), h2.ResourceID())
	assert.True(t, h1.Shared())
	assert.Equal(t, 1, engine.Opens())
	assert.Equal(t, 1, r.Sessions())
	assert.Equal(t, int64(1), collector.GetPoolHits())

	require.NoError(t, r.Release(h1.ResourceID()))
	assert.Equal(t, 0, engine.Closes(), "session still referenced by the second handle")

	_, err = r.Dispatch(t.Context(), h2.ResourceID(), tether.Ping())
	require.NoError(t, err)

	require.NoError(t, r.Release(h2.ResourceID()))
	assert.Equal(t, 1, engine.Closes())
	assert.Equal(t, 0, r.Sessions())
	assert.Equal(t, 0, r.Len())

	handles, sessions := collector.GetLive()
	assert.Equal(t, 0, handles)
	assert.Equal(t, 0, sessions)
	assert.Equal(t, int64(2), collector.GetEvicted(types.EvictReleased))
}

func TestPooledDifferentCredentialsDoNotShare(t *testing.T) {
	engine := testutil.NewMockEngine()
	r := newRegistry(t, engine, tether.WithPooling(true))

	_, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)
	_, err = r.Acquire(t.Context(), connStr, origin.Options{Username: "app", Password: "password"}, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, engine.Opens())
	assert.Equal(t, 2, r.Sessions())
}

func TestPooledConcurrentAcquireOpensOnce(t *testing.T) {
	engine := testutil.NewMockEngine()
	gate := make(chan struct{})
	engine.SetOpenGate(gate)
	r := newRegistry(t, engine, tether.WithPooling(true))

	const n = 16
	var wg sync.WaitGroup
	handles := make([]*tether.Handle, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles[i], errs[i] = r.Acquire(context.Background(), connStr, creds, 0)
		}()
	}

	require.Eventually(t, func() bool { return r.Len() == n }, 2*time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	ids := make(map[tether.ResourceID]struct{}, n)
	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, tether.StateOpen, handles[i].State())
		ids[handles[i].ResourceID()] = struct{}{}
	}
	assert.Len(t, ids, n)
	assert.Equal(t, 1, engine.Opens())
	assert.Equal(t, 1, r.Sessions())
}

func TestPooledConcurrentAcquireSharesFailure(t *testing.T) {
	engine := testutil.NewMockEngine()
	gate := make(chan struct{})
	engine.SetOpenGate(gate)
	engine.SetOpenError(fmt.Errorf("sasl: %w", types.ErrOpenAuth))
	r := newRegistry(t, engine, tether.WithPooling(true))

	const n = 8
	var wg sync.WaitGroup
	handles := make([]*tether.Handle, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles[i], errs[i] = r.Acquire(context.Background(), connStr, creds, 0)
		}()
	}

	require.Eventually(t, func() bool { return r.Len() == n }, 2*time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	var attempt string
	for i := range n {
		var info *types.ErrorInfo
		require.ErrorAs(t, errs[i], &info)
		assert.Equal(t, types.CodeOpenAuth, info.Code)
		assert.ErrorIs(t, errs[i], types.ErrOpenAuth)
		assert.Equal(t, uint64(handles[i].ResourceID()), info.Resource)
		if attempt == "" {
			attempt = info.Attempt
		}
		assert.Equal(t, attempt, info.Attempt)

		require.NotNil(t, handles[i])
		assert.Equal(t, tether.StateFailed, handles[i].State())
	}
	assert.NotEmpty(t, attempt)
	assert.Equal(t, 1, engine.Opens())
}

func TestOpenFailureKeepsHandleAddressable(t *testing.T) {
	engine := testutil.NewMockEngine()
	engine.SetOpenError(errors.New("connection refused"))
	collector := testutil.NewTestMetricsCollector()
	clock := testutil.NewManualClock(time.Unix(1_700_000_000, 0))
	r := newRegistry(t, engine, tether.WithMetrics(collector), tether.WithClock(clock.Now))

	h, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.Error(t, err)
	require.NotNil(t, h)

	assert.Equal(t, types.CodeOpenNetwork, types.CodeOf(err))
	assert.Equal(t, tether.StateFailed, h.State())
	assert.Equal(t, err, error(h.LastError()))

	found, lookupErr := r.Lookup(h.ResourceID())
	require.NoError(t, lookupErr)
	assert.Same(t, h, found)

	// Failed is terminal and Open keeps reporting the recorded error
	assert.Equal(t, err, h.Open(t.Context()))
	assert.Equal(t, 1, engine.Opens())

	_, err = r.Dispatch(t.Context(), h.ResourceID(), tether.Ping())
	assert.ErrorIs(t, err, types.ErrNotConnected)

	assert.Equal(t, int64(1), collector.GetOpenErrors(types.CodeOpenNetwork))
	assert.Equal(t, int64(1), collector.GetAcquireErrors(types.CodeOpenNetwork))

	// Failed handles stay addressable until they expire
	assert.Equal(t, 0, r.Sweep(clock.Now()))
	_, err = r.Dispatch(t.Context(), h.ResourceID(), tether.Ping())
	assert.ErrorIs(t, err, types.ErrNotConnected)

	clock.Advance(tether.DefaultIdleTimeout + time.Second)
	assert.Equal(t, 1, r.Sweep(clock.Now()))
	assert.Equal(t, int64(1), collector.GetEvicted(types.EvictFailed))
	assert.Zero(t, collector.GetEvicted(types.EvictExpired))

	_, err = r.Lookup(h.ResourceID())
	assert.ErrorIs(t, err, types.ErrHandleNotFound)
}

func TestOpenErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		factoryErr error
		openErr    error
		code       types.ErrorCode
		sentinel   error
	}{
		{name: "auth", openErr: fmt.Errorf("bad password: %w", types.ErrOpenAuth), code: types.CodeOpenAuth, sentinel: types.ErrOpenAuth},
		{name: "engine timeout", openErr: fmt.Errorf("bootstrap: %w", types.ErrOpenTimeout), code: types.CodeOpenTimeout, sentinel: types.ErrOpenTimeout},
		{name: "deadline", openErr: context.DeadlineExceeded, code: types.CodeOpenTimeout, sentinel: context.DeadlineExceeded},
		{name: "network", openErr: errors.New("no route to host"), code: types.CodeOpenNetwork, sentinel: types.ErrOpenNetwork},
		{name: "factory", factoryErr: errors.New("driver missing"), code: types.CodeOpenNetwork, sentinel: types.ErrOpenNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := testutil.NewMockEngine()
			engine.SetFactoryError(tt.factoryErr)
			engine.SetOpenError(tt.openErr)
			r := newRegistry(t, engine)

			h, err := r.Acquire(t.Context(), connStr, creds, 0)
			require.Error(t, err)
			require.NotNil(t, h)
			assert.Equal(t, tt.code, types.CodeOf(err))
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tether.StateFailed, h.State())
		})
	}
}

func TestOpenTimeoutIsolatesFailure(t *testing.T) {
	engine := testutil.NewMockEngine()
	gate := make(chan struct{})
	engine.SetOpenGate(gate)
	collector := testutil.NewTestMetricsCollector()
	r := newRegistry(t, engine,
		tether.WithPooling(true),
		tether.WithOpenTimeout(50*time.Millisecond),
		tether.WithMetrics(collector),
	)

	failed, err := r.Acquire(t.Context(), connStr, creds, 10*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrOpenTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, failed)
	assert.Equal(t, tether.StateFailed, failed.State())

	// The registry stays usable, for the same origin and for others
	engine.SetOpenGate(nil)

	other, err := r.Acquire(t.Context(), "couchbase://10.0.0.9", creds, 0)
	require.NoError(t, err)
	assert.Equal(t, tether.StateOpen, other.State())

	retry, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)
	assert.Equal(t, tether.StateOpen, retry.State())
	assert.Equal(t, 3, engine.Opens())

	_, err = retry.Dispatch(t.Context(), tether.Ping())
	require.NoError(t, err)

	// The timed-out session is closed once the engine finally reports it open
	close(gate)
	require.Eventually(t, func() bool { return engine.Closes() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, engine.Sessions()[0].Closes())

	// The failed handle is collected once expired, without another close
	assert.Equal(t, 1, r.Sweep(time.Now().Add(time.Second)))
	assert.Equal(t, 1, engine.Closes())
	assert.Equal(t, int64(1), collector.GetEvicted(types.EvictFailed))
	assert.Equal(t, int64(1), collector.GetOpenErrors(types.CodeOpenTimeout))

	_, err = r.Lookup(failed.ResourceID())
	assert.ErrorIs(t, err, types.ErrHandleNotFound)
}

func TestAcquireCallerContextEndsFirst(t *testing.T) {
	engine := testutil.NewMockEngine()
	gate := make(chan struct{})
	engine.SetOpenGate(gate)
	r := newRegistry(t, engine)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	h, err := r.Acquire(ctx, connStr, creds, 0)
	require.Error(t, err)
	assert.Equal(t, types.CodeOpenTimeout, types.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, h)
	assert.Equal(t, tether.StateOpening, h.State())

	close(gate)
	require.NoError(t, h.Open(t.Context()))
	assert.Equal(t, tether.StateOpen, h.State())
	assert.Equal(t, 1, engine.Opens())
}

func TestAcquireDispatchSweep(t *testing.T) {
	engine := testutil.NewMockEngine()
	clock := testutil.NewManualClock(time.Unix(1_700_000_000, 0))
	r := newRegistry(t, engine, tether.WithClock(clock.Now))

	h, err := r.Acquire(t.Context(), connStr, creds, 10*time.Second)
	require.NoError(t, err)
	id := h.ResourceID()

	res, err := r.Dispatch(t.Context(), id, tether.Query("SELECT 1"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "query", res.Rows[0]["kind"])

	clock.Advance(5 * time.Second)
	assert.Equal(t, 0, r.Sweep(clock.Now()))
	assert.Equal(t, 1, r.Len())

	clock.Advance(6 * time.Second)
	assert.True(t, h.IsExpired(clock.Now()))
	assert.Equal(t, 1, r.Sweep(clock.Now()))

	assert.Equal(t, 1, engine.Closes())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, tether.StateClosed, h.State())

	_, err = r.Dispatch(t.Context(), id, tether.Ping())
	require.Error(t, err)
	var info *types.ErrorInfo
	require.ErrorAs(t, err, &info)
	assert.Equal(t, types.CodeHandleNotFound, info.Code)
	assert.Equal(t, uint64(id), info.Resource)

	assert.Equal(t, 0, r.Sweep(clock.Now().Add(time.Hour)))
	assert.Equal(t, 1, engine.Closes())
}

func TestSweepNeverEvictsInFlight(t *testing.T) {
	engine := testutil.NewMockEngine()
	clock := testutil.NewManualClock(time.Unix(1_700_000_000, 0))
	release := make(chan struct{})
	engine.SetDispatch(func(_ context.Context, _ tether.Operation) (tether.Result, error) {
		<-release
		return tether.Result{Applied: true}, nil
	})
	r := newRegistry(t, engine, tether.WithClock(clock.Now))

	h, err := r.Acquire(t.Context(), connStr, creds, time.Second)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.Dispatch(context.Background(), tether.Exec("UPDATE t SET v = 1"))
		done <- err
	}()
	require.Eventually(t, func() bool { return h.InFlight() == 1 }, time.Second, time.Millisecond)

	clock.Advance(time.Hour)
	assert.Equal(t, 0, r.Sweep(clock.Now()))
	assert.Equal(t, 1, r.Len())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 0, h.InFlight())
	assert.Equal(t, tether.StateOpen, h.State())

	assert.Equal(t, 1, r.Sweep(clock.Now().Add(time.Hour)))
	assert.Equal(t, 1, engine.Closes())
}

func TestSweepSkipsHandleStillOpening(t *testing.T) {
	engine := testutil.NewMockEngine()
	gate := make(chan struct{})
	engine.SetOpenGate(gate)
	clock := testutil.NewManualClock(time.Unix(1_700_000_000, 0))
	r := newRegistry(t, engine, tether.WithClock(clock.Now))

	type acquired struct {
		h   *tether.Handle
		err error
	}
	done := make(chan acquired, 1)
	go func() {
		h, err := r.Acquire(context.Background(), connStr, creds, time.Second)
		done <- acquired{h: h, err: err}
	}()
	require.Eventually(t, func() bool { return engine.Opens() == 1 }, time.Second, time.Millisecond)

	// The open outlives the idle timeout while the caller is still waiting
	clock.Advance(time.Hour)
	assert.Equal(t, 0, r.Sweep(clock.Now()))
	assert.Equal(t, 1, r.Len())

	close(gate)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, tether.StateOpen, res.h.State())

	_, err := res.h.Dispatch(t.Context(), tether.Ping())
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, r.Sweep(clock.Now()))
	assert.Equal(t, tether.StateClosed, res.h.State())
}

func TestSweepEvictsAbandonedOpeningOnceExpired(t *testing.T) {
	engine := testutil.NewMockEngine()
	gate := make(chan struct{})
	engine.SetOpenGate(gate)
	clock := testutil.NewManualClock(time.Unix(1_700_000_000, 0))
	r := newRegistry(t, engine, tether.WithClock(clock.Now))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	h, err := r.Acquire(ctx, connStr, creds, time.Second)
	require.Error(t, err)
	require.NotNil(t, h)
	assert.Equal(t, tether.StateOpening, h.State())

	assert.Equal(t, 0, r.Sweep(clock.Now()))

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, r.Sweep(clock.Now()))
	assert.Equal(t, tether.StateClosed, h.State())

	// The session is closed once the engine finishes opening it
	close(gate)
	require.Eventually(t, func() bool { return engine.Closes() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestLateOpenAbandonedAfterCloseTimeout(t *testing.T) {
	engine := testutil.NewMockEngine()
	gate := make(chan struct{})
	engine.SetOpenGate(gate)
	collector := testutil.NewTestMetricsCollector()
	r := newRegistry(t, engine,
		tether.WithOpenTimeout(20*time.Millisecond),
		tether.WithCloseTimeout(30*time.Millisecond),
		tether.WithMetrics(collector),
	)

	h, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.ErrorIs(t, err, types.ErrOpenTimeout)
	assert.Equal(t, tether.StateFailed, h.State())

	// The engine never completes the open; the slot stops waiting for it
	require.Eventually(t, func() bool { return collector.GetCloseTimeouts() == 1 },
		2*time.Second, 5*time.Millisecond)

	close(gate)
	assert.Never(t, func() bool { return engine.Closes() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestReleaseWaitsForInFlight(t *testing.T) {
	engine := testutil.NewMockEngine()
	release := make(chan struct{})
	engine.SetDispatch(func(_ context.Context, _ tether.Operation) (tether.Result, error) {
		<-release
		return tether.Result{Applied: true}, nil
	})
	r := newRegistry(t, engine)

	h, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)

	dispatched := make(chan error, 1)
	go func() {
		_, err := h.Dispatch(context.Background(), tether.Ping())
		dispatched <- err
	}()
	require.Eventually(t, func() bool { return h.InFlight() == 1 }, time.Second, time.Millisecond)

	released := make(chan error, 1)
	go func() { released <- r.Release(h.ResourceID()) }()

	require.Eventually(t, func() bool { return h.State() == tether.StateClosing }, time.Second, time.Millisecond)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, engine.Closes())

	close(release)
	require.NoError(t, <-dispatched)
	require.NoError(t, <-released)
	assert.Equal(t, 1, engine.Closes())
	assert.Equal(t, tether.StateClosed, h.State())
}

func TestReleaseCloseTimeout(t *testing.T) {
	engine := testutil.NewMockEngine()
	engine.SetCloseGate(make(chan struct{}))
	collector := testutil.NewTestMetricsCollector()
	r := newRegistry(t, engine,
		tether.WithCloseTimeout(30*time.Millisecond),
		tether.WithMetrics(collector),
	)

	h, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)

	err = r.Release(h.ResourceID())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCloseTimeout)

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Sessions())
	assert.Equal(t, tether.StateClosed, h.State())
	require.NotNil(t, h.LastError())
	assert.Equal(t, types.CodeCloseTimeout, h.LastError().Code)
	assert.Equal(t, int64(1), collector.GetCloseTimeouts())

	err = r.Release(h.ResourceID())
	assert.ErrorIs(t, err, types.ErrHandleNotFound)
}

func TestReleaseUnknownHandle(t *testing.T) {
	r := newRegistry(t, testutil.NewMockEngine())

	err := r.Release(42)
	require.Error(t, err)
	assert.Equal(t, types.CodeHandleNotFound, types.CodeOf(err))
}

func TestHandleCloseReleases(t *testing.T) {
	engine := testutil.NewMockEngine()
	r := newRegistry(t, engine)

	h, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)

	require.NoError(t, h.Close())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, engine.Closes())
	assert.ErrorIs(t, h.Close(), types.ErrHandleNotFound)
	assert.ErrorIs(t, h.Open(t.Context()), types.ErrNotConnected)
}

func TestMaxHandles(t *testing.T) {
	engine := testutil.NewMockEngine()
	collector := testutil.NewTestMetricsCollector()
	r := newRegistry(t, engine, tether.WithMaxHandles(2), tether.WithMetrics(collector))

	h1, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)
	_, err = r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)

	h3, err := r.Acquire(t.Context(), connStr, creds, 0)
	assert.Nil(t, h3)
	assert.ErrorIs(t, err, types.ErrHandleExhausted)
	assert.Equal(t, 2, engine.Opens())
	assert.Equal(t, int64(1), collector.GetAcquireErrors(types.CodeHandleExhausted))

	require.NoError(t, r.Release(h1.ResourceID()))
	_, err = r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)
}

func TestShutdown(t *testing.T) {
	engine := testutil.NewMockEngine()
	collector := testutil.NewTestMetricsCollector()
	r := newRegistry(t, engine, tether.WithMetrics(collector))

	handles := make([]*tether.Handle, 3)
	for i := range handles {
		h, err := r.Acquire(t.Context(), fmt.Sprintf("couchbase://10.0.0.%d", i+1), creds, 0)
		require.NoError(t, err)
		handles[i] = h
	}

	require.NoError(t, r.Shutdown(t.Context()))
	assert.Equal(t, 3, engine.Closes())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.Sessions())
	assert.Equal(t, int64(3), collector.GetEvicted(types.EvictShutdown))
	for _, h := range handles {
		assert.Equal(t, tether.StateClosed, h.State())
	}

	_, err := r.Acquire(t.Context(), connStr, creds, 0)
	assert.ErrorIs(t, err, types.ErrRegistryClosed)

	// Idempotent
	require.NoError(t, r.Shutdown(t.Context()))
	assert.Equal(t, 3, engine.Closes())
}

func TestShutdownWhileOpening(t *testing.T) {
	engine := testutil.NewMockEngine()
	gate := make(chan struct{})
	engine.SetOpenGate(gate)
	r := newRegistry(t, engine)

	acquired := make(chan error, 1)
	go func() {
		_, err := r.Acquire(context.Background(), connStr, creds, 0)
		acquired <- err
	}()
	require.Eventually(t, func() bool { return engine.Opens() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, r.Shutdown(t.Context()))
	assert.Equal(t, 0, r.Len())

	close(gate)
	err := <-acquired
	assert.ErrorIs(t, err, types.ErrNotConnected)

	require.Eventually(t, func() bool { return engine.Closes() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestShutdownRespectsContext(t *testing.T) {
	engine := testutil.NewMockEngine()
	closeGate := make(chan struct{})
	engine.SetCloseGate(closeGate)
	r := newRegistry(t, engine, tether.WithCloseTimeout(5*time.Second))

	_, err := r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)

	close(closeGate)
	require.NoError(t, r.Shutdown(t.Context()))
	assert.Equal(t, 1, engine.Closes())
}

func TestBackgroundSweeper(t *testing.T) {
	engine := testutil.NewMockEngine()
	clock := testutil.NewManualClock(time.Unix(1_700_000_000, 0))
	collector := testutil.NewTestMetricsCollector()
	r := newRegistry(t, engine,
		tether.WithClock(clock.Now),
		tether.WithSweepInterval(5*time.Millisecond),
		tether.WithMetrics(collector),
	)

	_, err := r.Acquire(t.Context(), connStr, creds, time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, engine.Closes())
	assert.Equal(t, int64(1), collector.GetEvicted(types.EvictExpired))
}

func TestSweepOnAccess(t *testing.T) {
	engine := testutil.NewMockEngine()
	clock := testutil.NewManualClock(time.Unix(1_700_000_000, 0))
	r := newRegistry(t, engine, tether.WithClock(clock.Now), tether.WithSweepOnAccess(true))

	stale, err := r.Acquire(t.Context(), connStr, creds, time.Second)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	fresh, err := r.Acquire(t.Context(), connStr, creds, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, tether.StateClosed, stale.State())

	_, err = r.Lookup(stale.ResourceID())
	assert.ErrorIs(t, err, types.ErrHandleNotFound)
	_, err = r.Lookup(fresh.ResourceID())
	require.NoError(t, err)
}

func TestDrainRefusesFullyDrainedOrigins(t *testing.T) {
	engine := testutil.NewMockEngine()
	local := topology.NewLocal()
	defer local.Close()
	collector := testutil.NewTestMetricsCollector()
	r := newRegistry(t, engine, tether.WithDrainWatcher(local), tether.WithMetrics(collector))

	idle, err := r.Acquire(t.Context(), "couchbase://10.0.0.3", creds, 0)
	require.NoError(t, err)

	require.NoError(t, local.SetDrain(t.Context(), "10.0.0.1", true, "patching"))
	require.NoError(t, local.SetDrain(t.Context(), "10.0.0.3:11210", true, "patching"))
	require.Eventually(t, func() bool {
		return r.IsDraining("10.0.0.1") && r.IsDraining("10.0.0.3:11210")
	}, time.Second, time.Millisecond)

	_, err = r.Acquire(t.Context(), "couchbase://10.0.0.1", creds, 0)
	assert.ErrorIs(t, err, types.ErrOriginDraining)

	// Partially drained origins still connect
	_, err = r.Acquire(t.Context(), connStr, creds, 0)
	require.NoError(t, err)

	// Idle handles of fully drained origins are swept
	assert.Equal(t, 1, r.Sweep(time.Now()))
	assert.Equal(t, tether.StateClosed, idle.State())
	assert.Equal(t, int64(1), collector.GetEvicted(types.EvictDrained))

	require.NoError(t, local.SetDrain(t.Context(), "10.0.0.1", false, ""))
	require.Eventually(t, func() bool { return !r.IsDraining("10.0.0.1") }, time.Second, time.Millisecond)
	_, err = r.Acquire(t.Context(), "couchbase://10.0.0.1", creds, 0)
	require.NoError(t, err)

	entered, exited, draining := collector.GetDrain()
	assert.Equal(t, int64(2), entered)
	assert.Equal(t, int64(1), exited)
	assert.Equal(t, 1, draining)
}
