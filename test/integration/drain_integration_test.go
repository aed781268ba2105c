package integration_test

import (
	"context"
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

// newWatchedRegistry builds a mock-engine registry that follows watcher.
func newWatchedRegistry(t *testing.T, watcher tether.DrainWatcher, opts ...tether.Option) (*tether.Registry, *testutil.MockEngine) {
	t.Helper()

	engine := testutil.NewMockEngine()
	opts = append([]tether.Option{
		tether.WithSweepInterval(0),
		tether.WithDrainWatcher(watcher),
	}, opts...)

	r, err := tether.NewRegistry(engine.Factory(), opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})

	return r, engine
}

func TestNATSDrainAcrossRegistries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	js := testutil.StartEmbeddedNATS(t)
	kv := testutil.CreateKV(t, js, "drain-across-registries")

	watcherA, err := topology.NewNATS(kv)
	require.NoError(t, err)
	defer watcherA.Close()
	watcherB, err := topology.NewNATS(kv)
	require.NoError(t, err)
	defer watcherB.Close()
	operator, err := topology.NewNATS(kv)
	require.NoError(t, err)
	defer operator.Close()

	collector := testutil.NewTestMetricsCollector()
	regA, _ := newWatchedRegistry(t, watcherA, tether.WithMetrics(collector))
	regB, _ := newWatchedRegistry(t, watcherB)

	const target = "cql://10.1.0.1:9042,10.1.0.2:9042"
	idle, err := regA.Acquire(t.Context(), target, origin.Options{}, 0)
	require.NoError(t, err)

	require.NoError(t, operator.SetDrain(t.Context(), "10.1.0.1", true, "rack replacement"))
	require.NoError(t, operator.SetDrain(t.Context(), "10.1.0.2:9042", true, "rack replacement"))

	require.Eventually(t, func() bool {
		return regA.IsDraining("10.1.0.1") && regA.IsDraining("10.1.0.2:9042") &&
			regB.IsDraining("10.1.0.1") && regB.IsDraining("10.1.0.2:9042")
	}, 5*time.Second, 10*time.Millisecond)

	for _, r := range []*tether.Registry{regA, regB} {
		_, err := r.Acquire(t.Context(), target, origin.Options{}, 0)
		assert.ErrorIs(t, err, types.ErrOriginDraining)
	}

	// Origins with one address left in rotation still connect
	h, err := regB.Acquire(t.Context(), "cql://10.1.0.1:9042,10.1.0.3:9042", origin.Options{}, 0)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	assert.Equal(t, 1, regA.Sweep(time.Now()))
	assert.Equal(t, tether.StateClosed, idle.State())
	assert.Equal(t, int64(1), collector.GetEvicted(types.EvictDrained))

	require.NoError(t, operator.SetDrain(t.Context(), "10.1.0.2:9042", false, ""))
	require.Eventually(t, func() bool {
		return !regA.IsDraining("10.1.0.2:9042") && !regB.IsDraining("10.1.0.2:9042")
	}, 5*time.Second, 10*time.Millisecond)

	for _, r := range []*tether.Registry{regA, regB} {
		_, err := r.Acquire(t.Context(), target, origin.Options{}, 0)
		require.NoError(t, err)
	}

	entered, exited, draining := collector.GetDrain()
	assert.Equal(t, int64(2), entered)
	assert.Equal(t, int64(1), exited)
	assert.Equal(t, 1, draining)
}

func TestNATSDrainAppliesToNewRegistry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	js := testutil.StartEmbeddedNATS(t)
	kv := testutil.CreateKV(t, js, "drain-new-registry")

	operator, err := topology.NewNATS(kv)
	require.NoError(t, err)
	defer operator.Close()
	require.NoError(t, operator.SetDrain(t.Context(), "db1.example.com", true, "decommission"))

	// A registry started after the drain picks up the stored list
	watcher, err := topology.NewNATS(kv)
	require.NoError(t, err)
	defer watcher.Close()
	r, engine := newWatchedRegistry(t, watcher)

	require.Eventually(t, func() bool { return r.IsDraining("db1.example.com") },
		5*time.Second, 10*time.Millisecond)

	_, err = r.Acquire(t.Context(), "cql://db1.example.com", origin.Options{}, 0)
	assert.ErrorIs(t, err, types.ErrOriginDraining)
	assert.Zero(t, engine.Opens())
}

func TestNATSDrainNeverEvictsInFlight(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	js := testutil.StartEmbeddedNATS(t)
	kv := testutil.CreateKV(t, js, "drain-in-flight")

	watcher, err := topology.NewNATS(kv)
	require.NoError(t, err)
	defer watcher.Close()
	operator, err := topology.NewNATS(kv)
	require.NoError(t, err)
	defer operator.Close()

	r, engine := newWatchedRegistry(t, watcher)

	gate := make(chan struct{})
	engine.SetDispatch(func(ctx context.Context, _ tether.Operation) (tether.Result, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return tether.Result{}, ctx.Err()
		}

		return tether.Result{}, nil
	})

	h, err := r.Acquire(t.Context(), "cql://10.2.0.1", origin.Options{}, 0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.Dispatch(t.Context(), tether.Ping())
		done <- err
	}()
	require.Eventually(t, func() bool { return h.InFlight() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, operator.SetDrain(t.Context(), "10.2.0.1", true, "maintenance"))
	require.Eventually(t, func() bool { return r.IsDraining("10.2.0.1") }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, r.Sweep(time.Now()))
	assert.Equal(t, tether.StateOpen, h.State())

	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, 1, r.Sweep(time.Now()))
	assert.Equal(t, tether.StateClosed, h.State())
}
