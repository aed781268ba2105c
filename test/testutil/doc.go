// Package testutil provides test utilities and mock implementations for tether testing.
//
// # Mock Implementations
//
//   - [MockEngine]: Produces [MockSession] values through a tether.SessionFactory
//     and counts Open, Close and Dispatch calls
//   - [ManualClock]: A clock for tether.WithClock that only moves when told to
//   - [TestMetricsCollector]: Records every types.MetricsCollector call
//
// # Usage
//
//	engine := testutil.NewMockEngine()
//	clock := testutil.NewManualClock(time.Unix(0, 0))
//
//	registry, _ := tether.NewRegistry(engine.Factory(),
//	    tether.WithPooling(true),
//	    tether.WithClock(clock.Now),
//	)
//
//	engine.SetOpenError(fmt.Errorf("dial: %w", types.ErrOpenAuth))
//
// # Integration Test Helpers
//
//   - StartEmbeddedNATS: Starts an embedded NATS server with JetStream
//   - StartCassandra: Starts a seeded Cassandra test container (requires Docker)
//   - RunCassandra: Same, for TestMain; the caller terminates the container
package testutil
