// Package tether maps cluster connection strings to long-lived, addressable
// session handles.
//
// A [Registry] hands out [Handle]s for connection strings. Each handle has a
// stable [ResourceID] that callers use to dispatch operations and to release
// the handle. Behind the handle sits a [Session], an asynchronous engine
// binding created by a [SessionFactory]; the registry bridges its callbacks
// to blocking calls with contexts and deadlines.
//
// # Key Features
//
//   - Origin fingerprinting: connection strings are normalized and hashed, so
//     equivalent inputs share one identity (see package origin)
//   - Optional pooling: handles with the same fingerprint share one Session,
//     which is opened once and closed with its last handle
//   - Idle expiry: every successful operation pushes the handle's expiry
//     forward; Sweep evicts expired handles without touching in-flight work
//   - Failure isolation: a failed or timed-out open affects only the handles
//     waiting on that attempt
//   - Drain awareness: a DrainWatcher (see package topology) removes nodes
//     under maintenance from rotation
//
// # Basic Usage
//
//	registry, err := tether.NewRegistry(cql.NewSessionFactory(),
//	    tether.WithPooling(true),
//	    tether.WithIdleTimeout(time.Minute),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer registry.Shutdown(context.Background())
//
//	h, err := registry.Acquire(ctx, "cql://10.0.0.1,10.0.0.2?keyspace=app", origin.Options{}, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := registry.Dispatch(ctx, h.ResourceID(), tether.Query("SELECT * FROM users"))
//
// # Handle Lifecycle
//
//	Uninitialized -> Opening -> Open -> Closing -> Closed
//	                        \-> Failed -> Closing -> Closed
//
// A Failed handle cannot dispatch but stays addressable so the caller that
// created it can read its LastError. Release, Sweep and Shutdown are the only
// ways a handle leaves the registry.
//
// # Error Handling
//
// Failures are reported as *types.ErrorInfo, which carries an ErrorCode, the
// handle's ResourceID and, for open failures, the id of the open attempt
// shared by every waiter. ErrorInfo unwraps to a sentinel per code and to
// the underlying cause:
//
//	h, err := registry.Acquire(ctx, connStr, opts, 0)
//	switch {
//	case errors.Is(err, types.ErrOpenAuth):
//	    // credentials rejected
//	case errors.Is(err, types.ErrOpenTimeout):
//	    // retry later; h.ResourceID() still identifies the failed handle
//	}
//
// # Sweeping
//
// Expired handles, failed ones included, are collected by [Registry.Sweep].
// Handles with operations in flight or callers still waiting on their open
// are skipped. The registry runs it periodically when a SweepInterval is
// configured, and before each Acquire or Lookup with WithSweepOnAccess.
//
// # Metrics and Logging
//
// Use WithMetrics with contrib/metrics/vm or contrib/metrics/prom, and
// WithLogger with contrib/logging/zl. Both default to no-ops.
package tether
