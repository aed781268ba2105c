// Package types provides shared types and error definitions for the tether library.
//
// This is a leaf package with zero tether imports to prevent import cycles.
// All packages in tether can safely import this package.
//
// # Errors
//
// Every failure reported by a Registry or Handle is an *ErrorInfo:
//
//	type ErrorInfo struct {
//	    Code     ErrorCode // open_timeout, not_connected, ...
//	    Op       string    // acquire, open, dispatch, close
//	    Resource uint64    // handle identifier, 0 if none
//	    Attempt  string    // open attempt id shared by all waiters
//	    Message  string
//	    Cause    error
//	}
//
// ErrorInfo unwraps to the sentinel error of its code and to its cause, so
// both styles work:
//
//	if errors.Is(err, types.ErrOpenTimeout) { ... }
//
//	var info *types.ErrorInfo
//	if errors.As(err, &info) {
//	    log.Printf("attempt %s failed: %v", info.Attempt, info.Cause)
//	}
//
// Sentinel errors:
//
//   - ErrMalformedOrigin: Bad connection string or options, never retried
//   - ErrOpenTimeout: Session open exceeded its deadline
//   - ErrOpenAuth: Credentials rejected by the cluster
//   - ErrOpenNetwork: Cluster unreachable
//   - ErrNotConnected: Operation on a Failed or Closed handle
//   - ErrCloseTimeout: Session close exceeded its deadline, session detached
//   - ErrDispatchFailed: Engine reported an operation error
//   - ErrHandleNotFound: Unknown or already released identifier
//   - ErrHandleExhausted: Registry handle limit reached
//   - ErrRegistryClosed: Registry has been shut down
//   - ErrOriginDraining: Every address of the origin is in drain mode
//
// MalformedOriginError carries the offending input and reason and unwraps
// to ErrMalformedOrigin.
//
// # Observability
//
// Logger and MetricsCollector are the pluggable interfaces used by the
// registry. No-op implementations live in internal/logging and
// internal/metrics; real backends live under contrib/.
package types
