package tether

import "context"

// DrainWatcher monitors host drain changes.
//
// Implementations include topology.Local (in-memory) and topology.NATS (NATS KV backed).
type DrainWatcher interface {
	// Watch returns a channel that receives drain updates.
	//
	// The channel is closed when the watcher stops or ctx is cancelled.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//
	// Returns:
	//   - <-chan DrainUpdate: Channel of drain changes
	Watch(ctx context.Context) <-chan DrainUpdate
}

// DrainOperator allows setting host drain states.
//
// This interface is typically used by operations tools and tests to take
// cluster nodes out of rotation. Implementations include topology.Local
// and topology.NATS.
type DrainOperator interface {
	// SetDrain sets the drain state for a host.
	//
	// Parameters:
	//   - ctx: Context for cancellation/timeout
	//   - host: "host" or "host:port"; a bare host matches every port
	//   - draining: true to enable drain mode, false to disable
	//   - reason: Human-readable reason for the drain (only used when draining=true)
	//
	// Returns:
	//   - error: nil on success, error if the operation fails
	SetDrain(ctx context.Context, host string, draining bool, reason string) error
}

// DrainUpdate represents a change of one host's drain state.
type DrainUpdate struct {
	// Host that was updated, as "host" or "host:port".
	Host string

	// Draining indicates if the host is in drain mode.
	Draining bool

	// Reason is the operator supplied explanation, empty when not draining.
	Reason string
}
