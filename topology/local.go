package topology

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/arloliu/tether"
)

// Local provides an in-memory drain watcher and operator for testing.
//
// Unlike NATS, this implementation allows programmatic control
// of drain states, making it ideal for unit tests and demos.
// It implements both DrainWatcher (for observing) and DrainOperator
// (for controlling drain states).
type Local struct {
	draining map[string]string
	mu       sync.RWMutex

	updates       chan tether.DrainUpdate
	done          chan struct{}
	closed        bool
	updatesClosed bool
}

var (
	_ tether.DrainWatcher  = (*Local)(nil)
	_ tether.DrainOperator = (*Local)(nil)
)

// NewLocal creates a new in-memory drain watcher/operator.
//
// Returns:
//   - *Local: A new local topology instance
func NewLocal() *Local {
	return &Local{
		draining: make(map[string]string),
		updates:  make(chan tether.DrainUpdate, 16),
		done:     make(chan struct{}),
	}
}

// Watch returns a channel that receives drain updates.
//
// Updates are emitted when SetDrain changes a host's state. The channel is
// closed when Close() is called or the context is cancelled.
//
// Multiple calls to Watch return the same channel; only the first call's
// context controls the watch lifecycle.
//
// Parameters:
//   - ctx: Context for cancellation (only used on first call)
//
// Returns:
//   - <-chan tether.DrainUpdate: Channel of drain changes
func (l *Local) Watch(ctx context.Context) <-chan tether.DrainUpdate {
	go l.waitForClose(ctx)
	return l.updates
}

// SetDrain sets the drain state for a host.
//
// This method emits a DrainUpdate if the state changes.
//
// Parameters:
//   - ctx: Context for cancellation. For the local in-memory implementation,
//     this parameter is accepted for interface compliance but not used.
//   - host: "host" or "host:port"
//   - draining: true to enable drain mode, false to disable
//   - reason: Human-readable reason for the drain (only used when draining=true)
//
// Returns:
//   - error: Always nil for local implementation
func (l *Local) SetDrain(_ context.Context, host string, draining bool, reason string) error {
	host = normalizeHost(host)
	if host == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.updatesClosed {
		return nil
	}

	// Only emit if state changed
	if _, current := l.draining[host]; current == draining {
		return nil
	}

	if draining {
		l.draining[host] = reason
	} else {
		delete(l.draining, host)
		reason = ""
	}

	// Emit update (non-blocking)
	select {
	case l.updates <- tether.DrainUpdate{Host: host, Draining: draining, Reason: reason}:
	default:
		// Channel full, skip update
	}

	return nil
}

// IsDraining returns whether the specified host is currently in drain mode.
//
// Parameters:
//   - host: The host or "host:port" to check
//
// Returns:
//   - bool: true if the host is being drained
func (l *Local) IsDraining(host string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.draining[normalizeHost(host)]

	return ok
}

// GetDrainReason returns the drain reason of a host, if any.
//
// Returns:
//   - string: The drain reason, or empty string if not draining
func (l *Local) GetDrainReason(host string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.draining[normalizeHost(host)]
}

// Draining returns the sorted list of draining hosts.
func (l *Local) Draining() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return slices.Sorted(maps.Keys(l.draining))
}

// Close stops the watcher and releases resources.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	close(l.done)

	return nil
}

// waitForClose waits for context cancellation or close signal.
func (l *Local) waitForClose(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-l.done:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.updatesClosed {
		l.updatesClosed = true
		close(l.updates)
	}
}
