package tether

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/tether/origin"
	"github.com/arloliu/tether/types"
)

// State is the lifecycle state of a Handle.
type State int

const (
	// StateUninitialized means the handle exists but no open was requested.
	StateUninitialized State = iota
	// StateOpening means the session is being established.
	StateOpening
	// StateOpen means the session is usable.
	StateOpen
	// StateFailed means the open attempt failed. Failed is terminal; the
	// handle stays addressable until it is released or swept.
	StateFailed
	// StateClosing means the handle was claimed for destruction.
	StateClosing
	// StateClosed means the handle released its session reference.
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handle is a caller's reference to a cluster session.
//
// Handles are created by Registry.Acquire and destroyed by Release, Sweep or
// Shutdown. Each handle has its own ResourceID, even when pooled handles
// share one Session.
//
// # Thread Safety
//
// Handle is safe for concurrent use. Dispatch calls may overlap; the sweep
// never evicts a handle with an operation in flight.
type Handle struct {
	id          ResourceID
	reg         *Registry
	origin      *origin.Origin
	slot        *sessionSlot
	pooled      bool
	idleTimeout time.Duration

	mu         sync.Mutex
	state      State
	idleExpiry time.Time
	lastErr    *types.ErrorInfo
	inFlight   int
	openers    int
	drained    chan struct{}
}

type dispatchResult struct {
	res Result
	err error
}

func newHandle(reg *Registry, id ResourceID, o *origin.Origin, slot *sessionSlot, pooled bool, idleTimeout time.Duration) *Handle {
	return &Handle{
		id:          id,
		reg:         reg,
		origin:      o,
		slot:        slot,
		pooled:      pooled,
		idleTimeout: idleTimeout,
		idleExpiry:  reg.now().Add(idleTimeout),
	}
}

// ResourceID returns the stable runtime identifier of the handle.
func (h *Handle) ResourceID() ResourceID {
	return h.id
}

// Origin returns the normalized origin the handle was acquired for.
func (h *Handle) Origin() *origin.Origin {
	return h.origin
}

// Fingerprint returns the origin fingerprint.
func (h *Handle) Fingerprint() origin.Fingerprint {
	return h.origin.Fingerprint()
}

// Shared reports whether the handle uses a pooled session.
func (h *Handle) Shared() bool {
	return h.pooled
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state
}

// IdleExpiry returns the instant after which the handle counts as expired.
func (h *Handle) IdleExpiry() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.idleExpiry
}

// LastError returns the most recent error recorded on the handle, or nil.
func (h *Handle) LastError() *types.ErrorInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.lastErr
}

// InFlight returns the number of operations currently dispatched on the handle.
func (h *Handle) InFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.inFlight
}

// establishing reports whether an open is pending or has a caller waiting on it.
// Callers must hold h.mu.
func (h *Handle) establishing() bool {
	return h.state == StateUninitialized || h.openers > 0
}

// IsExpired reports whether the idle expiry lies before now.
//
// Parameters:
//   - now: The instant to compare against
//
// Returns:
//   - bool: true if the handle has been idle past its expiry
func (h *Handle) IsExpired(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.idleExpiry.Before(now)
}

// Open establishes the handle's session, or joins an establishment in progress.
//
// Open is idempotent: an open handle returns nil, a failed handle returns
// the recorded error. If ctx ends before the attempt resolves, Open returns
// an OpenTimeout error carrying ctx.Err() and the handle stays Opening, so
// Open may be called again.
//
// Parameters:
//   - ctx: Context bounding this caller's wait
//
// Returns:
//   - error: *types.ErrorInfo on failure, nil when the session is open
func (h *Handle) Open(ctx context.Context) error {
	h.mu.Lock()
	switch h.state {
	case StateOpen:
		h.mu.Unlock()
		return nil
	case StateFailed:
		err := h.lastErr
		h.mu.Unlock()

		return err
	case StateClosing, StateClosed:
		err := h.notConnectedLocked("open")
		h.mu.Unlock()

		return err
	case StateUninitialized:
		h.state = StateOpening
	}
	h.openers++
	h.mu.Unlock()

	h.slot.start()
	info, abandoned := h.slot.wait(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.openers--

	switch h.state {
	case StateOpening:
	case StateOpen:
		return nil
	case StateFailed:
		return h.lastErr
	default:
		return h.notConnectedLocked("open")
	}

	if info != nil {
		info = info.WithResource(uint64(h.id))
		h.lastErr = info
		if !abandoned {
			h.state = StateFailed
		}

		return info
	}

	h.state = StateOpen
	if next := h.reg.now().Add(h.idleTimeout); next.After(h.idleExpiry) {
		h.idleExpiry = next
	}

	return nil
}

// Dispatch runs one operation on the handle's session.
//
// The handle must be Open. A successful operation refreshes the idle expiry;
// a failed one is recorded as the handle's last error.
//
// Parameters:
//   - ctx: Context for the operation
//   - op: The operation to run
//
// Returns:
//   - Result: Rows returned by the engine
//   - error: *types.ErrorInfo with CodeNotConnected or CodeDispatchFailed
func (h *Handle) Dispatch(ctx context.Context, op Operation) (Result, error) {
	h.mu.Lock()
	if h.state != StateOpen {
		err := h.notConnectedLocked("dispatch")
		h.mu.Unlock()

		return Result{}, err
	}
	h.inFlight++
	h.mu.Unlock()

	cfg := h.reg.config
	cfg.Metrics.IncDispatchTotal()
	started := time.Now()

	result := make(chan dispatchResult, 1)
	h.slot.current().Dispatch(ctx, op, func(res Result, err error) {
		select {
		case result <- dispatchResult{res: res, err: err}:
		default:
		}
	})

	var out dispatchResult
	select {
	case out = <-result:
	case <-ctx.Done():
		out.err = ctx.Err()
	}
	cfg.Metrics.ObserveDispatchDuration(time.Since(started).Seconds())

	h.mu.Lock()
	defer h.mu.Unlock()

	h.inFlight--
	if h.inFlight == 0 && h.drained != nil {
		close(h.drained)
		h.drained = nil
	}

	if out.err != nil {
		cfg.Metrics.IncDispatchError()
		info := types.NewErrorInfo(types.CodeDispatchFailed, "dispatch", op.Kind.String(), out.err)
		info.Resource = uint64(h.id)
		h.lastErr = info

		return Result{}, info
	}

	if h.state == StateOpen {
		h.touchLocked()
	}

	return out.res, nil
}

// Close releases the handle. It is equivalent to Registry.Release(h.ResourceID()).
func (h *Handle) Close() error {
	return h.reg.Release(h.id)
}

// touchLocked pushes the idle expiry forward. The expiry never moves backwards,
// even if the clock does.
func (h *Handle) touchLocked() {
	next := h.reg.now().Add(h.idleTimeout)
	if !next.After(h.idleExpiry) {
		next = h.idleExpiry.Add(time.Nanosecond)
	}
	h.idleExpiry = next
}

// claimLocked marks the handle for destruction and returns a channel closed
// when in-flight operations finish, or nil if there are none.
func (h *Handle) claimLocked() <-chan struct{} {
	h.state = StateClosing
	if h.inFlight == 0 {
		return nil
	}
	if h.drained == nil {
		h.drained = make(chan struct{})
	}

	return h.drained
}

func (h *Handle) notConnectedLocked(op string) *types.ErrorInfo {
	info := types.NewErrorInfo(types.CodeNotConnected, op, "handle is "+h.state.String(), nil)
	info.Resource = uint64(h.id)

	return info
}
