package tether

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/tether/internal/logging"
	"github.com/arloliu/tether/internal/metrics"
	"github.com/arloliu/tether/origin"
	"github.com/arloliu/tether/types"
)

// Registry maps ResourceIDs to live Handles and owns their Sessions.
//
// With pooling enabled, handles whose origins share a fingerprint share one
// Session; the Session is closed when the last of them is destroyed.
// Without pooling every handle owns its Session.
//
// # Thread Safety
//
// Registry is safe for concurrent use from multiple goroutines. The registry
// mutex is never held while waiting on the network.
//
// # Lifecycle
//
//	registry, err := tether.NewRegistry(cql.NewSessionFactory(), tether.WithPooling(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer registry.Shutdown(context.Background())
//
//	h, err := registry.Acquire(ctx, "cql://10.0.0.1,10.0.0.2", opts, time.Minute)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := registry.Dispatch(ctx, h.ResourceID(), tether.Query("SELECT * FROM users"))
//	_ = registry.Release(h.ResourceID())
//
// After Shutdown:
//   - The background sweeper and the drain watcher are stopped
//   - Every handle is closed and every Session released
//   - Acquire returns ErrRegistryClosed
type Registry struct {
	factory SessionFactory
	config  *RegistryConfig

	mu      sync.Mutex
	handles map[ResourceID]*Handle
	pool    map[origin.Fingerprint]*sessionSlot
	slots   int
	nextID  uint64
	closed  bool

	drainMu  sync.RWMutex
	draining map[string]string

	sweeper     *sweeper
	watchCancel context.CancelFunc

	shutdownOnce sync.Once
	shutdownDone chan struct{}
}

type eviction struct {
	handle  *Handle
	drained <-chan struct{}
	reason  types.EvictReason
}

// NewRegistry creates a handle registry.
//
// If a SweepInterval is configured the background sweeper is started, and if
// a DrainWatcher is configured its updates are applied until Shutdown.
//
// Parameters:
//   - factory: Creates an unopened Session for an origin (required)
//   - opts: Optional configuration options
//
// Returns:
//   - *Registry: A new registry
//   - error: types.ErrNilSessionFactory if factory is nil
func NewRegistry(factory SessionFactory, opts ...Option) (*Registry, error) {
	if factory == nil {
		return nil, types.ErrNilSessionFactory
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	// Ensure metrics is never nil
	if config.Metrics == nil {
		config.Metrics = metrics.NewNopMetrics()
	}

	// Ensure logger is never nil
	if config.Logger == nil {
		config.Logger = logging.NewNopLogger()
	}

	if config.Clock == nil {
		config.Clock = time.Now
	}

	r := &Registry{
		factory:      factory,
		config:       config,
		handles:      make(map[ResourceID]*Handle),
		pool:         make(map[origin.Fingerprint]*sessionSlot),
		draining:     make(map[string]string),
		shutdownDone: make(chan struct{}),
	}

	if config.SweepInterval > 0 {
		r.sweeper = newSweeper(r, config.SweepInterval)
		r.sweeper.Start()
	}

	if config.DrainWatcher != nil {
		ctx, cancel := context.WithCancel(context.Background())
		r.watchCancel = cancel
		go r.watchDrain(ctx)
	}

	return r, nil
}

// Config returns the effective configuration. It must not be modified.
func (r *Registry) Config() *RegistryConfig {
	return r.config
}

// Acquire parses connection input and returns an open handle for it.
//
// With pooling enabled an existing session for the same fingerprint is
// joined unless its open attempt failed. If the open fails, the Failed
// handle is returned together with the error; it stays addressable by its
// ResourceID until released or swept.
//
// Parameters:
//   - ctx: Context bounding the wait for the session to open
//   - connStr: Connection string
//   - opts: Credentials and tuning options
//   - idleTimeout: Idle timeout of the handle; non-positive uses the configured default
//
// Returns:
//   - *Handle: The handle, nil only if no handle was allocated
//   - error: *types.ErrorInfo describing the failure
func (r *Registry) Acquire(ctx context.Context, connStr string, opts origin.Options, idleTimeout time.Duration) (*Handle, error) {
	o, err := origin.Parse(connStr, opts)
	if err != nil {
		r.config.Metrics.IncAcquireTotal()
		r.config.Metrics.IncAcquireError(types.CodeMalformedOrigin)

		return nil, types.NewErrorInfo(types.CodeMalformedOrigin, "acquire", "", err)
	}

	return r.AcquireOrigin(ctx, o, idleTimeout)
}

// AcquireOrigin is Acquire for an already parsed origin.
//
// Parameters:
//   - ctx: Context bounding the wait for the session to open
//   - o: Normalized origin
//   - idleTimeout: Idle timeout of the handle; non-positive uses the configured default
//
// Returns:
//   - *Handle: The handle, nil only if no handle was allocated
//   - error: *types.ErrorInfo describing the failure
func (r *Registry) AcquireOrigin(ctx context.Context, o *origin.Origin, idleTimeout time.Duration) (*Handle, error) {
	r.config.Metrics.IncAcquireTotal()

	if r.originDrained(o, r.drainSnapshot()) {
		r.config.Metrics.IncAcquireError(types.CodeOriginDraining)
		return nil, types.NewErrorInfo(types.CodeOriginDraining, "acquire", o.String(), nil)
	}

	if r.config.SweepOnAccess {
		r.Sweep(r.now())
	}

	if idleTimeout <= 0 {
		idleTimeout = r.config.IdleTimeout
	}

	h, info := r.allocate(o, idleTimeout)
	if info != nil {
		r.config.Metrics.IncAcquireError(info.Code)
		return nil, info
	}

	if err := h.Open(ctx); err != nil {
		r.config.Metrics.IncAcquireError(types.CodeOf(err))
		return h, err
	}

	r.config.Logger.Debug("handle acquired",
		"resource", uint64(h.id),
		"fingerprint", o.Fingerprint().Short(),
		"shared", h.pooled,
	)

	return h, nil
}

func (r *Registry) allocate(o *origin.Origin, idleTimeout time.Duration) (*Handle, *types.ErrorInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, types.NewErrorInfo(types.CodeRegistryClosed, "acquire", "", nil)
	}
	if r.config.MaxHandles > 0 && len(r.handles) >= r.config.MaxHandles {
		return nil, types.NewErrorInfo(types.CodeHandleExhausted, "acquire", "", nil)
	}

	var slot *sessionSlot
	if r.config.Pooling {
		fp := o.Fingerprint()
		if existing, ok := r.pool[fp]; ok && existing.joinable() {
			slot = existing
			r.config.Metrics.IncPoolHit()
		} else {
			slot = r.newSlotLocked(o)
			r.pool[fp] = slot
		}
	} else {
		slot = r.newSlotLocked(o)
	}
	slot.refs++

	r.nextID++
	h := newHandle(r, ResourceID(r.nextID), o, slot, r.config.Pooling, idleTimeout)
	r.handles[h.id] = h
	r.config.Metrics.SetLiveHandles(len(r.handles))

	return h, nil
}

func (r *Registry) newSlotLocked(o *origin.Origin) *sessionSlot {
	r.slots++
	r.config.Metrics.SetLiveSessions(r.slots)

	return newSessionSlot(r, o)
}

// Lookup returns the live handle with the given identifier.
//
// Parameters:
//   - id: Handle identifier
//
// Returns:
//   - *Handle: The handle
//   - error: *types.ErrorInfo with CodeHandleNotFound if no live handle has id
func (r *Registry) Lookup(id ResourceID) (*Handle, error) {
	if r.config.SweepOnAccess {
		r.Sweep(r.now())
	}

	r.mu.Lock()
	h, ok := r.handles[id]
	r.mu.Unlock()

	if !ok {
		info := types.NewErrorInfo(types.CodeHandleNotFound, "lookup", "", nil)
		info.Resource = uint64(id)

		return nil, info
	}

	return h, nil
}

// Dispatch runs an operation on the handle with the given identifier.
//
// Parameters:
//   - ctx: Context for the operation
//   - id: Handle identifier
//   - op: The operation to run
//
// Returns:
//   - Result: Rows returned by the engine
//   - error: *types.ErrorInfo on failure
func (r *Registry) Dispatch(ctx context.Context, id ResourceID, op Operation) (Result, error) {
	h, err := r.Lookup(id)
	if err != nil {
		return Result{}, err
	}

	return h.Dispatch(ctx, op)
}

// Release destroys the handle with the given identifier.
//
// In-flight operations are given up to CloseTimeout to finish. The session
// reference is then dropped, and the Session closed if this was the last
// reference. A close that exceeds CloseTimeout is logged and returned as a
// CloseTimeout error, but the handle is destroyed regardless.
//
// Parameters:
//   - id: Handle identifier
//
// Returns:
//   - error: CodeHandleNotFound if no live handle has id, CodeCloseTimeout on a detached close
func (r *Registry) Release(id ResourceID) error {
	r.mu.Lock()
	h, ok := r.handles[id]
	if !ok {
		r.mu.Unlock()

		info := types.NewErrorInfo(types.CodeHandleNotFound, "release", "", nil)
		info.Resource = uint64(id)

		return info
	}

	h.mu.Lock()
	drained := h.claimLocked()
	h.mu.Unlock()

	delete(r.handles, id)
	r.config.Metrics.SetLiveHandles(len(r.handles))
	r.mu.Unlock()

	if info := r.destroy(eviction{handle: h, drained: drained, reason: types.EvictReleased}); info != nil {
		return info
	}

	return nil
}

// Sweep evicts handles that are expired, including failed ones, or whose
// every origin address is draining. Handles with operations in flight, and
// handles with a caller still waiting for their session to open, are never
// evicted.
//
// Selection and removal from the index happen atomically under the registry
// lock; sessions are closed afterwards, concurrently.
//
// Parameters:
//   - now: The instant used for expiry
//
// Returns:
//   - int: Number of handles evicted
func (r *Registry) Sweep(now time.Time) int {
	drainSet := r.drainSnapshot()

	r.mu.Lock()
	var victims []eviction
	for id, h := range r.handles {
		h.mu.Lock()
		if h.inFlight == 0 && !h.establishing() {
			var reason types.EvictReason
			switch {
			case h.idleExpiry.Before(now) && h.state == StateFailed:
				reason = types.EvictFailed
			case h.idleExpiry.Before(now):
				reason = types.EvictExpired
			case r.originDrained(h.origin, drainSet):
				reason = types.EvictDrained
			}
			if reason != "" {
				h.claimLocked()
				delete(r.handles, id)
				victims = append(victims, eviction{handle: h, reason: reason})
			}
		}
		h.mu.Unlock()
	}
	if len(victims) > 0 {
		r.config.Metrics.SetLiveHandles(len(r.handles))
	}
	r.mu.Unlock()

	r.destroyAll(victims)

	if len(victims) > 0 {
		r.config.Logger.Debug("sweep evicted handles", "count", len(victims))
	}

	return len(victims)
}

// Shutdown closes every handle and stops background work.
//
// Shutdown is idempotent; concurrent and repeated calls wait for the same
// teardown. Handles are closed concurrently.
//
// Parameters:
//   - ctx: Context bounding the wait
//
// Returns:
//   - error: ctx.Err() if ctx ends before every handle is closed
func (r *Registry) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		victims := make([]eviction, 0, len(r.handles))
		for id, h := range r.handles {
			h.mu.Lock()
			drained := h.claimLocked()
			h.mu.Unlock()
			delete(r.handles, id)
			victims = append(victims, eviction{handle: h, drained: drained, reason: types.EvictShutdown})
		}
		r.config.Metrics.SetLiveHandles(0)
		r.mu.Unlock()

		if r.watchCancel != nil {
			r.watchCancel()
		}

		go func() {
			defer close(r.shutdownDone)

			if r.sweeper != nil {
				r.sweeper.Stop()
			}
			r.destroyAll(victims)
			r.config.Logger.Info("registry shut down", "handles", len(victims))
		}()
	})

	select {
	case <-r.shutdownDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}

// Sessions returns the number of sessions referenced by at least one handle.
func (r *Registry) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.slots
}

// IsDraining reports whether the given "host" or "host:port" is in drain mode.
//
// Parameters:
//   - host: Host or address to check
//
// Returns:
//   - bool: true if the host is draining
func (r *Registry) IsDraining(host string) bool {
	r.drainMu.RLock()
	defer r.drainMu.RUnlock()

	_, ok := r.draining[normalizeDrainHost(host)]

	return ok
}

func (r *Registry) destroyAll(victims []eviction) {
	var wg sync.WaitGroup
	for _, v := range victims {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.destroy(v)
		}()
	}
	wg.Wait()
}

// destroy finishes a claimed handle: waits for in-flight work, drops the slot
// reference and closes the Session if no other handle holds it.
func (r *Registry) destroy(ev eviction) *types.ErrorInfo {
	h := ev.handle
	timeout := r.config.CloseTimeout

	if ev.drained != nil {
		timer := time.NewTimer(timeout)
		select {
		case <-ev.drained:
		case <-timer.C:
			r.config.Logger.Warn("operations still in flight at close timeout",
				"resource", uint64(h.id),
				"fingerprint", h.Fingerprint().Short(),
			)
		}
		timer.Stop()
	}

	var info *types.ErrorInfo
	if slot := r.dropRef(h.slot); slot != nil {
		info = slot.close(timeout)
	}

	h.mu.Lock()
	h.state = StateClosed
	if info != nil {
		info = info.WithResource(uint64(h.id))
		h.lastErr = info
	}
	h.mu.Unlock()

	r.config.Metrics.IncHandleEvicted(ev.reason)
	r.config.Logger.Debug("handle destroyed",
		"resource", uint64(h.id),
		"fingerprint", h.Fingerprint().Short(),
		"reason", string(ev.reason),
	)

	return info
}

// dropRef releases one slot reference and returns the slot if it became unreferenced.
func (r *Registry) dropRef(slot *sessionSlot) *sessionSlot {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot.refs--
	if slot.refs > 0 {
		return nil
	}

	fp := slot.origin.Fingerprint()
	if r.pool[fp] == slot {
		delete(r.pool, fp)
	}
	r.slots--
	r.config.Metrics.SetLiveSessions(r.slots)

	return slot
}

func (r *Registry) now() time.Time {
	return r.config.Clock()
}

// watchDrain applies drain updates until the watcher channel closes.
func (r *Registry) watchDrain(ctx context.Context) {
	updates := r.config.DrainWatcher.Watch(ctx)
	for update := range updates {
		r.applyDrain(update)
	}
}

func (r *Registry) applyDrain(update DrainUpdate) {
	host := normalizeDrainHost(update.Host)
	if host == "" {
		return
	}

	r.drainMu.Lock()
	_, wasDraining := r.draining[host]
	if update.Draining {
		r.draining[host] = update.Reason
	} else {
		delete(r.draining, host)
	}
	count := len(r.draining)
	r.drainMu.Unlock()

	r.config.Metrics.SetDrainingHosts(count)

	// Record drain mode transitions
	if !wasDraining && update.Draining {
		r.config.Metrics.IncDrainModeEntered()
		r.config.Logger.Warn("host entering drain mode",
			"host", host,
			"reason", update.Reason,
		)
	} else if wasDraining && !update.Draining {
		r.config.Metrics.IncDrainModeExited()
		r.config.Logger.Info("host exiting drain mode",
			"host", host,
		)
	}
}

func (r *Registry) drainSnapshot() map[string]struct{} {
	r.drainMu.RLock()
	defer r.drainMu.RUnlock()

	if len(r.draining) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(r.draining))
	for host := range r.draining {
		set[host] = struct{}{}
	}

	return set
}

// originDrained reports whether every address of o matches the drain set,
// either as "host:port" or as a bare host.
func (r *Registry) originDrained(o *origin.Origin, set map[string]struct{}) bool {
	if len(set) == 0 {
		return false
	}

	for _, addr := range o.Addresses() {
		if _, ok := set[addr]; ok {
			continue
		}
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return false
		}
		if _, ok := set[host]; !ok {
			return false
		}
	}

	return true
}

func normalizeDrainHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}

	return host
}
