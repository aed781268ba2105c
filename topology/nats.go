package topology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/tether"
)

// setDrainAttempts bounds optimistic-concurrency retries in SetDrain.
const setDrainAttempts = 5

// NATS monitors a NATS KV bucket for drain mode configuration.
//
// It watches a configurable key holding a DrainConfig and emits one
// DrainUpdate per host whose drain state changes. This enables operations
// teams to move traffic off cluster nodes before maintenance.
//
// Watch() should be called once per instance. Subsequent calls return the
// same channel. The channel is closed when Close() is called or the context
// is cancelled.
type NATS struct {
	kv     jetstream.KeyValue
	config WatcherConfig

	// Current drain state
	draining    map[string]struct{}
	drainReason string
	mu          sync.RWMutex

	// Lifecycle
	updates      chan tether.DrainUpdate
	done         chan struct{}
	closed       bool
	watchStarted bool
	closeOnce    sync.Once
}

var (
	_ tether.DrainWatcher  = (*NATS)(nil)
	_ tether.DrainOperator = (*NATS)(nil)
)

// NewNATS creates a new NATS KV drain watcher.
//
// The watcher will begin monitoring the KV bucket for drain configuration
// when Watch() is called.
//
// Parameters:
//   - kv: A NATS JetStream KeyValue store
//   - opts: Optional configuration options
//
// Returns:
//   - *NATS: A new watcher instance
//   - error: Error if kv is nil
//
// Example:
//
//	nc, _ := nats.Connect("nats://localhost:4222")
//	js, _ := jetstream.New(nc)
//	kv, _ := js.KeyValue(ctx, "tether-config")
//
//	watcher, _ := topology.NewNATS(kv,
//	    topology.WithKey("topology.drain"),
//	    topology.WithPollInterval(10*time.Second),
//	)
func NewNATS(kv jetstream.KeyValue, opts ...WatcherOption) (*NATS, error) {
	if kv == nil {
		return nil, errors.New("tether/topology: KeyValue store is nil")
	}

	config := DefaultWatcherConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &NATS{
		kv:       kv,
		config:   config,
		draining: make(map[string]struct{}),
		updates:  make(chan tether.DrainUpdate, 64),
		done:     make(chan struct{}),
	}, nil
}

// Watch returns a channel that receives drain updates.
//
// The watcher spawns a background goroutine that monitors the NATS KV key.
// When the drain configuration changes, it emits DrainUpdate events
// for each affected host.
//
// The channel is closed when Close() is called or the context is cancelled.
// Multiple calls to Watch return the same channel; only the first call's
// context controls the watch lifecycle.
//
// Parameters:
//   - ctx: Context for cancellation (only used on first call)
//
// Returns:
//   - <-chan tether.DrainUpdate: Channel of drain changes
func (n *NATS) Watch(ctx context.Context) <-chan tether.DrainUpdate {
	n.mu.Lock()
	if n.watchStarted {
		n.mu.Unlock()

		return n.updates
	}
	n.watchStarted = true
	n.mu.Unlock()

	go n.watchLoop(ctx)

	return n.updates
}

// SetDrain adds a host to or removes it from the drain list in the KV store.
//
// The update is a compare-and-set on the key revision, retried when another
// operator wrote concurrently. Watchers, including this one, observe the
// change through the KV watch.
//
// Parameters:
//   - ctx: Context for cancellation/timeout
//   - host: "host" or "host:port"
//   - draining: true to enable drain mode, false to disable
//   - reason: Human-readable reason, stored when draining=true
//
// Returns:
//   - error: nil on success, error if the KV store could not be updated
func (n *NATS) SetDrain(ctx context.Context, host string, draining bool, reason string) error {
	host = normalizeHost(host)
	if host == "" {
		return errors.New("tether/topology: empty host")
	}

	var lastErr error
	for range setDrainAttempts {
		var cfg DrainConfig
		var revision uint64

		entry, err := n.kv.Get(ctx, n.config.Key)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
		case err != nil:
			return fmt.Errorf("tether/topology: read drain config: %w", err)
		default:
			revision = entry.Revision()
			if err := json.Unmarshal(entry.Value(), &cfg); err != nil {
				cfg = DrainConfig{}
			}
		}

		hosts := cfg.Hosts()
		if slices.Contains(hosts, host) == draining {
			return nil
		}
		if draining {
			hosts = append(hosts, host)
			cfg.Reason = reason
		} else {
			hosts = slices.DeleteFunc(hosts, func(h string) bool { return h == host })
			if len(hosts) == 0 {
				cfg.Reason = ""
			}
		}
		cfg.Drain = hosts

		data, err := json.Marshal(cfg)
		if err != nil {
			return err
		}

		if revision == 0 {
			_, lastErr = n.kv.Create(ctx, n.config.Key, data)
		} else {
			_, lastErr = n.kv.Update(ctx, n.config.Key, data, revision)
		}
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("tether/topology: update drain config: %w", lastErr)
}

// Close stops the watcher and releases resources.
//
// This method is safe to call multiple times.
func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}

	n.closed = true
	close(n.done)

	return nil
}

// IsDraining returns whether the specified host is currently in drain mode.
//
// This provides a synchronous way to check drain status without waiting
// for channel updates.
//
// Parameters:
//   - host: The host or "host:port" to check
//
// Returns:
//   - bool: true if the host is being drained
func (n *NATS) IsDraining(host string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	_, ok := n.draining[normalizeHost(host)]

	return ok
}

// Config returns the watcher configuration.
//
// Returns:
//   - WatcherConfig: The current watcher configuration
func (n *NATS) Config() WatcherConfig {
	return n.config
}

// GetDrainReason returns the current drain reason, if any.
//
// This returns the cached reason from the last processed KV entry.
// It does not perform a live KV fetch.
//
// Returns:
//   - string: The drain reason, or empty if not draining
func (n *NATS) GetDrainReason() string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.drainReason
}

// watchLoop is the main watch loop that monitors the NATS KV key.
func (n *NATS) watchLoop(ctx context.Context) {
	defer n.closeOnce.Do(func() { close(n.updates) })

	// Initial fetch
	n.fetchAndEmit(ctx)

	watcher, err := n.kv.Watch(ctx, n.config.Key)
	if err != nil {
		// Fall back to polling if watch fails
		n.pollLoop(ctx)
		return
	}
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				// Watcher channel closed, fall back to polling
				n.pollLoop(ctx)
				return
			}
			if entry == nil {
				// Initial values delivered
				continue
			}
			n.processEntry(entry)
		}
	}
}

// pollLoop is a fallback polling loop when watch fails.
func (n *NATS) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case <-ticker.C:
			n.fetchAndEmit(ctx)
		}
	}
}

// fetchAndEmit fetches the current KV value and emits updates if changed.
func (n *NATS) fetchAndEmit(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, n.config.InitialFetchTimeout)
	defer cancel()

	entry, err := n.kv.Get(fetchCtx, n.config.Key)
	if err != nil {
		// Key doesn't exist or error - treat as no drain
		n.applyHosts(nil, "")
		return
	}

	n.processEntry(entry)
}

// processEntry parses a KV entry and emits drain updates.
func (n *NATS) processEntry(entry jetstream.KeyValueEntry) {
	if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
		n.applyHosts(nil, "")
		return
	}

	var config DrainConfig
	if err := json.Unmarshal(entry.Value(), &config); err != nil {
		// Invalid JSON - treat as no drain
		n.applyHosts(nil, "")
		return
	}

	n.applyHosts(config.Hosts(), config.Reason)
}

// applyHosts replaces the drain set and emits one update per changed host.
func (n *NATS) applyHosts(hosts []string, reason string) {
	next := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		next[h] = struct{}{}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.drainReason = reason

	var changes []tether.DrainUpdate
	for h := range next {
		if _, ok := n.draining[h]; !ok {
			changes = append(changes, tether.DrainUpdate{Host: h, Draining: true, Reason: reason})
		}
	}
	for h := range n.draining {
		if _, ok := next[h]; !ok {
			changes = append(changes, tether.DrainUpdate{Host: h, Draining: false})
		}
	}
	n.draining = next

	for _, update := range changes {
		// Emit update (non-blocking)
		select {
		case n.updates <- update:
		default:
			// Channel full, skip update
		}
	}
}
