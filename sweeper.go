package tether

import (
	"sync"
	"sync/atomic"
	"time"
)

// sweeper periodically evicts expired and failed handles from a Registry.
type sweeper struct {
	registry *Registry
	interval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

func newSweeper(r *Registry, interval time.Duration) *sweeper {
	return &sweeper{
		registry: r,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *sweeper) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go s.run()
}

// Stop signals the loop to exit and waits for an in-progress sweep to finish.
func (s *sweeper) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	close(s.stopCh)
	s.wg.Wait()
}

// IsRunning returns whether the sweep loop is active.
func (s *sweeper) IsRunning() bool {
	return s.running.Load()
}

func (s *sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.registry.Sweep(s.registry.now())
		}
	}
}
