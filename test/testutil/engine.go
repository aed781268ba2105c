package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/tether"
	"github.com/arloliu/tether/origin"
)

// DispatchFunc computes the outcome of a dispatched operation.
type DispatchFunc func(ctx context.Context, op tether.Operation) (tether.Result, error)

// MockEngine produces MockSessions and counts the calls made on them.
//
// Behavior can be changed at any time through the Set* methods; sessions read
// the current behavior when a call starts.
type MockEngine struct {
	mu         sync.Mutex
	sessions   []*MockSession
	factoryErr error
	openErr    error
	openDelay  time.Duration
	openGate   chan struct{}
	closeErr   error
	closeGate  chan struct{}
	dispatch   DispatchFunc

	opens      atomic.Int64
	closes     atomic.Int64
	dispatches atomic.Int64
}

// NewMockEngine creates an engine whose sessions open, close and dispatch successfully.
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

// Factory returns a tether.SessionFactory backed by the engine.
func (e *MockEngine) Factory() tether.SessionFactory {
	return func(o *origin.Origin) (tether.Session, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.factoryErr != nil {
			return nil, e.factoryErr
		}
		s := &MockSession{engine: e, origin: o}
		e.sessions = append(e.sessions, s)

		return s, nil
	}
}

// SetFactoryError makes the factory fail with err. Nil restores success.
func (e *MockEngine) SetFactoryError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.factoryErr = err
}

// SetOpenError makes Session.Open report err. Nil restores success.
func (e *MockEngine) SetOpenError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openErr = err
}

// SetOpenDelay delays every Open completion by d.
func (e *MockEngine) SetOpenDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openDelay = d
}

// SetOpenGate holds Open completions until gate is closed. Nil removes the gate.
//
// Gated opens ignore their context, like an engine that finishes its
// handshake after the caller has given up.
func (e *MockEngine) SetOpenGate(gate chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openGate = gate
}

// SetCloseError makes Session.Close report err.
func (e *MockEngine) SetCloseError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeErr = err
}

// SetCloseGate holds Close completions until gate is closed. Nil removes the gate.
func (e *MockEngine) SetCloseGate(gate chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeGate = gate
}

// SetDispatch replaces the dispatch behavior. Nil restores the default,
// which answers every operation with one row.
func (e *MockEngine) SetDispatch(fn DispatchFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatch = fn
}

// Sessions returns the sessions created so far.
func (e *MockEngine) Sessions() []*MockSession {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*MockSession, len(e.sessions))
	copy(out, e.sessions)

	return out
}

// Opens returns the number of Session.Open calls.
func (e *MockEngine) Opens() int {
	return int(e.opens.Load())
}

// Closes returns the number of Session.Close calls.
func (e *MockEngine) Closes() int {
	return int(e.closes.Load())
}

// Dispatches returns the number of Session.Dispatch calls.
func (e *MockEngine) Dispatches() int {
	return int(e.dispatches.Load())
}

// MockSession is a tether.Session whose behavior is driven by its MockEngine.
type MockSession struct {
	engine *MockEngine
	origin *origin.Origin

	opens  atomic.Int64
	closes atomic.Int64
}

// Compile-time assertion that MockSession implements tether.Session.
var _ tether.Session = (*MockSession)(nil)

// Origin returns the origin the session was created for.
func (s *MockSession) Origin() *origin.Origin {
	return s.origin
}

// Opens returns the number of Open calls on this session.
func (s *MockSession) Opens() int {
	return int(s.opens.Load())
}

// Closes returns the number of Close calls on this session.
func (s *MockSession) Closes() int {
	return int(s.closes.Load())
}

// Open completes asynchronously with the engine's configured open outcome.
func (s *MockSession) Open(ctx context.Context, done func(error)) {
	s.opens.Add(1)
	s.engine.opens.Add(1)

	s.engine.mu.Lock()
	err, delay, gate := s.engine.openErr, s.engine.openDelay, s.engine.openGate
	s.engine.mu.Unlock()

	go func() {
		if gate != nil {
			<-gate
		} else if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				done(ctx.Err())
				return
			}
		}
		done(err)
	}()
}

// Close completes asynchronously with the engine's configured close outcome.
func (s *MockSession) Close(_ context.Context, done func(error)) {
	s.closes.Add(1)
	s.engine.closes.Add(1)

	s.engine.mu.Lock()
	err, gate := s.engine.closeErr, s.engine.closeGate
	s.engine.mu.Unlock()

	go func() {
		if gate != nil {
			<-gate
		}
		done(err)
	}()
}

// Dispatch completes asynchronously with the engine's dispatch behavior.
func (s *MockSession) Dispatch(ctx context.Context, op tether.Operation, done func(tether.Result, error)) {
	s.engine.dispatches.Add(1)

	s.engine.mu.Lock()
	fn := s.engine.dispatch
	s.engine.mu.Unlock()

	go func() {
		if fn == nil {
			done(tether.Result{
				Rows:    []map[string]any{{"kind": op.Kind.String(), "statement": op.Statement}},
				Applied: true,
			}, nil)

			return
		}
		done(fn(ctx, op))
	}()
}
