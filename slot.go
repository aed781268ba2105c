package tether

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/tether/origin"
	"github.com/arloliu/tether/types"
)

type slotState int

const (
	slotIdle slotState = iota
	slotOpening
	slotOpen
	slotFailed
	slotClosed
)

// sessionSlot owns one Session and its single open attempt.
//
// Handles reference a slot; in pooled mode many handles share one. The
// reference count is guarded by the registry mutex, everything else by mu.
// The open deadline belongs to the slot so every waiter observes the same
// outcome and the same Attempt id.
type sessionSlot struct {
	reg     *Registry
	origin  *origin.Origin
	attempt string

	// refs is guarded by reg.mu.
	refs int

	startOnce sync.Once
	done      chan struct{}

	mu             sync.Mutex
	state          slotState
	session        Session
	err            *types.ErrorInfo
	closeRequested bool
}

func newSessionSlot(reg *Registry, o *origin.Origin) *sessionSlot {
	return &sessionSlot{
		reg:     reg,
		origin:  o,
		attempt: uuid.NewString(),
		done:    make(chan struct{}),
	}
}

// start launches the open attempt once. A slot closed before it was
// started resolves immediately with its close error.
func (s *sessionSlot) start() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		if s.state != slotIdle {
			s.mu.Unlock()
			close(s.done)

			return
		}
		s.state = slotOpening
		s.mu.Unlock()

		go s.establish()
	})
}

func (s *sessionSlot) establish() {
	defer close(s.done)

	cfg := s.reg.config
	cfg.Metrics.IncOpenTotal()
	started := time.Now()

	sess, err := s.reg.factory(s.origin)
	if err != nil {
		s.fail(classifyOpenError(err), "session factory failed", err)
		return
	}
	if sess == nil {
		s.fail(types.CodeOpenNetwork, "session factory returned no session", nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OpenTimeout)
	defer cancel()

	result := make(chan error, 1)
	sess.Open(ctx, func(err error) {
		select {
		case result <- err:
		default:
		}
	})

	select {
	case err := <-result:
		cfg.Metrics.ObserveOpenDuration(time.Since(started).Seconds())
		if err != nil {
			s.fail(classifyOpenError(err), "session open failed", err)
			return
		}

		s.mu.Lock()
		s.session = sess
		s.state = slotOpen
		s.mu.Unlock()

		cfg.Logger.Info("session opened",
			"fingerprint", s.origin.Fingerprint().Short(),
			"attempt", s.attempt,
			"duration", time.Since(started),
		)
	case <-ctx.Done():
		cfg.Metrics.ObserveOpenDuration(time.Since(started).Seconds())
		s.fail(types.CodeOpenTimeout, "session did not open within "+cfg.OpenTimeout.String(), ctx.Err())

		go s.detach(sess, result)
	}
}

// detach closes a session whose open outlived its deadline, if the engine
// reports it open within CloseTimeout. Past that the session is abandoned.
func (s *sessionSlot) detach(sess Session, result <-chan error) {
	cfg := s.reg.config
	timer := time.NewTimer(cfg.CloseTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		if err == nil {
			s.closeDetached(sess)
		}
	case <-timer.C:
		cfg.Metrics.IncCloseTimeout()
		cfg.Logger.Warn("late open never completed, abandoning session",
			"fingerprint", s.origin.Fingerprint().Short(),
			"attempt", s.attempt,
			"timeout", cfg.CloseTimeout,
		)
	}
}

func (s *sessionSlot) fail(code types.ErrorCode, msg string, cause error) {
	info := types.NewErrorInfo(code, "open", msg, cause)
	info.Attempt = s.attempt

	s.mu.Lock()
	s.state = slotFailed
	s.err = info
	s.mu.Unlock()

	s.reg.config.Metrics.IncOpenError(code)
	s.reg.config.Logger.Warn("session open failed",
		"fingerprint", s.origin.Fingerprint().Short(),
		"attempt", s.attempt,
		"code", code.String(),
		"error", cause,
	)
}

// wait blocks until the open attempt resolves or ctx ends.
//
// Returns the shared open error, or nil once the session is open. The
// boolean reports that ctx ended first, in which case the attempt is still
// in progress.
func (s *sessionSlot) wait(ctx context.Context) (*types.ErrorInfo, bool) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()

		return s.err, false
	case <-ctx.Done():
		info := types.NewErrorInfo(types.CodeOpenTimeout, "open", "caller stopped waiting for the session", ctx.Err())
		info.Attempt = s.attempt

		return info, true
	}
}

// joinable reports whether a new handle may share this slot.
func (s *sessionSlot) joinable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state != slotFailed && s.state != slotClosed && !s.closeRequested
}

func (s *sessionSlot) current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session
}

// close releases the Session. Called once, by the last holder.
//
// A slot that is still opening is closed in the background once its attempt
// resolves. Returns a CloseTimeout error if the engine did not confirm in time.
func (s *sessionSlot) close(timeout time.Duration) *types.ErrorInfo {
	s.mu.Lock()
	if s.closeRequested {
		s.mu.Unlock()
		return nil
	}
	s.closeRequested = true
	state := s.state
	if state == slotIdle {
		s.state = slotClosed
		s.err = types.NewErrorInfo(types.CodeNotConnected, "open", "session closed before it was opened", nil)
		s.err.Attempt = s.attempt
	}
	s.mu.Unlock()

	switch state {
	case slotOpening:
		go func() {
			<-s.done
			s.shutdown(timeout)
		}()

		return nil
	case slotOpen:
		return s.shutdown(timeout)
	default:
		return nil
	}
}

func (s *sessionSlot) shutdown(timeout time.Duration) *types.ErrorInfo {
	s.mu.Lock()
	if s.state != slotOpen {
		if s.state != slotFailed {
			s.state = slotClosed
		}
		s.mu.Unlock()

		return nil
	}
	sess := s.session
	s.state = slotClosed
	s.mu.Unlock()

	return s.closeSession(sess, timeout)
}

func (s *sessionSlot) closeDetached(sess Session) {
	_ = s.closeSession(sess, s.reg.config.CloseTimeout)
}

func (s *sessionSlot) closeSession(sess Session, timeout time.Duration) *types.ErrorInfo {
	cfg := s.reg.config

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result := make(chan error, 1)
	sess.Close(ctx, func(err error) {
		select {
		case result <- err:
		default:
		}
	})

	select {
	case err := <-result:
		if err != nil {
			cfg.Logger.Warn("session close reported an error",
				"fingerprint", s.origin.Fingerprint().Short(),
				"attempt", s.attempt,
				"error", err,
			)
		} else {
			cfg.Logger.Info("session closed",
				"fingerprint", s.origin.Fingerprint().Short(),
				"attempt", s.attempt,
			)
		}

		return nil
	case <-ctx.Done():
		cfg.Metrics.IncCloseTimeout()
		cfg.Logger.Warn("session close timed out, detaching",
			"fingerprint", s.origin.Fingerprint().Short(),
			"attempt", s.attempt,
			"timeout", timeout,
		)
		info := types.NewErrorInfo(types.CodeCloseTimeout, "close", "session did not close within "+timeout.String(), ctx.Err())
		info.Attempt = s.attempt

		return info
	}
}

// classifyOpenError maps an engine open error to an ErrorCode.
func classifyOpenError(err error) types.ErrorCode {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, types.ErrOpenTimeout):
		return types.CodeOpenTimeout
	case errors.Is(err, types.ErrOpenAuth):
		return types.CodeOpenAuth
	case errors.Is(err, types.ErrMalformedOrigin):
		return types.CodeMalformedOrigin
	default:
		return types.CodeOpenNetwork
	}
}
