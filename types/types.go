// Package types provides shared types and errors for the tether library.
//
// This is a "leaf" package with no imports from other tether packages,
// allowing it to be imported by any package without causing import cycles.
package types

import (
	"errors"
	"strconv"
)

// ErrorCode classifies a failure reported by the registry or a handle.
type ErrorCode int

const (
	// CodeUnknown is used for errors that do not carry a tether code.
	CodeUnknown ErrorCode = iota
	// CodeMalformedOrigin indicates the connection string or options could not be normalized.
	CodeMalformedOrigin
	// CodeOpenTimeout indicates the session did not finish opening before its deadline.
	CodeOpenTimeout
	// CodeOpenAuth indicates the cluster rejected the credentials.
	CodeOpenAuth
	// CodeOpenNetwork indicates the cluster could not be reached.
	CodeOpenNetwork
	// CodeNotConnected indicates an operation on a handle that is not open.
	CodeNotConnected
	// CodeCloseTimeout indicates the session did not finish closing before its deadline.
	CodeCloseTimeout
	// CodeDispatchFailed indicates the engine reported an error for an operation.
	CodeDispatchFailed
	// CodeHandleNotFound indicates no live handle has the requested identifier.
	CodeHandleNotFound
	// CodeHandleExhausted indicates the registry reached its handle limit.
	CodeHandleExhausted
	// CodeRegistryClosed indicates the registry has been shut down.
	CodeRegistryClosed
	// CodeOriginDraining indicates every address of the origin is drained.
	CodeOriginDraining
)

var codeNames = [...]string{
	CodeUnknown:         "unknown",
	CodeMalformedOrigin: "malformed_origin",
	CodeOpenTimeout:     "open_timeout",
	CodeOpenAuth:        "open_auth",
	CodeOpenNetwork:     "open_network",
	CodeNotConnected:    "not_connected",
	CodeCloseTimeout:    "close_timeout",
	CodeDispatchFailed:  "dispatch_failed",
	CodeHandleNotFound:  "handle_not_found",
	CodeHandleExhausted: "handle_exhausted",
	CodeRegistryClosed:  "registry_closed",
	CodeOriginDraining:  "origin_draining",
}

// String returns the snake_case name of the code, suitable for metric labels.
func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return "code_" + strconv.Itoa(int(c))
	}

	return codeNames[c]
}

// ErrorCodes returns every defined error code, in declaration order.
//
// Metrics collectors use this to pre-create per-code series.
//
// Returns:
//   - []ErrorCode: All codes including CodeUnknown
func ErrorCodes() []ErrorCode {
	codes := make([]ErrorCode, len(codeNames))
	for i := range codeNames {
		codes[i] = ErrorCode(i)
	}

	return codes
}

// Sentinel errors, one per ErrorCode. ErrorInfo unwraps to the sentinel of its code,
// so callers can use errors.Is regardless of how the error was produced.
var (
	// ErrMalformedOrigin indicates bad connection input. It is never retried.
	ErrMalformedOrigin = errors.New("tether: malformed origin")

	// ErrOpenTimeout indicates session establishment exceeded its deadline.
	ErrOpenTimeout = errors.New("tether: session open timed out")

	// ErrOpenAuth indicates the cluster rejected the credentials.
	// Session implementations wrap this error to signal an authentication failure.
	ErrOpenAuth = errors.New("tether: session authentication failed")

	// ErrOpenNetwork indicates the cluster could not be reached.
	ErrOpenNetwork = errors.New("tether: cluster unreachable")

	// ErrNotConnected indicates an operation was attempted on a Failed or Closed handle.
	ErrNotConnected = errors.New("tether: handle is not connected")

	// ErrCloseTimeout indicates the session did not close in time and was detached.
	ErrCloseTimeout = errors.New("tether: session close timed out")

	// ErrDispatchFailed indicates the engine reported an operation failure.
	ErrDispatchFailed = errors.New("tether: operation failed")

	// ErrHandleNotFound indicates no live handle has the requested identifier.
	ErrHandleNotFound = errors.New("tether: handle not found")

	// ErrHandleExhausted indicates the registry cannot allocate another handle.
	ErrHandleExhausted = errors.New("tether: handle limit reached")

	// ErrRegistryClosed indicates the registry has been shut down.
	ErrRegistryClosed = errors.New("tether: registry is closed")

	// ErrOriginDraining indicates every address of the origin is in drain mode.
	ErrOriginDraining = errors.New("tether: all origin addresses are draining")

	// ErrNilSessionFactory indicates that a nil session factory was provided.
	ErrNilSessionFactory = errors.New("tether: session factory cannot be nil")
)

var codeSentinels = map[ErrorCode]error{
	CodeMalformedOrigin: ErrMalformedOrigin,
	CodeOpenTimeout:     ErrOpenTimeout,
	CodeOpenAuth:        ErrOpenAuth,
	CodeOpenNetwork:     ErrOpenNetwork,
	CodeNotConnected:    ErrNotConnected,
	CodeCloseTimeout:    ErrCloseTimeout,
	CodeDispatchFailed:  ErrDispatchFailed,
	CodeHandleNotFound:  ErrHandleNotFound,
	CodeHandleExhausted: ErrHandleExhausted,
	CodeRegistryClosed:  ErrRegistryClosed,
	CodeOriginDraining:  ErrOriginDraining,
}

// Sentinel returns the sentinel error for the code, or nil for CodeUnknown.
func (c ErrorCode) Sentinel() error {
	return codeSentinels[c]
}

// ErrorInfo is the structured error attached to handles and returned to callers.
//
// It records which operation failed, on which handle and which open attempt,
// along with the underlying engine error. ErrorInfo values are treated as
// immutable once returned.
type ErrorInfo struct {
	// Code classifies the failure.
	Code ErrorCode

	// Op is the operation that failed ("acquire", "open", "dispatch", "close", ...).
	Op string

	// Resource is the runtime identifier of the handle, or 0 if none was allocated.
	Resource uint64

	// Attempt identifies the session open attempt the error belongs to, if any.
	// Every waiter on the same attempt receives the same Attempt value.
	Attempt string

	// Message is a short human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// NewErrorInfo creates an ErrorInfo for the given code and operation.
//
// Parameters:
//   - code: Failure classification
//   - op: Operation name
//   - msg: Human-readable description
//   - cause: Underlying error (may be nil)
//
// Returns:
//   - *ErrorInfo: A new error value
func NewErrorInfo(code ErrorCode, op, msg string, cause error) *ErrorInfo {
	return &ErrorInfo{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *ErrorInfo) Error() string {
	s := "tether: " + e.Op + " failed [" + e.Code.String() + "]"
	if e.Resource != 0 {
		s += " resource=" + strconv.FormatUint(e.Resource, 10)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}

	return s
}

// Unwrap returns the code sentinel and the cause for errors.Is/As compatibility.
func (e *ErrorInfo) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Code.Sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}

	return errs
}

// WithResource returns a copy of the error bound to the given handle identifier.
//
// Shared failures (one open attempt, many waiters) are copied per handle so
// each caller sees its own resource while Code, Attempt and Cause stay equal.
func (e *ErrorInfo) WithResource(id uint64) *ErrorInfo {
	cp := *e
	cp.Resource = id

	return &cp
}

// MalformedOriginError reports connection input that cannot be normalized.
type MalformedOriginError struct {
	// Input is the offending input, with secrets removed.
	Input string

	// Reason describes what is wrong with the input.
	Reason string
}

// Error implements the error interface.
func (e *MalformedOriginError) Error() string {
	if e.Input == "" {
		return "tether: malformed origin: " + e.Reason
	}

	return "tether: malformed origin " + strconv.Quote(e.Input) + ": " + e.Reason
}

// Unwrap returns ErrMalformedOrigin for errors.Is compatibility.
func (e *MalformedOriginError) Unwrap() error {
	return ErrMalformedOrigin
}

// CodeOf extracts the ErrorCode carried by err.
//
// Parameters:
//   - err: Any error, possibly wrapping an ErrorInfo or a sentinel
//
// Returns:
//   - ErrorCode: The code, or CodeUnknown if err carries none
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var info *ErrorInfo
	if errors.As(err, &info) {
		return info.Code
	}

	var malformed *MalformedOriginError
	if errors.As(err, &malformed) {
		return CodeMalformedOrigin
	}

	for code, sentinel := range codeSentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}
