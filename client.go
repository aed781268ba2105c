package tether

import (
	"github.com/arloliu/tether/origin"
	"github.com/arloliu/tether/types"
)

// Type aliases for convenience - re-export from types and origin packages.
type (
	ErrorCode        = types.ErrorCode
	ErrorInfo        = types.ErrorInfo
	EvictReason      = types.EvictReason
	Logger           = types.Logger
	MetricsCollector = types.MetricsCollector
	Origin           = origin.Origin
	OriginOptions    = origin.Options
	Fingerprint      = origin.Fingerprint
)

// ResourceID is the process-unique runtime identifier of a Handle.
//
// Identifiers start at 1, grow monotonically and are never reused.
type ResourceID uint64

// Re-export error code constants for convenience.
const (
	CodeUnknown         = types.CodeUnknown
	CodeMalformedOrigin = types.CodeMalformedOrigin
	CodeOpenTimeout     = types.CodeOpenTimeout
	CodeOpenAuth        = types.CodeOpenAuth
	CodeOpenNetwork     = types.CodeOpenNetwork
	CodeNotConnected    = types.CodeNotConnected
	CodeCloseTimeout    = types.CodeCloseTimeout
	CodeDispatchFailed  = types.CodeDispatchFailed
	CodeHandleNotFound  = types.CodeHandleNotFound
	CodeHandleExhausted = types.CodeHandleExhausted
	CodeRegistryClosed  = types.CodeRegistryClosed
	CodeOriginDraining  = types.CodeOriginDraining
)
