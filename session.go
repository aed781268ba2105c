package tether

import (
	"context"

	"github.com/arloliu/tether/origin"
)

// Session is the asynchronous engine boundary for one cluster connection.
//
// Every method returns immediately and reports completion exactly once through
// its done callback, possibly from another goroutine. Callbacks must not be
// invoked while the implementation holds locks the caller could need, and the
// registry never blocks inside them.
//
// Implementations MUST be safe for concurrent use from multiple goroutines.
// Dispatch may be called concurrently once Open has completed successfully.
type Session interface {
	// Open establishes the connection.
	//
	// Parameters:
	//   - ctx: Context bounding the establishment
	//   - done: Completion callback; nil error means the session is usable.
	//     Wrap types.ErrOpenAuth to signal rejected credentials.
	Open(ctx context.Context, done func(error))

	// Close releases the connection.
	//
	// Parameters:
	//   - ctx: Context bounding the shutdown
	//   - done: Completion callback
	Close(ctx context.Context, done func(error))

	// Dispatch runs one operation on an open session.
	//
	// Parameters:
	//   - ctx: Context for the operation
	//   - op: The operation envelope
	//   - done: Completion callback with the result or the engine error
	Dispatch(ctx context.Context, op Operation, done func(Result, error))
}

// SessionFactory creates an unopened Session for an Origin.
//
// The factory must not perform network I/O; the registry calls Session.Open
// when the first handle needs the connection.
type SessionFactory func(o *origin.Origin) (Session, error)

// OpKind selects what a Session does with an Operation.
type OpKind int

const (
	// OpPing checks the session round trip. Statement and Args are ignored.
	OpPing OpKind = iota
	// OpQuery runs a statement that returns rows.
	OpQuery
	// OpExec runs a statement for its side effects.
	OpExec
)

// String returns the lowercase operation name.
func (k OpKind) String() string {
	switch k {
	case OpPing:
		return "ping"
	case OpQuery:
		return "query"
	case OpExec:
		return "exec"
	default:
		return "unknown"
	}
}

// Operation is an engine-agnostic request envelope.
type Operation struct {
	Kind      OpKind
	Statement string
	Args      []any
}

// Ping returns a ping operation.
func Ping() Operation {
	return Operation{Kind: OpPing}
}

// Query returns a row-returning operation.
func Query(stmt string, args ...any) Operation {
	return Operation{Kind: OpQuery, Statement: stmt, Args: args}
}

// Exec returns a side-effect operation.
func Exec(stmt string, args ...any) Operation {
	return Operation{Kind: OpExec, Statement: stmt, Args: args}
}

// Result is what a Session reports for a completed Operation.
type Result struct {
	// Rows holds one map per returned row, keyed by column name.
	Rows []map[string]any

	// Applied reports whether a conditional exec took effect. Engines without
	// conditional writes leave it true on success.
	Applied bool
}
