package types

import "errors"

// ErrorKind classifies the outcome of an engine operation. Kinds are
// semantic, not tied to any transport: callers match them with
// errors.Is against the sentinel values below.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NotFound"
	KindIdempotencyConflict ErrorKind = "IdempotencyConflict"
	KindLeaseHeld          ErrorKind = "LeaseHeld"
	KindLeaseInvalid       ErrorKind = "LeaseInvalid"
	KindFencedOut          ErrorKind = "FencedOut"
	KindOverflow           ErrorKind = "Overflow"
	KindPersistentStorage  ErrorKind = "PersistentStorage"
	KindCorruption         ErrorKind = "Corruption"
	KindCancelled          ErrorKind = "Cancelled"
	KindInvalidArgument    ErrorKind = "InvalidArgument"
)

// Error is the error type returned across every package boundary in
// agentstate. Op names the failing operation (e.g. "heap.Get",
// "wal.Append") for logging; Err, if set, wraps the underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches against another *Error by Kind, so errors.Is(err,
// ErrNotFound) works regardless of Op or the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error for the given op and kind, optionally
// wrapping a lower-level cause.
func New(op string, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Sentinel values for errors.Is matching. Only Kind is compared, so
// &Error{Kind: KindNotFound} anywhere in a chain satisfies
// errors.Is(err, ErrNotFound).
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrIdempotencyConflict = &Error{Kind: KindIdempotencyConflict}
	ErrLeaseHeld           = &Error{Kind: KindLeaseHeld}
	ErrLeaseInvalid        = &Error{Kind: KindLeaseInvalid}
	ErrFencedOut           = &Error{Kind: KindFencedOut}
	ErrOverflow            = &Error{Kind: KindOverflow}
	ErrPersistentStorage   = &Error{Kind: KindPersistentStorage}
	ErrCorruption          = &Error{Kind: KindCorruption}
	ErrCancelled           = &Error{Kind: KindCancelled}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
)

// KindOf extracts the ErrorKind from err if it is (or wraps) an
// *Error, returning ok=false otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
