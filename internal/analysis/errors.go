package analysis

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies analysis failures.
type Kind string

const (
	// KindMalformedResponse means the oracle output failed schema validation.
	KindMalformedResponse Kind = "malformed_response"
	// KindTimeout means the oracle call exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindTransportFailure means the oracle or cache could not be reached.
	KindTransportFailure Kind = "transport_failure"
	// KindEmptyExtraction means there was nothing to analyze.
	KindEmptyExtraction Kind = "empty_extraction"
	// KindStaleAnalysis means the session changed while the oracle was running.
	KindStaleAnalysis Kind = "stale_analysis"
	// KindInvalidCandidate marks a dropped candidate. It never aborts a call.
	KindInvalidCandidate Kind = "invalid_candidate"
	// KindCanceled means the caller abandoned the call.
	KindCanceled Kind = "canceled"
)

// Error is a typed analysis failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, analysis.ErrTimeout).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is matching by kind.
var (
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrTransportFailure  = &Error{Kind: KindTransportFailure}
	ErrEmptyExtraction   = &Error{Kind: KindEmptyExtraction}
	ErrStaleAnalysis     = &Error{Kind: KindStaleAnalysis}
	ErrInvalidCandidate  = &Error{Kind: KindInvalidCandidate}
	ErrCanceled          = &Error{Kind: KindCanceled}
)

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or "" when err is not an analysis error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// classifyCall maps an oracle or cache failure onto a kind. ctx is the
// caller's context: its cancellation wins over whatever the callee reported.
func classifyCall(ctx context.Context, op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return newError(KindTimeout, op, err)
		}
		return newError(KindCanceled, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(KindCanceled, op, err)
	}
	return newError(KindTransportFailure, op, err)
}
