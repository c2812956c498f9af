package rest

import "fmt"

// Kind identifies which variant of a Result is populated.
type Kind int

const (
	// KindOK means the payload decoded into the Success type.
	KindOK Kind = iota
	// KindFailure means the payload decoded into the Failure type.
	KindFailure
	// KindError means transport, request construction or decoding failed.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindFailure:
		return "failure"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of a request: a decoded Success value, a decoded
// Failure value, or an error. Exactly one variant is populated.
type Result[S, F any] struct {
	kind    Kind
	value   S
	failure F
	err     error
}

// OK returns a Result holding a Success value.
func OK[S, F any](v S) Result[S, F] {
	return Result[S, F]{kind: KindOK, value: v}
}

// Fail returns a Result holding a structured Failure value.
func Fail[S, F any](f F) Result[S, F] {
	return Result[S, F]{kind: KindFailure, failure: f}
}

// Err returns a Result holding a transport or decoding error.
// A nil error is replaced so that the Error variant always carries one.
func Err[S, F any](err error) Result[S, F] {
	if err == nil {
		err = errNilResultError
	}
	return Result[S, F]{kind: KindError, err: err}
}

// Kind reports which variant is populated.
func (r Result[S, F]) Kind() Kind { return r.kind }

// IsOK reports whether the Success variant is populated.
func (r Result[S, F]) IsOK() bool { return r.kind == KindOK }

// Value returns the Success value and whether it is populated.
func (r Result[S, F]) Value() (S, bool) {
	return r.value, r.kind == KindOK
}

// Failure returns the Failure value and whether it is populated.
func (r Result[S, F]) Failure() (F, bool) {
	return r.failure, r.kind == KindFailure
}

// Err returns the error of the Error variant, or nil.
func (r Result[S, F]) Err() error {
	if r.kind != KindError {
		return nil
	}
	return r.err
}

// Match calls exactly one of the handlers depending on the populated variant.
// Nil handlers are skipped.
func (r Result[S, F]) Match(onOK func(S), onFailure func(F), onError func(error)) {
	switch r.kind {
	case KindOK:
		if onOK != nil {
			onOK(r.value)
		}
	case KindFailure:
		if onFailure != nil {
			onFailure(r.failure)
		}
	default:
		if onError != nil {
			onError(r.err)
		}
	}
}

// Unwrap collapses the Result into the two-state Go convention. A Failure is
// returned as *FailureError[F].
func (r Result[S, F]) Unwrap() (S, error) {
	switch r.kind {
	case KindOK:
		return r.value, nil
	case KindFailure:
		var zero S
		return zero, &FailureError[F]{Failure: r.failure}
	default:
		var zero S
		return zero, r.err
	}
}

// outcomeError returns the value handed to error hooks: the Failure value
// when it is an error, a *FailureError wrapper otherwise, or the Error.
func (r Result[S, F]) outcomeError() error {
	switch r.kind {
	case KindFailure:
		if err, ok := any(r.failure).(error); ok && err != nil {
			return err
		}
		return &FailureError[F]{Failure: r.failure}
	case KindError:
		return r.err
	default:
		return nil
	}
}

func (r Result[S, F]) String() string {
	switch r.kind {
	case KindOK:
		return fmt.Sprintf("ok(%v)", r.value)
	case KindFailure:
		return fmt.Sprintf("failure(%v)", r.failure)
	default:
		return fmt.Sprintf("error(%v)", r.err)
	}
}
