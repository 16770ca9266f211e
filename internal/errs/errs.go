// Package errs defines the error taxonomy shared by the decision loop.
//
// Symbol and entry level failures are absorbed by the caller; only
// ConfigInvalid and StateCorruption are fatal to the loop.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	DataUnavailable
	ExecutionFailed
	RiskLimitBreached
	ConfigInvalid
	StateCorruption
)

func (k Kind) String() string {
	switch k {
	case DataUnavailable:
		return "data unavailable"
	case ExecutionFailed:
		return "execution failed"
	case RiskLimitBreached:
		return "risk limit breached"
	case ConfigInvalid:
		return "config invalid"
	case StateCorruption:
		return "state corruption"
	default:
		return "unknown"
	}
}

// Error carries a Kind plus the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

var (
	ErrDataUnavailable   = &Error{Kind: DataUnavailable}
	ErrExecutionFailed   = &Error{Kind: ExecutionFailed}
	ErrRiskLimitBreached = &Error{Kind: RiskLimitBreached}
	ErrConfigInvalid     = &Error{Kind: ConfigInvalid}
	ErrStateCorruption   = &Error{Kind: StateCorruption}
)

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrDataUnavailable)
// works regardless of Op or wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E builds an *Error. A nil err is allowed.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef is E with a formatted cause.
func Ef(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsFatal reports whether err must stop the loop.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case ConfigInvalid, StateCorruption:
		return true
	}
	return false
}
