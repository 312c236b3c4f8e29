package core

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every error returned by an orchestrator operation unwraps to
// exactly one of these so transports can map it without string matching.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidScore        = errors.New("invalid score")
	ErrUnsupportedTool     = errors.New("unsupported tool")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrTimeout             = errors.New("timeout")
	ErrInvalidArgument     = errors.New("invalid argument")
)

var kinds = []error{
	ErrNotFound,
	ErrInvalidState,
	ErrInvalidScore,
	ErrUnsupportedTool,
	ErrUpstreamUnavailable,
	ErrTimeout,
	ErrInvalidArgument,
}

// Error annotates a kind with the failing operation and an optional cause.
// errors.Is matches both the kind and anything in the cause chain.
type Error struct {
	Op   string // Operation name, e.g. "engine.RecordScore"
	Kind error  // One of the Err* kinds above
	Err  error  // Underlying cause (optional)
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// E builds an *Error. cause may be nil.
func E(op string, kind, cause error) error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind an error belongs to. Context deadline expiry maps
// to ErrTimeout; anything unclassified is treated as an upstream failure.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrUpstreamUnavailable
}
