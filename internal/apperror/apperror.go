// Package apperror defines the error kinds shared by every layer of the
// reorder service. Kinds survive fmt.Errorf wrapping and are matched with
// errors.Is against the exported sentinels.
package apperror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindBusy
	KindInvalidTransition
	KindTransport
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindBusy:
		return "busy"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindTransport:
		return "transport"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error carries a Kind plus an optional message and cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Kind.String() + ": " + e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches bare sentinels by kind, so errors.Is(err, ErrBusy) holds for
// any busy error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrBusy              = &Error{Kind: KindBusy}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrTransport         = &Error{Kind: KindTransport}
	ErrStorage           = &Error{Kind: KindStorage}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...any) error {
	return &Error{Kind: KindInvalidTransition, Msg: fmt.Sprintf(format, args...)}
}

func Busy(msg string, err error) error {
	return &Error{Kind: KindBusy, Msg: msg, Err: err}
}

func Transport(msg string, err error) error {
	return &Error{Kind: KindTransport, Msg: msg, Err: err}
}

// Storage wraps a persistence failure. Errors that already carry a kind are
// returned unchanged so a NotFound or Busy raised below is not masked.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStorage, Msg: op, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}
