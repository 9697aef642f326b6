package plugin

import (
	"errors"
	"fmt"
)

// Kind classifies plugin errors.
type Kind int

const (
	KindOther Kind = iota
	KindLoad
	KindInit
	KindRegistration
	KindCompatibility
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindInit:
		return "init"
	case KindRegistration:
		return "registration"
	case KindCompatibility:
		return "compatibility"
	default:
		return "other"
	}
}

func (k Kind) prefix() string {
	switch k {
	case KindLoad:
		return "Plugin load error"
	case KindInit:
		return "Plugin initialization error"
	case KindRegistration:
		return "Plugin registration error"
	case KindCompatibility:
		return "Plugin compatibility error"
	default:
		return "Plugin error"
	}
}

// Error is a classified plugin failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// NewError creates an Error of kind with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error of kind around err.
func WrapError(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Kind.prefix() + ": " + e.Msg
	case e.Msg == "":
		return e.Kind.prefix() + ": " + e.Err.Error()
	default:
		return e.Kind.prefix() + ": " + e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a plugin Error of kind.
func IsKind(err error, kind Kind) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == kind
}
