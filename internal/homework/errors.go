package homework

import (
	"errors"
	"fmt"
)

// Kind classifies a failed poll cycle.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindHTTPStatus
	KindDecode
	KindRemote
	KindUnknownStatus
	KindValidation
	KindNotify
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTPStatus:
		return "http_status"
	case KindDecode:
		return "decode"
	case KindRemote:
		return "remote"
	case KindUnknownStatus:
		return "unknown_status"
	case KindValidation:
		return "validation"
	case KindNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// Error carries the kind of failure and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
