package feed

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindInvalid         Kind = "invalid"
	KindBusy            Kind = "busy"
	KindBackend         Kind = "backend"
)

var (
	ErrNotSignedIn = errors.New("not signed in")
	ErrEmptyPost   = errors.New("post needs content or media")
	ErrBusy        = errors.New("another post is being created")
)

// OpError is returned by every store operation that fails.
type OpError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" when err is nil or not an OpError.
func KindOf(err error) Kind {
	var op *OpError
	if errors.As(err, &op) {
		return op.Kind
	}
	return ""
}

func opErr(op string, kind Kind, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Err: err}
}
