package storage

import (
	"errors"
	"fmt"
)

// Kind classifies a storage failure. Callers branch on the kind and never on
// driver errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindDuplicate
	KindNoChange
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindDuplicate:
		return "duplicate"
	case KindNoChange:
		return "no_change"
	default:
		return "unknown"
	}
}

var (
	ErrNotFound  = &Error{Kind: KindNotFound}
	ErrDuplicate = &Error{Kind: KindDuplicate}
	ErrNoChange  = &Error{Kind: KindNoChange}
	ErrUnknown   = &Error{Kind: KindUnknown}
)

// Error is the only error type returned by a Collection.
type Error struct {
	Kind       Kind
	Collection string
	Op         string
	Err        error
}

func (e *Error) Error() string {
	if e.Collection == "" {
		return "storage: " + e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("storage: %s %s: %s: %v", e.Collection, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %s", e.Collection, e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of collection or operation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf reports the kind of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
