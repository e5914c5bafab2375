package service

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindStore
	KindCache
	KindConflict
	KindUpload
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindStore:
		return "store_failure"
	case KindCache:
		return "cache_failure"
	case KindConflict:
		return "conflict"
	case KindUpload:
		return "upload_failure"
	default:
		return "internal"
	}
}

// Error is the failure variant of every catalog operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf reports the kind of err, KindInternal for anything that is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

const WarningPartialSideEffect = "partial_side_effect_failure"

// Warning is a non-fatal failure reported next to a successful result.
type Warning struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
