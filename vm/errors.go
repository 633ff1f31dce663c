package vm

import "github.com/pkg/errors"

// Error kinds the core produces, per spec.md §7. None are retriable; all
// are surfaced as (kind, context) to the caller, which owns recovery.
var (
	ErrOutOfBounds    = errors.New("out of bounds")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidOperand = errors.New("invalid operand")
	ErrInvalidNumber  = errors.New("invalid number")
	ErrInvalidEscape  = errors.New("invalid escape sequence")
	ErrNoMatch        = errors.New("no match")
	ErrMissingLabel   = errors.New("missing label")
	ErrRuntimeError   = errors.New("runtime error")
	ErrIO             = errors.New("io error")
)

// wrapf attaches additional context to one of the sentinel kinds above
// without losing the sentinel's identity under errors.Is/Cause.
func wrapf(kind error, format string, args ...interface{}) error {
	return errors.Wrapf(kind, format, args...)
}
