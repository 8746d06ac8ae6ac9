package kestrel

import (
	"errors"
	"fmt"

	"github.com/ehrlich-b/kestrel/comms/bbq"
	"github.com/ehrlich-b/kestrel/comms/kchannel"
	"github.com/ehrlich-b/kestrel/internal/heap"
	"github.com/ehrlich-b/kestrel/registry"
)

// Error represents a structured kernel error with context
type Error struct {
	Op    string    // Operation that failed (e.g., "REGISTER", "OPEN_PORT")
	Port  int       // Sermux port (-1 if not applicable)
	Code  ErrorCode // High-level error category
	Msg   string    // Human-readable message
	Inner error     // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" && e.Port >= 0 {
		return fmt.Sprintf("kestrel: %s (op=%s port=%d)", msg, e.Op, e.Port)
	}
	if e.Op != "" {
		return fmt.Sprintf("kestrel: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("kestrel: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches on the error category
func (e *Error) Is(target error) bool {
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeAlreadyRegistered ErrorCode = "already registered"
	ErrCodeRegistryFull      ErrorCode = "registry full"
	ErrCodeServiceNotFound   ErrorCode = "service not found"
	ErrCodeWrongType         ErrorCode = "wrong service type"
	ErrCodeOutOfMemory       ErrorCode = "out of memory"
	ErrCodeClosed            ErrorCode = "closed"
	ErrCodeFull              ErrorCode = "full"
	ErrCodeDuplicateItem     ErrorCode = "duplicate item"
	ErrCodeTimeout           ErrorCode = "timeout"
	ErrCodeInternal          ErrorCode = "internal error"
)

// ErrTimeout is the outcome of an elapsed Timeout.
var ErrTimeout = &Error{Op: "", Port: -1, Code: ErrCodeTimeout, Msg: "deadline elapsed"}

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Port: -1, Code: code, Msg: msg}
}

// NewPortError creates a new sermux-port-scoped error
func NewPortError(op string, port int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Port: port, Code: code, Msg: msg}
}

// WrapError wraps an existing error with kernel context, mapping the
// runtime packages' sentinel errors onto categories.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if ke, ok := inner.(*Error); ok {
		return &Error{
			Op:    op,
			Port:  ke.Port,
			Code:  ke.Code,
			Msg:   ke.Msg,
			Inner: ke.Inner,
		}
	}

	return &Error{
		Op:    op,
		Port:  -1,
		Code:  codeFor(inner),
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// codeFor maps sentinel errors from the runtime packages to categories
func codeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, registry.ErrAlreadyRegistered):
		return ErrCodeAlreadyRegistered
	case errors.Is(err, registry.ErrRegistryFull):
		return ErrCodeRegistryFull
	case errors.Is(err, registry.ErrNotFound):
		return ErrCodeServiceNotFound
	case errors.Is(err, registry.ErrWrongKind):
		return ErrCodeWrongType
	case errors.Is(err, heap.ErrOutOfMemory):
		return ErrCodeOutOfMemory
	case errors.Is(err, kchannel.ErrClosed), errors.Is(err, bbq.ErrClosed):
		return ErrCodeClosed
	case errors.Is(err, kchannel.ErrFull), errors.Is(err, bbq.ErrFull):
		return ErrCodeFull
	default:
		return ErrCodeInternal
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code == code
	}
	return false
}
