// Package apperr defines the typed errors business logic raises and the
// stable codes the HTTP layer maps them to.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code
type Code string

const (
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeInvalidID             Code = "INVALID_ID"
	CodeDuplicate             Code = "DUPLICATE"
	CodeAuthRequired          Code = "AUTH_REQUIRED"
	CodePermissionDenied      Code = "PERMISSION_DENIED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeApp                   Code = "APP_ERROR"
	CodeInternal              Code = "INTERNAL_ERROR"
	CodeDateRestricted        Code = "DATE_RESTRICTED"
	CodeDuplicateSuspected    Code = "DUPLICATE_SUSPECTED"
	CodeCategoryLimitExceeded Code = "CATEGORY_LIMIT_EXCEEDED"
	CodeCashLimitExceeded     Code = "CASH_LIMIT_EXCEEDED"
	CodeAlreadyDecided        Code = "ALREADY_DECIDED"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"
)

// IsPolicyViolation returns true for client-correctable submission rejections
func (c Code) IsPolicyViolation() bool {
	switch c {
	case CodeDateRestricted, CodeDuplicateSuspected, CodeCategoryLimitExceeded, CodeCashLimitExceeded:
		return true
	default:
		return false
	}
}

// Error is a typed business error
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so sentinels like
// ErrNotFound work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates an error with a code and message
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Sentinels for errors.Is comparisons
var (
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrPermissionDenied  = &Error{Code: CodePermissionDenied}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrAlreadyDecided    = &Error{Code: CodeAlreadyDecided}
	ErrValidation        = &Error{Code: CodeValidation}
	ErrAuthRequired      = &Error{Code: CodeAuthRequired}
)

func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, format, args...)
}

func PermissionDenied(format string, args ...interface{}) *Error {
	return New(CodePermissionDenied, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return New(CodeValidation, format, args...)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return New(CodeInvalidTransition, format, args...)
}

func AlreadyDecided(format string, args ...interface{}) *Error {
	return New(CodeAlreadyDecided, format, args...)
}
