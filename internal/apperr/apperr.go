package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure independent of transport.
type Code string

const (
	CodeValidation     Code = "VALIDATION"
	CodeNotFound       Code = "NOT_FOUND"
	CodeNotAuthorized  Code = "NOT_AUTHORIZED"
	CodeNotEligible    Code = "NOT_ELIGIBLE"
	CodeConflict       Code = "CONFLICT"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeCooldownActive Code = "COOLDOWN_ACTIVE"
	CodeInternal       Code = "INTERNAL"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is lets sentinel errors match wrapped copies carrying a cause.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func Validation(msg string) error     { return New(CodeValidation, msg) }
func NotFound(msg string) error       { return New(CodeNotFound, msg) }
func NotAuthorized(msg string) error  { return New(CodeNotAuthorized, msg) }
func NotEligible(msg string) error    { return New(CodeNotEligible, msg) }
func Conflict(msg string) error       { return New(CodeConflict, msg) }
func RateLimited(msg string) error    { return New(CodeRateLimited, msg) }
func CooldownActive(msg string) error { return New(CodeCooldownActive, msg) }
func Internal(msg string) error       { return New(CodeInternal, msg) }

// CodeOf extracts the classification from any error chain. Unclassified
// errors are treated as internal.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}
