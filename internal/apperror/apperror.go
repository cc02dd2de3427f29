package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable, caller-facing identifier of a failure class.
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeConflict        Code = "CONFLICT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeAuthorization   Code = "FORBIDDEN"
	CodeNotApproved     Code = "NOT_APPROVED"
	CodeExpiredApproval Code = "APPROVAL_EXPIRED"
	CodeInvalidProof    Code = "INVALID_PROOF"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeDownstream      Code = "DOWNSTREAM_ERROR"
	CodeInternal        Code = "INTERNAL_ERROR"
)

type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code so callers can write
// errors.Is(err, apperror.NotFound("")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Validation(message string) *Error {
	return New(CodeValidation, message)
}

func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

func InvalidState(message string) *Error {
	return New(CodeInvalidState, message)
}

func Unauthenticated(message string) *Error {
	return New(CodeUnauthenticated, message)
}

func Authorization(message string) *Error {
	return New(CodeAuthorization, message)
}

func NotApproved(message string) *Error {
	return New(CodeNotApproved, message)
}

func ExpiredApproval(message string) *Error {
	return New(CodeExpiredApproval, message)
}

func InvalidProof(message string) *Error {
	return New(CodeInvalidProof, message)
}

func Downstream(message string, cause error) *Error {
	return Wrap(CodeDownstream, message, cause)
}

// CodeOf returns the code carried by err, or CodeInternal for anything that
// is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the human-readable message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a code onto the status a transport should answer with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidState, CodeNotApproved, CodeExpiredApproval, CodeInvalidProof:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeDownstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
