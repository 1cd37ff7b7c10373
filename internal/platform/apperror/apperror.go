package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds of failure. Every AppError unwraps to one of these so callers can
// branch on the category without knowing the exact message.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)

// AppError is an error with a client-facing message and HTTP status. The
// wrapped Err is never shown to clients.
type AppError struct {
	Err        error
	Message    string
	HTTPStatus int
	Problems   []string
}

func (e *AppError) Error() string {
	if e.Err != nil && !isKind(e.Err) {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func isKind(err error) bool {
	switch err {
	case ErrBadRequest, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrInternal:
		return true
	}
	return false
}

func BadRequest(message string) *AppError {
	return &AppError{Err: ErrBadRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Invalid is a 400 listing every violated constraint.
func Invalid(message string, problems []string) *AppError {
	return &AppError{Err: ErrBadRequest, Message: message, HTTPStatus: http.StatusBadRequest, Problems: problems}
}

func Unauthorized(message string) *AppError {
	return &AppError{Err: ErrUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

func Forbidden(message string) *AppError {
	return &AppError{Err: ErrForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

func NotFound(message string) *AppError {
	return &AppError{Err: ErrNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// Conflict is a business-rule rejection. It is reported as a 400 because the
// browser client treats every rejected action the same way.
func Conflict(message string) *AppError {
	return &AppError{Err: ErrConflict, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Internal hides cause behind a generic client message.
func Internal(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrInternal
	} else {
		cause = fmt.Errorf("%w: %w", ErrInternal, cause)
	}
	return &AppError{Err: cause, Message: message, HTTPStatus: http.StatusInternalServerError}
}

// Wrap returns err unchanged when it already is an *AppError, and otherwise
// hides it behind message as an internal error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return Internal(message, err)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// MessageOf returns the client-safe message of err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
