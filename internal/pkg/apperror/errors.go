package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation             Kind = "VALIDATION_ERROR"
	KindNotFound               Kind = "NOT_FOUND"
	KindStateConflict          Kind = "STATE_CONFLICT"
	KindInsufficientFunds      Kind = "INSUFFICIENT_FUNDS"
	KindExternalExecutor       Kind = "EXTERNAL_EXECUTOR_ERROR"
	KindReconciliationMismatch Kind = "RECONCILIATION_MISMATCH"
	KindInternal               Kind = "INTERNAL_ERROR"
)

// AppError carries a Kind for propagation policy and a stable Code that
// identifies the concrete failure (e.g. INVALID_ESCROW_STATE).
type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any AppError with the same Code, so sentinels still match after
// WithMessage/Wrap produced a fresh value.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

func New(kind Kind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

// WithMessage returns a copy of the sentinel with a more specific message.
func (e *AppError) WithMessage(format string, args ...any) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Cause: e.Cause}
}

// Wrap attaches a cause to a copy of the sentinel.
func (e *AppError) Wrap(cause error) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: e.Message, Cause: cause}
}

func Validation(format string, args ...any) *AppError {
	return New(KindValidation, "VALIDATION", fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *AppError {
	return New(KindNotFound, "NOT_FOUND", fmt.Sprintf(format, args...))
}

func External(cause error, format string, args ...any) *AppError {
	return &AppError{Kind: KindExternalExecutor, Code: "EXTERNAL_EXECUTOR", Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of the first AppError in the chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the caller may retry with the same idempotency key.
func Retryable(err error) bool { return Is(err, KindExternalExecutor) }

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict:
		return http.StatusConflict
	case KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case KindExternalExecutor:
		return http.StatusBadGateway
	case KindReconciliationMismatch:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
