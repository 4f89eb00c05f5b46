package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on code so callers can use errors.Is against the sentinel values below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus maps the error code to a response status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest, ErrValidation, ErrDiscountRejected, ErrSignatureInvalid:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrConflict, ErrSlotConflict, ErrInvalidTransition, ErrTerminalState:
		return http.StatusConflict
	case ErrDataUnavailable, ErrUpstreamTimeout:
		return http.StatusServiceUnavailable
	case ErrReconciliationAmbiguous:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may simply try again later.
func (e *AppError) Retryable() bool {
	return e.Code == ErrDataUnavailable || e.Code == ErrUpstreamTimeout
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrConflict
)

// Booking domain codes
const (
	ErrValidation ErrorCode = iota + 2000
	ErrDataUnavailable
	ErrPersistence
	ErrSignatureInvalid
	ErrReconciliationAmbiguous
	ErrUpstreamTimeout
	ErrSlotConflict
	ErrDiscountRejected
	ErrInvalidTransition
	ErrTerminalState
)

// Sentinels for errors.Is checks.
var (
	ErrKindNotFound                = &AppError{Code: ErrNotFound}
	ErrKindBadRequest              = &AppError{Code: ErrBadRequest}
	ErrKindUnauthorized            = &AppError{Code: ErrUnauthorized}
	ErrKindForbidden               = &AppError{Code: ErrForbidden}
	ErrKindValidation              = &AppError{Code: ErrValidation}
	ErrKindDataUnavailable         = &AppError{Code: ErrDataUnavailable}
	ErrKindPersistence             = &AppError{Code: ErrPersistence}
	ErrKindSignatureInvalid        = &AppError{Code: ErrSignatureInvalid}
	ErrKindReconciliationAmbiguous = &AppError{Code: ErrReconciliationAmbiguous}
	ErrKindUpstreamTimeout         = &AppError{Code: ErrUpstreamTimeout}
	ErrKindSlotConflict            = &AppError{Code: ErrSlotConflict}
	ErrKindDiscountRejected        = &AppError{Code: ErrDiscountRejected}
	ErrKindInvalidTransition       = &AppError{Code: ErrInvalidTransition}
	ErrKindTerminalState           = &AppError{Code: ErrTerminalState}
	ErrKindConflict                = &AppError{Code: ErrConflict}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewConflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

func NewValidation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Err:     err,
	}
}

func NewDataUnavailable(err error) *AppError {
	return &AppError{
		Code:    ErrDataUnavailable,
		Message: "data temporarily unavailable, please retry",
		Err:     err,
	}
}

func NewPersistence(err error) *AppError {
	return &AppError{
		Code:    ErrPersistence,
		Message: "could not save your changes, please retry",
		Err:     err,
	}
}

func NewSignatureInvalid(err error) *AppError {
	return &AppError{
		Code:    ErrSignatureInvalid,
		Message: "invalid webhook signature",
		Err:     err,
	}
}

func NewReconciliationAmbiguous(message string) *AppError {
	return &AppError{
		Code:    ErrReconciliationAmbiguous,
		Message: message,
	}
}

func NewUpstreamTimeout(upstream string, err error) *AppError {
	return &AppError{
		Code:    ErrUpstreamTimeout,
		Message: fmt.Sprintf("%s is not responding, please retry", upstream),
		Err:     err,
	}
}

func NewSlotConflict(err error) *AppError {
	return &AppError{
		Code:    ErrSlotConflict,
		Message: "this appointment slot is no longer available, please pick another",
		Err:     err,
	}
}

func NewDiscountRejected(code string) *AppError {
	return &AppError{
		Code:    ErrDiscountRejected,
		Message: fmt.Sprintf("discount code %q is not valid", code),
	}
}

func NewInvalidTransition(from, event string) *AppError {
	return &AppError{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("cannot apply %s to a booking in state %s", event, from),
	}
}

func NewTerminalState(status string) *AppError {
	return &AppError{
		Code:    ErrTerminalState,
		Message: fmt.Sprintf("booking is %s and accepts no further changes", status),
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(err error) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: "forbidden",
		Err:     err,
	}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
