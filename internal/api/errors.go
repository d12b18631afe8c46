package api

import (
	"errors"
	"fmt"
	"net/http"
	"usagemeter/internal/ledger"
	"usagemeter/internal/models"
)

// APIError is an error with the HTTP status and error code it is reported with.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Error constructors for the errors handlers report

func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewPaymentUnconfirmedError(err error) *APIError {
	return &APIError{
		Code:       models.ErrorCodePaymentUnconfirmed,
		Message:    "Payment not yet confirmed",
		StatusCode: http.StatusPaymentRequired,
		Err:        err,
	}
}

func NewVerificationFailedError(err error) *APIError {
	return &APIError{
		Code:       models.ErrorCodePaymentVerificationFailed,
		Message:    "Payment could not be verified due to a server error",
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

func NewNotImplementedError(message string, err error) *APIError {
	return &APIError{
		Code:       models.ErrorCodeNotImplemented,
		Message:    message,
		StatusCode: http.StatusNotImplemented,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *APIError {
	return &APIError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// grantError maps a ledger error to the error reported to the client.
func grantError(err error) *APIError {
	switch {
	case errors.Is(err, ledger.ErrInvalidReference):
		return NewInvalidRequestError("session_id or ref query parameter is required")
	case errors.Is(err, ledger.ErrPaymentUnconfirmed):
		return NewPaymentUnconfirmedError(err)
	case errors.Is(err, ledger.ErrVerificationFailed):
		return NewVerificationFailedError(err)
	default:
		return NewInternalError("Failed to apply payment", err)
	}
}
