package ledger

import "errors"

var (
	// ErrInvalidReference is returned for an empty payment reference.
	ErrInvalidReference = errors.New("ledger: payment reference is required")

	// ErrPaymentUnconfirmed is returned when the provider does not report the
	// payment as paid. The state is unchanged.
	ErrPaymentUnconfirmed = errors.New("ledger: payment not confirmed")

	// ErrVerificationFailed wraps a verifier error or timeout. Nothing is
	// granted.
	ErrVerificationFailed = errors.New("ledger: payment verification failed")
)
