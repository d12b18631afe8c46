// Package payment verifies payment references with the payment provider
// before any credits are granted. The provider is trusted completely: a
// confirmation it reports as paid is never second-guessed.
package payment

import (
	"context"
	"fmt"
)

// Status is the provider's view of a payment.
type Status string

const (
	StatusPaid    Status = "paid"
	StatusUnpaid  Status = "unpaid"
	StatusUnknown Status = "unknown"
)

// ParseStatus converts a configured status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPaid, StatusUnpaid, StatusUnknown:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown payment status %q", s)
	}
}

// Confirmation is the result of verifying one payment reference.
type Confirmation struct {
	Reference    string
	Status       Status
	CreditAmount int64
}

// Paid reports whether the payment completed.
func (c Confirmation) Paid() bool {
	return c.Status == StatusPaid
}

// Verifier looks up a payment reference with the provider.
type Verifier interface {
	// Verify returns the provider's confirmation for reference. An unknown
	// reference is a Confirmation with StatusUnknown, not an error; errors are
	// reserved for failures to reach or understand the provider.
	Verify(ctx context.Context, reference string) (Confirmation, error)
}
