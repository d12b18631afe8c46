package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

const defaultCreditsMetadataKey = "credits"

// StripeConfig configures a StripeVerifier.
type StripeConfig struct {
	SecretKey string

	// APIURL overrides the Stripe API base URL. Empty means the public API.
	APIURL string

	// CreditsMetadataKey names the Checkout Session metadata entry that holds
	// the credit amount, written when the session was created.
	CreditsMetadataKey string

	// MaxNetworkRetries overrides the library's retry count when set.
	MaxNetworkRetries *int64
}

// StripeVerifier treats a payment reference as a Stripe Checkout Session ID
// and reports the session's payment status.
type StripeVerifier struct {
	sessions    session.Client
	metadataKey string
}

var _ Verifier = (*StripeVerifier)(nil)

// NewStripeVerifier creates a verifier with its own Stripe backend, so the
// package-level stripe.Key is never touched.
func NewStripeVerifier(cfg StripeConfig) (*StripeVerifier, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	backendCfg := &stripe.BackendConfig{}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
	}
	if cfg.MaxNetworkRetries != nil {
		backendCfg.MaxNetworkRetries = cfg.MaxNetworkRetries
	}

	metadataKey := cfg.CreditsMetadataKey
	if metadataKey == "" {
		metadataKey = defaultCreditsMetadataKey
	}

	return &StripeVerifier{
		sessions: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		metadataKey: metadataKey,
	}, nil
}

// Verify fetches the Checkout Session named by reference.
func (v *StripeVerifier) Verify(ctx context.Context, reference string) (Confirmation, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := v.sessions.Get(reference, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return Confirmation{Reference: reference, Status: StatusUnknown}, nil
		}
		return Confirmation{}, fmt.Errorf("stripe: failed to get checkout session: %w", err)
	}

	return Confirmation{
		Reference:    reference,
		Status:       statusFromSession(sess),
		CreditAmount: v.creditsFromMetadata(sess),
	}, nil
}

func statusFromSession(sess *stripe.CheckoutSession) Status {
	switch sess.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid:
		return StatusPaid
	case stripe.CheckoutSessionPaymentStatusUnpaid:
		return StatusUnpaid
	default:
		return StatusUnknown
	}
}

// creditsFromMetadata returns 0 when the amount is absent or unreadable; the
// ledger then applies its default grant.
func (v *StripeVerifier) creditsFromMetadata(sess *stripe.CheckoutSession) int64 {
	raw, ok := sess.Metadata[v.metadataKey]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		slog.Warn("Ignoring unreadable credit amount in checkout session metadata",
			"session_id", sess.ID,
			"key", v.metadataKey,
			"value", raw,
		)
		return 0
	}
	return n
}
