package observability

import (
	"context"
	"errors"
	"testing"
	"usagemeter/internal/ledger"
	"usagemeter/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingVerifier struct{}

func (failingVerifier) Verify(context.Context, string) (payment.Confirmation, error) {
	return payment.Confirmation{}, errors.New("stripe: 500")
}

func TestInstrumentedVerifier(t *testing.T) {
	registry := setupTestMeter(t)

	inner := payment.NewMemoryVerifier(payment.Confirmation{
		Reference: "pay_1", Status: payment.StatusPaid, CreditAmount: 100,
	})
	v, err := NewInstrumentedVerifier(inner)
	require.NoError(t, err)

	conf, err := v.Verify(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.True(t, conf.Paid())

	conf, err = v.Verify(context.Background(), "pay_2")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusUnknown, conf.Status)

	durations := findFamily(t, registry, "payment_verify_duration")
	require.NotNil(t, durations)
	assert.Equal(t, uint64(1), histogramCount(durations, "status", "paid"))
	assert.Equal(t, uint64(1), histogramCount(durations, "status", "unknown"))
	assert.Nil(t, findFamily(t, registry, "payment_verify_errors"))
}

func TestInstrumentedVerifier_Error(t *testing.T) {
	registry := setupTestMeter(t)

	v, err := NewInstrumentedVerifier(failingVerifier{})
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "pay_1")
	assert.Error(t, err)

	assert.Equal(t, float64(1), counterValue(findFamily(t, registry, "payment_verify_errors"), "", ""))
	assert.Equal(t, uint64(1), histogramCount(findFamily(t, registry, "payment_verify_duration"), "status", "error"))
}

func TestLedgerMetrics(t *testing.T) {
	registry := setupTestMeter(t)

	metrics, err := NewLedgerMetrics()
	require.NoError(t, err)

	verifier := payment.NewMemoryVerifier(
		payment.Confirmation{Reference: "pay_1", Status: payment.StatusPaid, CreditAmount: 250},
		payment.Confirmation{Reference: "pay_2", Status: payment.StatusUnpaid},
	)
	l := ledger.New(verifier, ledger.WithObserver(metrics))
	ctx := context.Background()

	g, err := l.GrantIfUnseen(ctx, "pay_1", ledger.Empty())
	require.NoError(t, err)
	_, err = l.GrantIfUnseen(ctx, "pay_1", g.State)
	require.NoError(t, err)
	_, err = l.GrantIfUnseen(ctx, "pay_2", g.State)
	assert.ErrorIs(t, err, ledger.ErrPaymentUnconfirmed)

	grants := findFamily(t, registry, "ledger_grants")
	require.NotNil(t, grants)
	assert.Equal(t, float64(1), counterValue(grants, "outcome", ledger.OutcomeApplied))
	assert.Equal(t, float64(1), counterValue(grants, "outcome", ledger.OutcomeReplayed))
	assert.Equal(t, float64(1), counterValue(grants, "outcome", ledger.OutcomeUnpaid))

	assert.Equal(t, float64(250), counterValue(findFamily(t, registry, "ledger_credits_granted"), "", ""))
}
