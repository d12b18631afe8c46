package observability

import (
	"context"
	"usagemeter/internal/ledger"
	"usagemeter/internal/quota"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QuotaMetrics counts quota verdicts by outcome.
type QuotaMetrics struct {
	checks metric.Int64Counter
}

var _ quota.Observer = (*QuotaMetrics)(nil)

func NewQuotaMetrics() (*QuotaMetrics, error) {
	checks, err := otel.Meter("usagemeter/quota").Int64Counter(
		"quota.checks",
		metric.WithDescription("Quota checks by outcome (allowed, denied, fail_open)"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}
	return &QuotaMetrics{checks: checks}, nil
}

func (m *QuotaMetrics) ObserveCheck(ctx context.Context, outcome string) {
	m.checks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// LedgerMetrics counts grant attempts by outcome and the credits granted.
type LedgerMetrics struct {
	grants  metric.Int64Counter
	credits metric.Int64Counter
}

var _ ledger.Observer = (*LedgerMetrics)(nil)

func NewLedgerMetrics() (*LedgerMetrics, error) {
	meter := otel.Meter("usagemeter/ledger")

	grants, err := meter.Int64Counter(
		"ledger.grants",
		metric.WithDescription("Credit grant attempts by outcome"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, err
	}

	credits, err := meter.Int64Counter(
		"ledger.credits.granted",
		metric.WithDescription("Credits added to client ledgers"),
		metric.WithUnit("{credit}"),
	)
	if err != nil {
		return nil, err
	}

	return &LedgerMetrics{grants: grants, credits: credits}, nil
}

func (m *LedgerMetrics) ObserveGrant(ctx context.Context, outcome string, amount int64) {
	m.grants.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if amount > 0 {
		m.credits.Add(ctx, amount)
	}
}
