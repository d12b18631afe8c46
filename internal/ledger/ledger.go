// Package ledger grants credits for confirmed payments exactly once per
// payment reference. The ledger keeps no state of its own: callers pass in
// the client's State and persist the State returned with each Grant.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"usagemeter/internal/payment"
)

// Grant outcomes reported to an Observer.
const (
	OutcomeApplied  = "applied"
	OutcomeReplayed = "replayed"
	OutcomeUnpaid   = "unpaid"
	OutcomeFailed   = "verification_failed"
)

const (
	DefaultCredits       = 10000
	defaultVerifyTimeout = 5 * time.Second
)

// Observer receives the outcome of every grant attempt.
type Observer interface {
	ObserveGrant(ctx context.Context, outcome string, amount int64)
}

// Grant is the result of GrantIfUnseen.
type Grant struct {
	Applied     bool
	AddedAmount int64
	State       State
}

// Ledger applies payment confirmations to client-held states.
type Ledger struct {
	verifier       payment.Verifier
	timeout        time.Duration
	defaultCredits int64
	observer       Observer
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithVerifyTimeout bounds each verifier call (default 5s).
func WithVerifyTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.timeout = d }
}

// WithDefaultCredits sets the grant used when a confirmation carries no
// positive amount.
func WithDefaultCredits(n int64) Option {
	return func(l *Ledger) { l.defaultCredits = n }
}

// WithObserver registers an Observer for grant outcomes.
func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observer = o }
}

// New creates a Ledger that trusts verifier.
func New(verifier payment.Verifier, opts ...Option) *Ledger {
	l := &Ledger{
		verifier:       verifier,
		timeout:        defaultVerifyTimeout,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GrantIfUnseen verifies ref and, if it is paid and not yet in state's replay
// set, adds its credits. A reference already applied returns the state
// unchanged with Applied false and no error.
func (l *Ledger) GrantIfUnseen(ctx context.Context, ref string, state State) (Grant, error) {
	if ref == "" {
		return Grant{State: state}, ErrInvalidReference
	}

	verifyCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	conf, err := l.verifier.Verify(verifyCtx, ref)
	if err != nil {
		slog.Error("Payment verification failed",
			"reference", ref,
			"error", err,
		)
		l.observe(ctx, OutcomeFailed, 0)
		return Grant{State: state}, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	if !conf.Paid() {
		slog.Info("Payment not confirmed, no credits granted",
			"reference", ref,
			"status", conf.Status,
		)
		l.observe(ctx, OutcomeUnpaid, 0)
		return Grant{State: state}, ErrPaymentUnconfirmed
	}

	if state.Seen(ref) {
		slog.Debug("Payment reference already applied", "reference", ref)
		l.observe(ctx, OutcomeReplayed, 0)
		return Grant{State: state}, nil
	}

	amount := conf.CreditAmount
	if amount <= 0 {
		amount = l.defaultCredits
	}

	next := Apply(state, ref, amount)

	slog.Info("Credits granted",
		"reference", ref,
		"amount", amount,
		"total", next.TotalCredits,
	)
	l.observe(ctx, OutcomeApplied, amount)

	return Grant{
		Applied:     true,
		AddedAmount: amount,
		State:       next,
	}, nil
}

func (l *Ledger) observe(ctx context.Context, outcome string, amount int64) {
	if l.observer != nil {
		l.observer.ObserveGrant(ctx, outcome, amount)
	}
}
