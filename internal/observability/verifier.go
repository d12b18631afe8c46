package observability

import (
	"context"
	"time"
	"usagemeter/internal/payment"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedVerifier wraps a payment.Verifier with a span, a latency
// histogram labelled by status, and an error counter.
type InstrumentedVerifier struct {
	inner    payment.Verifier
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ payment.Verifier = (*InstrumentedVerifier)(nil)

func NewInstrumentedVerifier(inner payment.Verifier) (*InstrumentedVerifier, error) {
	meter := otel.Meter("usagemeter/payment")

	duration, err := meter.Float64Histogram(
		"payment.verify.duration",
		metric.WithDescription("Duration of payment verification calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"payment.verify.errors",
		metric.WithDescription("Number of payment verification calls that failed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedVerifier{
		inner:    inner,
		tracer:   otel.Tracer("usagemeter/payment"),
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (v *InstrumentedVerifier) Verify(ctx context.Context, reference string) (payment.Confirmation, error) {
	ctx, span := v.tracer.Start(ctx, "payment.Verify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("payment.reference", reference)),
	)
	defer span.End()

	start := time.Now()
	conf, err := v.inner.Verify(ctx, reference)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		v.duration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("status", "error")))
		v.errors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return conf, err
	}

	v.duration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("status", string(conf.Status))))
	span.SetAttributes(attribute.String("payment.status", string(conf.Status)))
	span.SetStatus(codes.Ok, "")
	return conf, nil
}
