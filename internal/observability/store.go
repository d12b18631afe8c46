package observability

import (
	"context"
	"time"
	"usagemeter/internal/quota"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStore wraps a quota.Backend with OpenTelemetry tracing and
// metrics. Keys are not recorded: they contain client addresses.
type InstrumentedStore struct {
	inner    quota.Backend
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	backend  attribute.KeyValue
}

var _ quota.Backend = (*InstrumentedStore)(nil)

// NewInstrumentedStore creates a store wrapper that records trace spans,
// operation latency histograms, and error counters for every store call.
func NewInstrumentedStore(inner quota.Backend) (*InstrumentedStore, error) {
	tracer := otel.Tracer("usagemeter/quota")
	meter := otel.Meter("usagemeter/quota")

	duration, err := meter.Float64Histogram(
		"quota.store.operation.duration",
		metric.WithDescription("Duration of counter store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"quota.store.failures",
		metric.WithDescription("Number of failed counter store operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
		backend:  attribute.String("backend", inner.Name()),
	}, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "quota.store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("quota.store.operation", operation),
			s.backend,
		),
	)
}

func (s *InstrumentedStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation), s.backend)

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, span := s.startSpan(ctx, "Increment")
	start := time.Now()
	n, err := s.inner.Increment(ctx, key, ttl)
	s.record(ctx, span, "Increment", start, err)
	return n, err
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) (int64, error) {
	ctx, span := s.startSpan(ctx, "Get")
	start := time.Now()
	n, err := s.inner.Get(ctx, key)
	s.record(ctx, span, "Get", start, err)
	return n, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

func (s *InstrumentedStore) Name() string {
	return s.inner.Name()
}
