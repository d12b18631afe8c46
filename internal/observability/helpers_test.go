package observability

import (
	"context"
	"strings"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// setupTestMeter installs a meter provider backed by a private registry and
// restores the previous global provider when the test ends.
func setupTestMeter(t *testing.T) *promclient.Registry {
	t.Helper()
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	require.NoError(t, err)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		mp.Shutdown(context.Background())
	})
	return registry
}

// findFamily returns the gathered family whose name starts with prefix.
func findFamily(t *testing.T, registry *promclient.Registry, prefix string) *dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), prefix) {
			return f
		}
	}
	return nil
}

// counterValue sums the counter samples in family whose label name=value.
func counterValue(family *dto.MetricFamily, name, value string) float64 {
	if family == nil {
		return 0
	}
	var total float64
	for _, m := range family.GetMetric() {
		if name == "" || hasLabel(m, name, value) {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// histogramCount sums the sample counts in family whose label name=value.
func histogramCount(family *dto.MetricFamily, name, value string) uint64 {
	if family == nil {
		return 0
	}
	var total uint64
	for _, m := range family.GetMetric() {
		if name == "" || hasLabel(m, name, value) {
			total += m.GetHistogram().GetSampleCount()
		}
	}
	return total
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, l := range m.GetLabel() {
		if l.GetName() == name && l.GetValue() == value {
			return true
		}
	}
	return false
}
