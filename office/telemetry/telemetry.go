// Package telemetry defines the observability collaborators the router and
// adapter emit to. Callers always receive a non-nil implementation; the no-op
// variants keep call sites free of availability checks.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Logger receives one structured event per routing decision or error.
// Metadata has already been redacted by the caller; err may be nil.
type Logger interface {
	Log(message string, metadata map[string]any, category string, err error, userID, deviceID string)
}

// Metrics records one numeric observation with string tags.
type Metrics interface {
	Record(name string, value float64, tags map[string]string)
}

type nopLogger struct{}

func (nopLogger) Log(string, map[string]any, string, error, string, string) {}

type nopMetrics struct{}

func (nopMetrics) Record(string, float64, map[string]string) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

// NopMetrics returns a Metrics that discards everything.
func NopMetrics() Metrics { return nopMetrics{} }

type slogLogger struct{ l *slog.Logger }

// NewSlogLogger adapts an slog.Logger to the Logger collaborator.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

func (s *slogLogger) Log(message string, metadata map[string]any, category string, err error, userID, deviceID string) {
	attrs := make([]any, 0, 8)
	if category != "" {
		attrs = append(attrs, slog.String("category", category))
	}
	if userID != "" {
		attrs = append(attrs, slog.String("userId", userID))
	}
	if deviceID != "" {
		attrs = append(attrs, slog.String("deviceId", deviceID))
	}
	if len(metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", metadata))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
		s.l.Error(message, attrs...)
		return
	}
	s.l.Info(message, attrs...)
}

type otelMetrics struct {
	meter metric.Meter
	mu    sync.Mutex
	hists map[string]metric.Float64Histogram
}

// NewOTelMetrics records observations as OpenTelemetry histograms, one
// instrument per metric name.
func NewOTelMetrics(meter metric.Meter) Metrics {
	return &otelMetrics{meter: meter, hists: map[string]metric.Float64Histogram{}}
}

func (m *otelMetrics) Record(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	hist, ok := m.hists[name]
	if !ok {
		var err error
		hist, err = m.meter.Float64Histogram(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.hists[name] = hist
	}
	m.mu.Unlock()
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	hist.Record(context.Background(), value, metric.WithAttributes(attrs...))
}
