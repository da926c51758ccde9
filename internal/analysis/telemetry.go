package analysis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/taskbot/internal/analysis"

// Metrics provides OpenTelemetry metrics for analyses. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	analysesTotal    metric.Int64Counter
	cacheLookups     metric.Int64Counter
	droppedTotal     metric.Int64Counter
	anomaliesTotal   metric.Int64Counter
	oracleDuration   metric.Float64Histogram
	candidatesPerRun metric.Int64Histogram
}

// NewMetrics creates analysis metrics. If meter is nil, the global meter
// provider is used.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.analysesTotal, err = meter.Int64Counter(
		"taskbot.analysis.total",
		metric.WithDescription("Analyses by outcome"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		return nil, err
	}

	m.cacheLookups, err = meter.Int64Counter(
		"taskbot.analysis.cache.lookups",
		metric.WithDescription("Analysis cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	m.droppedTotal, err = meter.Int64Counter(
		"taskbot.analysis.candidates.dropped",
		metric.WithDescription("Task candidates dropped during validation"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, err
	}

	m.anomaliesTotal, err = meter.Int64Counter(
		"taskbot.analysis.anomalies",
		metric.WithDescription("Oracle fields repaired during validation"),
		metric.WithUnit("{field}"),
	)
	if err != nil {
		return nil, err
	}

	m.oracleDuration, err = meter.Float64Histogram(
		"taskbot.oracle.duration",
		metric.WithDescription("Oracle call duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60),
	)
	if err != nil {
		return nil, err
	}

	m.candidatesPerRun, err = meter.Int64Histogram(
		"taskbot.analysis.candidates",
		metric.WithDescription("Valid task candidates per analysis"),
		metric.WithUnit("{candidate}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 8, 13),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOutcome counts a finished analysis. outcome is a Kind or "ok".
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.analysesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCacheLookup counts a cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordOracleCall records how long an oracle call took.
func (m *Metrics) RecordOracleCall(ctx context.Context, d time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.oracleDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordValidation records candidate counts for one validated response.
func (m *Metrics) RecordValidation(ctx context.Context, kept, dropped, anomalies int) {
	if m == nil {
		return
	}
	m.candidatesPerRun.Record(ctx, int64(kept))
	if dropped > 0 {
		m.droppedTotal.Add(ctx, int64(dropped))
	}
	if anomalies > 0 {
		m.anomaliesTotal.Add(ctx, int64(anomalies))
	}
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if k := KindOf(err); k != "" {
		span.SetAttributes(attribute.String("analysis.error_kind", string(k)))
	}
}
