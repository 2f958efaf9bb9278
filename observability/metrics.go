// Package observability holds the OpenTelemetry instruments of the ledger.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LedgerMetrics records engine operations and audit runs. It satisfies
// ledger.OperationRecorder.
type LedgerMetrics struct {
	operations      metric.Int64Counter
	duration        metric.Float64Histogram
	auditRuns       metric.Int64Counter
	auditViolations metric.Int64Counter
	auditChecked    metric.Int64Gauge
}

func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	m := &LedgerMetrics{}

	var err error

	m.operations, err = meter.Int64Counter(
		"ledger_operations_total",
		metric.WithDescription("Total number of ledger operations by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram(
		"ledger_operation_duration_seconds",
		metric.WithDescription("Ledger operation processing time in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.auditRuns, err = meter.Int64Counter(
		"ledger_audit_runs_total",
		metric.WithDescription("Total number of invariant audit runs"),
	)
	if err != nil {
		return nil, err
	}

	m.auditViolations, err = meter.Int64Counter(
		"ledger_audit_violations_total",
		metric.WithDescription("Total number of invariant violations found by audits, by rule"),
	)
	if err != nil {
		return nil, err
	}

	m.auditChecked, err = meter.Int64Gauge(
		"ledger_audit_holdings_checked",
		metric.WithDescription("Holdings checked by the last audit run"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *LedgerMetrics) RecordOperation(ctx context.Context, op string, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordAudit records one audit run. violations maps rule name to count.
func (m *LedgerMetrics) RecordAudit(ctx context.Context, checked int, violations map[string]int, failed bool) {
	m.auditRuns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("failed", failed)))
	if failed {
		return
	}
	m.auditChecked.Record(ctx, int64(checked))
	for rule, n := range violations {
		m.auditViolations.Add(ctx, int64(n), metric.WithAttributes(attribute.String("rule", rule)))
	}
}
