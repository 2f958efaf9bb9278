package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azenco/stock-ledger/ledger"
	"github.com/azenco/stock-ledger/ledger/store"
)

type recordedAudit struct {
	checked    int
	violations map[string]int
	failed     bool
}

type fakeAuditRecorder struct {
	mu   sync.Mutex
	runs []recordedAudit
}

func (f *fakeAuditRecorder) RecordAudit(_ context.Context, checked int, violations map[string]int, failed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, recordedAudit{checked, violations, failed})
}

func (f *fakeAuditRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func TestAuditor_ReportsViolations(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	// GIVEN: One good holding and one written around the engine
	good := &ledger.Holding{OwnerID: 1, Product: ledger.ProductSnapshot{ProductID: 10, UnitPrice: decimal.NewFromInt(5)}, Location: "Baku"}
	good.Deposit(ledger.CategoryNew, decimal.NewFromInt(10))
	require.NoError(t, mem.Create(ctx, good))

	bad := &ledger.Holding{OwnerID: 2, Product: ledger.ProductSnapshot{ProductID: 10, UnitPrice: decimal.NewFromInt(5)}, Location: "Baku"}
	bad.Deposit(ledger.CategoryNew, decimal.NewFromInt(10))
	bad.TotalValue = decimal.NewFromInt(1)
	require.NoError(t, mem.Create(ctx, bad))

	rec := &fakeAuditRecorder{}
	a := NewAuditor(mem, nil, rec)

	// WHEN: Running the audit
	report, err := a.Run(ctx)

	// THEN: The stale value is reported and recorded by rule
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "stale_total_value", report.Violations[0].Rule)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, map[string]int{"stale_total_value": 1}, rec.runs[0].violations)

	last, ok := a.Last()
	require.True(t, ok)
	assert.Equal(t, report.Checked, last.Checked)
}

func TestAuditor_StartRunsImmediatelyAndStops(t *testing.T) {
	rec := &fakeAuditRecorder{}
	a := NewAuditor(store.NewMemory(), nil, rec)
	a.Interval = time.Hour

	a.Start()
	assert.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, 10*time.Millisecond)
	a.Stop()

	// Stop is idempotent.
	a.Stop()
}

func TestAuditor_Disabled(t *testing.T) {
	rec := &fakeAuditRecorder{}
	a := NewAuditor(store.NewMemory(), nil, rec)
	a.Enabled = false

	a.Start()
	a.Stop()
	assert.Equal(t, 0, rec.count())
}
