/*
auditor.go - Periodic invariant audit

PURPOSE:
  Periodically walks every holding and reports the ones that break a
  ledger invariant (negative quantity, stale total value, pending without
  snapshot). Violations are logged and counted; nothing is repaired.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Runs once immediately on start
  - Keeps the last report for GET /api/audit callers that do not want to
    wait for a fresh walk

CONFIGURATION:
  - Interval: How often to check (AUDIT_INTERVAL, default 5m)
  - Enabled:  Whether the ticker runs at all (AUDIT_ENABLED)

USAGE:
  auditor := NewAuditor(store, logger, metrics)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - ledger/audit.go: The checks
  - handlers.go: RunAudit endpoint (manual run)
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/azenco/stock-ledger/ledger"
)

// AuditRecorder receives the outcome of every audit run.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, checked int, violations map[string]int, failed bool)
}

// Auditor runs ledger.Audit on a ticker.
type Auditor struct {
	Store    ledger.HoldingStore
	Interval time.Duration
	Enabled  bool
	Timeout  time.Duration

	logger  *zap.Logger
	metrics AuditRecorder
	now     func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu sync.Mutex
	last   *ledger.AuditReport
}

// NewAuditor creates an auditor. metrics may be nil.
func NewAuditor(store ledger.HoldingStore, logger *zap.Logger, metrics AuditRecorder) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		Store:    store,
		Interval: 5 * time.Minute,
		Enabled:  true,
		Timeout:  time.Minute,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Start begins the periodic audit.
func (a *Auditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Enabled {
		a.logger.Info("auditor disabled, not starting")
		return
	}
	if a.ticker != nil {
		return
	}

	a.ticker = time.NewTicker(a.Interval)
	a.stop = make(chan struct{})
	a.wg.Add(1)

	go a.run()

	a.logger.Info("auditor started", zap.Duration("interval", a.Interval))
}

// Stop stops the periodic audit and waits for a running check to finish.
func (a *Auditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker == nil {
		return
	}
	a.ticker.Stop()
	close(a.stop)
	a.wg.Wait()
	a.ticker = nil
	a.logger.Info("auditor stopped")
}

func (a *Auditor) run() {
	defer a.wg.Done()

	a.check()

	for {
		select {
		case <-a.ticker.C:
			a.check()
		case <-a.stop:
			return
		}
	}
}

func (a *Auditor) check() {
	ctx, cancel := context.WithTimeout(context.Background(), a.Timeout)
	defer cancel()
	// Errors are already logged and counted by Run.
	_, _ = a.Run(ctx)
}

// Run audits the store now.
func (a *Auditor) Run(ctx context.Context) (ledger.AuditReport, error) {
	report, err := ledger.Audit(ctx, a.Store, a.now)
	if err != nil {
		a.logger.Error("audit failed", zap.Error(err))
		if a.metrics != nil {
			a.metrics.RecordAudit(ctx, report.Checked, nil, true)
		}
		return report, err
	}

	byRule := make(map[string]int)
	for _, v := range report.Violations {
		byRule[v.Rule]++
		a.logger.Warn("invariant violation",
			zap.Int64("holding_id", int64(v.HoldingID)),
			zap.String("rule", v.Rule),
			zap.String("detail", v.Detail),
		)
	}
	if a.metrics != nil {
		a.metrics.RecordAudit(ctx, report.Checked, byRule, false)
	}
	a.logger.Info("audit finished",
		zap.Int("checked", report.Checked),
		zap.Int("violations", len(report.Violations)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)

	a.lastMu.Lock()
	a.last = &report
	a.lastMu.Unlock()
	return report, nil
}

// Last returns the most recent successful report, if any.
func (a *Auditor) Last() (ledger.AuditReport, bool) {
	a.lastMu.Lock()
	defer a.lastMu.Unlock()
	if a.last == nil {
		return ledger.AuditReport{}, false
	}
	return *a.last, true
}
