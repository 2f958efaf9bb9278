/*
audit.go - Invariant audit over the holding store

PURPOSE:
  Walks every holding and reports the ones that break a ledger invariant.
  The engine never writes such a holding; the audit exists to catch data
  written around it (manual SQL, a bad migration, a restored backup).

CHECKS:
  negative_quantity      a category quantity below zero
  stale_total_value      TotalValue != Total() * UnitPrice
  pending_without_snapshot / snapshot_without_pending
  short_location         location shorter than 3 characters

SEE ALSO:
  - api/auditor.go: Runs Audit on a ticker
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

type Violation struct {
	HoldingID HoldingID
	Rule      string
	Detail    string
}

type AuditReport struct {
	Checked    int
	Violations []Violation
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r AuditReport) Clean() bool { return len(r.Violations) == 0 }

// CheckHolding returns the invariant violations of a single holding.
func CheckHolding(h *Holding) []Violation {
	var out []Violation
	for _, c := range Categories {
		if q := h.Quantities.Get(c); q.IsNegative() {
			out = append(out, Violation{HoldingID: h.ID, Rule: "negative_quantity", Detail: fmt.Sprintf("%s quantity is %s", c, q)})
		}
	}
	if want := h.Total().Mul(h.Product.UnitPrice); !h.TotalValue.Equal(want) {
		out = append(out, Violation{HoldingID: h.ID, Rule: "stale_total_value", Detail: fmt.Sprintf("total value %s, expected %s", h.TotalValue, want)})
	}
	if h.TotalValue.IsNegative() {
		out = append(out, Violation{HoldingID: h.ID, Rule: "negative_total_value", Detail: h.TotalValue.String()})
	}
	switch {
	case h.Pending != nil && h.Snapshot == nil:
		out = append(out, Violation{HoldingID: h.ID, Rule: "pending_without_snapshot"})
	case h.Pending == nil && h.Snapshot != nil:
		out = append(out, Violation{HoldingID: h.ID, Rule: "snapshot_without_pending"})
	}
	if ValidateLocation(h.Location) != nil {
		out = append(out, Violation{HoldingID: h.ID, Rule: "short_location", Detail: h.Location})
	}
	return out
}

// Audit pages through the whole store.
func Audit(ctx context.Context, store HoldingStore, now func() time.Time) (AuditReport, error) {
	if now == nil {
		now = time.Now
	}
	report := AuditReport{StartedAt: now()}
	for offset := 0; ; offset += MaxPageSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		page, err := store.List(ctx, ListQuery{Limit: MaxPageSize, Offset: offset})
		if err != nil {
			return report, Transient("audit holdings", err)
		}
		for i := range page.Items {
			report.Checked++
			report.Violations = append(report.Violations, CheckHolding(&page.Items[i])...)
		}
		if len(page.Items) < MaxPageSize {
			break
		}
	}
	report.FinishedAt = now()
	return report, nil
}
