/*
reporter.go - Ledger event reporter

PURPOSE:
  Formats a human-readable description of every committed mutation and
  forwards it to the history log. Reporting runs after the unit of work has
  committed; a failing history log is logged and swallowed, never surfaced
  to the caller and never rolled back into the ledger.

SEE ALSO:
  - engine.go: Calls Report after each commit
  - store/sqlite/directory.go: SQLite history log
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EventKind string

const (
	EventHoldingCreated    EventKind = "holding_created"
	EventStockReceived     EventKind = "stock_received"
	EventStockReclassified EventKind = "stock_reclassified"
	EventHoldingRemoved    EventKind = "holding_removed"
	EventTransferInitiated EventKind = "transfer_initiated"
	EventReceiptConfirmed  EventKind = "receipt_confirmed"
	EventTransferCancelled EventKind = "transfer_cancelled"
)

// Event is one reportable mutation.
type Event struct {
	Kind        EventKind
	OwnerID     OwnerID
	OwnerName   string
	HoldingID   HoldingID
	Description string
}

// Reporter forwards events to a HistoryLog.
type Reporter struct {
	history HistoryLog
	logger  *zap.Logger
	now     func() time.Time
}

// NewReporter returns a reporter. A nil history log only logs.
func NewReporter(history HistoryLog, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{history: history, logger: logger, now: time.Now}
}

// Report appends the event to the history log. Best effort.
func (r *Reporter) Report(ctx context.Context, e Event) {
	if r == nil {
		return
	}
	r.logger.Info("ledger event",
		zap.String("kind", string(e.Kind)),
		zap.Int64("owner_id", int64(e.OwnerID)),
		zap.Int64("holding_id", int64(e.HoldingID)),
		zap.String("description", e.Description),
	)
	if r.history == nil {
		return
	}
	entry := HistoryEntry{
		ID:          uuid.NewString(),
		Kind:        e.Kind,
		OwnerID:     e.OwnerID,
		OwnerName:   e.OwnerName,
		HoldingID:   e.HoldingID,
		Description: e.Description,
		At:          r.now().UTC(),
	}
	// The mutation is already committed; a cancelled request must not lose
	// its history line.
	if err := r.history.Append(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Warn("history append failed",
			zap.String("kind", string(e.Kind)),
			zap.Int64("holding_id", int64(e.HoldingID)),
			zap.Error(err),
		)
	}
}

// =============================================================================
// DESCRIPTIONS
// =============================================================================

func describeCreated(h *Holding) string {
	return fmt.Sprintf("%s registered %s %s of %s (%s) at %s",
		h.OwnerName, h.Total(), h.Product.Unit, h.Product.Name, h.Product.Code, h.Location)
}

func describeReceived(h *Holding, c Category, qty decimal.Decimal) string {
	return fmt.Sprintf("%s received %s %s of %s into %s stock",
		h.OwnerName, qty, h.Product.Unit, h.Product.Name, c)
}

func describeReclassified(h *Holding, from, to Category, qty decimal.Decimal) string {
	return fmt.Sprintf("%s moved %s %s of %s from %s to %s",
		h.OwnerName, qty, h.Product.Unit, h.Product.Name, from, to)
}

func describeRemoved(h *Holding) string {
	return fmt.Sprintf("holding %d of %s for %s was removed", h.ID, h.Product.Name, h.OwnerName)
}

func describeTransfer(src, dst *Holding, qty decimal.Decimal) string {
	return fmt.Sprintf("%s transferred %s %s of %s to %s (%s); awaiting confirmation",
		src.OwnerName, qty, src.Product.Unit, src.Product.Name, dst.OwnerName, dst.Location)
}

func describeConfirmed(h *Holding, p *PendingTransfer) string {
	return fmt.Sprintf("%s confirmed transfer %s of %s %s of %s",
		h.OwnerName, p.TransferID, p.Quantity, h.Product.Unit, h.Product.Name)
}

func describeDepleted(h *Holding, p *PendingTransfer) string {
	return fmt.Sprintf("%s confirmed transfer %s; %s is depleted and the holding was removed",
		h.OwnerName, p.TransferID, h.Product.Name)
}

func describeCancelled(h *Holding, p *PendingTransfer) string {
	return fmt.Sprintf("%s cancelled transfer %s; %s restored to %s %s",
		h.OwnerName, p.TransferID, h.Product.Name, h.Total(), h.Product.Unit)
}
