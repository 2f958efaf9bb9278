/*
engine.go - Transfer engine: the holding state machine

PURPOSE:
  Moves stock between holdings and drives each source holding through
  Idle -> Pending -> Confirmed | Cancelled | Depleted. Also owns the plain
  mutations (create, receive, reclassify, remove) so that no holding is ever
  changed outside this file.

STATE MACHINE (per source holding):

    Idle --initiate--> Pending --confirm--> Idle (or Depleted: deleted)
                          |
                          +----cancel-----> Idle (snapshot restored)

UNIT OF WORK:
  Every operation runs inside TxStore.WithTx. Holdings touched by a
  transfer are locked in ascending id order, re-read under the lock, then
  mutated and saved. Any error rolls the whole unit back, so a failed
  initiate never leaves the source pending.

PENDING RULES:
  - A pending holding cannot be the source or the destination of another
    transfer, and cannot be received into, reclassified or removed. Its
    snapshot must stay an exact copy of its pre-transfer state.
  - Cancel restores the source from its snapshot and takes the transferred
    quantity back out of the destination. A destination created by the
    transfer and left empty is deleted.
  - Confirm clears the pending state. A source left with no stock is
    deleted.

IDEMPOTENCY:
  InitiateTransfer accepts a client key. The key is claimed with SetNX
  before the unit of work and replaced by the transfer outcome after
  commit; a retry with the same key gets the recorded outcome back instead
  of moving stock twice.

SEE ALSO:
  - types.go: Holding mutations (Deposit, Withdraw, beginPending, restore)
  - quantity.go: Validation
  - reporter.go: Event descriptions
*/
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferState is the lifecycle state reported back to callers.
type TransferState string

const (
	StateIdle      TransferState = "idle"
	StatePending   TransferState = "pending"
	StateConfirmed TransferState = "confirmed"
	StateCancelled TransferState = "cancelled"
	StateDepleted  TransferState = "depleted"
)

// OperationRecorder receives the outcome of every engine operation.
type OperationRecorder interface {
	RecordOperation(ctx context.Context, op string, outcome string, elapsed time.Duration)
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store     TxStore
	validator *Validator
	directory UserDirectory
	catalog   ProductCatalog
	reporter  *Reporter
	idem      IdempotencyStore
	idemTTL   time.Duration
	metrics   OperationRecorder
	logger    *zap.Logger
	now       func() time.Time
}

type EngineOption func(*Engine)

func WithReporter(r *Reporter) EngineOption { return func(e *Engine) { e.reporter = r } }

func WithLogger(l *zap.Logger) EngineOption { return func(e *Engine) { e.logger = l } }

func WithMetrics(m OperationRecorder) EngineOption { return func(e *Engine) { e.metrics = m } }

func WithClock(now func() time.Time) EngineOption { return func(e *Engine) { e.now = now } }

// WithIdempotency enables client idempotency keys on InitiateTransfer.
func WithIdempotency(s IdempotencyStore, ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.idem = s
		e.idemTTL = ttl
	}
}

// NewEngine wires the engine. Store, validator, directory and catalog are
// required.
func NewEngine(store TxStore, validator *Validator, directory UserDirectory, catalog ProductCatalog, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		validator: validator,
		directory: directory,
		catalog:   catalog,
		idemTTL:   24 * time.Hour,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) observe(ctx context.Context, op string, start time.Time, err error) {
	kind := KindOf(err)
	if e.metrics != nil {
		e.metrics.RecordOperation(ctx, op, string(kind), e.now().Sub(start))
	}
	switch kind {
	case KindOK:
		e.logger.Debug("operation succeeded", zap.String("op", op))
	case KindTransient:
		e.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
	default:
		e.logger.Info("operation rejected", zap.String("op", op), zap.String("kind", string(kind)), zap.Error(err))
	}
}

// =============================================================================
// CREATE / RECEIVE / RECLASSIFY / REMOVE
// =============================================================================

type CreateHoldingInput struct {
	OwnerID   OwnerID
	ProductID ProductID
	Location  string
	Category  Category
	Quantity  decimal.Decimal
}

// CreateHolding registers a new holding from a receiving event.
func (e *Engine) CreateHolding(ctx context.Context, in CreateHoldingInput) (h *Holding, err error) {
	start := e.now()
	defer func() { e.observe(ctx, "create_holding", start, err) }()

	if err := ValidateLocation(in.Location); err != nil {
		return nil, err
	}
	cat, err := ParseCategory(string(in.Category))
	if err != nil {
		return nil, err
	}
	owner, err := e.directory.GetOwner(ctx, in.OwnerID)
	if err != nil {
		return nil, Transient("resolve owner", err)
	}
	product, err := e.catalog.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, Transient("resolve product", err)
	}
	if err := e.validator.Validate(product.Unit, in.Quantity); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	h = &Holding{
		OwnerID:   owner.ID,
		OwnerName: owner.Name,
		Product:   product,
		Location:  strings.TrimSpace(in.Location),
		CreatedAt: now,
		UpdatedAt: now,
	}
	h.Deposit(cat, in.Quantity)

	err = e.store.WithTx(ctx, func(tx TxHoldingStore) error {
		_, err := tx.GetByOwnerAndProduct(ctx, owner.ID, product.ProductID)
		switch {
		case err == nil:
			return ErrDuplicateHolding
		case !errors.Is(err, ErrHoldingNotFound):
			return err
		}
		return tx.Create(ctx, h)
	})
	if err != nil {
		return nil, Transient("create holding", err)
	}

	e.reporter.Report(ctx, Event{
		Kind: EventHoldingCreated, OwnerID: h.OwnerID, OwnerName: h.OwnerName,
		HoldingID: h.ID, Description: describeCreated(h),
	})
	return h, nil
}

type ReceiveInput struct {
	HoldingID HoldingID
	Category  Category
	Quantity  decimal.Decimal
}

// ReceiveStock adds incoming stock to an existing idle holding.
func (e *Engine) ReceiveStock(ctx context.Context, in ReceiveInput) (h *Holding, err error) {
	start := e.now()
	defer func() { e.observe(ctx, "receive_stock", start, err) }()

	cat, err := ParseCategory(string(in.Category))
	if err != nil {
		return nil, err
	}
	err = e.store.WithTx(ctx, func(tx TxHoldingStore) error {
		var err error
		if h, err = e.lockOne(ctx, tx, in.HoldingID); err != nil {
			return err
		}
		if h.IsPending() {
			return ErrHoldingPending
		}
		if err := e.validator.Validate(h.Product.Unit, in.Quantity); err != nil {
			return err
		}
		h.Deposit(cat, in.Quantity)
		h.UpdatedAt = e.now().UTC()
		return tx.Save(ctx, h)
	})
	if err != nil {
		return nil, Transient("receive stock", err)
	}

	e.reporter.Report(ctx, Event{
		Kind: EventStockReceived, OwnerID: h.OwnerID, OwnerName: h.OwnerName,
		HoldingID: h.ID, Description: describeReceived(h, cat, in.Quantity),
	})
	return h, nil
}

type ReclassifyInput struct {
	HoldingID HoldingID
	From      Category
	To        Category
	Quantity  decimal.Decimal
}

// Reclassify moves stock between categories of one holding, for example
// when new stock is found broken. Total quantity and value are unchanged.
func (e *Engine) Reclassify(ctx context.Context, in ReclassifyInput) (h *Holding, err error) {
	start := e.now()
	defer func() { e.observe(ctx, "reclassify", start, err) }()

	from, err := ParseCategory(string(in.From))
	if err != nil {
		return nil, err
	}
	to, err := ParseCategory(string(in.To))
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, &ValidationError{Field: "category", Reason: "source and target category are the same"}
	}

	err = e.store.WithTx(ctx, func(tx TxHoldingStore) error {
		var err error
		if h, err = e.lockOne(ctx, tx, in.HoldingID); err != nil {
			return err
		}
		if h.IsPending() {
			return ErrHoldingPending
		}
		if err := e.validator.Validate(h.Product.Unit, in.Quantity); err != nil {
			return err
		}
		if err := h.Withdraw(from, in.Quantity); err != nil {
			return err
		}
		h.Deposit(to, in.Quantity)
		h.UpdatedAt = e.now().UTC()
		return tx.Save(ctx, h)
	})
	if err != nil {
		return nil, Transient("reclassify", err)
	}

	e.reporter.Report(ctx, Event{
		Kind: EventStockReclassified, OwnerID: h.OwnerID, OwnerName: h.OwnerName,
		HoldingID: h.ID, Description: describeReclassified(h, from, to, in.Quantity),
	})
	return h, nil
}

// RemoveHolding deletes an idle holding. A non-zero requestedBy must be the
// holding's owner.
func (e *Engine) RemoveHolding(ctx context.Context, id HoldingID, requestedBy OwnerID) (err error) {
	start := e.now()
	defer func() { e.observe(ctx, "remove_holding", start, err) }()

	var h *Holding
	err = e.store.WithTx(ctx, func(tx TxHoldingStore) error {
		var err error
		if h, err = e.lockOne(ctx, tx, id); err != nil {
			return err
		}
		if requestedBy != 0 && requestedBy != h.OwnerID {
			return &ForbiddenError{HoldingID: id, Reason: "only the owner may remove the holding"}
		}
		if h.IsPending() {
			return ErrHoldingPending
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return Transient("remove holding", err)
	}

	e.reporter.Report(ctx, Event{
		Kind: EventHoldingRemoved, OwnerID: h.OwnerID, OwnerName: h.OwnerName,
		HoldingID: h.ID, Description: describeRemoved(h),
	})
	return nil
}

func (e *Engine) lockOne(ctx context.Context, tx TxHoldingStore, id HoldingID) (*Holding, error) {
	if err := tx.Lock(ctx, id); err != nil {
		return nil, err
	}
	return tx.Get(ctx, id)
}

// =============================================================================
// INITIATE TRANSFER
// =============================================================================

// TransferResult is the outcome of InitiateTransfer.
type TransferResult struct {
	TransferID  TransferID
	Source      *Holding
	Destination *Holding
	Message     string
	// Replayed is set when the result was recorded by an earlier call with
	// the same idempotency key.
	Replayed bool
}

type idempotencyRecord struct {
	TransferID    TransferID `json:"transferId"`
	SourceID      HoldingID  `json:"sourceId"`
	DestinationID HoldingID  `json:"destinationId"`
}

const (
	idempotencyProcessing     = "processing"
	idempotencyRecordAttempts = 3
	idempotencyRecordBackoff  = 50 * time.Millisecond
)

// InitiateTransfer moves t.Quantity from the source holding to the
// destination owner's holding of the same product and leaves the source
// pending until it is confirmed or cancelled.
func (e *Engine) InitiateTransfer(ctx context.Context, t Transfer) (res *TransferResult, err error) {
	start := e.now()
	defer func() { e.observe(ctx, "initiate_transfer", start, err) }()

	cat, err := ParseCategory(string(t.Category))
	if err != nil {
		return nil, err
	}
	if t.Quantity.Sign() <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}

	if t.IdempotencyKey != "" && e.idem != nil {
		claimed, replay, claimErr := e.claimKey(ctx, t.IdempotencyKey)
		if claimErr != nil {
			return nil, claimErr
		}
		if replay != nil {
			return replay, nil
		}
		if claimed {
			defer func() {
				if err != nil {
					_ = e.idem.Del(context.WithoutCancel(ctx), t.IdempotencyKey)
				}
			}()
		}
	}

	dstOwner, err := e.directory.GetOwner(ctx, t.DestinationOwnerID)
	if err != nil {
		return nil, Transient("resolve destination owner", err)
	}
	if t.DestinationOwnerName != "" && t.DestinationOwnerName != dstOwner.Name {
		return nil, &ValidationError{Field: "destinationOwnerName", Reason: "does not match the destination owner"}
	}

	var src, dst *Holding
	transferID := NewTransferID()

	err = e.store.WithTx(ctx, func(tx TxHoldingStore) error {
		var err error
		if src, err = tx.Get(ctx, t.SourceHoldingID); err != nil {
			return err
		}
		if src.OwnerID == dstOwner.ID {
			return &ValidationError{Field: "destinationOwnerId", Reason: "source and destination owner are the same"}
		}

		dst, err = tx.GetByOwnerAndProduct(ctx, dstOwner.ID, src.Product.ProductID)
		if err != nil && !errors.Is(err, ErrHoldingNotFound) {
			return err
		}

		ids := []HoldingID{src.ID}
		if dst != nil {
			ids = append(ids, dst.ID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if err := tx.Lock(ctx, ids...); err != nil {
			return err
		}

		// Re-read under the lock.
		if src, err = tx.Get(ctx, src.ID); err != nil {
			return err
		}
		if dst != nil {
			if dst, err = tx.Get(ctx, dst.ID); err != nil && !errors.Is(err, ErrHoldingNotFound) {
				return err
			}
		}

		if src.IsPending() {
			return ErrHoldingPending
		}
		if err := e.validator.Validate(src.Product.Unit, t.Quantity); err != nil {
			return err
		}
		if available := src.Quantities.Get(cat); t.Quantity.GreaterThan(available) {
			return &InsufficientStockError{HoldingID: src.ID, Category: cat, Available: available, Requested: t.Quantity}
		}

		now := e.now().UTC()
		created := false
		if dst == nil {
			location := strings.TrimSpace(t.DestinationLocation)
			if location == "" {
				location = src.Location
			}
			if err := ValidateLocation(location); err != nil {
				return err
			}
			dst = &Holding{
				OwnerID:   dstOwner.ID,
				OwnerName: dstOwner.Name,
				Product:   src.Product,
				Location:  location,
				CreatedAt: now,
				UpdatedAt: now,
			}
			dst.recompute()
			if err := tx.Create(ctx, dst); err != nil {
				return err
			}
			created = true
		} else if dst.IsPending() {
			return fmt.Errorf("destination holding %d has a pending transfer: %w", dst.ID, ErrConflict)
		}

		src.beginPending(PendingTransfer{
			TransferID:         transferID,
			DestinationID:      dst.ID,
			Category:           cat,
			Quantity:           t.Quantity,
			DestinationCreated: created,
			Since:              now,
		})
		if err := src.Withdraw(cat, t.Quantity); err != nil {
			return err
		}
		dst.Deposit(cat, t.Quantity)
		src.UpdatedAt, dst.UpdatedAt = now, now

		if err := tx.Save(ctx, src); err != nil {
			return err
		}
		return tx.Save(ctx, dst)
	})
	if err != nil {
		return nil, Transient("initiate transfer", err)
	}

	if t.IdempotencyKey != "" && e.idem != nil {
		e.recordKey(ctx, t.IdempotencyKey, idempotencyRecord{TransferID: transferID, SourceID: src.ID, DestinationID: dst.ID})
	}

	desc := describeTransfer(src, dst, t.Quantity)
	e.reporter.Report(ctx, Event{Kind: EventTransferInitiated, OwnerID: src.OwnerID, OwnerName: src.OwnerName, HoldingID: src.ID, Description: desc})
	e.reporter.Report(ctx, Event{Kind: EventTransferInitiated, OwnerID: dst.OwnerID, OwnerName: dst.OwnerName, HoldingID: dst.ID, Description: desc})

	return &TransferResult{
		TransferID:  transferID,
		Source:      src,
		Destination: dst,
		Message:     desc,
	}, nil
}

// claimKey claims an idempotency key. It returns a replayed result when the
// key already carries a finished transfer.
func (e *Engine) claimKey(ctx context.Context, key string) (bool, *TransferResult, error) {
	ok, err := e.idem.SetNX(ctx, key, idempotencyProcessing, e.idemTTL)
	if err != nil {
		return false, nil, Transient("claim idempotency key", err)
	}
	if ok {
		return true, nil, nil
	}

	val, err := e.idem.Get(ctx, key)
	if errors.Is(err, ErrIdempotencyKeyNotFound) || val == idempotencyProcessing {
		return false, nil, ErrIdempotencyInUse
	}
	if err != nil {
		return false, nil, Transient("read idempotency key", err)
	}

	var rec idempotencyRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return false, nil, ErrIdempotencyInUse
	}
	res := &TransferResult{
		TransferID: rec.TransferID,
		Message:    fmt.Sprintf("transfer %s was already processed", rec.TransferID),
		Replayed:   true,
	}
	// Either side may have been confirmed away or cancelled since.
	var gone []string
	if h, err := e.store.Get(ctx, rec.SourceID); err == nil {
		res.Source = h
	} else if IsNotFound(err) {
		gone = append(gone, fmt.Sprintf("source holding %d", rec.SourceID))
	} else {
		return false, nil, Transient("load replayed source", err)
	}
	if h, err := e.store.Get(ctx, rec.DestinationID); err == nil {
		res.Destination = h
	} else if IsNotFound(err) {
		gone = append(gone, fmt.Sprintf("destination holding %d", rec.DestinationID))
	} else {
		return false, nil, Transient("load replayed destination", err)
	}
	switch len(gone) {
	case 1:
		res.Message += "; " + gone[0] + " has since been confirmed or removed"
	case 2:
		res.Message += "; " + strings.Join(gone, " and ") + " have since been confirmed or removed"
	}
	return false, res, nil
}

// recordKey stores the outcome of a committed transfer under its key. The
// transfer is already durable, so a failed write is retried before the key
// is left claimed until it expires.
func (e *Engine) recordKey(ctx context.Context, key string, rec idempotencyRecord) {
	b, _ := json.Marshal(rec)
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= idempotencyRecordAttempts; attempt++ {
		if err = e.idem.Set(ctx, key, string(b), e.idemTTL); err == nil {
			return
		}
		if attempt < idempotencyRecordAttempts {
			time.Sleep(time.Duration(attempt) * idempotencyRecordBackoff)
		}
	}
	e.logger.Error("idempotency record not stored; key stays claimed until it expires",
		zap.String("key", key), zap.String("transfer_id", string(rec.TransferID)),
		zap.Duration("ttl", e.idemTTL), zap.Error(err))
}

// =============================================================================
// CONFIRM RECEIPT
// =============================================================================

type ConfirmResult struct {
	TransferID TransferID
	Holding    *Holding
	State      TransferState
	Removed    bool
	Message    string
}

// ConfirmReceipt finalizes the pending transfer of a holding. The holding
// must be pending and owned by confirmingOwner. A holding left with no
// stock is deleted.
func (e *Engine) ConfirmReceipt(ctx context.Context, id HoldingID, confirmingOwner OwnerID) (res *ConfirmResult, err error) {
	start := e.now()
	defer func() { e.observe(ctx, "confirm_receipt", start, err) }()

	var (
		h       *Holding
		pending *PendingTransfer
		removed bool
	)
	err = e.store.WithTx(ctx, func(tx TxHoldingStore) error {
		var err error
		if h, err = e.lockOne(ctx, tx, id); err != nil {
			return err
		}
		if !h.IsPending() {
			return &ForbiddenError{HoldingID: id, Reason: "holding has no pending transfer to confirm"}
		}
		if h.OwnerID != confirmingOwner {
			return &ForbiddenError{HoldingID: id, Reason: "confirming owner does not own the holding"}
		}

		pending = h.Pending
		h.clearPending()
		h.UpdatedAt = e.now().UTC()

		if h.Total().IsZero() {
			removed = true
			return tx.Delete(ctx, h.ID)
		}
		return tx.Save(ctx, h)
	})
	if err != nil {
		return nil, Transient("confirm receipt", err)
	}

	res = &ConfirmResult{TransferID: pending.TransferID, Holding: h, Removed: removed}
	if removed {
		res.State = StateDepleted
		res.Message = describeDepleted(h, pending)
		e.reporter.Report(ctx, Event{Kind: EventHoldingRemoved, OwnerID: h.OwnerID, OwnerName: h.OwnerName, HoldingID: h.ID, Description: res.Message})
	} else {
		res.State = StateConfirmed
		res.Message = describeConfirmed(h, pending)
		e.reporter.Report(ctx, Event{Kind: EventReceiptConfirmed, OwnerID: h.OwnerID, OwnerName: h.OwnerName, HoldingID: h.ID, Description: res.Message})
	}
	return res, nil
}

// =============================================================================
// CANCEL TRANSFER
// =============================================================================

type CancelRequest struct {
	HoldingID HoldingID
	// RequestedBy, when non-zero, must be the source holding's owner.
	RequestedBy OwnerID
}

type CancelResult struct {
	TransferID         TransferID
	Holding            *Holding
	Destination        *Holding
	DestinationRemoved bool
	Cancelled          bool
	State              TransferState
	Message            string
}

// CancelTransfer rolls back the pending transfer of a source holding. A
// holding that is not pending is returned untouched with Cancelled false.
func (e *Engine) CancelTransfer(ctx context.Context, req CancelRequest) (res *CancelResult, err error) {
	start := e.now()
	defer func() { e.observe(ctx, "cancel_transfer", start, err) }()

	res = &CancelResult{}
	var pending *PendingTransfer

	err = e.store.WithTx(ctx, func(tx TxHoldingStore) error {
		h, err := tx.Get(ctx, req.HoldingID)
		if err != nil {
			return err
		}
		if !h.IsPending() {
			res.Holding = h
			return nil
		}
		if req.RequestedBy != 0 && req.RequestedBy != h.OwnerID {
			return &ForbiddenError{HoldingID: h.ID, Reason: "only the owner may cancel the transfer"}
		}

		lockedDst := h.Pending.DestinationID
		ids := []HoldingID{h.ID, lockedDst}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if err := tx.Lock(ctx, ids...); err != nil {
			return err
		}
		if h, err = tx.Get(ctx, req.HoldingID); err != nil {
			return err
		}
		res.Holding = h
		if !h.IsPending() {
			return nil
		}
		// The transfer changed between the unlocked read and the lock; its
		// destination is not locked.
		if h.Pending.DestinationID != lockedDst {
			return fmt.Errorf("holding %d started a new transfer while cancelling: %w", h.ID, ErrConflict)
		}

		pending = h.Pending
		dst, err := tx.Get(ctx, pending.DestinationID)
		if errors.Is(err, ErrHoldingNotFound) {
			return fmt.Errorf("destination holding %d no longer exists: %w", pending.DestinationID, ErrConflict)
		}
		if err != nil {
			return err
		}
		if dst.IsPending() {
			return fmt.Errorf("destination holding %d has a pending transfer: %w", dst.ID, ErrConflict)
		}
		if dst.Quantities.Get(pending.Category).LessThan(pending.Quantity) {
			return fmt.Errorf("destination holding %d no longer holds the transferred stock: %w", dst.ID, ErrConflict)
		}

		now := e.now().UTC()
		if err := dst.Withdraw(pending.Category, pending.Quantity); err != nil {
			return err
		}
		dst.UpdatedAt = now
		h.restore()
		h.UpdatedAt = now

		if err := tx.Save(ctx, h); err != nil {
			return err
		}
		res.Destination = dst
		res.Cancelled = true
		if pending.DestinationCreated && dst.Total().IsZero() {
			res.DestinationRemoved = true
			return tx.Delete(ctx, dst.ID)
		}
		return tx.Save(ctx, dst)
	})
	if err != nil {
		return nil, Transient("cancel transfer", err)
	}

	if !res.Cancelled {
		res.State = StateIdle
		res.Message = "nothing to cancel: holding has no pending transfer"
		return res, nil
	}

	res.TransferID = pending.TransferID
	res.State = StateCancelled
	res.Message = describeCancelled(res.Holding, pending)
	e.reporter.Report(ctx, Event{
		Kind: EventTransferCancelled, OwnerID: res.Holding.OwnerID, OwnerName: res.Holding.OwnerName,
		HoldingID: res.Holding.ID, Description: res.Message,
	})
	return res, nil
}
