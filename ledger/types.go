/*
Package ledger provides the core stock-holding engine.

PURPOSE:
  This package contains the types and algorithms that track how much of a
  product an owner holds in the warehouse, and how that stock moves between
  owners. Persistence, transport and collaborators (user directory, product
  catalog, history log) are injected through interfaces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantities: Per-category stock (new, used, broken, lost), decimal-exact
  - Holding: One owner's position in one product
  - Snapshot: The pre-transfer copy kept while a holding is pending
  - PendingTransfer: The outstanding outgoing transfer of a pending holding
  - Transfer: Value object describing a requested move of stock

DESIGN PRINCIPLES:
  1. Precision: All quantities and money use decimal.Decimal
  2. Derived totals: Total() and TotalValue are recomputed on every mutation
  3. Type Safety: Distinct ID types prevent mixing owners, products, holdings
  4. Exclusivity: A pending holding accepts no other mutation until it is
     confirmed or cancelled

USAGE:
  h := ledger.Holding{OwnerID: 7, Product: snapshot, Location: "Baku"}
  h.Deposit(ledger.CategoryNew, decimal.NewFromInt(100))
  h.TotalValue // == 100 * snapshot.UnitPrice

SEE ALSO:
  - engine.go: Transfer lifecycle (initiate, confirm, cancel)
  - quantity.go: Unit-aware quantity validation
  - store.go: Persistence interfaces
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type HoldingID int64
type OwnerID int64
type ProductID int64

// TransferID identifies one initiated transfer across its lifecycle.
type TransferID string

func NewTransferID() TransferID { return TransferID(uuid.NewString()) }

// =============================================================================
// CATEGORY - Condition of the stock inside a holding
// =============================================================================

type Category string

const (
	CategoryNew    Category = "new"
	CategoryUsed   Category = "used"
	CategoryBroken Category = "broken"
	CategoryLost   Category = "lost"
)

// Categories lists every category in storage order.
var Categories = []Category{CategoryNew, CategoryUsed, CategoryBroken, CategoryLost}

// ParseCategory maps an external name to a Category. Empty means new.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case "":
		return CategoryNew, nil
	case CategoryNew, CategoryUsed, CategoryBroken, CategoryLost:
		return Category(s), nil
	}
	return "", &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", s)}
}

// =============================================================================
// QUANTITIES
// =============================================================================

// Quantities holds the per-category stock of a holding.
type Quantities struct {
	New    decimal.Decimal `json:"new"`
	Used   decimal.Decimal `json:"used"`
	Broken decimal.Decimal `json:"broken"`
	Lost   decimal.Decimal `json:"lost"`
}

func (q Quantities) Get(c Category) decimal.Decimal {
	switch c {
	case CategoryUsed:
		return q.Used
	case CategoryBroken:
		return q.Broken
	case CategoryLost:
		return q.Lost
	default:
		return q.New
	}
}

func (q *Quantities) set(c Category, v decimal.Decimal) {
	switch c {
	case CategoryUsed:
		q.Used = v
	case CategoryBroken:
		q.Broken = v
	case CategoryLost:
		q.Lost = v
	default:
		q.New = v
	}
}

func (q Quantities) Total() decimal.Decimal {
	return q.New.Add(q.Used).Add(q.Broken).Add(q.Lost)
}

// =============================================================================
// PRODUCT SNAPSHOT - Denormalized product data stored with the holding
// =============================================================================

// ProductSnapshot is copied from the product catalog when a holding is created.
type ProductSnapshot struct {
	ProductID ProductID
	Name      string
	Code      string
	Unit      string
	UnitPrice decimal.Decimal
}

// Identity is a resolved owner from the user directory.
type Identity struct {
	ID   OwnerID
	Name string
}

// =============================================================================
// HOLDING
// =============================================================================

// Snapshot is the exact state of a holding taken before it became pending.
type Snapshot struct {
	Quantities Quantities      `json:"quantities"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// PendingTransfer describes the outgoing transfer that made a holding pending.
type PendingTransfer struct {
	TransferID         TransferID      `json:"transferId"`
	DestinationID      HoldingID       `json:"destinationId"`
	Category           Category        `json:"category"`
	Quantity           decimal.Decimal `json:"quantity"`
	DestinationCreated bool            `json:"destinationCreated"`
	Since              time.Time       `json:"since"`
}

// Holding is one owner's position in one product at one location.
//
// Invariants kept by every mutation in this package:
//   - each category quantity is >= 0
//   - TotalValue == Total() * Product.UnitPrice
//   - Pending != nil  <=>  Snapshot != nil
type Holding struct {
	ID         HoldingID
	OwnerID    OwnerID
	OwnerName  string
	Product    ProductSnapshot
	Quantities Quantities
	TotalValue decimal.Decimal
	Location   string
	Pending    *PendingTransfer
	Snapshot   *Snapshot
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (h *Holding) Total() decimal.Decimal { return h.Quantities.Total() }

func (h *Holding) IsPending() bool { return h.Pending != nil }

// Deposit adds qty to a category and recomputes the value.
func (h *Holding) Deposit(c Category, qty decimal.Decimal) {
	h.Quantities.set(c, h.Quantities.Get(c).Add(qty))
	h.recompute()
}

// Withdraw removes qty from a category. It refuses to go negative.
func (h *Holding) Withdraw(c Category, qty decimal.Decimal) error {
	available := h.Quantities.Get(c)
	if qty.GreaterThan(available) {
		return &InsufficientStockError{
			HoldingID: h.ID,
			Category:  c,
			Available: available,
			Requested: qty,
		}
	}
	h.Quantities.set(c, available.Sub(qty))
	h.recompute()
	return nil
}

// beginPending records the snapshot and the outstanding transfer.
func (h *Holding) beginPending(p PendingTransfer) {
	h.Snapshot = &Snapshot{Quantities: h.Quantities, TotalValue: h.TotalValue}
	h.Pending = &p
}

// restore puts the holding back to its pre-transfer state.
func (h *Holding) restore() {
	if h.Snapshot != nil {
		h.Quantities = h.Snapshot.Quantities
		h.TotalValue = h.Snapshot.TotalValue
	}
	h.clearPending()
}

func (h *Holding) clearPending() {
	h.Pending = nil
	h.Snapshot = nil
}

func (h *Holding) recompute() {
	h.TotalValue = h.Total().Mul(h.Product.UnitPrice)
}

// =============================================================================
// TRANSFER - Value object for a requested move of stock
// =============================================================================

// Transfer is a request to move Quantity of a source holding's product to
// another owner. It is not persisted on its own; its effect lives on the
// source holding as a PendingTransfer.
type Transfer struct {
	SourceHoldingID      HoldingID
	DestinationOwnerID   OwnerID
	// DestinationOwnerName, when set, must match the resolved owner.
	DestinationOwnerName string
	Category             Category
	Quantity             decimal.Decimal
	DestinationLocation  string
	IdempotencyKey       string
}

// =============================================================================
// LISTING
// =============================================================================

type SortOrder string

const (
	SortDefault   SortOrder = ""
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
)

func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case SortDefault, SortPriceAsc, SortPriceDesc:
		return SortOrder(s), nil
	}
	return "", &ValidationError{Field: "sortBy", Reason: fmt.Sprintf("unsupported sort %q", s)}
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListQuery filters and paginates the global holding listing.
type ListQuery struct {
	OwnerID   *OwnerID
	PriceFrom *decimal.Decimal
	PriceTo   *decimal.Decimal
	SortBy    SortOrder
	Limit     int
	Offset    int
}

// Normalize applies paging defaults and bounds.
func (q ListQuery) Normalize() (ListQuery, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return q, &ValidationError{Field: "limit", Reason: "limit and offset must be non-negative"}
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.PriceFrom != nil && q.PriceTo != nil && q.PriceFrom.GreaterThan(*q.PriceTo) {
		return q, &ValidationError{Field: "priceFrom", Reason: "priceFrom is greater than priceTo"}
	}
	return q, nil
}

// Page is one slice of a listing plus the unpaged total.
type Page struct {
	Items []Holding
	Total int
	// Limit and Offset are the normalized paging bounds the page was read with.
	Limit  int
	Offset int
}

// Empty reports the "no results" case explicitly.
func (p Page) Empty() bool { return len(p.Items) == 0 }
