// Package store provides in-memory implementations of the ledger interfaces.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/azenco/stock-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory holding store (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	holdings map[ledger.HoldingID]ledger.Holding
	byKey    map[ownerProduct]ledger.HoldingID
	nextID   ledger.HoldingID
}

type ownerProduct struct {
	OwnerID   ledger.OwnerID
	ProductID ledger.ProductID
}

func NewMemory() *Memory {
	return &Memory{
		holdings: make(map[ledger.HoldingID]ledger.Holding),
		byKey:    make(map[ownerProduct]ledger.HoldingID),
	}
}

func (m *Memory) Get(_ context.Context, id ledger.HoldingID) (*ledger.Holding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) GetByOwnerAndProduct(_ context.Context, owner ledger.OwnerID, product ledger.ProductID) (*ledger.Holding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getByKeyLocked(owner, product)
}

func (m *Memory) ListByOwner(_ context.Context, owner ledger.OwnerID) ([]ledger.Holding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listByOwnerLocked(owner), nil
}

func (m *Memory) List(_ context.Context, q ledger.ListQuery) (ledger.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(q), nil
}

func (m *Memory) OwnerNames(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ownerNamesLocked(), nil
}

func (m *Memory) Create(_ context.Context, h *ledger.Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(h)
}

func (m *Memory) Save(_ context.Context, h *ledger.Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(h)
}

func (m *Memory) Delete(_ context.Context, id ledger.HoldingID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

// Len reports the number of stored holdings.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.holdings)
}

// =============================================================================
// LOCKED HELPERS
// =============================================================================

func (m *Memory) getLocked(id ledger.HoldingID) (*ledger.Holding, error) {
	h, ok := m.holdings[id]
	if !ok {
		return nil, ledger.ErrHoldingNotFound
	}
	return clone(h), nil
}

func (m *Memory) getByKeyLocked(owner ledger.OwnerID, product ledger.ProductID) (*ledger.Holding, error) {
	id, ok := m.byKey[ownerProduct{owner, product}]
	if !ok {
		return nil, ledger.ErrHoldingNotFound
	}
	return m.getLocked(id)
}

func (m *Memory) listByOwnerLocked(owner ledger.OwnerID) []ledger.Holding {
	var out []ledger.Holding
	for _, h := range m.holdings {
		if h.OwnerID == owner {
			out = append(out, *clone(h))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) listLocked(q ledger.ListQuery) ledger.Page {
	var all []ledger.Holding
	for _, h := range m.holdings {
		if q.OwnerID != nil && h.OwnerID != *q.OwnerID {
			continue
		}
		if q.PriceFrom != nil && h.Product.UnitPrice.LessThan(*q.PriceFrom) {
			continue
		}
		if q.PriceTo != nil && h.Product.UnitPrice.GreaterThan(*q.PriceTo) {
			continue
		}
		all = append(all, *clone(h))
	}

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		switch q.SortBy {
		case ledger.SortPriceAsc:
			if c := a.Product.UnitPrice.Cmp(b.Product.UnitPrice); c != 0 {
				return c < 0
			}
		case ledger.SortPriceDesc:
			if c := a.Product.UnitPrice.Cmp(b.Product.UnitPrice); c != 0 {
				return c > 0
			}
		}
		return a.ID < b.ID
	})

	page := ledger.Page{Total: len(all)}
	if q.Offset >= len(all) {
		return page
	}
	end := len(all)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	page.Items = all[q.Offset:end]
	return page
}

func (m *Memory) ownerNamesLocked() []string {
	seen := make(map[string]bool)
	var names []string
	for _, h := range m.holdings {
		if h.OwnerName != "" && !seen[h.OwnerName] {
			seen[h.OwnerName] = true
			names = append(names, h.OwnerName)
		}
	}
	sort.Strings(names)
	return names
}

func (m *Memory) createLocked(h *ledger.Holding) error {
	k := ownerProduct{h.OwnerID, h.Product.ProductID}
	if _, exists := m.byKey[k]; exists {
		return ledger.ErrDuplicateHolding
	}
	m.nextID++
	h.ID = m.nextID
	m.holdings[h.ID] = *clone(*h)
	m.byKey[k] = h.ID
	return nil
}

func (m *Memory) saveLocked(h *ledger.Holding) error {
	old, ok := m.holdings[h.ID]
	if !ok {
		return ledger.ErrHoldingNotFound
	}
	delete(m.byKey, ownerProduct{old.OwnerID, old.Product.ProductID})
	m.holdings[h.ID] = *clone(*h)
	m.byKey[ownerProduct{h.OwnerID, h.Product.ProductID}] = h.ID
	return nil
}

func (m *Memory) deleteLocked(id ledger.HoldingID) error {
	h, ok := m.holdings[id]
	if !ok {
		return ledger.ErrHoldingNotFound
	}
	delete(m.holdings, id)
	delete(m.byKey, ownerProduct{h.OwnerID, h.Product.ProductID})
	return nil
}

// clone copies a holding including its pointer fields.
func clone(h ledger.Holding) *ledger.Holding {
	if h.Pending != nil {
		p := *h.Pending
		h.Pending = &p
	}
	if h.Snapshot != nil {
		s := *h.Snapshot
		h.Snapshot = &s
	}
	return &h
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Units of work are serialized, so Lock is a no-op.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.TxHoldingStore) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	holdings map[ledger.HoldingID]ledger.Holding
	byKey    map[ownerProduct]ledger.HoldingID
	nextID   ledger.HoldingID
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		holdings: make(map[ledger.HoldingID]ledger.Holding, len(tm.holdings)),
		byKey:    make(map[ownerProduct]ledger.HoldingID, len(tm.byKey)),
		nextID:   tm.nextID,
	}
	for k, v := range tm.holdings {
		s.holdings[k] = *clone(v)
	}
	for k, v := range tm.byKey {
		s.byKey[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.holdings = s.holdings
	tm.byKey = s.byKey
	tm.nextID = s.nextID
}

type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) Lock(context.Context, ...ledger.HoldingID) error { return nil }

func (tv *txMemoryView) Get(_ context.Context, id ledger.HoldingID) (*ledger.Holding, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) GetByOwnerAndProduct(_ context.Context, owner ledger.OwnerID, product ledger.ProductID) (*ledger.Holding, error) {
	return tv.parent.getByKeyLocked(owner, product)
}

func (tv *txMemoryView) ListByOwner(_ context.Context, owner ledger.OwnerID) ([]ledger.Holding, error) {
	return tv.parent.listByOwnerLocked(owner), nil
}

func (tv *txMemoryView) List(_ context.Context, q ledger.ListQuery) (ledger.Page, error) {
	return tv.parent.listLocked(q), nil
}

func (tv *txMemoryView) OwnerNames(context.Context) ([]string, error) {
	return tv.parent.ownerNamesLocked(), nil
}

func (tv *txMemoryView) Create(_ context.Context, h *ledger.Holding) error {
	return tv.parent.createLocked(h)
}

func (tv *txMemoryView) Save(_ context.Context, h *ledger.Holding) error {
	return tv.parent.saveLocked(h)
}

func (tv *txMemoryView) Delete(_ context.Context, id ledger.HoldingID) error {
	return tv.parent.deleteLocked(id)
}
