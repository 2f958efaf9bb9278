package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/azenco/stock-ledger/ledger"
)

// =============================================================================
// DIRECTORY - Owners and products
// =============================================================================

// Directory is an in-memory UserDirectory and ProductCatalog.
type Directory struct {
	mu       sync.RWMutex
	owners   map[ledger.OwnerID]ledger.Identity
	products map[ledger.ProductID]ledger.ProductSnapshot
}

func NewDirectory() *Directory {
	return &Directory{
		owners:   make(map[ledger.OwnerID]ledger.Identity),
		products: make(map[ledger.ProductID]ledger.ProductSnapshot),
	}
}

func (d *Directory) AddOwner(id ledger.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners[id.ID] = id
}

func (d *Directory) AddProduct(p ledger.ProductSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.products[p.ProductID] = p
}

func (d *Directory) GetOwner(_ context.Context, id ledger.OwnerID) (ledger.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.owners[id]
	if !ok {
		return ledger.Identity{}, ledger.ErrOwnerNotFound
	}
	return o, nil
}

func (d *Directory) GetProduct(_ context.Context, id ledger.ProductID) (ledger.ProductSnapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.products[id]
	if !ok {
		return ledger.ProductSnapshot{}, ledger.ErrProductNotFound
	}
	return p, nil
}

// =============================================================================
// HISTORY
// =============================================================================

type History struct {
	mu      sync.Mutex
	entries []ledger.HistoryEntry
	// Err, when set, is returned by Append.
	Err error
}

func NewHistory() *History { return &History{} }

func (h *History) Append(_ context.Context, e ledger.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	h.entries = append(h.entries, e)
	return nil
}

// ListByOwner returns the newest entries first.
func (h *History) ListByOwner(_ context.Context, owner ledger.OwnerID, limit int) ([]ledger.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []ledger.HistoryEntry
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].OwnerID == owner {
			out = append(out, h.entries[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Kinds returns the event kinds in append order.
func (h *History) Kinds() []ledger.EventKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ledger.EventKind, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Kind
	}
	return out
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

type idemValue struct {
	value   string
	expires time.Time
}

// Idempotency is an in-memory IdempotencyStore with TTL expiry.
type Idempotency struct {
	mu   sync.Mutex
	keys map[string]idemValue
	now  func() time.Time
}

func NewIdempotency() *Idempotency {
	return &Idempotency{keys: make(map[string]idemValue), now: time.Now}
}

func (s *Idempotency) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.liveLocked(key)
	if !ok {
		return "", ledger.ErrIdempotencyKeyNotFound
	}
	return v.value, nil
}

func (s *Idempotency) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(key); ok {
		return false, nil
	}
	s.keys[key] = s.valueLocked(value, ttl)
	return true, nil
}

func (s *Idempotency) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = s.valueLocked(value, ttl)
	return nil
}

func (s *Idempotency) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

// valueLocked stamps the expiry. A non-positive ttl never expires.
func (s *Idempotency) valueLocked(value string, ttl time.Duration) idemValue {
	v := idemValue{value: value}
	if ttl > 0 {
		v.expires = s.now().Add(ttl)
	}
	return v
}

func (s *Idempotency) liveLocked(key string) (idemValue, bool) {
	v, ok := s.keys[key]
	if !ok {
		return v, false
	}
	if !v.expires.IsZero() && s.now().After(v.expires) {
		delete(s.keys, key)
		return v, false
	}
	return v, true
}

// Keys lists the stored keys, for tests.
func (s *Idempotency) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
