package store

import (
	"context"
	"sort"

	"github.com/azenco/stock-ledger/ledger"
)

// =============================================================================
// SANDBOX - Everything the server needs, in memory
// =============================================================================

// Sandbox bundles a transactional holding store, a directory and a history
// log. It backs STORE_DRIVER=memory and mirrors the admin surface of the
// SQL stores.
type Sandbox struct {
	*TxMemory
	*Directory
	history *History
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		TxMemory:  NewTxMemory(),
		Directory: NewDirectory(),
		history:   NewHistory(),
	}
}

func (s *Sandbox) History() *History { return s.history }

func (s *Sandbox) Ping(context.Context) error { return nil }

func (s *Sandbox) SaveUser(_ context.Context, u ledger.Identity) error {
	s.AddOwner(u)
	return nil
}

func (s *Sandbox) ListUsers(context.Context) ([]ledger.Identity, error) {
	s.Directory.mu.RLock()
	defer s.Directory.mu.RUnlock()
	out := make([]ledger.Identity, 0, len(s.owners))
	for _, o := range s.owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Sandbox) SaveProduct(_ context.Context, p ledger.ProductSnapshot) error {
	s.AddProduct(p)
	return nil
}

func (s *Sandbox) ListProducts(context.Context) ([]ledger.ProductSnapshot, error) {
	s.Directory.mu.RLock()
	defer s.Directory.mu.RUnlock()
	out := make([]ledger.ProductSnapshot, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// Reset drops all holdings, owners, products and history.
func (s *Sandbox) Reset(context.Context) error {
	s.TxMemory.mu.Lock()
	s.holdings = make(map[ledger.HoldingID]ledger.Holding)
	s.byKey = make(map[ownerProduct]ledger.HoldingID)
	s.nextID = 0
	s.TxMemory.mu.Unlock()

	s.Directory.mu.Lock()
	s.owners = make(map[ledger.OwnerID]ledger.Identity)
	s.products = make(map[ledger.ProductID]ledger.ProductSnapshot)
	s.Directory.mu.Unlock()

	s.history.mu.Lock()
	s.history.entries = nil
	s.history.mu.Unlock()
	return nil
}
