/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the interface between the ledger and everything outside it:
  the holding store, the user directory, the product catalog, the history
  log and the idempotency key store. Different implementations use SQLite,
  PostgreSQL, Redis, a remote HTTP catalog, or in-memory maps.

KEY INTERFACES:
  HoldingStore:   Read and write holdings
  TxStore:        Runs a unit of work atomically
  TxHoldingStore: The view handed to a unit of work; adds row locking
  UserDirectory:  Resolves owners
  ProductCatalog: Resolves products into snapshots
  HistoryLog:     Receives human-readable ledger events
  IdempotencyStore: Remembers initiateTransfer outcomes by client key

LOCKING CONTRACT:
  Inside WithTx, Lock(ids...) must hold an exclusive lock on every listed
  holding until the unit of work ends. Callers pass ids in ascending order.
  Stores that serialize all units of work (memory, SQLite) may treat Lock
  as a no-op; PostgreSQL uses SELECT ... FOR UPDATE.

NOT FOUND CONTRACT:
  Get and GetByOwnerAndProduct return ErrHoldingNotFound (never nil, nil).

IMPLEMENTATIONS:
  - ledger/store: In-memory, for tests and development
  - store/sqlite: Default on-disk store
  - store/postgres: pgx store with row-level locks
  - store/redis: Idempotency keys

SEE ALSO:
  - engine.go: Uses TxStore for every mutation
  - query.go: Uses HoldingStore for reads
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// HOLDING STORE
// =============================================================================

// HoldingStore reads and writes holdings.
type HoldingStore interface {
	Get(ctx context.Context, id HoldingID) (*Holding, error)
	GetByOwnerAndProduct(ctx context.Context, owner OwnerID, product ProductID) (*Holding, error)
	ListByOwner(ctx context.Context, owner OwnerID) ([]Holding, error)
	List(ctx context.Context, q ListQuery) (Page, error)

	// OwnerNames returns the distinct owner names that currently hold stock.
	OwnerNames(ctx context.Context) ([]string, error)

	// Create assigns h.ID. Returns ErrDuplicateHolding when the owner
	// already holds the product.
	Create(ctx context.Context, h *Holding) error
	Save(ctx context.Context, h *Holding) error
	Delete(ctx context.Context, id HoldingID) error
}

// TxHoldingStore is the store view inside a unit of work.
type TxHoldingStore interface {
	HoldingStore
	Lock(ctx context.Context, ids ...HoldingID) error
}

// TxStore wraps HoldingStore with transaction support.
type TxStore interface {
	HoldingStore

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(tx TxHoldingStore) error) error
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// UserDirectory resolves owners. Returns ErrOwnerNotFound when unknown.
type UserDirectory interface {
	GetOwner(ctx context.Context, id OwnerID) (Identity, error)
}

// ProductCatalog resolves products. Returns ErrProductNotFound when unknown.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id ProductID) (ProductSnapshot, error)
}

// HistoryEntry is one line of the per-owner ledger history.
type HistoryEntry struct {
	ID          string
	Kind        EventKind
	OwnerID     OwnerID
	OwnerName   string
	HoldingID   HoldingID
	Description string
	At          time.Time
}

// HistoryLog persists history entries.
type HistoryLog interface {
	Append(ctx context.Context, e HistoryEntry) error
	ListByOwner(ctx context.Context, owner OwnerID, limit int) ([]HistoryEntry, error)
}

// IdempotencyStore remembers which client keys were already processed.
// Get returns ErrIdempotencyKeyNotFound for an unknown key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
