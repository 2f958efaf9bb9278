/*
Package sqlite provides a SQLite-backed implementation of the ledger storage interfaces.

PURPOSE:
  Implements the holding store, the user directory, the product catalog and
  the history log on one SQLite database. This is the default store of the
  server; PostgreSQL (store/postgres) follows the same schema with row-level
  locks.

INTERFACES IMPLEMENTED:
  ledger.TxStore:        Holdings with unit-of-work support
  ledger.UserDirectory:  Owners (users table)
  ledger.ProductCatalog: Products (products table)
  ledger.HistoryLog:     Per-owner history lines

KEY TABLES:
  holdings: One row per (owner, product). Quantities and money are TEXT
            decimals; price_key is a fixed-width copy of unit_price used for
            exact price filters and sorting. The pending transfer and its
            snapshot are JSON columns that are NULL together.
  users:    Owner id and display name
  products: Catalog entries with unit and unit price
  history:  Append-only ledger event descriptions

INDEXES:
  - idx_holdings_owner_product: Enforces one holding per owner and product
  - idx_holdings_owner: Owner listings (hot path)
  - idx_history_owner_at: History page per owner, newest first

CONCURRENCY:
  Reads take an RLock, units of work take the write lock. SQLite only has one
  writer anyway, so WithTx serializes every unit of work and Lock is a no-op.
  Inside a unit of work every statement goes through the *sql.Tx; the
  transactional view never calls back into the locked Store methods.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store, validator, store, store)

MIGRATION:
  Schema is auto-migrated on New(). PostgreSQL uses versioned files under
  store/postgres/migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/azenco/stock-ledger/ledger"
)

// Store implements the ledger storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS holdings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		owner_name TEXT NOT NULL,
		product_id INTEGER NOT NULL,
		product_name TEXT NOT NULL,
		product_code TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		price_key TEXT NOT NULL DEFAULT '',
		qty_new TEXT NOT NULL DEFAULT '0',
		qty_used TEXT NOT NULL DEFAULT '0',
		qty_broken TEXT NOT NULL DEFAULT '0',
		qty_lost TEXT NOT NULL DEFAULT '0',
		total_value TEXT NOT NULL DEFAULT '0',
		location TEXT NOT NULL,
		pending_json TEXT,
		snapshot_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holdings_owner_product
		ON holdings(owner_id, product_id);
	CREATE INDEX IF NOT EXISTS idx_holdings_owner
		ON holdings(owner_id);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		owner_id INTEGER NOT NULL,
		owner_name TEXT NOT NULL,
		holding_id INTEGER NOT NULL,
		description TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_owner_at
		ON history(owner_id, at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// HOLDING STORE (ledger.HoldingStore interface)
// =============================================================================

const holdingColumns = `id, owner_id, owner_name, product_id, product_name, product_code, unit, unit_price,
	qty_new, qty_used, qty_broken, qty_lost, total_value, location, pending_json, snapshot_json,
	created_at, updated_at`

func (s *Store) Get(ctx context.Context, id ledger.HoldingID) (*ledger.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getHolding(ctx, s.db, id)
}

func (s *Store) GetByOwnerAndProduct(ctx context.Context, owner ledger.OwnerID, product ledger.ProductID) (*ledger.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getHoldingByKey(ctx, s.db, owner, product)
}

func (s *Store) ListByOwner(ctx context.Context, owner ledger.OwnerID) ([]ledger.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listByOwner(ctx, s.db, owner)
}

func (s *Store) List(ctx context.Context, q ledger.ListQuery) (ledger.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listHoldings(ctx, s.db, q)
}

func (s *Store) OwnerNames(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ownerNames(ctx, s.db)
}

func (s *Store) Create(ctx context.Context, h *ledger.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createHolding(ctx, s.db, h)
}

func (s *Store) Save(ctx context.Context, h *ledger.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveHolding(ctx, s.db, h)
}

func (s *Store) Delete(ctx context.Context, id ledger.HoldingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteHolding(ctx, s.db, id)
}

func getHolding(ctx context.Context, q queryer, id ledger.HoldingID) (*ledger.Holding, error) {
	row := q.QueryRowContext(ctx, "SELECT "+holdingColumns+" FROM holdings WHERE id = ?", id)
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrHoldingNotFound
	}
	return h, err
}

func getHoldingByKey(ctx context.Context, q queryer, owner ledger.OwnerID, product ledger.ProductID) (*ledger.Holding, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+holdingColumns+" FROM holdings WHERE owner_id = ? AND product_id = ?",
		owner, product,
	)
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrHoldingNotFound
	}
	return h, err
}

func listByOwner(ctx context.Context, q queryer, owner ledger.OwnerID) ([]ledger.Holding, error) {
	return queryHoldings(ctx, q, "SELECT "+holdingColumns+" FROM holdings WHERE owner_id = ? ORDER BY id", owner)
}

func listHoldings(ctx context.Context, q queryer, lq ledger.ListQuery) (ledger.Page, error) {
	var (
		where []string
		args  []any
	)
	if lq.OwnerID != nil {
		where = append(where, "owner_id = ?")
		args = append(args, *lq.OwnerID)
	}
	// price_key orders like the decimal price; see priceKey.
	if lq.PriceFrom != nil {
		where = append(where, "price_key >= ?")
		args = append(args, priceKey(*lq.PriceFrom))
	}
	if lq.PriceTo != nil {
		where = append(where, "price_key <= ?")
		args = append(args, priceKey(*lq.PriceTo))
	}
	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	var page ledger.Page
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM holdings"+filter, args...).Scan(&page.Total); err != nil {
		return ledger.Page{}, fmt.Errorf("failed to count holdings: %w", err)
	}

	order := " ORDER BY id"
	switch lq.SortBy {
	case ledger.SortPriceAsc:
		order = " ORDER BY price_key ASC, id"
	case ledger.SortPriceDesc:
		order = " ORDER BY price_key DESC, id"
	}

	limit := lq.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	items, err := queryHoldings(ctx, q,
		"SELECT "+holdingColumns+" FROM holdings"+filter+order+" LIMIT ? OFFSET ?",
		append(args, limit, lq.Offset)...,
	)
	if err != nil {
		return ledger.Page{}, err
	}
	page.Items = items
	return page, nil
}

func ownerNames(ctx context.Context, q queryer) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT DISTINCT owner_name FROM holdings WHERE owner_name <> '' ORDER BY owner_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query owner names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func createHolding(ctx context.Context, q queryer, h *ledger.Holding) error {
	pending, snapshot, err := encodePending(h)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO holdings
		(owner_id, owner_name, product_id, product_name, product_code, unit, unit_price, price_key,
		 qty_new, qty_used, qty_broken, qty_lost, total_value, location, pending_json, snapshot_json,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := q.ExecContext(ctx, query,
		h.OwnerID, h.OwnerName,
		h.Product.ProductID, h.Product.Name, h.Product.Code, h.Product.Unit,
		h.Product.UnitPrice.String(), priceKey(h.Product.UnitPrice),
		h.Quantities.New.String(), h.Quantities.Used.String(), h.Quantities.Broken.String(), h.Quantities.Lost.String(),
		h.TotalValue.String(), h.Location, pending, snapshot,
		formatTime(h.CreatedAt), formatTime(h.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateHolding
		}
		return fmt.Errorf("failed to insert holding: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read holding id: %w", err)
	}
	h.ID = ledger.HoldingID(id)
	return nil
}

func saveHolding(ctx context.Context, q queryer, h *ledger.Holding) error {
	pending, snapshot, err := encodePending(h)
	if err != nil {
		return err
	}

	query := `
		UPDATE holdings SET
			owner_id = ?, owner_name = ?, qty_new = ?, qty_used = ?, qty_broken = ?, qty_lost = ?,
			total_value = ?, location = ?, pending_json = ?, snapshot_json = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query,
		h.OwnerID, h.OwnerName,
		h.Quantities.New.String(), h.Quantities.Used.String(), h.Quantities.Broken.String(), h.Quantities.Lost.String(),
		h.TotalValue.String(), h.Location, pending, snapshot, formatTime(h.UpdatedAt),
		h.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateHolding
		}
		return fmt.Errorf("failed to update holding: %w", err)
	}
	return requireOneRow(res)
}

func deleteHolding(ctx context.Context, q queryer, id ledger.HoldingID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM holdings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrHoldingNotFound
	}
	return nil
}

func queryHoldings(ctx context.Context, q queryer, query string, args ...any) ([]ledger.Holding, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []ledger.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHolding(row scanner) (*ledger.Holding, error) {
	var (
		h                               ledger.Holding
		unitPrice, qNew, qUsed, qBroken string
		qLost, totalValue               string
		pendingJSON, snapshotJSON       sql.NullString
		createdAt, updatedAt            string
	)
	err := row.Scan(
		&h.ID, &h.OwnerID, &h.OwnerName,
		&h.Product.ProductID, &h.Product.Name, &h.Product.Code, &h.Product.Unit, &unitPrice,
		&qNew, &qUsed, &qBroken, &qLost, &totalValue, &h.Location,
		&pendingJSON, &snapshotJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, col := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"unit_price", unitPrice, &h.Product.UnitPrice},
		{"qty_new", qNew, &h.Quantities.New},
		{"qty_used", qUsed, &h.Quantities.Used},
		{"qty_broken", qBroken, &h.Quantities.Broken},
		{"qty_lost", qLost, &h.Quantities.Lost},
		{"total_value", totalValue, &h.TotalValue},
	} {
		if *col.dst, err = parseDecimal(col.name, col.raw); err != nil {
			return nil, fmt.Errorf("holding %d: %w", h.ID, err)
		}
	}
	h.CreatedAt = parseTime(createdAt)
	h.UpdatedAt = parseTime(updatedAt)

	if pendingJSON.Valid {
		h.Pending = &ledger.PendingTransfer{}
		if err := json.Unmarshal([]byte(pendingJSON.String), h.Pending); err != nil {
			return nil, fmt.Errorf("holding %d: corrupt pending transfer: %w", h.ID, err)
		}
	}
	if snapshotJSON.Valid {
		h.Snapshot = &ledger.Snapshot{}
		if err := json.Unmarshal([]byte(snapshotJSON.String), h.Snapshot); err != nil {
			return nil, fmt.Errorf("holding %d: corrupt snapshot: %w", h.ID, err)
		}
	}
	return &h, nil
}

func encodePending(h *ledger.Holding) (pending, snapshot sql.NullString, err error) {
	if h.Pending != nil {
		b, err := json.Marshal(h.Pending)
		if err != nil {
			return pending, snapshot, err
		}
		pending = sql.NullString{String: string(b), Valid: true}
	}
	if h.Snapshot != nil {
		b, err := json.Marshal(h.Snapshot)
		if err != nil {
			return pending, snapshot, err
		}
		snapshot = sql.NullString{String: string(b), Valid: true}
	}
	return pending, snapshot, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.TxHoldingStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

// Lock is a no-op: WithTx already holds the only writer.
func (ts *txStore) Lock(context.Context, ...ledger.HoldingID) error { return nil }

func (ts *txStore) Get(ctx context.Context, id ledger.HoldingID) (*ledger.Holding, error) {
	return getHolding(ctx, ts.tx, id)
}

func (ts *txStore) GetByOwnerAndProduct(ctx context.Context, owner ledger.OwnerID, product ledger.ProductID) (*ledger.Holding, error) {
	return getHoldingByKey(ctx, ts.tx, owner, product)
}

func (ts *txStore) ListByOwner(ctx context.Context, owner ledger.OwnerID) ([]ledger.Holding, error) {
	return listByOwner(ctx, ts.tx, owner)
}

func (ts *txStore) List(ctx context.Context, q ledger.ListQuery) (ledger.Page, error) {
	return listHoldings(ctx, ts.tx, q)
}

func (ts *txStore) OwnerNames(ctx context.Context) ([]string, error) {
	return ownerNames(ctx, ts.tx)
}

func (ts *txStore) Create(ctx context.Context, h *ledger.Holding) error {
	return createHolding(ctx, ts.tx, h)
}

func (ts *txStore) Save(ctx context.Context, h *ledger.Holding) error {
	return saveHolding(ctx, ts.tx, h)
}

func (ts *txStore) Delete(ctx context.Context, id ledger.HoldingID) error {
	return deleteHolding(ctx, ts.tx, id)
}

// =============================================================================
// USER DIRECTORY
// =============================================================================

// SaveUser inserts or renames a user.
func (s *Store) SaveUser(ctx context.Context, u ledger.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query, u.ID, u.Name, formatTime(time.Now()))
	return err
}

// GetOwner implements ledger.UserDirectory.
func (s *Store) GetOwner(ctx context.Context, id ledger.OwnerID) (ledger.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out ledger.Identity
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM users WHERE id = ?", id).Scan(&out.ID, &out.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Identity{}, ledger.ErrOwnerNotFound
	}
	return out, err
}

// ListUsers returns all users ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]ledger.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM users ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []ledger.Identity
	for rows.Next() {
		var u ledger.Identity
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// PRODUCT CATALOG
// =============================================================================

// SaveProduct inserts or updates a catalog product. Existing holdings keep
// the snapshot taken when they were created.
func (s *Store) SaveProduct(ctx context.Context, p ledger.ProductSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO products (id, name, code, unit, unit_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			unit = excluded.unit,
			unit_price = excluded.unit_price
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ProductID, p.Name, p.Code, p.Unit, p.UnitPrice.String(), formatTime(time.Now()),
	)
	return err
}

// GetProduct implements ledger.ProductCatalog.
func (s *Store) GetProduct(ctx context.Context, id ledger.ProductID) (ledger.ProductSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p ledger.ProductSnapshot
	var price string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, code, unit, unit_price FROM products WHERE id = ?", id,
	).Scan(&p.ProductID, &p.Name, &p.Code, &p.Unit, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ProductSnapshot{}, ledger.ErrProductNotFound
	}
	if err != nil {
		return ledger.ProductSnapshot{}, err
	}
	if p.UnitPrice, err = parseDecimal("unit_price", price); err != nil {
		return ledger.ProductSnapshot{}, fmt.Errorf("product %d: %w", p.ProductID, err)
	}
	return p, nil
}

// ListProducts returns the catalog ordered by id.
func (s *Store) ListProducts(ctx context.Context) ([]ledger.ProductSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, code, unit, unit_price FROM products ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []ledger.ProductSnapshot
	for rows.Next() {
		var p ledger.ProductSnapshot
		var price string
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Code, &p.Unit, &price); err != nil {
			return nil, err
		}
		if p.UnitPrice, err = parseDecimal("unit_price", price); err != nil {
			return nil, fmt.Errorf("product %d: %w", p.ProductID, err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// HISTORY LOG
// =============================================================================

// History is the ledger.HistoryLog view of the store.
type History struct {
	s *Store
}

func (s *Store) History() *History { return &History{s: s} }

// Append implements ledger.HistoryLog.
func (hl *History) Append(ctx context.Context, e ledger.HistoryEntry) error {
	s := hl.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO history (id, kind, owner_id, owner_name, holding_id, description, at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.ID, string(e.Kind), e.OwnerID, e.OwnerName, e.HoldingID, e.Description, formatTime(e.At),
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// ListByOwner returns the newest entries first. A non-positive limit
// returns everything.
func (hl *History) ListByOwner(ctx context.Context, owner ledger.OwnerID, limit int) ([]ledger.HistoryEntry, error) {
	s := hl.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, owner_id, owner_name, holding_id, description, at
		FROM history
		WHERE owner_id = ?
		ORDER BY at DESC, rowid DESC
		LIMIT ?
	`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []ledger.HistoryEntry
	for rows.Next() {
		var e ledger.HistoryEntry
		var kind, at string
		if err := rows.Scan(&e.ID, &kind, &e.OwnerID, &e.OwnerName, &e.HoldingID, &e.Description, &at); err != nil {
			return nil, err
		}
		e.Kind = ledger.EventKind(kind)
		e.At = parseTime(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"history", "holdings", "products", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

// timeLayout has fixed width so that TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt %s %q: %w", column, s, err)
	}
	return d, nil
}

// price_key layout: integer digits, then fractional digits.
const (
	priceKeyIntDigits = 20
	priceKeyScale     = 18
)

// priceKey renders a non-negative price as fixed-width text, so that TEXT
// comparison and ordering of keys match decimal comparison of prices.
// Prices are never negative; a negative bound sorts before every key.
func priceKey(d decimal.Decimal) string {
	if d.Sign() < 0 {
		return "-"
	}
	fixed := d.Truncate(priceKeyScale).StringFixed(priceKeyScale)
	intPart, frac, _ := strings.Cut(fixed, ".")
	if pad := priceKeyIntDigits - len(intPart); pad > 0 {
		intPart = strings.Repeat("0", pad) + intPart
	}
	return intPart + "." + frac
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
