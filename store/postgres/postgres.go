/*
Package postgres provides a PostgreSQL implementation of the ledger storage interfaces.

PURPOSE:
  The multi-instance store. Same tables as store/sqlite, but quantities and
  money are NUMERIC, pending state is JSONB, and units of work take real
  row locks instead of a process-wide mutex, so several server instances
  can share one database.

LOCKING:
  WithTx opens a READ COMMITTED transaction. Lock(ids...) runs
  SELECT ... ORDER BY id FOR UPDATE on the listed holdings; the engine
  passes ids in ascending order, so two transfers touching the same pair
  never deadlock.

ERRORS:
  pgx.ErrNoRows        -> ledger.ErrHoldingNotFound (or owner/product)
  23505 unique_violation -> ledger.ErrDuplicateHolding

SEE ALSO:
  - migrations/: Embedded schema, applied by Apply
  - store/sqlite: The single-process default
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/azenco/stock-ledger/ledger"
	"github.com/azenco/stock-ledger/store/postgres/migrations"
)

const pgUniqueViolation = "23505"

// Store implements the ledger storage interfaces on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool and applies the embedded migrations.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// HOLDING STORE
// =============================================================================

const holdingColumns = `id, owner_id, owner_name, product_id, product_name, product_code, unit,
	unit_price::text, qty_new::text, qty_used::text, qty_broken::text, qty_lost::text,
	total_value::text, location, pending::text, snapshot::text, created_at, updated_at`

func (s *Store) Get(ctx context.Context, id ledger.HoldingID) (*ledger.Holding, error) {
	return getHolding(ctx, s.pool, id)
}

func (s *Store) GetByOwnerAndProduct(ctx context.Context, owner ledger.OwnerID, product ledger.ProductID) (*ledger.Holding, error) {
	return getHoldingByKey(ctx, s.pool, owner, product)
}

func (s *Store) ListByOwner(ctx context.Context, owner ledger.OwnerID) ([]ledger.Holding, error) {
	return queryHoldings(ctx, s.pool, "SELECT "+holdingColumns+" FROM holdings WHERE owner_id = $1 ORDER BY id", int64(owner))
}

func (s *Store) List(ctx context.Context, q ledger.ListQuery) (ledger.Page, error) {
	return listHoldings(ctx, s.pool, q)
}

func (s *Store) OwnerNames(ctx context.Context) ([]string, error) {
	return ownerNames(ctx, s.pool)
}

func (s *Store) Create(ctx context.Context, h *ledger.Holding) error {
	return createHolding(ctx, s.pool, h)
}

func (s *Store) Save(ctx context.Context, h *ledger.Holding) error {
	return saveHolding(ctx, s.pool, h)
}

func (s *Store) Delete(ctx context.Context, id ledger.HoldingID) error {
	return deleteHolding(ctx, s.pool, id)
}

func getHolding(ctx context.Context, q querier, id ledger.HoldingID) (*ledger.Holding, error) {
	h, err := scanHolding(q.QueryRow(ctx, "SELECT "+holdingColumns+" FROM holdings WHERE id = $1", int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrHoldingNotFound
	}
	return h, err
}

func getHoldingByKey(ctx context.Context, q querier, owner ledger.OwnerID, product ledger.ProductID) (*ledger.Holding, error) {
	h, err := scanHolding(q.QueryRow(ctx,
		"SELECT "+holdingColumns+" FROM holdings WHERE owner_id = $1 AND product_id = $2",
		int64(owner), int64(product),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrHoldingNotFound
	}
	return h, err
}

func listHoldings(ctx context.Context, q querier, lq ledger.ListQuery) (ledger.Page, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if lq.OwnerID != nil {
		where = append(where, "owner_id = "+arg(int64(*lq.OwnerID)))
	}
	if lq.PriceFrom != nil {
		where = append(where, "unit_price >= "+arg(lq.PriceFrom.String())+"::numeric")
	}
	if lq.PriceTo != nil {
		where = append(where, "unit_price <= "+arg(lq.PriceTo.String())+"::numeric")
	}
	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	var page ledger.Page
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM holdings"+filter, args...).Scan(&page.Total); err != nil {
		return ledger.Page{}, fmt.Errorf("failed to count holdings: %w", err)
	}

	order := " ORDER BY id"
	switch lq.SortBy {
	case ledger.SortPriceAsc:
		order = " ORDER BY unit_price ASC, id"
	case ledger.SortPriceDesc:
		order = " ORDER BY unit_price DESC, id"
	}
	paging := " OFFSET " + arg(lq.Offset)
	if lq.Limit > 0 {
		paging += " LIMIT " + arg(lq.Limit)
	}

	items, err := queryHoldings(ctx, q, "SELECT "+holdingColumns+" FROM holdings"+filter+order+paging, args...)
	if err != nil {
		return ledger.Page{}, err
	}
	page.Items = items
	return page, nil
}

func ownerNames(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.Query(ctx, "SELECT DISTINCT owner_name FROM holdings WHERE owner_name <> '' ORDER BY owner_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query owner names: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func createHolding(ctx context.Context, q querier, h *ledger.Holding) error {
	pending, snapshot, err := encodePending(h)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO holdings
		(owner_id, owner_name, product_id, product_name, product_code, unit, unit_price,
		 qty_new, qty_used, qty_broken, qty_lost, total_value, location, pending, snapshot,
		 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric,
		        $12::numeric, $13, $14::jsonb, $15::jsonb, $16, $17)
		RETURNING id
	`
	var id int64
	err = q.QueryRow(ctx, query,
		int64(h.OwnerID), h.OwnerName,
		int64(h.Product.ProductID), h.Product.Name, h.Product.Code, h.Product.Unit, h.Product.UnitPrice.String(),
		h.Quantities.New.String(), h.Quantities.Used.String(), h.Quantities.Broken.String(), h.Quantities.Lost.String(),
		h.TotalValue.String(), h.Location, pending, snapshot,
		timestamp(h.CreatedAt), timestamp(h.UpdatedAt),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateHolding
		}
		return fmt.Errorf("failed to insert holding: %w", err)
	}
	h.ID = ledger.HoldingID(id)
	return nil
}

func saveHolding(ctx context.Context, q querier, h *ledger.Holding) error {
	pending, snapshot, err := encodePending(h)
	if err != nil {
		return err
	}

	query := `
		UPDATE holdings SET
			owner_id = $2, owner_name = $3,
			qty_new = $4::numeric, qty_used = $5::numeric, qty_broken = $6::numeric, qty_lost = $7::numeric,
			total_value = $8::numeric, location = $9, pending = $10::jsonb, snapshot = $11::jsonb,
			updated_at = $12
		WHERE id = $1
	`
	tag, err := q.Exec(ctx, query,
		int64(h.ID), int64(h.OwnerID), h.OwnerName,
		h.Quantities.New.String(), h.Quantities.Used.String(), h.Quantities.Broken.String(), h.Quantities.Lost.String(),
		h.TotalValue.String(), h.Location, pending, snapshot, timestamp(h.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateHolding
		}
		return fmt.Errorf("failed to update holding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrHoldingNotFound
	}
	return nil
}

func deleteHolding(ctx context.Context, q querier, id ledger.HoldingID) error {
	tag, err := q.Exec(ctx, "DELETE FROM holdings WHERE id = $1", int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrHoldingNotFound
	}
	return nil
}

func queryHoldings(ctx context.Context, q querier, query string, args ...any) ([]ledger.Holding, error) {
	rows, err := q.Query(ctx, query, args...)
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

func scanHolding(row pgx.Row) (*ledger.Holding, error) {
	var (
		h                               ledger.Holding
		id, ownerID, productID          int64
		unitPrice, qNew, qUsed, qBroken string
		qLost, totalValue               string
		pending, snapshot               *string
	)
	err := row.Scan(
		&id, &ownerID, &h.OwnerName,
		&productID, &h.Product.Name, &h.Product.Code, &h.Product.Unit,
		&unitPrice, &qNew, &qUsed, &qBroken, &qLost, &totalValue,
		&h.Location, &pending, &snapshot, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	h.ID = ledger.HoldingID(id)
	h.OwnerID = ledger.OwnerID(ownerID)
	h.Product.ProductID = ledger.ProductID(productID)
	h.Product.UnitPrice = decimal.RequireFromString(unitPrice)
	h.Quantities = ledger.Quantities{
		New:    decimal.RequireFromString(qNew),
		Used:   decimal.RequireFromString(qUsed),
		Broken: decimal.RequireFromString(qBroken),
		Lost:   decimal.RequireFromString(qLost),
	}
	h.TotalValue = decimal.RequireFromString(totalValue)
	h.CreatedAt = h.CreatedAt.UTC()
	h.UpdatedAt = h.UpdatedAt.UTC()

	if pending != nil {
		h.Pending = &ledger.PendingTransfer{}
		if err := json.Unmarshal([]byte(*pending), h.Pending); err != nil {
			return nil, fmt.Errorf("holding %d: corrupt pending transfer: %w", id, err)
		}
	}
	if snapshot != nil {
		h.Snapshot = &ledger.Snapshot{}
		if err := json.Unmarshal([]byte(*snapshot), h.Snapshot); err != nil {
			return nil, fmt.Errorf("holding %d: corrupt snapshot: %w", id, err)
		}
	}
	return &h, nil
}

func encodePending(h *ledger.Holding) (pending, snapshot *string, err error) {
	if h.Pending != nil {
		b, err := json.Marshal(h.Pending)
		if err != nil {
			return nil, nil, err
		}
		v := string(b)
		pending = &v
	}
	if h.Snapshot != nil {
		b, err := json.Marshal(h.Snapshot)
		if err != nil {
			return nil, nil, err
		}
		v := string(b)
		snapshot = &v
	}
	return pending, snapshot, nil
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.TxHoldingStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type txStore struct {
	tx pgx.Tx
}

// Lock takes row locks on the listed holdings. Missing ids are ignored;
// the caller's re-read reports them.
func (ts *txStore) Lock(ctx context.Context, ids ...ledger.HoldingID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	rows, err := ts.tx.Query(ctx, "SELECT id FROM holdings WHERE id = ANY($1) ORDER BY id FOR UPDATE", raw)
	if err != nil {
		return fmt.Errorf("failed to lock holdings: %w", err)
	}
	rows.Close()
	return rows.Err()
}

func (ts *txStore) Get(ctx context.Context, id ledger.HoldingID) (*ledger.Holding, error) {
	return getHolding(ctx, ts.tx, id)
}

func (ts *txStore) GetByOwnerAndProduct(ctx context.Context, owner ledger.OwnerID, product ledger.ProductID) (*ledger.Holding, error) {
	return getHoldingByKey(ctx, ts.tx, owner, product)
}

func (ts *txStore) ListByOwner(ctx context.Context, owner ledger.OwnerID) ([]ledger.Holding, error) {
	return queryHoldings(ctx, ts.tx, "SELECT "+holdingColumns+" FROM holdings WHERE owner_id = $1 ORDER BY id", int64(owner))
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
// USERS AND PRODUCTS
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u ledger.Identity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, int64(u.ID), u.Name)
	return err
}

func (s *Store) GetOwner(ctx context.Context, id ledger.OwnerID) (ledger.Identity, error) {
	var name string
	err := s.pool.QueryRow(ctx, "SELECT name FROM users WHERE id = $1", int64(id)).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Identity{}, ledger.ErrOwnerNotFound
	}
	if err != nil {
		return ledger.Identity{}, err
	}
	return ledger.Identity{ID: id, Name: name}, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]ledger.Identity, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name FROM users ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []ledger.Identity
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		users = append(users, ledger.Identity{ID: ledger.OwnerID(id), Name: name})
	}
	return users, rows.Err()
}

func (s *Store) SaveProduct(ctx context.Context, p ledger.ProductSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, name, code, unit, unit_price) VALUES ($1, $2, $3, $4, $5::numeric)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, code = EXCLUDED.code, unit = EXCLUDED.unit, unit_price = EXCLUDED.unit_price
	`, int64(p.ProductID), p.Name, p.Code, p.Unit, p.UnitPrice.String())
	return err
}

func (s *Store) GetProduct(ctx context.Context, id ledger.ProductID) (ledger.ProductSnapshot, error) {
	p := ledger.ProductSnapshot{ProductID: id}
	var price string
	err := s.pool.QueryRow(ctx,
		"SELECT name, code, unit, unit_price::text FROM products WHERE id = $1", int64(id),
	).Scan(&p.Name, &p.Code, &p.Unit, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ProductSnapshot{}, ledger.ErrProductNotFound
	}
	if err != nil {
		return ledger.ProductSnapshot{}, err
	}
	p.UnitPrice = decimal.RequireFromString(price)
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]ledger.ProductSnapshot, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, code, unit, unit_price::text FROM products ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []ledger.ProductSnapshot
	for rows.Next() {
		var (
			id    int64
			p     ledger.ProductSnapshot
			price string
		)
		if err := rows.Scan(&id, &p.Name, &p.Code, &p.Unit, &price); err != nil {
			return nil, err
		}
		p.ProductID = ledger.ProductID(id)
		p.UnitPrice = decimal.RequireFromString(price)
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// HISTORY
// =============================================================================

// History is the ledger.HistoryLog view of the store.
type History struct {
	pool *pgxpool.Pool
}

func (s *Store) History() *History { return &History{pool: s.pool} }

func (hl *History) Append(ctx context.Context, e ledger.HistoryEntry) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		id = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err = hl.pool.Exec(ctx, `
		INSERT INTO history (id, kind, owner_id, owner_name, holding_id, description, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, string(e.Kind), int64(e.OwnerID), e.OwnerName, int64(e.HoldingID), e.Description, e.At)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (hl *History) ListByOwner(ctx context.Context, owner ledger.OwnerID, limit int) ([]ledger.HistoryEntry, error) {
	query := `
		SELECT id::text, kind, owner_id, owner_name, holding_id, description, at
		FROM history
		WHERE owner_id = $1
		ORDER BY at DESC, seq DESC
	`
	args := []any{int64(owner)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := hl.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []ledger.HistoryEntry
	for rows.Next() {
		var (
			e                  ledger.HistoryEntry
			kind               string
			ownerID, holdingID int64
		)
		if err := rows.Scan(&e.ID, &kind, &ownerID, &e.OwnerName, &holdingID, &e.Description, &e.At); err != nil {
			return nil, err
		}
		e.Kind = ledger.EventKind(kind)
		e.OwnerID = ledger.OwnerID(ownerID)
		e.HoldingID = ledger.HoldingID(holdingID)
		e.At = e.At.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE history, holdings, products, users RESTART IDENTITY")
	return err
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
