package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azenco/stock-ledger/ledger"
	"github.com/azenco/stock-ledger/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seed(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveUser(ctx, ledger.Identity{ID: 1, Name: "Aysel"}))
	require.NoError(t, s.SaveUser(ctx, ledger.Identity{ID: 2, Name: "Rashad"}))
	require.NoError(t, s.SaveProduct(ctx, ledger.ProductSnapshot{ProductID: 10, Name: "Cement M400", Unit: "kg", UnitPrice: dec("5")}))
	require.NoError(t, s.SaveProduct(ctx, ledger.ProductSnapshot{ProductID: 11, Name: "Rebar 12mm", Unit: "piece", UnitPrice: dec("12.50")}))
	require.NoError(t, s.SaveProduct(ctx, ledger.ProductSnapshot{ProductID: 12, Name: "Copper cable", Unit: "m", UnitPrice: dec("3.20")}))
}

func newEngine(s *sqlite.Store) *ledger.Engine {
	return ledger.NewEngine(s, ledger.NewValidator(nil), s, s,
		ledger.WithReporter(ledger.NewReporter(s.History(), nil)))
}

func TestStore_HoldingRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// GIVEN: A pending holding with a snapshot
	h := &ledger.Holding{
		OwnerID:   1,
		OwnerName: "Aysel",
		Product:   ledger.ProductSnapshot{ProductID: 10, Name: "Cement M400", Unit: "kg", UnitPrice: dec("5")},
		Location:  "Baku",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	h.Deposit(ledger.CategoryNew, dec("100.125"))
	require.NoError(t, s.Create(ctx, h))
	require.NotZero(t, h.ID)

	h.Pending = &ledger.PendingTransfer{TransferID: "t-1", DestinationID: 9, Category: ledger.CategoryNew, Quantity: dec("40"), Since: h.CreatedAt}
	h.Snapshot = &ledger.Snapshot{Quantities: h.Quantities, TotalValue: h.TotalValue}
	require.NoError(t, s.Save(ctx, h))

	// WHEN
	got, err := s.Get(ctx, h.ID)

	// THEN: Decimals, pending state and timestamps survive exactly
	require.NoError(t, err)
	assert.True(t, got.Quantities.New.Equal(dec("100.125")))
	assert.True(t, got.TotalValue.Equal(dec("500.625")))
	require.NotNil(t, got.Pending)
	assert.Equal(t, ledger.TransferID("t-1"), got.Pending.TransferID)
	assert.True(t, got.Pending.Quantity.Equal(dec("40")))
	require.NotNil(t, got.Snapshot)
	assert.True(t, got.Snapshot.TotalValue.Equal(dec("500.625")))
	assert.True(t, got.CreatedAt.Equal(h.CreatedAt))

	byKey, err := s.GetByOwnerAndProduct(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, h.ID, byKey.ID)
}

func TestStore_NotFoundAndDuplicate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, 404)
	assert.True(t, errors.Is(err, ledger.ErrHoldingNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, 404), ledger.ErrHoldingNotFound))
	assert.True(t, errors.Is(s.Save(ctx, &ledger.Holding{ID: 404}), ledger.ErrHoldingNotFound))

	h := &ledger.Holding{OwnerID: 1, OwnerName: "Aysel", Product: ledger.ProductSnapshot{ProductID: 10, Unit: "kg"}, Location: "Baku"}
	require.NoError(t, s.Create(ctx, h))
	dup := &ledger.Holding{OwnerID: 1, OwnerName: "Aysel", Product: ledger.ProductSnapshot{ProductID: 10, Unit: "kg"}, Location: "Ganja"}
	assert.True(t, errors.Is(s.Create(ctx, dup), ledger.ErrDuplicateHolding))

	_, err = s.GetOwner(ctx, 99)
	assert.True(t, errors.Is(err, ledger.ErrOwnerNotFound))
	_, err = s.GetProduct(ctx, 99)
	assert.True(t, errors.Is(err, ledger.ErrProductNotFound))
}

func TestStore_WithTxRollsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx ledger.TxHoldingStore) error {
		h := &ledger.Holding{OwnerID: 1, OwnerName: "Aysel", Product: ledger.ProductSnapshot{ProductID: 10, Unit: "kg"}, Location: "Baku"}
		if err := tx.Create(ctx, h); err != nil {
			return err
		}
		// Reads inside the unit of work see the uncommitted row.
		if _, err := tx.Get(ctx, h.ID); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	page, err := s.List(ctx, ledger.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestStore_ListSortsAndFiltersNumerically(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	e := newEngine(s)
	ctx := context.Background()

	for _, in := range []ledger.CreateHoldingInput{
		{OwnerID: 1, ProductID: 10, Location: "Baku", Quantity: dec("1")},
		{OwnerID: 1, ProductID: 11, Location: "Baku", Quantity: dec("1")},
		{OwnerID: 2, ProductID: 12, Location: "Sumqayit", Quantity: dec("1")},
	} {
		_, err := e.CreateHolding(ctx, in)
		require.NoError(t, err)
	}

	// "12.50" sorts above "5" only when compared as numbers.
	page, err := s.List(ctx, ledger.ListQuery{SortBy: ledger.SortPriceDesc, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, ledger.ProductID(11), page.Items[0].Product.ProductID)
	assert.Equal(t, ledger.ProductID(10), page.Items[1].Product.ProductID)
	assert.Equal(t, ledger.ProductID(12), page.Items[2].Product.ProductID)

	from, to := dec("4"), dec("13")
	page, err = s.List(ctx, ledger.ListQuery{PriceFrom: &from, PriceTo: &to, SortBy: ledger.SortPriceAsc, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ledger.ProductID(11), page.Items[0].Product.ProductID)

	names, err := s.OwnerNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Aysel", "Rashad"}, names)
}

func TestStore_PriceFilterIsExactAtTheBoundary(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveUser(ctx, ledger.Identity{ID: 1, Name: "Aysel"}))
	require.NoError(t, s.SaveProduct(ctx, ledger.ProductSnapshot{ProductID: 20, Name: "Washer", Unit: "piece", UnitPrice: dec("0.3")}))
	require.NoError(t, s.SaveProduct(ctx, ledger.ProductSnapshot{ProductID: 21, Name: "Bolt", Unit: "piece", UnitPrice: dec("100")}))
	e := newEngine(s)
	for _, p := range []ledger.ProductID{20, 21} {
		_, err := e.CreateHolding(ctx, ledger.CreateHoldingInput{OwnerID: 1, ProductID: p, Location: "Baku", Quantity: dec("1")})
		require.NoError(t, err)
	}

	// GIVEN: Bounds that equal 0.3 as binary floats but not as decimals
	above, below := dec("0.30000000000000001"), dec("0.29999999999999999")

	// THEN: 0.3 is outside both ranges
	page, err := s.List(ctx, ledger.ListQuery{PriceFrom: &above, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ledger.ProductID(21), page.Items[0].Product.ProductID)

	page, err = s.List(ctx, ledger.ListQuery{PriceTo: &below, Limit: 10})
	require.NoError(t, err)
	assert.True(t, page.Empty())

	// AND: The exact price is inclusive on both ends
	exact := dec("0.300")
	page, err = s.List(ctx, ledger.ListQuery{PriceFrom: &exact, PriceTo: &exact, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ledger.ProductID(20), page.Items[0].Product.ProductID)

	// AND: 100 sorts above 0.3 and a negative lower bound matches everything
	neg := dec("-1")
	page, err = s.List(ctx, ledger.ListQuery{PriceFrom: &neg, SortBy: ledger.SortPriceDesc, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ledger.ProductID(21), page.Items[0].Product.ProductID)
}

func TestStore_CorruptDecimalIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seed(t, s)
	ctx := context.Background()
	h, err := newEngine(s).CreateHolding(ctx, ledger.CreateHoldingInput{OwnerID: 1, ProductID: 10, Location: "Baku", Quantity: dec("7")})
	require.NoError(t, err)

	// GIVEN: A quantity column that no longer holds a decimal
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(ctx, "UPDATE holdings SET qty_new = 'seven' WHERE id = ?", h.ID)
	require.NoError(t, err)

	// WHEN: The holding is read back
	_, err = s.Get(ctx, h.ID)

	// THEN: The read fails instead of reporting zero stock
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qty_new")
	_, err = s.List(ctx, ledger.ListQuery{Limit: 10})
	assert.Error(t, err)
}

func TestStore_TransferLifecycle(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	e := newEngine(s)
	ctx := context.Background()

	src, err := e.CreateHolding(ctx, ledger.CreateHoldingInput{OwnerID: 1, ProductID: 10, Location: "Baku", Quantity: dec("100")})
	require.NoError(t, err)

	// WHEN: Aysel transfers 40 kg to Rashad
	res, err := e.InitiateTransfer(ctx, ledger.Transfer{SourceHoldingID: src.ID, DestinationOwnerID: 2, Quantity: dec("40")})
	require.NoError(t, err)

	// THEN: Both sides are persisted, the source is pending
	gotSrc, err := s.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.True(t, gotSrc.IsPending())
	assert.True(t, gotSrc.Total().Equal(dec("60")))
	gotDst, err := s.Get(ctx, res.Destination.ID)
	require.NoError(t, err)
	assert.True(t, gotDst.Total().Equal(dec("40")))
	assert.True(t, gotDst.TotalValue.Equal(dec("200")))

	// WHEN: The transfer is cancelled
	cancel, err := e.CancelTransfer(ctx, ledger.CancelRequest{HoldingID: src.ID})
	require.NoError(t, err)

	// THEN: The source is restored and the created destination is gone
	assert.True(t, cancel.DestinationRemoved)
	gotSrc, err = s.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.False(t, gotSrc.IsPending())
	assert.True(t, gotSrc.Total().Equal(dec("100")))
	_, err = s.Get(ctx, res.Destination.ID)
	assert.True(t, ledger.IsNotFound(err))

	// History is kept per owner, newest first.
	entries, err := s.History().ListByOwner(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ledger.EventTransferCancelled, entries[0].Kind)
	assert.Equal(t, ledger.EventHoldingCreated, entries[2].Kind)
}

func TestStore_Reset(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.Reset(ctx))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}
