package ledger

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// Query is the read-only surface over a HoldingStore.
type Query struct {
	store  HoldingStore
	logger *zap.Logger
}

func NewQuery(store HoldingStore, logger *zap.Logger) *Query {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Query{store: store, logger: logger}
}

func (q *Query) Get(ctx context.Context, id HoldingID) (*Holding, error) {
	h, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, q.fail("get holding", err)
	}
	return h, nil
}

func (q *Query) ListByOwner(ctx context.Context, owner OwnerID) ([]Holding, error) {
	hs, err := q.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, q.fail("list holdings by owner", err)
	}
	return hs, nil
}

// List returns one page of holdings with the paging bounds it applied. An
// empty page is not an error; use Page.Empty to tell it apart.
func (q *Query) List(ctx context.Context, lq ListQuery) (Page, error) {
	lq, err := lq.Normalize()
	if err != nil {
		return Page{}, err
	}
	p, err := q.store.List(ctx, lq)
	if err != nil {
		return Page{}, q.fail("list holdings", err)
	}
	p.Limit, p.Offset = lq.Limit, lq.Offset
	return p, nil
}

// OwnerNames enumerates the distinct names of owners that hold stock,
// sorted alphabetically.
func (q *Query) OwnerNames(ctx context.Context) ([]string, error) {
	names, err := q.store.OwnerNames(ctx)
	if err != nil {
		return nil, q.fail("list owner names", err)
	}
	sort.Strings(names)
	return names, nil
}

func (q *Query) fail(op string, err error) error {
	err = Transient(op, err)
	if KindOf(err) == KindTransient {
		q.logger.Error("query failed", zap.String("op", op), zap.Error(err))
	}
	return err
}
