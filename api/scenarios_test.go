/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state: owners, products,
	holdings, and for the transfer scenario a pending source.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azenco/stock-ledger/ledger"
)

func TestScenario_BakuDepot(t *testing.T) {
	env := setupTestHandler(t)
	ctx := context.Background()

	// WHEN: Loading the scenario
	require.NoError(t, env.handler.Load(ctx, "baku-depot"))

	// THEN: Owners, products and idle holdings exist
	users, err := env.store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	page, err := env.handler.Query.List(ctx, ledger.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	for _, h := range page.Items {
		assert.False(t, h.IsPending())
	}

	cement, err := env.handler.holdingOf(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, cement.TotalValue.Equal(decimal.NewFromInt(500)))
}

func TestScenario_PendingTransfer(t *testing.T) {
	env := setupTestHandler(t)
	ctx := context.Background()

	require.NoError(t, env.handler.Load(ctx, "pending-transfer"))

	src, err := env.handler.holdingOf(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, src.IsPending())
	assert.True(t, src.Total().Equal(decimal.NewFromInt(70)))

	dst, err := env.handler.holdingOf(ctx, 2, 10)
	require.NoError(t, err)
	assert.True(t, dst.Total().Equal(decimal.NewFromInt(30)))
	assert.Equal(t, "Sumqayit", env.mustHolding(t, 2, 12).Location)
}

func TestScenario_DamagedStock(t *testing.T) {
	env := setupTestHandler(t)
	ctx := context.Background()

	require.NoError(t, env.handler.Load(ctx, "damaged-stock"))

	rebar := env.mustHolding(t, 1, 11)
	assert.True(t, rebar.Quantities.New.Equal(decimal.NewFromInt(30)))
	assert.True(t, rebar.Quantities.Broken.Equal(decimal.NewFromInt(3)))
	assert.True(t, rebar.Quantities.Lost.Equal(decimal.NewFromInt(1)))
	assert.True(t, rebar.Quantities.Used.Equal(decimal.NewFromInt(6)))
	assert.True(t, rebar.TotalValue.Equal(decimal.NewFromInt(500)))
}

func TestScenario_ReloadResets(t *testing.T) {
	env := setupTestHandler(t)
	ctx := context.Background()

	require.NoError(t, env.handler.Load(ctx, "pending-transfer"))
	require.NoError(t, env.handler.Load(ctx, "baku-depot"))

	src := env.mustHolding(t, 1, 10)
	assert.False(t, src.IsPending())
	_, err := env.handler.holdingOf(ctx, 2, 10)
	assert.True(t, ledger.IsNotFound(err))
}

func TestScenario_HTTP(t *testing.T) {
	env := setupTestHandler(t)

	rec := env.do(t, http.MethodGet, "/api/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ScenarioDTO](t, rec), len(scenarios))

	rec = env.do(t, http.MethodPost, "/api/scenarios/load", `{"scenarioId": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/scenarios/load", `{"scenarioId": "baku-depot"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/scenarios/current", "")
	assert.Equal(t, "baku-depot", decodeBody[ScenarioDTO](t, rec).ID)

	rec = env.do(t, http.MethodPost, "/api/scenarios/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/holdings", "")
	assert.True(t, decodeBody[HoldingPageDTO](t, rec).Empty)
}

func (e *testEnv) mustHolding(t *testing.T, owner ledger.OwnerID, product ledger.ProductID) *ledger.Holding {
	t.Helper()
	h, err := e.handler.holdingOf(context.Background(), owner, product)
	require.NoError(t, err)
	return h
}
