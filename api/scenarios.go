/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	warehouse data. Each scenario creates owners, products and holdings
	through the engine, so the history log reads like real activity.

AVAILABLE SCENARIOS:

	baku-depot:       Three owners, cement/rebar/cable, all holdings idle
	pending-transfer: baku-depot plus 30 kg of cement in flight to Rashad
	damaged-stock:    baku-depot plus rebar reclassified to broken and lost

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Register owners and products in the local directory
 3. Create holdings via the engine
 4. Optionally move stock (transfer, reclassify)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenarioId": "pending-transfer"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario

NOTE:

	Scenarios reset the store. Only use in development/demo environments.
	With CATALOG_URL set, owners and products resolve remotely and the
	seeded directory rows are ignored by the engine.

SEE ALSO:
  - handlers.go: ResetDatabase handler
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/azenco/stock-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "baku-depot",
		Name:        "Baku Depot",
		Description: "Three owners holding cement, rebar and cable; nothing in flight",
	},
	{
		ID:          "pending-transfer",
		Name:        "Pending Transfer",
		Description: "Aysel has sent 30 kg of cement to Rashad and not yet confirmed",
	},
	{
		ID:          "damaged-stock",
		Name:        "Damaged Stock",
		Description: "Rebar partly reclassified as broken and lost after inventory",
	},
}

var (
	demoOwners = []ledger.Identity{
		{ID: 1, Name: "Aysel"},
		{ID: 2, Name: "Rashad"},
		{ID: 3, Name: "Leyla"},
	}
	demoProducts = []ledger.ProductSnapshot{
		{ProductID: 10, Name: "Cement M400", Code: "CEM-400", Unit: "kg", UnitPrice: decimal.RequireFromString("5.00")},
		{ProductID: 11, Name: "Rebar 12mm", Code: "RB-12", Unit: "piece", UnitPrice: decimal.RequireFromString("12.50")},
		{ProductID: 12, Name: "Copper cable 3x2.5", Code: "CBL-325", Unit: "m", UnitPrice: decimal.RequireFromString("3.75")},
	}
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Load(r.Context(), req.ScenarioID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("scenario %s loaded", req.ScenarioID)})
}

// Load resets the store and loads the scenario with the given id.
func (h *Handler) Load(ctx context.Context, id string) error {
	var loader func(context.Context) error
	switch id {
	case "baku-depot":
		loader = h.loadBakuDepotScenario
	case "pending-transfer":
		loader = h.loadPendingTransferScenario
	case "damaged-stock":
		loader = h.loadDamagedStockScenario
	default:
		return &ledger.ValidationError{Field: "scenarioId", Reason: fmt.Sprintf("unknown scenario %q", id)}
	}

	if err := h.Admin.Reset(ctx); err != nil {
		return ledger.Transient("reset", err)
	}
	if err := loader(ctx); err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}
	h.setScenario(id)
	h.logger.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) seedDirectory(ctx context.Context) error {
	for _, o := range demoOwners {
		if err := h.Admin.SaveUser(ctx, o); err != nil {
			return ledger.Transient("seed users", err)
		}
	}
	for _, p := range demoProducts {
		if err := h.Admin.SaveProduct(ctx, p); err != nil {
			return ledger.Transient("seed products", err)
		}
	}
	return nil
}

func (h *Handler) loadBakuDepotScenario(ctx context.Context) error {
	if err := h.seedDirectory(ctx); err != nil {
		return err
	}

	holdings := []ledger.CreateHoldingInput{
		{OwnerID: 1, ProductID: 10, Location: "Baku", Quantity: decimal.NewFromInt(100)},
		{OwnerID: 1, ProductID: 11, Location: "Baku", Quantity: decimal.NewFromInt(40)},
		{OwnerID: 2, ProductID: 12, Location: "Sumqayit", Quantity: decimal.RequireFromString("250.5")},
		{OwnerID: 3, ProductID: 10, Location: "Ganja", Quantity: decimal.RequireFromString("12.250")},
	}
	for _, in := range holdings {
		if _, err := h.Engine.CreateHolding(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadPendingTransferScenario(ctx context.Context) error {
	if err := h.loadBakuDepotScenario(ctx); err != nil {
		return err
	}
	src, err := h.holdingOf(ctx, 1, 10)
	if err != nil {
		return err
	}
	_, err = h.Engine.InitiateTransfer(ctx, ledger.Transfer{
		SourceHoldingID:      src.ID,
		DestinationOwnerID:   2,
		DestinationOwnerName: "Rashad",
		Quantity:             decimal.NewFromInt(30),
	})
	return err
}

func (h *Handler) loadDamagedStockScenario(ctx context.Context) error {
	if err := h.loadBakuDepotScenario(ctx); err != nil {
		return err
	}
	rebar, err := h.holdingOf(ctx, 1, 11)
	if err != nil {
		return err
	}
	moves := []ledger.ReclassifyInput{
		{HoldingID: rebar.ID, From: ledger.CategoryNew, To: ledger.CategoryBroken, Quantity: decimal.NewFromInt(3)},
		{HoldingID: rebar.ID, From: ledger.CategoryNew, To: ledger.CategoryLost, Quantity: decimal.NewFromInt(1)},
		{HoldingID: rebar.ID, From: ledger.CategoryNew, To: ledger.CategoryUsed, Quantity: decimal.NewFromInt(6)},
	}
	for _, in := range moves {
		if _, err := h.Engine.Reclassify(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) holdingOf(ctx context.Context, owner ledger.OwnerID, product ledger.ProductID) (*ledger.Holding, error) {
	items, err := h.Query.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Product.ProductID == product {
			return &items[i], nil
		}
	}
	return nil, ledger.ErrHoldingNotFound
}
