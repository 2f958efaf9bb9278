/*
handlers_test.go - HTTP tests for the ledger API

Tests for:
- The create/transfer/confirm/cancel walk-through over HTTP
- Error taxonomy to status code mapping
- Idempotent transfer retries
- Listing, paging and history
*/
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azenco/stock-ledger/ledger"
	"github.com/azenco/stock-ledger/ledger/store"
	"github.com/azenco/stock-ledger/store/sqlite"
)

type testEnv struct {
	store   *sqlite.Store
	handler *Handler
	router  http.Handler
}

func setupTestHandler(t *testing.T) *testEnv {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	engine := ledger.NewEngine(s, ledger.NewValidator(nil), s, s,
		ledger.WithReporter(ledger.NewReporter(s.History(), nil)),
		ledger.WithIdempotency(store.NewIdempotency(), time.Hour),
	)
	h := NewHandler(engine, ledger.NewQuery(s, nil), s, s.History(), nil)
	h.Auditor = NewAuditor(s, nil, nil)

	return &testEnv{store: s, handler: h, router: NewRouter(h, RouterOptions{Scenarios: true})}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedDirectory registers Aysel (1), Rashad (2), cement at 5 per kg and
// rebar at 12.50 per piece.
func (e *testEnv) seedDirectory(t *testing.T) {
	t.Helper()
	for _, body := range []string{`{"id": 1, "name": "Aysel"}`, `{"id": 2, "name": "Rashad"}`} {
		rec := e.do(t, http.MethodPost, "/api/users", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	for _, body := range []string{
		`{"id": 10, "name": "Cement M400", "unit": "kg", "unitPrice": 5}`,
		`{"id": 11, "name": "Rebar 12mm", "unit": "piece", "unitPrice": "12.50"}`,
	} {
		rec := e.do(t, http.MethodPost, "/api/products", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func (e *testEnv) createHolding(t *testing.T, body string) HoldingDTO {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/holdings", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[HoldingResponse](t, rec).Holding
}

func TestTransferWalkthrough(t *testing.T) {
	env := setupTestHandler(t)
	env.seedDirectory(t)

	// GIVEN: Aysel holds 100 kg of cement at 5 per kg
	src := env.createHolding(t, `{"ownerId": 1, "productId": 10, "location": "Baku", "initialQuantity": 100}`)
	assert.Equal(t, "100", src.Quantity)
	assert.Equal(t, "500", src.TotalValue)
	assert.False(t, src.PendingState)

	// WHEN: She transfers 30 kg to Rashad
	rec := env.do(t, http.MethodPost, "/api/holdings/transfer",
		`{"sourceHoldingId": `+itoa(src.ID)+`, "destinationOwnerId": 2, "destinationOwnerName": "Rashad", "quantity": 30}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tr := decodeBody[TransferResponse](t, rec)

	// THEN: The source is pending at 70 and the destination holds 30
	require.NotNil(t, tr.Source)
	require.NotNil(t, tr.Destination)
	assert.Equal(t, "70", tr.Source.Quantity)
	assert.Equal(t, "350", tr.Source.TotalValue)
	assert.True(t, tr.Source.PendingState)
	require.NotNil(t, tr.Source.Pending)
	assert.Equal(t, tr.Destination.ID, tr.Source.Pending.DestinationID)
	assert.Equal(t, "30", tr.Destination.Quantity)
	assert.Equal(t, "150", tr.Destination.TotalValue)
	assert.False(t, tr.Destination.PendingState)
	assert.NotEmpty(t, tr.Message)

	// WHEN: Rashad confirms receipt on the destination, which was never pending
	rec = env.do(t, http.MethodPost, "/api/holdings/confirm",
		`{"holdingId": `+itoa(tr.Destination.ID)+`, "confirmingOwnerId": 2}`)

	// THEN: The confirm is forbidden and nothing changes
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeBody[ErrorResponse](t, rec).Code)

	// WHEN: Aysel cancels the transfer
	rec = env.do(t, http.MethodPost, "/api/holdings/cancel", `{"holdingId": `+itoa(src.ID)+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancel := decodeBody[CancelResponse](t, rec)

	// THEN: The source is restored and the created destination is gone
	assert.True(t, cancel.Cancelled)
	assert.False(t, cancel.PendingState)
	assert.True(t, cancel.DestinationRemoved)
	require.NotNil(t, cancel.Holding)
	assert.Equal(t, "100", cancel.Holding.Quantity)
	assert.Equal(t, "500", cancel.Holding.TotalValue)

	rec = env.do(t, http.MethodGet, "/api/holdings/"+itoa(tr.Destination.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// WHEN: Cancelling again
	rec = env.do(t, http.MethodPost, "/api/holdings/cancel", `{"holdingId": `+itoa(src.ID)+`}`)

	// THEN: Nothing to cancel, still a success
	require.Equal(t, http.StatusOK, rec.Code)
	again := decodeBody[CancelResponse](t, rec)
	assert.False(t, again.Cancelled)
	assert.Equal(t, string(ledger.StateIdle), again.State)
}

func TestConfirmReceipt_DepletedSourceIsRemoved(t *testing.T) {
	env := setupTestHandler(t)
	env.seedDirectory(t)
	src := env.createHolding(t, `{"ownerId": 1, "productId": 11, "location": "Baku", "initialQuantity": 4}`)

	// GIVEN: The whole holding is in flight
	rec := env.do(t, http.MethodPost, "/api/holdings/transfer",
		`{"sourceHoldingId": `+itoa(src.ID)+`, "destinationOwnerId": 2, "quantity": 4}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Someone other than the owner confirms
	rec = env.do(t, http.MethodPost, "/api/holdings/confirm", `{"holdingId": `+itoa(src.ID)+`, "confirmingOwnerId": 2}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// WHEN: The owner confirms
	rec = env.do(t, http.MethodPost, "/api/holdings/confirm", `{"holdingId": `+itoa(src.ID)+`, "confirmingOwnerId": 1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirm := decodeBody[ConfirmResponse](t, rec)

	// THEN: The empty holding is deleted
	assert.True(t, confirm.Removed)
	assert.Equal(t, string(ledger.StateDepleted), confirm.State)
	assert.False(t, confirm.PendingState)
	assert.Nil(t, confirm.Holding)

	rec = env.do(t, http.MethodGet, "/api/holdings/"+itoa(src.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	env := setupTestHandler(t)
	env.seedDirectory(t)
	src := env.createHolding(t, `{"ownerId": 1, "productId": 11, "location": "Baku", "initialQuantity": 10}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   ledger.Kind
	}{
		{"fractional pieces", http.MethodPost, "/api/holdings/transfer",
			`{"sourceHoldingId": ` + itoa(src.ID) + `, "destinationOwnerId": 2, "quantity": 2.5}`,
			http.StatusBadRequest, ledger.KindValidation},
		{"malformed body", http.MethodPost, "/api/holdings", `{"ownerId": `, http.StatusBadRequest, ledger.KindValidation},
		{"short location", http.MethodPost, "/api/holdings",
			`{"ownerId": 2, "productId": 11, "location": "Ba", "initialQuantity": 1}`,
			http.StatusBadRequest, ledger.KindValidation},
		{"non-numeric id", http.MethodGet, "/api/holdings/abc", "", http.StatusBadRequest, ledger.KindValidation},
		{"unknown holding", http.MethodGet, "/api/holdings/999", "", http.StatusNotFound, ledger.KindNotFound},
		{"unknown owner", http.MethodPost, "/api/holdings",
			`{"ownerId": 77, "productId": 11, "location": "Baku", "initialQuantity": 1}`,
			http.StatusNotFound, ledger.KindNotFound},
		{"duplicate holding", http.MethodPost, "/api/holdings",
			`{"ownerId": 1, "productId": 11, "location": "Baku", "initialQuantity": 1}`,
			http.StatusConflict, ledger.KindConflict},
		{"insufficient stock", http.MethodPost, "/api/holdings/transfer",
			`{"sourceHoldingId": ` + itoa(src.ID) + `, "destinationOwnerId": 2, "quantity": 11}`,
			http.StatusConflict, ledger.KindInsufficientStock},
		{"wrong owner name", http.MethodPost, "/api/holdings/transfer",
			`{"sourceHoldingId": ` + itoa(src.ID) + `, "destinationOwnerId": 2, "destinationOwnerName": "Leyla", "quantity": 1}`,
			http.StatusBadRequest, ledger.KindValidation},
		{"bad sort", http.MethodGet, "/api/holdings?sortBy=name", "", http.StatusBadRequest, ledger.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, string(tt.code), resp.Code)
			assert.NotEmpty(t, resp.ErrorMessage)
		})
	}
}

func TestPendingHoldingRejectsMutations(t *testing.T) {
	env := setupTestHandler(t)
	env.seedDirectory(t)
	src := env.createHolding(t, `{"ownerId": 1, "productId": 11, "location": "Baku", "initialQuantity": 10}`)

	rec := env.do(t, http.MethodPost, "/api/holdings/transfer",
		`{"sourceHoldingId": `+itoa(src.ID)+`, "destinationOwnerId": 2, "quantity": 3}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, c := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/holdings/transfer", `{"sourceHoldingId": ` + itoa(src.ID) + `, "destinationOwnerId": 2, "quantity": 1}`},
		{http.MethodPost, "/api/holdings/" + itoa(src.ID) + "/receive", `{"quantity": 1}`},
		{http.MethodPost, "/api/holdings/" + itoa(src.ID) + "/reclassify", `{"from": "new", "to": "broken", "quantity": 1}`},
		{http.MethodDelete, "/api/holdings/" + itoa(src.ID), ""},
	} {
		rec := env.do(t, c.method, c.path, c.body)
		assert.Equal(t, http.StatusConflict, rec.Code, c.path)
	}
}

func TestInitiateTransfer_IdempotencyKey(t *testing.T) {
	env := setupTestHandler(t)
	env.seedDirectory(t)
	src := env.createHolding(t, `{"ownerId": 1, "productId": 10, "location": "Baku", "initialQuantity": 100}`)
	body := `{"sourceHoldingId": ` + itoa(src.ID) + `, "destinationOwnerId": 2, "quantity": "12.5"}`

	// WHEN: The client retries the same request with the same key
	first := env.do(t, http.MethodPost, "/api/holdings/transfer", body, IdempotencyHeader, "retry-1")
	second := env.do(t, http.MethodPost, "/api/holdings/transfer", body, IdempotencyHeader, "retry-1")

	// THEN: The second call replays the first outcome
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	a := decodeBody[TransferResponse](t, first)
	b := decodeBody[TransferResponse](t, second)
	assert.Equal(t, a.TransferID, b.TransferID)
	assert.True(t, b.Replayed)

	// AND: Stock was moved once
	rec := env.do(t, http.MethodGet, "/api/holdings/"+itoa(src.ID), "")
	assert.Equal(t, "87.5", decodeBody[HoldingDTO](t, rec).Quantity)
}

func TestInitiateTransfer_ReplayAfterHoldingsAreGone(t *testing.T) {
	env := setupTestHandler(t)
	env.seedDirectory(t)

	// GIVEN: A keyed transfer to Rashad that is then cancelled, which
	// deletes the destination it created
	src := env.createHolding(t, `{"ownerId": 1, "productId": 10, "location": "Baku", "initialQuantity": 100}`)
	body := `{"sourceHoldingId": ` + itoa(src.ID) + `, "destinationOwnerId": 2, "quantity": 30}`
	first := env.do(t, http.MethodPost, "/api/holdings/transfer", body, IdempotencyHeader, "retry-2")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	rec := env.do(t, http.MethodPost, "/api/holdings/cancel", `{"holdingId": `+itoa(src.ID)+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decodeBody[CancelResponse](t, rec).DestinationRemoved)

	// WHEN: The client retries with the same key
	rec = env.do(t, http.MethodPost, "/api/holdings/transfer", body, IdempotencyHeader, "retry-2")

	// THEN: The outcome is replayed without the removed destination
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replay := decodeBody[TransferResponse](t, rec)
	assert.True(t, replay.Replayed)
	assert.Equal(t, decodeBody[TransferResponse](t, first).TransferID, replay.TransferID)
	require.NotNil(t, replay.Source)
	assert.Equal(t, "100", replay.Source.Quantity)
	assert.Nil(t, replay.Destination)
	assert.NotContains(t, rec.Body.String(), `"destination"`)
	assert.Contains(t, replay.Message, "since been confirmed or removed")

	// GIVEN: A keyed transfer of a whole holding, confirmed and removed
	rebar := env.createHolding(t, `{"ownerId": 1, "productId": 11, "location": "Baku", "initialQuantity": 4}`)
	body = `{"sourceHoldingId": ` + itoa(rebar.ID) + `, "destinationOwnerId": 2, "quantity": 4}`
	rec = env.do(t, http.MethodPost, "/api/holdings/transfer", body, IdempotencyHeader, "retry-3")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPost, "/api/holdings/confirm", `{"holdingId": `+itoa(rebar.ID)+`, "confirmingOwnerId": 1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decodeBody[ConfirmResponse](t, rec).Removed)

	// WHEN: The client retries with the same key
	rec = env.do(t, http.MethodPost, "/api/holdings/transfer", body, IdempotencyHeader, "retry-3")

	// THEN: Only the destination is returned
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replay = decodeBody[TransferResponse](t, rec)
	assert.True(t, replay.Replayed)
	assert.Nil(t, replay.Source)
	require.NotNil(t, replay.Destination)
	assert.Equal(t, "4", replay.Destination.Quantity)
}

func TestReceiveAndReclassify(t *testing.T) {
	env := setupTestHandler(t)
	env.seedDirectory(t)
	h := env.createHolding(t, `{"ownerId": 1, "productId": 11, "location": "Baku", "initialQuantity": 10}`)

	rec := env.do(t, http.MethodPost, "/api/holdings/"+itoa(h.ID)+"/receive", `{"category": "used", "quantity": 5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[HoldingResponse](t, rec).Holding
	assert.Equal(t, "15", got.Quantity)
	assert.Equal(t, "5", got.Quantities.Used)
	assert.Equal(t, "187.5", got.TotalValue)

	rec = env.do(t, http.MethodPost, "/api/holdings/"+itoa(h.ID)+"/reclassify", `{"from": "new", "to": "broken", "quantity": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decodeBody[HoldingResponse](t, rec).Holding
	assert.Equal(t, "8", got.Quantities.New)
	assert.Equal(t, "2", got.Quantities.Broken)
	assert.Equal(t, "15", got.Quantity)
	assert.Equal(t, "187.5", got.TotalValue)

	rec = env.do(t, http.MethodPost, "/api/holdings/"+itoa(h.ID)+"/reclassify", `{"from": "lost", "to": "new", "quantity": 1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(ledger.KindInsufficientStock), decodeBody[ErrorResponse](t, rec).Code)
}

func TestRemoveHolding(t *testing.T) {
	env := setupTestHandler(t)
	env.seedDirectory(t)
	h := env.createHolding(t, `{"ownerId": 1, "productId": 11, "location": "Baku", "initialQuantity": 10}`)

	rec := env.do(t, http.MethodDelete, "/api/holdings/"+itoa(h.ID)+"?requestedBy=2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/holdings/"+itoa(h.ID)+"?requestedBy=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody[MessageResponse](t, rec).Message)

	rec = env.do(t, http.MethodGet, "/api/holdings/"+itoa(h.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListHoldings(t *testing.T) {
	env := setupTestHandler(t)

	// GIVEN: An empty store
	rec := env.do(t, http.MethodGet, "/api/holdings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decodeBody[HoldingPageDTO](t, rec)
	assert.True(t, empty.Empty)
	assert.Equal(t, 0, empty.Total)
	assert.NotEmpty(t, empty.Message)

	// GIVEN: Three holdings at different unit prices
	env.seedDirectory(t)
	rec = env.do(t, http.MethodPost, "/api/products", `{"id": 12, "name": "Cable", "unit": "m", "unitPrice": "100.25"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	env.createHolding(t, `{"ownerId": 1, "productId": 10, "location": "Baku", "initialQuantity": 1}`)
	env.createHolding(t, `{"ownerId": 1, "productId": 11, "location": "Baku", "initialQuantity": 1}`)
	env.createHolding(t, `{"ownerId": 2, "productId": 12, "location": "Ganja", "initialQuantity": 1}`)

	// WHEN: Sorting by price, most expensive first, two per page
	rec = env.do(t, http.MethodGet, "/api/holdings?sortBy=price_desc&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodeBody[HoldingPageDTO](t, rec)

	// THEN: Prices sort numerically, not as text
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "100.25", page.Items[0].UnitPrice)
	assert.Equal(t, "12.5", page.Items[1].UnitPrice)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 0, page.Offset)

	// WHEN: Asking for the next page
	rec = env.do(t, http.MethodGet, "/api/holdings?sortBy=price_desc&limit=2&offset=2", "")
	page = decodeBody[HoldingPageDTO](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.Offset)

	// WHEN: Filtering by price range
	rec = env.do(t, http.MethodGet, "/api/holdings?priceFrom=6&priceTo=50", "")
	page = decodeBody[HoldingPageDTO](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(11), page.Items[0].ProductID)
	assert.Equal(t, ledger.DefaultPageSize, page.Limit)

	// WHEN: Listing by owner
	rec = env.do(t, http.MethodGet, "/api/holdings?ownerId=1", "")
	page = decodeBody[HoldingPageDTO](t, rec)
	assert.Len(t, page.Items, 2)

	rec = env.do(t, http.MethodGet, "/api/owners/names", "")
	assert.Equal(t, []string{"Aysel", "Rashad"}, decodeBody[[]string](t, rec))
}

func TestHistoryAndAudit(t *testing.T) {
	env := setupTestHandler(t)
	env.seedDirectory(t)
	h := env.createHolding(t, `{"ownerId": 1, "productId": 10, "location": "Baku", "initialQuantity": 100}`)
	rec := env.do(t, http.MethodPost, "/api/holdings/transfer",
		`{"sourceHoldingId": `+itoa(h.ID)+`, "destinationOwnerId": 2, "quantity": 30}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/history?ownerId=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decodeBody[[]HistoryDTO](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, string(ledger.EventTransferInitiated), entries[0].Kind)
	assert.Equal(t, string(ledger.EventHoldingCreated), entries[1].Kind)

	rec = env.do(t, http.MethodGet, "/api/history", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/audit", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	audit := decodeBody[AuditDTO](t, rec)
	assert.True(t, audit.Clean)
	assert.Equal(t, 2, audit.Checked)
}

func TestStorageFailureIsGeneric(t *testing.T) {
	env := setupTestHandler(t)

	// GIVEN: The database is gone
	require.NoError(t, env.store.Close())

	// WHEN: Reading a holding
	rec := env.do(t, http.MethodGet, "/api/holdings/1", "")

	// THEN: The client sees a generic transient failure
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, string(ledger.KindTransient), resp.Code)
	assert.NotContains(t, resp.ErrorMessage, "sql")

	rec = env.do(t, http.MethodGet, "/api/healthz", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	env := setupTestHandler(t)
	rec := env.do(t, http.MethodGet, "/api/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
