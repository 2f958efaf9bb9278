/*
handlers.go - HTTP API handlers for the stock ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine and query surface.

ENDPOINTS:
  Holdings:
    POST   /api/holdings                   Create a holding (receiving event)
    GET    /api/holdings                   List (ownerId, or limit/offset/
                                           priceFrom/priceTo/sortBy)
    GET    /api/holdings/{id}              Get one holding
    DELETE /api/holdings/{id}              Remove an idle holding
    POST   /api/holdings/{id}/receive      Add stock to a category
    POST   /api/holdings/{id}/reclassify   Move stock between categories

  Transfers:
    POST   /api/holdings/transfer          Initiate (Idempotency-Key header)
    POST   /api/holdings/confirm           Confirm receipt
    POST   /api/holdings/cancel            Cancel and restore

  Directory:
    GET|POST /api/users, GET|POST /api/products, GET /api/owners/names
    GET      /api/history?ownerId=&limit=

  Operations:
    GET    /api/audit                      Run the invariant audit now
    GET    /api/healthz                    Store ping

REQUEST FLOW:
  1. Decode JSON (numbers as json.Number)
  2. Parse ids and quantities into ledger types
  3. Call the engine or query surface
  4. Serialize the result with its message

ERROR HANDLING:
  Every failure is {"errorMessage": "...", "code": "<kind>"}:
  - 400 validation
  - 404 not_found
  - 409 conflict, insufficient_stock
  - 403 forbidden
  - 500 transient (generic message, cause only in the log)

SECURITY NOTE:
  No authentication. Owner ids in request bodies are trusted.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/azenco/stock-ledger/ledger"
)

// IdempotencyHeader carries the client key for POST /holdings/transfer.
const IdempotencyHeader = "Idempotency-Key"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Admin is the local directory and maintenance surface of a store backend.
type Admin interface {
	SaveUser(ctx context.Context, u ledger.Identity) error
	ListUsers(ctx context.Context) ([]ledger.Identity, error)
	SaveProduct(ctx context.Context, p ledger.ProductSnapshot) error
	ListProducts(ctx context.Context) ([]ledger.ProductSnapshot, error)
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *ledger.Engine
	Query   *ledger.Query
	Admin   Admin
	History ledger.HistoryLog
	Auditor *Auditor

	logger *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. Auditor may be set afterwards.
func NewHandler(engine *ledger.Engine, query *ledger.Query, admin Admin, history ledger.HistoryLog, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:  engine,
		Query:   query,
		Admin:   admin,
		History: history,
		logger:  logger,
	}
}

// =============================================================================
// HOLDING HANDLERS
// =============================================================================

// CreateHolding registers a new holding.
func (h *Handler) CreateHolding(w http.ResponseWriter, r *http.Request) {
	var req CreateHoldingRequest
	if !h.decode(w, r, &req) {
		return
	}

	owner, err := parseID("ownerId", req.OwnerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := parseID("productId", req.ProductID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	qty, err := parseQuantity(req.InitialQuantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	holding, err := h.Engine.CreateHolding(r.Context(), ledger.CreateHoldingInput{
		OwnerID:   ledger.OwnerID(owner),
		ProductID: ledger.ProductID(product),
		Location:  req.Location,
		Category:  ledger.Category(req.Category),
		Quantity:  qty,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, HoldingResponse{
		Holding: toHoldingDTO(holding),
		Message: "holding created",
	})
}

// GetHolding returns one holding.
func (h *Handler) GetHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	holding, err := h.Query.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldingDTO(holding))
}

// ListHoldings lists one owner's holdings when ownerId is given, otherwise
// a filtered, sorted page of all holdings.
func (h *Handler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if raw := q.Get("ownerId"); raw != "" && q.Get("limit") == "" && q.Get("offset") == "" &&
		q.Get("priceFrom") == "" && q.Get("priceTo") == "" && q.Get("sortBy") == "" {
		owner, err := ledger.ParseID("ownerId", raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		items, err := h.Query.ListByOwner(r.Context(), ledger.OwnerID(owner))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pageDTO(ledger.Page{Items: items, Total: len(items), Limit: len(items)}))
		return
	}

	lq, err := parseListQuery(q.Get)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.Query.List(r.Context(), lq)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageDTO(page))
}

func parseListQuery(get func(string) string) (ledger.ListQuery, error) {
	var lq ledger.ListQuery
	var err error

	if raw := get("ownerId"); raw != "" {
		id, err := ledger.ParseID("ownerId", raw)
		if err != nil {
			return lq, err
		}
		owner := ledger.OwnerID(id)
		lq.OwnerID = &owner
	}
	if lq.Limit, err = parseInt("limit", get("limit")); err != nil {
		return lq, err
	}
	if lq.Offset, err = parseInt("offset", get("offset")); err != nil {
		return lq, err
	}
	if raw := get("priceFrom"); raw != "" {
		d, err := parsePrice("priceFrom", raw)
		if err != nil {
			return lq, err
		}
		lq.PriceFrom = &d
	}
	if raw := get("priceTo"); raw != "" {
		d, err := parsePrice("priceTo", raw)
		if err != nil {
			return lq, err
		}
		lq.PriceTo = &d
	}
	if lq.SortBy, err = ledger.ParseSortOrder(get("sortBy")); err != nil {
		return lq, err
	}
	return lq, nil
}

func parseInt(field, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &ledger.ValidationError{Field: field, Reason: "must be a non-negative integer"}
	}
	return n, nil
}

func pageDTO(p ledger.Page) HoldingPageDTO {
	dto := HoldingPageDTO{
		Items:  toHoldingDTOs(p.Items),
		Total:  p.Total,
		Limit:  p.Limit,
		Offset: p.Offset,
		Empty:  p.Empty(),
	}
	if dto.Empty {
		dto.Message = "no holdings found"
	}
	return dto
}

// RemoveHolding deletes an idle holding. ?requestedBy= restricts removal to
// the owner.
func (h *Handler) RemoveHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var requestedBy int64
	if raw := r.URL.Query().Get("requestedBy"); raw != "" {
		var err error
		if requestedBy, err = ledger.ParseID("requestedBy", raw); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if err := h.Engine.RemoveHolding(r.Context(), id, ledger.OwnerID(requestedBy)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "holding removed"})
}

// ReceiveStock adds stock to a category of a holding.
func (h *Handler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ReceiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	qty, err := parseQuantity(req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	holding, err := h.Engine.ReceiveStock(r.Context(), ledger.ReceiveInput{
		HoldingID: id,
		Category:  ledger.Category(req.Category),
		Quantity:  qty,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HoldingResponse{Holding: toHoldingDTO(holding), Message: "stock received"})
}

// Reclassify moves stock between categories of a holding.
func (h *Handler) Reclassify(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ReclassifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	qty, err := parseQuantity(req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	holding, err := h.Engine.Reclassify(r.Context(), ledger.ReclassifyInput{
		HoldingID: id,
		From:      ledger.Category(req.From),
		To:        ledger.Category(req.To),
		Quantity:  qty,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HoldingResponse{Holding: toHoldingDTO(holding), Message: "stock reclassified"})
}

// =============================================================================
// TRANSFER HANDLERS
// =============================================================================

// InitiateTransfer moves stock to another owner and leaves the source
// pending.
func (h *Handler) InitiateTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	src, err := parseID("sourceHoldingId", req.SourceHoldingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dst, err := parseID("destinationOwnerId", req.DestinationOwnerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	qty, err := parseQuantity(req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Engine.InitiateTransfer(r.Context(), ledger.Transfer{
		SourceHoldingID:      ledger.HoldingID(src),
		DestinationOwnerID:   ledger.OwnerID(dst),
		DestinationOwnerName: req.DestinationOwnerName,
		Category:             ledger.Category(req.Category),
		Quantity:             qty,
		DestinationLocation:  req.DestinationLocation,
		IdempotencyKey:       r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, TransferResponse{
		TransferID:  string(res.TransferID),
		Source:      optionalHoldingDTO(res.Source),
		Destination: optionalHoldingDTO(res.Destination),
		Message:     res.Message,
		Replayed:    res.Replayed,
	})
}

// ConfirmReceipt finalizes a pending holding.
func (h *Handler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := parseID("holdingId", req.HoldingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	owner, err := parseID("confirmingOwnerId", req.ConfirmingOwnerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Engine.ConfirmReceipt(r.Context(), ledger.HoldingID(id), ledger.OwnerID(owner))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := ConfirmResponse{
		TransferID: string(res.TransferID),
		State:      string(res.State),
		Removed:    res.Removed,
		Message:    res.Message,
	}
	if !res.Removed {
		resp.Holding = optionalHoldingDTO(res.Holding)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelTransfer restores a pending source holding. A holding with nothing
// to cancel answers 200 with cancelled=false.
func (h *Handler) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	var req CancelTransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := parseID("holdingId", req.HoldingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	requestedBy, err := parseOptionalID("requestedBy", req.RequestedBy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Engine.CancelTransfer(r.Context(), ledger.CancelRequest{
		HoldingID:   ledger.HoldingID(id),
		RequestedBy: ledger.OwnerID(requestedBy),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := CancelResponse{
		TransferID:         string(res.TransferID),
		State:              string(res.State),
		Cancelled:          res.Cancelled,
		DestinationRemoved: res.DestinationRemoved,
		Message:            res.Message,
	}
	if resp.Holding = optionalHoldingDTO(res.Holding); resp.Holding != nil {
		resp.PendingState = resp.Holding.PendingState
	}
	if !res.DestinationRemoved {
		resp.Destination = optionalHoldingDTO(res.Destination)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// DIRECTORY HANDLERS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Admin.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, ledger.Transient("list users", err))
		return
	}
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = UserDTO{ID: int64(u.ID), Name: u.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		h.writeError(w, r, &ledger.ValidationError{Field: "name", Reason: "is required"})
		return
	}
	u := ledger.Identity{ID: ledger.OwnerID(id), Name: req.Name}
	if err := h.Admin.SaveUser(r.Context(), u); err != nil {
		h.writeError(w, r, ledger.Transient("save user", err))
		return
	}
	writeJSON(w, http.StatusCreated, UserDTO{ID: id, Name: u.Name})
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Admin.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, r, ledger.Transient("list products", err))
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := parseID("id", req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Name == "" || req.Unit == "" {
		h.writeError(w, r, &ledger.ValidationError{Field: "name", Reason: "name and unit are required"})
		return
	}
	price, err := parsePrice("unitPrice", req.UnitPrice.String())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p := ledger.ProductSnapshot{
		ProductID: ledger.ProductID(id),
		Name:      req.Name,
		Code:      req.Code,
		Unit:      req.Unit,
		UnitPrice: price,
	}
	if err := h.Admin.SaveProduct(r.Context(), p); err != nil {
		h.writeError(w, r, ledger.Transient("save product", err))
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// OwnerNames lists the owners that currently hold stock.
func (h *Handler) OwnerNames(w http.ResponseWriter, r *http.Request) {
	names, err := h.Query.OwnerNames(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

// ListHistory returns an owner's history, newest first.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	owner, err := ledger.ParseID("ownerId", r.URL.Query().Get("ownerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := parseInt("limit", r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.History.ListByOwner(r.Context(), ledger.OwnerID(owner), limit)
	if err != nil {
		h.writeError(w, r, ledger.Transient("list history", err))
		return
	}
	dtos := make([]HistoryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toHistoryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// RunAudit runs the invariant audit synchronously. ?cached=true returns
// the last periodic report when there is one.
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	if h.Auditor == nil {
		h.writeError(w, r, ledger.Transient("audit", errors.New("auditor not configured")))
		return
	}
	if r.URL.Query().Get("cached") == "true" {
		if report, ok := h.Auditor.Last(); ok {
			writeJSON(w, http.StatusOK, toAuditDTO(report))
			return
		}
	}
	report, err := h.Auditor.Run(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(report))
}

// Health pings the store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.Ping(r.Context()); err != nil {
		h.writeError(w, r, ledger.Transient("ping store", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.Reset(r.Context()); err != nil {
		h.writeError(w, r, ledger.Transient("reset", err))
		return
	}
	h.setScenario("")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "all data cleared"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err onto the error taxonomy. Transient faults are logged
// with their cause and answered with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := ledger.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if kind == ledger.KindTransient {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		msg = "internal error, please retry"
	}
	writeJSON(w, status, ErrorResponse{ErrorMessage: msg, Code: string(kind)})
}

func statusFor(k ledger.Kind) int {
	switch k {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindConflict, ledger.KindInsufficientStock:
		return http.StatusConflict
	case ledger.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, &ledger.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (ledger.HoldingID, bool) {
	id, err := ledger.ParseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return 0, false
	}
	return ledger.HoldingID(id), true
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

func (h *Handler) scenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}
