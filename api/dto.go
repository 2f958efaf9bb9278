/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Operation results carrying a message

NUMBERS:
  Quantities, prices and ids are decoded as json.Number so a quantity keeps
  the exact digits the client wrote. "0.0009" and "0.00090" are different
  inputs to the unit validator. Responses encode decimals as strings.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/azenco/stock-ledger/ledger"
)

// =============================================================================
// HOLDINGS
// =============================================================================

type QuantitiesDTO struct {
	New    string `json:"new"`
	Used   string `json:"used"`
	Broken string `json:"broken"`
	Lost   string `json:"lost"`
}

type PendingDTO struct {
	TransferID    string `json:"transferId"`
	DestinationID int64  `json:"destinationId"`
	Category      string `json:"category"`
	Quantity      string `json:"quantity"`
	Since         string `json:"since"`
}

// HoldingDTO represents a holding in API responses.
type HoldingDTO struct {
	ID           int64         `json:"id"`
	OwnerID      int64         `json:"ownerId"`
	OwnerName    string        `json:"ownerName"`
	ProductID    int64         `json:"productId"`
	ProductName  string        `json:"productName"`
	ProductCode  string        `json:"productCode,omitempty"`
	Unit         string        `json:"unit"`
	UnitPrice    string        `json:"unitPrice"`
	Location     string        `json:"location"`
	Quantities   QuantitiesDTO `json:"quantities"`
	Quantity     string        `json:"quantity"`
	TotalValue   string        `json:"totalValue"`
	PendingState bool          `json:"pendingState"`
	Pending      *PendingDTO   `json:"pending,omitempty"`
	CreatedAt    string        `json:"createdAt,omitempty"`
	UpdatedAt    string        `json:"updatedAt,omitempty"`
}

type CreateHoldingRequest struct {
	OwnerID         json.Number `json:"ownerId"`
	ProductID       json.Number `json:"productId"`
	Location        string      `json:"location"`
	Category        string      `json:"category,omitempty"`
	InitialQuantity json.Number `json:"initialQuantity"`
}

type ReceiveRequest struct {
	Category string      `json:"category,omitempty"`
	Quantity json.Number `json:"quantity"`
}

type ReclassifyRequest struct {
	From     string      `json:"from"`
	To       string      `json:"to"`
	Quantity json.Number `json:"quantity"`
}

// HoldingResponse wraps a single mutated holding.
type HoldingResponse struct {
	Holding HoldingDTO `json:"holding"`
	Message string     `json:"message"`
}

type HoldingPageDTO struct {
	Items   []HoldingDTO `json:"items"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	Empty   bool         `json:"empty"`
	Message string       `json:"message,omitempty"`
}

// =============================================================================
// TRANSFERS
// =============================================================================

type TransferRequest struct {
	SourceHoldingID      json.Number `json:"sourceHoldingId"`
	DestinationOwnerID   json.Number `json:"destinationOwnerId"`
	DestinationOwnerName string      `json:"destinationOwnerName,omitempty"`
	Category             string      `json:"category,omitempty"`
	Quantity             json.Number `json:"quantity"`
	DestinationLocation  string      `json:"destinationLocation,omitempty"`
}

// TransferResponse omits a side that no longer exists when a recorded
// transfer is replayed.
type TransferResponse struct {
	TransferID  string      `json:"transferId"`
	Source      *HoldingDTO `json:"source,omitempty"`
	Destination *HoldingDTO `json:"destination,omitempty"`
	Message     string      `json:"message"`
	Replayed    bool        `json:"replayed,omitempty"`
}

type ConfirmRequest struct {
	HoldingID         json.Number `json:"holdingId"`
	ConfirmingOwnerID json.Number `json:"confirmingOwnerId"`
}

type ConfirmResponse struct {
	TransferID   string      `json:"transferId"`
	State        string      `json:"state"`
	PendingState bool        `json:"pendingState"`
	Removed      bool        `json:"removed"`
	Holding      *HoldingDTO `json:"holding,omitempty"`
	Message      string      `json:"message"`
}

type CancelTransferRequest struct {
	HoldingID   json.Number `json:"holdingId"`
	RequestedBy json.Number `json:"requestedBy,omitempty"`
}

type CancelResponse struct {
	TransferID         string      `json:"transferId,omitempty"`
	State              string      `json:"state"`
	Cancelled          bool        `json:"cancelled"`
	PendingState       bool        `json:"pendingState"`
	Holding            *HoldingDTO `json:"holding,omitempty"`
	Destination        *HoldingDTO `json:"destination,omitempty"`
	DestinationRemoved bool        `json:"destinationRemoved"`
	Message            string      `json:"message"`
}

// =============================================================================
// DIRECTORY
// =============================================================================

type UserDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CreateUserRequest struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

type ProductDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
	Unit      string `json:"unit"`
	UnitPrice string `json:"unitPrice"`
}

type CreateProductRequest struct {
	ID        json.Number `json:"id"`
	Name      string      `json:"name"`
	Code      string      `json:"code,omitempty"`
	Unit      string      `json:"unit"`
	UnitPrice json.Number `json:"unitPrice"`
}

type HistoryDTO struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	OwnerID     int64  `json:"ownerId"`
	OwnerName   string `json:"ownerName"`
	HoldingID   int64  `json:"holdingId"`
	Description string `json:"description"`
	At          string `json:"at"`
}

// =============================================================================
// AUDIT / SCENARIOS / ERRORS
// =============================================================================

type ViolationDTO struct {
	HoldingID int64  `json:"holdingId"`
	Rule      string `json:"rule"`
	Detail    string `json:"detail,omitempty"`
}

type AuditDTO struct {
	Checked    int            `json:"checked"`
	Clean      bool           `json:"clean"`
	Violations []ViolationDTO `json:"violations"`
	StartedAt  string         `json:"startedAt"`
	FinishedAt string         `json:"finishedAt"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	ErrorMessage string `json:"errorMessage"`
	Code         string `json:"code"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toHoldingDTO(h *ledger.Holding) HoldingDTO {
	dto := HoldingDTO{
		ID:          int64(h.ID),
		OwnerID:     int64(h.OwnerID),
		OwnerName:   h.OwnerName,
		ProductID:   int64(h.Product.ProductID),
		ProductName: h.Product.Name,
		ProductCode: h.Product.Code,
		Unit:        h.Product.Unit,
		UnitPrice:   h.Product.UnitPrice.String(),
		Location:    h.Location,
		Quantities: QuantitiesDTO{
			New:    h.Quantities.New.String(),
			Used:   h.Quantities.Used.String(),
			Broken: h.Quantities.Broken.String(),
			Lost:   h.Quantities.Lost.String(),
		},
		Quantity:     h.Total().String(),
		TotalValue:   h.TotalValue.String(),
		PendingState: h.IsPending(),
		CreatedAt:    formatTime(h.CreatedAt),
		UpdatedAt:    formatTime(h.UpdatedAt),
	}
	if p := h.Pending; p != nil {
		dto.Pending = &PendingDTO{
			TransferID:    string(p.TransferID),
			DestinationID: int64(p.DestinationID),
			Category:      string(p.Category),
			Quantity:      p.Quantity.String(),
			Since:         formatTime(p.Since),
		}
	}
	return dto
}

func optionalHoldingDTO(h *ledger.Holding) *HoldingDTO {
	if h == nil {
		return nil
	}
	dto := toHoldingDTO(h)
	return &dto
}

func toHoldingDTOs(hs []ledger.Holding) []HoldingDTO {
	out := make([]HoldingDTO, len(hs))
	for i := range hs {
		out[i] = toHoldingDTO(&hs[i])
	}
	return out
}

func toProductDTO(p ledger.ProductSnapshot) ProductDTO {
	return ProductDTO{
		ID:        int64(p.ProductID),
		Name:      p.Name,
		Code:      p.Code,
		Unit:      p.Unit,
		UnitPrice: p.UnitPrice.String(),
	}
}

func toHistoryDTO(e ledger.HistoryEntry) HistoryDTO {
	return HistoryDTO{
		ID:          e.ID,
		Kind:        string(e.Kind),
		OwnerID:     int64(e.OwnerID),
		OwnerName:   e.OwnerName,
		HoldingID:   int64(e.HoldingID),
		Description: e.Description,
		At:          formatTime(e.At),
	}
}

func toAuditDTO(r ledger.AuditReport) AuditDTO {
	dto := AuditDTO{
		Checked:    r.Checked,
		Clean:      r.Clean(),
		Violations: make([]ViolationDTO, len(r.Violations)),
		StartedAt:  formatTime(r.StartedAt),
		FinishedAt: formatTime(r.FinishedAt),
	}
	for i, v := range r.Violations {
		dto.Violations[i] = ViolationDTO{HoldingID: int64(v.HoldingID), Rule: v.Rule, Detail: v.Detail}
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseID(field string, n json.Number) (int64, error) {
	return ledger.ParseID(field, n.String())
}

// parseOptionalID treats an absent id as zero.
func parseOptionalID(field string, n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	return parseID(field, n)
}

func parseQuantity(n json.Number) (decimal.Decimal, error) {
	return ledger.ParseQuantity(n.String())
}

func parsePrice(field string, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, &ledger.ValidationError{Field: field, Reason: "is not a number"}
	}
	if d.IsNegative() {
		return decimal.Decimal{}, &ledger.ValidationError{Field: field, Reason: "must not be negative"}
	}
	return d, nil
}
