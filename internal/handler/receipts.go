package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/ledgerdesk/api/internal/middleware"
	"github.com/ledgerdesk/api/internal/service"
	"github.com/rs/zerolog/log"
)

// ReceiptServicer is the transactional side of receipts.
// Satisfied by *service.ReceiptService.
type ReceiptServicer interface {
	CreateReceipt(ctx context.Context, req service.ReceiptRequest, createdBy uuid.UUID) (*service.ReceiptResult, error)
	UpdateReceipt(ctx context.Context, id uuid.UUID, req service.ReceiptRequest, updatedBy uuid.UUID) (*service.ReceiptResult, error)
	DeleteReceipt(ctx context.Context, id uuid.UUID, deletedBy uuid.UUID) (*service.ReceiptResult, error)
}

// ReceiptStore defines the read queries used by receipt handlers.
// Satisfied by *database.Queries.
type ReceiptStore interface {
	GetReceipt(ctx context.Context, id uuid.UUID) (database.Receipt, error)
	ListReceipts(ctx context.Context, arg database.ListReceiptsParams) ([]database.Receipt, error)
	ListReceiptInvoicesByReceipt(ctx context.Context, receiptID uuid.UUID) ([]database.ReceiptInvoice, error)
}

// ReceiptHandler handles receipt endpoints.
type ReceiptHandler struct {
	svc   ReceiptServicer
	store ReceiptStore
}

func NewReceiptHandler(svc ReceiptServicer, store ReceiptStore) *ReceiptHandler {
	return &ReceiptHandler{svc: svc, store: store}
}

// RegisterRoutes registers receipt endpoints. Expected to be mounted at
// /receipts. Deletion is registered separately so the router can put a role
// check in front of it.
func (h *ReceiptHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
}

// --- Response types ---

type allocationResponse struct {
	ID            uuid.UUID `json:"id"`
	ReceiptID     uuid.UUID `json:"receipt_id"`
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceAmount string    `json:"invoice_amount"`
	Payment       string    `json:"payment"`
	TDSDeduction  string    `json:"tds_deduction"`
	WaivedOff     string    `json:"waived_off"`
}

type receiptResponse struct {
	ID              uuid.UUID            `json:"id"`
	CustomerID      uuid.UUID            `json:"customer_id"`
	ReceiptNumber   string               `json:"receipt_number"`
	ReceiptDate     *string              `json:"receipt_date"`
	PaymentMode     string               `json:"payment_mode"`
	ReferenceNumber *string              `json:"reference_number"`
	PaymentAmount   string               `json:"payment_amount"`
	UnsettledAmount string               `json:"unsettled_amount"`
	OtherCharges    string               `json:"other_charges"`
	Notes           *string              `json:"notes"`
	CreatedBy       uuid.UUID            `json:"created_by"`
	UpdatedBy       uuid.UUID            `json:"updated_by"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Invoices        []allocationResponse `json:"invoices,omitempty"`
}

// receiptResultResponse adds the invoices whose balance a write changed.
type receiptResultResponse struct {
	receiptResponse
	Balances []invoiceResponse `json:"balances"`
}

type receiptListResponse struct {
	Receipts []receiptResponse `json:"receipts"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func toAllocationResponse(a database.ReceiptInvoice) allocationResponse {
	return allocationResponse{
		ID:            a.ID,
		ReceiptID:     a.ReceiptID,
		InvoiceID:     a.InvoiceID,
		InvoiceAmount: numericToString(a.InvoiceAmount),
		Payment:       numericToString(a.Payment),
		TDSDeduction:  numericToString(a.TdsDeduction),
		WaivedOff:     numericToString(a.WaivedOff),
	}
}

func toReceiptResponse(rc database.Receipt, allocations []database.ReceiptInvoice) receiptResponse {
	resp := receiptResponse{
		ID:              rc.ID,
		CustomerID:      rc.CustomerID,
		ReceiptNumber:   rc.ReceiptNumber,
		ReceiptDate:     datePtr(rc.ReceiptDate),
		PaymentMode:     rc.PaymentMode,
		ReferenceNumber: textPtr(rc.ReferenceNumber),
		PaymentAmount:   numericToString(rc.PaymentAmount),
		UnsettledAmount: numericToString(rc.UnsettledAmount),
		OtherCharges:    numericToString(rc.OtherCharges),
		Notes:           textPtr(rc.Notes),
		CreatedBy:       rc.CreatedBy,
		UpdatedBy:       rc.UpdatedBy,
		CreatedAt:       rc.CreatedAt,
		UpdatedAt:       rc.UpdatedAt,
	}
	if allocations != nil {
		resp.Invoices = make([]allocationResponse, len(allocations))
		for i, a := range allocations {
			resp.Invoices[i] = toAllocationResponse(a)
		}
	}
	return resp
}

func toReceiptResultResponse(result *service.ReceiptResult) receiptResultResponse {
	resp := receiptResultResponse{
		receiptResponse: toReceiptResponse(result.Receipt, result.Allocations),
		Balances:        make([]invoiceResponse, len(result.Invoices)),
	}
	if resp.Invoices == nil {
		resp.Invoices = []allocationResponse{}
	}
	for i, inv := range result.Invoices {
		resp.Balances[i] = toInvoiceResponse(inv)
	}
	return resp
}

// --- Handlers ---

// Create handles POST /receipts.
func (h *ReceiptHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req service.ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.CreateReceipt(r.Context(), req, claims.UserID)
	if err != nil {
		writeServiceError(w, r, "create receipt", err)
		return
	}

	writeJSON(w, http.StatusCreated, toReceiptResultResponse(result))
}

// List handles GET /receipts, optionally filtered by customer_id.
func (h *ReceiptHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	customerID, err := queryUUID(r, "customer_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customer_id"})
		return
	}

	receipts, err := h.store.ListReceipts(r.Context(), database.ListReceiptsParams{
		Limit:      int32(limit),
		Offset:     int32(offset),
		CustomerID: customerID,
	})
	if err != nil {
		log.Error().Err(err).Msg("list receipts")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]receiptResponse, len(receipts))
	for i, rc := range receipts {
		resp[i] = toReceiptResponse(rc, nil)
	}

	writeJSON(w, http.StatusOK, receiptListResponse{Receipts: resp, Limit: limit, Offset: offset})
}

// Get handles GET /receipts/{id} and includes the allocations.
func (h *ReceiptHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "receipt")
	if !ok {
		return
	}

	receipt, err := h.store.GetReceipt(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "receipt not found"})
			return
		}
		log.Error().Err(err).Msg("get receipt")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	allocations, err := h.store.ListReceiptInvoicesByReceipt(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Msg("list receipt invoices")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toReceiptResponse(receipt, allocations))
}

// Update handles PUT /receipts/{id}.
func (h *ReceiptHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "receipt")
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req service.ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.UpdateReceipt(r.Context(), id, req, claims.UserID)
	if err != nil {
		writeServiceError(w, r, "update receipt", err)
		return
	}

	writeJSON(w, http.StatusOK, toReceiptResultResponse(result))
}

// Delete handles DELETE /receipts/{id}. Every allocation is reversed and the
// restored invoice balances are returned.
func (h *ReceiptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "receipt")
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	result, err := h.svc.DeleteReceipt(r.Context(), id, claims.UserID)
	if err != nil {
		writeServiceError(w, r, "delete receipt", err)
		return
	}

	writeJSON(w, http.StatusOK, toReceiptResultResponse(result))
}
