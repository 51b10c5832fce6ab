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
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/ledgerdesk/api/internal/enum"
	"github.com/ledgerdesk/api/internal/middleware"
	"github.com/ledgerdesk/api/internal/service"
	"github.com/rs/zerolog/log"
)

// InvoiceServicer is the transactional side of invoices.
// Satisfied by *service.InvoiceService.
type InvoiceServicer interface {
	CreateInvoice(ctx context.Context, req service.InvoiceRequest, createdBy uuid.UUID) (*service.InvoiceResult, error)
	UpdateInvoice(ctx context.Context, id uuid.UUID, req service.InvoiceRequest, updatedBy uuid.UUID) (*service.InvoiceResult, error)
	DeleteInvoice(ctx context.Context, id uuid.UUID, deletedBy uuid.UUID) error
}

// InvoiceStore defines the read queries used by invoice handlers.
type InvoiceStore interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	ListInvoices(ctx context.Context, arg database.ListInvoicesParams) ([]database.Invoice, error)
	ListInvoiceItems(ctx context.Context, invoiceID uuid.UUID) ([]database.InvoiceItem, error)
	ListReceiptInvoicesByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]database.ReceiptInvoice, error)
}

// Reminder sends a payment reminder for one invoice. Satisfied by
// *notify.Reminder.
type Reminder interface {
	Remind(ctx context.Context, invoiceID uuid.UUID) (bool, error)
}

// InvoiceHandler handles invoice endpoints.
type InvoiceHandler struct {
	svc      InvoiceServicer
	store    InvoiceStore
	reminder Reminder
}

// NewInvoiceHandler creates an InvoiceHandler. reminder may be nil, in which
// case the remind endpoint reports sent=false.
func NewInvoiceHandler(svc InvoiceServicer, store InvoiceStore, reminder Reminder) *InvoiceHandler {
	return &InvoiceHandler{svc: svc, store: store, reminder: reminder}
}

// RegisterRoutes registers invoice endpoints. Expected to be mounted at
// /invoices; deletion is registered separately behind a role check.
func (h *InvoiceHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/remind", h.Remind)
}

// --- Response types ---

type invoiceItemResponse struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Quantity    string    `json:"quantity"`
	Rate        string    `json:"rate"`
	Amount      string    `json:"amount"`
	SortOrder   int32     `json:"sort_order"`
}

type invoiceResponse struct {
	ID            uuid.UUID `json:"id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	InvoiceNumber string    `json:"invoice_number"`
	InvoiceDate   *string   `json:"invoice_date"`
	DueDate       *string   `json:"due_date"`
	Total         string    `json:"total"`
	Discount      string    `json:"discount"`
	TaxAmount     string    `json:"tax_amount"`
	NetAmount     string    `json:"net_amount"`
	PaidAmount    string    `json:"paid_amount"`
	UnpaidAmount  string    `json:"unpaid_amount"`
	PaymentStatus string    `json:"payment_status"`
	Notes         *string   `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type invoiceDetailResponse struct {
	invoiceResponse
	Items       []invoiceItemResponse `json:"items"`
	Allocations []allocationResponse  `json:"allocations"`
}

type invoiceListResponse struct {
	Invoices []invoiceResponse `json:"invoices"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func toInvoiceResponse(inv database.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:            inv.ID,
		CustomerID:    inv.CustomerID,
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceDate:   datePtr(inv.InvoiceDate),
		DueDate:       datePtr(inv.DueDate),
		Total:         numericToString(inv.Total),
		Discount:      numericToString(inv.Discount),
		TaxAmount:     numericToString(inv.TaxAmount),
		NetAmount:     numericToString(inv.NetAmount),
		PaidAmount:    numericToString(inv.PaidAmount),
		UnpaidAmount:  numericToString(inv.UnpaidAmount),
		PaymentStatus: inv.PaymentStatus,
		Notes:         textPtr(inv.Notes),
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
}

func toInvoiceDetailResponse(inv database.Invoice, items []database.InvoiceItem, allocations []database.ReceiptInvoice) invoiceDetailResponse {
	resp := invoiceDetailResponse{
		invoiceResponse: toInvoiceResponse(inv),
		Items:           make([]invoiceItemResponse, len(items)),
		Allocations:     make([]allocationResponse, len(allocations)),
	}
	for i, it := range items {
		resp.Items[i] = invoiceItemResponse{
			ID:          it.ID,
			Description: it.Description,
			Quantity:    numericToString(it.Quantity),
			Rate:        numericToString(it.Rate),
			Amount:      numericToString(it.Amount),
			SortOrder:   it.SortOrder,
		}
	}
	for i, a := range allocations {
		resp.Allocations[i] = toAllocationResponse(a)
	}
	return resp
}

// --- Handlers ---

// Create handles POST /invoices.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req service.InvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.CreateInvoice(r.Context(), req, claims.UserID)
	if err != nil {
		writeServiceError(w, r, "create invoice", err)
		return
	}

	writeJSON(w, http.StatusCreated, toInvoiceDetailResponse(result.Invoice, result.Items, nil))
}

// List handles GET /invoices with optional customer_id and payment_status
// filters.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	customerID, err := queryUUID(r, "customer_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customer_id"})
		return
	}

	var status pgtype.Text
	if s := r.URL.Query().Get("payment_status"); s != "" {
		if !enum.IsPaymentStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_status"})
			return
		}
		status = pgtype.Text{String: s, Valid: true}
	}

	invoices, err := h.store.ListInvoices(r.Context(), database.ListInvoicesParams{
		Limit:         int32(limit),
		Offset:        int32(offset),
		CustomerID:    customerID,
		PaymentStatus: status,
	})
	if err != nil {
		log.Error().Err(err).Msg("list invoices")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]invoiceResponse, len(invoices))
	for i, inv := range invoices {
		resp[i] = toInvoiceResponse(inv)
	}

	writeJSON(w, http.StatusOK, invoiceListResponse{Invoices: resp, Limit: limit, Offset: offset})
}

// Get handles GET /invoices/{id} with items and allocations.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invoice")
	if !ok {
		return
	}

	invoice, err := h.store.GetInvoice(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invoice not found"})
			return
		}
		log.Error().Err(err).Msg("get invoice")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListInvoiceItems(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Msg("list invoice items")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	allocations, err := h.store.ListReceiptInvoicesByInvoice(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Msg("list invoice allocations")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceDetailResponse(invoice, items, allocations))
}

// Update handles PUT /invoices/{id}.
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invoice")
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req service.InvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.UpdateInvoice(r.Context(), id, req, claims.UserID)
	if err != nil {
		writeServiceError(w, r, "update invoice", err)
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceDetailResponse(result.Invoice, result.Items, nil))
}

// Delete handles DELETE /invoices/{id}.
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invoice")
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	if err := h.svc.DeleteInvoice(r.Context(), id, claims.UserID); err != nil {
		writeServiceError(w, r, "delete invoice", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Remind handles POST /invoices/{id}/remind. The reminder is attempted once.
func (h *InvoiceHandler) Remind(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invoice")
	if !ok {
		return
	}

	if h.reminder == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"sent": false})
		return
	}

	sent, err := h.reminder.Remind(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "remind invoice", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"sent": sent})
}
