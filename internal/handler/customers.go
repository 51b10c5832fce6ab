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
	"github.com/ledgerdesk/api/internal/middleware"
	"github.com/rs/zerolog/log"
)

// CustomerStore defines the database methods needed by customer handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CustomerStore interface {
	ListCustomers(ctx context.Context, arg database.ListCustomersParams) ([]database.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	CreateCustomer(ctx context.Context, arg database.CreateCustomerParams) (database.Customer, error)
	UpdateCustomer(ctx context.Context, arg database.UpdateCustomerParams) (database.Customer, error)
	SoftDeleteCustomer(ctx context.Context, arg database.SoftDeleteCustomerParams) (uuid.UUID, error)
	GetCustomerStatement(ctx context.Context, customerID uuid.UUID) (database.GetCustomerStatementRow, error)
	ListOutstandingInvoicesByCustomer(ctx context.Context, customerID uuid.UUID) ([]database.Invoice, error)
}

// CustomerHandler handles customer CRUD endpoints.
type CustomerHandler struct {
	store CustomerStore
}

// NewCustomerHandler creates a new CustomerHandler.
func NewCustomerHandler(store CustomerStore) *CustomerHandler {
	return &CustomerHandler{store: store}
}

// RegisterRoutes registers customer endpoints. Expected to be mounted at
// /customers.
func (h *CustomerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/statement", h.Statement)
	})
}

// --- Request / Response types ---

type customerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Pan     string `json:"pan"`
	Gstin   string `json:"gstin"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

type customerResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email"`
	Phone     *string   `json:"phone"`
	Pan       *string   `json:"pan"`
	Gstin     *string   `json:"gstin"`
	Address   *string   `json:"address"`
	Notes     *string   `json:"notes"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type statementResponse struct {
	Customer     customerResponse  `json:"customer"`
	InvoiceCount int64             `json:"invoice_count"`
	TotalNet     string            `json:"total_net"`
	TotalPaid    string            `json:"total_paid"`
	TotalUnpaid  string            `json:"total_unpaid"`
	Outstanding  []invoiceResponse `json:"outstanding"`
}

func toCustomerResponse(c database.Customer) customerResponse {
	return customerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     textPtr(c.Email),
		Phone:     textPtr(c.Phone),
		Pan:       textPtr(c.Pan),
		Gstin:     textPtr(c.Gstin),
		Address:   textPtr(c.Address),
		Notes:     textPtr(c.Notes),
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// --- Handlers ---

// List returns active customers, with optional search on name or phone.
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	var search pgtype.Text
	if s := r.URL.Query().Get("search"); s != "" {
		search = pgtype.Text{String: s, Valid: true}
	}

	customers, err := h.store.ListCustomers(r.Context(), database.ListCustomersParams{
		Limit:  int32(limit),
		Offset: int32(offset),
		Search: search,
	})
	if err != nil {
		log.Error().Err(err).Msg("list customers")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]customerResponse, len(customers))
	for i, c := range customers {
		resp[i] = toCustomerResponse(c)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single customer by ID.
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, ok := urlUUID(w, r, "id", "customer")
	if !ok {
		return
	}

	customer, err := h.store.GetCustomer(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
			return
		}
		log.Error().Err(err).Msg("get customer")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toCustomerResponse(customer))
}

// Create adds a new customer.
func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	customer, err := h.store.CreateCustomer(r.Context(), database.CreateCustomerParams{
		Name:      req.Name,
		Email:     optionalText(req.Email),
		Phone:     optionalText(req.Phone),
		Pan:       optionalText(req.Pan),
		Gstin:     optionalText(req.Gstin),
		Address:   optionalText(req.Address),
		Notes:     optionalText(req.Notes),
		CreatedBy: claims.UserID,
	})
	if err != nil {
		log.Error().Err(err).Msg("create customer")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toCustomerResponse(customer))
}

// Update modifies an existing customer.
func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	customerID, ok := urlUUID(w, r, "id", "customer")
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	customer, err := h.store.UpdateCustomer(r.Context(), database.UpdateCustomerParams{
		ID:        customerID,
		Name:      req.Name,
		Email:     optionalText(req.Email),
		Phone:     optionalText(req.Phone),
		Pan:       optionalText(req.Pan),
		Gstin:     optionalText(req.Gstin),
		Address:   optionalText(req.Address),
		Notes:     optionalText(req.Notes),
		UpdatedBy: claims.UserID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
			return
		}
		log.Error().Err(err).Msg("update customer")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toCustomerResponse(customer))
}

// Delete soft-deletes a customer by setting is_active=false.
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	customerID, ok := urlUUID(w, r, "id", "customer")
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	_, err := h.store.SoftDeleteCustomer(r.Context(), database.SoftDeleteCustomerParams{
		ID:        customerID,
		UpdatedBy: claims.UserID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
			return
		}
		log.Error().Err(err).Msg("delete customer")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Statement returns the customer's invoice totals and every invoice that
// still has an unpaid amount.
func (h *CustomerHandler) Statement(w http.ResponseWriter, r *http.Request) {
	customerID, ok := urlUUID(w, r, "id", "customer")
	if !ok {
		return
	}

	customer, err := h.store.GetCustomer(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
			return
		}
		log.Error().Err(err).Msg("get customer for statement")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	totals, err := h.store.GetCustomerStatement(r.Context(), customerID)
	if err != nil {
		log.Error().Err(err).Msg("get customer statement")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	outstanding, err := h.store.ListOutstandingInvoicesByCustomer(r.Context(), customerID)
	if err != nil {
		log.Error().Err(err).Msg("list outstanding invoices")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := statementResponse{
		Customer:     toCustomerResponse(customer),
		InvoiceCount: totals.InvoiceCount,
		TotalNet:     numericToString(totals.TotalNet),
		TotalPaid:    numericToString(totals.TotalPaid),
		TotalUnpaid:  numericToString(totals.TotalUnpaid),
		Outstanding:  make([]invoiceResponse, len(outstanding)),
	}
	for i, inv := range outstanding {
		resp.Outstanding[i] = toInvoiceResponse(inv)
	}

	writeJSON(w, http.StatusOK, resp)
}
