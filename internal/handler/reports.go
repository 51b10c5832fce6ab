package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/rs/zerolog/log"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportsStore interface {
	GetCollectionSummary(ctx context.Context, arg database.GetCollectionSummaryParams) ([]database.GetCollectionSummaryRow, error)
	GetAgingSummary(ctx context.Context, asOf pgtype.Date) ([]database.GetAgingSummaryRow, error)
}

type ReportsHandler struct {
	store ReportsStore
	now   func() time.Time
}

func NewReportsHandler(store ReportsStore) *ReportsHandler {
	return &ReportsHandler{store: store, now: time.Now}
}

// RegisterRoutes mounts report endpoints at /reports.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/collections", h.Collections)
	r.Get("/aging", h.Aging)
}

// --- Response types ---

type collectionResponse struct {
	Date           string `json:"date"`
	PaymentMode    string `json:"payment_mode"`
	ReceiptCount   int64  `json:"receipt_count"`
	TotalReceived  string `json:"total_received"`
	TotalUnsettled string `json:"total_unsettled"`
}

type agingRowResponse struct {
	CustomerID   uuid.UUID `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	Current      string    `json:"current"`
	Days1To30    string    `json:"days_1_30"`
	Days31To60   string    `json:"days_31_60"`
	Days61To90   string    `json:"days_61_90"`
	Over90       string    `json:"over_90"`
	Total        string    `json:"total"`
}

type agingResponse struct {
	AsOf      string             `json:"as_of"`
	Customers []agingRowResponse `json:"customers"`
}

// --- Handlers ---

// Collections returns receipts received per day and payment mode.
func (h *ReportsHandler) Collections(w http.ResponseWriter, r *http.Request) {
	startDate, endDate, err := h.parseDateRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rows, err := h.store.GetCollectionSummary(r.Context(), database.GetCollectionSummaryParams{
		StartDate: pgtype.Date{Time: startDate, Valid: true},
		EndDate:   pgtype.Date{Time: endDate, Valid: true},
	})
	if err != nil {
		log.Error().Err(err).Msg("get collection summary")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]collectionResponse, len(rows))
	for i, row := range rows {
		date := "N/A"
		if row.ReceiptDate.Valid {
			date = row.ReceiptDate.Time.Format(dateLayout)
		}
		resp[i] = collectionResponse{
			Date:           date,
			PaymentMode:    row.PaymentMode,
			ReceiptCount:   row.ReceiptCount,
			TotalReceived:  numericToString(row.TotalReceived),
			TotalUnsettled: numericToString(row.TotalUnsettled),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Aging buckets each customer's unpaid amounts by days past due as of the
// as_of query param (default today).
func (h *ReportsHandler) Aging(w http.ResponseWriter, r *http.Request) {
	asOf := h.today()
	if s := r.URL.Query().Get("as_of"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid as_of format"})
			return
		}
		asOf = t
	}

	rows, err := h.store.GetAgingSummary(r.Context(), pgtype.Date{Time: asOf, Valid: true})
	if err != nil {
		log.Error().Err(err).Msg("get aging summary")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := agingResponse{
		AsOf:      asOf.Format(dateLayout),
		Customers: make([]agingRowResponse, len(rows)),
	}
	for i, row := range rows {
		resp.Customers[i] = agingRowResponse{
			CustomerID:   row.CustomerID,
			CustomerName: row.CustomerName,
			Current:      numericToString(row.Current),
			Days1To30:    numericToString(row.Days1To30),
			Days31To60:   numericToString(row.Days31To60),
			Days61To90:   numericToString(row.Days61To90),
			Over90:       numericToString(row.Over90),
			Total:        numericToString(row.Total),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

const dateLayout = "2006-01-02"

func (h *ReportsHandler) today() time.Time {
	now := h.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// parseDateRange reads inclusive start_date and end_date params. Defaults to
// the last 30 days.
func (h *ReportsHandler) parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	endDate := h.today()
	startDate := endDate.AddDate(0, 0, -30)

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format: %w", err)
		}
		startDate = t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format: %w", err)
		}
		endDate = t
	}

	if startDate.After(endDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date must not be after end_date")
	}
	return startDate, endDate, nil
}
