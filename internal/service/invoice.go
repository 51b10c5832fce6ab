package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/shopspring/decimal"
)

const invoiceNumberConstraint = "invoices_invoice_number_key"

// InvoiceStore defines the DB methods needed to maintain invoices.
type InvoiceStore interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	GetNextInvoiceNumber(ctx context.Context) (int32, error)
	CreateInvoice(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error)
	CreateInvoiceItem(ctx context.Context, arg database.CreateInvoiceItemParams) (database.InvoiceItem, error)
	GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	UpdateInvoice(ctx context.Context, arg database.UpdateInvoiceParams) (database.Invoice, error)
	DeleteInvoiceItems(ctx context.Context, invoiceID uuid.UUID) error
	SoftDeleteInvoice(ctx context.Context, arg database.SoftDeleteInvoiceParams) (uuid.UUID, error)
}

// NewInvoiceStore creates an InvoiceStore from a DBTX (pool or tx).
type NewInvoiceStore func(db database.DBTX) InvoiceStore

// InvoiceRequest is the body of an invoice create or edit. CustomerID is
// ignored on edit.
type InvoiceRequest struct {
	CustomerID  string               `json:"customer_id" validate:"required,uuid"`
	InvoiceDate string               `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate     string               `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Discount    string               `json:"discount" validate:"omitempty,numeric"`
	TaxAmount   string               `json:"tax_amount" validate:"omitempty,numeric"`
	Notes       string               `json:"notes" validate:"max=1000"`
	Items       []InvoiceItemRequest `json:"items" validate:"required,min=1,dive"`
}

type InvoiceItemRequest struct {
	Description string `json:"description" validate:"required,max=500"`
	Quantity    string `json:"quantity" validate:"required,numeric"`
	Rate        string `json:"rate" validate:"required,numeric"`
}

// InvoiceResult is an invoice with its line items.
type InvoiceResult struct {
	Invoice database.Invoice
	Items   []database.InvoiceItem
}

// InvoiceService creates and maintains invoices.
type InvoiceService struct {
	pool      TxBeginner
	newStore  NewInvoiceStore
	publisher Publisher
}

func NewInvoiceService(pool TxBeginner, newStore NewInvoiceStore, publisher Publisher) *InvoiceService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &InvoiceService{pool: pool, newStore: newStore, publisher: publisher}
}

type parsedItem struct {
	description string
	quantity    decimal.Decimal
	rate        decimal.Decimal
	amount      decimal.Decimal
}

type parsedInvoice struct {
	customerID  uuid.UUID
	invoiceDate pgtype.Date
	dueDate     pgtype.Date
	total       decimal.Decimal
	discount    decimal.Decimal
	taxAmount   decimal.Decimal
	net         decimal.Decimal
	notes       pgtype.Text
	items       []parsedItem
}

func parseInvoice(req InvoiceRequest, edit bool) (*parsedInvoice, error) {
	var err error
	if edit {
		err = validateStruct(req, "CustomerID")
	} else {
		err = validateStruct(req)
	}
	if err != nil {
		return nil, err
	}

	p := &parsedInvoice{notes: optionalText(req.Notes), total: decimal.Zero}
	if !edit {
		p.customerID = uuid.MustParse(req.CustomerID)
	}
	if p.invoiceDate, err = parseDate("invoice_date", req.InvoiceDate); err != nil {
		return nil, err
	}
	if p.dueDate, err = parseDate("due_date", req.DueDate); err != nil {
		return nil, err
	}
	if p.dueDate.Valid && p.dueDate.Time.Before(p.invoiceDate.Time) {
		return nil, fieldError("due_date", "before invoice_date")
	}
	if p.discount, err = parseAmount("discount", req.Discount, true); err != nil {
		return nil, err
	}
	if p.taxAmount, err = parseAmount("tax_amount", req.TaxAmount, true); err != nil {
		return nil, err
	}

	for i, it := range req.Items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
		pi := parsedItem{description: it.Description}
		if pi.quantity, err = parseBounded(field("quantity"), it.Quantity, false, maxQuantity); err != nil {
			return nil, err
		}
		if !pi.quantity.IsPositive() {
			return nil, fieldError(field("quantity"), "gt=0")
		}
		if pi.rate, err = parseAmount(field("rate"), it.Rate, false); err != nil {
			return nil, err
		}
		pi.amount = pi.quantity.Mul(pi.rate).Round(2)
		if pi.amount.GreaterThan(maxAmount) {
			return nil, fieldError(field("rate"), "max")
		}
		p.total = p.total.Add(pi.amount)
		if p.total.GreaterThan(maxAmount) {
			return nil, fieldError("items", "max")
		}
		p.items = append(p.items, pi)
	}

	p.net = p.total.Sub(p.discount).Add(p.taxAmount)
	if p.net.IsNegative() {
		return nil, fieldError("discount", "exceeds total")
	}
	if p.net.GreaterThan(maxAmount) {
		return nil, fieldError("tax_amount", "max")
	}
	return p, nil
}

func (s *InvoiceService) createItems(ctx context.Context, store InvoiceStore, invoiceID uuid.UUID, items []parsedItem) ([]database.InvoiceItem, error) {
	out := make([]database.InvoiceItem, 0, len(items))
	for i, it := range items {
		row, err := store.CreateInvoiceItem(ctx, database.CreateInvoiceItemParams{
			InvoiceID:   invoiceID,
			Description: it.description,
			Quantity:    decimalToNumeric(it.quantity),
			Rate:        decimalToNumeric(it.rate),
			Amount:      decimalToNumeric(it.amount),
			SortOrder:   int32(i),
		})
		if err != nil {
			return nil, fmt.Errorf("create invoice item: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

// CreateInvoice issues a new unpaid invoice. Retries up to maxNumberRetries
// times when a concurrent insert takes the same invoice number.
func (s *InvoiceService) CreateInvoice(ctx context.Context, req InvoiceRequest, createdBy uuid.UUID) (*InvoiceResult, error) {
	p, err := parseInvoice(req, false)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		result, err := s.createInvoiceTx(ctx, p, createdBy)
		if err == nil {
			return result, nil
		}
		if isUniqueViolation(err, invoiceNumberConstraint) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *InvoiceService) createInvoiceTx(ctx context.Context, p *parsedInvoice, createdBy uuid.UUID) (*InvoiceResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := store.GetCustomer(ctx, p.customerID); err != nil {
		return nil, fmt.Errorf("get customer: %w", wrapNotFound(err, ErrCustomerNotFound, p.customerID))
	}

	nextNum, err := store.GetNextInvoiceNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get next invoice number: %w", err)
	}

	invoice, err := store.CreateInvoice(ctx, database.CreateInvoiceParams{
		CustomerID:    p.customerID,
		InvoiceNumber: fmt.Sprintf("INV-%05d", nextNum),
		InvoiceDate:   p.invoiceDate,
		DueDate:       p.dueDate,
		Total:         decimalToNumeric(p.total),
		Discount:      decimalToNumeric(p.discount),
		TaxAmount:     decimalToNumeric(p.taxAmount),
		NetAmount:     decimalToNumeric(p.net),
		Notes:         p.notes,
		CreatedBy:     createdBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	items, err := s.createItems(ctx, store, invoice.ID, p.items)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &InvoiceResult{Invoice: invoice, Items: items}, nil
}

// UpdateInvoice replaces the invoice header and items. The paid amount is
// kept and the unpaid amount rebased onto the new net amount.
func (s *InvoiceService) UpdateInvoice(ctx context.Context, id uuid.UUID, req InvoiceRequest, updatedBy uuid.UUID) (*InvoiceResult, error) {
	p, err := parseInvoice(req, true)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	current, err := store.GetInvoiceForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", wrapNotFound(err, ErrInvoiceNotFound, id))
	}

	balance, err := invoiceBalance(current.NetAmount, current.PaidAmount, current.UnpaidAmount).Rebase(p.net)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", current.InvoiceNumber, err)
	}

	invoice, err := store.UpdateInvoice(ctx, database.UpdateInvoiceParams{
		ID:            id,
		InvoiceDate:   p.invoiceDate,
		DueDate:       p.dueDate,
		Total:         decimalToNumeric(p.total),
		Discount:      decimalToNumeric(p.discount),
		TaxAmount:     decimalToNumeric(p.taxAmount),
		NetAmount:     decimalToNumeric(balance.Net),
		UnpaidAmount:  decimalToNumeric(balance.Unpaid),
		PaymentStatus: balance.Status(),
		Notes:         p.notes,
		UpdatedBy:     updatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}

	if err := store.DeleteInvoiceItems(ctx, id); err != nil {
		return nil, fmt.Errorf("delete invoice items: %w", err)
	}
	items, err := s.createItems(ctx, store, id, p.items)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if !balance.Net.Equal(numericToDecimal(current.NetAmount)) {
		publishAll(s.publisher, []event{balanceEvent(invoice)})
	}
	return &InvoiceResult{Invoice: invoice, Items: items}, nil
}

// DeleteInvoice deactivates an invoice that has nothing paid against it.
func (s *InvoiceService) DeleteInvoice(ctx context.Context, id uuid.UUID, deletedBy uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	current, err := store.GetInvoiceForUpdate(ctx, id)
	if err != nil {
		return fmt.Errorf("get invoice: %w", wrapNotFound(err, ErrInvoiceNotFound, id))
	}
	if numericToDecimal(current.PaidAmount).IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvoiceHasPayments, current.InvoiceNumber)
	}

	if _, err := store.SoftDeleteInvoice(ctx, database.SoftDeleteInvoiceParams{ID: id, UpdatedBy: deletedBy}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
		}
		return fmt.Errorf("soft delete invoice: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

