package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/ledgerdesk/api/internal/enum"
	"github.com/ledgerdesk/api/internal/ledger"
	"github.com/shopspring/decimal"
)

const receiptNumberConstraint = "receipts_receipt_number_key"

// ReceiptStore defines the DB methods the receipt operations need.
// Satisfied by *database.Queries (and its WithTx variant).
type ReceiptStore interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	GetNextReceiptNumber(ctx context.Context) (int32, error)
	CreateReceipt(ctx context.Context, arg database.CreateReceiptParams) (database.Receipt, error)
	GetReceiptForUpdate(ctx context.Context, id uuid.UUID) (database.Receipt, error)
	UpdateReceipt(ctx context.Context, arg database.UpdateReceiptParams) (database.Receipt, error)
	DeleteReceipt(ctx context.Context, id uuid.UUID) error
	GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	UpdateInvoiceBalance(ctx context.Context, arg database.UpdateInvoiceBalanceParams) (database.Invoice, error)
	CreateReceiptInvoice(ctx context.Context, arg database.CreateReceiptInvoiceParams) (database.ReceiptInvoice, error)
	GetReceiptInvoiceForUpdate(ctx context.Context, arg database.GetReceiptInvoiceParams) (database.ReceiptInvoice, error)
	UpdateReceiptInvoice(ctx context.Context, arg database.UpdateReceiptInvoiceParams) (database.ReceiptInvoice, error)
	ListReceiptInvoicesByReceipt(ctx context.Context, receiptID uuid.UUID) ([]database.ReceiptInvoice, error)
	DeleteReceiptInvoicesByReceipt(ctx context.Context, receiptID uuid.UUID) error
}

// NewReceiptStore creates a ReceiptStore from a DBTX (pool or tx).
type NewReceiptStore func(db database.DBTX) ReceiptStore

// ReceiptRequest is the body of a receipt create or amend. CustomerID is
// ignored on amend.
type ReceiptRequest struct {
	CustomerID      string              `json:"customer_id" validate:"required,uuid"`
	ReceiptDate     string              `json:"receipt_date" validate:"required,datetime=2006-01-02"`
	PaymentMode     string              `json:"payment_mode" validate:"required,oneof=CASH CHEQUE BANK_TRANSFER UPI"`
	ReferenceNumber string              `json:"reference_number" validate:"max=100"`
	PaymentAmount   string              `json:"payment_amount" validate:"required,numeric"`
	OtherCharges    string              `json:"other_charges" validate:"omitempty,numeric"`
	Notes           string              `json:"notes" validate:"max=1000"`
	Invoices        []AllocationRequest `json:"invoices" validate:"dive"`
}

// AllocationRequest applies part of a receipt to one invoice.
type AllocationRequest struct {
	InvoiceID     string `json:"invoice_id" validate:"required,uuid"`
	InvoiceAmount string `json:"invoice_amount" validate:"omitempty,numeric"`
	Payment       string `json:"payment" validate:"required,numeric"`
	TDSDeduction  string `json:"tds_deduction" validate:"omitempty,numeric"`
	WaivedOff     string `json:"waived_off" validate:"omitempty,numeric"`
}

// ReceiptResult is a receipt with its allocations and the invoices whose
// balance the operation changed.
type ReceiptResult struct {
	Receipt     database.Receipt
	Allocations []database.ReceiptInvoice
	Invoices    []database.Invoice
}

// ReceiptService applies, amends and reverses receipt allocations.
type ReceiptService struct {
	pool      TxBeginner
	newStore  NewReceiptStore
	publisher Publisher
}

// NewReceiptService creates a ReceiptService. A nil publisher drops events.
func NewReceiptService(pool TxBeginner, newStore NewReceiptStore, publisher Publisher) *ReceiptService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &ReceiptService{pool: pool, newStore: newStore, publisher: publisher}
}

type parsedAllocation struct {
	invoiceID uuid.UUID
	ledger.Allocation
}

type parsedReceipt struct {
	customerID    uuid.UUID
	receiptDate   pgtype.Date
	paymentMode   string
	reference     pgtype.Text
	paymentAmount decimal.Decimal
	otherCharges  decimal.Decimal
	notes         pgtype.Text
	allocations   []parsedAllocation
}

func parseReceipt(req ReceiptRequest, amend bool) (*parsedReceipt, error) {
	var err error
	if amend {
		err = validateStruct(req, "CustomerID")
	} else {
		err = validateStruct(req)
	}
	if err != nil {
		return nil, err
	}

	p := &parsedReceipt{
		paymentMode: req.PaymentMode,
		reference:   optionalText(req.ReferenceNumber),
		notes:       optionalText(req.Notes),
	}
	if !amend {
		p.customerID = uuid.MustParse(req.CustomerID)
	}
	if p.receiptDate, err = parseDate("receipt_date", req.ReceiptDate); err != nil {
		return nil, err
	}
	if p.paymentAmount, err = parseAmount("payment_amount", req.PaymentAmount, false); err != nil {
		return nil, err
	}
	if p.otherCharges, err = parseAmount("other_charges", req.OtherCharges, true); err != nil {
		return nil, err
	}

	for i, a := range req.Invoices {
		field := func(name string) string { return fmt.Sprintf("invoices[%d].%s", i, name) }
		pa := parsedAllocation{invoiceID: uuid.MustParse(a.InvoiceID)}
		if pa.Payment, err = parseAmount(field("payment"), a.Payment, false); err != nil {
			return nil, err
		}
		if pa.InvoiceAmount, err = parseAmount(field("invoice_amount"), a.InvoiceAmount, true); err != nil {
			return nil, err
		}
		if pa.TDSDeduction, err = parseAmount(field("tds_deduction"), a.TDSDeduction, true); err != nil {
			return nil, err
		}
		if pa.WaivedOff, err = parseAmount(field("waived_off"), a.WaivedOff, true); err != nil {
			return nil, err
		}
		p.allocations = append(p.allocations, pa)
	}

	if !amend {
		if ledger.Unsettled(p.paymentAmount, p.ledgerAllocations()).IsNegative() {
			return nil, fieldError("invoices", "allocated payments exceed payment_amount")
		}
	}
	return p, nil
}

func (p *parsedReceipt) ledgerAllocations() []ledger.Allocation {
	out := make([]ledger.Allocation, len(p.allocations))
	for i, a := range p.allocations {
		out[i] = a.Allocation
	}
	return out
}

func (p *parsedReceipt) invoiceIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(p.allocations))
	for i, a := range p.allocations {
		ids[i] = a.invoiceID
	}
	return ids
}

// lockedInvoices tracks the invoices locked by one transaction and their
// running balances.
type lockedInvoices struct {
	rows     map[uuid.UUID]database.Invoice
	balances map[uuid.UUID]ledger.Balance
	order    []uuid.UUID
	touched  map[uuid.UUID]bool
}

// lockInvoices takes row locks on the given invoices in ascending id order so
// concurrent receipts touching overlapping invoices cannot deadlock.
func lockInvoices(ctx context.Context, store ReceiptStore, customerID uuid.UUID, ids []uuid.UUID, skipMissing bool) (*lockedInvoices, error) {
	unique := make(map[uuid.UUID]bool, len(ids))
	var sorted []uuid.UUID
	for _, id := range ids {
		if !unique[id] {
			unique[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	l := &lockedInvoices{
		rows:     make(map[uuid.UUID]database.Invoice, len(sorted)),
		balances: make(map[uuid.UUID]ledger.Balance, len(sorted)),
		touched:  make(map[uuid.UUID]bool, len(sorted)),
	}
	for _, id := range sorted {
		inv, err := store.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			if skipMissing && errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("lock invoice: %w", wrapNotFound(err, ErrInvoiceNotFound, id))
		}
		if inv.CustomerID != customerID {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceCustomerMismatch, inv.InvoiceNumber)
		}
		l.rows[id] = inv
		l.balances[id] = invoiceBalance(inv.NetAmount, inv.PaidAmount, inv.UnpaidAmount)
		l.order = append(l.order, id)
	}
	return l, nil
}

func (l *lockedInvoices) apply(id uuid.UUID, delta decimal.Decimal) error {
	next, err := l.balances[id].Apply(delta)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", l.rows[id].InvoiceNumber, err)
	}
	l.balances[id] = next
	l.touched[id] = true
	return nil
}

func (l *lockedInvoices) reverse(id uuid.UUID, payment decimal.Decimal) {
	if _, ok := l.balances[id]; !ok {
		return
	}
	l.balances[id] = l.balances[id].Reverse(payment)
	l.touched[id] = true
}

// persist writes every touched balance and returns the updated rows.
func (l *lockedInvoices) persist(ctx context.Context, store ReceiptStore, updatedBy uuid.UUID) ([]database.Invoice, error) {
	var updated []database.Invoice
	for _, id := range l.order {
		if !l.touched[id] {
			continue
		}
		b := l.balances[id]
		inv, err := store.UpdateInvoiceBalance(ctx, database.UpdateInvoiceBalanceParams{
			ID:            id,
			PaidAmount:    decimalToNumeric(b.Paid),
			UnpaidAmount:  decimalToNumeric(b.Unpaid),
			PaymentStatus: b.Status(),
			UpdatedBy:     updatedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("update invoice balance: %w", err)
		}
		updated = append(updated, inv)
	}
	return updated, nil
}

// CreateReceipt records a receipt and applies each allocation to its invoice.
// Retries up to maxNumberRetries times when a concurrent insert takes the
// same receipt number.
func (s *ReceiptService) CreateReceipt(ctx context.Context, req ReceiptRequest, createdBy uuid.UUID) (*ReceiptResult, error) {
	p, err := parseReceipt(req, false)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		result, events, err := s.createReceiptTx(ctx, p, createdBy)
		if err == nil {
			publishAll(s.publisher, events)
			return result, nil
		}
		if isUniqueViolation(err, receiptNumberConstraint) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *ReceiptService) createReceiptTx(ctx context.Context, p *parsedReceipt, createdBy uuid.UUID) (*ReceiptResult, []event, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := store.GetCustomer(ctx, p.customerID); err != nil {
		return nil, nil, fmt.Errorf("get customer: %w", wrapNotFound(err, ErrCustomerNotFound, p.customerID))
	}

	locked, err := lockInvoices(ctx, store, p.customerID, p.invoiceIDs(), false)
	if err != nil {
		return nil, nil, err
	}

	nextNum, err := store.GetNextReceiptNumber(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get next receipt number: %w", err)
	}

	receipt, err := store.CreateReceipt(ctx, database.CreateReceiptParams{
		CustomerID:      p.customerID,
		ReceiptNumber:   fmt.Sprintf("RCT-%05d", nextNum),
		ReceiptDate:     p.receiptDate,
		PaymentMode:     p.paymentMode,
		ReferenceNumber: p.reference,
		PaymentAmount:   decimalToNumeric(p.paymentAmount),
		UnsettledAmount: decimalToNumeric(ledger.Unsettled(p.paymentAmount, p.ledgerAllocations())),
		OtherCharges:    decimalToNumeric(p.otherCharges),
		Notes:           p.notes,
		CreatedBy:       createdBy,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create receipt: %w", err)
	}

	allocations := make([]database.ReceiptInvoice, 0, len(p.allocations))
	for _, a := range p.allocations {
		if err := locked.apply(a.invoiceID, a.Delta(nil)); err != nil {
			return nil, nil, err
		}
		row, err := store.CreateReceiptInvoice(ctx, database.CreateReceiptInvoiceParams{
			ReceiptID:     receipt.ID,
			InvoiceID:     a.invoiceID,
			InvoiceAmount: decimalToNumeric(a.InvoiceAmount),
			Payment:       decimalToNumeric(a.Payment),
			TdsDeduction:  decimalToNumeric(a.TDSDeduction),
			WaivedOff:     decimalToNumeric(a.WaivedOff),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create receipt invoice: %w", err)
		}
		allocations = append(allocations, row)
	}

	invoices, err := locked.persist(ctx, store, createdBy)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}

	result := &ReceiptResult{Receipt: receipt, Allocations: allocations, Invoices: invoices}
	return result, ledgerEvents(enum.EventReceiptCreated, result), nil
}

// UpdateReceipt amends a receipt. Each tuple updates the earliest existing
// allocation of the receipt to that invoice and moves the invoice balance by
// the difference, or creates a new allocation. Allocations to invoices not in
// the payload are left as they are.
func (s *ReceiptService) UpdateReceipt(ctx context.Context, id uuid.UUID, req ReceiptRequest, updatedBy uuid.UUID) (*ReceiptResult, error) {
	p, err := parseReceipt(req, true)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	existing, err := store.GetReceiptForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", wrapNotFound(err, ErrReceiptNotFound, id))
	}

	locked, err := lockInvoices(ctx, store, existing.CustomerID, p.invoiceIDs(), false)
	if err != nil {
		return nil, err
	}

	for _, a := range p.allocations {
		row, err := store.GetReceiptInvoiceForUpdate(ctx, database.GetReceiptInvoiceParams{
			ReceiptID: id,
			InvoiceID: a.invoiceID,
		})
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if err := locked.apply(a.invoiceID, a.Delta(nil)); err != nil {
				return nil, err
			}
			if _, err := store.CreateReceiptInvoice(ctx, database.CreateReceiptInvoiceParams{
				ReceiptID:     id,
				InvoiceID:     a.invoiceID,
				InvoiceAmount: decimalToNumeric(a.InvoiceAmount),
				Payment:       decimalToNumeric(a.Payment),
				TdsDeduction:  decimalToNumeric(a.TDSDeduction),
				WaivedOff:     decimalToNumeric(a.WaivedOff),
			}); err != nil {
				return nil, fmt.Errorf("create receipt invoice: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("get receipt invoice: %w", err)
		default:
			previous := ledger.Allocation{Payment: numericToDecimal(row.Payment)}
			if err := locked.apply(a.invoiceID, a.Delta(&previous)); err != nil {
				return nil, err
			}
			if _, err := store.UpdateReceiptInvoice(ctx, database.UpdateReceiptInvoiceParams{
				ID:            row.ID,
				InvoiceAmount: decimalToNumeric(a.InvoiceAmount),
				Payment:       decimalToNumeric(a.Payment),
				TdsDeduction:  decimalToNumeric(a.TDSDeduction),
				WaivedOff:     decimalToNumeric(a.WaivedOff),
			}); err != nil {
				return nil, fmt.Errorf("update receipt invoice: %w", err)
			}
		}
	}

	invoices, err := locked.persist(ctx, store, updatedBy)
	if err != nil {
		return nil, err
	}

	allocations, err := store.ListReceiptInvoicesByReceipt(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list receipt invoices: %w", err)
	}
	unsettled := ledger.Unsettled(p.paymentAmount, allocationsToLedger(allocations))
	if unsettled.IsNegative() {
		return nil, fieldError("payment_amount", "less than allocated payments")
	}

	receipt, err := store.UpdateReceipt(ctx, database.UpdateReceiptParams{
		ID:              id,
		ReceiptDate:     p.receiptDate,
		PaymentMode:     p.paymentMode,
		ReferenceNumber: p.reference,
		PaymentAmount:   decimalToNumeric(p.paymentAmount),
		UnsettledAmount: decimalToNumeric(unsettled),
		OtherCharges:    decimalToNumeric(p.otherCharges),
		Notes:           p.notes,
		UpdatedBy:       updatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("update receipt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	result := &ReceiptResult{Receipt: receipt, Allocations: allocations, Invoices: invoices}
	publishAll(s.publisher, ledgerEvents(enum.EventReceiptUpdated, result))
	return result, nil
}

// DeleteReceipt reverses every allocation of the receipt and removes it.
// Invoices that have since been deactivated are skipped.
func (s *ReceiptService) DeleteReceipt(ctx context.Context, id uuid.UUID, deletedBy uuid.UUID) (*ReceiptResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	receipt, err := store.GetReceiptForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", wrapNotFound(err, ErrReceiptNotFound, id))
	}

	allocations, err := store.ListReceiptInvoicesByReceipt(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list receipt invoices: %w", err)
	}

	ids := make([]uuid.UUID, len(allocations))
	for i, a := range allocations {
		ids[i] = a.InvoiceID
	}
	locked, err := lockInvoices(ctx, store, receipt.CustomerID, ids, true)
	if err != nil {
		return nil, err
	}

	for _, a := range allocations {
		locked.reverse(a.InvoiceID, numericToDecimal(a.Payment))
	}

	invoices, err := locked.persist(ctx, store, deletedBy)
	if err != nil {
		return nil, err
	}

	if err := store.DeleteReceiptInvoicesByReceipt(ctx, id); err != nil {
		return nil, fmt.Errorf("delete receipt invoices: %w", err)
	}
	if err := store.DeleteReceipt(ctx, id); err != nil {
		return nil, fmt.Errorf("delete receipt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	result := &ReceiptResult{Receipt: receipt, Allocations: allocations, Invoices: invoices}
	publishAll(s.publisher, ledgerEvents(enum.EventReceiptDeleted, result))
	return result, nil
}

func allocationsToLedger(rows []database.ReceiptInvoice) []ledger.Allocation {
	out := make([]ledger.Allocation, len(rows))
	for i, r := range rows {
		out[i] = ledger.Allocation{Payment: numericToDecimal(r.Payment)}
	}
	return out
}

// ReceiptEvent is the payload of receipt.* events.
type ReceiptEvent struct {
	ReceiptID     uuid.UUID `json:"receipt_id"`
	ReceiptNumber string    `json:"receipt_number"`
}

// BalanceEvent is the payload of invoice.balance_changed.
type BalanceEvent struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	NetAmount     string    `json:"net_amount"`
	PaidAmount    string    `json:"paid_amount"`
	UnpaidAmount  string    `json:"unpaid_amount"`
	PaymentStatus string    `json:"payment_status"`
}

func balanceEvent(inv database.Invoice) event {
	return event{
		customerID: inv.CustomerID,
		eventType:  enum.EventInvoiceBalanceChanged,
		data: BalanceEvent{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			NetAmount:     numericToDecimal(inv.NetAmount).StringFixed(2),
			PaidAmount:    numericToDecimal(inv.PaidAmount).StringFixed(2),
			UnpaidAmount:  numericToDecimal(inv.UnpaidAmount).StringFixed(2),
			PaymentStatus: inv.PaymentStatus,
		},
	}
}

func ledgerEvents(eventType string, r *ReceiptResult) []event {
	events := []event{{
		customerID: r.Receipt.CustomerID,
		eventType:  eventType,
		data:       ReceiptEvent{ReceiptID: r.Receipt.ID, ReceiptNumber: r.Receipt.ReceiptNumber},
	}}
	for _, inv := range r.Invoices {
		events = append(events, balanceEvent(inv))
	}
	return events
}
