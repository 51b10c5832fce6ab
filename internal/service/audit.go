package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/ledgerdesk/api/internal/ledger"
	"github.com/shopspring/decimal"
)

// AuditStore defines the DB methods needed to reconcile stored balances
// against allocations.
type AuditStore interface {
	ListInvoiceAllocationTotals(ctx context.Context) ([]database.InvoiceAllocationTotal, error)
	GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	UpdateInvoiceBalance(ctx context.Context, arg database.UpdateInvoiceBalanceParams) (database.Invoice, error)
	SumPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) (pgtype.Numeric, error)
}

type NewAuditStore func(db database.DBTX) AuditStore

// Drift is an invoice whose stored paid amount differs from the sum of its
// allocation payments.
type Drift struct {
	InvoiceID     uuid.UUID
	InvoiceNumber string
	Net           decimal.Decimal
	StoredPaid    decimal.Decimal
	Allocated     decimal.Decimal
	Fixed         bool
	// Reason is set when the invoice could not be repaired.
	Reason string
}

type AuditService struct {
	pool     TxBeginner
	newStore NewAuditStore
}

func NewAuditService(pool TxBeginner, newStore NewAuditStore) *AuditService {
	return &AuditService{pool: pool, newStore: newStore}
}

// Run lists every active invoice whose stored balance disagrees with its
// allocations. With fix set, each drifted invoice is rewritten from the
// allocation sum in its own transaction.
func (s *AuditService) Run(ctx context.Context, fix bool, fixedBy uuid.UUID) ([]Drift, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	totals, err := s.newStore(tx).ListInvoiceAllocationTotals(ctx)
	tx.Rollback(ctx) //nolint:errcheck
	if err != nil {
		return nil, fmt.Errorf("list allocation totals: %w", err)
	}

	var drifts []Drift
	for _, t := range totals {
		stored := invoiceBalance(t.NetAmount, t.PaidAmount, t.UnpaidAmount)
		allocated := numericToDecimal(t.Allocated)
		if stored.Paid.Equal(allocated) && stored.Check() == nil {
			continue
		}
		d := Drift{
			InvoiceID:     t.InvoiceID,
			InvoiceNumber: t.InvoiceNumber,
			Net:           stored.Net,
			StoredPaid:    stored.Paid,
			Allocated:     allocated,
		}
		if fix {
			if err := s.repair(ctx, t.InvoiceID, fixedBy); err != nil {
				d.Reason = err.Error()
			} else {
				d.Fixed = true
			}
		}
		drifts = append(drifts, d)
	}
	return drifts, nil
}

func (s *AuditService) repair(ctx context.Context, invoiceID, fixedBy uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	inv, err := store.GetInvoiceForUpdate(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("lock invoice: %w", wrapNotFound(err, ErrInvoiceNotFound, invoiceID))
	}

	// Re-read under the lock; allocations may have moved since the scan.
	sum, err := store.SumPaymentsByInvoice(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("sum payments: %w", err)
	}
	allocated := numericToDecimal(sum)

	fresh, err := ledger.NewBalance(numericToDecimal(inv.NetAmount))
	if err != nil {
		return err
	}
	balance, err := fresh.Apply(allocated)
	if err != nil {
		return err
	}

	if _, err := store.UpdateInvoiceBalance(ctx, database.UpdateInvoiceBalanceParams{
		ID:            invoiceID,
		PaidAmount:    decimalToNumeric(balance.Paid),
		UnpaidAmount:  decimalToNumeric(balance.Unpaid),
		PaymentStatus: balance.Status(),
		UpdatedBy:     fixedBy,
	}); err != nil {
		return fmt.Errorf("update invoice balance: %w", err)
	}
	return tx.Commit(ctx)
}
