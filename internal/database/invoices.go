package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const invoiceColumns = `id, customer_id, invoice_number, invoice_date, due_date,
	total, discount, tax_amount, net_amount, paid_amount, unpaid_amount, payment_status,
	notes, is_active, created_by, updated_by, created_at, updated_at`

func scanInvoice(row scanner) (Invoice, error) {
	var i Invoice
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&i.InvoiceNumber,
		&i.InvoiceDate,
		&i.DueDate,
		&i.Total,
		&i.Discount,
		&i.TaxAmount,
		&i.NetAmount,
		&i.PaidAmount,
		&i.UnpaidAmount,
		&i.PaymentStatus,
		&i.Notes,
		&i.IsActive,
		&i.CreatedBy,
		&i.UpdatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectInvoices(rows pgx.Rows) ([]Invoice, error) {
	defer rows.Close()
	items := []Invoice{}
	for rows.Next() {
		i, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getNextInvoiceNumber = `SELECT (COALESCE(MAX(CAST(SUBSTRING(invoice_number FROM 5) AS INTEGER)), 0) + 1)::int4
FROM invoices
WHERE invoice_number LIKE 'INV-%'`

// GetNextInvoiceNumber returns MAX+1 of the numeric suffix. Concurrent
// callers can observe the same value; the unique constraint catches it.
func (q *Queries) GetNextInvoiceNumber(ctx context.Context) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, getNextInvoiceNumber).Scan(&n)
	return n, err
}

const createInvoice = `INSERT INTO invoices (
    customer_id, invoice_number, invoice_date, due_date,
    total, discount, tax_amount, net_amount, paid_amount, unpaid_amount, payment_status,
    notes, created_by, updated_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $8, 'UNPAID', $9, $10, $10)
RETURNING ` + invoiceColumns

type CreateInvoiceParams struct {
	CustomerID    uuid.UUID
	InvoiceNumber string
	InvoiceDate   pgtype.Date
	DueDate       pgtype.Date
	Total         pgtype.Numeric
	Discount      pgtype.Numeric
	TaxAmount     pgtype.Numeric
	NetAmount     pgtype.Numeric
	Notes         pgtype.Text
	CreatedBy     uuid.UUID
}

func (q *Queries) CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, createInvoice,
		arg.CustomerID,
		arg.InvoiceNumber,
		arg.InvoiceDate,
		arg.DueDate,
		arg.Total,
		arg.Discount,
		arg.TaxAmount,
		arg.NetAmount,
		arg.Notes,
		arg.CreatedBy,
	))
}

const getInvoice = `SELECT ` + invoiceColumns + ` FROM invoices
WHERE id = $1 AND is_active = true`

func (q *Queries) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, getInvoice, id))
}

const getInvoiceForUpdate = `SELECT ` + invoiceColumns + ` FROM invoices
WHERE id = $1 AND is_active = true
FOR NO KEY UPDATE`

// GetInvoiceForUpdate locks the invoice row until the surrounding
// transaction ends. Only meaningful on a transaction-backed Queries.
func (q *Queries) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, getInvoiceForUpdate, id))
}

const listInvoices = `SELECT ` + invoiceColumns + ` FROM invoices
WHERE is_active = true
  AND ($3::uuid IS NULL OR customer_id = $3)
  AND ($4::text IS NULL OR payment_status = $4)
ORDER BY invoice_date DESC, invoice_number DESC
LIMIT $1 OFFSET $2`

type ListInvoicesParams struct {
	Limit         int32
	Offset        int32
	CustomerID    pgtype.UUID
	PaymentStatus pgtype.Text
}

func (q *Queries) ListInvoices(ctx context.Context, arg ListInvoicesParams) ([]Invoice, error) {
	rows, err := q.db.Query(ctx, listInvoices, arg.Limit, arg.Offset, arg.CustomerID, arg.PaymentStatus)
	if err != nil {
		return nil, err
	}
	return collectInvoices(rows)
}

const listOutstandingInvoicesByCustomer = `SELECT ` + invoiceColumns + ` FROM invoices
WHERE customer_id = $1 AND is_active = true AND unpaid_amount > 0
ORDER BY invoice_date, invoice_number`

func (q *Queries) ListOutstandingInvoicesByCustomer(ctx context.Context, customerID uuid.UUID) ([]Invoice, error) {
	rows, err := q.db.Query(ctx, listOutstandingInvoicesByCustomer, customerID)
	if err != nil {
		return nil, err
	}
	return collectInvoices(rows)
}

const updateInvoice = `UPDATE invoices
SET invoice_date = $2, due_date = $3, total = $4, discount = $5, tax_amount = $6,
    net_amount = $7, unpaid_amount = $8, payment_status = $9, notes = $10,
    updated_by = $11, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING ` + invoiceColumns

type UpdateInvoiceParams struct {
	ID            uuid.UUID
	InvoiceDate   pgtype.Date
	DueDate       pgtype.Date
	Total         pgtype.Numeric
	Discount      pgtype.Numeric
	TaxAmount     pgtype.Numeric
	NetAmount     pgtype.Numeric
	UnpaidAmount  pgtype.Numeric
	PaymentStatus string
	Notes         pgtype.Text
	UpdatedBy     uuid.UUID
}

func (q *Queries) UpdateInvoice(ctx context.Context, arg UpdateInvoiceParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, updateInvoice,
		arg.ID,
		arg.InvoiceDate,
		arg.DueDate,
		arg.Total,
		arg.Discount,
		arg.TaxAmount,
		arg.NetAmount,
		arg.UnpaidAmount,
		arg.PaymentStatus,
		arg.Notes,
		arg.UpdatedBy,
	))
}

const updateInvoiceBalance = `UPDATE invoices
SET paid_amount = $2, unpaid_amount = $3, payment_status = $4,
    updated_by = $5, updated_at = now()
WHERE id = $1
RETURNING ` + invoiceColumns

type UpdateInvoiceBalanceParams struct {
	ID            uuid.UUID
	PaidAmount    pgtype.Numeric
	UnpaidAmount  pgtype.Numeric
	PaymentStatus string
	UpdatedBy     uuid.UUID
}

func (q *Queries) UpdateInvoiceBalance(ctx context.Context, arg UpdateInvoiceBalanceParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, updateInvoiceBalance,
		arg.ID,
		arg.PaidAmount,
		arg.UnpaidAmount,
		arg.PaymentStatus,
		arg.UpdatedBy,
	))
}

const softDeleteInvoice = `UPDATE invoices
SET is_active = false, updated_by = $2, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING id`

type SoftDeleteInvoiceParams struct {
	ID        uuid.UUID
	UpdatedBy uuid.UUID
}

func (q *Queries) SoftDeleteInvoice(ctx context.Context, arg SoftDeleteInvoiceParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, softDeleteInvoice, arg.ID, arg.UpdatedBy).Scan(&id)
	return id, err
}

const createInvoiceItem = `INSERT INTO invoice_items (invoice_id, description, quantity, rate, amount, sort_order)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, invoice_id, description, quantity, rate, amount, sort_order`

type CreateInvoiceItemParams struct {
	InvoiceID   uuid.UUID
	Description string
	Quantity    pgtype.Numeric
	Rate        pgtype.Numeric
	Amount      pgtype.Numeric
	SortOrder   int32
}

func (q *Queries) CreateInvoiceItem(ctx context.Context, arg CreateInvoiceItemParams) (InvoiceItem, error) {
	var i InvoiceItem
	err := q.db.QueryRow(ctx, createInvoiceItem,
		arg.InvoiceID,
		arg.Description,
		arg.Quantity,
		arg.Rate,
		arg.Amount,
		arg.SortOrder,
	).Scan(
		&i.ID,
		&i.InvoiceID,
		&i.Description,
		&i.Quantity,
		&i.Rate,
		&i.Amount,
		&i.SortOrder,
	)
	return i, err
}

const listInvoiceItems = `SELECT id, invoice_id, description, quantity, rate, amount, sort_order
FROM invoice_items
WHERE invoice_id = $1
ORDER BY sort_order, id`

func (q *Queries) ListInvoiceItems(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceItem, error) {
	rows, err := q.db.Query(ctx, listInvoiceItems, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []InvoiceItem{}
	for rows.Next() {
		var i InvoiceItem
		if err := rows.Scan(
			&i.ID,
			&i.InvoiceID,
			&i.Description,
			&i.Quantity,
			&i.Rate,
			&i.Amount,
			&i.SortOrder,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteInvoiceItems = `DELETE FROM invoice_items WHERE invoice_id = $1`

func (q *Queries) DeleteInvoiceItems(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteInvoiceItems, invoiceID)
	return err
}

const listInvoiceAllocationTotals = `SELECT
    i.id, i.invoice_number, i.net_amount, i.paid_amount, i.unpaid_amount,
    COALESCE(SUM(ri.payment), 0)::numeric AS allocated
FROM invoices i
LEFT JOIN receipt_invoices ri ON ri.invoice_id = i.id
WHERE i.is_active = true
GROUP BY i.id
ORDER BY i.invoice_number`

type InvoiceAllocationTotal struct {
	InvoiceID     uuid.UUID
	InvoiceNumber string
	NetAmount     pgtype.Numeric
	PaidAmount    pgtype.Numeric
	UnpaidAmount  pgtype.Numeric
	Allocated     pgtype.Numeric
}

// ListInvoiceAllocationTotals pairs every active invoice's stored paid
// amount with the sum of its allocation payments.
func (q *Queries) ListInvoiceAllocationTotals(ctx context.Context) ([]InvoiceAllocationTotal, error) {
	rows, err := q.db.Query(ctx, listInvoiceAllocationTotals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []InvoiceAllocationTotal{}
	for rows.Next() {
		var i InvoiceAllocationTotal
		if err := rows.Scan(
			&i.InvoiceID,
			&i.InvoiceNumber,
			&i.NetAmount,
			&i.PaidAmount,
			&i.UnpaidAmount,
			&i.Allocated,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
