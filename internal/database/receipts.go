package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const receiptColumns = `id, customer_id, receipt_number, receipt_date, payment_mode, reference_number,
	payment_amount, unsettled_amount, other_charges, notes,
	created_by, updated_by, created_at, updated_at`

func scanReceipt(row scanner) (Receipt, error) {
	var i Receipt
	err := row.Scan(
		&i.ID,
		&i.CustomerID,
		&i.ReceiptNumber,
		&i.ReceiptDate,
		&i.PaymentMode,
		&i.ReferenceNumber,
		&i.PaymentAmount,
		&i.UnsettledAmount,
		&i.OtherCharges,
		&i.Notes,
		&i.CreatedBy,
		&i.UpdatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const receiptInvoiceColumns = `id, receipt_id, invoice_id, invoice_amount, payment, tds_deduction, waived_off,
	created_at, updated_at`

func scanReceiptInvoice(row scanner) (ReceiptInvoice, error) {
	var i ReceiptInvoice
	err := row.Scan(
		&i.ID,
		&i.ReceiptID,
		&i.InvoiceID,
		&i.InvoiceAmount,
		&i.Payment,
		&i.TdsDeduction,
		&i.WaivedOff,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getNextReceiptNumber = `SELECT (COALESCE(MAX(CAST(SUBSTRING(receipt_number FROM 5) AS INTEGER)), 0) + 1)::int4
FROM receipts
WHERE receipt_number LIKE 'RCT-%'`

func (q *Queries) GetNextReceiptNumber(ctx context.Context) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, getNextReceiptNumber).Scan(&n)
	return n, err
}

const createReceipt = `INSERT INTO receipts (
    customer_id, receipt_number, receipt_date, payment_mode, reference_number,
    payment_amount, unsettled_amount, other_charges, notes, created_by, updated_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
RETURNING ` + receiptColumns

type CreateReceiptParams struct {
	CustomerID      uuid.UUID
	ReceiptNumber   string
	ReceiptDate     pgtype.Date
	PaymentMode     string
	ReferenceNumber pgtype.Text
	PaymentAmount   pgtype.Numeric
	UnsettledAmount pgtype.Numeric
	OtherCharges    pgtype.Numeric
	Notes           pgtype.Text
	CreatedBy       uuid.UUID
}

func (q *Queries) CreateReceipt(ctx context.Context, arg CreateReceiptParams) (Receipt, error) {
	return scanReceipt(q.db.QueryRow(ctx, createReceipt,
		arg.CustomerID,
		arg.ReceiptNumber,
		arg.ReceiptDate,
		arg.PaymentMode,
		arg.ReferenceNumber,
		arg.PaymentAmount,
		arg.UnsettledAmount,
		arg.OtherCharges,
		arg.Notes,
		arg.CreatedBy,
	))
}

const getReceipt = `SELECT ` + receiptColumns + ` FROM receipts WHERE id = $1`

func (q *Queries) GetReceipt(ctx context.Context, id uuid.UUID) (Receipt, error) {
	return scanReceipt(q.db.QueryRow(ctx, getReceipt, id))
}

const getReceiptForUpdate = `SELECT ` + receiptColumns + ` FROM receipts WHERE id = $1 FOR UPDATE`

func (q *Queries) GetReceiptForUpdate(ctx context.Context, id uuid.UUID) (Receipt, error) {
	return scanReceipt(q.db.QueryRow(ctx, getReceiptForUpdate, id))
}

const listReceipts = `SELECT ` + receiptColumns + ` FROM receipts
WHERE ($3::uuid IS NULL OR customer_id = $3)
ORDER BY receipt_date DESC, receipt_number DESC
LIMIT $1 OFFSET $2`

type ListReceiptsParams struct {
	Limit      int32
	Offset     int32
	CustomerID pgtype.UUID
}

func (q *Queries) ListReceipts(ctx context.Context, arg ListReceiptsParams) ([]Receipt, error) {
	rows, err := q.db.Query(ctx, listReceipts, arg.Limit, arg.Offset, arg.CustomerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Receipt{}
	for rows.Next() {
		i, err := scanReceipt(rows)
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

const updateReceipt = `UPDATE receipts
SET receipt_date = $2, payment_mode = $3, reference_number = $4, payment_amount = $5,
    unsettled_amount = $6, other_charges = $7, notes = $8,
    updated_by = $9, updated_at = now()
WHERE id = $1
RETURNING ` + receiptColumns

type UpdateReceiptParams struct {
	ID              uuid.UUID
	ReceiptDate     pgtype.Date
	PaymentMode     string
	ReferenceNumber pgtype.Text
	PaymentAmount   pgtype.Numeric
	UnsettledAmount pgtype.Numeric
	OtherCharges    pgtype.Numeric
	Notes           pgtype.Text
	UpdatedBy       uuid.UUID
}

func (q *Queries) UpdateReceipt(ctx context.Context, arg UpdateReceiptParams) (Receipt, error) {
	return scanReceipt(q.db.QueryRow(ctx, updateReceipt,
		arg.ID,
		arg.ReceiptDate,
		arg.PaymentMode,
		arg.ReferenceNumber,
		arg.PaymentAmount,
		arg.UnsettledAmount,
		arg.OtherCharges,
		arg.Notes,
		arg.UpdatedBy,
	))
}

const deleteReceipt = `DELETE FROM receipts WHERE id = $1`

func (q *Queries) DeleteReceipt(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteReceipt, id)
	return err
}

const createReceiptInvoice = `INSERT INTO receipt_invoices (
    receipt_id, invoice_id, invoice_amount, payment, tds_deduction, waived_off
) VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + receiptInvoiceColumns

type CreateReceiptInvoiceParams struct {
	ReceiptID     uuid.UUID
	InvoiceID     uuid.UUID
	InvoiceAmount pgtype.Numeric
	Payment       pgtype.Numeric
	TdsDeduction  pgtype.Numeric
	WaivedOff     pgtype.Numeric
}

func (q *Queries) CreateReceiptInvoice(ctx context.Context, arg CreateReceiptInvoiceParams) (ReceiptInvoice, error) {
	return scanReceiptInvoice(q.db.QueryRow(ctx, createReceiptInvoice,
		arg.ReceiptID,
		arg.InvoiceID,
		arg.InvoiceAmount,
		arg.Payment,
		arg.TdsDeduction,
		arg.WaivedOff,
	))
}

const getReceiptInvoiceForUpdate = `SELECT ` + receiptInvoiceColumns + ` FROM receipt_invoices
WHERE receipt_id = $1 AND invoice_id = $2
ORDER BY seq
LIMIT 1
FOR UPDATE`

type GetReceiptInvoiceParams struct {
	ReceiptID uuid.UUID
	InvoiceID uuid.UUID
}

// GetReceiptInvoiceForUpdate returns the earliest allocation of the receipt
// against the invoice.
func (q *Queries) GetReceiptInvoiceForUpdate(ctx context.Context, arg GetReceiptInvoiceParams) (ReceiptInvoice, error) {
	return scanReceiptInvoice(q.db.QueryRow(ctx, getReceiptInvoiceForUpdate, arg.ReceiptID, arg.InvoiceID))
}

const updateReceiptInvoice = `UPDATE receipt_invoices
SET invoice_amount = $2, payment = $3, tds_deduction = $4, waived_off = $5, updated_at = now()
WHERE id = $1
RETURNING ` + receiptInvoiceColumns

type UpdateReceiptInvoiceParams struct {
	ID            uuid.UUID
	InvoiceAmount pgtype.Numeric
	Payment       pgtype.Numeric
	TdsDeduction  pgtype.Numeric
	WaivedOff     pgtype.Numeric
}

func (q *Queries) UpdateReceiptInvoice(ctx context.Context, arg UpdateReceiptInvoiceParams) (ReceiptInvoice, error) {
	return scanReceiptInvoice(q.db.QueryRow(ctx, updateReceiptInvoice,
		arg.ID,
		arg.InvoiceAmount,
		arg.Payment,
		arg.TdsDeduction,
		arg.WaivedOff,
	))
}

const listReceiptInvoicesByReceipt = `SELECT ` + receiptInvoiceColumns + ` FROM receipt_invoices
WHERE receipt_id = $1
ORDER BY seq`

func (q *Queries) ListReceiptInvoicesByReceipt(ctx context.Context, receiptID uuid.UUID) ([]ReceiptInvoice, error) {
	return q.listReceiptInvoices(ctx, listReceiptInvoicesByReceipt, receiptID)
}

const listReceiptInvoicesByInvoice = `SELECT ` + receiptInvoiceColumns + ` FROM receipt_invoices
WHERE invoice_id = $1
ORDER BY seq`

func (q *Queries) ListReceiptInvoicesByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]ReceiptInvoice, error) {
	return q.listReceiptInvoices(ctx, listReceiptInvoicesByInvoice, invoiceID)
}

func (q *Queries) listReceiptInvoices(ctx context.Context, query string, id uuid.UUID) ([]ReceiptInvoice, error) {
	rows, err := q.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ReceiptInvoice{}
	for rows.Next() {
		i, err := scanReceiptInvoice(rows)
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

const deleteReceiptInvoicesByReceipt = `DELETE FROM receipt_invoices WHERE receipt_id = $1`

func (q *Queries) DeleteReceiptInvoicesByReceipt(ctx context.Context, receiptID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteReceiptInvoicesByReceipt, receiptID)
	return err
}

const sumPaymentsByInvoice = `SELECT COALESCE(SUM(payment), 0)::numeric FROM receipt_invoices WHERE invoice_id = $1`

func (q *Queries) SumPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) (pgtype.Numeric, error) {
	var total pgtype.Numeric
	err := q.db.QueryRow(ctx, sumPaymentsByInvoice, invoiceID).Scan(&total)
	return total, err
}
