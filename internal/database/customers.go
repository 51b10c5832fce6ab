package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const customerColumns = `id, name, email, phone, pan, gstin, address, notes, is_active,
	created_by, updated_by, created_at, updated_at`

func scanCustomer(row scanner) (Customer, error) {
	var i Customer
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Email,
		&i.Phone,
		&i.Pan,
		&i.Gstin,
		&i.Address,
		&i.Notes,
		&i.IsActive,
		&i.CreatedBy,
		&i.UpdatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listCustomers = `SELECT ` + customerColumns + ` FROM customers
WHERE is_active = true
  AND ($3::text IS NULL OR name ILIKE '%' || $3 || '%' OR phone ILIKE '%' || $3 || '%')
ORDER BY name
LIMIT $1 OFFSET $2`

type ListCustomersParams struct {
	Limit  int32
	Offset int32
	Search pgtype.Text
}

func (q *Queries) ListCustomers(ctx context.Context, arg ListCustomersParams) ([]Customer, error) {
	rows, err := q.db.Query(ctx, listCustomers, arg.Limit, arg.Offset, arg.Search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Customer{}
	for rows.Next() {
		i, err := scanCustomer(rows)
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

const getCustomer = `SELECT ` + customerColumns + ` FROM customers
WHERE id = $1 AND is_active = true`

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomer, id))
}

const createCustomer = `INSERT INTO customers (name, email, phone, pan, gstin, address, notes, created_by, updated_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING ` + customerColumns

type CreateCustomerParams struct {
	Name      string
	Email     pgtype.Text
	Phone     pgtype.Text
	Pan       pgtype.Text
	Gstin     pgtype.Text
	Address   pgtype.Text
	Notes     pgtype.Text
	CreatedBy uuid.UUID
}

func (q *Queries) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, createCustomer,
		arg.Name,
		arg.Email,
		arg.Phone,
		arg.Pan,
		arg.Gstin,
		arg.Address,
		arg.Notes,
		arg.CreatedBy,
	))
}

const updateCustomer = `UPDATE customers
SET name = $2, email = $3, phone = $4, pan = $5, gstin = $6, address = $7, notes = $8,
    updated_by = $9, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING ` + customerColumns

type UpdateCustomerParams struct {
	ID        uuid.UUID
	Name      string
	Email     pgtype.Text
	Phone     pgtype.Text
	Pan       pgtype.Text
	Gstin     pgtype.Text
	Address   pgtype.Text
	Notes     pgtype.Text
	UpdatedBy uuid.UUID
}

func (q *Queries) UpdateCustomer(ctx context.Context, arg UpdateCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, updateCustomer,
		arg.ID,
		arg.Name,
		arg.Email,
		arg.Phone,
		arg.Pan,
		arg.Gstin,
		arg.Address,
		arg.Notes,
		arg.UpdatedBy,
	))
}

const softDeleteCustomer = `UPDATE customers
SET is_active = false, updated_by = $2, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING id`

type SoftDeleteCustomerParams struct {
	ID        uuid.UUID
	UpdatedBy uuid.UUID
}

func (q *Queries) SoftDeleteCustomer(ctx context.Context, arg SoftDeleteCustomerParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, softDeleteCustomer, arg.ID, arg.UpdatedBy).Scan(&id)
	return id, err
}

const getCustomerStatement = `SELECT
    COUNT(*) AS invoice_count,
    COALESCE(SUM(net_amount), 0)::numeric AS total_net,
    COALESCE(SUM(paid_amount), 0)::numeric AS total_paid,
    COALESCE(SUM(unpaid_amount), 0)::numeric AS total_unpaid
FROM invoices
WHERE customer_id = $1 AND is_active = true`

type GetCustomerStatementRow struct {
	InvoiceCount int64
	TotalNet     pgtype.Numeric
	TotalPaid    pgtype.Numeric
	TotalUnpaid  pgtype.Numeric
}

func (q *Queries) GetCustomerStatement(ctx context.Context, customerID uuid.UUID) (GetCustomerStatementRow, error) {
	var i GetCustomerStatementRow
	err := q.db.QueryRow(ctx, getCustomerStatement, customerID).Scan(
		&i.InvoiceCount,
		&i.TotalNet,
		&i.TotalPaid,
		&i.TotalUnpaid,
	)
	return i, err
}
