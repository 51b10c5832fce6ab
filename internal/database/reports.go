package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getCollectionSummary = `SELECT receipt_date, payment_mode,
    COUNT(*)::bigint AS receipt_count,
    COALESCE(SUM(payment_amount), 0)::numeric AS total_received,
    COALESCE(SUM(unsettled_amount), 0)::numeric AS total_unsettled
FROM receipts
WHERE receipt_date BETWEEN $1 AND $2
GROUP BY receipt_date, payment_mode
ORDER BY receipt_date, payment_mode`

type GetCollectionSummaryParams struct {
	StartDate pgtype.Date
	EndDate   pgtype.Date
}

type GetCollectionSummaryRow struct {
	ReceiptDate    pgtype.Date
	PaymentMode    string
	ReceiptCount   int64
	TotalReceived  pgtype.Numeric
	TotalUnsettled pgtype.Numeric
}

func (q *Queries) GetCollectionSummary(ctx context.Context, arg GetCollectionSummaryParams) ([]GetCollectionSummaryRow, error) {
	rows, err := q.db.Query(ctx, getCollectionSummary, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetCollectionSummaryRow{}
	for rows.Next() {
		var i GetCollectionSummaryRow
		if err := rows.Scan(
			&i.ReceiptDate,
			&i.PaymentMode,
			&i.ReceiptCount,
			&i.TotalReceived,
			&i.TotalUnsettled,
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

// Days overdue count from due_date, or invoice_date when no due date is set.
const getAgingSummary = `WITH open AS (
    SELECT customer_id, unpaid_amount,
        ($1::date - COALESCE(due_date, invoice_date)) AS days_overdue
    FROM invoices
    WHERE is_active = true AND unpaid_amount > 0 AND invoice_date <= $1
)
SELECT c.id, c.name,
    COALESCE(SUM(o.unpaid_amount) FILTER (WHERE o.days_overdue <= 0), 0)::numeric,
    COALESCE(SUM(o.unpaid_amount) FILTER (WHERE o.days_overdue BETWEEN 1 AND 30), 0)::numeric,
    COALESCE(SUM(o.unpaid_amount) FILTER (WHERE o.days_overdue BETWEEN 31 AND 60), 0)::numeric,
    COALESCE(SUM(o.unpaid_amount) FILTER (WHERE o.days_overdue BETWEEN 61 AND 90), 0)::numeric,
    COALESCE(SUM(o.unpaid_amount) FILTER (WHERE o.days_overdue > 90), 0)::numeric,
    SUM(o.unpaid_amount)::numeric AS total
FROM open o
JOIN customers c ON c.id = o.customer_id
GROUP BY c.id, c.name
ORDER BY total DESC, c.name`

type GetAgingSummaryRow struct {
	CustomerID   uuid.UUID
	CustomerName string
	Current      pgtype.Numeric
	Days1To30    pgtype.Numeric
	Days31To60   pgtype.Numeric
	Days61To90   pgtype.Numeric
	Over90       pgtype.Numeric
	Total        pgtype.Numeric
}

func (q *Queries) GetAgingSummary(ctx context.Context, asOf pgtype.Date) ([]GetAgingSummaryRow, error) {
	rows, err := q.db.Query(ctx, getAgingSummary, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetAgingSummaryRow{}
	for rows.Next() {
		var i GetAgingSummaryRow
		if err := rows.Scan(
			&i.CustomerID,
			&i.CustomerName,
			&i.Current,
			&i.Days1To30,
			&i.Days31To60,
			&i.Days61To90,
			&i.Over90,
			&i.Total,
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
