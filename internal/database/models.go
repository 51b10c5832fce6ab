package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID             uuid.UUID
	Email          string
	HashedPassword string
	FullName       string
	Role           string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Customer struct {
	ID        uuid.UUID
	Name      string
	Email     pgtype.Text
	Phone     pgtype.Text
	Pan       pgtype.Text
	Gstin     pgtype.Text
	Address   pgtype.Text
	Notes     pgtype.Text
	IsActive  bool
	CreatedBy uuid.UUID
	UpdatedBy uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Invoice struct {
	ID            uuid.UUID
	CustomerID    uuid.UUID
	InvoiceNumber string
	InvoiceDate   pgtype.Date
	DueDate       pgtype.Date
	Total         pgtype.Numeric
	Discount      pgtype.Numeric
	TaxAmount     pgtype.Numeric
	NetAmount     pgtype.Numeric
	PaidAmount    pgtype.Numeric
	UnpaidAmount  pgtype.Numeric
	PaymentStatus string
	Notes         pgtype.Text
	IsActive      bool
	CreatedBy     uuid.UUID
	UpdatedBy     uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type InvoiceItem struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	Description string
	Quantity    pgtype.Numeric
	Rate        pgtype.Numeric
	Amount      pgtype.Numeric
	SortOrder   int32
}

type Receipt struct {
	ID              uuid.UUID
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
	UpdatedBy       uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ReceiptInvoice is one allocation of a receipt's payment to an invoice.
type ReceiptInvoice struct {
	ID            uuid.UUID
	ReceiptID     uuid.UUID
	InvoiceID     uuid.UUID
	InvoiceAmount pgtype.Numeric
	Payment       pgtype.Numeric
	TdsDeduction  pgtype.Numeric
	WaivedOff     pgtype.Numeric
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
