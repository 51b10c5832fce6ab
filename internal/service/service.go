// Package service holds the transactional ledger operations. Each operation
// runs in one database transaction and publishes its events only after
// commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/ledgerdesk/api/internal/ledger"
	"github.com/shopspring/decimal"
)

const (
	maxNumberRetries = 3
	dateLayout       = "2006-01-02"
)

// Errors returned by the ledger services.
var (
	ErrValidation              = errors.New("validation failed")
	ErrCustomerNotFound        = errors.New("customer not found")
	ErrInvoiceNotFound         = errors.New("invoice not found")
	ErrReceiptNotFound         = errors.New("receipt not found")
	ErrInvoiceCustomerMismatch = errors.New("invoice belongs to a different customer")
	ErrInvoiceHasPayments      = errors.New("invoice has payments allocated")

	ErrOverpayment     = ledger.ErrOverpayment
	ErrNegativeBalance = ledger.ErrNegativeBalance
	ErrNetBelowPaid    = ledger.ErrNetBelowPaid
)

// ValidationError carries a message per offending request field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Publisher receives ledger events for a customer after the transaction that
// produced them has committed.
type Publisher interface {
	Publish(customerID uuid.UUID, eventType string, data any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(uuid.UUID, string, any) {}

type event struct {
	customerID uuid.UUID
	eventType  string
	data       any
}

func publishAll(p Publisher, events []event) {
	for _, e := range events {
		p.Publish(e.customerID, e.eventType, e.data)
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags and converts failures into a
// ValidationError keyed by JSON field path.
func validateStruct(s any, except ...string) error {
	var err error
	if len(except) > 0 {
		err = validate.StructExcept(s, except...)
	} else {
		err = validate.Struct(s)
	}
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fieldPath(fe.Namespace())] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

// fieldPath drops the top-level struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// isUniqueViolation reports whether err is a 23505 on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// --- Helpers ---

// Column limits: money is NUMERIC(14,2), quantity NUMERIC(12,2).
var (
	maxAmount   = decimal.RequireFromString("999999999999.99")
	maxQuantity = decimal.RequireFromString("9999999999.99")
)

func parseAmount(field, s string, allowEmpty bool) (decimal.Decimal, error) {
	return parseBounded(field, s, allowEmpty, maxAmount)
}

func parseBounded(field, s string, allowEmpty bool, limit decimal.Decimal) (decimal.Decimal, error) {
	if s == "" && allowEmpty {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fieldError(field, "numeric")
	}
	if d.IsNegative() {
		return decimal.Zero, fieldError(field, "gte=0")
	}
	d = d.Round(2)
	if d.GreaterThan(limit) {
		return decimal.Zero, fieldError(field, "max")
	}
	return d, nil
}

func parseDate(field, s string) (pgtype.Date, error) {
	if s == "" {
		return pgtype.Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return pgtype.Date{}, fieldError(field, "datetime")
	}
	return pgtype.Date{Time: t, Valid: true}, nil
}

func optionalText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func invoiceBalance(net, paid, unpaid pgtype.Numeric) ledger.Balance {
	return ledger.Balance{
		Net:    numericToDecimal(net),
		Paid:   numericToDecimal(paid),
		Unpaid: numericToDecimal(unpaid),
	}
}

func wrapNotFound(err error, sentinel error, id uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}
