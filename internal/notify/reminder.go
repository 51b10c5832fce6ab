package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/ledgerdesk/api/internal/service"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ReminderStore defines the DB methods needed to build a reminder.
type ReminderStore interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
}

// Reminder emails a customer about an invoice's unpaid amount. A nil
// cooldown sends on every call.
type Reminder struct {
	store    ReminderStore
	sender   Sender
	cooldown Cooldown
	ttl      time.Duration
}

func NewReminder(store ReminderStore, sender Sender, cooldown Cooldown, ttl time.Duration) *Reminder {
	return &Reminder{store: store, sender: sender, cooldown: cooldown, ttl: ttl}
}

// Remind reports whether a reminder went out. Paid invoices, invoices
// still inside the cooldown window and failed sends all report false
// without error. A failed send is not retried.
func (r *Reminder) Remind(ctx context.Context, invoiceID uuid.UUID) (bool, error) {
	inv, err := r.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%w: %s", service.ErrInvoiceNotFound, invoiceID)
		}
		return false, fmt.Errorf("get invoice: %w", err)
	}
	unpaid := numericDecimal(inv.UnpaidAmount)
	if !unpaid.IsPositive() {
		return false, nil
	}

	cust, err := r.store.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%w: %s", service.ErrCustomerNotFound, inv.CustomerID)
		}
		return false, fmt.Errorf("get customer: %w", err)
	}
	if !cust.Email.Valid || cust.Email.String == "" {
		return false, fmt.Errorf("%w: %s", ErrNoRecipient, cust.Name)
	}

	key := invoiceID.String()
	if r.cooldown != nil {
		ok, err := r.cooldown.Acquire(ctx, key, r.ttl)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	msg, err := renderReminder(ReminderData{
		CustomerName:  cust.Name,
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceDate:   formatDate(inv.InvoiceDate),
		DueDate:       formatDate(inv.DueDate),
		NetAmount:     numericDecimal(inv.NetAmount).StringFixed(2),
		PaidAmount:    numericDecimal(inv.PaidAmount).StringFixed(2),
		UnpaidAmount:  unpaid.StringFixed(2),
	})
	if err != nil {
		return false, err
	}
	msg.To = cust.Email.String

	if err := r.sender.Send(ctx, msg); err != nil {
		if r.cooldown != nil {
			if rerr := r.cooldown.Release(ctx, key); rerr != nil {
				log.Warn().Err(rerr).Str("invoice_id", key).Msg("failed to release reminder cooldown")
			}
		}
		log.Error().Err(err).Str("invoice", inv.InvoiceNumber).Str("to", msg.To).Msg("payment reminder not sent")
		return false, nil
	}
	log.Info().Str("invoice", inv.InvoiceNumber).Str("to", msg.To).Msg("payment reminder sent")
	return true, nil
}

func numericDecimal(n pgtype.Numeric) decimal.Decimal {
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

func formatDate(d pgtype.Date) string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format("2006-01-02")
}
