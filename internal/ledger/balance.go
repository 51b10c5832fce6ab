// Package ledger holds the balance arithmetic shared by every operation that
// moves money onto or off an invoice. It has no database access; callers load
// the stored figures, apply deltas here and persist the result.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Payment statuses derived from a balance.
const (
	StatusUnpaid        = "UNPAID"
	StatusPartiallyPaid = "PARTIALLY_PAID"
	StatusPaid          = "PAID"
)

var (
	ErrOverpayment     = errors.New("payment exceeds invoice net amount")
	ErrNegativeBalance = errors.New("paid amount would become negative")
	ErrNetBelowPaid    = errors.New("net amount is below the amount already paid")
	ErrNegativeNet     = errors.New("net amount must be >= 0")
	ErrInconsistent    = errors.New("paid + unpaid does not equal net")
)

// Balance is the paid/unpaid split of an invoice's net amount.
type Balance struct {
	Net    decimal.Decimal
	Paid   decimal.Decimal
	Unpaid decimal.Decimal
}

// NewBalance returns the balance of a freshly created invoice.
func NewBalance(net decimal.Decimal) (Balance, error) {
	if net.IsNegative() {
		return Balance{}, ErrNegativeNet
	}
	return Balance{Net: net, Paid: decimal.Zero, Unpaid: net}, nil
}

// Apply moves delta onto the paid side. A positive delta is a payment, a
// negative one comes from lowering an existing allocation.
func (b Balance) Apply(delta decimal.Decimal) (Balance, error) {
	paid := b.Paid.Add(delta)
	if paid.IsNegative() {
		return b, fmt.Errorf("%w: paid %s, delta %s", ErrNegativeBalance, b.Paid.StringFixed(2), delta.StringFixed(2))
	}
	if paid.GreaterThan(b.Net) {
		return b, fmt.Errorf("%w: net %s, paid would be %s", ErrOverpayment, b.Net.StringFixed(2), paid.StringFixed(2))
	}
	return Balance{Net: b.Net, Paid: paid, Unpaid: b.Net.Sub(paid)}, nil
}

// Reverse takes a previously applied payment back off the invoice. Paid is
// floored at zero so a drifted row can still be reversed.
func (b Balance) Reverse(payment decimal.Decimal) Balance {
	paid := b.Paid.Sub(payment)
	if paid.IsNegative() {
		paid = decimal.Zero
	}
	if paid.GreaterThan(b.Net) {
		paid = b.Net
	}
	return Balance{Net: b.Net, Paid: paid, Unpaid: b.Net.Sub(paid)}
}

// Rebase changes the net amount and keeps what has been paid.
func (b Balance) Rebase(net decimal.Decimal) (Balance, error) {
	if net.IsNegative() {
		return b, ErrNegativeNet
	}
	if net.LessThan(b.Paid) {
		return b, fmt.Errorf("%w: net %s, paid %s", ErrNetBelowPaid, net.StringFixed(2), b.Paid.StringFixed(2))
	}
	return Balance{Net: net, Paid: b.Paid, Unpaid: net.Sub(b.Paid)}, nil
}

func (b Balance) Status() string {
	switch {
	case b.Paid.IsZero():
		return StatusUnpaid
	case b.Unpaid.IsZero():
		return StatusPaid
	default:
		return StatusPartiallyPaid
	}
}

// Check reports whether the stored figures satisfy paid + unpaid = net with
// both sides non-negative.
func (b Balance) Check() error {
	if b.Paid.IsNegative() || b.Unpaid.IsNegative() {
		return ErrNegativeBalance
	}
	if !b.Paid.Add(b.Unpaid).Equal(b.Net) {
		return fmt.Errorf("%w: net %s, paid %s, unpaid %s", ErrInconsistent,
			b.Net.StringFixed(2), b.Paid.StringFixed(2), b.Unpaid.StringFixed(2))
	}
	return nil
}
