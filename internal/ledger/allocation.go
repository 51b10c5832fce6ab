package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNegativeAmount = errors.New("allocation amounts must be >= 0")

// Allocation is the part of one receipt applied to one invoice. Only Payment
// moves the invoice balance; TDS and waived-off amounts are recorded alongside.
type Allocation struct {
	InvoiceAmount decimal.Decimal
	Payment       decimal.Decimal
	TDSDeduction  decimal.Decimal
	WaivedOff     decimal.Decimal
}

func (a Allocation) Validate() error {
	if a.Payment.IsNegative() || a.TDSDeduction.IsNegative() || a.WaivedOff.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// Delta is the change in paid amount when previous is replaced by a. A nil
// previous means the allocation is new.
func (a Allocation) Delta(previous *Allocation) decimal.Decimal {
	if previous == nil {
		return a.Payment
	}
	return a.Payment.Sub(previous.Payment)
}

// Unsettled is the part of a receipt's amount not allocated to any invoice.
func Unsettled(paymentAmount decimal.Decimal, allocations []Allocation) decimal.Decimal {
	allocated := decimal.Zero
	for _, a := range allocations {
		allocated = allocated.Add(a.Payment)
	}
	return paymentAmount.Sub(allocated)
}
