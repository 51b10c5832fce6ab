package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertBalance(t *testing.T, b Balance, paid, unpaid string) {
	t.Helper()
	assert.True(t, b.Paid.Equal(d(paid)), "paid: got %s, want %s", b.Paid, paid)
	assert.True(t, b.Unpaid.Equal(d(unpaid)), "unpaid: got %s, want %s", b.Unpaid, unpaid)
	require.NoError(t, b.Check())
}

func TestNewBalance(t *testing.T) {
	b, err := NewBalance(d("1000"))
	require.NoError(t, err)
	assertBalance(t, b, "0", "1000")
	assert.Equal(t, StatusUnpaid, b.Status())

	_, err = NewBalance(d("-1"))
	assert.ErrorIs(t, err, ErrNegativeNet)
}

func TestLedgerScenarios(t *testing.T) {
	b, err := NewBalance(d("1000"))
	require.NoError(t, err)

	// A: first receipt pays 400.
	first := Allocation{InvoiceAmount: d("1000"), Payment: d("400")}
	b, err = b.Apply(first.Delta(nil))
	require.NoError(t, err)
	assertBalance(t, b, "400", "600")
	assert.Equal(t, StatusPartiallyPaid, b.Status())

	// B: a second receipt of 700 would overpay and is rejected.
	second := Allocation{InvoiceAmount: d("1000"), Payment: d("700")}
	rejected, err := b.Apply(second.Delta(nil))
	assert.ErrorIs(t, err, ErrOverpayment)
	assertBalance(t, rejected, "400", "600")

	// C: the first receipt is amended to 250.
	amended := Allocation{InvoiceAmount: d("1000"), Payment: d("250")}
	delta := amended.Delta(&first)
	assert.True(t, delta.Equal(d("-150")))
	b, err = b.Apply(delta)
	require.NoError(t, err)
	assertBalance(t, b, "250", "750")

	// D: deleting the receipt reverses the current allocation.
	b = b.Reverse(amended.Payment)
	assertBalance(t, b, "0", "1000")
	assert.Equal(t, StatusUnpaid, b.Status())
}

func TestApply(t *testing.T) {
	base := Balance{Net: d("500"), Paid: d("100"), Unpaid: d("400")}

	tests := []struct {
		name   string
		delta  string
		paid   string
		unpaid string
		err    error
	}{
		{"exact settlement", "400", "500", "0", nil},
		{"zero delta", "0", "100", "400", nil},
		{"negative delta", "-100", "0", "500", nil},
		{"overpay by a cent", "400.01", "100", "400", ErrOverpayment},
		{"below zero", "-100.01", "100", "400", ErrNegativeBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := base.Apply(d(tt.delta))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}
			assertBalance(t, got, tt.paid, tt.unpaid)
		})
	}
}

func TestReverseStaysWithinBounds(t *testing.T) {
	b := Balance{Net: d("300"), Paid: d("100"), Unpaid: d("200")}

	got := b.Reverse(d("250"))
	assertBalance(t, got, "0", "300")
	assert.True(t, got.Unpaid.LessThanOrEqual(got.Net))
}

func TestCreateThenReverseRestoresBalance(t *testing.T) {
	start := Balance{Net: d("1200.50"), Paid: d("200.25"), Unpaid: d("1000.25")}
	payment := d("733.33")

	applied, err := start.Apply(payment)
	require.NoError(t, err)

	restored := applied.Reverse(payment)
	assert.Equal(t, start.Paid.String(), restored.Paid.String())
	assert.Equal(t, start.Unpaid.String(), restored.Unpaid.String())
}

func TestRebase(t *testing.T) {
	b := Balance{Net: d("1000"), Paid: d("400"), Unpaid: d("600")}

	got, err := b.Rebase(d("1500"))
	require.NoError(t, err)
	assertBalance(t, got, "400", "1100")

	got, err = b.Rebase(d("400"))
	require.NoError(t, err)
	assertBalance(t, got, "400", "0")
	assert.Equal(t, StatusPaid, got.Status())

	_, err = b.Rebase(d("399.99"))
	assert.ErrorIs(t, err, ErrNetBelowPaid)
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Balance{Net: d("10"), Paid: d("4"), Unpaid: d("6")}.Check())
	assert.ErrorIs(t, Balance{Net: d("10"), Paid: d("4"), Unpaid: d("5")}.Check(), ErrInconsistent)
	assert.ErrorIs(t, Balance{Net: d("10"), Paid: d("11"), Unpaid: d("-1")}.Check(), ErrNegativeBalance)
}
