package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReminder_OmitsMissingDueDate(t *testing.T) {
	msg, err := renderReminder(ReminderData{
		CustomerName:  "Globex",
		InvoiceNumber: "INV-00001",
		InvoiceDate:   "2026-01-15",
		NetAmount:     "250.00",
		PaidAmount:    "0.00",
		UnpaidAmount:  "250.00",
	})
	require.NoError(t, err)
	assert.Equal(t, "Payment reminder: invoice INV-00001", msg.Subject)
	assert.Contains(t, msg.Body, "invoice INV-00001 dated 2026-01-15")
	assert.NotContains(t, msg.Body, "Payment was due")
}
