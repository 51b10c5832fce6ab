package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// ReminderData fills the reminder email.
type ReminderData struct {
	CustomerName  string
	InvoiceNumber string
	InvoiceDate   string
	DueDate       string
	NetAmount     string
	PaidAmount    string
	UnpaidAmount  string
}

var reminderTmpl = template.Must(template.New("reminder").Parse(`Dear {{.CustomerName}},

This is a reminder that invoice {{.InvoiceNumber}} dated {{.InvoiceDate}} has an outstanding balance.

  Invoice amount: {{.NetAmount}}
  Paid to date:   {{.PaidAmount}}
  Amount due:     {{.UnpaidAmount}}
{{if .DueDate}}
Payment was due on {{.DueDate}}.
{{end}}
Please disregard this message if payment has already been sent.
`))

func renderReminder(data ReminderData) (Message, error) {
	var buf bytes.Buffer
	if err := reminderTmpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render reminder: %w", err)
	}
	return Message{
		Subject: fmt.Sprintf("Payment reminder: invoice %s", data.InvoiceNumber),
		Body:    buf.String(),
	}, nil
}
