// Package notify sends payment reminders for outstanding invoices.
package notify

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned when the invoice's customer has no email.
var ErrNoRecipient = errors.New("customer has no email address")

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
