package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	PaymentStatusUnpaid        = "UNPAID"
	PaymentStatusPartiallyPaid = "PARTIALLY_PAID"
	PaymentStatusPaid          = "PAID"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleAdmin      = "ADMIN"
	UserRoleAccountant = "ACCOUNTANT"
	UserRoleStaff      = "STAFF"
)

const (
	PaymentModeCash         = "CASH"
	PaymentModeCheque       = "CHEQUE"
	PaymentModeBankTransfer = "BANK_TRANSFER"
	PaymentModeUPI          = "UPI"
)

// ── Group B: Event names (no DB constraint) ──

const (
	EventReceiptCreated        = "receipt.created"
	EventReceiptUpdated        = "receipt.updated"
	EventReceiptDeleted        = "receipt.deleted"
	EventInvoiceBalanceChanged = "invoice.balance_changed"
)

// IsPaymentStatus reports whether s is one of the invoice payment statuses.
func IsPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPartiallyPaid, PaymentStatusPaid:
		return true
	}
	return false
}

func IsUserRole(s string) bool {
	switch s {
	case UserRoleAdmin, UserRoleAccountant, UserRoleStaff:
		return true
	}
	return false
}
