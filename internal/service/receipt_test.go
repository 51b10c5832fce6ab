package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func receiptReq(customerID uuid.UUID, amount string, allocs ...AllocationRequest) ReceiptRequest {
	return ReceiptRequest{
		CustomerID:    customerID.String(),
		ReceiptDate:   "2026-04-01",
		PaymentMode:   "BANK_TRANSFER",
		PaymentAmount: amount,
		Invoices:      allocs,
	}
}

func alloc(invoiceID uuid.UUID, payment string) AllocationRequest {
	return AllocationRequest{InvoiceID: invoiceID.String(), InvoiceAmount: "1000", Payment: payment}
}

// =====================
// Ledger scenarios
// =====================

func TestReceiptLedgerScenarios(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	userID := uuid.New()

	customerID := store.addCustomer()
	invoiceID := store.addInvoice(customerID, "1000", "0")

	// A: 400 against an invoice of 1000.
	first, err := svc.CreateReceipt(ctx, receiptReq(customerID, "400", alloc(invoiceID, "400")), userID)
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	assertInvoice(t, store, invoiceID, "400", "600")
	if got := store.invoices[invoiceID].PaymentStatus; got != "PARTIALLY_PAID" {
		t.Errorf("payment_status: got %s, want PARTIALLY_PAID", got)
	}
	if first.Receipt.ReceiptNumber != "RCT-00001" {
		t.Errorf("receipt_number: got %s, want RCT-00001", first.Receipt.ReceiptNumber)
	}

	// B: a further 700 would overpay; rejected and nothing is written.
	_, err = svc.CreateReceipt(ctx, receiptReq(customerID, "700", alloc(invoiceID, "700")), userID)
	if !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got: %v", err)
	}
	assertInvoice(t, store, invoiceID, "400", "600")
	if len(store.receipts) != 1 {
		t.Errorf("receipts: got %d, want 1", len(store.receipts))
	}

	// C: amend the first receipt from 400 to 250.
	amend := receiptReq(customerID, "400", alloc(invoiceID, "250"))
	updated, err := svc.UpdateReceipt(ctx, first.Receipt.ID, amend, userID)
	if err != nil {
		t.Fatalf("update receipt: %v", err)
	}
	assertInvoice(t, store, invoiceID, "250", "750")
	if !numericEquals(updated.Receipt.UnsettledAmount, "150") {
		t.Errorf("unsettled_amount: got %s, want 150", numericToDecimal(updated.Receipt.UnsettledAmount))
	}
	if len(store.allocations) != 1 {
		t.Errorf("allocations: got %d, want 1", len(store.allocations))
	}

	// D: delete reverses the amended 250.
	if _, err := svc.DeleteReceipt(ctx, first.Receipt.ID, userID); err != nil {
		t.Fatalf("delete receipt: %v", err)
	}
	assertInvoice(t, store, invoiceID, "0", "1000")
	if got := store.invoices[invoiceID].PaymentStatus; got != "UNPAID" {
		t.Errorf("payment_status: got %s, want UNPAID", got)
	}
	if len(store.allocations) != 0 || len(store.receipts) != 0 {
		t.Errorf("expected receipt and allocations removed, got %d receipts, %d allocations",
			len(store.receipts), len(store.allocations))
	}
}

// =====================
// Create
// =====================

func TestCreateReceipt_SplitAcrossInvoices(t *testing.T) {
	store := newFakeStore()
	svc, _, pub := newTestReceiptService(store)
	customerID := store.addCustomer()
	inv1 := store.addInvoice(customerID, "500", "0")
	inv2 := store.addInvoice(customerID, "300", "100")

	result, err := svc.CreateReceipt(context.Background(),
		receiptReq(customerID, "1000", alloc(inv1, "500"), alloc(inv2, "200")), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	assertInvoice(t, store, inv1, "500", "0")
	assertInvoice(t, store, inv2, "300", "0")
	if got := store.invoices[inv1].PaymentStatus; got != "PAID" {
		t.Errorf("payment_status: got %s, want PAID", got)
	}
	if !numericEquals(result.Receipt.UnsettledAmount, "300") {
		t.Errorf("unsettled_amount: got %s, want 300", numericToDecimal(result.Receipt.UnsettledAmount))
	}
	if len(result.Allocations) != 2 || len(result.Invoices) != 2 {
		t.Errorf("result: got %d allocations, %d invoices; want 2, 2", len(result.Allocations), len(result.Invoices))
	}
	if len(pub.events) != 3 || pub.events[0] != "receipt.created" {
		t.Errorf("events: got %v", pub.events)
	}
}

func TestCreateReceipt_DuplicateInvoiceIsCumulative(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	invoiceID := store.addInvoice(customerID, "1000", "0")

	_, err := svc.CreateReceipt(context.Background(),
		receiptReq(customerID, "500", alloc(invoiceID, "200"), alloc(invoiceID, "300")), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	assertInvoice(t, store, invoiceID, "500", "500")
	if len(store.allocations) != 2 {
		t.Errorf("allocations: got %d, want 2", len(store.allocations))
	}
}

func TestCreateReceipt_DuplicateInvoiceOverpaysInTotal(t *testing.T) {
	store := newFakeStore()
	svc, _, pub := newTestReceiptService(store)
	customerID := store.addCustomer()
	invoiceID := store.addInvoice(customerID, "400", "0")

	_, err := svc.CreateReceipt(context.Background(),
		receiptReq(customerID, "500", alloc(invoiceID, "250"), alloc(invoiceID, "250")), uuid.New())
	if !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got: %v", err)
	}
	assertInvoice(t, store, invoiceID, "0", "400")
	if len(store.allocations) != 0 {
		t.Errorf("allocations: got %d, want 0 after rollback", len(store.allocations))
	}
	if len(pub.events) != 0 {
		t.Errorf("events published on failure: %v", pub.events)
	}
}

func TestCreateReceipt_AllocatedMoreThanReceived(t *testing.T) {
	store := newFakeStore()
	svc, pool, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	invoiceID := store.addInvoice(customerID, "1000", "0")

	_, err := svc.CreateReceipt(context.Background(),
		receiptReq(customerID, "100", alloc(invoiceID, "200")), uuid.New())

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if _, ok := ve.Fields["invoices"]; !ok {
		t.Errorf("expected invoices field error, got %v", ve.Fields)
	}
	if pool.begins != 0 {
		t.Errorf("transaction started for invalid request")
	}
}

func TestCreateReceipt_Validation(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	invoiceID := store.addInvoice(customerID, "1000", "0")

	tests := []struct {
		name  string
		mut   func(r *ReceiptRequest)
		field string
	}{
		{"missing customer", func(r *ReceiptRequest) { r.CustomerID = "" }, "customer_id"},
		{"bad date", func(r *ReceiptRequest) { r.ReceiptDate = "01/04/2026" }, "receipt_date"},
		{"bad mode", func(r *ReceiptRequest) { r.PaymentMode = "BARTER" }, "payment_mode"},
		{"non numeric amount", func(r *ReceiptRequest) { r.PaymentAmount = "lots" }, "payment_amount"},
		{"bad invoice id", func(r *ReceiptRequest) { r.Invoices[0].InvoiceID = "nope" }, "invoices[0].invoice_id"},
		{"negative payment", func(r *ReceiptRequest) { r.Invoices[0].Payment = "-5" }, "invoices[0].payment"},
		{"negative tds", func(r *ReceiptRequest) { r.Invoices[0].TDSDeduction = "-1" }, "invoices[0].tds_deduction"},
		{"amount over column limit", func(r *ReceiptRequest) {
			r.PaymentAmount = "1000000000000"
			r.Invoices[0].Payment = "1000000000000"
		}, "payment_amount"},
		{"payment over column limit", func(r *ReceiptRequest) { r.Invoices[0].Payment = "1000000000000" }, "invoices[0].payment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := receiptReq(customerID, "100", alloc(invoiceID, "100"))
			tt.mut(&req)

			_, err := svc.CreateReceipt(context.Background(), req, uuid.New())
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got: %v", err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected errors.Is ErrValidation")
			}
			if _, ok := ve.Fields[tt.field]; !ok {
				t.Errorf("expected error on %q, got %v", tt.field, ve.Fields)
			}
		})
	}
}

func TestCreateReceipt_CustomerNotFound(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)

	_, err := svc.CreateReceipt(context.Background(), receiptReq(uuid.New(), "100"), uuid.New())
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got: %v", err)
	}
}

func TestCreateReceipt_InvoiceNotFound(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()

	_, err := svc.CreateReceipt(context.Background(),
		receiptReq(customerID, "100", alloc(uuid.New(), "100")), uuid.New())
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got: %v", err)
	}
	if len(store.receipts) != 0 {
		t.Errorf("receipt written despite failure")
	}
}

func TestCreateReceipt_InvoiceOfAnotherCustomer(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	otherInvoice := store.addInvoice(store.addCustomer(), "1000", "0")

	_, err := svc.CreateReceipt(context.Background(),
		receiptReq(customerID, "100", alloc(otherInvoice, "100")), uuid.New())
	if !errors.Is(err, ErrInvoiceCustomerMismatch) {
		t.Fatalf("expected ErrInvoiceCustomerMismatch, got: %v", err)
	}
}

func TestCreateReceipt_LocksInvoicesInSortedOrder(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	a := store.addInvoice(customerID, "100", "0")
	b := store.addInvoice(customerID, "100", "0")
	c := store.addInvoice(customerID, "100", "0")

	_, err := svc.CreateReceipt(context.Background(),
		receiptReq(customerID, "30", alloc(c, "10"), alloc(a, "10"), alloc(b, "10"), alloc(a, "0")), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	if len(store.locked) != 3 {
		t.Fatalf("locks: got %d, want 3", len(store.locked))
	}
	for i := 1; i < len(store.locked); i++ {
		if store.locked[i-1].String() >= store.locked[i].String() {
			t.Errorf("locks not in ascending order: %v", store.locked)
		}
	}
}

func TestCreateReceipt_RetriesOnNumberConflict(t *testing.T) {
	store := newFakeStore()
	svc, pool, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	store.createReceiptErrs = []error{uniqueViolation(receiptNumberConstraint), nil}

	result, err := svc.CreateReceipt(context.Background(), receiptReq(customerID, "100"), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	if pool.begins != 2 {
		t.Errorf("transactions: got %d, want 2", pool.begins)
	}
	if result.Receipt.ReceiptNumber != "RCT-00001" {
		t.Errorf("receipt_number: got %s", result.Receipt.ReceiptNumber)
	}
}

func TestCreateReceipt_GivesUpAfterRetries(t *testing.T) {
	store := newFakeStore()
	svc, pool, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	conflict := uniqueViolation(receiptNumberConstraint)
	store.createReceiptErrs = []error{conflict, conflict, conflict}

	_, err := svc.CreateReceipt(context.Background(), receiptReq(customerID, "100"), uuid.New())
	if !isUniqueViolation(err, receiptNumberConstraint) {
		t.Fatalf("expected unique violation, got: %v", err)
	}
	if pool.begins != maxNumberRetries {
		t.Errorf("transactions: got %d, want %d", pool.begins, maxNumberRetries)
	}
}

func TestCreateReceipt_OtherUniqueViolationNotRetried(t *testing.T) {
	store := newFakeStore()
	svc, pool, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	store.createReceiptErrs = []error{uniqueViolation("some_other_key")}

	_, err := svc.CreateReceipt(context.Background(), receiptReq(customerID, "100"), uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
	if pool.begins != 1 {
		t.Errorf("transactions: got %d, want 1", pool.begins)
	}
}

// =====================
// Update
// =====================

func TestUpdateReceipt_AddsNewAllocationAndLeavesOmittedAlone(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	inv1 := store.addInvoice(customerID, "1000", "0")
	inv2 := store.addInvoice(customerID, "1000", "0")
	inv3 := store.addInvoice(customerID, "1000", "0")

	created, err := svc.CreateReceipt(ctx,
		receiptReq(customerID, "900", alloc(inv1, "300"), alloc(inv2, "300")), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	// inv2 omitted, inv3 new.
	_, err = svc.UpdateReceipt(ctx, created.Receipt.ID,
		receiptReq(customerID, "900", alloc(inv1, "350"), alloc(inv3, "100")), uuid.New())
	if err != nil {
		t.Fatalf("update receipt: %v", err)
	}

	assertInvoice(t, store, inv1, "350", "650")
	assertInvoice(t, store, inv2, "300", "700")
	assertInvoice(t, store, inv3, "100", "900")
	if len(store.allocations) != 3 {
		t.Errorf("allocations: got %d, want 3", len(store.allocations))
	}
	if !numericEquals(store.receipts[created.Receipt.ID].UnsettledAmount, "150") {
		t.Errorf("unsettled_amount: got %s, want 150",
			numericToDecimal(store.receipts[created.Receipt.ID].UnsettledAmount))
	}
}

func TestUpdateReceipt_Overpayment(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	invoiceID := store.addInvoice(customerID, "500", "0")

	created, err := svc.CreateReceipt(ctx, receiptReq(customerID, "600", alloc(invoiceID, "400")), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	_, err = svc.UpdateReceipt(ctx, created.Receipt.ID,
		receiptReq(customerID, "600", alloc(invoiceID, "600")), uuid.New())
	if !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got: %v", err)
	}
	assertInvoice(t, store, invoiceID, "400", "100")
	if !numericEquals(store.allocations[0].Payment, "400") {
		t.Errorf("allocation payment changed despite rollback")
	}
}

func TestUpdateReceipt_NegativeBalanceAfterDrift(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	invoiceID := store.addInvoice(customerID, "500", "0")

	created, err := svc.CreateReceipt(ctx, receiptReq(customerID, "400", alloc(invoiceID, "400")), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	// Stored paid drifted below the allocation.
	inv := store.invoices[invoiceID]
	inv.PaidAmount = makeNumeric("100")
	inv.UnpaidAmount = makeNumeric("400")
	store.invoices[invoiceID] = inv

	_, err = svc.UpdateReceipt(ctx, created.Receipt.ID,
		receiptReq(customerID, "400", alloc(invoiceID, "0")), uuid.New())
	if !errors.Is(err, ErrNegativeBalance) {
		t.Fatalf("expected ErrNegativeBalance, got: %v", err)
	}
}

func TestUpdateReceipt_AmountBelowAllocations(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	inv1 := store.addInvoice(customerID, "1000", "0")
	inv2 := store.addInvoice(customerID, "1000", "0")

	created, err := svc.CreateReceipt(ctx,
		receiptReq(customerID, "600", alloc(inv1, "300"), alloc(inv2, "300")), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	// inv2's 300 stays allocated, so 400 cannot cover 300 + 200.
	_, err = svc.UpdateReceipt(ctx, created.Receipt.ID,
		receiptReq(customerID, "400", alloc(inv1, "200")), uuid.New())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got: %v", err)
	}
	assertInvoice(t, store, inv1, "300", "700")
}

func TestUpdateReceipt_NotFound(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()

	_, err := svc.UpdateReceipt(context.Background(), uuid.New(), receiptReq(customerID, "100"), uuid.New())
	if !errors.Is(err, ErrReceiptNotFound) {
		t.Fatalf("expected ErrReceiptNotFound, got: %v", err)
	}
}

func TestUpdateReceipt_IgnoresCustomerField(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()

	created, err := svc.CreateReceipt(ctx, receiptReq(customerID, "100"), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	req := receiptReq(customerID, "150")
	req.CustomerID = ""
	updated, err := svc.UpdateReceipt(ctx, created.Receipt.ID, req, uuid.New())
	if err != nil {
		t.Fatalf("update receipt: %v", err)
	}
	if updated.Receipt.CustomerID != customerID {
		t.Errorf("customer changed on amend")
	}
}

// =====================
// Delete
// =====================

func TestDeleteReceipt_RestoresEveryInvoice(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, pub := newTestReceiptService(store)
	customerID := store.addCustomer()
	inv1 := store.addInvoice(customerID, "750.50", "100.25")
	inv2 := store.addInvoice(customerID, "300", "0")

	created, err := svc.CreateReceipt(ctx,
		receiptReq(customerID, "900", alloc(inv1, "650.25"), alloc(inv2, "120"), alloc(inv2, "30")), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	pub.events = nil

	if _, err := svc.DeleteReceipt(ctx, created.Receipt.ID, uuid.New()); err != nil {
		t.Fatalf("delete receipt: %v", err)
	}

	assertInvoice(t, store, inv1, "100.25", "650.25")
	assertInvoice(t, store, inv2, "0", "300")
	if len(pub.events) != 3 || pub.events[0] != "receipt.deleted" {
		t.Errorf("events: got %v", pub.events)
	}
}

func TestDeleteReceipt_FloorsPaidAtZero(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)
	customerID := store.addCustomer()
	invoiceID := store.addInvoice(customerID, "1000", "0")

	created, err := svc.CreateReceipt(ctx, receiptReq(customerID, "400", alloc(invoiceID, "400")), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}

	inv := store.invoices[invoiceID]
	inv.PaidAmount = makeNumeric("150")
	inv.UnpaidAmount = makeNumeric("850")
	store.invoices[invoiceID] = inv

	if _, err := svc.DeleteReceipt(ctx, created.Receipt.ID, uuid.New()); err != nil {
		t.Fatalf("delete receipt: %v", err)
	}
	assertInvoice(t, store, invoiceID, "0", "1000")
}

func TestDeleteReceipt_NotFound(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestReceiptService(store)

	_, err := svc.DeleteReceipt(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrReceiptNotFound) {
		t.Fatalf("expected ErrReceiptNotFound, got: %v", err)
	}
}

func TestDeleteReceipt_CommitFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, pub := newTestReceiptService(store)
	customerID := store.addCustomer()
	invoiceID := store.addInvoice(customerID, "1000", "0")

	created, err := svc.CreateReceipt(ctx, receiptReq(customerID, "400", alloc(invoiceID, "400")), uuid.New())
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	pub.events = nil

	failing := &failingCommitBeginner{store: store}
	svc.pool = failing

	_, err = svc.DeleteReceipt(ctx, created.Receipt.ID, uuid.New())
	if err == nil {
		t.Fatal("expected commit error")
	}
	assertInvoice(t, store, invoiceID, "400", "600")
	if len(pub.events) != 0 {
		t.Errorf("events published without commit: %v", pub.events)
	}
}

type failingCommitBeginner struct {
	store *fakeStore
}

func (f *failingCommitBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	snap := f.store.snapshot()
	return &mockTx{commitErr: errors.New("connection reset"), onRollback: func() { f.store.restore(snap) }}, nil
}
