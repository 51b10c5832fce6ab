package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr  error
	committed  bool
	onRollback func()
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = true
	return nil
}
func (m *mockTx) Rollback(ctx context.Context) error {
	if !m.committed && m.onRollback != nil {
		m.onRollback()
		m.onRollback = nil
	}
	return nil
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner hands out mockTx values that restore the fake store on
// rollback, so a failed operation leaves no partial writes behind.
type mockTxBeginner struct {
	store  *fakeStore
	err    error
	begins int
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.begins++
	snap := m.store.snapshot()
	return &mockTx{onRollback: func() { m.store.restore(snap) }}, nil
}

// fakeStore is an in-memory ledger database. It implements ReceiptStore,
// InvoiceStore and AuditStore.
type fakeStore struct {
	customers   map[uuid.UUID]database.Customer
	invoices    map[uuid.UUID]database.Invoice
	items       map[uuid.UUID][]database.InvoiceItem
	receipts    map[uuid.UUID]database.Receipt
	allocations []database.ReceiptInvoice
	nextReceipt int32
	nextInvoice int32

	// createReceiptErrs is consumed one per CreateReceipt call.
	createReceiptErrs []error
	createInvoiceErrs []error
	locked            []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customers:   map[uuid.UUID]database.Customer{},
		invoices:    map[uuid.UUID]database.Invoice{},
		items:       map[uuid.UUID][]database.InvoiceItem{},
		receipts:    map[uuid.UUID]database.Receipt{},
		nextReceipt: 1,
		nextInvoice: 1,
	}
}

type fakeSnapshot struct {
	customers   map[uuid.UUID]database.Customer
	invoices    map[uuid.UUID]database.Invoice
	items       map[uuid.UUID][]database.InvoiceItem
	receipts    map[uuid.UUID]database.Receipt
	allocations []database.ReceiptInvoice
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f *fakeStore) snapshot() fakeSnapshot {
	return fakeSnapshot{
		customers:   copyMap(f.customers),
		invoices:    copyMap(f.invoices),
		items:       copyMap(f.items),
		receipts:    copyMap(f.receipts),
		allocations: append([]database.ReceiptInvoice(nil), f.allocations...),
	}
}

func (f *fakeStore) restore(s fakeSnapshot) {
	f.customers = s.customers
	f.invoices = s.invoices
	f.items = s.items
	f.receipts = s.receipts
	f.allocations = s.allocations
}

func (f *fakeStore) GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error) {
	c, ok := f.customers[id]
	if !ok || !c.IsActive {
		return database.Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

func (f *fakeStore) GetNextReceiptNumber(ctx context.Context) (int32, error) {
	return f.nextReceipt, nil
}

func (f *fakeStore) CreateReceipt(ctx context.Context, arg database.CreateReceiptParams) (database.Receipt, error) {
	if len(f.createReceiptErrs) > 0 {
		err := f.createReceiptErrs[0]
		f.createReceiptErrs = f.createReceiptErrs[1:]
		if err != nil {
			return database.Receipt{}, err
		}
	}
	r := database.Receipt{
		ID:              uuid.New(),
		CustomerID:      arg.CustomerID,
		ReceiptNumber:   arg.ReceiptNumber,
		ReceiptDate:     arg.ReceiptDate,
		PaymentMode:     arg.PaymentMode,
		ReferenceNumber: arg.ReferenceNumber,
		PaymentAmount:   arg.PaymentAmount,
		UnsettledAmount: arg.UnsettledAmount,
		OtherCharges:    arg.OtherCharges,
		Notes:           arg.Notes,
		CreatedBy:       arg.CreatedBy,
		UpdatedBy:       arg.CreatedBy,
	}
	f.receipts[r.ID] = r
	f.nextReceipt++
	return r, nil
}

func (f *fakeStore) GetReceiptForUpdate(ctx context.Context, id uuid.UUID) (database.Receipt, error) {
	r, ok := f.receipts[id]
	if !ok {
		return database.Receipt{}, pgx.ErrNoRows
	}
	return r, nil
}

func (f *fakeStore) UpdateReceipt(ctx context.Context, arg database.UpdateReceiptParams) (database.Receipt, error) {
	r, ok := f.receipts[arg.ID]
	if !ok {
		return database.Receipt{}, pgx.ErrNoRows
	}
	r.ReceiptDate = arg.ReceiptDate
	r.PaymentMode = arg.PaymentMode
	r.ReferenceNumber = arg.ReferenceNumber
	r.PaymentAmount = arg.PaymentAmount
	r.UnsettledAmount = arg.UnsettledAmount
	r.OtherCharges = arg.OtherCharges
	r.Notes = arg.Notes
	r.UpdatedBy = arg.UpdatedBy
	f.receipts[arg.ID] = r
	return r, nil
}

func (f *fakeStore) DeleteReceipt(ctx context.Context, id uuid.UUID) error {
	delete(f.receipts, id)
	return nil
}

func (f *fakeStore) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (database.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok || !inv.IsActive {
		return database.Invoice{}, pgx.ErrNoRows
	}
	f.locked = append(f.locked, id)
	return inv, nil
}

func (f *fakeStore) UpdateInvoiceBalance(ctx context.Context, arg database.UpdateInvoiceBalanceParams) (database.Invoice, error) {
	inv, ok := f.invoices[arg.ID]
	if !ok {
		return database.Invoice{}, pgx.ErrNoRows
	}
	inv.PaidAmount = arg.PaidAmount
	inv.UnpaidAmount = arg.UnpaidAmount
	inv.PaymentStatus = arg.PaymentStatus
	inv.UpdatedBy = arg.UpdatedBy
	f.invoices[arg.ID] = inv
	return inv, nil
}

func (f *fakeStore) CreateReceiptInvoice(ctx context.Context, arg database.CreateReceiptInvoiceParams) (database.ReceiptInvoice, error) {
	ri := database.ReceiptInvoice{
		ID:            uuid.New(),
		ReceiptID:     arg.ReceiptID,
		InvoiceID:     arg.InvoiceID,
		InvoiceAmount: arg.InvoiceAmount,
		Payment:       arg.Payment,
		TdsDeduction:  arg.TdsDeduction,
		WaivedOff:     arg.WaivedOff,
	}
	f.allocations = append(f.allocations, ri)
	return ri, nil
}

func (f *fakeStore) GetReceiptInvoiceForUpdate(ctx context.Context, arg database.GetReceiptInvoiceParams) (database.ReceiptInvoice, error) {
	for _, ri := range f.allocations {
		if ri.ReceiptID == arg.ReceiptID && ri.InvoiceID == arg.InvoiceID {
			return ri, nil
		}
	}
	return database.ReceiptInvoice{}, pgx.ErrNoRows
}

func (f *fakeStore) UpdateReceiptInvoice(ctx context.Context, arg database.UpdateReceiptInvoiceParams) (database.ReceiptInvoice, error) {
	for i, ri := range f.allocations {
		if ri.ID == arg.ID {
			ri.InvoiceAmount = arg.InvoiceAmount
			ri.Payment = arg.Payment
			ri.TdsDeduction = arg.TdsDeduction
			ri.WaivedOff = arg.WaivedOff
			f.allocations[i] = ri
			return ri, nil
		}
	}
	return database.ReceiptInvoice{}, pgx.ErrNoRows
}

func (f *fakeStore) ListReceiptInvoicesByReceipt(ctx context.Context, receiptID uuid.UUID) ([]database.ReceiptInvoice, error) {
	out := []database.ReceiptInvoice{}
	for _, ri := range f.allocations {
		if ri.ReceiptID == receiptID {
			out = append(out, ri)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteReceiptInvoicesByReceipt(ctx context.Context, receiptID uuid.UUID) error {
	kept := f.allocations[:0:0]
	for _, ri := range f.allocations {
		if ri.ReceiptID != receiptID {
			kept = append(kept, ri)
		}
	}
	f.allocations = kept
	return nil
}

func (f *fakeStore) GetNextInvoiceNumber(ctx context.Context) (int32, error) {
	return f.nextInvoice, nil
}

func (f *fakeStore) CreateInvoice(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error) {
	if len(f.createInvoiceErrs) > 0 {
		err := f.createInvoiceErrs[0]
		f.createInvoiceErrs = f.createInvoiceErrs[1:]
		if err != nil {
			return database.Invoice{}, err
		}
	}
	inv := database.Invoice{
		ID:            uuid.New(),
		CustomerID:    arg.CustomerID,
		InvoiceNumber: arg.InvoiceNumber,
		InvoiceDate:   arg.InvoiceDate,
		DueDate:       arg.DueDate,
		Total:         arg.Total,
		Discount:      arg.Discount,
		TaxAmount:     arg.TaxAmount,
		NetAmount:     arg.NetAmount,
		PaidAmount:    makeNumeric("0"),
		UnpaidAmount:  arg.NetAmount,
		PaymentStatus: "UNPAID",
		Notes:         arg.Notes,
		IsActive:      true,
		CreatedBy:     arg.CreatedBy,
		UpdatedBy:     arg.CreatedBy,
	}
	f.invoices[inv.ID] = inv
	f.nextInvoice++
	return inv, nil
}

func (f *fakeStore) CreateInvoiceItem(ctx context.Context, arg database.CreateInvoiceItemParams) (database.InvoiceItem, error) {
	it := database.InvoiceItem{
		ID:          uuid.New(),
		InvoiceID:   arg.InvoiceID,
		Description: arg.Description,
		Quantity:    arg.Quantity,
		Rate:        arg.Rate,
		Amount:      arg.Amount,
		SortOrder:   arg.SortOrder,
	}
	f.items[arg.InvoiceID] = append(f.items[arg.InvoiceID], it)
	return it, nil
}

func (f *fakeStore) UpdateInvoice(ctx context.Context, arg database.UpdateInvoiceParams) (database.Invoice, error) {
	inv, ok := f.invoices[arg.ID]
	if !ok || !inv.IsActive {
		return database.Invoice{}, pgx.ErrNoRows
	}
	inv.InvoiceDate = arg.InvoiceDate
	inv.DueDate = arg.DueDate
	inv.Total = arg.Total
	inv.Discount = arg.Discount
	inv.TaxAmount = arg.TaxAmount
	inv.NetAmount = arg.NetAmount
	inv.UnpaidAmount = arg.UnpaidAmount
	inv.PaymentStatus = arg.PaymentStatus
	inv.Notes = arg.Notes
	inv.UpdatedBy = arg.UpdatedBy
	f.invoices[arg.ID] = inv
	return inv, nil
}

func (f *fakeStore) DeleteInvoiceItems(ctx context.Context, invoiceID uuid.UUID) error {
	delete(f.items, invoiceID)
	return nil
}

func (f *fakeStore) SoftDeleteInvoice(ctx context.Context, arg database.SoftDeleteInvoiceParams) (uuid.UUID, error) {
	inv, ok := f.invoices[arg.ID]
	if !ok || !inv.IsActive {
		return uuid.Nil, pgx.ErrNoRows
	}
	inv.IsActive = false
	f.invoices[arg.ID] = inv
	return arg.ID, nil
}

func (f *fakeStore) ListInvoiceAllocationTotals(ctx context.Context) ([]database.InvoiceAllocationTotal, error) {
	var out []database.InvoiceAllocationTotal
	for _, inv := range f.invoices {
		if !inv.IsActive {
			continue
		}
		sum, _ := f.SumPaymentsByInvoice(ctx, inv.ID)
		out = append(out, database.InvoiceAllocationTotal{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			NetAmount:     inv.NetAmount,
			PaidAmount:    inv.PaidAmount,
			UnpaidAmount:  inv.UnpaidAmount,
			Allocated:     sum,
		})
	}
	return out, nil
}

func (f *fakeStore) SumPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) (pgtype.Numeric, error) {
	total := decimal.Zero
	for _, ri := range f.allocations {
		if ri.InvoiceID == invoiceID {
			total = total.Add(numericToDecimal(ri.Payment))
		}
	}
	return decimalToNumeric(total), nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(customerID uuid.UUID, eventType string, data any) {
	p.events = append(p.events, eventType)
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	d := numericToDecimal(n)
	exp, _ := decimal.NewFromString(expected)
	return d.Equal(exp)
}

func (f *fakeStore) addCustomer() uuid.UUID {
	id := uuid.New()
	f.customers[id] = database.Customer{ID: id, Name: "Acme Traders", IsActive: true}
	return id
}

func (f *fakeStore) addInvoice(customerID uuid.UUID, net, paid string) uuid.UUID {
	id := uuid.New()
	n := decimal.RequireFromString(net)
	p := decimal.RequireFromString(paid)
	f.invoices[id] = database.Invoice{
		ID:            id,
		CustomerID:    customerID,
		InvoiceNumber: fmt.Sprintf("INV-%05d", len(f.invoices)+1),
		NetAmount:     decimalToNumeric(n),
		PaidAmount:    decimalToNumeric(p),
		UnpaidAmount:  decimalToNumeric(n.Sub(p)),
		PaymentStatus: "UNPAID",
		IsActive:      true,
	}
	return id
}

func assertInvoice(t *testing.T, f *fakeStore, id uuid.UUID, paid, unpaid string) {
	t.Helper()
	inv := f.invoices[id]
	if !numericEquals(inv.PaidAmount, paid) {
		t.Errorf("paid_amount: got %s, want %s", numericToDecimal(inv.PaidAmount), paid)
	}
	if !numericEquals(inv.UnpaidAmount, unpaid) {
		t.Errorf("unpaid_amount: got %s, want %s", numericToDecimal(inv.UnpaidAmount), unpaid)
	}
}

func newTestReceiptService(store *fakeStore) (*ReceiptService, *mockTxBeginner, *recordingPublisher) {
	pool := &mockTxBeginner{store: store}
	pub := &recordingPublisher{}
	newStore := func(db database.DBTX) ReceiptStore { return store }
	return NewReceiptService(pool, newStore, pub), pool, pub
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}
