package executor_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"xeroexport/internal/executor"
	"xeroexport/internal/xero"
	"xeroexport/mocks"
	"xeroexport/pkg/models"
)

// memoryStore keeps the JSON form of every write, so tests see exactly what a
// durable store would hold.
type memoryStore struct {
	writes   [][]byte
	loads    int
	writeErr error
}

func (m *memoryStore) load(_ context.Context) (*models.State, error) {
	m.loads++
	if len(m.writes) == 0 {
		return models.NewState(), nil
	}
	return m.latest(), nil
}

func (m *memoryStore) write(_ context.Context, state *models.State) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.writes = append(m.writes, raw)
	return nil
}

func (m *memoryStore) latest() *models.State {
	state := models.NewState()
	if len(m.writes) == 0 {
		return state
	}
	if err := json.Unmarshal(m.writes[len(m.writes)-1], state); err != nil {
		panic(err)
	}
	return state
}

func (m *memoryStore) seed(t *testing.T, name string, ts models.TaskState) {
	t.Helper()
	state := m.latest()
	state.Set(name, ts)
	require.NoError(t, m.write(context.Background(), state))
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newExport() *models.Export {
	export := models.NewExport()
	export.ID = "1234"
	export.Date = time.Date(2020, 10, 2, 0, 0, 0, 0, time.UTC)
	export.Currency = "GBP"
	export.ReceivablesAccount = "020"
	export.InvoiceContactName = "Customer"
	return export
}

func newExecutor(export *models.Export, gw *mocks.MockGateway, store *memoryStore, logs *bytes.Buffer) *executor.Executor {
	log := zerolog.Nop()
	if logs != nil {
		log = zerolog.New(logs)
	}
	return executor.New(export, gw, store.load, store.write, executor.WithLogger(log))
}

func contactQuery(name string) url.Values {
	return url.Values{"where": {`Name=="` + name + `"`}}
}

func expectContact(gw *mocks.MockGateway, name, id string) {
	gw.On("Get", mock.Anything, xero.PathContacts, contactQuery(name)).
		Return(map[string]any{"Contacts": []map[string]any{{"ContactID": id, "Name": name}}}, nil)
}

func expectTaxRates(gw *mocks.MockGateway, rates ...map[string]any) {
	gw.On("Get", mock.Anything, xero.PathTaxRates, mock.Anything).
		Return(map[string]any{"TaxRates": rates}, nil)
}

func gbTaxRate() map[string]any {
	return map[string]any{
		"Name":          "Tax for GB (20.0%)",
		"TaxType":       "TAX001",
		"Status":        "ACTIVE",
		"ReportTaxType": "OUTPUT",
		"EffectiveRate": "20.0000",
	}
}

func callBody[T any](t *testing.T, gw *mocks.MockGateway, method, path string) T {
	t.Helper()
	for _, call := range gw.Calls {
		if call.Method == method && call.Arguments.String(1) == path {
			body, ok := call.Arguments.Get(2).(T)
			require.True(t, ok, "unexpected body type %T", call.Arguments.Get(2))
			return body
		}
	}
	t.Fatalf("no %s call to %s", method, path)
	var zero T
	return zero
}

func countCalls(gw *mocks.MockGateway, method, path string) int {
	n := 0
	for _, call := range gw.Calls {
		if call.Method == method && call.Arguments.String(1) == path {
			n++
		}
	}
	return n
}

func TestCreateInvoice_PostsGroupedInvoice(t *testing.T) {
	export := newExport()
	invoice := export.AddInvoice()
	invoice.CountryCode = "GB"
	invoice.SetRate(20)
	invoice.AddLine("200", d("100"), d("20"))

	gw := new(mocks.MockGateway)
	expectTaxRates(gw, gbTaxRate())
	expectContact(gw, "Customer", "contact-1")
	gw.On("Post", mock.Anything, xero.PathInvoices, mock.Anything).
		Return(map[string]any{"Invoices": []map[string]any{{"InvoiceID": "abcdef", "AmountDue": 120.0}}}, nil)

	store := &memoryStore{}
	exec := newExecutor(export, gw, store, nil)

	require.NoError(t, exec.CreateInvoice(context.Background()))
	gw.AssertExpectations(t)
	assert.Equal(t, 1, countCalls(gw, "Post", xero.PathInvoices))

	body := callBody[xero.Invoice](t, gw, "Post", xero.PathInvoices)
	assert.Equal(t, "ACCREC", body.Type)
	assert.Equal(t, "AUTHORISED", body.Status)
	assert.Equal(t, "20201002-GBP-1234", body.Reference)
	assert.Equal(t, "GBP", body.CurrencyCode)
	assert.Equal(t, "2020-10-02", body.Date)
	assert.Equal(t, "2020-10-02", body.DueDate)
	assert.Equal(t, "contact-1", body.Contact.ContactID)
	require.Len(t, body.LineItems, 1)
	assert.Equal(t, xero.InvoiceLineItem{
		Description: "200 Sales (GB, 20.0%)",
		Quantity:    1,
		AccountCode: "200",
		TaxAmount:   20.0,
		LineAmount:  100.0,
		TaxType:     "TAX001",
	}, body.LineItems[0])

	ts, ok := store.latest().Get(executor.TaskCreateInvoice)
	require.True(t, ok)
	assert.Equal(t, models.TaskComplete, ts.Status)
	assert.Nil(t, ts.Error)
	result, ok := ts.Result.(models.InvoiceResult)
	require.True(t, ok)
	assert.Equal(t, "abcdef", result.InvoiceID)
	assert.True(t, result.Amount.Equal(d("120")))
}

func TestCreateInvoice_NoLinesIsSkipped(t *testing.T) {
	gw := new(mocks.MockGateway)
	store := &memoryStore{}
	exec := newExecutor(newExport(), gw, store, nil)

	require.NoError(t, exec.CreateInvoice(context.Background()))
	require.NoError(t, exec.CreateInvoicePayment(context.Background()))
	assert.Empty(t, gw.Calls)

	state := store.latest()
	ts, _ := state.Get(executor.TaskCreateInvoice)
	assert.Equal(t, models.TaskComplete, ts.Status)
	assert.IsType(t, models.Skipped{}, ts.Result)

	ts, _ = state.Get(executor.TaskCreateInvoicePayment)
	assert.Equal(t, models.TaskComplete, ts.Status)
	assert.IsType(t, models.Skipped{}, ts.Result)
}

func TestRunTask_SkipsCompletedTask(t *testing.T) {
	export := newExport()
	invoice := export.AddInvoice()
	invoice.CountryCode = "GB"
	invoice.SetRate(20)
	invoice.AddLine("200", d("100"), d("20"))

	store := &memoryStore{}
	store.seed(t, executor.TaskCreateInvoice, models.TaskState{
		Status: models.TaskComplete,
		Result: models.InvoiceResult{InvoiceID: "abcdef", Amount: d("120")},
	})
	before := store.latest()

	var logs bytes.Buffer
	gw := new(mocks.MockGateway)
	exec := newExecutor(export, gw, store, &logs)

	require.NoError(t, exec.CreateInvoice(context.Background()))
	assert.Empty(t, gw.Calls)
	assert.Contains(t, logs.String(), "Skipping create_invoice task because it has already been completed")

	after, ok := store.latest().Get(executor.TaskCreateInvoice)
	require.True(t, ok)
	previous, _ := before.Get(executor.TaskCreateInvoice)
	assert.Equal(t, previous.Status, after.Status)
	assert.Equal(t, previous.Result.(models.InvoiceResult).InvoiceID, after.Result.(models.InvoiceResult).InvoiceID)
}

func TestCreateInvoicePayment_RequiresInvoiceTask(t *testing.T) {
	gw := new(mocks.MockGateway)
	store := &memoryStore{}
	exec := newExecutor(newExport(), gw, store, nil)

	err := exec.CreateInvoicePayment(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrMissingPrerequisite)
	assert.True(t, executor.IsDomainError(err))
	assert.Empty(t, gw.Calls)

	ts, ok := store.latest().Get(executor.TaskCreateInvoicePayment)
	require.True(t, ok)
	assert.Equal(t, models.TaskFailed, ts.Status)
	require.NotNil(t, ts.Error)
	assert.Equal(t, executor.ErrorKindDomain, ts.Error.Kind)
	assert.Contains(t, ts.Error.Message, "create_invoice must complete first")
}

func TestCreateInvoicePayment_PaysAmountDue(t *testing.T) {
	store := &memoryStore{}
	store.seed(t, executor.TaskCreateInvoice, models.TaskState{
		Status: models.TaskComplete,
		Result: models.InvoiceResult{InvoiceID: "abcdef", Amount: d("120")},
	})

	gw := new(mocks.MockGateway)
	gw.On("Put", mock.Anything, xero.PathPayments, mock.Anything).
		Return(map[string]any{"Payments": []map[string]any{{"PaymentID": "pay-1", "Amount": 120.0}}}, nil)

	exec := newExecutor(newExport(), gw, store, nil)
	require.NoError(t, exec.CreateInvoicePayment(context.Background()))

	body := callBody[xero.Payment](t, gw, "Put", xero.PathPayments)
	require.NotNil(t, body.Invoice)
	assert.Nil(t, body.CreditNote)
	assert.Equal(t, "abcdef", body.Invoice.InvoiceID)
	assert.Equal(t, "020", body.Account.Code)
	assert.Equal(t, 120.0, body.Amount)
	assert.Equal(t, "2020-10-02", body.Date)
	assert.Equal(t, "20201002-GBP-1234", body.Reference)

	ts, _ := store.latest().Get(executor.TaskCreateInvoicePayment)
	assert.Equal(t, models.TaskComplete, ts.Status)
	result := ts.Result.(models.PaymentResult)
	assert.Equal(t, "pay-1", result.PaymentID)
	assert.True(t, result.Amount.Equal(d("120")))
}

func TestCreateCreditNotePayment_SkipsNonPositiveAmount(t *testing.T) {
	store := &memoryStore{}
	store.seed(t, executor.TaskCreateCreditNote, models.TaskState{
		Status: models.TaskComplete,
		Result: models.CreditNoteResult{CreditNoteID: "cn-1", Amount: decimal.Zero},
	})

	gw := new(mocks.MockGateway)
	exec := newExecutor(newExport(), gw, store, nil)

	require.NoError(t, exec.CreateCreditNotePayment(context.Background()))
	assert.Empty(t, gw.Calls)

	ts, _ := store.latest().Get(executor.TaskCreateCreditNotePayment)
	assert.Equal(t, models.TaskComplete, ts.Status)
	assert.Equal(t, models.Skipped{Reason: "The amount is not present or not positive"}, ts.Result)
}

func TestCreateCreditNote_PostsCreditNoteAndPays(t *testing.T) {
	export := newExport()
	credit := export.AddCreditNote()
	credit.CountryCode = "GB"
	credit.SetRate(20)
	credit.AddLine("200", d("50"), d("10"))

	gw := new(mocks.MockGateway)
	expectTaxRates(gw, gbTaxRate())
	expectContact(gw, "Customer", "contact-1")
	gw.On("Post", mock.Anything, xero.PathCreditNotes, mock.Anything).
		Return(map[string]any{"CreditNotes": []map[string]any{{"CreditNoteID": "cn-1", "RemainingCredit": 60.0}}}, nil)
	gw.On("Put", mock.Anything, xero.PathPayments, mock.Anything).
		Return(map[string]any{"Payments": []map[string]any{{"PaymentID": "pay-2", "Amount": 60.0}}}, nil)

	store := &memoryStore{}
	exec := newExecutor(export, gw, store, nil)

	require.NoError(t, exec.CreateCreditNote(context.Background()))
	require.NoError(t, exec.CreateCreditNotePayment(context.Background()))

	note := callBody[xero.CreditNote](t, gw, "Post", xero.PathCreditNotes)
	assert.Equal(t, "ACCRECCREDIT", note.Type)
	assert.Equal(t, "20201002-GBP-1234", note.Reference)
	require.Len(t, note.LineItems, 1)
	assert.Equal(t, 50.0, note.LineItems[0].LineAmount)

	payment := callBody[xero.Payment](t, gw, "Put", xero.PathPayments)
	require.NotNil(t, payment.CreditNote)
	assert.Nil(t, payment.Invoice)
	assert.Equal(t, "cn-1", payment.CreditNote.CreditNoteID)
	assert.Equal(t, 60.0, payment.Amount)

	ts, _ := store.latest().Get(executor.TaskCreateCreditNote)
	result, ok := ts.Result.(models.CreditNoteResult)
	require.True(t, ok)
	assert.Equal(t, "cn-1", result.CreditNoteID)
	assert.True(t, result.Amount.Equal(d("60")))
}

func TestAddPayments_NegativeFeesAreReceived(t *testing.T) {
	export := newExport()
	payment := export.AddPayment()
	payment.BankAccount = "012"
	payment.Amount = d("100")
	payment.Fees = d("-2.50")

	gw := new(mocks.MockGateway)
	gw.On("Put", mock.Anything, xero.PathBankTransfers, mock.Anything).
		Return(map[string]any{"BankTransfers": []map[string]any{{"BankTransferID": "bt-1", "Amount": 100.0}}}, nil)
	gw.On("Get", mock.Anything, xero.PathContacts, contactQuery("Generic Payment Processor")).
		Return(map[string]any{"Contacts": []map[string]any{}}, nil)
	gw.On("Post", mock.Anything, xero.PathContacts, xero.NewContact{Name: "Generic Payment Processor"}).
		Return(map[string]any{"Contacts": []map[string]any{{"ContactID": "gpp-1"}}}, nil)
	gw.On("Post", mock.Anything, xero.PathBankTransactions, mock.Anything).
		Return(map[string]any{"BankTransactions": []map[string]any{{"BankTransactionID": "tx-1"}}}, nil)

	store := &memoryStore{}
	exec := newExecutor(export, gw, store, nil)
	require.NoError(t, exec.AddPayments(context.Background()))
	gw.AssertExpectations(t)

	transfer := callBody[xero.BankTransfer](t, gw, "Put", xero.PathBankTransfers)
	assert.Equal(t, "020", transfer.FromBankAccount.Code)
	assert.Equal(t, "012", transfer.ToBankAccount.Code)
	assert.Equal(t, 100.0, transfer.Amount)

	tx := callBody[xero.BankTransaction](t, gw, "Post", xero.PathBankTransactions)
	assert.Equal(t, "RECEIVE", tx.Type)
	assert.Equal(t, "gpp-1", tx.Contact.ContactID)
	assert.Equal(t, "012", tx.BankAccount.Code)
	assert.Equal(t, "20201002-GBP-1234", tx.Reference)
	require.Len(t, tx.LineItems, 1)
	assert.Equal(t, xero.BankLineItem{Description: "Fees", UnitAmount: 2.50, AccountCode: "404"}, tx.LineItems[0])

	state := store.latest()
	assert.Equal(t, []string{"add_payments_012_transfer", "add_payments_012_fee"}, state.Names())
	ts, _ := state.Get("add_payments_012_fee")
	assert.Equal(t, models.TaskComplete, ts.Status)
	assert.Equal(t, "tx-1", ts.Result.(models.TransactionResult).TransactionID)
}

func TestAddRefunds_TransfersBackToReceivables(t *testing.T) {
	export := newExport()
	export.FeeAccounts["010"] = "405"
	export.PaymentProviders["010"] = "Stripe"

	refund := export.AddRefund()
	refund.BankAccount = "010"
	refund.Amount = d("30")
	refund.Fees = d("0.45")

	gw := new(mocks.MockGateway)
	gw.On("Put", mock.Anything, xero.PathBankTransfers, mock.Anything).
		Return(map[string]any{"BankTransfers": []map[string]any{{"BankTransferID": "bt-2"}}}, nil)
	expectContact(gw, "Stripe", "stripe-1")
	gw.On("Post", mock.Anything, xero.PathBankTransactions, mock.Anything).
		Return(map[string]any{"BankTransactions": []map[string]any{{"BankTransactionID": "tx-2"}}}, nil)

	store := &memoryStore{}
	exec := newExecutor(export, gw, store, nil)
	require.NoError(t, exec.AddRefunds(context.Background()))

	transfer := callBody[xero.BankTransfer](t, gw, "Put", xero.PathBankTransfers)
	assert.Equal(t, "010", transfer.FromBankAccount.Code)
	assert.Equal(t, "020", transfer.ToBankAccount.Code)

	tx := callBody[xero.BankTransaction](t, gw, "Post", xero.PathBankTransactions)
	assert.Equal(t, "SPEND", tx.Type)
	assert.Equal(t, "stripe-1", tx.Contact.ContactID)
	assert.Equal(t, "405", tx.LineItems[0].AccountCode)
	assert.Equal(t, 0.45, tx.LineItems[0].UnitAmount)

	assert.Equal(t, []string{"add_refunds_010_transfer", "add_refunds_010_fee"}, store.latest().Names())
}

func TestAddPayments_ZeroFeesCreateNoFeeTask(t *testing.T) {
	export := newExport()
	payment := export.AddPayment()
	payment.BankAccount = "010"
	payment.Amount = d("25")

	gw := new(mocks.MockGateway)
	gw.On("Put", mock.Anything, xero.PathBankTransfers, mock.Anything).
		Return(map[string]any{"BankTransfers": []map[string]any{{"BankTransferID": "bt-3"}}}, nil)

	store := &memoryStore{}
	exec := newExecutor(export, gw, store, nil)
	require.NoError(t, exec.AddPayments(context.Background()))

	assert.Zero(t, countCalls(gw, "Post", xero.PathBankTransactions))
	assert.Equal(t, []string{"add_payments_010_transfer"}, store.latest().Names())
}

func TestAddFees_ZeroFeeProducesNoTask(t *testing.T) {
	export := newExport()
	fee := export.AddFee()
	fee.BankAccount = "010"
	fee.Category = "Bank fees"
	fee.Amount = decimal.Zero

	gw := new(mocks.MockGateway)
	store := &memoryStore{}
	exec := newExecutor(export, gw, store, nil)

	require.NoError(t, exec.AddFees(context.Background()))
	assert.Empty(t, gw.Calls)
	assert.Zero(t, store.latest().Len())
}

func TestAddFees_OneTransactionPerCategory(t *testing.T) {
	export := newExport()
	for _, f := range []struct{ category, amount string }{
		{"Bank fees", "1.50"},
		{"Bank fees", "2.25"},
		{"Chargeback Reversals", "-15"},
	} {
		fee := export.AddFee()
		fee.BankAccount = "010"
		fee.Category = f.category
		fee.Amount = d(f.amount)
	}

	gw := new(mocks.MockGateway)
	expectContact(gw, "Generic Payment Processor", "gpp-1")
	gw.On("Post", mock.Anything, xero.PathBankTransactions, mock.Anything).
		Return(map[string]any{"BankTransactions": []map[string]any{{"BankTransactionID": "tx"}}}, nil)

	store := &memoryStore{}
	exec := newExecutor(export, gw, store, nil)
	require.NoError(t, exec.AddFees(context.Background()))

	var bodies []xero.BankTransaction
	for _, call := range gw.Calls {
		if call.Method == "Post" && call.Arguments.String(1) == xero.PathBankTransactions {
			bodies = append(bodies, call.Arguments.Get(2).(xero.BankTransaction))
		}
	}
	require.Len(t, bodies, 2)
	assert.Equal(t, "SPEND", bodies[0].Type)
	assert.Equal(t, xero.BankLineItem{Description: "Bank fees", UnitAmount: 3.75, AccountCode: "404"}, bodies[0].LineItems[0])
	assert.Equal(t, "RECEIVE", bodies[1].Type)
	assert.Equal(t, 15.0, bodies[1].LineItems[0].UnitAmount)

	assert.Equal(t, []string{"add_fees_010_bank_fees", "add_fees_010_chargeback_reversals"}, store.latest().Names())
}

func TestAddFees_CategoriesWithSameSlugKeepSeparateTasks(t *testing.T) {
	export := newExport()
	for _, category := range []string{"Bank Fees", "bank-fees", "手数料", "費用"} {
		fee := export.AddFee()
		fee.BankAccount = "010"
		fee.Category = category
		fee.Amount = d("2")
	}

	gw := new(mocks.MockGateway)
	expectContact(gw, "Generic Payment Processor", "gpp-1")
	gw.On("Post", mock.Anything, xero.PathBankTransactions, mock.Anything).
		Return(map[string]any{"BankTransactions": []map[string]any{{"BankTransactionID": "tx"}}}, nil)

	store := &memoryStore{}
	exec := newExecutor(export, gw, store, nil)
	require.NoError(t, exec.AddFees(context.Background()))

	assert.Equal(t, 4, countCalls(gw, "Post", xero.PathBankTransactions))
	assert.Equal(t, []string{
		"add_fees_010_bank_fees_1765f73e",
		"add_fees_010_bank_fees_c03c0c74",
		"add_fees_010_8a895a20",
		"add_fees_010_818bb85c",
	}, store.latest().Names())

	rerun := new(mocks.MockGateway)
	require.NoError(t, newExecutor(export, rerun, store, nil).AddFees(context.Background()))
	assert.Empty(t, rerun.Calls)
}

func TestAddPayments_BankAccountsWithSameSlugKeepSeparateTasks(t *testing.T) {
	export := newExport()
	for _, bank := range []string{"01-0", "01.0"} {
		payment := export.AddPayment()
		payment.BankAccount = bank
		payment.Amount = d("100")
	}

	gw := new(mocks.MockGateway)
	gw.On("Put", mock.Anything, xero.PathBankTransfers, mock.Anything).
		Return(map[string]any{"BankTransfers": []map[string]any{{"BankTransferID": "bt"}}}, nil)

	store := &memoryStore{}
	exec := newExecutor(export, gw, store, nil)
	require.NoError(t, exec.AddPayments(context.Background()))

	var targets []string
	for _, call := range gw.Calls {
		targets = append(targets, call.Arguments.Get(2).(xero.BankTransfer).ToBankAccount.Code)
	}
	assert.Equal(t, []string{"01-0", "01.0"}, targets)
	assert.Equal(t, []string{
		"add_payments_01_0_b982d7c4_transfer",
		"add_payments_01_0_585a3b52_transfer",
	}, store.latest().Names())
}

func TestAddFees_UnresolvableNameCollisionFailsBeforeAnyCall(t *testing.T) {
	export := newExport()
	for _, category := range []string{"Bank Fees", "bank-fees", "bank_fees_1765f73e"} {
		fee := export.AddFee()
		fee.BankAccount = "010"
		fee.Category = category
		fee.Amount = d("2")
	}

	gw := new(mocks.MockGateway)
	store := &memoryStore{}
	err := newExecutor(export, gw, store, nil).AddFees(context.Background())

	require.ErrorIs(t, err, executor.ErrTaskNameCollision)
	assert.Equal(t, executor.ErrorKindDomain, executor.ErrorKind(err))
	assert.Empty(t, gw.Calls)
	assert.Zero(t, store.latest().Len())
}

func TestRunTask_FailureIsRecordedAndRetried(t *testing.T) {
	export := newExport()
	invoice := export.AddInvoice()
	invoice.CountryCode = "GB"
	invoice.SetRate(20)
	invoice.AddLine("200", d("100"), d("20"))

	apiErr := &xero.APIError{Status: 400, Message: "ValidationException: A validation exception occurred"}

	gw := new(mocks.MockGateway)
	expectTaxRates(gw, gbTaxRate())
	expectContact(gw, "Customer", "contact-1")
	gw.On("Post", mock.Anything, xero.PathInvoices, mock.Anything).Return(nil, apiErr).Once()

	store := &memoryStore{}
	err := newExecutor(export, gw, store, nil).ExecuteAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apiErr))

	state := store.latest()
	assert.Equal(t, []string{executor.TaskCreateInvoice}, state.Names())
	ts, _ := state.Get(executor.TaskCreateInvoice)
	assert.Equal(t, models.TaskFailed, ts.Status)
	assert.Equal(t, &models.TaskError{Kind: executor.ErrorKindAPI, Message: apiErr.Error()}, ts.Error)

	gw.On("Post", mock.Anything, xero.PathInvoices, mock.Anything).
		Return(map[string]any{"Invoices": []map[string]any{{"InvoiceID": "abcdef", "AmountDue": 120.0}}}, nil).Once()

	require.NoError(t, newExecutor(export, gw, store, nil).CreateInvoice(context.Background()))
	ts, _ = store.latest().Get(executor.TaskCreateInvoice)
	assert.Equal(t, models.TaskComplete, ts.Status)
	assert.Nil(t, ts.Error)
	assert.Equal(t, 2, countCalls(gw, "Post", xero.PathInvoices))
}

func TestRunTask_ConnectionErrorKind(t *testing.T) {
	export := newExport()
	payment := export.AddPayment()
	payment.BankAccount = "010"
	payment.Amount = d("10")

	connErr := &xero.ConnectionError{Op: "PUT BankTransfers", Err: xero.ErrRateLimitExceeded}
	gw := new(mocks.MockGateway)
	gw.On("Put", mock.Anything, xero.PathBankTransfers, mock.Anything).Return(nil, connErr)

	store := &memoryStore{}
	err := newExecutor(export, gw, store, nil).AddPayments(context.Background())
	assert.ErrorIs(t, err, xero.ErrRateLimitExceeded)

	ts, _ := store.latest().Get("add_payments_010_transfer")
	assert.Equal(t, models.TaskFailed, ts.Status)
	assert.Equal(t, executor.ErrorKindConnection, ts.Error.Kind)
}

func TestRunTask_MarksRunningBeforeRemoteCall(t *testing.T) {
	export := newExport()
	payment := export.AddPayment()
	payment.BankAccount = "010"
	payment.Amount = d("10")

	store := &memoryStore{}
	gw := new(mocks.MockGateway)
	gw.On("Put", mock.Anything, xero.PathBankTransfers, mock.Anything).
		Run(func(mock.Arguments) {
			ts, ok := store.latest().Get("add_payments_010_transfer")
			assert.True(t, ok)
			assert.Equal(t, models.TaskRunning, ts.Status)
		}).
		Return(map[string]any{"BankTransfers": []map[string]any{{"BankTransferID": "bt-1"}}}, nil)

	require.NoError(t, newExecutor(export, gw, store, nil).AddPayments(context.Background()))
	ts, _ := store.latest().Get("add_payments_010_transfer")
	assert.Equal(t, models.TaskComplete, ts.Status)
}

func TestRunTask_PersistFailureIsReturned(t *testing.T) {
	store := &memoryStore{writeErr: errors.New("disk full")}
	gw := new(mocks.MockGateway)

	err := newExecutor(newExport(), gw, store, nil).CreateInvoice(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, gw.Calls)
}

func TestExecuteAll_IncompleteExportMakesNoCalls(t *testing.T) {
	export := newExport()
	export.Currency = ""

	gw := new(mocks.MockGateway)
	store := &memoryStore{}
	err := newExecutor(export, gw, store, nil).ExecuteAll(context.Background())

	assert.ErrorIs(t, err, executor.ErrIncompleteExport)
	assert.Empty(t, gw.Calls)
	assert.Zero(t, store.loads)
	assert.Empty(t, store.writes)
}

func TestRunTask_UnknownName(t *testing.T) {
	exec := newExecutor(newExport(), new(mocks.MockGateway), &memoryStore{}, nil)
	assert.ErrorIs(t, exec.RunTask(context.Background(), "create_everything"), executor.ErrUnknownTask)
}

func fullExport() *models.Export {
	export := newExport()

	invoice := export.AddInvoice()
	invoice.CountryCode = "GB"
	invoice.SetRate(20)
	invoice.AddLine("200", d("100"), d("20"))

	credit := export.AddCreditNote()
	credit.CountryCode = "GB"
	credit.SetRate(20)
	credit.AddLine("200", d("10"), d("2"))

	payment := export.AddPayment()
	payment.BankAccount = "010"
	payment.Amount = d("120")
	payment.Fees = d("3.60")

	refund := export.AddRefund()
	refund.BankAccount = "010"
	refund.Amount = d("12")

	fee := export.AddFee()
	fee.BankAccount = "010"
	fee.Category = "Bank fees"
	fee.Amount = d("1")

	return export
}

func expectFullRun(gw *mocks.MockGateway) {
	expectTaxRates(gw, gbTaxRate())
	expectContact(gw, "Customer", "contact-1")
	expectContact(gw, "Generic Payment Processor", "gpp-1")
	gw.On("Post", mock.Anything, xero.PathInvoices, mock.Anything).
		Return(map[string]any{"Invoices": []map[string]any{{"InvoiceID": "inv-1", "AmountDue": 120.0}}}, nil)
	gw.On("Post", mock.Anything, xero.PathCreditNotes, mock.Anything).
		Return(map[string]any{"CreditNotes": []map[string]any{{"CreditNoteID": "cn-1", "RemainingCredit": 12.0}}}, nil)
	gw.On("Put", mock.Anything, xero.PathPayments, mock.Anything).
		Return(map[string]any{"Payments": []map[string]any{{"PaymentID": "pay-1"}}}, nil)
	gw.On("Put", mock.Anything, xero.PathBankTransfers, mock.Anything).
		Return(map[string]any{"BankTransfers": []map[string]any{{"BankTransferID": "bt-1"}}}, nil)
	gw.On("Post", mock.Anything, xero.PathBankTransactions, mock.Anything).
		Return(map[string]any{"BankTransactions": []map[string]any{{"BankTransactionID": "tx-1"}}}, nil)
}

func TestExecuteAll_RunsTasksInOrderAndResumesIdempotently(t *testing.T) {
	export := fullExport()

	gw := new(mocks.MockGateway)
	expectFullRun(gw)

	store := &memoryStore{}
	require.NoError(t, newExecutor(export, gw, store, nil).ExecuteAll(context.Background()))

	state := store.latest()
	assert.Equal(t, []string{
		"create_invoice",
		"create_invoice_payment",
		"create_credit_note",
		"create_credit_note_payment",
		"add_payments_010_transfer",
		"add_payments_010_fee",
		"add_refunds_010_transfer",
		"add_fees_010_bank_fees",
	}, state.Names())
	for _, name := range state.Names() {
		ts, _ := state.Get(name)
		assert.Equal(t, models.TaskComplete, ts.Status, name)
	}
	assert.Equal(t, 1, countCalls(gw, "Get", xero.PathTaxRates))
	assert.Equal(t, 2, countCalls(gw, "Put", xero.PathPayments))

	writes := len(store.writes)

	rerun := new(mocks.MockGateway)
	var logs bytes.Buffer
	require.NoError(t, newExecutor(export, rerun, store, &logs).ExecuteAll(context.Background()))
	assert.Empty(t, rerun.Calls)
	assert.Equal(t, writes, len(store.writes))
	assert.Equal(t, state.Names(), store.latest().Names())
	assert.Contains(t, logs.String(), "Skipping add_fees_010_bank_fees task because it has already been completed")
}

func TestExecuteAll_ResumesOnlyTheFailedTail(t *testing.T) {
	export := fullExport()

	gw := new(mocks.MockGateway)
	expectTaxRates(gw, gbTaxRate())
	expectContact(gw, "Customer", "contact-1")
	gw.On("Post", mock.Anything, xero.PathInvoices, mock.Anything).
		Return(map[string]any{"Invoices": []map[string]any{{"InvoiceID": "inv-1", "AmountDue": 120.0}}}, nil)
	gw.On("Put", mock.Anything, xero.PathPayments, mock.Anything).
		Return(nil, &xero.ConnectionError{Op: "PUT Payments", Err: errors.New("connection reset")})

	store := &memoryStore{}
	require.Error(t, newExecutor(export, gw, store, nil).ExecuteAll(context.Background()))
	assert.Equal(t, []string{"create_invoice", "create_invoice_payment"}, store.latest().Names())

	retry := new(mocks.MockGateway)
	expectFullRun(retry)
	require.NoError(t, newExecutor(export, retry, store, nil).ExecuteAll(context.Background()))

	assert.Zero(t, countCalls(retry, "Post", xero.PathInvoices))
	assert.Equal(t, 2, countCalls(retry, "Put", xero.PathPayments))

	payment := callBody[xero.Payment](t, retry, "Put", xero.PathPayments)
	require.NotNil(t, payment.Invoice)
	assert.Equal(t, "inv-1", payment.Invoice.InvoiceID)
}

func TestState_AssignsRunID(t *testing.T) {
	exec := newExecutor(newExport(), new(mocks.MockGateway), &memoryStore{}, nil)
	state, err := exec.State(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, state.RunID)
	assert.Zero(t, state.Len())
}

func TestTaskNames_Order(t *testing.T) {
	assert.Equal(t, []string{
		"create_invoice",
		"create_invoice_payment",
		"create_credit_note",
		"create_credit_note_payment",
		"add_payments",
		"add_refunds",
		"add_fees",
	}, executor.TaskNames())
}
