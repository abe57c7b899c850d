package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"xeroexport/internal/proposal"
	"xeroexport/internal/xero"
	"xeroexport/pkg/models"
)

const feesDescription = "Fees"

// CreateInvoice creates one invoice for all invoice lines in the export
func (e *Executor) CreateInvoice(ctx context.Context) error {
	if err := e.prepare(ctx); err != nil {
		return err
	}
	_, err := e.runTask(ctx, TaskCreateInvoice, e.createInvoice)
	return err
}

func (e *Executor) createInvoice(ctx context.Context) (models.Result, error) {
	lines := e.proposal.InvoiceLines()
	if len(lines) == 0 {
		e.log.Info().Msg("Not creating an invoice because there are no invoice lines")
		return models.Skipped{Reason: "There are no invoice lines"}, nil
	}

	items, err := e.lineItems(ctx, lines)
	if err != nil {
		return nil, err
	}
	contactID, err := e.resolver.Contact(ctx, e.export.InvoiceContactName)
	if err != nil {
		return nil, err
	}

	e.log.Info().Msg("Creating new invoice")
	var resp xero.InvoicesResponse
	err = e.api.Post(ctx, xero.PathInvoices, xero.Invoice{
		Type:         xero.InvoiceTypeReceivable,
		Contact:      xero.ContactRef{ContactID: contactID},
		Date:         e.export.DateString(),
		DueDate:      e.export.DateString(),
		Reference:    e.export.Reference(),
		CurrencyCode: e.export.Currency,
		Status:       xero.StatusAuthorised,
		LineItems:    items,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Invoices) == 0 || resp.Invoices[0].InvoiceID == "" {
		return nil, NewDomainError(TaskCreateInvoice, ErrEmptyResponse, "no invoice in response")
	}

	invoice := resp.Invoices[0]
	e.log.Info().Msgf("Invoice created with ID %s for %s", invoice.InvoiceID, invoice.AmountDue)
	return models.InvoiceResult{InvoiceID: invoice.InvoiceID, Amount: invoice.AmountDue}, nil
}

// CreateCreditNote creates one credit note for all credit note lines
func (e *Executor) CreateCreditNote(ctx context.Context) error {
	if err := e.prepare(ctx); err != nil {
		return err
	}
	_, err := e.runTask(ctx, TaskCreateCreditNote, e.createCreditNote)
	return err
}

func (e *Executor) createCreditNote(ctx context.Context) (models.Result, error) {
	lines := e.proposal.CreditNoteLines()
	if len(lines) == 0 {
		e.log.Info().Msg("Not creating a credit note because there are no credit note lines")
		return models.Skipped{Reason: "There are no credit note lines"}, nil
	}

	items, err := e.lineItems(ctx, lines)
	if err != nil {
		return nil, err
	}
	contactID, err := e.resolver.Contact(ctx, e.export.InvoiceContactName)
	if err != nil {
		return nil, err
	}

	e.log.Info().Msg("Creating new credit note")
	var resp xero.CreditNotesResponse
	err = e.api.Post(ctx, xero.PathCreditNotes, xero.CreditNote{
		Type:         xero.CreditNoteTypeReceivable,
		Contact:      xero.ContactRef{ContactID: contactID},
		Date:         e.export.DateString(),
		Reference:    e.export.Reference(),
		CurrencyCode: e.export.Currency,
		Status:       xero.StatusAuthorised,
		LineItems:    items,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.CreditNotes) == 0 || resp.CreditNotes[0].CreditNoteID == "" {
		return nil, NewDomainError(TaskCreateCreditNote, ErrEmptyResponse, "no credit note in response")
	}

	creditNote := resp.CreditNotes[0]
	e.log.Info().Msgf("Credit note created with ID %s for %s", creditNote.CreditNoteID, creditNote.RemainingCredit)
	return models.CreditNoteResult{CreditNoteID: creditNote.CreditNoteID, Amount: creditNote.RemainingCredit}, nil
}

// CreateInvoicePayment pays the invoice created by create_invoice in full
func (e *Executor) CreateInvoicePayment(ctx context.Context) error {
	if err := e.prepare(ctx); err != nil {
		return err
	}
	_, err := e.runTask(ctx, TaskCreateInvoicePayment, func(ctx context.Context) (models.Result, error) {
		return e.createPayment(ctx, TaskCreateInvoicePayment, TaskCreateInvoice)
	})
	return err
}

// CreateCreditNotePayment pays out the credit note created by create_credit_note
func (e *Executor) CreateCreditNotePayment(ctx context.Context) error {
	if err := e.prepare(ctx); err != nil {
		return err
	}
	_, err := e.runTask(ctx, TaskCreateCreditNotePayment, func(ctx context.Context) (models.Result, error) {
		return e.createPayment(ctx, TaskCreateCreditNotePayment, TaskCreateCreditNote)
	})
	return err
}

func (e *Executor) createPayment(ctx context.Context, name, prerequisite string) (models.Result, error) {
	previous, ok := e.state.Get(prerequisite)
	if !ok || previous.Status != models.TaskComplete {
		return nil, NewDomainError(name, ErrMissingPrerequisite, fmt.Sprintf("%s must complete first", prerequisite))
	}

	payment := xero.Payment{
		Account:   xero.AccountRef{Code: e.export.ReceivablesAccount},
		Date:      e.export.DateString(),
		Reference: e.export.Reference(),
	}

	var amount decimal.Decimal
	switch result := previous.Result.(type) {
	case models.InvoiceResult:
		amount = result.Amount
		payment.Invoice = &xero.InvoiceRef{InvoiceID: result.InvoiceID}
	case models.CreditNoteResult:
		amount = result.Amount
		payment.CreditNote = &xero.CreditNoteRef{CreditNoteID: result.CreditNoteID}
	}

	if !amount.IsPositive() {
		e.log.Info().Msg("Not adding a payment because the amount is not present or not positive")
		return models.Skipped{Reason: "The amount is not present or not positive"}, nil
	}
	payment.Amount = xero.Money(amount)

	e.log.Info().Msgf("Creating payment for %s", amount)
	var resp xero.PaymentsResponse
	if err := e.api.Put(ctx, xero.PathPayments, payment, &resp); err != nil {
		return nil, err
	}
	if len(resp.Payments) == 0 || resp.Payments[0].PaymentID == "" {
		return nil, NewDomainError(name, ErrEmptyResponse, "no payment in response")
	}

	created := resp.Payments[0]
	paid := created.Amount
	if paid.IsZero() {
		paid = amount.Round(2)
	}
	e.log.Info().Msgf("Payment created with ID %s for %s", created.PaymentID, paid)
	return models.PaymentResult{PaymentID: created.PaymentID, Amount: paid}, nil
}

// AddPayments moves aggregated payments from the receivables account to each
// provider bank account and books the provider fees.
func (e *Executor) AddPayments(ctx context.Context) error {
	if err := e.prepare(ctx); err != nil {
		return err
	}
	payments := e.proposal.Payments()
	names, err := bankTaskNames(TaskAddPayments, payments)
	if err != nil {
		return err
	}
	for i, total := range payments {
		if err := e.transferWithFees(ctx, names[i], total, e.export.ReceivablesAccount, total.BankAccount); err != nil {
			return err
		}
	}
	return nil
}

// AddRefunds moves aggregated refunds from each provider bank account back to
// the receivables account and books the provider fees.
func (e *Executor) AddRefunds(ctx context.Context) error {
	if err := e.prepare(ctx); err != nil {
		return err
	}
	refunds := e.proposal.Refunds()
	names, err := bankTaskNames(TaskAddRefunds, refunds)
	if err != nil {
		return err
	}
	for i, total := range refunds {
		if err := e.transferWithFees(ctx, names[i], total, total.BankAccount, e.export.ReceivablesAccount); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) transferWithFees(ctx context.Context, base string, total proposal.BankTotal, from, to string) error {
	amount := total.Amount.Round(2)
	fees := total.Fees.Round(2)
	if amount.IsZero() && fees.IsZero() {
		return nil
	}

	_, err := e.runTask(ctx, base+"_transfer", func(ctx context.Context) (models.Result, error) {
		return e.addBankTransfer(ctx, from, to, amount)
	})
	if err != nil {
		return err
	}

	if fees.IsZero() {
		return nil
	}
	_, err = e.runTask(ctx, base+"_fee", func(ctx context.Context) (models.Result, error) {
		return e.addFeeTransaction(ctx, total.BankAccount, feesDescription, fees)
	})
	return err
}

func (e *Executor) addBankTransfer(ctx context.Context, from, to string, amount decimal.Decimal) (models.Result, error) {
	if amount.IsZero() {
		e.log.Info().Msgf("Not transferring from %s to %s because the amount is zero", from, to)
		return models.Skipped{Reason: "The transfer amount is zero"}, nil
	}

	e.log.Info().Msgf("Transferring %s from %s to %s", amount.StringFixed(2), from, to)
	var resp xero.BankTransfersResponse
	err := e.api.Put(ctx, xero.PathBankTransfers, xero.BankTransfer{
		FromBankAccount: xero.AccountRef{Code: from},
		ToBankAccount:   xero.AccountRef{Code: to},
		Amount:          xero.Money(amount),
		Date:            e.export.DateString(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.BankTransfers) == 0 || resp.BankTransfers[0].BankTransferID == "" {
		return nil, NewDomainError("add_bank_transfer", ErrEmptyResponse, "no bank transfer in response")
	}

	id := resp.BankTransfers[0].BankTransferID
	e.log.Info().Msgf("Transfer created with ID %s", id)
	return models.TransferResult{TransferID: id, Amount: amount}, nil
}

// AddFees books one bank transaction per bank account and fee category
func (e *Executor) AddFees(ctx context.Context) error {
	if err := e.prepare(ctx); err != nil {
		return err
	}
	fees := e.proposal.Fees()
	keys := make([][]string, len(fees))
	for i, total := range fees {
		keys[i] = []string{total.BankAccount, total.Category}
	}
	names, err := groupTaskNames(TaskAddFees, keys)
	if err != nil {
		return err
	}

	for i, total := range fees {
		amount := total.Amount.Round(2)
		if amount.IsZero() {
			continue
		}

		_, err := e.runTask(ctx, names[i], func(ctx context.Context) (models.Result, error) {
			return e.addFeeTransaction(ctx, total.BankAccount, total.Category, amount)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// addFeeTransaction books a positive amount as money spent and a negative one
// as money received.
func (e *Executor) addFeeTransaction(ctx context.Context, bankAccount, description string, amount decimal.Decimal) (models.Result, error) {
	txType := xero.BankTransactionSpend
	if amount.IsNegative() {
		txType = xero.BankTransactionReceive
	}

	contactID, err := e.resolver.Contact(ctx, e.export.PaymentProvider(bankAccount))
	if err != nil {
		return nil, err
	}

	e.log.Info().Msgf("Creating fee transaction for %s from %s (%s)", amount.StringFixed(2), bankAccount, description)
	var resp xero.BankTransactionsResponse
	err = e.api.Post(ctx, xero.PathBankTransactions, xero.BankTransaction{
		Type:        txType,
		Contact:     xero.ContactRef{ContactID: contactID},
		Date:        e.export.DateString(),
		BankAccount: xero.AccountRef{Code: bankAccount},
		Reference:   e.export.Reference(),
		LineItems: []xero.BankLineItem{
			{
				Description: description,
				UnitAmount:  xero.Money(amount.Abs()),
				AccountCode: e.export.FeeAccount(bankAccount),
			},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.BankTransactions) == 0 || resp.BankTransactions[0].BankTransactionID == "" {
		return nil, NewDomainError("add_fee_transaction", ErrEmptyResponse, "no bank transaction in response")
	}

	id := resp.BankTransactions[0].BankTransactionID
	e.log.Info().Msgf("Fee transaction created with ID %s", id)
	return models.TransactionResult{TransactionID: id, Amount: amount}, nil
}

// lineItems resolves the tax rate of every grouped line
func (e *Executor) lineItems(ctx context.Context, lines []proposal.LineTotal) ([]xero.InvoiceLineItem, error) {
	items := make([]xero.InvoiceLineItem, 0, len(lines))
	for _, line := range lines {
		taxType, err := e.resolver.TaxRate(ctx, line.Country, line.TaxRate)
		if err != nil {
			return nil, err
		}
		items = append(items, xero.InvoiceLineItem{
			Description: e.proposal.LineDescription(line),
			Quantity:    1,
			AccountCode: line.AccountCode,
			TaxAmount:   xero.Money(line.Tax),
			LineAmount:  xero.Money(line.Amount),
			TaxType:     taxType,
		})
	}
	return items, nil
}

func bankTaskNames(prefix string, totals []proposal.BankTotal) ([]string, error) {
	keys := make([][]string, len(totals))
	for i, total := range totals {
		keys[i] = []string{total.BankAccount}
	}
	return groupTaskNames(prefix, keys)
}

// groupTaskNames names the task of every group key, e.g. "add_fees_010_bank_fees".
// When two keys slug alike, or a key part slugs to nothing, the name also
// carries a short hash of the raw key so every group keeps a task of its own.
func groupTaskNames(prefix string, keys [][]string) ([]string, error) {
	slugs := make([]string, len(keys))
	hashed := make([]bool, len(keys))
	counts := make(map[string]int, len(keys))
	for i, key := range keys {
		var b strings.Builder
		for _, part := range key {
			slug := taskSlug(part)
			if slug == "" {
				hashed[i] = true
				continue
			}
			b.WriteString("_")
			b.WriteString(slug)
		}
		slugs[i] = b.String()
		counts[slugs[i]]++
	}

	names := make([]string, len(keys))
	seen := make(map[string]int, len(keys))
	for i, key := range keys {
		name := prefix + slugs[i]
		if hashed[i] || counts[slugs[i]] > 1 {
			name += "_" + keyHash(key)
		}
		if j, ok := seen[name]; ok {
			return nil, NewDomainError(prefix, ErrTaskNameCollision,
				fmt.Sprintf("%q and %q both map to %s", strings.Join(keys[j], "/"), strings.Join(key, "/"), name))
		}
		seen[name] = i
		names[i] = name
	}
	return names, nil
}

func keyHash(key []string) string {
	sum := sha256.Sum256([]byte(strings.Join(key, "\x00")))
	return hex.EncodeToString(sum[:4])
}

// taskSlug turns a bank account or fee category into part of a task name,
// e.g. "Bank Fees" becomes "bank_fees".
func taskSlug(value string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
