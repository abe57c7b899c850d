package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// DefaultFeeAccountCode is the expense account used for provider fees
	// when a bank account has no configured override.
	DefaultFeeAccountCode = "404"

	// DefaultPaymentProviderName is the contact used for fee transactions
	// when a bank account has no configured provider name.
	DefaultPaymentProviderName = "Generic Payment Processor"

	dateLayout = "2006-01-02"
)

// Export is one period's worth of financial documents to be recreated in the
// ledger. The date and currency are part of every document reference.
type Export struct {
	ID                 string    `json:"id"`
	Date               time.Time `json:"-"`
	Currency           string    `json:"currency"`
	InvoiceContactName string    `json:"invoice_contact_name"`
	ReceivablesAccount string    `json:"receivables_account"`

	// Bank account code -> expense account code for provider fees
	FeeAccounts       map[string]string `json:"fee_accounts"`
	DefaultFeeAccount string            `json:"default_fee_account"`

	// Bank account code -> payment provider contact name
	PaymentProviders       map[string]string `json:"payment_providers"`
	DefaultPaymentProvider string            `json:"default_payment_provider"`

	// Account code -> label used on invoice line descriptions
	AccountNames map[string]string `json:"account_names"`

	Invoices []*Invoice `json:"invoices"`
	Payments []*Payment `json:"payments"`
	Refunds  []*Refund  `json:"refunds"`
	Fees     []*Fee     `json:"fees"`
}

// NewExport returns an empty export with the default fallbacks set
func NewExport() *Export {
	return &Export{
		FeeAccounts:            make(map[string]string),
		DefaultFeeAccount:      DefaultFeeAccountCode,
		PaymentProviders:       make(map[string]string),
		DefaultPaymentProvider: DefaultPaymentProviderName,
		AccountNames:           make(map[string]string),
	}
}

// Reference identifies the export on every remote document: YYYYMMDD-CUR-id
func (e *Export) Reference() string {
	return fmt.Sprintf("%s-%s-%s", e.Date.Format("20060102"), strings.ToUpper(e.Currency), e.ID)
}

// DateString returns the export date in the format the ledger expects
func (e *Export) DateString() string {
	return e.Date.Format(dateLayout)
}

// FeeAccount returns the fee expense account for a bank account
func (e *Export) FeeAccount(bankAccount string) string {
	if code, ok := e.FeeAccounts[bankAccount]; ok && code != "" {
		return code
	}
	if e.DefaultFeeAccount != "" {
		return e.DefaultFeeAccount
	}
	return DefaultFeeAccountCode
}

// PaymentProvider returns the contact name for fees on a bank account
func (e *Export) PaymentProvider(bankAccount string) string {
	if name, ok := e.PaymentProviders[bankAccount]; ok && name != "" {
		return name
	}
	if e.DefaultPaymentProvider != "" {
		return e.DefaultPaymentProvider
	}
	return DefaultPaymentProviderName
}

// AccountName returns the label for an account on invoice line descriptions
func (e *Export) AccountName(accountCode string) string {
	if name, ok := e.AccountNames[accountCode]; ok && name != "" {
		return name
	}
	return accountCode + " Sales"
}

// AddInvoice appends a new invoice and returns it for the caller to fill in
func (e *Export) AddInvoice() *Invoice {
	invoice := &Invoice{Type: InvoiceTypeInvoice, TaxType: TaxTypeNormal}
	e.Invoices = append(e.Invoices, invoice)
	return invoice
}

// AddCreditNote appends a new credit note and returns it
func (e *Export) AddCreditNote() *Invoice {
	creditNote := &Invoice{Type: InvoiceTypeCreditNote, TaxType: TaxTypeNormal}
	e.Invoices = append(e.Invoices, creditNote)
	return creditNote
}

// AddPayment appends a new payment and returns it
func (e *Export) AddPayment() *Payment {
	payment := &Payment{}
	e.Payments = append(e.Payments, payment)
	return payment
}

// AddRefund appends a new refund and returns it
func (e *Export) AddRefund() *Refund {
	refund := &Refund{}
	e.Refunds = append(e.Refunds, refund)
	return refund
}

// AddFee appends a new fee and returns it
func (e *Export) AddFee() *Fee {
	fee := &Fee{}
	e.Fees = append(e.Fees, fee)
	return fee
}

// Validate checks the fields every remote document depends on
func (e *Export) Validate() error {
	var errs []error
	if e.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if e.Date.IsZero() {
		errs = append(errs, errors.New("date is required"))
	}
	if strings.TrimSpace(e.Currency) == "" {
		errs = append(errs, errors.New("currency is required"))
	}
	if e.ReceivablesAccount == "" {
		errs = append(errs, errors.New("receivables account is required"))
	}
	if e.InvoiceContactName == "" {
		errs = append(errs, errors.New("invoice contact name is required"))
	}
	return errors.Join(errs...)
}

type exportDocument struct {
	*Export
	Date string `json:"date"`
}

// LoadExport decodes an export from its JSON document form
func LoadExport(r io.Reader) (*Export, error) {
	const op = "LoadExport"

	doc := exportDocument{Export: NewExport()}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: failed to decode export: %w", op, err)
	}

	if doc.Date != "" {
		date, err := time.Parse(dateLayout, doc.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid date %q (use YYYY-MM-DD): %w", op, doc.Date, err)
		}
		doc.Export.Date = date
	}

	for _, invoice := range doc.Export.Invoices {
		if invoice.Type == "" {
			invoice.Type = InvoiceTypeInvoice
		}
		if invoice.TaxType == "" {
			invoice.TaxType = TaxTypeNormal
		}
	}

	return doc.Export, nil
}
