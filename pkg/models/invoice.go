package models

import "github.com/shopspring/decimal"

// InvoiceType distinguishes invoices from credit notes within an export
type InvoiceType string

const (
	InvoiceTypeInvoice    InvoiceType = "invoice"
	InvoiceTypeCreditNote InvoiceType = "credit_note"
)

// TaxType classifies how tax on an invoice is reported
type TaxType string

const (
	TaxTypeNormal        TaxType = "normal"
	TaxTypeMOSS          TaxType = "moss"
	TaxTypeReverseCharge TaxType = "reverse_charge"
	TaxTypeECServices    TaxType = "ec_services"
	TaxTypeNone          TaxType = "none"
)

type Invoice struct {
	// Core identifiers
	ID     string      `json:"id"`     // Identifier in the source system
	Number string      `json:"number"` // Human-readable invoice number
	Type   InvoiceType `json:"type"`   // "invoice" or "credit_note"

	// Tax classification
	CountryCode string   `json:"country"`  // ISO country code of the customer
	Rate        *float64 `json:"tax_rate"` // Nominal tax rate in percent (nil when no tax applies)
	TaxType     TaxType  `json:"tax_type"` // Defaults to "normal"

	Lines []*InvoiceLine `json:"lines"`
}

// InvoiceLine is a single revenue line of an invoice
type InvoiceLine struct {
	AccountCode string          `json:"account_code"`
	Amount      decimal.Decimal `json:"amount"`
	Tax         decimal.Decimal `json:"tax"`
}

// AddLine appends a line to the invoice and returns it
func (i *Invoice) AddLine(accountCode string, amount, tax decimal.Decimal) *InvoiceLine {
	line := &InvoiceLine{
		AccountCode: accountCode,
		Amount:      amount,
		Tax:         tax,
	}
	i.Lines = append(i.Lines, line)
	return line
}

// IsCreditNote reports whether the invoice is a credit note
func (i *Invoice) IsCreditNote() bool {
	return i.Type == InvoiceTypeCreditNote
}

// Country returns the invoice country as a grouping value
func (i *Invoice) Country() Country {
	return Country{Code: i.CountryCode}
}

// TaxRate returns the invoice tax rate as a grouping value
func (i *Invoice) TaxRate() TaxRate {
	taxType := i.TaxType
	if taxType == "" {
		taxType = TaxTypeNormal
	}
	return NewTaxRate(i.Rate, taxType)
}

// SetRate sets the nominal tax rate in percent
func (i *Invoice) SetRate(rate float64) {
	i.Rate = &rate
}
