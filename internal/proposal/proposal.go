// Package proposal groups the raw records of an export into the documents
// that have to exist in the ledger.
package proposal

import (
	"fmt"

	"github.com/shopspring/decimal"

	"xeroexport/pkg/models"
)

// LineKey identifies one invoice or credit note line in the ledger
type LineKey struct {
	AccountCode string
	Country     models.Country
	TaxRate     models.TaxRate
}

// LineTotal is the sum of all export lines sharing a LineKey
type LineTotal struct {
	LineKey
	Amount decimal.Decimal
	Tax    decimal.Decimal
}

// BankTotal is the sum of payments or refunds on one bank account
type BankTotal struct {
	BankAccount string
	Amount      decimal.Decimal
	Fees        decimal.Decimal
}

// FeeKey identifies one fee transaction in the ledger
type FeeKey struct {
	BankAccount string
	Category    string
}

// FeeTotal is the sum of standalone fees sharing a FeeKey
type FeeTotal struct {
	FeeKey
	Amount decimal.Decimal
}

// Proposal computes groupings from an export on every call. Groups are returned
// in the order their key was first seen; totals keep full precision.
type Proposal struct {
	export *models.Export
}

// New returns a proposal over the given export
func New(export *models.Export) *Proposal {
	return &Proposal{export: export}
}

// InvoiceLines groups the lines of every invoice
func (p *Proposal) InvoiceLines() []LineTotal {
	return p.lines(false)
}

// CreditNoteLines groups the lines of every credit note
func (p *Proposal) CreditNoteLines() []LineTotal {
	return p.lines(true)
}

func (p *Proposal) lines(creditNotes bool) []LineTotal {
	var totals []LineTotal
	index := make(map[LineKey]int)

	for _, invoice := range p.export.Invoices {
		if invoice.IsCreditNote() != creditNotes {
			continue
		}
		country := invoice.Country()
		taxRate := invoice.TaxRate()

		for _, line := range invoice.Lines {
			key := LineKey{AccountCode: line.AccountCode, Country: country, TaxRate: taxRate}
			i, ok := index[key]
			if !ok {
				i = len(totals)
				index[key] = i
				totals = append(totals, LineTotal{LineKey: key})
			}
			totals[i].Amount = totals[i].Amount.Add(line.Amount)
			totals[i].Tax = totals[i].Tax.Add(line.Tax)
		}
	}
	return totals
}

// Payments groups payments by bank account
func (p *Proposal) Payments() []BankTotal {
	records := make([]models.Payment, 0, len(p.export.Payments))
	for _, payment := range p.export.Payments {
		records = append(records, *payment)
	}
	return bankTotals(records)
}

// Refunds groups refunds by bank account
func (p *Proposal) Refunds() []BankTotal {
	records := make([]models.Payment, 0, len(p.export.Refunds))
	for _, refund := range p.export.Refunds {
		records = append(records, models.Payment(*refund))
	}
	return bankTotals(records)
}

func bankTotals(records []models.Payment) []BankTotal {
	var totals []BankTotal
	index := make(map[string]int)

	for _, record := range records {
		i, ok := index[record.BankAccount]
		if !ok {
			i = len(totals)
			index[record.BankAccount] = i
			totals = append(totals, BankTotal{BankAccount: record.BankAccount})
		}
		totals[i].Amount = totals[i].Amount.Add(record.Amount)
		totals[i].Fees = totals[i].Fees.Add(record.Fees)
	}
	return totals
}

// Fees groups standalone fees by bank account and category
func (p *Proposal) Fees() []FeeTotal {
	var totals []FeeTotal
	index := make(map[FeeKey]int)

	for _, fee := range p.export.Fees {
		key := FeeKey{BankAccount: fee.BankAccount, Category: fee.Category}
		i, ok := index[key]
		if !ok {
			i = len(totals)
			index[key] = i
			totals = append(totals, FeeTotal{FeeKey: key})
		}
		totals[i].Amount = totals[i].Amount.Add(fee.Amount)
	}
	return totals
}

// LineDescription labels a grouped line, e.g. "Widgets (GB, 20.0%)"
func (p *Proposal) LineDescription(line LineTotal) string {
	return fmt.Sprintf("%s (%s, %s%%)",
		p.export.AccountName(line.AccountCode),
		line.Country.Code,
		line.TaxRate.Percentage(),
	)
}
