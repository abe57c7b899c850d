// Package report renders a proposal for review before anything is written to
// the ledger.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"xeroexport/internal/proposal"
	"xeroexport/pkg/models"
)

// Sections, in the order they are executed
const (
	SectionInvoice    = "Invoice"
	SectionCreditNote = "Credit note"
	SectionPayment    = "Payment"
	SectionRefund     = "Refund"
	SectionFee        = "Fee"
)

// Headers of the tabular proposal, shared by the workbook and the sheet
var Headers = []string{"Export", "Section", "Account", "Description", "Country", "Tax rate", "Amount", "Tax / Fees"}

// Row is one grouped document line of the proposal
type Row struct {
	Section     string
	Account     string
	Description string
	Country     string
	TaxRate     string
	Amount      decimal.Decimal
	Secondary   decimal.Decimal
}

// Rows flattens a proposal into rows, one per grouped total
func Rows(export *models.Export) []Row {
	p := proposal.New(export)
	var rows []Row

	lineRows := func(section string, lines []proposal.LineTotal) {
		for _, line := range lines {
			rows = append(rows, Row{
				Section:     section,
				Account:     line.AccountCode,
				Description: p.LineDescription(line),
				Country:     line.Country.Code,
				TaxRate:     line.TaxRate.Percentage() + "%",
				Amount:      line.Amount,
				Secondary:   line.Tax,
			})
		}
	}
	bankRows := func(section string, totals []proposal.BankTotal) {
		for _, total := range totals {
			rows = append(rows, Row{
				Section:     section,
				Account:     total.BankAccount,
				Description: export.PaymentProvider(total.BankAccount),
				Amount:      total.Amount,
				Secondary:   total.Fees,
			})
		}
	}

	lineRows(SectionInvoice, p.InvoiceLines())
	lineRows(SectionCreditNote, p.CreditNoteLines())
	bankRows(SectionPayment, p.Payments())
	bankRows(SectionRefund, p.Refunds())

	for _, fee := range p.Fees() {
		rows = append(rows, Row{
			Section:     SectionFee,
			Account:     fee.BankAccount,
			Description: fee.Category,
			Amount:      fee.Amount,
		})
	}

	return rows
}

// Values returns the row as cells in Headers order. Amounts are rounded to
// cents for display only.
func (r Row) Values(reference string) []interface{} {
	return []interface{}{
		reference,
		r.Section,
		r.Account,
		r.Description,
		r.Country,
		r.TaxRate,
		r.Amount.Round(2).InexactFloat64(),
		r.Secondary.Round(2).InexactFloat64(),
	}
}

// WriteText prints the proposal as a plain text report
func WriteText(w io.Writer, export *models.Export, rows []Row) error {
	var b strings.Builder

	b.WriteString(strings.Repeat("=", 80) + "\n")
	b.WriteString("                         XERO EXPORT PROPOSAL\n")
	b.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&b, "Export: %s\n", export.Reference())
	fmt.Fprintf(&b, "Date: %s\n", export.DateString())
	fmt.Fprintf(&b, "Contact: %s\n", export.InvoiceContactName)

	section := ""
	for _, row := range rows {
		if row.Section != section {
			section = row.Section
			b.WriteString("\n" + section + "\n")
			b.WriteString(strings.Repeat("-", 80) + "\n")
		}
		fmt.Fprintf(&b, "  %-44s %14s %14s\n",
			label(row),
			row.Amount.StringFixed(2),
			row.Secondary.StringFixed(2),
		)
	}
	if len(rows) == 0 {
		b.WriteString("\nNothing to export.\n")
	}
	b.WriteString(strings.Repeat("=", 80) + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func label(row Row) string {
	switch row.Section {
	case SectionInvoice, SectionCreditNote:
		return row.Description
	default:
		return fmt.Sprintf("%s (%s)", row.Description, row.Account)
	}
}
