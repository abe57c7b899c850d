package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Report tax types understood by the ledger
const (
	ReportTypeOutput     = "OUTPUT"
	ReportTypeMOSSSales  = "MOSSSALES"
	ReportTypeECServices = "ECOUTPUTSERVICES"
)

// TaxRate is a (rate, type) pair. It is a plain value so that two invoices
// with the same rate and type group together.
type TaxRate struct {
	Rate float64
	Type TaxType
}

// NewTaxRate builds a TaxRate, treating a missing rate as zero
func NewTaxRate(rate *float64, taxType TaxType) TaxRate {
	tr := TaxRate{Type: taxType}
	if rate != nil {
		tr.Rate = *rate
	}
	return tr
}

// Decimal returns the rate in its canonical decimal form
func (t TaxRate) Decimal() decimal.Decimal {
	return decimal.NewFromFloat(t.Rate)
}

// Percentage formats the rate the way it appears in names and descriptions,
// always with at least one fractional digit ("20.0", "7.5").
func (t TaxRate) Percentage() string {
	s := strconv.FormatFloat(t.Rate, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// XeroName returns the display name used when the tax rate has to be created
// in the ledger for the given country.
func (t TaxRate) XeroName(country Country) string {
	switch t.Type {
	case TaxTypeMOSS:
		return fmt.Sprintf("MOSS %s %s%%", country.Name(), t.Percentage())
	case TaxTypeReverseCharge:
		return fmt.Sprintf("Reverse Charge for %s (%s%%)", country.Code, t.Percentage())
	default:
		return fmt.Sprintf("Tax for %s (%s%%)", country.Code, t.Percentage())
	}
}

// XeroReportType returns the ledger report classification for the tax type
func (t TaxRate) XeroReportType() string {
	switch t.Type {
	case TaxTypeMOSS:
		return ReportTypeMOSSSales
	case TaxTypeECServices:
		return ReportTypeECServices
	default:
		return ReportTypeOutput
	}
}

func (t TaxRate) String() string {
	return fmt.Sprintf("%s%% %s", t.Percentage(), t.Type)
}
