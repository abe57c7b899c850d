package xero

import "github.com/shopspring/decimal"

// Endpoint paths relative to the API base URL
const (
	PathContacts         = "Contacts"
	PathInvoices         = "Invoices"
	PathCreditNotes      = "CreditNotes"
	PathPayments         = "Payments"
	PathBankTransfers    = "BankTransfers"
	PathBankTransactions = "BankTransactions"
	PathTaxRates         = "TaxRates"
)

// Document types and statuses
const (
	InvoiceTypeReceivable    = "ACCREC"
	CreditNoteTypeReceivable = "ACCRECCREDIT"
	StatusAuthorised         = "AUTHORISED"
	TaxRateStatusActive      = "ACTIVE"
	BankTransactionSpend     = "SPEND"
	BankTransactionReceive   = "RECEIVE"
)

// Money converts an amount to the two-decimal number sent over the wire
func Money(amount decimal.Decimal) float64 {
	return amount.Round(2).InexactFloat64()
}

// ContactRef references an existing contact
type ContactRef struct {
	ContactID string `json:"ContactID"`
}

// AccountRef references an account or bank account by code
type AccountRef struct {
	Code string `json:"Code"`
}

// InvoiceRef references an existing invoice
type InvoiceRef struct {
	InvoiceID string `json:"InvoiceID"`
}

// CreditNoteRef references an existing credit note
type CreditNoteRef struct {
	CreditNoteID string `json:"CreditNoteID"`
}

// Contact is a contact as returned by the API
type Contact struct {
	ContactID string `json:"ContactID"`
	Name      string `json:"Name"`
}

// NewContact is the request body for creating a contact
type NewContact struct {
	Name string `json:"Name"`
}

// ContactsResponse wraps contact lookups and creations
type ContactsResponse struct {
	Contacts []Contact `json:"Contacts"`
}

// InvoiceLineItem is a line on an invoice or credit note
type InvoiceLineItem struct {
	Description string  `json:"Description"`
	Quantity    float64 `json:"Quantity"`
	AccountCode string  `json:"AccountCode"`
	TaxAmount   float64 `json:"TaxAmount"`
	LineAmount  float64 `json:"LineAmount"`
	TaxType     string  `json:"TaxType"`
}

// Invoice is the request body for creating an invoice
type Invoice struct {
	Type         string            `json:"Type"`
	Contact      ContactRef        `json:"Contact"`
	Date         string            `json:"Date"`
	DueDate      string            `json:"DueDate,omitempty"`
	Reference    string            `json:"Reference"`
	CurrencyCode string            `json:"CurrencyCode"`
	Status       string            `json:"Status"`
	LineItems    []InvoiceLineItem `json:"LineItems"`
}

// InvoiceRecord is an invoice as returned by the API
type InvoiceRecord struct {
	InvoiceID string          `json:"InvoiceID"`
	AmountDue decimal.Decimal `json:"AmountDue"`
	Total     decimal.Decimal `json:"Total"`
}

// InvoicesResponse wraps invoice creations
type InvoicesResponse struct {
	Invoices []InvoiceRecord `json:"Invoices"`
}

// CreditNote is the request body for creating a credit note
type CreditNote struct {
	Type         string            `json:"Type"`
	Contact      ContactRef        `json:"Contact"`
	Date         string            `json:"Date"`
	Reference    string            `json:"Reference"`
	CurrencyCode string            `json:"CurrencyCode"`
	Status       string            `json:"Status"`
	LineItems    []InvoiceLineItem `json:"LineItems"`
}

// CreditNoteRecord is a credit note as returned by the API
type CreditNoteRecord struct {
	CreditNoteID    string          `json:"CreditNoteID"`
	RemainingCredit decimal.Decimal `json:"RemainingCredit"`
	Total           decimal.Decimal `json:"Total"`
}

// CreditNotesResponse wraps credit note creations
type CreditNotesResponse struct {
	CreditNotes []CreditNoteRecord `json:"CreditNotes"`
}

// Payment is the request body for paying an invoice or credit note
type Payment struct {
	Invoice    *InvoiceRef    `json:"Invoice,omitempty"`
	CreditNote *CreditNoteRef `json:"CreditNote,omitempty"`
	Account    AccountRef     `json:"Account"`
	Date       string         `json:"Date"`
	Amount     float64        `json:"Amount"`
	Reference  string         `json:"Reference"`
}

// PaymentRecord is a payment as returned by the API
type PaymentRecord struct {
	PaymentID string          `json:"PaymentID"`
	Amount    decimal.Decimal `json:"Amount"`
}

// PaymentsResponse wraps payment creations
type PaymentsResponse struct {
	Payments []PaymentRecord `json:"Payments"`
}

// BankTransfer is the request body for moving money between bank accounts
type BankTransfer struct {
	FromBankAccount AccountRef `json:"FromBankAccount"`
	ToBankAccount   AccountRef `json:"ToBankAccount"`
	Amount          float64    `json:"Amount"`
	Date            string     `json:"Date"`
}

// BankTransferRecord is a bank transfer as returned by the API
type BankTransferRecord struct {
	BankTransferID string          `json:"BankTransferID"`
	Amount         decimal.Decimal `json:"Amount"`
}

// BankTransfersResponse wraps bank transfer creations
type BankTransfersResponse struct {
	BankTransfers []BankTransferRecord `json:"BankTransfers"`
}

// BankLineItem is a line on a bank transaction
type BankLineItem struct {
	Description string  `json:"Description"`
	UnitAmount  float64 `json:"UnitAmount"`
	AccountCode string  `json:"AccountCode"`
}

// BankTransaction is the request body for a spend or receive transaction
type BankTransaction struct {
	Type        string         `json:"Type"`
	Contact     ContactRef     `json:"Contact"`
	Date        string         `json:"Date"`
	BankAccount AccountRef     `json:"BankAccount"`
	Reference   string         `json:"Reference"`
	LineItems   []BankLineItem `json:"LineItems"`
}

// BankTransactionRecord is a bank transaction as returned by the API
type BankTransactionRecord struct {
	BankTransactionID string          `json:"BankTransactionID"`
	Total             decimal.Decimal `json:"Total"`
}

// BankTransactionsResponse wraps bank transaction creations
type BankTransactionsResponse struct {
	BankTransactions []BankTransactionRecord `json:"BankTransactions"`
}

// TaxRate is a tax rate as returned by the API
type TaxRate struct {
	Name          string          `json:"Name"`
	TaxType       string          `json:"TaxType"`
	Status        string          `json:"Status"`
	ReportTaxType string          `json:"ReportTaxType"`
	EffectiveRate decimal.Decimal `json:"EffectiveRate"`
}

// TaxComponent is one component of a tax rate
type TaxComponent struct {
	Name string  `json:"Name"`
	Rate float64 `json:"Rate"`
}

// NewTaxRate is the request body for creating a tax rate
type NewTaxRate struct {
	Name          string         `json:"Name"`
	ReportTaxType string         `json:"ReportTaxType"`
	TaxComponents []TaxComponent `json:"TaxComponents"`
}

// TaxRatesResponse wraps tax rate listings and creations
type TaxRatesResponse struct {
	TaxRates []TaxRate `json:"TaxRates"`
}
