package models

import "github.com/shopspring/decimal"

// Payment is money received from a customer into a payment provider bank account.
// Amount moves from the receivables account to BankAccount; Fees is what the
// provider kept (negative when the provider paid fees back).
type Payment struct {
	ID          string          `json:"id"`
	BankAccount string          `json:"bank_account"`
	Amount      decimal.Decimal `json:"amount"`
	Fees        decimal.Decimal `json:"fees"`
}

// Refund is money returned to a customer from a payment provider bank account.
type Refund Payment

// Fee is a standalone charge or reimbursement on a bank account.
// Positive amounts are money spent, negative amounts money received.
type Fee struct {
	ID          string          `json:"id"`
	BankAccount string          `json:"bank_account"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
}
