package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// Wallet is a resident's stored-value balance. The balance may go negative.
type Wallet struct {
	ResidentID snowflake.ID    `gorm:"primaryKey;autoIncrement:false" json:"resident_id"`
	Balance    decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"balance"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"not null" json:"updated_at"`
}

func (Wallet) TableName() string { return "resident_wallets" }

// Transaction is an append-only wallet ledger row.
type Transaction struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	ResidentID   snowflake.ID    `gorm:"not null;index" json:"resident_id"`
	Type         TransactionType `gorm:"type:text;not null" json:"type"`
	Amount       decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"balance_after"`
	Description  string          `gorm:"type:text" json:"description"`
	InvoiceID    *snowflake.ID   `gorm:"index" json:"invoice_id,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;index" json:"created_at"`
}

func (Transaction) TableName() string { return "wallet_transactions" }

// Signed returns the amount with the sign of its effect on the balance.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == TransactionTypeDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
