package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	"github.com/smallbiznis/estatebill/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidResident         = errors.New("invalid_resident")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidPageToken        = errors.New("invalid_page_token")
	ErrInvoiceResidentMismatch = errors.New("invoice_resident_mismatch")
)

type PostingRequest struct {
	ResidentID  snowflake.ID
	Amount      decimal.Decimal
	Description string
}

type SettleRequest struct {
	ResidentID snowflake.ID
	InvoiceID  snowflake.ID
	// Amount defaults to the invoice's remaining balance.
	Amount *decimal.Decimal
}

type SettleResult struct {
	Wallet      Wallet                `json:"wallet"`
	Transaction Transaction           `json:"transaction"`
	Invoice     invoicedomain.Invoice `json:"invoice"`
}

type ListTransactionsRequest struct {
	pagination.Pagination
	ResidentID snowflake.ID
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

// Reconciliation compares the stored balance with the ledger.
type Reconciliation struct {
	ResidentID snowflake.ID    `json:"resident_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Consistent bool            `json:"consistent"`
}

type TransactionFilter struct {
	ResidentID snowflake.ID
	CursorAt   *time.Time
	CursorID   snowflake.ID
	Limit      int
}

type Repository interface {
	// EnsureWallet creates a zero wallet unless one exists.
	EnsureWallet(ctx context.Context, db *gorm.DB, residentID snowflake.ID, now time.Time) error
	FindWallet(ctx context.Context, db *gorm.DB, residentID snowflake.ID) (*Wallet, error)
	FindWalletForUpdate(ctx context.Context, db *gorm.DB, residentID snowflake.ID) (*Wallet, error)
	UpdateBalance(ctx context.Context, db *gorm.DB, residentID snowflake.ID, balance decimal.Decimal, now time.Time) error
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, filter TransactionFilter) ([]*Transaction, error)
	SumTransactions(ctx context.Context, db *gorm.DB, residentID snowflake.ID) (decimal.Decimal, error)
}

type Service interface {
	GetOrCreate(ctx context.Context, residentID snowflake.ID) (*Wallet, error)
	Credit(ctx context.Context, req PostingRequest) (*Transaction, error)
	Debit(ctx context.Context, req PostingRequest) (*Transaction, error)
	Transactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
	SettleInvoice(ctx context.Context, req SettleRequest) (*SettleResult, error)
	Reconcile(ctx context.Context, residentID snowflake.ID) (*Reconciliation, error)
}
