package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estatebill/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ListByResidentRequest struct {
	pagination.Pagination
	ResidentID snowflake.ID
	Status     InvoiceStatus
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// InvoiceDetail is an invoice with its lines and, for corrections, its parent.
type InvoiceDetail struct {
	Invoice Invoice       `json:"invoice"`
	Items   []InvoiceItem `json:"items"`
	Parent  *Invoice      `json:"parent,omitempty"`
}

// Outstanding is what is still owed on a correction chain.
type Outstanding struct {
	RootInvoiceID snowflake.ID    `json:"root_invoice_id"`
	Original      decimal.Decimal `json:"original_remaining"`
	Debits        decimal.Decimal `json:"debit_notes"`
	Credits       decimal.Decimal `json:"credit_notes"`
	Total         decimal.Decimal `json:"total"`
	Invoices      []Invoice       `json:"invoices"`
}

type CorrectionItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type CreateCorrectionRequest struct {
	InvoiceID snowflake.ID     `json:"-"`
	Type      CorrectionType   `json:"type"`
	Items     []CorrectionItem `json:"items"`
	Reason    string           `json:"reason"`
}

type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (*Invoice, error)
	GetWithParent(ctx context.Context, id snowflake.ID) (*InvoiceDetail, error)
	ListByResident(ctx context.Context, req ListByResidentRequest) (ListInvoiceResponse, error)
	Outstanding(ctx context.Context, id snowflake.ID) (*Outstanding, error)
	CreateCorrection(ctx context.Context, req CreateCorrectionRequest) (*Invoice, error)
	ApplyLateFee(ctx context.Context, id snowflake.ID, amount decimal.Decimal) (*Invoice, error)
	VoidInvoice(ctx context.Context, id snowflake.ID, reason string) (*Invoice, error)
}

type ListFilter struct {
	ResidentID snowflake.ID
	Status     InvoiceStatus
	CursorID   snowflake.ID
	CursorAt   *time.Time
	Limit      int
}

// Repository is shared by the generator, the waiver workflow and the wallet
// so that each can mutate invoices inside its own transaction.
type Repository interface {
	InsertWithItems(ctx context.Context, db *gorm.DB, invoice *Invoice, items []InvoiceItem) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	ListChain(ctx context.Context, db *gorm.DB, rootID snowflake.ID) ([]Invoice, error)
	ListOpenByResident(ctx context.Context, db *gorm.DB, residentID snowflake.ID) ([]Invoice, error)
	ExistsForPeriod(ctx context.Context, db *gorm.DB, houseID, residentID snowflake.ID, periodStart time.Time) (bool, error)
	CountCorrections(ctx context.Context, db *gorm.DB, parentID snowflake.ID, kind CorrectionType) (int64, error)
	CountByProfileFrom(ctx context.Context, db *gorm.DB, profileID snowflake.ID, from time.Time) (int64, error)
	UpdateAmounts(ctx context.Context, db *gorm.DB, invoice *Invoice, now time.Time) error
	UpdateMetadata(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata datatypes.JSONMap, now time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to InvoiceStatus, now time.Time) (bool, error)
}

var (
	ErrInvalidInvoiceID        = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound         = errors.New("invoice_not_found")
	ErrInvoiceVoid             = errors.New("invoice_void")
	ErrInvoiceAlreadyPaid      = errors.New("invoice_already_paid")
	ErrInvoiceNotPayable       = errors.New("invoice_not_payable")
	ErrInvoiceHasPayments      = errors.New("invoice_has_payments")
	ErrOverpayment             = errors.New("payment_exceeds_balance")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidMetadata         = errors.New("invalid_invoice_metadata")
	ErrInvalidResident         = errors.New("invalid_resident")
	ErrInvalidPageToken        = errors.New("invalid_page_token")
	ErrCorrectionOfVoidInvoice = errors.New("correction_of_void_invoice")
	ErrInvalidCorrectionType   = errors.New("invalid_correction_type")
	ErrInvalidCorrectionItems  = errors.New("invalid_correction_items")
	ErrConcurrentCorrection    = errors.New("concurrent_correction")
	ErrLateFeeAlreadyApplied   = errors.New("late_fee_already_applied")
	ErrLateFeeNotAllowed       = errors.New("late_fee_not_allowed")
)
