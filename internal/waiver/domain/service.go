package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidWaiverID        = errors.New("invalid_waiver_id")
	ErrInvalidWaiverType      = errors.New("invalid_waiver_type")
	ErrInvalidWaiverAmount    = errors.New("invalid_waiver_amount")
	ErrWaiverNotFound         = errors.New("waiver_not_found")
	ErrAlreadyProcessed       = errors.New("already_processed")
	ErrDuplicatePendingWaiver = errors.New("duplicate_pending_waiver")
	ErrNoLateFeeApplied       = errors.New("no_late_fee_applied")
)

type CreateRequest struct {
	InvoiceID    snowflake.ID
	Type         WaiverType
	WaiverAmount *decimal.Decimal
	Reason       string
}

type ReviewRequest struct {
	WaiverID snowflake.ID
	Notes    string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, waiver *LateFeeWaiver) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LateFeeWaiver, error)
	FindPendingByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*LateFeeWaiver, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]LateFeeWaiver, error)
	// Review moves a pending waiver to status and reports false when it was
	// no longer pending at write time.
	Review(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, reviewedBy string, notes *string, now time.Time) (bool, error)
}

type Service interface {
	Request(ctx context.Context, req CreateRequest) (*LateFeeWaiver, error)
	Approve(ctx context.Context, req ReviewRequest) (*LateFeeWaiver, error)
	Reject(ctx context.Context, req ReviewRequest) (*LateFeeWaiver, error)
	Get(ctx context.Context, id snowflake.ID) (*LateFeeWaiver, error)
	ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]LateFeeWaiver, error)
}

func (t WaiverType) Valid() bool {
	return t == WaiverTypeFull || t == WaiverTypePartial
}
