// Package domain contains persistence models for invoicing.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "unpaid"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusVoid          InvoiceStatus = "void"
)

type InvoiceType string

const (
	InvoiceTypeServiceCharge   InvoiceType = "service_charge"
	InvoiceTypeDevelopmentLevy InvoiceType = "development_levy"
	InvoiceTypeCreditNote      InvoiceType = "credit_note"
	InvoiceTypeDebitNote       InvoiceType = "debit_note"
)

type CorrectionType string

const (
	CorrectionTypeCreditNote CorrectionType = "credit_note"
	CorrectionTypeDebitNote  CorrectionType = "debit_note"
)

func (c CorrectionType) Valid() bool {
	return c == CorrectionTypeCreditNote || c == CorrectionTypeDebitNote
}

// RateSnapshot freezes the profile lines an invoice was generated from.
type RateSnapshot struct {
	ProfileID   string         `json:"profile_id,omitempty"`
	ProfileName string         `json:"profile_name,omitempty"`
	Items       []SnapshotItem `json:"items,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type SnapshotItem struct {
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	IsMandatory bool            `json:"is_mandatory"`
}

// Invoice represents a billable demand for one resident, house and period.
// Corrections share the period of their chain root and are excluded from
// the period uniqueness index.
type Invoice struct {
	ID               snowflake.ID                     `gorm:"primaryKey" json:"id"`
	ResidentID       snowflake.ID                     `gorm:"not null;index" json:"resident_id"`
	HouseID          snowflake.ID                     `gorm:"not null;index" json:"house_id"`
	BillingProfileID *snowflake.ID                    `gorm:"index" json:"billing_profile_id,omitempty"`
	InvoiceNumber    string                           `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	AmountDue        decimal.Decimal                  `gorm:"type:numeric(18,2);not null" json:"amount_due"`
	AmountPaid       decimal.Decimal                  `gorm:"type:numeric(18,2);not null" json:"amount_paid"`
	Status           InvoiceStatus                    `gorm:"type:text;not null;index" json:"status"`
	InvoiceType      InvoiceType                      `gorm:"type:text;not null" json:"invoice_type"`
	DueDate          time.Time                        `gorm:"not null" json:"due_date"`
	PeriodStart      time.Time                        `gorm:"not null" json:"period_start"`
	PeriodEnd        time.Time                        `gorm:"not null" json:"period_end"`
	RateSnapshot     datatypes.JSONType[RateSnapshot] `gorm:"type:json" json:"rate_snapshot"`
	IsCorrection     bool                             `gorm:"not null;default:false" json:"is_correction"`
	CorrectionType   *CorrectionType                  `gorm:"type:text" json:"correction_type,omitempty"`
	ParentInvoiceID  *snowflake.ID                    `gorm:"index" json:"parent_invoice_id,omitempty"`
	Metadata         datatypes.JSONMap                `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt        time.Time                        `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                        `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem represents a line on an invoice.
type InvoiceItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Position    int             `gorm:"not null;default:0" json:"position"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Amount      decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// InvoiceNumber formats the generated number for a period and house.
func InvoiceNumber(periodStart time.Time, houseNumber string) string {
	return fmt.Sprintf("INV-%s-%s", periodStart.UTC().Format("200601"), houseNumber)
}

// CorrectionNumber derives the number of the n-th correction of a kind.
func CorrectionNumber(parentNumber string, kind CorrectionType, n int64) string {
	suffix := "DN"
	if kind == CorrectionTypeCreditNote {
		suffix = "CN"
	}
	return fmt.Sprintf("%s-%s%d", parentNumber, suffix, n)
}

func (i Invoice) IsVoid() bool {
	return i.Status == InvoiceStatusVoid
}

func (i Invoice) IsCreditNote() bool {
	return i.IsCorrection && i.CorrectionType != nil && *i.CorrectionType == CorrectionTypeCreditNote
}

// IsOpen reports whether the invoice still counts toward what is owed.
func (i Invoice) IsOpen() bool {
	return i.Status == InvoiceStatusUnpaid || i.Status == InvoiceStatusPartiallyPaid
}

// RootID is the original invoice of the chain this invoice belongs to.
func (i Invoice) RootID() snowflake.ID {
	if i.IsCorrection && i.ParentInvoiceID != nil {
		return *i.ParentInvoiceID
	}
	return i.ID
}

// Remaining is amount_due minus amount_paid.
func (i Invoice) Remaining() decimal.Decimal {
	return i.AmountDue.Sub(i.AmountPaid)
}
