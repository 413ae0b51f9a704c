package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type WaiverType string

const (
	WaiverTypeFull    WaiverType = "full"
	WaiverTypePartial WaiverType = "partial"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// LateFeeWaiver moves from pending to approved or rejected exactly once.
type LateFeeWaiver struct {
	ID              snowflake.ID     `gorm:"primaryKey" json:"id"`
	InvoiceID       snowflake.ID     `gorm:"not null;index" json:"invoice_id"`
	ResidentID      snowflake.ID     `gorm:"not null;index" json:"resident_id"`
	RequestedBy     string           `gorm:"type:text;not null" json:"requested_by"`
	ReviewedBy      *string          `gorm:"type:text" json:"reviewed_by,omitempty"`
	WaiverType      WaiverType       `gorm:"type:text;not null" json:"waiver_type"`
	WaiverAmount    *decimal.Decimal `gorm:"type:numeric(18,2)" json:"waiver_amount,omitempty"`
	OriginalLateFee decimal.Decimal  `gorm:"type:numeric(18,2);not null" json:"original_late_fee"`
	Reason          string           `gorm:"type:text" json:"reason,omitempty"`
	Status          Status           `gorm:"type:text;not null;index" json:"status"`
	ReviewNotes     *string          `gorm:"type:text" json:"review_notes,omitempty"`
	CreatedAt       time.Time        `gorm:"not null" json:"created_at"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
}

func (LateFeeWaiver) TableName() string { return "late_fee_waivers" }

// WaivedAmount is the reduction an approval applies.
func (w LateFeeWaiver) WaivedAmount() decimal.Decimal {
	if w.WaiverType == WaiverTypePartial && w.WaiverAmount != nil {
		return *w.WaiverAmount
	}
	return w.OriginalLateFee
}
