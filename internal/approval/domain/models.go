package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

const KindBillingProfileEffectiveDate = "billing_profile.effective_date"

// Request is a change held back until a reviewer approves it.
type Request struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	Kind           string            `gorm:"type:text;not null;index" json:"kind"`
	EntityType     string            `gorm:"type:text;not null" json:"entity_type"`
	EntityID       string            `gorm:"type:text;not null;index" json:"entity_id"`
	CurrentValues  datatypes.JSONMap `gorm:"type:json" json:"current_values,omitempty"`
	ProposedChange datatypes.JSONMap `gorm:"type:json" json:"proposed_change"`
	ImpactCount    int64             `gorm:"not null;default:0" json:"impact_count"`
	Reason         string            `gorm:"type:text" json:"reason"`
	Status         Status            `gorm:"type:text;not null;index" json:"status"`
	RequestedBy    *string           `gorm:"type:text" json:"requested_by,omitempty"`
	DecidedBy      *string           `gorm:"type:text" json:"decided_by,omitempty"`
	DecisionNotes  *string           `gorm:"type:text" json:"decision_notes,omitempty"`
	DecidedAt      *time.Time        `json:"decided_at,omitempty"`
	AppliedAt      *time.Time        `json:"applied_at,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
}

func (Request) TableName() string { return "approval_requests" }
