package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerAPI       TriggerType = "api"
)

// SkipReason codes recorded per house.
const (
	SkipNoProfileAssigned     = "no_profile_assigned"
	SkipProfileNotFound       = "profile_not_found"
	SkipProfileFetchError     = "profile_fetch_error"
	SkipProfileTargetMismatch = "profile_target_mismatch"
	SkipNoBillableResident    = "no_billable_resident"
	SkipDuplicatePeriod       = "duplicate_period"
	SkipZeroAmount            = "zero_amount"
)

type HouseSkip struct {
	HouseID     string `json:"house_id"`
	HouseNumber string `json:"house_number"`
	Reason      string `json:"reason"`
	Detail      string `json:"detail,omitempty"`
}

type HouseError struct {
	HouseID     string `json:"house_id"`
	HouseNumber string `json:"house_number"`
	Error       string `json:"error"`
}

// GenerationLog is appended once per run.
type GenerationLog struct {
	ID             snowflake.ID                     `gorm:"primaryKey" json:"id"`
	TriggerType    TriggerType                      `gorm:"type:text;not null" json:"trigger_type"`
	TargetPeriod   string                           `gorm:"type:text;not null;index" json:"target_period"`
	GeneratedCount int                              `gorm:"not null" json:"generated_count"`
	SkippedCount   int                              `gorm:"not null" json:"skipped_count"`
	ErrorCount     int                              `gorm:"not null" json:"error_count"`
	SkipReasons    datatypes.JSONType[[]HouseSkip]  `gorm:"type:json" json:"skip_reasons"`
	Errors         datatypes.JSONType[[]HouseError] `gorm:"type:json" json:"errors"`
	DurationMS     int64                            `gorm:"not null" json:"duration_ms"`
	CreatedAt      time.Time                        `gorm:"not null" json:"created_at"`
}

func (GenerationLog) TableName() string { return "invoice_generation_log" }
