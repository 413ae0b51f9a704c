package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	estatedomain "github.com/smallbiznis/estatebill/internal/estate/domain"
	"gorm.io/gorm"
)

var (
	ErrNoProfileAssigned     = errors.New("no_profile_assigned")
	ErrProfileNotFound       = errors.New("profile_not_found")
	ErrProfileTargetMismatch = errors.New("profile_target_mismatch")
	ErrInvalidProfileID      = errors.New("invalid_billing_profile_id")
	ErrInvalidEffectiveDate  = errors.New("invalid_effective_date")
	ErrInvalidApprovedChange = errors.New("invalid_approved_change")
)

// GovernedResult is the outcome of a protected profile update. Exactly one of
// Applied and PendingApproval is set.
type GovernedResult struct {
	Applied         bool          `json:"applied"`
	PendingApproval bool          `json:"pending_approval"`
	AutoApproved    bool          `json:"auto_approved,omitempty"`
	RequestID       *snowflake.ID `json:"request_id,omitempty"`
	ImpactCount     int64         `json:"impact_count"`
}

type UpdateEffectiveDateRequest struct {
	ProfileID     snowflake.ID
	EffectiveDate time.Time
	Reason        string
}

type Repository interface {
	FindProfile(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingProfile, error)
	FindProfileForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingProfile, error)
	ListItems(ctx context.Context, db *gorm.DB, profileID snowflake.ID) ([]BillingItem, error)
	UpdateEffectiveDate(ctx context.Context, db *gorm.DB, id snowflake.ID, effectiveDate, now time.Time) error
}

// Resolver finds the profile that bills a house.
type Resolver interface {
	Resolve(ctx context.Context, house estatedomain.House) (*Resolved, error)
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Resolved, error)
	UpdateEffectiveDate(ctx context.Context, req UpdateEffectiveDateRequest) (*GovernedResult, error)
	ApplyApprovedChange(ctx context.Context, requestID snowflake.ID) (*BillingProfile, error)
}
