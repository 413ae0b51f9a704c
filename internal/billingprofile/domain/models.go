package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type TargetType string

const (
	TargetTypeHouse    TargetType = "house"
	TargetTypeResident TargetType = "resident"
)

// BillingProfile is a named bundle of charges assignable to a house or a
// house type.
type BillingProfile struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	Name              string       `gorm:"type:text;not null" json:"name"`
	TargetType        TargetType   `gorm:"type:text;not null" json:"target_type"`
	IsOneTime         bool         `gorm:"not null;default:false" json:"is_one_time"`
	IsDevelopmentLevy bool         `gorm:"not null;default:false" json:"is_development_levy"`
	EffectiveDate     time.Time    `gorm:"not null" json:"effective_date"`
	IsActive          bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (BillingProfile) TableName() string { return "billing_profiles" }

type BillingItem struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	BillingProfileID snowflake.ID    `gorm:"not null;index" json:"billing_profile_id"`
	Name             string          `gorm:"type:text;not null" json:"name"`
	Amount           decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Frequency        string          `gorm:"type:text;not null;default:'monthly'" json:"frequency"`
	IsMandatory      bool            `gorm:"not null;default:true" json:"is_mandatory"`
	Position         int             `gorm:"not null;default:0" json:"position"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (BillingItem) TableName() string { return "billing_items" }

// Resolved is the effective profile for a house with its ordered items.
type Resolved struct {
	Profile BillingProfile
	Items   []BillingItem
}

// Total sums every item amount, mandatory or not.
func (r Resolved) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.Amount)
	}
	return total
}
