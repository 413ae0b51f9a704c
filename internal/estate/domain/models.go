package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type ResidentRole string

const (
	RoleTenant              ResidentRole = "tenant"
	RoleResidentLandlord    ResidentRole = "resident_landlord"
	RoleNonResidentLandlord ResidentRole = "non_resident_landlord"
	RoleDependent           ResidentRole = "dependent"
)

// House is a billable unit. BillingProfileID overrides the house type default.
type House struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	HouseNumber      string        `gorm:"type:text;not null;uniqueIndex" json:"house_number"`
	HouseTypeID      *snowflake.ID `json:"house_type_id,omitempty"`
	BillingProfileID *snowflake.ID `json:"billing_profile_id,omitempty"`
	IsActive         bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (House) TableName() string { return "houses" }

type HouseType struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name             string        `gorm:"type:text;not null" json:"name"`
	BillingProfileID *snowflake.ID `json:"billing_profile_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

func (HouseType) TableName() string { return "house_types" }

type Resident struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	FullName  string       `gorm:"type:text;not null" json:"full_name"`
	Email     string       `gorm:"type:text" json:"email,omitempty"`
	Phone     string       `gorm:"type:text" json:"phone,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Resident) TableName() string { return "residents" }

// ResidentHouseLink associates a resident with a house under a role.
type ResidentHouseLink struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	ResidentID  snowflake.ID  `gorm:"not null;index" json:"resident_id"`
	HouseID     snowflake.ID  `gorm:"not null;index" json:"house_id"`
	Role        ResidentRole  `gorm:"type:text;not null" json:"role"`
	IsActive    bool          `gorm:"not null;default:true" json:"is_active"`
	MoveInDate  *time.Time    `json:"move_in_date,omitempty"`
	MoveOutDate *time.Time    `json:"move_out_date,omitempty"`
	SponsorID   *snowflake.ID `json:"sponsor_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (ResidentHouseLink) TableName() string { return "resident_house_links" }
