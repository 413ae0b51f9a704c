package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeUser   ActorType = "user"
)

// AuditLog is an append-only record of a successful mutation.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	EntityType string            `gorm:"type:text;not null;index:idx_audit_logs_entity" json:"entity_type"`
	EntityID   *string           `gorm:"type:text;index:idx_audit_logs_entity" json:"entity_id,omitempty"`
	OldValues  datatypes.JSONMap `gorm:"type:json" json:"old_values,omitempty"`
	NewValues  datatypes.JSONMap `gorm:"type:json" json:"new_values,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	IPAddress  *string           `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent  *string           `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorType  string
	Cursor     *AuditCursor
	Limit      int
}
