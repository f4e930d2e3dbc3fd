package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog is one immutable row in the tenant's activity trail. Action is the
// domain event name that produced it.
type AuditLog struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	SchoolID  *int64            `gorm:"index:idx_audit_logs_school_created,priority:1" json:"school_id,omitempty"`
	UserID    *int64            `gorm:"index" json:"user_id,omitempty"`
	Action    string            `gorm:"size:128;not null" json:"action"`
	Entity    string            `gorm:"size:64;not null" json:"entity"`
	EntityID  *int64            `json:"entity_id,omitempty"`
	Data      datatypes.JSONMap `json:"data,omitempty"`
	IPAddress *string           `gorm:"size:64" json:"ip_address,omitempty"`
	CreatedAt time.Time         `gorm:"index:idx_audit_logs_school_created,priority:2" json:"created_at"`
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	SchoolID int64
	Action   string
	Entity   string
	EntityID *int64
	UserID   *int64
	StartAt  *time.Time
	EndAt    *time.Time
	Cursor   *AuditCursor
	Limit    int
}
