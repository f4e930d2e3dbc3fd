package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Priority is the ordered urgency scale used to gate channel delivery.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityNormal:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Below reports whether p ranks strictly below other on the
// low < normal < high < critical scale.
func (p Priority) Below(other Priority) bool {
	return priorityRank[p] < priorityRank[other]
}

// ParsePriority normalizes raw input, falling back to def for unknown values.
func ParsePriority(raw string, def Priority) Priority {
	p := Priority(raw)
	if p.Valid() {
		return p
	}
	return def
}

// Channel is a notification delivery medium.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// AsyncChannels lists the channels delivered via the background queue, in
// dispatch order. In-app is excluded: it is the synchronously persisted row.
var AsyncChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush}

func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush:
		return true
	default:
		return false
	}
}

// Notification is the persisted in-app record. Rows are only ever mutated by
// the mark-read operation and never deleted by this subsystem.
type Notification struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	SchoolID  *int64            `gorm:"index" json:"school_id,omitempty"`
	UserID    int64             `gorm:"not null;index:idx_notifications_user_created" json:"user_id"`
	Category  string            `gorm:"not null" json:"category"`
	Type      string            `gorm:"not null" json:"type"`
	Title     string            `gorm:"not null" json:"title"`
	Body      *string           `json:"body,omitempty"`
	RequestID *int64            `json:"request_id,omitempty"`
	Data      datatypes.JSONMap `gorm:"not null;default:'{}'" json:"data,omitempty"`
	Priority  Priority          `gorm:"not null;default:normal" json:"priority"`
	IsRead    bool              `gorm:"not null;default:false" json:"is_read"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_notifications_user_created" json:"created_at"`
}

// NotificationPreference is a per-user, per-channel delivery setting. At most
// one row exists per (user_id, channel). Config is an open key-value bag
// (e.g. quiet_start/quiet_end "HH:MM").
type NotificationPreference struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID      int64             `gorm:"not null;uniqueIndex:ux_notification_prefs_user_channel" json:"user_id"`
	Channel     Channel           `gorm:"not null;uniqueIndex:ux_notification_prefs_user_channel" json:"channel"`
	Enabled     bool              `gorm:"not null;default:true" json:"enabled"`
	MinPriority *Priority         `json:"min_priority,omitempty"`
	Config      datatypes.JSONMap `gorm:"not null;default:'{}'" json:"config,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// NotificationTemplate renders a notification key into title/body. A row with
// SchoolID nil is the global default; an active school-specific row with the
// same key always wins over it.
type NotificationTemplate struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Key            string       `gorm:"not null;uniqueIndex:ux_notification_templates_key_school" json:"key"`
	SchoolID       *int64       `gorm:"uniqueIndex:ux_notification_templates_key_school" json:"school_id,omitempty"`
	DefaultChannel *Channel     `json:"default_channel,omitempty"`
	TitleTemplate  string       `gorm:"not null" json:"title_template"`
	BodyTemplate   *string      `json:"body_template,omitempty"`
	IsActive       bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}
