package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	UserID     int64
	SchoolID   *int64
	Category   string
	UnreadOnly bool
	Cursor     *ListCursor
	Limit      int
}

type ListCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Repository interface {
	InsertNotification(ctx context.Context, db *gorm.DB, n *Notification) error
	ListNotifications(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Notification, error)
	CountUnread(ctx context.Context, db *gorm.DB, userID int64, schoolID *int64) (int64, error)
	MarkRead(ctx context.Context, db *gorm.DB, userID int64, id snowflake.ID, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, db *gorm.DB, userID int64, schoolID *int64, at time.Time) (int64, error)

	ListPreferences(ctx context.Context, db *gorm.DB, userID int64) ([]*NotificationPreference, error)
	UpsertPreference(ctx context.Context, db *gorm.DB, pref *NotificationPreference) error

	// FindActiveTemplate matches (key, schoolID) exactly; schoolID nil
	// matches the global row. Inactive rows are never returned.
	FindActiveTemplate(ctx context.Context, db *gorm.DB, key string, schoolID *int64) (*NotificationTemplate, error)
	// FindTemplateByKey is the admin-side exact match, active or not.
	FindTemplateByKey(ctx context.Context, db *gorm.DB, key string, schoolID *int64) (*NotificationTemplate, error)
	InsertTemplate(ctx context.Context, db *gorm.DB, tmpl *NotificationTemplate) error
	UpdateTemplate(ctx context.Context, db *gorm.DB, tmpl *NotificationTemplate) error
	ListTemplates(ctx context.Context, db *gorm.DB, schoolID *int64) ([]*NotificationTemplate, error)
}
