package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/skolara/skolara/pkg/db/pagination"
)

type CreateRequest struct {
	UserID    int64
	SchoolID  *int64
	Key       string
	Type      string
	Category  string
	Data      map[string]any
	RequestID *int64
	Priority  Priority
}

type BroadcastRequest struct {
	SchoolID int64
	Key      string
	Type     string
	Category string
	Data     map[string]any
	Priority Priority
	// Audience is a directory selector, e.g. "classroom_parents:12",
	// "classroom_students:12", "role:teacher" or "users:1,2,3".
	Audience string
}

type BroadcastResult struct {
	Recipients int `json:"recipients"`
	Created    int `json:"created"`
	Failed     int `json:"failed"`
}

type ListRequest struct {
	pagination.Pagination
	Category   string
	UnreadOnly bool
}

type ListResponse struct {
	pagination.PageInfo
	Notifications []Notification `json:"notifications"`
}

type UpdatePreferenceRequest struct {
	Channel     Channel
	Enabled     bool
	MinPriority *Priority
	Config      map[string]any
}

type SaveTemplateRequest struct {
	Key            string
	SchoolID       *int64
	DefaultChannel *Channel
	TitleTemplate  string
	BodyTemplate   *string
	IsActive       bool
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Notification, error)
	Broadcast(ctx context.Context, req BroadcastRequest) (BroadcastResult, error)

	List(ctx context.Context, req ListRequest) (ListResponse, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, id snowflake.ID) error
	MarkAllRead(ctx context.Context) (int64, error)

	Preferences(ctx context.Context) ([]NotificationPreference, error)
	UpdatePreference(ctx context.Context, req UpdatePreferenceRequest) (NotificationPreference, error)

	SaveTemplate(ctx context.Context, req SaveTemplateRequest) (NotificationTemplate, error)
	ListTemplates(ctx context.Context, schoolID *int64) ([]NotificationTemplate, error)
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidKey       = errors.New("invalid_key")
	ErrInvalidChannel   = errors.New("invalid_channel")
	ErrInvalidPriority  = errors.New("invalid_priority")
	ErrInvalidAudience  = errors.New("invalid_audience")
	ErrInvalidTemplate  = errors.New("invalid_template")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrNotFound         = errors.New("not_found")
	ErrBroadcastBusy    = errors.New("broadcast_in_progress")
)
