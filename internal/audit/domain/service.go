package domain

import (
	"context"
	"errors"
	"time"

	"github.com/skolara/skolara/internal/events"
	"github.com/skolara/skolara/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListRequest struct {
	pagination.Pagination
	Action   string
	Entity   string
	EntityID *int64
	UserID   *int64
	StartAt  *time.Time
	EndAt    *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

// Service records domain events into the audit trail and serves tenant-scoped
// queries over it.
type Service interface {
	Record(ctx context.Context, evt events.Event) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidSchool    = errors.New("invalid_school")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
