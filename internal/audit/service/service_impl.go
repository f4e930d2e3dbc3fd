package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/skolara/skolara/internal/audit/domain"
	"github.com/skolara/skolara/internal/audit/masking"
	"github.com/skolara/skolara/internal/clock"
	"github.com/skolara/skolara/internal/events"
	"github.com/skolara/skolara/pkg/db/pagination"
	"github.com/skolara/skolara/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, evt events.Event) error {
	action := strings.TrimSpace(evt.Name)
	if action == "" {
		return nil
	}

	entity := strings.TrimSpace(evt.Entity)
	if entity == "" {
		entity = "unknown"
	}

	createdAt := evt.OccurredAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	entry := auditdomain.AuditLog{
		ID:        s.genID.Generate(),
		SchoolID:  evt.SchoolID,
		UserID:    evt.UserID,
		Action:    action,
		Entity:    entity,
		EntityID:  evt.EntityID,
		Data:      datatypes.JSONMap(masking.MaskSensitive(evt.Data)),
		CreatedAt: createdAt,
	}
	if ip := strings.TrimSpace(evt.IP); ip != "" {
		entry.IPAddress = &ip
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	schoolID, ok := tenantctx.SchoolIDFromContext(ctx)
	if !ok || schoolID == 0 {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidSchool
	}

	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var cursor *auditdomain.AuditCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.AuditCursor{
			ID:        id,
			CreatedAt: createdAt,
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		SchoolID: schoolID,
		Action:   req.Action,
		Entity:   req.Entity,
		EntityID: req.EntityID,
		UserID:   req.UserID,
		StartAt:  req.StartAt,
		EndAt:    req.EndAt,
		Cursor:   cursor,
		Limit:    pageSize,
	})
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *auditdomain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	resp := auditdomain.ListResponse{AuditLogs: logs}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
