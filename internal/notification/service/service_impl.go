package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/skolara/skolara/internal/cache"
	"github.com/skolara/skolara/internal/clock"
	"github.com/skolara/skolara/internal/config"
	directorydomain "github.com/skolara/skolara/internal/directory/domain"
	"github.com/skolara/skolara/internal/monitoring"
	"github.com/skolara/skolara/internal/notification/domain"
	"github.com/skolara/skolara/internal/ratelimit"
	"github.com/skolara/skolara/internal/taskqueue"
	"github.com/skolara/skolara/pkg/db"
	"github.com/skolara/skolara/pkg/db/pagination"
	"github.com/skolara/skolara/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Queue     *taskqueue.Queue
	Directory directorydomain.Service
	Clock     clock.Clock
	Metrics   *monitoring.Collector
	CfgHolder *config.NotificationConfigHolder
	Templates cache.TemplateResolverCache
	Limiter   *ratelimit.NotifyLimiter `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	queue     *taskqueue.Queue
	directory directorydomain.Service
	clock     clock.Clock
	metrics   *monitoring.Collector
	cfgHolder *config.NotificationConfigHolder
	templates cache.TemplateResolverCache
	limiter   *ratelimit.NotifyLimiter
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("notification.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		queue:     p.Queue,
		directory: p.Directory,
		clock:     p.Clock,
		metrics:   p.Metrics,
		cfgHolder: p.CfgHolder,
		templates: p.Templates,
		limiter:   p.Limiter,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Notification, error) {
	if req.UserID <= 0 {
		return domain.Notification{}, domain.ErrInvalidUser
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return domain.Notification{}, domain.ErrInvalidKey
	}

	priority := req.Priority
	if priority == "" {
		priority = domain.ParsePriority(s.cfgHolder.Get().DefaultPriority, domain.PriorityNormal)
	}
	if !priority.Valid() {
		return domain.Notification{}, domain.ErrInvalidPriority
	}

	// Template and preference lookups are best-effort: a broken template
	// table must not stop delivery, it only degrades it to the raw key and
	// default channels.
	title, body := s.renderForKey(ctx, key, req.SchoolID, req.Data)
	channels := s.allowedChannels(ctx, req.UserID, priority)

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = "system"
	}
	notifType := strings.TrimSpace(req.Type)
	if notifType == "" {
		notifType = key
	}

	data := datatypes.JSONMap{}
	for k, v := range req.Data {
		data[k] = v
	}

	notification := domain.Notification{
		ID:        s.genID.Generate(),
		SchoolID:  req.SchoolID,
		UserID:    req.UserID,
		Category:  category,
		Type:      notifType,
		Title:     title,
		Body:      body,
		RequestID: req.RequestID,
		Data:      data,
		Priority:  priority,
		IsRead:    false,
		CreatedAt: s.clock.Now(),
	}

	// Persistence failure is fatal: downstream channel sends would have
	// nothing to reference.
	if err := s.repo.InsertNotification(ctx, s.db, &notification); err != nil {
		return domain.Notification{}, fmt.Errorf("insert notification: %w", err)
	}

	s.metrics.Inc("notifications_created_total", 1, map[string]string{
		"category": category,
		"priority": string(priority),
	})

	s.enqueueChannelSends(ctx, notification, channels)

	return notification, nil
}

// enqueueChannelSends pushes one task per permitted async channel. It runs
// only after the row is durably persisted; one channel's enqueue being rate
// limited never blocks the others.
func (s *Service) enqueueChannelSends(ctx context.Context, n domain.Notification, channels map[domain.Channel]bool) {
	body := ""
	if n.Body != nil {
		body = *n.Body
	}

	base := taskqueue.Payload{
		"user_id":         n.UserID,
		"notification_id": n.ID.Int64(),
		"priority":        string(n.Priority),
	}
	if n.SchoolID != nil {
		base["school_id"] = *n.SchoolID
	}

	for _, channel := range domain.AsyncChannels {
		if !channels[channel] {
			continue
		}
		if !s.limiter.AllowUserChannel(ctx, n.UserID, string(channel)) {
			s.metrics.Inc("notifications_rate_limited_total", 1, map[string]string{
				"channel": string(channel),
			})
			continue
		}

		payload := taskqueue.Payload{}
		for k, v := range base {
			payload[k] = v
		}
		switch channel {
		case domain.ChannelEmail:
			payload["title"] = n.Title
			payload["body"] = body
			s.queue.Enqueue(taskqueue.KindSendEmail, payload)
		case domain.ChannelSMS:
			payload["body"] = body
			s.queue.Enqueue(taskqueue.KindSendSMS, payload)
		case domain.ChannelPush:
			payload["title"] = n.Title
			payload["body"] = body
			s.queue.Enqueue(taskqueue.KindSendPush, payload)
		}
	}
}

func (s *Service) Broadcast(ctx context.Context, req domain.BroadcastRequest) (domain.BroadcastResult, error) {
	if req.SchoolID <= 0 {
		return domain.BroadcastResult{}, domain.ErrInvalidUser
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return domain.BroadcastResult{}, domain.ErrInvalidKey
	}
	if strings.TrimSpace(req.Audience) == "" {
		return domain.BroadcastResult{}, domain.ErrInvalidAudience
	}

	release, acquired, err := s.limiter.AcquireBroadcast(ctx, req.SchoolID, key)
	if err != nil {
		return domain.BroadcastResult{}, fmt.Errorf("acquire broadcast lock: %w", err)
	}
	if !acquired {
		return domain.BroadcastResult{}, domain.ErrBroadcastBusy
	}
	defer release()

	recipients, err := s.directory.ResolveAudience(ctx, req.SchoolID, req.Audience)
	if err != nil {
		if err == directorydomain.ErrInvalidAudience {
			return domain.BroadcastResult{}, domain.ErrInvalidAudience
		}
		return domain.BroadcastResult{}, fmt.Errorf("resolve audience: %w", err)
	}

	schoolID := req.SchoolID
	pageSize := s.cfgHolder.Get().BroadcastPageSize
	result := domain.BroadcastResult{Recipients: len(recipients)}

	// One recipient failing must never block the rest of the fan-out.
	for i, userID := range recipients {
		if pageSize > 0 && i > 0 && i%pageSize == 0 {
			s.log.Info("broadcast progress",
				zap.String("key", key),
				zap.Int("done", i),
				zap.Int("total", len(recipients)),
			)
		}

		data := make(map[string]any, len(req.Data))
		for k, v := range req.Data {
			data[k] = v
		}

		_, err := s.Create(ctx, domain.CreateRequest{
			UserID:   userID,
			SchoolID: &schoolID,
			Key:      key,
			Type:     req.Type,
			Category: req.Category,
			Data:     data,
			Priority: req.Priority,
		})
		if err != nil {
			result.Failed++
			s.log.Warn("broadcast recipient failed",
				zap.String("key", key),
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		result.Created++
	}

	s.metrics.Inc("notifications_broadcast_total", 1, map[string]string{"key": key})
	return result, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	userID, ok := tenantctx.UserIDFromContext(ctx)
	if !ok {
		return domain.ListResponse{}, domain.ErrInvalidUser
	}

	var cursor *domain.ListCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.ListCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	var schoolID *int64
	if id, ok := tenantctx.SchoolIDFromContext(ctx); ok {
		schoolID = &id
	}

	items, err := s.repo.ListNotifications(ctx, s.db, domain.ListFilter{
		UserID:     userID,
		SchoolID:   schoolID,
		Category:   strings.TrimSpace(req.Category),
		UnreadOnly: req.UnreadOnly,
		Cursor:     cursor,
		Limit:      pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(n *domain.Notification) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        n.ID.String(),
			CreatedAt: n.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	notifications := make([]domain.Notification, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		notifications = append(notifications, *item)
	}

	resp := domain.ListResponse{Notifications: notifications}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) UnreadCount(ctx context.Context) (int64, error) {
	userID, ok := tenantctx.UserIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidUser
	}
	var schoolID *int64
	if id, ok := tenantctx.SchoolIDFromContext(ctx); ok {
		schoolID = &id
	}
	return s.repo.CountUnread(ctx, s.db, userID, schoolID)
}

func (s *Service) MarkRead(ctx context.Context, id snowflake.ID) error {
	userID, ok := tenantctx.UserIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidUser
	}
	updated, err := s.repo.MarkRead(ctx, s.db, userID, id, s.clock.Now())
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context) (int64, error) {
	userID, ok := tenantctx.UserIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidUser
	}
	var schoolID *int64
	if id, ok := tenantctx.SchoolIDFromContext(ctx); ok {
		schoolID = &id
	}
	return s.repo.MarkAllRead(ctx, s.db, userID, schoolID, s.clock.Now())
}

func (s *Service) Preferences(ctx context.Context) ([]domain.NotificationPreference, error) {
	userID, ok := tenantctx.UserIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}
	rows, err := s.repo.ListPreferences(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	prefs := make([]domain.NotificationPreference, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		prefs = append(prefs, *row)
	}
	return prefs, nil
}

func (s *Service) UpdatePreference(ctx context.Context, req domain.UpdatePreferenceRequest) (domain.NotificationPreference, error) {
	userID, ok := tenantctx.UserIDFromContext(ctx)
	if !ok {
		return domain.NotificationPreference{}, domain.ErrInvalidUser
	}
	if !req.Channel.Valid() {
		return domain.NotificationPreference{}, domain.ErrInvalidChannel
	}
	if req.MinPriority != nil && !req.MinPriority.Valid() {
		return domain.NotificationPreference{}, domain.ErrInvalidPriority
	}

	cfg := datatypes.JSONMap{}
	for k, v := range req.Config {
		cfg[k] = v
	}

	now := s.clock.Now()
	pref := domain.NotificationPreference{
		ID:          s.genID.Generate(),
		UserID:      userID,
		Channel:     req.Channel,
		Enabled:     req.Enabled,
		MinPriority: req.MinPriority,
		Config:      cfg,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.UpsertPreference(ctx, s.db, &pref); err != nil {
		return domain.NotificationPreference{}, err
	}
	return pref, nil
}

func (s *Service) SaveTemplate(ctx context.Context, req domain.SaveTemplateRequest) (domain.NotificationTemplate, error) {
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return domain.NotificationTemplate{}, domain.ErrInvalidKey
	}
	title := strings.TrimSpace(req.TitleTemplate)
	if title == "" {
		return domain.NotificationTemplate{}, domain.ErrInvalidTemplate
	}
	if req.DefaultChannel != nil && !req.DefaultChannel.Valid() {
		return domain.NotificationTemplate{}, domain.ErrInvalidChannel
	}

	now := s.clock.Now()
	defer s.templates.Invalidate(key, req.SchoolID)

	existing, err := s.repo.FindTemplateByKey(ctx, s.db, key, req.SchoolID)
	if err != nil {
		return domain.NotificationTemplate{}, err
	}
	if existing != nil {
		return s.overwriteTemplate(ctx, existing, req, title, now)
	}

	tmpl := domain.NotificationTemplate{
		ID:             s.genID.Generate(),
		Key:            key,
		SchoolID:       req.SchoolID,
		DefaultChannel: req.DefaultChannel,
		TitleTemplate:  title,
		BodyTemplate:   req.BodyTemplate,
		IsActive:       req.IsActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.InsertTemplate(ctx, s.db, &tmpl); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return domain.NotificationTemplate{}, err
		}
		// Lost an insert race on (key, school_id); the winner's row is the
		// one to overwrite.
		existing, findErr := s.repo.FindTemplateByKey(ctx, s.db, key, req.SchoolID)
		if findErr != nil {
			return domain.NotificationTemplate{}, findErr
		}
		if existing == nil {
			return domain.NotificationTemplate{}, err
		}
		return s.overwriteTemplate(ctx, existing, req, title, now)
	}
	return tmpl, nil
}

func (s *Service) overwriteTemplate(ctx context.Context, existing *domain.NotificationTemplate, req domain.SaveTemplateRequest, title string, now time.Time) (domain.NotificationTemplate, error) {
	existing.DefaultChannel = req.DefaultChannel
	existing.TitleTemplate = title
	existing.BodyTemplate = req.BodyTemplate
	existing.IsActive = req.IsActive
	existing.UpdatedAt = now
	if err := s.repo.UpdateTemplate(ctx, s.db, existing); err != nil {
		return domain.NotificationTemplate{}, err
	}
	return *existing, nil
}

func (s *Service) ListTemplates(ctx context.Context, schoolID *int64) ([]domain.NotificationTemplate, error) {
	rows, err := s.repo.ListTemplates(ctx, s.db, schoolID)
	if err != nil {
		return nil, err
	}
	templates := make([]domain.NotificationTemplate, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		templates = append(templates, *row)
	}
	return templates, nil
}
