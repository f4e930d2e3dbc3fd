package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/skolara/skolara/internal/cache"
	"github.com/skolara/skolara/internal/clock"
	"github.com/skolara/skolara/internal/config"
	directorydomain "github.com/skolara/skolara/internal/directory/domain"
	"github.com/skolara/skolara/internal/monitoring"
	"github.com/skolara/skolara/internal/notification/domain"
	"github.com/skolara/skolara/internal/notification/repository"
	"github.com/skolara/skolara/internal/notification/service"
	"github.com/skolara/skolara/internal/taskqueue"
	"github.com/skolara/skolara/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type stubDirectory struct {
	recipients []int64
	err        error
}

func (s *stubDirectory) ResolveAudience(ctx context.Context, schoolID int64, audience string) ([]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.recipients, nil
}

func (s *stubDirectory) Contact(ctx context.Context, userID int64) (directorydomain.Contact, error) {
	return directorydomain.Contact{UserID: userID}, nil
}

type sentTask struct {
	kind    taskqueue.Kind
	payload taskqueue.Payload
}

type taskRecorder struct {
	mu    sync.Mutex
	tasks []sentTask
}

func (r *taskRecorder) record(kind taskqueue.Kind) taskqueue.HandlerFunc {
	return func(ctx context.Context, payload taskqueue.Payload) error {
		r.mu.Lock()
		r.tasks = append(r.tasks, sentTask{kind: kind, payload: payload})
		r.mu.Unlock()
		return nil
	}
}

func (r *taskRecorder) byKind(kind taskqueue.Kind) []sentTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentTask
	for _, t := range r.tasks {
		if t.kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func (r *taskRecorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	queue    *taskqueue.Queue
	recorder *taskRecorder
	clock    *clock.FakeClock
	genID    *snowflake.Node
	dir      *stubDirectory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&domain.Notification{},
		&domain.NotificationPreference{},
		&domain.NotificationTemplate{},
	))

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC))
	metrics := monitoring.NewCollector()

	recorder := &taskRecorder{}
	queue := taskqueue.New(time.Second, zap.NewNop(), metrics)
	require.NoError(t, queue.Register(taskqueue.KindSendEmail, recorder.record(taskqueue.KindSendEmail)))
	require.NoError(t, queue.Register(taskqueue.KindSendSMS, recorder.record(taskqueue.KindSendSMS)))
	require.NoError(t, queue.Register(taskqueue.KindSendPush, recorder.record(taskqueue.KindSendPush)))
	queue.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = queue.Stop(ctx)
	})

	dir := &stubDirectory{}
	svc := service.New(service.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     genID,
		Repo:      repository.Provide(),
		Queue:     queue,
		Directory: dir,
		Clock:     fake,
		Metrics:   metrics,
		CfgHolder: config.NewStaticNotificationConfigHolder(config.DefaultNotificationConfig()),
		Templates: cache.NewTemplateResolverCache(),
	})

	return &fixture{
		db:       db,
		svc:      svc,
		queue:    queue,
		recorder: recorder,
		clock:    fake,
		genID:    genID,
		dir:      dir,
	}
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.queue.Drain(ctx))
}

func (f *fixture) seedTemplate(t *testing.T, key string, schoolID *int64, title string, body *string) {
	t.Helper()
	tmpl := domain.NotificationTemplate{
		ID:            f.genID.Generate(),
		Key:           key,
		SchoolID:      schoolID,
		TitleTemplate: title,
		BodyTemplate:  body,
		IsActive:      true,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&tmpl).Error)
}

func (f *fixture) seedPreference(t *testing.T, userID int64, channel domain.Channel, enabled bool, minPriority *domain.Priority, cfg datatypes.JSONMap) {
	t.Helper()
	pref := domain.NotificationPreference{
		ID:          f.genID.Generate(),
		UserID:      userID,
		Channel:     channel,
		Enabled:     enabled,
		MinPriority: minPriority,
		Config:      cfg,
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&pref).Error)
}

func strptr(s string) *string { return &s }

func TestCreateRendersTemplateAndFansOut(t *testing.T) {
	f := newFixture(t)
	f.seedTemplate(t, "finance.invoice.issued", nil,
		"Invoice {{amount}} due {{due_date}}",
		strptr("Please settle invoice {{invoice_no}} of {{amount}} by {{due_date}}."),
	)
	f.seedPreference(t, 7, domain.ChannelSMS, false, nil, nil)

	n, err := f.svc.Create(context.Background(), domain.CreateRequest{
		UserID:   7,
		Key:      "finance.invoice.issued",
		Category: "finance",
		Data: map[string]any{
			"amount":     "100.00",
			"due_date":   "2025-01-01",
			"invoice_no": "INV-42",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Invoice 100.00 due 2025-01-01", n.Title)
	require.NotNil(t, n.Body)
	require.Equal(t, "Please settle invoice INV-42 of 100.00 by 2025-01-01.", *n.Body)
	require.Equal(t, domain.PriorityNormal, n.Priority)
	require.False(t, n.IsRead)

	var count int64
	require.NoError(t, f.db.Model(&domain.Notification{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	f.drain(t)
	require.Len(t, f.recorder.byKind(taskqueue.KindSendEmail), 1)
	require.Len(t, f.recorder.byKind(taskqueue.KindSendPush), 1)
	require.Empty(t, f.recorder.byKind(taskqueue.KindSendSMS))

	email := f.recorder.byKind(taskqueue.KindSendEmail)[0]
	require.Equal(t, "Invoice 100.00 due 2025-01-01", email.payload["title"])
	require.Equal(t, int64(7), email.payload["user_id"])
	require.Equal(t, n.ID.Int64(), email.payload["notification_id"])
}

func TestCreateTenantTemplateWinsOverGlobal(t *testing.T) {
	f := newFixture(t)
	schoolID := int64(31)
	f.seedTemplate(t, "academics.grade.published", nil, "Grade posted", nil)
	f.seedTemplate(t, "academics.grade.published", &schoolID, "New grade from {{teacher}}", nil)

	n, err := f.svc.Create(context.Background(), domain.CreateRequest{
		UserID:   3,
		SchoolID: &schoolID,
		Key:      "academics.grade.published",
		Data:     map[string]any{"teacher": "Ibu Sari"},
	})
	require.NoError(t, err)
	require.Equal(t, "New grade from Ibu Sari", n.Title)

	// Other tenants still get the global template.
	otherSchool := int64(99)
	n2, err := f.svc.Create(context.Background(), domain.CreateRequest{
		UserID:   4,
		SchoolID: &otherSchool,
		Key:      "academics.grade.published",
	})
	require.NoError(t, err)
	require.Equal(t, "Grade posted", n2.Title)
	f.drain(t)
}

func TestCreateWithoutTemplateFallsBackToKey(t *testing.T) {
	f := newFixture(t)

	n, err := f.svc.Create(context.Background(), domain.CreateRequest{
		UserID: 5,
		Key:    "attendance.absence.recorded",
	})
	require.NoError(t, err)
	require.Equal(t, "attendance.absence.recorded", n.Title)
	require.Nil(t, n.Body)

	// No preference rows: every async channel defaults to enabled.
	f.drain(t)
	require.Equal(t, 3, f.recorder.total())
}

func TestCreateMinPriorityGatesChannel(t *testing.T) {
	f := newFixture(t)
	high := domain.PriorityHigh
	f.seedPreference(t, 9, domain.ChannelEmail, true, &high, nil)

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{
		UserID:   9,
		Key:      "messaging.announcement.sent",
		Priority: domain.PriorityNormal,
	})
	require.NoError(t, err)
	f.drain(t)
	require.Empty(t, f.recorder.byKind(taskqueue.KindSendEmail))

	_, err = f.svc.Create(context.Background(), domain.CreateRequest{
		UserID:   9,
		Key:      "messaging.announcement.sent",
		Priority: domain.PriorityCritical,
	})
	require.NoError(t, err)
	f.drain(t)
	require.Len(t, f.recorder.byKind(taskqueue.KindSendEmail), 1)
}

func TestCreateQuietHoursSuppressesUnlessBypassed(t *testing.T) {
	f := newFixture(t)
	// 23:10 local to the fixture clock, inside a 22:00-06:00 window that
	// wraps midnight.
	f.clock.Advance(13*time.Hour + 40*time.Minute)
	f.seedPreference(t, 11, domain.ChannelPush, true, nil, datatypes.JSONMap{
		"quiet_start": "22:00",
		"quiet_end":   "06:00",
	})

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{
		UserID:   11,
		Key:      "messaging.announcement.sent",
		Priority: domain.PriorityNormal,
	})
	require.NoError(t, err)
	f.drain(t)
	require.Empty(t, f.recorder.byKind(taskqueue.KindSendPush))

	// Critical bypasses quiet hours per the default config.
	_, err = f.svc.Create(context.Background(), domain.CreateRequest{
		UserID:   11,
		Key:      "messaging.announcement.sent",
		Priority: domain.PriorityCritical,
	})
	require.NoError(t, err)
	f.drain(t)
	require.Len(t, f.recorder.byKind(taskqueue.KindSendPush), 1)
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{UserID: 0, Key: "x"})
	require.ErrorIs(t, err, domain.ErrInvalidUser)

	_, err = f.svc.Create(context.Background(), domain.CreateRequest{UserID: 1, Key: "  "})
	require.ErrorIs(t, err, domain.ErrInvalidKey)

	_, err = f.svc.Create(context.Background(), domain.CreateRequest{
		UserID: 1, Key: "x", Priority: domain.Priority("shouty"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidPriority)
}

func TestBroadcastCreatesOnePerRecipient(t *testing.T) {
	f := newFixture(t)
	f.dir.recipients = []int64{21, 22, 23}

	res, err := f.svc.Broadcast(context.Background(), domain.BroadcastRequest{
		SchoolID: 31,
		Key:      "messaging.announcement.sent",
		Audience: "role:parent",
		Data:     map[string]any{"title": "Parent meeting"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Recipients)
	require.Equal(t, 3, res.Created)
	require.Equal(t, 0, res.Failed)

	var count int64
	require.NoError(t, f.db.Model(&domain.Notification{}).Count(&count).Error)
	require.EqualValues(t, 3, count)
	f.drain(t)
}

func TestBroadcastIsolatesRecipientFailures(t *testing.T) {
	f := newFixture(t)
	f.dir.recipients = []int64{21, 0, 23}

	res, err := f.svc.Broadcast(context.Background(), domain.BroadcastRequest{
		SchoolID: 31,
		Key:      "messaging.announcement.sent",
		Audience: "role:parent",
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Recipients)
	require.Equal(t, 2, res.Created)
	require.Equal(t, 1, res.Failed)

	// The bad recipient is skipped, the ones after it still get their row.
	var users []int64
	require.NoError(t, f.db.Model(&domain.Notification{}).Order("user_id asc").Pluck("user_id", &users).Error)
	require.Equal(t, []int64{21, 23}, users)
	f.drain(t)
}

func TestBroadcastInvalidAudience(t *testing.T) {
	f := newFixture(t)
	f.dir.err = directorydomain.ErrInvalidAudience

	_, err := f.svc.Broadcast(context.Background(), domain.BroadcastRequest{
		SchoolID: 31,
		Key:      "messaging.announcement.sent",
		Audience: "everyone",
	})
	require.ErrorIs(t, err, domain.ErrInvalidAudience)
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), 7)

	first, err := f.svc.Create(context.Background(), domain.CreateRequest{UserID: 7, Key: "a"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Create(context.Background(), domain.CreateRequest{UserID: 7, Key: "b"})
	require.NoError(t, err)

	unread, err := f.svc.UnreadCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, unread)

	require.NoError(t, f.svc.MarkRead(ctx, first.ID))
	unread, err = f.svc.UnreadCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)

	// Already read, and a foreign user's row both come back not found.
	require.ErrorIs(t, f.svc.MarkRead(ctx, first.ID), domain.ErrNotFound)
	otherCtx := tenantctx.WithUserID(context.Background(), 8)
	require.ErrorIs(t, f.svc.MarkRead(otherCtx, first.ID), domain.ErrNotFound)

	affected, err := f.svc.MarkAllRead(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)
	f.drain(t)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), 7)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Create(context.Background(), domain.CreateRequest{UserID: 7, Key: "messaging.announcement.sent"})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	f.drain(t)

	var seen []snowflake.ID
	req := domain.ListRequest{}
	req.PageSize = 2
	for {
		resp, err := f.svc.List(ctx, req)
		require.NoError(t, err)
		for _, n := range resp.Notifications {
			seen = append(seen, n.ID)
		}
		if !resp.HasMore {
			break
		}
		require.LessOrEqual(t, len(resp.Notifications), 2)
		req.PageToken = resp.NextPageToken
	}

	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		require.Greater(t, seen[i-1].Int64(), seen[i].Int64(), "expected newest first with no duplicates")
	}

	badReq := domain.ListRequest{}
	badReq.PageToken = "not-base64!!"
	_, err := f.svc.List(ctx, badReq)
	require.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestUpdatePreferenceUpserts(t *testing.T) {
	f := newFixture(t)
	ctx := tenantctx.WithUserID(context.Background(), 12)

	_, err := f.svc.UpdatePreference(ctx, domain.UpdatePreferenceRequest{
		Channel: domain.ChannelEmail,
		Enabled: true,
	})
	require.NoError(t, err)

	high := domain.PriorityHigh
	updated, err := f.svc.UpdatePreference(ctx, domain.UpdatePreferenceRequest{
		Channel:     domain.ChannelEmail,
		Enabled:     false,
		MinPriority: &high,
	})
	require.NoError(t, err)
	require.False(t, updated.Enabled)

	prefs, err := f.svc.Preferences(ctx)
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	require.Equal(t, domain.ChannelEmail, prefs[0].Channel)
	require.False(t, prefs[0].Enabled)
	require.NotNil(t, prefs[0].MinPriority)
	require.Equal(t, domain.PriorityHigh, *prefs[0].MinPriority)

	_, err = f.svc.UpdatePreference(ctx, domain.UpdatePreferenceRequest{Channel: domain.Channel("fax")})
	require.ErrorIs(t, err, domain.ErrInvalidChannel)
}

func TestSaveTemplateInsertThenUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.SaveTemplate(ctx, domain.SaveTemplateRequest{
		Key:           "finance.invoice.issued",
		TitleTemplate: "Invoice {{amount}}",
		IsActive:      true,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	updated, err := f.svc.SaveTemplate(ctx, domain.SaveTemplateRequest{
		Key:           "finance.invoice.issued",
		TitleTemplate: "Invoice {{amount}} is due",
		IsActive:      false,
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)
	require.False(t, updated.IsActive)

	templates, err := f.svc.ListTemplates(ctx, nil)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	require.Equal(t, "Invoice {{amount}} is due", templates[0].TitleTemplate)

	// Deactivated templates no longer resolve: Create falls back to the key.
	n, err := f.svc.Create(ctx, domain.CreateRequest{UserID: 2, Key: "finance.invoice.issued"})
	require.NoError(t, err)
	require.Equal(t, "finance.invoice.issued", n.Title)
	f.drain(t)
}

// blindFindRepo misses its first template lookups, mimicking a concurrent
// writer inserting the same (key, school_id) between lookup and insert.
type blindFindRepo struct {
	domain.Repository
	misses int
}

func (r *blindFindRepo) FindTemplateByKey(ctx context.Context, db *gorm.DB, key string, schoolID *int64) (*domain.NotificationTemplate, error) {
	if r.misses > 0 {
		r.misses--
		return nil, nil
	}
	return r.Repository.FindTemplateByKey(ctx, db, key, schoolID)
}

func TestSaveTemplateRecoversFromInsertRace(t *testing.T) {
	f := newFixture(t)
	schoolID := int64(31)
	f.seedTemplate(t, "finance.invoice.issued", &schoolID, "Invoice {{amount}}", nil)

	svc := service.New(service.Params{
		DB:        f.db,
		Log:       zap.NewNop(),
		GenID:     f.genID,
		Repo:      &blindFindRepo{Repository: repository.Provide(), misses: 1},
		Queue:     f.queue,
		Directory: f.dir,
		Clock:     f.clock,
		Metrics:   monitoring.NewCollector(),
		CfgHolder: config.NewStaticNotificationConfigHolder(config.DefaultNotificationConfig()),
		Templates: cache.NewTemplateResolverCache(),
	})

	// The duplicate insert resolves into an update of the winner's row.
	saved, err := svc.SaveTemplate(context.Background(), domain.SaveTemplateRequest{
		Key:           "finance.invoice.issued",
		SchoolID:      &schoolID,
		TitleTemplate: "Invoice {{amount}} is due",
		IsActive:      true,
	})
	require.NoError(t, err)
	require.Equal(t, "Invoice {{amount}} is due", saved.TitleTemplate)

	var count int64
	require.NoError(t, f.db.Model(&domain.NotificationTemplate{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCreateSurvivesBrokenTemplateTable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Migrator().DropTable(&domain.NotificationTemplate{}))

	n, err := f.svc.Create(context.Background(), domain.CreateRequest{UserID: 6, Key: "finance.invoice.issued"})
	require.NoError(t, err)
	require.Equal(t, "finance.invoice.issued", n.Title)
	f.drain(t)
}

var errBoom = errors.New("boom")

func TestBroadcastDirectoryOutage(t *testing.T) {
	f := newFixture(t)
	f.dir.err = errBoom

	_, err := f.svc.Broadcast(context.Background(), domain.BroadcastRequest{
		SchoolID: 31,
		Key:      "messaging.announcement.sent",
		Audience: "role:parent",
	})
	require.ErrorIs(t, err, errBoom)
}
