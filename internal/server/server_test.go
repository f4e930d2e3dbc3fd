package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/skolara/skolara/internal/audit/domain"
	"github.com/skolara/skolara/internal/config"
	"github.com/skolara/skolara/internal/events"
	"github.com/skolara/skolara/internal/monitoring"
	notificationdomain "github.com/skolara/skolara/internal/notification/domain"
	"github.com/skolara/skolara/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNotificationService struct {
	notificationdomain.Service

	createCalls    int
	lastCreate     notificationdomain.CreateRequest
	createErr      error
	broadcastErr   error
	unreadCount    int64
	markReadErr    error
	listSeenUserID int64
}

func (f *fakeNotificationService) Create(ctx context.Context, req notificationdomain.CreateRequest) (notificationdomain.Notification, error) {
	f.createCalls++
	f.lastCreate = req
	if f.createErr != nil {
		return notificationdomain.Notification{}, f.createErr
	}
	return notificationdomain.Notification{ID: snowflake.ID(1), UserID: req.UserID, Title: req.Key}, nil
}

func (f *fakeNotificationService) Broadcast(ctx context.Context, req notificationdomain.BroadcastRequest) (notificationdomain.BroadcastResult, error) {
	if f.broadcastErr != nil {
		return notificationdomain.BroadcastResult{}, f.broadcastErr
	}
	return notificationdomain.BroadcastResult{Recipients: 2, Created: 2}, nil
}

func (f *fakeNotificationService) List(ctx context.Context, req notificationdomain.ListRequest) (notificationdomain.ListResponse, error) {
	if id, ok := tenantctx.UserIDFromContext(ctx); ok {
		f.listSeenUserID = id
	}
	return notificationdomain.ListResponse{}, nil
}

func (f *fakeNotificationService) UnreadCount(ctx context.Context) (int64, error) {
	return f.unreadCount, nil
}

func (f *fakeNotificationService) MarkRead(ctx context.Context, id snowflake.ID) error {
	return f.markReadErr
}

type fakeAuditService struct {
	auditdomain.Service

	listCalls int
}

func (f *fakeAuditService) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	f.listCalls++
	if _, ok := tenantctx.SchoolIDFromContext(ctx); !ok {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidSchool
	}
	return auditdomain.ListResponse{}, nil
}

func newTestServer(t *testing.T, notif *fakeNotificationService, audit *fakeAuditService) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)

	engine := NewEngine(zap.NewNop(), monitoring.NewCollector())
	srv := NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{Environment: "test"},
		GenID:           genID,
		NotificationSvc: notif,
		AuditSvc:        audit,
		Bus:             events.NewBus(zap.NewNop(), monitoring.NewCollector()),
	})
	registerRoutes(srv)
	return srv
}

func doRequest(srv *Server, method, path string, headers map[string]string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewBuffer(encoded)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeNotificationService{}, &fakeAuditService{})
	rec := doRequest(srv, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListNotificationsRequiresUser(t *testing.T) {
	notif := &fakeNotificationService{}
	srv := newTestServer(t, notif, &fakeAuditService{})

	rec := doRequest(srv, http.MethodGet, "/api/notifications", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/notifications", map[string]string{HeaderUser: "7"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 7, notif.listSeenUserID)
}

func TestTenantContextRejectsBadHeaders(t *testing.T) {
	srv := newTestServer(t, &fakeNotificationService{}, &fakeAuditService{})

	rec := doRequest(srv, http.MethodGet, "/api/notifications", map[string]string{HeaderUser: "abc"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/notifications", map[string]string{
		HeaderUser:   "7",
		HeaderSchool: "-1",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnreadCount(t *testing.T) {
	notif := &fakeNotificationService{unreadCount: 4}
	srv := newTestServer(t, notif, &fakeAuditService{})

	rec := doRequest(srv, http.MethodGet, "/api/notifications/unread_count", map[string]string{HeaderUser: "7"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 4, resp["unread_count"])
}

func TestMarkReadErrors(t *testing.T) {
	notif := &fakeNotificationService{markReadErr: notificationdomain.ErrNotFound}
	srv := newTestServer(t, notif, &fakeAuditService{})
	headers := map[string]string{HeaderUser: "7"}

	rec := doRequest(srv, http.MethodPost, "/api/notifications/zzz/read", headers, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/notifications/123456789/read", headers, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateNotificationAdmin(t *testing.T) {
	notif := &fakeNotificationService{}
	srv := newTestServer(t, notif, &fakeAuditService{})

	rec := doRequest(srv, http.MethodPost, "/admin/notifications", nil, map[string]any{
		"user_id": 7,
		"key":     "finance.invoice.issued",
		"data":    map[string]any{"amount": "100.00"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 1, notif.createCalls)
	require.Equal(t, "finance.invoice.issued", notif.lastCreate.Key)

	notif.createErr = notificationdomain.ErrInvalidPriority
	rec = doRequest(srv, http.MethodPost, "/admin/notifications", nil, map[string]any{
		"user_id":  7,
		"key":      "x",
		"priority": "shouty",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBroadcastBusyMapsToConflict(t *testing.T) {
	notif := &fakeNotificationService{broadcastErr: notificationdomain.ErrBroadcastBusy}
	srv := newTestServer(t, notif, &fakeAuditService{})

	rec := doRequest(srv, http.MethodPost, "/admin/notifications/broadcast",
		map[string]string{HeaderSchool: "31"},
		map[string]any{"school_id": 31, "key": "x", "audience": "role:parent"},
	)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuditLogsRequireSchool(t *testing.T) {
	audit := &fakeAuditService{}
	srv := newTestServer(t, &fakeNotificationService{}, audit)

	rec := doRequest(srv, http.MethodGet, "/admin/audit_logs", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, audit.listCalls)

	rec = doRequest(srv, http.MethodGet, "/admin/audit_logs", map[string]string{HeaderSchool: "31"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, audit.listCalls)

	rec = doRequest(srv, http.MethodGet, "/admin/audit_logs?start_at=notatime", map[string]string{HeaderSchool: "31"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDevPublishEvent(t *testing.T) {
	srv := newTestServer(t, &fakeNotificationService{}, &fakeAuditService{})

	var received []events.Event
	srv.bus.Subscribe("finance.invoice.issued", "capture", func(ctx context.Context, evt events.Event) error {
		received = append(received, evt)
		return nil
	})

	rec := doRequest(srv, http.MethodPost, "/dev/events",
		map[string]string{HeaderSchool: "31", HeaderUser: "7"},
		map[string]any{"name": "finance.invoice.issued", "entity": "invoice"},
	)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, received, 1)
	require.Equal(t, int64(31), *received[0].SchoolID)
	require.Equal(t, int64(7), *received[0].UserID)

	rec = doRequest(srv, http.MethodPost, "/dev/events", nil, map[string]any{"name": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
