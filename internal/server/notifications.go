package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	notificationdomain "github.com/skolara/skolara/internal/notification/domain"
	"github.com/skolara/skolara/pkg/db/pagination"
)

type listNotificationsQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int    `form:"page_size"`
	Category   string `form:"category"`
	UnreadOnly bool   `form:"unread_only"`
}

func (s *Server) ListNotifications(c *gin.Context) {
	var query listNotificationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.notificationSvc.List(c.Request.Context(), notificationdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Category:   strings.TrimSpace(query.Category),
		UnreadOnly: query.UnreadOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Notifications, "page_info": resp.PageInfo})
}

func (s *Server) UnreadCount(c *gin.Context) {
	count, err := s.notificationSvc.UnreadCount(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (s *Server) MarkRead(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid notification id"))
		return
	}

	if err := s.notificationSvc.MarkRead(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) MarkAllRead(c *gin.Context) {
	affected, err := s.notificationSvc.MarkAllRead(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": affected})
}

type createNotificationRequest struct {
	UserID    int64          `json:"user_id"`
	SchoolID  *int64         `json:"school_id"`
	Key       string         `json:"key"`
	Type      string         `json:"type"`
	Category  string         `json:"category"`
	Data      map[string]any `json:"data"`
	RequestID *int64         `json:"request_id"`
	Priority  string         `json:"priority"`
}

func (s *Server) CreateNotification(c *gin.Context) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	n, err := s.notificationSvc.Create(c.Request.Context(), notificationdomain.CreateRequest{
		UserID:    req.UserID,
		SchoolID:  req.SchoolID,
		Key:       req.Key,
		Type:      req.Type,
		Category:  req.Category,
		Data:      req.Data,
		RequestID: req.RequestID,
		Priority:  notificationdomain.Priority(req.Priority),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": n})
}

type broadcastRequest struct {
	SchoolID int64          `json:"school_id"`
	Key      string         `json:"key"`
	Type     string         `json:"type"`
	Category string         `json:"category"`
	Data     map[string]any `json:"data"`
	Priority string         `json:"priority"`
	Audience string         `json:"audience"`
}

func (s *Server) Broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.notificationSvc.Broadcast(c.Request.Context(), notificationdomain.BroadcastRequest{
		SchoolID: req.SchoolID,
		Key:      req.Key,
		Type:     req.Type,
		Category: req.Category,
		Data:     req.Data,
		Priority: notificationdomain.Priority(req.Priority),
		Audience: req.Audience,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) ListPreferences(c *gin.Context) {
	prefs, err := s.notificationSvc.Preferences(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": prefs})
}

type updatePreferenceRequest struct {
	Enabled     bool           `json:"enabled"`
	MinPriority *string        `json:"min_priority"`
	Config      map[string]any `json:"config"`
}

func (s *Server) UpdatePreference(c *gin.Context) {
	var req updatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var minPriority *notificationdomain.Priority
	if req.MinPriority != nil {
		p := notificationdomain.Priority(strings.TrimSpace(*req.MinPriority))
		minPriority = &p
	}

	pref, err := s.notificationSvc.UpdatePreference(c.Request.Context(), notificationdomain.UpdatePreferenceRequest{
		Channel:     notificationdomain.Channel(strings.TrimSpace(c.Param("channel"))),
		Enabled:     req.Enabled,
		MinPriority: minPriority,
		Config:      req.Config,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pref})
}
