package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skolara/skolara/internal/events"
	"github.com/skolara/skolara/pkg/tenantctx"
)

type publishEventRequest struct {
	Name     string         `json:"name"`
	SchoolID *int64         `json:"school_id"`
	UserID   *int64         `json:"user_id"`
	Entity   string         `json:"entity"`
	EntityID *int64         `json:"entity_id"`
	Data     map[string]any `json:"data"`
}

// PublishEvent injects a domain event through the bus, exactly as a producing
// service would. Dev only.
func (s *Server) PublishEvent(c *gin.Context) {
	var req publishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		AbortWithError(c, newValidationError("name", "required", "event name is required"))
		return
	}

	ctx := c.Request.Context()
	schoolID := req.SchoolID
	if schoolID == nil {
		if id, ok := tenantctx.SchoolIDFromContext(ctx); ok {
			schoolID = &id
		}
	}
	userID := req.UserID
	if userID == nil {
		if id, ok := tenantctx.UserIDFromContext(ctx); ok {
			userID = &id
		}
	}

	evt := events.New(strings.TrimSpace(req.Name), events.Options{
		SchoolID: schoolID,
		UserID:   userID,
		Entity:   req.Entity,
		EntityID: req.EntityID,
		Data:     req.Data,
		IP:       c.ClientIP(),
	})
	s.bus.Publish(ctx, evt)

	c.JSON(http.StatusAccepted, gin.H{"status": "published", "event": evt.Name})
}
