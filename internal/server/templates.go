package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	notificationdomain "github.com/skolara/skolara/internal/notification/domain"
	"github.com/skolara/skolara/pkg/tenantctx"
)

func (s *Server) ListTemplates(c *gin.Context) {
	var schoolID *int64
	if id, ok := tenantctx.SchoolIDFromContext(c.Request.Context()); ok {
		schoolID = &id
	}

	templates, err := s.notificationSvc.ListTemplates(c.Request.Context(), schoolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": templates})
}

type saveTemplateRequest struct {
	DefaultChannel *string `json:"default_channel"`
	TitleTemplate  string  `json:"title_template"`
	BodyTemplate   *string `json:"body_template"`
	IsActive       bool    `json:"is_active"`
	// Global templates are saved without a school context; a tenant header
	// scopes the template to that school.
}

func (s *Server) SaveTemplate(c *gin.Context) {
	var req saveTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var schoolID *int64
	if id, ok := tenantctx.SchoolIDFromContext(c.Request.Context()); ok {
		schoolID = &id
	}

	var defaultChannel *notificationdomain.Channel
	if req.DefaultChannel != nil {
		ch := notificationdomain.Channel(strings.TrimSpace(*req.DefaultChannel))
		defaultChannel = &ch
	}

	tmpl, err := s.notificationSvc.SaveTemplate(c.Request.Context(), notificationdomain.SaveTemplateRequest{
		Key:            strings.TrimSpace(c.Param("key")),
		SchoolID:       schoolID,
		DefaultChannel: defaultChannel,
		TitleTemplate:  req.TitleTemplate,
		BodyTemplate:   req.BodyTemplate,
		IsActive:       req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tmpl})
}
