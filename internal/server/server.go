package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/skolara/skolara/internal/audit/domain"
	"github.com/skolara/skolara/internal/config"
	"github.com/skolara/skolara/internal/events"
	"github.com/skolara/skolara/internal/monitoring"
	notificationdomain "github.com/skolara/skolara/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, metrics *monitoring.Collector) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log, metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	r.GET("/internal/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, metrics.Snapshot())
	})

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	genID           *snowflake.Node
	notificationSvc notificationdomain.Service
	auditSvc        auditdomain.Service
	bus             *events.Bus
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	GenID           *snowflake.Node
	NotificationSvc notificationdomain.Service
	AuditSvc        auditdomain.Service
	Bus             *events.Bus
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		genID:           p.GenID,
		notificationSvc: p.NotificationSvc,
		auditSvc:        p.AuditSvc,
		bus:             p.Bus,
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
	s.RegisterAdminRoutes()
	s.RegisterDevRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api", TenantContext())

	notifications := api.Group("/notifications", RequireUser())
	{
		notifications.GET("", s.ListNotifications)
		notifications.GET("/unread_count", s.UnreadCount)
		notifications.POST("/:id/read", s.MarkRead)
		notifications.POST("/read_all", s.MarkAllRead)
	}

	preferences := api.Group("/notification_preferences", RequireUser())
	{
		preferences.GET("", s.ListPreferences)
		preferences.PUT("/:channel", s.UpdatePreference)
	}
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin", TenantContext())

	admin.POST("/notifications", s.CreateNotification)
	admin.POST("/notifications/broadcast", RequireSchool(), s.Broadcast)

	admin.GET("/notification_templates", s.ListTemplates)
	admin.PUT("/notification_templates/:key", s.SaveTemplate)

	admin.GET("/audit_logs", RequireSchool(), s.ListAuditLogs)
}

// RegisterDevRoutes exposes an event injection endpoint for local testing. It
// is never mounted in production.
func (s *Server) RegisterDevRoutes() {
	if s.cfg.Environment == "production" {
		return
	}
	dev := s.engine.Group("/dev", TenantContext())
	dev.POST("/events", s.PublishEvent)
}
