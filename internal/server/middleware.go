package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skolara/skolara/pkg/tenantctx"
	"go.uber.org/zap"

	"github.com/skolara/skolara/internal/monitoring"
)

const (
	HeaderSchool = "X-School-ID"
	HeaderUser   = "X-User-ID"
)

// RequestLogger emits one structured line per request and feeds the request
// histogram.
func RequestLogger(log *zap.Logger, metrics *monitoring.Collector) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		metrics.Observe("http_request_duration_ms", float64(elapsed.Milliseconds()), map[string]string{
			"method": c.Request.Method,
			"path":   path,
			"status": strconv.Itoa(c.Writer.Status()),
		})

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", elapsed),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= 500 {
			log.Error("request", fields...)
		} else {
			log.Info("request", fields...)
		}
	}
}

// TenantContext lifts the identity headers into the request context. In a full
// deployment these are stamped by the auth gateway after session validation,
// so they are trusted here.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if raw := strings.TrimSpace(c.GetHeader(HeaderSchool)); raw != "" {
			schoolID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || schoolID <= 0 {
				AbortWithError(c, newValidationError("school_id", "invalid_school_id", "invalid school id header"))
				return
			}
			ctx = tenantctx.WithSchoolID(ctx, schoolID)
		}
		if raw := strings.TrimSpace(c.GetHeader(HeaderUser)); raw != "" {
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || userID <= 0 {
				AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user id header"))
				return
			}
			ctx = tenantctx.WithUserID(ctx, userID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := tenantctx.UserIDFromContext(c.Request.Context()); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func RequireSchool() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := tenantctx.SchoolIDFromContext(c.Request.Context()); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
