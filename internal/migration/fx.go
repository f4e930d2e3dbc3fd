package migration

import (
	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/skolara/skolara/internal/audit/domain"
	"github.com/skolara/skolara/internal/config"
	directorydomain "github.com/skolara/skolara/internal/directory/domain"
	notificationdomain "github.com/skolara/skolara/internal/notification/domain"
	"github.com/skolara/skolara/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql are dev/test dialects; the versioned SQL is
			// postgres-only, so let gorm derive the schema there.
			if err := conn.AutoMigrate(
				&directorydomain.User{},
				&directorydomain.Guardianship{},
				&notificationdomain.Notification{},
				&notificationdomain.NotificationPreference{},
				&notificationdomain.NotificationTemplate{},
				&auditdomain.AuditLog{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureDefaultTemplates(conn, node)
	}),
)
