package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/skolara/skolara/internal/audit"
	"github.com/skolara/skolara/internal/clock"
	"github.com/skolara/skolara/internal/config"
	"github.com/skolara/skolara/internal/directory"
	"github.com/skolara/skolara/internal/events"
	"github.com/skolara/skolara/internal/logger"
	"github.com/skolara/skolara/internal/migration"
	"github.com/skolara/skolara/internal/monitoring"
	"github.com/skolara/skolara/internal/notification"
	"github.com/skolara/skolara/internal/providers"
	"github.com/skolara/skolara/internal/ratelimit"
	"github.com/skolara/skolara/internal/server"
	"github.com/skolara/skolara/internal/taskqueue"
	"github.com/skolara/skolara/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		monitoring.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Event and task plumbing
		events.Module,
		taskqueue.Module,
		ratelimit.Module,

		// Functional domains
		providers.Module,
		directory.Module,
		notification.Module,
		audit.Module,

		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
