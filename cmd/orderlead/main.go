package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderlead/internal/config"
	"github.com/smallbiznis/orderlead/internal/migration"
	"github.com/smallbiznis/orderlead/internal/observability"
	"github.com/smallbiznis/orderlead/internal/server"
	"github.com/smallbiznis/orderlead/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		// Webhook ingestion and CRM sync
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
