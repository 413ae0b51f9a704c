package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/estatebill/internal/clock"
	"github.com/smallbiznis/estatebill/internal/config"
	"github.com/smallbiznis/estatebill/internal/migration"
	"github.com/smallbiznis/estatebill/internal/observability"
	"github.com/smallbiznis/estatebill/internal/seed"
	"github.com/smallbiznis/estatebill/internal/server"
	"github.com/smallbiznis/estatebill/pkg/db"
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
		clock.Module,

		server.Module,
		seed.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
