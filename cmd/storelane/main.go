package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/storelane/storelane/internal/clock"
	"github.com/storelane/storelane/internal/config"
	"github.com/storelane/storelane/internal/gate"
	"github.com/storelane/storelane/internal/invoice"
	"github.com/storelane/storelane/internal/logger"
	"github.com/storelane/storelane/internal/migration"
	"github.com/storelane/storelane/internal/observability"
	"github.com/storelane/storelane/internal/server"
	"github.com/storelane/storelane/internal/subscription"
	"github.com/storelane/storelane/internal/tenant"
	"github.com/storelane/storelane/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		tenant.Module,
		subscription.Module,
		gate.Module,
		invoice.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
