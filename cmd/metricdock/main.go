package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/metricdock/metricdock/internal/clock"
	"github.com/metricdock/metricdock/internal/migration"
	"github.com/metricdock/metricdock/internal/observability"
	"github.com/metricdock/metricdock/internal/scheduler"
	"github.com/metricdock/metricdock/internal/server"
	"github.com/metricdock/metricdock/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// HTTP surface plus the domain modules it serves
		server.Module,

		// Background sweeps and startup schema
		scheduler.Module,
		migration.Module,
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
