package migration

import (
	connectiondomain "github.com/metricdock/metricdock/internal/connection/domain"
	docstoredomain "github.com/metricdock/metricdock/internal/docstore/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		// Versioned SQL migrations target postgres. Other dialects are
		// development conveniences and take the gorm schema directly.
		if conn.Dialector.Name() != "postgres" {
			return conn.AutoMigrate(
				&connectiondomain.Connection{},
				&connectiondomain.SyncRun{},
				&docstoredomain.Document{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
