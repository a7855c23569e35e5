package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, conn *Connection) error
	Update(ctx context.Context, db *gorm.DB, conn *Connection) error
	FindByOrgProvider(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider Provider) (*Connection, error)
	FindByOrgProviderForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider Provider) (*Connection, error)
	ListByStatus(ctx context.Context, db *gorm.DB, provider Provider, statuses []Status) ([]Connection, error)
	InsertRun(ctx context.Context, db *gorm.DB, run *SyncRun) error
	UpdateRun(ctx context.Context, db *gorm.DB, run *SyncRun) error
	ListRuns(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider Provider, limit int) ([]SyncRun, error)
}
