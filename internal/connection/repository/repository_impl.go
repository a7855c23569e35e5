package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	connectiondomain "github.com/metricdock/metricdock/internal/connection/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() connectiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, conn *connectiondomain.Connection) error {
	return db.WithContext(ctx).Create(conn).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, conn *connectiondomain.Connection) error {
	return db.WithContext(ctx).Save(conn).Error
}

func (r *repo) FindByOrgProvider(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider connectiondomain.Provider) (*connectiondomain.Connection, error) {
	var conn connectiondomain.Connection
	err := db.WithContext(ctx).
		Where("org_id = ? AND provider = ?", orgID, provider).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, connectiondomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *repo) FindByOrgProviderForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider connectiondomain.Provider) (*connectiondomain.Connection, error) {
	tx := db.WithContext(ctx)
	// SQLite locks the whole database per transaction and rejects FOR UPDATE.
	if db.Dialector.Name() != "sqlite" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var conn connectiondomain.Connection
	err := tx.
		Where("org_id = ? AND provider = ?", orgID, provider).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, connectiondomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, provider connectiondomain.Provider, statuses []connectiondomain.Status) ([]connectiondomain.Connection, error) {
	var conns []connectiondomain.Connection
	err := db.WithContext(ctx).
		Where("provider = ? AND status IN ?", provider, statuses).
		Order("org_id ASC").
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *repo) InsertRun(ctx context.Context, db *gorm.DB, run *connectiondomain.SyncRun) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) UpdateRun(ctx context.Context, db *gorm.DB, run *connectiondomain.SyncRun) error {
	return db.WithContext(ctx).Save(run).Error
}

func (r *repo) ListRuns(ctx context.Context, db *gorm.DB, orgID snowflake.ID, provider connectiondomain.Provider, limit int) ([]connectiondomain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []connectiondomain.SyncRun
	err := db.WithContext(ctx).
		Where("org_id = ? AND provider = ?", orgID, provider).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
