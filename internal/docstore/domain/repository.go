package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("not_found")
	ErrBatchTooLarge = errors.New("batch_too_large")
)

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, collection, docID string) (*Document, error)
	ListByOrg(ctx context.Context, db *gorm.DB, collection string, orgID snowflake.ID) ([]Document, error)
	CountByOrg(ctx context.Context, db *gorm.DB, collection string, orgID snowflake.ID) (int64, error)
	CommitBatch(ctx context.Context, db *gorm.DB, ops []Operation) error
	DeleteByOrg(ctx context.Context, db *gorm.DB, collection string, orgID snowflake.ID) (int64, error)
}
