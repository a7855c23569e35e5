package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	docstoredomain "github.com/metricdock/metricdock/internal/docstore/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() docstoredomain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, collection, docID string) (*docstoredomain.Document, error) {
	var doc docstoredomain.Document
	err := db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, docID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, docstoredomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repo) ListByOrg(ctx context.Context, db *gorm.DB, collection string, orgID snowflake.ID) ([]docstoredomain.Document, error) {
	var docs []docstoredomain.Document
	err := db.WithContext(ctx).
		Where("collection = ? AND org_id = ?", collection, orgID).
		Order("doc_id ASC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *repo) CountByOrg(ctx context.Context, db *gorm.DB, collection string, orgID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&docstoredomain.Document{}).
		Where("collection = ? AND org_id = ?", collection, orgID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CommitBatch applies every operation inside a single transaction. A batch
// over the limit is rejected before any row is touched.
func (r *repo) CommitBatch(ctx context.Context, db *gorm.DB, ops []docstoredomain.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > docstoredomain.BatchLimit {
		return fmt.Errorf("%w: %d operations exceed limit %d", docstoredomain.ErrBatchTooLarge, len(ops), docstoredomain.BatchLimit)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			switch op.Type {
			case docstoredomain.OperationUpsert:
				doc := docstoredomain.Document{
					Collection: op.Collection,
					DocID:      op.DocID,
					OrgID:      op.OrgID,
					Body:       op.Body,
				}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"org_id", "body", "updated_at"}),
				}).Create(&doc).Error; err != nil {
					return err
				}
			case docstoredomain.OperationDelete:
				if err := tx.
					Where("collection = ? AND doc_id = ?", op.Collection, op.DocID).
					Delete(&docstoredomain.Document{}).Error; err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown batch operation %q", op.Type)
			}
		}
		return nil
	})
}

func (r *repo) DeleteByOrg(ctx context.Context, db *gorm.DB, collection string, orgID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).
		Where("collection = ? AND org_id = ?", collection, orgID).
		Delete(&docstoredomain.Document{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
