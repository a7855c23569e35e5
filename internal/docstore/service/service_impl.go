package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/metricdock/metricdock/internal/docstore/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Store {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("docstore.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, collection, docID string) (*domain.Document, error) {
	return s.repo.Get(ctx, s.db, collection, docID)
}

func (s *Service) QueryByOrganization(ctx context.Context, collection string, orgID snowflake.ID) ([]domain.Document, error) {
	return s.repo.ListByOrg(ctx, s.db, collection, orgID)
}

func (s *Service) CountByOrganization(ctx context.Context, collection string, orgID snowflake.ID) (int64, error) {
	return s.repo.CountByOrg(ctx, s.db, collection, orgID)
}

func (s *Service) CommitBatch(ctx context.Context, ops []domain.Operation) error {
	if err := s.repo.CommitBatch(ctx, s.db, ops); err != nil {
		s.log.Error("batch commit failed",
			zap.Int("operations", len(ops)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) PurgeOrganization(ctx context.Context, collection string, orgID snowflake.ID) (int64, error) {
	deleted, err := s.repo.DeleteByOrg(ctx, s.db, collection, orgID)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("collection purged",
			zap.String("collection", collection),
			zap.String("org_id", orgID.String()),
			zap.Int64("deleted", deleted),
		)
	}
	return deleted, nil
}
