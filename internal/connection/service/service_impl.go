package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/metricdock/metricdock/internal/clock"
	"github.com/metricdock/metricdock/internal/config"
	"github.com/metricdock/metricdock/internal/connection/domain"
	"github.com/metricdock/metricdock/internal/orgcontext"
	pkgdb "github.com/metricdock/metricdock/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	lease time.Duration
	repo  domain.Repository
}

func New(p Params) domain.Service {
	lease := time.Duration(p.Cfg.SyncLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 30 * time.Minute
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("connection.service"),
		genID: p.GenID,
		clock: p.Clock,
		lease: lease,
		repo:  p.Repo,
	}
}

func (s *Service) Connect(ctx context.Context, req domain.ConnectRequest) (domain.Connection, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Connection{}, domain.ErrInvalidOrganization
	}
	if req.Provider != domain.ProviderStripe {
		return domain.Connection{}, domain.ErrUnsupportedProvider
	}

	platformAccountID := strings.TrimSpace(req.PlatformAccountID)
	accessToken := strings.TrimSpace(req.AccessToken)
	legacyAPIKey := strings.TrimSpace(req.LegacyAPIKey)
	if platformAccountID == "" && accessToken == "" && legacyAPIKey == "" {
		return domain.Connection{}, domain.ErrMissingCredentials
	}

	now := s.clock.Now()

	existing, err := s.repo.FindByOrgProvider(ctx, s.db, orgID, req.Provider)
	if err != nil && err != domain.ErrNotFound {
		return domain.Connection{}, err
	}

	if existing != nil {
		existing.PlatformAccountID = optional(platformAccountID)
		existing.AccessToken = optional(accessToken)
		existing.LegacyAPIKey = optional(legacyAPIKey)
		existing.ErrorMessage = nil
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, existing); err != nil {
			return domain.Connection{}, err
		}
		s.log.Info("connection credentials updated",
			zap.String("org_id", orgID.String()),
			zap.String("provider", string(req.Provider)),
		)
		return *existing, nil
	}

	conn := domain.Connection{
		ID:                s.genID.Generate(),
		OrgID:             orgID,
		Provider:          req.Provider,
		Status:            domain.StatusDisconnected,
		PlatformAccountID: optional(platformAccountID),
		AccessToken:       optional(accessToken),
		LegacyAPIKey:      optional(legacyAPIKey),
		LastSyncResults:   datatypes.JSONMap{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, s.db, &conn); err != nil {
		// Two concurrent connects race on the (org, provider) unique
		// index; the loser retries as an update.
		if pkgdb.IsDuplicateKeyErr(err) {
			return s.Connect(ctx, req)
		}
		return domain.Connection{}, err
	}

	s.log.Info("connection created",
		zap.String("org_id", orgID.String()),
		zap.String("provider", string(req.Provider)),
	)
	return conn, nil
}

func (s *Service) Disconnect(ctx context.Context, provider domain.Provider) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ErrInvalidOrganization
	}

	conn, err := s.repo.FindByOrgProvider(ctx, s.db, orgID, provider)
	if err != nil {
		return err
	}

	conn.Status = domain.StatusDisconnected
	conn.PlatformAccountID = nil
	conn.AccessToken = nil
	conn.LegacyAPIKey = nil
	conn.SyncStartedAt = nil
	conn.ErrorMessage = nil
	conn.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, conn); err != nil {
		return err
	}

	s.log.Info("connection disconnected",
		zap.String("org_id", orgID.String()),
		zap.String("provider", string(provider)),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, provider domain.Provider) (domain.Connection, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Connection{}, domain.ErrInvalidOrganization
	}

	conn, err := s.repo.FindByOrgProvider(ctx, s.db, orgID, provider)
	if err != nil {
		return domain.Connection{}, err
	}
	return *conn, nil
}

func (s *Service) ListRuns(ctx context.Context, req domain.ListRunsRequest) ([]domain.SyncRun, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListRuns(ctx, s.db, orgID, req.Provider, req.Limit)
}

// BeginSync takes the sync lease inside a row-locked transaction so two
// concurrent requests for the same organization cannot both start a run.
func (s *Service) BeginSync(ctx context.Context, provider domain.Provider, syncType domain.SyncType) (domain.Connection, domain.SyncRun, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Connection{}, domain.SyncRun{}, domain.ErrInvalidOrganization
	}

	now := s.clock.Now()
	var conn domain.Connection
	var run domain.SyncRun

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByOrgProviderForUpdate(ctx, tx, orgID, provider)
		if err != nil {
			return err
		}

		if found.Status == domain.StatusSyncing && found.SyncStartedAt != nil {
			if now.Sub(*found.SyncStartedAt) < s.lease {
				return domain.ErrSyncInProgress
			}
			s.log.Warn("reclaiming expired sync lease",
				zap.String("org_id", orgID.String()),
				zap.Time("sync_started_at", *found.SyncStartedAt),
			)
		}

		found.Status = domain.StatusSyncing
		found.SyncStartedAt = &now
		// Clear stale failure detail immediately so readers never see a
		// previous run's errors against an in-flight sync.
		found.ErrorMessage = nil
		found.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, found); err != nil {
			return err
		}

		run = domain.SyncRun{
			ID:           s.genID.Generate(),
			OrgID:        orgID,
			ConnectionID: found.ID,
			Provider:     provider,
			SyncType:     syncType,
			Status:       domain.RunStatusRunning,
			Stats:        datatypes.JSONMap{},
			StartedAt:    now,
		}
		if err := s.repo.InsertRun(ctx, tx, &run); err != nil {
			return err
		}

		conn = *found
		return nil
	})
	if err != nil {
		return domain.Connection{}, domain.SyncRun{}, err
	}

	return conn, run, nil
}

// CompleteSync finalizes the run and folds its outcome onto the connection.
// Succeeded and partial runs advance last_sync_at; a fully failed run leaves
// it untouched so the next attempt re-covers the same window, which the
// document upserts make harmless.
func (s *Service) CompleteSync(ctx context.Context, run domain.SyncRun, completion domain.RunCompletion) error {
	now := s.clock.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conn, err := s.repo.FindByOrgProviderForUpdate(ctx, tx, run.OrgID, run.Provider)
		if err != nil {
			return err
		}

		// A completed attempt advances the incremental cursor even when some
		// stages failed; a fully failed attempt leaves it where it was.
		switch completion.Status {
		case domain.RunStatusFailed:
			conn.Status = domain.StatusError
			conn.ErrorMessage = firstError(completion.Errors)
		case domain.RunStatusPartial:
			conn.Status = domain.StatusError
			conn.ErrorMessage = firstError(completion.Errors)
			conn.LastSyncAt = &now
		default:
			conn.Status = domain.StatusConnected
			conn.ErrorMessage = nil
			conn.LastSyncAt = &now
		}
		conn.SyncStartedAt = nil
		conn.LastSyncResults = syncResults(completion)
		conn.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, conn); err != nil {
			return err
		}

		run.Status = completion.Status
		run.Stats = completion.Stats
		run.Errors = datatypes.NewJSONSlice(completion.Errors)
		run.CleanedRecords = completion.CleanedRecords
		run.FinishedAt = &now
		return s.repo.UpdateRun(ctx, tx, &run)
	})
}

// syncResults is the summary the UI reads off the connection: per-entity
// counts plus the ordered error list from the attempt. The stats map is copied
// so the run row keeps counts and errors in separate columns.
func syncResults(completion domain.RunCompletion) datatypes.JSONMap {
	results := datatypes.JSONMap{}
	for k, v := range completion.Stats {
		results[k] = v
	}
	errs := completion.Errors
	if errs == nil {
		errs = []string{}
	}
	results["errors"] = errs
	return results
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func firstError(errs []string) *string {
	for _, e := range errs {
		trimmed := strings.TrimSpace(e)
		if trimmed != "" {
			return &trimmed
		}
	}
	return nil
}
