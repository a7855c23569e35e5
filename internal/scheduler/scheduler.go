package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/metricdock/metricdock/internal/clock"
	connectiondomain "github.com/metricdock/metricdock/internal/connection/domain"
	"github.com/metricdock/metricdock/internal/orgcontext"
	stripesyncdomain "github.com/metricdock/metricdock/internal/stripesync/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// sweepStatuses are the connection states the sweep retries. Errored
// connections are included so a transient provider outage heals without
// operator intervention.
var sweepStatuses = []connectiondomain.Status{
	connectiondomain.StatusConnected,
	connectiondomain.StatusError,
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   connectiondomain.Repository
	Sync   stripesyncdomain.Service
	Clock  clock.Clock
	Config Config `optional:"true"`
}

// Scheduler sweeps syncable connections and runs an incremental sync for
// each on a fixed interval.
type Scheduler struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   Config
	repo  connectiondomain.Repository
	sync  stripesyncdomain.Service
	clock clock.Clock
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Repo == nil || p.Sync == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:    p.DB,
		log:   p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:   p.Config.withDefaults(),
		repo:  p.Repo,
		sync:  p.Sync,
		clock: p.Clock,
	}, nil
}

// RunOnce sweeps every syncable connection exactly once. Per-connection
// failures are joined so one broken organization never starves the rest.
func (s *Scheduler) RunOnce(parent context.Context) error {
	connections, err := s.repo.ListByStatus(parent, s.db, connectiondomain.ProviderStripe, sweepStatuses)
	if err != nil {
		return err
	}

	var sweepErr error
	for _, conn := range connections {
		if parent.Err() != nil {
			return errors.Join(sweepErr, parent.Err())
		}
		if err := s.syncConnection(parent, conn); err != nil {
			sweepErr = errors.Join(sweepErr, err)
		}
	}
	return sweepErr
}

func (s *Scheduler) syncConnection(parent context.Context, conn connectiondomain.Connection) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.SyncTimeout)
	defer cancel()
	ctx = orgcontext.WithOrgID(ctx, conn.OrgID)

	start := s.clock.Now()
	result, err := s.sync.Sync(ctx, stripesyncdomain.SyncRequest{
		SyncType: connectiondomain.SyncTypeIncremental,
	})
	if err != nil {
		// Another replica or an operator already holds this connection.
		if errors.Is(err, connectiondomain.ErrSyncInProgress) {
			s.log.Debug("sweep skipped busy connection", zap.String("org_id", conn.OrgID.String()))
			return nil
		}
		s.log.Warn("scheduled sync failed",
			zap.String("org_id", conn.OrgID.String()),
			zap.Error(err),
		)
		return err
	}

	s.log.Info("scheduled sync finished",
		zap.String("org_id", conn.OrgID.String()),
		zap.Bool("success", result.Success),
		zap.Int("payments", result.Payments),
		zap.Duration("elapsed", s.clock.Now().Sub(start)),
	)
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
