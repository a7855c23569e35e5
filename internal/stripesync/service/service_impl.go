package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/metricdock/metricdock/internal/clock"
	"github.com/metricdock/metricdock/internal/config"
	connectiondomain "github.com/metricdock/metricdock/internal/connection/domain"
	docstoredomain "github.com/metricdock/metricdock/internal/docstore/domain"
	"github.com/metricdock/metricdock/internal/observability/metrics"
	"github.com/metricdock/metricdock/internal/orgcontext"
	"github.com/metricdock/metricdock/internal/stripeclient"
	"github.com/metricdock/metricdock/internal/stripesync/domain"
	"github.com/metricdock/metricdock/internal/synclock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// vendorClient is the slice of the REST client the pipeline consumes.
type vendorClient interface {
	Resolve(src stripeclient.CredentialSource) (stripeclient.Credentials, error)
	VerifyCredentials(ctx context.Context, creds stripeclient.Credentials) error
	List(ctx context.Context, creds stripeclient.Credentials, params stripeclient.ListParams) (stripeclient.Page, error)
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Client  *stripeclient.Client
	Store   docstoredomain.Store
	Conn    connectiondomain.Service
	Locker  *synclock.Locker `optional:"true"`
	Tuning  *config.SyncTuningHolder
	Metrics *metrics.Metrics `optional:"true"`
	Clock   clock.Clock
}

type Service struct {
	log     *zap.Logger
	client  vendorClient
	store   docstoredomain.Store
	conn    connectiondomain.Service
	locker  *synclock.Locker
	tuning  *config.SyncTuningHolder
	metrics *metrics.Metrics
	clock   clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("stripesync.service"),
		client:  p.Client,
		store:   p.Store,
		conn:    p.Conn,
		locker:  p.Locker,
		tuning:  p.Tuning,
		metrics: p.Metrics,
		clock:   p.Clock,
	}
}

// Sync is the orchestrator. Stages run strictly sequentially in a fixed
// order; a stage failure is folded into the result while its siblings
// still run. Only pre-flight problems and top-level failures surface as
// errors.
func (s *Service) Sync(ctx context.Context, req domain.SyncRequest) (domain.SyncResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.SyncResult{}, connectiondomain.ErrInvalidOrganization
	}

	syncType := req.SyncType
	if syncType == "" {
		syncType = connectiondomain.SyncTypeFull
	}

	// Pre-flight: resolve and verify credentials before any state changes.
	conn, err := s.conn.Get(ctx, connectiondomain.ProviderStripe)
	if err != nil {
		return domain.SyncResult{}, err
	}
	creds, err := s.client.Resolve(stripeclient.CredentialSource{
		PlatformAccountID: deref(conn.PlatformAccountID),
		AccessToken:       deref(conn.AccessToken),
		LegacyAPIKey:      deref(conn.LegacyAPIKey),
	})
	if err != nil {
		return domain.SyncResult{}, err
	}
	if err := s.client.VerifyCredentials(ctx, creds); err != nil {
		if stripeclient.IsAuthError(err) {
			return domain.SyncResult{}, fmt.Errorf("%w: %v", domain.ErrCredentialsRejected, err)
		}
		return domain.SyncResult{}, err
	}

	// Full mode rewrites the whole document set, so it additionally holds
	// a cross-replica lock; incremental upserts are idempotent and rely on
	// the database lease alone.
	if syncType == connectiondomain.SyncTypeFull {
		key := synclock.SyncKey(string(connectiondomain.ProviderStripe), orgID)
		token, acquired, lockErr := s.locker.TryLock(ctx, key)
		if lockErr != nil {
			return domain.SyncResult{}, lockErr
		}
		if !acquired {
			return domain.SyncResult{}, connectiondomain.ErrSyncInProgress
		}
		defer func() {
			if releaseErr := s.locker.Release(context.WithoutCancel(ctx), key, token); releaseErr != nil {
				s.log.Warn("sync lock release failed", zap.String("org_id", orgID.String()), zap.Error(releaseErr))
			}
		}()
	}

	startedAt := s.clock.Now()
	conn, run, err := s.conn.BeginSync(ctx, connectiondomain.ProviderStripe, syncType)
	if err != nil {
		return domain.SyncResult{}, err
	}

	result, topErr := s.execute(ctx, conn, creds, req, syncType, orgID)

	completion := connectiondomain.RunCompletion{
		Stats:          result.Stats(),
		Errors:         result.Errors,
		CleanedRecords: result.CleanedRecords,
	}
	if topErr != nil {
		completion.Status = connectiondomain.RunStatusFailed
		completion.Errors = append(append([]string{}, result.Errors...), topErr.Error())
	} else {
		completion.Status = result.RunStatus()
	}

	// Best-effort: the connection must never stay in syncing, even when
	// the run itself blew up.
	if err := s.conn.CompleteSync(context.WithoutCancel(ctx), run, completion); err != nil {
		s.log.Error("sync completion update failed",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
		if topErr == nil {
			topErr = err
		}
	}

	s.metrics.RecordSyncRun(ctx, "stripe", string(syncType), string(completion.Status))
	s.metrics.RecordSyncDuration(ctx, "stripe", string(syncType), s.clock.Now().Sub(startedAt))

	s.log.Info("sync finished",
		zap.String("org_id", orgID.String()),
		zap.String("sync_type", string(syncType)),
		zap.String("run_status", string(completion.Status)),
		zap.Int("cleaned_records", result.CleanedRecords),
		zap.Strings("errors", result.Errors),
	)

	return result, topErr
}

// execute runs the wipe phase and the seven stages. It returns an error
// only for top-level failures; stage failures land in result.Errors.
func (s *Service) execute(ctx context.Context, conn connectiondomain.Connection, creds stripeclient.Credentials, req domain.SyncRequest, syncType connectiondomain.SyncType, orgID snowflake.ID) (domain.SyncResult, error) {
	result := domain.SyncResult{Errors: []string{}}

	if syncType == connectiondomain.SyncTypeFull {
		cleaned, err := s.wipe(ctx, orgID)
		result.CleanedRecords = cleaned
		if err != nil {
			return result, fmt.Errorf("cleanup failed: %w", err)
		}
	}

	// Incremental runs only fetch records created at or after the last
	// completed sync.
	var cutoff int64
	if syncType != connectiondomain.SyncTypeFull && conn.LastSyncAt != nil {
		cutoff = conn.LastSyncAt.Unix()
	}

	tuning := s.tuning.Current()
	cat := newCatalog()

	for _, st := range s.stages(cat) {
		params := stripeclient.ListParams{CreatedGTE: cutoff}
		maxPages := tuning.PageCeiling(st.entity)

		// The charge stage accepts caller overrides for chunked backfills.
		if st.entity == stripeclient.EntityCharges {
			if req.CreatedAfter > 0 {
				params.CreatedGTE = req.CreatedAfter
			}
			if req.CreatedBefore > 0 {
				params.CreatedLTE = req.CreatedBefore
			}
			if req.MaxPages > 0 {
				maxPages = req.MaxPages
			}
		}

		stageResult := s.runStage(ctx, creds, orgID, st, params, maxPages)
		s.record(&result, st, stageResult)
	}

	result.Success = len(result.Errors) == 0
	return result, nil
}

func (s *Service) record(result *domain.SyncResult, st stage, stageResult domain.StageResult) {
	switch st.collection {
	case domain.CollectionPayments:
		result.Payments = stageResult.Count
	case domain.CollectionPaymentIntents:
		result.PaymentIntents = stageResult.Count
	case domain.CollectionSubscriptions:
		result.Subscriptions = stageResult.Count
	case domain.CollectionProducts:
		result.Products = stageResult.Count
	case domain.CollectionPrices:
		result.Prices = stageResult.Count
	case domain.CollectionInvoices:
		result.Invoices = stageResult.Count
	case domain.CollectionCustomers:
		result.Customers = stageResult.Count
	}
	if stageResult.Err != nil {
		result.Errors = append(result.Errors, stageResult.Err.Error())
	}
}

// wipe deletes every previously synced document for the organization,
// batching deletes through the same writer path as upserts. Correctness
// over efficiency: a full run must not inherit orphans from schema drift
// between syncs.
func (s *Service) wipe(ctx context.Context, orgID snowflake.ID) (int, error) {
	writer := docstoredomain.NewBatchWriter(s.store)

	for _, collection := range domain.Collections {
		docs, err := s.store.QueryByOrganization(ctx, collection, orgID)
		if err != nil {
			return writer.Committed(), err
		}
		for _, doc := range docs {
			if err := writer.Delete(ctx, collection, doc.DocID, orgID); err != nil {
				return writer.Committed(), err
			}
		}
	}
	if err := writer.Flush(ctx); err != nil {
		return writer.Committed(), err
	}
	return writer.Committed(), nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
