package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	docstoredomain "github.com/metricdock/metricdock/internal/docstore/domain"
	"github.com/metricdock/metricdock/internal/stripeclient"
	"github.com/metricdock/metricdock/internal/stripesync/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// stage binds one vendor entity to its collection and normalizer.
type stage struct {
	entity     string
	display    string
	collection string
	expand     []string
	normalize  func(rec domain.Record, orgID string) datatypes.JSONMap
}

// stages returns the stage table in fixed execution order. The catalog
// stages run before prices and invoices so name resolution has a chance of
// a local hit; normalizers never hard-depend on that ordering.
func (s *Service) stages(cat *catalog) []stage {
	return []stage{
		{
			entity:     stripeclient.EntityCharges,
			display:    "Payments",
			collection: domain.CollectionPayments,
			expand:     []string{"data.invoice"},
			normalize:  cat.normalizePayment,
		},
		{
			entity:     stripeclient.EntityPaymentIntents,
			display:    "PaymentIntents",
			collection: domain.CollectionPaymentIntents,
			normalize:  cat.normalizePaymentIntent,
		},
		{
			entity:     stripeclient.EntitySubscriptions,
			display:    "Subscriptions",
			collection: domain.CollectionSubscriptions,
			normalize:  cat.normalizeSubscription,
		},
		{
			entity:     stripeclient.EntityProducts,
			display:    "Products",
			collection: domain.CollectionProducts,
			normalize:  cat.normalizeProduct,
		},
		{
			entity:     stripeclient.EntityPrices,
			display:    "Prices",
			collection: domain.CollectionPrices,
			normalize:  cat.normalizePrice,
		},
		{
			entity:     stripeclient.EntityInvoices,
			display:    "Invoices",
			collection: domain.CollectionInvoices,
			normalize:  cat.normalizeInvoice,
		},
		{
			entity:     stripeclient.EntityCustomers,
			display:    "Customers",
			collection: domain.CollectionCustomers,
			normalize:  cat.normalizeCustomer,
		},
	}
}

// runStage pages one entity through normalize and write, committing after
// every page so an interrupted run leaves completed pages durable. A
// failure stops this stage only; the partial count is still reported.
func (s *Service) runStage(ctx context.Context, creds stripeclient.Credentials, orgID snowflake.ID, st stage, params stripeclient.ListParams, maxPages int) domain.StageResult {
	writer := docstoredomain.NewBatchWriter(s.store)
	org := orgID.String()

	params.Entity = st.entity
	params.Expand = st.expand

	err := s.forEachPage(ctx, creds, params, maxPages, func(items []domain.Record) error {
		for _, rec := range items {
			externalID := rec.ID()
			if externalID == "" {
				continue
			}
			body := st.normalize(rec, org)
			if err := writer.Upsert(ctx, st.collection, domain.DocID(orgID, externalID), orgID, body); err != nil {
				return err
			}
		}
		return writer.Flush(ctx)
	})

	result := domain.StageResult{Entity: st.display, Count: writer.Committed()}
	if err != nil {
		result.Err = fmt.Errorf("%s sync error: %w", st.display, err)
		s.log.Warn("sync stage failed",
			zap.String("entity", st.entity),
			zap.String("org_id", org),
			zap.Int("partial_count", result.Count),
			zap.Error(err),
		)
		s.metrics.RecordStageError(ctx, "stripe", st.entity)
		return result
	}

	s.metrics.RecordSyncDocuments(ctx, "stripe", st.entity, result.Count)
	return result
}
