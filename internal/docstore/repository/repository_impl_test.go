package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	docstoredomain "github.com/metricdock/metricdock/internal/docstore/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupRepoTest(t *testing.T) (*gorm.DB, docstoredomain.Repository) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&docstoredomain.Document{})
	require.NoError(t, err)

	return db, Provide()
}

func TestCommitBatchUpsertThenGet(t *testing.T) {
	db, repo := setupRepoTest(t)
	ctx := context.Background()
	orgID := snowflake.ID(100)

	err := repo.CommitBatch(ctx, db, []docstoredomain.Operation{
		{
			Type:       docstoredomain.OperationUpsert,
			Collection: "stripe_payments",
			DocID:      "100_ch_1",
			OrgID:      orgID,
			Body:       datatypes.JSONMap{"amount": float64(2500), "currency": "usd"},
		},
	})
	require.NoError(t, err)

	doc, err := repo.Get(ctx, db, "stripe_payments", "100_ch_1")
	require.NoError(t, err)
	assert.Equal(t, orgID, doc.OrgID)
	assert.Equal(t, "usd", doc.Body["currency"])
}

func TestCommitBatchUpsertIsIdempotent(t *testing.T) {
	db, repo := setupRepoTest(t)
	ctx := context.Background()
	orgID := snowflake.ID(100)

	op := docstoredomain.Operation{
		Type:       docstoredomain.OperationUpsert,
		Collection: "stripe_customers",
		DocID:      "100_cus_1",
		OrgID:      orgID,
		Body:       datatypes.JSONMap{"name": "first"},
	}
	require.NoError(t, repo.CommitBatch(ctx, db, []docstoredomain.Operation{op}))

	op.Body = datatypes.JSONMap{"name": "second"}
	require.NoError(t, repo.CommitBatch(ctx, db, []docstoredomain.Operation{op}))

	count, err := repo.CountByOrg(ctx, db, "stripe_customers", orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	doc, err := repo.Get(ctx, db, "stripe_customers", "100_cus_1")
	require.NoError(t, err)
	assert.Equal(t, "second", doc.Body["name"])
}

func TestCommitBatchRejectsOversizedBatch(t *testing.T) {
	db, repo := setupRepoTest(t)
	ctx := context.Background()
	orgID := snowflake.ID(100)

	ops := make([]docstoredomain.Operation, 0, docstoredomain.BatchLimit+1)
	for i := 0; i <= docstoredomain.BatchLimit; i++ {
		ops = append(ops, docstoredomain.Operation{
			Type:       docstoredomain.OperationUpsert,
			Collection: "stripe_invoices",
			DocID:      fmt.Sprintf("100_in_%d", i),
			OrgID:      orgID,
			Body:       datatypes.JSONMap{},
		})
	}

	err := repo.CommitBatch(ctx, db, ops)
	require.ErrorIs(t, err, docstoredomain.ErrBatchTooLarge)

	count, err := repo.CountByOrg(ctx, db, "stripe_invoices", orgID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCommitBatchRollsBackOnUnknownOperation(t *testing.T) {
	db, repo := setupRepoTest(t)
	ctx := context.Background()
	orgID := snowflake.ID(100)

	err := repo.CommitBatch(ctx, db, []docstoredomain.Operation{
		{
			Type:       docstoredomain.OperationUpsert,
			Collection: "stripe_products",
			DocID:      "100_prod_1",
			OrgID:      orgID,
			Body:       datatypes.JSONMap{},
		},
		{
			Type:       docstoredomain.OperationType("truncate"),
			Collection: "stripe_products",
			DocID:      "100_prod_2",
			OrgID:      orgID,
		},
	})
	require.Error(t, err)

	count, err := repo.CountByOrg(ctx, db, "stripe_products", orgID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteByOrgLeavesOtherTenantsIntact(t *testing.T) {
	db, repo := setupRepoTest(t)
	ctx := context.Background()

	ops := []docstoredomain.Operation{
		{Type: docstoredomain.OperationUpsert, Collection: "stripe_prices", DocID: "1_price_a", OrgID: 1, Body: datatypes.JSONMap{}},
		{Type: docstoredomain.OperationUpsert, Collection: "stripe_prices", DocID: "1_price_b", OrgID: 1, Body: datatypes.JSONMap{}},
		{Type: docstoredomain.OperationUpsert, Collection: "stripe_prices", DocID: "2_price_a", OrgID: 2, Body: datatypes.JSONMap{}},
	}
	require.NoError(t, repo.CommitBatch(ctx, db, ops))

	deleted, err := repo.DeleteByOrg(ctx, db, "stripe_prices", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := repo.CountByOrg(ctx, db, "stripe_prices", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestGetMissingDocumentReturnsNotFound(t *testing.T) {
	db, repo := setupRepoTest(t)

	_, err := repo.Get(context.Background(), db, "stripe_payments", "1_ch_missing")
	require.ErrorIs(t, err, docstoredomain.ErrNotFound)
}
