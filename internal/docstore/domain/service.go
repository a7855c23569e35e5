package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Store is the document store surface consumed by sync pipelines.
//
// CommitBatch applies at most BatchLimit operations atomically. Callers that
// need to write more stage their operations through a BatchWriter.
type Store interface {
	Get(ctx context.Context, collection, docID string) (*Document, error)
	QueryByOrganization(ctx context.Context, collection string, orgID snowflake.ID) ([]Document, error)
	CountByOrganization(ctx context.Context, collection string, orgID snowflake.ID) (int64, error)
	CommitBatch(ctx context.Context, ops []Operation) error
	PurgeOrganization(ctx context.Context, collection string, orgID snowflake.ID) (int64, error)
}
