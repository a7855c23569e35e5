package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BatchWriter buffers document operations and commits them in chunks that
// never exceed BatchLimit. Commits happen automatically when the buffer
// fills; Flush commits whatever remains.
type BatchWriter struct {
	store     Store
	pending   []Operation
	committed int
}

// NewBatchWriter builds a writer over the given store.
func NewBatchWriter(store Store) *BatchWriter {
	return &BatchWriter{
		store:   store,
		pending: make([]Operation, 0, BatchLimit),
	}
}

// Upsert stages a document write.
func (w *BatchWriter) Upsert(ctx context.Context, collection, docID string, orgID snowflake.ID, body datatypes.JSONMap) error {
	return w.stage(ctx, Operation{
		Type:       OperationUpsert,
		Collection: collection,
		DocID:      docID,
		OrgID:      orgID,
		Body:       body,
	})
}

// Delete stages a document delete.
func (w *BatchWriter) Delete(ctx context.Context, collection, docID string, orgID snowflake.ID) error {
	return w.stage(ctx, Operation{
		Type:       OperationDelete,
		Collection: collection,
		DocID:      docID,
		OrgID:      orgID,
	})
}

// Flush commits any buffered operations.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	ops := w.pending
	w.pending = make([]Operation, 0, BatchLimit)
	if err := w.store.CommitBatch(ctx, ops); err != nil {
		return err
	}
	w.committed += len(ops)
	return nil
}

// Committed reports how many operations have been durably committed.
func (w *BatchWriter) Committed() int {
	return w.committed
}

func (w *BatchWriter) stage(ctx context.Context, op Operation) error {
	w.pending = append(w.pending, op)
	if len(w.pending) >= BatchLimit {
		return w.Flush(ctx)
	}
	return nil
}
