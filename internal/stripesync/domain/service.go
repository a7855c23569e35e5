package domain

import (
	"context"
	"errors"
)

type Service interface {
	// Sync runs the full pipeline for the organization on the context.
	// It returns an error only for pre-flight failures (no usable
	// credentials, unknown connection, a run already holding the lease)
	// and for top-level failures after the connection status has been
	// forced to error. Stage failures are reported inside the result.
	Sync(ctx context.Context, req SyncRequest) (SyncResult, error)
}

var (
	ErrCredentialsRejected = errors.New("credentials_rejected")
)
