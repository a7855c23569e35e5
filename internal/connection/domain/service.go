package domain

import (
	"context"
	"errors"

	"gorm.io/datatypes"
)

// ConnectRequest carries the credential material for a new or updated
// connection. At least one credential strategy must be present.
type ConnectRequest struct {
	Provider          Provider
	PlatformAccountID string
	AccessToken       string
	LegacyAPIKey      string
}

// ListRunsRequest bounds the run history returned to callers.
type ListRunsRequest struct {
	Provider Provider
	Limit    int
}

// RunCompletion is the terminal record a finished sync reports back.
type RunCompletion struct {
	Status         RunStatus
	Stats          datatypes.JSONMap
	Errors         []string
	CleanedRecords int
}

type Service interface {
	Connect(context.Context, ConnectRequest) (Connection, error)
	Disconnect(context.Context, Provider) error
	Get(context.Context, Provider) (Connection, error)
	ListRuns(context.Context, ListRunsRequest) ([]SyncRun, error)

	// BeginSync transitions the connection to syncing, takes the lease and
	// opens a run. It fails with ErrSyncInProgress while a live lease is
	// held by another run.
	BeginSync(ctx context.Context, provider Provider, syncType SyncType) (Connection, SyncRun, error)

	// CompleteSync closes the run and moves the connection to connected or
	// error depending on the outcome.
	CompleteSync(ctx context.Context, run SyncRun, completion RunCompletion) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrNotFound            = errors.New("not_found")
	ErrNotConnected        = errors.New("not_connected")
	ErrMissingCredentials  = errors.New("missing_credentials")
	ErrUnsupportedProvider = errors.New("unsupported_provider")
	ErrSyncInProgress      = errors.New("sync_in_progress")
)
