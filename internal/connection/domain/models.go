// Package domain contains persistence models for provider connections.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Provider identifies the external system a connection points at.
type Provider string

const (
	ProviderStripe Provider = "stripe"
)

// Status represents lifecycle states for a connection.
//
// A connection is syncing only while a run holds the lease; every
// completion path moves it to connected or error so it can never stay
// stuck in syncing.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusSyncing      Status = "syncing"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// SyncType selects between a full rebuild and an incremental pass.
type SyncType string

const (
	SyncTypeFull        SyncType = "full"
	SyncTypeIncremental SyncType = "incremental"
)

// RunStatus represents terminal and in-flight states for a sync run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Connection captures an organization's link to an external provider,
// including the credentials and cursor state incremental syncs depend on.
type Connection struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	OrgID             snowflake.ID      `gorm:"not null;uniqueIndex:idx_connections_org_provider"`
	Provider          Provider          `gorm:"type:text;not null;uniqueIndex:idx_connections_org_provider"`
	Status            Status            `gorm:"type:text;not null"`
	PlatformAccountID *string           `gorm:"type:text"`
	AccessToken       *string           `gorm:"type:text"`
	LegacyAPIKey      *string           `gorm:"type:text"`
	LastSyncAt        *time.Time        `gorm:""`
	SyncStartedAt     *time.Time        `gorm:""`
	LastSyncResults   datatypes.JSONMap `gorm:"type:jsonb"`
	ErrorMessage      *string           `gorm:"type:text"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Connection) TableName() string { return "integration_connections" }

// SyncRun is one recorded execution of the sync pipeline.
type SyncRun struct {
	ID             snowflake.ID                `gorm:"primaryKey"`
	OrgID          snowflake.ID                `gorm:"not null;index"`
	ConnectionID   snowflake.ID                `gorm:"not null;index"`
	Provider       Provider                    `gorm:"type:text;not null"`
	SyncType       SyncType                    `gorm:"type:text;not null"`
	Status         RunStatus                   `gorm:"type:text;not null"`
	Stats          datatypes.JSONMap           `gorm:"type:jsonb"`
	Errors         datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	CleanedRecords int                         `gorm:"not null;default:0"`
	StartedAt      time.Time                   `gorm:"not null"`
	FinishedAt     *time.Time                  `gorm:""`
}

// TableName sets the database table name.
func (SyncRun) TableName() string { return "integration_sync_runs" }
