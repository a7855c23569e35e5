// Package domain contains persistence models for synced analytics documents.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BatchLimit is the maximum number of operations a single commit accepts.
const BatchLimit = 500

// OperationType distinguishes writes from deletes inside a batch.
type OperationType string

const (
	OperationUpsert OperationType = "upsert"
	OperationDelete OperationType = "delete"
)

// Operation is a single document mutation staged into a batch.
type Operation struct {
	Type       OperationType
	Collection string
	DocID      string
	OrgID      snowflake.ID
	Body       datatypes.JSONMap
}

// Document is one normalized record in a named collection.
//
// DocID carries the organization prefix, so two organizations syncing the
// same external record never collide.
type Document struct {
	Collection string            `gorm:"primaryKey;type:text"`
	DocID      string            `gorm:"primaryKey;column:doc_id;type:text"`
	OrgID      snowflake.ID      `gorm:"not null;index"`
	Body       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Document) TableName() string { return "synced_documents" }
