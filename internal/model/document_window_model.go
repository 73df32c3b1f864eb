package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// DocumentWindow is one row of a persisted retrieval index. Every ingestion
// batch writes a new Generation; rows of replaced generations are deleted.
type DocumentWindow struct {
	Id             uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Generation     uuid.UUID         `gorm:"type:uuid;not null;index"`
	Position       int               `gorm:"not null"` // insertion order within the generation
	Source         string            `gorm:"type:text"`
	Segment        int               `gorm:"default:0"`
	SourceOffset   int               `gorm:"default:0"`
	Document       string            `gorm:"type:text"`
	EmbeddingValue pgvector.Vector   `gorm:"type:vector"` // dimension follows the embedding model
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"autoCreateTime"`
}

func (DocumentWindow) TableName() string {
	return "document_windows"
}
