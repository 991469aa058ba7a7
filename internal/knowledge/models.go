package knowledge

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusArchived Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusArchived:
		return true
	}
	return false
}

type Document struct {
	ID            uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Title         string            `gorm:"type:varchar(255);not null" json:"title"`
	SourceURL     string            `gorm:"type:varchar(1024)" json:"source_url"`
	SourceType    string            `gorm:"type:varchar(32)" json:"source_type"`
	Content       string            `gorm:"type:text;not null" json:"content"`
	Status        Status            `gorm:"type:varchar(16);index;not null" json:"status"`
	PublishedDate *time.Time        `json:"published_date"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	CreatedAt     time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (Document) TableName() string { return "documents" }

// Chunk is a retrievable slice of a document. Embedding is stored in pgvector
// text form so it survives any SQL dialect; similarity is computed in process.
type Chunk struct {
	ID         uint64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID uint64           `gorm:"index;not null" json:"document_id"`
	Content    string           `gorm:"type:text;not null" json:"content"`
	ChunkIndex int              `gorm:"not null" json:"chunk_index"`
	TokenCount int              `json:"token_count"`
	Embedding  *pgvector.Vector `gorm:"type:text" json:"-"`
	CreatedAt  time.Time        `json:"created_at"`
}

func (Chunk) TableName() string { return "document_chunks" }
