package knowledge

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("knowledge: document not found")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// CreateDocument stores a document and its chunks atomically.
func (r *Repo) CreateDocument(ctx context.Context, doc *Document, chunks []Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		for i := range chunks {
			chunks[i].DocumentID = doc.ID
		}
		return tx.Create(&chunks).Error
	})
}

func (r *Repo) GetDocument(ctx context.Context, id uint64) (*Document, error) {
	var d Document
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *Repo) SetStatus(ctx context.Context, id uint64, status Status) error {
	res := r.db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocuments returns documents newest first, optionally filtered by status.
func (r *Repo) ListDocuments(ctx context.Context, status Status, limit int) ([]Document, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var docs []Document
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// LatestApproved returns approved documents, most recently created first.
func (r *Repo) LatestApproved(ctx context.Context, limit int) ([]Document, error) {
	return r.ListDocuments(ctx, StatusApproved, limit)
}

func (r *Repo) approvedChunks(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&Chunk{}).
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("documents.status = ?", StatusApproved)
}

// EmbeddedApprovedChunks returns every approved chunk carrying an embedding.
func (r *Repo) EmbeddedApprovedChunks(ctx context.Context) ([]Chunk, error) {
	var chunks []Chunk
	err := r.approvedChunks(ctx).
		Where("document_chunks.embedding IS NOT NULL AND document_chunks.embedding <> ''").
		Order("document_chunks.id ASC").
		Find(&chunks).Error
	return chunks, err
}

// KeywordApprovedChunks matches approved chunks containing every word in order,
// newest document first.
func (r *Repo) KeywordApprovedChunks(ctx context.Context, words []string, limit int) ([]Chunk, error) {
	var chunks []Chunk
	err := r.approvedChunks(ctx).
		Where("LOWER(document_chunks.content) LIKE ?", likePattern(words)).
		Order("documents.created_at DESC").
		Order("document_chunks.id ASC").
		Limit(limit).
		Find(&chunks).Error
	return chunks, err
}

func (r *Repo) DocumentsByID(ctx context.Context, ids []uint64) (map[uint64]Document, error) {
	out := make(map[uint64]Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var docs []Document
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.ID] = d
	}
	return out, nil
}

func likePattern(words []string) string {
	var b strings.Builder
	b.WriteString("%")
	for _, w := range words {
		w = strings.NewReplacer("%", "", "_", "", "\\", "").Replace(strings.ToLower(w))
		if w == "" {
			continue
		}
		b.WriteString(w)
		b.WriteString("%")
	}
	return b.String()
}
