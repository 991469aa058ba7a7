package knowledge

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
)

const (
	minChunkChars = 300
	maxChunkChars = 800
)

var ErrEmptyDocument = errors.New("knowledge: title and content are required")

type IngestRequest struct {
	Title         string
	Content       string
	SourceURL     string
	SourceType    string
	PublishedDate *time.Time
	Metadata      map[string]any
}

type Service struct {
	repo     *Repo
	embedder Embedder
	log      zerolog.Logger
}

func NewService(repo *Repo, embedder Embedder, log zerolog.Logger) *Service {
	return &Service{repo: repo, embedder: embedder, log: log}
}

// Ingest stores a new draft document. Chunks get embeddings when the embedder
// can produce them; otherwise they are only reachable by keyword search.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*Document, int, error) {
	title := strings.TrimSpace(req.Title)
	content := strings.TrimSpace(req.Content)
	if title == "" || content == "" {
		return nil, 0, ErrEmptyDocument
	}
	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = "manual"
	}

	doc := &Document{
		Title:         title,
		SourceURL:     req.SourceURL,
		SourceType:    sourceType,
		Content:       content,
		Status:        StatusDraft,
		PublishedDate: req.PublishedDate,
		Metadata:      req.Metadata,
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	parts := SplitParagraphs(content)
	chunks := make([]Chunk, 0, len(parts))
	for i, p := range parts {
		c := Chunk{
			Content:    p,
			ChunkIndex: i,
			TokenCount: estimateTokens(p),
		}
		if s.embedder != nil {
			vec, err := s.embedder.Embed(ctx, p)
			if err != nil {
				s.log.Debug().Err(err).Int("chunk", i).Msg("chunk stored without embedding")
			} else if len(vec) > 0 {
				v := pgvector.NewVector(vec)
				c.Embedding = &v
			}
		}
		chunks = append(chunks, c)
	}

	if err := s.repo.CreateDocument(ctx, doc, chunks); err != nil {
		return nil, 0, err
	}
	return doc, len(chunks), nil
}

func (s *Service) Approve(ctx context.Context, id uint64) error {
	return s.repo.SetStatus(ctx, id, StatusApproved)
}

func (s *Service) Archive(ctx context.Context, id uint64) error {
	return s.repo.SetStatus(ctx, id, StatusArchived)
}

func (s *Service) List(ctx context.Context, status Status, limit int) ([]Document, error) {
	return s.repo.ListDocuments(ctx, status, limit)
}

// SplitParagraphs groups blank-line separated paragraphs into chunks of at
// most maxChunkChars, closing a chunk only once it holds minChunkChars.
func SplitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paras = append(paras, hardSplit(p, maxChunkChars)...)
	}

	var out []string
	var cur strings.Builder
	for _, p := range paras {
		curLen := utf8.RuneCountInString(cur.String())
		if curLen > 0 && curLen >= minChunkChars && curLen+2+utf8.RuneCountInString(p) > maxChunkChars {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func hardSplit(p string, max int) []string {
	r := []rune(p)
	if len(r) <= max {
		return []string{p}
	}
	var out []string
	for len(r) > max {
		cut := max
		for i := max; i > max/2; i-- {
			if r[i] == ' ' {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimSpace(string(r[:cut])))
		r = r[cut:]
	}
	if s := strings.TrimSpace(string(r)); s != "" {
		out = append(out, s)
	}
	return out
}

func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}
