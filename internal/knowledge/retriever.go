package knowledge

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/retrieval"
)

const keywordScore = 0.5

// Embedder turns text into a vector. Implementations return an error when
// no embedding can be produced.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever serves approved passages. It tries embedding similarity first and
// falls back to keyword matching when no embedding is available.
type Retriever struct {
	repo     *Repo
	embedder Embedder
	timeout  time.Duration
	log      zerolog.Logger
}

func NewRetriever(repo *Repo, embedder Embedder, timeout time.Duration, log zerolog.Logger) *Retriever {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Retriever{repo: repo, embedder: embedder, timeout: timeout, log: log}
}

func (r *Retriever) Passages(ctx context.Context, query string, limit int) ([]retrieval.Passage, error) {
	if limit <= 0 {
		limit = 3
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return r.latest(ctx, limit)
	}

	if out, ok := r.vectorSearch(ctx, query, limit); ok {
		return out, nil
	}
	return r.keywordSearch(ctx, query, limit)
}

func (r *Retriever) latest(ctx context.Context, limit int) ([]retrieval.Passage, error) {
	docs, err := r.repo.LatestApproved(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]retrieval.Passage, 0, len(docs))
	for _, d := range docs {
		out = append(out, passageFor(d, d.Content, nil))
	}
	return out, nil
}

// vectorSearch reports ok=false whenever the keyword tier should run instead.
func (r *Retriever) vectorSearch(ctx context.Context, query string, limit int) ([]retrieval.Passage, bool) {
	if r.embedder == nil {
		return nil, false
	}

	ectx, cancel := context.WithTimeout(ctx, r.timeout)
	vec, err := r.embedder.Embed(ectx, query)
	cancel()
	if err != nil || len(vec) == 0 {
		if err == nil {
			err = errors.New("empty embedding")
		}
		r.log.Warn().Err(err).Msg("query embedding unavailable, using keyword search")
		return nil, false
	}

	chunks, err := r.repo.EmbeddedApprovedChunks(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("vector candidates unavailable, using keyword search")
		return nil, false
	}

	type scored struct {
		chunk Chunk
		score float64
	}
	ranked := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		if c.Embedding == nil {
			continue
		}
		s, ok := cosine(vec, c.Embedding.Slice())
		if !ok {
			continue
		}
		ranked = append(ranked, scored{chunk: c, score: s})
	}
	if len(ranked) == 0 {
		return nil, false
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	picked := make([]Chunk, len(ranked))
	scores := make([]float64, len(ranked))
	for i, s := range ranked {
		picked[i] = s.chunk
		scores[i] = s.score
	}
	out, err := r.toPassages(ctx, picked, scores)
	if err != nil {
		r.log.Warn().Err(err).Msg("vector result hydration failed, using keyword search")
		return nil, false
	}
	return out, true
}

func (r *Retriever) keywordSearch(ctx context.Context, query string, limit int) ([]retrieval.Passage, error) {
	chunks, err := r.repo.KeywordApprovedChunks(ctx, strings.Fields(query), limit)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(chunks))
	for i := range scores {
		scores[i] = keywordScore
	}
	return r.toPassages(ctx, chunks, scores)
}

func (r *Retriever) toPassages(ctx context.Context, chunks []Chunk, scores []float64) ([]retrieval.Passage, error) {
	ids := make([]uint64, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.DocumentID)
	}
	docs, err := r.repo.DocumentsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]retrieval.Passage, 0, len(chunks))
	for i, c := range chunks {
		d, ok := docs[c.DocumentID]
		if !ok || d.Status != StatusApproved {
			continue
		}
		score := scores[i]
		out = append(out, passageFor(d, c.Content, &score))
	}
	return out, nil
}

func passageFor(d Document, content string, score *float64) retrieval.Passage {
	p := retrieval.Passage{
		Title:     d.Title,
		Content:   content,
		SourceURL: d.SourceURL,
		Score:     score,
	}
	if d.PublishedDate != nil {
		p.PublishedDate = d.PublishedDate.Format("2006-01-02")
	}
	return p
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
