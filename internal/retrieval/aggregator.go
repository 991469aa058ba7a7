package retrieval

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Source yields ranked passages for a query.
type Source interface {
	Passages(ctx context.Context, query string, limit int) ([]Passage, error)
}

type Limits struct {
	SiteLimit     int
	DocumentLimit int
	// MaxChars bounds each passage's content; zero leaves content untouched.
	MaxChars int
	// IncludeDocuments turns the document source off when false.
	IncludeDocuments bool
}

// Aggregator combines the live site source and the document source.
// Site passages always precede document passages.
type Aggregator struct {
	site      Source
	documents Source
	timeout   time.Duration
	log       zerolog.Logger
}

func NewAggregator(site, documents Source, timeout time.Duration, log zerolog.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Aggregator{site: site, documents: documents, timeout: timeout, log: log}
}

// Gather queries both sources concurrently. A failing source contributes
// nothing; Gather itself never fails.
func (a *Aggregator) Gather(ctx context.Context, query string, limits Limits) (site []Passage, docs []Passage) {
	g, gctx := errgroup.WithContext(ctx)

	if a.site != nil && limits.SiteLimit > 0 {
		g.Go(func() error {
			site = a.fetch(gctx, "site", a.site, query, limits.SiteLimit)
			return nil
		})
	}
	if a.documents != nil && limits.IncludeDocuments && limits.DocumentLimit > 0 {
		g.Go(func() error {
			docs = a.fetch(gctx, "documents", a.documents, query, limits.DocumentLimit)
			return nil
		})
	}
	_ = g.Wait()

	for i := range site {
		site[i] = site[i].Truncate(limits.MaxChars)
	}
	for i := range docs {
		docs[i] = docs[i].Truncate(limits.MaxChars)
	}
	return site, docs
}

func (a *Aggregator) fetch(ctx context.Context, name string, src Source, query string, limit int) []Passage {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	out, err := src.Passages(cctx, query, limit)
	metrics.SourceDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceFailures.WithLabelValues(name).Inc()
		a.log.Warn().Err(err).Str("source", name).Msg("context source degraded")
		return nil
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Concat returns site passages followed by document passages.
func Concat(site, docs []Passage) []Passage {
	out := make([]Passage, 0, len(site)+len(docs))
	out = append(out, site...)
	return append(out, docs...)
}
