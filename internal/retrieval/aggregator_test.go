package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	out   []Passage
	err   error
	delay time.Duration
	calls int
}

func (s *staticSource) Passages(ctx context.Context, query string, limit int) ([]Passage, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.out, s.err
}

func TestGather_SiteFirstThenDocuments(t *testing.T) {
	site := &staticSource{out: []Passage{{Title: "About"}}}
	docs := &staticSource{out: []Passage{{Title: "Roth guide"}, {Title: "RMD basics"}}}
	agg := NewAggregator(site, docs, time.Second, zerolog.Nop())

	s, d := agg.Gather(context.Background(), "roth", Limits{SiteLimit: 3, DocumentLimit: 3, IncludeDocuments: true})
	all := Concat(s, d)

	require.Len(t, all, 3)
	require.Equal(t, "About", all[0].Title)
	require.Equal(t, "Roth guide", all[1].Title)
	require.Equal(t, "RMD basics", all[2].Title)
}

func TestGather_FailingSourceDegradesToEmpty(t *testing.T) {
	site := &staticSource{err: errors.New("dial tcp: refused")}
	docs := &staticSource{out: []Passage{{Title: "Roth guide"}}}
	agg := NewAggregator(site, docs, time.Second, zerolog.Nop())

	s, d := agg.Gather(context.Background(), "roth", Limits{SiteLimit: 3, DocumentLimit: 3, IncludeDocuments: true})
	require.Empty(t, s)
	require.Len(t, d, 1)
}

func TestGather_TimeoutCountsAsFailure(t *testing.T) {
	site := &staticSource{out: []Passage{{Title: "slow"}}, delay: time.Second}
	docs := &staticSource{out: []Passage{{Title: "fast"}}}
	agg := NewAggregator(site, docs, 20*time.Millisecond, zerolog.Nop())

	s, d := agg.Gather(context.Background(), "q", Limits{SiteLimit: 3, DocumentLimit: 3, IncludeDocuments: true})
	require.Empty(t, s)
	require.Len(t, d, 1)
}

func TestGather_TruncatesAndLimits(t *testing.T) {
	long := strings.Repeat("a", 50)
	site := &staticSource{out: []Passage{{Title: "1", Content: long}, {Title: "2"}, {Title: "3"}, {Title: "4"}}}
	agg := NewAggregator(site, nil, time.Second, zerolog.Nop())

	s, d := agg.Gather(context.Background(), "q", Limits{SiteLimit: 3, DocumentLimit: 3, MaxChars: 10, IncludeDocuments: true})
	require.Len(t, s, 3)
	require.Len(t, s[0].Content, 10)
	require.Empty(t, d)
}

func TestGather_DocumentsDisabled(t *testing.T) {
	docs := &staticSource{out: []Passage{{Title: "doc"}}}
	agg := NewAggregator(nil, docs, time.Second, zerolog.Nop())

	_, d := agg.Gather(context.Background(), "q", Limits{DocumentLimit: 3, IncludeDocuments: false})
	require.Empty(t, d)
	require.Zero(t, docs.calls)
}

func TestPassageTruncateRuneSafe(t *testing.T) {
	p := Passage{Content: "héllo wörld"}
	require.Equal(t, "héllo", p.Truncate(5).Content)
	require.Equal(t, "héllo wörld", p.Truncate(0).Content)
}
