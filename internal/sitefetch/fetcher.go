package sitefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/retrieval"
	"golang.org/x/sync/errgroup"
)

const (
	maxResults = 3
	userAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// DefaultPaths are the site pages consulted for every query.
var DefaultPaths = []string{"/", "/about", "/services", "/retirement-planning", "/tax-planning", "/wealth-management"}

type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// PageCache stores fetched pages between turns. A miss returns (nil, nil).
type PageCache interface {
	GetPage(ctx context.Context, url string) (*Page, error)
	SetPage(ctx context.Context, page *Page, ttl time.Duration) error
}

type Fetcher struct {
	BaseURL string
	Paths   []string
	Client  *http.Client
	Cache   PageCache
	TTL     time.Duration
	log     zerolog.Logger
}

func NewFetcher(baseURL string, timeout time.Duration, cache PageCache, ttl time.Duration, log zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Paths:   DefaultPaths,
		Client:  &http.Client{Timeout: timeout},
		Cache:   cache,
		TTL:     ttl,
		log:     log,
	}
}

// Passages returns up to three known pages whose text mentions a query word
// longer than three characters. Pages keep their declared order.
func (f *Fetcher) Passages(ctx context.Context, query string, limit int) ([]retrieval.Passage, error) {
	if limit <= 0 || limit > maxResults {
		limit = maxResults
	}

	pages := make([]*Page, len(f.Paths))
	errs := make([]error, len(f.Paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range f.Paths {
		i, path := i, path
		g.Go(func() error {
			pages[i], errs[i] = f.page(gctx, f.BaseURL+path)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	out := make([]retrieval.Passage, 0, limit)
	for i, p := range pages {
		if errs[i] != nil {
			failed++
			f.log.Debug().Err(errs[i]).Str("path", f.Paths[i]).Msg("site page skipped")
			continue
		}
		if p == nil || !relevant(p.Content, query) {
			continue
		}
		if len(out) < limit {
			out = append(out, retrieval.Passage{
				Title:         p.Title,
				Content:       p.Content,
				SourceURL:     p.URL,
				PublishedDate: "Recent",
			})
		}
	}
	if len(f.Paths) > 0 && failed == len(f.Paths) {
		return nil, fmt.Errorf("sitefetch: all %d pages failed: %w", failed, errors.Join(errs...))
	}
	return out, nil
}

func (f *Fetcher) page(ctx context.Context, url string) (*Page, error) {
	if f.Cache != nil {
		if p, err := f.Cache.GetPage(ctx, url); err == nil && p != nil {
			return p, nil
		} else if err != nil {
			f.log.Debug().Err(err).Str("url", url).Msg("page cache read failed")
		}
	}

	p, err := f.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if p != nil && f.Cache != nil {
		if err := f.Cache.SetPage(ctx, p, f.TTL); err != nil {
			f.log.Debug().Err(err).Str("url", url).Msg("page cache write failed")
		}
	}
	return p, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sitefetch: %s status %d", url, resp.StatusCode)
	}

	title, text, ok := extractPage(io.LimitReader(resp.Body, 4*1024*1024))
	if !ok {
		return nil, nil
	}
	if title == "" {
		title = url
	}
	return &Page{URL: url, Title: title, Content: text}, nil
}

func relevant(content, query string) bool {
	content = strings.ToLower(content)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(w) > 3 && strings.Contains(content, w) {
			return true
		}
	}
	return false
}
