package sitefetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu    sync.Mutex
	pages map[string]*Page
}

func (m *memoryCache) GetPage(ctx context.Context, url string) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages[url], nil
}

func (m *memoryCache) SetPage(ctx context.Context, page *Page, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pages == nil {
		m.pages = map[string]*Page{}
	}
	m.pages[page.URL] = page
	return nil
}

func sitePage(title, body string) string {
	return fmt.Sprintf(`<html><head><title>%s</title><script>var roth = 1;</script></head>
<body><nav>Roth menu</nav><main><h1>%s</h1><p>%s</p></main><footer>conversion footer</footer></body></html>`, title, title, body)
}

func newSite(t *testing.T, hits *int) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*hits++
		mu.Unlock()
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, sitePage("Home", "Welcome to the firm."))
		case "/about":
			fmt.Fprint(w, sitePage("About", "Fiduciary advisors focused on retirement."))
		case "/services":
			fmt.Fprint(w, sitePage("Services", "Retirement income and Roth conversion planning."))
		case "/retirement-planning":
			fmt.Fprint(w, sitePage("Retirement Planning", "Social Security timing and retirement paychecks."))
		case "/tax-planning":
			fmt.Fprint(w, sitePage("Tax Planning", "Roth conversion windows before RMDs."))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPassages_RelevanceAndOrder(t *testing.T) {
	var hits int
	srv := newSite(t, &hits)
	f := NewFetcher(srv.URL, time.Second, nil, time.Minute, zerolog.Nop())

	out, err := f.Passages(context.Background(), "Is a Roth conversion smart?", 3)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "Services", out[0].Title)
	require.Equal(t, "Tax Planning", out[1].Title)
	require.Equal(t, srv.URL+"/services", out[0].SourceURL)
	require.Equal(t, "Recent", out[0].PublishedDate)
}

func TestPassages_CapsAtThree(t *testing.T) {
	var hits int
	srv := newSite(t, &hits)
	f := NewFetcher(srv.URL, time.Second, nil, time.Minute, zerolog.Nop())

	out, err := f.Passages(context.Background(), "retirement", 10)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "About", out[0].Title)
}

func TestPassages_ShortWordsIgnored(t *testing.T) {
	var hits int
	srv := newSite(t, &hits)
	f := NewFetcher(srv.URL, time.Second, nil, time.Minute, zerolog.Nop())

	out, err := f.Passages(context.Background(), "the IRA and tax", 3)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestPassages_UsesCache(t *testing.T) {
	var hits int
	srv := newSite(t, &hits)
	cache := &memoryCache{}
	f := NewFetcher(srv.URL, time.Second, cache, time.Minute, zerolog.Nop())

	_, err := f.Passages(context.Background(), "roth", 3)
	require.NoError(t, err)
	first := hits

	_, err = f.Passages(context.Background(), "roth", 3)
	require.NoError(t, err)
	// only the failing page is fetched again
	require.Equal(t, first+1, hits)
}

func TestPassages_AllPagesFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()
	f := NewFetcher(srv.URL, time.Second, nil, time.Minute, zerolog.Nop())

	out, err := f.Passages(context.Background(), "roth", 3)
	require.Error(t, err)
	require.Empty(t, out)
}

func TestExtractPage_SkipsChromeAndScripts(t *testing.T) {
	title, text, ok := extractPage(strings.NewReader(sitePage("Tax Planning", "Roth windows.")))
	require.True(t, ok)
	require.Equal(t, "Tax Planning", title)
	require.Equal(t, "Tax Planning\nRoth windows.", text)
	require.NotContains(t, text, "menu")
	require.NotContains(t, text, "footer")
}

func TestExtractPage_FallsBackToBody(t *testing.T) {
	_, text, ok := extractPage(strings.NewReader(`<html><body><div>Plain body</div><footer>x</footer></body></html>`))
	require.True(t, ok)
	require.Equal(t, "Plain body", text)
}

func TestExtractPage_CapsLength(t *testing.T) {
	_, text, ok := extractPage(strings.NewReader("<main>" + strings.Repeat("x", 6000) + "</main>"))
	require.True(t, ok)
	require.Len(t, text, maxPageChars)
}
