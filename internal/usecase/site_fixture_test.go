package usecase

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/adapter/static_browser"
	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/extractor"
	"github.com/user/listing-scraper/internal/repository"
	"github.com/user/listing-scraper/pkg/identity"
	"github.com/user/listing-scraper/pkg/metrics"
)

// siteFixture serves a small directory site shaped like the real one: a
// landing page with a search form, paginated listings and detail pages.
type siteFixture struct {
	consent bool
	// pages lists the detail IDs linked from each listing page, in order.
	pages [][]string
	// next overrides the pagination href of a 1-based listing page.
	next map[int]string
	// names overrides the company name shown on a detail page. Details with
	// equal names render identical pages.
	names      map[string]string
	broken     map[string]bool // detail IDs answering 500
	incomplete map[string]bool // detail IDs without phone numbers
	landingErr bool

	mu      sync.Mutex
	queries []url.Values
	hits    map[string]int

	srv *httptest.Server
}

func (f *siteFixture) start(t *testing.T) *siteFixture {
	t.Helper()
	f.hits = make(map[string]int)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", f.landing)
	mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.Query())
		f.mu.Unlock()
		f.listing(w, 1)
	})
	mux.HandleFunc("GET /listing/{n}", func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.PathValue("n"))
		if err != nil || n < 1 || n > len(f.pages) {
			http.NotFound(w, r)
			return
		}
		f.listing(w, n)
	})
	mux.HandleFunc("GET /f/{id}", f.detail)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *siteFixture) url(path string) string {
	return f.srv.URL + path
}

func (f *siteFixture) detailHits(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[id]
}

func (f *siteFixture) landing(w http.ResponseWriter, _ *http.Request) {
	if f.landingErr {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}
	var b strings.Builder
	b.WriteString("<html><body>")
	if f.consent {
		b.WriteString(`<div class="banner"><button id="onetrust-accept-btn-handler">Aceptar</button></div>`)
	}
	b.WriteString(`<form action="/search" method="get">
		<input id="whatInput" name="what" type="text">
		<input id="where" name="where" type="text">
		<button id="submitBtn" type="submit">Buscar</button>
	</form></body></html>`)
	fmt.Fprint(w, b.String())
}

func (f *siteFixture) listing(w http.ResponseWriter, n int) {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"listado\">")
	for _, id := range f.pages[n-1] {
		name := f.name(id)
		fmt.Fprintf(&b, `<div class="listado-item"><h2>%s</h2><a title="ver detalles de %s" href="/f/%s">Ver</a><a title="llamar" href="tel:1">Tel</a></div>`,
			html.EscapeString(name), html.EscapeString(name), id)
	}
	b.WriteString("</div>")

	next := ""
	if n < len(f.pages) {
		next = "/listing/" + strconv.Itoa(n+1)
	}
	if override, ok := f.next[n]; ok {
		next = override
	}
	b.WriteString(`<ul class="pagination">`)
	if n > 1 {
		fmt.Fprintf(&b, `<li><a rel="prev" href="/listing/%d">Anterior</a></li>`, n-1)
	}
	if next != "" {
		fmt.Fprintf(&b, `<li><a rel="next" href="%s">Siguiente</a></li>`, next)
	}
	b.WriteString("</ul></body></html>")
	fmt.Fprint(w, b.String())
}

func (f *siteFixture) detail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f.mu.Lock()
	f.hits[id]++
	f.mu.Unlock()

	if f.broken[id] {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}

	name := f.name(id)
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	var b strings.Builder
	fmt.Fprintf(&b, "<html><body><h1>%s</h1>", html.EscapeString(name))
	fmt.Fprintf(&b, `<p class="claim">Claim of %s</p>`, html.EscapeString(name))
	b.WriteString(`<div class="servicio-domicilio">Servicio a domicilio</div>`)
	if !f.incomplete[id] {
		b.WriteString(`<span class="telephone">912 345 678</span><span class="telephone">900 111 222</span>`)
	}
	fmt.Fprintf(&b, "<span class=\"address\">Calle %s 1,\n28013 Madrid</span>", html.EscapeString(name))
	fmt.Fprintf(&b, `<a class="sitio-web" href="https://%s.example/">web</a>`, slug)
	b.WriteString(`<time itemprop="openingHours">09:00-14:00</time><time itemprop="openingHours">16:00-20:00</time>`)
	b.WriteString("</body></html>")
	fmt.Fprint(w, b.String())
}

func (f *siteFixture) name(id string) string {
	if n, ok := f.names[id]; ok {
		return n
	}
	return "Empresa " + id
}

// countingBrowser records restarts on top of a real browser.
type countingBrowser struct {
	repository.Browser
	mu       sync.Mutex
	restarts int
	loads    []string
}

func (b *countingBrowser) LoadURL(ctx context.Context, rawURL string) error {
	b.mu.Lock()
	b.loads = append(b.loads, rawURL)
	b.mu.Unlock()
	return b.Browser.LoadURL(ctx, rawURL)
}

func (b *countingBrowser) Restart(ctx context.Context) error {
	b.mu.Lock()
	b.restarts++
	b.mu.Unlock()
	return b.Browser.Restart(ctx)
}

func (b *countingBrowser) restartCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.restarts
}

type memoryFailedLinks struct {
	mu      sync.Mutex
	saved   map[string]*entity.FailedLink
	deleted []string
}

func newMemoryFailedLinks() *memoryFailedLinks {
	return &memoryFailedLinks{saved: make(map[string]*entity.FailedLink)}
}

func (m *memoryFailedLinks) SaveOrUpdate(_ context.Context, link *entity.FailedLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.saved[link.URL]; ok {
		link.RetryCount = prev.RetryCount + 1
	} else {
		link.RetryCount = 1
	}
	m.saved[link.URL] = link
	return nil
}

func (m *memoryFailedLinks) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, url)
	m.deleted = append(m.deleted, url)
	return nil
}

type writerFunc func(ctx context.Context, rec entity.CompanyRecord) (repository.WriteResult, error)

func (f writerFunc) Write(ctx context.Context, rec entity.CompanyRecord) (repository.WriteResult, error) {
	return f(ctx, rec)
}

type engineDeps struct {
	browser     *countingBrowser
	failedLinks *memoryFailedLinks
	metrics     *metrics.Metrics
}

func newTestEngine(t *testing.T, site *siteFixture, skipWriteErrors bool) (Traversal, *engineDeps) {
	t.Helper()
	sb, err := static_browser.NewStaticBrowser(
		static_browser.Options{PageLoadTimeout: 5 * time.Second},
		identity.NewRotator([]string{"test-agent"}, nil),
		zap.NewNop(),
	)
	require.NoError(t, err)

	deps := &engineDeps{
		browser:     &countingBrowser{Browser: sb},
		failedLinks: newMemoryFailedLinks(),
		metrics:     metrics.New(prometheus.NewRegistry()),
	}
	engine := NewTraversalEngine(
		deps.browser,
		extractor.New(nil, zap.NewNop()),
		deps.failedLinks,
		deps.metrics,
		TraversalConfig{
			Site:            DefaultSiteConfig(site.url("/")),
			WaitTimeout:     time.Second,
			SkipWriteErrors: skipWriteErrors,
		},
		zap.NewNop(),
	)
	return engine, deps
}
