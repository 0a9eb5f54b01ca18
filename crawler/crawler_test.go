package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lukemcguire/linkwalk/crawler"
	"github.com/lukemcguire/linkwalk/outcome"
	"github.com/lukemcguire/linkwalk/urlutil"
)

// hitCounter records the requests a test server receives.
type hitCounter struct {
	mu   sync.Mutex
	hits map[string][]string
}

func newHitCounter() *hitCounter {
	return &hitCounter{hits: make(map[string][]string)}
}

func (h *hitCounter) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.hits[r.URL.Path] = append(h.hits[r.URL.Path], r.Method)
		h.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (h *hitCounter) methods(path string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.hits[path]...)
}

func (h *hitCounter) count(path string) int {
	return len(h.methods(path))
}

func html(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// newTestServer creates an httptest server with a multi-page site for integration testing.
// Site structure:
//
//	/        -> links to /page1, /page2, external
//	/page1   -> links to /page2 (dedup), /broken
//	/page2   -> no outgoing links
//	/broken  -> 404
func newTestServer(external string, hits *hitCounter) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		html(w, `<html><body>
			<a href="/page1">Page 1</a>
			<a href="/page2">Page 2</a>
			<a href="`+external+`/resource">External</a>
		</body></html>`)
	})

	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<html><body>
			<a href="/page2">Page 2 again</a>
			<a href="/broken">Broken link</a>
		</body></html>`)
	})

	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<html><body><p>No links here</p></body></html>`)
	})

	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	return httptest.NewServer(hits.wrap(mux))
}

// newExternalServer serves a reachable page full of links that must never be followed.
func newExternalServer(hits *hitCounter) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/resource", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<a href="/hidden">hidden</a>`)
	})
	mux.HandleFunc("/no-head", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		html(w, `<a href="/hidden">hidden</a>`)
	})
	mux.HandleFunc("/hidden", func(w http.ResponseWriter, r *http.Request) {
		html(w, `ok`)
	})
	return httptest.NewServer(hits.wrap(mux))
}

// mustNewCrawler creates a crawler or fails the test.
func mustNewCrawler(t *testing.T, cfg crawler.Config, progressCh chan<- crawler.CrawlEvent, opts ...crawler.Option) *crawler.Crawler {
	t.Helper()
	c, err := crawler.New(cfg, progressCh, opts...)
	if err != nil {
		t.Fatalf("crawler.New() error: %v", err)
	}
	return c
}

func testConfig(startURL string) crawler.Config {
	return crawler.Config{
		StartURL:       startURL,
		Concurrency:    2,
		RequestTimeout: 5 * time.Second,
	}
}

// TestCrawlerIntegration verifies the full crawl flow from start URL through
// discovered links, including detection of broken links.
func TestCrawlerIntegration(t *testing.T) {
	extHits := newHitCounter()
	ext := newExternalServer(extHits)
	defer ext.Close()

	hits := newHitCounter()
	ts := newTestServer(ext.URL, hits)
	defer ts.Close()

	c := mustNewCrawler(t, testConfig(ts.URL), nil)
	st, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	broken, ok := st.Lookup(urlutil.MustParse(ts.URL + "/broken"))
	if !ok {
		t.Fatal("expected a record for /broken")
	}
	if code, _ := broken.Outcome.StatusCode(); code != http.StatusNotFound {
		t.Errorf("expected /broken to be 404, got %v", broken.Outcome)
	}
	if broken.Traversed() {
		t.Error("expected failed page to have no links")
	}

	// /, /page1, /page2, /broken + 1 external = 5.
	if st.Len() != 5 {
		t.Errorf("expected 5 stored URLs, got %d", st.Len())
	}
	if c.Landing().String() != ts.URL {
		t.Errorf("expected landing %s, got %s", ts.URL, c.Landing())
	}
}

// TestCrawlerDeduplication verifies that cyclic link graphs are handled
// correctly without infinite loops or duplicate URL checks.
func TestCrawlerDeduplication(t *testing.T) {
	// Server where every page links to every other page (cycle)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		html(w, `<a href="/a">A</a><a href="/b">B</a>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<a href="/">Home</a><a href="/b">B</a><a href="/a">A self</a>`)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<a href="/">Home</a><a href="/a">A</a>`)
	})
	hits := newHitCounter()
	ts := httptest.NewServer(hits.wrap(mux))
	defer ts.Close()

	c := mustNewCrawler(t, testConfig(ts.URL), nil)
	st, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	// "http://host" and "http://host/" are distinct URLs, so / is fetched twice
	// (once as the start URL, once as a link); every other page exactly once.
	for path, want := range map[string]int{"/": 2, "/a": 1, "/b": 1} {
		if got := hits.count(path); got != want {
			t.Errorf("expected %s fetched %d times, got %d", path, want, got)
		}
	}
	if st.Len() != 4 {
		t.Errorf("expected 4 stored URLs, got %d", st.Len())
	}
}

// TestCrawlerCrossOrigin verifies that foreign hosts are only probed.
func TestCrawlerCrossOrigin(t *testing.T) {
	extHits := newHitCounter()
	ext := newExternalServer(extHits)
	defer ext.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<a href="`+ext.URL+`/resource">r</a><a href="`+ext.URL+`/no-head">n</a>`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := mustNewCrawler(t, testConfig(ts.URL), nil)
	st, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if got := extHits.methods("/resource"); strings.Join(got, ",") != "HEAD" {
		t.Errorf("expected only HEAD for /resource, got %v", got)
	}
	if got := extHits.methods("/no-head"); strings.Join(got, ",") != "HEAD,GET" {
		t.Errorf("expected HEAD then GET for /no-head, got %v", got)
	}
	if n := extHits.count("/hidden"); n != 0 {
		t.Errorf("links of a foreign page must not be followed, /hidden fetched %d times", n)
	}

	rec, ok := st.Lookup(urlutil.MustParse(ext.URL + "/no-head"))
	if !ok {
		t.Fatal("expected record for /no-head")
	}
	if code, _ := rec.Outcome.StatusCode(); code != http.StatusOK {
		t.Errorf("expected GET fallback status 200, got %v", rec.Outcome)
	}
	if rec.Traversed() {
		t.Error("expected foreign page to have no links")
	}
}

// TestCrawlerExclusion verifies that excluded URLs are stored but never requested.
func TestCrawlerExclusion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<a href="/private/data">p</a><a href="/public">q</a>`)
	})
	mux.HandleFunc("/public", func(w http.ResponseWriter, r *http.Request) {
		html(w, `ok`)
	})
	mux.HandleFunc("/private/data", func(w http.ResponseWriter, r *http.Request) {
		html(w, `secret`)
	})
	hits := newHitCounter()
	ts := httptest.NewServer(hits.wrap(mux))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Exclude = []string{"/private/"}
	c := mustNewCrawler(t, cfg, nil)
	st, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if n := hits.count("/private/data"); n != 0 {
		t.Errorf("excluded URL fetched %d times", n)
	}
	rec, ok := st.Lookup(urlutil.MustParse(ts.URL + "/private/data"))
	if !ok {
		t.Fatal("expected record for excluded URL")
	}
	if _, isExcluded := rec.Outcome.(outcome.Excluded); !isExcluded {
		t.Errorf("expected Excluded outcome, got %T", rec.Outcome)
	}
}

func TestNewInvalidExcluder(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.Exclude = []string{"("}

	_, err := crawler.New(cfg, nil)
	var regexErr *urlutil.ExcluderRegexError
	if !errors.As(err, &regexErr) {
		t.Fatalf("expected ExcluderRegexError, got %v", err)
	}
}

func TestNewInvalidStartURL(t *testing.T) {
	_, err := crawler.New(testConfig("http://"), nil)
	if !errors.Is(err, urlutil.ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

// TestCrawlerFragments verifies that links differing only by fragment share one record.
func TestCrawlerFragments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<a href="/foo#bar">1</a><a href="/foo#baz">2</a>`)
	})
	mux.HandleFunc("/foo", func(w http.ResponseWriter, r *http.Request) {
		html(w, `foo`)
	})
	hits := newHitCounter()
	ts := httptest.NewServer(hits.wrap(mux))
	defer ts.Close()

	c := mustNewCrawler(t, testConfig(ts.URL), nil)
	st, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if n := hits.count("/foo"); n != 1 {
		t.Errorf("expected /foo fetched once, got %d", n)
	}
	landing, _ := st.Lookup(c.Landing())
	if len(landing.Links) != 2 {
		t.Fatalf("expected both hrefs to be kept, got %v", landing.Links)
	}
	if landing.Links[0].Target != landing.Links[1].Target {
		t.Errorf("expected one target, got %s and %s", landing.Links[0].Target, landing.Links[1].Target)
	}
}

// TestCrawlerStartRedirect verifies that start-URL hops are stored and that a
// later link to the start URL resolves through them.
func TestCrawlerStartRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/foo", http.StatusFound)
	})
	mux.HandleFunc("/foo", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<a href="/">home</a>`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := mustNewCrawler(t, testConfig(ts.URL), nil)
	st, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if c.Landing().String() != ts.URL+"/foo" {
		t.Errorf("expected landing on /foo, got %s", c.Landing())
	}
	start, ok := st.Lookup(c.Start())
	if !ok {
		t.Fatal("expected the start URL hop to be stored")
	}
	if _, isRedirect := start.Outcome.(outcome.Redirect); !isRedirect {
		t.Errorf("expected Redirect for start URL, got %T", start.Outcome)
	}

	chain := st.ResolveChain(urlutil.MustParse(ts.URL + "/"))
	if len(chain) != 2 || !chain.OK() {
		t.Errorf("expected [redirect, 200] chain, got %v", chain)
	}
}

// TestCrawlerCrossHostStartRedirect verifies that the origin is the landing
// page's host: when the start URL redirects to another host, that host is
// crawled and the start URL's own host is only probed.
func TestCrawlerCrossHostStartRedirect(t *testing.T) {
	newHits := newHitCounter()
	newMux := http.NewServeMux()
	newSite := httptest.NewServer(newHits.wrap(newMux))
	defer newSite.Close()

	oldHits := newHitCounter()
	oldMux := http.NewServeMux()
	oldSite := httptest.NewServer(oldHits.wrap(oldMux))
	defer oldSite.Close()

	oldMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, newSite.URL+"/", http.StatusMovedPermanently)
	})
	oldMux.HandleFunc("/legacy", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<a href="/hidden">hidden</a>`)
	})
	newMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		html(w, `<a href="/about">about</a><a href="`+oldSite.URL+`/legacy">legacy</a>`)
	})
	newMux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<a href="/contact">contact</a>`)
	})
	newMux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		html(w, `ok`)
	})

	c := mustNewCrawler(t, testConfig(oldSite.URL+"/"), nil)
	st, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	if c.Landing().String() != newSite.URL+"/" {
		t.Errorf("expected landing on %s/, got %s", newSite.URL, c.Landing())
	}

	tests := []struct {
		name    string
		hits    *hitCounter
		path    string
		methods string
	}{
		{name: "landing host page is fetched", hits: newHits, path: "/about", methods: "GET"},
		{name: "landing host links are followed", hits: newHits, path: "/contact", methods: "GET"},
		{name: "start host is only probed", hits: oldHits, path: "/legacy", methods: "HEAD"},
		{name: "start host links are not followed", hits: oldHits, path: "/hidden", methods: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Join(tt.hits.methods(tt.path), ","); got != tt.methods {
				t.Errorf("requests for %s = %q, want %q", tt.path, got, tt.methods)
			}
		})
	}

	about, ok := st.Lookup(urlutil.MustParse(newSite.URL + "/about"))
	if !ok || !about.Traversed() {
		t.Errorf("expected /about on the landing host to be traversed, got %+v", about)
	}
	legacy, ok := st.Lookup(urlutil.MustParse(oldSite.URL + "/legacy"))
	if !ok || legacy.Traversed() {
		t.Errorf("expected /legacy on the start host to be probed only, got %+v", legacy)
	}
}

func TestResolveStartFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/private", func(w http.ResponseWriter, r *http.Request) {
		html(w, `private`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name    string
		start   string
		exclude []string
		want    error
	}{
		{"redirect cycle", ts.URL + "/", nil, crawler.ErrRedirectCycle},
		{"error status", ts.URL + "/error", nil, crawler.ErrBadStartStatus},
		{"connection refused", closedURL, nil, crawler.ErrStartRequest},
		{"excluded", ts.URL + "/private", []string{"private"}, crawler.ErrStartExcluded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(tt.start)
			cfg.Exclude = tt.exclude
			c := mustNewCrawler(t, cfg, nil)

			st, err := c.Run(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if st != nil {
				t.Error("expected no store on a fatal start")
			}
		})
	}
}

// TestCrawlerCancellation verifies that the crawler responds correctly to
// context cancellation without goroutine leaks.
func TestCrawlerCancellation(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<a href="/slow1">1</a><a href="/slow2">2</a><a href="/slow3">3</a>`)
	})
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		html(w, `slow`)
	}
	mux.HandleFunc("/slow1", slow)
	mux.HandleFunc("/slow2", slow)
	mux.HandleFunc("/slow3", slow)
	ts := httptest.NewServer(mux)
	defer ts.Close()
	defer close(release)

	c := mustNewCrawler(t, testConfig(ts.URL), nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.ResolveStart(ctx); err != nil {
		t.Fatalf("ResolveStart() returned error: %v", err)
	}

	done := make(chan struct{})
	var runErr error
	go func() {
		_, runErr = c.Crawl(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		if !errors.Is(runErr, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", runErr)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Crawl() did not return after context cancellation (possible goroutine leak)")
	}
}

// TestCrawlerProgress verifies the progress counters after a crawl.
func TestCrawlerProgress(t *testing.T) {
	extHits := newHitCounter()
	ext := newExternalServer(extHits)
	defer ext.Close()
	ts := newTestServer(ext.URL, newHitCounter())
	defer ts.Close()

	progressCh := make(chan crawler.CrawlEvent, 100)
	c := mustNewCrawler(t, testConfig(ts.URL), progressCh)
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}

	final := c.Progress()
	if final.Finished != 4 || final.OK != 3 || final.Failed != 1 {
		t.Errorf("unexpected counters: %+v", final)
	}
	if final.InProgress != 0 || final.Queued != 0 {
		t.Errorf("expected idle counters, got %+v", final)
	}
	if len(progressCh) == 0 {
		t.Error("expected progress events")
	}
}
