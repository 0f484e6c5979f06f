package dommirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/dommirror/internal/config"
	"github.com/hazyhaar/dommirror/internal/fetcher"
	"github.com/hazyhaar/dommirror/internal/idgen"
	"github.com/hazyhaar/dommirror/internal/sink"
	"github.com/hazyhaar/dommirror/manifest"
)

type fakePage struct {
	status int
	err    error
	html   string
}

// fakeSource serves canned documents and records how it was driven.
type fakeSource struct {
	pages   map[string]fakePage
	height  string // JSON returned by Evaluate; empty = unsupported
	current string
	calls   []string
	scrolls []int
	idle    time.Duration
	idleErr error
	closed  bool
}

func (f *fakeSource) Navigate(_ context.Context, address string) (*Navigation, error) {
	f.calls = append(f.calls, "navigate "+address)
	p, ok := f.pages[address]
	if !ok {
		return nil, errors.New("dial tcp: no such host")
	}
	if p.err != nil {
		return nil, p.err
	}
	f.current = address
	return &Navigation{URL: address, StatusCode: p.status}, nil
}

func (f *fakeSource) WaitNetworkIdle(_ context.Context, d time.Duration) error {
	f.calls = append(f.calls, "idle")
	f.idle = d
	return f.idleErr
}

func (f *fakeSource) ScrollTo(_ context.Context, y int) error {
	f.scrolls = append(f.scrolls, y)
	return nil
}

func (f *fakeSource) Evaluate(context.Context, string, ...any) (json.RawMessage, error) {
	if f.height == "" {
		return nil, errors.New("no script runtime")
	}
	return json.RawMessage(f.height), nil
}

func (f *fakeSource) Content(context.Context) (string, error) {
	f.calls = append(f.calls, "content")
	return f.pages[f.current].html, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type collected struct {
	mu      sync.Mutex
	reports []manifest.Report
}

func (c *collected) sink() sink.Sink {
	return sink.NewCallback(func(_ context.Context, r manifest.Report) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.reports = append(c.reports, r)
		return nil
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// resourceServer serves a few assets over TLS; everything else is 404.
func resourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("PNG-BYTES")) })
	mux.HandleFunc("/css/site.css", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("body{}")) })
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("console.log(1)")) })
	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	m       *Mirror
	dest    string
	out     *bytes.Buffer
	reports *collected
}

func newHarness(t *testing.T, src DocumentSource, srv *httptest.Server, edit func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Dest = t.TempDir()
	if edit != nil {
		edit(cfg)
	}
	h := &harness{dest: cfg.Dest, out: &bytes.Buffer{}, reports: &collected{}}

	opts := []Option{
		WithSource(src),
		WithOutput(h.out),
		WithLogger(quietLogger()),
		WithSink(h.reports.sink()),
	}
	if srv != nil {
		opts = append(opts, WithFetcher(fetcher.New(fetcher.WithClient(srv.Client()))))
	}
	m, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	h.m = m
	return h
}

const pageHTML = `<!DOCTYPE html><html><head>
<link rel="stylesheet" href="/css/site.css">
<script src="app.js"></script>
</head><body>
<a href="/about">About</a>
<img src="/logo.png">
<img src="/missing.png">
</body></html>`

func TestMirrorPage_EndToEnd(t *testing.T) {
	srv := resourceServer(t)
	addr := srv.URL + "/"
	src := &fakeSource{pages: map[string]fakePage{addr: {status: 200, html: pageHTML}}}
	h := newHarness(t, src, srv, nil)

	rep, err := h.m.MirrorPage(context.Background(), addr)
	if err != nil {
		t.Fatalf("MirrorPage: %v", err)
	}
	if rep.State != manifest.StateDone {
		t.Fatalf("state: got %s", rep.State)
	}
	if rep.Images != 2 || rep.Scripts != 2 || rep.Links != 1 {
		t.Errorf("counts: images=%d scripts=%d links=%d", rep.Images, rep.Scripts, rep.Links)
	}
	if rep.Saved != 3 || len(rep.Failures) != 1 {
		t.Fatalf("saved=%d failures=%+v", rep.Saved, rep.Failures)
	}
	if !strings.HasSuffix(rep.Failures[0].Source, "/missing.png") {
		t.Errorf("failure source: %q", rep.Failures[0].Source)
	}

	root := filepath.Join(h.dest, rep.Page.Hostname)
	for rel, want := range map[string]string{
		"logo.png":     "PNG-BYTES",
		"css/site.css": "body{}",
		"app.js":       "console.log(1)",
	} {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || string(got) != want {
			t.Errorf("%s: got %q, %v", rel, got, err)
		}
	}

	// WHAT: the document is saved even though one resource failed.
	// WHY: resource failures are per-entry and never abort the page.
	doc, err := os.ReadFile(filepath.Join(root, "index.html"))
	if err != nil {
		t.Fatalf("document not written: %v", err)
	}
	for _, want := range []string{`<!DOCTYPE html>`, `src="logo.png"`, `src="missing.png"`, `href="css/site.css"`, `src="app.js"`} {
		if !strings.Contains(string(doc), want) {
			t.Errorf("document missing %s", want)
		}
	}
	if rep.DocumentHash != manifest.HashDocument(doc) {
		t.Error("document hash does not match saved file")
	}
	if !strings.Contains(h.out.String(), "Saved as: ") {
		t.Errorf("output: %q", h.out.String())
	}

	if len(h.reports.reports) != 1 || h.reports.reports[0].ID != rep.ID {
		t.Fatalf("sink reports: %+v", h.reports.reports)
	}
}

func TestMirrorPage_PrefixedIDs(t *testing.T) {
	addr := "https://example.com/"
	src := &fakeSource{pages: map[string]fakePage{addr: {status: 200, html: `<html></html>`}}}
	cfg := config.Default()
	cfg.Dest = t.TempDir()
	reports := &collected{}
	m, err := New(context.Background(), cfg,
		WithSource(src), WithOutput(io.Discard), WithLogger(quietLogger()), WithSink(reports.sink()),
		WithIDGenerator(idgen.Prefixed("mir_", idgen.UUIDv7())))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	rep, err := m.MirrorPage(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(rep.ID, "mir_") || len(rep.ID) != len("mir_")+36 {
		t.Errorf("report id: %q", rep.ID)
	}
	if len(reports.reports) != 1 || reports.reports[0].ID != rep.ID {
		t.Errorf("sink reports: %+v", reports.reports)
	}
}

func TestMirrorPage_Non2xxWritesNothing(t *testing.T) {
	addr := "https://example.com/gone"
	src := &fakeSource{pages: map[string]fakePage{addr: {status: 404, html: pageHTML}}}
	h := newHarness(t, src, nil, nil)

	rep, err := h.m.MirrorPage(context.Background(), addr)
	var nerr *NavigationError
	if !errors.As(err, &nerr) || nerr.StatusCode != 404 {
		t.Fatalf("expected NavigationError 404, got %v", err)
	}
	if rep.State != manifest.StateFailed || rep.StatusCode != 404 {
		t.Errorf("report: state=%s status=%d", rep.State, rep.StatusCode)
	}
	for _, c := range src.calls {
		if c == "content" || c == "idle" {
			t.Errorf("source driven past navigation: %v", src.calls)
		}
	}
	entries, _ := os.ReadDir(h.dest)
	if len(entries) != 0 {
		t.Errorf("dest should be empty, has %d entries", len(entries))
	}
	if !strings.Contains(h.out.String(), "ERROR: Page returned 404") {
		t.Errorf("output: %q", h.out.String())
	}
	if len(h.reports.reports) != 1 || h.reports.reports[0].State != manifest.StateFailed {
		t.Errorf("failed page must still be reported: %+v", h.reports.reports)
	}
}

func TestMirrorPage_TransportError(t *testing.T) {
	src := &fakeSource{pages: map[string]fakePage{}}
	h := newHarness(t, src, nil, nil)

	_, err := h.m.MirrorPage(context.Background(), "https://unreachable.test/")
	var nerr *NavigationError
	if !errors.As(err, &nerr) || nerr.Err == nil {
		t.Fatalf("expected transport NavigationError, got %v", err)
	}
}

func TestMirrorPage_BadAddress(t *testing.T) {
	src := &fakeSource{}
	h := newHarness(t, src, nil, nil)

	rep, err := h.m.MirrorPage(context.Background(), "http//nohost")
	if err == nil || rep.State != manifest.StateFailed {
		t.Fatalf("expected failure, got %v / %s", err, rep.State)
	}
	if len(src.calls) != 0 {
		t.Errorf("source should not be touched: %v", src.calls)
	}
}

func TestRun_ContinuesAfterFailure(t *testing.T) {
	srv := resourceServer(t)
	good := srv.URL + "/docs/page"
	bad := "https://example.com/broken"
	src := &fakeSource{pages: map[string]fakePage{
		bad:  {status: 500},
		good: {status: 200, html: `<html><body><img src="/logo.png"></body></html>`},
	}}
	h := newHarness(t, src, srv, nil)

	reports, err := h.m.Run(context.Background(), []string{bad, good})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports: got %d", len(reports))
	}
	if reports[0].State != manifest.StateFailed || reports[1].State != manifest.StateDone {
		t.Fatalf("states: %s, %s", reports[0].State, reports[1].State)
	}
	if reports[1].Page.Filename != "docs/page.html" {
		t.Errorf("filename: %q", reports[1].Page.Filename)
	}
	if _, err := os.Stat(filepath.Join(h.dest, reports[1].Page.Hostname, "docs", "page.html")); err != nil {
		t.Errorf("second page not saved: %v", err)
	}
	// Resolved against /docs/page, /logo.png stays at the host root.
	if _, err := os.Stat(filepath.Join(h.dest, reports[1].Page.Hostname, "logo.png")); err != nil {
		t.Errorf("image not saved: %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	src := &fakeSource{pages: map[string]fakePage{}}
	h := newHarness(t, src, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reports, err := h.m.Run(ctx, []string{"https://a.test/", "https://b.test/"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err: got %v", err)
	}
	if len(reports) != 0 || len(src.calls) != 0 {
		t.Errorf("nothing should run after cancel: %d reports, calls %v", len(reports), src.calls)
	}
}

func TestSettle_ScrollsToBottomAndBack(t *testing.T) {
	addr := "https://example.com/"
	src := &fakeSource{
		pages:  map[string]fakePage{addr: {status: 200, html: `<html><body>x</body></html>`}},
		height: "4321",
	}
	h := newHarness(t, src, nil, nil)

	if _, err := h.m.MirrorPage(context.Background(), addr); err != nil {
		t.Fatal(err)
	}
	if src.idle != 100*time.Millisecond {
		t.Errorf("idle: got %v", src.idle)
	}
	if len(src.scrolls) != 2 || src.scrolls[0] != 4321 || src.scrolls[1] != 0 {
		t.Errorf("scrolls: got %v", src.scrolls)
	}
}

func TestSettle_IdleTimeoutIsNotFatal(t *testing.T) {
	// WHAT: a page whose network never goes quiet is still mirrored.
	// WHY: settling is best effort; only cancellation stops a page there.
	addr := "https://example.com/"
	src := &fakeSource{
		pages:   map[string]fakePage{addr: {status: 200, html: `<html><body>x</body></html>`}},
		height:  "50",
		idleErr: errors.New("network idle wait timed out"),
	}
	h := newHarness(t, src, nil, nil)

	rep, err := h.m.MirrorPage(context.Background(), addr)
	if err != nil || rep.State != manifest.StateDone {
		t.Fatalf("got %v / %s", err, rep.State)
	}
	if len(src.scrolls) != 2 {
		t.Errorf("scrolling skipped after idle timeout: %v", src.scrolls)
	}
}

func TestSettle_ScrollDisabled(t *testing.T) {
	addr := "https://example.com/"
	src := &fakeSource{
		pages:  map[string]fakePage{addr: {status: 200, html: `<html></html>`}},
		height: "10",
	}
	h := newHarness(t, src, nil, func(c *config.Config) {
		off := false
		c.Settle.Scroll = &off
	})
	if _, err := h.m.MirrorPage(context.Background(), addr); err != nil {
		t.Fatal(err)
	}
	if len(src.scrolls) != 0 {
		t.Errorf("scrolled with scroll disabled: %v", src.scrolls)
	}
}

func TestDisplay_Metadata(t *testing.T) {
	srv := resourceServer(t)
	addr := srv.URL + "/"
	src := &fakeSource{pages: map[string]fakePage{addr: {status: 200, html: pageHTML}}}
	h := newHarness(t, src, srv, func(c *config.Config) { c.Metadata = true })

	// First visit: no previous document.
	if _, err := h.m.MirrorPage(context.Background(), addr); err != nil {
		t.Fatal(err)
	}
	first := h.out.String()
	for _, want := range []string{
		"Site: 127.0.0.1:",
		"Page: /\n",
		"Number of links: 1\n",
		"Number of images: 2\n",
		"Number of css/scripts: 2\n",
	} {
		if !strings.Contains(first, want) {
			t.Errorf("output missing %q:\n%s", want, first)
		}
	}
	if strings.Contains(first, "Last visited") {
		t.Error("first visit must not print a previous visit")
	}

	h.out.Reset()
	if _, err := h.m.MirrorPage(context.Background(), addr); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h.out.String(), "Last visited: ") {
		t.Errorf("second visit should show previous visit:\n%s", h.out.String())
	}
}

func TestMirrorPage_HTTPSource(t *testing.T) {
	// WHAT: the plain HTTP source drives the whole pipeline.
	// WHY: it has no script runtime; settling must degrade to a no-op.
	mux := http.NewServeMux()
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("PNG")) })
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><body><p>hello</p><img src="/logo.png"><img src="/nope.png"></body></html>`))
	})
	srv := httptest.NewTLSServer(mux)
	defer srv.Close()

	src := fetcher.NewSource(fetcher.New(fetcher.WithClient(srv.Client())))
	h := newHarness(t, src, srv, nil)

	rep, err := h.m.MirrorPage(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("MirrorPage: %v", err)
	}
	if rep.State != manifest.StateDone || rep.StatusCode != 200 || rep.Images != 2 {
		t.Fatalf("report: %+v", rep)
	}
	if rep.Saved != 1 || len(rep.Failures) != 1 {
		t.Errorf("saved=%d failures=%+v", rep.Saved, rep.Failures)
	}
}

func TestAutoSource(t *testing.T) {
	static := "<html><body><p>" + strings.Repeat("Server rendered text for readers. ", 20) + "</p></body></html>"
	shell := `<html><head><script src="/bundle.js"></script></head><body><div id="root"></div>` +
		strings.Repeat(" ", 300) + `</body></html>`

	mux := http.NewServeMux()
	mux.HandleFunc("/static", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(static)) })
	mux.HandleFunc("/spa", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(shell)) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	browserSrc := &fakeSource{pages: map[string]fakePage{
		srv.URL + "/spa": {status: 200, html: "<html><body>rendered</body></html>"},
	}}
	opened := 0
	open := func(context.Context) (DocumentSource, error) {
		opened++
		return browserSrc, nil
	}
	a := newAutoSource(fetcher.NewSource(fetcher.New()), open, quietLogger())
	ctx := context.Background()

	if _, err := a.Navigate(ctx, srv.URL+"/static"); err != nil {
		t.Fatal(err)
	}
	content, _ := a.Content(ctx)
	if opened != 0 || !strings.Contains(content, "Server rendered") {
		t.Fatalf("static page escalated (opened=%d)", opened)
	}

	if _, err := a.Navigate(ctx, srv.URL+"/spa"); err != nil {
		t.Fatal(err)
	}
	content, _ = a.Content(ctx)
	if opened != 1 || content != "<html><body>rendered</body></html>" {
		t.Fatalf("shell not escalated (opened=%d): %q", opened, content)
	}

	// The browser is opened once and reused.
	a.Navigate(ctx, srv.URL+"/spa")
	if opened != 1 {
		t.Errorf("browser reopened: %d", opened)
	}

	a.Close()
	if !browserSrc.closed {
		t.Error("browser source not closed")
	}
}

func TestAutoSource_BrowserUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<div id="root"></div>`))
	}))
	defer srv.Close()

	open := func(context.Context) (DocumentSource, error) { return nil, errors.New("no chrome") }
	a := newAutoSource(fetcher.NewSource(fetcher.New()), open, quietLogger())

	nav, err := a.Navigate(context.Background(), srv.URL)
	if err != nil || nav.StatusCode != 200 {
		t.Fatalf("expected fallback to http document, got %v / %+v", err, nav)
	}
	content, _ := a.Content(context.Background())
	if content != `<div id="root"></div>` {
		t.Errorf("content: %q", content)
	}
}

func TestNew_ConfigSinks(t *testing.T) {
	cfg := config.Default()
	cfg.Dest = t.TempDir()
	cfg.Sinks = []config.SinkConfig{{Type: "carrier-pigeon"}}
	if _, err := New(context.Background(), cfg, WithSource(&fakeSource{})); err == nil {
		t.Fatal("unknown sink type should fail")
	}

	cfg.Sinks = []config.SinkConfig{{Type: "webhook"}}
	if _, err := New(context.Background(), cfg, WithSource(&fakeSource{})); err == nil {
		t.Fatal("webhook without url should fail")
	}

	cfg.Sinks = []config.SinkConfig{{Type: "stdout"}, {Type: "webhook", URL: "http://127.0.0.1:1/hook"}}
	m, err := New(context.Background(), cfg, WithSource(&fakeSource{}))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.sinks) != 2 {
		t.Errorf("sinks: got %d", len(m.sinks))
	}
}

func TestNavigationError(t *testing.T) {
	cause := errors.New("tls: handshake failure")
	e := &NavigationError{Address: "https://x.test/", Err: cause}
	if !errors.Is(e, cause) {
		t.Error("Unwrap lost the cause")
	}
	e = &NavigationError{Address: "https://x.test/", StatusCode: 503}
	if !strings.Contains(e.Error(), "503") {
		t.Errorf("message: %q", e.Error())
	}
}
