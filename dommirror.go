// Package dommirror mirrors single rendered web pages to local disk.
//
// A Mirror drives one document source serially across addresses. For each
// address it loads the page, lets lazy content settle, collects and rewrites
// resource references, then saves resources and the document under
// <dest>/<hostname>/. Reports go to the configured sinks.
package dommirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hazyhaar/dommirror/internal/browser"
	"github.com/hazyhaar/dommirror/internal/config"
	"github.com/hazyhaar/dommirror/internal/fetcher"
	"github.com/hazyhaar/dommirror/internal/idgen"
	"github.com/hazyhaar/dommirror/internal/sink"
	"github.com/hazyhaar/dommirror/internal/writer"
	"github.com/hazyhaar/dommirror/manifest"
)

// Navigation is the outcome of loading a document.
type Navigation = manifest.Navigation

// DocumentSource loads and renders documents. One session serves a whole
// run; it is never used concurrently.
type DocumentSource interface {
	Navigate(ctx context.Context, url string) (*Navigation, error)
	WaitNetworkIdle(ctx context.Context, idle time.Duration) error
	ScrollTo(ctx context.Context, y int) error
	Evaluate(ctx context.Context, js string, args ...any) (json.RawMessage, error)
	Content(ctx context.Context) (string, error)
	Close() error
}

// NavigationError abandons one address: the source could not load it, or
// the server answered outside 2xx.
type NavigationError struct {
	Address    string
	StatusCode int
	Err        error
}

func (e *NavigationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dommirror: navigate %s: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("dommirror: navigate %s: page returned %d", e.Address, e.StatusCode)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// Mirror runs page operations against one destination folder.
type Mirror struct {
	cfg    *config.Config
	logger *slog.Logger
	source DocumentSource
	fetch  writer.Fetcher
	writer *writer.Writer
	sinks  []sink.Sink
	sink   sink.Sink
	out    io.Writer
	ids    idgen.Generator
	now    func() time.Time
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithSource sets the document source instead of building one from config.
// The Mirror closes it.
func WithSource(s DocumentSource) Option {
	return func(m *Mirror) { m.source = s }
}

// WithFetcher sets the resource fetcher.
func WithFetcher(f writer.Fetcher) Option {
	return func(m *Mirror) { m.fetch = f }
}

// WithSink adds a report sink.
func WithSink(s sink.Sink) Option {
	return func(m *Mirror) { m.sinks = append(m.sinks, s) }
}

// WithOutput sets where metadata is displayed. Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(m *Mirror) { m.out = w }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithIDGenerator sets the report ID strategy. Default: UUIDv7.
func WithIDGenerator(g idgen.Generator) Option {
	return func(m *Mirror) { m.ids = g }
}

// New builds a Mirror. cfg must already be validated. Without WithSource,
// the source named by cfg.Source is opened now (Chrome is launched for
// browser mode).
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Mirror, error) {
	cfg.ApplyDefaults()
	m := &Mirror{
		cfg:    cfg,
		logger: slog.Default(),
		out:    os.Stdout,
		ids:    idgen.Default,
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}

	httpFetcher := fetcher.New(
		fetcher.WithTimeout(cfg.Fetch.Timeout),
		fetcher.WithUserAgent(cfg.Fetch.UserAgent),
		fetcher.WithMaxBytes(cfg.Fetch.MaxBytes),
		fetcher.WithLogger(m.logger),
	)
	if m.fetch == nil {
		m.fetch = httpFetcher
	}

	if m.sinks == nil {
		for _, sc := range cfg.Sinks {
			s, err := newSink(sc, m.logger)
			if err != nil {
				return nil, err
			}
			m.sinks = append(m.sinks, s)
		}
	}
	m.sink = sink.NewRouter(m.logger, m.sinks...)

	if m.source == nil {
		src, err := openSource(ctx, cfg, httpFetcher, m.logger)
		if err != nil {
			return nil, err
		}
		m.source = src
	}

	m.writer = writer.New(writer.Config{
		Dest:     cfg.Dest,
		Workers:  cfg.Fetch.Workers,
		Timeout:  cfg.Fetch.Timeout,
		Rate:     cfg.Fetch.Rate,
		Markdown: cfg.Markdown,
		Logger:   m.logger,
	}, m.fetch)

	return m, nil
}

// Run mirrors each address in order. A failed page never stops the run;
// only context cancellation does.
func (m *Mirror) Run(ctx context.Context, addresses []string) ([]*manifest.Report, error) {
	reports := make([]*manifest.Report, 0, len(addresses))
	for _, addr := range addresses {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep, _ := m.MirrorPage(ctx, addr)
		reports = append(reports, rep)
	}
	return reports, ctx.Err()
}

// Close releases the source and the sinks.
func (m *Mirror) Close() error {
	var firstErr error
	if m.source != nil {
		firstErr = m.source.Close()
	}
	if err := m.sink.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func newSink(sc config.SinkConfig, logger *slog.Logger) (sink.Sink, error) {
	switch sc.Type {
	case "stdout":
		return sink.NewStdout(nil), nil
	case "webhook":
		if sc.URL == "" {
			return nil, fmt.Errorf("dommirror: webhook sink needs a url")
		}
		return sink.NewWebhook(sc.URL, sink.WithWebhookLogger(logger)), nil
	default:
		return nil, fmt.Errorf("dommirror: unknown sink type %q", sc.Type)
	}
}

func browserConfig(cfg *config.Config, logger *slog.Logger) browser.Config {
	return browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Stealth:          browser.ParseStealth(cfg.Browser.Stealth),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		NoSandbox:        cfg.Browser.NoSandbox == nil || *cfg.Browser.NoSandbox,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		NavTimeout:       cfg.Browser.NavTimeout,
		Logger:           logger,
	}
}
