package dommirror

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hazyhaar/dommirror/internal/browser"
	"github.com/hazyhaar/dommirror/internal/config"
	"github.com/hazyhaar/dommirror/internal/fetcher"
)

// openSource builds the document source named by cfg.Source.
func openSource(ctx context.Context, cfg *config.Config, f *fetcher.Fetcher, logger *slog.Logger) (DocumentSource, error) {
	openBrowser := func(ctx context.Context) (DocumentSource, error) {
		b, err := newBrowserSource(ctx, browserConfig(cfg, logger))
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	switch cfg.Source {
	case config.SourceHTTP:
		return fetcher.NewSource(f), nil
	case config.SourceAuto:
		return newAutoSource(fetcher.NewSource(f), openBrowser, logger), nil
	default:
		return openBrowser(ctx)
	}
}

// browserSource owns its manager so closing the source also stops Chrome.
type browserSource struct {
	*browser.Session
	mgr *browser.Manager
}

func newBrowserSource(ctx context.Context, cfg browser.Config) (*browserSource, error) {
	mgr := browser.NewManager(cfg)
	s, err := browser.NewSession(ctx, mgr)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	return &browserSource{Session: s, mgr: mgr}, nil
}

func (b *browserSource) Close() error {
	err := b.Session.Close()
	if cerr := b.mgr.Close(); err == nil {
		err = cerr
	}
	return err
}

// autoSource loads each address over plain HTTP first and escalates to the
// browser when the HTML looks like an unrendered application shell. The
// browser is only started on the first escalation.
type autoSource struct {
	http   *fetcher.Source
	open   func(context.Context) (DocumentSource, error)
	logger *slog.Logger

	browser DocumentSource
	active  DocumentSource
}

func newAutoSource(h *fetcher.Source, open func(context.Context) (DocumentSource, error), logger *slog.Logger) *autoSource {
	return &autoSource{http: h, open: open, logger: logger, active: h}
}

func (a *autoSource) Navigate(ctx context.Context, address string) (*Navigation, error) {
	nav, err := a.http.Navigate(ctx, address)
	if err == nil && a.http.Sufficient && nav.StatusCode >= 200 && nav.StatusCode < 300 {
		a.active = a.http
		return nav, nil
	}

	if a.browser == nil {
		b, berr := a.open(ctx)
		if berr != nil {
			a.logger.Warn("mirror: browser unavailable, keeping http document",
				"address", address, "error", berr)
			a.active = a.http
			if err != nil {
				return nil, err
			}
			return nav, nil
		}
		a.browser = b
	}

	a.logger.Info("mirror: escalating to browser", "address", address)
	a.active = a.browser
	return a.browser.Navigate(ctx, address)
}

func (a *autoSource) WaitNetworkIdle(ctx context.Context, d time.Duration) error {
	return a.active.WaitNetworkIdle(ctx, d)
}

func (a *autoSource) ScrollTo(ctx context.Context, y int) error {
	return a.active.ScrollTo(ctx, y)
}

func (a *autoSource) Evaluate(ctx context.Context, js string, args ...any) (json.RawMessage, error) {
	return a.active.Evaluate(ctx, js, args...)
}

func (a *autoSource) Content(ctx context.Context) (string, error) {
	return a.active.Content(ctx)
}

func (a *autoSource) Close() error {
	if a.browser != nil {
		return a.browser.Close()
	}
	return nil
}
