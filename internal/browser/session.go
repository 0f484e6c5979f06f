package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/dommirror/manifest"
)

var (
	// ErrClosed is returned by Session methods after Close.
	ErrClosed = errors.New("browser: session closed")
	// ErrIdleTimeout is returned when the network never went quiet.
	ErrIdleTimeout = errors.New("browser: network idle wait timed out")
)

const snapshotJS = `() => {
	const dt = document.doctype;
	const head = dt ? new XMLSerializer().serializeToString(dt) + "\n" : "";
	return head + document.documentElement.outerHTML;
}`

// Session is a single tab reused for every address of a run.
type Session struct {
	mgr    *Manager
	page   *rod.Page
	router *rod.HijackRouter
}

// NewSession starts the manager if needed and opens the tab. Headless
// sessions get the stealth evasions; headful ones rely on the real display.
func NewSession(ctx context.Context, mgr *Manager) (*Session, error) {
	b, err := mgr.Start(ctx)
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if mgr.cfg.Stealth == LevelHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	s := &Session{mgr: mgr, page: page}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		s.router = blockResources(page, mgr.cfg.ResourceBlocking)
	}
	return s, nil
}

// Navigate loads address in the tab and waits for the load event. The
// status code is taken from the main document response.
func (s *Session) Navigate(ctx context.Context, address string) (*manifest.Navigation, error) {
	if s.page == nil {
		return nil, ErrClosed
	}
	navCtx, cancel := context.WithTimeout(ctx, s.mgr.cfg.NavTimeout)
	defer cancel()

	page := s.page.Context(navCtx)
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return nil, fmt.Errorf("browser: enable network: %w", err)
	}

	status := 0
	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		status = e.Response.Status
		return true
	})

	if err := page.Navigate(address); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", address, err)
	}
	wait()
	if err := navCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", address, err)
	}

	if err := page.WaitLoad(); err != nil {
		s.mgr.cfg.Logger.Warn("browser: wait load", "url", address, "error", err)
	}

	final := address
	if info, err := s.page.Info(); err == nil && info.URL != "" {
		final = info.URL
	}
	return &manifest.Navigation{URL: final, StatusCode: status}, nil
}

// WaitNetworkIdle blocks until no request has been in flight for d, or
// the navigation timeout passes. Pages that never go quiet return
// ErrIdleTimeout.
func (s *Session) WaitNetworkIdle(ctx context.Context, d time.Duration) error {
	if s.page == nil {
		return ErrClosed
	}
	return waitBounded(ctx, s.mgr.cfg.NavTimeout, func(ctx context.Context) {
		s.page.Context(ctx).WaitRequestIdle(d, nil, nil, nil)()
	})
}

// waitBounded runs wait under a deadline of limit. Cancellation of ctx is
// returned as is; hitting the deadline is ErrIdleTimeout.
func waitBounded(ctx context.Context, limit time.Duration, wait func(context.Context)) error {
	wctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	wait(wctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	if wctx.Err() != nil {
		return ErrIdleTimeout
	}
	return nil
}

// ScrollTo scrolls the window to vertical offset y.
func (s *Session) ScrollTo(ctx context.Context, y int) error {
	_, err := s.Evaluate(ctx, `y => window.scrollTo(0, y)`, y)
	return err
}

// Evaluate runs a JS function in the page and returns its JSON result.
func (s *Session) Evaluate(ctx context.Context, js string, args ...any) (json.RawMessage, error) {
	if s.page == nil {
		return nil, ErrClosed
	}
	res, err := s.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	return json.RawMessage(res.Value.JSON("", "")), nil
}

// Content serialises the live document, doctype included.
func (s *Session) Content(ctx context.Context) (string, error) {
	if s.page == nil {
		return "", ErrClosed
	}
	res, err := s.page.Context(ctx).Eval(snapshotJS)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Close closes the tab. The manager stays up.
func (s *Session) Close() error {
	if s.router != nil {
		s.router.Stop()
		s.router = nil
	}
	if s.page == nil {
		return nil
	}
	err := s.page.Close()
	s.page = nil
	return err
}
