package dommirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/dommirror/internal/collect"
	"github.com/hazyhaar/dommirror/manifest"
)

const scrollHeightJS = `() => document.body ? document.body.scrollHeight : document.documentElement.scrollHeight`

// MirrorPage runs one address through navigating, settling, collecting,
// displaying (when cfg.Metadata is set) and writing. The returned report is
// never nil and has already been sent to the sinks. The error is a
// *NavigationError when the page was abandoned before anything was written.
func (m *Mirror) MirrorPage(ctx context.Context, address string) (*manifest.Report, error) {
	rep := &manifest.Report{
		ID:        m.ids(),
		Page:      manifest.Identity{Address: address},
		State:     manifest.StateNavigating,
		StartedAt: m.now().UnixMilli(),
	}
	m.logger.Info("mirror: processing", "address", address, "id", rep.ID)

	id, err := manifest.NewIdentity(address)
	if err != nil {
		return m.finish(ctx, rep, &NavigationError{Address: address, Err: err})
	}
	rep.Page = id

	// Navigating
	nav, err := m.source.Navigate(ctx, address)
	if err != nil {
		return m.finish(ctx, rep, &NavigationError{Address: address, Err: err})
	}
	rep.StatusCode = nav.StatusCode
	if nav.StatusCode != 0 && (nav.StatusCode < 200 || nav.StatusCode > 299) {
		return m.finish(ctx, rep, &NavigationError{Address: address, StatusCode: nav.StatusCode})
	}

	// Settling
	rep.State = manifest.StateSettling
	if err := m.settle(ctx); err != nil {
		return m.finish(ctx, rep, err)
	}

	// Collecting
	rep.State = manifest.StateCollecting
	content, err := m.source.Content(ctx)
	if err != nil {
		return m.finish(ctx, rep, fmt.Errorf("dommirror: read document: %w", err))
	}
	doc, err := collect.Parse(content)
	if err != nil {
		return m.finish(ctx, rep, err)
	}
	pageURL := nav.URL
	if pageURL == "" {
		pageURL = address
	}
	res := collect.Collect(doc, collect.Page{URL: pageURL, Hostname: id.Hostname})
	res.Apply()
	rendered, err := collect.Render(doc)
	if err != nil {
		return m.finish(ctx, rep, err)
	}
	rep.Links = len(res.Links)
	rep.Images = len(res.Manifest.Images)
	rep.Scripts = len(res.Manifest.Scripts)

	// Displaying
	if m.cfg.Metadata {
		rep.State = manifest.StateDisplaying
		m.display(id, res)
	}

	// Writing
	rep.State = manifest.StateWriting
	wres, err := m.writer.Write(ctx, id, rendered, res.Manifest.All())
	if wres != nil {
		rep.Saved = wres.Saved
		rep.DocumentPath = wres.DocumentPath
		for _, f := range wres.Failures {
			rep.Failures = append(rep.Failures, manifest.Failure{
				Source: f.Source, Path: f.Path, Error: f.Err.Error(),
			})
		}
	}
	if err != nil {
		return m.finish(ctx, rep, err)
	}
	rep.DocumentHash = manifest.HashDocument([]byte(rendered))
	fmt.Fprintf(m.out, "Saved as: %s\n", wres.DocumentPath)

	rep.State = manifest.StateDone
	return m.finish(ctx, rep, nil)
}

// settle waits for the network to go quiet, then scrolls to the bottom and
// back so lazy content loads. Only cancellation aborts it.
func (m *Mirror) settle(ctx context.Context) error {
	if err := m.source.WaitNetworkIdle(ctx, m.cfg.Settle.Idle); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Debug("mirror: network idle wait", "error", err)
	}
	if m.cfg.Settle.Scroll != nil && !*m.cfg.Settle.Scroll {
		return nil
	}

	raw, err := m.source.Evaluate(ctx, scrollHeightJS)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Debug("mirror: scroll skipped", "error", err)
		return nil
	}
	var height float64
	if err := json.Unmarshal(raw, &height); err != nil {
		m.logger.Debug("mirror: scroll height", "value", string(raw), "error", err)
		return nil
	}

	for _, y := range []int{int(height), 0} {
		if err := m.source.ScrollTo(ctx, y); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Debug("mirror: scroll", "y", y, "error", err)
		}
	}
	return nil
}

// finish stamps the report, sends it to the sinks and returns it with err.
func (m *Mirror) finish(ctx context.Context, rep *manifest.Report, err error) (*manifest.Report, error) {
	if err != nil {
		rep.State = manifest.StateFailed
		rep.Error = err.Error()
		var nerr *NavigationError
		if errors.As(err, &nerr) && nerr.StatusCode != 0 {
			fmt.Fprintf(m.out, "ERROR: Page returned %d\n", nerr.StatusCode)
		} else {
			fmt.Fprintf(m.out, "ERROR: %v\n", err)
		}
		m.logger.Warn("mirror: page failed", "address", rep.Page.Address, "state", rep.State, "error", err)
	}
	rep.FinishedAt = m.now().UnixMilli()

	// Reports are delivered even when the run is being cancelled.
	if serr := m.sink.SendReport(context.WithoutCancel(ctx), *rep); serr != nil {
		m.logger.Warn("mirror: report not delivered", "id", rep.ID, "error", serr)
	}
	return rep, err
}
