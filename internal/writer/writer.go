// Package writer persists a mirrored page: every referenced resource, then
// the rewritten document, under <dest>/<hostname>/.
//
// Resource failures never abort the page. They are logged, recorded in the
// result, and the remaining downloads continue.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/dommirror/internal/safe"
	"github.com/hazyhaar/dommirror/manifest"
)

// Fetcher retrieves one remote resource.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetchError is one resource that could not be downloaded or saved.
type FetchError struct {
	Source string
	Path   string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("writer: %s -> %s: %v", e.Source, e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Config configures the writer.
type Config struct {
	// Dest is the mirror root. Pages land in Dest/<hostname>/.
	Dest string
	// Workers bounds concurrent downloads. Default: 1 (manifest order).
	Workers int
	// Timeout bounds each resource fetch. Default: 30s.
	Timeout time.Duration
	// Rate limits fetches per second. 0 = unlimited.
	Rate float64
	// Markdown also writes a .md rendition next to the document.
	Markdown bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result summarises one Write.
type Result struct {
	DocumentPath string
	MarkdownPath string
	Saved        int
	Failures     []*FetchError
}

// Writer saves pages to disk.
type Writer struct {
	cfg     Config
	fetch   Fetcher
	limiter *rate.Limiter
}

// New creates a Writer that downloads through f.
func New(cfg Config, f Fetcher) *Writer {
	cfg.defaults()
	w := &Writer{cfg: cfg, fetch: f}
	if cfg.Rate > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	return w
}

// Root returns the folder a page of hostname is mirrored into.
func (w *Writer) Root(hostname string) (string, error) {
	return safe.Join(w.cfg.Dest, hostname)
}

// DocumentPath returns where the document of page is saved. It fails when
// the identity would place the document outside its hostname folder.
func (w *Writer) DocumentPath(page manifest.Identity) (string, error) {
	root, err := w.Root(page.Hostname)
	if err != nil {
		return "", err
	}
	return safe.Join(root, page.Filename)
}

// Write downloads refs and saves document. Only directory creation and the
// document write itself can fail the call.
func (w *Writer) Write(ctx context.Context, page manifest.Identity, document string, refs []manifest.Reference) (*Result, error) {
	root, err := w.Root(page.Hostname)
	if err != nil {
		return nil, fmt.Errorf("writer: hostname %q: %w", page.Hostname, err)
	}
	docPath, err := w.DocumentPath(page)
	if err != nil {
		return nil, fmt.Errorf("writer: document %q: %w", page.Filename, err)
	}
	if err := os.MkdirAll(filepath.Dir(docPath), 0o755); err != nil {
		return nil, fmt.Errorf("writer: mkdir %s: %w", root, err)
	}

	res := &Result{DocumentPath: docPath}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)
	for _, ref := range refs {
		if ref.Destination == "" {
			continue
		}
		g.Go(func() error {
			err := w.saveResource(gctx, root, ref)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures = append(res.Failures, err)
				w.cfg.Logger.Warn("writer: resource failed",
					"source", err.Source, "path", err.Path, "error", err.Err)
				return nil
			}
			res.Saved++
			return nil
		})
	}
	g.Wait()

	if err := writeAtomic(docPath, []byte(document)); err != nil {
		return res, fmt.Errorf("writer: save document: %w", err)
	}
	w.cfg.Logger.Info("writer: saved", "path", docPath,
		"resources", res.Saved, "failed", len(res.Failures))

	if w.cfg.Markdown {
		md, err := writeMarkdown(page, document, docPath)
		if err != nil {
			w.cfg.Logger.Warn("writer: markdown failed", "path", docPath, "error", err)
		} else {
			res.MarkdownPath = md
		}
	}
	return res, nil
}

func (w *Writer) saveResource(ctx context.Context, root string, ref manifest.Reference) *FetchError {
	target, err := safe.Join(root, ref.Destination)
	if err != nil {
		return &FetchError{Source: ref.Source, Path: filepath.Join(root, ref.Destination), Err: err}
	}
	fail := func(err error) *FetchError {
		return &FetchError{Source: ref.Source, Path: target, Err: err}
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return fail(err)
		}
	}

	fctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	data, err := w.fetch.Fetch(fctx, ref.Source)
	if err != nil {
		return fail(err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fail(err)
	}
	if err := writeAtomic(target, data); err != nil {
		return fail(err)
	}
	w.cfg.Logger.Debug("writer: resource saved", "source", ref.Source, "path", target, "size", len(data))
	return nil
}

// writeAtomic writes a temp file in the target's folder and renames it over
// target, so concurrent writers of one path never interleave.
func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
