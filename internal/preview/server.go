// Package preview serves a mirror destination folder over HTTP so saved
// pages can be browsed with working relative links.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/dommirror/internal/safe"
)

// Server exposes <dest>/<hostname>/... read-only.
type Server struct {
	dest   string
	logger *slog.Logger
	router *chi.Mux
}

// Host is one entry of the index listing.
type Host struct {
	Hostname string    `json:"hostname"`
	Files    int       `json:"files"`
	Modified time.Time `json:"modified"`
}

// New builds the preview router over dest.
func New(dest string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{dest: filepath.Clean(dest), logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(headToGet)
	r.Use(offlineHeaders)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/{host}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
	})
	r.Get("/{host}/*", s.handleFile)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("preview: listening", "addr", addr, "dest", s.dest)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("preview: %w", err)
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("preview: shutting down")
		return srv.Shutdown(shutCtx)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.Hosts()
	if err != nil {
		s.logger.Error("preview: list hosts", "error", err)
		http.Error(w, "cannot list destination", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hosts)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	rest := chi.URLParam(r, "*")
	if rest == "" || strings.HasSuffix(rest, "/") {
		rest += "index.html"
	}

	root, err := safe.Join(s.dest, host)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	path, err := safe.Join(root, rest)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

// Hosts lists the mirrored hostnames under dest, sorted by name.
func (s *Server) Hosts() ([]Host, error) {
	entries, err := os.ReadDir(s.dest)
	if err != nil {
		return nil, err
	}
	hosts := []Host{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		h := Host{Hostname: e.Name()}
		filepath.WalkDir(filepath.Join(s.dest, e.Name()), func(_ string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			h.Files++
			if fi, err := d.Info(); err == nil && fi.ModTime().After(h.Modified) {
				h.Modified = fi.ModTime()
			}
			return nil
		})
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Hostname < hosts[j].Hostname })
	return hosts, nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("preview: request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
