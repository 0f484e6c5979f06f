package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/dommirror/manifest"
)

// Router fans out reports to all configured sinks. One sink error does not
// block the others; errors are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len is the number of sinks behind the router.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) SendReport(ctx context.Context, report manifest.Report) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.SendReport(ctx, report); err != nil {
			r.logger.Warn("sink: send report failed", "id", report.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
