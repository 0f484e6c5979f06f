package sink

import (
	"context"

	"github.com/hazyhaar/dommirror/manifest"
)

// ReportFunc is called for each report.
type ReportFunc func(ctx context.Context, report manifest.Report) error

// Callback delivers reports through a Go function call, for embedding
// dommirror in another process.
type Callback struct {
	onReport ReportFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn ReportFunc) *Callback {
	return &Callback{onReport: fn}
}

func (c *Callback) SendReport(ctx context.Context, report manifest.Report) error {
	if c.onReport != nil {
		return c.onReport(ctx, report)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
