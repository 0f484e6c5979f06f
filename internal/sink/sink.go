// Package sink defines output backends for mirror reports.
package sink

import (
	"context"

	"github.com/hazyhaar/dommirror/manifest"
)

// Sink delivers page reports to a backend (stdout, webhook, in-process
// callback).
type Sink interface {
	SendReport(ctx context.Context, report manifest.Report) error
	Close() error
}
