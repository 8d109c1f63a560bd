// Package export turns the current report view into a downloadable PDF.
//
// The output is a best-effort visual snapshot, not a re-derivation of the
// analysis: whatever is clipped or reflowed when the view is captured is
// clipped or reflowed in the PDF.
package export

import (
	"context"
	"errors"
	"time"
)

// Status is the export job state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRendering Status = "rendering"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
)

// ExcludeSelector marks elements left out of the capture (action buttons,
// the language switcher).
const ExcludeSelector = ".no-export"

// ErrNothingToExport means there is no report on screen.
var ErrNothingToExport = errors.New("no report to export")

// ViewSource produces the HTML of the report currently on screen.
type ViewSource interface {
	CurrentView(ctx context.Context) (string, error)
}

// Renderer rasterises HTML to PNG, dropping elements matching exclude.
type Renderer interface {
	Capture(ctx context.Context, html, exclude string) ([]byte, error)
}

// Packager wraps a PNG raster in a paginated document.
type Packager interface {
	Package(png []byte) ([]byte, error)
}

// Sink stores a finished artifact and returns where it went.
type Sink interface {
	Save(ctx context.Context, name, mimeType string, data []byte) (string, error)
}

// Artifact is a finished export.
type Artifact struct {
	Name      string    `json:"name"`
	MimeType  string    `json:"mimeType"`
	Location  string    `json:"location,omitempty"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	Data      []byte    `json:"-"`
}

// Job is the export controller state.
type Job struct {
	Status Status    `json:"status"`
	Error  string    `json:"error,omitempty"`
	Last   *Artifact `json:"last,omitempty"`
}
