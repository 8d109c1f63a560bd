package export

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"nyaymitra/client/internal/clock"
	"nyaymitra/client/internal/fault"
)

// Options tunes a Controller. Zero values pick the defaults.
type Options struct {
	Clock   clock.Clock
	Timeout time.Duration
	// Sink is optional; without one the artifact is only returned.
	Sink Sink
}

// Controller runs at most one export at a time.
type Controller struct {
	view     ViewSource
	renderer Renderer
	packager Packager
	sink     Sink
	clock    clock.Clock
	timeout  time.Duration

	mu     sync.Mutex
	status Status
	errMsg string
	last   *Artifact
}

// NewController creates an idle controller.
func NewController(view ViewSource, renderer Renderer, packager Packager, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Controller{
		view:     view,
		renderer: renderer,
		packager: packager,
		sink:     opts.Sink,
		clock:    opts.Clock,
		timeout:  opts.Timeout,
		status:   StatusIdle,
	}
}

// FileName is the download name for an export started at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("NyayMitra_Report_%d.pdf", t.UnixMilli())
}

// ExportCurrentView captures the report on screen and packages it as a PDF.
// It fails with fault.ErrAlreadyInProgress while another export is rendering.
// Rendering runs to completion even if ctx is cancelled.
func (c *Controller) ExportCurrentView(ctx context.Context) (Artifact, error) {
	c.mu.Lock()
	if c.status == StatusRendering {
		c.mu.Unlock()
		return Artifact{}, fault.ErrAlreadyInProgress
	}
	c.status = StatusRendering
	c.errMsg = ""
	c.mu.Unlock()

	started := c.clock.Now()
	artifact, err := c.export(context.WithoutCancel(ctx), started)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.status = StatusFailed
		c.errMsg = fault.Message(err)
		log.Printf("export: failed: %v", err)
		return Artifact{}, err
	}
	c.status = StatusDone
	meta := artifact
	meta.Data = nil
	c.last = &meta
	log.Printf("export: %s (%d bytes) in %s", artifact.Name, artifact.Size, time.Since(started).Round(time.Millisecond))
	return artifact, nil
}

func (c *Controller) export(ctx context.Context, started time.Time) (Artifact, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	html, err := c.view.CurrentView(ctx)
	if err != nil {
		if errors.Is(err, ErrNothingToExport) {
			return Artifact{}, err
		}
		return Artifact{}, fmt.Errorf("%w: read view: %v", fault.ErrCapture, err)
	}

	raster, err := c.renderer.Capture(ctx, html, ExcludeSelector)
	if err != nil {
		if errors.Is(err, fault.ErrUnsupportedCapability) {
			return Artifact{}, err
		}
		return Artifact{}, fmt.Errorf("%w: capture: %v", fault.ErrCapture, err)
	}

	pdf, err := c.packager.Package(raster)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: package: %v", fault.ErrCapture, err)
	}

	artifact := Artifact{
		Name:      FileName(started),
		MimeType:  "application/pdf",
		Size:      len(pdf),
		CreatedAt: started,
		Data:      pdf,
	}
	if c.sink != nil {
		location, err := c.sink.Save(ctx, artifact.Name, artifact.MimeType, pdf)
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: save: %v", fault.ErrCapture, err)
		}
		artifact.Location = location
	}
	return artifact, nil
}

// Snapshot returns the job state.
func (c *Controller) Snapshot() Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	job := Job{Status: c.status, Error: c.errMsg}
	if c.last != nil {
		last := *c.last
		job.Last = &last
	}
	return job
}
