// Package upload owns the file selection -> upload -> result/error lifecycle.
//
// The countdown exposed while uploading is cosmetic: it ticks once per second
// from a fixed start regardless of how long the request actually takes, and
// reaching zero means nothing. Callers must not present it as progress.
package upload

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"nyaymitra/client/internal/clock"
	"nyaymitra/client/internal/fault"
	"nyaymitra/client/internal/remote"
)

// Status is the upload session state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusUploading Status = "uploading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// DefaultCountdown matches the delay users are told to expect.
const DefaultCountdown = 20

// Analyzer is the remote document service.
type Analyzer interface {
	ProcessDocument(ctx context.Context, file remote.File) (remote.AnalysisResult, error)
}

// Session is a snapshot of the controller state.
type Session struct {
	FileName  string                 `json:"fileName,omitempty"`
	Status    Status                 `json:"status"`
	Countdown int                    `json:"countdown"`
	Error     string                 `json:"error,omitempty"`
	Result    *remote.AnalysisResult `json:"result,omitempty"`
}

// Options tunes a Controller. Zero values pick the defaults.
type Options struct {
	Clock          clock.Clock
	CountdownTicks int
	MaxBytes       int64
	// OnSettled runs after a successful analysis, outside the controller lock.
	OnSettled func(file remote.File, result remote.AnalysisResult)
}

// Controller runs at most one upload at a time.
type Controller struct {
	analyzer  Analyzer
	clock     clock.Clock
	ticks     int
	maxBytes  int64
	onSettled func(remote.File, remote.AnalysisResult)

	mu        sync.Mutex
	file      *remote.File
	status    Status
	countdown int
	errMsg    string
	result    *remote.AnalysisResult
	timer     clock.Timer
	round     int

	inflight sync.WaitGroup
}

// NewController creates an idle controller.
func NewController(analyzer Analyzer, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.CountdownTicks <= 0 {
		opts.CountdownTicks = DefaultCountdown
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Controller{
		analyzer:  analyzer,
		clock:     opts.Clock,
		ticks:     opts.CountdownTicks,
		maxBytes:  opts.MaxBytes,
		onSettled: opts.OnSettled,
		status:    StatusIdle,
	}
}

// Submit starts analysing file in the background. It fails with
// fault.ErrAlreadyInProgress, leaving the running session untouched, while an
// upload is in flight. An invalid file fails the session without a network call.
// The request outlives ctx's cancellation; only its values are kept.
func (c *Controller) Submit(ctx context.Context, file remote.File) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusUploading {
		return fault.ErrAlreadyInProgress
	}

	checked, err := Validate(file, c.maxBytes)
	if err != nil {
		c.status = StatusFailed
		c.errMsg = fault.Message(err)
		c.file = nil
		c.result = nil
		c.countdown = 0
		return err
	}

	c.file = &checked
	c.status = StatusUploading
	c.errMsg = ""
	c.result = nil
	c.countdown = c.ticks
	c.round++
	c.scheduleTickLocked(c.round)

	c.inflight.Add(1)
	go c.run(context.WithoutCancel(ctx), checked)
	return nil
}

func (c *Controller) run(ctx context.Context, file remote.File) {
	defer c.inflight.Done()

	started := time.Now()
	result, err := c.analyzer.ProcessDocument(ctx, file)

	c.mu.Lock()
	c.stopTimerLocked()
	if err != nil {
		c.status = StatusFailed
		c.errMsg = fault.Message(err)
		c.countdown = 0
		// the user has to pick the file again to retry
		c.file = nil
		c.mu.Unlock()
		log.Printf("upload: %s failed after %s: %v", file.Name, time.Since(started).Round(time.Millisecond), err)
		return
	}
	stored := result.Clone()
	c.result = &stored
	c.status = StatusSucceeded
	c.countdown = 0
	c.mu.Unlock()

	log.Printf("upload: %s analysed in %s", file.Name, time.Since(started).Round(time.Millisecond))
	if c.onSettled != nil {
		c.onSettled(file, result.Clone())
	}
}

// Reset returns the controller to idle and drops any result. It is a no-op
// when already idle and fails with fault.ErrAlreadyInProgress while uploading.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusUploading {
		return fmt.Errorf("reset: %w", fault.ErrAlreadyInProgress)
	}
	c.stopTimerLocked()
	c.status = StatusIdle
	c.file = nil
	c.result = nil
	c.errMsg = ""
	c.countdown = 0
	return nil
}

// Wait blocks until the in-flight upload, if any, has settled.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Session{
		Status:    c.status,
		Countdown: c.countdown,
		Error:     c.errMsg,
	}
	if c.file != nil {
		s.FileName = c.file.Name
	}
	if c.result != nil {
		r := c.result.Clone()
		s.Result = &r
	}
	return s
}

// Result returns the current analysis, if the last upload succeeded.
func (c *Controller) Result() (remote.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return remote.AnalysisResult{}, false
	}
	return c.result.Clone(), true
}

func (c *Controller) scheduleTickLocked(round int) {
	c.timer = c.clock.AfterFunc(time.Second, func() { c.tick(round) })
}

func (c *Controller) tick(round int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if round != c.round || c.status != StatusUploading {
		return
	}
	if c.countdown > 0 {
		c.countdown--
	}
	if c.countdown > 0 {
		c.scheduleTickLocked(round)
	} else {
		c.timer = nil
	}
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
