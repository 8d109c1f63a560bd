// Package search owns the legal-knowledge search lifecycle: debounced query
// dispatch, generation tickets that discard out-of-order responses, voice
// input bridging, and the backends (cache, rights catalog) behind it.
package search

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"nyaymitra/client/internal/clock"
	"nyaymitra/client/internal/fault"
	"nyaymitra/client/internal/remote"
)

// State is the controller lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateDebouncing State = "debouncing"
	StateRequesting State = "requesting"
)

const (
	// DefaultDebounce is the quiet period before a query is dispatched. It
	// keeps typing from burning the backend's per-minute quota.
	DefaultDebounce = time.Second
	// MinQueryRunes is the longest input that never reaches the network.
	MinQueryRunes = 2

	BusyMessage = "Legal search is busy right now. Please try again in a minute."
)

// Searcher answers legal-knowledge queries.
type Searcher interface {
	SearchLaws(ctx context.Context, query string) ([]remote.RightCard, error)
}

// Recognizer turns speech into a transcript.
type Recognizer interface {
	Listen(ctx context.Context, lang remote.Language) (string, error)
}

// Snapshot is what the presentation layer renders.
type Snapshot struct {
	Input       string             `json:"input"`
	State       State              `json:"state"`
	Results     []remote.RightCard `json:"results"`
	ResultQuery string             `json:"resultQuery,omitempty"`
	Generation  uint64             `json:"generation"`
	Status      string             `json:"status,omitempty"`
	Listening   bool               `json:"listening"`

	// InFlight counts dispatched requests that have not returned, orphaned
	// ones included.
	InFlight int `json:"inFlight"`
}

// Options tunes a Controller. Zero values pick the defaults.
type Options struct {
	Clock      clock.Clock
	Debounce   time.Duration
	Timeout    time.Duration
	Recognizer Recognizer
	// VoiceLanguage is passed to the recognizer; Hindi by default.
	VoiceLanguage remote.Language
}

// Controller coalesces keystrokes into searches and applies only the newest
// settled generation.
type Controller struct {
	searcher   Searcher
	clock      clock.Clock
	debounce   time.Duration
	timeout    time.Duration
	recognizer Recognizer
	voiceLang  remote.Language

	mu          sync.Mutex
	input       string
	pending     string
	timer       clock.Timer
	round       uint64
	dispatched  uint64
	settled     uint64
	results     []remote.RightCard
	resultQuery string
	resultGen   uint64
	status      string
	listening   bool
	running     int

	inflight sync.WaitGroup
}

// NewController creates an idle controller.
func NewController(searcher Searcher, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.VoiceLanguage == "" {
		opts.VoiceLanguage = remote.Hindi
	}
	return &Controller{
		searcher:   searcher,
		clock:      opts.Clock,
		debounce:   opts.Debounce,
		timeout:    opts.Timeout,
		recognizer: opts.Recognizer,
		voiceLang:  opts.VoiceLanguage,
		results:    []remote.RightCard{},
	}
}

// OnQueryChange records the live input and (re)schedules a search. Inputs of
// MinQueryRunes or fewer clear the results, cancel the pending search and
// orphan any request still in flight.
func (c *Controller) OnQueryChange(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.input = text
	c.stopTimerLocked()

	query := strings.TrimSpace(text)
	if utf8.RuneCountInString(query) <= MinQueryRunes {
		c.results = []remote.RightCard{}
		c.resultQuery = ""
		c.resultGen = c.dispatched
		c.status = ""
		c.settled = c.dispatched
		return
	}

	c.pending = query
	c.round++
	round := c.round
	c.timer = c.clock.AfterFunc(c.debounce, func() { c.fire(round) })
}

// OnVoiceResult feeds a transcript through the same path as typed input.
func (c *Controller) OnVoiceResult(transcript string) {
	c.OnQueryChange(transcript)
}

// Flush dispatches the pending search now instead of waiting out the quiet
// period. It reports whether anything was pending.
func (c *Controller) Flush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer == nil {
		return false
	}
	c.stopTimerLocked()
	c.dispatchLocked()
	return true
}

// Listen captures one utterance through the recognizer and submits it as a
// query. Without a recognizer it fails with fault.ErrUnsupportedCapability.
func (c *Controller) Listen(ctx context.Context) (string, error) {
	if c.recognizer == nil {
		return "", fault.ErrUnsupportedCapability
	}

	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return "", fault.ErrAlreadyInProgress
	}
	c.listening = true
	c.mu.Unlock()

	transcript, err := c.recognizer.Listen(ctx, c.voiceLang)

	c.mu.Lock()
	c.listening = false
	if err != nil {
		c.status = fault.Message(err)
	}
	c.mu.Unlock()

	if err != nil {
		return "", err
	}
	c.OnVoiceResult(transcript)
	return transcript, nil
}

// Wait blocks until every dispatched request has returned. A search still
// waiting out its quiet period is not waited for.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Input:       c.input,
		State:       c.stateLocked(),
		Results:     append([]remote.RightCard{}, c.results...),
		ResultQuery: c.resultQuery,
		Generation:  c.resultGen,
		Status:      c.status,
		Listening:   c.listening,
		InFlight:    c.running,
	}
}

// Close cancels the pending search. In-flight requests finish and are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.settled = c.dispatched
}

func (c *Controller) stateLocked() State {
	switch {
	case c.timer != nil:
		return StateDebouncing
	case c.dispatched > c.settled:
		return StateRequesting
	default:
		return StateIdle
	}
}

func (c *Controller) fire(round uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// a reschedule or clear raced with this callback
	if round != c.round || c.timer == nil {
		return
	}
	c.timer = nil
	c.dispatchLocked()
}

func (c *Controller) dispatchLocked() {
	c.dispatched++
	ticket := c.dispatched
	query := c.pending

	c.running++
	c.inflight.Add(1)
	go c.run(ticket, query)
}

func (c *Controller) run(ticket uint64, query string) {
	defer c.inflight.Done()

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cards, err := c.searcher.SearchLaws(ctx, query)
	c.settle(ticket, query, cards, err)
}

func (c *Controller) settle(ticket uint64, query string, cards []remote.RightCard, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running--
	if ticket <= c.settled {
		log.Printf("search: dropping stale results for %q (generation %d <= %d)", query, ticket, c.settled)
		return
	}
	c.settled = ticket

	switch {
	case err == nil:
		if cards == nil {
			cards = []remote.RightCard{}
		}
		c.results = append([]remote.RightCard{}, cards...)
		c.resultQuery = query
		c.resultGen = ticket
		c.status = ""
	case errors.Is(err, fault.ErrCapacity):
		c.results = []remote.RightCard{}
		c.resultQuery = query
		c.resultGen = ticket
		c.status = BusyMessage
	default:
		// keep the last good results on screen
		log.Printf("search: query %q failed: %v", query, err)
		c.status = fault.Message(err)
	}
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
