// Package speech reads analysis text aloud. At most one utterance plays at a
// time and every utterance is cancelled when its controller is closed.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"nyaymitra/client/internal/fault"
	"nyaymitra/client/internal/remote"
)

// ErrClosed is returned by Speak after Close.
var ErrClosed = errors.New("speech controller closed")

// Utterance is one request to a Synthesizer.
type Utterance struct {
	Text string
	Lang string
	// Voice is nil when the synthesizer default should be used.
	Voice *Voice
	Rate  float64
	Pitch float64
}

// Synthesizer is the text-to-speech capability.
type Synthesizer interface {
	Voices(ctx context.Context) ([]Voice, error)
	// Speak blocks until the utterance finishes or ctx is cancelled.
	Speak(ctx context.Context, u Utterance) error
}

// Status describes the active utterance.
type Status struct {
	Speaking bool            `json:"speaking"`
	Text     string          `json:"text,omitempty"`
	Language remote.Language `json:"language,omitempty"`
	Voice    string          `json:"voice,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type session struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}
	status Status
}

// Controller owns the single speech session.
type Controller struct {
	synth Synthesizer

	// speakMu serialises Speak so the cancel-then-start sequence is atomic.
	speakMu sync.Mutex

	mu      sync.Mutex
	active  *session
	nextID  uint64
	closed  bool
	lastErr string
}

// NewController creates a controller. synth may be nil when the runtime has
// no speech output; Speak then fails with fault.ErrUnsupportedCapability.
func NewController(synth Synthesizer) *Controller {
	return &Controller{synth: synth}
}

// Speak cancels any active utterance, waits for it to end, then starts text
// in the background.
func (c *Controller) Speak(text string, lang remote.Language) error {
	if c.synth == nil {
		return fault.ErrUnsupportedCapability
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("speak: empty text")
	}

	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	c.Stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     c.nextID,
		cancel: cancel,
		done:   make(chan struct{}),
		status: Status{Speaking: true, Text: text, Language: lang},
	}
	c.active = s
	c.lastErr = ""
	c.mu.Unlock()

	go c.run(ctx, s, text, lang)
	return nil
}

func (c *Controller) run(ctx context.Context, s *session, text string, lang remote.Language) {
	defer close(s.done)
	defer s.cancel()

	rate, pitch := Prosody(lang)
	u := Utterance{Text: text, Lang: Locale(lang).String(), Rate: rate, Pitch: pitch}

	voices, err := c.synth.Voices(ctx)
	if err != nil {
		log.Printf("speech: list voices: %v", err)
	}
	if v, ok := SelectVoice(voices, lang); ok {
		u.Voice = &v
		c.mu.Lock()
		s.status.Voice = v.Name
		c.mu.Unlock()
	}

	err = c.synth.Speak(ctx, u)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == s {
		c.active = nil
	}
	if err != nil && ctx.Err() == nil {
		log.Printf("speech: utterance %d failed: %v", s.id, err)
		c.lastErr = fault.Message(err)
	}
}

// Stop cancels the active utterance and waits for it to release. It is a
// no-op when nothing is playing.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.mu.Unlock()

	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Close stops playback and refuses further sessions.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Stop()
}

// Wait blocks until the active utterance, if any, has ended.
func (c *Controller) Wait() {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s != nil {
		<-s.done
	}
}

// Status returns the active utterance, or the last failure when idle.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return c.active.status
	}
	return Status{Error: c.lastErr}
}
