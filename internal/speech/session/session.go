// Package session tracks one reading-aloud utterance through its
// lifecycle. Voice or rate changes mid-utterance cancel the backend
// and resume from the last spoken character, so the listener never
// hears text repeated or skipped.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/rs/xid"

	"github.com/pagevoice/pagevoice/internal/speech/engine"
	"github.com/pagevoice/pagevoice/pkg/events"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusSpeaking    Status = "speaking"
	StatusInterrupted Status = "interrupted"
	StatusEnded       Status = "ended"
	StatusErrored     Status = "errored"
)

// Settings are the adjustable speech parameters.
type Settings struct {
	Rate  float64
	Voice string
}

// Session drives a synthesizer for one logical piece of text. All
// methods are safe for concurrent use.
type Session struct {
	mu    sync.Mutex
	synth engine.Synthesizer
	pub   *events.Publisher

	id       string
	status   Status
	text     []rune
	cursor   int
	settings Settings

	// epoch invalidates callbacks from a cancelled utterance. Each
	// synthesizer launch captures the current value; callbacks from
	// an older launch are discarded.
	epoch int
}

// New creates an idle session over a synthesizer. pub may be nil.
func New(synth engine.Synthesizer, pub *events.Publisher) *Session {
	return &Session{
		synth:  synth,
		pub:    pub,
		id:     xid.New().String(),
		status: StatusIdle,
		settings: Settings{
			Rate: 1.0,
		},
	}
}

// ID returns the session identifier used in emitted events.
func (s *Session) ID() string { return s.id }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Cursor returns the absolute index of the last spoken character.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Speak starts reading text, replacing any utterance in flight.
// Whitespace-only text leaves the session idle.
func (s *Session) Speak(ctx context.Context, text string, settings Settings) error {
	trimmed := strings.TrimSpace(text)

	s.mu.Lock()
	s.cancelLocked()
	if trimmed == "" {
		s.status = StatusIdle
		s.text = nil
		s.cursor = 0
		s.mu.Unlock()
		return nil
	}
	if settings.Rate <= 0 {
		settings.Rate = 1.0
	}
	s.text = []rune(trimmed)
	s.cursor = 0
	s.settings = settings
	s.status = StatusSpeaking
	s.epoch++
	epoch := s.epoch
	textLen := len(s.text)
	s.mu.Unlock()

	s.emit(ctx, events.SpeechStarted, events.SpeechStartedData{
		TextLen: textLen,
		Rate:    settings.Rate,
		Voice:   settings.Voice,
	})
	return s.launch(ctx, epoch, 0, trimmed, settings)
}

// UpdateSettings applies a new rate or voice to the utterance in
// flight. Synthesis restarts from the character after the cursor; when
// the cursor already reached the end the session goes idle instead.
// The call is a no-op unless the session is speaking.
func (s *Session) UpdateSettings(ctx context.Context, settings Settings) error {
	s.mu.Lock()
	if s.status != StatusSpeaking {
		s.mu.Unlock()
		return nil
	}
	s.cancelLocked()
	if settings.Rate <= 0 {
		settings.Rate = s.settings.Rate
	}
	if settings.Voice == "" {
		settings.Voice = s.settings.Voice
	}
	s.settings = settings
	if s.cursor >= len(s.text) {
		// Nothing left to resume; the utterance was effectively over.
		s.status = StatusIdle
		s.mu.Unlock()
		s.emit(ctx, events.SpeechStopped, events.SpeechStoppedData{})
		return nil
	}
	s.status = StatusSpeaking
	s.epoch++
	epoch := s.epoch
	base := s.cursor
	remaining := string(s.text[s.cursor:])
	s.mu.Unlock()

	slog.Debug("session: settings updated mid-utterance",
		slog.String("session", s.id),
		slog.Int("resume_at", base))
	return s.launch(ctx, epoch, base, remaining, settings)
}

// Stop cancels the utterance in flight. Always emits a stopped
// notification, even when nothing was speaking, so listeners can
// settle their state unconditionally.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	s.cancelLocked()
	s.status = StatusIdle
	s.mu.Unlock()

	s.emit(ctx, events.SpeechStopped, events.SpeechStoppedData{})
}

// cancelLocked invalidates in-flight callbacks and cancels the
// backend. Callers hold the mutex.
func (s *Session) cancelLocked() {
	if s.status == StatusSpeaking {
		s.status = StatusInterrupted
	}
	s.epoch++
	s.synth.Cancel()
}

// launch starts one synthesizer pass over text whose first character
// sits at absolute offset base.
func (s *Session) launch(ctx context.Context, epoch, base int, text string, settings Settings) error {
	handlers := engine.Handlers{
		OnBoundary: func(rel int) {
			s.onBoundary(ctx, epoch, base+rel)
		},
		OnEnd: func() {
			s.onEnd(ctx, epoch)
		},
		OnError: func(err error) {
			s.onError(ctx, epoch, err)
		},
	}
	err := s.synth.Speak(ctx, engine.Utterance{
		Text:  text,
		Rate:  settings.Rate,
		Voice: settings.Voice,
	}, handlers)
	if err != nil {
		s.mu.Lock()
		if s.epoch == epoch {
			s.status = StatusErrored
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// onBoundary advances the cursor. Offsets are absolute and must be
// monotonic; a stale or rewinding boundary is dropped.
func (s *Session) onBoundary(ctx context.Context, epoch, abs int) {
	s.mu.Lock()
	if s.epoch != epoch || s.status != StatusSpeaking {
		s.mu.Unlock()
		return
	}
	if abs <= s.cursor {
		s.mu.Unlock()
		return
	}
	if abs > len(s.text) {
		abs = len(s.text)
	}
	s.cursor = abs
	s.mu.Unlock()

	s.emit(ctx, events.SpeechBoundary, events.SpeechBoundaryData{CharIndex: abs})
}

func (s *Session) onEnd(ctx context.Context, epoch int) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.status = StatusEnded
	s.cursor = len(s.text)
	s.mu.Unlock()

	s.emit(ctx, events.SpeechStopped, events.SpeechStoppedData{})
}

func (s *Session) onError(ctx context.Context, epoch int, err error) {
	// Cancellations surface here from backends that cannot tell an
	// interrupt from a failure; they are an expected part of
	// cancel-and-resume, never an error state.
	if errors.Is(err, engine.ErrInterrupted) {
		return
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.status = StatusErrored
	s.mu.Unlock()

	slog.Error("session: synthesis failed",
		slog.String("session", s.id),
		slog.String("error", err.Error()))
	s.emit(ctx, events.SpeechStopped, events.SpeechStoppedData{Error: err.Error()})
}

func (s *Session) emit(ctx context.Context, et events.EventType, data any) {
	if s.pub == nil {
		return
	}
	_ = s.pub.Emit(ctx, et, s.id, data)
}
