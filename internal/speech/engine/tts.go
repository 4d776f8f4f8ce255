package engine

import (
	"context"
	"errors"
)

// ErrInterrupted reports a synthesis cancelled by a newer request or
// an explicit stop. Callers treat it as a normal outcome, not a fault.
var ErrInterrupted = errors.New("speech interrupted")

// Voice describes an available synthesis voice.
type Voice struct {
	ID       string
	Name     string
	Language string
}

// Utterance is one synthesis request.
type Utterance struct {
	Text string
	// Rate is a speaking-rate multiplier; 1.0 is the voice default.
	Rate float64
	// Voice selects a voice by ID; empty uses the backend default.
	Voice string
}

// Handlers receives progress callbacks for an utterance. All fields
// are optional. Callbacks arrive from the backend's goroutine.
type Handlers struct {
	// OnBoundary reports a character offset into the utterance text
	// as speech reaches it.
	OnBoundary func(charIndex int)
	// OnEnd fires once when the utterance finishes naturally.
	OnEnd func()
	// OnError fires once when synthesis fails or is interrupted, with
	// ErrInterrupted for cancellations.
	OnError func(err error)
}

// Synthesizer speaks text aloud. A Speak call replaces any utterance
// in flight.
type Synthesizer interface {
	Speak(ctx context.Context, u Utterance, h Handlers) error
	Cancel()
	Voices() []Voice
	Close() error
}
