package reader

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pagevoice/pagevoice/internal/speech/engine"
	"github.com/pagevoice/pagevoice/internal/speech/session"
	"github.com/pagevoice/pagevoice/pkg/events"
)

type fakeSynth struct {
	mu         sync.Mutex
	utterances []engine.Utterance
	handlers   []engine.Handlers
}

func (f *fakeSynth) Speak(_ context.Context, u engine.Utterance, h engine.Handlers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.utterances = append(f.utterances, u)
	f.handlers = append(f.handlers, h)
	return nil
}

func (f *fakeSynth) Cancel()                {}
func (f *fakeSynth) Voices() []engine.Voice { return nil }
func (f *fakeSynth) Close() error           { return nil }

func (f *fakeSynth) utterance(t *testing.T, i int) (engine.Utterance, engine.Handlers) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.utterances) {
		t.Fatalf("utterance %d not launched, have %d", i, len(f.utterances))
	}
	return f.utterances[i], f.handlers[i]
}

func (f *fakeSynth) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.utterances)
}

type recordingHighlighter struct {
	mu         sync.Mutex
	overlays   []int
	boundaries [][2]int
	clears     int
}

func (h *recordingHighlighter) Overlay(index int) {
	h.mu.Lock()
	h.overlays = append(h.overlays, index)
	h.mu.Unlock()
}

func (h *recordingHighlighter) Boundary(index, charIndex int) {
	h.mu.Lock()
	h.boundaries = append(h.boundaries, [2]int{index, charIndex})
	h.mu.Unlock()
}

func (h *recordingHighlighter) Clear() {
	h.mu.Lock()
	h.clears++
	h.mu.Unlock()
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeSynth, *recordingHighlighter, *events.Publisher) {
	t.Helper()
	settings, err := NewSettingsStore(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	pub := events.NewPublisher(nil, "test", "")
	synth := &fakeSynth{}
	sess := session.New(synth, pub)
	hl := &recordingHighlighter{}
	c := New(nil, sess, nil, settings, pub, hl, nil)
	return c, synth, hl, pub
}

func stoppedEnvelope() events.Envelope {
	return events.Envelope{Type: events.SpeechStopped, Data: json.RawMessage("{}")}
}

func TestPlayReadsFirstBlock(t *testing.T) {
	c, synth, hl, _ := newTestCoordinator(t)
	c.LoadPage("https://example.com/article", []string{"First block text", "Second block text"})

	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	u, _ := synth.utterance(t, 0)
	if u.Text != "First block text" {
		t.Errorf("spoke %q, want first block", u.Text)
	}

	hl.mu.Lock()
	defer hl.mu.Unlock()
	if len(hl.overlays) == 0 || hl.overlays[0] != 0 {
		t.Errorf("overlays = %v, want item 0 marked", hl.overlays)
	}
}

func TestContinuousAdvanceOnNaturalEnd(t *testing.T) {
	c, synth, _, _ := newTestCoordinator(t)
	c.LoadPage("https://example.com/article", []string{"First block text", "Second block text"})

	ctx := context.Background()
	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}

	_, h0 := synth.utterance(t, 0)
	h0.OnEnd()
	c.HandleEvent(ctx, stoppedEnvelope())

	u1, _ := synth.utterance(t, 1)
	if u1.Text != "Second block text" {
		t.Errorf("advanced to %q, want second block", u1.Text)
	}
	if pos := c.Position(); pos.Index != 1 || !pos.Playing {
		t.Errorf("position = %+v, want index 1 still playing", pos)
	}
}

func TestReadingEndsAfterLastItem(t *testing.T) {
	c, synth, _, pub := newTestCoordinator(t)
	ch := pub.Subscribe("watch", 16)
	defer pub.Unsubscribe("watch")

	c.LoadPage("https://example.com/article", []string{"Only block text"})

	ctx := context.Background()
	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}

	_, h0 := synth.utterance(t, 0)
	h0.OnEnd()
	c.HandleEvent(ctx, stoppedEnvelope())

	if pos := c.Position(); pos.Playing {
		t.Errorf("position = %+v, want playback finished", pos)
	}

	found := false
	for len(ch) > 0 {
		env := <-ch
		if env.Type == events.ReadingEnded {
			found = true
		}
	}
	if !found {
		t.Error("no reading.ended event emitted")
	}
}

func TestNonContinuousStopsAfterItem(t *testing.T) {
	c, synth, _, _ := newTestCoordinator(t)
	if err := c.settings.Update(func(s *Settings) { s.Continuous = false }); err != nil {
		t.Fatalf("settings update: %v", err)
	}
	c.LoadPage("https://example.com/article", []string{"First block text", "Second block text"})

	ctx := context.Background()
	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}

	_, h0 := synth.utterance(t, 0)
	h0.OnEnd()
	c.HandleEvent(ctx, stoppedEnvelope())

	if synth.count() != 1 {
		t.Errorf("launched %d utterances, want 1 without continuous mode", synth.count())
	}
	if pos := c.Position(); pos.Playing {
		t.Errorf("position = %+v, want stopped", pos)
	}
}

func TestExplicitStopDoesNotAdvance(t *testing.T) {
	c, synth, _, _ := newTestCoordinator(t)
	c.LoadPage("https://example.com/article", []string{"First block text", "Second block text"})

	ctx := context.Background()
	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}

	c.StopPlayback(ctx)
	// The stop itself produces a stopped event; it must not read on.
	c.HandleEvent(ctx, stoppedEnvelope())

	if synth.count() != 1 {
		t.Errorf("launched %d utterances, want 1 after explicit stop", synth.count())
	}
}

func TestBoundaryEventsReachHighlighter(t *testing.T) {
	c, synth, hl, _ := newTestCoordinator(t)
	c.LoadPage("https://example.com/article", []string{"First block text"})

	ctx := context.Background()
	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	_, h0 := synth.utterance(t, 0)
	h0.OnBoundary(6)

	data, _ := json.Marshal(events.SpeechBoundaryData{CharIndex: 6})
	c.HandleEvent(ctx, events.Envelope{Type: events.SpeechBoundary, Data: data})

	hl.mu.Lock()
	defer hl.mu.Unlock()
	if len(hl.boundaries) != 1 || hl.boundaries[0] != [2]int{0, 6} {
		t.Errorf("boundaries = %v, want [[0 6]]", hl.boundaries)
	}
}

type bubbleHighlighter struct {
	recordingHighlighter
	bubbles [][2]int
}

func (h *bubbleHighlighter) Bubble(item, bubble int) {
	h.mu.Lock()
	h.bubbles = append(h.bubbles, [2]int{item, bubble})
	h.mu.Unlock()
}

func TestBoundaryMapsToBubble(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	hl := &bubbleHighlighter{}
	c.highlighter = hl
	c.LoadPage("https://example.com/comic", []string{"placeholder"})

	ctx := context.Background()
	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}

	// Offsets as produced for the lines "Hello" and "World!" joined
	// with a newline.
	c.mu.Lock()
	c.lineStarts = []int{0, 6}
	c.mu.Unlock()

	for _, charIndex := range []int{2, 8} {
		data, _ := json.Marshal(events.SpeechBoundaryData{CharIndex: charIndex})
		c.HandleEvent(ctx, events.Envelope{Type: events.SpeechBoundary, Data: data})
	}

	hl.mu.Lock()
	defer hl.mu.Unlock()
	want := [][2]int{{0, 0}, {0, 1}}
	if len(hl.bubbles) != len(want) {
		t.Fatalf("bubbles = %v, want %v", hl.bubbles, want)
	}
	for i := range want {
		if hl.bubbles[i] != want[i] {
			t.Errorf("bubble %d = %v, want %v", i, hl.bubbles[i], want[i])
		}
	}
}

func TestBubbleAt(t *testing.T) {
	starts := []int{0, 6, 14}
	tests := []struct {
		charIndex int
		want      int
	}{
		{0, 0},
		{5, 0},
		{6, 1},
		{13, 1},
		{14, 2},
		{40, 2},
	}
	for _, tt := range tests {
		if got := bubbleAt(starts, tt.charIndex); got != tt.want {
			t.Errorf("bubbleAt(%d) = %d, want %d", tt.charIndex, got, tt.want)
		}
	}
}

func TestNextPrevClampToRange(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	c.LoadPage("https://example.com/article", []string{"First block text", "Second block text"})

	ctx := context.Background()
	if err := c.Prev(ctx); err != nil {
		t.Fatalf("Prev: %v", err)
	}
	if pos := c.Position(); pos.Index != 0 {
		t.Errorf("index = %d after Prev at start, want 0", pos.Index)
	}

	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if pos := c.Position(); pos.Index != 1 {
		t.Errorf("index = %d after Next past end, want clamped to 1", pos.Index)
	}
}

func TestPlayWithNothingLoadedErrors(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	if err := c.Play(context.Background()); err == nil {
		t.Fatal("expected error with nothing loaded")
	}
}
