package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeSerialization(t *testing.T) {
	data := &OCRCompletedData{
		Hash:       "b:abc123",
		Boxes:      4,
		Lines:      3,
		Backend:    "ppocr",
		DurationMs: 820,
	}

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}

	env := Envelope{
		ID:        "test-id",
		Type:      OCRCompleted,
		Source:    "pipeline",
		SessionID: "session-123",
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	if decoded.Type != OCRCompleted {
		t.Errorf("type = %q, want %q", decoded.Type, OCRCompleted)
	}
	if decoded.Source != "pipeline" {
		t.Errorf("source = %q, want %q", decoded.Source, "pipeline")
	}
	if decoded.SessionID != "session-123" {
		t.Errorf("session_id = %q, want %q", decoded.SessionID, "session-123")
	}

	var payload OCRCompletedData
	if err := json.Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Hash != "b:abc123" {
		t.Errorf("hash = %q, want %q", payload.Hash, "b:abc123")
	}
	if payload.Lines != 3 {
		t.Errorf("lines = %d, want 3", payload.Lines)
	}
}

func TestEventTypeConstants(t *testing.T) {
	types := []EventType{
		OCRStarted, OCRCompleted, OCRCacheHit, OCRBoxDropped,
		SpeechStarted, SpeechBoundary, SpeechStopped,
		ReadingAdvance, ReadingEnded,
		SystemError,
	}

	seen := make(map[EventType]bool)
	for _, et := range types {
		if et == "" {
			t.Error("empty event type constant")
		}
		if seen[et] {
			t.Errorf("duplicate event type: %q", et)
		}
		seen[et] = true
	}
}

func TestPublisherFanOut(t *testing.T) {
	ctx := context.Background()
	pub := NewPublisher(nil, "test", "")

	ch := pub.Subscribe("sub-1", 4)
	defer pub.Unsubscribe("sub-1")

	if err := pub.Emit(ctx, SpeechBoundary, "s1", SpeechBoundaryData{CharIndex: 7}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	select {
	case env := <-ch:
		if env.Type != SpeechBoundary {
			t.Errorf("type = %q, want %q", env.Type, SpeechBoundary)
		}
		if env.SessionID != "s1" {
			t.Errorf("session = %q, want s1", env.SessionID)
		}
		var data SpeechBoundaryData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if data.CharIndex != 7 {
			t.Errorf("char_index = %d, want 7", data.CharIndex)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}
