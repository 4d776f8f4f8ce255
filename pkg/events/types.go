package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	OCRStarted     EventType = "ocr.started"
	OCRCompleted   EventType = "ocr.completed"
	OCRCacheHit    EventType = "ocr.cache_hit"
	OCRBoxDropped  EventType = "ocr.box_dropped"
	SpeechStarted  EventType = "speech.started"
	SpeechBoundary EventType = "speech.boundary"
	SpeechStopped  EventType = "speech.stopped"
	ReadingAdvance EventType = "reading.advance"
	ReadingEnded   EventType = "reading.ended"
	SystemError    EventType = "error"
)

// Envelope is the standard event wrapper delivered to subscribers.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OCRStartedData is the payload for ocr.started events.
type OCRStartedData struct {
	Hash   string `json:"hash"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// OCRCompletedData is the payload for ocr.completed events.
type OCRCompletedData struct {
	Hash       string `json:"hash"`
	Boxes      int    `json:"boxes"`
	Lines      int    `json:"lines"`
	Backend    string `json:"backend"`
	DurationMs int64  `json:"duration_ms"`
}

// OCRCacheHitData is the payload for ocr.cache_hit events.
type OCRCacheHitData struct {
	Hash    string `json:"hash"`
	Version string `json:"version"`
}

// OCRBoxDroppedData is the payload for ocr.box_dropped events.
type OCRBoxDroppedData struct {
	Hash   string `json:"hash"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// SpeechStartedData is the payload for speech.started events.
type SpeechStartedData struct {
	TextLen int     `json:"text_len"`
	Rate    float64 `json:"rate"`
	Voice   string  `json:"voice,omitempty"`
}

// SpeechBoundaryData is the payload for speech.boundary events.
// CharIndex is an absolute offset into the text passed to speak,
// stable across mid-utterance settings updates.
type SpeechBoundaryData struct {
	CharIndex int `json:"char_index"`
}

// SpeechStoppedData is the payload for speech.stopped events. Error is
// empty for natural completion and explicit stops.
type SpeechStoppedData struct {
	Error string `json:"error,omitempty"`
}

// ReadingAdvanceData is the payload for reading.advance events.
type ReadingAdvanceData struct {
	Surface string `json:"surface"`
	Index   int    `json:"index"`
	Total   int    `json:"total"`
}

// ReadingEndedData is the payload for reading.ended events.
type ReadingEndedData struct {
	Surface string `json:"surface"`
	NextURL string `json:"next_url,omitempty"`
}

// SystemErrorData is the payload for error events.
type SystemErrorData struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}
