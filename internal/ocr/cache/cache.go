// Package cache stores recognition results keyed by content hash so a
// page revisit never re-runs the models for unchanged images.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pagevoice/pagevoice/internal/ocr/engine"
)

// Version tags every entry with the producing pipeline generation.
// Bump it when model or decode changes invalidate stored results.
const Version = "ppocr-v2"

// Entry is one cached recognition result.
type Entry struct {
	Hash      string               `json:"hash"`
	Version   string               `json:"version"`
	Timestamp time.Time            `json:"timestamp"`
	TouchedAt time.Time            `json:"touchedAt"`
	Lines     []string             `json:"lines"`
	Boxes     []engine.BoundingBox `json:"boxes"`
}

// Store is a keyed entry store. Get returns ok=false on miss; stale
// versions are the caller's concern.
type Store interface {
	Get(ctx context.Context, hash string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	Close() error
}

// HashBytes keys image content. The prefix separates the byte-hash
// namespace from the URL namespace.
func HashBytes(data []byte) string {
	sum := sha1.Sum(data)
	return "b:" + hex.EncodeToString(sum[:])
}

// HashURL keys an image by source URL when its bytes are not
// available, for example cross-origin images the fetch layer cannot
// read. Uses a cheap deterministic string hash.
func HashURL(url string) string {
	var h int32
	for _, c := range url {
		h = (h << 5) - h + c
	}
	return fmt.Sprintf("u:%d", h)
}
