// Package reader walks a page, PDF or comic one readable unit at a
// time, feeding each unit's text to the speech session and advancing
// when speech finishes.
package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pagevoice/pagevoice/internal/ocr/pipeline"
	"github.com/pagevoice/pagevoice/internal/speech/session"
	"github.com/pagevoice/pagevoice/pkg/events"
)

// Surface identifies what kind of document is being read.
type Surface string

const (
	SurfacePage  Surface = "page"
	SurfacePDF   Surface = "pdf"
	SurfaceComic Surface = "comic"
)

// Item is one readable unit: a text block on a page, a PDF page, or a
// comic panel. Comic panels carry a URL and get their text from the
// pipeline on demand.
type Item struct {
	Text string
	URL  string
}

// Position is a snapshot of reading progress.
type Position struct {
	Surface Surface
	Index   int
	Total   int
	Playing bool
}

// Highlighter mirrors reading progress onto a display. All methods may
// be called from the coordinator's event goroutine.
type Highlighter interface {
	// Overlay marks the item currently being read.
	Overlay(index int)
	// Boundary marks the character being spoken within the item.
	Boundary(index, charIndex int)
	// Clear removes all marks.
	Clear()
}

// Navigator follows a URL when continuous reading runs off the end of
// a comic chapter.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Coordinator drives the reading flow. Safe for concurrent use.
type Coordinator struct {
	pipe     *pipeline.Pipeline
	sess     *session.Session
	source   *ImageSource
	settings *SettingsStore
	pub      *events.Publisher

	highlighter Highlighter
	navigator   Navigator

	mu         sync.Mutex
	surface    Surface
	items      []Item
	index      int
	playing    bool
	currentURL string
	lineStarts []int
}

// New assembles a coordinator. highlighter and navigator may be nil.
func New(pipe *pipeline.Pipeline, sess *session.Session, source *ImageSource, settings *SettingsStore, pub *events.Publisher, highlighter Highlighter, navigator Navigator) *Coordinator {
	return &Coordinator{
		pipe:        pipe,
		sess:        sess,
		source:      source,
		settings:    settings,
		pub:         pub,
		highlighter: highlighter,
		navigator:   navigator,
	}
}

// Run consumes speech events until ctx is cancelled, advancing through
// items as utterances complete.
func (c *Coordinator) Run(ctx context.Context) {
	if c.pub == nil {
		<-ctx.Done()
		return
	}
	id := "coordinator-" + string(c.surface)
	ch := c.pub.Subscribe(id, 64)
	defer c.pub.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			c.HandleEvent(ctx, env)
		}
	}
}

// HandleEvent reacts to one speech event. Exported so the event loop
// stays trivially testable.
func (c *Coordinator) HandleEvent(ctx context.Context, env events.Envelope) {
	switch env.Type {
	case events.SpeechBoundary:
		var data events.SpeechBoundaryData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return
		}
		c.mu.Lock()
		idx := c.index
		playing := c.playing
		starts := c.lineStarts
		c.mu.Unlock()
		if playing && c.highlighter != nil {
			c.highlighter.Boundary(idx, data.CharIndex)
			if bh, ok := c.highlighter.(interface{ Bubble(item, bubble int) }); ok && len(starts) > 0 {
				bh.Bubble(idx, bubbleAt(starts, data.CharIndex))
			}
		}
	case events.SpeechStopped:
		var data events.SpeechStoppedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return
		}
		if data.Error != "" {
			c.StopPlayback(ctx)
			return
		}
		if c.sess.Status() != session.StatusEnded {
			// An explicit stop or a cancel-and-resume; not a natural
			// end of the current item.
			return
		}
		c.onItemFinished(ctx)
	}
}

func (c *Coordinator) onItemFinished(ctx context.Context) {
	c.mu.Lock()
	if !c.playing || !c.settings.Get().Continuous {
		c.playing = false
		c.mu.Unlock()
		return
	}
	c.index++
	done := c.index >= len(c.items)
	c.mu.Unlock()

	if done {
		c.finishSurface(ctx)
		return
	}
	if err := c.playCurrent(ctx); err != nil {
		slog.Warn("coordinator: advance failed", slog.Any("error", err))
		c.StopPlayback(ctx)
	}
}

// LoadPage installs pre-extracted text blocks from a web page.
func (c *Coordinator) LoadPage(url string, blocks []string) {
	items := make([]Item, 0, len(blocks))
	for _, b := range blocks {
		if t := strings.TrimSpace(b); t != "" {
			items = append(items, Item{Text: t})
		}
	}
	c.install(SurfacePage, url, items)
}

// LoadPDFFile extracts a PDF's text layer and installs one item per
// page.
func (c *Coordinator) LoadPDFFile(ctx context.Context, path string) error {
	pages, err := LoadPDF(ctx, path)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("pdf %q has no text layer", path)
	}
	items := make([]Item, 0, len(pages))
	for _, p := range pages {
		items = append(items, Item{Text: p.Text})
	}
	c.install(SurfacePDF, path, items)
	return nil
}

// LoadComic installs comic panel image URLs. Text comes from the OCR
// pipeline as each panel is reached.
func (c *Coordinator) LoadComic(url string, panelURLs []string) {
	items := make([]Item, 0, len(panelURLs))
	for _, u := range panelURLs {
		items = append(items, Item{URL: u})
	}
	c.install(SurfaceComic, url, items)
}

func (c *Coordinator) install(surface Surface, url string, items []Item) {
	c.sess.Stop(context.Background())
	c.mu.Lock()
	c.surface = surface
	c.currentURL = url
	c.items = items
	c.index = 0
	c.playing = false
	c.lineStarts = nil
	c.mu.Unlock()
	if c.highlighter != nil {
		c.highlighter.Clear()
	}
}

// Play starts or resumes reading at the current item.
func (c *Coordinator) Play(ctx context.Context) error {
	c.mu.Lock()
	if len(c.items) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("nothing loaded to read")
	}
	c.playing = true
	c.mu.Unlock()
	return c.playCurrent(ctx)
}

// PlayAt starts reading from the given item.
func (c *Coordinator) PlayAt(ctx context.Context, index int) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.items) {
		c.mu.Unlock()
		return fmt.Errorf("item %d out of range", index)
	}
	c.index = index
	c.playing = true
	c.mu.Unlock()
	return c.playCurrent(ctx)
}

// Next skips to the next item, stopping at the end.
func (c *Coordinator) Next(ctx context.Context) error {
	return c.step(ctx, 1)
}

// Prev returns to the previous item, stopping at the start.
func (c *Coordinator) Prev(ctx context.Context) error {
	return c.step(ctx, -1)
}

func (c *Coordinator) step(ctx context.Context, delta int) error {
	c.mu.Lock()
	next := c.index + delta
	if next < 0 || next >= len(c.items) {
		c.mu.Unlock()
		return nil
	}
	c.index = next
	resume := c.playing
	c.mu.Unlock()

	if resume {
		return c.playCurrent(ctx)
	}
	return nil
}

// StopPlayback halts speech and leaves the position in place.
func (c *Coordinator) StopPlayback(ctx context.Context) {
	c.mu.Lock()
	c.playing = false
	c.mu.Unlock()
	c.sess.Stop(ctx)
	if c.highlighter != nil {
		c.highlighter.Clear()
	}
}

// Position reports current progress.
func (c *Coordinator) Position() Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Position{
		Surface: c.surface,
		Index:   c.index,
		Total:   len(c.items),
		Playing: c.playing,
	}
}

func (c *Coordinator) playCurrent(ctx context.Context) error {
	c.mu.Lock()
	surface := c.surface
	idx := c.index
	total := len(c.items)
	item := c.items[idx]
	c.mu.Unlock()

	text := item.Text
	var starts []int
	if surface == SurfaceComic {
		var err error
		text, starts, err = c.panelText(ctx, item)
		if err != nil {
			return err
		}
		c.prefetchNext(ctx)
	}
	c.mu.Lock()
	c.lineStarts = starts
	c.mu.Unlock()

	if c.highlighter != nil {
		c.highlighter.Overlay(idx)
	}
	c.emit(ctx, events.ReadingAdvance, events.ReadingAdvanceData{
		Surface: string(surface),
		Index:   idx,
		Total:   total,
	})

	if strings.TrimSpace(text) == "" {
		// A silent panel; move on as if it had been read.
		c.onItemFinished(ctx)
		return nil
	}

	s := c.settings.Get()
	return c.sess.Speak(ctx, text, session.Settings{
		Rate:  s.Rate,
		Voice: s.VoiceID,
	})
}

// panelText fetches a panel image, runs OCR and returns the joined
// text plus the rune offset where each recognized line starts, so
// boundary events can be traced back to a bubble.
func (c *Coordinator) panelText(ctx context.Context, item Item) (string, []int, error) {
	img, ref, err := c.source.Fetch(ctx, item.URL)
	if err != nil {
		return "", nil, fmt.Errorf("fetch panel: %w", err)
	}
	result, err := c.pipe.Recognize(ctx, img, ref)
	if err != nil {
		return "", nil, fmt.Errorf("read panel: %w", err)
	}
	starts := make([]int, len(result.Lines))
	offset := 0
	for i, line := range result.Lines {
		starts[i] = offset
		offset += len([]rune(line)) + 1
	}
	return strings.Join(result.Lines, "\n"), starts, nil
}

// bubbleAt returns the index of the line containing the given rune
// offset.
func bubbleAt(starts []int, charIndex int) int {
	bubble := 0
	for i, s := range starts {
		if s <= charIndex {
			bubble = i
		}
	}
	return bubble
}

// prefetchNext warms the OCR cache for the panel after the current
// one.
func (c *Coordinator) prefetchNext(ctx context.Context) {
	c.mu.Lock()
	next := c.index + 1
	var url string
	if next < len(c.items) {
		url = c.items[next].URL
	}
	c.mu.Unlock()
	if url == "" {
		return
	}

	img, ref, err := c.source.Fetch(ctx, url)
	if err != nil {
		slog.Debug("coordinator: prefetch fetch failed", slog.Any("error", err))
		return
	}
	c.pipe.Prefetch(ctx, img, ref)
}

func (c *Coordinator) finishSurface(ctx context.Context) {
	c.mu.Lock()
	surface := c.surface
	url := c.currentURL
	c.playing = false
	if c.index > 0 {
		c.index = len(c.items) - 1
	}
	c.mu.Unlock()

	nextURL := ""
	if surface == SurfaceComic {
		nextURL = InferNextChapterURL(url)
	}

	c.emit(ctx, events.ReadingEnded, events.ReadingEndedData{
		Surface: string(surface),
		NextURL: nextURL,
	})
	if c.highlighter != nil {
		c.highlighter.Clear()
	}

	if nextURL != "" && c.navigator != nil {
		if err := c.navigator.Navigate(ctx, nextURL); err != nil {
			slog.Warn("coordinator: chapter navigation failed",
				slog.String("url", nextURL),
				slog.Any("error", err))
		}
	}
}

func (c *Coordinator) emit(ctx context.Context, et events.EventType, data any) {
	if c.pub == nil {
		return
	}
	_ = c.pub.Emit(ctx, et, c.sess.ID(), data)
}
