// Package pipeline chains detection, recognition and caching into one
// page-to-text operation.
package pipeline

import (
	"context"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"

	"github.com/pagevoice/pagevoice/internal/ocr/cache"
	"github.com/pagevoice/pagevoice/internal/ocr/engine"
	"github.com/pagevoice/pagevoice/pkg/events"
)

// Config carries the pipeline thresholds and timeouts.
type Config struct {
	// MinLineLen drops recognized lines shorter than this many runes.
	MinLineLen int
	// MinLineConf drops recognized lines below this confidence.
	MinLineConf float64
	// DetectTimeout bounds one detection pass.
	DetectTimeout time.Duration
	// RecognizeTimeout bounds recognition of one page's boxes.
	RecognizeTimeout time.Duration
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		MinLineLen:       2,
		MinLineConf:      0.35,
		DetectTimeout:    15 * time.Second,
		RecognizeTimeout: 90 * time.Second,
	}
}

// ImageRef identifies the source of an image for cache keying. Bytes
// take priority; URL keys images whose bytes were not readable.
type ImageRef struct {
	URL   string
	Bytes []byte
}

// Hash returns the cache key for the reference.
func (r ImageRef) Hash() string {
	if len(r.Bytes) > 0 {
		return cache.HashBytes(r.Bytes)
	}
	return cache.HashURL(r.URL)
}

// pageReader is the whole-image read the fallback backend offers.
type pageReader interface {
	RecognizeImage(ctx context.Context, img image.Image) (engine.Line, error)
}

// Pipeline runs detect, recognize and cache for one image at a time.
// Concurrent calls are safe; per-box recognition within a call fans
// out over the worker pool.
type Pipeline struct {
	detector engine.Detector
	selector *Selector
	store    cache.Store
	pub      *events.Publisher
	pool     workerpool.WorkerPool
	mode     func() Mode
	cfg      Config
}

// New assembles a pipeline. pub and pool may be nil; mode is consulted
// on every call so settings changes apply without a restart.
func New(detector engine.Detector, selector *Selector, store cache.Store, pub *events.Publisher, pool workerpool.WorkerPool, mode func() Mode, cfg Config) *Pipeline {
	if cfg.MinLineLen == 0 && cfg.MinLineConf == 0 {
		cfg = DefaultConfig()
	}
	if mode == nil {
		mode = func() Mode { return ModePPOCR }
	}
	return &Pipeline{
		detector: detector,
		selector: selector,
		store:    store,
		pub:      pub,
		pool:     pool,
		mode:     mode,
		cfg:      cfg,
	}
}

// Recognize reads all text in an image. Results for unchanged content
// come from the cache; fresh results with at least one line are cached
// before returning. A failed detection degrades to an empty result so
// a bad page never blocks the reading flow.
func (p *Pipeline) Recognize(ctx context.Context, img image.Image, ref ImageRef) (engine.Result, error) {
	hash := ref.Hash()
	start := time.Now()

	if entry, ok := p.lookup(ctx, hash); ok {
		p.emit(ctx, events.OCRCacheHit, events.OCRCacheHitData{Hash: hash, Version: entry.Version})
		return engine.Result{Lines: entry.Lines, Boxes: entry.Boxes}, nil
	}

	b := img.Bounds()
	p.emit(ctx, events.OCRStarted, events.OCRStartedData{
		Hash:   hash,
		Width:  b.Dx(),
		Height: b.Dy(),
	})

	boxes, err := p.detect(ctx, img)
	if err != nil {
		slog.Warn("pipeline: detection failed", slog.Any("error", err))
		p.emit(ctx, events.SystemError, events.SystemErrorData{Stage: "detect", Error: err.Error()})
		return engine.Result{}, nil
	}

	mode := p.mode()
	result := p.recognizeBoxes(ctx, mode, hash, img, boxes)

	// The model occasionally reads nothing from a page that clearly
	// has text regions. One whole-page pass through the fallback
	// recovers those before giving up. The trigger is deliberately
	// zero lines, not the broader low-quality signal; a weak partial
	// read still beats a whole-page pass that rereads every bubble.
	if mode == ModePPOCR && len(result.Lines) == 0 && len(boxes) > 0 {
		result = p.pageFallback(ctx, img, result)
	}

	if len(result.Lines) > 0 {
		p.storeResult(ctx, hash, result)
	}

	p.emit(ctx, events.OCRCompleted, events.OCRCompletedData{
		Hash:       hash,
		Boxes:      len(result.Boxes),
		Lines:      len(result.Lines),
		Backend:    string(mode),
		DurationMs: time.Since(start).Milliseconds(),
	})
	return result, nil
}

// Prefetch warms the cache for an image the reader will likely visit
// next. Runs off the caller's goroutine and drops the result.
func (p *Pipeline) Prefetch(ctx context.Context, img image.Image, ref ImageRef) {
	work := func() {
		if _, err := p.Recognize(ctx, img, ref); err != nil {
			slog.Debug("pipeline: prefetch failed", slog.Any("error", err))
		}
	}
	if p.pool != nil {
		_ = p.pool.Submit(ctx, work)
	} else {
		go work()
	}
}

// Warmup pushes a blank frame through detection and recognition so
// model session initialization does not land on the first real page.
func (p *Pipeline) Warmup(ctx context.Context) {
	blank := image.NewRGBA(image.Rect(0, 0, 64, 64))
	if _, err := p.detector.Detect(ctx, blank); err != nil {
		slog.Debug("pipeline: detector warmup failed", slog.Any("error", err))
	}
	box := engine.BoundingBox{MaxX: 64, MaxY: 64}
	if _, err := p.selector.RecognizeBox(ctx, p.mode(), blank, box); err != nil {
		slog.Debug("pipeline: recognizer warmup failed", slog.Any("error", err))
	}
}

func (p *Pipeline) lookup(ctx context.Context, hash string) (cache.Entry, bool) {
	if p.store == nil {
		return cache.Entry{}, false
	}
	entry, ok, err := p.store.Get(ctx, hash)
	if err != nil {
		slog.Warn("pipeline: cache lookup failed", slog.Any("error", err))
		return cache.Entry{}, false
	}
	if !ok || entry.Version != cache.Version {
		return cache.Entry{}, false
	}
	return entry, true
}

func (p *Pipeline) detect(ctx context.Context, img image.Image) ([]engine.BoundingBox, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DetectTimeout)
	defer cancel()
	return p.detector.Detect(dctx, img)
}

// recognizeBoxes reads every detected box, in parallel when a pool is
// available, preserving detection order in the output. A box whose
// read fails or falls under the quality floor is dropped without
// failing the page.
func (p *Pipeline) recognizeBoxes(ctx context.Context, mode Mode, hash string, img image.Image, boxes []engine.BoundingBox) engine.Result {
	if len(boxes) == 0 {
		return engine.Result{}
	}

	rctx, cancel := context.WithTimeout(ctx, p.cfg.RecognizeTimeout)
	defer cancel()

	type boxRead struct {
		line engine.Line
		err  error
	}
	reads := make([]boxRead, len(boxes))

	var wg sync.WaitGroup
	for i, box := range boxes {
		i, box := i, box
		wg.Add(1)
		work := func() {
			defer wg.Done()
			line, err := p.selector.RecognizeBox(rctx, mode, img, box)
			reads[i] = boxRead{line: line, err: err}
		}
		if p.pool != nil {
			if err := p.pool.Submit(rctx, work); err != nil {
				work()
			}
		} else {
			go work()
		}
	}
	wg.Wait()

	var result engine.Result
	for i, read := range reads {
		if read.err != nil {
			slog.Warn("pipeline: box read failed",
				slog.Int("box", i),
				slog.Any("error", read.err))
			p.emit(ctx, events.OCRBoxDropped, events.OCRBoxDroppedData{Hash: hash, Index: i, Reason: read.err.Error()})
			continue
		}
		text := strings.TrimSpace(read.line.Text)
		if len([]rune(text)) < p.cfg.MinLineLen || read.line.Confidence < p.cfg.MinLineConf {
			continue
		}
		result.Lines = append(result.Lines, text)
		result.Boxes = append(result.Boxes, boxes[i])
	}
	return result
}

func (p *Pipeline) pageFallback(ctx context.Context, img image.Image, result engine.Result) engine.Result {
	pr, ok := p.selector.fallback.(pageReader)
	if !ok || pr == nil {
		return result
	}
	line, err := pr.RecognizeImage(ctx, img)
	if err != nil {
		slog.Debug("pipeline: page fallback failed", slog.Any("error", err))
		return result
	}
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return result
	}
	slog.Info("pipeline: page fallback recovered text", slog.Int("chars", len(text)))
	return engine.Result{Lines: []string{text}}
}

func (p *Pipeline) storeResult(ctx context.Context, hash string, result engine.Result) {
	if p.store == nil {
		return
	}
	err := p.store.Put(ctx, cache.Entry{
		Hash:      hash,
		Version:   cache.Version,
		Timestamp: time.Now(),
		Lines:     result.Lines,
		Boxes:     result.Boxes,
	})
	if err != nil {
		slog.Warn("pipeline: cache store failed", slog.Any("error", err))
	}
}

func (p *Pipeline) emit(ctx context.Context, et events.EventType, data any) {
	if p.pub == nil {
		return
	}
	_ = p.pub.Emit(ctx, et, "", data)
}

// Close releases the detector, both recognizers and the cache store.
func (p *Pipeline) Close() error {
	err := p.detector.Close()
	if serr := p.selector.Close(); err == nil {
		err = serr
	}
	if p.store != nil {
		if cerr := p.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
