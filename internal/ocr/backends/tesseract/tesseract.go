// Package tesseract wraps a long-lived Tesseract client in a worker
// goroutine. Client initialization loads language data from disk, so
// the worker starts lazily on first use and serves all requests from
// one goroutine that owns the client.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/xid"

	"github.com/pagevoice/pagevoice/internal/ocr/engine"
	"github.com/pagevoice/pagevoice/internal/ocr/imaging"
	"github.com/pagevoice/pagevoice/internal/registry"
)

func init() {
	registry.Recognizers.Register("tesseract", func(config map[string]string) (engine.Recognizer, error) {
		w := NewWorker(config["language"], 0)
		return w, nil
	})
}

const defaultJobTimeout = 30 * time.Second

// client is the subset of the Tesseract API the worker uses. Narrowed
// so tests can substitute a fake.
type client interface {
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Close() error
}

type job struct {
	id    string
	png   []byte
	reply chan jobResult
}

type jobResult struct {
	line engine.Line
	err  error
}

// Worker owns a single Tesseract client and serializes recognition
// requests through it. The zero language defaults to eng.
type Worker struct {
	language   string
	jobTimeout time.Duration

	startOnce sync.Once
	closeOnce sync.Once
	jobs      chan job
	done      chan struct{}

	newClient func() client
}

// NewWorker creates a worker. A zero timeout uses the default.
func NewWorker(language string, jobTimeout time.Duration) *Worker {
	if language == "" {
		language = "eng"
	}
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	return &Worker{
		language:   language,
		jobTimeout: jobTimeout,
		jobs:       make(chan job),
		done:       make(chan struct{}),
		newClient: func() client {
			c := gosseract.NewClient()
			return c
		},
	}
}

func (w *Worker) ensure() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

func (w *Worker) run() {
	c := w.newClient()
	defer c.Close()

	if lc, ok := c.(interface{ SetLanguage(...string) error }); ok {
		if err := lc.SetLanguage(w.language); err != nil {
			slog.Warn("tesseract: set language failed",
				slog.String("language", w.language),
				slog.Any("error", err))
		}
	}
	slog.Info("tesseract: worker started", slog.String("language", w.language))

	for {
		select {
		case <-w.done:
			return
		case j := <-w.jobs:
			line, err := recognizeBytes(c, j.png)
			j.reply <- jobResult{line: line, err: err}
		}
	}
}

// recognizeBytes runs one image through the client. Confidence is the
// mean word confidence Tesseract reports, scaled to [0,1].
func recognizeBytes(c client, data []byte) (engine.Line, error) {
	if err := c.SetImageFromBytes(data); err != nil {
		return engine.Line{}, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return engine.Line{}, fmt.Errorf("extract text: %w", err)
	}

	line := engine.Line{Text: text}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err == nil && len(boxes) > 0 {
		var sum float64
		for _, b := range boxes {
			sum += b.Confidence / 100.0
		}
		line.Confidence = sum / float64(len(boxes))
	}
	return line, nil
}

// RecognizeBox implements engine.Recognizer by cropping the box and
// submitting the crop to the worker.
func (w *Worker) RecognizeBox(ctx context.Context, img image.Image, box engine.BoundingBox) (engine.Line, error) {
	return w.RecognizeImage(ctx, imaging.Crop(img, box.Rect()))
}

// RecognizeImage recognizes a whole image. Used for the page-level
// fallback when detection finds regions the primary backend cannot
// read.
func (w *Worker) RecognizeImage(ctx context.Context, img image.Image) (engine.Line, error) {
	w.ensure()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return engine.Line{}, fmt.Errorf("encode crop: %w", err)
	}

	j := job{
		id:    xid.New().String(),
		png:   buf.Bytes(),
		reply: make(chan jobResult, 1),
	}

	timer := time.NewTimer(w.jobTimeout)
	defer timer.Stop()

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return engine.Line{}, ctx.Err()
	case <-timer.C:
		return engine.Line{}, fmt.Errorf("tesseract job %s: queue timeout", j.id)
	case <-w.done:
		return engine.Line{}, fmt.Errorf("tesseract worker closed")
	}

	select {
	case res := <-j.reply:
		return res.line, res.err
	case <-ctx.Done():
		return engine.Line{}, ctx.Err()
	case <-timer.C:
		return engine.Line{}, fmt.Errorf("tesseract job %s: timeout", j.id)
	}
}

// Close stops the worker goroutine. Safe to call without a prior
// recognition.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return nil
}
