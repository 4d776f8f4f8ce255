// Package piper synthesizes speech with the Piper binary and plays
// the raw PCM through an external player. Piper reports no word
// timings, so boundary callbacks are paced evenly across the audio
// duration.
package piper

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"
	"unicode"

	"github.com/pagevoice/pagevoice/internal/registry"
	"github.com/pagevoice/pagevoice/internal/speech/engine"
)

func init() {
	registry.TTS.Register("piper", func(config map[string]string) (engine.Synthesizer, error) {
		binaryPath := config["binary_path"]
		if binaryPath == "" {
			binaryPath = "piper"
		}
		modelPath := config["model_path"]
		if modelPath == "" {
			modelPath = "./models/en_US-amy-medium.onnx"
		}
		return New(binaryPath, modelPath, config["player_path"]), nil
	})
}

// sampleRate is Piper's raw output format: 22.05kHz 16-bit mono PCM.
const sampleRate = 22050

// Synthesizer implements engine.Synthesizer over the Piper binary.
type Synthesizer struct {
	binaryPath string
	modelPath  string
	playerPath string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a synthesizer. playerPath may be empty; boundaries and
// completion are still paced as if the audio were playing.
func New(binaryPath, modelPath, playerPath string) *Synthesizer {
	return &Synthesizer{
		binaryPath: binaryPath,
		modelPath:  modelPath,
		playerPath: playerPath,
	}
}

// Speak implements engine.Synthesizer. Any utterance in flight is
// cancelled first; synthesis and playback run on their own goroutine
// and report through the handlers.
func (p *Synthesizer) Speak(ctx context.Context, u engine.Utterance, h engine.Handlers) error {
	p.Cancel()

	sctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(sctx, u, h)
	return nil
}

// Cancel implements engine.Synthesizer.
func (p *Synthesizer) Cancel() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
}

// Voices implements engine.Synthesizer. Piper loads one model per
// process, so a single voice is reported.
func (p *Synthesizer) Voices() []engine.Voice {
	return []engine.Voice{
		{ID: "default", Name: "Default", Language: "en-US"},
	}
}

// Close implements engine.Synthesizer.
func (p *Synthesizer) Close() error {
	p.Cancel()
	return nil
}

func (p *Synthesizer) run(ctx context.Context, u engine.Utterance, h engine.Handlers) {
	audio, err := p.synthesize(ctx, u)
	if err != nil {
		p.fail(ctx, h, err)
		return
	}

	dur := time.Duration(len(audio)/2) * time.Second / sampleRate
	if dur <= 0 {
		if h.OnEnd != nil {
			h.OnEnd()
		}
		return
	}

	playDone := make(chan error, 1)
	if p.playerPath != "" {
		play := exec.CommandContext(ctx, p.playerPath,
			"-r", strconv.Itoa(sampleRate),
			"-f", "S16_LE",
			"-c", "1",
		)
		play.Stdin = bytes.NewReader(audio)
		if err := play.Start(); err != nil {
			p.fail(ctx, h, fmt.Errorf("start player: %w", err))
			return
		}
		go func() { playDone <- play.Wait() }()
	} else {
		timer := time.AfterFunc(dur, func() { playDone <- nil })
		defer timer.Stop()
	}

	p.paceBoundaries(ctx, u.Text, dur, h)

	select {
	case err := <-playDone:
		if ctx.Err() != nil {
			p.fail(ctx, h, nil)
			return
		}
		if err != nil {
			p.fail(ctx, h, fmt.Errorf("player: %w", err))
			return
		}
		if h.OnEnd != nil {
			h.OnEnd()
		}
	case <-ctx.Done():
		p.fail(ctx, h, nil)
	}
}

// synthesize runs the Piper binary once and returns raw PCM. Rate maps
// to Piper's length scale, which stretches phoneme durations.
func (p *Synthesizer) synthesize(ctx context.Context, u engine.Utterance) ([]byte, error) {
	args := []string{
		"--model", p.modelPath,
		"--output-raw",
	}
	if u.Rate > 0 && u.Rate != 1.0 {
		args = append(args, "--length-scale", fmt.Sprintf("%.2f", 1/u.Rate))
	}

	cmd := exec.CommandContext(ctx, p.binaryPath, args...)
	cmd.Stdin = bytes.NewBufferString(u.Text)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("piper: %w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// paceBoundaries spreads word-start offsets evenly over the audio
// duration. Returns early when the context is cancelled; the caller's
// ctx.Done select reports the interruption.
func (p *Synthesizer) paceBoundaries(ctx context.Context, text string, dur time.Duration, h engine.Handlers) {
	offsets := wordOffsets(text)
	if len(offsets) == 0 || h.OnBoundary == nil {
		return
	}

	step := dur / time.Duration(len(offsets))
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for _, off := range offsets {
		select {
		case <-ticker.C:
			h.OnBoundary(off)
		case <-ctx.Done():
			return
		}
	}
}

// wordOffsets returns the rune offset of every word start.
func wordOffsets(text string) []int {
	var offsets []int
	inWord := false
	i := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			inWord = true
			offsets = append(offsets, i)
		}
		i++
	}
	return offsets
}

func (p *Synthesizer) fail(ctx context.Context, h engine.Handlers, err error) {
	if h.OnError == nil {
		return
	}
	if ctx.Err() != nil || err == nil {
		h.OnError(engine.ErrInterrupted)
		return
	}
	h.OnError(err)
}
