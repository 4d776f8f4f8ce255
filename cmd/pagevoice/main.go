package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pitabwire/frame"
	frameconfig "github.com/pitabwire/frame/config"

	pvconfig "github.com/pagevoice/pagevoice/config"
	"github.com/pagevoice/pagevoice/internal/ocr/cache"
	"github.com/pagevoice/pagevoice/internal/ocr/detect"
	"github.com/pagevoice/pagevoice/internal/ocr/engine"
	"github.com/pagevoice/pagevoice/internal/ocr/pipeline"
	"github.com/pagevoice/pagevoice/internal/ocr/tensor"
	"github.com/pagevoice/pagevoice/internal/reader"
	"github.com/pagevoice/pagevoice/internal/registry"
	"github.com/pagevoice/pagevoice/internal/speech/session"
	"github.com/pagevoice/pagevoice/pkg/events"

	// Register recognition and speech backends via init().
	_ "github.com/pagevoice/pagevoice/internal/ocr/backends/ppocr"
	_ "github.com/pagevoice/pagevoice/internal/ocr/backends/tesseract"
	_ "github.com/pagevoice/pagevoice/internal/speech/backends/piper"
)

func main() {
	ctx := context.Background()

	cfg, err := frameconfig.LoadWithOIDC[pvconfig.ReaderConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("pagevoice"),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	pub := events.NewPublisher(nil, "pagevoice", "")

	settings, err := reader.NewSettingsStore(cfg.SettingsPath)
	if err != nil {
		log.Fatalf("loading settings: %v", err)
	}
	settingsDone := make(chan struct{})
	defer close(settingsDone)
	go func() {
		if err := settings.WatchAndReload(settingsDone); err != nil {
			slog.Warn("settings watcher exited", slog.Any("error", err))
		}
	}()

	runtime := tensor.NewORTRuntime(cfg.OnnxLibraryPath)
	detSession, err := runtime.OpenSession(ctx, cfg.DetectModelPath)
	if err != nil {
		log.Fatalf("opening detection model: %v", err)
	}
	detCfg := detect.DefaultConfig()
	detCfg.InputSize = cfg.DetectInputSize
	detCfg.ScoreThreshold = cfg.DetectScoreThreshold
	detCfg.IoUThreshold = cfg.DetectIoUThreshold
	detCfg.WindowOverlap = cfg.DetectWindowOverlap
	detector := detect.New(detSession, detCfg)

	primary, err := registry.Recognizers.Create("ppocr", map[string]string{
		"onnx_lib":   cfg.OnnxLibraryPath,
		"model_path": cfg.RecModelPath,
		"dict_path":  cfg.RecDictPath,
		"try_rotate": fmt.Sprintf("%t", cfg.RecTryRotate),
	})
	if err != nil {
		log.Fatalf("creating recognizer: %v", err)
	}

	var fallback engine.Recognizer
	if settings.Get().FallbackTesseract {
		fallback, err = registry.Recognizers.Create("tesseract", map[string]string{
			"language": cfg.TesseractLanguage,
		})
		if err != nil {
			slog.Warn("tesseract fallback unavailable", slog.Any("error", err))
		}
	}

	store, err := cache.NewGormStore(cfg.CachePath, cfg.CacheMaxEntries)
	if err != nil {
		log.Fatalf("opening ocr cache: %v", err)
	}

	pipeCfg := pipeline.Config{
		MinLineLen:       cfg.RecMinLineLen,
		MinLineConf:      cfg.RecMinLineConf,
		DetectTimeout:    time.Duration(cfg.DetectTimeoutSec) * time.Second,
		RecognizeTimeout: time.Duration(cfg.RecognizeTimeoutSec) * time.Second,
	}
	pipe := pipeline.New(detector, pipeline.NewSelector(primary, fallback), store, pub, pool, settings.Mode, pipeCfg)
	defer pipe.Close()
	pipe.Warmup(ctx)

	synth, err := registry.TTS.Create(cfg.TTSBackend, map[string]string{
		"binary_path": cfg.PiperBinaryPath,
		"model_path":  cfg.PiperModelPath,
		"player_path": cfg.PlayerPath,
	})
	if err != nil {
		log.Fatalf("creating synthesizer: %v", err)
	}
	defer synth.Close()

	sess := session.New(synth, pub)
	source := reader.NewImageSource(time.Duration(cfg.FetchTimeoutSec) * time.Second)
	coord := reader.New(pipe, sess, source, settings, pub, nil, nil)
	go coord.Run(ctx)

	if args := os.Args[1:]; len(args) > 0 {
		if err := load(ctx, coord, args); err != nil {
			log.Fatalf("loading %q: %v", args[0], err)
		}
		if err := coord.Play(ctx); err != nil {
			log.Fatalf("starting playback: %v", err)
		}
	}

	slog.Info("pagevoice ready",
		slog.String("tts_backend", cfg.TTSBackend),
		slog.String("mode", string(settings.Mode())))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}

// load interprets the command line: one PDF path, one or more comic
// panel image URLs, or a plain-text file read as blank-line separated
// blocks.
func load(ctx context.Context, coord *reader.Coordinator, args []string) error {
	first := args[0]
	switch {
	case strings.HasSuffix(strings.ToLower(first), ".pdf"):
		return coord.LoadPDFFile(ctx, first)
	case len(args) > 1 || isImageRef(first):
		coord.LoadComic(first, args)
		return nil
	default:
		raw, err := os.ReadFile(first)
		if err != nil {
			return err
		}
		coord.LoadPage(first, splitBlocks(string(raw)))
		return nil
	}
}

func isImageRef(s string) bool {
	l := strings.ToLower(s)
	if strings.HasPrefix(l, "data:image/") {
		return true
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp"} {
		if strings.HasSuffix(l, ext) {
			return true
		}
	}
	return false
}

func splitBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n\n")
}
