// pvocr runs the OCR pipeline on a single image and prints the result
// as JSON. Useful for tuning thresholds against a sample page without
// the full service.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"log"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pagevoice/pagevoice/internal/ocr/cache"
	"github.com/pagevoice/pagevoice/internal/ocr/detect"
	"github.com/pagevoice/pagevoice/internal/ocr/engine"
	"github.com/pagevoice/pagevoice/internal/ocr/pipeline"
	"github.com/pagevoice/pagevoice/internal/ocr/tensor"
	"github.com/pagevoice/pagevoice/internal/registry"

	_ "github.com/pagevoice/pagevoice/internal/ocr/backends/ppocr"
	_ "github.com/pagevoice/pagevoice/internal/ocr/backends/tesseract"
)

func main() {
	var (
		onnxLib   = flag.String("onnx-lib", "", "path to the onnxruntime shared library")
		detModel  = flag.String("det-model", "./models/bubble-detector.onnx", "detection model path")
		recModel  = flag.String("rec-model", "./models/ppocr-rec.onnx", "recognition model path")
		dictPath  = flag.String("dict", "./models/ppocr-dict.txt", "recognition dictionary path")
		mode      = flag.String("mode", "ppocr", "recognition mode: ppocr, tesseract or hybrid")
		language  = flag.String("lang", "eng", "tesseract language")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pvocr [flags] <image-path>")
		os.Exit(2)
	}

	if err := run(context.Background(), flag.Arg(0), *onnxLib, *detModel, *recModel, *dictPath, pipeline.Mode(*mode), *language); err != nil {
		log.Fatalf("pvocr: %v", err)
	}
}

func run(ctx context.Context, imagePath, onnxLib, detModel, recModel, dictPath string, mode pipeline.Mode, language string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	runtime := tensor.NewORTRuntime(onnxLib)
	detSession, err := runtime.OpenSession(ctx, detModel)
	if err != nil {
		return fmt.Errorf("open detection model: %w", err)
	}
	detector := detect.New(detSession, detect.DefaultConfig())

	primary, err := registry.Recognizers.Create("ppocr", map[string]string{
		"onnx_lib":   onnxLib,
		"model_path": recModel,
		"dict_path":  dictPath,
	})
	if err != nil {
		return fmt.Errorf("create recognizer: %w", err)
	}

	var fallback engine.Recognizer
	if mode != pipeline.ModePPOCR {
		fallback, err = registry.Recognizers.Create("tesseract", map[string]string{
			"language": language,
		})
		if err != nil {
			return fmt.Errorf("create tesseract backend: %w", err)
		}
	}

	pipe := pipeline.New(
		detector,
		pipeline.NewSelector(primary, fallback),
		cache.NewMemoryStore(0),
		nil, nil,
		func() pipeline.Mode { return mode },
		pipeline.DefaultConfig(),
	)
	defer pipe.Close()

	result, err := pipe.Recognize(ctx, img, pipeline.ImageRef{URL: imagePath, Bytes: data})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
