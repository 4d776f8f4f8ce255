package config

import (
	"github.com/pitabwire/frame/config"
)

// ReaderConfig holds configuration for the reading service.
type ReaderConfig struct {
	config.ConfigurationDefault

	// Model paths.
	OnnxLibraryPath  string `envDefault:""                                env:"ONNX_LIBRARY_PATH"`
	DetectModelPath  string `envDefault:"./models/bubble-detector.onnx"   env:"DETECT_MODEL_PATH"`
	RecModelPath     string `envDefault:"./models/ppocr-rec.onnx"         env:"REC_MODEL_PATH"`
	RecDictPath      string `envDefault:"./models/ppocr-dict.txt"         env:"REC_DICT_PATH"`

	// Detection.
	DetectInputSize      int     `envDefault:"640"  env:"DETECT_INPUT_SIZE"`
	DetectScoreThreshold float64 `envDefault:"0.25" env:"DETECT_SCORE_THRESHOLD"`
	DetectIoUThreshold   float64 `envDefault:"0.45" env:"DETECT_IOU_THRESHOLD"`
	DetectWindowOverlap  float64 `envDefault:"0.25" env:"DETECT_WINDOW_OVERLAP"`
	DetectTimeoutSec     int     `envDefault:"15"   env:"DETECT_TIMEOUT_SEC"`

	// Recognition.
	RecImgHeight        int     `envDefault:"48"   env:"REC_IMG_HEIGHT"`
	RecMaxWidth         int     `envDefault:"320"  env:"REC_MAX_WIDTH"`
	RecTryRotate        bool    `envDefault:"true" env:"REC_TRY_ROTATE"`
	RecVerticalRatio    float64 `envDefault:"1.2"  env:"REC_VERTICAL_RATIO"`
	RecMinLineLen       int     `envDefault:"2"    env:"REC_MIN_LINE_LEN"`
	RecMinLineConf      float64 `envDefault:"0.35" env:"REC_MIN_LINE_CONF"`
	RecognizeTimeoutSec int     `envDefault:"90"   env:"RECOGNIZE_TIMEOUT_SEC"`

	// Tesseract fallback.
	TesseractLanguage   string `envDefault:"eng" env:"TESSERACT_LANGUAGE"`
	TesseractTimeoutSec int    `envDefault:"30"  env:"TESSERACT_TIMEOUT_SEC"`

	// Cache.
	CachePath       string `envDefault:"./data/ocr-cache.db" env:"CACHE_PATH"`
	CacheMaxEntries int    `envDefault:"5000"                env:"CACHE_MAX_ENTRIES"`

	// Speech.
	TTSBackend      string `envDefault:"piper"                           env:"TTS_BACKEND"`
	PiperModelPath  string `envDefault:"./models/en_US-amy-medium.onnx"  env:"PIPER_MODEL_PATH"`
	PiperBinaryPath string `envDefault:"piper"                           env:"PIPER_BINARY_PATH"`
	PlayerPath      string `envDefault:"aplay"                           env:"PLAYER_PATH"`

	// Reader.
	SettingsPath    string `envDefault:"./data/settings.yaml" env:"SETTINGS_PATH"`
	FetchTimeoutSec int    `envDefault:"30"                   env:"FETCH_TIMEOUT_SEC"`
}
