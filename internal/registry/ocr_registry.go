package registry

import "github.com/pagevoice/pagevoice/internal/ocr/engine"

// Recognizers is the global text recognizer registry.
var Recognizers = New[engine.Recognizer]()

// Detectors is the global bubble detector registry.
var Detectors = New[engine.Detector]()
