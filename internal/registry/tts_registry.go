package registry

import "github.com/pagevoice/pagevoice/internal/speech/engine"

// TTS is the global speech synthesizer registry.
var TTS = New[engine.Synthesizer]()
