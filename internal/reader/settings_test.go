package reader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pagevoice/pagevoice/internal/ocr/pipeline"
)

func TestSettingsStoreMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s, err := NewSettingsStore(path)
	if err != nil {
		t.Fatalf("NewSettingsStore: %v", err)
	}

	got := s.Get()
	if got.Mode != pipeline.ModePPOCR {
		t.Errorf("mode = %q, want default", got.Mode)
	}
	if got.Rate != 1.0 {
		t.Errorf("rate = %v, want 1.0", got.Rate)
	}
	if !got.Continuous {
		t.Error("continuous should default on")
	}
}

func TestSettingsStoreLoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := "mode: hybrid\nrate: 1.5\nvoice_id: amy\nfallback_tesseract: false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, err := NewSettingsStore(path)
	if err != nil {
		t.Fatalf("NewSettingsStore: %v", err)
	}

	got := s.Get()
	if got.Mode != pipeline.ModeHybrid {
		t.Errorf("mode = %q, want hybrid", got.Mode)
	}
	if got.Rate != 1.5 {
		t.Errorf("rate = %v, want 1.5", got.Rate)
	}
	if got.VoiceID != "amy" {
		t.Errorf("voice_id = %q, want amy", got.VoiceID)
	}
	if got.FallbackTesseract {
		t.Error("fallback_tesseract should be off")
	}
}

func TestSettingsStoreMalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("mode: [unclosed"), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	if _, err := NewSettingsStore(path); err == nil {
		t.Fatal("expected error for malformed settings")
	}
}

func TestSettingsStoreUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s, err := NewSettingsStore(path)
	if err != nil {
		t.Fatalf("NewSettingsStore: %v", err)
	}

	err = s.Update(func(st *Settings) {
		st.Mode = pipeline.ModeTesseract
		st.Rate = 0.8
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	reloaded, err := NewSettingsStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.Get()
	if got.Mode != pipeline.ModeTesseract {
		t.Errorf("mode = %q, want tesseract after reload", got.Mode)
	}
	if got.Rate != 0.8 {
		t.Errorf("rate = %v, want 0.8 after reload", got.Rate)
	}
}

func TestSettingsStoreZeroRateNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("rate: 0\n"), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, err := NewSettingsStore(path)
	if err != nil {
		t.Fatalf("NewSettingsStore: %v", err)
	}
	if got := s.Get().Rate; got != 1.0 {
		t.Errorf("rate = %v, want normalized 1.0", got)
	}
}
