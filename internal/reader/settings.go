package reader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/pagevoice/pagevoice/internal/ocr/pipeline"
)

// Settings are the user-adjustable reading preferences, persisted as
// YAML so edits outside the process apply on the next read.
type Settings struct {
	Mode              pipeline.Mode `yaml:"mode"`
	Rate              float64       `yaml:"rate"`
	VoiceID           string        `yaml:"voice_id"`
	FallbackTesseract bool          `yaml:"fallback_tesseract"`
	Continuous        bool          `yaml:"continuous"`
}

// DefaultSettings returns the out-of-box preferences.
func DefaultSettings() Settings {
	return Settings{
		Mode:              pipeline.ModePPOCR,
		Rate:              1.0,
		FallbackTesseract: true,
		Continuous:        true,
	}
}

// SettingsStore loads, persists and hot-reloads Settings from one
// YAML file.
type SettingsStore struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// NewSettingsStore creates a store over path. A missing file yields
// defaults; a malformed one is an error.
func NewSettingsStore(path string) (*SettingsStore, error) {
	s := &SettingsStore{path: path, current: DefaultSettings()}
	if err := s.Reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

// Get returns the current settings snapshot.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Mode returns the current recognition mode. Convenient as the
// pipeline's live mode source.
func (s *SettingsStore) Mode() pipeline.Mode {
	return s.Get().Mode
}

// Update applies fn to the settings and persists the result.
func (s *SettingsStore) Update(fn func(*Settings)) error {
	s.mu.Lock()
	next := s.current
	fn(&next)
	s.current = next
	s.mu.Unlock()
	return s.save(next)
}

// Reload reads the file back into memory.
func (s *SettingsStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	loaded := DefaultSettings()
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse settings %q: %w", s.path, err)
	}
	if loaded.Rate <= 0 {
		loaded.Rate = 1.0
	}
	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}

func (s *SettingsStore) save(settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %q: %w", s.path, err)
	}
	return nil
}

// WatchAndReload re-reads the file whenever it changes on disk.
// This blocks until the done channel is closed.
func (s *SettingsStore) WatchAndReload(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch dir %q: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && event.Name == s.path {
				_ = s.Reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
