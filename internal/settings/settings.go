package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Settings holds the user-changeable state of the service
type Settings struct {
	// APIKey is the transcription API credential. A non-empty key is a
	// precondition for transcription.
	APIKey string `yaml:"api_key" json:"api_key"`

	// TranscriptionEnabled toggles the transcription step after a take is saved
	TranscriptionEnabled bool `yaml:"transcription_enabled" json:"transcription_enabled"`

	// ActiveNote is the relative path (within the notes root) of the note
	// transcripts are inserted into. Empty falls back to the clipboard.
	ActiveNote string `yaml:"active_note" json:"active_note"`
}

// CanTranscribe reports whether the transcription step should run
func (s Settings) CanTranscribe() bool {
	return s.TranscriptionEnabled && s.APIKey != ""
}

// Store owns the settings file: it loads it at startup, persists every
// change, and picks up external edits through a filesystem watcher.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current Settings

	watcher *fsnotify.Watcher
	done    chan struct{}

	// Incremented before the store writes the file itself so the watcher
	// can tell its own saves apart from external edits.
	selfWrites int
}

// NewStore loads settings from path, creating the file with defaults if it
// does not exist yet.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("settings path cannot be empty")
	}

	s := &Store{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}

		// First run: persist defaults so the file exists for the watcher
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("failed to create settings file: %w", err)
		}
		logger.Info("Created settings file with defaults", slog.String("path", path))
	}

	return s, nil
}

// Get returns a snapshot of the current settings
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies fn to a copy of the current settings and persists the result
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := s.current
	fn(&updated)

	if updated == s.current {
		return s.current, nil
	}

	previous := s.current
	s.current = updated

	if err := s.save(); err != nil {
		s.current = previous
		return s.current, fmt.Errorf("failed to persist settings: %w", err)
	}

	s.logger.Info("Settings updated",
		slog.Bool("transcription_enabled", s.current.TranscriptionEnabled),
		slog.Bool("api_key_set", s.current.APIKey != ""),
		slog.String("active_note", s.current.ActiveNote),
	)

	return s.current, nil
}

// load reads the settings file into the store (no locking)
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse settings file %s: %w", s.path, err)
	}

	s.current = loaded
	return nil
}

// save writes the current settings to disk (no locking).
// The file carries the API credential, so permissions are restricted.
func (s *Store) save() error {
	data, err := yaml.Marshal(s.current)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	s.selfWrites++
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings file %s: %w", s.path, err)
	}

	return nil
}

// Watch starts a filesystem watcher that reloads the settings when the file
// is modified outside the service. Call Close to stop it.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}

	// Watch the directory: editors typically replace the file, which would
	// invalidate a watch on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}

	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				s.handleFileChange()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Settings watcher error", slog.String("error", err.Error()))

			case <-s.done:
				return
			}
		}
	}()

	s.logger.Info("Watching settings file", slog.String("path", s.path))
	return nil
}

// handleFileChange reloads the settings file unless the change was our own save
func (s *Store) handleFileChange() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selfWrites > 0 {
		s.selfWrites--
		return
	}

	if err := s.load(); err != nil {
		s.logger.Warn("Failed to reload settings after external edit",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("Settings reloaded after external edit",
		slog.Bool("transcription_enabled", s.current.TranscriptionEnabled),
		slog.Bool("api_key_set", s.current.APIKey != ""),
	)
}

// Close stops the filesystem watcher
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
