package notes

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
)

// CursorMarker marks the insertion point inside a note. Text is inserted
// immediately before the marker so follow-up dictation lands in the same spot.
const CursorMarker = "%%cursor%%"

// Insertion targets reported back to the caller
const (
	TargetNote      = "note"
	TargetClipboard = "clipboard"
)

// Config contains notes store configuration
type Config struct {
	Root          string
	RecordingsDir string
	InsertionMode string // "append" or "clipboard"
}

// Store manages the notes directory: saved recordings and transcript insertion
type Store struct {
	root          string
	recordingsDir string
	insertionMode string
	logger        *slog.Logger

	// Swappable for tests; defaults to the system clipboard
	clipboardWrite func(string) error

	mu sync.Mutex
}

// NewStore creates a notes store rooted at cfg.Root, creating the root and
// recordings directories if needed.
func NewStore(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("notes root cannot be empty")
	}

	if cfg.RecordingsDir == "" {
		return nil, fmt.Errorf("recordings directory cannot be empty")
	}

	if cfg.InsertionMode != "append" && cfg.InsertionMode != "clipboard" {
		return nil, fmt.Errorf("insertion mode must be 'append' or 'clipboard', got '%s'", cfg.InsertionMode)
	}

	if err := os.MkdirAll(filepath.Join(cfg.Root, cfg.RecordingsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	return &Store{
		root:           cfg.Root,
		recordingsDir:  cfg.RecordingsDir,
		insertionMode:  cfg.InsertionMode,
		logger:         logger,
		clipboardWrite: clipboard.WriteAll,
	}, nil
}

// SaveRecording writes a composed take into the recordings directory and
// returns its path relative to the notes root. File names are derived from
// the session start timestamp; collisions get a short unique suffix.
func (s *Store) SaveRecording(startTime time.Time, extension string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("recording data cannot be empty")
	}

	if extension == "" {
		extension = "wav"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := fmt.Sprintf("recording-%s", startTime.Format("20060102150405"))
	relPath := filepath.Join(s.recordingsDir, base+"."+extension)
	fullPath := filepath.Join(s.root, relPath)

	if _, err := os.Stat(fullPath); err == nil {
		suffix := uuid.NewString()[:8]
		relPath = filepath.Join(s.recordingsDir, fmt.Sprintf("%s-%s.%s", base, suffix, extension))
		fullPath = filepath.Join(s.root, relPath)
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write recording file: %w", err)
	}

	s.logger.Info("Recording saved",
		slog.String("path", relPath),
		slog.Int("size_bytes", len(data)),
	)

	return relPath, nil
}

// InsertTranscript places the transcript into the active note, preceded by an
// embed link to the saved recording. With no active note, or in clipboard
// mode, the transcript goes to the system clipboard instead. The returned
// target names where the text went.
func (s *Store) InsertTranscript(activeNote, recordingPath, transcript string) (string, error) {
	if transcript == "" {
		return "", fmt.Errorf("transcript cannot be empty")
	}

	if s.insertionMode == "clipboard" || activeNote == "" {
		if err := s.clipboardWrite(transcript); err != nil {
			return "", fmt.Errorf("failed to copy transcript to clipboard: %w", err)
		}
		return TargetClipboard, nil
	}

	if err := s.insertIntoNote(activeNote, recordingPath, transcript); err != nil {
		return "", err
	}

	return TargetNote, nil
}

// insertIntoNote appends the transcript block to the note, honoring the
// cursor marker when present. A missing note file is created.
func (s *Store) insertIntoNote(activeNote, recordingPath, transcript string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notePath := filepath.Join(s.root, activeNote)

	if !strings.HasPrefix(filepath.Clean(notePath), filepath.Clean(s.root)+string(filepath.Separator)) {
		return fmt.Errorf("active note %s escapes the notes root", activeNote)
	}

	content, err := os.ReadFile(notePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read note %s: %w", activeNote, err)
	}

	block := formatTranscriptBlock(recordingPath, transcript)

	var updated string
	if idx := strings.Index(string(content), CursorMarker); idx >= 0 {
		// Insert before the marker so it stays usable
		updated = string(content[:idx]) + block + "\n" + string(content[idx:])
	} else {
		updated = string(content)
		if updated != "" && !strings.HasSuffix(updated, "\n") {
			updated += "\n"
		}
		updated += block
	}

	if dir := filepath.Dir(notePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create note directory: %w", err)
		}
	}

	if err := os.WriteFile(notePath, []byte(updated), 0644); err != nil {
		return fmt.Errorf("failed to write note %s: %w", activeNote, err)
	}

	s.logger.Info("Transcript inserted",
		slog.String("note", activeNote),
		slog.String("recording", recordingPath),
		slog.Int("transcript_chars", len(transcript)),
	)

	return nil
}

// formatTranscriptBlock builds the markdown block inserted into a note
func formatTranscriptBlock(recordingPath, transcript string) string {
	var b strings.Builder

	if recordingPath != "" {
		b.WriteString("![[")
		b.WriteString(filepath.ToSlash(recordingPath))
		b.WriteString("]]\n\n")
	}

	b.WriteString(strings.TrimSpace(transcript))
	b.WriteString("\n")

	return b.String()
}

// NoteExists reports whether a note path exists inside the root
func (s *Store) NoteExists(relPath string) bool {
	if relPath == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(s.root, relPath))
	return err == nil
}

// Root returns the notes root directory
func (s *Store) Root() string {
	return s.root
}
