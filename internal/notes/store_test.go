package notes

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, mode string) *Store {
	t.Helper()

	store, err := NewStore(Config{
		Root:          t.TempDir(),
		RecordingsDir: "recordings",
		InsertionMode: mode,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	return store
}

func TestNewStoreValidation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"empty root", Config{RecordingsDir: "recordings", InsertionMode: "append"}},
		{"empty recordings dir", Config{Root: "/tmp/x", InsertionMode: "append"}},
		{"bad insertion mode", Config{Root: "/tmp/x", RecordingsDir: "recordings", InsertionMode: "paste"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStore(tt.config, testLogger()); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestSaveRecording(t *testing.T) {
	store := newTestStore(t, "append")

	startTime := time.Date(2024, 5, 1, 9, 30, 15, 0, time.UTC)
	data := []byte("RIFF-fake-wav")

	relPath, err := store.SaveRecording(startTime, "wav", data)
	if err != nil {
		t.Fatalf("SaveRecording failed: %v", err)
	}

	expected := filepath.Join("recordings", "recording-20240501093015.wav")
	if relPath != expected {
		t.Errorf("Expected path %s, got %s", expected, relPath)
	}

	saved, err := os.ReadFile(filepath.Join(store.Root(), relPath))
	if err != nil {
		t.Fatalf("Failed to read saved recording: %v", err)
	}

	if string(saved) != string(data) {
		t.Error("Saved recording does not match input data")
	}
}

func TestSaveRecordingCollision(t *testing.T) {
	store := newTestStore(t, "append")

	startTime := time.Date(2024, 5, 1, 9, 30, 15, 0, time.UTC)

	first, err := store.SaveRecording(startTime, "wav", []byte("take-one"))
	if err != nil {
		t.Fatalf("First SaveRecording failed: %v", err)
	}

	second, err := store.SaveRecording(startTime, "wav", []byte("take-two"))
	if err != nil {
		t.Fatalf("Second SaveRecording failed: %v", err)
	}

	if first == second {
		t.Errorf("Expected distinct paths for colliding timestamps, both were %s", first)
	}

	if !strings.HasPrefix(filepath.Base(second), "recording-20240501093015-") {
		t.Errorf("Expected suffixed name for collision, got %s", second)
	}
}

func TestSaveRecordingEmptyData(t *testing.T) {
	store := newTestStore(t, "append")

	if _, err := store.SaveRecording(time.Now(), "wav", nil); err == nil {
		t.Error("Expected error for empty recording data")
	}
}

func TestInsertTranscriptAppendsToNote(t *testing.T) {
	store := newTestStore(t, "append")

	notePath := filepath.Join(store.Root(), "daily.md")
	if err := os.WriteFile(notePath, []byte("# Daily\n\nexisting text\n"), 0644); err != nil {
		t.Fatalf("Failed to seed note: %v", err)
	}

	target, err := store.InsertTranscript("daily.md", "recordings/recording-x.wav", "dictated words")
	if err != nil {
		t.Fatalf("InsertTranscript failed: %v", err)
	}

	if target != TargetNote {
		t.Errorf("Expected target %s, got %s", TargetNote, target)
	}

	content, err := os.ReadFile(notePath)
	if err != nil {
		t.Fatalf("Failed to read note: %v", err)
	}

	text := string(content)
	if !strings.Contains(text, "![[recordings/recording-x.wav]]") {
		t.Errorf("Note missing embed link:\n%s", text)
	}
	if !strings.Contains(text, "dictated words") {
		t.Errorf("Note missing transcript:\n%s", text)
	}
	if !strings.HasPrefix(text, "# Daily") {
		t.Errorf("Existing content was not preserved:\n%s", text)
	}
}

func TestInsertTranscriptAtCursorMarker(t *testing.T) {
	store := newTestStore(t, "append")

	notePath := filepath.Join(store.Root(), "daily.md")
	seed := "before\n" + CursorMarker + "\nafter\n"
	if err := os.WriteFile(notePath, []byte(seed), 0644); err != nil {
		t.Fatalf("Failed to seed note: %v", err)
	}

	if _, err := store.InsertTranscript("daily.md", "", "inserted here"); err != nil {
		t.Fatalf("InsertTranscript failed: %v", err)
	}

	content, err := os.ReadFile(notePath)
	if err != nil {
		t.Fatalf("Failed to read note: %v", err)
	}

	text := string(content)
	markerIdx := strings.Index(text, CursorMarker)
	transcriptIdx := strings.Index(text, "inserted here")
	afterIdx := strings.Index(text, "after")

	if markerIdx < 0 {
		t.Fatal("Cursor marker was consumed")
	}
	if transcriptIdx < 0 {
		t.Fatal("Transcript not inserted")
	}
	if !(transcriptIdx < markerIdx && markerIdx < afterIdx) {
		t.Errorf("Transcript not inserted before marker:\n%s", text)
	}
}

func TestInsertTranscriptCreatesMissingNote(t *testing.T) {
	store := newTestStore(t, "append")

	target, err := store.InsertTranscript("inbox/new.md", "recordings/r.wav", "fresh note")
	if err != nil {
		t.Fatalf("InsertTranscript failed: %v", err)
	}

	if target != TargetNote {
		t.Errorf("Expected target %s, got %s", TargetNote, target)
	}

	content, err := os.ReadFile(filepath.Join(store.Root(), "inbox", "new.md"))
	if err != nil {
		t.Fatalf("Note was not created: %v", err)
	}

	if !strings.Contains(string(content), "fresh note") {
		t.Errorf("New note missing transcript:\n%s", content)
	}
}

func TestInsertTranscriptClipboardFallback(t *testing.T) {
	store := newTestStore(t, "append")

	var copied string
	store.clipboardWrite = func(text string) error {
		copied = text
		return nil
	}

	// No active note set: transcript goes to the clipboard
	target, err := store.InsertTranscript("", "recordings/r.wav", "clipboard text")
	if err != nil {
		t.Fatalf("InsertTranscript failed: %v", err)
	}

	if target != TargetClipboard {
		t.Errorf("Expected target %s, got %s", TargetClipboard, target)
	}

	if copied != "clipboard text" {
		t.Errorf("Expected clipboard to hold transcript, got %q", copied)
	}
}

func TestInsertTranscriptClipboardMode(t *testing.T) {
	store := newTestStore(t, "clipboard")

	var copied string
	store.clipboardWrite = func(text string) error {
		copied = text
		return nil
	}

	target, err := store.InsertTranscript("daily.md", "", "always clipboard")
	if err != nil {
		t.Fatalf("InsertTranscript failed: %v", err)
	}

	if target != TargetClipboard {
		t.Errorf("Expected target %s, got %s", TargetClipboard, target)
	}

	if copied != "always clipboard" {
		t.Errorf("Clipboard mode ignored: got %q", copied)
	}
}

func TestInsertTranscriptEscapingPathRejected(t *testing.T) {
	store := newTestStore(t, "append")

	if _, err := store.InsertTranscript("../outside.md", "", "text"); err == nil {
		t.Error("Expected error for note path escaping the root")
	}
}

func TestInsertTranscriptEmpty(t *testing.T) {
	store := newTestStore(t, "append")

	if _, err := store.InsertTranscript("daily.md", "", ""); err == nil {
		t.Error("Expected error for empty transcript")
	}
}
