package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LeonTing1010/VoiceNotes/internal/audio"
	"github.com/LeonTing1010/VoiceNotes/internal/notes"
	"github.com/LeonTing1010/VoiceNotes/internal/settings"
	"github.com/LeonTing1010/VoiceNotes/internal/transcription"
)

// fakeSource is a scripted capture device for tests. Fragments are delivered
// by calling emit between Start and Stop.
type fakeSource struct {
	mu       sync.Mutex
	onFrame  func([]int16)
	started  bool
	stopped  bool
	startErr error
	stopErr  error
}

func (f *fakeSource) Encoding() audio.Encoding {
	return audio.PCM16Mono(16000)
}

func (f *fakeSource) Start(onFragment func(frame []int16)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFrame = onFragment
	f.started = true
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return f.stopErr
}

func (f *fakeSource) emit(frame []int16) {
	f.mu.Lock()
	onFrame := f.onFrame
	f.mu.Unlock()
	if onFrame != nil {
		onFrame(frame)
	}
}

// fakeNotifier records notifications for assertions
type fakeNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (f *fakeNotifier) Info(title, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos = append(f.infos, title+": "+message)
}

func (f *fakeNotifier) Error(title, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, title+": "+message)
}

func (f *fakeNotifier) infoCount(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, i := range f.infos {
		if strings.Contains(i, substr) {
			count++
		}
	}
	return count
}

func (f *fakeNotifier) hasError(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

type testEnv struct {
	manager  *Manager
	source   *fakeSource
	notifier *fakeNotifier
	store    *notes.Store
	settings *settings.Store
	root     string
}

func newTestEnv(t *testing.T, endpoint string) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()

	store, err := notes.NewStore(notes.Config{
		Root:          root,
		RecordingsDir: "recordings",
		InsertionMode: "append",
	}, logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	settingsStore, err := settings.NewStore(filepath.Join(root, ".voicenotes.yaml"), logger)
	if err != nil {
		t.Fatalf("settings.NewStore failed: %v", err)
	}

	if endpoint == "" {
		endpoint = "http://localhost:1/transcribe"
	}

	client, err := transcription.NewClient(transcription.Config{
		Endpoint: endpoint,
		Model:    "whisper-1",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("transcription.NewClient failed: %v", err)
	}

	source := &fakeSource{}
	notifier := &fakeNotifier{}

	manager, err := NewManager(logger, ManagerConfig{
		Source:      source,
		Store:       store,
		Transcriber: client,
		Settings:    settingsStore,
		Notifier:    notifier,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	return &testEnv{
		manager:  manager,
		source:   source,
		notifier: notifier,
		store:    store,
		settings: settingsStore,
		root:     root,
	}
}

func TestStartStopSavesRecording(t *testing.T) {
	env := newTestEnv(t, "")

	if err := env.manager.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !env.source.started {
		t.Fatal("Capture source was not started")
	}

	env.source.emit([]int16{1, 2, 3, 4})
	env.source.emit([]int16{5, 6, 7, 8})

	result, err := env.manager.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !env.source.stopped {
		t.Fatal("Capture source was not stopped")
	}

	if result.RecordingPath == "" {
		t.Fatal("Result missing recording path")
	}

	if result.Transcribed {
		t.Error("Expected no transcription with default settings")
	}

	// The saved file must be a valid WAV holding the emitted samples in order
	data, err := os.ReadFile(filepath.Join(env.root, result.RecordingPath))
	if err != nil {
		t.Fatalf("Failed to read saved recording: %v", err)
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("Saved recording is not valid WAV: %v", err)
	}

	if rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}

	expected := []int16{1, 2, 3, 4, 5, 6, 7, 8}
	if len(samples) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(samples))
	}
	for i, s := range expected {
		if samples[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, samples[i])
		}
	}
}

func TestStartWhileRecording(t *testing.T) {
	env := newTestEnv(t, "")

	if err := env.manager.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := env.manager.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("Expected ErrAlreadyRecording, got %v", err)
	}
}

func TestStopWhileIdle(t *testing.T) {
	env := newTestEnv(t, "")

	if _, err := env.manager.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}
}

func TestStopWithoutFragments(t *testing.T) {
	env := newTestEnv(t, "")

	if err := env.manager.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := env.manager.Stop(context.Background()); err == nil {
		t.Error("Expected error stopping with no fragments")
	}

	if !env.notifier.hasError("Recording failed") {
		t.Error("Expected failure notification")
	}
}

func TestFragmentAfterStopIgnored(t *testing.T) {
	env := newTestEnv(t, "")

	if err := env.manager.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	env.source.emit([]int16{1, 2})

	if _, err := env.manager.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Late fragment from a draining device must be dropped, not buffered
	env.source.emit([]int16{3, 4})

	status := env.manager.Status()
	if status.Recording {
		t.Error("Session should be idle after stop")
	}
	if status.Fragments != 0 {
		t.Errorf("Expected 0 buffered fragments after stop, got %d", status.Fragments)
	}
}

func TestStopFailureStillSavesTake(t *testing.T) {
	env := newTestEnv(t, "")
	env.source.stopErr = errors.New("device hangup")

	if err := env.manager.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	env.source.emit([]int16{1, 2, 3, 4})

	result, err := env.manager.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop should salvage the take despite the device error: %v", err)
	}

	// The buffered audio survives a capture stop failure
	if _, statErr := os.Stat(filepath.Join(env.root, result.RecordingPath)); statErr != nil {
		t.Errorf("Recording file missing: %v", statErr)
	}

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "capture stop failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected capture stop warning, got %v", result.Warnings)
	}

	if !env.notifier.hasError("device hangup") {
		t.Error("Expected device failure notification")
	}
}

func TestStartFailureResetsState(t *testing.T) {
	env := newTestEnv(t, "")
	env.source.startErr = errors.New("no input device")

	if err := env.manager.Start(); err == nil {
		t.Fatal("Expected start error")
	}

	if !env.notifier.hasError("no input device") {
		t.Error("Expected capture failure notification")
	}

	// The session must be idle again so a retry is possible
	env.source.startErr = nil
	if err := env.manager.Start(); err != nil {
		t.Errorf("Restart after failure should succeed, got %v", err)
	}
}

func TestTranscriptionIntoActiveNote(t *testing.T) {
	var uploadedFilename string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if _, header, err := r.FormFile("file"); err == nil {
			uploadedFilename = header.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transcription.Response{Text: "meeting notes from dictation"})
	}))
	defer server.Close()

	env := newTestEnv(t, server.URL)

	if _, err := env.settings.Update(func(s *settings.Settings) {
		s.APIKey = "sk-test"
		s.TranscriptionEnabled = true
		s.ActiveNote = "daily.md"
	}); err != nil {
		t.Fatalf("Settings update failed: %v", err)
	}

	if err := env.manager.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	env.source.emit([]int16{10, 20, 30})

	result, err := env.manager.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !result.Transcribed {
		t.Fatal("Expected transcription to run")
	}

	if result.Transcript != "meeting notes from dictation" {
		t.Errorf("Unexpected transcript: %q", result.Transcript)
	}

	if result.InsertTarget != notes.TargetNote {
		t.Errorf("Expected insert target %s, got %s", notes.TargetNote, result.InsertTarget)
	}

	// The upload filename is derived from the saved recording
	if want := filepath.Base(result.RecordingPath); uploadedFilename != want {
		t.Errorf("Expected upload filename %q, got %q", want, uploadedFilename)
	}

	content, err := os.ReadFile(filepath.Join(env.root, "daily.md"))
	if err != nil {
		t.Fatalf("Active note was not created: %v", err)
	}

	text := string(content)
	if !strings.Contains(text, "meeting notes from dictation") {
		t.Errorf("Note missing transcript:\n%s", text)
	}
	if !strings.Contains(text, result.RecordingPath) {
		t.Errorf("Note missing embed link to %s:\n%s", result.RecordingPath, text)
	}
}

func TestTranscriptionSkippedWithoutCredential(t *testing.T) {
	env := newTestEnv(t, "")

	if _, err := env.settings.Update(func(s *settings.Settings) {
		s.TranscriptionEnabled = true // enabled but no API key
	}); err != nil {
		t.Fatalf("Settings update failed: %v", err)
	}

	if err := env.manager.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	env.source.emit([]int16{1, 2})

	result, err := env.manager.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if result.Transcribed {
		t.Error("Transcription should be skipped without a credential")
	}

	if len(result.Warnings) == 0 || !strings.Contains(result.Warnings[0], "credential") {
		t.Errorf("Expected credential warning, got %v", result.Warnings)
	}

	if !env.notifier.hasError("Transcription skipped") {
		t.Error("Expected skip notification")
	}
}

func TestTranscriptionFailureKeepsRecording(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "boom"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	env := newTestEnv(t, server.URL)

	if _, err := env.settings.Update(func(s *settings.Settings) {
		s.APIKey = "sk-test"
		s.TranscriptionEnabled = true
		s.ActiveNote = "daily.md"
	}); err != nil {
		t.Fatalf("Settings update failed: %v", err)
	}

	if err := env.manager.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	env.source.emit([]int16{1, 2})

	result, err := env.manager.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop should not fail when transcription fails: %v", err)
	}

	// The saved take survives the transcription failure
	if _, statErr := os.Stat(filepath.Join(env.root, result.RecordingPath)); statErr != nil {
		t.Errorf("Recording file missing: %v", statErr)
	}

	if result.Transcribed {
		t.Error("Result should not be marked transcribed")
	}

	if len(result.Warnings) == 0 {
		t.Error("Expected transcription failure warning")
	}

	if !env.notifier.hasError("Transcription failed") {
		t.Error("Expected failure notification")
	}
}

func TestToggle(t *testing.T) {
	env := newTestEnv(t, "")

	recording, result, err := env.manager.Toggle(context.Background())
	if err != nil {
		t.Fatalf("First toggle failed: %v", err)
	}
	if !recording {
		t.Fatal("First toggle should start recording")
	}
	if result != nil {
		t.Error("Start toggle should not produce a result")
	}

	env.source.emit([]int16{1, 2, 3})

	recording, result, err = env.manager.Toggle(context.Background())
	if err != nil {
		t.Fatalf("Second toggle failed: %v", err)
	}
	if recording {
		t.Fatal("Second toggle should stop recording")
	}
	if result == nil || result.RecordingPath == "" {
		t.Error("Stop toggle should return the saved take")
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, "")

	status := env.manager.Status()
	if status.Recording {
		t.Error("New manager should be idle")
	}
	if status.StartTime != nil {
		t.Error("Idle status should not carry a start time")
	}

	if err := env.manager.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	env.source.emit(make([]int16, 1600)) // 100ms at 16kHz

	status = env.manager.Status()
	if !status.Recording {
		t.Error("Status should report recording")
	}
	if status.StartTime == nil {
		t.Error("Recording status should carry a start time")
	}
	if status.Fragments != 1 {
		t.Errorf("Expected 1 fragment, got %d", status.Fragments)
	}
	if status.Samples != 1600 {
		t.Errorf("Expected 1600 samples, got %d", status.Samples)
	}

	if _, err := env.manager.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	status = env.manager.Status()
	if status.TakesDone != 1 {
		t.Errorf("Expected 1 completed take, got %d", status.TakesDone)
	}
}

func TestMaxDurationCap(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()

	store, err := notes.NewStore(notes.Config{
		Root:          root,
		RecordingsDir: "recordings",
		InsertionMode: "append",
	}, logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	settingsStore, err := settings.NewStore(filepath.Join(root, ".voicenotes.yaml"), logger)
	if err != nil {
		t.Fatalf("settings.NewStore failed: %v", err)
	}

	client, err := transcription.NewClient(transcription.Config{
		Endpoint: "http://localhost:1/transcribe",
		Model:    "whisper-1",
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	source := &fakeSource{}
	notifier := &fakeNotifier{}
	manager, err := NewManager(logger, ManagerConfig{
		Source:      source,
		Store:       store,
		Transcriber: client,
		Settings:    settingsStore,
		Notifier:    notifier,
		MaxDuration: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	if err := manager.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// 100ms at 16kHz fills the cap; subsequent fragments must be dropped
	source.emit(make([]int16, 1600))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			source.emit(make([]int16, 1600))
		}()
	}
	wg.Wait()

	status := manager.Status()
	if status.Samples != 1600 {
		t.Errorf("Expected cap to hold samples at 1600, got %d", status.Samples)
	}

	// Over-cap fragments, even racing ones, must warn the user once
	if got := notifier.infoCount("Maximum duration"); got != 1 {
		t.Errorf("Expected exactly 1 cap notification, got %d", got)
	}
}
