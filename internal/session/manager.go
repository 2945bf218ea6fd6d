package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/LeonTing1010/VoiceNotes/internal/audio"
	"github.com/LeonTing1010/VoiceNotes/internal/metrics"
	"github.com/LeonTing1010/VoiceNotes/internal/notes"
	"github.com/LeonTing1010/VoiceNotes/internal/settings"
	"github.com/LeonTing1010/VoiceNotes/internal/transcription"
)

// Session state errors
var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
)

// Source abstracts the capture device. The capture package provides the
// PortAudio implementation.
type Source interface {
	// Encoding identifies the audio format the source delivers
	Encoding() audio.Encoding
	// Start opens the device and delivers fragments to onFragment until Stop
	Start(onFragment func(frame []int16)) error
	Stop() error
}

// Notifier delivers best-effort user notifications
type Notifier interface {
	Info(title, message string)
	Error(title, message string)
}

// Manager owns the single recording session. All state transitions go through
// the recording flag under the mutex; fragment callbacks arriving after Stop
// are dropped by the same flag.
type Manager struct {
	logger      *slog.Logger
	source      Source
	store       *notes.Store
	transcriber *transcription.Client
	settings    *settings.Store
	notifier    Notifier
	metrics     *metrics.Metrics
	maxDuration time.Duration

	mu          sync.Mutex
	recording   bool
	startTime   time.Time
	buffer      *audio.FragmentBuffer
	encoding    audio.Encoding
	capWarned   bool
	takesDone   uint64
	lastResult  *Result
}

// ManagerConfig contains the session manager dependencies and limits
type ManagerConfig struct {
	Source      Source
	Store       *notes.Store
	Transcriber *transcription.Client
	Settings    *settings.Store
	Notifier    Notifier
	Metrics     *metrics.Metrics
	MaxDuration time.Duration // 0 disables the cap
}

// Status is a snapshot of the session state for the control API
type Status struct {
	Recording bool           `json:"recording"`
	StartTime *time.Time     `json:"start_time,omitempty"`
	Duration  float64        `json:"duration_seconds"`
	Fragments int            `json:"fragments"`
	Samples   int            `json:"samples"`
	Encoding  *audio.Encoding `json:"encoding,omitempty"`
	TakesDone uint64         `json:"takes_done"`
}

// Result describes the outcome of a finished take. Save failures abort the
// pipeline; transcription and insertion failures are carried as warnings so
// the saved recording path still reaches the caller.
type Result struct {
	RecordingPath string        `json:"recording_path"`
	Duration      time.Duration `json:"-"`
	DurationSec   float64       `json:"duration_seconds"`
	Transcribed   bool          `json:"transcribed"`
	Transcript    string        `json:"transcript,omitempty"`
	InsertTarget  string        `json:"insert_target,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// NewManager creates the session manager
func NewManager(logger *slog.Logger, cfg ManagerConfig) (*Manager, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("capture source cannot be nil")
	}

	if cfg.Store == nil {
		return nil, fmt.Errorf("notes store cannot be nil")
	}

	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("transcription client cannot be nil")
	}

	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings store cannot be nil")
	}

	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}

	return &Manager{
		logger:      logger,
		source:      cfg.Source,
		store:       cfg.Store,
		transcriber: cfg.Transcriber,
		settings:    cfg.Settings,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		maxDuration: cfg.MaxDuration,
	}, nil
}

// Start begins a new recording session
func (m *Manager) Start() error {
	m.mu.Lock()

	if m.recording {
		m.mu.Unlock()
		return ErrAlreadyRecording
	}

	encoding := m.source.Encoding()
	buffer, err := audio.NewFragmentBuffer(encoding)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to create fragment buffer: %w", err)
	}

	// Arm the session before opening the device so the first fragments land
	m.recording = true
	m.startTime = time.Now()
	m.capWarned = false
	m.buffer = buffer
	m.encoding = encoding
	m.mu.Unlock()

	if err := m.source.Start(m.handleFragment); err != nil {
		m.mu.Lock()
		m.recording = false
		m.buffer = nil
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.CaptureErrors.Inc()
		}
		m.notifier.Error("Recording failed", err.Error())
		return fmt.Errorf("failed to start capture: %w", err)
	}

	if m.metrics != nil {
		m.metrics.RecordingsStarted.Inc()
	}

	m.logger.Info("Recording started",
		slog.Time("start_time", m.startTime),
		slog.String("encoding", encoding.String()),
	)
	m.notifier.Info("Recording", "Recording started")

	return nil
}

// handleFragment is the capture callback. It runs on the capture thread, so
// it only appends to the buffer and never touches the capture device.
func (m *Manager) handleFragment(frame []int16) {
	m.mu.Lock()

	if !m.recording || m.buffer == nil {
		m.mu.Unlock()
		// Stop raced a late fragment; the flag gates it out
		if m.metrics != nil {
			m.metrics.FragmentsDropped.Inc()
		}
		return
	}

	buffer := m.buffer

	if m.maxDuration > 0 && buffer.Duration() >= m.maxDuration {
		// Check-and-set under the lock so racing callbacks warn only once
		warned := m.capWarned
		m.capWarned = true
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.FragmentsDropped.Inc()
		}
		if !warned {
			m.logger.Warn("Maximum recording duration reached, dropping further fragments",
				slog.Duration("max_duration", m.maxDuration),
			)
			m.notifier.Info("Recording", "Maximum duration reached; stop to save the take")
		}
		return
	}

	m.mu.Unlock()

	if err := buffer.Append(frame); err != nil {
		m.logger.Warn("Failed to buffer fragment", slog.String("error", err.Error()))
		return
	}

	if m.metrics != nil {
		m.metrics.FragmentsReceived.Inc()
	}
}

// Stop ends the recording session, composes the take, persists it, and runs
// the optional transcription and insertion steps.
func (m *Manager) Stop(ctx context.Context) (*Result, error) {
	m.mu.Lock()

	if !m.recording {
		m.mu.Unlock()
		return nil, ErrNotRecording
	}

	// Clear the flag first: fragments arriving while the device drains are dropped
	m.recording = false
	buffer := m.buffer
	startTime := m.startTime
	encoding := m.encoding
	m.buffer = nil
	m.mu.Unlock()

	// A device stop failure does not lose the take: the buffered audio is
	// already detached, so composition and saving proceed with a warning.
	var stopWarning string
	if err := m.source.Stop(); err != nil {
		if m.metrics != nil {
			m.metrics.CaptureErrors.Inc()
		}
		m.logger.Error("Failed to stop capture", slog.String("error", err.Error()))
		m.notifier.Error("Recording", "Capture device stop failed: "+err.Error())
		stopWarning = fmt.Sprintf("capture stop failed: %v", err)
	}

	wavData, err := buffer.Compose()
	if err != nil {
		m.notifier.Error("Recording failed", err.Error())
		return nil, fmt.Errorf("failed to compose recording: %w", err)
	}

	duration := buffer.Duration()

	relPath, err := m.store.SaveRecording(startTime, encoding.Extension(), wavData)
	if err != nil {
		if m.metrics != nil {
			m.metrics.SaveErrors.Inc()
		}
		m.notifier.Error("Save failed", err.Error())
		return nil, fmt.Errorf("failed to save recording: %w", err)
	}

	if m.metrics != nil {
		m.metrics.RecordingsSaved.Inc()
		m.metrics.RecordingsCompleted.Inc()
		m.metrics.RecordingDuration.Observe(duration.Seconds())
	}

	result := &Result{
		RecordingPath: relPath,
		Duration:      duration,
		DurationSec:   duration.Seconds(),
	}
	if stopWarning != "" {
		result.Warnings = append(result.Warnings, stopWarning)
	}

	m.logger.Info("Recording completed",
		slog.String("path", relPath),
		slog.Duration("duration", duration),
		slog.Int("fragments", buffer.Fragments()),
	)

	m.runTranscription(ctx, wavData, encoding, result)

	m.mu.Lock()
	m.takesDone++
	m.lastResult = result
	m.mu.Unlock()

	return result, nil
}

// runTranscription performs the optional transcription and insertion steps.
// Failures become warnings on the result; the saved take is never lost.
func (m *Manager) runTranscription(ctx context.Context, wavData []byte, encoding audio.Encoding, result *Result) {
	current := m.settings.Get()

	if !current.TranscriptionEnabled {
		m.notifier.Info("Recording saved", result.RecordingPath)
		return
	}

	if current.APIKey == "" {
		m.logger.Warn("Transcription enabled but no API key configured")
		m.notifier.Error("Transcription skipped", "No API credential configured")
		result.Warnings = append(result.Warnings, "transcription skipped: no API credential configured")
		return
	}

	if m.metrics != nil {
		m.metrics.TranscriptionRequests.Inc()
	}

	requestStart := time.Now()
	resp, err := m.transcriber.Transcribe(ctx, current.APIKey, &transcription.Request{
		Audio:    wavData,
		Filename: filepath.Base(result.RecordingPath),
		MIMEType: encoding.MIMEType,
	})
	if err != nil {
		if m.metrics != nil {
			m.metrics.TranscriptionFailures.Inc()
		}
		m.logger.Error("Transcription failed", slog.String("error", err.Error()))
		m.notifier.Error("Transcription failed", err.Error())
		result.Warnings = append(result.Warnings, fmt.Sprintf("transcription failed: %v", err))
		return
	}

	if m.metrics != nil {
		m.metrics.TranscriptionSuccesses.Inc()
		m.metrics.TranscriptionDuration.Observe(time.Since(requestStart).Seconds())
	}

	result.Transcribed = true
	result.Transcript = resp.Text

	if resp.Text == "" {
		m.logger.Warn("Transcription returned empty text")
		m.notifier.Info("Transcription", "No speech recognized")
		return
	}

	target, err := m.store.InsertTranscript(current.ActiveNote, result.RecordingPath, resp.Text)
	if err != nil {
		if m.metrics != nil {
			m.metrics.InsertErrors.Inc()
		}
		m.logger.Error("Transcript insertion failed", slog.String("error", err.Error()))
		m.notifier.Error("Insertion failed", err.Error())
		result.Warnings = append(result.Warnings, fmt.Sprintf("insertion failed: %v", err))
		return
	}

	result.InsertTarget = target
	if m.metrics != nil {
		m.metrics.TranscriptsInserted.WithLabelValues(target).Inc()
	}

	switch target {
	case notes.TargetClipboard:
		m.notifier.Info("Transcription", "Transcript copied to clipboard")
	default:
		m.notifier.Info("Transcription", "Transcript inserted into "+current.ActiveNote)
	}
}

// Toggle starts a session when idle and stops it when recording. It reports
// whether a recording is in progress after the call.
func (m *Manager) Toggle(ctx context.Context) (bool, *Result, error) {
	m.mu.Lock()
	recording := m.recording
	m.mu.Unlock()

	if recording {
		result, err := m.Stop(ctx)
		return false, result, err
	}

	return true, nil, m.Start()
}

// Status returns a snapshot of the session state
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		Recording: m.recording,
		TakesDone: m.takesDone,
	}

	if m.recording {
		start := m.startTime
		status.StartTime = &start
		enc := m.encoding
		status.Encoding = &enc

		if m.buffer != nil {
			stats := m.buffer.Stats()
			status.Duration = stats.Duration.Seconds()
			status.Fragments = stats.Fragments
			status.Samples = stats.Samples
		}
	}

	return status
}

// LastResult returns the outcome of the most recently completed take
func (m *Manager) LastResult() *Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastResult
}

// TranscriptionStats exposes the transcription client statistics
func (m *Manager) TranscriptionStats() transcription.ClientStats {
	return m.transcriber.GetStats()
}
