package audio

import (
	"fmt"
	"sync"
	"time"
)

// Encoding identifies the negotiated audio format of a recording session.
// It is reported by the capture device when the session starts and travels
// with the take through composition, persistence, and upload.
type Encoding struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
	MIMEType   string `json:"mime_type"`
}

// PCM16Mono returns the encoding for mono 16-bit PCM at the given sample rate
func PCM16Mono(sampleRate int) Encoding {
	return Encoding{
		SampleRate: sampleRate,
		Channels:   1,
		BitDepth:   16,
		MIMEType:   "audio/wav",
	}
}

// Validate checks that the encoding is one the WAV composer can handle
func (e Encoding) Validate() error {
	if e.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", e.SampleRate)
	}

	if e.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", e.Channels)
	}

	if e.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", e.BitDepth)
	}

	if e.MIMEType == "" {
		return fmt.Errorf("mime type cannot be empty")
	}

	return nil
}

// Extension returns the file extension for the encoding's MIME type
func (e Encoding) Extension() string {
	switch e.MIMEType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	default:
		return "bin"
	}
}

// String returns a human-readable description of the encoding
func (e Encoding) String() string {
	return fmt.Sprintf("%s %dHz %dch %dbit", e.MIMEType, e.SampleRate, e.Channels, e.BitDepth)
}

// FragmentBuffer accumulates PCM-16 fragments delivered by the capture
// callback in arrival order. Fragments are copied on append so the capture
// layer may reuse its frame slice.
type FragmentBuffer struct {
	encoding Encoding

	samples   []int16
	fragments int

	createdAt  time.Time
	lastUpdate time.Time

	mu sync.RWMutex
}

// FragmentStats represents buffer statistics for monitoring
type FragmentStats struct {
	Fragments   int           `json:"fragments"`
	Samples     int           `json:"samples"`
	Duration    time.Duration `json:"duration"`
	SampleRate  int           `json:"sample_rate"`
	LastUpdated time.Time     `json:"last_updated"`
}

// NewFragmentBuffer creates an empty fragment buffer for the given encoding
func NewFragmentBuffer(encoding Encoding) (*FragmentBuffer, error) {
	if err := encoding.Validate(); err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	now := time.Now()
	return &FragmentBuffer{
		encoding: encoding,
		// Pre-allocate for 2 seconds of audio
		samples:    make([]int16, 0, encoding.SampleRate*2),
		createdAt:  now,
		lastUpdate: now,
	}, nil
}

// Encoding returns the encoding the buffer was created with
func (b *FragmentBuffer) Encoding() Encoding {
	return b.encoding
}

// Append adds one capture fragment to the end of the accumulated sequence
func (b *FragmentBuffer) Append(frame []int16) error {
	if len(frame) == 0 {
		return fmt.Errorf("cannot append empty fragment")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, frame...)
	b.fragments++
	b.lastUpdate = time.Now()

	return nil
}

// Fragments returns the number of fragments appended so far
func (b *FragmentBuffer) Fragments() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fragments
}

// SampleCount returns the number of accumulated samples
func (b *FragmentBuffer) SampleCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Duration returns the audio duration represented by the accumulated samples
func (b *FragmentBuffer) Duration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return time.Duration(len(b.samples)) * time.Second / time.Duration(b.encoding.SampleRate)
}

// Stats returns a snapshot of buffer statistics
func (b *FragmentBuffer) Stats() FragmentStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return FragmentStats{
		Fragments:   b.fragments,
		Samples:     len(b.samples),
		Duration:    time.Duration(len(b.samples)) * time.Second / time.Duration(b.encoding.SampleRate),
		SampleRate:  b.encoding.SampleRate,
		LastUpdated: b.lastUpdate,
	}
}

// Compose encodes the accumulated samples into a single WAV blob.
// The buffer contents are left untouched; call Reset to clear them.
func (b *FragmentBuffer) Compose() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.samples) == 0 {
		return nil, fmt.Errorf("no audio fragments recorded")
	}

	data, err := EncodeWAV(b.samples, b.encoding.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to compose WAV: %w", err)
	}

	return data, nil
}

// Reset clears the accumulated fragments so the buffer can be reused
func (b *FragmentBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = b.samples[:0]
	b.fragments = 0
	b.lastUpdate = time.Now()
}
