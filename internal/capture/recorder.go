package capture

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/LeonTing1010/VoiceNotes/internal/audio"
)

// Config contains microphone capture configuration
type Config struct {
	Device          string // empty selects the default input device
	SampleRate      int
	Channels        int
	BitDepth        int
	FramesPerBuffer int
}

// Device describes an available audio input device
type Device struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// Recorder captures microphone audio via PortAudio
type Recorder struct {
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	stream    *portaudio.Stream
	capturing bool
}

// NewRecorder creates a recorder for the given capture configuration
func NewRecorder(config Config, logger *slog.Logger) *Recorder {
	return &Recorder{
		config: config,
		logger: logger,
	}
}

// Initialize sets up the PortAudio runtime. Must be called once before Start.
func (r *Recorder) Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio runtime
func (r *Recorder) Terminate() error {
	return portaudio.Terminate()
}

// ListDevices returns the available audio input devices
func (r *Recorder) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}

	defaultDevice, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("no default input device: %w", err)
	}

	var inputs []Device
	for i, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		inputs = append(inputs, Device{
			ID:      i,
			Name:    d.Name,
			Default: d.Name == defaultDevice.Name,
		})
	}

	return inputs, nil
}

// selectDevice resolves the configured device name to a PortAudio device
func (r *Recorder) selectDevice() (*portaudio.DeviceInfo, error) {
	if r.config.Device == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}

	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(r.config.Device)) {
			return d, nil
		}
	}

	return nil, fmt.Errorf("input device %q not found", r.config.Device)
}

// Encoding returns the audio format the recorder delivers
func (r *Recorder) Encoding() audio.Encoding {
	return audio.PCM16Mono(r.config.SampleRate)
}

// Start opens the input stream and begins delivering fragments to onFragment.
// The frame slice is only valid for the duration of the callback; receivers
// must copy what they keep.
func (r *Recorder) Start(onFragment func(frame []int16)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capturing {
		return fmt.Errorf("capture already in progress")
	}

	device, err := r.selectDevice()
	if err != nil {
		return err
	}

	if device.DefaultSampleRate != float64(r.config.SampleRate) {
		r.logger.Warn("Device default sample rate differs from configured rate",
			slog.Float64("device_rate", device.DefaultSampleRate),
			slog.Int("configured_rate", r.config.SampleRate),
		)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: r.config.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(r.config.SampleRate),
		FramesPerBuffer: r.config.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		onFragment(in)
	})
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	r.stream = stream
	r.capturing = true

	r.logger.Info("Capture started",
		slog.String("device", device.Name),
		slog.Int("sample_rate", r.config.SampleRate),
		slog.Int("frames_per_buffer", r.config.FramesPerBuffer),
	)

	return nil
}

// Stop closes the input stream; fragment delivery ends before Stop returns
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.capturing {
		return fmt.Errorf("capture not in progress")
	}

	r.capturing = false

	if err := r.stream.Stop(); err != nil {
		r.stream.Close()
		r.stream = nil
		return fmt.Errorf("failed to stop input stream: %w", err)
	}

	if err := r.stream.Close(); err != nil {
		r.stream = nil
		return fmt.Errorf("failed to close input stream: %w", err)
	}

	r.stream = nil
	r.logger.Info("Capture stopped")

	return nil
}
