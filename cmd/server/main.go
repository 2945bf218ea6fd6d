package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeonTing1010/VoiceNotes/internal/capture"
	"github.com/LeonTing1010/VoiceNotes/internal/config"
	"github.com/LeonTing1010/VoiceNotes/internal/metrics"
	"github.com/LeonTing1010/VoiceNotes/internal/notes"
	"github.com/LeonTing1010/VoiceNotes/internal/notify"
	"github.com/LeonTing1010/VoiceNotes/internal/server"
	"github.com/LeonTing1010/VoiceNotes/internal/session"
	"github.com/LeonTing1010/VoiceNotes/internal/settings"
	"github.com/LeonTing1010/VoiceNotes/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voicenotes"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listDevices := flag.Bool("list-devices", false, "List audio input devices and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Int("frames_per_buffer", cfg.Capture.FramesPerBuffer),
		slog.Float64("max_duration", cfg.Recording.MaxDuration),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("notes_root", cfg.Notes.Root),
		slog.String("insertion_mode", cfg.Notes.InsertionMode),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the capture backend
	recorder := capture.NewRecorder(capture.Config{
		Device:          cfg.Capture.Device,
		SampleRate:      cfg.Capture.SampleRate,
		Channels:        cfg.Capture.Channels,
		BitDepth:        cfg.Capture.BitDepth,
		FramesPerBuffer: cfg.Capture.FramesPerBuffer,
	}, logger)

	if err := recorder.Initialize(); err != nil {
		logger.Error("Failed to initialize audio backend", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := recorder.Terminate(); err != nil {
			logger.Error("Error terminating audio backend", slog.String("error", err.Error()))
		}
	}()

	if *listDevices {
		devices, err := recorder.ListDevices()
		if err != nil {
			logger.Error("Failed to list devices", slog.String("error", err.Error()))
			os.Exit(1)
		}
		for _, d := range devices {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Printf("%s [%d] %s\n", marker, d.ID, d.Name)
		}
		return
	}

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Load the mutable settings and watch for external edits
	settingsStore, err := settings.NewStore(cfg.Settings.Path, logger)
	if err != nil {
		logger.Error("Failed to load settings", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := settingsStore.Watch(); err != nil {
		logger.Warn("Settings file watcher unavailable", slog.String("error", err.Error()))
	}
	defer settingsStore.Close()

	// Initialize the notes store
	noteStore, err := notes.NewStore(notes.Config{
		Root:          cfg.Notes.Root,
		RecordingsDir: cfg.Notes.RecordingsDir,
		InsertionMode: cfg.Notes.InsertionMode,
	}, logger)
	if err != nil {
		logger.Error("Failed to open notes store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the transcription client
	transcriber, err := transcription.NewClient(transcription.Config{
		Endpoint: cfg.Transcription.Endpoint,
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		Prompt:   cfg.Transcription.Prompt,
		Timeout:  cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	notifier := notify.New(cfg.Notifications.Enabled, logger)

	// Initialize the session manager
	manager, err := session.NewManager(logger, session.ManagerConfig{
		Source:      recorder,
		Store:       noteStore,
		Transcriber: transcriber,
		Settings:    settingsStore,
		Notifier:    notifier,
		Metrics:     appMetrics,
		MaxDuration: cfg.Recording.GetMaxDuration(),
	})
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session manager initialized",
		slog.Duration("max_duration", cfg.Recording.GetMaxDuration()),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
	)

	// Initialize HTTP control API (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, manager, settingsStore, appMetrics)
		logger.Info("Control API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start control API server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping control API server", slog.String("error", err.Error()))
		}
	}

	// Finish an in-flight recording so the take is not lost
	if manager.Status().Recording {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if result, err := manager.Stop(stopCtx); err != nil {
			logger.Error("Error finishing in-flight recording", slog.String("error", err.Error()))
		} else {
			logger.Info("In-flight recording saved", slog.String("path", result.RecordingPath))
		}
		stopCancel()
	}

	// Get final statistics
	stats := manager.TranscriptionStats()
	status := manager.Status()
	logger.Info("Final service statistics",
		slog.Uint64("takes_done", status.TakesDone),
		slog.Uint64("transcription_requests", stats.TotalRequests),
		slog.Uint64("transcription_failures", stats.FailedRequests),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
