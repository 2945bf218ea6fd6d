package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonTing1010/VoiceNotes/internal/config"
	"github.com/LeonTing1010/VoiceNotes/internal/metrics"
	"github.com/LeonTing1010/VoiceNotes/internal/session"
	"github.com/LeonTing1010/VoiceNotes/internal/settings"
)

// HTTPServer provides the control API for the dictation service
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	manager  *session.Manager
	settings *settings.Store
	metrics  *metrics.Metrics

	// Server state
	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates a new control API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, manager *session.Manager, settingsStore *settings.Store, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		manager:   manager,
		settings:  settingsStore,
		metrics:   m,
		startTime: time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Recording control endpoints
	mux.HandleFunc("/api/v1/record/toggle", h.withMetrics("/api/v1/record/toggle", h.handleToggle))
	mux.HandleFunc("/api/v1/record/start", h.withMetrics("/api/v1/record/start", h.handleStart))
	mux.HandleFunc("/api/v1/record/stop", h.withMetrics("/api/v1/record/stop", h.handleStop))

	// Session status endpoint
	mux.HandleFunc("/api/v1/status", h.withMetrics("/api/v1/status", h.handleStatus))

	// Settings endpoints
	mux.HandleFunc("/api/v1/settings", h.withMetrics("/api/v1/settings", h.handleSettings))
	mux.HandleFunc("/api/v1/note/active", h.withMetrics("/api/v1/note/active", h.handleActiveNote))

	// Configuration endpoint
	mux.HandleFunc("/api/v1/config", h.withMetrics("/api/v1/config", h.handleConfig))

	// Health check endpoint
	mux.HandleFunc("/healthz", h.withMetrics("/healthz", h.handleHealth))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting control API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping control API server...")

	return h.server.Shutdown(ctx)
}

// writeJSON writes a JSON response with the given status code
func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes a JSON error response
func (h *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleToggle implements the /api/v1/record/toggle endpoint
func (h *HTTPServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	recording, result, err := h.manager.Toggle(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := map[string]interface{}{
		"recording": recording,
	}
	if result != nil {
		response["result"] = result
	}

	h.writeJSON(w, http.StatusOK, response)
}

// handleStart implements the /api/v1/record/start endpoint
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.manager.Start(); err != nil {
		if err == session.ErrAlreadyRecording {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"recording": true})
}

// handleStop implements the /api/v1/record/stop endpoint
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := h.manager.Stop(r.Context())
	if err != nil {
		if err == session.ErrNotRecording {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recording": false,
		"result":    result,
	})
}

// handleStatus implements the /api/v1/status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := h.manager.Status()

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
	}
	if last := h.manager.LastResult(); last != nil {
		response["last_result"] = last
	}

	h.writeJSON(w, http.StatusOK, response)
}

// settingsView is the sanitized settings representation for GET responses.
// The credential itself never leaves the service.
type settingsView struct {
	APIKeySet            bool   `json:"api_key_set"`
	TranscriptionEnabled bool   `json:"transcription_enabled"`
	ActiveNote           string `json:"active_note"`
}

// settingsUpdate is the PUT request body; nil fields are left unchanged
type settingsUpdate struct {
	APIKey               *string `json:"api_key"`
	TranscriptionEnabled *bool   `json:"transcription_enabled"`
	ActiveNote           *string `json:"active_note"`
}

// handleSettings implements the /api/v1/settings endpoint
func (h *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		current := h.settings.Get()
		h.writeJSON(w, http.StatusOK, settingsView{
			APIKeySet:            current.APIKey != "",
			TranscriptionEnabled: current.TranscriptionEnabled,
			ActiveNote:           current.ActiveNote,
		})

	case http.MethodPut:
		var update settingsUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		updated, err := h.settings.Update(func(s *settings.Settings) {
			if update.APIKey != nil {
				s.APIKey = strings.TrimSpace(*update.APIKey)
			}
			if update.TranscriptionEnabled != nil {
				s.TranscriptionEnabled = *update.TranscriptionEnabled
			}
			if update.ActiveNote != nil {
				s.ActiveNote = *update.ActiveNote
			}
		})
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		h.writeJSON(w, http.StatusOK, settingsView{
			APIKeySet:            updated.APIKey != "",
			TranscriptionEnabled: updated.TranscriptionEnabled,
			ActiveNote:           updated.ActiveNote,
		})

	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleActiveNote implements the /api/v1/note/active endpoint
func (h *HTTPServer) handleActiveNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	updated, err := h.settings.Update(func(s *settings.Settings) {
		s.ActiveNote = body.Path
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"active_note": updated.ActiveNote})
}

// handleConfig implements the /api/v1/config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"capture": map[string]interface{}{
			"device":            h.config.Capture.Device,
			"sample_rate":       h.config.Capture.SampleRate,
			"channels":          h.config.Capture.Channels,
			"bit_depth":         h.config.Capture.BitDepth,
			"frames_per_buffer": h.config.Capture.FramesPerBuffer,
		},
		"recording": map[string]interface{}{
			"max_duration": h.config.Recording.MaxDuration,
		},
		"transcription": map[string]interface{}{
			"endpoint": h.config.Transcription.Endpoint,
			"model":    h.config.Transcription.Model,
			"language": h.config.Transcription.Language,
			"timeout":  h.config.Transcription.Timeout,
			// Note: API credential lives in settings and is intentionally omitted
		},
		"notes": map[string]interface{}{
			"root":           h.config.Notes.Root,
			"recordings_dir": h.config.Notes.RecordingsDir,
			"insertion_mode": h.config.Notes.InsertionMode,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	h.writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleHealth implements the /healthz endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	uptime := time.Since(h.startTime)
	status := h.manager.Status()
	transcriptionStats := h.manager.TranscriptionStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "voicenotes",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"session": map[string]interface{}{
				"recording":  status.Recording,
				"takes_done": status.TakesDone,
			},
			"transcription": map[string]interface{}{
				"total_requests": transcriptionStats.TotalRequests,
				"success_rate":   transcriptionStats.SuccessRate,
			},
		},
	}

	h.writeJSON(w, http.StatusOK, health)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "VoiceNotes Dictation Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                       "API documentation",
			"POST /api/v1/record/toggle":  "Toggle recording on or off",
			"POST /api/v1/record/start":   "Start a recording session",
			"POST /api/v1/record/stop":    "Stop the session and save the take",
			"GET /api/v1/status":          "Session status and last take result",
			"GET /api/v1/settings":        "Current settings (credential redacted)",
			"PUT /api/v1/settings":        "Update settings",
			"PUT /api/v1/note/active":     "Set the note transcripts are inserted into",
			"GET /api/v1/config":          "Service configuration",
			"GET /healthz":                "Service health check",
			"GET /metrics":                "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, http.StatusOK, apiDoc)
}
