// Package metrics defines the Prometheus instrumentation for the VoiceNotes
// dictation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the dictation service
type Metrics struct {
	// Recording session metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingDuration   prometheus.Histogram
	FragmentsReceived   prometheus.Counter
	FragmentsDropped    prometheus.Counter
	CaptureErrors       prometheus.Counter

	// Persistence metrics
	RecordingsSaved prometheus.Counter
	SaveErrors      prometheus.Counter

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Insertion metrics
	TranscriptsInserted *prometheus.CounterVec
	InsertErrors        prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RecordingsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicenotes_recordings_started_total",
			Help: "Total number of recording sessions started",
		}),
		RecordingsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicenotes_recordings_completed_total",
			Help: "Total number of recording sessions completed",
		}),
		RecordingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicenotes_recording_duration_seconds",
			Help:    "Duration of completed recordings in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		FragmentsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicenotes_fragments_received_total",
			Help: "Total number of capture fragments received",
		}),
		FragmentsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicenotes_fragments_dropped_total",
			Help: "Total number of capture fragments dropped (idle session or duration cap)",
		}),
		CaptureErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicenotes_capture_errors_total",
			Help: "Total number of capture device errors",
		}),

		RecordingsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicenotes_recordings_saved_total",
			Help: "Total number of recording files saved",
		}),
		SaveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicenotes_save_errors_total",
			Help: "Total number of recording file save errors",
		}),

		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicenotes_transcription_requests_total",
			Help: "Total number of transcription API requests",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicenotes_transcription_successes_total",
			Help: "Total number of successful transcription API requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicenotes_transcription_failures_total",
			Help: "Total number of failed transcription API requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicenotes_transcription_duration_seconds",
			Help:    "Duration of transcription API requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),

		TranscriptsInserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicenotes_transcripts_inserted_total",
			Help: "Total number of transcripts inserted, by target",
		}, []string{"target"}),
		InsertErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicenotes_insert_errors_total",
			Help: "Total number of transcript insertion errors",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicenotes_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicenotes_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicenotes_http_errors_total",
			Help: "Total number of HTTP API errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordHTTPRequest records one HTTP API request
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, duration float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordHTTPError records one HTTP API error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
