package transcription

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:        "valid config",
			config:      Config{Endpoint: "http://localhost/transcribe", Model: "whisper-1"},
			expectError: false,
		},
		{
			name:        "missing endpoint",
			config:      Config{Model: "whisper-1"},
			expectError: true,
		},
		{
			name:        "missing model",
			config:      Config{Endpoint: "http://localhost/transcribe"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.config)
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestTranscribe(t *testing.T) {
	var gotAuth, gotModel, gotFormat, gotLanguage, gotFilename string
	var gotAudio []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		gotAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "Error parsing form", http.StatusBadRequest)
			return
		}

		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		gotLanguage = r.FormValue("language")

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Error getting audio file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		gotFilename = header.Filename
		gotAudio, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Response{Text: "hello world", Language: "en"})
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoint: server.URL,
		Model:    "whisper-1",
		Language: "en",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	audio := []byte("RIFF-fake-wav-data")
	resp, err := client.Transcribe(context.Background(), "sk-test", &Request{
		Audio:    audio,
		Filename: "recording-20240501.wav",
		MIMEType: "audio/wav",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if resp.Text != "hello world" {
		t.Errorf("Expected transcript 'hello world', got %q", resp.Text)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}

	if gotModel != "whisper-1" {
		t.Errorf("Expected model whisper-1, got %q", gotModel)
	}

	if gotFormat != "json" {
		t.Errorf("Expected response_format json, got %q", gotFormat)
	}

	if gotLanguage != "en" {
		t.Errorf("Expected language en, got %q", gotLanguage)
	}

	if gotFilename != "recording-20240501.wav" {
		t.Errorf("Expected upload filename recording-20240501.wav, got %q", gotFilename)
	}

	if string(gotAudio) != string(audio) {
		t.Errorf("Uploaded audio does not match: got %d bytes", len(gotAudio))
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestTranscribeEmptyAPIKey(t *testing.T) {
	client, err := NewClient(Config{Endpoint: "http://localhost/transcribe", Model: "whisper-1"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Transcribe(context.Background(), "", &Request{Audio: []byte("abc")})
	if err == nil {
		t.Error("Expected error for empty API key")
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	client, err := NewClient(Config{Endpoint: "http://localhost/transcribe", Model: "whisper-1"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Transcribe(context.Background(), "sk-test", &Request{})
	if err == nil {
		t.Error("Expected error for empty audio")
	}
}

func TestTranscribeServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error": "model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, Model: "whisper-1"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Transcribe(context.Background(), "sk-test", &Request{Audio: []byte("abc")})
	if err == nil {
		t.Fatal("Expected error for 503 response")
	}

	if !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected status code in error, got: %v", err)
	}

	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("Expected server message in error, got: %v", err)
	}

	// Failure surfaces once: no retries
	if calls != 1 {
		t.Errorf("Expected exactly 1 request, got %d", calls)
	}

	stats := client.GetStats()
	if stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
	}
}

func TestTranscribeMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, "this is not json")
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, Model: "whisper-1"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Transcribe(context.Background(), "sk-test", &Request{Audio: []byte("abc")})
	if err == nil {
		t.Error("Expected error for malformed JSON response")
	}
}

func TestTranscribeContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, Model: "whisper-1"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Transcribe(ctx, "sk-test", &Request{Audio: []byte("abc")})
	if err == nil {
		t.Error("Expected error for cancelled context")
	}
}
