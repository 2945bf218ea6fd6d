// Package config provides configuration loading and validation for the VoiceNotes
// dictation service. It handles YAML-based configuration with struct validation
// covering the control API, capture device, transcription API, and notes store.
package config
