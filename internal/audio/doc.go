// Package audio handles audio accumulation and format conversion for dictation takes.
// It implements ordered PCM-16 fragment buffering fed by the capture callback
// and encoding of finished takes to WAV for persistence and upload.
package audio
