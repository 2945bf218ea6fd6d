// Package settings manages the mutable service settings: the transcription API
// credential, the transcription toggle, and the active note. Settings are loaded
// once at startup, persisted on every change, and reloaded when the file is
// edited externally.
package settings
