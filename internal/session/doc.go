// Package session manages the recording session lifecycle: the idle/recording
// flag, fragment accumulation during capture, and the stop pipeline that
// composes the take, persists it, and optionally transcribes it into the
// active note.
package session
