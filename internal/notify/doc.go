// Package notify sends best-effort desktop notifications for recording
// lifecycle events and external-call failures. Notifier errors are logged
// and dropped, never propagated.
package notify
