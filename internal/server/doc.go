// Package server provides the HTTP control API: recording control,
// session status, settings management, and Prometheus metrics.
package server
