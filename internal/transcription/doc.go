// Package transcription implements the HTTP client for the remote transcription API.
// It assembles multipart/form-data requests carrying the composed audio file and
// decodes the JSON transcript response. Failures are reported to the caller
// without retries.
package transcription
