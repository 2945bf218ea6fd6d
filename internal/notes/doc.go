// Package notes persists finished takes and inserts transcripts into the
// user's notes. Recordings are written under a recordings directory inside the
// notes root; transcripts are appended to the active note at the cursor marker,
// with the system clipboard as fallback when no note is active.
package notes
