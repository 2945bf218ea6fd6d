// Package capture records microphone audio through PortAudio. It opens the
// configured input device as a mono PCM-16 stream and delivers fixed-size
// fragments to the session through a callback.
package capture
