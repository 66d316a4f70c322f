// Package streaming serves media bytes to HTTP clients: a byte-range
// responder implementing the single-range subset media players use, built
// on a timeout-protected chunked writer that detects stalled and
// disconnected clients.
package streaming
