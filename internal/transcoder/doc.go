// Package transcoder decides whether a source asset can be served as-is or
// needs a browser-compatible rendition, and owns the lifecycle of rendition
// jobs. Job mutual exclusion rides on the ephemeral cache's atomic claim
// primitive, so at most one encoder runs per (path, quality, format) key
// across every replica sharing the cache backend.
package transcoder
