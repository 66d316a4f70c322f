// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - MEDIA_DIR: Path to the media library root (default: /media)
//   - CACHE_DIR: Path to the cache directory for renditions, HLS output and
//     thumbnails (default: /cache)
//   - DATABASE_DIR: Path to the metadata database directory (default: /database)
//   - PORT: HTTP server port (default: 8080)
//   - REDIS_ADDR: Redis address for fleet-wide job coordination; unset means
//     the in-process cache
//   - REDIS_PASSWORD: Redis password, if any
//   - OPEN_ACCESS: Disable all access checks (default: false, logged loudly)
//   - SEGMENT_SECONDS: HLS segment duration (default: 6)
//   - CLAIM_TTL_SECONDS: Transcode claim lifetime (default: 600)
//   - MAX_CHUNK_BYTES: Byte-range response clamp (default: 1 MiB)
//   - TRANSCODE_WORKERS: Encode pool size override (default: derived from CPUs)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_SEGMENTS: Log HLS segment requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - METRICS_ENABLED: Expose the /metrics endpoint (default: true)
//
// # Directory Setup
//
// The package validates required directories at startup:
//   - Database directory: required, must be writable
//   - Cache directory: required, must be writable
//   - Media directory: checked but only warned about (usually a mount)
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
