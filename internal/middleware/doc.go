// Package middleware provides HTTP middleware for the media engine.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics with path normalization
//   - Response compression for manifests and JSON
package middleware
