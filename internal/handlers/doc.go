// Package handlers implements the HTTP surface of the media engine:
// range-aware streaming, rendition and HLS job polling, thumbnails, share
// tokens, and the health and version endpoints.
//
// Handlers trust the reverse proxy to resolve authentication into the
// X-Principal-* headers; every media route then runs the access resolver
// before touching the filesystem.
package handlers
