// Package logging provides leveled logging for the media engine.
//
// Levels are DEBUG, INFO, WARN and ERROR, selected via the LOG_LEVEL
// environment variable (or DEBUG=true as a shortcut for debug level).
// The default level is INFO.
package logging
