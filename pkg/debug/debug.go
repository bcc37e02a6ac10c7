// Package debug provides global debug logging flags
package debug

import "log/slog"

// Enabled controls whether debug logging is active
var Enabled bool

// Detections controls whether per-frame detector logs are shown (faces,
// landmarks, devices). Use --debug-detections to enable these very verbose logs
var Detections bool

// Log writes a debug record only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		slog.Debug(msg, args...)
	}
}

// DetectLog writes a debug record only if detection debug mode is enabled
func DetectLog(msg string, args ...any) {
	if Detections {
		slog.Debug(msg, args...)
	}
}

// Level returns the log level implied by the flags.
func Level(fallback string) string {
	if Enabled || Detections {
		return "debug"
	}
	return fallback
}
