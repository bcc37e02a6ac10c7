// Package camera opens the local webcam that feeds the annotated stream.
package camera

import "slices"

// Config holds the webcam capture parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// Device is the OS camera index.
	Device int `json:"device" yaml:"device"`

	// === Resolution ===
	Width     int `json:"width" yaml:"width"`
	Height    int `json:"height" yaml:"height"`
	Framerate int `json:"framerate" yaml:"framerate"`

	// Quality is the stream JPEG quality 1-100.
	Quality int `json:"quality" yaml:"quality"`

	// Backend pins a capture API by name. Empty or "auto" probes the
	// platform's backends in order of preference.
	Backend string `json:"backend" yaml:"backend"`

	// Mirror flips frames horizontally before analysis.
	Mirror bool `json:"mirror" yaml:"mirror"`
}

// Capture limits
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the 640x480@30 webcam configuration.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   85,
		Backend:   BackendAuto,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must be 0 or greater")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.Backend != "" && c.Backend != BackendAuto && !slices.Contains(BackendNames(), c.Backend) {
		errors = append(errors, "backend must be auto or a known capture API")
	}

	return errors
}

// Capabilities returns the capture limits and known backends.
func Capabilities(goos string) map[string]any {
	probe := make([]string, 0, 4)
	for _, b := range Backends(goos) {
		probe = append(probe, b.Name)
	}
	return map[string]any{
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"backends":      BackendNames(),
		"probe_order":   probe,
		"presets":       PresetNames(),
	}
}
