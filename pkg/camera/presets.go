package camera

// Preset names accepted by Manager.Update.
const (
	PresetDefault = "default"
	PresetLow     = "low"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	PresetMirror  = "mirror"
)

type preset struct {
	name  string
	apply func(*Config)
}

// presets are applied over DefaultConfig, in listing order.
var presets = []preset{
	{PresetDefault, func(*Config) {}},
	// slow machines
	{PresetLow, func(c *Config) { c.Width, c.Height, c.Framerate = 320, 240, 15 }},
	{Preset720p, func(c *Config) { c.Width, c.Height = 1280, 720 }},
	// steadier landmarks, slower analysis
	{Preset1080p, func(c *Config) { c.Width, c.Height, c.Framerate = 1920, 1080, 15 }},
	// selfie view
	{PresetMirror, func(c *Config) { c.Mirror = true }},
}

// PresetNames lists the presets.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}

// GetPreset returns the named preset, or nil if there is none.
func GetPreset(name string) *Config {
	for _, p := range presets {
		if p.name == name {
			cfg := DefaultConfig()
			p.apply(&cfg)
			return &cfg
		}
	}
	return nil
}
