package camera

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Manager holds the configuration the next stream opens the camera with.
type Manager struct {
	mu  sync.RWMutex
	cfg Config
	rev int
}

// NewManager creates a camera manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Config returns the current configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Revision counts accepted changes.
func (m *Manager) Revision() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rev
}

// Set replaces the configuration if it validates.
func (m *Manager) Set(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid camera config: %s", strings.Join(errs, "; "))
	}
	m.mu.Lock()
	m.cfg = cfg
	m.rev++
	m.mu.Unlock()
	return nil
}

// Update applies a partial change decoded from JSON. A "preset" key replaces
// the base configuration before the other keys apply. Unknown keys and
// mistyped values reject the whole update.
func (m *Manager) Update(params map[string]any) (Config, error) {
	cfg := m.Config()

	if v, ok := params["preset"]; ok {
		name, _ := v.(string)
		preset := GetPreset(name)
		if preset == nil {
			return cfg, fmt.Errorf("unknown preset: %v", v)
		}
		cfg = *preset
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "preset" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		set, ok := setters[k]
		if !ok {
			return m.Config(), fmt.Errorf("unknown camera setting %q", k)
		}
		if !set(&cfg, params[k]) {
			return m.Config(), fmt.Errorf("camera setting %q: unexpected value %v", k, params[k])
		}
	}

	if err := m.Set(cfg); err != nil {
		return m.Config(), err
	}
	return cfg, nil
}

var setters = map[string]func(*Config, any) bool{
	"device":    intSetter(func(c *Config) *int { return &c.Device }),
	"width":     intSetter(func(c *Config) *int { return &c.Width }),
	"height":    intSetter(func(c *Config) *int { return &c.Height }),
	"framerate": intSetter(func(c *Config) *int { return &c.Framerate }),
	"quality":   intSetter(func(c *Config) *int { return &c.Quality }),
	"backend": func(c *Config, v any) bool {
		s, ok := v.(string)
		if ok {
			c.Backend = s
		}
		return ok
	},
	"mirror": func(c *Config, v any) bool {
		b, ok := v.(bool)
		if ok {
			c.Mirror = b
		}
		return ok
	},
}

func intSetter(field func(*Config) *int) func(*Config, any) bool {
	return func(c *Config, v any) bool {
		n, ok := toInt(v)
		if ok {
			*field(c) = n
		}
		return ok
	}
}

// toInt accepts JSON numbers that hold whole values.
func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int(val), true
	}
	return 0, false
}
