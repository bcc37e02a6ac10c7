// Package config loads service configuration from the environment, an
// optional .env file and an optional YAML tuning file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-focus/pkg/camera"
	"github.com/teslashibe/go-focus/pkg/detection"
	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/landmarks"
)

// Defaults for the service.
const (
	DefaultAddr        = ":8000"
	DefaultLogLevel    = "info"
	DefaultSessionTTL  = 30 * time.Minute
	DefaultModelsDir   = "models"
	DefaultEventPrefix = "focus:alerts:"
)

// Service is the full configuration of cmd/focusd.
type Service struct {
	Addr        string
	LogLevel    string
	CORSOrigins string

	SessionTTL time.Duration

	// RedisURL enables alert events when set, e.g. redis://localhost:6379/0.
	RedisURL    string
	EventPrefix string

	// LandmarkURL selects the remote landmark sidecar over the local mesh.
	LandmarkURL string

	WebcamEnabled bool
	TuningFile    string

	Tuning
}

// Tuning is the YAML-adjustable part of the configuration.
type Tuning struct {
	Focus     focus.Config     `yaml:"focus"`
	Detection detection.Config `yaml:"detection"`
	Landmarks landmarks.Config `yaml:"landmarks"`
	Camera    camera.Config    `yaml:"camera"`
}

// DefaultTuning returns the built-in tuning.
func DefaultTuning() Tuning {
	return Tuning{
		Focus:     focus.DefaultConfig(),
		Detection: detection.DefaultConfig(),
		Landmarks: landmarks.DefaultConfig(),
		Camera:    camera.DefaultConfig(),
	}
}

// LoadDotEnv loads variables from the first .env file found in paths.
// Variables already set in the environment win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		err := godotenv.Load(p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the service configuration from the environment and the
// tuning file named by FOCUS_TUNING_FILE.
func Load() (*Service, error) {
	cfg := &Service{
		Addr:          getEnv("FOCUS_ADDR", DefaultAddr),
		LogLevel:      getEnv("FOCUS_LOG_LEVEL", DefaultLogLevel),
		CORSOrigins:   getEnv("FOCUS_CORS_ORIGINS", "*"),
		SessionTTL:    getEnvAsDuration("FOCUS_SESSION_TTL", DefaultSessionTTL),
		RedisURL:      os.Getenv("FOCUS_REDIS_URL"),
		EventPrefix:   getEnv("FOCUS_EVENT_PREFIX", DefaultEventPrefix),
		LandmarkURL:   os.Getenv("FOCUS_LANDMARK_URL"),
		WebcamEnabled: getEnvAsBool("FOCUS_WEBCAM", true),
		TuningFile:    os.Getenv("FOCUS_TUNING_FILE"),
		Tuning:        DefaultTuning(),
	}

	if cfg.TuningFile != "" {
		if err := cfg.Tuning.LoadFile(cfg.TuningFile); err != nil {
			return nil, err
		}
	}

	if dir := os.Getenv("FOCUS_MODELS_DIR"); dir != "" {
		cfg.Detection = cfg.Detection.InDir(dir)
	}
	if cfg.LandmarkURL != "" {
		cfg.Landmarks.URL = cfg.LandmarkURL
	}
	cfg.Camera.Device = getEnvAsInt("FOCUS_CAMERA_DEVICE", cfg.Camera.Device)
	cfg.Camera.Backend = getEnv("FOCUS_CAMERA_BACKEND", cfg.Camera.Backend)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// LoadFile decodes a YAML tuning file over t. Keys absent from the file keep
// their current values.
func (t *Tuning) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	return nil
}

// Validate checks the service configuration.
func (s *Service) Validate() []string {
	var errs []string
	if s.Addr == "" {
		errs = append(errs, "FOCUS_ADDR must not be empty")
	}
	if s.SessionTTL < 0 {
		errs = append(errs, "FOCUS_SESSION_TTL must not be negative")
	}
	errs = append(errs, s.Focus.Validate()...)
	errs = append(errs, s.Camera.Validate()...)
	return errs
}

// getEnv returns the environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvAsInt returns the environment variable as int or a default value.
func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvAsBool returns the environment variable as bool or a default value.
func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvAsDuration returns the environment variable as a duration or a
// default value.
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
