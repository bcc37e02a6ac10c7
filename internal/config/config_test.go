package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"FOCUS_ADDR", "FOCUS_LOG_LEVEL", "FOCUS_CORS_ORIGINS", "FOCUS_SESSION_TTL",
		"FOCUS_REDIS_URL", "FOCUS_EVENT_PREFIX", "FOCUS_LANDMARK_URL", "FOCUS_WEBCAM",
		"FOCUS_TUNING_FILE", "FOCUS_MODELS_DIR", "FOCUS_CAMERA_DEVICE", "FOCUS_CAMERA_BACKEND",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, DefaultSessionTTL, cfg.SessionTTL)
	assert.Empty(t, cfg.RedisURL)
	assert.True(t, cfg.WebcamEnabled)
	assert.Equal(t, 5*time.Second, cfg.Focus.AwayAlertAfter)
	assert.Equal(t, 640, cfg.Camera.Width)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FOCUS_ADDR", ":9000")
	t.Setenv("FOCUS_SESSION_TTL", "90s")
	t.Setenv("FOCUS_WEBCAM", "false")
	t.Setenv("FOCUS_MODELS_DIR", "/srv/models")
	t.Setenv("FOCUS_LANDMARK_URL", "http://mesh:8765/landmarks")
	t.Setenv("FOCUS_CAMERA_DEVICE", "1")
	t.Setenv("FOCUS_CAMERA_BACKEND", "v4l2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 90*time.Second, cfg.SessionTTL)
	assert.False(t, cfg.WebcamEnabled)
	assert.Equal(t, filepath.Join("/srv/models", "yolov8n.onnx"), cfg.Detection.Object.ModelPath)
	assert.Equal(t, "http://mesh:8765/landmarks", cfg.Landmarks.URL)
	assert.Equal(t, 1, cfg.Camera.Device)
	assert.Equal(t, "v4l2", cfg.Camera.Backend)
}

func TestLoadTuningFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
focus:
  away_alert_after: 8s
  previous_weight: 0.5
  loop:
    window: 20s
  primary:
    device_penalty: 25
camera:
  width: 1280
  height: 720
`), 0o644))
	t.Setenv("FOCUS_TUNING_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8*time.Second, cfg.Focus.AwayAlertAfter)
	assert.Equal(t, 0.5, cfg.Focus.PreviousWeight)
	assert.Equal(t, 20*time.Second, cfg.Focus.Loop.Window)
	assert.Equal(t, 45, cfg.Focus.Loop.MinSamples, "unset keys keep defaults")
	assert.Equal(t, 1280, cfg.Camera.Width)
	assert.Equal(t, 30, cfg.Camera.Framerate)
}

func TestLoadInvalidTuning(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("focus:\n  previous_weight: 2\n"), 0o644))
	t.Setenv("FOCUS_TUNING_FILE", path)

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("FOCUS_TUNING_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	const key = "FOCUS_DOTENV_PROBE"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=:7000\n"), 0o644))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, ":7000", os.Getenv(key))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "none.env")))
}
