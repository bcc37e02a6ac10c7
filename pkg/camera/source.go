package camera

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/frame"
)

// BackendAuto probes the platform backends in order.
const BackendAuto = "auto"

// ErrNoCamera is returned when no backend could open the device.
var ErrNoCamera = errors.New("unable to open camera")

// ErrReadFrame is returned when the device stops delivering frames.
var ErrReadFrame = errors.New("failed to read frame")

// Backend is a named capture API.
type Backend struct {
	Name string
	API  gocv.VideoCaptureAPI
}

var backends = map[string]gocv.VideoCaptureAPI{
	"dshow":        gocv.VideoCaptureDshow,
	"msmf":         gocv.VideoCaptureMSMF,
	"avfoundation": gocv.VideoCaptureAVFoundation,
	"qt":           gocv.VideoCaptureQT,
	"v4l2":         gocv.VideoCaptureV4L2,
	"gstreamer":    gocv.VideoCaptureGstreamer,
	"any":          gocv.VideoCaptureAny,
}

// BackendNames lists the backends that can be pinned in Config.Backend.
func BackendNames() []string {
	return []string{"dshow", "msmf", "avfoundation", "qt", "v4l2", "gstreamer", "any"}
}

// Backends returns the probe order for an operating system as reported by
// runtime.GOOS. The catch-all backend is always last.
func Backends(goos string) []Backend {
	var names []string
	switch goos {
	case "windows":
		names = []string{"dshow", "msmf"}
	case "darwin":
		names = []string{"avfoundation", "qt"}
	default:
		names = []string{"v4l2", "gstreamer"}
	}
	names = append(names, "any")

	out := make([]Backend, 0, len(names))
	for _, n := range names {
		out = append(out, Backend{Name: n, API: backends[n]})
	}
	return out
}

// Source is an open webcam.
type Source struct {
	cfg     Config
	backend string

	mu sync.Mutex
	vc *gocv.VideoCapture
}

// Open opens the camera named in cfg, probing backends for goos unless one
// is pinned.
func Open(cfg Config, goos string, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %s", strings.Join(errs, "; "))
	}

	candidates := Backends(goos)
	if cfg.Backend != "" && cfg.Backend != BackendAuto {
		candidates = []Backend{{Name: cfg.Backend, API: backends[cfg.Backend]}}
	}

	tried := make([]string, 0, len(candidates))
	for _, b := range candidates {
		vc, err := gocv.OpenVideoCaptureWithAPI(cfg.Device, b.API)
		if err == nil && vc.IsOpened() {
			vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
			vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
			vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
			logger.Info("camera opened", "backend", b.Name, "device", cfg.Device,
				"width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
			return &Source{cfg: cfg, backend: b.Name, vc: vc}, nil
		}
		if vc != nil {
			vc.Close()
		}
		tried = append(tried, b.Name)
	}

	logger.Error("unable to open camera", "tried", strings.Join(tried, ", "))
	return nil, fmt.Errorf("%w %d (tried %s)", ErrNoCamera, cfg.Device, strings.Join(tried, ", "))
}

// Backend returns the name of the capture API in use.
func (s *Source) Backend() string {
	return s.backend
}

// Config returns the configuration the source was opened with.
func (s *Source) Config() Config {
	return s.cfg
}

// Read grabs the next frame into dst as BGR, mirrored when configured.
func (s *Source) Read(dst *gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return ErrNoCamera
	}
	if ok := s.vc.Read(dst); !ok || dst.Empty() {
		return ErrReadFrame
	}
	if s.cfg.Mirror {
		gocv.Flip(*dst, dst, 1)
	}
	return nil
}

// Close releases the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vc == nil {
		return nil
	}
	err := s.vc.Close()
	s.vc = nil
	return err
}

// ToFrame converts a captured BGR Mat into an analysis frame.
func ToFrame(m gocv.Mat) (*frame.Frame, error) {
	img, err := m.ToImage()
	if err != nil {
		return nil, fmt.Errorf("mat to image: %w", err)
	}
	return frame.New(img)
}

// Size returns the capture size requested in the config.
func (s *Source) Size() image.Point {
	return image.Pt(s.cfg.Width, s.cfg.Height)
}
