package camera

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/debug"
	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/frame"
	"github.com/teslashibe/go-focus/pkg/overlay"
)

// ErrBusy is returned when another stream already holds the camera.
var ErrBusy = errors.New("camera is busy")

// AnalyzeFunc runs a captured frame through a session and returns the result
// together with what to draw for it.
type AnalyzeFunc func(f *frame.Frame) (focus.Result, focus.Overlay)

// Streamer captures frames, analyzes them and hands out annotated JPEGs.
// One stream owns the device at a time.
type Streamer struct {
	cameras *Manager
	analyze AnalyzeFunc
	draw    *overlay.Renderer
	log     *slog.Logger

	mu sync.Mutex
}

// NewStreamer creates a streamer opening the camera currently configured in
// cameras.
func NewStreamer(cameras *Manager, analyze AnalyzeFunc, draw *overlay.Renderer, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{cameras: cameras, analyze: analyze, draw: draw, log: logger}
}

// Stream opens the camera and calls fn with every annotated frame until ctx
// is cancelled, fn fails or the device stops delivering frames.
func (s *Streamer) Stream(ctx context.Context, fn func(jpeg []byte) error) error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	defer s.mu.Unlock()

	src, err := Open(s.cameras.Config(), runtime.GOOS, s.log)
	if err != nil {
		return err
	}
	defer src.Close()

	img := gocv.NewMat()
	defer img.Close()

	frames := 0
	defer func() { s.log.Info("webcam stream closed", "frames", frames) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := src.Read(&img); err != nil {
			return err
		}
		f, err := ToFrame(img)
		if err != nil {
			return err
		}
		res, ov := s.analyze(f)
		debug.Log("webcam frame", "score", res.FocusScore, "state", res.State, "alerts", res.Alerts)
		s.draw.Draw(&img, res, ov)

		buf, err := overlay.Encode(img, src.Config().Quality)
		if err != nil {
			return err
		}
		if err := fn(buf); err != nil {
			return err
		}
		frames++
	}
}
