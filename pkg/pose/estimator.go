// Package pose estimates head pitch, yaw and roll from dense face landmarks.
package pose

import (
	"image"
	"math"

	"github.com/teslashibe/go-focus/pkg/faces"
	"github.com/teslashibe/go-focus/pkg/smoothing"
)

// Smoothing cache keys owned by the estimator.
const (
	KeyPitch = "pose_pitch"
	KeyYaw   = "pose_yaw"
	KeyRoll  = "pose_roll"
)

// Keys lists every cache key the estimator writes.
var Keys = []string{KeyPitch, KeyYaw, KeyRoll}

// Indices are the landmarks used for the pose solve: nose tip, chin, outer
// eye corners and mouth corners.
var Indices = [6]int{
	faces.NoseTip,
	faces.Chin,
	faces.LeftEyeOuter,
	faces.RightEyeOuter,
	faces.MouthLeft,
	faces.MouthRight,
}

// Config tunes angle smoothing.
type Config struct {
	Alpha        float64 `yaml:"alpha"`
	MaxStep      float64 `yaml:"max_step"`
	FailureDecay float64 `yaml:"failure_decay"`
	AxisLength   float64 `yaml:"axis_length"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:        0.2,
		MaxStep:      5,
		FailureDecay: 0.9,
		AxisLength:   60,
	}
}

// Estimate is the result for one frame.
type Estimate struct {
	// Angles are smoothed, or decayed when the solve failed.
	Angles Angles
	// Raw are the unsmoothed solved angles. Zero when Solved is false.
	Raw    Angles
	Solved bool

	// Origin is the nose tip in pixels, clamped to the frame.
	Origin image.Point
	// Axes are the projected ends of the X, Y and Z axes drawn from the
	// nose tip. Only set when Solved.
	Axes   [3]image.Point
}

// Estimator turns landmark sets into smoothed head angles. It shares the
// engine's metric cache and is not safe for concurrent use.
type Estimator struct {
	cfg   Config
	cache *smoothing.Cache
}

// NewEstimator creates an estimator writing to cache.
func NewEstimator(cfg Config, cache *smoothing.Cache) *Estimator {
	return &Estimator{cfg: cfg, cache: cache}
}

// Estimate solves the pose for pixel-space landmarks in a width×height frame.
func (e *Estimator) Estimate(points []faces.Point3, width, height int) Estimate {
	var est Estimate

	object := make([]Vec3, len(Indices))
	img := make([][2]float64, len(Indices))
	for i, idx := range Indices {
		if idx >= len(points) {
			return e.decay(est)
		}
		p := points[idx]
		object[i] = Vec3{p.X, p.Y, p.Z}
		img[i] = [2]float64{p.X, p.Y}
	}

	cam := NewCamera(width, height)
	rvec, tvec, ok := SolvePnP(object, img, cam)
	if !ok {
		return e.decay(est)
	}

	est.Solved = true
	est.Raw = EulerAngles(Rodrigues(rvec))
	est.Origin = clampPoint(img[0][0], img[0][1], width, height)

	nose := object[0]
	for i := 0; i < 3; i++ {
		end := nose
		end[i] += e.cfg.AxisLength
		u, v, ok := cam.Project(rvec, tvec, end)
		if ok {
			est.Axes[i] = image.Pt(int(u), int(v))
		} else {
			est.Axes[i] = est.Origin
		}
	}

	est.Angles = Angles{
		Pitch: e.cache.SmoothBounded(KeyPitch, est.Raw.Pitch, e.cfg.Alpha, e.cfg.MaxStep),
		Yaw:   e.cache.SmoothBounded(KeyYaw, est.Raw.Yaw, e.cfg.Alpha, e.cfg.MaxStep),
		Roll:  e.cache.SmoothBounded(KeyRoll, est.Raw.Roll, e.cfg.Alpha, e.cfg.MaxStep),
	}
	return est
}

// decay pulls the cached angles toward zero and stores them back.
func (e *Estimator) decay(est Estimate) Estimate {
	pitch := e.cache.Value(KeyPitch) * e.cfg.FailureDecay
	yaw := e.cache.Value(KeyYaw) * e.cfg.FailureDecay
	roll := e.cache.Value(KeyRoll) * e.cfg.FailureDecay
	e.cache.Set(KeyPitch, pitch)
	e.cache.Set(KeyYaw, yaw)
	e.cache.Set(KeyRoll, roll)
	est.Angles = Angles{Pitch: pitch, Yaw: yaw, Roll: roll}
	return est
}

// Reset forgets the smoothed angles.
func (e *Estimator) Reset() {
	e.cache.Reset(Keys...)
}

func clampPoint(x, y float64, width, height int) image.Point {
	px := int(math.Round(x))
	py := int(math.Round(y))
	px = max(0, min(px, width-1))
	py = max(0, min(py, height-1))
	return image.Pt(px, py)
}
