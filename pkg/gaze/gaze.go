// Package gaze measures where the pupils sit inside each eye opening.
package gaze

import (
	"image"
	"math"

	"github.com/teslashibe/go-focus/pkg/faces"
	"github.com/teslashibe/go-focus/pkg/smoothing"
)

// Smoothing cache keys owned by the estimator.
const (
	KeyLeftH  = "gaze_left_h"
	KeyRightH = "gaze_right_h"
	KeyLeftV  = "gaze_left_v"
	KeyRightV = "gaze_right_v"
)

// Keys lists every cache key the estimator writes.
var Keys = []string{KeyLeftH, KeyRightH, KeyLeftV, KeyRightV}

// Bounds is an inclusive ratio interval.
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether v lies within the bounds.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Config tunes ratio smoothing and the centred-gaze bounds.
type Config struct {
	Alpha   float64 `yaml:"alpha"`
	MaxStep float64 `yaml:"max_step"`

	HorizontalSoft Bounds `yaml:"horizontal_soft"`
	HorizontalHard Bounds `yaml:"horizontal_hard"`
	VerticalSoft   Bounds `yaml:"vertical_soft"`
	VerticalHard   Bounds `yaml:"vertical_hard"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:          0.35,
		MaxStep:        0.08,
		HorizontalSoft: Bounds{0.34, 0.66},
		HorizontalHard: Bounds{0.27, 0.73},
		VerticalSoft:   Bounds{0.37, 0.63},
		VerticalHard:   Bounds{0.30, 0.70},
	}
}

// Ratios are smoothed pupil offsets. Horizontal ratios run from the inner
// corner (0) to the outer corner (1); vertical from top lid (0) to bottom
// lid (1).
type Ratios struct {
	LeftH, RightH float64
	LeftV, RightV float64
}

// Drift classifies one axis of the gaze.
type Drift int

const (
	Centered Drift = iota
	// Drifting is outside the soft bounds only.
	Drifting
	// Off is outside the hard bounds.
	Off
)

// Estimate is the gaze reading for one frame.
type Estimate struct {
	Ratios     Ratios
	Horizontal Drift
	Vertical   Drift
	// Pupils are the left and right pupil centres in pixels, clamped to the frame.
	Pupils [2]image.Point
}

// Centered reports whether both axes are inside the soft bounds.
func (e Estimate) Centered() bool {
	return e.Horizontal == Centered && e.Vertical == Centered
}

// Estimator derives gaze ratios from pixel-space landmarks. It shares the
// engine's metric cache and is not safe for concurrent use.
type Estimator struct {
	cfg   Config
	cache *smoothing.Cache
}

// NewEstimator creates an estimator writing to cache.
func NewEstimator(cfg Config, cache *smoothing.Cache) *Estimator {
	return &Estimator{cfg: cfg, cache: cache}
}

// Estimate reads both eyes of a face mesh. Meshes without iris points use
// the centroid of the eye contour points as the pupil.
func (e *Estimator) Estimate(points []faces.Point3, width, height int) Estimate {
	left := eye{
		inner:  points[faces.LeftEyeInner],
		outer:  points[faces.LeftEyeOuter],
		top:    points[faces.LeftEyeTop],
		bottom: points[faces.LeftEyeBottom],
	}
	right := eye{
		inner:  points[faces.RightEyeInner],
		outer:  points[faces.RightEyeOuter],
		top:    points[faces.RightEyeTop],
		bottom: points[faces.RightEyeBottom],
	}
	if len(points) >= faces.RefinedMeshPoints {
		left.pupil = points[faces.LeftPupil]
		right.pupil = points[faces.RightPupil]
	} else {
		left.pupil = left.centroid()
		right.pupil = right.centroid()
	}

	r := Ratios{
		LeftH:  e.cache.SmoothBounded(KeyLeftH, HorizontalRatio(left.pupil, left.inner, left.outer), e.cfg.Alpha, e.cfg.MaxStep),
		RightH: e.cache.SmoothBounded(KeyRightH, HorizontalRatio(right.pupil, right.inner, right.outer), e.cfg.Alpha, e.cfg.MaxStep),
		LeftV:  e.cache.SmoothBounded(KeyLeftV, VerticalRatio(left.pupil, left.top, left.bottom), e.cfg.Alpha, e.cfg.MaxStep),
		RightV: e.cache.SmoothBounded(KeyRightV, VerticalRatio(right.pupil, right.top, right.bottom), e.cfg.Alpha, e.cfg.MaxStep),
	}

	return Estimate{
		Ratios:     r,
		Horizontal: classify(r.LeftH, r.RightH, e.cfg.HorizontalSoft, e.cfg.HorizontalHard),
		Vertical:   classify(r.LeftV, r.RightV, e.cfg.VerticalSoft, e.cfg.VerticalHard),
		Pupils: [2]image.Point{
			clampPoint(left.pupil, width, height),
			clampPoint(right.pupil, width, height),
		},
	}
}

// Reset forgets the smoothed ratios.
func (e *Estimator) Reset() {
	e.cache.Reset(Keys...)
}

// HorizontalRatio is (pupil.X - inner.X) / (outer.X - inner.X), or 0.5 when
// the eye has no measurable width.
func HorizontalRatio(pupil, inner, outer faces.Point3) float64 {
	return ratio(pupil.X, inner.X, outer.X)
}

// VerticalRatio is (pupil.Y - top.Y) / (bottom.Y - top.Y), or 0.5 when the
// eye has no measurable height.
func VerticalRatio(pupil, top, bottom faces.Point3) float64 {
	return ratio(pupil.Y, top.Y, bottom.Y)
}

func ratio(v, from, to float64) float64 {
	denom := to - from
	if math.Abs(denom) < 1e-3 {
		return 0.5
	}
	return (v - from) / denom
}

func classify(a, b float64, soft, hard Bounds) Drift {
	switch {
	case !hard.Contains(a) || !hard.Contains(b):
		return Off
	case !soft.Contains(a) || !soft.Contains(b):
		return Drifting
	default:
		return Centered
	}
}

type eye struct {
	inner, outer, top, bottom, pupil faces.Point3
}

func (e eye) centroid() faces.Point3 {
	return faces.Point3{
		X: (e.inner.X + e.outer.X + e.top.X + e.bottom.X) / 4,
		Y: (e.inner.Y + e.outer.Y + e.top.Y + e.bottom.Y) / 4,
	}
}

func clampPoint(p faces.Point3, width, height int) image.Point {
	x := max(0, min(int(math.Round(p.X)), width-1))
	y := max(0, min(int(math.Round(p.Y)), height-1))
	return image.Pt(x, y)
}
