// Package device flags handheld devices (phones, remotes) held in view.
package device

import (
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strings"

	"github.com/teslashibe/go-focus/pkg/frame"
	"github.com/teslashibe/go-focus/pkg/smoothing"
)

// KeyPresence is the smoothing cache key for the presence score.
const KeyPresence = "device_presence"

// MaxBoxes caps how many device outlines are kept per frame.
const MaxBoxes = 3

// DefaultTargets are matched when the detector does not publish its classes.
var DefaultTargets = []string{"cell phone", "remote"}

// Detection is one object reported by an ObjectDetector.
type Detection struct {
	Label      string
	Confidence float64
	Box        image.Rectangle
}

// ObjectDetector is the object detection capability.
type ObjectDetector interface {
	Available() bool
	Detect(f *frame.Frame) ([]Detection, error)
}

// ClassLister is implemented by detectors that can enumerate their labels.
type ClassLister interface {
	Classes() []string
}

// NoDetector is the ObjectDetector used when no model is loaded.
type NoDetector struct{}

func (NoDetector) Available() bool { return false }

func (NoDetector) Detect(*frame.Frame) ([]Detection, error) { return nil, nil }

// Config tunes filtering and presence smoothing.
type Config struct {
	MinConfidence float64 `yaml:"min_confidence"`
	Threshold     float64 `yaml:"threshold"`
	ClearBelow    float64 `yaml:"clear_below"`

	Alpha   float64 `yaml:"alpha"`
	MaxStep float64 `yaml:"max_step"`

	// Presence decays with these while detection is disabled.
	IdleAlpha   float64 `yaml:"idle_alpha"`
	IdleMaxStep float64 `yaml:"idle_max_step"`

	// Targets overrides the class names treated as devices.
	Targets []string `yaml:"targets"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.3,
		Threshold:     0.4,
		ClearBelow:    0.2,
		Alpha:         0.3,
		MaxStep:       0.3,
		IdleAlpha:     0.2,
		IdleMaxStep:   0.2,
	}
}

// Polygon is a device outline, clockwise from the top-left corner.
type Polygon [4]image.Point

// Outline returns the four corners of r.
func Outline(r image.Rectangle) Polygon {
	return Polygon{
		r.Min,
		image.Pt(r.Max.X, r.Min.Y),
		r.Max,
		image.Pt(r.Min.X, r.Max.Y),
	}
}

// Detector wraps an ObjectDetector with class filtering, presence smoothing
// and one frame of outline persistence. Not safe for concurrent use.
type Detector struct {
	cfg     Config
	source  ObjectDetector
	cache   *smoothing.Cache
	log     *slog.Logger
	targets map[string]bool

	enabled bool
	logged  bool
	boxes   []Polygon
}

// New creates a detector. A nil or unavailable source leaves detection
// disabled for the session.
func New(cfg Config, source ObjectDetector, cache *smoothing.Cache, logger *slog.Logger) *Detector {
	if source == nil {
		source = NoDetector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{
		cfg:     cfg,
		source:  source,
		cache:   cache,
		log:     logger,
		targets: TargetClasses(source, cfg.Targets),
		enabled: source.Available(),
	}
	if d.enabled {
		d.log.Info("device detection enabled", "targets", d.Targets())
	}
	return d
}

// TargetClasses picks the labels treated as handheld devices: the override
// when given, else every detector class naming a phone or remote, else the
// defaults.
func TargetClasses(source ObjectDetector, override []string) map[string]bool {
	targets := make(map[string]bool)
	add := func(name string) {
		if n := strings.ToLower(strings.TrimSpace(name)); n != "" {
			targets[n] = true
		}
	}

	for _, name := range override {
		add(name)
	}
	if len(targets) > 0 {
		return targets
	}

	if cl, ok := source.(ClassLister); ok {
		for _, name := range cl.Classes() {
			n := strings.ToLower(name)
			if strings.Contains(n, "phone") || strings.Contains(n, "remote") {
				add(n)
			}
		}
	}
	if len(targets) == 0 {
		for _, name := range DefaultTargets {
			add(name)
		}
	}
	return targets
}

// Targets returns the matched labels in sorted order.
func (d *Detector) Targets() []string {
	out := make([]string, 0, len(d.targets))
	for t := range d.targets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Enabled reports whether detection is still running this session.
func (d *Detector) Enabled() bool {
	return d.enabled
}

// Presence returns the smoothed presence score in [0,1].
func (d *Detector) Presence() float64 {
	return d.cache.Value(KeyPresence)
}

// Boxes returns the outlines accepted for the current frame.
func (d *Detector) Boxes() []Polygon {
	return d.boxes
}

// Detect runs one frame and reports whether a device is considered present.
func (d *Detector) Detect(f *frame.Frame) bool {
	if !d.enabled {
		return d.idle("device detection disabled; detector unavailable")
	}

	dets, err := d.detect(f)
	if err != nil {
		d.enabled = false
		d.logged = false
		return d.idle(fmt.Sprintf("device detection disabled for this session: %v", err))
	}

	hits := make([]Detection, 0, len(dets))
	for _, det := range dets {
		if !d.targets[strings.ToLower(strings.TrimSpace(det.Label))] {
			continue
		}
		if det.Confidence < d.cfg.MinConfidence {
			continue
		}
		hits = append(hits, det)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Confidence > hits[j].Confidence
	})

	prevPresence := d.Presence()
	switch {
	case len(hits) > 0:
		n := min(len(hits), MaxBoxes)
		d.boxes = make([]Polygon, n)
		for i := 0; i < n; i++ {
			d.boxes[i] = Outline(hits[i].Box)
		}
	case prevPresence > d.cfg.Threshold && len(d.boxes) > 0:
		// Keep last frame's outlines through a single missed detection.
	default:
		d.boxes = nil
	}

	raw := 0.0
	if len(hits) > 0 {
		raw = hits[0].Confidence
	}
	presence := d.cache.SmoothBounded(KeyPresence, raw, d.cfg.Alpha, d.cfg.MaxStep)

	if len(hits) == 0 && presence < d.cfg.ClearBelow {
		d.boxes = nil
	}
	return presence >= d.cfg.Threshold
}

func (d *Detector) detect(f *frame.Frame) (dets []Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("object detector panic: %v", r)
		}
	}()
	return d.source.Detect(f)
}

func (d *Detector) idle(reason string) bool {
	if !d.logged {
		d.log.Warn(reason)
		d.logged = true
	}
	d.boxes = nil
	d.cache.SmoothBounded(KeyPresence, 0, d.cfg.IdleAlpha, d.cfg.IdleMaxStep)
	return false
}
