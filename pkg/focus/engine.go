// Package focus fuses face, gaze, head pose, device and loop signals into a
// per-frame focus score and attention state for one monitored session.
package focus

import (
	"image"
	"log/slog"
	"time"

	"github.com/teslashibe/go-focus/pkg/device"
	"github.com/teslashibe/go-focus/pkg/faces"
	"github.com/teslashibe/go-focus/pkg/frame"
	"github.com/teslashibe/go-focus/pkg/gaze"
	"github.com/teslashibe/go-focus/pkg/loopdetect"
	"github.com/teslashibe/go-focus/pkg/pose"
	"github.com/teslashibe/go-focus/pkg/smoothing"
)

// Engine analyzes the frames of one monitored session.
//
// Analyze is synchronous and not reentrant: callers must serialize calls on
// one Engine. Separate sessions need separate engines; the perception
// capabilities passed to New may be shared between them if they are safe
// for concurrent use.
type Engine struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	cache   *smoothing.Cache
	loop    *loopdetect.Detector
	devices *device.Detector
	faces   *faces.Pipeline
	pose    *pose.Estimator
	gaze    *gaze.Estimator

	session SessionState
	overlay Overlay

	// landmarkFailing is set after a failure has been logged at error level
	// and cleared by the next landmark hit.
	landmarkFailing bool
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for timestamps, the away timer and
// the loop detector window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an engine. Nil capabilities are treated as unavailable.
func New(cfg Config, landmarks faces.LandmarkSource, coarse faces.CoarseDetector, objects device.ObjectDetector, opts ...Option) *Engine {
	e := &Engine{
		cfg:   cfg,
		log:   slog.Default(),
		now:   time.Now,
		cache: smoothing.New(),
		session: SessionState{
			FocusScore: 100,
			State:      StateFocused,
		},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.loop = loopdetect.New(cfg.Loop)
	e.devices = device.New(cfg.Device, objects, e.cache, e.log.With("component", "device"))
	e.faces = faces.NewPipeline(landmarks, coarse, e.log.With("component", "faces"))
	e.pose = pose.NewEstimator(cfg.Pose, e.cache)
	e.gaze = gaze.NewEstimator(cfg.Gaze, e.cache)
	return e
}

// AnalyzeBytes decodes an encoded image and analyzes it. Decoding failures
// produce an error result and leave the session untouched.
func (e *Engine) AnalyzeBytes(data []byte) Result {
	f, err := frame.Decode(data)
	if err != nil {
		return ErrorResult(err.Error(), e.now())
	}
	return e.Analyze(f)
}

// Analyze runs the full pipeline on one frame and advances the session.
func (e *Engine) Analyze(f *frame.Frame) Result {
	if !f.Valid() {
		return ErrorResult("Invalid frame", e.now())
	}

	now := e.now()
	e.overlay = Overlay{}

	loop := e.loop.Observe(f.Gray(), now)
	deviceSeen := e.devices.Detect(f)

	var (
		v    verdict
		path Path
		ok   bool
	)

	mesh := e.faces.Primary(f)
	switch mesh.Outcome {
	case faces.Found:
		if e.landmarkFailing {
			e.log.Info("landmark analysis recovered")
			e.landmarkFailing = false
		}
		v, ok = e.analyzePrimary(f, mesh, deviceSeen)
		path = PathPrimary
	case faces.Failed:
		if e.landmarkFailing {
			e.log.Debug("landmark analysis failed, using cascade fallback", "error", mesh.Err)
		} else {
			e.log.Error("landmark analysis failed, using cascade fallback", "error", mesh.Err)
			e.landmarkFailing = true
		}
	}
	if !ok {
		v = e.analyzeFallback(f, deviceSeen)
		path = PathFallback
	}

	if boxes := e.devices.Boxes(); len(boxes) > 0 {
		e.overlay.Devices = append([]device.Polygon(nil), boxes...)
	}

	return e.finalize(v, path, loop, now)
}

// analyzePrimary scores a frame from the best landmark set. A panic while
// measuring reports !ok so the caller can fall back.
func (e *Engine) analyzePrimary(f *frame.Frame, mesh faces.MeshResult, deviceSeen bool) (v verdict, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("landmark analysis panicked, using cascade fallback", "panic", r)
			e.overlay = Overlay{}
			ok = false
		}
	}()

	w, h := f.Width(), f.Height()
	primary := mesh.Primary()

	box := primary.Box
	e.overlay.FaceBox = &box
	for _, c := range mesh.Additional() {
		e.overlay.AdditionalFaces = append(e.overlay.AdditionalFaces, c.Box)
	}

	g := e.gaze.Estimate(primary.Points, w, h)
	e.overlay.Pupils = []image.Point{g.Pupils[0], g.Pupils[1]}

	p := e.pose.Estimate(primary.Points, w, h)
	if p.Solved {
		e.overlay.Pose = &PoseOverlay{Angles: p.Angles, Origin: p.Origin, Axes: p.Axes}
	}

	v = scorePrimary(e.cfg.Primary, primaryInput{
		faces:  len(mesh.Faces),
		angles: p.Angles,
		gaze:   g,
		device: deviceSeen,
	})
	return v, true
}

// analyzeFallback scores a frame with the cascade detectors. Pose and gaze
// history is dropped since the landmark path lost the face.
func (e *Engine) analyzeFallback(f *frame.Frame, deviceSeen bool) verdict {
	e.pose.Reset()
	e.gaze.Reset()
	e.overlay = Overlay{}

	c := e.faces.Fallback(f)
	if c.Err != nil {
		e.log.Warn("cascade detection failed", "error", c.Err)
	}

	if len(c.Faces) > 0 {
		box := c.Faces[0].Box
		e.overlay.FaceBox = &box
		for _, extra := range c.Faces[1:] {
			e.overlay.AdditionalFaces = append(e.overlay.AdditionalFaces, extra.Box)
		}
		for _, eye := range c.Eyes[:min(len(c.Eyes), 2)] {
			center := image.Pt((eye.Min.X+eye.Max.X)/2, (eye.Min.Y+eye.Max.Y)/2)
			e.overlay.Pupils = append(e.overlay.Pupils, center)
		}
	}

	return scoreFallback(e.cfg.Fallback, c, deviceSeen)
}

// finalize advances the session state and assembles the result.
func (e *Engine) finalize(v verdict, path Path, loop loopdetect.State, now time.Time) Result {
	s := &e.session

	alerts := v.alerts
	if v.state == StateAway {
		if s.AwayStart == nil {
			start := now
			s.AwayStart = &start
		}
		s.AwayTimer = now.Sub(*s.AwayStart)
		if s.AwayTimer >= e.cfg.AwayAlertAfter {
			alerts = append(alerts, AlertAway)
		}
	} else {
		s.AwayStart = nil
		s.AwayTimer = 0
	}

	w := e.cfg.PreviousWeight
	s.FocusScore = clamp((1-w)*v.score+w*s.FocusScore, 0, 100)
	s.State = v.state
	s.LastStatus = v.status

	if loop.Detected {
		alerts = append(alerts, AlertLooping)
	}

	return Result{
		Success:       true,
		FocusScore:    round2(s.FocusScore),
		RawFrameScore: round2(v.score),
		Status:        v.status,
		State:         v.state,
		AwayTimer:     round2(s.AwayTimer.Seconds()),
		Alerts:        dedupe(alerts),
		FacesDetected: v.faces,
		EyesDetected:  v.eyes,
		LoopDetection: &loop,
		Timestamp:     epochSeconds(now),
		Path:          path,
	}
}

// Session returns a copy of the running session state.
func (e *Engine) Session() SessionState {
	s := e.session
	if s.AwayStart != nil {
		start := *s.AwayStart
		s.AwayStart = &start
	}
	return s
}

// Stats summarizes the session for the stats endpoints.
func (e *Engine) Stats() Stats {
	return Stats{
		CurrentScore: round2(e.session.FocusScore),
		CurrentState: e.session.State,
		AwayTimer:    round2(e.session.AwayTimer.Seconds()),
		LastStatus:   e.session.LastStatus,
		Timestamp:    epochSeconds(e.now()),
	}
}

// Overlay returns the annotations of the last analyzed frame.
func (e *Engine) Overlay() Overlay {
	return e.overlay
}

// LoopState returns the loop detector's latest verdict.
func (e *Engine) LoopState() loopdetect.State {
	return e.loop.State()
}

// DevicePresence returns the smoothed device presence score.
func (e *Engine) DevicePresence() float64 {
	return e.devices.Presence()
}
