package focus

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-focus/pkg/device"
	"github.com/teslashibe/go-focus/pkg/faces"
	"github.com/teslashibe/go-focus/pkg/faces/facestest"
	"github.com/teslashibe/go-focus/pkg/frame"
)

type testClock struct {
	t time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type phones struct {
	conf float64
}

func (p phones) Available() bool { return true }

func (p phones) Detect(*frame.Frame) ([]device.Detection, error) {
	return []device.Detection{{Label: "cell phone", Confidence: p.conf, Box: image.Rect(400, 300, 460, 400)}}, nil
}

func grayFrame(t *testing.T) *frame.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			img.Set(x, y, color.RGBA{90, 90, 90, 255})
		}
	}
	f, err := frame.New(img)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func newEngine(lm faces.LandmarkSource, cc faces.CoarseDetector, obj device.ObjectDetector, clk *testClock) *Engine {
	return New(DefaultConfig(), lm, cc, obj, WithClock(clk.now))
}

func frontal() *facestest.Landmarks {
	return &facestest.Landmarks{Sets: []faces.Landmarks{facestest.Mesh(0.5, 0.5, 0.3)}}
}

func TestAnalyze_FocusedFrontalFace(t *testing.T) {
	e := newEngine(frontal(), nil, nil, newClock())
	res := e.Analyze(grayFrame(t))

	if !res.Success {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.State != StateFocused {
		t.Errorf("State = %s, want focused", res.State)
	}
	if res.RawFrameScore != 100 || res.FocusScore != 100 {
		t.Errorf("scores = %v/%v, want 100/100", res.RawFrameScore, res.FocusScore)
	}
	if want := "Focused on screen | pitch:0.0° yaw:0.0° roll:0.0°"; res.Status != want {
		t.Errorf("Status = %q, want %q", res.Status, want)
	}
	if res.Alerts == nil || len(res.Alerts) != 0 {
		t.Errorf("Alerts = %#v, want empty non-nil", res.Alerts)
	}
	if res.FacesDetected != 1 || res.EyesDetected != 2 {
		t.Errorf("faces/eyes = %d/%d, want 1/2", res.FacesDetected, res.EyesDetected)
	}
	if res.Path != PathPrimary {
		t.Errorf("Path = %s, want primary", res.Path)
	}

	ov := e.Overlay()
	if ov.FaceBox == nil || ov.Pose == nil || len(ov.Pupils) != 2 {
		t.Errorf("overlay incomplete: %+v", ov)
	}
}

func TestAnalyze_MultipleFaces(t *testing.T) {
	lm := &facestest.Landmarks{Sets: []faces.Landmarks{
		facestest.Mesh(0.5, 0.5, 0.3),
		facestest.Mesh(0.52, 0.5, 0.3),
	}}
	e := newEngine(lm, nil, nil, newClock())
	res := e.Analyze(grayFrame(t))

	if res.FacesDetected != 2 {
		t.Errorf("FacesDetected = %d, want 2", res.FacesDetected)
	}
	if !slices.Contains(res.Alerts, "multiple_faces:2") {
		t.Errorf("Alerts = %v, want multiple_faces:2", res.Alerts)
	}
	if res.State != StateAway {
		t.Errorf("State = %s, want away", res.State)
	}
	if res.RawFrameScore != 70 {
		t.Errorf("RawFrameScore = %v, want 70", res.RawFrameScore)
	}
	if !strings.HasPrefix(res.Status, "2 faces detected | pitch:") {
		t.Errorf("Status = %q", res.Status)
	}
	if len(e.Overlay().AdditionalFaces) != 1 {
		t.Errorf("overlay additional faces = %d, want 1", len(e.Overlay().AdditionalFaces))
	}
}

func TestAnalyze_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"corrupt", []byte("definitely not an image")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newClock()
			e := newEngine(frontal(), nil, nil, clk)
			before := e.Session()

			res := e.AnalyzeBytes(tt.data)
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.FocusScore != 0 || res.State != StateUnknown || res.Status != "ERROR" || res.Error == "" {
				t.Errorf("unexpected error result %+v", res)
			}
			if e.Session() != before {
				t.Error("session mutated by an invalid frame")
			}
			if e.LoopState().SamplesConsidered != 0 {
				t.Error("loop detector observed an invalid frame")
			}

			raw, err := json.Marshal(res)
			if err != nil {
				t.Fatal(err)
			}
			var body map[string]any
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Fatal(err)
			}
			if body["success"] != false || body["state"] != "unknown" || body["focus_score"] != 0.0 {
				t.Errorf("wire body = %s", raw)
			}
			if _, ok := body["raw_frame_score"]; ok {
				t.Errorf("error body should not carry raw_frame_score: %s", raw)
			}
		})
	}

	if res := New(DefaultConfig(), nil, nil, nil).Analyze(nil); res.Success || res.State != StateUnknown {
		t.Errorf("nil frame: %+v", res)
	}
}

func TestAnalyze_AwayTimer(t *testing.T) {
	clk := newClock()
	lm := &facestest.Landmarks{}
	e := newEngine(lm, nil, nil, clk)
	f := grayFrame(t)

	prev := -1.0
	var res Result
	for i := 0; i <= 6; i++ {
		res = e.Analyze(f)
		if res.State != StateAway {
			t.Fatalf("frame %d: State = %s, want away", i, res.State)
		}
		if res.AwayTimer <= prev {
			t.Fatalf("frame %d: away timer %v did not increase from %v", i, res.AwayTimer, prev)
		}
		prev = res.AwayTimer
		if i < 5 && slices.Contains(res.Alerts, AlertAway) {
			t.Fatalf("frame %d: away alert raised at %vs", i, res.AwayTimer)
		}
		clk.advance(time.Second)
	}
	if res.AwayTimer != 6 {
		t.Errorf("AwayTimer = %v, want 6", res.AwayTimer)
	}
	if !slices.Contains(res.Alerts, AlertAway) || !slices.Contains(res.Alerts, AlertNoFace) {
		t.Errorf("Alerts = %v, want no_face and away_5_seconds", res.Alerts)
	}

	lm.Sets = []faces.Landmarks{facestest.Mesh(0.5, 0.5, 0.3)}
	res = e.Analyze(f)
	if res.State != StateFocused || res.AwayTimer != 0 {
		t.Errorf("after return: state %s timer %v, want focused 0", res.State, res.AwayTimer)
	}
	if e.Session().AwayStart != nil {
		t.Error("away start should be cleared")
	}
}

func TestAnalyze_FocusScoreDamping(t *testing.T) {
	e := newEngine(&facestest.Landmarks{}, nil, nil, newClock())
	f := grayFrame(t)

	// No face: frame score 10.
	res := e.Analyze(f)
	if res.RawFrameScore != 10 || res.FocusScore != 37 {
		t.Errorf("scores = %v/%v, want 10/37", res.RawFrameScore, res.FocusScore)
	}
	res = e.Analyze(f)
	if res.FocusScore != 18.1 {
		t.Errorf("FocusScore = %v, want 18.1", res.FocusScore)
	}
	if s := e.Stats(); s.CurrentScore != 18.1 || s.CurrentState != StateAway || s.LastStatus != "No face detected" {
		t.Errorf("Stats = %+v", s)
	}
}

func TestAnalyze_PrimaryFailureFallsBack(t *testing.T) {
	tests := []struct {
		name string
		lm   *facestest.Landmarks
	}{
		{"error", &facestest.Landmarks{Err: errors.New("model crashed")}},
		{"panic", &facestest.Landmarks{Panic: true}},
		{"short set", &facestest.Landmarks{Sets: []faces.Landmarks{make(faces.Landmarks, 10)}}},
		{"unavailable", &facestest.Landmarks{Unavailable: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := &facestest.Cascades{
				FrontalBoxes: []image.Rectangle{image.Rect(240, 160, 400, 320)},
				EyeBoxes:     []image.Rectangle{image.Rect(270, 200, 300, 220), image.Rect(340, 200, 370, 220)},
			}
			e := newEngine(tt.lm, cc, nil, newClock())
			res := e.Analyze(grayFrame(t))

			if res.Path != PathFallback {
				t.Errorf("Path = %s, want fallback", res.Path)
			}
			if res.Status != "Face detected - limited tracking" || res.State != StateFocused {
				t.Errorf("status/state = %q/%s", res.Status, res.State)
			}
			if res.RawFrameScore != 80 || res.EyesDetected != 2 || res.FacesDetected != 1 {
				t.Errorf("score/eyes/faces = %v/%d/%d, want 80/2/1", res.RawFrameScore, res.EyesDetected, res.FacesDetected)
			}
			if len(e.Overlay().Pupils) != 2 || e.Overlay().Pose != nil {
				t.Errorf("fallback overlay = %+v", e.Overlay())
			}
		})
	}
}

func TestAnalyze_LandmarkFailureLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	errorLines := func() int {
		n := 0
		for _, line := range strings.Split(buf.String(), "\n") {
			if strings.Contains(line, "level=ERROR") && strings.Contains(line, "landmark analysis failed") {
				n++
			}
		}
		return n
	}

	lm := &facestest.Landmarks{Err: errors.New("sidecar down")}
	clk := newClock()
	e := New(DefaultConfig(), lm, &facestest.Cascades{}, nil, WithClock(clk.now), WithLogger(logger))

	for i := 0; i < 5; i++ {
		e.Analyze(grayFrame(t))
		clk.advance(100 * time.Millisecond)
	}
	if got := errorLines(); got != 1 {
		t.Fatalf("error lines after 5 failing frames = %d, want 1", got)
	}
	if got := strings.Count(buf.String(), "level=DEBUG msg=\"landmark analysis failed"); got != 4 {
		t.Errorf("debug lines = %d, want 4", got)
	}

	lm.Err = nil
	lm.Sets = []faces.Landmarks{facestest.Mesh(0.5, 0.5, 0.3)}
	if res := e.Analyze(grayFrame(t)); res.Path != PathPrimary {
		t.Fatalf("Path = %s after recovery, want primary", res.Path)
	}

	lm.Err = errors.New("sidecar down again")
	e.Analyze(grayFrame(t))
	if got := errorLines(); got != 2 {
		t.Errorf("error lines after a recovered failure = %d, want 2", got)
	}
}

func TestAnalyze_FallbackResetsPoseHistory(t *testing.T) {
	lm := frontal()
	e := newEngine(lm, nil, nil, newClock())
	f := grayFrame(t)

	e.Analyze(f)
	if e.cache.Len() == 0 {
		t.Fatal("primary path should seed pose and gaze metrics")
	}

	lm.Sets = nil
	e.Analyze(f)
	for _, k := range []string{"pose_pitch", "pose_yaw", "pose_roll", "gaze_left_h", "gaze_right_h", "gaze_left_v", "gaze_right_v"} {
		if _, ok := e.cache.Get(k); ok {
			t.Errorf("metric %q survived the fallback path", k)
		}
	}
}

func TestAnalyze_Profiles(t *testing.T) {
	tests := []struct {
		name   string
		cc     *facestest.Cascades
		alerts []string
	}{
		{"right", &facestest.Cascades{ProfileBoxes: []image.Rectangle{image.Rect(0, 0, 100, 100)}}, []string{AlertLookingRight}},
		{"left", &facestest.Cascades{MirroredBoxes: []image.Rectangle{image.Rect(0, 0, 100, 100)}}, []string{AlertLookingLeft}},
		{"both", &facestest.Cascades{
			ProfileBoxes:  []image.Rectangle{image.Rect(0, 0, 100, 100)},
			MirroredBoxes: []image.Rectangle{image.Rect(0, 0, 100, 100)},
		}, []string{AlertLookingRight, AlertLookingLeft}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(nil, tt.cc, nil, newClock())
			res := e.Analyze(grayFrame(t))
			if res.RawFrameScore != 15 || res.State != StateAway || res.Status != "Profile detected - looking away" {
				t.Errorf("result = %+v", res)
			}
			if !slices.Equal(res.Alerts, tt.alerts) {
				t.Errorf("Alerts = %v, want %v", res.Alerts, tt.alerts)
			}
		})
	}
}

func TestAnalyze_DeviceDetected(t *testing.T) {
	e := newEngine(frontal(), nil, phones{conf: 0.9}, newClock())
	res := e.Analyze(grayFrame(t))

	if res.RawFrameScore != 60 || res.State != StateAway {
		t.Errorf("score/state = %v/%s, want 60/away", res.RawFrameScore, res.State)
	}
	if !slices.Contains(res.Alerts, AlertDevice) {
		t.Errorf("Alerts = %v, want device_detected", res.Alerts)
	}
	if !strings.Contains(res.Status, "| Device detected | pitch:") {
		t.Errorf("Status = %q", res.Status)
	}
	if len(e.Overlay().Devices) != 1 {
		t.Errorf("overlay devices = %d, want 1", len(e.Overlay().Devices))
	}

	// Fallback path deducts less.
	e = newEngine(nil, &facestest.Cascades{FrontalBoxes: []image.Rectangle{image.Rect(240, 160, 400, 320)}}, phones{conf: 0.9}, newClock())
	res = e.Analyze(grayFrame(t))
	if res.RawFrameScore != 20 || res.Status != "Device detected" {
		t.Errorf("fallback score/status = %v/%q, want 20/Device detected", res.RawFrameScore, res.Status)
	}
}

func TestAnalyze_LoopingFeed(t *testing.T) {
	clk := newClock()
	e := newEngine(frontal(), nil, nil, clk)
	f := grayFrame(t)

	var res Result
	for i := 0; i < 60; i++ {
		res = e.Analyze(f)
		clk.advance(100 * time.Millisecond)
	}

	if res.LoopDetection == nil || !res.LoopDetection.Detected {
		t.Fatalf("loop not detected: %+v", res.LoopDetection)
	}
	if res.Alerts[len(res.Alerts)-1] != AlertLooping {
		t.Errorf("Alerts = %v, want looping_video last", res.Alerts)
	}
}

func TestAnalyze_ScoreBounds(t *testing.T) {
	clk := newClock()
	lm := &facestest.Landmarks{}
	cc := &facestest.Cascades{}
	e := newEngine(lm, cc, phones{conf: 0.95}, clk)
	f := grayFrame(t)

	scripts := []func(){
		func() { lm.Sets = nil; cc.FrontalBoxes = nil },
		func() { lm.Sets = []faces.Landmarks{facestest.Mesh(0.5, 0.5, 0.3)} },
		func() {
			lm.Sets = []faces.Landmarks{
				facestest.LookSideways(facestest.Mesh(0.5, 0.5, 0.3), 0.4),
				facestest.Mesh(0.2, 0.3, 0.2),
				facestest.Mesh(0.8, 0.3, 0.2),
				facestest.Mesh(0.5, 0.8, 0.2),
			}
		},
		func() {
			lm.Sets = nil
			cc.FrontalBoxes = []image.Rectangle{image.Rect(0, 0, 100, 100), image.Rect(200, 0, 300, 100), image.Rect(400, 0, 500, 100)}
		},
	}

	for i := 0; i < 40; i++ {
		scripts[i%len(scripts)]()
		res := e.Analyze(f)
		if res.FocusScore < 0 || res.FocusScore > 100 || res.RawFrameScore < 0 || res.RawFrameScore > 100 {
			t.Fatalf("frame %d: scores out of range %v/%v", i, res.FocusScore, res.RawFrameScore)
		}
		clk.advance(250 * time.Millisecond)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config invalid: %v", errs)
	}

	cfg.Loop.Window = 0
	cfg.Gaze.HorizontalSoft = cfg.Gaze.HorizontalHard
	cfg.Gaze.HorizontalSoft.Min = 0.1
	cfg.PreviousWeight = 1.5
	errs := cfg.Validate()
	if len(errs) < 3 {
		t.Errorf("expected at least 3 errors, got %v", errs)
	}
}
