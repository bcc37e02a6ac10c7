package overlay

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/device"
	"github.com/teslashibe/go-focus/pkg/focus"
)

func TestScoreColor(t *testing.T) {
	tests := []struct {
		score float64
		want  color.RGBA
	}{
		{100, green},
		{85, green},
		{84.9, yellow},
		{70, yellow},
		{69.99, orange},
		{50, orange},
		{49, red},
		{0, red},
	}
	for _, tt := range tests {
		if got := ScoreColor(tt.score); got != tt.want {
			t.Errorf("ScoreColor(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	present := Describe(focus.Result{FocusScore: 87.6, Status: "Focused on screen", State: focus.StateFocused}, 5)
	if present.Score != "FOCUS: 88%" {
		t.Errorf("Score = %q", present.Score)
	}
	if present.State != "State: FOCUSED" {
		t.Errorf("State = %q", present.State)
	}
	if present.Away != "" || present.Warn {
		t.Errorf("unexpected away text %+v", present)
	}

	away := Describe(focus.Result{FocusScore: 12, State: focus.StateAway, AwayTimer: 3.25}, 5)
	if away.Away != "Away: 3.2s / 5.0s" && away.Away != "Away: 3.3s / 5.0s" {
		t.Errorf("Away = %q", away.Away)
	}
	if away.Warn {
		t.Error("warning shown before threshold")
	}

	if !Describe(focus.Result{AwayTimer: 5}, 5).Warn {
		t.Error("warning not shown at threshold")
	}
}

func TestTimerColor(t *testing.T) {
	if TimerColor(4.9, 5) != orange || TimerColor(5, 5) != red {
		t.Error("timer colours wrong")
	}
}

func TestDrawAndEncode(t *testing.T) {
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	face := image.Rect(200, 120, 440, 400)
	ov := focus.Overlay{
		FaceBox:         &face,
		AdditionalFaces: []image.Rectangle{image.Rect(20, 5, 100, 90)},
		Pupils:          []image.Point{{280, 220}, {360, 220}},
		Pose: &focus.PoseOverlay{
			Origin: image.Pt(320, 260),
			Axes:   [3]image.Point{{380, 260}, {320, 200}, {320, 260}},
		},
		Devices: []device.Polygon{device.Outline(image.Rect(500, 300, 560, 400))},
	}
	res := focus.Result{Success: true, FocusScore: 20, Status: "Away", State: focus.StateAway, AwayTimer: 6}

	New(5).Draw(&img, res, ov)

	data, err := Encode(img, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("output is not a JPEG")
	}
}
