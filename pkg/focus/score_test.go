package focus

import (
	"image"
	"slices"
	"testing"

	"github.com/teslashibe/go-focus/pkg/faces"
	"github.com/teslashibe/go-focus/pkg/gaze"
	"github.com/teslashibe/go-focus/pkg/pose"
)

func centred() gaze.Estimate {
	return gaze.Estimate{Horizontal: gaze.Centered, Vertical: gaze.Centered}
}

func TestScorePrimary(t *testing.T) {
	tbl := DefaultConfig().Primary

	tests := []struct {
		name   string
		in     primaryInput
		score  float64
		state  State
		alerts []string
		status string
	}{
		{
			name:   "nominal",
			in:     primaryInput{faces: 1, gaze: centred()},
			score:  100,
			state:  StateFocused,
			alerts: []string{},
			status: "Focused on screen | pitch:0.0° yaw:0.0° roll:0.0°",
		},
		{
			name:   "yaw 40",
			in:     primaryInput{faces: 1, angles: pose.Angles{Yaw: 40}, gaze: centred()},
			score:  70,
			state:  StateAway,
			alerts: []string{"head_yaw:40.0"},
			status: "Looking sideways | pitch:0.0° yaw:40.0° roll:0.0°",
		},
		{
			name:   "inside deadbands",
			in:     primaryInput{faces: 1, angles: pose.Angles{Pitch: -8, Yaw: 10, Roll: 12}, gaze: centred()},
			score:  100,
			state:  StateFocused,
			alerts: []string{},
			status: "Focused on screen | pitch:-8.0° yaw:10.0° roll:12.0°",
		},
		{
			name:   "tilted head stays focused",
			in:     primaryInput{faces: 1, angles: pose.Angles{Roll: -30}, gaze: centred()},
			score:  100 - 13.5,
			state:  StateFocused,
			alerts: []string{"head_roll:-30.0"},
			status: "Head tilted | pitch:0.0° yaw:0.0° roll:-30.0°",
		},
		{
			name:   "pitch past alert",
			in:     primaryInput{faces: 1, angles: pose.Angles{Pitch: 30}, gaze: centred()},
			score:  100 - 24.2,
			state:  StateAway,
			alerts: []string{"head_pitch:30.0"},
			status: "Head pitched | pitch:30.0° yaw:0.0° roll:0.0°",
		},
		{
			name:   "gaze off both axes",
			in:     primaryInput{faces: 1, gaze: gaze.Estimate{Horizontal: gaze.Off, Vertical: gaze.Off}},
			score:  60,
			state:  StateAway,
			alerts: []string{"gaze_horizontal_off", "gaze_vertical_off"},
			status: "Eyes off-center | Eyes off-vertical | pitch:0.0° yaw:0.0° roll:0.0°",
		},
		{
			name:   "gaze drifting",
			in:     primaryInput{faces: 1, gaze: gaze.Estimate{Horizontal: gaze.Drifting, Vertical: gaze.Drifting}},
			score:  82,
			state:  StateFocused,
			alerts: []string{},
			status: "Eyes drifting sideways | Eyes drifting up/down | pitch:0.0° yaw:0.0° roll:0.0°",
		},
		{
			name:   "four faces capped",
			in:     primaryInput{faces: 4, gaze: centred()},
			score:  30,
			state:  StateAway,
			alerts: []string{"multiple_faces:4"},
			status: "4 faces detected | pitch:0.0° yaw:0.0° roll:0.0°",
		},
		{
			name: "everything wrong floors at zero",
			in: primaryInput{
				faces:  5,
				angles: pose.Angles{Pitch: 60, Yaw: -60, Roll: 60},
				gaze:   gaze.Estimate{Horizontal: gaze.Off, Vertical: gaze.Off},
				device: true,
			},
			score:  0,
			state:  StateAway,
			alerts: []string{"multiple_faces:5", "head_pitch:60.0", "head_yaw:-60.0", "head_roll:60.0", "gaze_horizontal_off", "gaze_vertical_off", "device_detected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := scorePrimary(tbl, tt.in)
			if round2(v.score) != round2(tt.score) {
				t.Errorf("score = %v, want %v", v.score, tt.score)
			}
			if v.state != tt.state {
				t.Errorf("state = %s, want %s", v.state, tt.state)
			}
			if !slices.Equal(v.alerts, tt.alerts) {
				t.Errorf("alerts = %v, want %v", v.alerts, tt.alerts)
			}
			if tt.status != "" && v.status != tt.status {
				t.Errorf("status = %q, want %q", v.status, tt.status)
			}
		})
	}
}

func TestScoreFallback(t *testing.T) {
	tbl := DefaultConfig().Fallback
	face := faces.Candidate{}
	eye := image.Rect(0, 0, 10, 10)

	tests := []struct {
		name   string
		in     faces.CascadeResult
		device bool
		score  float64
		state  State
		alerts []string
		status string
	}{
		{"no face", faces.CascadeResult{}, false, 10, StateAway, []string{"no_face"}, "No face detected"},
		{"two eyes", faces.CascadeResult{Faces: []faces.Candidate{face}, Eyes: make([]image.Rectangle, 2)}, false, 80, StateFocused, []string{}, "Face detected - limited tracking"},
		{"three eyes counts as two", faces.CascadeResult{Faces: []faces.Candidate{face}, Eyes: make([]image.Rectangle, 3)}, false, 80, StateFocused, []string{}, "Face detected - limited tracking"},
		{"one eye", faces.CascadeResult{Faces: []faces.Candidate{face}, Eyes: []image.Rectangle{eye}}, false, 70, StateFocused, []string{}, "Face detected - limited tracking"},
		{"no eyes", faces.CascadeResult{Faces: []faces.Candidate{face}}, false, 55, StateFocused, []string{"eyes_not_detected"}, "Face detected - limited tracking"},
		{"two faces", faces.CascadeResult{Faces: []faces.Candidate{face, face}, Eyes: make([]image.Rectangle, 2)}, false, 50, StateAway, []string{"multiple_faces:2"}, "2 faces detected"},
		{"device", faces.CascadeResult{Faces: []faces.Candidate{face}, Eyes: make([]image.Rectangle, 2)}, true, 45, StateAway, []string{"device_detected"}, "Device detected"},
		{"no face with device", faces.CascadeResult{}, true, 0, StateAway, []string{"no_face", "device_detected"}, "Device detected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := scoreFallback(tbl, tt.in, tt.device)
			if v.score != tt.score || v.state != tt.state || v.status != tt.status {
				t.Errorf("got %v/%s/%q, want %v/%s/%q", v.score, v.state, v.status, tt.score, tt.state, tt.status)
			}
			if !slices.Equal(v.alerts, tt.alerts) {
				t.Errorf("alerts = %v, want %v", v.alerts, tt.alerts)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"b", "a", "b", "c", "a"})
	if !slices.Equal(got, []string{"b", "a", "c"}) {
		t.Errorf("dedupe = %v", got)
	}
	if got := dedupe(nil); got == nil || len(got) != 0 {
		t.Errorf("dedupe(nil) = %#v, want empty slice", got)
	}
}

func TestDeviation(t *testing.T) {
	tests := []struct {
		angle, want float64
	}{
		{0, 0},
		{8, 0},
		{-18, 11},
		{50, 30},
	}
	for _, tt := range tests {
		if got := deviation(tt.angle, 8, 1.1, 30); round2(got) != tt.want {
			t.Errorf("deviation(%v) = %v, want %v", tt.angle, got, tt.want)
		}
	}
}
