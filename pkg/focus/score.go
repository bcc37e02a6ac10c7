package focus

import (
	"fmt"
	"math"
	"strings"

	"github.com/teslashibe/go-focus/pkg/faces"
	"github.com/teslashibe/go-focus/pkg/gaze"
	"github.com/teslashibe/go-focus/pkg/pose"
)

// verdict is the scored outcome of one frame before session state applies.
type verdict struct {
	score  float64
	state  State
	status string
	alerts []string
	faces  int
	eyes   int
}

// primaryInput is everything the landmark path measured on one frame.
type primaryInput struct {
	faces  int
	angles pose.Angles
	gaze   gaze.Estimate
	device bool
}

// scorePrimary applies the landmark-path deduction table.
func scorePrimary(t PrimaryTable, in primaryInput) verdict {
	v := verdict{score: 100, state: StateFocused, faces: in.faces, eyes: 2}
	var parts []string

	if in.faces > 1 {
		v.alerts = append(v.alerts, fmt.Sprintf("multiple_faces:%d", in.faces))
		parts = append(parts, fmt.Sprintf("%d faces detected", in.faces))
		v.score = math.Max(v.score-multiFacePenalty(in.faces, t.MultiFacePenalty, t.MultiFaceCap), 0)
		v.state = StateAway
	}

	a := in.angles
	v.score -= deviation(a.Pitch, t.PitchDeadband, t.PitchScale, t.PitchCap)
	v.score -= deviation(a.Yaw, t.YawDeadband, t.YawScale, t.YawCap)
	v.score -= deviation(a.Roll, t.RollDeadband, t.RollScale, t.RollCap)

	if math.Abs(a.Pitch) > t.PitchAlert {
		v.alerts = append(v.alerts, "head_pitch:"+fmt1(a.Pitch))
		parts = append(parts, "Head pitched")
		v.state = StateAway
	}
	if math.Abs(a.Yaw) > t.YawAlert {
		v.alerts = append(v.alerts, "head_yaw:"+fmt1(a.Yaw))
		parts = append(parts, "Looking sideways")
		v.state = StateAway
	}
	if math.Abs(a.Roll) > t.RollAlert {
		v.alerts = append(v.alerts, "head_roll:"+fmt1(a.Roll))
		parts = append(parts, "Head tilted")
	}

	switch in.gaze.Horizontal {
	case gaze.Off:
		v.score -= t.HorizontalOffPenalty
		v.alerts = append(v.alerts, AlertGazeHorizontal)
		parts = append(parts, "Eyes off-center")
		v.state = StateAway
	case gaze.Drifting:
		v.score -= t.HorizontalDriftPenalty
		parts = append(parts, "Eyes drifting sideways")
	}

	switch in.gaze.Vertical {
	case gaze.Off:
		v.score -= t.VerticalOffPenalty
		v.alerts = append(v.alerts, AlertGazeVertical)
		parts = append(parts, "Eyes off-vertical")
		v.state = StateAway
	case gaze.Drifting:
		v.score -= t.VerticalDriftPenalty
		parts = append(parts, "Eyes drifting up/down")
	}

	if len(parts) == 0 {
		if in.gaze.Centered() && v.state == StateFocused {
			parts = append(parts, "Focused on screen")
		} else {
			parts = append(parts, "Analyzing")
		}
	}

	if in.device {
		v.score = math.Max(v.score-t.DevicePenalty, 0)
		v.alerts = append(v.alerts, AlertDevice)
		parts = append(parts, "Device detected")
		v.state = StateAway
	}

	v.score = clamp(v.score, 0, 100)
	v.alerts = dedupe(v.alerts)
	v.status = fmt.Sprintf("%s | pitch:%s° yaw:%s° roll:%s°",
		strings.Join(parts, " | "), fmt1(a.Pitch), fmt1(a.Yaw), fmt1(a.Roll))
	return v
}

// scoreFallback applies the cascade-path table.
func scoreFallback(t FallbackTable, c faces.CascadeResult, device bool) verdict {
	v := verdict{
		score:  t.NoFaceScore,
		state:  StateAway,
		status: "No face detected",
		faces:  len(c.Faces),
	}

	switch {
	case len(c.Faces) > 0:
		v.eyes = len(c.Eyes)
		v.score = t.FrontalScore
		v.status = "Face detected - limited tracking"
		v.state = StateFocused
		switch {
		case v.eyes >= 2:
			v.score += t.TwoEyesBonus
		case v.eyes == 1:
			v.score += t.OneEyeBonus
		default:
			v.score -= t.NoEyesPenalty
			v.alerts = append(v.alerts, AlertEyesNotFound)
		}
	case len(c.ProfileRight) > 0 || len(c.ProfileLeft) > 0:
		v.score = t.ProfileScore
		v.status = "Profile detected - looking away"
		if len(c.ProfileRight) > 0 {
			v.alerts = append(v.alerts, AlertLookingRight)
		}
		if len(c.ProfileLeft) > 0 {
			v.alerts = append(v.alerts, AlertLookingLeft)
		}
	default:
		v.alerts = append(v.alerts, AlertNoFace)
	}

	if v.faces > 1 {
		v.alerts = append(v.alerts, fmt.Sprintf("multiple_faces:%d", v.faces))
		v.status = fmt.Sprintf("%d faces detected", v.faces)
		v.score = math.Max(v.score-multiFacePenalty(v.faces, t.MultiFacePenalty, t.MultiFaceCap), 0)
		v.state = StateAway
	}

	if device {
		v.score = math.Max(v.score-t.DevicePenalty, 0)
		v.status = "Device detected"
		v.alerts = append(v.alerts, AlertDevice)
		v.state = StateAway
	}

	v.score = clamp(v.score, 0, 100)
	v.alerts = dedupe(v.alerts)
	return v
}

func multiFacePenalty(n int, per, limit float64) float64 {
	return math.Min(per*float64(n-1), limit)
}

// deviation is the capped deduction for an angle beyond its deadband.
func deviation(angle, deadband, scale, limit float64) float64 {
	over := math.Max(0, math.Abs(angle)-deadband)
	return math.Min(over*scale, limit)
}

// dedupe drops repeated alerts, keeping first occurrences in order.
func dedupe(alerts []string) []string {
	out := make([]string, 0, len(alerts))
	seen := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// fmt1 formats with one decimal and never prints negative zero.
func fmt1(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	if s == "-0.0" {
		return "0.0"
	}
	return s
}
