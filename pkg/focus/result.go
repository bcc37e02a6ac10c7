package focus

import (
	"encoding/json"
	"image"
	"math"
	"time"

	"github.com/teslashibe/go-focus/pkg/device"
	"github.com/teslashibe/go-focus/pkg/loopdetect"
	"github.com/teslashibe/go-focus/pkg/pose"
)

// State is the discrete attention state.
type State string

const (
	StateFocused State = "focused"
	StateAway    State = "away"
	StateUnknown State = "unknown"
)

// Path records which analysis stage produced a result.
type Path string

const (
	PathPrimary  Path = "primary"
	PathFallback Path = "fallback"
	PathError    Path = "error"
)

// Alert tags.
const (
	AlertNoFace         = "no_face"
	AlertLookingRight   = "looking_right"
	AlertLookingLeft    = "looking_left"
	AlertEyesNotFound   = "eyes_not_detected"
	AlertGazeHorizontal = "gaze_horizontal_off"
	AlertGazeVertical   = "gaze_vertical_off"
	AlertDevice         = "device_detected"
	AlertAway           = "away_5_seconds"
	AlertLooping        = "looping_video"
)

// Result is the outcome of analyzing one frame.
type Result struct {
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	FocusScore    float64           `json:"focus_score"`
	RawFrameScore float64           `json:"raw_frame_score"`
	Status        string            `json:"status"`
	State         State             `json:"state"`
	AwayTimer     float64           `json:"away_timer"`
	Alerts        []string          `json:"alerts"`
	FacesDetected int               `json:"faces_detected"`
	EyesDetected  int               `json:"eyes_detected"`
	LoopDetection *loopdetect.State `json:"loop_detection,omitempty"`
	Timestamp     float64           `json:"timestamp"`

	Path Path `json:"-"`
}

type errorResult struct {
	Success    bool    `json:"success"`
	Error      string  `json:"error"`
	FocusScore float64 `json:"focus_score"`
	Status     string  `json:"status"`
	State      State   `json:"state"`
	Timestamp  float64 `json:"timestamp"`
}

// MarshalJSON writes the reduced error shape for failed results.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(errorResult{
			Error:     r.Error,
			Status:    r.Status,
			State:     r.State,
			Timestamp: r.Timestamp,
		})
	}
	type plain Result
	return json.Marshal(plain(r))
}

// ErrorResult builds the result reported for an unusable frame.
func ErrorResult(msg string, now time.Time) Result {
	return Result{
		Success:   false,
		Error:     msg,
		Status:    "ERROR",
		State:     StateUnknown,
		Alerts:    []string{},
		Timestamp: epochSeconds(now),
		Path:      PathError,
	}
}

// SessionState is the running state of one monitored session.
type SessionState struct {
	FocusScore float64
	State      State
	AwayStart  *time.Time
	AwayTimer  time.Duration
	LastStatus string
}

// Stats is the summary served by the stats endpoints.
type Stats struct {
	CurrentScore float64 `json:"current_score"`
	CurrentState State   `json:"current_state"`
	AwayTimer    float64 `json:"away_timer"`
	LastStatus   string  `json:"last_status"`
	Timestamp    float64 `json:"timestamp"`
}

// Overlay is what the renderer needs to annotate the last analyzed frame.
type Overlay struct {
	FaceBox         *image.Rectangle
	AdditionalFaces []image.Rectangle
	Pupils          []image.Point

	// Pose is set only when the last frame's pose solved.
	Pose *PoseOverlay

	Devices []device.Polygon
}

// PoseOverlay holds the head-pose axes anchored at the nose tip.
type PoseOverlay struct {
	Angles pose.Angles
	Origin image.Point
	Axes   [3]image.Point
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
