// Package overlay annotates webcam frames with the focus verdict.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/focus"
)

// JPEGQuality is the default quality for streamed frames.
const JPEGQuality = 85

// AwayWarning is the banner shown once the away timer passes the threshold.
const AwayWarning = "!!! WARNING: LOOK AT SCREEN !!!"

var (
	green  = color.RGBA{0, 255, 0, 255}
	yellow = color.RGBA{255, 255, 0, 255}
	orange = color.RGBA{255, 165, 0, 255}
	red    = color.RGBA{255, 0, 0, 255}
	white  = color.RGBA{255, 255, 255, 255}
	cyan   = color.RGBA{0, 255, 255, 255}
	blue   = color.RGBA{0, 0, 255, 255}
	amber  = color.RGBA{255, 140, 0, 255}
)

// ScoreColor maps a focus score to its band colour.
func ScoreColor(score float64) color.RGBA {
	switch {
	case score >= 85:
		return green
	case score >= 70:
		return yellow
	case score >= 50:
		return orange
	default:
		return red
	}
}

// TimerColor is orange while the subject may still return, red after.
func TimerColor(away, threshold float64) color.RGBA {
	if away < threshold {
		return orange
	}
	return red
}

// Text is the textual part of the overlay.
type Text struct {
	Score  string
	Status string
	State  string
	Away   string // empty when the subject is present
	Warn   bool
}

// Describe builds the overlay text for a result.
func Describe(res focus.Result, awayAfter float64) Text {
	t := Text{
		Score:  fmt.Sprintf("FOCUS: %.0f%%", res.FocusScore),
		Status: res.Status,
		State:  "State: " + strings.ToUpper(string(res.State)),
	}
	if res.AwayTimer > 0 {
		t.Away = fmt.Sprintf("Away: %.1fs / %.1fs", res.AwayTimer, awayAfter)
		t.Warn = res.AwayTimer >= awayAfter
	}
	return t
}

// Renderer draws results onto BGR frames.
type Renderer struct {
	// AwayAfter is the away threshold in seconds shown with the timer.
	AwayAfter float64
}

// New creates a renderer for the given away threshold.
func New(awayAfter float64) *Renderer {
	return &Renderer{AwayAfter: awayAfter}
}

// Draw annotates img in place.
func (r *Renderer) Draw(img *gocv.Mat, res focus.Result, ov focus.Overlay) {
	w, h := img.Cols(), img.Rows()
	c := ScoreColor(res.FocusScore)
	text := Describe(res, r.AwayAfter)

	gocv.PutText(img, text.Score, image.Pt(10, 40), gocv.FontHersheySimplex, 1.2, c, 3)
	gocv.PutText(img, text.Status, image.Pt(10, 80), gocv.FontHersheySimplex, 0.7, c, 2)
	gocv.PutText(img, text.State, image.Pt(10, 110), gocv.FontHersheySimplex, 0.6, white, 2)

	if p := ov.Pose; p != nil {
		gocv.Line(img, p.Origin, p.Axes[0], red, 2)
		gocv.Line(img, p.Origin, p.Axes[1], green, 2)
		gocv.Line(img, p.Origin, p.Axes[2], blue, 2)
	}

	if ov.FaceBox != nil {
		gocv.Rectangle(img, *ov.FaceBox, cyan, 2)
	}
	for i, b := range ov.AdditionalFaces {
		gocv.Rectangle(img, b, red, 2)
		gocv.PutText(img, fmt.Sprintf("FACE %d", i+2), image.Pt(b.Min.X, max(b.Min.Y-10, 0)), gocv.FontHersheySimplex, 0.5, red, 2)
	}

	for _, p := range ov.Pupils {
		gocv.Circle(img, p, 4, yellow, -1)
	}

	if len(ov.Devices) > 0 {
		polys := make([][]image.Point, 0, len(ov.Devices))
		for _, d := range ov.Devices {
			polys = append(polys, d[:])
		}
		pv := gocv.NewPointsVectorFromPoints(polys)
		gocv.Polylines(img, pv, true, amber, 2)
		pv.Close()
	}

	if text.Away != "" {
		gocv.PutText(img, text.Away, image.Pt(10, h-20), gocv.FontHersheySimplex, 0.7, TimerColor(res.AwayTimer, r.AwayAfter), 2)
		if text.Warn {
			gocv.PutText(img, AwayWarning, image.Pt(w/2-300, h/2), gocv.FontHersheySimplex, 1.2, red, 3)
		}
	}
}

// Encode compresses img as a JPEG. A quality outside 1..100 selects
// JPEGQuality.
func Encode(img gocv.Mat, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = JPEGQuality
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
