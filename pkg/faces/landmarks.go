// Package faces locates the monitored face in a frame. A dense landmark
// source is tried first; coarse cascade detectors are the fallback.
package faces

import (
	"errors"
	"image"

	"github.com/teslashibe/go-focus/pkg/frame"
)

// Face mesh landmark indices (478-point refined topology).
const (
	NoseTip        = 1
	Chin           = 152
	LeftEyeOuter   = 33
	LeftEyeInner   = 133
	LeftEyeTop     = 159
	LeftEyeBottom  = 145
	RightEyeOuter  = 263
	RightEyeInner  = 362
	RightEyeTop    = 386
	RightEyeBottom = 374
	MouthLeft      = 61
	MouthRight     = 291
	LeftPupil      = 468
	RightPupil     = 473

	MeshPoints        = 468 // Base mesh without iris refinement
	RefinedMeshPoints = 478 // Mesh with iris landmarks
)

// ErrShortLandmarks is reported when a landmark set lacks mesh points.
var ErrShortLandmarks = errors.New("landmark set shorter than face mesh")

// Point3 is a landmark position. Sources report X and Y normalized to the
// frame size and Z on the same scale as X.
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Landmarks is one face's ordered landmark set.
type Landmarks []Point3

// Scale converts normalized landmarks to pixel space; depth is scaled by width.
func (l Landmarks) Scale(width, height int) []Point3 {
	w, h := float64(width), float64(height)
	out := make([]Point3, len(l))
	for i, p := range l {
		out[i] = Point3{X: p.X * w, Y: p.Y * h, Z: p.Z * w}
	}
	return out
}

// LandmarkSource is the dense landmark capability.
type LandmarkSource interface {
	// Available reports whether the source can produce landmarks at all.
	// An unavailable source routes every frame to the fallback path.
	Available() bool

	// Landmarks returns zero or more normalized landmark sets.
	Landmarks(f *frame.Frame) ([]Landmarks, error)
}

// CoarseDetector is the cascade-style fallback capability.
// All rectangles are in the pixel coordinates of the image searched.
type CoarseDetector interface {
	Available() bool

	// Frontal finds frontal faces.
	Frontal(f *frame.Frame) ([]image.Rectangle, error)

	// Profile finds right-facing profiles; with mirrored set the frame is
	// flipped horizontally first and rectangles refer to the flipped image.
	Profile(f *frame.Frame, mirrored bool) ([]image.Rectangle, error)

	// Eyes finds eyes inside face, returning frame coordinates.
	Eyes(f *frame.Frame, face image.Rectangle) ([]image.Rectangle, error)
}

// NoLandmarks is the LandmarkSource used when no landmark model is loaded.
type NoLandmarks struct{}

func (NoLandmarks) Available() bool { return false }

func (NoLandmarks) Landmarks(*frame.Frame) ([]Landmarks, error) { return nil, nil }

// NoCascades is the CoarseDetector used when no cascade files are loaded.
type NoCascades struct{}

func (NoCascades) Available() bool { return false }

func (NoCascades) Frontal(*frame.Frame) ([]image.Rectangle, error) { return nil, nil }

func (NoCascades) Profile(*frame.Frame, bool) ([]image.Rectangle, error) { return nil, nil }

func (NoCascades) Eyes(*frame.Frame, image.Rectangle) ([]image.Rectangle, error) { return nil, nil }
