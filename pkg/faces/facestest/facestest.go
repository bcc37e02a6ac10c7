// Package facestest provides scripted face capabilities and synthetic
// landmark sets for tests.
package facestest

import (
	"image"
	"math"

	"github.com/teslashibe/go-focus/pkg/faces"
	"github.com/teslashibe/go-focus/pkg/frame"
)

// Mesh returns a 478-point landmark set for a frontal face centred at
// (cx, cy) with width size, all in normalized coordinates. Pupils sit in the
// middle of each eye and every depth is zero.
func Mesh(cx, cy, size float64) faces.Landmarks {
	pts := make(faces.Landmarks, faces.RefinedMeshPoints)

	// Outline ellipse fixes the bounding box.
	rx, ry := size/2, size*0.6
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(len(pts))
		pts[i] = faces.Point3{X: cx + rx*math.Cos(a), Y: cy + ry*math.Sin(a)}
	}

	set := func(i int, x, y float64) { pts[i] = faces.Point3{X: x, Y: y} }
	eyeY := cy - 0.15*size
	lid := 0.03 * size

	set(faces.NoseTip, cx, cy)
	set(faces.Chin, cx, cy+0.5*size)
	set(faces.MouthLeft, cx-0.15*size, cy+0.25*size)
	set(faces.MouthRight, cx+0.15*size, cy+0.25*size)

	set(faces.LeftEyeOuter, cx-0.3*size, eyeY)
	set(faces.LeftEyeInner, cx-0.1*size, eyeY)
	set(faces.LeftEyeTop, cx-0.2*size, eyeY-lid)
	set(faces.LeftEyeBottom, cx-0.2*size, eyeY+lid)
	set(faces.LeftPupil, cx-0.2*size, eyeY)

	set(faces.RightEyeOuter, cx+0.3*size, eyeY)
	set(faces.RightEyeInner, cx+0.1*size, eyeY)
	set(faces.RightEyeTop, cx+0.2*size, eyeY-lid)
	set(faces.RightEyeBottom, cx+0.2*size, eyeY+lid)
	set(faces.RightPupil, cx+0.2*size, eyeY)

	return pts
}

// LookSideways shifts both pupils horizontally by frac of the eye width.
func LookSideways(l faces.Landmarks, frac float64) faces.Landmarks {
	out := append(faces.Landmarks(nil), l...)
	lw := out[faces.LeftEyeOuter].X - out[faces.LeftEyeInner].X
	rw := out[faces.RightEyeOuter].X - out[faces.RightEyeInner].X
	out[faces.LeftPupil].X += frac * lw
	out[faces.RightPupil].X += frac * rw
	return out
}

// Landmarks is a scripted faces.LandmarkSource.
type Landmarks struct {
	Sets        []faces.Landmarks
	Err         error
	Panic       bool
	Unavailable bool
	Calls       int
}

func (l *Landmarks) Available() bool { return !l.Unavailable }

func (l *Landmarks) Landmarks(*frame.Frame) ([]faces.Landmarks, error) {
	l.Calls++
	if l.Panic {
		panic("scripted landmark failure")
	}
	return l.Sets, l.Err
}

// Cascades is a scripted faces.CoarseDetector.
type Cascades struct {
	FrontalBoxes  []image.Rectangle
	ProfileBoxes  []image.Rectangle
	MirroredBoxes []image.Rectangle
	EyeBoxes      []image.Rectangle
	Err           error
	Unavailable   bool
	Calls         int
}

func (c *Cascades) Available() bool { return !c.Unavailable }

func (c *Cascades) Frontal(*frame.Frame) ([]image.Rectangle, error) {
	c.Calls++
	return c.FrontalBoxes, c.Err
}

func (c *Cascades) Profile(_ *frame.Frame, mirrored bool) ([]image.Rectangle, error) {
	if mirrored {
		return c.MirroredBoxes, nil
	}
	return c.ProfileBoxes, nil
}

func (c *Cascades) Eyes(*frame.Frame, image.Rectangle) ([]image.Rectangle, error) {
	return c.EyeBoxes, nil
}
