package detection

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/debug"
	"github.com/teslashibe/go-focus/pkg/frame"
)

// Cascade search parameters.
const (
	faceScale     = 1.1
	faceNeighbors = 5
	eyeScale      = 1.05
	eyeNeighbors  = 3
)

var (
	minFace = image.Pt(80, 80)
	minEye  = image.Pt(10, 10)
)

// Cascades runs the Haar frontal, profile and eye classifiers.
// It implements faces.CoarseDetector.
type Cascades struct {
	frontal gocv.CascadeClassifier
	profile gocv.CascadeClassifier
	eye     gocv.CascadeClassifier
	mu      sync.Mutex
	closed  bool
}

// NewCascades loads the three classifiers named in cfg.
func NewCascades(cfg Config) (*Cascades, error) {
	c := &Cascades{
		frontal: gocv.NewCascadeClassifier(),
		profile: gocv.NewCascadeClassifier(),
		eye:     gocv.NewCascadeClassifier(),
	}
	load := []struct {
		name string
		cc   *gocv.CascadeClassifier
	}{
		{cfg.FrontalCascade, &c.frontal},
		{cfg.ProfileCascade, &c.profile},
		{cfg.EyeCascade, &c.eye},
	}
	for _, l := range load {
		path := l.name
		if cfg.CascadeDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(cfg.CascadeDir, path)
		}
		if err := checkModel(path); err != nil {
			c.Close()
			return nil, err
		}
		if !l.cc.Load(path) {
			c.Close()
			return nil, fmt.Errorf("failed to load cascade from %s", path)
		}
	}
	return c, nil
}

// Available reports whether the classifiers are loaded.
func (c *Cascades) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Frontal finds frontal faces.
func (c *Cascades) Frontal(f *frame.Frame) ([]image.Rectangle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	gray, err := toGrayMat(f)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	found := c.frontal.DetectMultiScaleWithParams(gray, faceScale, faceNeighbors, 0, minFace, image.Point{})
	debug.DetectLog("frontal cascade", "faces", len(found))
	return found, nil
}

// Profile finds right-facing profiles, on the mirror image when mirrored
// is set. Rectangles refer to the image searched.
func (c *Cascades) Profile(f *frame.Frame, mirrored bool) ([]image.Rectangle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	gray, err := toGrayMat(f)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	src := gray
	if mirrored {
		flipped := gocv.NewMat()
		defer flipped.Close()
		gocv.Flip(gray, &flipped, 1)
		src = flipped
	}

	found := c.profile.DetectMultiScaleWithParams(src, faceScale, faceNeighbors, 0, minFace, image.Point{})
	debug.DetectLog("profile cascade", "faces", len(found), "mirrored", mirrored)
	return found, nil
}

// Eyes finds eyes inside face and returns them in frame coordinates.
func (c *Cascades) Eyes(f *frame.Frame, face image.Rectangle) ([]image.Rectangle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	gray, err := toGrayMat(f)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	roi := clip(face, gray.Cols(), gray.Rows())
	if roi.Empty() {
		return nil, nil
	}
	region := gray.Region(roi)
	defer region.Close()

	found := c.eye.DetectMultiScaleWithParams(region, eyeScale, eyeNeighbors, 0, minEye, image.Point{})
	eyes := make([]image.Rectangle, 0, len(found))
	for _, r := range found {
		eyes = append(eyes, r.Add(roi.Min))
	}
	return eyes, nil
}

// Close releases the classifiers.
func (c *Cascades) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.frontal.Close()
	c.profile.Close()
	c.eye.Close()
	return nil
}
