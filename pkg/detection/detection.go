// Package detection wraps the OpenCV models behind the capabilities the
// focus engine consumes: Haar cascades, the YuNet face detector, a face
// mesh landmark network and a YOLO object detector.
package detection

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/frame"
)

// ErrClosed is returned by detectors used after Close.
var ErrClosed = errors.New("detector closed")

// Config names the model files. Empty paths disable the matching detector.
type Config struct {
	CascadeDir     string `yaml:"cascade_dir"`
	FrontalCascade string `yaml:"frontal_cascade"`
	ProfileCascade string `yaml:"profile_cascade"`
	EyeCascade     string `yaml:"eye_cascade"`

	Face   FaceConfig   `yaml:"face"`
	Mesh   MeshConfig   `yaml:"mesh"`
	Object ObjectConfig `yaml:"object"`
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		CascadeDir:     "models/haarcascades",
		FrontalCascade: "haarcascade_frontalface_default.xml",
		ProfileCascade: "haarcascade_profileface.xml",
		EyeCascade:     "haarcascade_eye.xml",
		Face:           DefaultFaceConfig(),
		Mesh:           DefaultMeshConfig(),
		Object:         DefaultObjectConfig(),
	}
}

// InDir returns a copy of c with every model file looked up in dir.
func (c Config) InDir(dir string) Config {
	rebase := func(p string) string {
		if p == "" {
			return ""
		}
		return filepath.Join(dir, filepath.Base(p))
	}
	c.CascadeDir = rebase(c.CascadeDir)
	c.Face.ModelPath = rebase(c.Face.ModelPath)
	c.Mesh.ModelPath = rebase(c.Mesh.ModelPath)
	c.Object.ModelPath = rebase(c.Object.ModelPath)
	return c
}

// toMat converts a frame to an 8-bit BGR Mat. The caller closes it.
func toMat(f *frame.Frame) (gocv.Mat, error) {
	if !f.Valid() {
		return gocv.NewMat(), frame.ErrEmptyFrame
	}
	mat, err := gocv.ImageToMatRGB(f.Image())
	if err != nil {
		return mat, fmt.Errorf("frame to mat: %w", err)
	}
	if mat.Empty() {
		return mat, frame.ErrEmptyFrame
	}
	return mat, nil
}

// toGrayMat converts the frame's luminance view to a single channel Mat.
func toGrayMat(f *frame.Frame) (gocv.Mat, error) {
	if !f.Valid() {
		return gocv.NewMat(), frame.ErrEmptyFrame
	}
	mat, err := gocv.ImageGrayToMatGray(f.Gray())
	if err != nil {
		return mat, fmt.Errorf("gray frame to mat: %w", err)
	}
	return mat, nil
}

func checkModel(path string) error {
	if path == "" {
		return errors.New("model path not set")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", path)
	}
	return nil
}

// clip limits r to the bounds of a w×h image.
func clip(r image.Rectangle, w, h int) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, w, h))
}
