package detection

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/debug"
)

// FaceConfig holds YuNet face detector configuration
type FaceConfig struct {
	ModelPath        string  `yaml:"model_path"`
	ConfidenceThresh float64 `yaml:"confidence"`
	NMSThresh        float64 `yaml:"nms"`
	TopK             int     `yaml:"top_k"`
	InputWidth       int     `yaml:"input_width"`
	InputHeight      int     `yaml:"input_height"`
}

// DefaultFaceConfig returns production defaults for YuNet
func DefaultFaceConfig() FaceConfig {
	return FaceConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		TopK:             5000,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// FaceBox is one YuNet detection in pixel coordinates.
type FaceBox struct {
	Box   image.Rectangle
	Score float64
}

// FaceDetector uses OpenCV's FaceDetectorYN to find face regions for the
// landmark network.
type FaceDetector struct {
	detector gocv.FaceDetectorYN
	config   FaceConfig
	mu       sync.Mutex // Protects inference
	closed   bool
}

// NewFaceDetector creates a YuNet face detector using GoCV's built-in FaceDetectorYN
func NewFaceDetector(cfg FaceConfig) (*FaceDetector, error) {
	if err := checkModel(cfg.ModelPath); err != nil {
		return nil, err
	}

	// Input size is updated per image
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &FaceDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect finds faces in a BGR image.
func (d *FaceDetector) Detect(img gocv.Mat) ([]FaceBox, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	// Rows: x, y, w, h, five landmark pairs, score
	boxes := make([]FaceBox, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		boxes = append(boxes, FaceBox{
			Box:   clip(image.Rect(x, y, x+w, y+h), img.Cols(), img.Rows()),
			Score: float64(faces.GetFloatAt(r, 14)),
		})
	}

	if len(boxes) > 0 {
		debug.DetectLog("yunet faces", "count", len(boxes))
	}
	return boxes, nil
}

// Close releases the detector resources
func (d *FaceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.detector.Close()
	}
	return nil
}
