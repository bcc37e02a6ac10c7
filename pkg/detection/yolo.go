package detection

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/debug"
	"github.com/teslashibe/go-focus/pkg/device"
	"github.com/teslashibe/go-focus/pkg/frame"
)

// ObjectConfig holds YOLO detector configuration
type ObjectConfig struct {
	ModelPath        string  `yaml:"model_path"`
	ConfidenceThresh float32 `yaml:"confidence"`
	NMSThresh        float32 `yaml:"nms"`
	InputWidth       int     `yaml:"input_width"`
	InputHeight      int     `yaml:"input_height"`
	// Classes overrides the COCO label table for custom exports.
	Classes []string `yaml:"classes"`
}

// DefaultObjectConfig returns production defaults for YOLOv8n
func DefaultObjectConfig() ObjectConfig {
	return ObjectConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.25,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// ObjectDetector uses YOLOv8 for general object detection.
// It implements device.ObjectDetector and device.ClassLister.
type ObjectDetector struct {
	net       gocv.Net
	config    ObjectConfig
	classes   []string
	mu        sync.Mutex
	inputSize image.Point
	closed    bool
}

// NewObjectDetector creates a new YOLO object detector
func NewObjectDetector(cfg ObjectConfig) (*ObjectDetector, error) {
	if err := checkModel(cfg.ModelPath); err != nil {
		return nil, err
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	classes := cfg.Classes
	if len(classes) == 0 {
		classes = COCOClasses
	}

	return &ObjectDetector{
		net:       net,
		config:    cfg,
		classes:   classes,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Available reports whether the network is loaded.
func (d *ObjectDetector) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Classes returns the label table.
func (d *ObjectDetector) Classes() []string {
	return d.classes
}

// Detect finds objects in the frame
func (d *ObjectDetector) Detect(f *frame.Frame) ([]device.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Output shape [1, 4+classes, anchors]
	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected YOLO output dims %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("yolo output: %w", err)
	}

	dets := d.parse(data, dims[1], dims[2], img.Cols(), img.Rows())
	if len(dets) > 0 {
		debug.DetectLog("yolo objects", "count", len(dets))
	}
	return dets, nil
}

// parse decodes a channel-major YOLOv8 tensor: rows 0-3 hold the box centre
// and size in input pixels, the remaining rows hold per-class scores.
func (d *ObjectDetector) parse(data []float32, channels, anchors, imgW, imgH int) []device.Detection {
	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	sx := float32(imgW) / float32(d.config.InputWidth)
	sy := float32(imgH) / float32(d.config.InputHeight)

	for i := 0; i < anchors; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < channels; c++ {
			if score := data[c*anchors+i]; score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}
		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		x1 := int((cx - w/2) * sx)
		y1 := int((cy - h/2) * sy)
		x2 := int((cx + w/2) * sx)
		y2 := int((cy + h/2) * sy)

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)

	dets := make([]device.Detection, 0, len(indices))
	for _, idx := range indices {
		label := fmt.Sprintf("class_%d", classIDs[idx])
		if classIDs[idx] < len(d.classes) {
			label = d.classes[classIDs[idx]]
		}
		dets = append(dets, device.Detection{
			Label:      label,
			Confidence: float64(confidences[idx]),
			Box:        clip(boxes[idx], imgW, imgH),
		})
	}
	return dets
}

// Close releases the detector resources
func (d *ObjectDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.net.Close()
	}
	return nil
}

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
