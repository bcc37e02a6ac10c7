package detection

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-focus/pkg/faces"
	"github.com/teslashibe/go-focus/pkg/frame"
)

// findModel looks for a model file relative to the test location
func findModel(name string) string {
	candidates := []string{
		filepath.Join("models", name),
		filepath.Join("..", "..", "models", name),
		filepath.Join("..", "..", "..", "models", name),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func solidFrame(t *testing.T, w, h int) *frame.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	f, err := frame.New(img)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

func TestNewDetectorsInvalidPath(t *testing.T) {
	if _, err := NewFaceDetector(FaceConfig{ModelPath: "/nonexistent/yunet.onnx"}); err == nil {
		t.Error("expected error for missing YuNet model")
	}
	if _, err := NewMesh(MeshConfig{ModelPath: "/nonexistent/mesh.onnx", InputSize: 192}); err == nil {
		t.Error("expected error for missing mesh model")
	}
	if _, err := NewObjectDetector(ObjectConfig{ModelPath: "/nonexistent/yolo.onnx"}); err == nil {
		t.Error("expected error for missing YOLO model")
	}
	if _, err := NewMeshSource(FaceConfig{ModelPath: ""}, DefaultMeshConfig()); err == nil {
		t.Error("expected error for empty model path")
	}

	cfg := DefaultConfig()
	cfg.CascadeDir = "/nonexistent"
	if _, err := NewCascades(cfg); err == nil {
		t.Error("expected error for missing cascades")
	}
}

func TestParseMesh(t *testing.T) {
	data := make([]float32, faces.RefinedMeshPoints*3)
	// Landmark 0 at the centre of the network input
	data[0], data[1], data[2] = 96, 96, 19.2
	// Landmark 1 at the input origin
	data[3], data[4], data[5] = 0, 0, 0

	roi := image.Rect(100, 50, 300, 250)
	lm, err := parseMesh(data, 192, roi, 640, 480)
	if err != nil {
		t.Fatalf("parseMesh: %v", err)
	}
	if len(lm) != faces.RefinedMeshPoints {
		t.Fatalf("len = %d, want %d", len(lm), faces.RefinedMeshPoints)
	}

	approx := func(a, b float64) bool { return a-b < 1e-6 && b-a < 1e-6 }
	if !approx(lm[0].X, 200.0/640) || !approx(lm[0].Y, 150.0/480) {
		t.Errorf("landmark 0 = (%v, %v), want (%v, %v)", lm[0].X, lm[0].Y, 200.0/640, 150.0/480)
	}
	if !approx(lm[0].Z, 20.0/640) {
		t.Errorf("landmark 0 depth = %v, want %v", lm[0].Z, 20.0/640)
	}
	if !approx(lm[1].X, 100.0/640) || !approx(lm[1].Y, 50.0/480) {
		t.Errorf("landmark 1 = (%v, %v)", lm[1].X, lm[1].Y)
	}
}

func TestParseMeshSizes(t *testing.T) {
	tests := []struct {
		values int
		want   int
		err    bool
	}{
		{1404, faces.MeshPoints, false},
		{1434, faces.RefinedMeshPoints, false},
		{1440, faces.RefinedMeshPoints, false},
		{1000, 0, true},
		{0, 0, true},
	}
	for _, tt := range tests {
		lm, err := parseMesh(make([]float32, tt.values), 192, image.Rect(0, 0, 192, 192), 192, 192)
		if tt.err {
			if err == nil {
				t.Errorf("%d values: expected error", tt.values)
			}
			continue
		}
		if err != nil {
			t.Errorf("%d values: %v", tt.values, err)
			continue
		}
		if len(lm) != tt.want {
			t.Errorf("%d values: len = %d, want %d", tt.values, len(lm), tt.want)
		}
	}
}

func TestSquareROI(t *testing.T) {
	tests := []struct {
		name string
		box  image.Rectangle
		pad  float64
		want image.Rectangle
	}{
		{"square no pad", image.Rect(100, 100, 200, 200), 0, image.Rect(100, 100, 200, 200)},
		{"tall box padded", image.Rect(100, 100, 180, 200), 0.25, image.Rect(65, 75, 215, 225)},
		{"clipped at origin", image.Rect(0, 0, 100, 100), 0.25, image.Rect(0, 0, 125, 125)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := squareROI(tt.box, tt.pad, 640, 480); got != tt.want {
				t.Errorf("squareROI = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestYOLOParse(t *testing.T) {
	const anchors = 3
	channels := 4 + len(COCOClasses)
	data := make([]float32, channels*anchors)
	set := func(ch, i int, v float32) { data[ch*anchors+i] = v }

	// Anchor 0: cell phone (67) centred at (320, 320), 64×128
	set(0, 0, 320)
	set(1, 0, 320)
	set(2, 0, 64)
	set(3, 0, 128)
	set(4+67, 0, 0.9)
	// Anchor 1: below threshold
	set(0, 1, 100)
	set(1, 1, 100)
	set(2, 1, 10)
	set(3, 1, 10)
	set(4+65, 1, 0.1)

	d := &ObjectDetector{config: DefaultObjectConfig(), classes: COCOClasses}
	dets := d.parse(data, channels, anchors, 1280, 640)
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1", len(dets))
	}
	got := dets[0]
	if got.Label != "cell phone" {
		t.Errorf("label = %q", got.Label)
	}
	if want := image.Rect(576, 256, 704, 384); got.Box != want {
		t.Errorf("box = %v, want %v", got.Box, want)
	}
	if got.Confidence < 0.89 || got.Confidence > 0.91 {
		t.Errorf("confidence = %v", got.Confidence)
	}
}

func TestCascadesDetect(t *testing.T) {
	dir := findModel("haarcascades")
	if dir == "" {
		t.Skip("cascade files not found, skipping test")
	}
	cfg := DefaultConfig()
	cfg.CascadeDir = dir
	c, err := NewCascades(cfg)
	if err != nil {
		t.Fatalf("NewCascades: %v", err)
	}
	defer c.Close()

	f := solidFrame(t, 320, 240)
	found, err := c.Frontal(f)
	if err != nil {
		t.Fatalf("Frontal: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("solid image produced %d faces", len(found))
	}
	if _, err := c.Profile(f, true); err != nil {
		t.Fatalf("Profile: %v", err)
	}
	eyes, err := c.Eyes(f, image.Rect(400, 400, 500, 500))
	if err != nil || len(eyes) != 0 {
		t.Errorf("Eyes outside frame = %v, %v", eyes, err)
	}

	c.Close()
	if c.Available() {
		t.Error("closed cascades still available")
	}
	if _, err := c.Frontal(f); err != ErrClosed {
		t.Errorf("after Close err = %v, want ErrClosed", err)
	}
}

func TestMeshSourceSolidImage(t *testing.T) {
	face := findModel("face_detection_yunet.onnx")
	mesh := findModel("face_mesh.onnx")
	if face == "" || mesh == "" {
		t.Skip("face models not found, skipping test")
	}
	fc := DefaultFaceConfig()
	fc.ModelPath = face
	mc := DefaultMeshConfig()
	mc.ModelPath = mesh

	src, err := NewMeshSource(fc, mc)
	if err != nil {
		t.Fatalf("NewMeshSource: %v", err)
	}
	defer src.Close()

	sets, err := src.Landmarks(solidFrame(t, 320, 240))
	if err != nil {
		t.Fatalf("Landmarks: %v", err)
	}
	if len(sets) != 0 {
		t.Errorf("solid image produced %d landmark sets", len(sets))
	}
}

func TestObjectDetectorSolidImage(t *testing.T) {
	model := findModel("yolov8n.onnx")
	if model == "" {
		t.Skip("YOLO model not found, skipping test")
	}
	cfg := DefaultObjectConfig()
	cfg.ModelPath = model
	d, err := NewObjectDetector(cfg)
	if err != nil {
		t.Fatalf("NewObjectDetector: %v", err)
	}
	defer d.Close()

	if len(d.Classes()) != 80 {
		t.Errorf("classes = %d, want 80", len(d.Classes()))
	}
	if _, err := d.Detect(solidFrame(t, 320, 240)); err != nil {
		t.Fatalf("Detect: %v", err)
	}
}

func TestConfigInDir(t *testing.T) {
	cfg := DefaultConfig().InDir("/opt/focus")
	if cfg.CascadeDir != filepath.Join("/opt/focus", "haarcascades") {
		t.Errorf("CascadeDir = %q", cfg.CascadeDir)
	}
	if cfg.Object.ModelPath != filepath.Join("/opt/focus", "yolov8n.onnx") {
		t.Errorf("Object.ModelPath = %q", cfg.Object.ModelPath)
	}
	if cfg.FrontalCascade != "haarcascade_frontalface_default.xml" {
		t.Errorf("cascade file names must stay relative, got %q", cfg.FrontalCascade)
	}
}
