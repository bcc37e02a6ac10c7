package detection

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/debug"
	"github.com/teslashibe/go-focus/pkg/faces"
	"github.com/teslashibe/go-focus/pkg/frame"
)

// MeshConfig holds the face mesh network configuration
type MeshConfig struct {
	ModelPath string `yaml:"model_path"`
	InputSize int    `yaml:"input_size"`
	// Padding grows each face box on every side, as a fraction of its size.
	Padding  float64 `yaml:"padding"`
	MaxFaces int     `yaml:"max_faces"`
}

// DefaultMeshConfig returns production defaults for the 192×192 face mesh
func DefaultMeshConfig() MeshConfig {
	return MeshConfig{
		ModelPath: "models/face_mesh.onnx",
		InputSize: 192,
		Padding:   0.25,
		MaxFaces:  4,
	}
}

// ErrMeshOutput is returned when the network output is too short.
var ErrMeshOutput = errors.New("unexpected face mesh output")

// Mesh runs a face mesh ONNX network on a face crop.
type Mesh struct {
	net    gocv.Net
	config MeshConfig
	mu     sync.Mutex
	closed bool
}

// NewMesh loads the face mesh network
func NewMesh(cfg MeshConfig) (*Mesh, error) {
	if err := checkModel(cfg.ModelPath); err != nil {
		return nil, err
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load face mesh model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Mesh{net: net, config: cfg}, nil
}

// Landmarks runs the network on roi of img and returns landmarks normalized
// to the full image.
func (m *Mesh) Landmarks(img gocv.Mat, roi image.Rectangle) (faces.Landmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if roi.Empty() {
		return nil, fmt.Errorf("empty face region")
	}

	crop := img.Region(roi)
	defer crop.Close()

	size := m.config.InputSize
	blob := gocv.BlobFromImage(crop, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("mesh output: %w", err)
	}
	return parseMesh(data, size, roi, img.Cols(), img.Rows())
}

// parseMesh maps (x, y, z) triples in network input pixels back to
// coordinates normalized by the full image size. Depth uses the width scale.
func parseMesh(data []float32, size int, roi image.Rectangle, imgW, imgH int) (faces.Landmarks, error) {
	n := len(data) / 3
	switch {
	case n >= faces.RefinedMeshPoints:
		n = faces.RefinedMeshPoints
	case n >= faces.MeshPoints:
		n = faces.MeshPoints
	default:
		return nil, fmt.Errorf("%d values: %w", len(data), ErrMeshOutput)
	}

	sx := float64(roi.Dx()) / float64(size)
	sy := float64(roi.Dy()) / float64(size)
	w, h := float64(imgW), float64(imgH)

	out := make(faces.Landmarks, n)
	for i := range out {
		x := float64(data[3*i])
		y := float64(data[3*i+1])
		z := float64(data[3*i+2])
		out[i] = faces.Point3{
			X: (float64(roi.Min.X) + x*sx) / w,
			Y: (float64(roi.Min.Y) + y*sy) / h,
			Z: z * sx / w,
		}
	}
	return out, nil
}

// Close releases the network
func (m *Mesh) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.net.Close()
	}
	return nil
}

// MeshSource chains YuNet face regions into the mesh network.
// It implements faces.LandmarkSource.
type MeshSource struct {
	faces  *FaceDetector
	mesh   *Mesh
	config MeshConfig
}

// NewMeshSource loads both networks.
func NewMeshSource(face FaceConfig, mesh MeshConfig) (*MeshSource, error) {
	fd, err := NewFaceDetector(face)
	if err != nil {
		return nil, fmt.Errorf("face detector: %w", err)
	}
	m, err := NewMesh(mesh)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("face mesh: %w", err)
	}
	return &MeshSource{faces: fd, mesh: m, config: mesh}, nil
}

// Available reports whether both networks are loaded.
func (s *MeshSource) Available() bool {
	return s != nil && s.faces != nil && s.mesh != nil
}

// Landmarks returns one normalized landmark set per detected face.
func (s *MeshSource) Landmarks(f *frame.Frame) ([]faces.Landmarks, error) {
	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	boxes, err := s.faces.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("face regions: %w", err)
	}
	if limit := s.config.MaxFaces; limit > 0 && len(boxes) > limit {
		boxes = boxes[:limit]
	}

	sets := make([]faces.Landmarks, 0, len(boxes))
	for _, b := range boxes {
		roi := squareROI(b.Box, s.config.Padding, img.Cols(), img.Rows())
		lm, err := s.mesh.Landmarks(img, roi)
		if err != nil {
			return nil, err
		}
		sets = append(sets, lm)
	}
	debug.DetectLog("face mesh", "faces", len(sets))
	return sets, nil
}

// Close releases both networks.
func (s *MeshSource) Close() error {
	s.faces.Close()
	return s.mesh.Close()
}

// squareROI grows r by pad on every side into a square about its centre,
// clipped to the image.
func squareROI(r image.Rectangle, pad float64, w, h int) image.Rectangle {
	side := r.Dx()
	if r.Dy() > side {
		side = r.Dy()
	}
	half := int(float64(side)*(1+2*pad)) / 2
	cx := (r.Min.X + r.Max.X) / 2
	cy := (r.Min.Y + r.Max.Y) / 2
	return clip(image.Rect(cx-half, cy-half, cx+half, cy+half), w, h)
}
