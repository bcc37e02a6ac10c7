// Package landmarks talks to an out-of-process face landmark service, such
// as a MediaPipe sidecar, over HTTP/JSON.
package landmarks

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-focus/internal/httpc"
	"github.com/teslashibe/go-focus/pkg/debug"
	"github.com/teslashibe/go-focus/pkg/faces"
	"github.com/teslashibe/go-focus/pkg/frame"
)

// Config for the remote landmark service
type Config struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	JPEGQuality int           `yaml:"jpeg_quality"`
	MaxFaces    int           `yaml:"max_faces"`
}

// DefaultConfig returns defaults for a sidecar on localhost
func DefaultConfig() Config {
	return Config{
		URL:         "http://127.0.0.1:8765/landmarks",
		Timeout:     2 * time.Second,
		JPEGQuality: 90,
		MaxFaces:    4,
	}
}

// Request is the body posted for each frame.
type Request struct {
	Image    string `json:"image"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MaxFaces int    `json:"max_faces,omitempty"`
}

// Response lists one normalized landmark set per face.
type Response struct {
	Faces [][]faces.Point3 `json:"faces"`
}

// Remote implements faces.LandmarkSource against the sidecar.
type Remote struct {
	cfg    Config
	client *http.Client
}

// New creates a client; an empty URL yields an unavailable source.
func New(cfg Config) *Remote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = DefaultConfig().JPEGQuality
	}
	cfg.URL = strings.TrimSpace(cfg.URL)
	return &Remote{cfg: cfg, client: httpc.NewClient(cfg.Timeout)}
}

// Available reports whether a service URL is configured.
func (r *Remote) Available() bool {
	return r != nil && r.cfg.URL != ""
}

// Landmarks posts the frame as JPEG and returns the service's landmark sets.
func (r *Remote) Landmarks(f *frame.Frame) ([]faces.Landmarks, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()
	return r.LandmarksContext(ctx, f)
}

// LandmarksContext is Landmarks with a caller supplied context.
func (r *Remote) LandmarksContext(ctx context.Context, f *frame.Frame) ([]faces.Landmarks, error) {
	if !f.Valid() {
		return nil, frame.ErrEmptyFrame
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image(), &jpeg.Options{Quality: r.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	req := Request{
		Image:    base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:    f.Width(),
		Height:   f.Height(),
		MaxFaces: r.cfg.MaxFaces,
	}
	var resp Response
	if err := httpc.PostJSON(ctx, r.client, r.cfg.URL, req, &resp); err != nil {
		return nil, fmt.Errorf("landmark service: %w", err)
	}

	sets := make([]faces.Landmarks, 0, len(resp.Faces))
	for _, pts := range resp.Faces {
		sets = append(sets, faces.Landmarks(pts))
	}
	debug.DetectLog("remote landmarks", "faces", len(sets))
	return sets, nil
}
