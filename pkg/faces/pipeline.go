package faces

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/teslashibe/go-focus/pkg/frame"
)

// Outcome tags the result of a detection stage.
type Outcome int

const (
	NotFound Outcome = iota
	Found
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Failed:
		return "failed"
	default:
		return "not_found"
	}
}

// MeshResult is the outcome of the landmark stage.
// Faces are ranked best first; Faces[0] is the monitored face.
type MeshResult struct {
	Outcome Outcome
	Faces   []Candidate
	Err     error
}

// Primary returns the best-ranked face. Only valid when Outcome is Found.
func (r MeshResult) Primary() Candidate {
	return r.Faces[0]
}

// Additional returns every face other than the primary one.
func (r MeshResult) Additional() []Candidate {
	if len(r.Faces) < 2 {
		return nil
	}
	return r.Faces[1:]
}

// CascadeResult is the outcome of the fallback stage.
type CascadeResult struct {
	Faces        []Candidate       // Frontal faces, ranked best first
	ProfileRight []image.Rectangle // Profiles found on the frame as captured
	ProfileLeft  []image.Rectangle // Profiles found on the mirrored frame, re-mapped
	Eyes         []image.Rectangle // Eyes inside Faces[0], frame coordinates
	Err          error
}

// Pipeline runs the landmark stage and the cascade fallback stage.
type Pipeline struct {
	landmarks LandmarkSource
	coarse    CoarseDetector
	log       *slog.Logger

	warnedLandmarks bool
	warnedCoarse    bool
}

// NewPipeline builds a pipeline; nil capabilities are replaced by no-ops.
func NewPipeline(landmarks LandmarkSource, coarse CoarseDetector, logger *slog.Logger) *Pipeline {
	if landmarks == nil {
		landmarks = NoLandmarks{}
	}
	if coarse == nil {
		coarse = NoCascades{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{landmarks: landmarks, coarse: coarse, log: logger}
}

// LandmarksAvailable reports whether the primary stage can run.
func (p *Pipeline) LandmarksAvailable() bool {
	return p.landmarks.Available()
}

// Primary runs the dense landmark stage. Errors and panics raised by the
// landmark source are returned as a Failed outcome.
func (p *Pipeline) Primary(f *frame.Frame) (res MeshResult) {
	if !p.landmarks.Available() {
		if !p.warnedLandmarks {
			p.log.Warn("landmark source unavailable, using cascade fallback for this session")
			p.warnedLandmarks = true
		}
		return MeshResult{Outcome: NotFound}
	}

	defer func() {
		if r := recover(); r != nil {
			res = MeshResult{Outcome: Failed, Err: fmt.Errorf("landmark source panic: %v", r)}
		}
	}()

	sets, err := p.landmarks.Landmarks(f)
	if err != nil {
		return MeshResult{Outcome: Failed, Err: fmt.Errorf("landmarks: %w", err)}
	}
	if len(sets) == 0 {
		return MeshResult{Outcome: NotFound}
	}

	w, h := f.Width(), f.Height()
	cands := make([]Candidate, 0, len(sets))
	for i, set := range sets {
		if len(set) < MeshPoints {
			return MeshResult{Outcome: Failed, Err: fmt.Errorf("face %d has %d points: %w", i, len(set), ErrShortLandmarks)}
		}
		pts := set.Scale(w, h)
		cands = append(cands, Candidate{Box: LandmarkBox(pts, w, h), Points: pts})
	}

	return MeshResult{Outcome: Found, Faces: Rank(cands, w, h)}
}

// Fallback runs the frontal cascade and the profile cascade on the frame and
// on its mirror image, so both left- and right-facing profiles are covered.
func (p *Pipeline) Fallback(f *frame.Frame) (res CascadeResult) {
	if !p.coarse.Available() {
		if !p.warnedCoarse {
			p.log.Warn("cascade detectors unavailable, fallback reports no face")
			p.warnedCoarse = true
		}
		return CascadeResult{}
	}

	defer func() {
		if r := recover(); r != nil {
			res = CascadeResult{Err: fmt.Errorf("cascade panic: %v", r)}
		}
	}()

	frontal, err := p.coarse.Frontal(f)
	if err != nil {
		return CascadeResult{Err: fmt.Errorf("frontal cascade: %w", err)}
	}
	right, err := p.coarse.Profile(f, false)
	if err != nil {
		return CascadeResult{Err: fmt.Errorf("profile cascade: %w", err)}
	}
	mirrored, err := p.coarse.Profile(f, true)
	if err != nil {
		return CascadeResult{Err: fmt.Errorf("mirrored profile cascade: %w", err)}
	}

	w, h := f.Width(), f.Height()
	res.ProfileRight = right
	res.ProfileLeft = make([]image.Rectangle, 0, len(mirrored))
	for _, r := range mirrored {
		res.ProfileLeft = append(res.ProfileLeft, Unmirror(r, w))
	}

	if len(frontal) == 0 {
		return res
	}

	cands := make([]Candidate, len(frontal))
	for i, r := range frontal {
		cands[i] = Candidate{Box: r}
	}
	res.Faces = Rank(cands, w, h)

	eyes, err := p.coarse.Eyes(f, res.Faces[0].Box)
	if err != nil {
		p.log.Debug("eye cascade failed", "error", err)
		eyes = nil
	}
	res.Eyes = eyes
	return res
}

// Unmirror maps a rectangle found on a horizontally flipped frame of the
// given width back to the original frame: x' = width - x - w.
func Unmirror(r image.Rectangle, width int) image.Rectangle {
	return image.Rect(width-r.Max.X, r.Min.Y, width-r.Min.X, r.Max.Y)
}
