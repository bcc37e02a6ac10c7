package faces

import (
	"image"
	"math"
	"sort"
)

// Ranking weights for choosing the monitored face.
const (
	CenterWeight  = 0.6
	AreaWeight    = 0.4
	FullAreaRatio = 0.15 // Faces covering this share of the frame get full area credit
)

// Candidate is one detected face.
type Candidate struct {
	Box    image.Rectangle
	Points []Point3 // Pixel-space landmarks; nil for cascade detections
	Score  float64
}

// Point returns landmark i of the candidate.
func (c Candidate) Point(i int) Point3 {
	return c.Points[i]
}

// HasLandmarks reports whether the candidate carries a full face mesh.
func (c Candidate) HasLandmarks() bool {
	return len(c.Points) >= MeshPoints
}

// RankScore blends how central and how large a face box is:
// 0.6*centerProximity + 0.4*min(areaRatio/0.15, 1).
func RankScore(box image.Rectangle, width, height int) float64 {
	w, h := float64(width), float64(height)
	cx := float64(box.Min.X+box.Max.X) / 2
	cy := float64(box.Min.Y+box.Max.Y) / 2
	dist := math.Hypot(cx-w/2, cy-h/2)

	center := math.Max(0, 1-dist/math.Max(w, h))

	area := float64(box.Dx()) * float64(box.Dy())
	ratio := area / math.Max(w*h, 1)
	areaScore := math.Min(math.Max(ratio/FullAreaRatio, 0), 1)

	return CenterWeight*center + AreaWeight*areaScore
}

// Rank scores candidates and sorts them best first. Ties keep input order.
func Rank(cands []Candidate, width, height int) []Candidate {
	for i := range cands {
		cands[i].Score = RankScore(cands[i].Box, width, height)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Score > cands[j].Score
	})
	return cands
}

// LandmarkBox bounds pixel-space landmarks, clamped to the frame.
func LandmarkBox(points []Point3, width, height int) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	// Not canonicalized: a face entirely off-frame yields an empty box.
	return image.Rectangle{
		Min: image.Pt(int(math.Max(minX, 0)), int(math.Max(minY, 0))),
		Max: image.Pt(int(math.Min(maxX, float64(width-1))), int(math.Min(maxY, float64(height-1)))),
	}
}
