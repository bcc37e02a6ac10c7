// Package loopdetect flags replayed or looping camera feeds by clustering
// perceptual frame hashes over a sliding time window.
package loopdetect

import (
	"image"
	"time"
)

// Config holds loop detection tuning.
type Config struct {
	Window        time.Duration `yaml:"window"`         // Sliding window length
	ToleranceBits int           `yaml:"tolerance_bits"` // Max Hamming distance to join a cluster
	MinSamples    int           `yaml:"min_samples"`    // Samples required before clustering
	MinDuration   time.Duration `yaml:"min_duration"`   // Dominant cluster must span at least this

	IdleDecay       float64 `yaml:"idle_decay"`       // Score multiplier while under-sampled
	ScoreMomentum   float64 `yaml:"score_momentum"`   // Weight of the previous running score
	DetectThreshold float64 `yaml:"detect_threshold"` // Running score needed to report a loop
	ReuseFloor      float64 `yaml:"reuse_floor"`      // Reuse ratio at which confidence starts
	ReuseSpan       float64 `yaml:"reuse_span"`       // Reuse ratio span mapped onto 0..1
}

// DefaultConfig returns the tuned production defaults.
func DefaultConfig() Config {
	return Config{
		Window:        12 * time.Second,
		ToleranceBits: 6,
		MinSamples:    45,
		MinDuration:   3 * time.Second,

		IdleDecay:       0.92,
		ScoreMomentum:   0.85,
		DetectThreshold: 0.6,
		ReuseFloor:      0.6,
		ReuseSpan:       0.35,
	}
}

// State is the observable loop verdict after the latest update.
type State struct {
	Detected                bool    `json:"detected"`
	Confidence              float64 `json:"confidence"`
	HashReuseRatio          float64 `json:"hash_reuse_ratio"`
	SamplesConsidered       int     `json:"samples_considered"`
	WindowSeconds           float64 `json:"window_seconds"`
	DominantClusterFrames   int     `json:"dominant_cluster_frames"`
	DominantClusterDuration float64 `json:"dominant_cluster_duration"`
	UniqueClusterCount      int     `json:"unique_cluster_count"`
	LastUpdated             float64 `json:"last_updated"`
	LastHash                *uint64 `json:"last_hash"`
}

type sample struct {
	at   time.Time
	hash uint64
}

type cluster struct {
	hash      uint64
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// Detector keeps the rolling hash history of one stream.
// It is not safe for concurrent use.
type Detector struct {
	cfg     Config
	history []sample
	score   float64
	state   State
}

// New creates a loop detector.
func New(cfg Config) *Detector {
	return &Detector{
		cfg:   cfg,
		state: State{WindowSeconds: cfg.Window.Seconds()},
	}
}

// Observe hashes a grayscale frame captured at ts and updates the verdict.
func (d *Detector) Observe(gray *image.Gray, ts time.Time) State {
	return d.Update(ts, Hash(gray))
}

// Update records a precomputed frame hash captured at ts.
func (d *Detector) Update(ts time.Time, hash uint64) State {
	d.history = append(d.history, sample{at: ts, hash: hash})
	d.evict(ts)

	n := len(d.history)
	h := hash
	base := State{
		SamplesConsidered: n,
		WindowSeconds:     d.cfg.Window.Seconds(),
		LastUpdated:       epochSeconds(ts),
		LastHash:          &h,
	}

	if n < d.cfg.MinSamples {
		d.score = clamp01(d.score * d.cfg.IdleDecay)
		base.UniqueClusterCount = n
		d.state = base
		return d.state
	}

	clusters := d.cluster()
	dominant := clusters[0]
	for _, c := range clusters[1:] {
		if c.count > dominant.count {
			dominant = c
		}
	}

	reuse := float64(dominant.count) / float64(n)
	duration := dominant.lastSeen.Sub(dominant.firstSeen)

	raw := clamp01((reuse - d.cfg.ReuseFloor) / d.cfg.ReuseSpan)
	if duration < d.cfg.MinDuration {
		raw = 0
	}

	d.score = clamp01(d.cfg.ScoreMomentum*d.score + (1-d.cfg.ScoreMomentum)*raw)
	detected := d.score >= d.cfg.DetectThreshold && raw > 0

	base.Detected = detected
	base.Confidence = raw
	if detected {
		base.Confidence = d.score
	}
	base.HashReuseRatio = reuse
	base.DominantClusterFrames = dominant.count
	base.DominantClusterDuration = duration.Seconds()
	base.UniqueClusterCount = len(clusters)

	d.state = base
	return d.state
}

// State returns the verdict from the latest update.
func (d *Detector) State() State {
	return d.state
}

// Score returns the running (smoothed) loop confidence.
func (d *Detector) Score() float64 {
	return d.score
}

// evict drops samples older than the window, keeping now-ts <= window.
func (d *Detector) evict(now time.Time) {
	i := 0
	for i < len(d.history) && now.Sub(d.history[i].at) > d.cfg.Window {
		i++
	}
	if i > 0 {
		d.history = append(d.history[:0], d.history[i:]...)
	}
}

// cluster groups the retained hashes greedily in arrival order: each hash
// joins the first cluster whose representative is within tolerance.
// Membership depends on order; thresholds were tuned against this behaviour.
func (d *Detector) cluster() []*cluster {
	var clusters []*cluster
	for _, s := range d.history {
		var match *cluster
		for _, c := range clusters {
			if Hamming(c.hash, s.hash) <= d.cfg.ToleranceBits {
				match = c
				break
			}
		}
		if match == nil {
			clusters = append(clusters, &cluster{hash: s.hash, count: 1, firstSeen: s.at, lastSeen: s.at})
			continue
		}
		match.count++
		if s.at.Before(match.firstSeen) {
			match.firstSeen = s.at
		}
		if s.at.After(match.lastSeen) {
			match.lastSeen = s.at
		}
	}
	return clusters
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
