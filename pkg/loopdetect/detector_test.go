package loopdetect

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"
	"time"
)

var epoch = time.Unix(1_700_000_000, 0)

func feed(d *Detector, hashes []uint64, interval time.Duration) State {
	var st State
	for i, h := range hashes {
		st = d.Update(epoch.Add(time.Duration(i)*interval), h)
	}
	return st
}

func repeat(h uint64, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = h
	}
	return out
}

func TestHamming(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"equal", 0xDEADBEEF, 0xDEADBEEF, 0},
		{"one bit", 0b1000, 0b0000, 1},
		{"all bits", 0, math.MaxUint64, 64},
		{"mixed", 0xF0F0, 0x0FF0, 8},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Hamming(tc.a, tc.b); got != tc.want {
				t.Errorf("Hamming(a,b): got %d, want %d", got, tc.want)
			}
			if Hamming(tc.a, tc.b) != Hamming(tc.b, tc.a) {
				t.Error("Hamming is not symmetric")
			}
		})
	}
}

func TestHamming_ZeroIffEqual(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		a, b := r.Uint64(), r.Uint64()
		if Hamming(a, a) != 0 {
			t.Fatalf("Hamming(%x,%x) != 0", a, a)
		}
		if a != b && Hamming(a, b) == 0 {
			t.Fatalf("Hamming(%x,%x) == 0 for distinct hashes", a, b)
		}
	}
}

func TestHash(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 90, 80))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	if got := Hash(flat); got != 0 {
		t.Errorf("flat image: got %x, want 0", got)
	}

	// Brightness increasing left to right sets every bit.
	ramp := image.NewGray(image.Rect(0, 0, 90, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 90; x++ {
			ramp.SetGray(x, y, color.Gray{Y: uint8(x * 2)})
		}
	}
	if got := Hash(ramp); got != math.MaxUint64 {
		t.Errorf("ramp image: got %x, want all ones", got)
	}

	if Hash(nil) != 0 || Hash(image.NewGray(image.Rect(0, 0, 0, 0))) != 0 {
		t.Error("empty image should hash to 0")
	}
}

func TestHash_NearDuplicatesStayClose(t *testing.T) {
	base := image.NewGray(image.Rect(0, 0, 180, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 180; x++ {
			base.SetGray(x, y, color.Gray{Y: uint8((x*x + y*3) % 251)})
		}
	}
	noisy := image.NewGray(base.Bounds())
	copy(noisy.Pix, base.Pix)
	noisy.SetGray(10, 10, color.Gray{Y: 255})

	if d := Hamming(Hash(base), Hash(noisy)); d > DefaultConfig().ToleranceBits {
		t.Errorf("single-pixel change moved hash by %d bits", d)
	}
}

// Identical hash at 10 fps for 6 seconds is a loop.
func TestDetector_IdenticalHashesDetected(t *testing.T) {
	d := New(DefaultConfig())
	st := feed(d, repeat(0xABCDEF0123456789, 60), 100*time.Millisecond)

	if !st.Detected {
		t.Fatalf("expected loop detection, got %+v", st)
	}
	if math.Abs(st.HashReuseRatio-1.0) > 1e-9 {
		t.Errorf("reuse ratio: got %v, want 1.0", st.HashReuseRatio)
	}
	if st.DominantClusterFrames != 60 || st.UniqueClusterCount != 1 {
		t.Errorf("clusters: got frames=%d unique=%d", st.DominantClusterFrames, st.UniqueClusterCount)
	}
	if st.Confidence < 0.6 || st.Confidence > 1 {
		t.Errorf("confidence: got %v", st.Confidence)
	}
	if st.LastHash == nil || *st.LastHash != 0xABCDEF0123456789 {
		t.Errorf("last hash: got %v", st.LastHash)
	}
	if st.WindowSeconds != 12 {
		t.Errorf("window: got %v, want 12", st.WindowSeconds)
	}
}

func TestDetector_RandomHashesNotDetected(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	hashes := make([]uint64, 60)
	for i := range hashes {
		hashes[i] = r.Uint64()
	}

	d := New(DefaultConfig())
	st := feed(d, hashes, 100*time.Millisecond)
	if st.Detected {
		t.Fatalf("random hashes flagged as loop: %+v", st)
	}
	if st.HashReuseRatio > 0.1 {
		t.Errorf("reuse ratio: got %v, want small", st.HashReuseRatio)
	}
}

func TestDetector_RequiresMinimumSamples(t *testing.T) {
	d := New(DefaultConfig())
	for i := 0; i < 44; i++ {
		st := d.Update(epoch.Add(time.Duration(i)*200*time.Millisecond), 42)
		if st.Detected {
			t.Fatalf("detected with %d samples", st.SamplesConsidered)
		}
		if st.Confidence != 0 || st.UniqueClusterCount != st.SamplesConsidered {
			t.Fatalf("under-sampled state: %+v", st)
		}
	}
}

// At 2 fps the 12 s window never holds 45 samples, however repetitive.
func TestDetector_SparseStreamNeverDetected(t *testing.T) {
	d := New(DefaultConfig())
	for i := 0; i < 120; i++ {
		st := d.Update(epoch.Add(time.Duration(i)*500*time.Millisecond), 7)
		if st.Detected {
			t.Fatalf("detected at sample %d with %d in window", i, st.SamplesConsidered)
		}
	}
}

func TestDetector_BriefStaticFrameIsNotALoop(t *testing.T) {
	d := New(DefaultConfig())
	st := feed(d, repeat(99, 55), 50*time.Millisecond) // spans 2.7s

	if st.Detected {
		t.Fatalf("short static run flagged: %+v", st)
	}
	if st.Confidence != 0 {
		t.Errorf("confidence: got %v, want 0", st.Confidence)
	}
}

func TestDetector_WindowEviction(t *testing.T) {
	d := New(DefaultConfig())
	st := feed(d, repeat(1, 30), time.Second)

	// Entries with now-ts <= 12s: ts in [17s, 29s].
	if st.SamplesConsidered != 13 {
		t.Errorf("samples: got %d, want 13", st.SamplesConsidered)
	}
	now := epoch.Add(29 * time.Second)
	for _, s := range d.history {
		if now.Sub(s.at) > d.cfg.Window {
			t.Errorf("stale entry retained: %v", now.Sub(s.at))
		}
	}
}

func TestDetector_ScoreDecaysAfterLoopEnds(t *testing.T) {
	d := New(DefaultConfig())
	feed(d, repeat(5, 60), 100*time.Millisecond)
	peak := d.Score()

	r := rand.New(rand.NewSource(3))
	start := epoch.Add(6 * time.Second)
	var st State
	for i := 0; i < 200; i++ {
		st = d.Update(start.Add(time.Duration(i)*100*time.Millisecond), r.Uint64())
	}
	if st.Detected {
		t.Error("still detected long after the loop ended")
	}
	if d.Score() >= peak {
		t.Errorf("score did not decay: %v >= %v", d.Score(), peak)
	}
}

func TestDetector_GreedyFirstMatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 3
	d := New(cfg)

	// 0x3F is 6 bits from both 0 and 0xFFF; it joins the first cluster (0),
	// while 0xFFF (12 bits from 0) starts its own.
	d.Update(epoch, 0)
	d.Update(epoch.Add(time.Second), 0xFFF)
	st := d.Update(epoch.Add(2*time.Second), 0x3F)

	if st.UniqueClusterCount != 2 {
		t.Fatalf("clusters: got %d, want 2", st.UniqueClusterCount)
	}
	if st.DominantClusterFrames != 2 || st.DominantClusterDuration != 2 {
		t.Errorf("dominant: frames=%d duration=%v", st.DominantClusterFrames, st.DominantClusterDuration)
	}
}

func TestDetector_Observe(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	d := New(DefaultConfig())
	st := d.Observe(img, epoch)
	if st.SamplesConsidered != 1 || st.LastHash == nil || *st.LastHash != 0 {
		t.Errorf("unexpected state: %+v", st)
	}
	if d.State().LastUpdated != float64(epoch.Unix()) {
		t.Errorf("last updated: got %v", d.State().LastUpdated)
	}
}
