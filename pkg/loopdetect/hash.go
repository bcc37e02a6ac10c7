package loopdetect

import (
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

// HashBits is the length of a frame fingerprint.
const HashBits = 64

// Hash computes a difference hash (dHash) of a grayscale image: the frame is
// reduced to 9×8 and each bit records whether a pixel is brighter than its
// left neighbour. Bits are packed row-major, most significant bit first.
// An empty image hashes to 0.
func Hash(gray *image.Gray) uint64 {
	if gray == nil || gray.Bounds().Empty() {
		return 0
	}

	small := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	var h uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			h <<= 1
			if small.GrayAt(x+1, y).Y > small.GrayAt(x, y).Y {
				h |= 1
			}
		}
	}
	return h
}

// Hamming returns the number of differing bits between two hashes.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
