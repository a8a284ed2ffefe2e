package patches

import (
	"image"
)

// Size is the side of a preprocessed patch fed to the model
const Size = 32

// RawSize is the side of a stored patch before augmentation
const RawSize = 64

// Patch is a square single-channel tile with values in [0,1], stored row-major.
// Patches are never mutated once built; transforms return new patches.
type Patch struct {
	Side int
	Pix  []float32
}

// New allocates a zero patch of the given side
func New(side int) Patch {
	return Patch{Side: side, Pix: make([]float32, side*side)}
}

// FromGray converts an 8-bit image to a patch, scaling to [0,1]
func FromGray(img *image.Gray) Patch {
	b := img.Bounds()
	if b.Dx() != b.Dy() {
		panic("patches: non-square image")
	}
	p := New(b.Dx())
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < b.Dx(); x++ {
			p.Pix[y*p.Side+x] = float32(row[x]) / 255
		}
	}
	return p
}

// At returns the value at column x, row y
func (p Patch) At(x, y int) float32 {
	return p.Pix[y*p.Side+x]
}

// Len is the number of values in the patch
func (p Patch) Len() int {
	return len(p.Pix)
}

// Pair is two views of the same physical point
type Pair struct {
	Anchor   Patch
	Positive Patch
}

// Batch holds aligned anchor and positive patches; Anchors[i] and Positives[i] form a pair.
type Batch struct {
	Anchors   []Patch
	Positives []Patch
}

// NewBatch splits pairs into aligned anchor/positive slices
func NewBatch(pairs []Pair) Batch {
	b := Batch{
		Anchors:   make([]Patch, 0, len(pairs)),
		Positives: make([]Patch, 0, len(pairs)),
	}
	for _, p := range pairs {
		b.Anchors = append(b.Anchors, p.Anchor)
		b.Positives = append(b.Positives, p.Positive)
	}
	return b
}

// Len is the number of pairs in the batch
func (b Batch) Len() int {
	return len(b.Anchors)
}
