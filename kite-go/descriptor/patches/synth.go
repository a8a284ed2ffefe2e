package patches

import (
	"math/rand"
)

// SynthOptions control Synthesize
type SynthOptions struct {
	Name      string
	Points    int
	Views     int
	Side      int
	Negatives int
	Noise     float64
}

// Synthesize builds a bank of smooth random textures: every point gets Views noisy,
// brightness-shifted copies of one base texture. All view pairs of a point are positive
// matches; Negatives random cross-point pairs are added with label 0.
func Synthesize(opts SynthOptions, rng *rand.Rand) *Bank {
	if opts.Views < 2 {
		opts.Views = 2
	}
	if opts.Side <= 0 {
		opts.Side = RawSize
	}
	b := &Bank{Name: opts.Name, PatchSide: opts.Side}

	for pt := 0; pt < opts.Points; pt++ {
		base := texture(opts.Side, rng)
		first := len(b.Patches)
		for v := 0; v < opts.Views; v++ {
			shift := rng.NormFloat64() * 10
			pix := make([]byte, len(base))
			for i, x := range base {
				pix[i] = clampByte(x + shift + rng.NormFloat64()*opts.Noise)
			}
			b.Patches = append(b.Patches, pix)
		}
		for i := 0; i < opts.Views; i++ {
			for j := i + 1; j < opts.Views; j++ {
				b.Matches = append(b.Matches, Match{A: first + i, B: first + j, Label: 1})
			}
		}
	}

	for n := 0; n < opts.Negatives && opts.Points > 1; n++ {
		p0 := rng.Intn(opts.Points)
		p1 := rng.Intn(opts.Points - 1)
		if p1 >= p0 {
			p1++
		}
		b.Matches = append(b.Matches, Match{
			A:     p0*opts.Views + rng.Intn(opts.Views),
			B:     p1*opts.Views + rng.Intn(opts.Views),
			Label: 0,
		})
	}
	return b
}

// texture is a sum of a few random blobs over a gray background
func texture(side int, rng *rand.Rand) []float64 {
	pix := make([]float64, side*side)
	for i := range pix {
		pix[i] = 128
	}
	blobs := 3 + rng.Intn(5)
	for k := 0; k < blobs; k++ {
		cx, cy := rng.Float64()*float64(side), rng.Float64()*float64(side)
		r := float64(side) * (0.08 + 0.2*rng.Float64())
		amp := (rng.Float64()*2 - 1) * 100
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				dx, dy := float64(x)-cx, float64(y)-cy
				if d2 := dx*dx + dy*dy; d2 < r*r {
					pix[y*side+x] += amp * (1 - d2/(r*r))
				}
			}
		}
	}
	return pix
}

func clampByte(x float64) byte {
	switch {
	case x < 0:
		return 0
	case x > 255:
		return 255
	default:
		return byte(x + 0.5)
	}
}
