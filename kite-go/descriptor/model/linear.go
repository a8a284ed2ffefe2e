package model

import (
	"math"
	"math/rand"

	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// InitGain scales the orthogonal initialization
	InitGain = 0.6
	normEps  = 1e-7
	l2Eps    = 1e-10
)

// Linear normalizes each patch to zero mean and unit deviation, projects it linearly and
// L2-normalizes the result
type Linear struct {
	side   int
	dim    int
	weight *Param
}

// NewLinear builds a descriptor of size dim for side×side patches, with orthogonal rows
// scaled by InitGain
func NewLinear(side, dim int, rng *rand.Rand) *Linear {
	in := side * side
	if dim > in {
		dim = in
	}
	w := NewParam("weight", dim, in)

	g := mat.NewDense(in, dim, nil)
	for i := 0; i < in; i++ {
		for j := 0; j < dim; j++ {
			g.Set(i, j, rng.NormFloat64())
		}
	}
	var qr mat.QR
	qr.Factorize(g)
	var q mat.Dense
	qr.QTo(&q)
	for r := 0; r < dim; r++ {
		for c := 0; c < in; c++ {
			w.Value[r*in+c] = float32(InitGain * q.At(c, r))
		}
	}
	return &Linear{side: side, dim: dim, weight: w}
}

// Dim implements Model
func (l *Linear) Dim() int {
	return l.dim
}

// Params implements Model
func (l *Linear) Params() []*Param {
	return []*Param{l.weight}
}

// Embed implements Model
func (l *Linear) Embed(ps []patches.Patch) [][]float32 {
	out, _ := l.Forward(ps)
	return out
}

// Forward implements Model
func (l *Linear) Forward(ps []patches.Patch) ([][]float32, Backward) {
	in := l.side * l.side
	xs := make([][]float64, len(ps))
	ys := make([][]float64, len(ps))
	norms := make([]float64, len(ps))
	out := make([][]float32, len(ps))

	for s, p := range ps {
		x := normalize(p.Pix)
		xs[s] = x
		y := make([]float64, l.dim)
		for r := 0; r < l.dim; r++ {
			row := l.weight.Value[r*in : (r+1)*in]
			var acc float64
			for c, v := range row {
				acc += float64(v) * x[c]
			}
			y[r] = acc
		}
		ys[s] = y
		norms[s] = math.Sqrt(floats.Dot(y, y) + l2Eps)
		o := make([]float32, l.dim)
		for r, v := range y {
			o[r] = float32(v / norms[s])
		}
		out[s] = o
	}

	backward := func(grads [][]float32) error {
		if len(grads) != len(ps) {
			return errors.Errorf("got %d gradients for %d samples", len(grads), len(ps))
		}
		for s, g := range grads {
			if len(g) != l.dim {
				return errors.Errorf("gradient %d has size %d, want %d", s, len(g), l.dim)
			}
			// d(y/|y|)/dy applied to g: (g - o (o.g)) / |y|
			var dot float64
			for r := range g {
				dot += float64(g[r]) * ys[s][r] / norms[s]
			}
			for r := range g {
				dy := (float64(g[r]) - ys[s][r]/norms[s]*dot) / norms[s]
				if dy == 0 {
					continue
				}
				row := l.weight.Grad[r*in : (r+1)*in]
				for c, x := range xs[s] {
					row[c] += float32(dy * x)
				}
			}
		}
		return nil
	}
	return out, backward
}

// normalize returns (x - mean) / (std + eps) with the unbiased standard deviation
func normalize(pix []float32) []float64 {
	x := make([]float64, len(pix))
	for i, v := range pix {
		x[i] = float64(v)
	}
	mean := floats.Sum(x) / float64(len(x))
	floats.AddConst(-mean, x)
	var std float64
	if len(x) > 1 {
		std = math.Sqrt(floats.Dot(x, x) / float64(len(x)-1))
	}
	floats.Scale(1/(std+normEps), x)
	return x
}
