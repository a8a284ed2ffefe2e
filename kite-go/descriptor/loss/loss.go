package loss

import (
	"math"
	"math/rand"

	"github.com/kiteco/patchdesc/kite-golib/errors"
	"gonum.org/v1/gonum/mat"
)

// entry is one term of a mined negative: Weight * M[Row][Col]
type entry struct {
	Row, Col int
	Weight   float64
}

// Result holds per-row losses and the gradients of their mean
type Result struct {
	Losses   []float64
	Positive []float64
	// Negative is the mined negative distance per row, including any penalty
	Negative []float64
	// Mined is the (anchor, positive) index of the negative chosen for each row, or (-1, -1)
	// for the average reduction
	Mined [][2]int
	// GradAnchors and GradPositives are d(mean loss)/d(descriptor)
	GradAnchors   [][]float32
	GradPositives [][]float32
}

// Mean is the batch loss
func (r Result) Mean() float64 {
	if len(r.Losses) == 0 {
		return 0
	}
	var sum float64
	for _, l := range r.Losses {
		sum += l
	}
	return sum / float64(len(r.Losses))
}

// Compute mines a negative for every row of the anchor/positive distance matrix and applies
// the loss. Anchors[i] and positives[i] must match; every other positive is a candidate negative.
// rng is only used by the random reductions.
func Compute(anchors, positives [][]float32, opts Options, rng *rand.Rand) (Result, error) {
	n := len(anchors)
	if n != len(positives) {
		return Result{}, errors.Errorf("%d anchors but %d positives", n, len(positives))
	}
	if n < 2 {
		return Result{}, errors.Errorf("need at least 2 pairs to mine negatives, got %d", n)
	}
	dim := len(anchors[0])
	for i := range anchors {
		if len(anchors[i]) != dim || len(positives[i]) != dim || dim == 0 {
			return Result{}, errors.Errorf("descriptor %d has inconsistent dimension", i)
		}
	}
	if (opts.Reduction == Random || opts.Reduction == RandomGlobal) && rng == nil {
		return Result{}, errors.Errorf("reduction %s needs a random source", opts.Reduction)
	}

	dist := DistanceMatrix(anchors, positives)
	m := penalized(dist)
	terms := mine(m, opts, rng)

	res := Result{
		Losses:   make([]float64, n),
		Positive: make([]float64, n),
		Negative: make([]float64, n),
		Mined:    make([][2]int, n),
	}
	// dD accumulates d(mean loss)/dD[i][j]; penalties are constant offsets
	dD := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		pos := dist.At(i, i)
		var neg float64
		for _, t := range terms[i] {
			neg += t.Weight * m.At(t.Row, t.Col)
		}
		res.Mined[i] = [2]int{-1, -1}
		if len(terms[i]) == 1 {
			res.Mined[i] = [2]int{terms[i][0].Row, terms[i][0].Col}
		}

		l, dpos, dneg := rowLoss(opts, pos, neg)
		res.Losses[i] = l
		res.Positive[i] = pos
		res.Negative[i] = neg

		scale := 1 / float64(n)
		dD.Set(i, i, dD.At(i, i)+scale*dpos)
		for _, t := range terms[i] {
			dD.Set(t.Row, t.Col, dD.At(t.Row, t.Col)+scale*dneg*t.Weight)
		}
	}

	res.GradAnchors, res.GradPositives = backprop(anchors, positives, dist, dD)
	return res, nil
}

// rowLoss returns the loss and its derivatives wrt the positive and negative distances
func rowLoss(opts Options, pos, neg float64) (float64, float64, float64) {
	switch opts.Type {
	case Softmax:
		ep := math.Exp(2 - pos)
		en := math.Exp(2 - neg)
		den := ep + en + SoftmaxEps
		return -math.Log(ep / den), 1 - ep/den, -en / den
	case Contrastive:
		if h := opts.Margin - neg; h > 0 {
			return h + pos, 1, -1
		}
		return pos, 1, 0
	default:
		if h := opts.Margin + pos - neg; h > 0 {
			return h, 1, -1
		}
		return 0, 0, 0
	}
}

// mine selects the negative terms of every row of the penalized matrix m
func mine(m *mat.Dense, opts Options, rng *rand.Rand) [][]entry {
	n, _ := m.Dims()
	terms := make([][]entry, n)

	// pick returns the smaller of (i, j) and, with anchor swap, its transpose (j, i)
	pick := func(i, j int) entry {
		if opts.AnchorSwap && m.At(j, i) < m.At(i, j) {
			return entry{Row: j, Col: i, Weight: 1}
		}
		return entry{Row: i, Col: j, Weight: 1}
	}

	switch opts.Reduction {
	case Average:
		w := 1 / float64(n-1)
		for i := 0; i < n; i++ {
			var row, col float64
			for j := 0; j < n; j++ {
				if j != i {
					row += m.At(i, j)
					col += m.At(j, i)
				}
			}
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				if opts.AnchorSwap && col < row {
					terms[i] = append(terms[i], entry{Row: j, Col: i, Weight: w})
				} else {
					terms[i] = append(terms[i], entry{Row: i, Col: j, Weight: w})
				}
			}
		}
	case Random:
		for i := 0; i < n; i++ {
			j := rng.Intn(n - 1)
			if j >= i {
				j++
			}
			terms[i] = []entry{pick(i, j)}
		}
	case RandomGlobal:
		k := 1 + rng.Intn(n-1)
		for i := 0; i < n; i++ {
			terms[i] = []entry{pick(i, (i+k)%n)}
		}
	default:
		for i := 0; i < n; i++ {
			best := entry{Row: i, Col: (i + 1) % n, Weight: 1}
			for j := 0; j < n; j++ {
				if m.At(i, j) < m.At(best.Row, best.Col) {
					best = entry{Row: i, Col: j, Weight: 1}
				}
			}
			if opts.AnchorSwap {
				for j := 0; j < n; j++ {
					if m.At(j, i) < m.At(best.Row, best.Col) {
						best = entry{Row: j, Col: i, Weight: 1}
					}
				}
			}
			terms[i] = []entry{best}
		}
	}
	return terms
}

// backprop maps d(loss)/dD onto the descriptors: dD[i][j]/da_i = (a_i - p_j) / D[i][j]
func backprop(anchors, positives [][]float32, dist, dD *mat.Dense) ([][]float32, [][]float32) {
	n := len(anchors)
	dim := len(anchors[0])
	ga := make([][]float64, n)
	gp := make([][]float64, n)
	for i := range ga {
		ga[i] = make([]float64, dim)
		gp[i] = make([]float64, dim)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			g := dD.At(i, j)
			if g == 0 {
				continue
			}
			s := g / dist.At(i, j)
			for k := 0; k < dim; k++ {
				diff := float64(anchors[i][k]) - float64(positives[j][k])
				ga[i][k] += s * diff
				gp[j][k] -= s * diff
			}
		}
	}
	return toFloat32(ga), toFloat32(gp)
}

func toFloat32(rows [][]float64) [][]float32 {
	out := make([][]float32, len(rows))
	for i, r := range rows {
		out[i] = make([]float32, len(r))
		for k, v := range r {
			out[i][k] = float32(v)
		}
	}
	return out
}
