package loss

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// DistanceEps keeps the square root differentiable at zero distance
	DistanceEps = 1e-6
	// DuplicateThreshold marks off-diagonal pairs closer than this as likely duplicates
	DuplicateThreshold = 0.008
	// Penalty is added to excluded entries so that they are never preferred as negatives
	Penalty = 10
	// SoftmaxEps guards the softmax denominator
	SoftmaxEps = 1e-8
)

// toDense copies rows into a matrix; rows must be non-empty and of equal length
func toDense(rows [][]float32) *mat.Dense {
	d := len(rows[0])
	data := make([]float64, 0, len(rows)*d)
	for _, r := range rows {
		for _, v := range r {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(rows), d, data)
}

// DistanceMatrix returns D with D[i][j] = sqrt(|a_i - p_j|^2 + DistanceEps). Both sides must be
// non-empty with the same dimension.
func DistanceMatrix(anchors, positives [][]float32) *mat.Dense {
	a := toDense(anchors)
	p := toDense(positives)
	n, _ := a.Dims()
	m, _ := p.Dims()

	var gram mat.Dense
	gram.Mul(a, p.T())

	an := make([]float64, n)
	for i := range an {
		r := a.RawRowView(i)
		an[i] = mat.Dot(mat.NewVecDense(len(r), r), mat.NewVecDense(len(r), r))
	}
	pn := make([]float64, m)
	for j := range pn {
		r := p.RawRowView(j)
		pn[j] = mat.Dot(mat.NewVecDense(len(r), r), mat.NewVecDense(len(r), r))
	}

	d := mat.NewDense(n, m, nil)
	d.Apply(func(i, j int, g float64) float64 {
		sq := an[i] + pn[j] - 2*g
		if sq < 0 {
			sq = 0
		}
		return math.Sqrt(sq + DistanceEps)
	}, &gram)
	return d
}

// penalized adds Penalty to the diagonal and to off-diagonal near duplicates
func penalized(d *mat.Dense) *mat.Dense {
	n, m := d.Dims()
	out := mat.NewDense(n, m, nil)
	out.Apply(func(i, j int, v float64) float64 {
		if i == j || v < DuplicateThreshold {
			return v + Penalty
		}
		return v
	}, d)
	return out
}
