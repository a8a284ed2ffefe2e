package loss

import (
	"math"
	"math/rand"
	"testing"

	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/stretchr/testify/require"
)

func oneHot(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, n)
		out[i][i] = 1
	}
	return out
}

func randomDescriptors(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		var norm float64
		for k := range out[i] {
			v := rng.NormFloat64()
			out[i][k] = float32(v)
			norm += v * v
		}
		for k := range out[i] {
			out[i][k] /= float32(math.Sqrt(norm))
		}
	}
	return out
}

func clone(rows [][]float32) [][]float32 {
	out := make([][]float32, len(rows))
	for i, r := range rows {
		out[i] = append([]float32(nil), r...)
	}
	return out
}

func TestDistanceMatrix(t *testing.T) {
	d := DistanceMatrix([][]float32{{0, 0}, {1, 0}}, [][]float32{{3, 4}, {1, 0}})
	require.InDelta(t, 5, d.At(0, 0), 1e-6)
	require.InDelta(t, 1, d.At(0, 1), 1e-6)
	require.InDelta(t, math.Sqrt(DistanceEps), d.At(1, 1), 1e-9)
}

func TestSeparatedBatchHasNoLoss(t *testing.T) {
	for _, red := range []Reduction{Min, Average, Random, RandomGlobal} {
		opts := DefaultOptions
		opts.Reduction = red
		res, err := Compute(oneHot(4), oneHot(4), opts, rand.New(rand.NewSource(1)))
		require.NoError(t, err)
		require.Equal(t, 0.0, res.Mean(), red.String())
		for i := range res.GradAnchors {
			for _, g := range res.GradAnchors[i] {
				require.Equal(t, float32(0), g)
			}
		}
		for _, neg := range res.Negative {
			require.InDelta(t, math.Sqrt(2), neg, 1e-6)
		}
	}
}

func TestDuplicatesAreNotMined(t *testing.T) {
	anchors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	// positive 1 is a copy of anchor 0
	positives := [][]float32{{1, 0, 0}, {1, 0, 0}, {0, 0, 1}}

	opts := DefaultOptions
	opts.AnchorSwap = false
	res, err := Compute(anchors, positives, opts, nil)
	require.NoError(t, err)
	require.NotEqual(t, [2]int{0, 1}, res.Mined[0])
	require.True(t, res.Negative[0] < Penalty)
}

func TestAnchorSwapNeverIncreasesNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := randomDescriptors(rng, 16, 8)
	p := randomDescriptors(rng, 16, 8)

	opts := DefaultOptions
	opts.AnchorSwap = false
	plain, err := Compute(a, p, opts, nil)
	require.NoError(t, err)
	opts.AnchorSwap = true
	swapped, err := Compute(a, p, opts, nil)
	require.NoError(t, err)

	for i := range plain.Negative {
		require.True(t, swapped.Negative[i] <= plain.Negative[i])
		// the mined negative is either in row i or in column i
		m := swapped.Mined[i]
		require.True(t, m[0] == i || m[1] == i)
		require.NotEqual(t, m[0], m[1])
	}
}

func TestRandomReductions(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	a := randomDescriptors(rng, 10, 4)
	p := randomDescriptors(rng, 10, 4)

	opts := Options{Type: TripletMargin, Reduction: RandomGlobal, Margin: 1}
	res, err := Compute(a, p, opts, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	offset := (res.Mined[0][1] - res.Mined[0][0] + 10) % 10
	require.NotEqual(t, 0, offset)
	for i, m := range res.Mined {
		require.Equal(t, i, m[0])
		require.Equal(t, offset, (m[1]-i+10)%10)
	}

	opts.Reduction = Random
	res, err = Compute(a, p, opts, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	for i, m := range res.Mined {
		require.Equal(t, i, m[0])
		require.NotEqual(t, i, m[1])
	}

	_, err = Compute(a, p, opts, nil)
	require.Error(t, err)
}

func TestLossValues(t *testing.T) {
	l, dpos, dneg := rowLoss(Options{Type: TripletMargin, Margin: 1}, 0.5, 1.2)
	require.InDelta(t, 0.3, l, 1e-12)
	require.Equal(t, 1.0, dpos)
	require.Equal(t, -1.0, dneg)

	l, _, _ = rowLoss(Options{Type: Softmax}, 0.7, 0.7)
	require.InDelta(t, math.Log(2), l, 1e-6)

	l, dpos, dneg = rowLoss(Options{Type: Contrastive, Margin: 1}, 0.2, 1.5)
	require.InDelta(t, 0.2, l, 1e-12)
	require.Equal(t, 1.0, dpos)
	require.Equal(t, 0.0, dneg)

	l, _, _ = rowLoss(Options{Type: Contrastive, Margin: 1}, 0.2, 0.6)
	require.InDelta(t, 0.6, l, 1e-12)
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	cases := []Options{
		{Type: TripletMargin, Reduction: Min, Margin: 3, AnchorSwap: true},
		{Type: TripletMargin, Reduction: Average, Margin: 3, AnchorSwap: true},
		{Type: TripletMargin, Reduction: RandomGlobal, Margin: 3, AnchorSwap: false},
		{Type: Softmax, Reduction: Min, AnchorSwap: false},
		{Type: Softmax, Reduction: Random, AnchorSwap: true},
		{Type: Contrastive, Reduction: Min, Margin: 3, AnchorSwap: true},
	}
	rng := rand.New(rand.NewSource(6))
	a := randomDescriptors(rng, 6, 5)
	p := randomDescriptors(rng, 6, 5)

	for _, opts := range cases {
		loss := func(a, p [][]float32) float64 {
			res, err := Compute(a, p, opts, rand.New(rand.NewSource(7)))
			require.NoError(t, err)
			return res.Mean()
		}
		res, err := Compute(a, p, opts, rand.New(rand.NewSource(7)))
		require.NoError(t, err)

		const h = 1e-3
		for i := range a {
			for k := range a[i] {
				up, down := clone(a), clone(a)
				up[i][k] += h
				down[i][k] -= h
				step := float64(up[i][k]) - float64(down[i][k])
				num := (loss(up, p) - loss(down, p)) / step
				require.InDelta(t, num, res.GradAnchors[i][k], 1e-4, "%s/%s anchor %d,%d", opts.Type, opts.Reduction, i, k)

				up, down = clone(p), clone(p)
				up[i][k] += h
				down[i][k] -= h
				step = float64(up[i][k]) - float64(down[i][k])
				num = (loss(a, up) - loss(a, down)) / step
				require.InDelta(t, num, res.GradPositives[i][k], 1e-4, "%s/%s positive %d,%d", opts.Type, opts.Reduction, i, k)
			}
		}
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	_, err := Compute(oneHot(1), oneHot(1), DefaultOptions, nil)
	require.Error(t, err)
	_, err = Compute(oneHot(3), oneHot(2), DefaultOptions, nil)
	require.Error(t, err)
}

func TestParse(t *testing.T) {
	typ, err := ParseType("softmax")
	require.NoError(t, err)
	require.Equal(t, Softmax, typ)
	require.Equal(t, "softmax", typ.String())

	red, err := ParseReduction("random_global")
	require.NoError(t, err)
	require.Equal(t, RandomGlobal, red)
	require.Equal(t, "random_global", red.String())

	_, err = ParseType("hinge")
	require.True(t, errors.IsKind(err, errors.Configuration))
	_, err = ParseReduction("max")
	require.True(t, errors.IsKind(err, errors.Configuration))
}
