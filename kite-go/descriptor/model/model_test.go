package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/stretchr/testify/require"
)

func randomPatches(rng *rand.Rand, n, side int) []patches.Patch {
	var ps []patches.Patch
	for i := 0; i < n; i++ {
		p := patches.New(side)
		for k := range p.Pix {
			p.Pix[k] = rng.Float32()
		}
		ps = append(ps, p)
	}
	return ps
}

func TestLinearOutputsUnitDescriptors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := NewLinear(8, 16, rng)
	require.Equal(t, 16, m.Dim())

	out := m.Embed(randomPatches(rng, 5, 8))
	require.Len(t, out, 5)
	for _, d := range out {
		require.Len(t, d, 16)
		var sq float64
		for _, v := range d {
			sq += float64(v) * float64(v)
		}
		require.InDelta(t, 1, sq, 1e-5)
	}
}

func TestLinearIsInvariantToBrightness(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	m := NewLinear(4, 4, rng)
	p := randomPatches(rng, 1, 4)[0]
	q := patches.New(4)
	for i, v := range p.Pix {
		q.Pix[i] = 2*v + 0.5
	}
	out := m.Embed([]patches.Patch{p, q})
	for k := range out[0] {
		require.InDelta(t, out[0][k], out[1][k], 1e-4)
	}
}

func TestOrthogonalInit(t *testing.T) {
	m := NewLinear(4, 3, rand.New(rand.NewSource(3)))
	w := m.Params()[0]
	in := 16
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			var dot float64
			for c := 0; c < in; c++ {
				dot += float64(w.Value[a*in+c]) * float64(w.Value[b*in+c])
			}
			want := 0.0
			if a == b {
				want = InitGain * InitGain
			}
			require.InDelta(t, want, dot, 1e-5)
		}
	}
}

func TestLinearBackwardMatchesFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	m := NewLinear(3, 4, rng)
	ps := randomPatches(rng, 2, 3)
	coef := [][]float32{{0.3, -0.2, 0.5, 0.1}, {-0.4, 0.2, 0.7, -0.3}}

	objective := func() float64 {
		var s float64
		for i, d := range m.Embed(ps) {
			for k, v := range d {
				s += float64(coef[i][k]) * float64(v)
			}
		}
		return s
	}

	ZeroGrad(m)
	_, backward := m.Forward(ps)
	require.NoError(t, backward(coef))

	w := m.Params()[0]
	const h = 1e-3
	for i := range w.Value {
		orig := w.Value[i]
		w.Value[i] = orig + h
		up := objective()
		hi := w.Value[i]
		w.Value[i] = orig - h
		down := objective()
		lo := w.Value[i]
		w.Value[i] = orig
		num := (up - down) / float64(hi-lo)
		require.InDelta(t, num, w.Grad[i], 2e-3, "weight %d", i)
	}

	require.Error(t, backward(coef[:1]))
}

func TestSGDMomentum(t *testing.T) {
	p := NewParam("w", 1)
	p.Value[0] = 1
	o := NewSGD([]*Param{p}, 0.1, 0)

	p.Grad[0] = 1
	o.Step()
	// first step uses the raw gradient
	require.InDelta(t, 0.9, p.Value[0], 1e-6)

	o.Step()
	// buf = 0.9*1 + 0.1*1 = 1
	require.InDelta(t, 0.8, p.Value[0], 1e-6)

	s := o.State()
	require.Equal(t, 2, s.Steps)
	require.Equal(t, []float32{1}, s.First["w"])
}

func TestSGDWeightDecay(t *testing.T) {
	p := NewParam("w", 1)
	p.Value[0] = 2
	o := NewSGD([]*Param{p}, 0.5, 0.1)
	o.Momentum = 0
	o.Step()
	require.InDelta(t, 1.9, p.Value[0], 1e-6)
}

func TestAdamFirstStep(t *testing.T) {
	p := NewParam("w", 2)
	p.Grad[0], p.Grad[1] = 3, -0.01
	o := NewAdam([]*Param{p}, 0.1, 0)
	o.Step()
	// bias-corrected first step moves every weight by about lr against its gradient sign
	require.InDelta(t, -0.1, p.Value[0], 1e-5)
	require.InDelta(t, 0.1, p.Value[1], 1e-4)
}

func TestOptimizerStateRoundTrip(t *testing.T) {
	p := NewParam("w", 2)
	p.Grad[0], p.Grad[1] = 1, 2
	a := NewAdam([]*Param{p}, 0.01, 0)
	a.Step()

	b := NewAdam([]*Param{p}, 0.01, 0)
	require.NoError(t, b.LoadState(a.State()))
	require.Equal(t, a.State(), b.State())

	sgd := NewSGD([]*Param{p}, 0.01, 0)
	require.Error(t, sgd.LoadState(a.State()))
	require.Error(t, sgd.LoadState(nil))
}

func TestNewOptimizer(t *testing.T) {
	o, err := NewOptimizer("adam", nil, 0.1, 0)
	require.NoError(t, err)
	require.Equal(t, 0.1, o.LR())
	o.SetLR(0.05)
	require.Equal(t, 0.05, o.LR())

	_, err = NewOptimizer("rmsprop", nil, 0.1, 0)
	require.True(t, errors.IsKind(err, errors.Configuration))
}

func TestLoadStatePartial(t *testing.T) {
	m := NewLinear(2, 2, rand.New(rand.NewSource(5)))
	state := map[string][]float32{
		"weight":  {1, 2, 3, 4, 5, 6, 7, 8},
		"bn.mean": {0},
	}
	res := LoadState(m, state)
	require.Equal(t, []string{"weight"}, res.Loaded)
	require.Equal(t, []string{"bn.mean"}, res.Dropped)
	require.Empty(t, res.Missing)
	require.False(t, res.Complete())
	require.Equal(t, state["weight"], m.Params()[0].Value)

	res = LoadState(m, map[string][]float32{"weight": {1}})
	require.Empty(t, res.Loaded)
	require.Equal(t, []string{"weight"}, res.Missing)
	require.Equal(t, []string{"weight"}, res.Dropped)

	res = LoadState(m, State(m))
	require.True(t, res.Complete())
	require.False(t, math.IsNaN(float64(m.Params()[0].Value[0])))
}
