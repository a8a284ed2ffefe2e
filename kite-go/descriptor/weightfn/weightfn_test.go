package weightfn

import (
	"image"
	"math/rand"
	"testing"

	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, name := range []string{"Hessian", "HessianSqrt", "HessianSqrt4", "None"} {
		p, err := Parse(name)
		require.NoError(t, err)
		require.Equal(t, name, p.String())
	}

	_, err := Parse("Harris")
	require.True(t, errors.IsKind(err, errors.Configuration))
}

func TestNoneIsUniformOverValid(t *testing.T) {
	response := []float32{5, 0, 100, -3, 7}
	valid := []bool{true, true, false, true, true}

	s := None.Apply(response, valid)
	for i := range response {
		if valid[i] {
			assert.InDelta(t, 0.25, s.Prob(i), 1e-12)
		} else {
			assert.Zero(t, s.Prob(i))
		}
	}
}

func TestAllZeroFallsBackToUniform(t *testing.T) {
	s := Hessian.Apply([]float32{0, 0, 0, 0}, nil)
	require.True(t, s.Total() > 0)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 0.25, s.Prob(i), 1e-12)
	}
}

func TestSqrtPreservesOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	response := make([]float32, 200)
	for i := range response {
		response[i] = rng.Float32() * 50
	}

	raw := Hessian.Apply(response, nil)
	for _, p := range []Policy{HessianSqrt, HessianSqrt4} {
		once := p.Apply(response, nil)

		// applying the transform to its own output keeps the ordering as well
		compressed := make([]float32, len(response))
		for i := range compressed {
			compressed[i] = float32(once.Weight(i))
		}
		twice := p.Apply(compressed, nil)

		for i := range response {
			for j := range response {
				if raw.Weight(i) > raw.Weight(j) {
					require.True(t, once.Weight(i) >= once.Weight(j))
					require.True(t, twice.Weight(i) >= twice.Weight(j))
				}
			}
		}
	}
}

func TestSqrtFlattensPeaks(t *testing.T) {
	response := []float32{1, 100}
	raw := Hessian.Apply(response, nil)
	sqrt := HessianSqrt.Apply(response, nil)
	sqrt4 := HessianSqrt4.Apply(response, nil)
	require.True(t, raw.Prob(1) > sqrt.Prob(1))
	require.True(t, sqrt.Prob(1) > sqrt4.Prob(1))
}

func TestSampleFollowsWeights(t *testing.T) {
	s := Hessian.Apply([]float32{0, 1, 0, 3}, nil)
	rng := rand.New(rand.NewSource(4))
	counts := make([]int, 4)
	for i := 0; i < 40000; i++ {
		counts[s.Sample(rng)]++
	}
	require.Zero(t, counts[0])
	require.Zero(t, counts[2])
	assert.InDelta(t, 0.75, float64(counts[3])/40000, 0.02)
}

func TestSampleEmpty(t *testing.T) {
	s := None.Apply([]float32{1, 2}, []bool{false, false})
	require.Equal(t, -1, s.Sample(rand.New(rand.NewSource(1))))
}

func TestHessianRespondsToBlobs(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 12; y < 20; y++ {
		for x := 12; x < 20; x++ {
			img.Pix[y*32+x] = 255
		}
	}
	r := HessianResponse(img)
	require.Len(t, r, 32*32)
	// a bright blob is a strong positive determinant at its center, flat regions are ~0
	require.True(t, r[16*32+16] > 0)
	assert.InDelta(t, 0, r[2*32+2], 1e-6)
	require.True(t, r[16*32+16] > r[2*32+2])
}

// topSource makes Float64 return its largest value, 1-2^-53
type topSource struct{}

func (topSource) Int63() int64 { return 1<<63 - 1024 }
func (topSource) Seed(int64)   {}

func TestSampleSkipsTrailingZeroWeights(t *testing.T) {
	s := Hessian.Apply([]float32{0, 0.1, 0.7, 0.2, 0, 0}, nil)
	require.Equal(t, 3, s.Support())

	i := s.Sample(rand.New(topSource{}))
	assert.Equal(t, 3, i)
	assert.True(t, s.Weight(i) > 0)

	rng := rand.New(rand.NewSource(9))
	for k := 0; k < 5000; k++ {
		require.True(t, s.Weight(s.Sample(rng)) > 0)
	}
}

func TestSupportCountsValidPixels(t *testing.T) {
	s := None.Apply([]float32{1, 2, 3, 4}, []bool{true, false, true, false})
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, 2, s.Support())
}
