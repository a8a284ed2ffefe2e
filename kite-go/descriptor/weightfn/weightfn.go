package weightfn

import (
	"math"
	"math/rand"
	"sort"

	"github.com/kiteco/patchdesc/kite-golib/errors"
)

// Policy maps a detector response to sampling weights
type Policy int

const (
	// Hessian uses the absolute detector response
	Hessian Policy = iota
	// HessianSqrt uses the square root of the response
	HessianSqrt
	// HessianSqrt4 uses the fourth root of the response
	HessianSqrt4
	// None samples uniformly
	None
)

var names = map[string]Policy{
	"Hessian":      Hessian,
	"HessianSqrt":  HessianSqrt,
	"HessianSqrt4": HessianSqrt4,
	"None":         None,
}

// Parse resolves a policy name. Unknown names are configuration errors.
func Parse(name string) (Policy, error) {
	p, ok := names[name]
	if !ok {
		return 0, errors.Kindf(errors.Configuration, "unknown weight function %q (want Hessian, HessianSqrt, HessianSqrt4 or None)", name)
	}
	return p, nil
}

func (p Policy) String() string {
	for name, q := range names {
		if p == q {
			return name
		}
	}
	return "unknown"
}

// UsesResponse is false for the uniform policy, which never needs a detector response
func (p Policy) UsesResponse() bool {
	return p != None
}

func (p Policy) weigh(r float32) float64 {
	x := math.Abs(float64(r))
	switch p {
	case HessianSqrt:
		return math.Sqrt(x)
	case HessianSqrt4:
		return math.Sqrt(math.Sqrt(x))
	default:
		return x
	}
}

// Apply turns a response map into a sampling surface. Pixels with valid[i] == false get zero
// weight; a nil valid slice marks every pixel valid. The uniform policy, and any map with no
// positive weight over the valid pixels, yields a uniform surface over the valid pixels.
func (p Policy) Apply(response []float32, valid []bool) Surface {
	weights := make([]float64, len(response))
	var total float64
	if p != None {
		for i, r := range response {
			if valid != nil && !valid[i] {
				continue
			}
			w := p.weigh(r)
			if math.IsNaN(w) || math.IsInf(w, 0) {
				continue
			}
			weights[i] = w
			total += w
		}
	}
	if total <= 0 {
		for i := range weights {
			if valid == nil || valid[i] {
				weights[i] = 1
			}
		}
	}
	return newSurface(weights)
}

// Surface is a discrete probability distribution over pixel indices
type Surface struct {
	weights []float64
	// cum has len(weights)+1 entries, cum[0] == 0 and cum[len] == total
	cum []float64
	// support is the number of pixels with positive weight, last the highest such index
	support int
	last    int
}

func newSurface(weights []float64) Surface {
	cum := make([]float64, 1, len(weights)+1)
	s := Surface{last: -1}
	var running float64
	for i, w := range weights {
		running += w
		cum = append(cum, running)
		if w > 0 {
			s.support++
			s.last = i
		}
	}
	s.weights, s.cum = weights, cum
	return s
}

// Len is the number of pixels covered by the surface
func (s Surface) Len() int {
	return len(s.weights)
}

// Support is the number of pixels that can be sampled
func (s Surface) Support() int {
	return s.support
}

// Total is the sum of weights; zero only when no pixel is valid
func (s Surface) Total() float64 {
	return s.cum[len(s.cum)-1]
}

// Weight returns the unnormalized weight of pixel i
func (s Surface) Weight(i int) float64 {
	return s.weights[i]
}

// Prob returns the probability of sampling pixel i
func (s Surface) Prob(i int) float64 {
	if s.Total() == 0 {
		return 0
	}
	return s.weights[i] / s.Total()
}

// Sample draws a pixel index with probability proportional to its weight, or -1 when
// the surface has no valid pixel.
func (s Surface) Sample(rng *rand.Rand) int {
	total := s.Total()
	if total <= 0 {
		return -1
	}
	r := rng.Float64() * total
	// first index whose cumulative upper bound exceeds r
	i := sort.Search(len(s.weights), func(i int) bool { return s.cum[i+1] > r })
	if i >= len(s.weights) {
		// r rounded up to the total; zero-weight pixels are never returned
		i = s.last
	}
	return i
}
