package model

import (
	"sort"

	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
)

// Param is a named trainable tensor stored flat in row-major order
type Param struct {
	Name  string
	Shape []int
	Value []float32
	Grad  []float32
}

// NewParam allocates a zero parameter of the given shape
func NewParam(name string, shape ...int) *Param {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Param{
		Name:  name,
		Shape: shape,
		Value: make([]float32, n),
		Grad:  make([]float32, n),
	}
}

// Backward accumulates parameter gradients given d(loss)/d(output) for every sample of
// the matching Forward call
type Backward func(grads [][]float32) error

// Model maps patches to descriptors of size Dim. The driver only relies on this interface,
// so any network that can expose its parameters and a backward pass fits.
type Model interface {
	Dim() int
	// Forward embeds patches and returns the closure propagating gradients for this call
	Forward(ps []patches.Patch) ([][]float32, Backward)
	// Embed is Forward without retaining anything for a backward pass
	Embed(ps []patches.Patch) [][]float32
	Params() []*Param
}

// ZeroGrad clears the gradients of every parameter
func ZeroGrad(m Model) {
	for _, p := range m.Params() {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// State copies the parameter values keyed by name
func State(m Model) map[string][]float32 {
	state := make(map[string][]float32)
	for _, p := range m.Params() {
		state[p.Name] = append([]float32(nil), p.Value...)
	}
	return state
}

// PartialLoad reports how a saved state mapped onto a model
type PartialLoad struct {
	// Loaded parameters were copied into the model
	Loaded []string
	// Dropped entries of the state have no parameter of the same name and size
	Dropped []string
	// Missing parameters kept their current values
	Missing []string
}

// Complete is true when every parameter was loaded and nothing was dropped
func (p PartialLoad) Complete() bool {
	return len(p.Dropped) == 0 && len(p.Missing) == 0
}

// LoadState copies every entry of state that matches a parameter by name and size
func LoadState(m Model, state map[string][]float32) PartialLoad {
	var res PartialLoad
	seen := make(map[string]bool)
	for _, p := range m.Params() {
		v, ok := state[p.Name]
		switch {
		case !ok:
			res.Missing = append(res.Missing, p.Name)
		case len(v) != len(p.Value):
			res.Missing = append(res.Missing, p.Name)
		default:
			copy(p.Value, v)
			res.Loaded = append(res.Loaded, p.Name)
			seen[p.Name] = true
		}
	}
	for name := range state {
		if !seen[name] {
			res.Dropped = append(res.Dropped, name)
		}
	}
	sort.Strings(res.Dropped)
	return res
}
