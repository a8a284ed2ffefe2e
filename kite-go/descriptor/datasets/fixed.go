package datasets

import (
	"math/rand"

	"github.com/kiteco/patchdesc/kite-go/descriptor/augment"
	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/kiteco/patchdesc/kite-golib/errors"
)

// Fixed serves the positive matches of a pre-extracted patch bank
type Fixed struct {
	name     string
	path     string
	bank     *patches.Bank
	matches  []patches.Match
	pipeline augment.Pipeline
	seed     int64

	epoch int
	order []int
}

// NewFixed wraps a loaded bank. Only label-1 matches are used as training pairs.
func NewFixed(name string, bank *patches.Bank, pipeline augment.Pipeline, seed int64) (*Fixed, error) {
	matches := bank.Positives()
	if len(matches) == 0 {
		return nil, errors.Kindf(errors.DataUnavailable, "bank %s has no positive matches", name)
	}
	return &Fixed{
		name:     name,
		bank:     bank,
		matches:  matches,
		pipeline: pipeline,
		seed:     seed,
		epoch:    -1,
	}, nil
}

// OpenFixed loads the bank at path
func OpenFixed(name, path string, pipeline augment.Pipeline, seed int64) (*Fixed, error) {
	bank, err := patches.LoadBank(path)
	if err != nil {
		return nil, err
	}
	f, err := NewFixed(name, bank, pipeline, seed)
	if err != nil {
		return nil, err
	}
	f.path = path
	return f, nil
}

// Name implements Adapter
func (f *Fixed) Name() string {
	return f.name
}

// Available implements Adapter
func (f *Fixed) Available() int {
	return len(f.matches)
}

// Prepare implements Adapter. Requests beyond the number of matches are served by appending
// further independent permutations, so every match appears once before any appears twice.
func (f *Fixed) Prepare(epoch, n int) error {
	if n < 0 {
		return errors.Errorf("negative pair count %d", n)
	}
	rng := epochSource(f.seed, f.name, epoch)
	order := make([]int, 0, n)
	for len(order) < n {
		perm := rng.Perm(len(f.matches))
		if rest := n - len(order); rest < len(perm) {
			perm = perm[:rest]
		}
		order = append(order, perm...)
	}
	f.epoch = epoch
	f.order = order
	return nil
}

// Pair implements Adapter
func (f *Fixed) Pair(i int, rng *rand.Rand) (patches.Pair, error) {
	if i < 0 || i >= len(f.order) {
		return patches.Pair{}, errors.Errorf("%s: pair %d outside prepared range [0, %d)", f.name, i, len(f.order))
	}
	m := f.matches[f.order[i]]
	return f.pipeline.ApplyPair(f.bank.Gray(m.A), f.bank.Gray(m.B), rng), nil
}

// Match returns the match served at local index i in the prepared epoch
func (f *Fixed) Match(i int) patches.Match {
	return f.matches[f.order[i]]
}

// Describe implements Adapter
func (f *Fixed) Describe() map[string]interface{} {
	s := f.bank.Stats()
	return map[string]interface{}{
		"kind":       "fixed",
		"name":       f.name,
		"path":       f.path,
		"patches":    s.Patches,
		"positives":  s.Positives,
		"negatives":  s.Negatives,
		"patch_side": f.bank.PatchSide,
		"transform":  f.pipeline.Kind.String(),
	}
}
