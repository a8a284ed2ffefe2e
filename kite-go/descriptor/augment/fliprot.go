package augment

import (
	"math/rand"

	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
)

// FlipRot applies one uniformly drawn flip/rot90 transform per pair, the same on both sides,
// so that anchor-swap mining still sees geometrically consistent pairs. It is applied to
// whole batches at the model input, not inside the dataset adapters.
func FlipRot(b patches.Batch, rng *rand.Rand) patches.Batch {
	out := patches.Batch{
		Anchors:   make([]patches.Patch, b.Len()),
		Positives: make([]patches.Patch, b.Len()),
	}
	for i := range b.Anchors {
		k := rng.Intn(patches.NumDihedral)
		out.Anchors[i] = patches.Dihedral(b.Anchors[i], k)
		out.Positives[i] = patches.Dihedral(b.Positives[i], k)
	}
	return out
}
