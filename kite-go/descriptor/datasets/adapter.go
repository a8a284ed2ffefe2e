package datasets

import (
	"hash/fnv"
	"math/rand"

	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
)

// Adapter serves training pairs from one dataset, whatever its storage looks like.
//
// Prepare is called once per epoch, before any Pair call for that epoch, and must leave the
// adapter with exactly n local pairs in a fresh order that depends only on the seed and epoch.
// Pair may then be called concurrently for any i in [0, n).
type Adapter interface {
	Name() string
	// Available is the number of distinct pairs or patch sets the adapter can draw from
	Available() int
	Prepare(epoch, n int) error
	// Pair returns the augmented pair for local index i, using rng for augmentation draws
	Pair(i int, rng *rand.Rand) (patches.Pair, error)
	// Describe summarizes the resolved configuration for the run summary
	Describe() map[string]interface{}
}

// Grouped is implemented by adapters whose draws depend on which pairs end up in the same batch.
// The wrapper calls PrepareGroups instead of Prepare: groups are the sizes of the consecutive runs
// of local indices that share a batch, in local index order, and they sum to the epoch's pair
// count.
type Grouped interface {
	PrepareGroups(epoch int, groups []int) error
}

// chunks splits n into runs of size, the last one possibly shorter
func chunks(n, size int) []int {
	if size <= 0 {
		size = n
	}
	var out []int
	for n > 0 {
		c := size
		if c > n {
			c = n
		}
		out = append(out, c)
		n -= c
	}
	return out
}

// epochSource derives a reproducible source for (seed, adapter name, epoch)
func epochSource(seed int64, name string, epoch int) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64()) + int64(epoch)*7919))
}
