package sampling

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/kiteco/patchdesc/kite-go/descriptor/datasets"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/kiteco/patchdesc/kite-golib/kitelog"
	"github.com/kiteco/patchdesc/kite-golib/workerpool"
)

// State of the wrapper between and during epochs
type State int

const (
	// Idle is the state between epochs
	Idle State = iota
	// Prepared means the epoch plan is built and no iterator is open
	Prepared
	// Iterating means an iterator is open over the epoch plan
	Iterating
)

func (s State) String() string {
	switch s {
	case Prepared:
		return "prepared"
	case Iterating:
		return "iterating"
	default:
		return "idle"
	}
}

// Source is an adapter with its sampling frequency
type Source struct {
	Adapter   datasets.Adapter
	Frequency float64
}

// Options for the wrapper
type Options struct {
	// Triplets is the number of pairs per epoch
	Triplets  int
	BatchSize int
	// Workers bounds both the adapters prepared at once and the batches loaded at once
	Workers int
	// Prefetch is the number of batches that may wait for the consumer
	Prefetch int
	// SkipUnavailable lets an epoch proceed without a failing adapter, as long as one remains
	SkipUnavailable bool
	// MaxSubstitutions bounds the local indices tried for one pair that keeps failing to sample
	MaxSubstitutions int
	Seed             int64
}

// Ref locates one pair of the epoch plan
type Ref struct {
	Source int
	Index  int
}

// Wrapper merges several adapters into one stream of fixed-size batches
type Wrapper struct {
	opts    Options
	sources []Source
	log     *kitelog.Logger

	m        sync.Mutex
	state    State
	epoch    int
	plan     []Ref
	exposure map[string]int
}

// New checks the sources and options, and returns an Idle wrapper
func New(sources []Source, opts Options, log *kitelog.Logger) (*Wrapper, error) {
	if len(sources) == 0 {
		return nil, errors.Kindf(errors.Configuration, "no training datasets")
	}
	if opts.BatchSize <= 0 {
		return nil, errors.Kindf(errors.Configuration, "batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.Triplets < 0 {
		return nil, errors.Kindf(errors.Configuration, "negative number of triplets %d", opts.Triplets)
	}
	names := make(map[string]bool)
	for _, s := range sources {
		if s.Frequency <= 0 {
			return nil, errors.Kindf(errors.Configuration, "dataset %s: frequency must be positive", s.Adapter.Name())
		}
		if names[s.Adapter.Name()] {
			return nil, errors.Kindf(errors.Configuration, "duplicate dataset name %s", s.Adapter.Name())
		}
		names[s.Adapter.Name()] = true
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.MaxSubstitutions <= 0 {
		opts.MaxSubstitutions = 10
	}
	if log == nil {
		log = kitelog.Nop
	}
	return &Wrapper{
		opts:    opts,
		sources: sources,
		log:     log,
		epoch:   -1,
	}, nil
}

// State returns the current state
func (w *Wrapper) State() State {
	w.m.Lock()
	defer w.m.Unlock()
	return w.state
}

// Sources returns the wrapped sources
func (w *Wrapper) Sources() []Source {
	return w.sources
}

// Len is the number of batches of an epoch, counting the padded final batch
func (w *Wrapper) Len() int {
	return (w.opts.Triplets + w.opts.BatchSize - 1) / w.opts.BatchSize
}

// Plan returns the shuffled plan of the prepared epoch
func (w *Wrapper) Plan() []Ref {
	w.m.Lock()
	defer w.m.Unlock()
	return w.plan
}

// Exposure returns how many pairs each dataset contributes to the prepared epoch
func (w *Wrapper) Exposure() map[string]int {
	w.m.Lock()
	defer w.m.Unlock()
	out := make(map[string]int, len(w.exposure))
	for k, v := range w.exposure {
		out[k] = v
	}
	return out
}

// PrepareEpoch lays out each adapter's quota over the batches of the epoch, asks every adapter
// for its pairs in parallel, then builds the plan batch by batch. Pairs are shuffled within each
// batch and full batches are shuffled among themselves, so a batch holds exactly the pairs its
// layout assigned to it. It may be called from Idle or Prepared.
func (w *Wrapper) PrepareEpoch(ctx context.Context, epoch int) error {
	w.m.Lock()
	defer w.m.Unlock()
	if w.state == Iterating {
		return errors.Errorf("cannot prepare epoch %d while iterating epoch %d", epoch, w.epoch)
	}
	w.state = Idle
	w.plan = nil

	active := make([]bool, len(w.sources))
	for i := range active {
		active[i] = true
	}
	quotas := w.quotasFor(active)
	counts := layout(quotas, w.opts.BatchSize)
	groups := groupsOf(counts, len(quotas))
	failed, err := w.prepareAdapters(ctx, epoch, quotas, groups, active)
	if err != nil {
		return err
	}

	for len(failed) > 0 {
		if !w.opts.SkipUnavailable {
			return failed[0].err
		}
		for _, f := range failed {
			active[f.idx] = false
			w.log.Warnf("epoch %d: skipping dataset %s: %v", epoch, w.sources[f.idx].Adapter.Name(), f.err)
		}
		if !anyActive(active) {
			return errors.Kindf(errors.DataUnavailable, "epoch %d: no training dataset is available", epoch)
		}

		// redistribute over the remaining datasets; only those whose share changed prepare again
		nextQuotas := w.quotasFor(active)
		nextCounts := layout(nextQuotas, w.opts.BatchSize)
		nextGroups := groupsOf(nextCounts, len(nextQuotas))
		redo := make([]bool, len(active))
		for i := range active {
			if !active[i] {
				continue
			}
			_, grouped := w.sources[i].Adapter.(datasets.Grouped)
			redo[i] = nextQuotas[i] != quotas[i] || (grouped && !equalInts(nextGroups[i], groups[i]))
		}
		quotas, counts, groups = nextQuotas, nextCounts, nextGroups
		w.log.Infof("epoch %d: redistributed quotas %v", epoch, quotas)
		if failed, err = w.prepareAdapters(ctx, epoch, quotas, groups, redo); err != nil {
			return err
		}
	}

	plan := w.buildPlan(epoch, counts)
	exposure := make(map[string]int)
	for i, q := range quotas {
		if active[i] {
			exposure[w.sources[i].Adapter.Name()] = q
		}
	}

	w.epoch = epoch
	w.plan = plan
	w.exposure = exposure
	w.state = Prepared
	return nil
}

type failure struct {
	idx int
	err error
}

// layout assigns the slots of the epoch to adapters in order, each slot going to the adapter
// furthest behind its proportional share among those with quota left. counts[b][i] is the number
// of pairs adapter i contributes to batch b; the last batch may be partial.
func layout(quotas []int, batch int) [][]int {
	var total int
	for _, q := range quotas {
		total += q
	}
	if total == 0 {
		return nil
	}
	counts := make([][]int, (total+batch-1)/batch)
	for b := range counts {
		counts[b] = make([]int, len(quotas))
	}
	assigned := make([]int, len(quotas))
	for t := 0; t < total; t++ {
		best := -1
		var bestDeficit int64
		for i, q := range quotas {
			if assigned[i] >= q {
				continue
			}
			// deficit scaled by total: q*(t+1)/total - assigned
			d := int64(q)*int64(t+1) - int64(assigned[i])*int64(total)
			if best < 0 || d > bestDeficit {
				best, bestDeficit = i, d
			}
		}
		assigned[best]++
		counts[t/batch][best]++
	}
	return counts
}

// groupsOf lists, for each adapter, its non-empty per-batch counts in batch order
func groupsOf(counts [][]int, n int) [][]int {
	groups := make([][]int, n)
	for _, row := range counts {
		for i, c := range row {
			if c > 0 {
				groups[i] = append(groups[i], c)
			}
		}
	}
	return groups
}

// buildPlan hands out local indices batch by batch in layout order, shuffles each batch, then
// shuffles the order of the full batches. A partial final batch stays last.
func (w *Wrapper) buildPlan(epoch int, counts [][]int) []Ref {
	rng := rand.New(rand.NewSource(w.opts.Seed + int64(epoch)))
	next := make([]int, len(w.sources))
	batches := make([][]Ref, len(counts))
	for b, row := range counts {
		var batch []Ref
		for i, c := range row {
			for j := 0; j < c; j++ {
				batch = append(batch, Ref{Source: i, Index: next[i]})
				next[i]++
			}
		}
		rng.Shuffle(len(batch), func(x, y int) { batch[x], batch[y] = batch[y], batch[x] })
		batches[b] = batch
	}

	full := len(batches)
	if full > 0 && len(batches[full-1]) < w.opts.BatchSize {
		full--
	}
	rng.Shuffle(full, func(x, y int) { batches[x], batches[y] = batches[y], batches[x] })

	plan := make([]Ref, 0, w.opts.Triplets)
	for _, batch := range batches {
		plan = append(plan, batch...)
	}
	return plan
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// prepareAdapters runs Prepare for the selected adapters on a worker pool. Adapters whose draws
// depend on batch membership get their per-batch groups instead of a bare quota. Adapters share
// no state, so each job only writes its own slot of errs.
func (w *Wrapper) prepareAdapters(ctx context.Context, epoch int, quotas []int, groups [][]int, selected []bool) ([]failure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	errs := make([]error, len(w.sources))
	pool := workerpool.New(w.opts.Workers)
	var jobs []workerpool.Job
	for i := range w.sources {
		if !selected[i] {
			continue
		}
		i := i
		jobs = append(jobs, func() error {
			a := w.sources[i].Adapter
			var err error
			if g, ok := a.(datasets.Grouped); ok {
				err = g.PrepareGroups(epoch, groups[i])
			} else {
				err = a.Prepare(epoch, quotas[i])
			}
			if err != nil {
				errs[i] = errors.Wrapf(err, "preparing %s", a.Name())
			}
			return errs[i]
		})
	}
	pool.Add(jobs)
	if err := pool.Wait(); err != nil {
		w.log.Debugf("epoch %d: %d adapters failed", epoch, len(errors.Flatten(err)))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var failed []failure
	for i, err := range errs {
		if err != nil {
			failed = append(failed, failure{idx: i, err: err})
		}
	}
	return failed, nil
}

func (w *Wrapper) quotasFor(active []bool) []int {
	freqs := make([]float64, len(w.sources))
	for i, s := range w.sources {
		if active[i] {
			freqs[i] = s.Frequency
		}
	}
	return Quotas(w.opts.Triplets, freqs)
}

func anyActive(active []bool) bool {
	for _, a := range active {
		if a {
			return true
		}
	}
	return false
}

// Iterate opens an iterator over the prepared epoch
func (w *Wrapper) Iterate(ctx context.Context) (*Iterator, error) {
	w.m.Lock()
	defer w.m.Unlock()
	if w.state != Prepared {
		return nil, errors.Errorf("cannot iterate: wrapper is %s", w.state)
	}
	w.state = Iterating
	return newIterator(ctx, w, w.epoch, w.plan), nil
}

// finish returns the wrapper to Idle once an iterator is closed
func (w *Wrapper) finish() {
	w.m.Lock()
	defer w.m.Unlock()
	w.state = Idle
	w.plan = nil
}

// Summary describes the datasets, their frequencies and the last exposure counts
func (w *Wrapper) Summary() []map[string]interface{} {
	w.m.Lock()
	defer w.m.Unlock()
	var out []map[string]interface{}
	for _, s := range w.sources {
		d := s.Adapter.Describe()
		d["frequency"] = s.Frequency
		if n, ok := w.exposure[s.Adapter.Name()]; ok {
			d["exposure"] = n
		}
		out = append(out, d)
	}
	return out
}

func (s Source) String() string {
	return fmt.Sprintf("%s (x%v)", s.Adapter.Name(), s.Frequency)
}
