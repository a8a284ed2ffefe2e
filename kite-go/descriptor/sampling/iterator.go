package sampling

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	"golang.org/x/sync/errgroup"
)

type loaded struct {
	batch patches.Batch
	err   error
}

// Iterator yields the batches of one epoch in plan order. Batches are loaded ahead by up to
// Workers goroutines, with at most Prefetch finished batches waiting for the consumer.
// A partial final batch is padded by cycling through its own pairs, so every batch holds exactly
// BatchSize pairs and no batch mixes in pairs laid out for another.
type Iterator struct {
	w     *Wrapper
	epoch int
	plan  []Ref

	cancel context.CancelFunc
	group  *errgroup.Group
	queue  chan chan loaded

	next      int
	err       error
	closeOnce sync.Once
}

func newIterator(ctx context.Context, w *Wrapper, epoch int, plan []Ref) *Iterator {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	it := &Iterator{
		w:      w,
		epoch:  epoch,
		plan:   plan,
		cancel: cancel,
		group:  g,
		queue:  make(chan chan loaded, w.opts.Prefetch),
	}
	g.Go(func() error {
		return it.produce(gctx)
	})
	return it
}

// produce starts one loader per batch, in order, and hands the result slots to the consumer.
// Every slot that reaches the queue has a running loader, which always fills it.
func (it *Iterator) produce(ctx context.Context) error {
	defer close(it.queue)
	sem := make(chan struct{}, it.w.opts.Workers)
	for b := 0; b < it.Len(); b++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		b := b
		slot := make(chan loaded, 1)
		it.group.Go(func() error {
			defer func() { <-sem }()
			batch, err := it.load(ctx, b)
			slot <- loaded{batch: batch, err: err}
			return err
		})

		select {
		case it.queue <- slot:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// load assembles batch b from the plan
func (it *Iterator) load(ctx context.Context, b int) (patches.Batch, error) {
	bs := it.w.opts.BatchSize
	rng := rand.New(rand.NewSource(it.w.opts.Seed ^ int64(it.epoch)<<32 ^ int64(b)))
	end := (b + 1) * bs
	if end > len(it.plan) {
		end = len(it.plan)
	}
	part := it.plan[b*bs : end]

	// local indices of each source in this batch, for substitution
	local := make(map[int][]int)
	for _, r := range part {
		local[r.Source] = append(local[r.Source], r.Index)
	}
	for _, idx := range local {
		sort.Ints(idx)
	}

	pairs := make([]patches.Pair, 0, bs)
	for j := 0; j < bs; j++ {
		if err := ctx.Err(); err != nil {
			return patches.Batch{}, err
		}
		ref := part[j%len(part)]
		pair, err := it.pair(ref, local[ref.Source], rng)
		if err != nil {
			return patches.Batch{}, err
		}
		pairs = append(pairs, pair)
	}
	return patches.NewBatch(pairs), nil
}

// pair fetches one pair. While the adapter reports SamplingRetryExhausted it substitutes the next
// of the adapter's local indices in the same batch, cycling; a lone index is retried as is.
func (it *Iterator) pair(ref Ref, batch []int, rng *rand.Rand) (patches.Pair, error) {
	src := it.w.sources[ref.Source].Adapter
	idx := ref.Index
	k := sort.SearchInts(batch, idx)
	for attempt := 0; ; attempt++ {
		pair, err := src.Pair(idx, rng)
		if err == nil {
			return pair, nil
		}
		if !errors.IsKind(err, errors.SamplingRetryExhausted) || attempt >= it.w.opts.MaxSubstitutions {
			return patches.Pair{}, errors.Wrapf(err, "%s pair %d", src.Name(), ref.Index)
		}
		it.w.log.Warnf("%s: substituting pair %d: %v", src.Name(), idx, err)
		k = (k + 1) % len(batch)
		idx = batch[k]
	}
}

// Len is the number of batches the iterator yields
func (it *Iterator) Len() int {
	if len(it.plan) == 0 {
		return 0
	}
	return it.w.Len()
}

// Next returns the next batch, or false when the epoch is over or loading failed (see Err)
func (it *Iterator) Next() (patches.Batch, bool) {
	if it.err != nil {
		return patches.Batch{}, false
	}
	slot, ok := <-it.queue
	if !ok {
		return patches.Batch{}, false
	}
	res := <-slot
	if res.err != nil {
		it.err = res.err
		return patches.Batch{}, false
	}
	it.next++
	return res.batch, true
}

// Consumed is the number of batches returned so far
func (it *Iterator) Consumed() int {
	return it.next
}

// Err returns the loading error that stopped the iterator, if any
func (it *Iterator) Err() error {
	return it.err
}

// Close cancels outstanding loads, waits for every loader to exit and returns the wrapper to
// Idle. It is safe to call more than once.
func (it *Iterator) Close() error {
	it.closeOnce.Do(func() {
		it.cancel()
		for range it.queue {
		}
		it.group.Wait()
		it.w.finish()
	})
	return it.err
}
