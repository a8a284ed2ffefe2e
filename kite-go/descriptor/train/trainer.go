package train

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/kiteco/patchdesc/kite-go/descriptor/augment"
	"github.com/kiteco/patchdesc/kite-go/descriptor/config"
	"github.com/kiteco/patchdesc/kite-go/descriptor/evaluate"
	"github.com/kiteco/patchdesc/kite-go/descriptor/loss"
	"github.com/kiteco/patchdesc/kite-go/descriptor/model"
	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/kiteco/patchdesc/kite-go/descriptor/sampling"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/kiteco/patchdesc/kite-golib/kitelog"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
)

// TestSet is a held-out labeled bank evaluated after every epoch
type TestSet struct {
	Name string
	Bank *patches.Bank
}

// Trainer runs the epochs of one training run
type Trainer struct {
	cfg     config.Config
	model   model.Model
	opt     model.Optimizer
	wrapper *sampling.Wrapper
	tests   []TestSet
	sched   *Schedule
	log     *kitelog.Logger

	// Progress shows a progress bar per epoch on stderr
	Progress bool

	losses  []float64
	results map[int][]evaluate.Result
	stopped bool
	// wroteSetup is set once the run summary reflects a prepared epoch
	wroteSetup bool
}

// New wires a trainer from already opened components
func New(cfg config.Config, m model.Model, opt model.Optimizer, wrapper *sampling.Wrapper, tests []TestSet, log *kitelog.Logger) *Trainer {
	if log == nil {
		log = kitelog.Nop
	}
	return &Trainer{
		cfg:     cfg,
		model:   m,
		opt:     opt,
		wrapper: wrapper,
		tests:   tests,
		sched:   NewSchedule(cfg.LR, cfg.BatchSize, cfg.Triplets, cfg.Epochs),
		log:     log.WithDurations(),
		results: make(map[int][]evaluate.Result),
	}
}

// Losses returns the mean batch loss of every step taken
func (t *Trainer) Losses() []float64 {
	return t.losses
}

// Results returns the test results of every finished epoch
func (t *Trainer) Results() map[int][]evaluate.Result {
	return t.results
}

// Stopped is true once the schedule ran out and training ended early
func (t *Trainer) Stopped() bool {
	return t.stopped
}

// Run resumes from the configured checkpoint if any, then trains, checkpoints and evaluates
// every epoch. Training ends early once the learning rate schedule is exhausted.
func (t *Trainer) Run(ctx context.Context) error {
	start, err := t.resume()
	if err != nil {
		return err
	}

	dir := t.cfg.RunDir()
	t.log.Infof("split_name: %s", t.cfg.SplitName())
	t.log.Infof("save_name: %s", t.cfg.SaveName())

	for epoch := start; epoch < start+t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.trainEpoch(ctx, epoch); err != nil {
			return errors.Wrapf(err, "epoch %d", epoch)
		}

		path := CheckpointPath(dir, epoch)
		ck := Checkpoint{
			Epoch:     epoch + 1,
			Step:      t.sched.Calls(),
			SaveName:  t.cfg.SaveName(),
			State:     model.State(t.model),
			Optimizer: t.opt.State(),
		}
		if err := ck.Save(path); err != nil {
			return errors.Wrapf(err, "saving checkpoint")
		}
		t.log.Infof("saved %s, learning rate %v", path, t.opt.LR())

		if err := t.test(ctx, epoch); err != nil {
			return err
		}
		t.log.Durations.Flush(t.log)

		if t.stopped {
			t.log.Infof("learning rate schedule exhausted after epoch %d, training finished", epoch)
			break
		}
	}

	if len(t.losses) > 1 {
		if err := PlotLoss(filepath.Join(dir, LossPlotFile), t.losses); err != nil {
			t.log.Warnf("loss plot: %v", err)
		}
	}
	return nil
}

// resume loads the configured checkpoint and returns the epoch to start from
func (t *Trainer) resume() (int, error) {
	start := t.cfg.StartEpoch
	path, err := ResolveResume(t.cfg.Resume, t.cfg.ModelDir)
	if err != nil {
		return 0, err
	}
	if t.cfg.Resume == "" {
		return start, nil
	}
	if path == "" {
		t.log.Warnf("no checkpoint found for %s", t.cfg.Resume)
		return start, nil
	}

	t.log.Infof("loading checkpoint %s", path)
	ck, err := LoadCheckpoint(path)
	if err != nil {
		return 0, err
	}
	res, err := Restore(ck, t.model, t.opt)
	if err != nil {
		return 0, errors.Wrapf(err, "restoring %s", path)
	}
	if !res.Complete() {
		t.log.Warnf("loaded a subset of weights: loaded %v, dropped %v, missing %v", res.Loaded, res.Dropped, res.Missing)
	}
	if !res.Optimizer {
		t.log.Warnf("optimizer not loaded")
	}
	t.sched.Restore(res.Step)
	if lr, ok := t.peekLR(); ok {
		t.opt.SetLR(lr)
	}
	return res.Epoch, nil
}

// peekLR is the rate the schedule gave for its last step
func (t *Trainer) peekLR() (float64, bool) {
	if t.sched.Calls() == 0 {
		return t.cfg.LR, true
	}
	s := *t.sched
	s.Restore(s.Calls() - 1)
	return s.Next()
}

func (t *Trainer) trainEpoch(ctx context.Context, epoch int) error {
	start := time.Now()
	if err := t.wrapper.PrepareEpoch(ctx, epoch); err != nil {
		return err
	}
	t.log.Durations.Since("prepare", start)
	exposure := t.wrapper.Exposure()
	t.log.Debugf("epoch %d exposure: %v", epoch, exposure)
	if !t.wroteSetup {
		// written after the first prepare so datasets skipped as unavailable show up as such
		if err := WriteSetup(t.cfg.RunDir(), t.cfg, t.wrapper.Sources(), exposure); err != nil {
			return errors.Wrapf(err, "writing run summary")
		}
		t.wroteSetup = true
	}

	start = time.Now()
	it, err := t.wrapper.Iterate(ctx)
	if err != nil {
		return err
	}
	defer it.Close()

	rng := rand.New(rand.NewSource(t.cfg.Seed + int64(epoch)))
	var stepErr error
	err = t.forEach(it.Len(), fmt.Sprintf("Train epoch %d", epoch), func(i int) bool {
		batch, ok := it.Next()
		if !ok {
			return true
		}
		if t.cfg.Fliprot {
			batch = augment.FlipRot(batch, rng)
		}
		l, err := t.step(batch, rng)
		if err != nil {
			stepErr = err
			return true
		}
		t.losses = append(t.losses, l)

		lr, ok := t.sched.Next()
		if !ok {
			t.stopped = true
			return true
		}
		t.opt.SetLR(lr)
		if i%t.cfg.LogInterval == 0 {
			t.log.Debugf("train epoch %d [%d/%d]\tloss: %.6f\tlr: %.6g", epoch, (i+1)*batch.Len(), it.Len()*batch.Len(), l, lr)
		}
		return false
	})
	if err != nil {
		return err
	}
	if stepErr != nil {
		return stepErr
	}
	if err := it.Close(); err != nil {
		return err
	}
	t.log.Durations.Since("train", start)
	return nil
}

// step runs forward, loss, backward and the optimizer update for one batch
func (t *Trainer) step(b patches.Batch, rng *rand.Rand) (float64, error) {
	model.ZeroGrad(t.model)
	outA, backA := t.model.Forward(b.Anchors)
	outP, backP := t.model.Forward(b.Positives)
	res, err := loss.Compute(outA, outP, t.cfg.Loss, rng)
	if err != nil {
		return 0, err
	}
	if err := backA(res.GradAnchors); err != nil {
		return 0, err
	}
	if err := backP(res.GradPositives); err != nil {
		return 0, err
	}
	t.opt.Step()
	return res.Mean(), nil
}

func (t *Trainer) test(ctx context.Context, epoch int) error {
	if len(t.tests) == 0 {
		return nil
	}
	start := time.Now()
	var results []evaluate.Result
	for _, ts := range t.tests {
		res, err := evaluate.Run(ctx, t.model, ts.Name, ts.Bank, t.cfg.TestBatchSize)
		if err != nil {
			return errors.Wrapf(err, "testing %s", ts.Name)
		}
		t.log.Infof("test set %s epoch %d: FPR95 %.8f, AP %.8f", ts.Name, epoch, res.FPR95, res.AP)
		results = append(results, res)
	}
	t.results[epoch] = results
	t.log.Durations.Since("test", start)

	path := filepath.Join(t.cfg.RunDir(), fmt.Sprintf(ROCPlotFile, epoch))
	if err := evaluate.PlotROC(path, fmt.Sprintf("epoch %d", epoch), results); err != nil {
		t.log.Warnf("roc plot: %v", err)
	}
	return nil
}

// forEach calls fn for 0..n-1 until it returns true, behind a progress bar when enabled
func (t *Trainer) forEach(n int, desc string, fn func(i int) bool) error {
	if !t.Progress {
		for i := 0; i < n; i++ {
			if fn(i) {
				break
			}
		}
		return nil
	}
	return tqdm.With(iterators.Interval(0, n), desc, func(v interface{}) (brk bool) {
		return fn(v.(int))
	})
}
