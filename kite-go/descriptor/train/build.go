package train

import (
	"math/rand"

	"github.com/kiteco/patchdesc/kite-go/descriptor/config"
	"github.com/kiteco/patchdesc/kite-go/descriptor/datasets"
	"github.com/kiteco/patchdesc/kite-go/descriptor/model"
	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/kiteco/patchdesc/kite-go/descriptor/sampling"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/kiteco/patchdesc/kite-golib/kitelog"
)

// Build opens every dataset of the manifest and assembles a trainer around the reference
// linear descriptor. With SkipUnavailable, training datasets that fail to open are left out
// as long as one remains.
func Build(cfg config.Config, log *kitelog.Logger) (*Trainer, error) {
	if log == nil {
		log = kitelog.Nop
	}

	var sources []sampling.Source
	for _, spec := range cfg.Manifest.Train {
		a, err := datasets.Open(spec, cfg.Seed, cfg.Webcam, log)
		if err != nil {
			if cfg.SkipUnavailable && errors.IsKind(err, errors.DataUnavailable) {
				log.Warnf("skipping dataset %s: %v", spec.Name, err)
				continue
			}
			return nil, err
		}
		log.Infof("opened %s dataset %s, %d available", spec.Kind, spec.Name, a.Available())
		sources = append(sources, sampling.Source{Adapter: a, Frequency: spec.Frequency})
	}
	if len(sources) == 0 {
		return nil, errors.Kindf(errors.DataUnavailable, "no training dataset could be opened")
	}

	var tests []TestSet
	for _, spec := range cfg.Manifest.Test {
		bank, err := patches.LoadBank(spec.Path)
		if err != nil {
			if cfg.SkipUnavailable {
				log.Warnf("skipping test set %s: %v", spec.Name, err)
				continue
			}
			return nil, err
		}
		tests = append(tests, TestSet{Name: spec.Name, Bank: bank})
	}

	wrapper, err := sampling.New(sources, sampling.Options{
		Triplets:        cfg.Triplets,
		BatchSize:       cfg.BatchSize,
		Workers:         cfg.Workers,
		Prefetch:        cfg.Prefetch,
		SkipUnavailable: cfg.SkipUnavailable,
		Seed:            cfg.Seed,
	}, log)
	if err != nil {
		return nil, err
	}

	m := model.NewLinear(patches.Size, cfg.Dim, rand.New(rand.NewSource(cfg.Seed)))
	opt, err := model.NewOptimizer(cfg.Optimizer, m.Params(), cfg.LR, cfg.WeightDecay)
	if err != nil {
		return nil, err
	}
	return New(cfg, m, opt, wrapper, tests, log), nil
}
