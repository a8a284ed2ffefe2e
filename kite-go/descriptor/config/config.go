package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kiteco/patchdesc/kite-go/descriptor/datasets"
	"github.com/kiteco/patchdesc/kite-go/descriptor/loss"
	"github.com/kiteco/patchdesc/kite-go/descriptor/weightfn"
	"github.com/kiteco/patchdesc/kite-golib/errors"
)

// Config is the resolved, validated configuration of a training run. It is built once by
// Resolve and never modified afterwards.
type Config struct {
	ModelDir string
	Name     string
	Resume   string
	ID       int
	Seed     int64

	StartEpoch    int
	Epochs        int
	BatchSize     int
	TestBatchSize int
	Triplets      int
	LR            float64
	WeightDecay   float64
	Optimizer     string
	Fliprot       bool
	Loss          loss.Options

	Webcam   datasets.WebcamOptions
	Manifest Manifest

	Dim             int
	Workers         int
	Prefetch        int
	SkipUnavailable bool
	LogInterval     int
	Debug           bool
	JSONLogs        bool
}

// Resolve validates args and converts every policy name into its typed value. Any error is a
// Configuration error.
func Resolve(a Args) (Config, error) {
	lossType, err := loss.ParseType(a.Loss)
	if err != nil {
		return Config{}, withSuggestion(err, a.Loss, lossNames)
	}
	reduction, err := loss.ParseReduction(a.BatchReduce)
	if err != nil {
		return Config{}, withSuggestion(err, a.BatchReduce, reductionNames)
	}
	wf, err := weightfn.Parse(a.WeightFunction)
	if err != nil {
		return Config{}, withSuggestion(err, a.WeightFunction, weightFnNames)
	}
	pg, err := datasets.ParsePatchGen(a.PatchGen)
	if err != nil {
		return Config{}, withSuggestion(err, a.PatchGen, patchGenNames)
	}
	optimizer := strings.ToLower(a.Optimizer)
	if optimizer != "sgd" && optimizer != "adam" {
		return Config{}, withSuggestion(errors.Kindf(errors.Configuration, "unknown optimizer %q", a.Optimizer), a.Optimizer, optimizerNames)
	}

	checks := []struct {
		ok  bool
		msg string
	}{
		{a.Epochs > 0, "epochs must be positive"},
		{a.StartEpoch >= 0, "start epoch must not be negative"},
		{a.BatchSize >= 2, "batch size must be at least 2 to mine negatives"},
		{a.TestBatchSize > 0, "test batch size must be positive"},
		{a.NTriplets > 0, "n-triplets must be positive"},
		{a.LR > 0, "learning rate must be positive"},
		{a.WD >= 0, "weight decay must not be negative"},
		{a.Margin >= 0, "margin must not be negative"},
		{a.NPatchSets >= 0, "n-patch-sets must not be negative"},
		{a.CamsInBatch >= 0, "cams-in-batch must not be negative"},
		{a.Dim > 0, "descriptor size must be positive"},
		{a.LogInterval > 0, "log interval must be positive"},
	}
	for _, c := range checks {
		if !c.ok {
			return Config{}, errors.Kindf(errors.Configuration, "%s", c.msg)
		}
	}

	var manifest Manifest
	if a.Manifest != "" {
		if manifest, err = LoadManifest(a.Manifest); err != nil {
			return Config{}, err
		}
	} else {
		manifest = DefaultManifest()
		manifest.MasksDir = a.MasksDir
		manifest = manifest.Rooted(a.DataDir)
	}
	if err := manifest.Validate(); err != nil {
		return Config{}, err
	}

	webcam := datasets.DefaultWebcamOptions
	webcam.WeightFn = wf
	webcam.PatchGen = pg
	webcam.MasksDir = manifest.MasksDir
	webcam.CamsInBatch = a.CamsInBatch
	webcam.BatchSize = a.BatchSize
	webcam.PatchSets = a.NPatchSets
	webcam.Seed = a.Seed

	workers := a.Workers
	if workers <= 0 {
		workers = 1
	}
	prefetch := a.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return Config{
		ModelDir:      a.ModelDir,
		Name:          a.Name,
		Resume:        a.Resume,
		ID:            a.ID,
		Seed:          a.Seed,
		StartEpoch:    a.StartEpoch,
		Epochs:        a.Epochs,
		BatchSize:     a.BatchSize,
		TestBatchSize: a.TestBatchSize,
		Triplets:      a.NTriplets,
		LR:            a.LR,
		WeightDecay:   a.WD,
		Optimizer:     optimizer,
		Fliprot:       a.Fliprot,
		Loss: loss.Options{
			Type:       lossType,
			Reduction:  reduction,
			Margin:     a.Margin,
			AnchorSwap: a.AnchorSwap,
		},
		Webcam:          webcam,
		Manifest:        manifest,
		Dim:             a.Dim,
		Workers:         workers,
		Prefetch:        prefetch,
		SkipUnavailable: a.SkipUnavailable,
		LogInterval:     a.LogInterval,
		Debug:           a.Debug,
		JSONLogs:        a.JSONLogs,
	}, nil
}

// SplitName identifies the webcam sampling setup, e.g. PS:30000PP_WF:Hessian_PG:oneRes
func (c Config) SplitName() string {
	return strings.Join([]string{
		fmt.Sprintf("PS:%dPP", c.Webcam.PatchSets),
		"WF:" + c.Webcam.WeightFn.String(),
		"PG:" + c.Webcam.PatchGen.String(),
	}, "_")
}

// SaveName identifies the run; checkpoints are written to ModelDir/SaveName
func (c Config) SaveName() string {
	return strings.Join([]string{
		fmt.Sprintf("id:%d", c.ID),
		"TrS:" + c.Name,
		"loss:" + strings.Replace(c.Loss.Type.String(), "_", "", -1),
		c.SplitName(),
		c.Loss.Reduction.String(),
		fmt.Sprintf("tps:%d", c.Triplets),
		fmt.Sprintf("camsB:%d", c.Webcam.CamsInBatch),
		fmt.Sprintf("ep:%d", c.Epochs),
	}, "_")
}

// RunDir is the directory of this run's checkpoints and artifacts
func (c Config) RunDir() string {
	return filepath.Join(c.ModelDir, c.SaveName())
}
