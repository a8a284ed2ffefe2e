package config

import "runtime"

// Args are the raw flags of the train command, parsed by go-arg
type Args struct {
	ModelDir string `arg:"--model-dir" help:"directory holding one subdirectory of checkpoints per run"`
	Name     string `arg:"--name" help:"training set name used in the run name"`
	Manifest string `arg:"--manifest" help:"YAML dataset manifest; the reference datasets under --data-dir are used when empty"`
	DataDir  string `arg:"--data-dir" help:"root of the reference datasets"`
	MasksDir string `arg:"--masks-dir" help:"directory of webcam masks, relative to --data-dir unless absolute"`

	Loss          string  `arg:"--loss" help:"triplet_margin, softmax or contrastive"`
	BatchReduce   string  `arg:"--batch-reduce" help:"min, average, random or random_global"`
	Margin        float64 `arg:"--margin"`
	AnchorSwap    bool    `arg:"--anchor-swap" help:"also mine negatives from the positive side"`
	Resume        string  `arg:"--resume" help:"checkpoint file, file in --model-dir, or run directory in --model-dir"`
	StartEpoch    int     `arg:"--start-epoch"`
	Epochs        int     `arg:"--epochs"`
	BatchSize     int     `arg:"--batch-size"`
	TestBatchSize int     `arg:"--test-batch-size"`
	NTriplets     int     `arg:"--n-triplets" help:"pairs drawn per epoch over all datasets"`
	LR            float64 `arg:"--lr"`
	WD            float64 `arg:"--wd" help:"weight decay"`
	Optimizer     string  `arg:"--optimizer" help:"sgd or adam"`
	Fliprot       bool    `arg:"--fliprot" help:"apply the same random flip and rotation to both patches of a pair"`

	WeightFunction string `arg:"--weight-function" help:"Hessian, HessianSqrt, HessianSqrt4 or None"`
	PatchGen       string `arg:"--patch-gen" help:"oneRes or sumImg"`
	NPatchSets     int    `arg:"--n-patch-sets" help:"distinct webcam locations per epoch"`
	CamsInBatch    int    `arg:"--cams-in-batch" help:"webcam cameras per batch, 0 for any"`

	ID              int   `arg:"--id"`
	Seed            int64 `arg:"--seed"`
	LogInterval     int   `arg:"--log-interval" help:"batches between progress updates"`
	Dim             int   `arg:"--dim" help:"descriptor size"`
	Workers         int   `arg:"--workers" help:"goroutines preparing datasets and loading batches"`
	Prefetch        int   `arg:"--prefetch" help:"batches loaded ahead of training"`
	SkipUnavailable bool  `arg:"--skip-unavailable" help:"train without datasets that fail to load"`
	Debug           bool  `arg:"--debug"`
	JSONLogs        bool  `arg:"--json-logs"`
}

// DefaultArgs returns the flags of the reference run
func DefaultArgs() Args {
	return Args{
		ModelDir:       "models/",
		DataDir:        "Datasets",
		MasksDir:       "AMOS_views_v3/Masks",
		Loss:           "triplet_margin",
		BatchReduce:    "min",
		Margin:         1.0,
		AnchorSwap:     true,
		Epochs:         10,
		BatchSize:      1024,
		TestBatchSize:  128,
		NTriplets:      5000000,
		LR:             20.0,
		WD:             1e-4,
		Optimizer:      "sgd",
		Fliprot:        true,
		WeightFunction: "Hessian",
		PatchGen:       "oneRes",
		NPatchSets:     30000,
		LogInterval:    1,
		Dim:            128,
		Workers:        runtime.NumCPU(),
		Prefetch:       4,
	}
}
