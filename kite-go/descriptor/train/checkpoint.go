package train

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/kiteco/patchdesc/kite-go/descriptor/model"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/kiteco/patchdesc/kite-golib/serialization"
)

// Checkpoint is the persisted state of a run after an epoch
type Checkpoint struct {
	// Epoch is the first epoch still to train
	Epoch int
	// Step is the number of schedule steps taken
	Step      int
	SaveName  string
	State     map[string][]float32
	Optimizer *model.OptimizerState
}

var checkpointName = regexp.MustCompile(`^checkpoint_(\d+)\.gob(\.gz)?$`)

// CheckpointPath is where the checkpoint of epoch is written in dir
func CheckpointPath(dir string, epoch int) string {
	return filepath.Join(dir, fmt.Sprintf("checkpoint_%d.gob", epoch))
}

// Save writes the checkpoint to path, creating the directory
func (c Checkpoint) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return serialization.Encode(path, c)
}

// LoadCheckpoint decodes the checkpoint at path. Unreadable files are CheckpointLoad errors.
func LoadCheckpoint(path string) (Checkpoint, error) {
	var c Checkpoint
	if err := serialization.Decode(path, &c); err != nil {
		return Checkpoint{}, errors.WithKind(errors.CheckpointLoad, err)
	}
	return c, nil
}

// LatestCheckpoint returns the checkpoint with the highest epoch in dir
func LatestCheckpoint(dir string) (string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return "", errors.WithKind(errors.CheckpointLoad, err)
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return "", errors.WithKind(errors.CheckpointLoad, err)
	}

	best, bestEpoch := "", -1
	for _, name := range names {
		m := checkpointName.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		epoch, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if epoch > bestEpoch {
			best, bestEpoch = name, epoch
		}
	}
	if best == "" {
		return "", errors.Kindf(errors.CheckpointLoad, "no checkpoint in %s", dir)
	}
	return filepath.Join(dir, best), nil
}

// ResolveResume finds the checkpoint named by resume: a file path, then a file in modelDir,
// then a run directory in modelDir whose latest checkpoint is used. It returns "" when
// nothing matches.
func ResolveResume(resume, modelDir string) (string, error) {
	if resume == "" {
		return "", nil
	}
	if isFile(resume) {
		return resume, nil
	}
	inModelDir := filepath.Join(modelDir, resume)
	if isFile(inModelDir) {
		return inModelDir, nil
	}
	if info, err := os.Stat(inModelDir); err == nil && info.IsDir() {
		return LatestCheckpoint(inModelDir)
	}
	return "", nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Restored describes what a checkpoint restored
type Restored struct {
	model.PartialLoad
	Epoch     int
	Step      int
	Optimizer bool
}

// Restore loads the checkpoint weights into m, merging by name, and the optimizer state into
// opt when it is present and compatible. A checkpoint sharing no parameter with m is a
// CheckpointLoad error.
func Restore(c Checkpoint, m model.Model, opt model.Optimizer) (Restored, error) {
	res := Restored{
		PartialLoad: model.LoadState(m, c.State),
		Epoch:       c.Epoch,
		Step:        c.Step,
	}
	if len(res.Loaded) == 0 {
		return res, errors.Kindf(errors.CheckpointLoad, "checkpoint shares no parameter with the model (dropped %v)", res.Dropped)
	}
	if opt != nil && c.Optimizer != nil {
		res.Optimizer = opt.LoadState(c.Optimizer) == nil
	}
	return res, nil
}
