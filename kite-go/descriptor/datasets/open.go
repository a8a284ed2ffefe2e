package datasets

import (
	"github.com/kiteco/patchdesc/kite-go/descriptor/augment"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/kiteco/patchdesc/kite-golib/kitelog"
)

// Kinds of dataset understood by Open
const (
	KindFixed  = "fixed"
	KindWebcam = "webcam"
)

// Spec is one entry of the dataset manifest
type Spec struct {
	Name      string  `yaml:"name" json:"name"`
	Kind      string  `yaml:"kind" json:"kind"`
	Path      string  `yaml:"path" json:"path"`
	Frequency float64 `yaml:"frequency" json:"frequency"`
}

// Validate checks the entry independently of the data on disk
func (s Spec) Validate() error {
	if s.Name == "" {
		return errors.Kindf(errors.Configuration, "dataset without a name")
	}
	if s.Kind != KindFixed && s.Kind != KindWebcam {
		return errors.Kindf(errors.Configuration, "dataset %s: unknown kind %q", s.Name, s.Kind)
	}
	if s.Frequency <= 0 {
		return errors.Kindf(errors.Configuration, "dataset %s: frequency must be positive, got %v", s.Name, s.Frequency)
	}
	if s.Path == "" {
		return errors.Kindf(errors.Configuration, "dataset %s: empty path", s.Name)
	}
	return nil
}

// Open builds the adapter for spec. Fixed banks use the Train pipeline, webcam
// sequences the Webcam pipeline configured by webcam.
func Open(spec Spec, seed int64, webcam WebcamOptions, log *kitelog.Logger) (Adapter, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case KindWebcam:
		webcam.Seed = seed
		return NewWebcam(spec.Name, spec.Path, webcam, augment.New(augment.Webcam), log)
	default:
		return OpenFixed(spec.Name, spec.Path, augment.New(augment.Train), seed)
	}
}
