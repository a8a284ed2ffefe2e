package config

import (
	"io/ioutil"
	"path/filepath"

	"github.com/kiteco/patchdesc/kite-go/descriptor/datasets"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	yaml "gopkg.in/yaml.v2"
)

// TestSpec is a held-out labeled bank
type TestSpec struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// Manifest lists the training and test datasets. Relative paths are resolved against the
// manifest's directory.
type Manifest struct {
	Train    []datasets.Spec `yaml:"train"`
	Test     []TestSpec      `yaml:"test"`
	MasksDir string          `yaml:"masks_dir"`
}

// DefaultManifest is the reference mix: the six PhotoTour banks and the HPatches view split
// as fixed banks, plus the AMOS webcam sequences
func DefaultManifest() Manifest {
	var m Manifest
	for _, name := range []string{"liberty", "liberty_harris", "notredame", "notredame_harris", "yosemite", "yosemite_harris"} {
		m.Train = append(m.Train, datasets.Spec{Name: name, Kind: datasets.KindFixed, Path: name + ".gob.gz", Frequency: 1})
		m.Test = append(m.Test, TestSpec{Name: name, Path: name + "_test.gob.gz"})
	}
	m.Train = append(m.Train,
		datasets.Spec{Name: "hpatches_split_view_train", Kind: datasets.KindFixed, Path: "hpatches_split_view_train.gob.gz", Frequency: 6},
		datasets.Spec{Name: "amos", Kind: datasets.KindWebcam, Path: "AMOS_views_v3/Train", Frequency: 6},
	)
	return m
}

// LoadManifest reads a YAML manifest and resolves its paths
func LoadManifest(path string) (Manifest, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return Manifest{}, errors.WithKind(errors.Configuration, errors.Wrapf(err, "reading manifest"))
	}
	var m Manifest
	if err := yaml.UnmarshalStrict(buf, &m); err != nil {
		return Manifest{}, errors.WithKind(errors.Configuration, errors.Wrapf(err, "parsing manifest %s", path))
	}
	return m.Rooted(filepath.Dir(path)), nil
}

// Rooted returns a copy with relative paths joined to dir
func (m Manifest) Rooted(dir string) Manifest {
	out := Manifest{MasksDir: rooted(dir, m.MasksDir)}
	for _, s := range m.Train {
		s.Path = rooted(dir, s.Path)
		out.Train = append(out.Train, s)
	}
	for _, s := range m.Test {
		s.Path = rooted(dir, s.Path)
		out.Test = append(out.Test, s)
	}
	return out
}

// Validate checks every entry and that names are unique
func (m Manifest) Validate() error {
	if len(m.Train) == 0 {
		return errors.Kindf(errors.Configuration, "manifest has no training dataset")
	}
	seen := make(map[string]bool)
	for _, s := range m.Train {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return errors.Kindf(errors.Configuration, "duplicate training dataset %s", s.Name)
		}
		seen[s.Name] = true
	}
	for _, s := range m.Test {
		if s.Name == "" || s.Path == "" {
			return errors.Kindf(errors.Configuration, "test dataset needs a name and a path")
		}
	}
	return nil
}

func rooted(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
