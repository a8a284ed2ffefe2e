package datasets

import (
	"strings"

	"github.com/kiteco/patchdesc/kite-golib/errors"
)

// PatchGen selects how the webcam adapter extracts a raw tile around a location
type PatchGen int

const (
	// OneRes crops a RawSize tile directly from the frame
	OneRes PatchGen = iota
	// SumImg averages tiles cropped at several scales and resized to RawSize
	SumImg
)

// ParsePatchGen accepts oneRes (alias oneImg) and sumImg
func ParsePatchGen(name string) (PatchGen, error) {
	switch strings.ToLower(name) {
	case "oneres", "oneimg":
		return OneRes, nil
	case "sumimg":
		return SumImg, nil
	}
	return OneRes, errors.Kindf(errors.Configuration, "unknown patch generation method %q", name)
}

func (g PatchGen) String() string {
	if g == SumImg {
		return "sumImg"
	}
	return "oneRes"
}
