package patches

import (
	"image"
	"os"

	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/kiteco/patchdesc/kite-golib/serialization"
)

// Match associates two patches of a bank. Label is 1 when both depict the same point.
type Match struct {
	A     int
	B     int
	Label int
}

// Bank is a stored set of pre-extracted patches plus the match list over them.
type Bank struct {
	Name      string
	PatchSide int
	// Patches holds PatchSide*PatchSide row-major bytes per patch
	Patches [][]byte
	Matches []Match
}

// LoadBank decodes a bank from path (see serialization.Decode for the supported extensions).
// A missing or inconsistent bank is a DataUnavailable error.
func LoadBank(path string) (*Bank, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.WithKind(errors.DataUnavailable, errors.Wrapf(err, "patch bank %s", path))
	}
	var b Bank
	if err := serialization.Decode(path, &b); err != nil {
		return nil, errors.WithKind(errors.DataUnavailable, err)
	}
	if err := b.Validate(); err != nil {
		return nil, errors.WithKind(errors.DataUnavailable, errors.Wrapf(err, "patch bank %s", path))
	}
	return &b, nil
}

// Save encodes the bank to path
func (b *Bank) Save(path string) error {
	return serialization.Encode(path, b)
}

// Validate checks that every patch has the right size and every match refers to a patch
func (b *Bank) Validate() error {
	if b.PatchSide <= 0 {
		return errors.Errorf("invalid patch side %d", b.PatchSide)
	}
	if len(b.Patches) == 0 {
		return errors.Errorf("no patches")
	}
	if len(b.Matches) == 0 {
		return errors.Errorf("no matches")
	}
	size := b.PatchSide * b.PatchSide
	for i, p := range b.Patches {
		if len(p) != size {
			return errors.Errorf("patch %d has %d bytes, expected %d", i, len(p), size)
		}
	}
	for i, m := range b.Matches {
		if m.A < 0 || m.A >= len(b.Patches) || m.B < 0 || m.B >= len(b.Patches) {
			return errors.Errorf("match %d refers to patches (%d, %d) outside [0, %d)", i, m.A, m.B, len(b.Patches))
		}
	}
	return nil
}

// Gray returns patch i as an image backed by the bank's storage
func (b *Bank) Gray(i int) *image.Gray {
	return &image.Gray{
		Pix:    b.Patches[i],
		Stride: b.PatchSide,
		Rect:   image.Rect(0, 0, b.PatchSide, b.PatchSide),
	}
}

// Positives returns the matches labelled as depicting the same point
func (b *Bank) Positives() []Match {
	var pos []Match
	for _, m := range b.Matches {
		if m.Label == 1 {
			pos = append(pos, m)
		}
	}
	return pos
}

// Stats summarizes a bank
type Stats struct {
	Patches   int
	Matches   int
	Positives int
	Negatives int
}

// Stats counts patches and matches by label
func (b *Bank) Stats() Stats {
	s := Stats{Patches: len(b.Patches), Matches: len(b.Matches)}
	for _, m := range b.Matches {
		if m.Label == 1 {
			s.Positives++
		} else {
			s.Negatives++
		}
	}
	return s
}
