package main

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/kiteco/patchdesc/kite-golib/errors"
)

type synthArgs struct {
	Out       string  `arg:"positional,required" help:"output bank, e.g. synth.gob.gz"`
	Points    int     `arg:"--points" help:"3D points, each seen in --views patches"`
	Views     int     `arg:"--views"`
	Negatives int     `arg:"--negatives" help:"labeled non-matching pairs"`
	Noise     float64 `arg:"--noise" help:"pixel noise std between views"`
	Seed      int64   `arg:"--seed"`
}

func (a *synthArgs) Validate() error {
	if a.Points < 2 {
		return errors.Kindf(errors.Configuration, "need at least 2 points, got %d", a.Points)
	}
	if a.Negatives < 0 {
		return errors.Kindf(errors.Configuration, "negatives must not be negative")
	}
	return nil
}

func (a *synthArgs) Handle() error {
	name := strings.SplitN(filepath.Base(a.Out), ".", 2)[0]
	bank := patches.Synthesize(patches.SynthOptions{
		Name:      name,
		Points:    a.Points,
		Views:     a.Views,
		Negatives: a.Negatives,
		Noise:     a.Noise,
	}, rand.New(rand.NewSource(a.Seed)))

	if err := bank.Save(a.Out); err != nil {
		return errors.Wrapf(err, "writing %s", a.Out)
	}
	s := bank.Stats()
	fmt.Printf("wrote %s: %s patches, %s positives, %s negatives\n", a.Out,
		humanize.Comma(int64(s.Patches)), humanize.Comma(int64(s.Positives)), humanize.Comma(int64(s.Negatives)))
	return nil
}
