package main

import (
	"github.com/kiteco/patchdesc/kite-go/descriptor/config"
	"github.com/kiteco/patchdesc/kite-golib/cmdline"
)

func main() {
	cmdline.MustDispatch(
		cmdline.Command{
			Name:     "train",
			Synopsis: "train a patch descriptor on the datasets of a manifest",
			Args:     &trainArgs{Args: config.DefaultArgs(), Progress: true},
		},
		cmdline.Command{
			Name:     "synthbank",
			Synopsis: "write a synthetic labeled patch bank for smoke runs",
			Args:     &synthArgs{Points: 1000, Views: 2, Negatives: 1000, Noise: 4, Seed: 1},
		},
		cmdline.Command{
			Name:     "bankinfo",
			Synopsis: "print the patch and match counts of patch banks",
			Args:     &bankInfoArgs{},
		},
	)
}
