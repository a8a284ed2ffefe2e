package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
)

type bankInfoArgs struct {
	Banks []string `arg:"positional,required" help:"patch bank files"`
}

func (a *bankInfoArgs) Handle() error {
	tw := tabwriter.NewWriter(os.Stdout, 4, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "bank\tside\tpatches\tmatches\tpositives\tnegatives")
	for _, path := range a.Banks {
		bank, err := patches.LoadBank(path)
		if err != nil {
			return err
		}
		s := bank.Stats()
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", bank.Name, bank.PatchSide,
			humanize.Comma(int64(s.Patches)), humanize.Comma(int64(s.Matches)),
			humanize.Comma(int64(s.Positives)), humanize.Comma(int64(s.Negatives)))
	}
	return tw.Flush()
}
