package train

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/kiteco/patchdesc/kite-go/descriptor/config"
	"github.com/kiteco/patchdesc/kite-go/descriptor/sampling"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	chart "github.com/wcharczuk/go-chart"
)

const (
	// SetupFile summarizes the datasets of a run
	SetupFile = "setup.txt"
	// LossPlotFile is the training curve of a run
	LossPlotFile = "loss.png"
	// ROCPlotFile is the ROC curve of the test sets after an epoch, formatted with the epoch
	ROCPlotFile = "roc_%d.png"
)

// WriteSetup writes the resolved run and dataset configuration to dir/setup.txt. exposure holds
// the pairs per epoch of each dataset that was prepared; the others are listed as skipped.
func WriteSetup(dir string, cfg config.Config, sources []sampling.Source, exposure map[string]int) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "save_name: %s\n", cfg.SaveName())
	fmt.Fprintf(&b, "split_name: %s\n", cfg.SplitName())
	fmt.Fprintf(&b, "pairs per epoch: %s in batches of %s, %d epochs from epoch %d\n",
		humanize.Comma(int64(cfg.Triplets)), humanize.Comma(int64(cfg.BatchSize)), cfg.Epochs, cfg.StartEpoch)
	fmt.Fprintf(&b, "loss: %s, reduction: %s, margin: %v, anchor swap: %v\n",
		cfg.Loss.Type, cfg.Loss.Reduction, cfg.Loss.Margin, cfg.Loss.AnchorSwap)
	fmt.Fprintf(&b, "optimizer: %s, lr: %v, weight decay: %v, fliprot: %v\n\n",
		cfg.Optimizer, cfg.LR, cfg.WeightDecay, cfg.Fliprot)

	for _, s := range sources {
		if n, ok := exposure[s.Adapter.Name()]; ok {
			fmt.Fprintf(&b, "%s (frequency %v, %s pairs per epoch)\n", s.Adapter.Name(), s.Frequency, humanize.Comma(int64(n)))
		} else {
			fmt.Fprintf(&b, "%s (frequency %v, skipped as unavailable)\n", s.Adapter.Name(), s.Frequency)
		}
		desc := s.Adapter.Describe()
		var keys []string
		for k := range desc {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tw := tabwriter.NewWriter(&b, 4, 4, 1, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(tw, "  %s:\t%v\n", k, desc[k])
		}
		tw.Flush()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return ioutil.WriteFile(filepath.Join(dir, SetupFile), b.Bytes(), 0644)
}

// PlotLoss renders the per-step training loss to path as a PNG
func PlotLoss(path string, losses []float64) error {
	if len(losses) < 2 {
		return errors.Errorf("need at least 2 steps to plot, got %d", len(losses))
	}
	xs := make([]float64, len(losses))
	for i := range xs {
		xs[i] = float64(i)
	}
	graph := chart.Chart{
		Title:      "Training loss",
		TitleStyle: chart.StyleShow(),
		XAxis: chart.XAxis{
			Name:      "Step",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxis: chart.YAxis{
			Name:      "Loss",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "loss",
				XValues: xs,
				YValues: losses,
				Style: chart.Style{
					Show:        true,
					StrokeColor: chart.GetDefaultColor(0),
				},
			},
		},
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := graph.Render(chart.PNG, f); err != nil {
		f.Close()
		return errors.Wrapf(err, "rendering %s", path)
	}
	return f.Close()
}
