package evaluate

import (
	"fmt"

	"github.com/kiteco/patchdesc/kite-golib/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotROC draws the ROC curve of every result into one image; the format follows the
// extension of path (png, svg, pdf)
func PlotROC(path, title string, results []Result) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = title
	p.X.Label.Text = "false positive rate"
	p.Y.Label.Text = "true positive rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	var lines []interface{}
	for _, r := range results {
		fpr, tpr, err := ROC(r.Labels, r.Scores)
		if err != nil {
			return errors.Wrapf(err, "roc of %s", r.Name)
		}
		pts := make(plotter.XYs, len(fpr))
		for i := range fpr {
			pts[i].X = fpr[i]
			pts[i].Y = tpr[i]
		}
		lines = append(lines, fmt.Sprintf("%s (FPR95 %.4f)", r.Name, r.FPR95), pts)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return err
	}
	p.Legend.Top = false
	p.Legend.Left = false
	return p.Save(6*vg.Inch, 6*vg.Inch, path)
}
