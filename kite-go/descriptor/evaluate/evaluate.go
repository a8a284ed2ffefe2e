package evaluate

import (
	"context"
	"math"

	"github.com/kiteco/patchdesc/kite-go/descriptor/augment"
	"github.com/kiteco/patchdesc/kite-go/descriptor/model"
	"github.com/kiteco/patchdesc/kite-go/descriptor/patches"
	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/montanaflynn/stats"
)

// Result summarizes one held-out bank
type Result struct {
	Name           string
	Pairs          int
	FPR95          float64
	AP             float64
	MeanPositive   float64
	MeanNegative   float64
	MedianPositive float64
	MedianNegative float64

	// Labels and Scores are kept for plotting
	Labels []int     `json:"-"`
	Scores []float64 `json:"-"`
}

// Run embeds both sides of every labeled match of bank with the test pipeline, batch pairs
// at a time, and scores the descriptor distances
func Run(ctx context.Context, m model.Model, name string, bank *patches.Bank, batch int) (Result, error) {
	if batch <= 0 {
		return Result{}, errors.Errorf("batch size must be positive, got %d", batch)
	}
	pipeline := augment.New(augment.Test)
	labels := make([]int, 0, len(bank.Matches))
	distances := make([]float64, 0, len(bank.Matches))

	for start := 0; start < len(bank.Matches); start += batch {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		end := start + batch
		if end > len(bank.Matches) {
			end = len(bank.Matches)
		}
		var as, ps []patches.Patch
		for _, match := range bank.Matches[start:end] {
			as = append(as, pipeline.Apply(bank.Gray(match.A), nil))
			ps = append(ps, pipeline.Apply(bank.Gray(match.B), nil))
			labels = append(labels, match.Label)
		}
		da := m.Embed(as)
		dp := m.Embed(ps)
		for i := range da {
			distances = append(distances, euclidean(da[i], dp[i]))
		}
	}

	return Score(name, labels, distances)
}

// Score computes the metrics of labeled descriptor distances
func Score(name string, labels []int, distances []float64) (Result, error) {
	scores := Scores(distances)
	fpr, err := FPR95(labels, scores)
	if err != nil {
		return Result{}, errors.Wrapf(err, "%s", name)
	}
	ap, err := AveragePrecision(labels, scores)
	if err != nil {
		return Result{}, errors.Wrapf(err, "%s", name)
	}

	var pos, neg stats.Float64Data
	for i, d := range distances {
		if labels[i] == 1 {
			pos = append(pos, d)
		} else {
			neg = append(neg, d)
		}
	}
	res := Result{
		Name:   name,
		Pairs:  len(labels),
		FPR95:  fpr,
		AP:     ap,
		Labels: labels,
		Scores: scores,
	}
	// both sides are non-empty once FPR95 succeeded
	res.MeanPositive, _ = pos.Mean()
	res.MeanNegative, _ = neg.Mean()
	res.MedianPositive, _ = pos.Median()
	res.MedianNegative, _ = neg.Median()
	return res, nil
}

func euclidean(a, b []float32) float64 {
	var sq float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sq += d * d
	}
	return math.Sqrt(sq)
}
