package evaluate

import (
	"sort"

	"github.com/kiteco/patchdesc/kite-golib/errors"
)

// RecallPoint is the recall at which FPR95 reads the false positive rate
const RecallPoint = 0.95

// ScoreEps keeps scores finite for identical descriptors
const ScoreEps = 1e-8

// Scores turns descriptor distances into similarity scores 1/(d+ScoreEps)
func Scores(distances []float64) []float64 {
	out := make([]float64, len(distances))
	for i, d := range distances {
		out[i] = 1 / (d + ScoreEps)
	}
	return out
}

// byScore returns the labels ordered by decreasing score
func byScore(labels []int, scores []float64) ([]int, []float64, error) {
	if len(labels) != len(scores) {
		return nil, nil, errors.Errorf("%d labels but %d scores", len(labels), len(scores))
	}
	idx := make([]int, len(labels))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	l := make([]int, len(idx))
	s := make([]float64, len(idx))
	for i, j := range idx {
		l[i] = labels[j]
		s[i] = scores[j]
	}
	return l, s, nil
}

func counts(labels []int) (pos, neg int) {
	for _, l := range labels {
		if l == 1 {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}

// FPR95 sweeps the decision threshold from the highest score down and returns the fraction of
// negatives accepted at the first threshold that recalls 95% of the positives
func FPR95(labels []int, scores []float64) (float64, error) {
	sorted, _, err := byScore(labels, scores)
	if err != nil {
		return 0, err
	}
	pos, neg := counts(sorted)
	if pos == 0 || neg == 0 {
		return 0, errors.Errorf("need both positive and negative pairs, got %d and %d", pos, neg)
	}

	target := RecallPoint * float64(pos)
	threshold := len(sorted)
	var tp int
	for i, l := range sorted {
		if l == 1 {
			tp++
		}
		if float64(tp) >= target {
			threshold = i
			break
		}
	}

	var fp int
	for _, l := range sorted[:threshold] {
		if l != 1 {
			fp++
		}
	}
	return float64(fp) / float64(neg), nil
}

// AveragePrecision is the area under the precision/recall step curve of the score ranking.
// Tied scores form a single threshold.
func AveragePrecision(labels []int, scores []float64) (float64, error) {
	sorted, s, err := byScore(labels, scores)
	if err != nil {
		return 0, err
	}
	pos, _ := counts(sorted)
	if pos == 0 {
		return 0, errors.Errorf("no positive pairs")
	}

	var ap float64
	var tp, fp int
	for i := 0; i < len(sorted); {
		j := i
		var groupPos int
		for ; j < len(sorted) && s[j] == s[i]; j++ {
			if sorted[j] == 1 {
				groupPos++
			} else {
				fp++
			}
		}
		tp += groupPos
		if groupPos > 0 {
			ap += float64(groupPos) / float64(pos) * float64(tp) / float64(tp+fp)
		}
		i = j
	}
	return ap, nil
}

// ROC returns the false and true positive rates after each distinct threshold
func ROC(labels []int, scores []float64) ([]float64, []float64, error) {
	sorted, s, err := byScore(labels, scores)
	if err != nil {
		return nil, nil, err
	}
	pos, neg := counts(sorted)
	if pos == 0 || neg == 0 {
		return nil, nil, errors.Errorf("need both positive and negative pairs, got %d and %d", pos, neg)
	}
	fpr := []float64{0}
	tpr := []float64{0}
	var tp, fp int
	for i := range sorted {
		if sorted[i] == 1 {
			tp++
		} else {
			fp++
		}
		if i+1 < len(sorted) && s[i+1] == s[i] {
			continue
		}
		fpr = append(fpr, float64(fp)/float64(neg))
		tpr = append(tpr, float64(tp)/float64(pos))
	}
	return fpr, tpr, nil
}
