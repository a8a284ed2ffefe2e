package sampling

import (
	"math"
	"sort"
)

// Quotas splits total pairs over datasets in proportion to freqs. Each share is the exact
// proportion rounded down, and the remainder goes to the largest fractional parts, so the
// quotas sum to total and each differs from round(total*f/sum(f)) by at most one.
func Quotas(total int, freqs []float64) []int {
	quotas := make([]int, len(freqs))
	var sum float64
	for _, f := range freqs {
		if f > 0 {
			sum += f
		}
	}
	if total <= 0 || sum == 0 {
		return quotas
	}

	type remainder struct {
		idx  int
		frac float64
	}
	var rems []remainder
	assigned := 0
	for i, f := range freqs {
		if f <= 0 {
			continue
		}
		exact := float64(total) * f / sum
		q := int(math.Floor(exact))
		quotas[i] = q
		assigned += q
		rems = append(rems, remainder{idx: i, frac: exact - float64(q)})
	}

	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < total; i++ {
		quotas[rems[i%len(rems)].idx]++
		assigned++
	}
	return quotas
}
