package config

import (
	"strings"

	"github.com/kiteco/patchdesc/kite-golib/errors"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

var (
	lossNames       = []string{"triplet_margin", "softmax", "contrastive"}
	reductionNames  = []string{"min", "average", "random", "random_global"}
	weightFnNames   = []string{"Hessian", "HessianSqrt", "HessianSqrt4", "None"}
	patchGenNames   = []string{"oneRes", "sumImg"}
	optimizerNames  = []string{"sgd", "adam"}
	maxSuggestEdits = 3
)

// suggest returns the candidate closest to name, or "" when none is within a few edits
func suggest(name string, candidates []string) string {
	best, bestDist := "", maxSuggestEdits+1
	for _, c := range candidates {
		d := levenshtein.DistanceForStrings([]rune(strings.ToLower(name)), []rune(strings.ToLower(c)), levenshtein.DefaultOptions)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// withSuggestion adds a "did you mean" hint to an unknown-name error, keeping its kind
func withSuggestion(err error, name string, candidates []string) error {
	if err == nil {
		return nil
	}
	s := suggest(name, candidates)
	if s == "" {
		return err
	}
	return errors.Kindf(errors.KindOf(err), "%v, did you mean %q", errors.Cause(err), s)
}
