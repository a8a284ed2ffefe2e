package loss

import (
	"github.com/kiteco/patchdesc/kite-golib/errors"
)

// Type is the per-row loss applied to the positive and mined negative distances
type Type int

const (
	// TripletMargin is max(0, margin + d+ - d-)
	TripletMargin Type = iota
	// Softmax is -log(e^(2-d+) / (e^(2-d+) + e^(2-d-)))
	Softmax
	// Contrastive is max(0, margin - d-) + d+
	Contrastive
)

var typeNames = map[string]Type{
	"triplet_margin": TripletMargin,
	"softmax":        Softmax,
	"contrastive":    Contrastive,
}

// ParseType parses a loss name
func ParseType(name string) (Type, error) {
	if t, ok := typeNames[name]; ok {
		return t, nil
	}
	return TripletMargin, errors.Kindf(errors.Configuration, "unknown loss %q", name)
}

func (t Type) String() string {
	for name, v := range typeNames {
		if v == t {
			return name
		}
	}
	return "unknown"
}

// Reduction selects the negative used for each row of the distance matrix
type Reduction int

const (
	// Min takes the closest non-matching positive
	Min Reduction = iota
	// Average takes the mean distance to the non-matching positives
	Average
	// Random takes one random non-matching positive per row
	Random
	// RandomGlobal takes the positive at one random offset shared by every row
	RandomGlobal
)

var reductionNames = map[string]Reduction{
	"min":           Min,
	"average":       Average,
	"random":        Random,
	"random_global": RandomGlobal,
}

// ParseReduction parses a batch reduction name
func ParseReduction(name string) (Reduction, error) {
	if r, ok := reductionNames[name]; ok {
		return r, nil
	}
	return Min, errors.Kindf(errors.Configuration, "unknown batch reduction %q", name)
}

func (r Reduction) String() string {
	for name, v := range reductionNames {
		if v == r {
			return name
		}
	}
	return "unknown"
}

// Options configure Compute
type Options struct {
	Type      Type
	Reduction Reduction
	Margin    float64
	// AnchorSwap also considers distances from each positive to the other anchors
	AnchorSwap bool
}

// DefaultOptions match the usual HardNet training setup
var DefaultOptions = Options{
	Type:       TripletMargin,
	Reduction:  Min,
	Margin:     1,
	AnchorSwap: true,
}
