package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies failures that callers handle differently: configuration and data failures are
// fatal for a run, sampling failures are absorbed where they happen, checkpoint failures trigger a
// partial load before giving up.
type Kind int

const (
	// Unknown is the kind of any error that was never tagged
	Unknown Kind = iota
	// Configuration is an unknown policy name or an invalid setting
	Configuration
	// DataUnavailable is a missing or corrupt dataset file
	DataUnavailable
	// SamplingRetryExhausted means no valid correspondence was found within the retry budget
	SamplingRetryExhausted
	// CheckpointLoad is a corrupt or mismatched checkpoint
	CheckpointLoad
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration error"
	case DataUnavailable:
		return "data unavailable"
	case SamplingRetryExhausted:
		return "sampling retries exhausted"
	case CheckpointLoad:
		return "checkpoint load error"
	default:
		return "error"
	}
}

type kindError struct {
	kind Kind
	err  error
}

func (k kindError) Error() string {
	return fmt.Sprintf("%s: %v", k.kind, k.err)
}

// Cause implements the causer interface of github.com/pkg/errors
func (k kindError) Cause() error { return k.err }

// Unwrap supports errors.Is and errors.As
func (k kindError) Unwrap() error { return k.err }

// WithKind tags err with the given kind; it returns nil for a nil error
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return kindError{kind: kind, err: err}
}

// Kindf is Errorf tagged with a kind
func Kindf(kind Kind, format string, args ...interface{}) error {
	return kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost kind attached to err, looking through wrapped errors
func KindOf(err error) Kind {
	var ke kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
