package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokensPerChar is the heuristic divisor for estimating tokens (chars/4)
const TokensPerChar = 4

// DefaultEncoding is the tiktoken encoding used when none is named
const DefaultEncoding = "cl100k_base"

// Estimator approximates the model token count of a string.
//
// Implementations must be deterministic and side-effect free: packing
// decisions have to be reproducible for a given input and configuration,
// and a single estimator may be shared across concurrent chunking calls.
type Estimator interface {
	Estimate(text string) int
}

// EstimatorFunc adapts a plain function to the Estimator interface
type EstimatorFunc func(text string) int

// Estimate calls f(text)
func (f EstimatorFunc) Estimate(text string) int { return f(text) }

// Heuristic returns the default estimator: len(text)/4.
// The average English word and the average code token both run about
// four bytes, which is accurate enough for budget packing.
func Heuristic() Estimator {
	return EstimatorFunc(func(text string) int {
		return len(text) / TokensPerChar
	})
}

// NewTiktoken returns an estimator backed by a BPE tokenizer for callers
// that want model-accurate counts. An empty encoding selects cl100k_base.
func NewTiktoken(encoding string) (Estimator, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return EstimatorFunc(func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}), nil
}
