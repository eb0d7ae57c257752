package types

import (
	"crypto/sha256"
	"errors"
)

// Chunk represents a token-bounded unit of assembled text, ready for
// embedding and storage
type Chunk struct {
	// Identification
	Index int // 0-based position in output order, stable and contiguous

	// Content
	Text          string // may begin with an overlap prefix copied from the previous chunk
	TokenEstimate int    // estimator applied to Text

	// Provenance
	Blocks []Block // ordered contributing blocks (or the single block a fragment came from)

	// OverBudget marks the documented budget relaxation: TokenEstimate
	// exceeds the configured maximum because no smaller split point was
	// taken. This covers a lone block inside the hard-wrap tolerance band
	// and an indivisible oversized unit that survived hard wrapping.
	// Callers can log or reject such chunks instead of discovering the
	// violation downstream.
	OverBudget bool
}

// ContentHash computes the SHA-256 hash of the chunk text
func (c *Chunk) ContentHash() [32]byte {
	return sha256.Sum256([]byte(c.Text))
}

// Validate checks if the chunk is structurally valid
func (c *Chunk) Validate() error {
	if c.Index < 0 {
		return errors.New("chunk index cannot be negative")
	}

	if c.Text == "" {
		return errors.New("chunk text cannot be empty")
	}

	if c.TokenEstimate < 0 {
		return errors.New("token estimate cannot be negative")
	}

	for i := range c.Blocks {
		if err := c.Blocks[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}
