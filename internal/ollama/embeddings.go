package ollama

import (
	"context"
	"fmt"
)

// VectorCache persists embedding vectors keyed by model and input text.
// The SQLite storage layer satisfies this interface.
type VectorCache interface {
	CachedVector(ctx context.Context, model, text string) ([]float32, bool, error)
	StoreCachedVector(ctx context.Context, model, text string, vector []float32) error
}

type embeddingsPayload struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type embeddingsRecord struct {
	Embedding []float64 `json:"embedding"`
}

// EmbedText embeds a single text with the client's embedding model
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	payload := embeddingsPayload{
		Model:     c.embedModel,
		Prompt:    text,
		KeepAlive: c.keepAlive,
		Options:   c.mergeOptions(nil),
	}
	var rec embeddingsRecord
	if err := c.post(ctx, "/api/embeddings", payload, &rec); err != nil {
		return nil, err
	}
	if len(rec.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrRequestFailed)
	}

	vector := make([]float32, len(rec.Embedding))
	for i, v := range rec.Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

// EmbedTexts embeds a batch of texts in order. With useCache set it consults
// the persistent cache before calling the server and stores fresh vectors
// back on success.
func (c *Client) EmbedTexts(ctx context.Context, texts []string, useCache bool) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Reject the whole batch before touching the cache or the network so a
	// bad item late in the slice cannot leave earlier texts half-processed.
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("text at index %d: %w", i, ErrEmptyText)
		}
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if useCache && c.cache != nil {
			cached, ok, err := c.cache.CachedVector(ctx, c.embedModel, text)
			if err != nil {
				return nil, fmt.Errorf("read embedding cache: %w", err)
			}
			if ok {
				vectors[i] = cached
				continue
			}
		}

		vector, err := c.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		if useCache && c.cache != nil {
			if err := c.cache.StoreCachedVector(ctx, c.embedModel, text, vector); err != nil {
				return nil, fmt.Errorf("write embedding cache: %w", err)
			}
		}
		vectors[i] = vector
	}
	return vectors, nil
}
