package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StreamFunc receives each response token as it arrives. Returning an error
// aborts the stream.
type StreamFunc func(token string) error

// GenerateRequest describes a one-shot generation call
type GenerateRequest struct {
	Prompt  string
	System  string         // optional system prompt
	Model   string         // optional override of the client default
	Format  string         // "json" constrains output to valid JSON
	Context []int          // opaque continuation state from a prior result
	Options map[string]any // per-call model options, merged over defaults
}

// GenerateResult is the final outcome of a generation call
type GenerateResult struct {
	ResponseText string
	Model        string
	EvalCount    int
	EvalDuration time.Duration
	Context      []int
}

type generatePayload struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	System    string         `json:"system,omitempty"`
	Stream    bool           `json:"stream"`
	Format    string         `json:"format,omitempty"`
	Context   []int          `json:"context,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type generateRecord struct {
	Model        string `json:"model"`
	Response     string `json:"response"`
	Done         bool   `json:"done"`
	EvalCount    int    `json:"eval_count"`
	EvalDuration int64  `json:"eval_duration"`
	Context      []int  `json:"context"`
}

func (c *Client) generatePayload(req GenerateRequest, stream bool) generatePayload {
	model := req.Model
	if model == "" {
		model = c.model
	}
	return generatePayload{
		Model:     model,
		Prompt:    req.Prompt,
		System:    req.System,
		Stream:    stream,
		Format:    req.Format,
		Context:   req.Context,
		KeepAlive: c.keepAlive,
		Options:   c.mergeOptions(req.Options),
	}
}

// Generate runs a one-shot completion and returns the full response
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	var rec generateRecord
	if err := c.post(ctx, "/api/generate", c.generatePayload(req, false), &rec); err != nil {
		return nil, err
	}
	return &GenerateResult{
		ResponseText: rec.Response,
		Model:        rec.Model,
		EvalCount:    rec.EvalCount,
		EvalDuration: time.Duration(rec.EvalDuration),
		Context:      rec.Context,
	}, nil
}

// GenerateStream runs a completion, invoking fn for every token. The returned
// result carries the accumulated text and the done record's metadata.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, fn StreamFunc) (*GenerateResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	var sb strings.Builder
	result := &GenerateResult{}
	err := c.postStream(ctx, "/api/generate", c.generatePayload(req, true), func(line []byte) (bool, error) {
		var rec generateRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return false, fmt.Errorf("decode stream record: %w", err)
		}
		if rec.Response != "" {
			sb.WriteString(rec.Response)
			if fn != nil {
				if err := fn(rec.Response); err != nil {
					return false, err
				}
			}
		}
		if rec.Done {
			result.Model = rec.Model
			result.EvalCount = rec.EvalCount
			result.EvalDuration = time.Duration(rec.EvalDuration)
			result.Context = rec.Context
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	result.ResponseText = sb.String()
	return result, nil
}
