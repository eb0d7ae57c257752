package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/corpusloom/corpusloom/pkg/types"
)

// ChatRequest describes a chat call over an explicit message history
type ChatRequest struct {
	Messages []types.Message
	Model    string         // optional override of the client default
	Format   string         // "json" constrains output to valid JSON
	Options  map[string]any // per-call model options, merged over defaults
}

// ChatResult is the final outcome of a chat call
type ChatResult struct {
	Reply        types.Message
	Model        string
	EvalCount    int
	EvalDuration time.Duration
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Model     string         `json:"model"`
	Messages  []wireMessage  `json:"messages"`
	Stream    bool           `json:"stream"`
	Format    string         `json:"format,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type chatRecord struct {
	Model        string      `json:"model"`
	Message      wireMessage `json:"message"`
	Done         bool        `json:"done"`
	EvalCount    int         `json:"eval_count"`
	EvalDuration int64       `json:"eval_duration"`
}

func (c *Client) chatPayload(req ChatRequest, stream bool) chatPayload {
	messages := make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = wireMessage{Role: string(m.Role), Content: m.Content}
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	return chatPayload{
		Model:     model,
		Messages:  messages,
		Stream:    stream,
		Format:    req.Format,
		KeepAlive: c.keepAlive,
		Options:   c.mergeOptions(req.Options),
	}
}

// Chat sends the message history and returns the assistant reply
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	var rec chatRecord
	if err := c.post(ctx, "/api/chat", c.chatPayload(req, false), &rec); err != nil {
		return nil, err
	}
	return &ChatResult{
		Reply:        types.Message{Role: types.RoleAssistant, Content: rec.Message.Content},
		Model:        rec.Model,
		EvalCount:    rec.EvalCount,
		EvalDuration: time.Duration(rec.EvalDuration),
	}, nil
}

// ChatStream sends the message history, invoking fn for every reply token.
// The returned result carries the accumulated reply and the done record's
// metadata.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, fn StreamFunc) (*ChatResult, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	var sb strings.Builder
	result := &ChatResult{}
	err := c.postStream(ctx, "/api/chat", c.chatPayload(req, true), func(line []byte) (bool, error) {
		var rec chatRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return false, fmt.Errorf("decode stream record: %w", err)
		}
		if rec.Message.Content != "" {
			sb.WriteString(rec.Message.Content)
			if fn != nil {
				if err := fn(rec.Message.Content); err != nil {
					return false, err
				}
			}
		}
		if rec.Done {
			result.Model = rec.Model
			result.EvalCount = rec.EvalCount
			result.EvalDuration = time.Duration(rec.EvalDuration)
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	result.Reply = types.Message{Role: types.RoleAssistant, Content: sb.String()}
	return result, nil
}
