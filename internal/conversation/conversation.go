// Package conversation persists chat sessions and drives the chat flow:
// load history, append the user turn, call the model, persist the reply.
package conversation

import (
	"context"
	"fmt"

	"github.com/corpusloom/corpusloom/internal/ollama"
	"github.com/corpusloom/corpusloom/internal/storage"
	"github.com/corpusloom/corpusloom/pkg/types"
)

// ChatClient is the model call surface the manager needs. *ollama.Client
// satisfies it.
type ChatClient interface {
	Chat(ctx context.Context, req ollama.ChatRequest) (*ollama.ChatResult, error)
	ChatStream(ctx context.Context, req ollama.ChatRequest, fn ollama.StreamFunc) (*ollama.ChatResult, error)
}

// Manager handles conversation lifecycle and message persistence
type Manager struct {
	store  storage.Storage
	client ChatClient
}

// NewManager creates a manager over the given store and model client
func NewManager(store storage.Storage, client ChatClient) *Manager {
	return &Manager{store: store, client: client}
}

// New creates a conversation. A non-empty system prompt is recorded as the
// first message.
func (m *Manager) New(ctx context.Context, name, system string) (*storage.Conversation, error) {
	conv := &storage.Conversation{
		Name:   name,
		System: system,
	}
	if err := m.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	if system != "" {
		err := m.store.AppendMessage(ctx, &storage.Message{
			ConversationID: conv.ID,
			Role:           string(types.RoleSystem),
			Content:        system,
		})
		if err != nil {
			return nil, fmt.Errorf("record system message: %w", err)
		}
	}
	return conv, nil
}

// Get returns a conversation by id
func (m *Manager) Get(ctx context.Context, id string) (*storage.Conversation, error) {
	return m.store.GetConversation(ctx, id)
}

// List returns all conversations, most recently updated first
func (m *Manager) List(ctx context.Context) ([]*storage.Conversation, error) {
	return m.store.ListConversations(ctx)
}

// Append records a message without calling the model
func (m *Manager) Append(ctx context.Context, conversationID string, msg types.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return m.store.AppendMessage(ctx, &storage.Message{
		ConversationID: conversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
	})
}

// History returns the conversation's messages in insertion order
func (m *Manager) History(ctx context.Context, conversationID string) ([]types.Message, error) {
	stored, err := m.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	messages := make([]types.Message, len(stored))
	for i, msg := range stored {
		messages[i] = types.Message{Role: types.Role(msg.Role), Content: msg.Content}
	}
	return messages, nil
}

// Send appends the user turn, calls the model with the full history, and
// persists the assistant reply
func (m *Manager) Send(ctx context.Context, conversationID, content string) (*ollama.ChatResult, error) {
	return m.send(ctx, conversationID, content, nil, false)
}

// SendStream is Send with the reply streamed token by token through fn
func (m *Manager) SendStream(ctx context.Context, conversationID, content string, fn ollama.StreamFunc) (*ollama.ChatResult, error) {
	return m.send(ctx, conversationID, content, fn, true)
}

func (m *Manager) send(ctx context.Context, conversationID, content string, fn ollama.StreamFunc, stream bool) (*ollama.ChatResult, error) {
	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := m.History(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	userMsg := types.Message{Role: types.RoleUser, Content: content}
	if err := m.Append(ctx, conversationID, userMsg); err != nil {
		return nil, fmt.Errorf("record user message: %w", err)
	}

	req := ollama.ChatRequest{
		Messages: append(history, userMsg),
		Model:    conv.Model,
	}

	var result *ollama.ChatResult
	if stream {
		result, err = m.client.ChatStream(ctx, req, fn)
	} else {
		result, err = m.client.Chat(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if err := m.Append(ctx, conversationID, result.Reply); err != nil {
		return nil, fmt.Errorf("record reply: %w", err)
	}
	return result, nil
}
