package types

import "errors"

// Role identifies the author of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation, exchanged with the model
// server and persisted as conversation history
type Message struct {
	Role    Role
	Content string
}

// Validate checks if the message is structurally valid
func (m *Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return errors.New("invalid message role")
	}

	if m.Content == "" {
		return errors.New("message content cannot be empty")
	}

	return nil
}
