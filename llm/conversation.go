// Package llm holds the language-model side of csvagent: structured
// conversations, prompt rendering for instruction-tuned models and the
// generators that talk to model servers.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownRole is returned when a conversation contains a role a renderer cannot place
var ErrUnknownRole = errors.New("llm: unknown message role")

// Role identifies the speaker of a turn
type Role string

const (
	// RoleSystem carries instructions
	RoleSystem Role = "system"
	// RoleUser carries questions
	RoleUser Role = "user"
	// RoleAssistant carries model answers
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered list of turns
type Conversation []Turn

// Append returns the conversation with a new turn added
func (c Conversation) Append(role Role, content string) Conversation {
	return append(c, Turn{Role: role, Content: content})
}

// Validate checks that every turn has a known role
func (c Conversation) Validate() error {
	for i, turn := range c {
		switch turn.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("%w: turn %d has role %q", ErrUnknownRole, i+1, turn.Role)
		}
	}
	return nil
}

// Generator produces model text for a conversation
type Generator interface {
	Generate(ctx context.Context, conversation Conversation) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface
type GeneratorFunc func(ctx context.Context, conversation Conversation) (string, error)

// Generate calls f
func (f GeneratorFunc) Generate(ctx context.Context, conversation Conversation) (string, error) {
	return f(ctx, conversation)
}
