package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/domain"
)

var (
	// ErrUnknownAgent is returned when a conversation references an agent
	// that was never registered with EnsureAgent.
	ErrUnknownAgent = errors.New("store: unknown agent")

	// ErrUnknownConversation is returned when a message targets a
	// conversation that does not exist.
	ErrUnknownConversation = errors.New("store: unknown conversation")
)

// Store persists agents, conversation records, and their message history.
type Store interface {
	// EnsureAgent inserts or refreshes an agent profile.
	EnsureAgent(ctx context.Context, agent domain.AgentProfile) error

	// SaveConversation inserts or replaces a conversation record.
	SaveConversation(ctx context.Context, rec domain.ConversationRecord) error

	// DeleteConversation removes a record and its messages. Missing ids are not an error.
	DeleteConversation(ctx context.Context, sessionID uuid.UUID) error

	// DeleteAllConversations removes every record belonging to an agent.
	DeleteAllConversations(ctx context.Context, agentID uuid.UUID) error

	// ListConversations returns an agent's records, oldest first.
	ListConversations(ctx context.Context, agentID uuid.UUID) ([]domain.ConversationRecord, error)

	// AppendMessage adds a message to a conversation's history.
	AppendMessage(ctx context.Context, msg domain.Message) error

	// Messages returns a conversation's history in append order.
	Messages(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error)
}
