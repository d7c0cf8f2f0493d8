package store

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/domain"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu            sync.RWMutex
	agents        map[uuid.UUID]domain.AgentProfile
	conversations map[uuid.UUID]domain.ConversationRecord
	messages      map[uuid.UUID][]domain.Message // session id → history
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:        make(map[uuid.UUID]domain.AgentProfile),
		conversations: make(map[uuid.UUID]domain.ConversationRecord),
		messages:      make(map[uuid.UUID][]domain.Message),
	}
}

func (s *MemoryStore) EnsureAgent(_ context.Context, agent domain.AgentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = agent
	return nil
}

func (s *MemoryStore) SaveConversation(_ context.Context, rec domain.ConversationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[rec.AgentID]; !ok {
		return ErrUnknownAgent
	}
	s.conversations[rec.SessionID] = rec
	return nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, sessionID)
	delete(s.messages, sessionID)
	return nil
}

func (s *MemoryStore) DeleteAllConversations(_ context.Context, agentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.conversations {
		if rec.AgentID == agentID {
			delete(s.conversations, id)
			delete(s.messages, id)
		}
	}
	return nil
}

func (s *MemoryStore) ListConversations(_ context.Context, agentID uuid.UUID) ([]domain.ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ConversationRecord
	for _, rec := range s.conversations {
		if rec.AgentID == agentID {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b domain.ConversationRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.SessionID[:], b.SessionID[:])
	})
	return out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.SessionID]; !ok {
		return ErrUnknownConversation
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

func (s *MemoryStore) Messages(_ context.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages[sessionID]), nil
}
