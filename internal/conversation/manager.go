// Package conversation keeps the conversation records of the active agent
// in sync with the store and publishes sorted snapshots to subscribers.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/domain"
	"github.com/soyeahso/chatkit-demo/internal/hooks"
	"github.com/soyeahso/chatkit-demo/internal/logging"
	"github.com/soyeahso/chatkit-demo/internal/store"
)

var (
	// ErrNotFound is returned for a session id the manager does not hold.
	ErrNotFound = errors.New("conversation not found")

	// ErrNoAgent is returned when creating a conversation before Attach.
	ErrNoAgent = errors.New("no active agent")

	// ErrEmptyTitle is returned by Rename for a blank title.
	ErrEmptyTitle = errors.New("title must not be empty")
)

const (
	autoTitlePrefix = "Session "
	legacyAutoTitle = "New Conversation"
	titleSnippetLen = 40
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the records of one agent at a time.
type Manager struct {
	mu        sync.Mutex
	store     store.Store
	hooks     *hooks.Manager
	log       *logging.Logger
	now       func() time.Time
	mode      domain.ConnectionMode
	agent     *domain.AgentProfile
	records   map[uuid.UUID]domain.ConversationRecord
	current   uuid.UUID
	nextIndex int
	subs      map[int]chan []domain.ConversationRecord
	nextSub   int
}

// NewManager creates a manager persisting to st. hm may be nil; its
// handlers run under the manager's lock and must not call back into it.
func NewManager(st store.Store, hm *hooks.Manager, log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		hooks:     hm,
		log:       log.Sub("conversations"),
		now:       time.Now,
		records:   make(map[uuid.UUID]domain.ConversationRecord),
		nextIndex: 1,
		subs:      make(map[int]chan []domain.ConversationRecord),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Attach makes agent the active agent and loads its persisted records.
// Attaching the already active agent only republishes the snapshot.
func (m *Manager) Attach(ctx context.Context, agent domain.AgentProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.agent != nil && m.agent.ID == agent.ID {
		m.agent = &agent
		m.publishLocked()
		return nil
	}

	m.agent = &agent
	m.records = make(map[uuid.UUID]domain.ConversationRecord)
	m.current = uuid.Nil
	m.nextIndex = 1

	// a failed hydration leaves no active agent so a retry loads again
	if err := m.store.EnsureAgent(ctx, agent); err != nil {
		m.agent = nil
		m.publishLocked()
		return fmt.Errorf("registering agent: %w", err)
	}
	stored, err := m.store.ListConversations(ctx, agent.ID)
	if err != nil {
		m.agent = nil
		m.publishLocked()
		return fmt.Errorf("hydrating conversations: %w", err)
	}

	index := 1
	for _, rec := range stored {
		if strings.TrimSpace(rec.Title) == "" {
			rec.Title = fmt.Sprintf("%s%d", autoTitlePrefix, index)
		}
		rec.AgentName = agent.Name
		m.records[rec.SessionID] = rec
		index++
	}
	m.nextIndex = index

	m.log.Debug().Str("agent", agent.Name).Int("conversations", len(stored)).Msg("conversations hydrated")
	m.publishLocked()
	return nil
}

// Agent returns the active agent.
func (m *Manager) Agent() (domain.AgentProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.agent == nil {
		return domain.AgentProfile{}, false
	}
	return *m.agent, true
}

// SetConnectionMode sets the mode stamped on newly created records.
func (m *Manager) SetConnectionMode(mode domain.ConnectionMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// Create starts a conversation with the active agent and makes it current.
// A blank title becomes "Session N".
func (m *Manager) Create(ctx context.Context, title string) (domain.ConversationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.agent == nil {
		return domain.ConversationRecord{}, ErrNoAgent
	}

	resolved := strings.TrimSpace(title)
	if resolved == "" {
		resolved = fmt.Sprintf("%s%d", autoTitlePrefix, m.nextIndex)
		m.nextIndex++
	}

	rec := domain.NewConversationRecord(*m.agent, resolved, m.mode, m.now())
	if err := m.store.SaveConversation(ctx, rec); err != nil {
		return domain.ConversationRecord{}, fmt.Errorf("saving conversation: %w", err)
	}
	m.records[rec.SessionID] = rec
	m.current = rec.SessionID

	m.log.Info().Str("session", rec.SessionID.String()).Str("title", rec.Title).Msg("conversation created")
	m.hooks.Emit(ctx, hooks.EventConversationCreated, map[string]any{
		"sessionId": rec.SessionID.String(),
		"agentId":   rec.AgentID.String(),
		"title":     rec.Title,
	})
	m.publishLocked()
	return rec, nil
}

// Load makes an existing conversation current.
func (m *Manager) Load(sessionID uuid.UUID) (domain.ConversationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return domain.ConversationRecord{}, ErrNotFound
	}
	m.current = sessionID
	return rec, nil
}

// Current returns the current conversation, if any.
func (m *Manager) Current() (domain.ConversationRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[m.current]
	return rec, ok
}

// Record looks up a conversation by session id.
func (m *Manager) Record(sessionID uuid.UUID) (domain.ConversationRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sessionID]
	return rec, ok
}

// Snapshot returns all records, pinned first, then most recently updated.
func (m *Manager) Snapshot() []domain.ConversationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

// AddMessage stores a message and refreshes the record's preview. The first
// user message renames a conversation that still carries an automatic title.
func (m *Manager) AddMessage(ctx context.Context, sessionID uuid.UUID, role, text string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sessionID]
	if !ok {
		return domain.Message{}, ErrNotFound
	}

	now := m.now()
	msg := domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   text,
		Timestamp: now,
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return domain.Message{}, fmt.Errorf("storing message: %w", err)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return msg, nil
	}

	rec = rec.UpdatingLastMessage(text, now)
	if role == domain.RoleUser && hasAutoTitle(rec.Title) {
		if snippet := titleSnippet(text); snippet != "" {
			rec = rec.Renaming(snippet, now)
		}
	}
	if err := m.saveLocked(ctx, rec); err != nil {
		return msg, err
	}

	m.hooks.Emit(ctx, hooks.EventMessageAdded, map[string]any{
		"sessionId": sessionID.String(),
		"role":      role,
		"length":    utf8.RuneCountInString(text),
	})
	return msg, nil
}

// Rename sets a conversation's title.
func (m *Manager) Rename(ctx context.Context, sessionID uuid.UUID, title string) (domain.ConversationRecord, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.ConversationRecord{}, ErrEmptyTitle
	}
	return m.update(ctx, sessionID, func(r domain.ConversationRecord, now time.Time) domain.ConversationRecord {
		return r.Renaming(title, now)
	})
}

// SetPinned pins or unpins a conversation.
func (m *Manager) SetPinned(ctx context.Context, sessionID uuid.UUID, pinned bool) (domain.ConversationRecord, error) {
	return m.update(ctx, sessionID, func(r domain.ConversationRecord, now time.Time) domain.ConversationRecord {
		return r.Pinning(pinned, now)
	})
}

func (m *Manager) update(
	ctx context.Context,
	sessionID uuid.UUID,
	fn func(domain.ConversationRecord, time.Time) domain.ConversationRecord,
) (domain.ConversationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sessionID]
	if !ok {
		return domain.ConversationRecord{}, ErrNotFound
	}
	rec = fn(rec, m.now())
	if err := m.saveLocked(ctx, rec); err != nil {
		return domain.ConversationRecord{}, err
	}
	return rec, nil
}

// Delete removes one conversation and its history.
func (m *Manager) Delete(ctx context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[sessionID]; !ok {
		return ErrNotFound
	}
	if err := m.store.DeleteConversation(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	delete(m.records, sessionID)
	if m.current == sessionID {
		m.current = uuid.Nil
	}

	m.hooks.Emit(ctx, hooks.EventConversationDeleted, map[string]any{
		"sessionId": sessionID.String(),
	})
	m.publishLocked()
	return nil
}

// DeleteAll removes every conversation of the active agent and restarts
// automatic numbering at "Session 1".
func (m *Manager) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.agent != nil {
		if err := m.store.DeleteAllConversations(ctx, m.agent.ID); err != nil {
			return fmt.Errorf("deleting conversations: %w", err)
		}
	}
	n := len(m.records)
	m.records = make(map[uuid.UUID]domain.ConversationRecord)
	m.current = uuid.Nil
	m.nextIndex = 1

	m.log.Info().Int("deleted", n).Msg("all conversations deleted")
	m.hooks.Emit(ctx, hooks.EventConversationDeleted, map[string]any{
		"all":   true,
		"count": n,
	})
	m.publishLocked()
	return nil
}

// Messages returns the stored history of a conversation.
func (m *Manager) Messages(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	m.mu.Lock()
	_, ok := m.records[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.store.Messages(ctx, sessionID)
}

// Subscribe returns a channel carrying the sorted snapshot after every
// change, starting with the current one. The channel holds only the latest
// snapshot, so a slow reader skips intermediate states. Call cancel to
// unsubscribe; it closes the channel.
func (m *Manager) Subscribe() (<-chan []domain.ConversationRecord, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan []domain.ConversationRecord, 1)
	ch <- m.sortedLocked()
	m.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (m *Manager) saveLocked(ctx context.Context, rec domain.ConversationRecord) error {
	if err := m.store.SaveConversation(ctx, rec); err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	m.records[rec.SessionID] = rec
	m.publishLocked()
	return nil
}

func (m *Manager) publishLocked() {
	if len(m.subs) == 0 {
		return
	}
	snap := m.sortedLocked()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (m *Manager) sortedLocked() []domain.ConversationRecord {
	out := make([]domain.ConversationRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	slices.SortFunc(out, compareRecords)
	return out
}

func compareRecords(a, b domain.ConversationRecord) int {
	if a.Pinned != b.Pinned {
		if a.Pinned {
			return -1
		}
		return 1
	}
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.SessionID.String(), b.SessionID.String())
}

func hasAutoTitle(title string) bool {
	return strings.HasPrefix(title, autoTitlePrefix) || title == legacyAutoTitle
}

// titleSnippet takes the first 40 runes of text, then trims whitespace.
func titleSnippet(text string) string {
	if utf8.RuneCountInString(text) > titleSnippetLen {
		text = string([]rune(text)[:titleSnippetLen])
	}
	return strings.TrimSpace(text)
}
