// Package agent tracks which agent profile the user is talking to.
package agent

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/domain"
	"github.com/soyeahso/chatkit-demo/internal/hooks"
	"github.com/soyeahso/chatkit-demo/internal/logging"
)

// ErrAgentNotFound is returned by Select for an id not in the available list.
var ErrAgentNotFound = errors.New("agent not found")

// Manager holds the available agents and at most one current agent.
type Manager struct {
	mu        sync.RWMutex
	available []domain.AgentProfile
	current   *domain.AgentProfile
	hooks     *hooks.Manager
	log       *logging.Logger
}

// NewManager creates a manager seeded with the given agents. hm may be nil.
func NewManager(agents []domain.AgentProfile, hm *hooks.Manager, log *logging.Logger) *Manager {
	return &Manager{
		available: slices.Clone(agents),
		hooks:     hm,
		log:       log.Sub("agents"),
	}
}

// Available returns the known agents in insertion order.
func (m *Manager) Available() []domain.AgentProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.available)
}

// Current returns the selected agent, if any.
func (m *Manager) Current() (domain.AgentProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return domain.AgentProfile{}, false
	}
	return *m.current, true
}

// Load makes profile current, adding it to the available list when its id
// is new and replacing the stored copy otherwise.
func (m *Manager) Load(ctx context.Context, profile domain.AgentProfile) {
	m.mu.Lock()
	if i := m.indexOf(profile.ID); i >= 0 {
		m.available[i] = profile
	} else {
		m.available = append(m.available, profile)
	}
	m.current = &profile
	m.mu.Unlock()

	m.selected(ctx, profile)
}

// Select makes the available agent with id current.
func (m *Manager) Select(ctx context.Context, id uuid.UUID) (domain.AgentProfile, error) {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return domain.AgentProfile{}, ErrAgentNotFound
	}
	profile := m.available[i]
	m.current = &profile
	m.mu.Unlock()

	m.selected(ctx, profile)
	return profile, nil
}

// Unload clears the current agent. The available list is kept.
func (m *Manager) Unload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

func (m *Manager) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(m.available, func(a domain.AgentProfile) bool { return a.ID == id })
}

func (m *Manager) selected(ctx context.Context, a domain.AgentProfile) {
	m.log.Info().Str("agent", a.Name).Str("mode", a.ConnectionMode.String()).Msg("agent selected")
	m.hooks.Emit(ctx, hooks.EventAgentSelected, map[string]any{
		"agentId": a.ID.String(),
		"name":    a.Name,
		"mode":    a.ConnectionMode.String(),
	})
}
