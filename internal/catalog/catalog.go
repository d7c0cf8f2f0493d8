// Package catalog lists the agents a user can chat with.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/config"
	"github.com/soyeahso/chatkit-demo/internal/domain"
)

// Catalog loads the available agent profiles.
type Catalog interface {
	LoadAgents(ctx context.Context) ([]domain.AgentProfile, error)
}

// Static is a read-only, in-order list of agents.
type Static struct {
	agents []domain.AgentProfile
}

// NewStatic builds a catalog over a copy of agents.
func NewStatic(agents ...domain.AgentProfile) *Static {
	return &Static{agents: slices.Clone(agents)}
}

// Agents returns the profiles in catalog order.
func (c *Static) Agents() []domain.AgentProfile {
	return slices.Clone(c.agents)
}

// Lookup finds an agent by id.
func (c *Static) Lookup(id uuid.UUID) (domain.AgentProfile, bool) {
	for _, a := range c.agents {
		if a.ID == id {
			return a, true
		}
	}
	return domain.AgentProfile{}, false
}

// LoadAgents implements Catalog. It never fails.
func (c *Static) LoadAgents(ctx context.Context) ([]domain.AgentProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Agents(), nil
}

// Demo agent identifiers.
var (
	ParrotEchoID = uuid.MustParse("2C7915AB-4B3A-4877-AED0-9C1FA2B0E641")
	Agent1ID     = uuid.MustParse("E1E72B3D-845D-4F5D-B6CA-5550F2643E6B")
)

// DefaultAgentURL is where the bundled fixture server listens by default.
const DefaultAgentURL = "http://127.0.0.1:3000/agent"

// DefaultAgents returns the two demo agents: an offline echo parrot and a
// remote agent served by the local fixture server.
func DefaultAgents() []domain.AgentProfile {
	fixtureAddr, _ := url.Parse(domain.FixtureURL)
	remoteAddr, _ := url.Parse(DefaultAgentURL)
	return []domain.AgentProfile{
		{
			ID:             ParrotEchoID,
			Name:           "Parrot Echo",
			Description:    "Local echo agent that repeats user input for demo purposes.",
			Address:        fixtureAddr,
			ConnectionMode: domain.Fixture(),
		},
		{
			ID:             Agent1ID,
			Name:           "Agent 1",
			Description:    "Sample remote agent served from localhost gateway.",
			Address:        remoteAddr,
			ConnectionMode: domain.Remote(remoteAddr),
		},
	}
}

// Default returns a catalog of DefaultAgents.
func Default() *Static {
	return NewStatic(DefaultAgents()...)
}

// FromConfig builds a catalog from config entries. An empty list yields the
// default agents.
func FromConfig(entries []config.AgentEntry) (*Static, error) {
	if len(entries) == 0 {
		return Default(), nil
	}

	agents := make([]domain.AgentProfile, 0, len(entries))
	seen := make(map[uuid.UUID]bool, len(entries))
	for i, e := range entries {
		a, err := profileFromEntry(e)
		if err != nil {
			return nil, fmt.Errorf("agents[%d]: %w", i, err)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("agents[%d]: duplicate agent id %s", i, a.ID)
		}
		seen[a.ID] = true
		agents = append(agents, a)
	}
	return NewStatic(agents...), nil
}

func profileFromEntry(e config.AgentEntry) (domain.AgentProfile, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return domain.AgentProfile{}, fmt.Errorf("invalid id %q: %w", e.ID, err)
	}
	mode, err := domain.ParseConnectionMode(e.ResolvedMode())
	if err != nil {
		return domain.AgentProfile{}, err
	}

	a := domain.AgentProfile{
		ID:             id,
		Name:           e.Name,
		Description:    e.Description,
		ConnectionMode: mode,
	}
	switch {
	case e.Address != "":
		if a.Address, err = url.Parse(e.Address); err != nil {
			return domain.AgentProfile{}, fmt.Errorf("invalid address: %w", err)
		}
	default:
		a.Address = mode.ServerURLForConnection()
	}
	return a, a.Validate()
}
