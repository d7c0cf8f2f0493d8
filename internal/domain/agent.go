package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// AgentProfile describes a configured AG-UI agent endpoint.
type AgentProfile struct {
	ID             uuid.UUID
	Name           string
	Description    string
	Address        *url.URL
	ConnectionMode ConnectionMode
}

// Validate checks the profile for missing identity fields.
func (a AgentProfile) Validate() error {
	if a.ID == uuid.Nil {
		return errors.New("agent id is required")
	}
	if a.Name == "" {
		return errors.New("agent name is required")
	}
	if a.Address == nil && !a.ConnectionMode.IsFixture() {
		return errors.New("remote agent requires an address")
	}
	return nil
}

// Endpoint returns the URL requests for this agent are sent to.
func (a AgentProfile) Endpoint() *url.URL {
	if u, ok := a.ConnectionMode.ServerURL(); ok {
		return u
	}
	if a.Address != nil {
		cp := *a.Address
		return &cp
	}
	return a.ConnectionMode.ServerURLForConnection()
}

// Equal reports whether two profiles carry the same values.
func (a AgentProfile) Equal(o AgentProfile) bool {
	return a.ID == o.ID &&
		a.Name == o.Name &&
		a.Description == o.Description &&
		urlString(a.Address) == urlString(o.Address) &&
		a.ConnectionMode.Equal(o.ConnectionMode)
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}

type agentProfileJSON struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Address        string         `json:"address,omitempty"`
	ConnectionMode ConnectionMode `json:"connectionMode"`
}

func (a AgentProfile) MarshalJSON() ([]byte, error) {
	return json.Marshal(agentProfileJSON{
		ID:             a.ID,
		Name:           a.Name,
		Description:    a.Description,
		Address:        urlString(a.Address),
		ConnectionMode: a.ConnectionMode,
	})
}

func (a *AgentProfile) UnmarshalJSON(data []byte) error {
	var raw agentProfileJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = AgentProfile{
		ID:             raw.ID,
		Name:           raw.Name,
		Description:    raw.Description,
		ConnectionMode: raw.ConnectionMode,
	}
	if raw.Address != "" {
		u, err := url.Parse(raw.Address)
		if err != nil {
			return fmt.Errorf("parsing agent address: %w", err)
		}
		a.Address = u
	}
	return nil
}
