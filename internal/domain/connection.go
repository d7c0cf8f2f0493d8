package domain

import (
	"encoding/json"
	"fmt"
	"net/url"

	"gopkg.in/yaml.v3"
)

// FixtureURL is the placeholder address used when an agent runs in fixture mode.
const FixtureURL = "https://mock-fixture.local"

const fixtureLiteral = "fixture"

// ConnectionMode selects how an agent is reached: either offline fixture
// replay or a remote AG-UI endpoint. The zero value is fixture mode.
type ConnectionMode struct {
	remote *url.URL
}

// Fixture returns the offline replay mode.
func Fixture() ConnectionMode {
	return ConnectionMode{}
}

// Remote returns a mode that talks to the given server URL. A nil URL
// yields Fixture.
func Remote(u *url.URL) ConnectionMode {
	if u == nil {
		return Fixture()
	}
	cp := *u
	return ConnectionMode{remote: &cp}
}

// ParseConnectionMode accepts "fixture" or an absolute http(s) URL.
func ParseConnectionMode(s string) (ConnectionMode, error) {
	if s == "" || s == fixtureLiteral {
		return Fixture(), nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return ConnectionMode{}, fmt.Errorf("parsing connection url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ConnectionMode{}, fmt.Errorf("connection url must be http or https, got %q", s)
	}
	if u.Host == "" {
		return ConnectionMode{}, fmt.Errorf("connection url has no host: %q", s)
	}
	return Remote(u), nil
}

// IsFixture reports whether this is the offline replay mode.
func (m ConnectionMode) IsFixture() bool { return m.remote == nil }

// ServerURL returns the remote URL. ok is false in fixture mode.
func (m ConnectionMode) ServerURL() (u *url.URL, ok bool) {
	if m.remote == nil {
		return nil, false
	}
	cp := *m.remote
	return &cp, true
}

// ServerURLForConnection returns the URL a transport should dial. Fixture
// mode yields the mock address, which is never resolved on the network.
func (m ConnectionMode) ServerURLForConnection() *url.URL {
	if u, ok := m.ServerURL(); ok {
		return u
	}
	u, _ := url.Parse(FixtureURL)
	return u
}

// Equal compares two modes by kind and URL.
func (m ConnectionMode) Equal(o ConnectionMode) bool {
	if m.IsFixture() || o.IsFixture() {
		return m.IsFixture() == o.IsFixture()
	}
	return m.remote.String() == o.remote.String()
}

func (m ConnectionMode) String() string {
	if m.remote == nil {
		return fixtureLiteral
	}
	return m.remote.String()
}

func (m ConnectionMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *ConnectionMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseConnectionMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m ConnectionMode) MarshalYAML() (any, error) {
	return m.String(), nil
}

func (m *ConnectionMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseConnectionMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
