package domain

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// --- ConnectionMode tests ---

func TestConnectionMode_ZeroValueIsFixture(t *testing.T) {
	var m ConnectionMode
	assert.True(t, m.IsFixture())
	_, ok := m.ServerURL()
	assert.False(t, ok)
	assert.Equal(t, FixtureURL, m.ServerURLForConnection().String())
	assert.Equal(t, "fixture", m.String())
}

func TestConnectionMode_Remote(t *testing.T) {
	u, _ := url.Parse("http://127.0.0.1:3000/agent")
	m := Remote(u)

	assert.False(t, m.IsFixture())
	got, ok := m.ServerURL()
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:3000/agent", got.String())
	assert.Equal(t, "http://127.0.0.1:3000/agent", m.ServerURLForConnection().String())

	// Mutating the caller's URL must not leak into the mode.
	u.Host = "evil.example"
	assert.Equal(t, "http://127.0.0.1:3000/agent", m.String())
}

func TestConnectionMode_RemoteNil(t *testing.T) {
	m := Remote(nil)
	assert.True(t, m.IsFixture())
	assert.Equal(t, "fixture", m.String())
}

func TestParseConnectionMode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		fixture bool
		wantErr bool
	}{
		{name: "fixture literal", in: "fixture", fixture: true},
		{name: "empty", in: "", fixture: true},
		{name: "http url", in: "http://localhost:3000/agent"},
		{name: "https url", in: "https://agents.example.com/run"},
		{name: "bad scheme", in: "ftp://example.com", wantErr: true},
		{name: "no host", in: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseConnectionMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.fixture, m.IsFixture())
		})
	}
}

func TestConnectionMode_Equal(t *testing.T) {
	a, _ := ParseConnectionMode("http://localhost:3000/agent")
	b, _ := ParseConnectionMode("http://localhost:3000/agent")
	c, _ := ParseConnectionMode("http://localhost:4000/agent")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(Fixture()))
	assert.True(t, Fixture().Equal(ConnectionMode{}))
}

func TestConnectionMode_JSONAndYAML(t *testing.T) {
	type wrapper struct {
		Mode ConnectionMode `json:"mode" yaml:"mode"`
	}

	data, err := json.Marshal(wrapper{Mode: Fixture()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"fixture"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"http://localhost:3000/agent"}`), &w))
	assert.False(t, w.Mode.IsFixture())

	require.NoError(t, yaml.Unmarshal([]byte("mode: fixture\n"), &w))
	assert.True(t, w.Mode.IsFixture())

	out, err := yaml.Marshal(wrapper{Mode: w.Mode})
	require.NoError(t, err)
	assert.Equal(t, "mode: fixture\n", string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"mode":"gopher://x"}`), &w))
}

// --- AgentProfile tests ---

func testAgent() AgentProfile {
	addr, _ := url.Parse(FixtureURL)
	return AgentProfile{
		ID:             uuid.MustParse("2C7915AB-4B3A-4877-AED0-9C1FA2B0E641"),
		Name:           "Parrot Echo",
		Description:    "Local echo agent",
		Address:        addr,
		ConnectionMode: Fixture(),
	}
}

func TestAgentProfile_Validate(t *testing.T) {
	a := testAgent()
	assert.NoError(t, a.Validate())

	noID := a
	noID.ID = uuid.Nil
	assert.Error(t, noID.Validate())

	noName := a
	noName.Name = ""
	assert.Error(t, noName.Validate())
}

func TestAgentProfile_Endpoint(t *testing.T) {
	a := testAgent()
	assert.Equal(t, FixtureURL, a.Endpoint().String())

	remote, _ := ParseConnectionMode("http://127.0.0.1:3000/agent")
	a.ConnectionMode = remote
	assert.Equal(t, "http://127.0.0.1:3000/agent", a.Endpoint().String())
}

func TestAgentProfile_JSONRoundTrip(t *testing.T) {
	a := testAgent()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"address":"https://mock-fixture.local"`)
	assert.Contains(t, string(data), `"connectionMode":"fixture"`)

	var decoded AgentProfile
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, a.Equal(decoded))
}

// --- ConversationRecord tests ---

func TestConversationRecord_FunctionalUpdates(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := NewConversationRecord(testAgent(), "Session 1", Fixture(), t0)

	assert.NotEqual(t, uuid.Nil, rec.SessionID)
	assert.Equal(t, t0, rec.CreatedAt)
	assert.Equal(t, t0, rec.UpdatedAt)

	t1 := t0.Add(time.Minute)
	updated := rec.UpdatingLastMessage("hello", t1)
	assert.Equal(t, "hello", updated.LastMessagePreview)
	assert.Equal(t, t1, updated.UpdatedAt)
	assert.Empty(t, rec.LastMessagePreview, "original record is untouched")
	assert.Equal(t, rec.SessionID, updated.SessionID)

	renamed := updated.Renaming("Greeting", t1.Add(time.Second))
	assert.Equal(t, "Greeting", renamed.Title)
	assert.Equal(t, "hello", renamed.LastMessagePreview)

	pinned := renamed.Pinning(true, t1.Add(2*time.Second))
	assert.True(t, pinned.Pinned)
	assert.Equal(t, t0, pinned.CreatedAt)
}

func TestConversationRecord_UpdatedAtNeverGoesBackwards(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := NewConversationRecord(testAgent(), "Session 1", Fixture(), t0)

	stale := rec.Renaming("Older clock", t0.Add(-time.Hour))
	assert.Equal(t, t0, stale.UpdatedAt)
}

func TestConversationRecord_LastUpdatedDescription(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := NewConversationRecord(testAgent(), "Session 1", Fixture(), t0)

	assert.Equal(t, "5 minutes ago", rec.LastUpdatedDescription(t0.Add(5*time.Minute)))
	assert.Equal(t, "now", rec.LastUpdatedDescription(t0))
}

func TestConversationRecordJSON_OmitsEmpty(t *testing.T) {
	rec := NewConversationRecord(testAgent(), "Session 1", Fixture(), time.Now().UTC())
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "lastMessagePreview")
	assert.NotContains(t, raw, "pinned")
	assert.Contains(t, raw, `"connection":"fixture"`)
}
