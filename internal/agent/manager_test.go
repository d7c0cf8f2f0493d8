package agent

import (
	"context"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/domain"
	"github.com/soyeahso/chatkit-demo/internal/hooks"
	"github.com/soyeahso/chatkit-demo/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func profile(name string) domain.AgentProfile {
	addr, _ := url.Parse(domain.FixtureURL)
	return domain.AgentProfile{ID: uuid.New(), Name: name, Address: addr}
}

func TestManager_StartsWithoutCurrent(t *testing.T) {
	m := NewManager([]domain.AgentProfile{profile("a")}, nil, silentLog())
	_, ok := m.Current()
	assert.False(t, ok)
	assert.Len(t, m.Available(), 1)
}

func TestManager_Select(t *testing.T) {
	a, b := profile("a"), profile("b")
	m := NewManager([]domain.AgentProfile{a, b}, nil, silentLog())

	got, err := m.Select(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, b.ID, cur.ID)
}

func TestManager_SelectUnknown(t *testing.T) {
	m := NewManager([]domain.AgentProfile{profile("a")}, nil, silentLog())
	_, err := m.Select(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, ok := m.Current()
	assert.False(t, ok)
}

func TestManager_LoadAddsOrReplaces(t *testing.T) {
	a := profile("a")
	m := NewManager([]domain.AgentProfile{a}, nil, silentLog())

	fresh := profile("fresh")
	m.Load(context.Background(), fresh)
	assert.Len(t, m.Available(), 2)
	cur, _ := m.Current()
	assert.Equal(t, fresh.ID, cur.ID)

	renamed := a
	renamed.Name = "a2"
	m.Load(context.Background(), renamed)
	avail := m.Available()
	assert.Len(t, avail, 2)
	assert.Equal(t, "a2", avail[0].Name)
}

func TestManager_Unload(t *testing.T) {
	a := profile("a")
	m := NewManager(nil, nil, silentLog())
	m.Load(context.Background(), a)
	m.Unload()

	_, ok := m.Current()
	assert.False(t, ok)
	assert.Len(t, m.Available(), 1)
}

func TestManager_EmitsAgentSelected(t *testing.T) {
	hm := hooks.NewManager(silentLog())
	var names []string
	hm.On(hooks.EventAgentSelected, "test", func(_ context.Context, p hooks.Payload) error {
		names = append(names, p.Data["name"].(string))
		return nil
	})

	a := profile("a")
	m := NewManager([]domain.AgentProfile{a}, hm, silentLog())
	_, err := m.Select(context.Background(), a.ID)
	require.NoError(t, err)
	m.Load(context.Background(), profile("b"))

	assert.Equal(t, []string{"a", "b"}, names)
}

func TestManager_AvailableIsACopy(t *testing.T) {
	m := NewManager([]domain.AgentProfile{profile("a")}, nil, silentLog())
	list := m.Available()
	list[0].Name = "mutated"
	assert.Equal(t, "a", m.Available()[0].Name)
}
