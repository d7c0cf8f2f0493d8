package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioRegistry_Builtins(t *testing.T) {
	r := NewScenarioRegistry()

	sc, ok := r.Get("tool-call")
	require.True(t, ok)
	assert.Len(t, sc.Events, 12)

	_, ok = r.Get("error")
	assert.True(t, ok)
	_, ok = r.Get(AgentEcho)
	assert.False(t, ok, "built-in agents are not scenarios")
}

func TestScenarioRegistry_AddValidation(t *testing.T) {
	events := []json.RawMessage{json.RawMessage(`{"type":"RUN_STARTED"}`)}

	tests := []struct {
		name string
		sc   Scenario
		want string
	}{
		{"missing id", Scenario{Events: events}, "id is required"},
		{"reserved echo", Scenario{ID: AgentEcho, Events: events}, "reserved"},
		{"reserved parrot", Scenario{ID: AgentParrot, Events: events}, "reserved"},
		{"no events", Scenario{ID: "empty"}, "no events"},
		{"bad event", Scenario{ID: "bad", Events: []json.RawMessage{json.RawMessage(`{"delta":"x"}`)}}, "event 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewScenarioRegistry().Add(tt.sc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestScenarioRegistry_AddDefaultsName(t *testing.T) {
	r := NewScenarioRegistry()
	require.NoError(t, r.Add(Scenario{ID: "custom", Events: []json.RawMessage{json.RawMessage(`{"type":"RUN_FINISHED"}`)}}))

	sc, ok := r.Get("custom")
	require.True(t, ok)
	assert.Equal(t, "custom", sc.Name)
}

func TestScenarioRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("from-file.json", `{"events":[{"type":"RUN_STARTED"},{"type":"RUN_FINISHED"}]}`)
	write("named.json", `{"id":"explicit","name":"Explicit","events":[{"type":"RUN_FINISHED"}]}`)
	write("invalid.json", `{"events":[]}`)
	write("notes.txt", `ignored`)

	r := NewScenarioRegistry()
	n, err := r.LoadDir(dir)
	assert.Equal(t, 2, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid.json")

	_, ok := r.Get("from-file")
	assert.True(t, ok)
	sc, ok := r.Get("explicit")
	require.True(t, ok)
	assert.Equal(t, "Explicit", sc.Name)
}

func TestScenarioRegistry_LoadDirMissing(t *testing.T) {
	r := NewScenarioRegistry()

	n, err := r.LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
	assert.Zero(t, n)

	n, err = r.LoadDir("")
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestScenarioRegistry_ListOrder(t *testing.T) {
	r := NewScenarioRegistry()
	require.NoError(t, r.Add(Scenario{ID: "a-first", Events: []json.RawMessage{json.RawMessage(`{"type":"RUN_FINISHED"}`)}}))

	list := r.List()
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"echo", "parrot", "a-first", "error", "tool-call"}, ids)
}
