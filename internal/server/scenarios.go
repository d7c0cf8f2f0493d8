package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/soyeahso/chatkit-demo/internal/agui"
)

// Built-in agent names that are not backed by a scenario file.
const (
	AgentEcho   = "echo"
	AgentParrot = "parrot"
	AgentLLM    = "llm"
)

var (
	// ErrScenarioNotFound is returned for an unknown scenario id.
	ErrScenarioNotFound = errors.New("scenario not found")

	// ErrLLMUnavailable is returned when the llm agent is requested but
	// no provider is configured.
	ErrLLMUnavailable = errors.New("llm agent is not configured")
)

// IsBuiltinAgent reports whether id names an agent that is not backed by
// a scenario.
func IsBuiltinAgent(id string) bool {
	return id == AgentEcho || id == AgentParrot || id == AgentLLM
}

// Scenario is a scripted run: its events are replayed in order.
type Scenario struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Events      []json.RawMessage `json:"events"`
}

// ScenarioInfo is the listing form of a scenario or built-in agent.
type ScenarioInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Events      int    `json:"events"`
	Builtin     bool   `json:"builtin,omitempty"`
}

func (s Scenario) info() ScenarioInfo {
	return ScenarioInfo{ID: s.ID, Name: s.Name, Description: s.Description, Events: len(s.Events)}
}

// ScenarioRegistry holds the scenarios the server can run.
type ScenarioRegistry struct {
	mu        sync.RWMutex
	scenarios map[string]Scenario
}

// NewScenarioRegistry returns a registry preloaded with the built-in scenarios.
func NewScenarioRegistry() *ScenarioRegistry {
	r := &ScenarioRegistry{scenarios: make(map[string]Scenario)}
	for _, s := range builtinScenarios() {
		r.scenarios[s.ID] = s
	}
	return r
}

// Add registers or replaces a scenario.
func (r *ScenarioRegistry) Add(s Scenario) error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("scenario id is required")
	}
	if IsBuiltinAgent(s.ID) {
		return fmt.Errorf("scenario id %q is reserved", s.ID)
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("scenario %s has no events", s.ID)
	}
	for i, raw := range s.Events {
		if _, err := agui.ParseEvent(raw); err != nil {
			return fmt.Errorf("scenario %s event %d: %w", s.ID, i, err)
		}
	}
	if s.Name == "" {
		s.Name = s.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenarios[s.ID] = s
	return nil
}

// Get returns the scenario with the given id.
func (r *ScenarioRegistry) Get(id string) (Scenario, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scenarios[id]
	return s, ok
}

// List returns the built-in agents followed by every scenario, sorted by id.
func (r *ScenarioRegistry) List() []ScenarioInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ScenarioInfo, 0, len(r.scenarios)+2)
	for _, s := range r.scenarios {
		out = append(out, s.info())
	}
	slices.SortFunc(out, func(a, b ScenarioInfo) int { return strings.Compare(a.ID, b.ID) })

	return append([]ScenarioInfo{
		{ID: AgentEcho, Name: "Echo", Description: "Echoes the last user message character by character", Builtin: true},
		{ID: AgentParrot, Name: "Parrot Echo", Description: "The offline fixture echo stream", Builtin: true},
	}, out...)
}

// LoadDir adds every *.json scenario file in dir. A file without an id
// takes its name from the file. A missing dir is not an error.
func (r *ScenarioRegistry) LoadDir(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}

	var errs []error
	loaded := 0
	for _, path := range paths {
		s, err := readScenario(path)
		if err == nil {
			err = r.Add(s)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
			continue
		}
		loaded++
	}
	return loaded, errors.Join(errs...)
}

func readScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("parsing scenario: %w", err)
	}
	if s.ID == "" {
		s.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

func builtinScenarios() []Scenario {
	return []Scenario{
		{
			ID:          "tool-call",
			Name:        "Tool Call",
			Description: "Assistant announces, calls get_weather, then summarises the result",
			Events: rawEvents(
				agui.Event{Type: agui.EventRunStarted},
				agui.Event{Type: agui.EventTextMessageStart, MessageID: "msg-tool-1", Role: "assistant"},
				agui.Event{Type: agui.EventTextMessageContent, MessageID: "msg-tool-1", Delta: "Let me check the weather for you."},
				agui.Event{Type: agui.EventTextMessageEnd, MessageID: "msg-tool-1"},
				agui.Event{Type: agui.EventToolCallStart, ToolCallID: "call-weather-1", ToolCallName: "get_weather", ParentMessageID: "msg-tool-1"},
				agui.Event{Type: agui.EventToolCallArgs, ToolCallID: "call-weather-1", Delta: `{"city":"Shanghai"}`},
				agui.Event{Type: agui.EventToolCallEnd, ToolCallID: "call-weather-1"},
				agui.Event{Type: agui.EventToolCallResult, ToolCallID: "call-weather-1", MessageID: "msg-tool-result-1", Role: "tool", Content: `{"temperature":22,"conditions":"Sunny"}`},
				agui.Event{Type: agui.EventTextMessageStart, MessageID: "msg-tool-2", Role: "assistant"},
				agui.Event{Type: agui.EventTextMessageContent, MessageID: "msg-tool-2", Delta: "It is 22°C and sunny in Shanghai."},
				agui.Event{Type: agui.EventTextMessageEnd, MessageID: "msg-tool-2"},
				agui.Event{Type: agui.EventRunFinished},
			),
		},
		{
			ID:          "error",
			Name:        "Run Error",
			Description: "Starts a reply and fails with RUN_ERROR",
			Events: rawEvents(
				agui.Event{Type: agui.EventRunStarted},
				agui.Event{Type: agui.EventTextMessageChunk, MessageID: "msg-error-1", Role: "assistant", Delta: "Working on it"},
				agui.Event{Type: agui.EventRunError, Message: "simulated failure", Code: "SCENARIO_ERROR"},
			),
		},
	}
}

func rawEvents(events ...agui.Event) []json.RawMessage {
	out := make([]json.RawMessage, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			panic(err)
		}
		out[i] = data
	}
	return out
}
