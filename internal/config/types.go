package config

// Config is the root configuration for chatkit-demo.
type Config struct {
	Server    ServerConfig   `yaml:"server,omitempty"`
	Client    ClientConfig   `yaml:"client,omitempty"`
	Replay    ReplayConfig   `yaml:"replay,omitempty"`
	Scenarios ScenarioConfig `yaml:"scenarios,omitempty"`
	Store     StoreConfig    `yaml:"store,omitempty"`
	Logging   LoggingConfig  `yaml:"logging,omitempty"`
	LLM       LLMConfig      `yaml:"llm,omitempty"`
	Hooks     HooksConfig    `yaml:"hooks,omitempty"`
	Agents    []AgentEntry   `yaml:"agents,omitempty"`
}

// ServerConfig controls the AG-UI fixture server.
type ServerConfig struct {
	Port               int      `yaml:"port,omitempty"`
	Bind               string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost     string   `yaml:"customBindHost,omitempty"`
	CORSOrigins        []string `yaml:"corsOrigins,omitempty"`
	SSERetryMs         int      `yaml:"sseRetryMs,omitempty"`
	SSEHeartbeatMs     int      `yaml:"sseHeartbeatMs,omitempty"`
	SessionIdleMinutes int      `yaml:"sessionIdleMinutes,omitempty"`
}

// ClientConfig identifies this device to remote agents.
type ClientConfig struct {
	DeviceID       string `yaml:"deviceId,omitempty"`
	UserID         string `yaml:"userId,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// ReplayConfig tunes the mock SSE player used in fixture mode.
type ReplayConfig struct {
	IntervalMs int `yaml:"intervalMs,omitempty"`
}

// ScenarioConfig selects the emulated agent the server runs.
type ScenarioConfig struct {
	Default string `yaml:"default,omitempty"` // "echo" | "parrot" | "llm" | scenario id
	Dir     string `yaml:"dir,omitempty"`
	DelayMs int    `yaml:"delayMs,omitempty"`
}

// StoreConfig selects where conversation records live.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty"` // "sqlite" | "memory"
	Path    string `yaml:"path,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// LLMConfig configures the llm agent, which relays an OpenAI-compatible
// chat completions stream as AG-UI events.
type LLMConfig struct {
	Provider     string  `yaml:"provider,omitempty"` // "openai" | "deepseek" | "siliconflow" | "litellm"
	Model        string  `yaml:"model,omitempty"`
	APIKey       string  `yaml:"apiKey,omitempty"`
	BaseURL      string  `yaml:"baseUrl,omitempty"` // defaults per provider
	Temperature  float64 `yaml:"temperature,omitempty"`
	TimeoutMs    int     `yaml:"timeoutMs,omitempty"`
	MaxRetries   int     `yaml:"maxRetries,omitempty"` // negative disables retries
	RetryDelayMs int     `yaml:"retryDelayMs,omitempty"`
}

// HooksConfig lists shell commands to run when an event fires.
type HooksConfig struct {
	AgentSelected       []HookEntry `yaml:"agentSelected,omitempty"`
	ConversationCreated []HookEntry `yaml:"conversationCreated,omitempty"`
	ConversationDeleted []HookEntry `yaml:"conversationDeleted,omitempty"`
	MessageAdded        []HookEntry `yaml:"messageAdded,omitempty"`
	RunStarted          []HookEntry `yaml:"runStarted,omitempty"`
	RunFinished         []HookEntry `yaml:"runFinished,omitempty"`
	ServerStart         []HookEntry `yaml:"serverStart,omitempty"`
	ServerStop          []HookEntry `yaml:"serverStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

type hookGroup struct {
	event   string
	key     string
	entries []HookEntry
}

func (h HooksConfig) groups() []hookGroup {
	return []hookGroup{
		{"agent_selected", "agentSelected", h.AgentSelected},
		{"conversation_created", "conversationCreated", h.ConversationCreated},
		{"conversation_deleted", "conversationDeleted", h.ConversationDeleted},
		{"message_added", "messageAdded", h.MessageAdded},
		{"run_started", "runStarted", h.RunStarted},
		{"run_finished", "runFinished", h.RunFinished},
		{"server_start", "serverStart", h.ServerStart},
		{"server_stop", "serverStop", h.ServerStop},
	}
}

// ByEvent returns the configured entries keyed by hook event name.
func (h HooksConfig) ByEvent() map[string][]HookEntry {
	out := make(map[string][]HookEntry)
	for _, g := range h.groups() {
		if len(g.entries) > 0 {
			out[g.event] = g.entries
		}
	}
	return out
}

// AgentEntry defines one catalog agent.
type AgentEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Address     string `yaml:"address,omitempty"`
	Mode        string `yaml:"mode,omitempty"` // "fixture" or the remote URL; defaults to Address
}
