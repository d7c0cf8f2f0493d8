package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort            = 3000
	DefaultReplayInterval  = 350
	DefaultScenarioDelayMs = 200
	DefaultScenario        = "tool-call"

	// LLMScenario selects the llm agent as the server default.
	LLMScenario = "llm"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:               DefaultPort,
			Bind:               "loopback",
			CORSOrigins:        []string{"*"},
			SSERetryMs:         3000,
			SSEHeartbeatMs:     30000,
			SessionIdleMinutes: 60,
		},
		Client: ClientConfig{
			DeviceID:       "demo-device",
			UserID:         "demo-user",
			TimeoutSeconds: 60,
		},
		Replay: ReplayConfig{
			IntervalMs: DefaultReplayInterval,
		},
		Scenarios: ScenarioConfig{
			Default: DefaultScenario,
			DelayMs: DefaultScenarioDelayMs,
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		LLM: LLMConfig{
			Provider:     "deepseek",
			Model:        "deepseek-chat",
			Temperature:  0.7,
			TimeoutMs:    60000,
			MaxRetries:   2,
			RetryDelayMs: 1000,
		},
	}
}
