package config

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/domain"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "server.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Server.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "server.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Server.Bind),
		})
	}
	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "server.customBindHost",
			Message: "required when bind is custom",
		})
	}
	if cfg.Server.SSERetryMs < 0 || cfg.Server.SSEHeartbeatMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "server",
			Message: "sse timings must not be negative",
		})
	}

	if cfg.Replay.IntervalMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "replay.intervalMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Replay.IntervalMs),
		})
	}
	if cfg.Scenarios.DelayMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "scenarios.delayMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Scenarios.DelayMs),
		})
	}

	validBackends := []string{"sqlite", "memory"}
	if cfg.Store.Backend != "" && !slices.Contains(validBackends, cfg.Store.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "store.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.Store.Backend),
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	if cfg.LLM.TimeoutMs < 0 || cfg.LLM.RetryDelayMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "llm",
			Message: "timings must not be negative",
		})
	}
	if cfg.Scenarios.Default == LLMScenario && cfg.LLM.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "llm.apiKey",
			Message: "required when scenarios.default is llm",
		})
	}

	for _, g := range cfg.Hooks.groups() {
		for i, e := range g.entries {
			path := fmt.Sprintf("hooks.%s[%d]", g.key, i)
			if e.Command == "" {
				issues = append(issues, ValidationIssue{Path: path + ".command", Message: "command is required"})
			}
			if e.Timeout < 0 {
				issues = append(issues, ValidationIssue{Path: path + ".timeout", Message: "must not be negative"})
			}
		}
	}

	seen := make(map[uuid.UUID]bool, len(cfg.Agents))
	for i, a := range cfg.Agents {
		path := fmt.Sprintf("agents[%d]", i)
		id, err := uuid.Parse(a.ID)
		if err != nil {
			issues = append(issues, ValidationIssue{Path: path + ".id", Message: "must be a UUID"})
		} else if seen[id] {
			issues = append(issues, ValidationIssue{Path: path + ".id", Message: "duplicate agent id " + a.ID})
		} else {
			seen[id] = true
		}
		if a.Name == "" {
			issues = append(issues, ValidationIssue{Path: path + ".name", Message: "name is required"})
		}
		if _, err := domain.ParseConnectionMode(a.ResolvedMode()); err != nil {
			issues = append(issues, ValidationIssue{Path: path + ".mode", Message: err.Error()})
		}
	}

	return issues
}

// ResolvedMode returns the connection mode string, falling back to the
// address when no explicit mode is set.
func (a AgentEntry) ResolvedMode() string {
	if a.Mode != "" {
		return a.Mode
	}
	if a.Address != "" && a.Address != domain.FixtureURL {
		return a.Address
	}
	return "fixture"
}
