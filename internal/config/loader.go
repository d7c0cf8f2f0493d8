package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandAgentFields lets agent addresses be written as ${AGENT_URL}.
func expandAgentFields(cfg *Config) {
	for i := range cfg.Agents {
		cfg.Agents[i].Address = expandEnvVars(cfg.Agents[i].Address)
		cfg.Agents[i].Mode = expandEnvVars(cfg.Agents[i].Mode)
	}
	cfg.Client.DeviceID = expandEnvVars(cfg.Client.DeviceID)
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = expandEnvVars(cfg.LLM.BaseURL)
}

// LoadDotEnv loads KEY=value pairs from the given .env files into the
// process environment. Missing files are skipped; variables already set win.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandAgentFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = d.Server.Bind
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = d.Server.CORSOrigins
	}
	if cfg.Server.SSERetryMs == 0 {
		cfg.Server.SSERetryMs = d.Server.SSERetryMs
	}
	if cfg.Server.SSEHeartbeatMs == 0 {
		cfg.Server.SSEHeartbeatMs = d.Server.SSEHeartbeatMs
	}
	if cfg.Server.SessionIdleMinutes == 0 {
		cfg.Server.SessionIdleMinutes = d.Server.SessionIdleMinutes
	}
	if cfg.Client.DeviceID == "" {
		cfg.Client.DeviceID = d.Client.DeviceID
	}
	if cfg.Client.UserID == "" {
		cfg.Client.UserID = d.Client.UserID
	}
	if cfg.Client.TimeoutSeconds == 0 {
		cfg.Client.TimeoutSeconds = d.Client.TimeoutSeconds
	}
	if cfg.Replay.IntervalMs == 0 {
		cfg.Replay.IntervalMs = d.Replay.IntervalMs
	}
	if cfg.Scenarios.Default == "" {
		cfg.Scenarios.Default = d.Scenarios.Default
	}
	if cfg.Scenarios.DelayMs == 0 {
		cfg.Scenarios.DelayMs = d.Scenarios.DelayMs
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = d.Store.Backend
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = d.Logging.ConsoleStyle
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = d.LLM.Provider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = d.LLM.Model
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = d.LLM.Temperature
	}
	if cfg.LLM.TimeoutMs == 0 {
		cfg.LLM.TimeoutMs = d.LLM.TimeoutMs
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = d.LLM.MaxRetries
	}
	if cfg.LLM.RetryDelayMs == 0 {
		cfg.LLM.RetryDelayMs = d.LLM.RetryDelayMs
	}
}

// applyEnvOverrides reads CHATKIT_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHATKIT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CHATKIT_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("CHATKIT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CHATKIT_DEFAULT_SCENARIO"); v != "" {
		cfg.Scenarios.Default = v
	}
	if v := os.Getenv("CHATKIT_SCENARIO_DIR"); v != "" {
		cfg.Scenarios.Dir = v
	}
	if v := os.Getenv("CHATKIT_SCENARIO_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Scenarios.DelayMs = ms
		}
	}
	if v := os.Getenv("CHATKIT_STORE"); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("CHATKIT_DEVICE_ID"); v != "" {
		cfg.Client.DeviceID = v
	}
	if strings.EqualFold(os.Getenv("CHATKIT_AGENT_MODE"), LLMScenario) {
		cfg.Scenarios.Default = LLMScenario
	}
	if v := os.Getenv("CHATKIT_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("CHATKIT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("CHATKIT_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("CHATKIT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
}
