package llm

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/soyeahso/chatkit-demo/internal/config"
	"github.com/soyeahso/chatkit-demo/internal/logging"
)

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status, 0 for transport failures
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// defaultBaseURLs maps each supported provider to its OpenAI-compatible API root.
var defaultBaseURLs = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"deepseek":    "https://api.deepseek.com/v1",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"litellm":     "http://localhost:4000/v1",
}

// Providers returns the supported provider names, sorted.
func Providers() []string {
	return slices.Sorted(maps.Keys(defaultBaseURLs))
}

// DefaultBaseURL returns the API root for provider, or "" if unknown.
func DefaultBaseURL(provider string) string {
	return defaultBaseURLs[strings.ToLower(provider)]
}

// New validates cfg and returns a client for its provider.
func New(cfg config.LLMConfig, log *logging.Logger, opts ...Option) (*Client, error) {
	provider := strings.ToLower(cfg.Provider)
	if _, ok := defaultBaseURLs[provider]; !ok {
		return nil, fmt.Errorf("unsupported llm provider %q (supported: %s)", cfg.Provider, strings.Join(Providers(), ", "))
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm.apiKey is required for provider %q", provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm.model is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[provider]
	}

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	c := &Client{
		provider:    provider,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		temperature: cfg.Temperature,
		timeout:     time.Duration(cfg.TimeoutMs) * time.Millisecond,
		maxRetries:  retries,
		retryDelay:  time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		log:         log.Sub("llm").With("provider", provider),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c, nil
}
