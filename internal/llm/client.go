// Package llm streams chat completions from OpenAI-compatible providers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/soyeahso/chatkit-demo/internal/agui"
	"github.com/soyeahso/chatkit-demo/internal/logging"
)

const errorBodyLimit = 4096

// ChatMessage is one message in the chat completions format.
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// ChatToolCall is a function call made by the assistant.
type ChatToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ChatFunction `json:"function"`
}

// ChatFunction names a function and its JSON arguments.
type ChatFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// CompletionRequest is the input to Stream.
type CompletionRequest struct {
	Messages []ChatMessage
}

// Delta is the incremental content of one streamed chunk.
type Delta struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is a fragment of a tool call. ID and Function.Name are
// only set on the first fragment of each call.
type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Function ChatFunction `json:"function"`
}

type completionChunk struct {
	Choices []struct {
		Delta        Delta  `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamEvent is sent on the channel returned by Stream.
type StreamEvent struct {
	Type  string // "delta" | "error" | "done"
	Delta Delta
	Err   error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client talks to one provider's /chat/completions endpoint.
type Client struct {
	provider    string
	model       string
	apiKey      string
	baseURL     string
	temperature float64
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
	http        *http.Client
	log         *logging.Logger
}

// Name returns the provider name.
func (c *Client) Name() string { return c.provider }

// Model returns the configured model.
func (c *Client) Model() string { return c.model }

// Stream sends a streaming completion request. Connection failures are
// retried with exponential backoff; a non-200 answer is not. Once the
// response arrives, deltas are delivered on the channel, which is closed
// after a "done" or "error" event or when ctx ends.
func (c *Client) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	payload, err := json.Marshal(map[string]any{
		"model":       c.model,
		"messages":    req.Messages,
		"stream":      true,
		"temperature": c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, release, err := c.doWithRetry(ctx, payload)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		resp.Body.Close()
		release()
		c.log.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("provider returned error response")
		return nil, &ProviderError{
			Provider: c.provider,
			Code:     resp.StatusCode,
			Message:  fmt.Sprintf("%s: %s", http.StatusText(resp.StatusCode), bytes.TrimSpace(body)),
		}
	}

	events := make(chan StreamEvent)
	go c.readStream(ctx, resp.Body, release, events)
	return events, nil
}

func (c *Client) doWithRetry(ctx context.Context, payload []byte) (*http.Response, context.CancelFunc, error) {
	url := c.baseURL + "/chat/completions"
	for attempt := 0; ; attempt++ {
		// the timeout bounds the wait for response headers only
		attemptCtx, cancel := context.WithCancel(ctx)
		var timer *time.Timer
		if c.timeout > 0 {
			timer = time.AfterFunc(c.timeout, cancel)
		}

		httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			cancel()
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(httpReq)
		if timer != nil && !timer.Stop() && ctx.Err() == nil {
			if err == nil {
				resp.Body.Close()
			}
			err = fmt.Errorf("no response within %s", c.timeout)
		}
		if err == nil {
			return resp, cancel, nil
		}
		cancel()

		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if attempt >= c.maxRetries {
			return nil, nil, &ProviderError{Provider: c.provider, Message: err.Error()}
		}

		delay := c.retryDelay << attempt
		c.log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("maxRetries", c.maxRetries).
			Dur("delay", delay).
			Msg("request failed, retrying")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) readStream(ctx context.Context, body io.ReadCloser, release context.CancelFunc, events chan<- StreamEvent) {
	defer close(events)
	defer release()
	defer body.Close()

	send := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	dec := agui.NewDecoder(body)
	chunks := 0
	for {
		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				send(StreamEvent{Type: "error", Err: &ProviderError{Provider: c.provider, Message: "reading stream: " + err.Error()}})
			}
			return
		}

		data := bytes.TrimSpace(frame.Data)
		if len(data) == 0 || string(data) == "[DONE]" {
			continue
		}
		var chunk completionChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			c.log.Warn().Err(err).Str("data", string(data)).Msg("skipping unparsable chunk")
			continue
		}
		chunks++
		if len(chunk.Choices) == 0 {
			continue
		}
		if !send(StreamEvent{Type: "delta", Delta: chunk.Choices[0].Delta}) {
			return
		}
	}

	c.log.Debug().Int("chunks", chunks).Msg("stream finished")
	send(StreamEvent{Type: "done"})
}
