// Package runtime connects to an AG-UI agent, either the in-process replay
// fixture or a remote HTTP endpoint, and runs chat turns against it.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/agui"
	"github.com/soyeahso/chatkit-demo/internal/conversation"
	"github.com/soyeahso/chatkit-demo/internal/domain"
	"github.com/soyeahso/chatkit-demo/internal/hooks"
	"github.com/soyeahso/chatkit-demo/internal/logging"
	"github.com/soyeahso/chatkit-demo/internal/replay"
)

// ErrNotConnected is returned by operations that need an agent before Connect.
var ErrNotConnected = errors.New("runtime: not connected")

// State is the connection state of a Coordinator.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
)

// DefaultReplayInterval paces the fixture echo stream.
const DefaultReplayInterval = 350 * time.Millisecond

const healthTimeout = 3 * time.Second

// RunError is an agent-reported RUN_ERROR.
type RunError struct {
	Message string
	Code    string
}

func (e *RunError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("agent run failed (%s): %s", e.Code, e.Message)
	}
	return "agent run failed: " + e.Message
}

// Options tune a Coordinator. Zero values pick defaults.
type Options struct {
	ReplayInterval time.Duration
	DeviceID       string
	UserID         string

	// HTTPClient is used for remote agents. Defaults to a client with no timeout.
	HTTPClient *http.Client

	// Player backs fixture mode. Defaults to a fresh replay player.
	Player *replay.Player
}

// Reply is the outcome of one chat turn.
type Reply struct {
	SessionID uuid.UUID
	RunID     string
	MessageID string
	Text      string
	Events    []agui.Event
	User      domain.Message
	Assistant domain.Message
}

// Coordinator owns the transport to the active agent and the conversation
// manager for that agent.
type Coordinator struct {
	convs *conversation.Manager
	hooks *hooks.Manager
	log   *logging.Logger
	opts  Options

	mu        sync.Mutex
	state     State
	agent     *domain.AgentProfile
	client    *http.Client
	endpoint  *url.URL
	listeners []func(State)
}

// New creates a disconnected coordinator. hm may be nil.
func New(convs *conversation.Manager, hm *hooks.Manager, log *logging.Logger, opts Options) *Coordinator {
	if log == nil {
		log = logging.Nop()
	}
	if opts.ReplayInterval == 0 {
		opts.ReplayInterval = DefaultReplayInterval
	}
	if opts.Player == nil {
		opts.Player = replay.NewPlayer(log)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Coordinator{
		convs: convs,
		hooks: hm,
		log:   log.Sub("runtime"),
		opts:  opts,
		state: StateDisconnected,
	}
}

// Conversations returns the conversation manager.
func (c *Coordinator) Conversations() *conversation.Manager { return c.convs }

// State returns the current connection state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Agent returns the connected agent.
func (c *Coordinator) Agent() (domain.AgentProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agent == nil {
		return domain.AgentProfile{}, false
	}
	return *c.agent, true
}

// OnStateChange registers fn to run after every state transition.
func (c *Coordinator) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	listeners := append(([]func(State))(nil), c.listeners...)
	c.mu.Unlock()

	c.log.Debug().Str("state", string(s)).Msg("state changed")
	for _, fn := range listeners {
		fn(s)
	}
}

// Connect attaches the conversation manager to agent and prepares the
// transport: the replay fixture in echo mode for fixture agents, plain HTTP
// for remote ones. A failing health probe on a remote agent is only logged.
func (c *Coordinator) Connect(ctx context.Context, agent domain.AgentProfile) error {
	if err := agent.Validate(); err != nil {
		return err
	}
	c.setState(StateConnecting)

	c.convs.SetConnectionMode(agent.ConnectionMode)
	if err := c.convs.Attach(ctx, agent); err != nil {
		c.setState(StateDisconnected)
		return err
	}

	var client *http.Client
	if agent.ConnectionMode.IsFixture() {
		c.opts.Player.EnableEcho(c.opts.ReplayInterval)
		client = &http.Client{Transport: replay.NewTransport(c.opts.Player)}
		c.log.Info().Str("agent", agent.Name).Dur("interval", c.opts.ReplayInterval).Msg("fixture echo mode")
	} else {
		client = c.opts.HTTPClient
	}
	endpoint := agent.Endpoint()

	if !agent.ConnectionMode.IsFixture() {
		if err := c.probe(ctx, client, endpoint); err != nil {
			c.log.Warn().Err(err).Str("url", endpoint.String()).Msg("agent health check failed")
		}
	}

	c.mu.Lock()
	c.agent = &agent
	c.client = client
	c.endpoint = endpoint
	c.mu.Unlock()

	c.log.Info().Str("agent", agent.Name).Str("mode", agent.ConnectionMode.String()).Msg("connected")
	c.setState(StateConnected)
	return nil
}

func (c *Coordinator) probe(ctx context.Context, client *http.Client, endpoint *url.URL) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	health := endpoint.ResolveReference(&url.URL{Path: "/health"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, health.String(), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: %s", resp.Status)
	}
	return nil
}

// Disconnect drops the transport. Conversation records stay loaded.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	wasFixture := c.agent != nil && c.agent.ConnectionMode.IsFixture()
	c.agent = nil
	c.client = nil
	c.endpoint = nil
	c.mu.Unlock()

	if wasFixture {
		c.opts.Player.DisableEcho()
	}
	c.setState(StateDisconnected)
}

// CreateConversation starts a conversation with the connected agent.
func (c *Coordinator) CreateConversation(ctx context.Context, title string) (domain.ConversationRecord, error) {
	if c.State() != StateConnected {
		return domain.ConversationRecord{}, ErrNotConnected
	}
	return c.convs.Create(ctx, title)
}

// SendOption customises one SendMessage call.
type SendOption func(*sendConfig)

type sendConfig struct {
	items   []agui.ContextItem
	onDelta func(string)
}

// WithContextItems attaches ConvoUI composer items under the convo_ui key.
func WithContextItems(items ...agui.ContextItem) SendOption {
	return func(s *sendConfig) { s.items = append(s.items, items...) }
}

// WithDeltas streams assistant text to fn as it arrives.
func WithDeltas(fn func(string)) SendOption {
	return func(s *sendConfig) { s.onDelta = fn }
}

// SendMessage records text as a user message, runs the agent with the full
// history, and records the assembled assistant reply. An agent RUN_ERROR is
// returned as *RunError.
func (c *Coordinator) SendMessage(ctx context.Context, sessionID uuid.UUID, text string, opts ...SendOption) (Reply, error) {
	var cfg sendConfig
	for _, o := range opts {
		o(&cfg)
	}

	c.mu.Lock()
	client, endpoint, agent := c.client, c.endpoint, c.agent
	c.mu.Unlock()
	if client == nil || agent == nil {
		return Reply{}, ErrNotConnected
	}

	userMsg, err := c.convs.AddMessage(ctx, sessionID, domain.RoleUser, text)
	if err != nil {
		return Reply{}, err
	}
	history, err := c.convs.Messages(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}

	input, err := c.buildInput(sessionID, history, cfg.items)
	if err != nil {
		return Reply{}, err
	}
	reply := Reply{SessionID: sessionID, RunID: input.RunID, User: userMsg}

	c.hooks.Emit(ctx, hooks.EventRunStarted, map[string]any{
		"sessionId": sessionID.String(),
		"runId":     input.RunID,
		"agentId":   agent.ID.String(),
	})
	runErr := c.run(ctx, client, endpoint, input, &reply, cfg.onDelta)
	c.hooks.Emit(ctx, hooks.EventRunFinished, map[string]any{
		"sessionId": sessionID.String(),
		"runId":     input.RunID,
		"ok":        runErr == nil,
		"chars":     len(reply.Text),
	})
	if runErr != nil {
		return reply, runErr
	}

	if strings.TrimSpace(reply.Text) != "" {
		reply.Assistant, err = c.convs.AddMessage(ctx, sessionID, domain.RoleAssistant, reply.Text)
		if err != nil {
			return reply, err
		}
	}
	return reply, nil
}

// SendMessageAsync runs SendMessage in the background and calls completion
// exactly once with its result.
func (c *Coordinator) SendMessageAsync(ctx context.Context, sessionID uuid.UUID, text string, completion func(Reply, error), opts ...SendOption) {
	go func() {
		reply, err := c.SendMessage(ctx, sessionID, text, opts...)
		if completion != nil {
			completion(reply, err)
		}
	}()
}

func (c *Coordinator) buildInput(sessionID uuid.UUID, history []domain.Message, items []agui.ContextItem) (agui.RunAgentInput, error) {
	input := agui.RunAgentInput{
		ThreadID: sessionID.String(),
		RunID:    uuid.NewString(),
		Messages: make([]agui.Message, 0, len(history)),
		Tools:    []agui.Tool{},
		Context:  []agui.ContextEntry{},
	}
	for _, m := range history {
		input.Messages = append(input.Messages, agui.Message{ID: m.ID, Role: m.Role, Content: m.Content})
	}
	if len(items) > 0 {
		entry, err := agui.ConvoUIContext(items)
		if err != nil {
			return input, fmt.Errorf("encoding context items: %w", err)
		}
		input.Context = append(input.Context, entry)
	}
	if c.opts.DeviceID != "" || c.opts.UserID != "" {
		input.ForwardedProps = map[string]any{"deviceId": c.opts.DeviceID, "userId": c.opts.UserID}
	}
	return input, nil
}

func (c *Coordinator) run(
	ctx context.Context,
	client *http.Client,
	endpoint *url.URL,
	input agui.RunAgentInput,
	reply *Reply,
	onDelta func(string),
) error {
	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encoding run input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", agui.ContentTypeSSE)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("agent returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var text strings.Builder
	dec := agui.NewDecoder(resp.Body)
	for {
		ev, err := dec.NextEvent()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}
		reply.Events = append(reply.Events, ev)

		if ev.MessageID != "" && reply.MessageID == "" {
			reply.MessageID = ev.MessageID
		}
		if delta, ok := ev.TextDelta(); ok && delta != "" {
			text.WriteString(delta)
			reply.Text = text.String()
			if onDelta != nil {
				onDelta(delta)
			}
		}
		if ev.Type == agui.EventRunError {
			return &RunError{Message: ev.Message, Code: ev.Code}
		}
		if ev.IsTerminal() {
			break
		}
	}

	c.log.Debug().
		Str("run", input.RunID).
		Int("events", len(reply.Events)).
		Int("chars", len(reply.Text)).
		Msg("run finished")
	return nil
}
