// Package server is an AG-UI fixture server: it streams echo, parrot and
// scripted scenario runs over SSE and WebSocket for testing chat clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/chatkit-demo/internal/agui"
	"github.com/soyeahso/chatkit-demo/internal/config"
	"github.com/soyeahso/chatkit-demo/internal/hooks"
	"github.com/soyeahso/chatkit-demo/internal/llm"
	"github.com/soyeahso/chatkit-demo/internal/logging"
	"github.com/soyeahso/chatkit-demo/internal/replay"
)

const (
	echoDelay       = 50 * time.Millisecond
	maxPayloadBytes = 4 * 1024 * 1024
	cleanupInterval = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// Server serves AG-UI runs over HTTP and WebSocket.
type Server struct {
	cfg       config.Config
	log       *logging.Logger
	hooks     *hooks.Manager
	scenarios *ScenarioRegistry
	sessions  *SessionManager
	parrot    *ParrotAgent
	llm       *LLMAgent
	echoDelay time.Duration
	upgrader  websocket.Upgrader
	startedAt time.Time

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
	sockets    map[*websocket.Conn]struct{}
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithHooks sets the hook manager for lifecycle and run events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithScenarios replaces the scenario registry.
func WithScenarios(r *ScenarioRegistry) ServerOption {
	return func(s *Server) { s.scenarios = r }
}

// WithPlayer sets the replay player behind the parrot agent.
func WithPlayer(p *replay.Player) ServerOption {
	return func(s *Server) { s.parrot = &ParrotAgent{Player: p} }
}

// WithLLM enables the llm agent backed by client.
func WithLLM(client *llm.Client) ServerOption {
	return func(s *Server) { s.llm = NewLLMAgent(client, s.log) }
}

// WithEchoDelay sets the pause between echo characters.
func WithEchoDelay(d time.Duration) ServerOption {
	return func(s *Server) { s.echoDelay = d }
}

// New creates a server. Scenario files in cfg.Scenarios.Dir are loaded;
// files that fail to parse are logged and skipped.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log.Sub("server"),
		scenarios: NewScenarioRegistry(),
		sessions:  NewSessionManager(log.Sub("sessions")),
		echoDelay: echoDelay,
		startedAt: time.Now(),
		sockets:   make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Server.CORSOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	interval := time.Duration(cfg.Replay.IntervalMs) * time.Millisecond
	if s.parrot == nil {
		s.parrot = NewParrotAgent(replay.NewPlayer(log), interval)
	} else {
		s.parrot.Player.EnableEcho(interval)
	}

	if n, err := s.scenarios.LoadDir(cfg.Scenarios.Dir); err != nil {
		s.log.Warn().Err(err).Str("dir", cfg.Scenarios.Dir).Msg("some scenarios failed to load")
	} else if n > 0 {
		s.log.Info().Int("count", n).Str("dir", cfg.Scenarios.Dir).Msg("scenarios loaded")
	}
	return s
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager { return s.sessions }

// Scenarios returns the scenario registry.
func (s *Server) Scenarios() *ScenarioRegistry { return s.scenarios }

// scenarioList is the registry listing plus the llm agent when enabled.
func (s *Server) scenarioList() []ScenarioInfo {
	list := s.scenarios.List()
	if s.llm == nil {
		return list
	}
	info := ScenarioInfo{
		ID:          AgentLLM,
		Name:        "LLM",
		Description: fmt.Sprintf("Streams %s via %s", s.llm.Client.Model(), s.llm.Client.Name()),
		Builtin:     true,
	}
	return append(list[:2:2], append([]ScenarioInfo{info}, list[2:]...)...)
}

// agentStatus maps an agent lookup error to an HTTP status.
func agentStatus(err error) int {
	if errors.Is(err, ErrLLMUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusNotFound
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// Requests without an Origin header come from non-browser clients and pass.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// agentFor resolves a built-in agent name or scenario id.
func (s *Server) agentFor(id string) (Agent, error) {
	switch id {
	case AgentEcho:
		return &EchoAgent{Delay: s.echoDelay}, nil
	case AgentParrot:
		return s.parrot, nil
	case AgentLLM:
		if s.llm == nil {
			return nil, ErrLLMUnavailable
		}
		return s.llm, nil
	}
	sc, ok := s.scenarios.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, id)
	}
	return &ScenarioAgent{Scenario: sc, Delay: time.Duration(s.cfg.Scenarios.DelayMs) * time.Millisecond}, nil
}

// selectAgent honours forwardedProps.scenarioId, else the configured default.
// With the llm agent as default every run goes to the model.
func (s *Server) selectAgent(input agui.RunAgentInput) (Agent, error) {
	if s.cfg.Scenarios.Default == AgentLLM {
		return s.agentFor(AgentLLM)
	}
	if id, ok := input.ForwardedProps["scenarioId"].(string); ok && id != "" {
		return s.agentFor(id)
	}
	return s.agentFor(s.cfg.Scenarios.Default)
}

// run executes one agent run, tracking the thread and firing run hooks.
func (s *Server) run(ctx context.Context, agent Agent, input agui.RunAgentInput, emit Emitter) error {
	sess := s.sessions.Touch(input.ThreadID)
	log := s.log.With("run", input.RunID)
	log.Info().Str("agent", agent.Name()).Str("thread", input.ThreadID).Int("runs", sess.Runs).Msg("run started")

	s.hooks.Emit(ctx, hooks.EventRunStarted, map[string]any{
		"threadId": input.ThreadID,
		"runId":    input.RunID,
		"agent":    agent.Name(),
	})

	start := time.Now()
	events := 0
	err := agent.Run(ctx, input, func(ev agui.Event) error {
		events++
		return emit(ev)
	})

	s.hooks.Emit(ctx, hooks.EventRunFinished, map[string]any{
		"threadId": input.ThreadID,
		"runId":    input.RunID,
		"agent":    agent.Name(),
		"ok":       err == nil,
		"events":   events,
	})
	if err != nil {
		log.Warn().Err(err).Int("events", events).Msg("run failed")
		return err
	}
	log.Info().Int("events", events).Dur("duration", time.Since(start)).Msg("run finished")
	return nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Server.CORSOrigins)
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully. Idle
// sessions are evicted in the background while it runs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Server.Bind).
		Str("defaultScenario", s.cfg.Scenarios.Default).
		Msg("AG-UI fixture server starting")
	s.hooks.Emit(ctx, hooks.EventServerStart, map[string]any{"addr": ln.Addr().String()})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("shutting down server")
		s.hooks.Emit(context.Background(), hooks.EventServerStop, nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.closeSockets()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.cleanupLoop(gctx)
		return nil
	})
	return g.Wait()
}

func (s *Server) cleanupLoop(ctx context.Context) {
	maxIdle := time.Duration(s.cfg.Server.SessionIdleMinutes) * time.Minute
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(min(cleanupInterval, maxIdle))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessions.Cleanup(maxIdle)
		}
	}
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
