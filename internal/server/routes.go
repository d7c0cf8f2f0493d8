package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/chatkit-demo/internal/agui"
	"github.com/soyeahso/chatkit-demo/internal/replay"
	"github.com/soyeahso/chatkit-demo/internal/version"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /agent", s.handleAgent)
	mux.HandleFunc("GET /scenarios", s.handleScenarioList)
	mux.HandleFunc("GET /scenarios/{id}", s.handleScenarioGet)
	mux.HandleFunc("POST /scenarios/{id}", s.handleScenarioRun)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	// raw fixture stream, exactly what fixture mode plays in-process
	mux.Handle("POST /replay", http.MaxBytesHandler(replay.NewHandler(s.parrot.Player), maxPayloadBytes))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// InfoResponse describes the server at its root path.
type InfoResponse struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	DefaultScenario string            `json:"defaultScenario"`
	Endpoints       map[string]string `json:"endpoints"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
	Sessions  int       `json:"sessions"`
	Sockets   int       `json:"sockets"`
	Version   string    `json:"version"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Name:            "AG-UI fixture server",
		Version:         version.Version,
		DefaultScenario: s.cfg.Scenarios.Default,
		Endpoints: map[string]string{
			"health":    "GET /health",
			"agent":     "POST /agent",
			"scenarios": "GET /scenarios",
			"scenario":  "GET /scenarios/{id}",
			"run":       "POST /scenarios/{id}",
			"websocket": "GET /ws",
			"replay":    "POST /replay",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.startedAt).Seconds(),
		Sessions:  s.sessions.Count(),
		Sockets:   s.socketCount(),
		Version:   version.Version,
	})
}

// handleAgent runs the agent picked by forwardedProps.scenarioId, or the
// default scenario, and streams its events as SSE.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid RunAgentInput: "+err.Error())
		return
	}
	agent, err := s.selectAgent(input)
	if err != nil {
		writeError(w, agentStatus(err), err.Error())
		return
	}
	s.streamSSE(w, r, agent, input)
}

func (s *Server) handleScenarioList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default":   s.cfg.Scenarios.Default,
		"scenarios": s.scenarioList(),
	})
}

func (s *Server) handleScenarioGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if sc, ok := s.scenarios.Get(id); ok {
		writeJSON(w, http.StatusOK, sc)
		return
	}
	for _, info := range s.scenarioList() {
		if info.Builtin && info.ID == id {
			writeJSON(w, http.StatusOK, info)
			return
		}
	}
	writeError(w, http.StatusNotFound, ErrScenarioNotFound.Error()+": "+id)
}

// handleScenarioRun streams the named scenario regardless of the default.
// The body is optional.
func (s *Server) handleScenarioRun(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agentFor(r.PathValue("id"))
	if err != nil {
		writeError(w, agentStatus(err), err.Error())
		return
	}
	input, err := decodeInput(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid RunAgentInput: "+err.Error())
		return
	}
	s.streamSSE(w, r, agent, input)
}

// decodeInput parses a RunAgentInput. An empty body yields an empty input.
// Missing thread and run ids are generated.
func decodeInput(r io.Reader) (agui.RunAgentInput, error) {
	var input agui.RunAgentInput
	if err := json.NewDecoder(r).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		return agui.RunAgentInput{}, err
	}
	if input.ThreadID == "" {
		input.ThreadID = uuid.NewString()
	}
	if input.RunID == "" {
		input.RunID = uuid.NewString()
	}
	return input, nil
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
