package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/soyeahso/chatkit-demo/internal/agui"
)

// streamSSE runs agent and writes its events as an SSE response. A
// heartbeat comment keeps idle proxies from closing long runs. Errors
// after the headers are sent become a RUN_ERROR event.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, agent Agent, input agui.RunAgentInput) {
	h := w.Header()
	h.Set("Content-Type", agui.ContentTypeSSE)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var mu sync.Mutex
	enc := agui.NewEncoder(w)
	write := func(fn func() error) error {
		mu.Lock()
		defer mu.Unlock()
		return fn()
	}

	if ms := s.cfg.Server.SSERetryMs; ms > 0 {
		if err := enc.Retry(time.Duration(ms) * time.Millisecond); err != nil {
			return
		}
	}

	var wg sync.WaitGroup
	if ms := s.cfg.Server.SSEHeartbeatMs; ms > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(time.Duration(ms) * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := write(func() error { return enc.Comment("heartbeat") }); err != nil {
						cancel()
						return
					}
				}
			}
		}()
	}

	err := s.run(ctx, agent, input, func(ev agui.Event) error {
		return write(func() error { return enc.Encode(ev) })
	})
	if err != nil && ctx.Err() == nil {
		write(func() error {
			return enc.Encode(agui.Event{Type: agui.EventRunError, Message: err.Error(), Code: "AGENT_ERROR"})
		})
	}

	cancel()
	wg.Wait()
}
