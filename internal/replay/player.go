// Package replay streams canned or echoed AG-UI events as Server-Sent
// Events, either in-process as an http.RoundTripper or over HTTP as a handler.
package replay

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/soyeahso/chatkit-demo/internal/agui"
	"github.com/soyeahso/chatkit-demo/internal/logging"
)

// DefaultInterval is the pause after each frame when none is configured.
const DefaultInterval = 200 * time.Millisecond

// Option customises a Player.
type Option func(*Player)

// WithEcho sets the clock and ID source used to build echo replies.
func WithEcho(e agui.Echo) Option {
	return func(p *Player) { p.echoer = e }
}

// Player holds a replay configuration and plays it to writers. Each Play
// works on a copy of the configuration taken when it starts.
type Player struct {
	mu         sync.Mutex
	events     [][]byte
	interval   time.Duration
	echo       bool
	onComplete func()

	echoer agui.Echo
	log    *logging.Logger
}

// NewPlayer returns a player with no events and DefaultInterval.
func NewPlayer(log *logging.Logger, opts ...Option) *Player {
	if log == nil {
		log = logging.Nop()
	}
	p := &Player{interval: DefaultInterval, log: log.Sub("replay")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configure replaces the canned payloads and turns echo mode off.
// onComplete, if set, runs once after the next stream ends.
func (p *Player) Configure(events [][]byte, interval time.Duration, onComplete func()) {
	copied := make([][]byte, len(events))
	for i, ev := range events {
		copied[i] = append([]byte(nil), ev...)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = copied
	p.interval = interval
	p.onComplete = onComplete
	p.echo = false
}

// EnableEcho makes every stream repeat the request's user message.
func (p *Player) EnableEcho(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.echo = true
	p.interval = interval
}

// DisableEcho goes back to the configured payloads.
func (p *Player) DisableEcho() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.echo = false
}

func (p *Player) echoing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.echo
}

type snapshot struct {
	events   [][]byte
	interval time.Duration
	echo     bool
}

func (p *Player) snapshot() snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return snapshot{events: p.events, interval: p.interval, echo: p.echo}
}

// takeCompletion returns the completion callback and clears it.
func (p *Player) takeCompletion() func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn := p.onComplete
	p.onComplete = nil
	return fn
}

// Payloads returns what a stream for body would emit.
func (p *Player) Payloads(body []byte) [][]byte {
	return p.payloads(p.snapshot(), body)
}

func (p *Player) payloads(cfg snapshot, body []byte) [][]byte {
	if !cfg.echo {
		return cfg.events
	}
	payload, err := agui.ExtractPayload(body)
	if err != nil {
		// probes and handshakes carry no message
		p.log.Debug().Msg("no user payload, empty echo stream")
		return nil
	}
	out, err := agui.MarshalEvents(p.echoer.Events(payload))
	if err != nil {
		p.log.Error().Err(err).Msg("building echo events")
		return nil
	}
	p.log.Debug().
		Str("thread", payload.ThreadID).
		Str("run", payload.RunID).
		Int("contextItems", len(payload.ContextItems)).
		Msg("echo stream")
	return out
}

// Play writes each payload as one SSE frame, pausing the configured
// interval after every frame. It stops early when ctx is done or a write
// fails. The completion callback runs when Play returns.
func (p *Player) Play(ctx context.Context, w io.Writer, body []byte) error {
	cfg := p.snapshot()
	payloads := p.payloads(cfg, body)
	defer func() {
		if fn := p.takeCompletion(); fn != nil {
			fn()
		}
	}()

	enc := agui.NewEncoder(w)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for i, payload := range payloads {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.WriteData(payload); err != nil {
			return err
		}
		p.log.Trace().Int("frame", i+1).Int("of", len(payloads)).Msg("emitted")

		if cfg.interval <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(cfg.interval)
		} else {
			timer.Reset(cfg.interval)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	p.log.Debug().Int("frames", len(payloads)).Msg("stream complete")
	return nil
}
