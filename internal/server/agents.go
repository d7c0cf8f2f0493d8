package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/agui"
	"github.com/soyeahso/chatkit-demo/internal/replay"
)

// Emitter delivers one event to the client. A returned error stops the run.
type Emitter func(agui.Event) error

// Agent produces the events of one run.
type Agent interface {
	Name() string
	Run(ctx context.Context, input agui.RunAgentInput, emit Emitter) error
}

// EchoAgent streams "Echo: <last user message>" one character per chunk.
type EchoAgent struct {
	Delay time.Duration
	NewID func() string
}

func (a *EchoAgent) Name() string { return AgentEcho }

func (a *EchoAgent) Run(ctx context.Context, input agui.RunAgentInput, emit Emitter) error {
	if err := emit(agui.Event{Type: agui.EventRunStarted, ThreadID: input.ThreadID, RunID: input.RunID}); err != nil {
		return err
	}

	if last, ok := agui.LastUserMessage(input.Messages); ok {
		newID := a.NewID
		if newID == nil {
			newID = uuid.NewString
		}
		messageID := newID()
		for _, r := range "Echo: " + last.Text() {
			if err := emit(agui.Event{Type: agui.EventTextMessageChunk, MessageID: messageID, Delta: string(r)}); err != nil {
				return err
			}
			if err := sleep(ctx, a.Delay); err != nil {
				return err
			}
		}
	}

	return emit(agui.Event{Type: agui.EventRunFinished, ThreadID: input.ThreadID, RunID: input.RunID})
}

// ParrotAgent serves the offline fixture stream through a replay player
// in echo mode, so remote clients see what fixture mode shows locally.
type ParrotAgent struct {
	Player *replay.Player
}

// NewParrotAgent returns a parrot pacing its frames at interval.
func NewParrotAgent(player *replay.Player, interval time.Duration) *ParrotAgent {
	player.EnableEcho(interval)
	return &ParrotAgent{Player: player}
}

func (a *ParrotAgent) Name() string { return AgentParrot }

func (a *ParrotAgent) Run(ctx context.Context, input agui.RunAgentInput, emit Emitter) error {
	body, err := json.Marshal(input)
	if err != nil {
		return err
	}

	// without a user message the fixture stream is empty; clients still
	// expect the run to start and finish
	if len(a.Player.Payloads(body)) == 0 {
		if err := emit(agui.Event{Type: agui.EventRunStarted, ThreadID: input.ThreadID, RunID: input.RunID}); err != nil {
			return err
		}
		return emit(agui.Event{Type: agui.EventRunFinished, ThreadID: input.ThreadID, RunID: input.RunID})
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(a.Player.Play(ctx, pw, body))
	}()
	defer pr.Close()

	dec := agui.NewDecoder(pr)
	for {
		ev, err := dec.NextEvent()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		ev.Raw = nil
		if err := emit(ev); err != nil {
			pr.CloseWithError(err)
			return err
		}
	}
}

// ScenarioAgent replays a scenario's events with a fixed delay between them.
// Run and thread ids in the script are replaced with the request's.
type ScenarioAgent struct {
	Scenario Scenario
	Delay    time.Duration
}

func (a *ScenarioAgent) Name() string { return a.Scenario.ID }

func (a *ScenarioAgent) Run(ctx context.Context, input agui.RunAgentInput, emit Emitter) error {
	for i, raw := range a.Scenario.Events {
		ev, err := agui.ParseEvent(raw)
		if err != nil {
			return fmt.Errorf("scenario %s event %d: %w", a.Scenario.ID, i, err)
		}
		ev.Raw = nil
		if ev.Type == agui.EventRunStarted || ev.Type == agui.EventRunFinished {
			ev.ThreadID = input.ThreadID
			ev.RunID = input.RunID
		}
		if err := emit(ev); err != nil {
			return err
		}
		if i < len(a.Scenario.Events)-1 {
			if err := sleep(ctx, a.Delay); err != nil {
				return err
			}
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
