package hooks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/soyeahso/chatkit-demo/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventServerStart, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventServerStart, p.Event)
		return nil
	})

	m.Emit(context.Background(), EventServerStart, nil)
	assert.True(t, called)
}

func TestManager_Emit_RegistrationOrder(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventMessageAdded, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventMessageAdded, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventMessageAdded, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_Emit_WithData(t *testing.T) {
	m := testManager()

	var got map[string]any
	m.On(EventConversationCreated, "test", func(_ context.Context, p Payload) error {
		got = p.Data
		return nil
	})

	m.Emit(context.Background(), EventConversationCreated, map[string]any{
		"title": "Session 1",
		"agent": "Parrot Echo",
	})
	assert.Equal(t, "Session 1", got["title"])
	assert.Equal(t, "Parrot Echo", got["agent"])
}

func TestManager_Emit_HandlerErrorDoesNotStopOthers(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventRunFinished, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventRunFinished, "second", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	m.Emit(context.Background(), EventRunFinished, nil)
	assert.True(t, secondCalled)
}

func TestManager_NilIsNoop(t *testing.T) {
	var m *Manager
	m.Emit(context.Background(), EventServerStop, nil)
	m.EmitAsync(context.Background(), EventServerStop, nil)
	m.Wait()
	assert.Equal(t, 0, m.Count(EventServerStop))
	assert.Nil(t, m.Events())
}

func TestManager_Off(t *testing.T) {
	m := testManager()

	var removed, kept int
	m.On(EventAgentSelected, "remove-me", func(_ context.Context, _ Payload) error {
		removed++
		return nil
	})
	m.On(EventAgentSelected, "keep-me", func(_ context.Context, _ Payload) error {
		kept++
		return nil
	})

	m.Emit(context.Background(), EventAgentSelected, nil)
	m.Off(EventAgentSelected, "remove-me")
	m.Emit(context.Background(), EventAgentSelected, nil)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, kept)
}

func TestManager_EmitAsync_Wait(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		m.On(EventRunStarted, name, func(_ context.Context, _ Payload) error {
			count.Add(1)
			return nil
		})
	}

	m.EmitAsync(context.Background(), EventRunStarted, nil)
	m.Wait()
	assert.Equal(t, int32(3), count.Load())
}

func TestManager_CountAndEvents(t *testing.T) {
	m := testManager()
	assert.Equal(t, 0, m.Count(EventServerStart))

	m.On(EventServerStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventServerStart, "h2", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventConversationDeleted, "h3", func(_ context.Context, _ Payload) error { return nil })

	assert.Equal(t, 2, m.Count(EventServerStart))
	assert.Equal(t, []string{EventConversationDeleted, EventServerStart}, m.Events())
}

func TestAllEvents(t *testing.T) {
	require.Len(t, AllEvents, 8)
	assert.Contains(t, AllEvents, EventAgentSelected)
	assert.Contains(t, AllEvents, EventServerStop)
}
