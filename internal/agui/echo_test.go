package agui

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedEcho = Echo{
	Now:   func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	NewID: func() string { return "msg-1" },
}

func TestEchoEvents_Sequence(t *testing.T) {
	events := fixedEcho.Events(Payload{Message: "hello", ThreadID: "t1", RunID: "r1"})
	require.Len(t, events, 9)

	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	assert.Equal(t, []EventType{
		EventRunStarted,
		EventTextMessageStart,
		EventTextMessageContent, EventTextMessageContent, EventTextMessageContent, EventTextMessageContent,
		EventTextMessageContent,
		EventTextMessageEnd,
		EventRunFinished,
	}, types)

	base := int64(1_700_000_000_000)
	assert.Equal(t, base, events[0].Timestamp)
	assert.Equal(t, "t1", events[0].ThreadID)
	assert.Equal(t, "r1", events[0].RunID)
	assert.Equal(t, base+100, events[1].Timestamp)
	assert.Equal(t, "assistant", events[1].Role)
	assert.Equal(t, base+200, events[2].Timestamp)
	assert.Equal(t, base+350, events[3].Timestamp)
	assert.Equal(t, base+500, events[4].Timestamp)
	assert.Equal(t, base+650, events[5].Timestamp)
	assert.Equal(t, base+800, events[6].Timestamp)
	assert.Equal(t, "**hello**", events[6].Delta)
	assert.Equal(t, base+1000, events[7].Timestamp)
	assert.Equal(t, base+1000, events[8].Timestamp)

	for _, ev := range events[1:8] {
		assert.Equal(t, "msg-1", ev.MessageID)
	}
}

func TestEchoEvents_Deterministic(t *testing.T) {
	p := Payload{Message: "same", ThreadID: "t", RunID: "r"}
	a, err := MarshalEvents(fixedEcho.Events(p))
	require.NoError(t, err)
	b, err := MarshalEvents(fixedEcho.Events(p))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEchoEvents_WithContext(t *testing.T) {
	p := Payload{
		Message:  "look",
		ThreadID: "t",
		RunID:    "r",
		ContextItems: []ContextItem{
			{"contextType": "note", "displayName": "Note", "encodedContent": "buy milk"},
		},
	}
	events := fixedEcho.Events(p)
	require.Len(t, events, 10)

	ctx := events[7]
	assert.Equal(t, EventTextMessageContent, ctx.Type)
	assert.Equal(t, int64(1_700_000_000_000)+900, ctx.Timestamp)
	assert.Equal(t, "\n\n**Attached Context:**\n🔗 Note: buy milk", ctx.Delta)
}

func TestEchoTextAssembly(t *testing.T) {
	text := echoText(Payload{Message: "hi", ThreadID: "t", RunID: "r"})
	assert.Equal(t, "你好！我是一只数字鹦鹉，我只能模仿你说话。这是你的原话：\n\n**hi**", text)
}

func TestEchoEvents_DefaultsGenerateIDs(t *testing.T) {
	events := EchoEvents(Payload{Message: "x", ThreadID: "t", RunID: "r"})
	assert.NotEmpty(t, events[1].MessageID)
	assert.InDelta(t, time.Now().UnixMilli(), events[0].Timestamp, 5000)
}

func TestEventJSON_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Event{Type: EventRunStarted, ThreadID: "t", RunID: "r", Timestamp: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"RUN_STARTED","threadId":"t","runId":"r","timestamp":5}`, string(data))
	assert.False(t, strings.Contains(string(data), "delta"))
}

func TestParseEvent(t *testing.T) {
	raw := []byte(`{"type":"TEXT_MESSAGE_CHUNK","messageId":"m","delta":"E","extra":1}`)
	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, EventTextMessageChunk, ev.Type)
	d, ok := ev.TextDelta()
	assert.True(t, ok)
	assert.Equal(t, "E", d)
	assert.JSONEq(t, string(raw), string(ev.Raw))

	_, err = ParseEvent([]byte(`{"delta":"x"}`))
	assert.Error(t, err)
	_, err = ParseEvent([]byte(`nope`))
	assert.Error(t, err)
}

func TestEvent_IsTerminal(t *testing.T) {
	assert.True(t, Event{Type: EventRunFinished}.IsTerminal())
	assert.True(t, Event{Type: EventRunError}.IsTerminal())
	assert.False(t, Event{Type: EventTextMessageEnd}.IsTerminal())
}
