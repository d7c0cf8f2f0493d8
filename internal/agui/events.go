// Package agui models the AG-UI event protocol spoken between chat clients
// and agents: run input, the streamed events, and their SSE framing.
package agui

import (
	"encoding/json"
	"fmt"
)

// EventType names an AG-UI event.
type EventType string

const (
	EventRunStarted         EventType = "RUN_STARTED"
	EventRunFinished        EventType = "RUN_FINISHED"
	EventRunError           EventType = "RUN_ERROR"
	EventTextMessageStart   EventType = "TEXT_MESSAGE_START"
	EventTextMessageContent EventType = "TEXT_MESSAGE_CONTENT"
	EventTextMessageEnd     EventType = "TEXT_MESSAGE_END"
	EventTextMessageChunk   EventType = "TEXT_MESSAGE_CHUNK"
	EventToolCallStart      EventType = "TOOL_CALL_START"
	EventToolCallArgs       EventType = "TOOL_CALL_ARGS"
	EventToolCallEnd        EventType = "TOOL_CALL_END"
	EventToolCallResult     EventType = "TOOL_CALL_RESULT"
	EventMessagesSnapshot   EventType = "MESSAGES_SNAPSHOT"
	EventCustom             EventType = "CUSTOM"
)

// Event is one AG-UI event. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp,omitempty"`

	ThreadID string `json:"threadId,omitempty"`
	RunID    string `json:"runId,omitempty"`

	MessageID string `json:"messageId,omitempty"`
	Role      string `json:"role,omitempty"`
	Delta     string `json:"delta,omitempty"`

	ToolCallID      string `json:"toolCallId,omitempty"`
	ToolCallName    string `json:"toolCallName,omitempty"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
	Content         string `json:"content,omitempty"`

	// RUN_ERROR
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`

	Messages []Message `json:"messages,omitempty"`

	// CUSTOM
	Name  string          `json:"name,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`

	Result json.RawMessage `json:"result,omitempty"`

	// Raw holds the bytes the event was decoded from, if any.
	Raw json.RawMessage `json:"-"`
}

// ParseEvent decodes one event and keeps the original bytes in Raw.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event has no type: %s", truncate(string(data), 80))
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return ev, nil
}

// IsTerminal reports whether the event ends a run.
func (e Event) IsTerminal() bool {
	return e.Type == EventRunFinished || e.Type == EventRunError
}

// TextDelta returns the streamed assistant text carried by the event.
func (e Event) TextDelta() (string, bool) {
	switch e.Type {
	case EventTextMessageContent, EventTextMessageChunk:
		return e.Delta, true
	}
	return "", false
}

// MarshalEvents encodes events into the JSON payloads a replay player streams.
func MarshalEvents(events []Event) ([][]byte, error) {
	out := make([][]byte, 0, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, data)
	}
	return out, nil
}
