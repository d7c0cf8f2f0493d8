package agui

import (
	"encoding/json"
	"strings"
)

// RunAgentInput is the body a client POSTs to start an agent run.
type RunAgentInput struct {
	ThreadID       string          `json:"threadId"`
	RunID          string          `json:"runId"`
	State          json.RawMessage `json:"state,omitempty"`
	Messages       []Message       `json:"messages"`
	Tools          []Tool          `json:"tools"`
	Context        []ContextEntry  `json:"context"`
	ForwardedProps map[string]any  `json:"forwardedProps,omitempty"`
}

// Message is one chat turn in RunAgentInput or a MESSAGES_SNAPSHOT.
// Content arrives either as a string or as a list of typed blocks.
type Message struct {
	ID         string         `json:"id,omitempty"`
	Role       string         `json:"role"`
	Content    string         `json:"-"`
	Blocks     []ContentBlock `json:"-"`
	ToolCalls  []ToolCall     `json:"toolCalls,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
}

// ContentBlock is one element of an array-valued message content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolCall is an assistant-issued function call.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a client-side tool the agent may call.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ContextEntry carries extra context to the agent. ConvoUI composers send
// their attachments under the key "convo_ui".
type ContextEntry struct {
	Key         string          `json:"key,omitempty"`
	Description string          `json:"description,omitempty"`
	Value       json.RawMessage `json:"value"`
}

// ConvoUIKey is the context key holding composer attachments.
const ConvoUIKey = "convo_ui"

// ConvoUIContext wraps composer attachments into a context entry.
func ConvoUIContext(items []ContextItem) (ContextEntry, error) {
	value, err := json.Marshal(map[string]any{"contextItems": items})
	if err != nil {
		return ContextEntry{}, err
	}
	return ContextEntry{Key: ConvoUIKey, Value: value}, nil
}

type messageJSON struct {
	ID         string          `json:"id,omitempty"`
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []ToolCall      `json:"toolCalls,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	raw := messageJSON{ID: m.ID, Role: m.Role, ToolCalls: m.ToolCalls, ToolCallID: m.ToolCallID}
	var err error
	if len(m.Blocks) > 0 {
		raw.Content, err = json.Marshal(m.Blocks)
	} else {
		raw.Content, err = json.Marshal(m.Content)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message{ID: raw.ID, Role: raw.Role, ToolCalls: raw.ToolCalls, ToolCallID: raw.ToolCallID}

	content := strings.TrimSpace(string(raw.Content))
	switch {
	case content == "" || content == "null":
	case content[0] == '[':
		return json.Unmarshal(raw.Content, &m.Blocks)
	default:
		return json.Unmarshal(raw.Content, &m.Content)
	}
	return nil
}

// Text returns the string content, or the concatenated text blocks.
func (m Message) Text() string {
	if m.Content != "" || len(m.Blocks) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, blk := range m.Blocks {
		b.WriteString(blk.Text)
	}
	return b.String()
}

// LastUserMessage returns the most recent message with role "user".
func LastUserMessage(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i], true
		}
	}
	return Message{}, false
}
