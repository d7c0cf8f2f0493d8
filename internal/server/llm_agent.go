package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/soyeahso/chatkit-demo/internal/agui"
	"github.com/soyeahso/chatkit-demo/internal/llm"
	"github.com/soyeahso/chatkit-demo/internal/logging"
)

const (
	llmSystemPrompt = "You are a helpful assistant. When tools are available, call them only when the user " +
		"explicitly requests the corresponding functionality. Do not invoke tools for simple greetings, " +
		"general questions, or conversational responses."

	contextPreviewLimit = 200
)

// LLMAgent relays a chat completions stream as AG-UI events. Text arrives
// as TEXT_MESSAGE_CHUNK between START and END; tool calls the model makes
// are forwarded as TOOL_CALL_START/ARGS/END without being executed.
type LLMAgent struct {
	Client *llm.Client
	NewID  func() string
	log    *logging.Logger
}

// NewLLMAgent wraps a provider client.
func NewLLMAgent(client *llm.Client, log *logging.Logger) *LLMAgent {
	return &LLMAgent{Client: client, log: log.Sub("llm-agent")}
}

func (a *LLMAgent) Name() string { return AgentLLM }

func (a *LLMAgent) Run(ctx context.Context, input agui.RunAgentInput, emit Emitter) error {
	if err := emit(agui.Event{Type: agui.EventRunStarted, ThreadID: input.ThreadID, RunID: input.RunID}); err != nil {
		return err
	}

	summary := contextSummaryLines(input.Context)
	if len(input.Tools) > 0 {
		names := make([]string, len(input.Tools))
		for i, t := range input.Tools {
			names[i] = t.Name
		}
		summary = append(summary, "Available tools: "+strings.Join(names, ", "))
	}
	messages := chatMessages(input.Messages, summary)
	a.logger().Info().
		Str("thread", input.ThreadID).
		Str("run", input.RunID).
		Str("model", a.Client.Model()).
		Int("messages", len(messages)).
		Int("contextLines", len(summary)).
		Msg("requesting completion")

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := a.Client.Stream(streamCtx, llm.CompletionRequest{Messages: messages})
	if err != nil {
		return a.fail(ctx, input, emit, err)
	}

	newID := a.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	messageID := newID()
	textStarted := false
	currentTool := ""

	endTool := func() error {
		if currentTool == "" {
			return nil
		}
		id := currentTool
		currentTool = ""
		return emit(agui.Event{Type: agui.EventToolCallEnd, ToolCallID: id})
	}

	for ev := range events {
		switch ev.Type {
		case "error":
			return a.fail(ctx, input, emit, ev.Err)
		case "delta":
			if ev.Delta.Content != "" {
				if !textStarted {
					if err := emit(agui.Event{Type: agui.EventTextMessageStart, MessageID: messageID, Role: "assistant"}); err != nil {
						return err
					}
					textStarted = true
				}
				if err := emit(agui.Event{Type: agui.EventTextMessageChunk, MessageID: messageID, Delta: ev.Delta.Content}); err != nil {
					return err
				}
			}
			if len(ev.Delta.ToolCalls) == 0 {
				continue
			}
			tc := ev.Delta.ToolCalls[0]
			if tc.ID != "" {
				if err := endTool(); err != nil {
					return err
				}
				currentTool = tc.ID
				if err := emit(agui.Event{
					Type:            agui.EventToolCallStart,
					ToolCallID:      tc.ID,
					ToolCallName:    tc.Function.Name,
					ParentMessageID: messageID,
				}); err != nil {
					return err
				}
			}
			if tc.Function.Arguments != "" && currentTool != "" {
				if err := emit(agui.Event{Type: agui.EventToolCallArgs, ToolCallID: currentTool, Delta: tc.Function.Arguments}); err != nil {
					return err
				}
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := endTool(); err != nil {
		return err
	}
	if textStarted {
		if err := emit(agui.Event{Type: agui.EventTextMessageEnd, MessageID: messageID}); err != nil {
			return err
		}
	}
	return emit(agui.Event{Type: agui.EventRunFinished, ThreadID: input.ThreadID, RunID: input.RunID})
}

// fail reports a provider failure to the client as RUN_ERROR. The run
// itself counts as delivered.
func (a *LLMAgent) fail(ctx context.Context, input agui.RunAgentInput, emit Emitter, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	a.logger().Error().Err(err).Str("thread", input.ThreadID).Str("run", input.RunID).Msg("completion failed")
	return emit(agui.Event{Type: agui.EventRunError, Message: err.Error(), Code: "LLM_ERROR"})
}

func (a *LLMAgent) logger() *logging.Logger {
	if a.log == nil {
		a.log = logging.Nop()
	}
	return a.log
}

// chatMessages prepends the system prompt, and the context lines when
// present, to the converted conversation.
func chatMessages(msgs []agui.Message, contextLines []string) []llm.ChatMessage {
	out := []llm.ChatMessage{{Role: "system", Content: llmSystemPrompt}}
	if len(contextLines) > 0 {
		out = append(out, llm.ChatMessage{
			Role:    "system",
			Content: "Context provided by the client:\n- " + strings.Join(contextLines, "\n- "),
		})
	}

	for _, m := range msgs {
		role := m.Role
		switch role {
		case "agent":
			role = "assistant"
		case "client":
			role = "user"
		case "system", "user", "assistant", "tool":
		default:
			role = "user"
		}
		cm := llm.ChatMessage{Role: role, Content: m.Text(), ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, llm.ChatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: llm.ChatFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

// contextSummaryLines renders one line per context entry. ConvoUI
// attachments get one summary line per item.
func contextSummaryLines(entries []agui.ContextEntry) []string {
	var lines []string
	for _, e := range entries {
		key := e.Key
		if key == "" {
			key = "unknown"
		}

		if key == agui.ConvoUIKey {
			var v struct {
				ContextItems []agui.ContextItem `json:"contextItems"`
			}
			if json.Unmarshal(e.Value, &v) == nil && len(v.ContextItems) > 0 {
				for _, item := range v.ContextItems {
					lines = append(lines, agui.SummarizeContextItem(item))
				}
				continue
			}
		}

		if e.Description != "" {
			lines = append(lines, e.Description)
			continue
		}
		if len(e.Value) > 0 && string(e.Value) != "null" {
			lines = append(lines, fmt.Sprintf("%s: %s", key, previewText(string(e.Value))))
			continue
		}
		lines = append(lines, fmt.Sprintf("Context %s provided.", key))
	}
	return lines
}

func previewText(s string) string {
	if utf8.RuneCountInString(s) <= contextPreviewLimit {
		return s
	}
	return string([]rune(s)[:contextPreviewLimit]) + "…"
}
