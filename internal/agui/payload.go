package agui

import (
	"encoding/json"
	"errors"
)

// ErrNoPayload means a request body carried no echoable user message.
// Connection probes and handshakes look like this.
var ErrNoPayload = errors.New("agui: no user payload in request")

// Payload is what the echo fixture needs from a run request.
type Payload struct {
	Message      string
	ThreadID     string
	RunID        string
	ContextItems []ContextItem
}

// ExtractPayload pulls the user message, thread and run ids, and any ConvoUI
// context items out of a RunAgentInput body. The body is read loosely: the
// message comes from a top-level "message" string, else the newest user
// message with string content, else the first output_text block found
// walking messages from newest to oldest.
func ExtractPayload(body []byte) (Payload, error) {
	if len(body) == 0 {
		return Payload{}, ErrNoPayload
	}
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return Payload{}, ErrNoPayload
	}

	threadID, ok1 := root["threadId"].(string)
	runID, ok2 := root["runId"].(string)
	if !ok1 || !ok2 {
		return Payload{}, ErrNoPayload
	}

	p := Payload{ThreadID: threadID, RunID: runID, ContextItems: convoUIItems(root["context"])}

	if msg, ok := root["message"].(string); ok {
		p.Message = msg
		return p, nil
	}
	if msg, ok := messageFromList(root["messages"]); ok {
		p.Message = msg
		return p, nil
	}
	return Payload{}, ErrNoPayload
}

func convoUIItems(v any) []ContextItem {
	entries, _ := v.([]any)
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok || entry["key"] != ConvoUIKey {
			continue
		}
		value, ok := entry["value"].(map[string]any)
		if !ok {
			// some clients send the value as a JSON string
			s, isString := entry["value"].(string)
			if !isString || json.Unmarshal([]byte(s), &value) != nil {
				continue
			}
		}
		raw, ok := value["contextItems"].([]any)
		if !ok {
			continue
		}
		items := make([]ContextItem, 0, len(raw))
		for _, r := range raw {
			if item, ok := r.(map[string]any); ok {
				items = append(items, ContextItem(item))
			}
		}
		return items
	}
	return nil
}

func messageFromList(v any) (string, bool) {
	msgs, _ := v.([]any)
	for i := len(msgs) - 1; i >= 0; i-- {
		entry, ok := msgs[i].(map[string]any)
		if !ok {
			continue
		}
		if entry["role"] == "user" {
			if s, ok := entry["content"].(string); ok {
				return s, true
			}
		}
		blocks, _ := entry["content"].([]any)
		for _, b := range blocks {
			block, ok := b.(map[string]any)
			if !ok || block["type"] != "output_text" {
				continue
			}
			if text, ok := block["text"].(string); ok {
				return text, true
			}
		}
	}
	return "", false
}
