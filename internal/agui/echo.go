package agui

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// echoPrefix is streamed before the user's words to show incremental rendering.
var echoPrefix = []string{
	"你好",
	"！我是一只数字鹦鹉，",
	"我只能模仿你说话。",
	"这是你的原话：\n\n",
}

// Echo builds the parrot reply used by fixture mode. Zero fields fall back
// to time.Now and random UUIDs.
type Echo struct {
	Now   func() time.Time
	NewID func() string
}

// EchoEvents is Echo{}.Events.
func EchoEvents(p Payload) []Event {
	return Echo{}.Events(p)
}

// Events returns RUN_STARTED, a streamed assistant message that repeats the
// user's input in bold (plus a summary of any attachments), and RUN_FINISHED.
// Timestamps are offsets in milliseconds from one base instant.
func (e Echo) Events(p Payload) []Event {
	now := e.Now
	if now == nil {
		now = time.Now
	}
	newID := e.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	messageID := newID()
	base := now().UnixMilli()
	content := func(delta string, offset int64) Event {
		return Event{Type: EventTextMessageContent, MessageID: messageID, Delta: delta, Timestamp: base + offset}
	}

	events := []Event{
		{Type: EventRunStarted, ThreadID: p.ThreadID, RunID: p.RunID, Timestamp: base},
		{Type: EventTextMessageStart, MessageID: messageID, Role: "assistant", Timestamp: base + 100},
	}
	for i, delta := range echoPrefix {
		events = append(events, content(delta, 200+int64(i)*150))
	}

	inputOffset := 200 + int64(len(echoPrefix))*150
	events = append(events, content("**"+p.Message+"**", inputOffset))

	if len(p.ContextItems) > 0 {
		lines := make([]string, len(p.ContextItems))
		for i, item := range p.ContextItems {
			lines[i] = SummarizeContextItem(item)
		}
		events = append(events, content("\n\n**Attached Context:**\n"+strings.Join(lines, "\n"), inputOffset+100))
	}

	return append(events,
		Event{Type: EventTextMessageEnd, MessageID: messageID, Timestamp: base + 1000},
		Event{Type: EventRunFinished, ThreadID: p.ThreadID, RunID: p.RunID, Timestamp: base + 1000},
	)
}

// echoText is the assistant text the echo stream assembles to.
func echoText(p Payload) string {
	var b strings.Builder
	for _, ev := range EchoEvents(p) {
		if d, ok := ev.TextDelta(); ok {
			b.WriteString(d)
		}
	}
	return b.String()
}
