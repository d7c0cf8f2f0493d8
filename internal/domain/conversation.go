package domain

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// ConversationRecord is the app-side summary of one chat session.
// Records are replaced rather than mutated: every update method returns a copy.
type ConversationRecord struct {
	SessionID          uuid.UUID      `json:"sessionId"`
	AgentID            uuid.UUID      `json:"agentId"`
	AgentName          string         `json:"agentName"`
	Title              string         `json:"title"`
	LastMessagePreview string         `json:"lastMessagePreview,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	Connection         ConnectionMode `json:"connection"`
	Pinned             bool           `json:"pinned,omitempty"`
}

// NewConversationRecord creates a record with CreatedAt == UpdatedAt == now.
func NewConversationRecord(agent AgentProfile, title string, mode ConnectionMode, now time.Time) ConversationRecord {
	return ConversationRecord{
		SessionID:  uuid.New(),
		AgentID:    agent.ID,
		AgentName:  agent.Name,
		Title:      title,
		CreatedAt:  now,
		UpdatedAt:  now,
		Connection: mode,
	}
}

// UpdatingLastMessage returns a copy with a new preview.
func (r ConversationRecord) UpdatingLastMessage(text string, now time.Time) ConversationRecord {
	r.LastMessagePreview = text
	r.UpdatedAt = later(r.UpdatedAt, now)
	return r
}

// Renaming returns a copy with a new title.
func (r ConversationRecord) Renaming(title string, now time.Time) ConversationRecord {
	r.Title = title
	r.UpdatedAt = later(r.UpdatedAt, now)
	return r
}

// Pinning returns a copy with the pinned flag set.
func (r ConversationRecord) Pinning(pinned bool, now time.Time) ConversationRecord {
	r.Pinned = pinned
	r.UpdatedAt = later(r.UpdatedAt, now)
	return r
}

// LastUpdatedDescription renders UpdatedAt relative to now, e.g. "5 minutes ago".
func (r ConversationRecord) LastUpdatedDescription(now time.Time) string {
	return humanize.RelTime(r.UpdatedAt, now, "ago", "from now")
}

// later keeps UpdatedAt from moving backwards when the clock does.
func later(prev, now time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}
