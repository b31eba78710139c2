package models

import (
	"time"

	"github.com/google/uuid"
)

// PreviewLength caps the last-message preview stored on a conversation.
const PreviewLength = 500

// Conversation is a durable two-party chat thread, optionally tied to a
// listing. The participant pair is unordered: a conversation for (A, B)
// and one for (B, A) are the same record.
type Conversation struct {
	ID                  uuid.UUID      `json:"id"`
	Participants        []uuid.UUID    `json:"participants"`
	ListingID           *uuid.UUID     `json:"listing_id,omitempty"`
	LastMessage         string         `json:"last_message,omitempty"`
	LastMessageAt       *time.Time     `json:"last_message_at,omitempty"`
	LastMessageSenderID *uuid.UUID     `json:"last_message_sender_id,omitempty"`
	UnreadCount         map[string]int `json:"unread_count"`
	IsActive            bool           `json:"is_active"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// HasParticipant reports whether id is a current participant.
func (c *Conversation) HasParticipant(id uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// OtherParticipant returns the counterpart of id, if any.
func (c *Conversation) OtherParticipant(id uuid.UUID) (uuid.UUID, bool) {
	for _, p := range c.Participants {
		if p != id {
			return p, true
		}
	}
	return uuid.Nil, false
}

// UnreadFor returns id's unread counter.
func (c *Conversation) UnreadFor(id uuid.UUID) int {
	return c.UnreadCount[id.String()]
}

// OrderedPair returns the two identities in canonical order, so that an
// unordered pair maps to exactly one (lo, hi) key.
func OrderedPair(a, b uuid.UUID) (lo, hi uuid.UUID) {
	if a.String() < b.String() {
		return a, b
	}
	return b, a
}
