package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType discriminates message content.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageSystem MessageType = "system"
)

const (
	MaxMessageLength = 2000
	MaxMessageImages = 5

	// EditGraceWindow is how long a sender may edit their own text message.
	EditGraceWindow = 15 * time.Minute

	// DeletedPlaceholder replaces the content of soft-deleted messages.
	DeletedPlaceholder = "This message was deleted"

	messagePreviewLength = 100
)

var (
	ErrEmptyBody      = errors.New("text messages must have content")
	ErrNoImages       = errors.New("image messages must have at least one image")
	ErrTooManyImages  = fmt.Errorf("maximum %d images allowed per message", MaxMessageImages)
	ErrBodyTooLong    = fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	ErrInvalidMsgType = errors.New("invalid message type")
)

// Message belongs to exactly one conversation. SenderID is nil only for
// system-generated messages.
type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	SenderID       *uuid.UUID  `json:"sender_id,omitempty"`
	Text           string      `json:"text,omitempty"`
	Images         []string    `json:"images,omitempty"`
	Type           MessageType `json:"type"`
	IsRead         bool        `json:"is_read"`
	ReadBy         []uuid.UUID `json:"read_by,omitempty"`
	ReadAt         *time.Time  `json:"read_at,omitempty"`
	EditedAt       *time.Time  `json:"edited_at,omitempty"`
	IsDeleted      bool        `json:"is_deleted"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Validate enforces the content rules for each message type.
func (m *Message) Validate() error {
	switch m.Type {
	case MessageText, MessageSystem:
		if strings.TrimSpace(m.Text) == "" {
			return ErrEmptyBody
		}
	case MessageImage:
		if len(m.Images) == 0 {
			return ErrNoImages
		}
	default:
		return ErrInvalidMsgType
	}
	if len(m.Text) > MaxMessageLength {
		return ErrBodyTooLong
	}
	if len(m.Images) > MaxMessageImages {
		return ErrTooManyImages
	}
	return nil
}

// Preview returns the short text shown in conversation lists.
func (m *Message) Preview() string {
	if m.IsDeleted {
		return DeletedPlaceholder
	}
	switch m.Type {
	case MessageImage:
		return fmt.Sprintf("%d image(s)", len(m.Images))
	case MessageSystem:
		return m.Text
	default:
		if len(m.Text) > messagePreviewLength {
			return m.Text[:messagePreviewLength] + "..."
		}
		return m.Text
	}
}

// CanEdit reports whether userID may still edit this message. Only the
// sender may edit, only text messages, and only within the grace window.
func (m *Message) CanEdit(userID uuid.UUID, now time.Time) bool {
	return m.SenderID != nil && *m.SenderID == userID &&
		!m.IsDeleted && m.Type == MessageText &&
		now.Sub(m.CreatedAt) < EditGraceWindow
}

// CanDelete reports whether userID may soft-delete this message.
func (m *Message) CanDelete(userID uuid.UUID) bool {
	return m.SenderID != nil && *m.SenderID == userID && !m.IsDeleted
}

// ReadByUser reports whether userID has acknowledged this message.
func (m *Message) ReadByUser(userID uuid.UUID) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
