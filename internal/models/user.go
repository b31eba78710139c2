package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the internal identity behind an external auth UID. The external
// provider owns authentication; we only keep the mapping and profile basics.
type User struct {
	ID          uuid.UUID `json:"id"`
	ExternalUID string    `json:"-"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	IsAdmin     bool      `json:"is_admin,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
