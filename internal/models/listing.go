package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing is a marketplace item. The chat and purchase core consumes
// listings by ID and flips them to sold; the full browse/filter surface
// belongs to the UI-facing layer.
type Listing struct {
	ID        uuid.UUID `json:"id"`
	SellerID  uuid.UUID `json:"seller_id"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	Images    []string  `json:"images,omitempty"`
	Category  string    `json:"category,omitempty"`
	IsActive  bool      `json:"is_active"`
	IsSold    bool      `json:"is_sold"`
	CreatedAt time.Time `json:"created_at"`
}

// Available reports whether the listing can still be purchased.
func (l *Listing) Available() bool {
	return l.IsActive && !l.IsSold
}
