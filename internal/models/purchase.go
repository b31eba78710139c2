package models

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseStatus is the state of one OTP challenge.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseConfirmed PurchaseStatus = "confirmed"
	PurchaseCancelled PurchaseStatus = "cancelled"
	PurchaseExpired   PurchaseStatus = "expired"
)

// PurchaseAttempt records one OTP challenge tying a listing, its seller,
// and a buyer. The plaintext code is never stored; only the salted
// SHA-256 hash is. BuyerExternalUID addresses the buyer's private
// notification channel, which is keyed by the external auth UID.
type PurchaseAttempt struct {
	ID               uuid.UUID      `json:"id"`
	ListingID        uuid.UUID      `json:"listing_id"`
	SellerID         uuid.UUID      `json:"seller_id"`
	BuyerID          uuid.UUID      `json:"buyer_id"`
	BuyerExternalUID string         `json:"-"`
	OTPHash          string         `json:"-"`
	OTPSalt          string         `json:"-"`
	ExpiresAt        time.Time      `json:"expires_at"`
	Status           PurchaseStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Live reports whether the attempt can still be confirmed. A pending
// attempt past its expiry is invalid even before the sweeper marks it
// expired.
func (p *PurchaseAttempt) Live(now time.Time) bool {
	return p.Status == PurchasePending && p.ExpiresAt.After(now)
}
