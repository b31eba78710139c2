package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/api/middleware"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/crypto"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/metrics"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/models"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/store"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/ws"
)

// InitiatePurchase starts an OTP-gated purchase. The plaintext code goes to
// the buyer's private channel only; it never appears in the HTTP response
// or in logs.
func (h *Handler) InitiatePurchase(w http.ResponseWriter, r *http.Request) {
	buyer := middleware.GetUserFromContext(r.Context())
	if buyer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid listing ID format")
		return
	}

	listing, err := h.db.GetListing(r.Context(), listingID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if listing == nil {
		h.Error(w, http.StatusNotFound, "listing not found")
		return
	}
	if !listing.Available() {
		h.Error(w, http.StatusBadRequest, "listing is not available")
		return
	}
	if listing.SellerID == buyer.ID {
		h.Error(w, http.StatusBadRequest, "cannot purchase your own listing")
		return
	}

	code, err := crypto.GenerateOTP()
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to generate code")
		return
	}
	salt, err := crypto.NewSalt()
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to generate code")
		return
	}

	attempt := &models.PurchaseAttempt{
		ListingID:        listing.ID,
		SellerID:         listing.SellerID,
		BuyerID:          buyer.ID,
		BuyerExternalUID: buyer.ExternalUID,
		OTPHash:          crypto.HashOTP(code, salt),
		OTPSalt:          salt,
		ExpiresAt:        time.Now().UTC().Add(crypto.OTPTTL),
	}

	// Superseding any prior pending attempt for this (listing, buyer)
	// pair happens atomically inside the store.
	if err := h.db.CreatePurchaseSupersedingPending(r.Context(), attempt); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.notify.SendToUser(buyer.ExternalUID, ws.NewEvent(ws.EvtPurchaseOTP, map[string]any{
		"listingId": listing.ID,
		"otp":       code,
		"expiresAt": attempt.ExpiresAt,
	}))
	metrics.PurchasesInitiated.Inc()

	h.JSON(w, http.StatusOK, map[string]any{
		"sent":      true,
		"expiresAt": attempt.ExpiresAt,
	})
}

// VerifyPurchaseRequest represents the verify purchase request body.
type VerifyPurchaseRequest struct {
	OTP string `json:"otp"`
}

// VerifyPurchase completes a purchase: the seller (or an admin) submits the
// code the buyer read out in person. On success the listing is marked sold
// and deactivated atomically with the attempt's confirmation.
func (h *Handler) VerifyPurchase(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetUserFromContext(r.Context())
	if actor == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid listing ID format")
		return
	}

	var req VerifyPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !crypto.ValidOTPFormat(req.OTP) {
		h.Error(w, http.StatusBadRequest, "OTP must be a 6-digit code")
		return
	}

	listing, err := h.db.GetListing(r.Context(), listingID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if listing == nil {
		h.Error(w, http.StatusNotFound, "listing not found")
		return
	}
	if listing.SellerID != actor.ID && !actor.IsAdmin {
		metrics.OTPVerifyFailures.WithLabelValues("forbidden").Inc()
		h.Error(w, http.StatusForbidden, "only the seller can confirm this purchase")
		return
	}

	// Expiry is enforced here at read time; the background sweeper only
	// tidies up row status afterwards.
	attempt, err := h.db.GetLivePendingPurchase(r.Context(), listing.ID, time.Now().UTC())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if attempt == nil {
		metrics.OTPVerifyFailures.WithLabelValues("expired").Inc()
		h.Error(w, http.StatusBadRequest, "No active purchase or OTP expired")
		return
	}

	if !crypto.VerifyOTP(req.OTP, attempt.OTPSalt, attempt.OTPHash) {
		metrics.OTPVerifyFailures.WithLabelValues("mismatch").Inc()
		h.Error(w, http.StatusBadRequest, "Incorrect OTP")
		return
	}

	if err := h.db.ConfirmPurchase(r.Context(), attempt.ID, listing.ID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			h.Error(w, http.StatusConflict, "purchase already resolved")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	listing.IsSold = true
	listing.IsActive = false
	metrics.PurchasesConfirmed.Inc()

	// Everyone sees the listing flip to sold; only the buyer gets the
	// private confirmation.
	h.notify.BroadcastAll(ws.NewEvent(ws.EvtListingUpdate, map[string]any{
		"listingId": listing.ID,
		"isSold":    true,
		"isActive":  false,
	}))
	h.notify.SendToUser(attempt.BuyerExternalUID, ws.NewEvent(ws.EvtPurchaseConfirmed, map[string]any{
		"listingId":  listing.ID,
		"purchaseId": attempt.ID,
	}))

	h.JSON(w, http.StatusOK, map[string]any{
		"confirmed": true,
		"listing":   listing,
	})
}
