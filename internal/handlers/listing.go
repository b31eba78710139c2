package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/api/middleware"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/models"
)

const (
	defaultListingPage = 20
	maxListingPage     = 100
	maxTitleLength     = 140
)

// CreateListingRequest represents the create listing request body.
type CreateListingRequest struct {
	Title    string   `json:"title"`
	Price    int64    `json:"price"`
	Images   []string `json:"images,omitempty"`
	Category string   `json:"category,omitempty"`
}

// CreateListing publishes a new listing for the authenticated seller.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		h.Error(w, http.StatusUnprocessableEntity, "title is required")
		return
	}
	if len(req.Title) > maxTitleLength {
		h.Error(w, http.StatusUnprocessableEntity, "title too long")
		return
	}
	if req.Price < 0 {
		h.Error(w, http.StatusUnprocessableEntity, "price cannot be negative")
		return
	}
	if len(req.Images) > models.MaxMessageImages {
		h.Error(w, http.StatusUnprocessableEntity, "too many images")
		return
	}

	listing := &models.Listing{
		SellerID: user.ID,
		Title:    req.Title,
		Price:    req.Price,
		Images:   req.Images,
		Category: req.Category,
	}
	if err := h.db.CreateListing(r.Context(), listing); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusCreated, listing)
}

// ListListings returns a page of active listings, newest first.
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	limit := defaultListingPage
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxListingPage {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	listings, err := h.db.ListListings(r.Context(), limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if listings == nil {
		listings = []models.Listing{}
	}

	h.JSON(w, http.StatusOK, map[string]any{"listings": listings})
}

// GetListing returns a single listing by ID, sold or not.
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
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

	h.JSON(w, http.StatusOK, listing)
}
