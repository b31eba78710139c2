package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/api/middleware"
)

// Me returns the authenticated user's own profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.JSON(w, http.StatusOK, user)
}

// GetUser returns another user's public profile.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	user, err := h.db.GetUserByID(r.Context(), userID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, user)
}

// OnlineUsers returns the external UIDs currently holding a live websocket
// connection to this instance.
func (h *Handler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	uids := []string{}
	if h.presence != nil {
		uids = h.presence.OnlineUsers()
	}
	h.JSON(w, http.StatusOK, map[string]any{"online": uids})
}
