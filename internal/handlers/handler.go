package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/store"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/ws"
)

// PresenceSource reports which users currently hold a live connection.
type PresenceSource interface {
	OnlineUsers() []string
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	notify   ws.Notifier
	presence PresenceSource
	redis    *redis.Client // nil when running single-instance
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(db store.DataStore, notify ws.Notifier, presence PresenceSource, rdb *redis.Client) *Handler {
	return &Handler{db: db, notify: notify, presence: presence, redis: rdb}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
