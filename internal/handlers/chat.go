package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/api/middleware"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/models"
)

const (
	defaultMessagePage = 50
	maxMessagePage     = 100
)

// StartChatRequest represents the start conversation request body.
type StartChatRequest struct {
	UserID    string `json:"userId"`
	ListingID string `json:"listingId,omitempty"`
}

// StartChat opens (or returns) the conversation between the caller and
// another user. Calling it twice for the same pair yields the same
// conversation regardless of argument order.
func (h *Handler) StartChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req StartChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	otherID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}
	if otherID == user.ID {
		h.Error(w, http.StatusBadRequest, "cannot start a conversation with yourself")
		return
	}

	other, err := h.db.GetUserByID(r.Context(), otherID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if other == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	var listingID *uuid.UUID
	if req.ListingID != "" {
		id, err := uuid.Parse(req.ListingID)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid listing ID format")
			return
		}
		listingID = &id
	}

	conv, err := h.db.GetOrCreateConversation(r.Context(), user.ID, otherID, listingID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, conv)
}

// ListChats returns the caller's conversations, most recent activity first.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conversations, err := h.db.ListUserConversations(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}

	h.JSON(w, http.StatusOK, map[string]any{"chats": conversations})
}

// conversationForParticipant loads the conversation and checks the caller
// belongs to it. Writes the error response itself and returns nil when the
// caller should bail out.
func (h *Handler) conversationForParticipant(w http.ResponseWriter, r *http.Request, userID uuid.UUID) *models.Conversation {
	chatID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat ID format")
		return nil
	}

	conv, err := h.db.GetConversation(r.Context(), chatID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil
	}
	if conv == nil {
		h.Error(w, http.StatusNotFound, "chat not found")
		return nil
	}
	if !conv.HasParticipant(userID) {
		h.Error(w, http.StatusForbidden, "not a participant in this chat")
		return nil
	}
	return conv
}

// GetChat returns one conversation the caller participates in.
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv := h.conversationForParticipant(w, r, user.ID)
	if conv == nil {
		return
	}
	h.JSON(w, http.StatusOK, conv)
}

// ListChatMessages returns a page of messages, newest first.
func (h *Handler) ListChatMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv := h.conversationForParticipant(w, r, user.ID)
	if conv == nil {
		return
	}

	limit := defaultMessagePage
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxMessagePage {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	messages, err := h.db.ListMessages(r.Context(), conv.ID, limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
	Type   string   `json:"type,omitempty"`
}

// SendChatMessage persists the canonical message record. Realtime preview
// delivery happens on the websocket path; this endpoint is the source of
// truth.
func (h *Handler) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv := h.conversationForParticipant(w, r, user.ID)
	if conv == nil {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msgType := models.MessageType(req.Type)
	if req.Type == "" {
		msgType = models.MessageText
		if req.Text == "" && len(req.Images) > 0 {
			msgType = models.MessageImage
		}
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       &user.ID,
		Text:           req.Text,
		Images:         req.Images,
		Type:           msgType,
	}
	if err := msg.Validate(); err != nil {
		h.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.db.CreateMessage(r.Context(), msg); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// MarkChatRead acknowledges every unread message in the conversation and
// zeroes the caller's unread counter in one atomic update.
func (h *Handler) MarkChatRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv := h.conversationForParticipant(w, r, user.ID)
	if conv == nil {
		return
	}

	if err := h.db.MarkConversationRead(r.Context(), conv.ID, user.ID); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, map[string]bool{"read": true})
}

// LeaveChat removes the caller from the conversation.
func (h *Handler) LeaveChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv := h.conversationForParticipant(w, r, user.ID)
	if conv == nil {
		return
	}

	if err := h.db.RemoveParticipant(r.Context(), conv.ID, user.ID); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, map[string]bool{"left": true})
}

// EditMessageRequest represents the edit message request body.
type EditMessageRequest struct {
	Text string `json:"text"`
}

// messageForSender loads a message and checks the caller authored it.
func (h *Handler) messageForSender(w http.ResponseWriter, r *http.Request, userID uuid.UUID) *models.Message {
	msgID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid message ID format")
		return nil
	}

	msg, err := h.db.GetMessage(r.Context(), msgID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return nil
	}
	if msg == nil {
		h.Error(w, http.StatusNotFound, "message not found")
		return nil
	}
	if msg.SenderID == nil || *msg.SenderID != userID {
		h.Error(w, http.StatusForbidden, "not the sender of this message")
		return nil
	}
	return msg
}

// EditMessage rewrites the text of a message the caller sent within the
// edit grace window.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	msg := h.messageForSender(w, r, user.ID)
	if msg == nil {
		return
	}

	now := time.Now().UTC()
	if !msg.CanEdit(user.ID, now) {
		h.Error(w, http.StatusForbidden, "message can no longer be edited")
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		h.Error(w, http.StatusUnprocessableEntity, "text is required")
		return
	}
	if len(req.Text) > models.MaxMessageLength {
		h.Error(w, http.StatusUnprocessableEntity, "text too long")
		return
	}

	if err := h.db.EditMessage(r.Context(), msg.ID, req.Text, now); err != nil {
		h.Error(w, http.StatusConflict, "message can no longer be edited")
		return
	}

	msg.Text = req.Text
	msg.EditedAt = &now
	h.JSON(w, http.StatusOK, msg)
}

// DeleteMessage soft-deletes a message the caller sent. The record stays,
// with its content replaced by a placeholder.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	msg := h.messageForSender(w, r, user.ID)
	if msg == nil {
		return
	}

	if err := h.db.SoftDeleteMessage(r.Context(), msg.ID); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
