package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/models"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/ws"
)

func TestStartChatIdempotent(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")
	bob := e.user(t, "uid-bob", "Bob")

	rec := e.do(t, alice, "POST", "/api/chats/with", StartChatRequest{UserID: bob.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	// Same pair from the other side resolves to the same conversation.
	rec = e.do(t, bob, "POST", "/api/chats/with", StartChatRequest{UserID: alice.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)

	var second models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.ID, second.ID)
}

func TestStartChatWithSelfRejected(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")

	rec := e.do(t, alice, "POST", "/api/chats/with", StartChatRequest{UserID: alice.ID.String()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartChatUnknownUser(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")

	rec := e.do(t, alice, "POST", "/api/chats/with", StartChatRequest{UserID: uuid.New().String()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func startChat(t *testing.T, e *testEnv, a, b *models.User) models.Conversation {
	t.Helper()
	rec := e.do(t, a, "POST", "/api/chats/with", StartChatRequest{UserID: b.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	return conv
}

func TestSendAndListMessages(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")
	bob := e.user(t, "uid-bob", "Bob")
	conv := startChat(t, e, alice, bob)

	rec := e.do(t, alice, "POST", fmt.Sprintf("/api/chats/%s/messages", conv.ID),
		SendMessageRequest{Text: "still available?"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, bob, "GET", fmt.Sprintf("/api/chats/%s/messages", conv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "still available?", resp.Messages[0].Text)
	require.NotNil(t, resp.Messages[0].SenderID)
	assert.Equal(t, alice.ID, *resp.Messages[0].SenderID)
}

func TestNonParticipantForbidden(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")
	bob := e.user(t, "uid-bob", "Bob")
	eve := e.user(t, "uid-eve", "Eve")
	conv := startChat(t, e, alice, bob)

	rec := e.do(t, eve, "GET", fmt.Sprintf("/api/chats/%s/messages", conv.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, eve, "POST", fmt.Sprintf("/api/chats/%s/messages", conv.ID),
		SendMessageRequest{Text: "let me in"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSendMessageValidation(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")
	bob := e.user(t, "uid-bob", "Bob")
	conv := startChat(t, e, alice, bob)

	// Empty text message.
	rec := e.do(t, alice, "POST", fmt.Sprintf("/api/chats/%s/messages", conv.ID),
		SendMessageRequest{Text: ""})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Over the length cap.
	long := make([]byte, models.MaxMessageLength+1)
	for i := range long {
		long[i] = 'x'
	}
	rec = e.do(t, alice, "POST", fmt.Sprintf("/api/chats/%s/messages", conv.ID),
		SendMessageRequest{Text: string(long)})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Too many images.
	rec = e.do(t, alice, "POST", fmt.Sprintf("/api/chats/%s/messages", conv.ID),
		SendMessageRequest{Images: []string{"a", "b", "c", "d", "e", "f"}, Type: "image"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSendMessageDoesNotFanOut(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")
	bob := e.user(t, "uid-bob", "Bob")
	conv := startChat(t, e, alice, bob)

	rec := e.do(t, alice, "POST", fmt.Sprintf("/api/chats/%s/messages", conv.ID),
		SendMessageRequest{Text: "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// The HTTP path is the durable write only; delivery is the relay's
	// job, so a client sending on both paths cannot double-deliver.
	assert.Empty(t, e.notify.byName(ws.EvtNewMessage))
}

func TestMarkReadResetsUnread(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")
	bob := e.user(t, "uid-bob", "Bob")
	conv := startChat(t, e, alice, bob)

	for i := 0; i < 2; i++ {
		rec := e.do(t, alice, "POST", fmt.Sprintf("/api/chats/%s/messages", conv.ID),
			SendMessageRequest{Text: "ping"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	got, err := e.db.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.UnreadFor(bob.ID))

	rec := e.do(t, bob, "PUT", fmt.Sprintf("/api/chats/%s/read", conv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err = e.db.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadFor(bob.ID))
}

func TestEditMessageBySender(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")
	bob := e.user(t, "uid-bob", "Bob")
	conv := startChat(t, e, alice, bob)

	rec := e.do(t, alice, "POST", fmt.Sprintf("/api/chats/%s/messages", conv.ID),
		SendMessageRequest{Text: "meet at the librray"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))

	// Recipient cannot edit someone else's message.
	rec = e.do(t, bob, "PUT", fmt.Sprintf("/api/messages/%s", msg.ID),
		EditMessageRequest{Text: "hijacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, alice, "PUT", fmt.Sprintf("/api/messages/%s", msg.ID),
		EditMessageRequest{Text: "meet at the library"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := e.db.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "meet at the library", got.Text)
	assert.NotNil(t, got.EditedAt)
}

func TestDeleteMessageLeavesPlaceholder(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")
	bob := e.user(t, "uid-bob", "Bob")
	conv := startChat(t, e, alice, bob)

	rec := e.do(t, alice, "POST", fmt.Sprintf("/api/chats/%s/messages", conv.ID),
		SendMessageRequest{Text: "my number is 555-0100"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))

	rec = e.do(t, alice, "DELETE", fmt.Sprintf("/api/messages/%s", msg.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := e.db.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, models.DeletedPlaceholder, got.Text)

	// Edits after deletion are refused.
	rec = e.do(t, alice, "PUT", fmt.Sprintf("/api/messages/%s", msg.ID),
		EditMessageRequest{Text: "resurrected"})
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestLeaveChat(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")
	bob := e.user(t, "uid-bob", "Bob")
	conv := startChat(t, e, alice, bob)

	rec := e.do(t, alice, "DELETE", fmt.Sprintf("/api/chats/%s", conv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Departed participants lose access.
	rec = e.do(t, alice, "GET", fmt.Sprintf("/api/chats/%s", conv.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, bob, "GET", fmt.Sprintf("/api/chats/%s", conv.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartChatAfterLeavingRestoresAccess(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "uid-alice", "Alice")
	bob := e.user(t, "uid-bob", "Bob")
	conv := startChat(t, e, alice, bob)

	rec := e.do(t, alice, "DELETE", fmt.Sprintf("/api/chats/%s", conv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, alice, "POST", fmt.Sprintf("/api/chats/%s/messages", conv.ID),
		SendMessageRequest{Text: "changed my mind"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Starting the chat again resolves to the same conversation and
	// restores full access for the pair.
	again := startChat(t, e, alice, bob)
	assert.Equal(t, conv.ID, again.ID)

	rec = e.do(t, alice, "POST", fmt.Sprintf("/api/chats/%s/messages", conv.ID),
		SendMessageRequest{Text: "changed my mind"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, bob, "GET", fmt.Sprintf("/api/chats/%s/messages", conv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnauthenticatedRejected(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, nil, "GET", "/api/chats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
