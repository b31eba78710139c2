package ws

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Inbound event names (client → server).
const (
	EvtJoinChat    = "join_chat"
	EvtLeaveChat   = "leave_chat"
	EvtTypingStart = "typing_start"
	EvtTypingStop  = "typing_stop"
	EvtSendMessage = "send_message"
)

// Outbound event names (server → client).
const (
	EvtAuthError         = "auth_error"
	EvtUserOnline        = "user_online"
	EvtUserOffline       = "user_offline"
	EvtUserTyping        = "user_typing"
	EvtUserStoppedTyping = "user_stopped_typing"
	EvtNewMessage        = "new_message"
	EvtPurchaseOTP       = "purchase_otp"
	EvtPurchaseConfirmed = "purchase_confirmed"
	EvtListingUpdate     = "listing_update"
)

// CommunityChatID is the reserved room identifier for the shared public
// channel. Messages sent there are broadcast-only and never persisted.
const CommunityChatID = "community"

// Event is the wire envelope for every websocket frame in both directions.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals payload into an Event envelope.
func NewEvent(name string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{Event: name}
	}
	return Event{Event: name, Data: data}
}

// ChatRoom names the broadcast room for a conversation or the community
// channel.
func ChatRoom(chatID string) string {
	return "chat:" + chatID
}

// UserRoom names the private per-identity channel. Keyed by the external
// auth UID because that is the only identity the connection layer holds.
func UserRoom(externalUID string) string {
	return "user:" + externalUID
}

// ValidChatID reports whether id names the community channel or is a
// structurally valid conversation identifier. Membership is not checked
// here; conversation access control lives on the HTTP paths.
func ValidChatID(id string) bool {
	if id == CommunityChatID {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Notifier is the fan-out primitive handlers use to push events. Both the
// local hub and the Redis bridge satisfy it.
type Notifier interface {
	// Broadcast delivers evt to every connection currently in room.
	Broadcast(room string, evt Event)
	// BroadcastExcept is Broadcast minus every connection authenticated
	// as excludeUID. Used for typing indicators and optimistic message
	// previews, which never echo back to the sender.
	BroadcastExcept(room, excludeUID string, evt Event)
	// SendToUser delivers evt to every connection authenticated as the
	// given external UID.
	SendToUser(externalUID string, evt Event)
	// BroadcastAll delivers evt to every connection.
	BroadcastAll(evt Event)
}
