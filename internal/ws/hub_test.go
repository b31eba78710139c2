package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(nil, nil, zerolog.Nop())
}

// addTestClient registers a connectionless client directly; broadcast paths
// only touch the Send channel.
func addTestClient(h *Hub, uid, name string) *Client {
	c := newClient(uuid.New().String(), nil, uid, name)
	c.joinRoom(UserRoom(uid))
	h.mu.Lock()
	h.clients[c.ConnID] = c
	h.userConns[uid]++
	h.mu.Unlock()
	return c
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw := <-c.Send:
		var evt Event
		require.NoError(t, json.Unmarshal(raw, &evt))
		return evt
	default:
		t.Fatal("expected an event, channel empty")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("expected no event, got %s", raw)
	default:
	}
}

func TestValidChatID(t *testing.T) {
	assert.True(t, ValidChatID(CommunityChatID))
	assert.True(t, ValidChatID(uuid.New().String()))
	assert.False(t, ValidChatID(""))
	assert.False(t, ValidChatID("not-a-uuid"))
	assert.False(t, ValidChatID("chat:injection"))
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	h := newTestHub()
	inRoom := addTestClient(h, "uid-a", "Alice")
	outside := addTestClient(h, "uid-b", "Bob")

	room := ChatRoom(uuid.New().String())
	inRoom.joinRoom(room)

	h.Broadcast(room, NewEvent(EvtUserTyping, typingPayload{ChatID: "x", UserID: "uid-a"}))

	evt := recvEvent(t, inRoom)
	assert.Equal(t, EvtUserTyping, evt.Event)
	assertNoEvent(t, outside)
}

func TestSendToUserTargetsPrivateChannel(t *testing.T) {
	h := newTestHub()
	buyer := addTestClient(h, "uid-buyer", "Buyer")
	other := addTestClient(h, "uid-other", "Other")

	h.SendToUser("uid-buyer", NewEvent(EvtPurchaseOTP, map[string]string{"otp": "123456"}))

	evt := recvEvent(t, buyer)
	assert.Equal(t, EvtPurchaseOTP, evt.Event)
	assertNoEvent(t, other)
}

func TestSendToUserReachesAllUserConnections(t *testing.T) {
	h := newTestHub()
	phone := addTestClient(h, "uid-a", "Alice")
	laptop := addTestClient(h, "uid-a", "Alice")

	h.SendToUser("uid-a", NewEvent(EvtPurchaseConfirmed, nil))

	assert.Equal(t, EvtPurchaseConfirmed, recvEvent(t, phone).Event)
	assert.Equal(t, EvtPurchaseConfirmed, recvEvent(t, laptop).Event)
}

func TestBroadcastAll(t *testing.T) {
	h := newTestHub()
	a := addTestClient(h, "uid-a", "Alice")
	b := addTestClient(h, "uid-b", "Bob")

	h.BroadcastAll(NewEvent(EvtListingUpdate, map[string]any{"isSold": true}))

	assert.Equal(t, EvtListingUpdate, recvEvent(t, a).Event)
	assert.Equal(t, EvtListingUpdate, recvEvent(t, b).Event)
}

func TestJoinChatRejectsMalformedRoom(t *testing.T) {
	h := newTestHub()
	c := addTestClient(h, "uid-a", "Alice")

	data, _ := json.Marshal(roomPayload{ChatID: "../../etc/passwd"})
	h.dispatch(c, Event{Event: EvtJoinChat, Data: data})

	assert.False(t, c.inRoom(ChatRoom("../../etc/passwd")))
	// Silently dropped: no error frame back to the sender.
	assertNoEvent(t, c)
}

func TestJoinChatCommunity(t *testing.T) {
	h := newTestHub()
	c := addTestClient(h, "uid-a", "Alice")
	listener := addTestClient(h, "uid-b", "Bob")
	listener.joinRoom(ChatRoom(CommunityChatID))

	data, _ := json.Marshal(roomPayload{ChatID: CommunityChatID})
	h.dispatch(c, Event{Event: EvtJoinChat, Data: data})

	assert.True(t, c.inRoom(ChatRoom(CommunityChatID)))
	evt := recvEvent(t, listener)
	assert.Equal(t, EvtUserOnline, evt.Event)
}

func TestCommunityMessageIsAnonymized(t *testing.T) {
	h := newTestHub()
	sender := addTestClient(h, "uid-a", "Alice")
	sender.joinRoom(ChatRoom(CommunityChatID))
	receiver := addTestClient(h, "uid-b", "Bob")
	receiver.joinRoom(ChatRoom(CommunityChatID))

	data, _ := json.Marshal(inboundMessage{ChatID: CommunityChatID, Text: "anyone selling a calculator?"})
	h.dispatch(sender, Event{Event: EvtSendMessage, Data: data})

	evt := recvEvent(t, receiver)
	require.Equal(t, EvtNewMessage, evt.Event)

	var msg relayedMessage
	require.NoError(t, json.Unmarshal(evt.Data, &msg))
	assert.Empty(t, msg.SenderUID)
	assert.Empty(t, msg.Sender)
	assert.Equal(t, "anyone selling a calculator?", msg.Text)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestConversationMessageExcludesSenderAndKeepsIdentity(t *testing.T) {
	h := newTestHub()
	chatID := uuid.New().String()

	sender := addTestClient(h, "uid-a", "Alice")
	sender.joinRoom(ChatRoom(chatID))
	receiver := addTestClient(h, "uid-b", "Bob")
	receiver.joinRoom(ChatRoom(chatID))

	data, _ := json.Marshal(inboundMessage{ChatID: chatID, Text: "hi"})
	h.dispatch(sender, Event{Event: EvtSendMessage, Data: data})

	evt := recvEvent(t, receiver)
	require.Equal(t, EvtNewMessage, evt.Event)

	var msg relayedMessage
	require.NoError(t, json.Unmarshal(evt.Data, &msg))
	assert.Equal(t, "uid-a", msg.SenderUID)
	assert.Equal(t, "Alice", msg.Sender)

	// Optimistic delivery excludes the sender's own connections.
	assertNoEvent(t, sender)
}

func TestConversationMessageRequiresJoinedRoom(t *testing.T) {
	h := newTestHub()
	chatID := uuid.New().String()

	sender := addTestClient(h, "uid-a", "Alice")
	receiver := addTestClient(h, "uid-b", "Bob")
	receiver.joinRoom(ChatRoom(chatID))

	data, _ := json.Marshal(inboundMessage{ChatID: chatID, Text: "hi"})
	h.dispatch(sender, Event{Event: EvtSendMessage, Data: data})

	assertNoEvent(t, receiver)
}

func TestOversizeMessageDropped(t *testing.T) {
	h := newTestHub()
	sender := addTestClient(h, "uid-a", "Alice")
	sender.joinRoom(ChatRoom(CommunityChatID))
	receiver := addTestClient(h, "uid-b", "Bob")
	receiver.joinRoom(ChatRoom(CommunityChatID))

	big := make([]byte, 2001)
	for i := range big {
		big[i] = 'a'
	}
	data, _ := json.Marshal(inboundMessage{ChatID: CommunityChatID, Text: string(big)})
	h.dispatch(sender, Event{Event: EvtSendMessage, Data: data})

	assertNoEvent(t, receiver)
}

func TestTypingBroadcastExcludesSender(t *testing.T) {
	h := newTestHub()
	chatID := uuid.New().String()

	sender := addTestClient(h, "uid-a", "Alice")
	sender.joinRoom(ChatRoom(chatID))
	receiver := addTestClient(h, "uid-b", "Bob")
	receiver.joinRoom(ChatRoom(chatID))

	data, _ := json.Marshal(roomPayload{ChatID: chatID})
	h.dispatch(sender, Event{Event: EvtTypingStart, Data: data})

	evt := recvEvent(t, receiver)
	assert.Equal(t, EvtUserTyping, evt.Event)
	assertNoEvent(t, sender)

	h.dispatch(sender, Event{Event: EvtTypingStop, Data: data})
	assert.Equal(t, EvtUserStoppedTyping, recvEvent(t, receiver).Event)
}

func TestBroadcastAfterDisconnectDoesNotPanic(t *testing.T) {
	h := newTestHub()
	gone := addTestClient(h, "uid-a", "Alice")
	stay := addTestClient(h, "uid-b", "Bob")

	// A broadcaster can snapshot a client, lose the race to the read
	// loop's teardown, then deliver; the late send must be a no-op.
	gone.closeSend()

	assert.NotPanics(t, func() {
		h.BroadcastAll(NewEvent(EvtUserOffline, presencePayload{UserID: "uid-a"}))
	})
	assert.Equal(t, EvtUserOffline, recvEvent(t, stay).Event)
	assert.False(t, gone.trySend([]byte("late")))
}

func TestConcurrentBroadcastAndDisconnect(t *testing.T) {
	h := newTestHub()
	addTestClient(h, "uid-stay", "Stay")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		c := addTestClient(h, fmt.Sprintf("uid-%d", i), "N")
		wg.Add(2)
		go func(c *Client) {
			defer wg.Done()
			h.mu.Lock()
			delete(h.clients, c.ConnID)
			h.userConns[c.ExternalUID]--
			h.mu.Unlock()
			c.closeSend()
		}(c)
		go func() {
			defer wg.Done()
			h.BroadcastAll(NewEvent(EvtUserOnline, nil))
		}()
	}
	wg.Wait()
}

func TestOnlineUsers(t *testing.T) {
	h := newTestHub()
	addTestClient(h, "uid-a", "Alice")
	addTestClient(h, "uid-a", "Alice")
	addTestClient(h, "uid-b", "Bob")

	uids := h.OnlineUsers()
	assert.ElementsMatch(t, []string{"uid-a", "uid-b"}, uids)
}
