package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/PrakharSinghRathore/campus-resale-hub/internal/auth"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/metrics"
	"github.com/PrakharSinghRathore/campus-resale-hub/internal/models"
)

// Hub owns the in-process presence registry: every live connection, its
// identity, and its joined rooms. State is process-local; when the server
// scales out, the Redis bridge carries broadcasts across instances.
type Hub struct {
	verifier auth.TokenVerifier
	origins  []string
	log      zerolog.Logger

	clients   map[string]*Client
	userConns map[string]int
	mu        sync.RWMutex

	// notify is the outbound fan-out path for events the hub itself
	// originates. Defaults to local delivery; main swaps in the Redis
	// bridge when one is configured.
	notify Notifier
}

// NewHub creates a hub that authenticates handshakes with verifier and
// accepts websocket upgrades from the given origins (empty list allows all,
// for development).
func NewHub(verifier auth.TokenVerifier, origins []string, log zerolog.Logger) *Hub {
	h := &Hub{
		verifier:  verifier,
		origins:   origins,
		log:       log.With().Str("component", "ws").Logger(),
		clients:   make(map[string]*Client),
		userConns: make(map[string]int),
	}
	h.notify = h
	return h
}

// SetNotifier redirects hub-originated events through n. Used to route
// broadcasts via the Redis bridge so every instance sees them.
func (h *Hub) SetNotifier(n Notifier) {
	h.notify = n
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.origins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

// HandleWS upgrades the connection, verifies the credential token, and runs
// the read loop until disconnect. Invalid tokens get an auth_error frame
// before the close.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = parts[1]
		}
	}

	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	identity, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket auth failed")
		h.writeEventDirect(conn, Event{Event: EvtAuthError})
		conn.Close()
		return
	}

	client := newClient(uuid.New().String(), conn, identity.UID, identity.Name)

	// Every connection lives in its private channel from handshake on.
	client.joinRoom(UserRoom(identity.UID))

	h.mu.Lock()
	h.clients[client.ConnID] = client
	h.userConns[identity.UID]++
	firstConn := h.userConns[identity.UID] == 1
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	h.log.Info().
		Str("conn_id", client.ConnID).
		Str("uid", identity.UID).
		Msg("websocket connected")

	if firstConn {
		h.notify.BroadcastAll(NewEvent(EvtUserOnline, presencePayload{UserID: identity.UID, Name: identity.Name}))
	}

	go h.writePump(client)
	h.readPump(client)
}

type presencePayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

type roomPayload struct {
	ChatID string `json:"chatId"`
}

type typingPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

type inboundMessage struct {
	ChatID string   `json:"chatId"`
	Text   string   `json:"text"`
	Images []string `json:"images"`
	Type   string   `json:"type"`
}

// relayedMessage is the non-durable preview fanned out by the relay. For
// community messages the sender fields stay empty on purpose.
type relayedMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderUID string    `json:"senderUid,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text,omitempty"`
	Images    []string  `json:"images,omitempty"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Hub) readPump(client *Client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, client.ConnID)
		h.userConns[client.ExternalUID]--
		lastConn := h.userConns[client.ExternalUID] <= 0
		if lastConn {
			delete(h.userConns, client.ExternalUID)
		}
		h.mu.Unlock()

		client.closeSend()
		client.Conn.Close()
		metrics.WSConnections.Dec()
		h.log.Info().Str("conn_id", client.ConnID).Str("uid", client.ExternalUID).Msg("websocket disconnected")

		if lastConn {
			h.notify.BroadcastAll(NewEvent(EvtUserOffline, presencePayload{UserID: client.ExternalUID}))
		}
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			break
		}

		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			continue
		}
		h.dispatch(client, evt)
	}
}

// dispatch handles one inbound event. Malformed room identifiers are
// dropped without an error frame back to the sender.
func (h *Hub) dispatch(client *Client, evt Event) {
	switch evt.Event {
	case EvtJoinChat:
		chatID, ok := h.parseRoom(client, evt)
		if !ok {
			return
		}
		client.joinRoom(ChatRoom(chatID))
		h.notify.Broadcast(ChatRoom(chatID), NewEvent(EvtUserOnline, presencePayload{UserID: client.ExternalUID, Name: client.Name}))
		h.log.Debug().Str("uid", client.ExternalUID).Str("chat", chatID).Msg("joined chat")

	case EvtLeaveChat:
		chatID, ok := h.parseRoom(client, evt)
		if !ok {
			return
		}
		client.leaveRoom(ChatRoom(chatID))
		h.notify.Broadcast(ChatRoom(chatID), NewEvent(EvtUserOffline, presencePayload{UserID: client.ExternalUID}))

	case EvtTypingStart, EvtTypingStop:
		chatID, ok := h.parseRoom(client, evt)
		if !ok || !client.inRoom(ChatRoom(chatID)) {
			return
		}
		out := EvtUserTyping
		if evt.Event == EvtTypingStop {
			out = EvtUserStoppedTyping
		}
		h.notify.BroadcastExcept(ChatRoom(chatID), client.ExternalUID, NewEvent(out, typingPayload{
			ChatID: chatID,
			UserID: client.ExternalUID,
			Name:   client.Name,
		}))

	case EvtSendMessage:
		h.relayMessage(client, evt)
	}
}

func (h *Hub) parseRoom(client *Client, evt Event) (string, bool) {
	var p roomPayload
	if err := json.Unmarshal(evt.Data, &p); err != nil || !ValidChatID(p.ChatID) {
		h.log.Debug().Str("uid", client.ExternalUID).Str("event", evt.Event).Msg("dropping event with invalid chat id")
		return "", false
	}
	return p.ChatID, true
}

// relayMessage fans out a chat message. Community messages are anonymized
// and never persisted; conversation messages are an optimistic preview and
// the canonical record is written by the REST path.
func (h *Hub) relayMessage(client *Client, evt Event) {
	var in inboundMessage
	if err := json.Unmarshal(evt.Data, &in); err != nil || !ValidChatID(in.ChatID) {
		h.log.Debug().Str("uid", client.ExternalUID).Msg("dropping malformed message")
		return
	}

	msgType := in.Type
	if msgType == "" {
		msgType = string(models.MessageText)
	}
	if len(in.Text) > models.MaxMessageLength || len(in.Images) > models.MaxMessageImages {
		return
	}
	if in.Text == "" && len(in.Images) == 0 {
		return
	}

	out := relayedMessage{
		ID:        ulid.Make().String(),
		ChatID:    in.ChatID,
		Text:      in.Text,
		Images:    in.Images,
		Type:      msgType,
		CreatedAt: time.Now().UTC(),
	}

	if in.ChatID == CommunityChatID {
		h.notify.Broadcast(ChatRoom(CommunityChatID), NewEvent(EvtNewMessage, out))
		metrics.MessagesSent.WithLabelValues("community").Inc()
		return
	}

	if !client.inRoom(ChatRoom(in.ChatID)) {
		return
	}
	out.SenderUID = client.ExternalUID
	out.Sender = client.Name
	h.notify.BroadcastExcept(ChatRoom(in.ChatID), client.ExternalUID, NewEvent(EvtNewMessage, out))
	metrics.MessagesSent.WithLabelValues("conversation").Inc()
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) writeEventDirect(conn *websocket.Conn, evt Event) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.TextMessage, raw)
}

func (h *Hub) send(client *Client, raw []byte) {
	// Slow or already-disconnected consumers lose events rather than
	// stalling the hub.
	if !client.trySend(raw) {
		metrics.EventsDropped.Inc()
	}
}

// Broadcast delivers evt to every local connection in room.
func (h *Hub) Broadcast(room string, evt Event) {
	h.BroadcastExcept(room, "", evt)
}

// BroadcastExcept delivers evt to every local connection in room except
// those authenticated as excludeUID.
func (h *Hub) BroadcastExcept(room, excludeUID string, evt Event) {
	raw, err := json.Marshal(evt)
	if err != nil {
		h.log.Warn().Err(err).Str("event", evt.Event).Msg("marshal broadcast failed")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if excludeUID != "" && c.ExternalUID == excludeUID {
			continue
		}
		if c.inRoom(room) {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.send(c, raw)
	}
	if len(clients) > 0 {
		metrics.EventsRelayed.WithLabelValues(evt.Event).Add(float64(len(clients)))
	}
}

// SendToUser delivers evt to every local connection authenticated as
// externalUID.
func (h *Hub) SendToUser(externalUID string, evt Event) {
	h.Broadcast(UserRoom(externalUID), evt)
}

// BroadcastAll delivers evt to every local connection.
func (h *Hub) BroadcastAll(evt Event) {
	raw, err := json.Marshal(evt)
	if err != nil {
		h.log.Warn().Err(err).Str("event", evt.Event).Msg("marshal broadcast failed")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.send(c, raw)
	}
	if len(clients) > 0 {
		metrics.EventsRelayed.WithLabelValues(evt.Event).Add(float64(len(clients)))
	}
}

// OnlineUsers returns the external UIDs with at least one live connection.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	uids := make([]string, 0, len(h.userConns))
	for uid := range h.userConns {
		uids = append(uids, uid)
	}
	return uids
}
