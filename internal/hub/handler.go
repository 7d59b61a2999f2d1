package hub

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/mgauthier/tilewire/internal/authority"
	"github.com/mgauthier/tilewire/internal/history"
	"github.com/mgauthier/tilewire/internal/wire"
)

// maxMessageLength caps chat message content, counted in characters.
const maxMessageLength = 512

// Handler upgrades HTTP requests to websocket sessions and runs the
// per-client read loop.
type Handler struct {
	hub     *Hub
	history history.Store
	games   *authority.Manager
}

// NewHandler creates a websocket Handler.
func NewHandler(h *Hub, store history.Store, games *authority.Manager) *Handler {
	return &Handler{hub: h, history: store, games: games}
}

// ServeHTTP upgrades the connection and processes wire events until the
// client disconnects. The client's display name comes from the `name`
// query parameter; authentication is a separate concern.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins in dev; tighten in production.
	})
	if err != nil {
		log.Printf("hub: accept error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := &Client{
		conn: conn,
		id:   uuid.NewString(),
	}
	client.name = strings.TrimSpace(r.URL.Query().Get("name"))
	if client.name == "" {
		client.name = "anon-" + client.id[:8]
	}

	connCtx := h.hub.Add(client)
	defer func() {
		for _, room := range h.hub.Remove(client) {
			h.announce(room, client.name+" left the conversation")
		}
	}()

	h.readLoop(r, connCtx, client)
}

// readLoop decodes inbound frames and dispatches them. Malformed frames
// are dropped without ending the session.
func (h *Handler) readLoop(r *http.Request, connCtx context.Context, client *Client) {
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		_, frame, err := client.conn.Read(r.Context())
		if err != nil {
			return
		}

		ev, err := wire.Decode(frame)
		if err != nil {
			log.Printf("hub: dropping frame from %s: %v", client.id, err)
			continue
		}

		switch e := ev.(type) {
		case wire.JoinRoomEvent:
			h.handleJoin(client, e.Room)
		case wire.LeaveRoomEvent:
			h.handleLeave(client, e.Room)
		case wire.SendMessageEvent:
			h.handleMessage(client, e.Payload)
		case wire.NextActionEvent:
			h.handleAction(client, e.Action)
		default:
			// Server-bound kinds only.
			log.Printf("hub: ignoring event kind %q from %s", ev.Kind(), client.id)
		}
	}
}

// handleJoin adds the client to a room and announces new memberships.
func (h *Handler) handleJoin(client *Client, room string) {
	if room == "" {
		h.hub.Send(client, wire.KindErrorMessage, "room identifier is required")
		return
	}
	if h.hub.Join(client, room) {
		h.announce(room, client.name+" joined the conversation")
	}

	// Joining (or rejoining) a game room resynchronizes the client with
	// the authoritative snapshot immediately.
	if h.games != nil {
		if g := h.games.Get(room); g != nil {
			h.hub.Send(client, wire.KindGameState, g.Snapshot())
		}
	}
}

// handleLeave removes the client from a room and announces it.
func (h *Handler) handleLeave(client *Client, room string) {
	if h.hub.Leave(client, room) {
		h.announce(room, client.name+" left the conversation")
	}
}

// handleMessage validates, stores, and echoes a chat message to every
// member of the conversation, the sender included.
func (h *Handler) handleMessage(client *Client, p wire.SendMessagePayload) {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		h.hub.Send(client, wire.KindErrorMessage, "message content is required")
		return
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		h.hub.Send(client, wire.KindErrorMessage, "message exceeds maximum length")
		return
	}
	if !h.hub.InRoom(client, p.Conversation) {
		h.hub.Send(client, wire.KindErrorMessage, "not a member of conversation "+p.Conversation)
		return
	}

	msg := wire.ChatMessage{
		Content:      content,
		Conversation: p.Conversation,
		From:         client.name,
		Date:         time.Now().UTC(),
	}
	if h.history != nil {
		h.history.Append(msg)
	}
	h.hub.Broadcast(p.Conversation, wire.KindNewMessage, msg)
}

// handleAction routes a turn intent to the game the client is seated in.
func (h *Handler) handleAction(client *Client, action wire.OnlineAction) {
	if h.games == nil {
		return
	}

	var game *authority.Game
	for _, room := range h.hub.MemberRooms(client) {
		if g := h.games.Get(room); g != nil {
			game = g
			break
		}
	}
	if game == nil {
		h.hub.Send(client, wire.KindErrorMessage, "no active game")
		return
	}

	if err := game.Apply(client.name, action); err != nil {
		h.hub.Send(client, wire.KindErrorMessage, err.Error())
	}
}

// announce broadcasts a system message to a room.
func (h *Handler) announce(room, content string) {
	h.hub.Broadcast(room, wire.KindSystemMessage, wire.SystemMessage{
		Content:      content,
		Date:         time.Now().UTC(),
		Conversation: room,
	})
}
