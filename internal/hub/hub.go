// Package hub is the server side of the wire protocol: it tracks
// connected clients and their room memberships, relays chat, and feeds
// player actions to the game authority.
package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/mgauthier/tilewire/internal/wire"
)

const (
	// sendBufferSize is the number of frames queued per client.
	sendBufferSize = 16

	// writeTimeout is the max time to wait for a single write.
	writeTimeout = 5 * time.Second
)

// Client is one connected websocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
	name string
}

// Name returns the client's display name.
func (c *Client) Name() string { return c.name }

// Hub manages clients grouped by room.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	members map[*Client]map[string]struct{}
	cancels map[*Client]context.CancelFunc
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		members: make(map[*Client]map[string]struct{}),
		cancels: make(map[*Client]context.CancelFunc),
	}
}

// Add registers a client and starts its write pump. The returned context
// is cancelled when the client is removed.
func (h *Hub) Add(c *Client) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	c.send = make(chan []byte, sendBufferSize)
	h.members[c] = make(map[string]struct{})
	h.cancels[c] = cancel
	h.mu.Unlock()

	go h.writePump(ctx, c)
	return ctx
}

// Remove drops a client from every room and stops its write pump. It
// returns the rooms the client was in, so the caller can announce the
// departure.
func (h *Hub) Remove(c *Client) []string {
	h.mu.Lock()
	var left []string
	for room := range h.members[c] {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
		left = append(left, room)
	}
	delete(h.members, c)
	cancel, ok := h.cancels[c]
	delete(h.cancels, c)
	h.mu.Unlock()

	// The send channel is never closed: a broadcast that snapshotted this
	// client before removal may still push into it. The write pump exits
	// via the cancelled context and the channel is garbage collected.
	if ok {
		cancel()
	}
	return left
}

// Join adds a client to a room. Duplicate joins are no-ops, so replayed
// joinRoom events after a client reconnect are harmless. It reports
// whether the membership is new.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.members[c]; !ok {
		return false
	}
	if _, ok := h.members[c][room]; ok {
		return false
	}
	h.members[c][room] = struct{}{}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	return true
}

// Leave removes a client from a room. It reports whether the client was
// a member.
func (h *Hub) Leave(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.members[c][room]; !ok {
		return false
	}
	delete(h.members[c], room)
	delete(h.rooms[room], c)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
	return true
}

// InRoom reports whether a client is a member of a room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.members[c][room]
	return ok
}

// MemberRooms returns the rooms a client has joined.
func (h *Hub) MemberRooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for room := range h.members[c] {
		out = append(out, room)
	}
	return out
}

// RoomCount returns the number of clients in a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast encodes one event and queues it for every client in a room.
func (h *Hub) Broadcast(room string, kind wire.Kind, payload any) {
	frame, err := wire.Encode(kind, payload)
	if err != nil {
		log.Printf("hub: broadcast %s: %v", kind, err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.push(c, frame)
	}
}

// Send encodes one event for a single client.
func (h *Hub) Send(c *Client, kind wire.Kind, payload any) {
	frame, err := wire.Encode(kind, payload)
	if err != nil {
		log.Printf("hub: send %s: %v", kind, err)
		return
	}
	h.push(c, frame)
}

// push queues a frame, dropping it if the client's buffer is full.
func (h *Hub) push(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		log.Printf("hub: send buffer full for client %s, dropping frame", c.id)
	}
}

// writePump drains the client's send channel onto the websocket.
func (h *Hub) writePump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				log.Printf("hub: write to client %s failed: %v", c.id, err)
				return
			}
		}
	}
}
