// Package rooms tracks which conversations and game rooms the session
// has joined, routes inbound events to the room that is currently
// displayed, and replays memberships after a reconnect.
package rooms

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/mgauthier/tilewire/internal/identity"
	"github.com/mgauthier/tilewire/internal/session"
	"github.com/mgauthier/tilewire/internal/wire"
)

// GameConversationName marks a conversation as game-scoped. Game
// conversations route by their game token, never by this display name.
const GameConversationName = "game"

// ErrStaleRoom reports an event or response that targets a room which is
// no longer current. Callers drop the data silently.
var ErrStaleRoom = errors.New("rooms: stale room")

// Room identifies a conversation. Well-known rooms route by Name; a
// game-scoped room routes by its game token ID.
type Room struct {
	Name string
	ID   string
}

// WireID returns the identifier used on the wire for this room.
func (r Room) WireID() string {
	if r.Name == GameConversationName {
		return r.ID
	}
	return r.Name
}

// State is the membership state of a room.
type State int

const (
	NotJoined State = iota
	Joining
	Joined
	Leaving
)

// Sender is the outbound half of the transport session.
type Sender interface {
	Send(kind wire.Kind, payload any) error
}

// Multiplexer owns the room membership table for one session context.
// It is constructed explicitly and passed by reference; there is no
// process-wide registry.
type Multiplexer struct {
	sender Sender
	ident  *identity.Resolver

	mu      sync.Mutex
	states  map[string]State
	current *Room
}

// NewMultiplexer creates a Multiplexer sending through sender and gating
// joins on ident.
func NewMultiplexer(sender Sender, ident *identity.Resolver) *Multiplexer {
	return &Multiplexer{
		sender: sender,
		ident:  ident,
		states: make(map[string]State),
	}
}

// Join joins the room identified by id. It waits for identity resolution
// first; the wait is bounded to the first resolution and the join is
// aborted with identity.ErrUnresolved if no identity exists. Re-entrant
// calls while Joining or Joined are coalesced: exactly one joinRoom goes
// on the wire.
func (m *Multiplexer) Join(ctx context.Context, id string) error {
	m.mu.Lock()
	switch m.states[id] {
	case Joining, Joined:
		m.mu.Unlock()
		return nil
	}
	m.states[id] = Joining
	m.mu.Unlock()

	if _, err := m.ident.Await(ctx); err != nil {
		m.setState(id, NotJoined)
		return err
	}

	if err := m.sender.Send(wire.KindJoinRoom, id); err != nil {
		m.setState(id, NotJoined)
		return err
	}
	m.setState(id, Joined)
	return nil
}

// Leave leaves the room identified by id. Leaving a room that is not
// joined is a no-op.
func (m *Multiplexer) Leave(id string) error {
	m.mu.Lock()
	if m.states[id] != Joined {
		m.mu.Unlock()
		return nil
	}
	m.states[id] = Leaving
	m.mu.Unlock()

	err := m.sender.Send(wire.KindLeaveRoom, id)
	m.mu.Lock()
	delete(m.states, id)
	if m.current != nil && m.current.WireID() == id {
		m.current = nil
	}
	m.mu.Unlock()
	return err
}

// StateOf returns the membership state of a room.
func (m *Multiplexer) StateOf(id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

// Held returns the identifiers of all rooms currently held (Joining or
// Joined).
func (m *Multiplexer) Held() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.states))
	for id, st := range m.states {
		if st == Joining || st == Joined {
			ids = append(ids, id)
		}
	}
	return ids
}

// SetCurrent selects the displayed room. Pass nil to deselect.
func (m *Multiplexer) SetCurrent(r *Room) {
	m.mu.Lock()
	m.current = r
	m.mu.Unlock()
}

// Current returns the displayed room, or nil.
func (m *Multiplexer) Current() *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Allow applies the stale-room guard: it reports whether an inbound
// event carrying the given conversation identifier targets the currently
// displayed room.
func (m *Multiplexer) Allow(conversation string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.WireID() == conversation
}

func (m *Multiplexer) setState(id string, st State) {
	m.mu.Lock()
	if st == NotJoined {
		delete(m.states, id)
	} else {
		m.states[id] = st
	}
	m.mu.Unlock()
}

// WatchConnectivity consumes the session's status signal and re-issues
// joinRoom for every held room when connectivity is regained, without
// clearing accumulated local state. It returns when ctx is done or the
// status stream closes. Run it in its own goroutine.
func (m *Multiplexer) WatchConnectivity(ctx context.Context, statuses <-chan session.Status) {
	first := true
	prev := session.StatusDisconnected
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-statuses:
			if !ok {
				return
			}
			// The replayed current status only establishes a baseline.
			if !first && prev != session.StatusConnected && st == session.StatusConnected {
				m.rejoinAll(ctx)
			}
			prev = st
			first = false
		}
	}
}

// rejoinAll replays joinRoom for every held room. The server is
// idempotent to duplicate joins.
func (m *Multiplexer) rejoinAll(ctx context.Context) {
	held := m.Held()
	if len(held) == 0 {
		return
	}
	if _, err := m.ident.Await(ctx); err != nil {
		log.Printf("rooms: skipping rejoin: %v", err)
		return
	}
	for _, id := range held {
		if err := m.sender.Send(wire.KindJoinRoom, id); err != nil {
			log.Printf("rooms: rejoin %s failed: %v", id, err)
		}
	}
}
