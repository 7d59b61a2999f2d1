// Package session owns the client's single persistent websocket
// connection: connect/disconnect, outbound sends, and the sequential
// inbound event stream the rest of the client consumes.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/mgauthier/tilewire/internal/broadcast"
	"github.com/mgauthier/tilewire/internal/wire"
)

const (
	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second

	// eventBufferSize is the capacity of the inbound event channel.
	eventBufferSize = 64
)

// ErrNotConnected is returned by Send when there is no live connection.
var ErrNotConnected = errors.New("session: not connected")

// Status is the connectivity state of the session.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Session is the transport session. It guarantees at most one live
// connection; events are delivered on a single channel in arrival order.
type Session struct {
	url string

	mu         sync.Mutex
	conn       *websocket.Conn
	readCancel context.CancelFunc
	closed     bool

	events chan wire.Event
	status *broadcast.Broadcaster[Status]
}

// New creates a Session that will dial url on Connect.
func New(url string) *Session {
	s := &Session{
		url:    url,
		events: make(chan wire.Event, eventBufferSize),
		status: broadcast.New[Status](),
	}
	s.status.Publish(StatusDisconnected)
	return s
}

// Connect dials the server and starts the read loop. Calling Connect
// while already connected is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.status.Publish(StatusConnecting)

	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		s.status.Publish(StatusDisconnected)
		return err
	}

	s.mu.Lock()
	if s.conn != nil || s.closed {
		// Lost the race to another Connect, or closed mid-dial.
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		return nil
	}
	readCtx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.readCancel = cancel
	s.mu.Unlock()

	s.status.Publish(StatusConnected)
	go s.readLoop(readCtx, conn)
	return nil
}

// Disconnect closes the live connection, if any. It is idempotent. The
// server releases all room memberships when the connection drops.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	cancel := s.readCancel
	s.conn = nil
	s.readCancel = nil
	s.mu.Unlock()

	if conn == nil {
		return
	}
	cancel()
	conn.Close(websocket.StatusNormalClosure, "")
	s.status.Publish(StatusDisconnected)
}

// Close disconnects and tears down the status stream. The event channel
// stops producing but is left open so a draining consumer never sees a
// racy close. The session cannot be reused afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Disconnect()
	s.status.Close()
}

// Connected reports whether a live connection exists.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send encodes and writes an outbound event. Encoding failures are
// returned synchronously and nothing is sent; sending without a live
// connection fails with ErrNotConnected.
func (s *Session) Send(kind wire.Kind, payload any) error {
	frame, err := wire.Encode(kind, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}

// Events is the inbound event stream. Events appear in arrival order;
// the channel is shared across reconnects.
func (s *Session) Events() <-chan wire.Event {
	return s.events
}

// Status exposes the connectivity signal. The current status is replayed
// to new subscribers.
func (s *Session) Status() (<-chan Status, func()) {
	return s.status.Subscribe()
}

// readLoop reads frames until the connection drops or ctx is cancelled.
// Malformed frames are logged and dropped; they never end the loop.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			current := s.conn == conn
			if current {
				s.conn = nil
				s.readCancel = nil
			}
			closed := s.closed
			s.mu.Unlock()
			if current && !closed {
				log.Printf("session: connection lost: %v", err)
				s.status.Publish(StatusDisconnected)
			}
			return
		}

		ev, err := wire.Decode(frame)
		if err != nil {
			log.Printf("session: dropping frame: %v", err)
			continue
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
