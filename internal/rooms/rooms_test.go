package rooms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mgauthier/tilewire/internal/identity"
	"github.com/mgauthier/tilewire/internal/session"
	"github.com/mgauthier/tilewire/internal/wire"
)

// fakeSender records outbound sends.
type fakeSender struct {
	mu    sync.Mutex
	sends []sentEvent
	err   error
}

type sentEvent struct {
	kind    wire.Kind
	payload any
}

func (f *fakeSender) Send(kind wire.Kind, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, sentEvent{kind, payload})
	return nil
}

func (f *fakeSender) sent() []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEvent(nil), f.sends...)
}

func resolvedIdentity(name string) *identity.Resolver {
	r := identity.NewResolver()
	r.Resolve(&identity.Account{ID: "u1", Name: name})
	return r
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestJoinSendsOnce(t *testing.T) {
	sender := &fakeSender{}
	m := NewMultiplexer(sender, resolvedIdentity("Alice"))

	if err := m.Join(testCtx(t), "lobby"); err != nil {
		t.Fatalf("join error: %v", err)
	}
	if err := m.Join(testCtx(t), "lobby"); err != nil {
		t.Fatalf("second join error: %v", err)
	}

	sends := sender.sent()
	if len(sends) != 1 {
		t.Fatalf("expected exactly 1 joinRoom send, got %d", len(sends))
	}
	if sends[0].kind != wire.KindJoinRoom || sends[0].payload != "lobby" {
		t.Errorf("unexpected send: %+v", sends[0])
	}
	if m.StateOf("lobby") != Joined {
		t.Errorf("expected Joined, got %v", m.StateOf("lobby"))
	}
}

func TestJoinAbortsWithoutIdentity(t *testing.T) {
	sender := &fakeSender{}
	ident := identity.NewResolver()
	ident.Resolve(nil) // definitively absent
	m := NewMultiplexer(sender, ident)

	err := m.Join(testCtx(t), "lobby")
	if !errors.Is(err, identity.ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
	if len(sender.sent()) != 0 {
		t.Error("expected no sends")
	}
	if m.StateOf("lobby") != NotJoined {
		t.Errorf("expected NotJoined, got %v", m.StateOf("lobby"))
	}
}

func TestJoinWaitsForLateIdentity(t *testing.T) {
	sender := &fakeSender{}
	ident := identity.NewResolver()
	m := NewMultiplexer(sender, ident)

	done := make(chan error, 1)
	go func() {
		done <- m.Join(testCtx(t), "lobby")
	}()

	time.Sleep(20 * time.Millisecond)
	if len(sender.sent()) != 0 {
		t.Fatal("join sent before identity resolved")
	}

	ident.Resolve(&identity.Account{ID: "u1", Name: "Alice"})
	if err := <-done; err != nil {
		t.Fatalf("join error: %v", err)
	}
	if len(sender.sent()) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.sent()))
	}
}

func TestJoinFailedSendResetsState(t *testing.T) {
	sender := &fakeSender{err: session.ErrNotConnected}
	m := NewMultiplexer(sender, resolvedIdentity("Alice"))

	if err := m.Join(testCtx(t), "lobby"); !errors.Is(err, session.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if m.StateOf("lobby") != NotJoined {
		t.Errorf("expected NotJoined after failed join, got %v", m.StateOf("lobby"))
	}
}

func TestLeave(t *testing.T) {
	sender := &fakeSender{}
	m := NewMultiplexer(sender, resolvedIdentity("Alice"))

	if err := m.Join(testCtx(t), "lobby"); err != nil {
		t.Fatalf("join error: %v", err)
	}
	if err := m.Leave("lobby"); err != nil {
		t.Fatalf("leave error: %v", err)
	}

	sends := sender.sent()
	if len(sends) != 2 || sends[1].kind != wire.KindLeaveRoom {
		t.Fatalf("expected join then leave, got %+v", sends)
	}
	if m.StateOf("lobby") != NotJoined {
		t.Errorf("expected NotJoined, got %v", m.StateOf("lobby"))
	}
}

func TestLeaveNotJoinedIsNoop(t *testing.T) {
	sender := &fakeSender{}
	m := NewMultiplexer(sender, resolvedIdentity("Alice"))

	if err := m.Leave("lobby"); err != nil {
		t.Fatalf("leave error: %v", err)
	}
	if len(sender.sent()) != 0 {
		t.Error("expected no sends")
	}
}

func TestWireIDRouting(t *testing.T) {
	named := Room{Name: "lobby"}
	if named.WireID() != "lobby" {
		t.Errorf("named room should route by name, got %q", named.WireID())
	}

	game := Room{Name: GameConversationName, ID: "token-123"}
	if game.WireID() != "token-123" {
		t.Errorf("game room should route by token, got %q", game.WireID())
	}
}

func TestAllowAppliesStaleRoomGuard(t *testing.T) {
	m := NewMultiplexer(&fakeSender{}, resolvedIdentity("Alice"))

	if m.Allow("lobby") {
		t.Error("no current room: nothing should be allowed")
	}

	m.SetCurrent(&Room{Name: "lobby"})
	if !m.Allow("lobby") {
		t.Error("expected lobby events to be allowed")
	}
	if m.Allow("other") {
		t.Error("expected other-room events to be dropped")
	}

	m.SetCurrent(&Room{Name: GameConversationName, ID: "token-123"})
	if !m.Allow("token-123") {
		t.Error("expected game events routed by token")
	}
	if m.Allow(GameConversationName) {
		t.Error("game room must not route by display name")
	}
}

func TestReconnectReplaysHeldRooms(t *testing.T) {
	sender := &fakeSender{}
	m := NewMultiplexer(sender, resolvedIdentity("Alice"))

	if err := m.Join(testCtx(t), "lobby"); err != nil {
		t.Fatalf("join error: %v", err)
	}
	if err := m.Join(testCtx(t), "token-123"); err != nil {
		t.Fatalf("join error: %v", err)
	}

	statuses := make(chan session.Status, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.WatchConnectivity(ctx, statuses)
		close(done)
	}()

	// Replayed baseline, then a drop and a reconnect.
	statuses <- session.StatusConnected
	statuses <- session.StatusDisconnected
	statuses <- session.StatusConnected
	close(statuses)
	<-done

	var rejoins []string
	for _, s := range sender.sent()[2:] {
		if s.kind != wire.KindJoinRoom {
			t.Fatalf("unexpected send kind %q", s.kind)
		}
		rejoins = append(rejoins, s.payload.(string))
	}
	if len(rejoins) != 2 {
		t.Fatalf("expected 2 rejoins, got %d (%v)", len(rejoins), rejoins)
	}
	seen := map[string]bool{}
	for _, r := range rejoins {
		seen[r] = true
	}
	if !seen["lobby"] || !seen["token-123"] {
		t.Errorf("expected rejoin of lobby and token-123, got %v", rejoins)
	}
	if m.StateOf("lobby") != Joined {
		t.Error("rejoin must not clear membership state")
	}
}

func TestBaselineConnectedDoesNotRejoin(t *testing.T) {
	sender := &fakeSender{}
	m := NewMultiplexer(sender, resolvedIdentity("Alice"))

	if err := m.Join(testCtx(t), "lobby"); err != nil {
		t.Fatalf("join error: %v", err)
	}

	statuses := make(chan session.Status, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.WatchConnectivity(ctx, statuses)
		close(done)
	}()

	// The replayed current status is not a reconnect.
	statuses <- session.StatusConnected
	close(statuses)
	<-done

	if len(sender.sent()) != 1 {
		t.Fatalf("expected only the initial join, got %d sends", len(sender.sent()))
	}
}
