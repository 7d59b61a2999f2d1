// Package chat owns the local message log for the displayed
// conversation: it classifies inbound messages by provenance, keeps the
// log in server arrival order even though message enrichment is
// asynchronous, and backfills older pages over HTTP.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/mgauthier/tilewire/internal/broadcast"
	"github.com/mgauthier/tilewire/internal/identity"
	"github.com/mgauthier/tilewire/internal/rooms"
	"github.com/mgauthier/tilewire/internal/session"
	"github.com/mgauthier/tilewire/internal/wire"
)

// Sentinel sender names for messages that do not originate from a user.
const (
	SystemName      = "System"
	SystemErrorName = "SystemError"
)

// fetchPageSize is the number of messages requested per backfill page.
const fetchPageSize = 20

// MessageType distinguishes user messages from system output.
type MessageType int

const (
	TypeUser MessageType = iota
	TypeSystem
)

// Message is a display-ready log entry.
type Message struct {
	Content string
	Date    time.Time
	From    string
	Type    MessageType
}

// UpdateReason tells a consumer why the log changed, so it can decide
// whether to auto-scroll or notify.
type UpdateReason int

const (
	// ReasonSelfEcho marks the echo of a message the local player sent.
	ReasonSelfEcho UpdateReason = iota
	// ReasonFromOther marks a message from another player.
	ReasonFromOther
	// ReasonOther covers system output, clears, and backfill merges.
	ReasonOther
)

// MessagesUpdate is published on every log mutation.
type MessagesUpdate struct {
	Messages []Message
	Reason   UpdateReason
}

// Enricher transforms a wire message into a display message, typically
// resolving the sender's display name. Enrichment may complete out of
// order across messages; the Service re-serializes commits by arrival
// order.
type Enricher interface {
	Enrich(ctx context.Context, msg wire.ChatMessage) (Message, error)
}

// EnricherFunc adapts a function to the Enricher interface.
type EnricherFunc func(ctx context.Context, msg wire.ChatMessage) (Message, error)

func (f EnricherFunc) Enrich(ctx context.Context, msg wire.ChatMessage) (Message, error) {
	return f(ctx, msg)
}

// Passthrough is an Enricher that uses the wire fields as-is.
func Passthrough() Enricher {
	return EnricherFunc(func(_ context.Context, msg wire.ChatMessage) (Message, error) {
		return Message{
			Content: msg.Content,
			Date:    msg.Date,
			From:    msg.From,
			Type:    TypeUser,
		}, nil
	})
}

// Sender is the outbound transport contract the chat service needs.
type Sender interface {
	Send(kind wire.Kind, payload any) error
	Connected() bool
}

// pendingEntry is one arrival-order slot awaiting its enrichment result.
type pendingEntry struct {
	ready bool
	msg   Message
}

// Service classifies and orders messages for the current conversation.
// It is the sole mutator of the log; consumers only observe updates.
type Service struct {
	mux      *rooms.Multiplexer
	ident    *identity.Resolver
	sender   Sender
	enricher Enricher
	fetcher  *Fetcher

	mu      sync.Mutex
	log     []Message
	pending []*pendingEntry
	epoch   int

	updates *broadcast.Broadcaster[MessagesUpdate]
}

// NewService creates a chat Service. fetcher may be nil to disable
// backfill.
func NewService(mux *rooms.Multiplexer, ident *identity.Resolver, sender Sender, enricher Enricher, fetcher *Fetcher) *Service {
	if enricher == nil {
		enricher = Passthrough()
	}
	return &Service{
		mux:      mux,
		ident:    ident,
		sender:   sender,
		enricher: enricher,
		fetcher:  fetcher,
		updates:  broadcast.New[MessagesUpdate](),
	}
}

// Updates exposes the log update stream. The latest update is replayed
// to new subscribers.
func (s *Service) Updates() (<-chan MessagesUpdate, func()) {
	return s.updates.Subscribe()
}

// Messages returns a snapshot of the current log.
func (s *Service) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.log...)
}

// HandleNew processes an inbound user chat message. Messages for a
// conversation other than the current one are dropped. The message takes
// an arrival-order slot immediately; enrichment runs asynchronously and
// the commit happens when every earlier slot has committed.
func (s *Service) HandleNew(msg wire.ChatMessage) {
	// The guard and the slot reservation share one critical section, so a
	// conversation switch cannot slip between them and hand the slot the
	// new conversation's epoch.
	s.mu.Lock()
	if !s.mux.Allow(msg.Conversation) {
		s.mu.Unlock()
		return
	}
	entry := &pendingEntry{}
	s.pending = append(s.pending, entry)
	epoch := s.epoch
	s.mu.Unlock()

	go func() {
		enriched, err := s.enricher.Enrich(context.Background(), msg)
		if err != nil {
			// Fall back to the raw wire fields rather than losing the slot.
			enriched = Message{Content: msg.Content, Date: msg.Date, From: msg.From, Type: TypeUser}
		}
		s.commit(epoch, entry, enriched)
	}()
}

// HandleSystem processes a server informational message for the current
// conversation.
func (s *Service) HandleSystem(msg wire.SystemMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mux.Allow(msg.Conversation) {
		return
	}
	s.appendLocked(Message{
		Content: msg.Content,
		Date:    msg.Date,
		From:    SystemName,
		Type:    TypeSystem,
	})
}

// HandleError processes a server-pushed error. Errors are not
// room-scoped; they always land in the log.
func (s *Service) HandleError(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(Message{
		Content: content,
		Date:    time.Now(),
		From:    SystemErrorName,
		Type:    TypeSystem,
	})
}

// appendLocked routes a ready message through the pending queue so it
// cannot overtake a user message that arrived earlier and is still
// enriching. Callers hold s.mu.
func (s *Service) appendLocked(msg Message) {
	entry := &pendingEntry{ready: true, msg: msg}
	s.pending = append(s.pending, entry)
	s.flushLocked()
}

// commit records an enrichment result and flushes every slot that is now
// ready at the head of the queue. Results from a superseded epoch (the
// conversation changed underneath) are discarded.
func (s *Service) commit(epoch int, entry *pendingEntry, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	entry.ready = true
	entry.msg = msg
	s.flushLocked()
}

// flushLocked appends head-ready pending entries to the log, publishing
// one update per append. Callers hold s.mu.
func (s *Service) flushLocked() {
	for len(s.pending) > 0 && s.pending[0].ready {
		msg := s.pending[0].msg
		s.pending = s.pending[1:]
		s.log = append(s.log, msg)
		s.publishLocked(s.classify(msg))
	}
}

// classify determines the update reason for a freshly appended message.
// System and error messages are always ReasonOther; user messages are
// ReasonSelfEcho only when sent by the local identity.
func (s *Service) classify(msg Message) UpdateReason {
	if msg.Type == TypeSystem {
		return ReasonOther
	}
	if a := s.ident.Current(); a != nil && msg.From == a.Name {
		return ReasonSelfEcho
	}
	return ReasonFromOther
}

// publishLocked publishes a log snapshot. Callers hold s.mu.
func (s *Service) publishLocked(reason UpdateReason) {
	s.updates.Publish(MessagesUpdate{
		Messages: append([]Message(nil), s.log...),
		Reason:   reason,
	})
}

// Send posts content to the current conversation. It is only sent when a
// connection is live; the echo comes back as a newMessage event.
func (s *Service) Send(content string) error {
	current := s.mux.Current()
	if current == nil {
		return rooms.ErrStaleRoom
	}
	if !s.sender.Connected() {
		return session.ErrNotConnected
	}
	return s.sender.Send(wire.KindSendMessage, wire.SendMessagePayload{
		Content:      content,
		Conversation: current.WireID(),
	})
}

// SetConversation switches the displayed conversation: the log is
// cleared, in-flight enrichments and fetches are invalidated, and a
// backfill fetch for the new conversation begins. Pass nil to deselect.
func (s *Service) SetConversation(ctx context.Context, r *rooms.Room) {
	s.mux.SetCurrent(r)

	s.mu.Lock()
	s.log = nil
	s.pending = nil
	s.epoch++
	s.publishLocked(ReasonOther)
	s.mu.Unlock()

	if r != nil && s.fetcher != nil {
		go s.FetchNext(ctx, r.WireID())
	}
}

// ClearLog empties the log without switching conversations.
func (s *Service) ClearLog() {
	s.mu.Lock()
	s.log = nil
	s.pending = nil
	s.epoch++
	s.publishLocked(ReasonOther)
	s.mu.Unlock()
}

// FetchNext retrieves the next older page for the given conversation and
// prepends it to the log, oldest first. The whole page is discarded if
// the current conversation changed during the fetch.
func (s *Service) FetchNext(ctx context.Context, conversationID string) error {
	if s.fetcher == nil {
		return nil
	}

	s.mu.Lock()
	offset := len(s.log) + len(s.pending)
	epoch := s.epoch
	s.mu.Unlock()

	page, err := s.fetcher.Fetch(ctx, conversationID, fetchPageSize, offset)
	if err != nil {
		return err
	}

	// Enrich in page order; the slot order of the page is its own.
	enriched := make([]Message, 0, len(page))
	for _, cm := range page {
		m, err := s.enricher.Enrich(ctx, cm)
		if err != nil {
			m = Message{Content: cm.Content, Date: cm.Date, From: cm.From, Type: TypeUser}
		}
		enriched = append(enriched, m)
	}

	// Stale-response guards, checked in the same critical section as the
	// merge: the conversation may have switched (or the log been reset)
	// while the fetch was in flight.
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return rooms.ErrStaleRoom
	}
	if current := s.mux.Current(); current == nil || current.WireID() != conversationID {
		return rooms.ErrStaleRoom
	}

	s.log = append(enriched, s.log...)
	s.publishLocked(ReasonOther)
	return nil
}
