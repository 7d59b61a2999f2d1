// Package history retains conversation messages server-side so clients
// can backfill older pages over HTTP.
package history

import (
	"sync"

	"github.com/mgauthier/tilewire/internal/wire"
)

// Store is the interface for history backends.
type Store interface {
	// Append records a message at the newest end of a conversation.
	Append(msg wire.ChatMessage)
	// Page returns up to perPage messages ending offset messages from
	// the newest end, oldest first.
	Page(conversation string, perPage, offset int) []wire.ChatMessage
	// Count returns the number of retained messages for a conversation.
	Count(conversation string) int
}

// MemoryStore keeps recent messages per conversation in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	convos  map[string][]wire.ChatMessage
	maxSize int
}

// NewMemoryStore creates a store retaining up to maxSize messages per
// conversation.
func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		convos:  make(map[string][]wire.ChatMessage),
		maxSize: maxSize,
	}
}

// Append adds a message to the conversation's history.
func (s *MemoryStore) Append(msg wire.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.convos[msg.Conversation], msg)
	if len(msgs) > s.maxSize {
		msgs = msgs[len(msgs)-s.maxSize:]
	}
	s.convos[msg.Conversation] = msgs
}

// Page returns one page counted back from the newest end, oldest first.
// An offset at or past the oldest retained message yields an empty page.
func (s *MemoryStore) Page(conversation string, perPage, offset int) []wire.ChatMessage {
	if perPage <= 0 || offset < 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.convos[conversation]
	return pageOf(msgs, perPage, offset)
}

// Count returns the number of retained messages for a conversation.
func (s *MemoryStore) Count(conversation string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convos[conversation])
}

// pageOf slices a page out of an oldest-first message list.
func pageOf(msgs []wire.ChatMessage, perPage, offset int) []wire.ChatMessage {
	end := len(msgs) - offset
	if end <= 0 {
		return nil
	}
	start := end - perPage
	if start < 0 {
		start = 0
	}
	page := make([]wire.ChatMessage, end-start)
	copy(page, msgs[start:end])
	return page
}
