// Package presence holds the ephemeral typing and presence signals for open
// conversations. State is in-memory only: last write wins, and expiry is
// checked at read time against a TTL, so no background sweeper is needed and
// nothing survives a restart.
package presence

import (
	"sync"
	"time"

	"supportchat/internal/domain"
)

type key struct {
	conversationID int64
	role           domain.Role
}

type typingState struct {
	isTyping bool
	setAt    time.Time
}

// Store tracks typing flags and presence heartbeats per conversation and
// role.
type Store struct {
	mu         sync.RWMutex
	typing     map[key]typingState
	heartbeats map[key]time.Time

	typingTTL      time.Duration
	presenceWindow time.Duration

	// Now is the clock used for TTL checks; tests override it.
	Now func() time.Time
}

func NewStore(typingTTL, presenceWindow time.Duration) *Store {
	return &Store{
		typing:         make(map[key]typingState),
		heartbeats:     make(map[key]time.Time),
		typingTTL:      typingTTL,
		presenceWindow: presenceWindow,
		Now:            time.Now,
	}
}

// SetTyping overwrites the typing flag for the given participant.
func (s *Store) SetTyping(conversationID int64, role domain.Role, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing[key{conversationID, role}] = typingState{isTyping: isTyping, setAt: s.Now()}
}

// ClearTyping drops the typing flag, called when the participant sends.
func (s *Store) ClearTyping(conversationID int64, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.typing, key{conversationID, role})
}

// IsTyping reports whether the participant is typing. A flag older than the
// TTL counts as false even if the stored value is true, which covers clients
// that disconnect without sending a stop signal.
func (s *Store) IsTyping(conversationID int64, role domain.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.typing[key{conversationID, role}]
	if !ok || !st.isTyping {
		return false
	}
	return s.Now().Sub(st.setAt) <= s.typingTTL
}

// Heartbeat refreshes the participant's presence.
func (s *Store) Heartbeat(conversationID int64, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats[key{conversationID, role}] = s.Now()
}

// IsOnline derives presence from the last heartbeat; it is never stored as
// a standalone boolean.
func (s *Store) IsOnline(conversationID int64, role domain.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.heartbeats[key{conversationID, role}]
	if !ok {
		return false
	}
	return s.Now().Sub(at) < s.presenceWindow
}
