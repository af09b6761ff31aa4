package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zhouzirui/z-call/backend/internal/model/chat"
)

const (
	defaultCapacity = 10000
	defaultTTL      = 24 * time.Hour
)

// Store is the session contract consumed by the relay.
type Store interface {
	GetOrCreate(token string) *chat.Session
	Clear(session *chat.Session)
	SetCharacter(session *chat.Session, characterID string)
	AppendTurns(session *chat.Session, turns ...chat.Turn)
	Len() int
}

// Service keeps sessions in memory, bounded by capacity and idle TTL.
type Service struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *chat.Session]
}

// NewService builds a store. Non-positive arguments fall back to defaults.
func NewService(capacity int, ttl time.Duration) *Service {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		sessions: expirable.NewLRU[string, *chat.Session](capacity, nil, ttl),
	}
}

// GetOrCreate returns the live session for token, creating it on first
// contact. An empty token always yields a fresh session under a new id.
// Every access refreshes the session's TTL.
func (s *Service) GetOrCreate(token string) *chat.Session {
	if token == "" {
		token = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions.Get(token)
	if !ok {
		session = chat.NewSession(token)
	}
	s.sessions.Add(token, session)
	return session
}

// Clear drops the session history.
func (s *Service) Clear(session *chat.Session) {
	session.Clear()
}

// SetCharacter selects a character and clears the history. An empty id
// unsets the selection.
func (s *Service) SetCharacter(session *chat.Session, characterID string) {
	session.SetCharacter(characterID)
}

// AppendTurns adds turns to the session history as one step.
func (s *Service) AppendTurns(session *chat.Session, turns ...chat.Turn) {
	session.Append(turns...)
}

// Len reports live sessions.
func (s *Service) Len() int {
	return s.sessions.Len()
}
