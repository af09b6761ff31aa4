package chat

import (
	"sync"
	"time"
)

// Session captures one caller's transient conversation.
type Session struct {
	ID        string
	CreatedAt time.Time

	// turn serializes relay operations on this session.
	turn sync.Mutex

	mu          sync.RWMutex
	characterID string
	history     []Turn
}

// NewSession returns an empty session with no character selected.
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
	}
}

// BeginTurn blocks until no other relay operation holds the session and
// returns the release func.
func (s *Session) BeginTurn() (release func()) {
	s.turn.Lock()
	return s.turn.Unlock
}

// CharacterID returns the selected character, "" when none.
func (s *Session) CharacterID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.characterID
}

// History returns a copy of the conversation so callers cannot mutate it.
func (s *Session) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.history...)
}

// Len reports the number of turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// SetCharacter switches the persona and drops the history in one step.
func (s *Session) SetCharacter(id string) {
	s.mu.Lock()
	s.characterID = id
	s.history = nil
	s.mu.Unlock()
}

// Clear drops the history but keeps the selected character.
func (s *Session) Clear() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// Append adds turns at the end of the history in one step.
func (s *Session) Append(turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	s.mu.Lock()
	s.history = append(s.history, turns...)
	s.mu.Unlock()
}
