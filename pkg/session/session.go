package session

import (
	"sync"

	"github.com/docchat/docchat/internal/models"
)

// Session holds one conversation's ordered message history. History is
// append-only; bounding for model context is a read-time view via
// Window, never a deletion.
type Session struct {
	id string

	mu      sync.Mutex
	turn    sync.Mutex // held across a whole answering turn
	history []models.ChatMessage
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Append adds a message to the history.
func (s *Session) Append(msg models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
}

// Window returns a copy of the most recent n messages. The window is
// always a suffix of the full history.
func (s *Session) Window(n int) []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if n >= 0 && len(s.history) > n {
		start = len(s.history) - n
	}
	out := make([]models.ChatMessage, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

// Messages returns a copy of the full history.
func (s *Session) Messages() []models.ChatMessage {
	return s.Window(-1)
}

// Len reports the number of stored messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Lock serializes answering turns on this session: concurrent turns for
// the same session id otherwise race on append order.
func (s *Session) Lock() {
	s.turn.Lock()
}

// Unlock releases the turn lock.
func (s *Session) Unlock() {
	s.turn.Unlock()
}

// Store is the process-wide session map. Sessions are created lazily on
// first access and live until the process restarts; there is no
// eviction. A bounded cache or external store would be the production
// hardening here.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating an empty one on first access.
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok = st.sessions[id]; ok {
		return s
	}
	s = &Session{id: id}
	st.sessions[id] = s
	return s
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
