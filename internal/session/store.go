package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session records an authenticated student for the lifetime of the process.
// Handlers receive copies; the store owns the canonical map.
type Session struct {
	Token        string    `json:"session_id"`
	StudentID    string    `json:"student_id"`
	Name         string    `json:"name"`
	NotebookName string    `json:"notebook_name"`
	CreatedAt    time.Time `json:"logged_in_at"`
}

// Store holds active sessions in memory. A process restart invalidates every
// session; this is a single-process deployment assumption, not a bug.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]Session)}
}

// Create issues a fresh random token and stores the session under it.
func (s *Store) Create(studentID, name, notebookName string) Session {
	sess := Session{
		Token:        uuid.New().String(),
		StudentID:    studentID,
		Name:         name,
		NotebookName: notebookName,
		CreatedAt:    time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()
	return sess
}

// Put stores a session under an externally issued token, replacing any
// previous session with the same token. Used when the external store assigns
// the session id at login.
func (s *Store) Put(token, studentID, name, notebookName string) Session {
	sess := Session{
		Token:        token,
		StudentID:    studentID,
		Name:         name,
		NotebookName: notebookName,
		CreatedAt:    time.Now(),
	}
	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()
	return sess
}

// Get looks up a session by token.
func (s *Store) Get(token string) (Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	return sess, ok
}

// Remove deletes the session. Removing an unknown token is a no-op, and a
// removed token is indistinguishable from one that never existed.
func (s *Store) Remove(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Len reports the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
