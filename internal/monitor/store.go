package monitor

import (
	"sync"

	"github.com/studybuddy/backend/internal/models"
)

// SessionStore holds live study sessions. Terminal sessions are persisted
// elsewhere; this store only ever contains sessions still being watched.
//
// Get, Put and List operate on copies. All mutation of a stored session goes
// through Update, which runs the closure under the store's write lock so
// concurrent read-modify-write cycles cannot lose updates.
type SessionStore interface {
	Get(sessionID string) (*models.StudySession, bool)
	Put(session *models.StudySession)
	Update(sessionID string, fn func(*models.StudySession) error) error
	Delete(sessionID string)
	List() []*models.StudySession
	Len() int
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.StudySession
}

func NewMemoryStore() SessionStore {
	return &memoryStore{sessions: make(map[string]*models.StudySession)}
}

func (s *memoryStore) Get(sessionID string) (*models.StudySession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return session.Clone(), true
}

func (s *memoryStore) Put(session *models.StudySession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session.Clone()
}

func (s *memoryStore) Update(sessionID string, fn func(*models.StudySession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return models.ErrNotFound
	}
	return fn(session)
}

func (s *memoryStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *memoryStore) List() []*models.StudySession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.StudySession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	return out
}

func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
