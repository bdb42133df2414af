package memory

import (
	"strings"
	"sync"

	"competition-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Codes are indexed lowercase so lookups are case-insensitive.
type SessionStore struct {
	mu     sync.RWMutex
	byID   map[string]*app.Session
	byCode map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		byID:   make(map[string]*app.Session),
		byCode: make(map[string]string),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	comp := session.Competition()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[comp.ID] = session
	if comp.Code != "" {
		s.byCode[strings.ToLower(comp.Code)] = comp.ID
	}
}

func (s *SessionStore) Get(competitionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byID[competitionID]
	return session, ok
}

func (s *SessionStore) GetByCode(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[strings.ToLower(code)]
	if !ok {
		return nil, false
	}
	session, ok := s.byID[id]
	return session, ok
}

func (s *SessionStore) Delete(competitionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byID[competitionID]
	if !ok {
		return
	}
	delete(s.byID, competitionID)
	delete(s.byCode, strings.ToLower(session.Competition().Code))
}
