package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"competition-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - It still keeps a local in-memory map of sessions because the live
//     session carries subscriber channels and a mutex that cannot cross
//     process boundaries.
//   - Redis holds a liveness marker per competition and the code -> id
//     mapping, so join codes stay unique across instances.
//   - For true distribution you'd pair this with a pub/sub projector that
//     fans out events between instances.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
	byCode   map[string]string
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
		byCode:   make(map[string]string),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	comp := session.Competition()
	code := strings.ToLower(comp.Code)

	s.mu.Lock()
	s.sessions[comp.ID] = session
	if code != "" {
		s.byCode[code] = comp.ID
	}
	s.mu.Unlock()

	// best-effort liveness + cross-instance code reservation
	ctx := context.Background()
	_ = s.client.Set(ctx, s.liveKey(comp.ID), "1", s.ttl).Err()
	if code != "" {
		_ = s.client.Set(ctx, s.codeKey(code), comp.ID, s.ttl).Err()
	}
}

func (s *SessionStore) Get(competitionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[competitionID]
	return session, ok
}

func (s *SessionStore) GetByCode(code string) (*app.Session, bool) {
	code = strings.ToLower(code)

	s.mu.RLock()
	id, ok := s.byCode[code]
	var session *app.Session
	if ok {
		session, ok = s.sessions[id]
	}
	s.mu.RUnlock()
	if ok {
		return session, true
	}

	// A code reserved by another instance still counts as taken, even though
	// this instance cannot serve the session itself.
	if id, err := s.client.Get(context.Background(), s.codeKey(code)).Result(); err == nil && id != "" {
		return s.Get(id)
	}
	return nil, false
}

func (s *SessionStore) Delete(competitionID string) {
	s.mu.Lock()
	session, ok := s.sessions[competitionID]
	var code string
	if ok {
		code = strings.ToLower(session.Competition().Code)
		delete(s.sessions, competitionID)
		delete(s.byCode, code)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx := context.Background()
	_ = s.client.Del(ctx, s.liveKey(competitionID)).Err()
	if code != "" {
		_ = s.client.Del(ctx, s.codeKey(code)).Err()
	}
}

func (s *SessionStore) liveKey(competitionID string) string {
	return "competition:session:" + competitionID
}

func (s *SessionStore) codeKey(code string) string {
	return "competition:code:" + code
}
