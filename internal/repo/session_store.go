package repo

import (
	"context"
	"sync"
	"time"
)

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[string]*LinkSession
}

type sessionStore struct {
	shards    [shardCount]sessionShard
	retention time.Duration
	now       func() time.Time
}

// NewSessionStore creates an in-memory session store. Terminal sessions
// older than retention are pruned lazily on writes; a retention of zero
// keeps everything forever.
func NewSessionStore(retention time.Duration) SessionStore {
	s := &sessionStore{retention: retention, now: time.Now}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*LinkSession)
	}
	return s
}

func (s *sessionStore) shard(id string) *sessionShard {
	return &s.shards[shardIndex(id)]
}

func (s *sessionStore) Put(_ context.Context, session LinkSession) error {
	shard := s.shard(session.ID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	s.pruneLocked(shard)

	stored := session
	if stored.Result != nil {
		result := *stored.Result
		stored.Result = &result
	}
	shard.sessions[session.ID] = &stored
	return nil
}

func (s *sessionStore) Get(_ context.Context, id string) (LinkSession, error) {
	shard := s.shard(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	stored, ok := shard.sessions[id]
	if !ok {
		return LinkSession{}, ErrNotFound
	}
	return copySession(stored), nil
}

func (s *sessionStore) Complete(_ context.Context, id string, result CompletionResult) (LinkSession, bool, error) {
	shard := s.shard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	stored, ok := shard.sessions[id]
	if !ok {
		return LinkSession{}, false, ErrNotFound
	}

	if stored.Status != SessionStatusPending {
		// Already completed: the first completion's result stands.
		return copySession(stored), false, nil
	}

	stored.Status = SessionStatusCompleted
	stored.Result = &result
	return copySession(stored), true, nil
}

// pruneLocked drops terminal sessions past the retention window. Pending
// sessions are kept regardless: expiry is computed at read time and an
// abandoned session is still useful for audit until retention passes it too.
func (s *sessionStore) pruneLocked(shard *sessionShard) {
	if s.retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.retention)
	for id, sess := range shard.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(shard.sessions, id)
		}
	}
}

func copySession(s *LinkSession) LinkSession {
	out := *s
	if s.Result != nil {
		result := *s.Result
		out.Result = &result
	}
	return out
}
