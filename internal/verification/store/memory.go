// Package store holds verification sessions in memory with TTL eviction.
//
// The store is deliberately volatile: a verification session is short-lived
// scaffolding for a single flow, and the durable outcome lives in the issued
// credential and the backend's anchored audit record. A production deployment
// that must survive process restarts or scale across instances should back
// this interface with a shared, TTL-capable external store instead.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"agegate/internal/verification/models"
	dErrors "agegate/pkg/domain-errors"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return a CodeNotFound domain error when the requested session does not exist
// - Return nil for successful operations
type SessionStore struct {
	ttl     time.Duration
	logger  *slog.Logger
	onEvict func(count int)

	mu       sync.RWMutex
	sessions map[string]*models.VerificationSession
}

// Option configures the SessionStore.
type Option func(*SessionStore)

// WithLogger sets the logger used by the eviction sweeper.
func WithLogger(l *slog.Logger) Option {
	return func(s *SessionStore) {
		s.logger = l
	}
}

// WithEvictionHook registers a callback invoked with the eviction count
// after every sweep that removed at least one session. Used to feed the
// eviction metrics.
func WithEvictionHook(fn func(count int)) Option {
	return func(s *SessionStore) {
		s.onEvict = fn
	}
}

// New constructs an empty in-memory session store with the given TTL.
func New(ttl time.Duration, opts ...Option) *SessionStore {
	s := &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]*models.VerificationSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores or replaces the session record for its session ID.
func (s *SessionStore) Put(_ context.Context, session *models.VerificationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
	return nil
}

// Get returns the live session for the given ID.
func (s *SessionStore) Get(_ context.Context, sessionID string) (*models.VerificationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[sessionID]; ok {
		return session, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "session not found or expired")
}

// Mutate applies fn to the session under the store lock. Finalization and
// eviction both run under this lock, so a record can never be evicted while
// a verify call is finalizing it.
func (s *SessionStore) Mutate(_ context.Context, sessionID string, fn func(*models.VerificationSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "session not found or expired")
	}
	return fn(session)
}

// Delete removes the session record if present.
func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Clear removes all sessions and reports how many were dropped.
// Used by the operator's global invalidation.
func (s *SessionStore) Clear(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sessions)
	s.sessions = make(map[string]*models.VerificationSession)
	return n
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictExpired removes every session older than the TTL, regardless of
// status, in a single atomic scan. Each record is marked expired before
// removal. The time parameter is injected for testability.
func (s *SessionStore) EvictExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, session := range s.sessions {
		if session.ExpiredBy(now, s.ttl) {
			session.Expire()
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 && s.onEvict != nil {
		s.onEvict(evicted)
	}
	return evicted
}

// RunSweeper evicts expired sessions on a fixed interval until ctx is done.
// Run it once per process from main.
func (s *SessionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.EvictExpired(now); n > 0 && s.logger != nil {
				s.logger.Info("evicted expired verification sessions", "count", n)
			}
		}
	}
}
