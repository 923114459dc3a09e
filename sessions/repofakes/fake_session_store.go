package fakesessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-recipe-auth/sessions"
)

var _ sessions.Store = (*FakeSessionStore)(nil)

// FakeSessionStore is an in-memory sessions.Store. Expired entries are dropped lazily on access.
// It backs the memory session backend as well as tests.
type FakeSessionStore struct {
	sessions map[string]*sessions.Session
	lock     sync.RWMutex
	nowFunc  func() time.Time

	// FailWith, when set, is returned from every operation to simulate an unreachable store
	FailWith error
}

type Option func(*FakeSessionStore)

// WithNowFunc sets the clock used for expiry
func WithNowFunc(now func() time.Time) Option {
	return func(s *FakeSessionStore) {
		s.nowFunc = now
	}
}

func NewFakeSessionStore(options ...Option) *FakeSessionStore {
	s := &FakeSessionStore{
		sessions: make(map[string]*sessions.Session),
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *FakeSessionStore) Create(_ context.Context, token, userID string, ttl time.Duration) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	if token == "" || userID == "" {
		return errors.New("[FakeSessionStore.Create] token and userID are required")
	}
	if ttl <= 0 {
		return errors.Errorf("[FakeSessionStore.Create] invalid ttl %s", ttl)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.sessions[token] = &sessions.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: s.nowFunc().Add(ttl),
	}
	return nil
}

func (s *FakeSessionStore) Resolve(_ context.Context, token string) (string, error) {
	if s.FailWith != nil {
		return "", s.FailWith
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return "", sessions.ErrNotFound
	}
	if session.Expired(s.nowFunc()) {
		delete(s.sessions, token)
		return "", sessions.ErrNotFound
	}
	return session.UserID, nil
}

func (s *FakeSessionStore) Revoke(_ context.Context, token string) error {
	if s.FailWith != nil {
		return s.FailWith
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.sessions, token)
	return nil
}

// Len returns the number of stored sessions, including expired ones not yet accessed
func (s *FakeSessionStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.sessions)
}
