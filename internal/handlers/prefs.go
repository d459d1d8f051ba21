package handlers

import (
	"sync"

	"promptmaster-nano/internal/model"
)

// Preferences are per chat and user, kept in memory only.
type Preferences struct {
	Target model.TargetModel
	// MenuMessageID is the last target menu sent to this user, reused by the
	// next /target.
	MenuMessageID int
}

type prefKey struct {
	ChatID int64
	UserID int64
}

type prefStore struct {
	mu sync.Mutex
	m  map[prefKey]*Preferences
}

func newPrefStore() *prefStore {
	return &prefStore{m: make(map[prefKey]*Preferences)}
}

func (s *prefStore) Get(chatID, userID int64) Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getOrCreateLocked(chatID, userID)
}

func (s *prefStore) Update(chatID, userID int64, fn func(*Preferences)) Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.getOrCreateLocked(chatID, userID)
	if fn != nil {
		fn(p)
	}
	return *p
}

func (s *prefStore) getOrCreateLocked(chatID, userID int64) *Preferences {
	key := prefKey{ChatID: chatID, UserID: userID}
	if p, ok := s.m[key]; ok {
		return p
	}
	p := &Preferences{Target: model.TargetAuto}
	s.m[key] = p
	return p
}
