// Package session holds the identity the client is currently signed in as.
package session

import (
	"sync"

	"local.dev/socialfeed/internal/models"
)

// State is the single holder of the current user. Set is called by the
// auth-state subscription (sign in / sign out) and by a successful profile
// edit; every change is pushed to the subscribers.
type State struct {
	mu     sync.RWMutex
	user   *models.User
	nextID int
	subs   map[int]func(*models.User)
}

func New() *State {
	return &State{subs: make(map[int]func(*models.User))}
}

// Current returns a copy of the signed-in user, or nil.
func (s *State) Current() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *State) SignedIn() bool { return s.Current() != nil }

// Set replaces the current user (nil signs out) and notifies subscribers.
func (s *State) Set(u *models.User) {
	s.mu.Lock()
	if u == nil {
		s.user = nil
	} else {
		cp := *u
		s.user = &cp
	}
	subs := make([]func(*models.User), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(s.Current())
	}
}

// Subscribe registers fn for every later change and returns the
// function that removes it.
func (s *State) Subscribe(fn func(*models.User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
