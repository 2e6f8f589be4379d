package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"invoicedash/internal"
)

const maxSessions = 4096

// Sessions keeps signed-in users in memory until their TTL runs out.
type Sessions struct {
	store *expirable.LRU[string, internal.User]
}

func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Sessions{store: expirable.NewLRU[string, internal.User](maxSessions, nil, ttl)}
}

func (s *Sessions) Create(user internal.User) string {
	id := uuid.NewString()
	s.store.Add(id, user)
	return id
}

func (s *Sessions) Get(id string) (internal.User, bool) {
	if id == "" {
		return internal.User{}, false
	}
	return s.store.Get(id)
}

func (s *Sessions) Delete(id string) {
	s.store.Remove(id)
}
