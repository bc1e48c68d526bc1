package session

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultTTL             = 1 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute
)

// Store keeps live sessions in memory with a sliding TTL. Evicted sessions
// have their in-flight generation cancelled.
type Store struct {
	cache *cache.Cache
}

func NewStore(ttl, cleanup time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanup <= 0 {
		cleanup = DefaultCleanupInterval
	}
	c := cache.New(ttl, cleanup)
	c.OnEvicted(func(_ string, v interface{}) {
		if s, ok := v.(*Session); ok {
			s.cancel()
		}
	})
	return &Store{cache: c}
}

func (r *Store) Save(s *Session) {
	r.cache.Set(s.ID(), s, cache.DefaultExpiration)
}

// Get returns the session and refreshes its expiration.
func (r *Store) Get(id string) (*Session, bool) {
	x, found := r.cache.Get(id)
	if !found {
		return nil, false
	}
	s := x.(*Session)
	r.cache.Set(id, s, cache.DefaultExpiration)
	return s, true
}

func (r *Store) Delete(id string) {
	r.cache.Delete(id)
}

func (r *Store) All() []*Session {
	items := r.cache.Items()
	out := make([]*Session, 0, len(items))
	for _, it := range items {
		if s, ok := it.Object.(*Session); ok {
			out = append(out, s)
		}
	}
	return out
}
