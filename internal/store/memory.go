package store

import (
	"container/list"
	"sync"
	"time"

	"github.com/i474232898/temperature-display/internal/weather"
)

// DefaultCapacity is used when NewMemoryStore gets a non-positive capacity.
const DefaultCapacity = 10000

type memItem struct {
	key   weather.Key
	entry weather.Entry
}

// MemoryStore is a concurrency-safe, capacity-bounded in-process cache tier.
// Expired entries are kept until overwritten or evicted; eviction removes the
// least recently used stale entry first and falls back to plain LRU order.
type MemoryStore struct {
	mu sync.Mutex

	// front = most recently used
	order *list.List
	items map[weather.Key]*list.Element

	capacity int
	now      func() time.Time
}

// NewMemoryStore creates a new MemoryStore holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		order:    list.New(),
		items:    make(map[weather.Key]*list.Element),
		capacity: capacity,
		now:      time.Now,
	}
}

// Get returns the entry for key, fresh or stale, and marks it recently used.
func (s *MemoryStore) Get(key weather.Key) (weather.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return weather.Entry{}, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*memItem).entry, true
}

// Set stores e under key, replacing any existing entry.
func (s *MemoryStore) Set(key weather.Key, e weather.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		el.Value = &memItem{key: key, entry: e}
		s.order.MoveToFront(el)
		return
	}

	s.items[key] = s.order.PushFront(&memItem{key: key, entry: e})
	for s.order.Len() > s.capacity {
		s.evict()
	}
}

// Put builds an entry fresh for ttl from now.
func (s *MemoryStore) Put(key weather.Key, r weather.Reading, ttl time.Duration) weather.Entry {
	e := weather.NewEntry(r, s.now(), ttl)
	s.Set(key, e)
	return e
}

// Len reports the number of entries held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// evict removes one entry. Caller holds mu.
func (s *MemoryStore) evict() {
	now := s.now()
	victim := s.order.Back()
	for el := s.order.Back(); el != nil; el = el.Prev() {
		if el.Value.(*memItem).entry.Stale(now) {
			victim = el
			break
		}
	}
	if victim == nil {
		return
	}
	s.order.Remove(victim)
	delete(s.items, victim.Value.(*memItem).key)
}
