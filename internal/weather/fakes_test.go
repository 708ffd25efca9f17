package weather

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type memCache struct {
	mu      sync.Mutex
	entries map[Key]Entry
	gets    atomic.Int32
	puts    atomic.Int32
	now     func() time.Time
}

func newMemCache(now func() time.Time) *memCache {
	return &memCache{entries: make(map[Key]Entry), now: now}
}

func (c *memCache) Get(_ context.Context, key Key) (Entry, bool) {
	c.gets.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *memCache) Put(_ context.Context, key Key, r Reading, ttl time.Duration) {
	c.puts.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = NewEntry(r, c.now(), ttl)
}

func (c *memCache) seed(key Key, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

type fakeProvider struct {
	name  string
	calls atomic.Int32
	// fn decides the outcome of each call; nil means succeed with temp 20.
	fn func(ctx context.Context, call int32) (Reading, error)
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Fetch(ctx context.Context, loc Location, units Units, timeout time.Duration) (Reading, error) {
	n := p.calls.Add(1)
	if p.fn == nil {
		return Reading{Temperature: 20, Source: p.name}, nil
	}
	return p.fn(ctx, n)
}

func failing(code ErrorCode, name string) func(context.Context, int32) (Reading, error) {
	return func(context.Context, int32) (Reading, error) {
		return Reading{}, NewProviderError(code, name, nil)
	}
}

func returning(r Reading) func(context.Context, int32) (Reading, error) {
	return func(context.Context, int32) (Reading, error) { return r, nil }
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
