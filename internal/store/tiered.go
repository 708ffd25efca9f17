package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/i474232898/temperature-display/internal/weather"
)

// SharedTier is a cache tier visible to every process, e.g. Redis.
type SharedTier interface {
	Get(ctx context.Context, key weather.Key) (weather.Entry, bool, error)
	Set(ctx context.Context, key weather.Key, e weather.Entry) error
}

// Loader supplies durable entries for warm start.
type Loader interface {
	LoadRecent(ctx context.Context, limit int) ([]Record, error)
}

// Record pairs a key with its stored entry.
type Record struct {
	Key   weather.Key
	Entry weather.Entry
}

// Tiered implements weather.Cache over an in-process LRU, an optional shared
// tier and an optional write-behind queue. Shared tier failures are logged and
// otherwise ignored: the local tier always answers.
type Tiered struct {
	local  *MemoryStore
	shared SharedTier
	queue  *WriteBehind
	logger zerolog.Logger
}

var _ weather.Cache = (*Tiered)(nil)

// NewTiered composes the tiers; shared and queue may be nil.
func NewTiered(local *MemoryStore, shared SharedTier, queue *WriteBehind, logger zerolog.Logger) *Tiered {
	return &Tiered{
		local:  local,
		shared: shared,
		queue:  queue,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Get checks the local tier first. On a local miss or stale hit the shared
// tier is consulted and a newer shared entry is copied into the local tier.
func (t *Tiered) Get(ctx context.Context, key weather.Key) (weather.Entry, bool) {
	e, ok := t.local.Get(key)
	if ok && !e.Stale(t.local.now()) || t.shared == nil {
		return e, ok
	}

	se, found, err := t.shared.Get(ctx, key)
	if err != nil {
		t.logger.Debug().Str("key", key.String()).Err(err).Msg("shared tier read failed")
		return e, ok
	}
	if !found {
		return e, ok
	}
	if !ok || se.InsertedAt.After(e.InsertedAt) {
		t.local.Set(key, se)
		return se, true
	}
	return e, ok
}

// Put replaces the entry for key in every tier and queues it for the sinks.
func (t *Tiered) Put(ctx context.Context, key weather.Key, r weather.Reading, ttl time.Duration) {
	e := t.local.Put(key, r, ttl)

	if t.shared != nil {
		if err := t.shared.Set(ctx, key, e); err != nil {
			t.logger.Warn().Str("key", key.String()).Err(err).Msg("shared tier write failed")
		}
	}
	if t.queue != nil {
		t.queue.Enqueue(key, e)
	}
}

// Warm loads up to limit durable entries into the local tier and returns how
// many were loaded. Stale rows are kept so they can still serve as fallback.
func (t *Tiered) Warm(ctx context.Context, src Loader, limit int) (int, error) {
	records, err := src.LoadRecent(ctx, limit)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		if cur, ok := t.local.Get(rec.Key); ok && !rec.Entry.InsertedAt.After(cur.InsertedAt) {
			continue
		}
		t.local.Set(rec.Key, rec.Entry)
	}
	t.logger.Info().Int("entries", len(records)).Msg("cache warmed from durable store")
	return len(records), nil
}

// Len reports the local tier size.
func (t *Tiered) Len() int {
	return t.local.Len()
}
