package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/i474232898/temperature-display/internal/weather"
)

// Sink is a durable or downstream destination for cache writes.
type Sink interface {
	Name() string
	Persist(ctx context.Context, key weather.Key, e weather.Entry) error
}

type pending struct {
	key   weather.Key
	entry weather.Entry
}

// WriteBehind fans cache writes out to sinks on a background goroutine.
// Enqueue never blocks: when the buffer is full the write is dropped.
type WriteBehind struct {
	sinks   []Sink
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan pending
	done   chan struct{}
}

func NewWriteBehind(sinks []Sink, buffer int, timeout time.Duration, logger zerolog.Logger) *WriteBehind {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	w := &WriteBehind{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger.With().Str("component", "write_behind").Logger(),
		queue:   make(chan pending, buffer),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue schedules e for every sink and reports whether it was accepted.
func (w *WriteBehind) Enqueue(key weather.Key, e weather.Entry) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- pending{key: key, entry: e}:
		return true
	default:
		w.logger.Warn().Str("key", key.String()).Msg("write-behind queue full; dropping write")
		return false
	}
}

// Close stops accepting writes and waits until the queue is drained.
func (w *WriteBehind) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *WriteBehind) run() {
	defer close(w.done)
	for p := range w.queue {
		for _, sink := range w.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
			if err := sink.Persist(ctx, p.key, p.entry); err != nil {
				w.logger.Warn().Str("sink", sink.Name()).Str("key", p.key.String()).Err(err).Msg("persist failed")
			}
			cancel()
		}
	}
}
