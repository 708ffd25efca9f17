package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// State is a step of the fallback state machine.
type State int

const (
	StateCacheCheck State = iota
	StatePrimaryAttempt
	StateFallbackAttempt
	StateStaleServe
	StateFailed
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCacheCheck:
		return "cache_check"
	case StatePrimaryAttempt:
		return "primary_attempt"
	case StateFallbackAttempt:
		return "fallback_attempt"
	case StateStaleServe:
		return "stale_serve"
	case StateFailed:
		return "failed"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is the outcome of executing a state.
type Event int

const (
	EventFreshHit Event = iota
	EventCacheMiss
	EventFetched
	EventExhausted
	EventDeadline
	EventStaleFound
	EventNoEntry
)

// transition is the pure state machine: DONE and FAILED are terminal, an
// expired deadline in an attempt state goes straight to STALE_SERVE.
func transition(s State, ev Event) State {
	switch s {
	case StateCacheCheck:
		switch ev {
		case EventFreshHit:
			return StateDone
		case EventDeadline:
			return StateStaleServe
		default:
			return StatePrimaryAttempt
		}
	case StatePrimaryAttempt:
		switch ev {
		case EventFetched:
			return StateDone
		case EventDeadline:
			return StateStaleServe
		default:
			return StateFallbackAttempt
		}
	case StateFallbackAttempt:
		if ev == EventFetched {
			return StateDone
		}
		return StateStaleServe
	case StateStaleServe:
		if ev == EventStaleFound {
			return StateDone
		}
		return StateFailed
	case StateDone:
		return StateDone
	default:
		return StateFailed
	}
}

// staleLookupTimeout bounds the final cache read, which runs even after the
// caller's deadline has passed.
const staleLookupTimeout = 250 * time.Millisecond

var errNoProvider = errors.New("provider not configured")

// CoordinatorConfig wires the dependencies of a Coordinator.
type CoordinatorConfig struct {
	Primary  Provider
	Fallback Provider
	Cache    Cache
	Retry    RetryPolicy
	// TTL is the freshness window of entries written after a successful fetch.
	TTL    time.Duration
	Logger zerolog.Logger
}

// Coordinator runs the cache → primary → fallback → stale → failed protocol.
type Coordinator struct {
	primary  Provider
	fallback Provider
	cache    Cache
	policy   RetryPolicy
	ttl      time.Duration
	logger   zerolog.Logger

	jitter func(time.Duration) time.Duration
	now    func() time.Time
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		cache:    cfg.Cache,
		policy:   cfg.Retry,
		ttl:      cfg.TTL,
		logger:   cfg.Logger.With().Str("component", "coordinator").Logger(),
		jitter:   fullJitter,
		now:      time.Now,
	}
}

// Resolve runs the full protocol starting at CACHE_CHECK.
func (c *Coordinator) Resolve(ctx context.Context, key Key) (Result, error) {
	return c.run(ctx, key, StateCacheCheck)
}

// Refresh starts at PRIMARY_ATTEMPT, for callers that already checked the
// cache or want a fresh entry replaced. Failure still falls back to whatever
// the cache holds.
func (c *Coordinator) Refresh(ctx context.Context, key Key) (Result, error) {
	return c.run(ctx, key, StatePrimaryAttempt)
}

// ServeStale returns any entry for key, fresh or not, annotated as stale when
// past its TTL; with no entry it fails with ErrAllProvidersFailed.
func (c *Coordinator) ServeStale(ctx context.Context, key Key) (Result, error) {
	if res, ok := c.lookupAny(ctx, key); ok {
		return res, nil
	}
	return Result{}, &Error{Code: CodeAllProvidersFailed, Err: ctx.Err()}
}

type runState struct {
	result  Result
	lastErr error
}

func (c *Coordinator) run(ctx context.Context, key Key, state State) (Result, error) {
	var rs runState
	for {
		switch state {
		case StateDone:
			return rs.result, nil
		case StateFailed:
			c.logger.Warn().Str("key", key.String()).Err(rs.lastErr).Msg("all providers failed and no cached entry")
			return Result{}, &Error{Code: CodeAllProvidersFailed, Err: detached(rs.lastErr)}
		}

		ev := c.step(ctx, key, state, &rs)
		next := transition(state, ev)
		c.logger.Debug().
			Str("key", key.String()).
			Stringer("from", state).
			Stringer("to", next).
			Msg("transition")
		state = next
	}
}

func (c *Coordinator) step(ctx context.Context, key Key, state State, rs *runState) Event {
	switch state {
	case StateCacheCheck:
		if e, ok := c.cache.Get(ctx, key); ok && !e.Stale(c.now()) {
			rs.result = Result{Reading: e.Reading}
			return EventFreshHit
		}
		return EventCacheMiss

	case StatePrimaryAttempt, StateFallbackAttempt:
		if ctx.Err() != nil {
			return EventDeadline
		}
		p := c.primary
		if state == StateFallbackAttempt {
			p = c.fallback
		}
		pctx, cancel := c.phaseContext(ctx, state)
		r, err := c.attempt(pctx, p, key)
		cancel()
		if err == nil {
			// Write-through must not be cut short by the caller's deadline.
			c.cache.Put(context.WithoutCancel(ctx), key, r, c.ttl)
			rs.result = Result{Reading: r}
			return EventFetched
		}
		rs.lastErr = err
		if ctx.Err() != nil {
			return EventDeadline
		}
		return EventExhausted

	case StateStaleServe:
		if res, ok := c.lookupAny(ctx, key); ok {
			c.logger.Info().Str("key", key.String()).Bool("stale", res.Stale).Msg("serving cached entry after provider failures")
			rs.result = res
			return EventStaleFound
		}
		return EventNoEntry
	}
	return EventNoEntry
}

// phaseContext bounds PRIMARY_ATTEMPT to half of the time left before the
// deadline when a fallback provider is configured, so a hanging primary
// cannot consume the budget the fallback needs.
func (c *Coordinator) phaseContext(ctx context.Context, state State) (context.Context, context.CancelFunc) {
	if state != StatePrimaryAttempt || c.fallback == nil {
		return ctx, func() {}
	}
	dl, ok := ctx.Deadline()
	if !ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Until(dl)/2)
}

func (c *Coordinator) lookupAny(ctx context.Context, key Key) (Result, bool) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), staleLookupTimeout)
	defer cancel()

	e, ok := c.cache.Get(lctx, key)
	if !ok {
		return Result{}, false
	}
	return Result{Reading: e.Reading, Stale: e.Stale(c.now())}, true
}

// attempt calls p up to 1+MaxRetries times with jittered exponential backoff.
// A rate-limit denial ends the attempt immediately.
func (c *Coordinator) attempt(ctx context.Context, p Provider, key Key) (Reading, error) {
	if p == nil {
		return Reading{}, errNoProvider
	}

	var lastErr error
	for try := 0; try <= c.policy.MaxRetries; try++ {
		if try > 0 {
			if err := sleepCtx(ctx, c.jitter(c.policy.ceiling(try-1))); err != nil {
				return Reading{}, lastErr
			}
		}
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return Reading{}, lastErr
		}

		r, err := p.Fetch(ctx, key.Location(), key.Units, c.policy.AttemptTimeout)
		if err == nil {
			return r, nil
		}
		lastErr = err

		c.logger.Warn().
			Str("provider", p.Name()).
			Str("key", key.String()).
			Int("try", try).
			Err(err).
			Msg("provider attempt failed")

		if errors.Is(err, ErrProviderRateLimited) {
			break
		}
	}
	return Reading{}, lastErr
}
