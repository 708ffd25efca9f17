// Package ratelimit tracks per-provider request quotas and failure streaks.
//
// Each provider gets a sliding one-minute window of granted requests and a
// circuit breaker driven by consecutive failures. After the cool-down expires
// a single trial request is let through; its outcome closes the circuit or
// re-opens it for twice as long, up to MaxCoolDown.
package ratelimit

import (
	"sync"
	"time"
)

// Config holds the limits for one provider.
type Config struct {
	RequestsPerMinute int
	// Window defaults to one minute.
	Window           time.Duration
	FailureThreshold int
	CoolDown         time.Duration
	MaxCoolDown      time.Duration
}

// DefaultConfig: 60 rpm, circuit opens after 5 failures for 30s, growing to 5m.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Window:            time.Minute,
		FailureThreshold:  5,
		CoolDown:          30 * time.Second,
		MaxCoolDown:       5 * time.Minute,
	}
}

// Decision is the answer of TryAcquire.
type Decision struct {
	Granted    bool
	RetryAfter time.Duration
}

// Snapshot is a point-in-time copy of a provider's state.
type Snapshot struct {
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	CircuitOpenUntil    time.Time `json:"circuitOpenUntil,omitzero"`
	TrialInFlight       bool      `json:"trialInFlight"`
	WindowUsed          int       `json:"windowUsed"`
	WindowLimit         int       `json:"windowLimit"`
}

type providerState struct {
	cfg Config

	consecutiveFailures int
	circuitOpenUntil    time.Time
	// opens counts how many times the circuit opened in the current streak.
	opens         int
	trialInFlight bool

	// granted holds request times inside the window, oldest first.
	granted []time.Time
}

// Limiter is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	defaults Config
	configs  map[string]Config
	states   map[string]*providerState

	now func() time.Time
}

// New creates a Limiter. Providers without an entry in perProvider use defaults.
func New(defaults Config, perProvider map[string]Config) *Limiter {
	cfgs := make(map[string]Config, len(perProvider))
	for name, c := range perProvider {
		cfgs[name] = c
	}
	return &Limiter{
		defaults: defaults,
		configs:  cfgs,
		states:   make(map[string]*providerState),
		now:      time.Now,
	}
}

// state returns the record for provider, creating it on first use. Caller holds mu.
func (l *Limiter) state(provider string) *providerState {
	st, ok := l.states[provider]
	if !ok {
		cfg, found := l.configs[provider]
		if !found {
			cfg = l.defaults
		}
		if cfg.Window <= 0 {
			cfg.Window = time.Minute
		}
		st = &providerState{cfg: cfg}
		l.states[provider] = st
	}
	return st
}

// TryAcquire reserves one request for provider. It is denied while the
// circuit is open, while a half-open trial request is outstanding, or when the
// quota window is full.
func (l *Limiter) TryAcquire(provider string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := l.state(provider)

	tookTrial := false
	if !st.circuitOpenUntil.IsZero() {
		if now.Before(st.circuitOpenUntil) {
			return Decision{RetryAfter: st.circuitOpenUntil.Sub(now)}
		}
		if st.trialInFlight {
			return Decision{RetryAfter: st.cfg.CoolDown}
		}
		st.trialInFlight = true
		tookTrial = true
	}

	st.prune(now)
	if st.cfg.RequestsPerMinute > 0 && len(st.granted) >= st.cfg.RequestsPerMinute {
		if tookTrial {
			st.trialInFlight = false
		}
		return Decision{RetryAfter: st.granted[0].Add(st.cfg.Window).Sub(now)}
	}

	st.granted = append(st.granted, now)
	return Decision{Granted: true}
}

// RecordOutcome feeds the result of a request that reached the provider.
func (l *Limiter) RecordOutcome(provider string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(provider)
	if success {
		st.consecutiveFailures = 0
		st.opens = 0
		st.circuitOpenUntil = time.Time{}
		st.trialInFlight = false
		return
	}

	st.consecutiveFailures++
	threshold := st.cfg.FailureThreshold
	if threshold <= 0 {
		return
	}

	// Failures from requests granted before the circuit opened do not extend it.
	if st.trialInFlight || (st.circuitOpenUntil.IsZero() && st.consecutiveFailures >= threshold) {
		st.circuitOpenUntil = l.now().Add(st.coolDown())
		st.opens++
		st.trialInFlight = false
	}
}

// Snapshot returns a copy of the provider's state.
func (l *Limiter) Snapshot(provider string) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(provider)
	st.prune(l.now())
	return Snapshot{
		ConsecutiveFailures: st.consecutiveFailures,
		CircuitOpenUntil:    st.circuitOpenUntil,
		TrialInFlight:       st.trialInFlight,
		WindowUsed:          len(st.granted),
		WindowLimit:         st.cfg.RequestsPerMinute,
	}
}

// coolDown doubles with every re-open within a streak, capped at MaxCoolDown.
func (st *providerState) coolDown() time.Duration {
	d := st.cfg.CoolDown
	for i := 0; i < st.opens; i++ {
		d *= 2
		if st.cfg.MaxCoolDown > 0 && d >= st.cfg.MaxCoolDown {
			return st.cfg.MaxCoolDown
		}
	}
	if st.cfg.MaxCoolDown > 0 && d > st.cfg.MaxCoolDown {
		return st.cfg.MaxCoolDown
	}
	return d
}

func (st *providerState) prune(now time.Time) {
	cutoff := now.Add(-st.cfg.Window)
	i := 0
	for i < len(st.granted) && !st.granted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		st.granted = append(st.granted[:0], st.granted[i:]...)
	}
}
