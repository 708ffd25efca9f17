package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/temperature-display/internal/ratelimit"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// slowCheck marks a dependency degraded when its ping exceeds the response target.
const slowCheck = 2 * time.Second

const checkTimeout = 5 * time.Second

type dependencyHealth struct {
	Status         string  `json:"status"`
	ResponseTimeMS float64 `json:"responseTimeMs"`
	Error          string  `json:"error,omitempty"`
}

type healthResponse struct {
	Status       string                        `json:"status"`
	Time         time.Time                     `json:"time"`
	Dependencies map[string]dependencyHealth   `json:"dependencies"`
	Providers    map[string]ratelimit.Snapshot `json:"providers,omitempty"`
}

// healthHandler pings every checker concurrently. The service is degraded,
// never down, when optional dependencies fail: queries still resolve from the
// in-process cache and the providers.
func healthHandler(d Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		resp := healthResponse{
			Status:       statusHealthy,
			Time:         time.Now().UTC(),
			Dependencies: checkAll(c.UserContext(), d.Checkers),
		}

		for _, h := range resp.Dependencies {
			if h.Status != statusHealthy {
				resp.Status = statusDegraded
			}
		}

		if d.Circuits != nil && len(d.Providers) > 0 {
			resp.Providers = make(map[string]ratelimit.Snapshot, len(d.Providers))
			for _, name := range d.Providers {
				snap := d.Circuits.Snapshot(name)
				resp.Providers[name] = snap
				if snap.CircuitOpenUntil.After(resp.Time) {
					resp.Status = statusDegraded
				}
			}
		}

		return c.JSON(resp)
	}
}

func checkAll(ctx context.Context, checkers []Checker) map[string]dependencyHealth {
	out := make(map[string]dependencyHealth, len(checkers))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, chk := range checkers {
		chk := chk
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := check(ctx, chk)
			mu.Lock()
			out[chk.Name()] = h
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func check(ctx context.Context, chk Checker) dependencyHealth {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := chk.Ping(ctx)
	elapsed := time.Since(start)

	h := dependencyHealth{
		Status:         statusHealthy,
		ResponseTimeMS: float64(elapsed.Microseconds()) / 1000,
	}
	switch {
	case err != nil:
		h.Status = statusUnhealthy
		h.Error = err.Error()
	case elapsed > slowCheck:
		h.Status = statusDegraded
	}
	return h
}
