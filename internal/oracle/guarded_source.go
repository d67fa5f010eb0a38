package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// GuardedSource wraps a Source and stops hammering it after repeated
// failures. While tripped it fails fast with ErrUnavailable until the
// cooldown elapses, then lets one probe through.
type GuardedSource struct {
	inner       Source
	maxFailures int
	cooldown    time.Duration

	mu        sync.Mutex
	failures  int
	trippedAt time.Time
}

func NewGuardedSource(inner Source, maxFailures int, cooldown time.Duration) *GuardedSource {
	return &GuardedSource{
		inner:       inner,
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

func (g *GuardedSource) Latest(ctx context.Context, ref string) (Quote, error) {
	g.mu.Lock()
	if g.failures >= g.maxFailures {
		if time.Since(g.trippedAt) < g.cooldown {
			g.mu.Unlock()
			return Quote{}, fmt.Errorf("%w: quote source tripped", ErrUnavailable)
		}
		// Cooldown over; probe with one request.
		g.failures = g.maxFailures - 1
	}
	g.mu.Unlock()

	q, err := g.inner.Latest(ctx, ref)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.failures++
		if g.failures >= g.maxFailures {
			g.trippedAt = time.Now()
		}
		return Quote{}, err
	}
	g.failures = 0
	return q, nil
}
