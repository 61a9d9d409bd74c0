// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package fallback

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// pacerSet rate-limits outbound calls per provider so a burst of cache
// misses cannot trip a provider's own rate limits. Disabled when rps <= 0.
type pacerSet struct {
	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newPacerSet(rps float64, burst int) *pacerSet {
	if burst < 1 {
		burst = 1
	}
	return &pacerSet{
		rps:      rps,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (p *pacerSet) forProvider(provider string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[provider]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.rps), p.burst)
		p.limiters[provider] = l
	}
	return l
}

// wait blocks until the provider's limiter admits one call or the
// context expires. The wait burns the attempt's sub-deadline, so pacing
// delays surface as attempt timeouts rather than unbounded queueing.
func (p *pacerSet) wait(ctx context.Context, provider string) error {
	if p.rps <= 0 {
		return nil
	}
	return p.forProvider(provider).Wait(ctx)
}
