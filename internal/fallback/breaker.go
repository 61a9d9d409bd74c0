// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package fallback

import (
	"sync"

	"github.com/sony/gobreaker/v2"

	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/logging"
	"github.com/gomuseum/gateway/internal/metrics"
	"github.com/gomuseum/gateway/internal/models"
)

// breakerSet lazily creates one circuit breaker per provider. A provider
// that starts failing across its models trips one breaker, shielding the
// deadline budget from attempts that would certainly fail.
type breakerSet struct {
	cfg config.FallbackConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]models.Candidate]
}

func newBreakerSet(cfg config.FallbackConfig) *breakerSet {
	return &breakerSet{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]models.Candidate]),
	}
}

// forProvider returns the provider's breaker, creating it on first use.
func (b *breakerSet) forProvider(provider string) *gobreaker.CircuitBreaker[[]models.Candidate] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[provider]; ok {
		return cb
	}

	threshold := b.cfg.BreakerThreshold
	minReqs := b.cfg.BreakerMinReqs

	settings := gobreaker.Settings{
		Name:    provider,
		Timeout: b.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minReqs {
				return false
			}
			failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRate >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			logging.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	cb := gobreaker.NewCircuitBreaker[[]models.Candidate](settings)
	b.breakers[provider] = cb
	metrics.BreakerState.WithLabelValues(provider).Set(breakerStateValue(gobreaker.StateClosed))
	return cb
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
