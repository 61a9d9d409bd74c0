// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package cache

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/logging"
	"github.com/gomuseum/gateway/internal/metrics"
	"github.com/gomuseum/gateway/internal/models"
)

// tier2Entry is the wire form of a tier-2 record. The hit count rides
// along so any gateway instance sharing the store can extend the entry's
// TTL adaptively, mirroring tier 1.
type tier2Entry struct {
	Outcome models.RecognitionOutcome `json:"outcome"`
	Hits    int64                     `json:"hits"`
}

// Manager fronts both cache tiers behind a single lookup/store API.
//
// Lookup order is tier 1 then tier 2; tier-2 hits are promoted into
// tier 1. Tier-2 failures degrade to a miss so a Redis outage slows the
// gateway down instead of taking it down.
type Manager struct {
	tier1      *Tier1
	tier2      Store
	cfg        config.CacheConfig
	production bool
}

// NewManager builds the cache manager. store may be nil when tier 2 is
// disabled. production selects miss-on-corruption instead of panic.
func NewManager(cfg config.CacheConfig, store Store, production bool) *Manager {
	return &Manager{
		tier1:      NewTier1(cfg.Tier1),
		tier2:      store,
		cfg:        cfg,
		production: production,
	}
}

// Lookup returns the cached outcome for key. The boolean reports whether
// any tier held the key.
func (m *Manager) Lookup(ctx context.Context, key models.FingerprintKey) (models.RecognitionOutcome, bool) {
	if outcome, ok := m.tier1.Get(key); ok {
		metrics.CacheHits.WithLabelValues("tier1").Inc()
		return outcome, true
	}

	if m.tier2 == nil {
		metrics.CacheMisses.Inc()
		return models.RecognitionOutcome{}, false
	}

	raw, err := m.tier2.Get(ctx, string(key))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			metrics.Tier2Errors.WithLabelValues("get").Inc()
			logging.Warn().Err(err).Str("key", string(key)).Msg("tier-2 lookup failed, treating as miss")
		}
		metrics.CacheMisses.Inc()
		return models.RecognitionOutcome{}, false
	}

	var ent tier2Entry
	if err := json.Unmarshal(raw, &ent); err != nil {
		m.handleCorruption(ctx, key, err)
		metrics.CacheMisses.Inc()
		return models.RecognitionOutcome{}, false
	}

	metrics.CacheHits.WithLabelValues("tier2").Inc()
	metrics.CachePromotions.Inc()
	m.tier1.Set(key, ent.Outcome, int64(len(raw)), 1.0)
	m.refreshTier2(ctx, key, ent)
	return ent.Outcome, true
}

// refreshTier2 rewrites a just-hit tier-2 entry with its bumped hit count
// and a multiplicatively extended TTL, capped at MaxTTL. Best effort: a
// failed refresh leaves the old entry in place on its previous clock.
func (m *Manager) refreshTier2(ctx context.Context, key models.FingerprintKey, ent tier2Entry) {
	ent.Hits++
	ttl := extendTTL(m.cfg.Tier2.TTL, m.cfg.Tier2.MaxTTL, ent.Hits)

	raw, err := json.Marshal(ent)
	if err != nil {
		logging.Error().Err(err).Str("key", string(key)).Msg("failed to encode tier-2 refresh")
		return
	}
	if err := m.tier2.Set(ctx, string(key), raw, ttl); err != nil {
		metrics.Tier2Errors.WithLabelValues("refresh").Inc()
		logging.Warn().Err(err).Str("key", string(key)).Msg("tier-2 TTL refresh failed")
	}
}

// handleCorruption deals with an undecodable tier-2 value. In production
// the poisoned key is dropped and the lookup degrades to a miss; outside
// production it panics so the corruption is caught during development.
func (m *Manager) handleCorruption(ctx context.Context, key models.FingerprintKey, err error) {
	if !m.production {
		panic(fmt.Sprintf("corrupt cache entry %s: %v", key, err))
	}
	metrics.CacheEvictions.WithLabelValues("corrupt").Inc()
	logging.Error().Err(err).Str("key", string(key)).Msg("corrupt tier-2 entry dropped")
	if delErr := m.tier2.Delete(ctx, string(key)); delErr != nil {
		logging.Warn().Err(delErr).Str("key", string(key)).Msg("failed to delete corrupt entry")
	}
}

// Store writes an outcome through both tiers. proximity weights the
// tier-1 eviction score. A tier-2 write failure is logged and counted but
// never returned: the recognition already succeeded.
func (m *Manager) Store(ctx context.Context, key models.FingerprintKey, outcome models.RecognitionOutcome, proximity float64) {
	raw, err := json.Marshal(tier2Entry{Outcome: outcome})
	if err != nil {
		logging.Error().Err(err).Str("key", string(key)).Msg("failed to encode outcome for cache")
		return
	}

	m.tier1.Set(key, outcome, int64(len(raw)), proximity)

	if m.tier2 == nil {
		return
	}
	if err := m.tier2.Set(ctx, string(key), raw, m.cfg.Tier2.TTL); err != nil {
		metrics.Tier2Errors.WithLabelValues("set").Inc()
		logging.Warn().Err(err).Str("key", string(key)).Msg("tier-2 write-through failed")
	}
}

// MarkPopular raises the eviction-score weight of cached keys that proved
// popular (high-confidence recognitions).
func (m *Manager) MarkPopular(keys ...models.FingerprintKey) {
	m.tier1.MarkPopular(keys...)
}

// SweepExpired removes expired tier-1 entries and returns the count.
func (m *Manager) SweepExpired() int {
	return m.tier1.RemoveExpired()
}

// Entries returns the current tier-1 entry count.
func (m *Manager) Entries() int {
	return m.tier1.Len()
}

// Ready reports whether the configured tier-2 backend is reachable. With
// tier 2 disabled the cache is always ready.
func (m *Manager) Ready(ctx context.Context) error {
	if m.tier2 == nil {
		return nil
	}
	return m.tier2.Ping(ctx)
}

// Close releases tier-2 resources.
func (m *Manager) Close() error {
	if m.tier2 == nil {
		return nil
	}
	return m.tier2.Close()
}
