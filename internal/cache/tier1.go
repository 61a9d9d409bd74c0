// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package cache

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/metrics"
	"github.com/gomuseum/gateway/internal/models"
)

// shardCount is fixed at a power of two so shard selection reduces to a
// cheap mask over the key hash.
const shardCount = 16

// Tier1 is the in-process scored cache tier. Entries compete on a
// composite score; when capacity is exceeded, the lowest-scoring fraction
// is evicted in a single batch pass.
type Tier1 struct {
	cfg    config.Tier1Config
	shards [shardCount]*tier1Shard

	// now is replaceable in tests.
	now func() time.Time

	// evictMu serializes batch evictions; per-shard locks still guard
	// individual entry access.
	evictMu sync.Mutex

	mu         sync.Mutex // guards counters below
	entryCount int
	byteCount  int64
}

type tier1Shard struct {
	mu      sync.Mutex
	entries map[models.FingerprintKey]*entry
}

// NewTier1 creates the in-process cache tier.
func NewTier1(cfg config.Tier1Config) *Tier1 {
	c := &Tier1{cfg: cfg, now: time.Now}
	for i := range c.shards {
		c.shards[i] = &tier1Shard{entries: make(map[models.FingerprintKey]*entry)}
	}
	return c
}

// shardFor maps a fingerprint to its shard. Keys are hex-encoded, so the
// raw bytes only cover 16 of 256 values; hashing first spreads them over
// every shard.
func (c *Tier1) shardFor(key models.FingerprintKey) *tier1Shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()&(shardCount-1)]
}

// Get returns the cached outcome for key, if present and unexpired. A hit
// bumps the entry's hit count and extends its TTL multiplicatively up to
// the configured ceiling.
func (c *Tier1) Get(key models.FingerprintKey) (models.RecognitionOutcome, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return models.RecognitionOutcome{}, false
	}

	now := c.now()
	if e.expired(now) {
		delete(s.entries, key)
		c.adjustCounts(-1, -e.sizeBytes)
		metrics.CacheEvictions.WithLabelValues("expired").Inc()
		return models.RecognitionOutcome{}, false
	}

	e.hitCount++
	e.expiresAt = now.Add(c.adaptiveTTL(e.hitCount))
	return e.outcome, true
}

// adaptiveTTL doubles the base TTL per hit, capped at MaxTTL. Hot entries
// therefore linger while one-off lookups age out quickly.
func (c *Tier1) adaptiveTTL(hits int64) time.Duration {
	return extendTTL(c.cfg.BaseTTL, c.cfg.MaxTTL, hits)
}

// Set stores an outcome under key. proximity weights the entry's eviction
// score; pass 1.0 when no proximity signal exists. Inserting over capacity
// triggers a batch eviction of the lowest-scoring entries.
func (c *Tier1) Set(key models.FingerprintKey, outcome models.RecognitionOutcome, sizeBytes int64, proximity float64) {
	if proximity <= 0 {
		proximity = 1.0
	}
	now := c.now()

	s := c.shardFor(key)
	s.mu.Lock()
	prev, existed := s.entries[key]
	e := &entry{
		outcome:    outcome,
		key:        key,
		createdAt:  now,
		expiresAt:  now.Add(c.cfg.BaseTTL),
		hitCount:   0,
		sizeBytes:  sizeBytes,
		popularity: 1.0,
		proximity:  proximity,
	}
	if existed {
		// Preserve accumulated heat across refreshes.
		e.hitCount = prev.hitCount
		e.popularity = prev.popularity
	}
	s.entries[key] = e
	s.mu.Unlock()

	if existed {
		c.adjustCounts(0, sizeBytes-prev.sizeBytes)
	} else {
		c.adjustCounts(1, sizeBytes)
	}

	if c.overCapacity() {
		c.evictBatch()
	}
}

// MarkPopular raises the popularity weight of the given keys, shielding
// them from eviction. Keys not currently cached are ignored.
func (c *Tier1) MarkPopular(keys ...models.FingerprintKey) {
	boost := c.cfg.PopularBoost
	if boost <= 1 {
		return
	}
	for _, key := range keys {
		s := c.shardFor(key)
		s.mu.Lock()
		if e, ok := s.entries[key]; ok {
			e.popularity = boost
		}
		s.mu.Unlock()
	}
}

// Delete removes a key from the tier.
func (c *Tier1) Delete(key models.FingerprintKey) {
	s := c.shardFor(key)
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	if ok {
		c.adjustCounts(-1, -e.sizeBytes)
	}
}

// Len returns the current entry count.
func (c *Tier1) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entryCount
}

// Bytes returns the current tracked payload size.
func (c *Tier1) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byteCount
}

// RemoveExpired drops every expired entry. Called periodically by the
// sweeper so idle entries do not linger until their next lookup.
func (c *Tier1) RemoveExpired() int {
	now := c.now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if e.expired(now) {
				delete(s.entries, key)
				c.adjustCounts(-1, -e.sizeBytes)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues("expired").Add(float64(removed))
	}
	return removed
}

func (c *Tier1) adjustCounts(entries int, bytes int64) {
	c.mu.Lock()
	c.entryCount += entries
	c.byteCount += bytes
	count := c.entryCount
	c.mu.Unlock()
	metrics.CacheEntries.Set(float64(count))
}

func (c *Tier1) overCapacity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.MaxEntries > 0 && c.entryCount > c.cfg.MaxEntries {
		return true
	}
	if c.cfg.MaxBytes > 0 && c.byteCount > c.cfg.MaxBytes {
		return true
	}
	return false
}

// evictBatch removes the lowest-scoring fraction of entries in one pass.
// Scoring, sorting, and deletion happen under evictMu so concurrent
// inserts cannot trigger overlapping eviction storms.
func (c *Tier1) evictBatch() {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	if !c.overCapacity() {
		return // another goroutine already evicted
	}

	now := c.now()
	type scored struct {
		key   models.FingerprintKey
		score float64
	}

	var candidates []scored
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			candidates = append(candidates, scored{key: key, score: e.score(now)})
			total++
		}
		s.mu.Unlock()
	}
	if total == 0 {
		return
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].key < candidates[j].key
	})

	// Flooring keeps one pass at or under the configured fraction. When
	// the fraction rounds to zero the pass is a no-op and the tier stays
	// transiently over capacity until entries expire.
	victims := int(float64(total) * c.cfg.EvictionFraction)
	if victims < 1 {
		return
	}

	for _, cand := range candidates[:victims] {
		s := c.shardFor(cand.key)
		s.mu.Lock()
		if e, ok := s.entries[cand.key]; ok {
			delete(s.entries, cand.key)
			c.adjustCounts(-1, -e.sizeBytes)
		}
		s.mu.Unlock()
	}
	metrics.CacheEvictions.WithLabelValues("scored").Add(float64(victims))
}
