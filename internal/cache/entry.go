// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package cache implements the two-tier scoring cache for recognition
// results. Tier 1 is an in-process sharded map ranked by a composite
// score; tier 2 is a shared store (Redis or Badger) consulted on tier-1
// misses, with hits promoted back into tier 1.
package cache

import (
	"math"
	"time"

	"github.com/gomuseum/gateway/internal/models"
)

// entry is one tier-1 cache record. Fields are mutated only while the
// owning shard's lock is held.
type entry struct {
	outcome    models.RecognitionOutcome
	key        models.FingerprintKey
	createdAt  time.Time
	expiresAt  time.Time
	hitCount   int64
	sizeBytes  int64
	popularity float64 // weight multiplier, raised for popular items
	proximity  float64 // weight multiplier for exhibit proximity
}

// score ranks an entry for eviction. Higher scores survive longer.
//
//	(hits * popularity * proximity) / ((ageHours + 1) * ln(size + 1))
//
// Frequently hit, popular, small, recent entries score highest. The +1
// terms keep brand-new and tiny entries from dividing by zero.
func (e *entry) score(now time.Time) float64 {
	ageHours := now.Sub(e.createdAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	denom := (ageHours + 1) * math.Log(float64(e.sizeBytes)+1)
	if denom <= 0 {
		denom = 1
	}
	hits := float64(e.hitCount)
	if hits < 1 {
		hits = 1
	}
	return hits * e.popularity * e.proximity / denom
}

// expired reports whether the entry's adaptive TTL has lapsed.
func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// maxTTLDoublings bounds adaptive TTL growth so repeated doubling can
// never overflow a time.Duration.
const maxTTLDoublings = 16

// extendTTL doubles base once per recorded hit, capped at max. Both cache
// tiers use it so a hot entry's lifetime grows the same way everywhere.
func extendTTL(base, max time.Duration, hits int64) time.Duration {
	if max <= base {
		return base
	}
	if hits > maxTTLDoublings {
		hits = maxTTLDoublings
	}
	ttl := base
	for i := int64(0); i < hits && ttl < max; i++ {
		ttl *= 2
	}
	if ttl > max {
		ttl = max
	}
	return ttl
}
