// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gomuseum/gateway/internal/config"
)

// ErrNotFound is returned by Store.Get when the key is absent. Tier-2
// backends translate their own miss sentinel into this one.
var ErrNotFound = errors.New("cache: key not found")

// Store is the tier-2 cache backend. Implementations must be safe for
// concurrent use. Values are opaque serialized outcomes; the Manager owns
// the encoding.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// NewStore builds the tier-2 store selected by configuration. The "none"
// backend returns a nil Store; callers treat a nil store as tier 2
// disabled.
func NewStore(cfg config.Tier2Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "redis":
		return newRedisStore(cfg)
	case "badger":
		return newBadgerStore(cfg)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
