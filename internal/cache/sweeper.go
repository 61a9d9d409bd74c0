// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package cache

import (
	"context"
	"time"

	"github.com/gomuseum/gateway/internal/logging"
)

// Sweeper periodically removes expired tier-1 entries. It implements
// suture.Service so the supervision tree restarts it if it ever fails.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
}

// NewSweeper creates a sweeper over the given manager.
func NewSweeper(manager *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{manager: manager, interval: interval}
}

// String identifies the service in supervisor logs.
func (s *Sweeper) String() string {
	return "cache-sweeper"
}

// Serve runs the sweep loop until the context is canceled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := s.manager.SweepExpired(); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("swept expired cache entries")
			}
		}
	}
}
