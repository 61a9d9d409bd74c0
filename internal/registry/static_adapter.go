// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package registry

import (
	"context"
	"time"

	"github.com/gomuseum/gateway/internal/models"
)

// StaticAdapter returns fixed candidates after an optional delay. It
// backs local development configurations and tests; a delay longer than
// the attempt deadline exercises the timeout path.
type StaticAdapter struct {
	Candidates []models.Candidate
	Err        error
	Delay      time.Duration
}

// Invoke returns the configured result, honoring context cancellation
// during the delay.
func (a *StaticAdapter) Invoke(ctx context.Context, _ []byte, _ string) ([]models.Candidate, error) {
	if a.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, models.ErrModelTimeout
		case <-time.After(a.Delay):
		}
	}
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Candidates, nil
}
