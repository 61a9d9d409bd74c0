// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/models"
)

// QuotaService gates recognition requests per user. Check runs before any
// work is done; Commit runs only after a successful, uncached
// recognition, so cache hits and degraded responses never consume quota.
type QuotaService interface {
	Check(ctx context.Context, userID string) error
	Commit(ctx context.Context, userID string) error
}

// UnlimitedQuota admits everything. Used when quota enforcement is
// disabled in configuration.
type UnlimitedQuota struct{}

func (UnlimitedQuota) Check(context.Context, string) error  { return nil }
func (UnlimitedQuota) Commit(context.Context, string) error { return nil }

// MemoryQuota enforces a free monthly allowance per user with in-process
// counters. Counters reset when the calendar month changes.
type MemoryQuota struct {
	freePerMonth int

	mu     sync.Mutex
	month  string
	counts map[string]int

	// now is replaceable in tests.
	now func() time.Time
}

// NewMemoryQuota creates a quota service with the configured allowance.
func NewMemoryQuota(cfg config.QuotaConfig) *MemoryQuota {
	return &MemoryQuota{
		freePerMonth: cfg.FreePerMonth,
		counts:       make(map[string]int),
		now:          time.Now,
	}
}

// rollover resets counters on month change. Called with mu held.
func (q *MemoryQuota) rollover() {
	month := q.now().Format("2006-01")
	if month != q.month {
		q.month = month
		q.counts = make(map[string]int)
	}
}

// Check returns models.ErrQuotaExceeded when the user's allowance for the
// current month is spent. Anonymous requests (empty userID) share one
// bucket.
func (q *MemoryQuota) Check(_ context.Context, userID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()

	if q.counts[userID] >= q.freePerMonth {
		return fmt.Errorf("%w: %d recognitions this month", models.ErrQuotaExceeded, q.counts[userID])
	}
	return nil
}

// Commit consumes one unit of the user's allowance.
func (q *MemoryQuota) Commit(_ context.Context, userID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	q.counts[userID]++
	return nil
}
