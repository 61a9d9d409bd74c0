// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gomuseum/gateway/internal/cache"
	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/fallback"
	"github.com/gomuseum/gateway/internal/models"
	"github.com/gomuseum/gateway/internal/registry"
	"github.com/gomuseum/gateway/internal/selector"
	"github.com/gomuseum/gateway/internal/stats"
)

func testConfig() config.Config {
	return config.Config{
		API: config.APIConfig{MaxImageBytes: 1 << 20},
		Cache: config.CacheConfig{
			Tier1: config.Tier1Config{
				MaxEntries:       100,
				BaseTTL:          time.Hour,
				MaxTTL:           4 * time.Hour,
				EvictionFraction: 0.2,
				PopularBoost:     2.0,
			},
		},
		Selector: config.SelectorConfig{
			DefaultStrategy: "balanced",
			AccuracyWeight:  0.4,
			CostWeight:      0.3,
			SpeedWeight:     0.3,
		},
		Fallback: config.FallbackConfig{
			TotalBudget:      time.Second,
			MinSubDeadline:   20 * time.Millisecond,
			SafetyFactor:     2.0,
			MaxAttempts:      3,
			MaxConcurrent:    8,
			BreakerThreshold: 0.9,
			BreakerMinReqs:   100,
			BreakerCooldown:  time.Minute,
		},
		Stats: config.StatsConfig{
			WindowSize:          10,
			FailureThreshold:    0.8,
			Cooldown:            time.Minute,
			EWMAAlpha:           0.2,
			PopularityThreshold: 0.9,
		},
		Quota: config.QuotaConfig{Enabled: false, FreePerMonth: 10},
	}
}

// countingAdapter wraps a static result and counts invocations.
type countingAdapter struct {
	calls      int
	candidates []models.Candidate
	err        error
}

func (a *countingAdapter) Invoke(context.Context, []byte, string) ([]models.Candidate, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.candidates, nil
}

func newTestService(t *testing.T, adapter registry.Adapter, quota QuotaService) *Service {
	t.Helper()

	cfg := testConfig()
	reg := registry.New()
	desc := models.ModelDescriptor{
		ID:                "vision-1",
		ProviderName:      "test",
		CostPerCall:       0.01,
		AccuracyScore:     0.9,
		BaselineLatencyMs: 50,
		Enabled:           true,
	}
	if err := reg.Register(desc, adapter); err != nil {
		t.Fatal(err)
	}

	monitor := stats.NewMonitor(cfg.Stats, reg)
	sel := selector.New(cfg.Selector, reg, monitor)
	chain := fallback.New(cfg.Fallback, reg, monitor)
	cacheMgr := cache.NewManager(cfg.Cache, nil, false)

	return New(cfg, cacheMgr, reg, sel, chain, monitor, quota)
}

// jpegPayload builds a distinct valid-looking JPEG payload per tag.
func jpegPayload(tag byte) []byte {
	img := make([]byte, 64)
	copy(img, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	img[10] = tag
	return img
}

func TestRecognizeSuccessThenCacheHit(t *testing.T) {
	t.Parallel()

	adapter := &countingAdapter{candidates: []models.Candidate{
		{ArtworkID: "starry-night", Name: "The Starry Night", Confidence: 0.95},
	}}
	svc := newTestService(t, adapter, nil)
	ctx := context.Background()

	first, err := svc.Recognize(ctx, Request{Image: jpegPayload(1)})
	if err != nil {
		t.Fatalf("Recognize() error: %v", err)
	}
	if first.Cached {
		t.Error("first call should not be cached")
	}
	if first.ModelUsed != "vision-1" {
		t.Errorf("ModelUsed = %q, want vision-1", first.ModelUsed)
	}

	second, err := svc.Recognize(ctx, Request{Image: jpegPayload(1)})
	if err != nil {
		t.Fatalf("Recognize() error: %v", err)
	}
	if !second.Cached {
		t.Error("second call should be a cache hit")
	}
	if adapter.calls != 1 {
		t.Errorf("adapter called %d times, want 1 (second call cached)", adapter.calls)
	}
	if second.Candidates[0].ArtworkID != "starry-night" {
		t.Errorf("cached candidates = %+v", second.Candidates)
	}
}

func TestRecognizeInvalidImage(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &countingAdapter{}, nil)

	_, err := svc.Recognize(context.Background(), Request{Image: []byte("not an image at all")})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Recognize() error = %v, want ErrInvalidInput", err)
	}
}

func TestRecognizeDegradedNotCached(t *testing.T) {
	t.Parallel()

	adapter := &countingAdapter{err: models.ErrModelError}
	svc := newTestService(t, adapter, nil)
	ctx := context.Background()

	outcome, err := svc.Recognize(ctx, Request{Image: jpegPayload(2)})
	if err != nil {
		t.Fatalf("Recognize() error = %v, degraded outcomes should not error", err)
	}
	if !outcome.Degraded {
		t.Fatal("outcome should be degraded")
	}

	// A degraded outcome must not poison the cache: the next identical
	// request tries the model again.
	_, err = svc.Recognize(ctx, Request{Image: jpegPayload(2)})
	if err != nil {
		t.Fatal(err)
	}
	if adapter.calls < 2 {
		t.Errorf("adapter called %d times, want >= 2 (degraded result cached?)", adapter.calls)
	}
}

func TestRecognizeQuota(t *testing.T) {
	t.Parallel()

	adapter := &countingAdapter{candidates: []models.Candidate{
		{ArtworkID: "guernica", Confidence: 0.9},
	}}
	quota := NewMemoryQuota(config.QuotaConfig{Enabled: true, FreePerMonth: 1})
	svc := newTestService(t, adapter, quota)
	ctx := context.Background()

	// First recognition consumes the single free unit.
	if _, err := svc.Recognize(ctx, Request{Image: jpegPayload(3), UserID: "u1"}); err != nil {
		t.Fatalf("Recognize() error: %v", err)
	}

	// Cache hits are free: repeating the same image succeeds.
	if _, err := svc.Recognize(ctx, Request{Image: jpegPayload(3), UserID: "u1"}); err != nil {
		t.Fatalf("cached Recognize() error: %v", err)
	}

	// A new image is over quota.
	_, err := svc.Recognize(ctx, Request{Image: jpegPayload(4), UserID: "u1"})
	if !errors.Is(err, models.ErrQuotaExceeded) {
		t.Errorf("Recognize() error = %v, want ErrQuotaExceeded", err)
	}

	// Other users are unaffected.
	if _, err := svc.Recognize(ctx, Request{Image: jpegPayload(5), UserID: "u2"}); err != nil {
		t.Errorf("Recognize() for second user error: %v", err)
	}
}

func TestMemoryQuotaMonthlyRollover(t *testing.T) {
	t.Parallel()

	q := NewMemoryQuota(config.QuotaConfig{FreePerMonth: 1})
	clock := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return clock }
	ctx := context.Background()

	if err := q.Check(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := q.Commit(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := q.Check(ctx, "u1"); !errors.Is(err, models.ErrQuotaExceeded) {
		t.Fatalf("Check() = %v, want ErrQuotaExceeded", err)
	}

	// The allowance resets with the calendar month.
	clock = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if err := q.Check(ctx, "u1"); err != nil {
		t.Errorf("Check() after rollover = %v, want nil", err)
	}
}

func TestRankingsAndStats(t *testing.T) {
	t.Parallel()

	adapter := &countingAdapter{candidates: []models.Candidate{
		{ArtworkID: "x", Confidence: 0.8},
	}}
	svc := newTestService(t, adapter, nil)

	ranked, err := svc.Rankings(models.StrategyCost, models.Constraints{})
	if err != nil {
		t.Fatalf("Rankings() error: %v", err)
	}
	if len(ranked) != 1 || ranked[0].Descriptor.ID != "vision-1" {
		t.Errorf("Rankings() = %+v", ranked)
	}

	if _, err := svc.Recognize(context.Background(), Request{Image: jpegPayload(6)}); err != nil {
		t.Fatal(err)
	}
	snap := svc.Stats()
	if len(snap) != 1 || snap[0].SuccessCount != 1 {
		t.Errorf("Stats() = %+v", snap)
	}
	if svc.CacheEntries() != 1 {
		t.Errorf("CacheEntries() = %d, want 1", svc.CacheEntries())
	}
}
