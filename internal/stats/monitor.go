// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package stats tracks per-model attempt outcomes and drives the health
// monitor: models whose recent failure rate crosses the threshold are
// disabled in the registry, then re-admitted through a single half-open
// probe after the cooldown.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/logging"
	"github.com/gomuseum/gateway/internal/metrics"
	"github.com/gomuseum/gateway/internal/models"
	"github.com/gomuseum/gateway/internal/registry"
)

// Monitor folds attempt records into per-model statistics and toggles
// model availability in the registry. All methods are safe for
// concurrent use.
type Monitor struct {
	cfg config.StatsConfig
	reg *registry.Registry

	mu     sync.Mutex
	states map[string]*modelState

	// now is replaceable in tests.
	now func() time.Time
}

// modelState is the mutable health record for one model. Guarded by
// Monitor.mu.
type modelState struct {
	// window is a ring buffer of recent attempt results (true=success).
	window []bool
	next   int
	filled int

	total    int64
	success  int64
	timeouts int64
	errors   int64
	ewmaMs   float64

	disabled   bool
	disabledAt time.Time
	probing    bool
}

// NewMonitor creates a monitor bound to the registry it manages.
func NewMonitor(cfg config.StatsConfig, reg *registry.Registry) *Monitor {
	return &Monitor{
		cfg:    cfg,
		reg:    reg,
		states: make(map[string]*modelState),
		now:    time.Now,
	}
}

func (m *Monitor) state(modelID string) *modelState {
	s, ok := m.states[modelID]
	if !ok {
		s = &modelState{window: make([]bool, m.cfg.WindowSize)}
		m.states[modelID] = s
	}
	return s
}

// Record folds one attempt into the model's statistics and re-evaluates
// its health. Latency feeds the EWMA only on success: timeout latencies
// measure the deadline, not the model.
func (m *Monitor) Record(rec models.AttemptRecord) {
	metrics.ModelAttempts.WithLabelValues(rec.ModelID, string(rec.Outcome)).Inc()
	metrics.ModelLatency.WithLabelValues(rec.ModelID).Observe(float64(rec.LatencyMs) / 1000)

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(rec.ModelID)
	success := rec.Outcome == models.OutcomeSuccess

	s.total++
	switch rec.Outcome {
	case models.OutcomeSuccess:
		s.success++
	case models.OutcomeTimeout:
		s.timeouts++
	case models.OutcomeError:
		s.errors++
	}

	if success {
		if s.ewmaMs == 0 {
			s.ewmaMs = float64(rec.LatencyMs)
		} else {
			alpha := m.cfg.EWMAAlpha
			s.ewmaMs = alpha*float64(rec.LatencyMs) + (1-alpha)*s.ewmaMs
		}
	}

	s.window[s.next] = success
	s.next = (s.next + 1) % len(s.window)
	if s.filled < len(s.window) {
		s.filled++
	}

	if s.probing {
		s.probing = false
		if success {
			m.enableLocked(rec.ModelID, s)
		} else {
			// Failed probe restarts the cooldown clock.
			s.disabledAt = m.now()
			logging.Warn().Str("model", rec.ModelID).Msg("half-open probe failed, cooldown restarted")
		}
		return
	}

	if !s.disabled && s.filled == len(s.window) && s.windowFailureRate() >= m.cfg.FailureThreshold {
		m.disableLocked(rec.ModelID, s)
	}
}

// windowFailureRate returns the failure ratio over the filled window.
func (s *modelState) windowFailureRate() float64 {
	if s.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < s.filled; i++ {
		if !s.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(s.filled)
}

func (m *Monitor) disableLocked(modelID string, s *modelState) {
	s.disabled = true
	s.disabledAt = m.now()
	m.reg.SetEnabled(modelID, false)
	logging.Warn().
		Str("model", modelID).
		Float64("failure_rate", s.windowFailureRate()).
		Msg("model disabled by health monitor")
}

func (m *Monitor) enableLocked(modelID string, s *modelState) {
	s.disabled = false
	s.probing = false
	// Reset the window so stale failures cannot immediately re-trip.
	for i := range s.window {
		s.window[i] = false
	}
	s.next = 0
	s.filled = 0
	m.reg.SetEnabled(modelID, true)
	logging.Info().Str("model", modelID).Msg("model re-enabled after successful probe")
}

// ProbeEligible reports whether a disabled model's cooldown has elapsed
// and no probe is in flight. Unlike AllowProbe this does not consume the
// probe slot, so the selector can rank the model as a candidate without
// committing to an attempt.
func (m *Monitor) ProbeEligible(modelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[modelID]
	if !ok || !s.disabled || s.probing {
		return false
	}
	return m.now().Sub(s.disabledAt) >= m.cfg.Cooldown
}

// AllowProbe reports whether a disabled model is due for its single
// half-open probe. A true return consumes the probe slot: callers must
// follow up with Record for the attempt they make.
func (m *Monitor) AllowProbe(modelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[modelID]
	if !ok || !s.disabled || s.probing {
		return false
	}
	if m.now().Sub(s.disabledAt) < m.cfg.Cooldown {
		return false
	}
	s.probing = true
	return true
}

// IsHealthy reports whether the monitor considers the model usable.
// Unknown models are healthy by default.
func (m *Monitor) IsHealthy(modelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[modelID]
	return !ok || !s.disabled
}

// LatencyEWMA returns the observed smoothed latency in milliseconds. The
// boolean is false until at least one successful attempt was recorded.
func (m *Monitor) LatencyEWMA(modelID string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[modelID]
	if !ok || s.ewmaMs == 0 {
		return 0, false
	}
	return s.ewmaMs, true
}

// Snapshot returns current per-model statistics, sorted by model ID.
func (m *Monitor) Snapshot() []models.ModelStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.ModelStats, 0, len(m.states))
	for id, s := range m.states {
		out = append(out, models.ModelStats{
			ModelID:       id,
			TotalRequests: s.total,
			SuccessCount:  s.success,
			FailureCount:  s.timeouts + s.errors,
			LatencyEWMA:   s.ewmaMs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}
