// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package fallback runs the deadline-bounded attempt chain over the
// selector's ranked candidates. Each attempt gets a sub-deadline derived
// from the model's latency profile and the remaining budget; a request
// either succeeds with the first model that answers or degrades once the
// chain is exhausted.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"

	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/logging"
	"github.com/gomuseum/gateway/internal/metrics"
	"github.com/gomuseum/gateway/internal/models"
	"github.com/gomuseum/gateway/internal/registry"
)

// AttemptRecorder receives the outcome of every model attempt. The stats
// monitor implements it; tests substitute fakes.
type AttemptRecorder interface {
	Record(rec models.AttemptRecord)
	AllowProbe(modelID string) bool
}

// Orchestrator executes the fallback chain. Safe for concurrent use; the
// semaphore bounds concurrent outbound model calls across all requests.
type Orchestrator struct {
	cfg      config.FallbackConfig
	reg      *registry.Registry
	recorder AttemptRecorder
	breakers *breakerSet
	pacers   *pacerSet
	sem      *semaphore.Weighted

	// now is replaceable in tests.
	now func() time.Time
}

// New creates the orchestrator. recorder may be nil when no stats
// tracking is wanted (probe candidates are then skipped entirely).
func New(cfg config.FallbackConfig, reg *registry.Registry, recorder AttemptRecorder) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		reg:      reg,
		recorder: recorder,
		breakers: newBreakerSet(cfg),
		pacers:   newPacerSet(cfg.ProviderRPS, cfg.ProviderBurst),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		now:      time.Now,
	}
}

// Execute walks the ranked candidates sequentially until one succeeds or
// the chain is exhausted. The total budget is the smaller of the
// configured budget and any deadline already on ctx.
//
// On exhaustion it returns a degraded outcome together with
// models.ErrAllModelsExhausted; callers decide whether to surface the
// degraded payload or the error.
func (o *Orchestrator) Execute(ctx context.Context, image []byte, languageHint string, ranked models.SelectionResult) (models.RecognitionOutcome, error) {
	started := o.now()
	deadline := started.Add(o.cfg.TotalBudget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	maxAttempts := o.cfg.MaxAttempts
	if maxAttempts <= 0 || maxAttempts > len(ranked) {
		maxAttempts = len(ranked)
	}

	attempts := 0
	for _, cand := range ranked[:maxAttempts] {
		if err := ctx.Err(); err != nil {
			break
		}
		remaining := time.Until(deadline)
		if remaining < o.cfg.MinSubDeadline {
			logging.Debug().
				Dur("remaining", remaining).
				Msg("budget below minimum sub-deadline, stopping fallback chain")
			break
		}

		desc := cand.Descriptor
		if !desc.Enabled {
			// Disabled candidates reach the orchestrator only as probe
			// material; claim the single probe slot or skip.
			if o.recorder == nil || !o.recorder.AllowProbe(desc.ID) {
				continue
			}
		}

		attempts++
		candidates, outcome := o.attempt(ctx, desc, image, languageHint, remaining)
		if outcome == models.OutcomeSuccess {
			metrics.FallbackDepth.Observe(float64(attempts))
			sort.SliceStable(candidates, func(i, j int) bool {
				return candidates[i].Confidence > candidates[j].Confidence
			})
			return models.RecognitionOutcome{
				Candidates:       candidates,
				ProcessingTimeMs: o.now().Sub(started).Milliseconds(),
				ModelUsed:        desc.ID,
			}, nil
		}
	}

	metrics.FallbackDepth.Observe(float64(attempts))
	metrics.DegradedResponses.Inc()
	return models.RecognitionOutcome{
		ProcessingTimeMs: o.now().Sub(started).Milliseconds(),
		Degraded:         true,
	}, fmt.Errorf("%w: %d attempts", models.ErrAllModelsExhausted, attempts)
}

// attempt runs one model with its sub-deadline and records the outcome.
func (o *Orchestrator) attempt(ctx context.Context, desc models.ModelDescriptor, image []byte, languageHint string, remaining time.Duration) ([]models.Candidate, models.AttemptOutcome) {
	sub := o.subDeadline(desc, remaining)
	attemptStart := o.now()

	// Admission waits burn budget: the semaphore context carries the
	// attempt's sub-deadline so a saturated gateway times the attempt
	// out instead of queueing past the user's deadline.
	semCtx, semCancel := context.WithTimeout(ctx, sub)
	defer semCancel()
	if err := o.sem.Acquire(semCtx, 1); err != nil {
		o.record(desc.ID, attemptStart, models.OutcomeTimeout)
		return nil, models.OutcomeTimeout
	}
	defer o.sem.Release(1)

	attemptCtx, cancel := context.WithDeadline(ctx, attemptStart.Add(sub))
	defer cancel()

	// Outbound pacing shares the attempt deadline with the call itself.
	if err := o.pacers.wait(attemptCtx, desc.ProviderName); err != nil {
		o.record(desc.ID, attemptStart, models.OutcomeTimeout)
		return nil, models.OutcomeTimeout
	}

	_, adapter, ok := o.reg.Get(desc.ID)
	if !ok {
		o.record(desc.ID, attemptStart, models.OutcomeError)
		return nil, models.OutcomeError
	}

	candidates, err := o.invokeWithRetry(attemptCtx, desc, adapter, image, languageHint)
	outcome := classify(err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Breaker rejections never reached the provider; count them but
		// keep them out of the health window.
		metrics.ModelAttempts.WithLabelValues(desc.ID, "rejected").Inc()
		return nil, models.OutcomeError
	}

	o.record(desc.ID, attemptStart, outcome)
	return candidates, outcome
}

// subDeadline computes the attempt budget:
//
//	min(baseline * safetyFactor, remaining), floored at MinSubDeadline.
//
// Callers guarantee remaining >= MinSubDeadline, so the floor only lifts
// deadlines for models with very low baselines.
func (o *Orchestrator) subDeadline(desc models.ModelDescriptor, remaining time.Duration) time.Duration {
	sub := time.Duration(float64(desc.BaselineLatencyMs)*o.cfg.SafetyFactor) * time.Millisecond
	if desc.Timeout > 0 && desc.Timeout < sub {
		sub = desc.Timeout
	}
	if sub > remaining {
		sub = remaining
	}
	if sub < o.cfg.MinSubDeadline {
		sub = o.cfg.MinSubDeadline
	}
	return sub
}

// invokeWithRetry calls the model through its provider breaker, retrying
// transient errors with exponential backoff and jitter while the attempt
// deadline allows. Timeouts are not retried: the sub-deadline is spent.
func (o *Orchestrator) invokeWithRetry(ctx context.Context, desc models.ModelDescriptor, adapter registry.Adapter, image []byte, languageHint string) ([]models.Candidate, error) {
	cb := o.breakers.forProvider(desc.ProviderName)

	var lastErr error
	for attempt := 0; attempt <= o.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			if !o.sleepBackoff(ctx, attempt) {
				return nil, lastErr
			}
		}

		candidates, err := cb.Execute(func() ([]models.Candidate, error) {
			return adapter.Invoke(ctx, image, languageHint)
		})
		if err == nil {
			return candidates, nil
		}
		lastErr = err

		// Only transient provider errors are worth a retry.
		if !errors.Is(err, models.ErrModelError) {
			return nil, err
		}
	}
	return nil, lastErr
}

// sleepBackoff waits base * 2^(attempt-1) with +/-10% jitter, or returns
// false if the context expires first.
func (o *Orchestrator) sleepBackoff(ctx context.Context, attempt int) bool {
	backoff := o.cfg.RetryBaseDelay << uint(attempt-1)
	jitter := 1 + (rand.Float64()*0.2 - 0.1)
	delay := time.Duration(float64(backoff) * jitter)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (o *Orchestrator) record(modelID string, startedAt time.Time, outcome models.AttemptOutcome) {
	if o.recorder == nil {
		return
	}
	o.recorder.Record(models.AttemptRecord{
		ModelID:   modelID,
		StartedAt: startedAt,
		Outcome:   outcome,
		LatencyMs: o.now().Sub(startedAt).Milliseconds(),
	})
}

// classify maps an invocation error to an attempt outcome.
func classify(err error) models.AttemptOutcome {
	switch {
	case err == nil:
		return models.OutcomeSuccess
	case errors.Is(err, models.ErrModelTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return models.OutcomeTimeout
	default:
		return models.OutcomeError
	}
}
