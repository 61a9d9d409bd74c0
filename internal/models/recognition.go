// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package models defines the shared domain types for the recognition
// gateway: fingerprint keys, model descriptors, selection requests and
// the externally visible recognition outcome.
package models

import (
	"time"
)

// FingerprintKey is a stable content-derived identifier for an image,
// a fixed-length lowercase hex string (sha-256 of the normalized bytes).
// Immutable once produced.
type FingerprintKey string

// String returns the key as a plain string for cache and log use.
func (k FingerprintKey) String() string { return string(k) }

// Strategy is a named ranking policy applied to candidate models.
type Strategy string

// Supported selection strategies.
const (
	StrategyCost     Strategy = "cost"
	StrategyAccuracy Strategy = "accuracy"
	StrategySpeed    Strategy = "speed"
	StrategyBalanced Strategy = "balanced"
)

// Valid reports whether s is one of the supported strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCost, StrategyAccuracy, StrategySpeed, StrategyBalanced:
		return true
	}
	return false
}

// ModelDescriptor describes a registered recognition provider. The static
// fields are loaded once from configuration; Enabled is the only field
// toggled at runtime (by the stats monitor) and must be accessed through
// the registry, never directly.
type ModelDescriptor struct {
	ID                string        `json:"id"`
	ProviderName      string        `json:"provider_name"`
	Endpoint          string        `json:"endpoint,omitempty"`
	CostPerCall       float64       `json:"cost_per_call"`
	AccuracyScore     float64       `json:"accuracy_score"` // in [0,1]
	BaselineLatencyMs int64         `json:"baseline_latency_ms"`
	Timeout           time.Duration `json:"timeout"`
	MaxImageBytes     int64         `json:"max_image_bytes"`
	Enabled           bool          `json:"enabled"`
}

// Constraints narrows the candidate set before strategy scoring.
// Nil pointer fields mean "no constraint".
type Constraints struct {
	MaxCost        *float64 `json:"max_cost,omitempty"`
	MinAccuracy    *float64 `json:"min_accuracy,omitempty"`
	ProviderFilter []string `json:"provider_filter,omitempty"`
}

// SelectionRequest asks the selector for a ranked candidate list.
type SelectionRequest struct {
	Strategy       Strategy    `json:"strategy"`
	Constraints    Constraints `json:"constraints"`
	GlobalDeadline time.Time   `json:"global_deadline"`
}

// RankedModel pairs a descriptor with its computed strategy score.
type RankedModel struct {
	Descriptor ModelDescriptor `json:"descriptor"`
	Score      float64         `json:"score"`
}

// SelectionResult is the ordered candidate list, highest score first.
// It is computed once per request and never restarted.
type SelectionResult []RankedModel

// AttemptOutcome classifies the result of a single fallback attempt.
type AttemptOutcome string

// Attempt outcomes folded into ModelStats.
const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeTimeout AttemptOutcome = "timeout"
	OutcomeError   AttemptOutcome = "error"
)

// AttemptRecord captures one fallback attempt against one model. Records
// are ephemeral: created per attempt and discarded after the stats
// monitor folds them into ModelStats.
type AttemptRecord struct {
	ModelID   string         `json:"model_id"`
	StartedAt time.Time      `json:"started_at"`
	Outcome   AttemptOutcome `json:"outcome"`
	LatencyMs int64          `json:"latency_ms"`
}

// ModelStats is an eventually-consistent snapshot of a model's observed
// behavior. Counters are append-only; LatencyEWMA is overwritten with
// exponential smoothing on every recorded attempt.
type ModelStats struct {
	ModelID       string  `json:"model_id"`
	TotalRequests int64   `json:"total_requests"`
	SuccessCount  int64   `json:"success_count"`
	FailureCount  int64   `json:"failure_count"`
	LatencyEWMA   float64 `json:"latency_ewma_ms"`
}

// FailureRate returns the lifetime failure ratio, 0 when no requests
// have been recorded.
func (s ModelStats) FailureRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.FailureCount) / float64(s.TotalRequests)
}

// Candidate is a single artwork match proposed by a provider.
type Candidate struct {
	ArtworkID   string  `json:"artwork_id"`
	Name        string  `json:"name"`
	Artist      string  `json:"artist,omitempty"`
	Period      string  `json:"period,omitempty"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// RecognitionOutcome is the externally visible result of a Recognize
// call. Candidates are ordered by descending confidence. Immutable once
// constructed.
type RecognitionOutcome struct {
	Candidates       []Candidate `json:"candidates"`
	ProcessingTimeMs int64       `json:"processing_time_ms"`
	Cached           bool        `json:"cached"`
	ModelUsed        string      `json:"model_used,omitempty"`
	Degraded         bool        `json:"degraded,omitempty"`
}

// TopConfidence returns the confidence of the best candidate, 0 when the
// outcome is empty or degraded.
func (o *RecognitionOutcome) TopConfidence() float64 {
	if o == nil || len(o.Candidates) == 0 {
		return 0
	}
	return o.Candidates[0].Confidence
}
