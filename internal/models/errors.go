// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package models

import "errors"

// Gateway error taxonomy. Only ErrInvalidInput, ErrNoEligibleModel and
// ErrQuotaExceeded are surfaced to callers; the rest degrade to a
// best-effort outcome inside the pipeline.
var (
	// ErrInvalidInput indicates a malformed or oversized image, rejected
	// before entering the pipeline. Never retried.
	ErrInvalidInput = errors.New("invalid input image")

	// ErrCacheUnavailable indicates the distributed cache tier could not
	// be reached. Non-fatal: treated as a cache miss.
	ErrCacheUnavailable = errors.New("cache tier unavailable")

	// ErrModelTimeout indicates a single attempt exceeded its sub-deadline.
	ErrModelTimeout = errors.New("model attempt timed out")

	// ErrModelError indicates a provider returned a failure for one attempt.
	ErrModelError = errors.New("model attempt failed")

	// ErrNoEligibleModel indicates the constraint filter eliminated every
	// registered descriptor. A configuration error, not transient.
	ErrNoEligibleModel = errors.New("no eligible model for request")

	// ErrAllModelsExhausted is terminal for a request: every candidate
	// failed or the deadline budget ran out. Mapped to a degraded outcome.
	ErrAllModelsExhausted = errors.New("all models exhausted")

	// ErrQuotaExceeded indicates the caller has no recognition quota left.
	// Raised by the external quota service before the pipeline runs.
	ErrQuotaExceeded = errors.New("recognition quota exceeded")
)
