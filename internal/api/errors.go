// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package api exposes the gateway over HTTP: the recognition endpoint,
// model rankings, statistics, health probes, and Prometheus metrics.
package api

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/gomuseum/gateway/internal/logging"
	"github.com/gomuseum/gateway/internal/models"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeJSON serializes v with the proper content type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError emits the standard error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	var resp errorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	writeJSON(w, status, resp)
}

// writeDomainError maps sentinel errors from the pipeline to HTTP status
// codes. Unknown errors become opaque 500s: internals never leak.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, models.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", "monthly recognition quota exceeded")
	case errors.Is(err, models.ErrNoEligibleModel):
		writeError(w, http.StatusServiceUnavailable, "no_eligible_model", "no recognition model satisfies the request constraints")
	case errors.Is(err, models.ErrCacheUnavailable):
		writeError(w, http.StatusServiceUnavailable, "cache_unavailable", "result cache is unavailable")
	default:
		logging.Error().Err(err).Msg("unhandled recognition error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
