// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package api

import (
	"encoding/base64"
	"io"
	"mime"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/gomuseum/gateway/internal/gateway"
	"github.com/gomuseum/gateway/internal/models"
	"github.com/gomuseum/gateway/internal/validation"
)

// handlers bundles the gateway service behind HTTP endpoints.
type handlers struct {
	svc *gateway.Service
}

// recognizeJSONRequest is the application/json request body. Multipart
// uploads carry the same non-image fields as form values.
type recognizeJSONRequest struct {
	Image       string   `json:"image" validate:"required"`
	Strategy    string   `json:"strategy" validate:"omitempty,oneof=cost accuracy speed balanced"`
	Language    string   `json:"language"`
	UserID      string   `json:"user_id"`
	MaxCost     *float64 `json:"max_cost" validate:"omitempty,gte=0"`
	MinAccuracy *float64 `json:"min_accuracy" validate:"omitempty,gte=0,lte=1"`
	Providers   []string `json:"providers"`
	Proximity   float64  `json:"proximity" validate:"omitempty,gte=0"`
}

// recognize handles POST /api/v1/recognize. The image arrives either as
// a multipart file upload (field "image") or base64 inside a JSON body.
func (h *handlers) recognize(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRecognizeRequest(w, r)
	if !ok {
		return
	}

	outcome, err := h.svc.Recognize(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// decodeRecognizeRequest parses either request encoding into a gateway
// request. It writes the error response itself and returns ok=false on
// failure.
func (h *handlers) decodeRecognizeRequest(w http.ResponseWriter, r *http.Request) (gateway.Request, bool) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if contentType == "multipart/form-data" {
		return h.decodeMultipart(w, r)
	}
	return h.decodeJSON(w, r)
}

func (h *handlers) decodeMultipart(w http.ResponseWriter, r *http.Request) (gateway.Request, bool) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed multipart body")
		return gateway.Request{}, false
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "missing image file field")
		return gateway.Request{}, false
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "unreadable image upload")
		return gateway.Request{}, false
	}

	req := gateway.Request{
		Image:        image,
		LanguageHint: r.FormValue("language"),
		Strategy:     models.Strategy(r.FormValue("strategy")),
		UserID:       r.FormValue("user_id"),
	}
	if req.Strategy != "" && !req.Strategy.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_input", "unknown strategy "+string(req.Strategy))
		return gateway.Request{}, false
	}
	constraints, ok := parseFormConstraints(w, r)
	if !ok {
		return gateway.Request{}, false
	}
	req.Constraints = constraints
	if v := r.FormValue("proximity"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil && p >= 0 {
			req.Proximity = p
		}
	}
	return req, true
}

func parseFormConstraints(w http.ResponseWriter, r *http.Request) (models.Constraints, bool) {
	var c models.Constraints
	if v := r.FormValue("max_cost"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", "max_cost must be a non-negative number")
			return c, false
		}
		c.MaxCost = &f
	}
	if v := r.FormValue("min_accuracy"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			writeError(w, http.StatusBadRequest, "invalid_input", "min_accuracy must be in [0, 1]")
			return c, false
		}
		c.MinAccuracy = &f
	}
	if providers := r.Form["provider"]; len(providers) > 0 {
		c.ProviderFilter = providers
	}
	return c, true
}

func (h *handlers) decodeJSON(w http.ResponseWriter, r *http.Request) (gateway.Request, bool) {
	var body recognizeJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return gateway.Request{}, false
	}
	if err := validation.ValidateStruct(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return gateway.Request{}, false
	}

	image, err := base64.StdEncoding.DecodeString(body.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "image must be base64-encoded")
		return gateway.Request{}, false
	}

	return gateway.Request{
		Image:        image,
		LanguageHint: body.Language,
		Strategy:     models.Strategy(body.Strategy),
		UserID:       body.UserID,
		Proximity:    body.Proximity,
		Constraints: models.Constraints{
			MaxCost:        body.MaxCost,
			MinAccuracy:    body.MinAccuracy,
			ProviderFilter: body.Providers,
		},
	}, true
}

// listModels handles GET /api/v1/models: the current ranking for the
// requested strategy (default strategy when omitted).
func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	strategy := models.Strategy(r.URL.Query().Get("strategy"))
	if strategy != "" && !strategy.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_input", "unknown strategy "+string(strategy))
		return
	}

	ranked, err := h.svc.Rankings(strategy, models.Constraints{})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": ranked})
}

// getStats handles GET /api/v1/stats.
func (h *handlers) getStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":        h.svc.Stats(),
		"cache_entries": h.svc.CacheEntries(),
	})
}

// live handles GET /health/live.
func (h *handlers) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready handles GET /health/ready: 503 until downstream dependencies
// answer.
func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
