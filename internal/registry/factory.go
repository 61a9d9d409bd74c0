// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package registry

import (
	"fmt"
	"net/http"

	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/models"
)

// BuildFromConfig registers one HTTP adapter per configured model. The
// shared client carries no global timeout; per-attempt deadlines are set
// by the orchestrator through the request context.
func BuildFromConfig(cfgs []config.ModelConfig, client *http.Client) (*Registry, error) {
	if client == nil {
		client = &http.Client{}
	}

	r := New()
	for _, mc := range cfgs {
		desc := models.ModelDescriptor{
			ID:                mc.ID,
			ProviderName:      mc.Provider,
			Endpoint:          mc.Endpoint,
			CostPerCall:       mc.CostPerCall,
			AccuracyScore:     mc.AccuracyScore,
			BaselineLatencyMs: mc.BaselineLatencyMs,
			Timeout:           mc.Timeout,
			MaxImageBytes:     mc.MaxImageBytes,
			Enabled:           mc.Enabled,
		}
		adapter := NewHTTPAdapter(mc.ID, mc.Endpoint, mc.APIKey, client)
		if err := r.Register(desc, adapter); err != nil {
			return nil, fmt.Errorf("registering model %s: %w", mc.ID, err)
		}
	}
	return r, nil
}
