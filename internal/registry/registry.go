// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package registry holds the set of recognition models the gateway can
// invoke, each pairing a descriptor (cost, accuracy, latency profile)
// with an adapter that performs the actual call.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gomuseum/gateway/internal/metrics"
	"github.com/gomuseum/gateway/internal/models"
)

// Adapter invokes one recognition model. Implementations must honor the
// context deadline and return models.ErrModelTimeout or
// models.ErrModelError so the orchestrator can classify the failure.
type Adapter interface {
	Invoke(ctx context.Context, image []byte, languageHint string) ([]models.Candidate, error)
}

// registered pairs a descriptor with its adapter. enabled is toggled at
// runtime by the health monitor without taking the registry lock.
type registered struct {
	descriptor models.ModelDescriptor
	adapter    Adapter
	enabled    atomic.Bool
}

// Registry is the concurrent-safe model catalog. Registration happens at
// startup; lookups and enable toggles happen on the request path.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*registered
	order []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*registered)}
}

// Register adds a model. Registering a duplicate ID is an error.
func (r *Registry) Register(desc models.ModelDescriptor, adapter Adapter) error {
	if desc.ID == "" {
		return fmt.Errorf("model descriptor requires an ID")
	}
	if adapter == nil {
		return fmt.Errorf("model %s requires an adapter", desc.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[desc.ID]; exists {
		return fmt.Errorf("model %s already registered", desc.ID)
	}

	reg := &registered{descriptor: desc, adapter: adapter}
	reg.enabled.Store(desc.Enabled)
	r.byID[desc.ID] = reg
	r.order = append(r.order, desc.ID)

	healthVal := 0.0
	if desc.Enabled {
		healthVal = 1.0
	}
	metrics.ModelHealthy.WithLabelValues(desc.ID).Set(healthVal)
	return nil
}

// Get returns the descriptor and adapter for id. The returned descriptor
// reflects the current enabled state.
func (r *Registry) Get(id string) (models.ModelDescriptor, Adapter, bool) {
	r.mu.RLock()
	reg, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return models.ModelDescriptor{}, nil, false
	}
	desc := reg.descriptor
	desc.Enabled = reg.enabled.Load()
	return desc, reg.adapter, true
}

// List returns every registered descriptor in registration order, with
// current enabled state applied.
func (r *Registry) List() []models.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ModelDescriptor, 0, len(r.order))
	for _, id := range r.order {
		reg := r.byID[id]
		desc := reg.descriptor
		desc.Enabled = reg.enabled.Load()
		out = append(out, desc)
	}
	return out
}

// SetEnabled flips a model's availability. Returns false for unknown IDs.
// The health monitor uses this to disable failing models and re-enable
// them after a successful probe.
func (r *Registry) SetEnabled(id string, enabled bool) bool {
	r.mu.RLock()
	reg, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	reg.enabled.Store(enabled)

	healthVal := 0.0
	if enabled {
		healthVal = 1.0
	}
	metrics.ModelHealthy.WithLabelValues(id).Set(healthVal)
	return true
}

// IsEnabled reports a model's current availability.
func (r *Registry) IsEnabled(id string) bool {
	r.mu.RLock()
	reg, ok := r.byID[id]
	r.mu.RUnlock()
	return ok && reg.enabled.Load()
}
