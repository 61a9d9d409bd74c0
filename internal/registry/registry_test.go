// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gomuseum/gateway/internal/models"
)

func testDescriptor(id string, enabled bool) models.ModelDescriptor {
	return models.ModelDescriptor{
		ID:                id,
		ProviderName:      "test",
		CostPerCall:       0.01,
		AccuracyScore:     0.9,
		BaselineLatencyMs: 100,
		Enabled:           enabled,
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	t.Parallel()

	r := New()
	if err := r.Register(testDescriptor("m1", true), &StaticAdapter{}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	desc, adapter, ok := r.Get("m1")
	if !ok || adapter == nil {
		t.Fatal("Get() did not return the registered model")
	}
	if !desc.Enabled {
		t.Error("descriptor should be enabled")
	}

	if _, _, ok := r.Get("missing"); ok {
		t.Error("Get() returned a hit for an unknown model")
	}
}

func TestRegistryRejectsDuplicatesAndBadInput(t *testing.T) {
	t.Parallel()

	r := New()
	if err := r.Register(testDescriptor("m1", true), &StaticAdapter{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(testDescriptor("m1", true), &StaticAdapter{}); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := r.Register(testDescriptor("", true), &StaticAdapter{}); err == nil {
		t.Error("empty ID should fail")
	}
	if err := r.Register(testDescriptor("m2", true), nil); err == nil {
		t.Error("nil adapter should fail")
	}
}

func TestRegistrySetEnabled(t *testing.T) {
	t.Parallel()

	r := New()
	if err := r.Register(testDescriptor("m1", true), &StaticAdapter{}); err != nil {
		t.Fatal(err)
	}

	if !r.SetEnabled("m1", false) {
		t.Fatal("SetEnabled() returned false for known model")
	}
	if r.IsEnabled("m1") {
		t.Error("model still enabled after SetEnabled(false)")
	}
	if desc, _, _ := r.Get("m1"); desc.Enabled {
		t.Error("Get() descriptor does not reflect disabled state")
	}

	r.SetEnabled("m1", true)
	if !r.IsEnabled("m1") {
		t.Error("model not re-enabled")
	}

	if r.SetEnabled("missing", true) {
		t.Error("SetEnabled() returned true for unknown model")
	}
}

func TestRegistryListOrder(t *testing.T) {
	t.Parallel()

	r := New()
	for _, id := range []string{"gamma", "alpha", "beta"} {
		if err := r.Register(testDescriptor(id, true), &StaticAdapter{}); err != nil {
			t.Fatal(err)
		}
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List() returned %d models, want 3", len(list))
	}
	for i, want := range []string{"gamma", "alpha", "beta"} {
		if list[i].ID != want {
			t.Errorf("List()[%d].ID = %q, want %q (registration order)", i, list[i].ID, want)
		}
	}
}

func TestHTTPAdapterInvoke(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want Bearer secret", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"artwork_id":"starry-night","name":"The Starry Night","artist":"Vincent van Gogh","confidence":0.97}]}`))
	}))
	defer srv.Close()

	a := NewHTTPAdapter("m1", srv.URL, "secret", srv.Client())
	candidates, err := a.Invoke(context.Background(), []byte{0xFF, 0xD8, 0xFF}, "en")
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ArtworkID != "starry-night" {
		t.Errorf("candidates = %+v", candidates)
	}
	if candidates[0].Confidence != 0.97 {
		t.Errorf("Confidence = %v, want 0.97", candidates[0].Confidence)
	}
}

func TestHTTPAdapterErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewHTTPAdapter("m1", srv.URL, "", srv.Client())
	_, err := a.Invoke(context.Background(), []byte{0x01}, "")
	if !errors.Is(err, models.ErrModelError) {
		t.Errorf("Invoke() error = %v, want ErrModelError", err)
	}
}

func TestHTTPAdapterTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	a := NewHTTPAdapter("m1", srv.URL, "", srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Invoke(ctx, []byte{0x01}, "")
	if !errors.Is(err, models.ErrModelTimeout) {
		t.Errorf("Invoke() error = %v, want ErrModelTimeout", err)
	}
}

func TestStaticAdapterTimeout(t *testing.T) {
	t.Parallel()

	a := &StaticAdapter{Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Invoke(ctx, nil, "")
	if !errors.Is(err, models.ErrModelTimeout) {
		t.Errorf("Invoke() error = %v, want ErrModelTimeout", err)
	}
}
