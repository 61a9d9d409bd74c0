// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gomuseum/gateway/internal/cache"
	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/fallback"
	"github.com/gomuseum/gateway/internal/gateway"
	"github.com/gomuseum/gateway/internal/models"
	"github.com/gomuseum/gateway/internal/registry"
	"github.com/gomuseum/gateway/internal/selector"
	"github.com/gomuseum/gateway/internal/stats"
)

func testAPIConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, Timeout: 5 * time.Second},
		API: config.APIConfig{
			MaxImageBytes:   1 << 20,
			RateLimitReqs:   0, // disabled in tests
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
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
	}
}

func newTestServer(t *testing.T, quota gateway.QuotaService) *httptest.Server {
	t.Helper()

	cfg := testAPIConfig()
	reg := registry.New()
	desc := models.ModelDescriptor{
		ID:                "vision-1",
		ProviderName:      "test",
		CostPerCall:       0.01,
		AccuracyScore:     0.9,
		BaselineLatencyMs: 50,
		Enabled:           true,
	}
	adapter := &registry.StaticAdapter{Candidates: []models.Candidate{
		{ArtworkID: "starry-night", Name: "The Starry Night", Artist: "Vincent van Gogh", Confidence: 0.95},
	}}
	if err := reg.Register(desc, adapter); err != nil {
		t.Fatal(err)
	}

	monitor := stats.NewMonitor(cfg.Stats, reg)
	svc := gateway.New(
		cfg,
		cache.NewManager(cfg.Cache, nil, false),
		reg,
		selector.New(cfg.Selector, reg, monitor),
		fallback.New(cfg.Fallback, reg, monitor),
		monitor,
		quota,
	)

	srv := httptest.NewServer(NewRouter(svc, cfg))
	t.Cleanup(srv.Close)
	return srv
}

func jpegBase64(tag byte) string {
	img := make([]byte, 64)
	copy(img, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	img[10] = tag
	return base64.StdEncoding.EncodeToString(img)
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestRecognizeJSON(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/recognize", map[string]interface{}{
		"image":    jpegBase64(1),
		"strategy": "accuracy",
		"language": "en",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var outcome models.RecognitionOutcome
	decodeBody(t, resp, &outcome)
	if len(outcome.Candidates) != 1 || outcome.Candidates[0].ArtworkID != "starry-night" {
		t.Errorf("outcome = %+v", outcome)
	}
	if outcome.ModelUsed != "vision-1" {
		t.Errorf("ModelUsed = %q", outcome.ModelUsed)
	}
}

func TestRecognizeJSONCachedSecondCall(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	body := map[string]interface{}{"image": jpegBase64(2)}
	resp := postJSON(t, srv.URL+"/api/v1/recognize", body)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/recognize", body)
	var outcome models.RecognitionOutcome
	decodeBody(t, resp, &outcome)
	if !outcome.Cached {
		t.Error("second identical request should be served from cache")
	}
}

func TestRecognizeMultipart(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "artwork.jpg")
	if err != nil {
		t.Fatal(err)
	}
	img := make([]byte, 64)
	copy(img, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	img[10] = 3
	if _, err := fw.Write(img); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("strategy", "speed"); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	resp, err := http.Post(srv.URL+"/api/v1/recognize", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var outcome models.RecognitionOutcome
	decodeBody(t, resp, &outcome)
	if len(outcome.Candidates) == 0 {
		t.Error("multipart recognition returned no candidates")
	}
}

func TestRecognizeBadRequests(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing image", map[string]interface{}{"strategy": "cost"}},
		{"bad base64", map[string]interface{}{"image": "!!not-base64!!"}},
		{"bad strategy", map[string]interface{}{"image": jpegBase64(4), "strategy": "cheapest"}},
		{"not an image", map[string]interface{}{"image": base64.StdEncoding.EncodeToString([]byte("plain text, long enough"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := postJSON(t, srv.URL+"/api/v1/recognize", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestRecognizeQuotaExceeded(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, gateway.NewMemoryQuota(config.QuotaConfig{Enabled: true, FreePerMonth: 0}))

	resp := postJSON(t, srv.URL+"/api/v1/recognize", map[string]interface{}{
		"image":   jpegBase64(5),
		"user_id": "visitor-1",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
}

func TestRecognizeNoEligibleModel(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/recognize", map[string]interface{}{
		"image":    jpegBase64(6),
		"max_cost": 0.000001,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestListModels(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/v1/models?strategy=cost")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Models []models.RankedModel `json:"models"`
	}
	decodeBody(t, resp, &body)
	if len(body.Models) != 1 || body.Models[0].Descriptor.ID != "vision-1" {
		t.Errorf("models = %+v", body.Models)
	}

	resp, err = http.Get(srv.URL + "/api/v1/models?strategy=bogus")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus strategy status = %d, want 400", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	// Generate one recognition so the stats are non-empty.
	resp := postJSON(t, srv.URL+"/api/v1/recognize", map[string]interface{}{"image": jpegBase64(7)})
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Models       []models.ModelStats `json:"models"`
		CacheEntries int                 `json:"cache_entries"`
	}
	decodeBody(t, resp, &body)
	if len(body.Models) != 1 || body.Models[0].SuccessCount != 1 {
		t.Errorf("stats models = %+v", body.Models)
	}
	if body.CacheEntries != 1 {
		t.Errorf("cache_entries = %d, want 1", body.CacheEntries)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestRequestIDEchoed(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/health/live", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(requestIDHeader); got != "req-42" {
		t.Errorf("echoed request ID = %q, want req-42", got)
	}

	// A missing ID is generated server-side.
	resp2, err := http.Get(srv.URL + "/health/live")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.Header.Get(requestIDHeader) == "" {
		t.Error("server did not assign a request ID")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "gomuseum_") {
		t.Error("metrics output missing gateway collectors")
	}
}
