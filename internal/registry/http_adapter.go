// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package registry

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/gomuseum/gateway/internal/models"
)

// maxErrorBodyBytes bounds how much of a provider error response is read
// for the error message.
const maxErrorBodyBytes = 2048

// HTTPAdapter invokes a provider's recognition endpoint over HTTP. The
// request and response shapes follow the provider-neutral JSON contract:
//
//	POST {endpoint}
//	{"image": "<base64>", "language": "en"}
//
//	{"candidates": [{"artwork_id": ..., "name": ..., "confidence": ...}]}
type HTTPAdapter struct {
	endpoint string
	apiKey   string
	modelID  string
	client   *http.Client
}

// NewHTTPAdapter creates an adapter for one provider endpoint. client may
// be shared across adapters; per-attempt deadlines come from the context.
func NewHTTPAdapter(modelID, endpoint, apiKey string, client *http.Client) *HTTPAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAdapter{
		endpoint: endpoint,
		apiKey:   apiKey,
		modelID:  modelID,
		client:   client,
	}
}

type recognizeRequest struct {
	Image    string `json:"image"`
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
}

type recognizeResponse struct {
	Candidates []models.Candidate `json:"candidates"`
}

// Invoke sends the image to the provider and returns its candidates.
// Deadline expiry maps to models.ErrModelTimeout; transport and protocol
// failures map to models.ErrModelError.
func (a *HTTPAdapter) Invoke(ctx context.Context, image []byte, languageHint string) ([]models.Candidate, error) {
	body, err := json.Marshal(recognizeRequest{
		Image:    base64.StdEncoding.EncodeToString(image),
		Language: languageHint,
		Model:    a.modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", models.ErrModelError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", models.ErrModelError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", models.ErrModelTimeout, a.modelID)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrModelError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("%w: %s returned %d: %s", models.ErrModelError, a.modelID, resp.StatusCode, snippet)
	}

	var parsed recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", models.ErrModelError, err)
	}
	return parsed.Candidates, nil
}
