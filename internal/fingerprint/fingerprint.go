// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package fingerprint derives stable cache keys from image bytes.
//
// Two byte-identical uploads always produce the same fingerprint, so the
// scoring cache can serve repeat recognitions without invoking a model.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gomuseum/gateway/internal/models"
)

// minImageBytes is the smallest payload that can carry a decodable image
// header. Anything shorter is rejected before hashing.
const minImageBytes = 12

// imageSignature pairs a magic-byte prefix with an optional secondary
// marker at a fixed offset (WebP keeps its format tag at offset 8).
type imageSignature struct {
	format string
	prefix []byte
	at     int
	marker []byte
}

var signatures = []imageSignature{
	{format: "jpeg", prefix: []byte{0xFF, 0xD8, 0xFF}},
	{format: "png", prefix: []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}},
	{format: "gif", prefix: []byte("GIF87a")},
	{format: "gif", prefix: []byte("GIF89a")},
	{format: "webp", prefix: []byte("RIFF"), at: 8, marker: []byte("WEBP")},
}

// Extract validates the payload and returns its fingerprint.
//
// Validation is intentionally shallow: a supported magic-byte prefix and a
// size within maxBytes. Full decode is the model provider's job; the
// gateway only needs to refuse obvious garbage before paying for a model
// call. Returns models.ErrInvalidInput on empty, oversized, or
// unrecognized payloads.
func Extract(image []byte, maxBytes int64) (models.FingerprintKey, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image payload", models.ErrInvalidInput)
	}
	if len(image) < minImageBytes {
		return "", fmt.Errorf("%w: payload too small (%d bytes)", models.ErrInvalidInput, len(image))
	}
	if maxBytes > 0 && int64(len(image)) > maxBytes {
		return "", fmt.Errorf("%w: payload %d bytes exceeds limit %d", models.ErrInvalidInput, len(image), maxBytes)
	}
	if _, ok := DetectFormat(image); !ok {
		return "", fmt.Errorf("%w: unsupported image format", models.ErrInvalidInput)
	}

	sum := sha256.Sum256(image)
	return models.FingerprintKey(hex.EncodeToString(sum[:])), nil
}

// DetectFormat returns the image format name for a supported payload.
func DetectFormat(image []byte) (string, bool) {
	for _, sig := range signatures {
		if !bytes.HasPrefix(image, sig.prefix) {
			continue
		}
		if sig.marker != nil {
			end := sig.at + len(sig.marker)
			if len(image) < end || !bytes.Equal(image[sig.at:end], sig.marker) {
				continue
			}
		}
		return sig.format, true
	}
	return "", false
}
