// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package fingerprint

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gomuseum/gateway/internal/models"
)

// fakeImage builds a payload with the given header padded to a usable size.
func fakeImage(header []byte, fill byte, size int) []byte {
	img := make([]byte, size)
	copy(img, header)
	for i := len(header); i < size; i++ {
		img[i] = fill
	}
	return img
}

func jpegImage(fill byte) []byte {
	return fakeImage([]byte{0xFF, 0xD8, 0xFF, 0xE0}, fill, 64)
}

func webpImage() []byte {
	header := append([]byte("RIFF"), 0x24, 0x00, 0x00, 0x00)
	header = append(header, []byte("WEBP")...)
	return fakeImage(header, 0xAB, 64)
}

func TestExtractDeterministic(t *testing.T) {
	t.Parallel()

	img := jpegImage(0x11)
	key1, err := Extract(img, 0)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	key2, err := Extract(bytes.Clone(img), 0)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	if key1 != key2 {
		t.Errorf("identical payloads produced different keys: %s vs %s", key1, key2)
	}
	if len(key1) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(key1))
	}
}

func TestExtractDistinguishesPayloads(t *testing.T) {
	t.Parallel()

	key1, err := Extract(jpegImage(0x11), 0)
	if err != nil {
		t.Fatal(err)
	}
	key2, err := Extract(jpegImage(0x22), 0)
	if err != nil {
		t.Fatal(err)
	}

	if key1 == key2 {
		t.Error("different payloads produced the same key")
	}
}

func TestExtractRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		image    []byte
		maxBytes int64
	}{
		{name: "empty", image: nil},
		{name: "too small", image: []byte{0xFF, 0xD8, 0xFF}},
		{name: "unknown format", image: fakeImage([]byte("BMPX"), 0x00, 64)},
		{name: "oversized", image: jpegImage(0x11), maxBytes: 16},
		{name: "riff without webp marker", image: fakeImage([]byte("RIFFxxxxWAVE"), 0x00, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Extract(tt.image, tt.maxBytes)
			if !errors.Is(err, models.ErrInvalidInput) {
				t.Errorf("Extract() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		image      []byte
		wantFormat string
		wantOK     bool
	}{
		{"jpeg", jpegImage(0x00), "jpeg", true},
		{"png", fakeImage([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, 0, 64), "png", true},
		{"gif87a", fakeImage([]byte("GIF87a"), 0, 64), "gif", true},
		{"gif89a", fakeImage([]byte("GIF89a"), 0, 64), "gif", true},
		{"webp", webpImage(), "webp", true},
		{"garbage", fakeImage([]byte("notanimage"), 0, 64), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			format, ok := DetectFormat(tt.image)
			if format != tt.wantFormat || ok != tt.wantOK {
				t.Errorf("DetectFormat() = (%q, %v), want (%q, %v)", format, ok, tt.wantFormat, tt.wantOK)
			}
		})
	}
}
