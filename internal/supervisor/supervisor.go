// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package supervisor builds the suture supervision tree for the gateway's
// long-running services: the HTTP server and the cache sweeper. Failed
// services are restarted with suture's default backoff.
package supervisor

import (
	"log/slog"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/gomuseum/gateway/internal/logging"
)

// NewRoot creates the root supervisor with events routed through the
// gateway's structured logger.
func NewRoot(name string) *suture.Supervisor {
	hook := &sutureslog.Handler{
		Logger: slog.New(logging.NewSlogHandler()),
	}
	return suture.New(name, suture.Spec{
		EventHook: hook.MustHook(),
	})
}
