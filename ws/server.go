// Package ws is the public entry point for embedding the signaling hub in a
// host process: a thin wrapper over internal/wsconn.
package ws

import (
	"log/slog"
	"net/http"

	"github.com/signalhub/signalhub"
	"github.com/signalhub/signalhub/internal/config"
	"github.com/signalhub/signalhub/internal/wsconn"
)

// CheckOriginFn validates the Origin header of an upgrade request.
type CheckOriginFn = wsconn.CheckOriginFn

// Config wires a Hub's dependencies: the parsed configuration snapshot, an
// optional out-of-scope UI handler for non-WebSocket requests, an optional
// origin check, and an optional structured logger.
type Config struct {
	Snapshot    *config.Snapshot
	UIHandler   http.Handler
	CheckOrigin CheckOriginFn
	Logger      *slog.Logger
}

// New creates a signaling hub bound to cfg.Snapshot.
//
// Example:
//
//	snap, _ := config.Load("config.json")
//	hub := ws.New(ws.Config{Snapshot: snap})
//	hub.Start(ctx)
func New(cfg Config) signalhub.Hub {
	return wsconn.New(wsconn.ServerConfig{
		Snapshot:    cfg.Snapshot,
		UIHandler:   cfg.UIHandler,
		CheckOrigin: cfg.CheckOrigin,
		Logger:      cfg.Logger,
	})
}

// AllOrigins allows every origin. Never use in production; configure a real
// CheckOriginFn for a deployed hub.
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool { return true }
}
