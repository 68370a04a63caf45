// Package router implements the fan-out router: parsing inbound frames,
// enforcing room policy, and dispatching by routing mode.
// The router never rewrites a frame before forwarding — sender-identifying
// metadata is, by convention, inserted by the sending client.
package router

import (
	"time"

	"github.com/signalhub/signalhub"
	"github.com/signalhub/signalhub/internal/config"
	"github.com/signalhub/signalhub/internal/ratelimit"
	"github.com/signalhub/signalhub/internal/registry"
	"github.com/signalhub/signalhub/internal/wire"
)

// Router dispatches authenticated inbound frames.
type Router struct {
	reg      *registry.Registry
	enforcer *ratelimit.Enforcer
}

// New builds a Router bound to reg and the configured rate-limit rules.
func New(reg *registry.Registry, enforcer *ratelimit.Enforcer) *Router {
	return &Router{reg: reg, enforcer: enforcer}
}

// Route processes one raw inbound frame from an authenticated connection.
// tracker is that connection's own rate-limit tracker, owned by the caller;
// the connection driver creates it when the connection is set up.
func (rt *Router) Route(handle string, peer signalhub.Peer, raw []byte, tracker *ratelimit.Tracker, now time.Time) {
	parsed, _ := wire.ParseFrame(raw)
	messageType := parsed.Type

	if !rt.enforcer.Allow(tracker, messageType, now) {
		peer.Send(wire.Error(signalhub.ErrRateLimitExceeded))
		return
	}

	switch messageType {
	case "join":
		rt.reg.Join(handle, parsed.RoomID)
		return
	case "leave":
		rt.reg.Leave(handle)
		return
	}

	rec, ok := rt.reg.Get(handle)
	if !ok {
		return
	}

	var roomCfg config.RoomConfig
	if rec.RoomID != "" {
		roomCfg, _ = rt.reg.RoomConfig(rec.RoomID)
		if len(roomCfg.AllowedMessageTypes) > 0 && !contains(roomCfg.AllowedMessageTypes, messageType) {
			peer.Send(wire.Error(signalhub.MessageTypeNotAllowed(messageType)))
			return
		}
	}

	rt.deliver(handle, rec.RoomID, roomCfg.RoutingMode, parsed, raw)
	rt.reg.MarkMessage(handle, now)
}

// deliver fans raw out per routingMode, always excluding the sender.
func (rt *Router) deliver(sender, roomID string, mode config.RoutingMode, parsed wire.Raw, raw []byte) {
	if mode == config.RoutingUnicast {
		rt.deliverUnicast(sender, parsed.TargetID, raw)
		return
	}

	// broadcast, multicast (falls through to broadcast), and any
	// unrecognized mode all fan out to the room, or globally if the sender
	// is roomless.
	var recipients []signalhub.Peer
	if roomID != "" {
		recipients = rt.reg.RoomMembersExcept(roomID, sender)
	} else {
		recipients = rt.reg.AllOpenExcept(sender)
	}

	for _, p := range recipients {
		if p.IsOpen() {
			p.Send(raw)
		}
	}
}

// deliverUnicast sends raw to at most one recipient: the open connection
// whose clientId equals targetID. Silently dropped if targetID is unset,
// unresolved, or names the sender itself.
func (rt *Router) deliverUnicast(sender, targetID string, raw []byte) {
	if targetID == "" {
		return
	}
	peer, ok := rt.reg.FindByClientID(targetID)
	if !ok || !peer.IsOpen() || peer.Handle() == sender {
		return
	}
	peer.Send(raw)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
