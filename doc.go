// Package signalhub provides a WebRTC signaling hub: a long-lived WebSocket
// service that authenticates clients against an Ethereum wallet and routes
// signaling messages (SDP offers/answers, ICE candidates, and opaque custom
// payloads) among clients grouped into rooms.
//
// # Architecture
//
// An inbound connection passes through an admission pipeline (IP filter,
// connection caps, auth prescreen) before the WebSocket upgrade completes.
// Once upgraded, a per-connection driver owns the socket and drives a small
// state machine (Pending -> Authenticated -> Closed), dispatching each
// inbound frame into either the handshake engine or the router.
//
// # Quick Start
//
//	import (
//	    "github.com/signalhub/signalhub/internal/config"
//	    "github.com/signalhub/signalhub/ws"
//	)
//
//	snap, _ := config.Load("config.json")
//	hub := ws.New(ws.Config{Snapshot: snap})
//	hub.Start(ctx)
//
// # Wire Protocol
//
// All application frames are text frames containing UTF-8 JSON, shaped as
//
//	{"type": "<frame-type>", ...}
//
// Non-JSON frames are routed as opaque custom payloads. See internal/wire
// for the frame constructors and internal/router for dispatch.
//
// # Authentication
//
// When auth.method is "ethereum-handshake", the server issues a nonce-bound
// challenge on connect and verifies an EIP-191 personal_sign signature over
// it before promoting the connection to Authenticated. See internal/handshake.
//
// # Security Features
//
//   - Per-connection sliding-window rate limiting
//   - IP allow/deny list with CIDR support
//   - Bounded connection caps (per-IP, per-room, total)
//   - EIP-191 signature verification with single-use, time-bound nonces
package signalhub
