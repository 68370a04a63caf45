package signalhub

import "context"

// Hub defines the interface for a running signaling server.
type Hub interface {
	// Start starts the hub and begins listening for connections. It returns
	// once the listener is up (serving continues in the background), or
	// with the error if binding fails; if ctx is cancelled first, the hub is
	// stopped before Start returns.
	Start(ctx context.Context) error

	// Stop gracefully closes every connection and shuts down the listener.
	Stop(ctx context.Context) error
}

// Peer represents one connected, possibly not-yet-authenticated, client.
//
// A Peer is owned by its connection driver; code outside that driver must
// only observe it through the registry, never mutate it directly.
type Peer interface {
	// Handle returns the opaque, immutable registry key assigned at
	// upgrade time. Unlike ClientID, it never changes for the life of the
	// connection.
	Handle() string

	// ClientID returns the wire-visible identifier, "<userId>_<epochMillis>"
	// once authenticated, or "pending_<epochMillis>" before.
	ClientID() string

	// RemoteAddr returns the normalized remote network address.
	RemoteAddr() string

	// Send writes a raw text frame to the peer's socket. Non-blocking; the
	// frame is dropped if the peer's outbound queue is full or closed.
	Send(frame []byte) error

	// IsOpen reports whether the underlying socket is still live.
	IsOpen() bool

	// CloseWithCode closes the connection with a WebSocket close code and
	// reason string.
	CloseWithCode(code int, reason string) error
}
