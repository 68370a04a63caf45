// Package wsconn implements the connection driver: the per-connection state
// machine (Pending -> Authenticated -> Closed) and the listener/upgrader
// admission pipeline that attaches it.
//
// The driver's socket ownership pattern — one read-loop goroutine, one
// buffered outbound channel drained by a dedicated write-pump goroutine,
// periodic ping keepalive, read/write deadlines — keeps the sender's
// goroutine from ever blocking on a slow peer's socket.
package wsconn

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/signalhub/signalhub"
	"github.com/signalhub/signalhub/internal/ratelimit"
)

// State is a connection's position in the Pending -> Authenticated -> Closed
// state machine.
type State int

const (
	StatePending State = iota
	StateAuthenticated
	StateClosed
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 54 * time.Second
	sendBuffer    = 256
)

// Conn is one connection's driver. It implements signalhub.Peer.
type Conn struct {
	handle     string
	conn       *websocket.Conn
	remoteAddr string
	userAgent  string
	log        *slog.Logger

	sendCh chan []byte
	done   chan struct{}
	once   sync.Once

	mu       sync.RWMutex
	closed   bool
	state    State
	clientID string

	Tracker *ratelimit.Tracker
}

// newConn wraps an already-upgraded socket. clientID is the connection's
// initial wire identifier ("pending_<ms>" or "<userId>_<ms>").
func newConn(wsConn *websocket.Conn, remoteAddr, userAgent, clientID string, state State, log *slog.Logger) *Conn {
	c := &Conn{
		handle:     uuid.New().String(),
		conn:       wsConn,
		remoteAddr: remoteAddr,
		userAgent:  userAgent,
		log:        log,
		sendCh:     make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		state:      state,
		clientID:   clientID,
		Tracker:    ratelimit.NewTracker(),
	}
	go c.writePump()
	return c
}

func (c *Conn) Handle() string     { return c.handle }
func (c *Conn) RemoteAddr() string { return c.remoteAddr }
func (c *Conn) UserAgent() string  { return c.userAgent }

func (c *Conn) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

func (c *Conn) setClientID(id string) {
	c.mu.Lock()
	c.clientID = id
	c.mu.Unlock()
}

func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// IsOpen reports whether the underlying socket is still live.
func (c *Conn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Send queues a raw text frame for delivery. Non-blocking: a full outbound
// queue drops the frame rather than stalling the caller, since fan-out must
// not let one stuck peer block delivery to the rest of a room.
func (c *Conn) Send(frame []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf(signalhub.ErrConnectionClosed)
	}
	select {
	case c.sendCh <- frame:
		c.mu.RUnlock()
		return nil
	default:
		c.mu.RUnlock()
		return fmt.Errorf("wsconn: outbound queue full for %s", c.handle)
	}
}

// Close closes the connection with the normal WebSocket close code.
func (c *Conn) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with a specific close code and
// reason, transitioning the state machine to Closed. Idempotent.
func (c *Conn) CloseWithCode(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateClosed
	c.mu.Unlock()

	c.once.Do(func() { close(c.done) })

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	c.conn.WriteControl(websocket.CloseMessage, msg, deadline)

	return c.conn.Close()
}

// writePump drains sendCh onto the socket and emits keepalive pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
