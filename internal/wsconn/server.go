package wsconn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/signalhub/signalhub"
	"github.com/signalhub/signalhub/internal/config"
	"github.com/signalhub/signalhub/internal/handshake"
	"github.com/signalhub/signalhub/internal/ipfilter"
	"github.com/signalhub/signalhub/internal/ratelimit"
	"github.com/signalhub/signalhub/internal/registry"
	"github.com/signalhub/signalhub/internal/router"
	"github.com/signalhub/signalhub/internal/wire"
)

// CheckOriginFn validates the Origin of an upgrade request.
type CheckOriginFn = func(r *http.Request) bool

// ServerConfig wires a Server's dependencies. UIHandler is the out-of-scope
// collaborator admin UI; the core only ever forwards non-WebSocket requests
// to it (or answers the signaling-only 503 body) and never inspects it.
type ServerConfig struct {
	Snapshot    *config.Snapshot
	UIHandler   http.Handler
	CheckOrigin CheckOriginFn
	Logger      *slog.Logger
}

// Server is the signaling hub's listener, admission pipeline, and shared
// registry. It implements signalhub.Hub.
type Server struct {
	cfg       *config.Snapshot
	uiHandler http.Handler
	log       *slog.Logger

	reg      *registry.Registry
	engine   *handshake.Engine
	enforcer *ratelimit.Enforcer
	route    *router.Router
	upgrader websocket.Upgrader

	mu      sync.Mutex
	running bool
	http    *http.Server
}

// New constructs a Server from cfg. uiHandler may be nil; when nil, or when
// DISABLE_UI=true, every non-WebSocket request gets the signaling-only 503
// JSON body instead.
func New(cfg ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	reg := registry.New(cfg.Snapshot)
	enforcer := ratelimit.NewEnforcer(cfg.Snapshot.RateLimitRules)

	return &Server{
		cfg:       cfg.Snapshot,
		uiHandler: cfg.UIHandler,
		log:       log,
		reg:       reg,
		engine:    handshake.NewEngine(cfg.Snapshot.Auth.HandshakeMessage, time.Duration(cfg.Snapshot.Auth.HandshakeExpiry)*time.Second),
		enforcer:  enforcer,
		route:     router.New(reg, enforcer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Start starts the listener: launch ListenAndServe in the background, then
// race an immediate bind error against context cancellation against a short
// "it came up fine" timeout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf(signalhub.ErrServerAlreadyRunning)
	}
	s.running = true
	s.mu.Unlock()

	r := mux.NewRouter()
	r.HandleFunc(s.cfg.Server.WebSocketURL, s.handleWebSocket)
	r.PathPrefix("/").HandlerFunc(s.handleOther)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		s.log.Info("signaling hub listening", "addr", addr, "wsPath", s.cfg.Server.WebSocketURL)
		return nil
	}
}

// Stop closes every live connection with a normal close code, then shuts
// down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	for _, p := range s.reg.AllOpenExcept("") {
		p.CloseWithCode(websocket.CloseNormalClosure, "server shutting down")
	}

	if s.http != nil {
		return s.http.Shutdown(ctx)
	}
	return nil
}

// handleOther serves the out-of-scope UI collaborator, or the signaling-only
// fallback body when none is wired or DISABLE_UI=true.
func (s *Server) handleOther(w http.ResponseWriter, r *http.Request) {
	if s.uiHandler != nil && !config.DisableUI() {
		s.uiHandler.ServeHTTP(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "signaling-only",
		"message": "UI is disabled. WebSocket signaling available at " + s.cfg.Server.WebSocketURL,
		"wsPath":  s.cfg.Server.WebSocketURL,
	})
}

// handleWebSocket runs the admission pipeline (IP filter, connection caps,
// auth prescreen, upgrade) and, on success, attaches a connection driver.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	remoteAddr := hostOf(r.RemoteAddr)

	if !ipfilter.Allow(remoteAddr, s.cfg.IPFilters) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	limits := s.cfg.ConnectionLimits
	if limits.MaxTotalConnections > 0 && s.reg.TotalCount() >= limits.MaxTotalConnections {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	if limits.MaxConnectionsPerIP > 0 && s.reg.IPCount(remoteAddr) >= limits.MaxConnectionsPerIP {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	// Room capacity is checked here, at upgrade time, against the default
	// room's current membership only — not at join time, and not against a
	// room requested by name. See DESIGN.md.
	if limits.MaxConnectionsPerRoom > 0 && s.reg.DefaultRoomMemberCount() >= limits.MaxConnectionsPerRoom {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	userID, requireHandshake, ok := s.prescreen(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	now := time.Now().UnixMilli()
	userAgent := r.Header.Get("User-Agent")

	var conn *Conn
	if requireHandshake {
		conn = newConn(wsConn, remoteAddr, userAgent, fmt.Sprintf("pending_%d", now), StatePending, s.log)
	} else {
		conn = newConn(wsConn, remoteAddr, userAgent, fmt.Sprintf("%s_%d", userID, now), StateAuthenticated, s.log)
	}

	s.reg.Add(conn, remoteAddr, userAgent)

	if requireHandshake {
		challenge, err := s.engine.Issue(conn.Handle())
		if err != nil {
			conn.CloseWithCode(websocket.CloseInternalServerErr, "failed to issue challenge")
			s.reg.Remove(conn.Handle(), remoteAddr)
			return
		}
		conn.Send(wire.AuthChallenge(challenge.Token, challenge.Message, challenge.Expiry.UnixMilli()))
	} else {
		s.reg.Authenticate(conn.Handle(), userID, "")
		if roomID, ok := s.reg.DefaultRoomID(); ok {
			s.reg.Join(conn.Handle(), roomID)
		}
	}

	go s.handleClient(conn)
}

// prescreen runs before the upgrade completes: returns the assigned user
// id, whether a handshake is required, and whether the request should be
// admitted at all (false only for a missing token under the token auth
// method).
func (s *Server) prescreen(r *http.Request) (userID string, requireHandshake bool, ok bool) {
	auth := s.cfg.Auth

	if !auth.Enabled || auth.AllowAnonymous {
		return anonymousID(auth.AnonymousPrefix), false, true
	}

	switch auth.Method {
	case config.AuthToken:
		token := r.URL.Query().Get("token")
		if token == "" {
			return "", false, false
		}
		return "user_" + firstN(token, 8), false, true
	case config.AuthEthereumHandshake:
		return "", true, true
	default:
		return anonymousID(auth.AnonymousPrefix), false, true
	}
}

// handleClient owns the read loop for one connection, dispatching each
// inbound frame per the connection's state. Cleanup on any exit path
// releases the room, registry entry, and pending challenge.
func (s *Server) handleClient(c *Conn) {
	defer func() {
		s.reg.DissolveOnClose(c.Handle())
		s.reg.Remove(c.Handle(), c.RemoteAddr())
		s.engine.Drop(c.Handle())
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("unexpected close", "handle", c.Handle(), "err", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))

		if !c.IsOpen() {
			return
		}

		switch c.State() {
		case StatePending:
			s.handlePending(c, data)
		case StateAuthenticated:
			s.route.Route(c.Handle(), c, data, c.Tracker, time.Now())
		}
	}
}

// handlePending answers frames received before authentication completes:
// only auth-response is admissible, everything else gets the auth-required
// error and leaves the connection Pending.
func (s *Server) handlePending(c *Conn, data []byte) {
	parsed, _ := wire.ParseFrame(data)
	if parsed.Type != "auth-response" {
		c.Send(wire.Error(signalhub.ErrAuthRequired))
		return
	}

	result := s.engine.Verify(c.Handle(), handshake.Response{
		Signature: parsed.Signature,
		Address:   parsed.Address,
	})

	if !result.OK {
		c.Send(wire.AuthFailed(result.Reason))
		c.CloseWithCode(4001, result.Reason)
		return
	}

	clientID := fmt.Sprintf("%s_%d", result.Address, time.Now().UnixMilli())
	c.setClientID(clientID)
	c.setState(StateAuthenticated)
	s.reg.Authenticate(c.Handle(), result.Address, result.Address)

	c.Send(wire.AuthSuccess(result.Address, clientID))

	if roomID, ok := s.reg.DefaultRoomID(); ok {
		s.reg.Join(c.Handle(), roomID)
	}
}

func anonymousID(prefix string) string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return prefix + hex.EncodeToString(buf)
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// hostOf strips the port from a "host:port" remote address, normalizing
// IPv4-mapped IPv6 in the process.
func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return ipfilter.Normalize(host)
}
