// Package handshake implements the EIP-191 challenge/response authentication
// engine: nonce-bound challenge issuance and signature verification that
// promotes a connection from pending to authenticated.
//
// The engine owns its pending-challenge map directly, as opposed to routing
// it through the shared registry lock, because it is manipulated only by the
// owning connection outside of the close-path cleanup call every driver
// already makes on its own handle.
package handshake

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Challenge is the pending nonce/message pair a connection must answer
// before authenticating.
type Challenge struct {
	Token   string
	Message string
	Expiry  time.Time
}

// Engine issues and tracks pending challenges, one per connection handle.
type Engine struct {
	handshakeMessage string
	expiry           time.Duration

	mu      sync.Mutex
	pending map[string]Challenge
}

// NewEngine constructs an Engine. handshakeMessage is the configured prefix
// clients sign alongside the server-issued token; expiry is the configured
// handshake validity window.
func NewEngine(handshakeMessage string, expiry time.Duration) *Engine {
	return &Engine{
		handshakeMessage: handshakeMessage,
		expiry:           expiry,
		pending:          make(map[string]Challenge),
	}
}

// Issue creates and stores a fresh challenge for handle, returning it so the
// caller can send the auth-challenge frame.
func (e *Engine) Issue(handle string) (Challenge, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return Challenge{}, fmt.Errorf("handshake: generate nonce: %w", err)
	}

	now := time.Now()
	token := fmt.Sprintf("%d:%s", now.UnixMilli(), hex.EncodeToString(nonce))
	message := fmt.Sprintf("%s\n\nToken: %s", e.handshakeMessage, token)

	c := Challenge{
		Token:   token,
		Message: message,
		Expiry:  now.Add(e.expiry),
	}

	e.mu.Lock()
	e.pending[handle] = c
	e.mu.Unlock()

	return c, nil
}

// Drop removes any pending challenge for handle. Safe to call redundantly
// (success, failure, and close paths all call it).
func (e *Engine) Drop(handle string) {
	e.mu.Lock()
	delete(e.pending, handle)
	e.mu.Unlock()
}

// peek returns the pending challenge for handle without removing it.
func (e *Engine) peek(handle string) (Challenge, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.pending[handle]
	return c, ok
}
