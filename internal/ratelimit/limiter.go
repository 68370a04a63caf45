// Package ratelimit implements per-connection sliding-window rate limiting.
//
// This is deliberately not built on golang.org/x/time/rate: a token bucket
// permits a burst larger than maxMessages immediately after being idle,
// which would violate the hard invariant that the number of frames accepted
// within any sliding interval of length W never exceeds maxMessages. See
// DESIGN.md for the full justification.
package ratelimit

import (
	"sync"
	"time"

	"github.com/signalhub/signalhub/internal/config"
)

// widestWindow bounds tracker retention: no configured rule window exceeds
// 60s, so timestamps older than that are pruned unconditionally.
const widestWindow = 60 * time.Second

// Tracker is a per-connection sliding-window timestamp log. Owned
// exclusively by its connection; never accessed cross-connection.
type Tracker struct {
	mu   sync.Mutex
	hits []time.Time
}

// NewTracker creates an empty tracker. The connection driver creates one for
// each connection when it is set up, before any frame has arrived.
func NewTracker() *Tracker {
	return &Tracker{}
}

// countSince returns how many recorded hits fall within [now-window, now],
// pruning entries older than widestWindow as a side effect.
func (t *Tracker) countSince(now time.Time, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prune(now)

	cutoff := now.Add(-window)
	count := 0
	for _, hit := range t.hits {
		if !hit.Before(cutoff) {
			count++
		}
	}
	return count
}

// record appends now to the hit log.
func (t *Tracker) record(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hits = append(t.hits, now)
	t.prune(now)
}

// prune drops hits older than widestWindow. Caller must hold t.mu.
func (t *Tracker) prune(now time.Time) {
	cutoff := now.Add(-widestWindow)
	i := 0
	for i < len(t.hits) && t.hits[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		t.hits = t.hits[i:]
	}
}

// Enforcer evaluates the configured rate-limit rules against a connection's
// Tracker for a given inbound message type.
type Enforcer struct {
	rules []config.RateLimitRule
}

// NewEnforcer builds an Enforcer from the configured rules.
func NewEnforcer(rules []config.RateLimitRule) *Enforcer {
	return &Enforcer{rules: rules}
}

// Allow reports whether a frame of messageType is admitted for tracker at
// now, recording the hit into tracker when admitted. Rule scopes other than
// "per-client" are accepted but not distinguished — every enabled rule is
// evaluated against the same per-connection tracker.
func (e *Enforcer) Allow(tracker *Tracker, messageType string, now time.Time) bool {
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		if !ruleAppliesTo(rule, messageType) {
			continue
		}

		window := time.Duration(rule.WindowMs) * time.Millisecond
		if tracker.countSince(now, window) >= rule.MaxMessages {
			return false
		}
	}

	tracker.record(now)
	return true
}

func ruleAppliesTo(rule config.RateLimitRule, messageType string) bool {
	if len(rule.MessageTypes) == 0 {
		return true
	}
	for _, t := range rule.MessageTypes {
		if t == messageType {
			return true
		}
	}
	return false
}
