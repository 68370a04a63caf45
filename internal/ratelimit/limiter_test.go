package ratelimit

import (
	"testing"
	"time"

	"github.com/signalhub/signalhub/internal/config"
)

func TestEnforcer_AllowsUpToLimit(t *testing.T) {
	t.Parallel()

	enforcer := NewEnforcer([]config.RateLimitRule{
		{Enabled: true, MaxMessages: 3, WindowMs: 1000},
	})
	tracker := NewTracker()
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !enforcer.Allow(tracker, "custom", now) {
			t.Fatalf("message %d should have been allowed", i)
		}
	}
	if enforcer.Allow(tracker, "custom", now) {
		t.Error("4th message within the window should have been rejected")
	}
}

func TestEnforcer_WindowSlides(t *testing.T) {
	t.Parallel()

	enforcer := NewEnforcer([]config.RateLimitRule{
		{Enabled: true, MaxMessages: 1, WindowMs: 50},
	})
	tracker := NewTracker()
	now := time.Now()

	if !enforcer.Allow(tracker, "custom", now) {
		t.Fatal("first message should be allowed")
	}
	if enforcer.Allow(tracker, "custom", now.Add(10*time.Millisecond)) {
		t.Fatal("second message inside the window should be rejected")
	}
	if !enforcer.Allow(tracker, "custom", now.Add(60*time.Millisecond)) {
		t.Fatal("message after the window elapsed should be allowed")
	}
}

func TestEnforcer_DisabledRuleIgnored(t *testing.T) {
	t.Parallel()

	enforcer := NewEnforcer([]config.RateLimitRule{
		{Enabled: false, MaxMessages: 1, WindowMs: 1000},
	})
	tracker := NewTracker()
	now := time.Now()

	for i := 0; i < 5; i++ {
		if !enforcer.Allow(tracker, "custom", now) {
			t.Fatalf("disabled rule should never reject, failed at %d", i)
		}
	}
}

func TestEnforcer_ScopedToMessageTypes(t *testing.T) {
	t.Parallel()

	enforcer := NewEnforcer([]config.RateLimitRule{
		{Enabled: true, MaxMessages: 1, WindowMs: 1000, MessageTypes: []string{"offer"}},
	})
	tracker := NewTracker()
	now := time.Now()

	if !enforcer.Allow(tracker, "offer", now) {
		t.Fatal("first offer should be allowed")
	}
	if enforcer.Allow(tracker, "offer", now) {
		t.Fatal("second offer within window should be rejected")
	}
	if !enforcer.Allow(tracker, "answer", now) {
		t.Fatal("unrelated message type should be unaffected by the rule")
	}
}

func TestEnforcer_NoRulesAlwaysAllows(t *testing.T) {
	t.Parallel()

	enforcer := NewEnforcer(nil)
	tracker := NewTracker()
	now := time.Now()

	for i := 0; i < 100; i++ {
		if !enforcer.Allow(tracker, "custom", now) {
			t.Fatalf("with no rules configured, message %d should be allowed", i)
		}
	}
}
