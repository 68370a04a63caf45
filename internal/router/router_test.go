package router

import (
	"testing"
	"time"

	"github.com/signalhub/signalhub/internal/config"
	"github.com/signalhub/signalhub/internal/ratelimit"
	"github.com/signalhub/signalhub/internal/registry"
)

type fakePeer struct {
	handle   string
	clientID string
	sent     [][]byte
	open     bool
}

func newFakePeer(handle, clientID string) *fakePeer {
	return &fakePeer{handle: handle, clientID: clientID, open: true}
}

func (p *fakePeer) Handle() string     { return p.handle }
func (p *fakePeer) ClientID() string   { return p.clientID }
func (p *fakePeer) RemoteAddr() string { return "1.2.3.4" }
func (p *fakePeer) IsOpen() bool       { return p.open }
func (p *fakePeer) Send(frame []byte) error {
	p.sent = append(p.sent, frame)
	return nil
}
func (p *fakePeer) CloseWithCode(code int, reason string) error {
	p.open = false
	return nil
}

func setup(rooms []config.RoomConfig, rules []config.RateLimitRule) (*registry.Registry, *Router) {
	reg := registry.New(&config.Snapshot{Rooms: rooms})
	rt := New(reg, ratelimit.NewEnforcer(rules))
	return reg, rt
}

func authAndJoin(reg *registry.Registry, peer *fakePeer, roomID string) {
	reg.Add(peer, "1.2.3.4", "")
	reg.Authenticate(peer.handle, peer.clientID, peer.clientID)
	reg.Join(peer.handle, roomID)
}

func TestRoute_BroadcastFansOutExceptSender(t *testing.T) {
	t.Parallel()

	reg, rt := setup([]config.RoomConfig{{ID: "default", RoutingMode: config.RoutingBroadcast}}, nil)
	a := newFakePeer("a", "0xa_1")
	b := newFakePeer("b", "0xb_1")
	c := newFakePeer("c", "0xc_1")
	authAndJoin(reg, a, "default")
	authAndJoin(reg, b, "default")
	authAndJoin(reg, c, "default")

	frame := []byte(`{"type":"custom","data":"hi"}`)
	rt.Route("a", a, frame, ratelimit.NewTracker(), time.Now())

	if len(a.sent) != 0 {
		t.Error("sender should never receive its own broadcast")
	}
	if len(b.sent) != 1 || string(b.sent[0]) != string(frame) {
		t.Errorf("b.sent = %v", b.sent)
	}
	if len(c.sent) != 1 {
		t.Errorf("c.sent = %v", c.sent)
	}
}

func TestRoute_UnicastDeliversToTargetOnly(t *testing.T) {
	t.Parallel()

	reg, rt := setup([]config.RoomConfig{{ID: "default", RoutingMode: config.RoutingUnicast}}, nil)
	a := newFakePeer("a", "0xa_1")
	b := newFakePeer("b", "0xb_1")
	c := newFakePeer("c", "0xc_1")
	authAndJoin(reg, a, "default")
	authAndJoin(reg, b, "default")
	authAndJoin(reg, c, "default")

	frame := []byte(`{"type":"custom","targetId":"0xb_1","data":"x"}`)
	rt.Route("a", a, frame, ratelimit.NewTracker(), time.Now())

	if len(b.sent) != 1 {
		t.Errorf("expected exactly one delivery to target, got %d", len(b.sent))
	}
	if len(c.sent) != 0 {
		t.Errorf("expected no delivery to non-target, got %d", len(c.sent))
	}
}

func TestRoute_UnicastNoTargetDropsSilently(t *testing.T) {
	t.Parallel()

	reg, rt := setup([]config.RoomConfig{{ID: "default", RoutingMode: config.RoutingUnicast}}, nil)
	a := newFakePeer("a", "0xa_1")
	b := newFakePeer("b", "0xb_1")
	authAndJoin(reg, a, "default")
	authAndJoin(reg, b, "default")

	frame := []byte(`{"type":"custom","data":"x"}`)
	rt.Route("a", a, frame, ratelimit.NewTracker(), time.Now())

	if len(b.sent) != 0 {
		t.Errorf("expected message with no targetId to be dropped, got %d deliveries", len(b.sent))
	}
}

func TestRoute_DisallowedMessageType(t *testing.T) {
	t.Parallel()

	reg, rt := setup([]config.RoomConfig{
		{ID: "default", RoutingMode: config.RoutingBroadcast, AllowedMessageTypes: []string{"custom"}},
	}, nil)
	a := newFakePeer("a", "0xa_1")
	b := newFakePeer("b", "0xb_1")
	authAndJoin(reg, a, "default")
	authAndJoin(reg, b, "default")

	frame := []byte(`{"type":"offer","sdp":"..."}`)
	rt.Route("a", a, frame, ratelimit.NewTracker(), time.Now())

	if len(b.sent) != 0 {
		t.Errorf("expected disallowed type to not be forwarded, got %d", len(b.sent))
	}
	if len(a.sent) != 1 {
		t.Fatalf("expected sender to receive one error frame, got %d", len(a.sent))
	}
	want := `{"type":"error","error":"Message type 'offer' not allowed in this room"}`
	if string(a.sent[0]) != want {
		t.Errorf("got %s, want %s", a.sent[0], want)
	}
}

func TestRoute_RateLimitedFrameNotDelivered(t *testing.T) {
	t.Parallel()

	reg, rt := setup(
		[]config.RoomConfig{{ID: "default", RoutingMode: config.RoutingBroadcast}},
		[]config.RateLimitRule{{Enabled: true, MaxMessages: 1, WindowMs: 60000}},
	)
	a := newFakePeer("a", "0xa_1")
	b := newFakePeer("b", "0xb_1")
	authAndJoin(reg, a, "default")
	authAndJoin(reg, b, "default")

	tracker := ratelimit.NewTracker()
	now := time.Now()
	frame := []byte(`{"type":"custom","data":"x"}`)

	rt.Route("a", a, frame, tracker, now)
	rt.Route("a", a, frame, tracker, now)

	if len(b.sent) != 1 {
		t.Errorf("expected only the first frame delivered, b.sent=%d", len(b.sent))
	}
}

func TestRoute_JoinAndLeave(t *testing.T) {
	t.Parallel()

	reg, rt := setup([]config.RoomConfig{{ID: "lobby", RoutingMode: config.RoutingBroadcast}}, nil)
	a := newFakePeer("a", "0xa_1")
	reg.Add(a, "1.2.3.4", "")
	reg.Authenticate("a", "0xa", "0xa")

	rt.Route("a", a, []byte(`{"type":"join","roomId":"lobby"}`), ratelimit.NewTracker(), time.Now())
	rec, _ := reg.Get("a")
	if rec.RoomID != "lobby" {
		t.Fatalf("expected join to place conn in lobby, got %q", rec.RoomID)
	}

	rt.Route("a", a, []byte(`{"type":"leave"}`), ratelimit.NewTracker(), time.Now())
	rec, _ = reg.Get("a")
	if rec.RoomID != "" {
		t.Fatalf("expected leave to clear RoomID, got %q", rec.RoomID)
	}
}

func TestRoute_RoomlessBroadcastGoesGlobal(t *testing.T) {
	t.Parallel()

	reg, rt := setup(nil, nil)
	a := newFakePeer("a", "0xa_1")
	b := newFakePeer("b", "0xb_1")
	reg.Add(a, "1.2.3.4", "")
	reg.Add(b, "1.2.3.5", "")
	reg.Authenticate("a", "0xa", "0xa")
	reg.Authenticate("b", "0xb", "0xb")

	frame := []byte(`{"type":"custom","data":"x"}`)
	rt.Route("a", a, frame, ratelimit.NewTracker(), time.Now())

	if len(b.sent) != 1 {
		t.Errorf("expected roomless sender to broadcast globally, b.sent=%d", len(b.sent))
	}
}
