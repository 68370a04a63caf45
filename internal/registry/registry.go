// Package registry centralizes every piece of shared mutable state in the
// hub behind one lock: live connections, per-IP connection counts, and the
// room table. One sync.RWMutex guards everything that fan-out and admission
// need to observe consistently, since those reads must be serialized with
// join/leave/auth mutations.
package registry

import (
	"sync"
	"time"

	"github.com/signalhub/signalhub"
	"github.com/signalhub/signalhub/internal/config"
)

// ConnRecord is the shared view of one connection. Every field is read and
// written only while holding the Registry's lock; callers outside the
// package see copies returned by Get.
type ConnRecord struct {
	Peer          signalhub.Peer
	RemoteAddr    string
	UserAgent     string
	UserID        string
	WalletAddress string
	Authenticated bool
	RoomID        string
	MessageCount  uint64
	LastMessageAt time.Time
	ConnectedAt   time.Time
	JoinedRoomAt  time.Time
}

// Registry is the shared concurrent substrate: connections, IP counts, and
// rooms. Zero value is not usable; construct with New.
type Registry struct {
	mu sync.RWMutex

	conns    map[string]*ConnRecord // keyed by Peer.Handle()
	ipCounts map[string]int
	rooms    map[string]*Room

	roomConfigs map[string]config.RoomConfig
	defaultRoom string
	hasDefault  bool
}

// New builds a Registry bound to the room configuration in cfg.
func New(cfg *config.Snapshot) *Registry {
	r := &Registry{
		conns:       make(map[string]*ConnRecord),
		ipCounts:    make(map[string]int),
		rooms:       make(map[string]*Room),
		roomConfigs: make(map[string]config.RoomConfig),
	}
	for _, rc := range cfg.Rooms {
		r.roomConfigs[rc.ID] = rc
	}
	if d, ok := cfg.DefaultRoom(); ok {
		r.defaultRoom = d.ID
		r.hasDefault = true
	}
	return r
}

// Add registers a new connection and bumps its IP counter. Call once per
// accepted upgrade, before the connection's read loop starts.
func (r *Registry) Add(peer signalhub.Peer, remoteAddr, userAgent string) *ConnRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &ConnRecord{
		Peer:        peer,
		RemoteAddr:  remoteAddr,
		UserAgent:   userAgent,
		ConnectedAt: time.Now(),
	}
	r.conns[peer.Handle()] = rec
	r.ipCounts[remoteAddr]++
	return rec
}

// Remove drops a connection's registry entry and decrements its IP counter,
// removing the IP key entirely once it reaches zero. Idempotent.
func (r *Registry) Remove(handle, remoteAddr string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[handle]; !ok {
		return
	}
	delete(r.conns, handle)

	if n := r.ipCounts[remoteAddr]; n <= 1 {
		delete(r.ipCounts, remoteAddr)
	} else {
		r.ipCounts[remoteAddr] = n - 1
	}
}

// IPCount returns the number of live connections sharing remoteAddr.
func (r *Registry) IPCount(remoteAddr string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ipCounts[remoteAddr]
}

// TotalCount returns the number of live connections.
func (r *Registry) TotalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Authenticate promotes a connection to authenticated, recomputing its
// identity fields. Returns false if handle is unknown.
func (r *Registry) Authenticate(handle, userID, walletAddress string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.conns[handle]
	if !ok {
		return false
	}
	rec.UserID = userID
	rec.WalletAddress = walletAddress
	rec.Authenticated = true
	return true
}

// Get returns a read-only snapshot of a connection's record.
func (r *Registry) Get(handle string) (ConnRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.conns[handle]
	if !ok {
		return ConnRecord{}, false
	}
	return *rec, true
}

// FindByClientID locates a registered peer by its wire-visible clientId, for
// unicast routing target resolution. The peer's authentication state is not
// checked.
func (r *Registry) FindByClientID(clientID string) (signalhub.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.conns {
		if rec.Peer.ClientID() == clientID {
			return rec.Peer, true
		}
	}
	return nil, false
}

// MarkMessage records sender observability fields (message counter, last
// message timestamp). Mutates through the shared lock since it is read by
// other goroutines via Get.
func (r *Registry) MarkMessage(handle string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.conns[handle]; ok {
		rec.MessageCount++
		rec.LastMessageAt = at
	}
}

// AllOpenExcept snapshots every live peer other than exclude, for roomless
// global broadcast fallback. The snapshot is taken under the read lock;
// sends must happen outside it.
func (r *Registry) AllOpenExcept(exclude string) []signalhub.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]signalhub.Peer, 0, len(r.conns))
	for handle, rec := range r.conns {
		if handle == exclude {
			continue
		}
		peers = append(peers, rec.Peer)
	}
	return peers
}
