package registry

import (
	"time"

	"github.com/signalhub/signalhub"
	"github.com/signalhub/signalhub/internal/config"
)

// Room is a named set of authenticated connections. Created on first join,
// destroyed once its last member leaves.
type Room struct {
	ID        string
	CreatedAt time.Time
	members   map[string]signalhub.Peer // keyed by handle
}

// Members snapshots the room's current membership.
func (r *Room) Members() []signalhub.Peer {
	peers := make([]signalhub.Peer, 0, len(r.members))
	for _, p := range r.members {
		peers = append(peers, p)
	}
	return peers
}

// RoomConfig resolves a configured room by id.
func (r *Registry) RoomConfig(id string) (config.RoomConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, ok := r.roomConfigs[id]
	return rc, ok
}

// DefaultRoomID returns the fallback room id from configuration, if any.
func (r *Registry) DefaultRoomID() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultRoom, r.hasDefault
}

// DefaultRoomMemberCount returns the default room's current membership, or 0
// if no default room is configured or it has no members yet. Used at
// upgrade time to gate admission against connectionLimits.maxConnectionsPerRoom
// before the connection is ever added to the registry.
func (r *Registry) DefaultRoomMemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasDefault {
		return 0
	}
	room, ok := r.rooms[r.defaultRoom]
	if !ok {
		return 0
	}
	return len(room.members)
}

// Join moves conn into roomId, resolving to the default room when roomId is
// unknown or unnamed. If conn is already a member of a different room, it
// leaves first. Returns
// the room id conn actually ended up in, or false if authentication is
// required first or no room (named or default) could be resolved.
func (r *Registry) Join(handle, roomID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.conns[handle]
	if !ok || !rec.Authenticated {
		return "", false
	}

	resolved, ok := r.resolveRoomID(roomID)
	if !ok {
		return "", false
	}

	if rec.RoomID != "" && rec.RoomID != resolved {
		r.leaveLocked(handle, rec)
	}
	if rec.RoomID == resolved {
		return resolved, true
	}

	room, ok := r.rooms[resolved]
	if !ok {
		room = &Room{ID: resolved, CreatedAt: time.Now(), members: make(map[string]signalhub.Peer)}
		r.rooms[resolved] = room
	}
	room.members[handle] = rec.Peer
	rec.RoomID = resolved
	rec.JoinedRoomAt = time.Now()

	return resolved, true
}

// resolveRoomID implements the default-room fallback: an id that names a
// known room is used as-is; anything else (including empty) falls back to
// the configured default room, if any. Caller must hold r.mu.
func (r *Registry) resolveRoomID(roomID string) (string, bool) {
	if _, ok := r.roomConfigs[roomID]; ok {
		return roomID, true
	}
	if r.hasDefault {
		return r.defaultRoom, true
	}
	return "", false
}

// Leave removes conn from its current room, dropping the room record if it
// becomes empty. No-op if conn is not in a room.
func (r *Registry) Leave(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.conns[handle]
	if !ok {
		return
	}
	r.leaveLocked(handle, rec)
}

// leaveLocked does the work of Leave; caller must hold r.mu.
func (r *Registry) leaveLocked(handle string, rec *ConnRecord) {
	if rec.RoomID == "" {
		return
	}
	if room, ok := r.rooms[rec.RoomID]; ok {
		delete(room.members, handle)
		if len(room.members) == 0 {
			delete(r.rooms, rec.RoomID)
		}
	}
	rec.RoomID = ""
}

// DissolveOnClose is identical to Leave; kept as a distinct name so the
// connection driver's close path reads as intentional cleanup rather than a
// user-initiated leave.
func (r *Registry) DissolveOnClose(handle string) {
	r.Leave(handle)
}

// RoomMembersExcept snapshots a room's members other than exclude, for
// broadcast fan-out. Snapshot is taken under the read lock; sends must
// happen outside it.
func (r *Registry) RoomMembersExcept(roomID, exclude string) []signalhub.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	peers := make([]signalhub.Peer, 0, len(room.members))
	for handle, p := range room.members {
		if handle == exclude {
			continue
		}
		peers = append(peers, p)
	}
	return peers
}
