package realtime

import (
	"sort"
	"strings"
	"sync"
)

// Room key prefixes. A room exists only while it has members.
const (
	userRoomPrefix     = "user:"
	orderRoomPrefix    = "order:"
	deliveryRoomPrefix = "delivery:"
	supportRoomPrefix  = "support:"
)

func UserRoom(userID string) string         { return userRoomPrefix + userID }
func OrderRoom(orderID string) string       { return orderRoomPrefix + orderID }
func DeliveryRoom(deliveryID string) string { return deliveryRoomPrefix + deliveryID }
func SupportRoom(ticketID string) string    { return supportRoomPrefix + ticketID }

// IsRoomKey reports whether room uses one of the known prefixes with a non-empty id.
func IsRoomKey(room string) bool {
	for _, prefix := range []string{userRoomPrefix, orderRoomPrefix, deliveryRoomPrefix, supportRoomPrefix} {
		if id, ok := strings.CutPrefix(room, prefix); ok {
			return id != ""
		}
	}
	return false
}

// roomSet is one room's member set. dead is set when the room has been
// removed from the index; writers that raced the removal must retry.
type roomSet struct {
	mu      sync.RWMutex
	members map[string]struct{}
	dead    bool
}

// connRooms is the reverse index for one connection. LeaveAll closes it and
// removes it from the index; joins for a closed or unknown connection fail.
type connRooms struct {
	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

// Rooms is the membership relation between connections and rooms.
//
// A connection must be opened before it can join rooms. Once LeaveAll has
// run for it, the id stays unknown, so a join racing a disconnect cannot
// bring it back.
//
// Lock order: connRooms.mu, then Rooms.mu, then roomSet.mu (several roomSets
// only in ascending key order). Rooms.mu guards the index map and is never
// held while fanning out. conns is a sync.Map keyed by connection id.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]*roomSet

	conns sync.Map
}

// NewRooms creates an empty membership model.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]*roomSet)}
}

// Open makes connID eligible to join rooms. Ids are never reused, so Open is
// called once per connection, before its first frame is handled.
func (r *Rooms) Open(connID string) {
	r.conns.LoadOrStore(connID, &connRooms{rooms: make(map[string]struct{})})
}

// Join adds connID to room, creating the room on first member. It reports
// whether membership changed; joining twice is a no-op, and joins for a
// connection that is not open are refused.
func (r *Rooms) Join(connID, room string) bool {
	cr := r.connEntry(connID)
	if cr == nil {
		return false
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.closed {
		return false
	}
	if _, ok := cr.rooms[room]; ok {
		return false
	}

	for {
		rs := r.getOrCreate(room)
		rs.mu.Lock()
		if rs.dead {
			rs.mu.Unlock()
			continue
		}
		rs.members[connID] = struct{}{}
		rs.mu.Unlock()
		break
	}
	cr.rooms[room] = struct{}{}
	return true
}

// Leave removes connID from room. An emptied room is dropped from the index.
func (r *Rooms) Leave(connID, room string) bool {
	cr := r.connEntry(connID)
	if cr == nil {
		return false
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()

	if _, ok := cr.rooms[room]; !ok {
		return false
	}
	delete(cr.rooms, room)

	rs := r.lookup(room)
	if rs == nil {
		return true
	}
	rs.mu.Lock()
	delete(rs.members, connID)
	empty := len(rs.members) == 0
	rs.mu.Unlock()

	if empty {
		r.collect(room, rs)
	}
	return true
}

// LeaveAll removes connID from every room it belongs to and returns those
// rooms. All removals happen while holding every affected room's lock, so a
// concurrent MembersOf sees either the full prior or the full post-removal
// membership. The connection is closed for further joins.
func (r *Rooms) LeaveAll(connID string) []string {
	v, ok := r.conns.LoadAndDelete(connID)
	if !ok {
		return nil
	}
	cr := v.(*connRooms)

	cr.mu.Lock()
	defer cr.mu.Unlock()

	cr.closed = true
	keys := sortedKeys(cr.rooms)
	cr.rooms = nil

	sets := make([]*roomSet, 0, len(keys))
	r.mu.RLock()
	for _, key := range keys {
		sets = append(sets, r.rooms[key])
	}
	r.mu.RUnlock()

	for _, rs := range sets {
		if rs != nil {
			rs.mu.Lock()
		}
	}
	emptied := make([]int, 0, len(sets))
	for i, rs := range sets {
		if rs == nil {
			continue
		}
		delete(rs.members, connID)
		if len(rs.members) == 0 {
			emptied = append(emptied, i)
		}
	}
	for i := len(sets) - 1; i >= 0; i-- {
		if sets[i] != nil {
			sets[i].mu.Unlock()
		}
	}

	for _, i := range emptied {
		r.collect(keys[i], sets[i])
	}
	return keys
}

// MembersOf returns a sorted snapshot of the room's members. Unknown rooms
// yield an empty slice.
func (r *Rooms) MembersOf(room string) []string {
	rs := r.lookup(room)
	if rs == nil {
		return []string{}
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return sortedKeys(rs.members)
}

// RoomsOf returns the rooms connID currently belongs to.
func (r *Rooms) RoomsOf(connID string) []string {
	cr := r.connEntry(connID)
	if cr == nil {
		return []string{}
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()
	return sortedKeys(cr.rooms)
}

// Count returns the number of non-empty rooms.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Rooms) lookup(room string) *roomSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[room]
}

func (r *Rooms) getOrCreate(room string) *roomSet {
	if rs := r.lookup(room); rs != nil {
		return rs
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.rooms[room]
	if !ok {
		rs = &roomSet{members: make(map[string]struct{})}
		r.rooms[room] = rs
	}
	return rs
}

// collect removes rs from the index if it is still empty.
func (r *Rooms) collect(room string, rs *roomSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if len(rs.members) == 0 && !rs.dead && r.rooms[room] == rs {
		rs.dead = true
		delete(r.rooms, room)
	}
}

func (r *Rooms) connEntry(connID string) *connRooms {
	v, ok := r.conns.Load(connID)
	if !ok {
		return nil
	}
	return v.(*connRooms)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
