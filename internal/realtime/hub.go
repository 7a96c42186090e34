// Package realtime is the room-based event layer behind order tracking,
// delivery tracking and support chat.
//
// Clients hold one connection each and subscribe to rooms ("user:<id>",
// "order:<id>", "delivery:<id>", "support:<ticketId>") by sending events.
// Anything in the process can push an event to a room through a Broadcaster.
// Delivery is best-effort and unacknowledged.
package realtime

import (
	"errors"
	"fmt"
	"sync"
)

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Hub ties together the registry, the membership model and the router, and
// supervises connection lifecycles. It is the process-wide Broadcaster.
type Hub struct {
	registry *Registry
	rooms    *Rooms
	router   *Router
	obs      Observer

	mu     sync.RWMutex
	fanout Broadcaster
}

// NewHub creates an empty hub. A nil observer discards notifications.
func NewHub(obs Observer) *Hub {
	if obs == nil {
		obs = NopObserver{}
	}
	h := &Hub{
		registry: NewRegistry(),
		rooms:    NewRooms(),
		obs:      obs,
	}
	h.fanout = h
	h.router = NewRouter(h.rooms, broadcasterFunc(h.route), obs)
	return h
}

// SetFanout replaces the broadcaster used for client-originated broadcasts
// (support messages, location updates). A Relay routes them across instances.
func (h *Hub) SetFanout(b Broadcaster) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b == nil {
		b = h
	}
	h.fanout = b
}

func (h *Hub) route(room, event string, payload any) {
	h.mu.RLock()
	out := h.fanout
	h.mu.RUnlock()
	out.Broadcast(room, event, payload)
}

// Rooms exposes the membership model.
func (h *Hub) Rooms() *Rooms { return h.rooms }

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Stats reports the live connection and room counts.
func (h *Hub) Stats() Stats {
	return Stats{Connections: h.registry.Count(), Rooms: h.rooms.Count()}
}

// Connect registers a new connection and returns its id.
func (h *Hub) Connect(conn Conn) string {
	id := h.registry.Register(conn)
	h.rooms.Open(id)
	h.obs.Connected(id)
	return id
}

// Handle processes one inbound frame from connID. Unknown events are ignored;
// undecodable frames are reported as connection errors and the connection stays up.
func (h *Hub) Handle(connID string, raw []byte) {
	if !h.registry.Exists(connID) {
		return
	}

	ev, err := Decode(raw)
	switch {
	case errors.Is(err, ErrUnknownEvent):
		return
	case err != nil:
		h.Fail(connID, err)
		return
	}

	h.obs.Received(connID, ev.EventName())
	h.router.Route(connID, ev)
}

// Fail records a transport or protocol error. It does not tear the connection down.
func (h *Hub) Fail(connID string, err error) {
	h.obs.Failed(connID, err)
}

// Disconnect tears down connID: memberships first, then the registry entry,
// so no broadcast resolves a room to a connection that is being destroyed.
// Repeated calls are no-ops.
func (h *Hub) Disconnect(connID string) {
	rooms := h.rooms.LeaveAll(connID)
	if h.registry.Unregister(connID) {
		h.obs.Disconnected(connID, rooms)
	}
}

// Broadcast pushes event to every current member of room. A failure to reach
// one member never stops delivery to the others, and nothing is returned to
// the caller. Empty or unknown rooms are a no-op.
func (h *Hub) Broadcast(room, event string, payload any) {
	members := h.rooms.MembersOf(room)
	if len(members) == 0 {
		return
	}

	msg := Message{Event: event, Data: payload}
	delivered := 0
	for _, id := range members {
		conn, ok := h.registry.Get(id)
		if !ok {
			continue
		}
		if err := safeSend(conn, msg); err != nil {
			h.obs.Dropped(id, room, event, err)
			continue
		}
		delivered++
	}
	h.obs.Broadcast(room, event, len(members), delivered)
}

// CloseAll closes every live connection. Transports run their own teardown,
// which ends in Disconnect.
func (h *Hub) CloseAll() int {
	conns := h.registry.Snapshot()
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			h.obs.Failed(conn.ID(), err)
		}
	}
	return len(conns)
}

func safeSend(conn Conn, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("realtime: send panicked: %v", r)
		}
	}()
	return conn.Send(msg)
}

type broadcasterFunc func(room, event string, payload any)

func (f broadcasterFunc) Broadcast(room, event string, payload any) { f(room, event, payload) }

var _ Broadcaster = (*Hub)(nil)
