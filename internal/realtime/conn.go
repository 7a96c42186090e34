package realtime

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrConnClosed is returned by Send once the connection is shutting down.
	ErrConnClosed = errors.New("realtime: connection closed")
	// ErrSendBufferFull is returned by Send when the client cannot keep up.
	ErrSendBufferFull = errors.New("realtime: send buffer full")
)

// Message is a named server to client event.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Conn is the transport handle of one live client.
// Send must not block on network I/O; delivery is best-effort.
type Conn interface {
	ID() string
	Send(msg Message) error
	Close() error
}

// Registry owns the live connections, keyed by id.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register stores conn and returns its id.
func (r *Registry) Register(conn Conn) string {
	id := conn.ID()
	r.mu.Lock()
	r.conns[id] = conn
	r.mu.Unlock()
	return id
}

// Unregister drops the connection. It reports whether the id was present;
// unknown ids are a no-op.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

func (r *Registry) Exists(id string) bool {
	_, ok := r.Get(id)
	return ok
}

func (r *Registry) Get(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the live connections ordered by id.
func (r *Registry) Snapshot() []Conn {
	r.mu.RLock()
	out := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
