package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Conn is the transport surface the registry needs from a live socket.
// Writes must be safe for the single registry caller plus the session's
// own goroutines; the gorilla adapter serialises them with a mutex.
type Conn interface {
	WriteFrame(f Outbound) error
	Close() error
}

// Registry tracks the live sockets of one process and their conversation
// subscriptions. Both maps are rebuilt from scratch as clients reconnect;
// nothing here is persisted.
type Registry struct {
	mu sync.Mutex

	// principal key -> live sockets (multiple tabs/devices per principal)
	connections map[string]map[Conn]struct{}
	// conversation -> subscribed principal keys
	subscriptions map[uuid.UUID]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		connections:   make(map[string]map[Conn]struct{}),
		subscriptions: make(map[uuid.UUID]map[string]struct{}),
	}
}

// Connect registers an accepted socket under the principal key.
func (r *Registry) Connect(c Conn, principalKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.connections[principalKey]
	if !ok {
		set = make(map[Conn]struct{})
		r.connections[principalKey] = set
	}
	set[c] = struct{}{}
	log.Debug().Str("principal", principalKey).Int("principals", len(r.connections)).Msg("ws connected")
}

// Disconnect removes the socket. When the principal's last socket goes,
// the principal leaves every conversation subscriber set too.
func (r *Registry) Disconnect(c Conn, principalKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnectLocked(c, principalKey)
}

func (r *Registry) disconnectLocked(c Conn, principalKey string) {
	if set, ok := r.connections[principalKey]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.connections, principalKey)
		}
	}
	for _, subs := range r.subscriptions {
		delete(subs, principalKey)
	}
	log.Debug().Str("principal", principalKey).Msg("ws disconnected")
}

// Subscribe adds the principal to a conversation's subscriber set.
func (r *Registry) Subscribe(principalKey string, conversationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.subscriptions[conversationID]
	if !ok {
		subs = make(map[string]struct{})
		r.subscriptions[conversationID] = subs
	}
	subs[principalKey] = struct{}{}
}

// Unsubscribe removes the principal from a conversation's subscriber set.
func (r *Registry) Unsubscribe(principalKey string, conversationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs, ok := r.subscriptions[conversationID]; ok {
		delete(subs, principalKey)
	}
}

// BroadcastToConversation sends one frame to every socket of every
// subscribed principal. Failed sockets are collected during iteration and
// disconnected afterwards, so the maps are never mutated mid-walk.
func (r *Registry) BroadcastToConversation(conversationID uuid.UUID, eventType string, data any) {
	frame := Outbound{Type: eventType, Data: data}

	r.mu.Lock()
	type target struct {
		conn Conn
		pkey string
	}
	var targets []target
	for pkey := range r.subscriptions[conversationID] {
		for c := range r.connections[pkey] {
			targets = append(targets, target{conn: c, pkey: pkey})
		}
	}
	r.mu.Unlock()

	var dead []target
	for _, t := range targets {
		if err := t.conn.WriteFrame(frame); err != nil {
			dead = append(dead, t)
		}
	}
	if len(dead) > 0 {
		r.mu.Lock()
		for _, t := range dead {
			r.disconnectLocked(t.conn, t.pkey)
		}
		r.mu.Unlock()
		for _, t := range dead {
			_ = t.conn.Close()
		}
	}
}

// SendToPrincipal is the single-recipient variant.
func (r *Registry) SendToPrincipal(principalKey string, eventType string, data any) {
	frame := Outbound{Type: eventType, Data: data}

	r.mu.Lock()
	conns := make([]Conn, 0, len(r.connections[principalKey]))
	for c := range r.connections[principalKey] {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	var dead []Conn
	for _, c := range conns {
		if err := c.WriteFrame(frame); err != nil {
			dead = append(dead, c)
		}
	}
	if len(dead) > 0 {
		r.mu.Lock()
		for _, c := range dead {
			r.disconnectLocked(c, principalKey)
		}
		r.mu.Unlock()
		for _, c := range dead {
			_ = c.Close()
		}
	}
}
