package signaling

import (
	"github.com/arogya-labs/teleconsult/internal/models"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Sender is the transport half of a connection as the hub sees it. TrySend
// must never block; it reports false when the frame could not be queued.
type Sender interface {
	TrySend(payload []byte) bool
	Close()
}

// Connection is one live transport session. Role and UserID come from the
// authenticated boundary; RoomID is set only for room members, and
// PendingRoomID while a join request is waiting on admission.
type Connection struct {
	ID            string
	Role          models.Role
	UserID        string
	RoomID        string
	PendingRoomID string

	sender Sender
}

// Registry maps connection ids to session metadata and keeps the
// userID -> connections index behind out-of-band notifications. It is not
// safe for concurrent use; the hub serializes access.
type Registry struct {
	conns map[string]*Connection
	users map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		users: make(map[string]map[string]struct{}),
	}
}

// Attach allocates a fresh connection id and records the session.
func (r *Registry) Attach(sender Sender, role models.Role, userID string) (*Connection, error) {
	id, err := gonanoid.New(16)
	if err != nil {
		return nil, err
	}
	conn := &Connection{
		ID:     id,
		Role:   role,
		UserID: userID,
		sender: sender,
	}
	r.conns[id] = conn
	return conn, nil
}

func (r *Registry) Get(id string) (*Connection, bool) {
	conn, ok := r.conns[id]
	return conn, ok
}

// Detach removes the connection and its subscription entry. A second call
// for the same id reports false and changes nothing.
func (r *Registry) Detach(id string) (*Connection, bool) {
	conn, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	if set, ok := r.users[conn.UserID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.users, conn.UserID)
		}
	}
	return conn, true
}

// Subscribe registers the connection for notifications addressed to its
// authenticated user.
func (r *Registry) Subscribe(id string) {
	conn, ok := r.conns[id]
	if !ok {
		return
	}
	set, ok := r.users[conn.UserID]
	if !ok {
		set = make(map[string]struct{})
		r.users[conn.UserID] = set
	}
	set[id] = struct{}{}
}

// UserConns returns the subscribed connections of a user.
func (r *Registry) UserConns(userID string) []*Connection {
	set, ok := r.users[userID]
	if !ok {
		return nil
	}
	conns := make([]*Connection, 0, len(set))
	for id := range set {
		if conn, ok := r.conns[id]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}
