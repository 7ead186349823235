package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduler/internal/notify"
)

// PresenceInfo is a point-in-time view of one live connection.
type PresenceInfo struct {
	UserID      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
	ConnectedAt time.Time `json:"connected_at"`
	Activity    string    `json:"activity,omitempty"`
}

// Registry owns all live connections for this process. Registration,
// removal and dispatch-time iteration race by construction, so every map
// access happens under the lock; socket I/O never does. A user may hold
// several simultaneous connections (multi-device). State is rebuilt from
// scratch on restart: clients reconnect and re-announce.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	byUser map[uuid.UUID]map[string]*Connection
	byRole map[string]map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		byUser: make(map[uuid.UUID]map[string]*Connection),
		byRole: make(map[string]map[string]*Connection),
	}
}

// Register adds the connection to the connection map and its user and role
// groups. Registering the same connection ID twice replaces the old entry.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[c.id]; ok {
		r.removeLocked(old)
	}

	r.conns[c.id] = c

	if r.byUser[c.userID] == nil {
		r.byUser[c.userID] = make(map[string]*Connection)
	}
	r.byUser[c.userID][c.id] = c

	if r.byRole[c.role] == nil {
		r.byRole[c.role] = make(map[string]*Connection)
	}
	r.byRole[c.role][c.id] = c
}

// Deregister removes the connection from all groups and returns it, or nil
// if the ID was unknown.
func (r *Registry) Deregister(connectionID string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connectionID]
	if !ok {
		return nil
	}
	r.removeLocked(c)
	return c
}

func (r *Registry) removeLocked(c *Connection) {
	delete(r.conns, c.id)

	if users := r.byUser[c.userID]; users != nil {
		delete(users, c.id)
		if len(users) == 0 {
			delete(r.byUser, c.userID)
		}
	}
	if roles := r.byRole[c.role]; roles != nil {
		delete(roles, c.id)
		if len(roles) == 0 {
			delete(r.byRole, c.role)
		}
	}
}

// UpdateActivity records what the client says it is doing.
func (r *Registry) UpdateActivity(connectionID, activity string) bool {
	r.mu.RLock()
	c, ok := r.conns[connectionID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	c.setActivity(activity)
	return true
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ListOnline returns a snapshot of every live connection.
func (r *Registry) ListOnline() []PresenceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PresenceInfo, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, PresenceInfo{
			UserID:      c.userID,
			Role:        c.role,
			ConnectedAt: c.connectedAt,
			Activity:    c.Activity(),
		})
	}
	return out
}

// notify.ConnectionSource implementation. Snapshots are taken under the read
// lock; the dispatcher writes to sockets after the lock is released.

func (r *Registry) UserRecipients(userID uuid.UUID) []notify.Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byUser[userID])
}

func (r *Registry) RoleRecipients(role string) []notify.Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.byRole[role])
}

func (r *Registry) AllRecipients() []notify.Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.conns)
}

func snapshot(conns map[string]*Connection) []notify.Recipient {
	if len(conns) == 0 {
		return nil
	}
	out := make([]notify.Recipient, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}
