package realtime

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clinicore/clinic-scheduler/internal/auth"
	"github.com/clinicore/clinic-scheduler/internal/notify"
)

const pingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks are left to the reverse proxy.
		return true
	},
}

// Handler upgrades authenticated requests to WebSocket sessions, keeps the
// registry in sync with connect/disconnect events and feeds client events
// (activity updates) back into it.
type Handler struct {
	registry *Registry
	events   *notify.Dispatcher
	resolver *auth.Resolver
}

func NewHandler(registry *Registry, events *notify.Dispatcher, resolver *auth.Resolver) *Handler {
	return &Handler{
		registry: registry,
		events:   events,
		resolver: resolver,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := h.resolver.FromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed for user %s: %v", principal.UserID, err)
		return
	}

	conn := NewConnection(principal.UserID, principal.Role, ws)
	h.registry.Register(conn)
	log.Printf("ws connected user=%s role=%s conn=%s", conn.userID, conn.role, conn.id)

	h.broadcastPresence(r, conn.userID, true)

	done := make(chan struct{})
	go h.pingLoop(conn, done)

	h.readLoop(conn)

	close(done)
	h.registry.Deregister(conn.id)
	conn.close()
	log.Printf("ws disconnected user=%s conn=%s", conn.userID, conn.id)

	h.broadcastPresence(r, conn.userID, false)
}

func (h *Handler) pingLoop(conn *Connection, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(conn *Connection) {
	for {
		var in struct {
			Type     string `json:"type"`
			Activity string `json:"activity,omitempty"`
		}

		if err := conn.ws.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read error conn=%s: %v", conn.id, err)
			}
			return
		}

		switch in.Type {
		case "updateActivity":
			h.registry.UpdateActivity(conn.id, in.Activity)
		default:
			log.Printf("ws unknown event type %q from conn=%s", in.Type, conn.id)
		}
	}
}

func (h *Handler) broadcastPresence(r *http.Request, userID uuid.UUID, online bool) {
	// Presence is only meaningful if the user holds no other connection.
	if !online && h.registry.IsOnline(userID) {
		return
	}

	h.events.Dispatch(r.Context(), notify.Event{
		Kind:     notify.KindPresence,
		Priority: notify.PriorityNormal,
		Payload: map[string]any{
			"userId":   userID.String(),
			"isOnline": online,
		},
	})
}
