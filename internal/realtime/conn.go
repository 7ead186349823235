package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Connection is one live client session. The write mutex serializes frames;
// gorilla/websocket allows only one concurrent writer per connection.
type Connection struct {
	id          string
	userID      uuid.UUID
	role        string
	connectedAt time.Time

	mu       sync.Mutex
	activity string
	ws       *websocket.Conn
}

func NewConnection(userID uuid.UUID, role string, ws *websocket.Conn) *Connection {
	return &Connection{
		id:          uuid.NewString(),
		userID:      userID,
		role:        role,
		connectedAt: time.Now(),
		ws:          ws,
	}
}

func (c *Connection) ConnectionID() string   { return c.id }
func (c *Connection) UserID() uuid.UUID      { return c.userID }
func (c *Connection) Role() string           { return c.role }
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

func (c *Connection) Activity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activity
}

func (c *Connection) setActivity(activity string) {
	c.mu.Lock()
	c.activity = activity
	c.mu.Unlock()
}

// SendEvent writes one typed frame to the client.
func (c *Connection) SendEvent(kind string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(map[string]any{
		"type": kind,
		"data": payload,
	})
}

func (c *Connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *Connection) close() {
	_ = c.ws.Close()
}
