package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-scheduler/internal/notify"
)

// Registry tests never touch the socket, so a nil websocket.Conn is fine.

var _ notify.ConnectionSource = (*Registry)(nil)

func TestRegisterAndDeregister(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()

	conn := NewConnection(user, "patient", nil)
	r.Register(conn)

	assert.True(t, r.IsOnline(user))
	assert.Len(t, r.ListOnline(), 1)
	assert.Len(t, r.UserRecipients(user), 1)
	assert.Len(t, r.RoleRecipients("patient"), 1)

	removed := r.Deregister(conn.ConnectionID())
	require.NotNil(t, removed)
	assert.Equal(t, conn.ConnectionID(), removed.ConnectionID())

	assert.False(t, r.IsOnline(user))
	assert.Empty(t, r.ListOnline())
	assert.Empty(t, r.UserRecipients(user))
	assert.Empty(t, r.RoleRecipients("patient"))
}

func TestDeregisterUnknownConnection(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Deregister("no-such-connection"))
}

func TestMultiDevicePresence(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()

	phone := NewConnection(user, "patient", nil)
	laptop := NewConnection(user, "patient", nil)
	r.Register(phone)
	r.Register(laptop)

	assert.Len(t, r.UserRecipients(user), 2)
	assert.True(t, r.IsOnline(user))

	// Dropping one device keeps the user online.
	r.Deregister(phone.ConnectionID())
	assert.True(t, r.IsOnline(user))
	assert.Len(t, r.UserRecipients(user), 1)

	r.Deregister(laptop.ConnectionID())
	assert.False(t, r.IsOnline(user))
}

func TestRoleGroups(t *testing.T) {
	r := NewRegistry()

	doc := NewConnection(uuid.New(), "doctor", nil)
	admin := NewConnection(uuid.New(), "admin", nil)
	patient := NewConnection(uuid.New(), "patient", nil)
	r.Register(doc)
	r.Register(admin)
	r.Register(patient)

	assert.Len(t, r.RoleRecipients("doctor"), 1)
	assert.Len(t, r.RoleRecipients("admin"), 1)
	assert.Len(t, r.RoleRecipients("patient"), 1)
	assert.Empty(t, r.RoleRecipients("nurse"))
	assert.Len(t, r.AllRecipients(), 3)
}

func TestUpdateActivity(t *testing.T) {
	r := NewRegistry()
	conn := NewConnection(uuid.New(), "doctor", nil)
	r.Register(conn)

	assert.True(t, r.UpdateActivity(conn.ConnectionID(), "reviewing chart"))
	assert.Equal(t, "reviewing chart", conn.Activity())

	assert.False(t, r.UpdateActivity("unknown", "x"))

	infos := r.ListOnline()
	require.Len(t, infos, 1)
	assert.Equal(t, "reviewing chart", infos[0].Activity)
}

// Registration, removal and dispatch-time iteration race by construction;
// run them all at once so the race detector has something to chew on.
func TestConcurrentRegistryAccess(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := NewConnection(user, "patient", nil)
			r.Register(conn)
			r.UpdateActivity(conn.ConnectionID(), "browsing")
			_ = r.UserRecipients(user)
			_ = r.AllRecipients()
			_ = r.ListOnline()
			r.Deregister(conn.ConnectionID())
		}()
	}
	wg.Wait()

	assert.False(t, r.IsOnline(user))
	assert.Empty(t, r.AllRecipients())
}
