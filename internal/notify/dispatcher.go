package notify

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Recipient is one live connection able to receive an event.
type Recipient interface {
	ConnectionID() string
	SendEvent(kind string, payload any) error
}

// ConnectionSource is implemented by the realtime connection registry.
// Lookups return a snapshot; the dispatcher never holds registry locks
// while writing to sockets.
type ConnectionSource interface {
	UserRecipients(userID uuid.UUID) []Recipient
	RoleRecipients(role string) []Recipient
	AllRecipients() []Recipient
}

// Notifier is the durable outbound channel (e-mail/SMS). Fire and forget:
// failures are logged by the dispatcher and never surfaced to callers.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind Kind, message string) error
}

// Dispatcher routes events to live connections and, for appointment
// notifications, to the outbound notifier.
type Dispatcher struct {
	conns    ConnectionSource
	outbound Notifier
}

func NewDispatcher(conns ConnectionSource, outbound Notifier) *Dispatcher {
	return &Dispatcher{
		conns:    conns,
		outbound: outbound,
	}
}

// Dispatch delivers ev to every selected recipient. Delivery to an offline
// target is a silent no-op; a failed send to one connection never aborts the
// remaining sends. All sends are attempted before Dispatch returns.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	recipients := d.resolve(ev)

	if len(recipients) == 0 && ev.TargetUserID != nil {
		log.Printf("dispatch kind=%s target_user=%s no live connections, skipping", ev.Kind, ev.TargetUserID)
	}

	payload := d.payload(ev)
	for _, r := range recipients {
		if err := r.SendEvent(string(ev.Kind), payload); err != nil {
			log.Printf("dispatch kind=%s conn=%s delivery failed: %v", ev.Kind, r.ConnectionID(), err)
		}
	}

	d.notifyOutbound(ctx, ev)
}

// resolve collects the target recipients, deduplicated by connection ID so a
// doctor who is also the stated target gets a single copy.
func (d *Dispatcher) resolve(ev Event) []Recipient {
	seen := make(map[string]bool)
	var out []Recipient

	add := func(rs []Recipient) {
		for _, r := range rs {
			if !seen[r.ConnectionID()] {
				seen[r.ConnectionID()] = true
				out = append(out, r)
			}
		}
	}

	switch {
	case ev.TargetUserID != nil:
		add(d.conns.UserRecipients(*ev.TargetUserID))
	case ev.TargetRole != "":
		add(d.conns.RoleRecipients(ev.TargetRole))
	default:
		add(d.conns.AllRecipients())
	}

	// Clinical safety fan-out: critical alerts always reach doctors and
	// admins in addition to the stated target.
	if ev.Kind == KindCriticalAlert {
		add(d.conns.RoleRecipients(RoleDoctor))
		add(d.conns.RoleRecipients(RoleAdmin))
	}

	return out
}

func (d *Dispatcher) payload(ev Event) map[string]any {
	p := map[string]any{
		"message":  ev.Message,
		"priority": string(ev.Priority),
	}
	if ev.AppointmentID != nil {
		p["appointmentId"] = ev.AppointmentID.String()
	}
	if ev.TargetUserID != nil {
		p["targetUserId"] = ev.TargetUserID.String()
	}
	for k, v := range ev.Payload {
		p[k] = v
	}
	return p
}

func (d *Dispatcher) notifyOutbound(ctx context.Context, ev Event) {
	if d.outbound == nil || ev.TargetUserID == nil {
		return
	}

	switch ev.Kind {
	case KindConfirmation, KindReminder, KindCancellation:
		if err := d.outbound.Notify(ctx, *ev.TargetUserID, ev.Kind, ev.Message); err != nil {
			log.Printf("outbound notify kind=%s user=%s failed: %v", ev.Kind, ev.TargetUserID, err)
		}
	}
}
