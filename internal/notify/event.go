package notify

import (
	"github.com/google/uuid"
)

type Kind string

const (
	KindConfirmation  Kind = "appointmentConfirmed"
	KindReminder      Kind = "appointmentReminder"
	KindCancellation  Kind = "appointmentCancelled"
	KindCriticalAlert Kind = "criticalAlert"
	KindPresence      Kind = "presenceChanged"
)

type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityCritical Priority = "critical"
)

// Event is a transient routing instruction: constructed, dispatched and
// discarded within a single Dispatch call. Either TargetUserID or TargetRole
// selects the live recipients; critical alerts additionally fan out to the
// clinical roles no matter what the stated target is.
type Event struct {
	Kind          Kind
	Priority      Priority
	TargetUserID  *uuid.UUID
	TargetRole    string
	AppointmentID *uuid.UUID
	Message       string
	Payload       map[string]any
}

// Roles that always receive critical alerts.
const (
	RoleDoctor = "doctor"
	RoleAdmin  = "admin"
)

func UserEvent(kind Kind, userID uuid.UUID, message string) Event {
	uid := userID
	return Event{
		Kind:         kind,
		Priority:     PriorityNormal,
		TargetUserID: &uid,
		Message:      message,
	}
}

func CriticalAlert(userID uuid.UUID, message string) Event {
	uid := userID
	return Event{
		Kind:         KindCriticalAlert,
		Priority:     PriorityCritical,
		TargetUserID: &uid,
		Message:      message,
	}
}
