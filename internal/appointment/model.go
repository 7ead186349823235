package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is a booked interval on a provider's calendar. For any
// provider, no two non-cancelled appointments may have overlapping
// [StartTime, EndTime) intervals. Rows are never deleted; cancellation is a
// status transition so the audit trail survives.
type Appointment struct {
	ID            uuid.UUID
	ProviderID    uuid.UUID
	SubjectID     uuid.UUID
	StartTime     time.Time
	EndTime       time.Time
	Status        Status
	Title         string
	Notes         string
	CancelReason  *string
	ReminderJobID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Overlaps applies the half-open interval test against another booking.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.EndTime) && end.After(a.StartTime)
}

// Slot is one free interval within a provider's working-hours grid.
// Derived, never stored.
type Slot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
