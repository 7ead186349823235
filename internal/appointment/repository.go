package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the service. It is the
// single source of truth for booked intervals.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindOverlapping returns non-cancelled appointments for the provider
	// whose [start, end) interval intersects the given one.
	FindOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time) ([]Appointment, error)

	// FindByProviderBetween returns non-cancelled appointments for the
	// provider within [from, to), ordered by start time ascending.
	FindByProviderBetween(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	Insert(ctx context.Context, appt *Appointment) error

	// UpdateStatus moves the appointment to the given status only if its
	// current status is one of from; ErrAppointmentNotFound otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status, reason *string, from ...Status) (*Appointment, error)

	// SetReminderJob records (or clears, with nil) the deferred reminder
	// job attached to the appointment.
	SetReminderJob(ctx context.Context, id uuid.UUID, jobID *uuid.UUID) error

	ListBySubject(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
