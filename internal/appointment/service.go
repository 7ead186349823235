package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduler/internal/config"
	"github.com/clinicore/clinic-scheduler/internal/lock"
	"github.com/clinicore/clinic-scheduler/internal/notify"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentStarted   = "APPOINTMENT_STARTED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventReminderSent         = "REMINDER_SENT"
)

// JobKindReminder is the deferred-job kind for appointment reminders.
const JobKindReminder = "appointment.reminder"

var (
	ErrSlotUnavailable   = errors.New("requested interval conflicts with an existing appointment")
	ErrProviderBusy      = errors.New("provider is currently being booked, please retry")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStartInPast       = errors.New("appointment start time is in the past")
	ErrInvalidDuration   = errors.New("appointment duration must be positive")
)

// Events receives typed notification events for live and outbound delivery.
type Events interface {
	Dispatch(ctx context.Context, ev notify.Event)
}

// JobScheduler is the durable deferred-job capability the coordinator uses
// for reminders. The contract is what matters: durable across restarts,
// exactly one firing per non-cancelled job, cancellable by id.
type JobScheduler interface {
	Schedule(ctx context.Context, fireAt time.Time, kind string, payload map[string]string) (uuid.UUID, error)
	Cancel(ctx context.Context, jobID uuid.UUID) (bool, error)
}

type BookingRequest struct {
	ProviderID      uuid.UUID
	SubjectID       uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	Title           string
	Notes           string
}

type defaults struct {
	SlotMinutes  int
	WorkdayStart int
	WorkdayEnd   int
	ReminderLead time.Duration
}

type Service struct {
	repo     Repository
	locker   lock.Locker
	events   Events
	jobs     JobScheduler
	defaults defaults
}

func NewService(repo Repository, locker lock.Locker, events Events, jobs JobScheduler, cfg config.Config) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		events:   events,
		jobs:     jobs,
		defaults: defaultsFromConfig(cfg),
	}
}

func defaultsFromConfig(cfg config.Config) defaults {
	d := defaults{
		SlotMinutes:  cfg.SlotMinutes,
		WorkdayStart: 9 * 60,
		WorkdayEnd:   17 * 60,
		ReminderLead: cfg.ReminderLead,
	}
	if d.SlotMinutes <= 0 {
		d.SlotMinutes = 30
	}
	if d.ReminderLead <= 0 {
		d.ReminderLead = 24 * time.Hour
	}
	if v, err := config.ParseClock(cfg.WorkdayStart); err == nil {
		d.WorkdayStart = v
	}
	if v, err := config.ParseClock(cfg.WorkdayEnd); err == nil {
		d.WorkdayEnd = v
	}
	return d
}

// TryBook validates the requested interval against existing bookings and
// atomically admits or rejects it. The overlap check and the insert run
// inside a per-provider lock so two concurrent requests cannot both observe
// "no conflict" and both insert.
func (s *Service) TryBook(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if req.StartTime.Before(time.Now()) {
		return nil, ErrStartInPast
	}

	if _, err := s.repo.GetPatientByID(ctx, req.SubjectID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetProviderByID(ctx, req.ProviderID); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}

	endTime := req.StartTime.Add(time.Duration(req.DurationMinutes) * time.Minute)

	var created *Appointment

	err := s.locker.WithProviderLock(ctx, req.ProviderID, func(lockCtx context.Context) error {
		overlapping, err := s.repo.FindOverlapping(lockCtx, req.ProviderID, req.StartTime, endTime)
		if err != nil {
			return fmt.Errorf("check overlapping appointments: %w", err)
		}
		if len(overlapping) > 0 {
			return ErrSlotUnavailable
		}

		appt := &Appointment{
			ID:         uuid.New(),
			ProviderID: req.ProviderID,
			SubjectID:  req.SubjectID,
			StartTime:  req.StartTime,
			EndTime:    endTime,
			Status:     StatusScheduled,
			Title:      req.Title,
			Notes:      req.Notes,
		}
		if err := s.repo.Insert(lockCtx, appt); err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"provider_id": req.ProviderID.String(),
			"subject_id":  req.SubjectID.String(),
			"start_time":  req.StartTime,
			"end_time":    endTime,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, lock.ErrLockNotAcquired) {
			return nil, ErrProviderBusy
		}
		return nil, err
	}

	// Confirmation and reminder happen outside the lock; neither can fail
	// the booking itself.
	s.dispatchAppointmentEvent(ctx, created, notify.KindConfirmation,
		fmt.Sprintf("Appointment %q confirmed for %s", created.Title, created.StartTime.Format(time.RFC3339)))

	s.scheduleReminder(ctx, created)

	return created, nil
}

func (s *Service) scheduleReminder(ctx context.Context, appt *Appointment) {
	if s.jobs == nil {
		return
	}

	fireAt := appt.StartTime.Add(-s.defaults.ReminderLead)
	if !fireAt.After(time.Now()) {
		// Too close to the appointment for a lead-time reminder.
		return
	}

	jobID, err := s.jobs.Schedule(ctx, fireAt, JobKindReminder, map[string]string{
		"appointment_id": appt.ID.String(),
	})
	if err != nil {
		// A missed reminder is degraded but acceptable; the booking stands.
		log.Printf("schedule reminder for appointment %s failed: %v", appt.ID, err)
		return
	}

	if err := s.repo.SetReminderJob(ctx, appt.ID, &jobID); err != nil {
		log.Printf("record reminder job %s on appointment %s failed: %v", jobID, appt.ID, err)
		return
	}
	appt.ReminderJobID = &jobID
}

// Start moves a scheduled appointment to in-progress.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusInProgress, EventAppointmentStarted, StatusScheduled)
}

// Complete moves a scheduled or in-progress appointment to completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, EventAppointmentCompleted, StatusScheduled, StatusInProgress)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, eventType string, from ...Status) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	allowed := false
	for _, f := range from {
		if appt.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, id, to, nil, from...)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost the race with a concurrent transition.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, eventType, map[string]any{"status": string(updated.Status)})

	return updated, nil
}

// Cancel moves any non-terminal appointment to cancelled, revokes its pending
// reminder and notifies the subject. Cancelling an already-cancelled
// appointment is a no-op returning the same terminal state.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status == StatusCancelled {
		return appt, nil
	}
	if appt.Status == StatusCompleted {
		return nil, ErrInvalidTransition
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusCancelled, reasonPtr, StatusScheduled, StatusInProgress)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Re-read: a concurrent cancel already won, which is still a no-op.
			current, readErr := s.repo.GetAppointmentByID(ctx, id)
			if readErr == nil && current.Status == StatusCancelled {
				return current, nil
			}
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.revokeReminder(ctx, updated)

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{"reason": reason})

	s.dispatchAppointmentEvent(ctx, updated, notify.KindCancellation,
		fmt.Sprintf("Appointment %q was cancelled", updated.Title))

	return updated, nil
}

// revokeReminder cancels the pending reminder job. A failed revocation is
// tolerated: the reminder handler re-checks status and treats a cancelled
// appointment as a no-op.
func (s *Service) revokeReminder(ctx context.Context, appt *Appointment) {
	if s.jobs == nil || appt.ReminderJobID == nil {
		return
	}

	if _, err := s.jobs.Cancel(ctx, *appt.ReminderJobID); err != nil {
		log.Printf("cancel reminder job %s for appointment %s failed: %v", appt.ReminderJobID, appt.ID, err)
		return
	}

	if err := s.repo.SetReminderJob(ctx, appt.ID, nil); err != nil {
		log.Printf("clear reminder job on appointment %s failed: %v", appt.ID, err)
	}
}

// HandleReminder executes a fired reminder job. Registered with the deferred
// job scheduler under JobKindReminder.
func (s *Service) HandleReminder(ctx context.Context, payload map[string]string) error {
	id, err := uuid.Parse(payload["appointment_id"])
	if err != nil {
		return fmt.Errorf("reminder payload: invalid appointment_id: %w", err)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			log.Printf("reminder fired for unknown appointment %s, ignoring", id)
			return nil
		}
		return fmt.Errorf("load appointment for reminder: %w", err)
	}

	if appt.Status != StatusScheduled {
		// Stale reminder for a cancelled or already-started appointment.
		log.Printf("reminder fired for appointment %s in status %s, skipping", id, appt.Status)
		return nil
	}

	s.dispatchAppointmentEvent(ctx, appt, notify.KindReminder,
		fmt.Sprintf("Reminder: appointment %q at %s", appt.Title, appt.StartTime.Format(time.RFC3339)))

	s.logEvent(ctx, appt.ID, EventReminderSent, map[string]any{})

	return nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListBySubject retrieves appointments for a specific patient.
func (s *Service) ListBySubject(ctx context.Context, subjectID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListBySubject(ctx, subjectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by subject: %w", err)
	}
	return appointments, nil
}

func (s *Service) dispatchAppointmentEvent(ctx context.Context, appt *Appointment, kind notify.Kind, message string) {
	if s.events == nil {
		return
	}

	ev := notify.UserEvent(kind, appt.SubjectID, message)
	apptID := appt.ID
	ev.AppointmentID = &apptID
	s.events.Dispatch(ctx, ev)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
