package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduler/internal/appointment"
)

type CreateAppointmentRequest struct {
	ProviderID      string `json:"provider_id"`
	SubjectID       string `json:"subject_id"`
	StartTime       string `json:"start_time"` // RFC 3339
	DurationMinutes int    `json:"duration_minutes"`
	Title           string `json:"title"`
	Notes           string `json:"notes,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	ProviderID   uuid.UUID `json:"provider_id"`
	SubjectID    uuid.UUID `json:"subject_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"`
	Title        string    `json:"title"`
	Notes        string    `json:"notes,omitempty"`
	CancelReason *string   `json:"cancel_reason,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		ProviderID:   a.ProviderID,
		SubjectID:    a.SubjectID,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Status:       string(a.Status),
		Title:        a.Title,
		Notes:        a.Notes,
		CancelReason: a.CancelReason,
	}
}

type AvailabilityResponse struct {
	ProviderID uuid.UUID          `json:"provider_id"`
	Date       string             `json:"date"`
	Slots      []appointment.Slot `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
