package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduler/internal/appointment"
	"github.com/clinicore/clinic-scheduler/internal/realtime"
)

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(r.URL.Query().Get("provider_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		dateStr := r.URL.Query().Get("date")
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		var opts appointment.AvailabilityOptions
		if v := r.URL.Query().Get("slot_minutes"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_slot_minutes", "slot_minutes must be a positive integer")
				return
			}
			opts.SlotMinutes = n
		}

		slots, err := svc.ComputeAvailability(r.Context(), providerID, date, opts)
		if err != nil {
			if errors.Is(err, appointment.ErrProviderNotFound) {
				writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			ProviderID: providerID,
			Date:       dateStr,
			Slots:      slots,
		})
	}
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		subjectID, err := uuid.Parse(req.SubjectID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_subject_id", "subject_id must be a valid UUID")
			return
		}

		startTime, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be RFC 3339")
			return
		}

		appt, err := svc.TryBook(r.Context(), appointment.BookingRequest{
			ProviderID:      providerID,
			SubjectID:       subjectID,
			StartTime:       startTime,
			DurationMinutes: req.DurationMinutes,
			Title:           req.Title,
			Notes:           req.Notes,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID, err := uuid.Parse(r.URL.Query().Get("subject_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_subject_id", "subject_id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := svc.ListBySubject(r.Context(), subjectID, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func startAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Start(r.Context(), id)
	})
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Complete(r.Context(), id)
	})
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		var req CancelAppointmentRequest
		if r.Body != nil {
			// Body is optional for cancel; a bare POST means no reason given.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		return svc.Cancel(r.Context(), id, req.Reason)
	})
}

func transitionHandler(fn func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := fn(r, id)
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func presenceHandler(registry *realtime.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, registry.ListOnline())
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_duration", err.Error())
	case errors.Is(err, appointment.ErrStartInPast):
		writeError(w, http.StatusBadRequest, "start_in_past", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrProviderBusy):
		writeError(w, http.StatusConflict, "provider_busy", "provider is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
