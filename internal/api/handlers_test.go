package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-scheduler/internal/appointment"
	"github.com/clinicore/clinic-scheduler/internal/config"
	"github.com/clinicore/clinic-scheduler/internal/lock"
	"github.com/clinicore/clinic-scheduler/internal/realtime"
)

var _ appointment.Repository = (*stubRepo)(nil)

type stubRepo struct {
	mu        sync.Mutex
	patients  map[uuid.UUID]bool
	providers map[uuid.UUID]bool
	appts     map[uuid.UUID]*appointment.Appointment
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		patients:  make(map[uuid.UUID]bool),
		providers: make(map[uuid.UUID]bool),
		appts:     make(map[uuid.UUID]*appointment.Appointment),
	}
}

func (s *stubRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*appointment.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.patients[id] {
		return nil, appointment.ErrPatientNotFound
	}
	return &appointment.Patient{ID: id}, nil
}

func (s *stubRepo) GetProviderByID(_ context.Context, id uuid.UUID) (*appointment.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.providers[id] {
		return nil, appointment.ErrProviderNotFound
	}
	return &appointment.Provider{ID: id}, nil
}

func (s *stubRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *stubRepo) FindOverlapping(_ context.Context, providerID uuid.UUID, start, end time.Time) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.ProviderID == providerID && a.Status != appointment.StatusCancelled && a.Overlaps(start, end) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *stubRepo) FindByProviderBetween(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
	return s.FindOverlapping(ctx, providerID, from, to)
}

func (s *stubRepo) Insert(_ context.Context, appt *appointment.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *appt
	s.appts[appt.ID] = &cp
	return nil
}

func (s *stubRepo) UpdateStatus(_ context.Context, id uuid.UUID, to appointment.Status, reason *string, from ...appointment.Status) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	for _, f := range from {
		if a.Status == f {
			a.Status = to
			if reason != nil {
				a.CancelReason = reason
			}
			cp := *a
			return &cp, nil
		}
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (s *stubRepo) SetReminderJob(_ context.Context, id uuid.UUID, jobID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.appts[id]; ok {
		a.ReminderJobID = jobID
	}
	return nil
}

func (s *stubRepo) ListBySubject(_ context.Context, subjectID uuid.UUID, limit, offset int) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.SubjectID == subjectID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *stubRepo) InsertEvent(context.Context, appointment.EventLog) error { return nil }

type testServer struct {
	repo     *stubRepo
	router   http.Handler
	provider uuid.UUID
	patient  uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := newStubRepo()
	provider := uuid.New()
	patient := uuid.New()
	repo.providers[provider] = true
	repo.patients[patient] = true

	svc := appointment.NewService(repo, lock.NewLocalProviderLocker(), nil, nil, config.Config{
		SlotMinutes:  30,
		WorkdayStart: "09:00",
		WorkdayEnd:   "17:00",
		ReminderLead: 24 * time.Hour,
	})

	r := chi.NewRouter()
	r.Get("/availability", availabilityHandler(svc))
	r.Post("/appointments", createAppointmentHandler(svc))
	r.Get("/appointments", listAppointmentsHandler(svc))
	r.Get("/appointments/{id}", getAppointmentHandler(svc))
	r.Post("/appointments/{id}/start", startAppointmentHandler(svc))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(svc))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(svc))
	r.Get("/presence", presenceHandler(realtime.NewRegistry()))

	return &testServer{repo: repo, router: r, provider: provider, patient: patient}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) book(t *testing.T, start time.Time) AppointmentResponse {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		ProviderID:      ts.provider.String(),
		SubjectID:       ts.patient.String(),
		StartTime:       start.Format(time.RFC3339),
		DurationMinutes: 30,
		Title:           "Checkup",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func tomorrowAt(hour int) time.Time {
	day := time.Now().AddDate(0, 0, 1)
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.book(t, tomorrowAt(10))
	assert.Equal(t, "scheduled", resp.Status)
	assert.Equal(t, ts.provider, resp.ProviderID)

	// Same interval again conflicts.
	rec := ts.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		ProviderID:      ts.provider.String(),
		SubjectID:       ts.patient.String(),
		StartTime:       tomorrowAt(10).Format(time.RFC3339),
		DurationMinutes: 30,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "slot_unavailable", errResp.Error)
}

func TestCreateAppointmentValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		ProviderID: "nope",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		ProviderID:      ts.provider.String(),
		SubjectID:       ts.patient.String(),
		StartTime:       time.Now().Add(-time.Hour).Format(time.RFC3339),
		DurationMinutes: 30,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		ProviderID:      ts.provider.String(),
		SubjectID:       uuid.NewString(),
		StartTime:       tomorrowAt(10).Format(time.RFC3339),
		DurationMinutes: 30,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	ts := newTestServer(t)
	start := tomorrowAt(10)

	ts.book(t, start)

	date := start.Format("2006-01-02")
	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/availability?provider_id=%s&date=%s", ts.provider, date), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Slots, 15, "booked slot is excluded from the 16-slot grid")

	rec = ts.do(t, http.MethodGet, "/availability?provider_id=bad&date="+date, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/availability?provider_id=%s&date=not-a-date", ts.provider), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/availability?provider_id=%s&date=%s", uuid.New(), date), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransitionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, tomorrowAt(9))

	rec := ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Completed is terminal.
	rec = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", CancelAppointmentRequest{Reason: "too late"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointments/not-a-uuid/start", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelEndpoint(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, tomorrowAt(11))

	rec := ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", CancelAppointmentRequest{Reason: "sick"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled", resp.Status)
	require.NotNil(t, resp.CancelReason)
	assert.Equal(t, "sick", *resp.CancelReason)

	// Cancel again: idempotent no-op.
	rec = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAndListEndpoints(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, tomorrowAt(13))

	rec := ts.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointments?subject_id="+ts.patient.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = ts.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPresenceEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/presence", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []realtime.PresenceInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)
}
