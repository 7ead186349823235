package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAppointment(repo *memoryRepo, providerID uuid.UUID, start, end time.Time, status Status) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	id := uuid.New()
	repo.appts[id] = &Appointment{
		ID:         id,
		ProviderID: providerID,
		SubjectID:  uuid.New(),
		StartTime:  start,
		EndTime:    end,
		Status:     status,
	}
}

func at(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, time.UTC)
}

func TestComputeAvailabilityEmptyDay(t *testing.T) {
	f := newFixture(t)
	provider := f.repo.addProvider()
	day := time.Date(2027, 3, 10, 0, 0, 0, 0, time.UTC)

	slots, err := f.svc.ComputeAvailability(context.Background(), provider, day, AvailabilityOptions{})
	require.NoError(t, err)

	// 09:00-17:00 in 30-minute steps.
	require.Len(t, slots, 16)
	assert.Equal(t, at(day, 9, 0), slots[0].StartTime)
	assert.Equal(t, at(day, 9, 30), slots[0].EndTime)
	assert.Equal(t, at(day, 16, 30), slots[15].StartTime)
	assert.Equal(t, at(day, 17, 0), slots[15].EndTime)
}

func TestComputeAvailabilityExcludesBookedSlot(t *testing.T) {
	f := newFixture(t)
	provider := f.repo.addProvider()
	day := time.Date(2027, 3, 10, 0, 0, 0, 0, time.UTC)

	seedAppointment(f.repo, provider, at(day, 10, 0), at(day, 10, 30), StatusScheduled)

	slots, err := f.svc.ComputeAvailability(context.Background(), provider, day, AvailabilityOptions{})
	require.NoError(t, err)

	require.Len(t, slots, 15)
	for _, s := range slots {
		assert.False(t, s.StartTime.Equal(at(day, 10, 0)), "10:00 slot must not be free")
	}
}

func TestComputeAvailabilityIgnoresCancelled(t *testing.T) {
	f := newFixture(t)
	provider := f.repo.addProvider()
	day := time.Date(2027, 3, 10, 0, 0, 0, 0, time.UTC)

	seedAppointment(f.repo, provider, at(day, 10, 0), at(day, 10, 30), StatusCancelled)

	slots, err := f.svc.ComputeAvailability(context.Background(), provider, day, AvailabilityOptions{})
	require.NoError(t, err)
	assert.Len(t, slots, 16, "cancelled bookings do not block slots")
}

func TestComputeAvailabilityPartialOverlapBlocksBothSlots(t *testing.T) {
	f := newFixture(t)
	provider := f.repo.addProvider()
	day := time.Date(2027, 3, 10, 0, 0, 0, 0, time.UTC)

	// 10:15-10:45 straddles the 10:00 and 10:30 grid slots.
	seedAppointment(f.repo, provider, at(day, 10, 15), at(day, 10, 45), StatusScheduled)

	slots, err := f.svc.ComputeAvailability(context.Background(), provider, day, AvailabilityOptions{})
	require.NoError(t, err)

	require.Len(t, slots, 14)
	for _, s := range slots {
		assert.False(t, s.StartTime.Equal(at(day, 10, 0)))
		assert.False(t, s.StartTime.Equal(at(day, 10, 30)))
	}
}

// The grid partitions the working day: free slots plus booked slots plus any
// partial leftover must reconstruct the full range exactly once.
func TestComputeAvailabilityPartitionsWorkday(t *testing.T) {
	f := newFixture(t)
	provider := f.repo.addProvider()
	day := time.Date(2027, 3, 10, 0, 0, 0, 0, time.UTC)

	seedAppointment(f.repo, provider, at(day, 9, 30), at(day, 10, 0), StatusScheduled)
	seedAppointment(f.repo, provider, at(day, 13, 0), at(day, 14, 0), StatusInProgress)

	slots, err := f.svc.ComputeAvailability(context.Background(), provider, day, AvailabilityOptions{})
	require.NoError(t, err)

	free := make(map[time.Time]bool, len(slots))
	for _, s := range slots {
		free[s.StartTime] = true
	}

	booked, err := f.repo.FindByProviderBetween(context.Background(), provider, at(day, 9, 0), at(day, 17, 0))
	require.NoError(t, err)

	covered := 0
	for cursor := at(day, 9, 0); cursor.Before(at(day, 17, 0)); cursor = cursor.Add(30 * time.Minute) {
		isFree := free[cursor]
		isBooked := intersectsAny(booked, cursor, cursor.Add(30*time.Minute))
		assert.NotEqual(t, isFree, isBooked, "slot at %s must be exactly one of free or booked", cursor)
		covered++
	}
	assert.Equal(t, 16, covered)
}

func TestComputeAvailabilityDropsTrailingPartialSlot(t *testing.T) {
	f := newFixture(t)
	provider := f.repo.addProvider()
	day := time.Date(2027, 3, 10, 0, 0, 0, 0, time.UTC)

	// 45-minute slots in an 8-hour window: 10 whole slots, 30 minutes dropped.
	slots, err := f.svc.ComputeAvailability(context.Background(), provider, day, AvailabilityOptions{
		SlotMinutes: 45,
	})
	require.NoError(t, err)

	require.Len(t, slots, 10)
	last := slots[len(slots)-1]
	assert.Equal(t, at(day, 16, 30), last.EndTime, "partial trailing slot is dropped")
}

func TestComputeAvailabilityUnknownProvider(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2027, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.ComputeAvailability(context.Background(), uuid.New(), day, AvailabilityOptions{})
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

// Booking a slot then querying availability for that day must no longer list
// the slot as free.
func TestBookingRemovesSlotFromAvailability(t *testing.T) {
	f := newFixture(t)
	provider := f.repo.addProvider()
	patient := f.repo.addPatient()

	start := futureDay(3, 10, 0)

	before, err := f.svc.ComputeAvailability(context.Background(), provider, start, AvailabilityOptions{})
	require.NoError(t, err)
	require.True(t, containsSlotStart(before, start), "slot must be free before booking")

	_, err = f.svc.TryBook(context.Background(), BookingRequest{
		ProviderID:      provider,
		SubjectID:       patient,
		StartTime:       start,
		DurationMinutes: 30,
	})
	require.NoError(t, err)

	after, err := f.svc.ComputeAvailability(context.Background(), provider, start, AvailabilityOptions{})
	require.NoError(t, err)
	assert.False(t, containsSlotStart(after, start), "booked slot must disappear from availability")
	assert.Len(t, after, len(before)-1)
}

func containsSlotStart(slots []Slot, start time.Time) bool {
	for _, s := range slots {
		if s.StartTime.Equal(start) {
			return true
		}
	}
	return false
}
