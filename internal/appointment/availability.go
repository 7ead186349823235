package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AvailabilityOptions controls the working-hours grid the free slots are
// computed against. Zero values fall back to the service defaults.
type AvailabilityOptions struct {
	SlotMinutes  int // slot length; trailing partial slots are dropped
	WorkdayStart int // minutes since midnight
	WorkdayEnd   int // minutes since midnight
}

// ComputeAvailability returns the free slots for one provider on one
// calendar day, ascending by start time. A slot is free iff no non-cancelled
// appointment overlaps it (half-open interval test). An empty result is a
// fully booked day, not an error.
func (s *Service) ComputeAvailability(ctx context.Context, providerID uuid.UUID, date time.Time, opts AvailabilityOptions) ([]Slot, error) {
	if opts.SlotMinutes <= 0 {
		opts.SlotMinutes = s.defaults.SlotMinutes
	}
	if opts.WorkdayStart == 0 && opts.WorkdayEnd == 0 {
		opts.WorkdayStart = s.defaults.WorkdayStart
		opts.WorkdayEnd = s.defaults.WorkdayEnd
	}
	if opts.WorkdayEnd <= opts.WorkdayStart {
		return nil, fmt.Errorf("workday end %d must be after start %d", opts.WorkdayEnd, opts.WorkdayStart)
	}

	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}

	// Time-of-day on the requested date is ignored; the grid is anchored at
	// midnight in the date's own location.
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	dayStart := midnight.Add(time.Duration(opts.WorkdayStart) * time.Minute)
	dayEnd := midnight.Add(time.Duration(opts.WorkdayEnd) * time.Minute)

	booked, err := s.repo.FindByProviderBetween(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load booked intervals: %w", err)
	}

	step := time.Duration(opts.SlotMinutes) * time.Minute
	free := make([]Slot, 0)

	for t := dayStart; !t.Add(step).After(dayEnd); t = t.Add(step) {
		slotEnd := t.Add(step)
		if !intersectsAny(booked, t, slotEnd) {
			free = append(free, Slot{StartTime: t, EndTime: slotEnd})
		}
	}

	return free, nil
}

func intersectsAny(booked []Appointment, start, end time.Time) bool {
	for i := range booked {
		if booked[i].Overlaps(start, end) {
			return true
		}
	}
	return false
}
